package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"dbkompare-functions/internal/app"
	"dbkompare-functions/internal/domain"
)

type fakeIdentity struct {
	groups map[string]string
	attrs  map[string]map[string]string
	err    error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{groups: map[string]string{}, attrs: map[string]map[string]string{}}
}

func (f *fakeIdentity) AssignGroup(_ context.Context, username, group string) error {
	if f.err != nil {
		return f.err
	}
	f.groups[username] = group
	return nil
}

func (f *fakeIdentity) UpdateAttributes(_ context.Context, username string, attrs map[string]string) error {
	f.attrs[username] = attrs
	return nil
}

type fakeMailer struct {
	subjects []string
	bodies   []string
	err      error
}

func (m *fakeMailer) NotifyAdmin(_ context.Context, subject, html string) error {
	m.subjects = append(m.subjects, subject)
	m.bodies = append(m.bodies, html)
	return m.err
}

func TestRegisterUserCreatesVendorAccount(t *testing.T) {
	e := newEnv(t)
	identity := newFakeIdentity()
	mailer := &fakeMailer{}
	svc := app.NewUserService(e.store, identity, mailer, e.log).WithClock(clock)

	user, err := svc.RegisterUser(context.Background(), app.Registration{
		Username: "ada",
		Attributes: map[string]string{
			"sub":   "cog-1",
			"email": "ada@example.com",
			"name":  "Ada <Admin>",
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != domain.RoleVendor || user.FreeQuizBalance() != domain.DefaultFreeQuizCredits || user.CognitoID != "cog-1" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.LoggedAt != "2024-11-22T10:30:00.000Z" {
		t.Fatalf("loggedAt = %s", user.LoggedAt)
	}
	stored := e.user(t, user.ID)
	if stored.Email != "ada@example.com" || stored.UnlockedQuizIDs == nil {
		t.Fatalf("unexpected stored user %+v", stored)
	}
	if identity.groups["ada"] != app.GroupVendors {
		t.Fatalf("group = %q", identity.groups["ada"])
	}
	if identity.attrs["ada"]["custom:userId"] != user.ID || identity.attrs["ada"]["custom:role"] != "VENDOR" {
		t.Fatalf("attributes = %v", identity.attrs["ada"])
	}
	if len(mailer.subjects) != 1 || mailer.subjects[0] != "New User Registered: Ada <Admin>" {
		t.Fatalf("subjects = %v", mailer.subjects)
	}
	if !strings.Contains(mailer.bodies[0], "Ada &lt;Admin&gt;") {
		t.Fatalf("name not escaped in %s", mailer.bodies[0])
	}
}

func TestRegisterUserAdminAndGoogle(t *testing.T) {
	e := newEnv(t)
	identity := newFakeIdentity()
	svc := app.NewUserService(e.store, identity, &fakeMailer{}, e.log)

	if _, err := svc.RegisterUser(context.Background(), app.Registration{
		Username:   "root",
		Attributes: map[string]string{"sub": "cog-2", "custom:role": "ADMIN"},
	}); err != nil {
		t.Fatalf("register admin: %v", err)
	}
	if identity.groups["root"] != app.GroupAdmins {
		t.Fatalf("admin group = %q", identity.groups["root"])
	}

	if _, err := svc.RegisterUser(context.Background(), app.Registration{
		Username: "google_123",
		Attributes: map[string]string{
			"sub":         "cog-3",
			"custom:role": "ADMIN",
			"identities":  `[{"providerName":"Google","userId":"123"}]`,
		},
	}); err != nil {
		t.Fatalf("register google: %v", err)
	}
	if identity.groups["google_123"] != app.GroupVendors {
		t.Fatalf("social sign-ups are vendors, got %q", identity.groups["google_123"])
	}
	if identity.attrs["google_123"]["email_verified"] != "true" {
		t.Fatalf("social sign-up email not marked verified: %v", identity.attrs["google_123"])
	}
}

func TestRegisterUserMailFailureIsLogged(t *testing.T) {
	e := newEnv(t)
	mailer := &fakeMailer{err: errors.New("smtp down")}
	svc := app.NewUserService(e.store, newFakeIdentity(), mailer, e.log)

	if _, err := svc.RegisterUser(context.Background(), app.Registration{Username: "ada", Attributes: map[string]string{"sub": "c"}}); err != nil {
		t.Fatalf("register must succeed when mail fails: %v", err)
	}
	var warned bool
	for _, entry := range e.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "admin notification failed" {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected a warning for the failed notification")
	}
}

func TestRegisterUserIdentityFailure(t *testing.T) {
	e := newEnv(t)
	identity := newFakeIdentity()
	identity.err = errors.New("throttled")
	svc := app.NewUserService(e.store, identity, &fakeMailer{}, e.log)

	_, err := svc.RegisterUser(context.Background(), app.Registration{Username: "ada", Attributes: map[string]string{"sub": "c"}})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestGetUser(t *testing.T) {
	e := newEnv(t)
	e.store.PutUser(domain.User{ID: "u1", Name: "Ada"})
	svc := app.NewUserService(e.store, newFakeIdentity(), &fakeMailer{}, e.log)

	u, err := svc.GetUser(context.Background(), "u1")
	if err != nil || u.Name != "Ada" {
		t.Fatalf("get user: %+v %v", u, err)
	}
	if _, err := svc.GetUser(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.GetUser(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
