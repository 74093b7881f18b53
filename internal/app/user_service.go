package app

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dbkompare-functions/internal/domain"
)

// Identity provider groups.
const (
	GroupAdmins  = "Admins"
	GroupVendors = "Vendors"
)

// Registration is a confirmed sign-up reported by the identity provider.
type Registration struct {
	Username   string
	Attributes map[string]string
}

// UserService creates and reads user accounts.
type UserService struct {
	users    UserRepository
	identity IdentityProvider
	mailer   Mailer
	log      logrus.FieldLogger
	now      func() time.Time
	newID    func() string
}

func NewUserService(users UserRepository, identity IdentityProvider, mailer Mailer, log logrus.FieldLogger) *UserService {
	return &UserService{
		users:    users,
		identity: identity,
		mailer:   mailer,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *UserService) WithClock(now func() time.Time) *UserService {
	s.now = now
	return s
}

// RegisterUser creates the user record for a confirmed sign-up, puts the account in
// its role group and writes the user id back to the identity provider. The admin
// notification is best effort.
func (s *UserService) RegisterUser(ctx context.Context, reg Registration) (domain.User, error) {
	attrs := reg.Attributes
	username := reg.Username
	if username == "" {
		username = attrs["sub"]
	}

	role := domain.Role(attrs["custom:role"])
	if role == "" {
		role = domain.RoleVendor
	}
	update := map[string]string{}
	if socialProvider(attrs["identities"]) == "Google" {
		role = domain.RoleVendor
		update["email_verified"] = "true"
	}

	credits := domain.DefaultFreeQuizCredits
	user := domain.User{
		ID:                 s.newID(),
		CognitoID:          attrs["sub"],
		Email:              attrs["email"],
		Name:               attrs["name"],
		Role:               role,
		CertificateCredits: 0,
		FreeQuizCredits:    &credits,
		UnlockedQuizIDs:    []string{},
		Status:             domain.StatusActive,
		LoggedAt:           s.now().UTC().Format(isoMillis),
	}
	update["custom:userId"] = user.ID
	update["custom:role"] = string(role)

	if err := s.users.CreateUser(ctx, user); err != nil {
		return domain.User{}, storeError(err, "Failed to create user")
	}

	group := GroupVendors
	if role == domain.RoleAdmin {
		group = GroupAdmins
	}
	if err := s.identity.AssignGroup(ctx, username, group); err != nil {
		return domain.User{}, domain.Upstream(err, "Failed to add user to group %s", group)
	}
	if err := s.identity.UpdateAttributes(ctx, username, update); err != nil {
		return domain.User{}, domain.Upstream(err, "Failed to update user attributes")
	}

	log := s.log.WithFields(logrus.Fields{"userId": user.ID, "group": group})
	log.Info("user registered")

	subject := fmt.Sprintf("New User Registered: %s", user.Name)
	if err := s.mailer.NotifyAdmin(ctx, subject, registrationEmail(user)); err != nil {
		log.WithError(err).Warn("admin notification failed")
	}
	return user, nil
}

// GetUser returns a user record.
func (s *UserService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if userID == "" {
		return domain.User{}, domain.Validation("User ID is required")
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, storeError(err, "Failed to load user")
	}
	return user, nil
}

func socialProvider(identities string) string {
	if identities == "" {
		return ""
	}
	var parsed []struct {
		ProviderName string `json:"providerName"`
	}
	if err := json.Unmarshal([]byte(identities), &parsed); err != nil || len(parsed) == 0 {
		return ""
	}
	return parsed[0].ProviderName
}

func registrationEmail(u domain.User) string {
	return fmt.Sprintf(`<p>A new user has registered:</p>
<ul>
  <li><strong>Name:</strong> %s</li>
  <li><strong>Email:</strong> %s</li>
  <li><strong>Role:</strong> %s</li>
</ul>
<p>Please review the user details in the AWS Console.</p>`,
		html.EscapeString(u.Name), html.EscapeString(u.Email), html.EscapeString(string(u.Role)))
}
