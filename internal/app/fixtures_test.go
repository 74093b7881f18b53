package app_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"dbkompare-functions/internal/app"
	"dbkompare-functions/internal/certificate"
	"dbkompare-functions/internal/domain"
	"dbkompare-functions/internal/infra/memory"
)

const templateKey = "COMMON/Certificate.pdf"

var fixedNow = time.Date(2024, time.November, 22, 10, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type stubRenderer struct {
	calls []certificate.Fields
}

func (r *stubRenderer) Render(template []byte, fields certificate.Fields) ([]byte, error) {
	r.calls = append(r.calls, fields)
	return append(append([]byte{}, template...), fields.CertificateID...), nil
}

type env struct {
	store    *memory.Store
	objects  *memory.ObjectStore
	renderer *stubRenderer
	issuer   *app.CertificateIssuer
	log      *logrus.Logger
	hook     *test.Hook
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	objects := memory.NewObjectStore("certs")
	if _, err := objects.Store(context.Background(), templateKey, []byte("%PDF-template"), "application/pdf"); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	renderer := &stubRenderer{}
	seq := 0
	issuer := app.NewCertificateIssuer(objects, renderer, app.IssuerOptions{
		TemplateKey:   templateKey,
		Prefix:        "CERTIFICATES/",
		VerifyBaseURL: "https://dbkompare.com/verify/",
	}).WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("CERT%08d", seq)
	})

	return &env{
		store:    memory.NewStore(),
		objects:  objects,
		renderer: renderer,
		issuer:   issuer,
		log:      log,
		hook:     hook,
	}
}

func (e *env) submissions() *app.SubmissionService {
	return app.NewSubmissionService(e.store, e.store, e.store, e.store, e.issuer, e.log).WithClock(clock)
}

func (e *env) certificates() *app.CertificateService {
	return app.NewCertificateService(e.store, e.store, e.store, e.store, e.store, e.issuer, e.log).WithClock(clock)
}

func (e *env) user(t *testing.T, id string) domain.User {
	t.Helper()
	u, err := e.store.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("get user %s: %v", id, err)
	}
	return u
}

func intPtr(v int) *int { return &v }

// twoQuestionQuiz has one single-answer and one multi-answer question.
func twoQuestionQuiz(id string, passing float64) domain.Quiz {
	return domain.Quiz{
		ID:                id,
		Name:              "SQL Basics " + id,
		Category:          "SQL",
		PassingPercentage: passing,
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "Which clause filters rows?",
				Options: []domain.Option{
					{ID: "a", Text: "WHERE", IsCorrect: true},
					{ID: "b", Text: "ORDER BY"},
				},
			},
			{
				ID:   "q2",
				Text: "Which are aggregate functions?",
				Options: []domain.Option{
					{ID: "a", Text: "COUNT", IsCorrect: true},
					{ID: "b", Text: "SUM", IsCorrect: true},
					{ID: "c", Text: "LOWER"},
				},
			},
		},
	}
}

func allCorrect() []domain.Answer {
	return []domain.Answer{
		{QuestionID: "q1", SelectedOptionIDs: []string{"a"}},
		{QuestionID: "q2", SelectedOptionIDs: []string{"b", "a"}},
	}
}
