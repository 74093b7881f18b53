package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dbkompare-functions/internal/app"
	"dbkompare-functions/internal/domain"
)

func seedPassed(t *testing.T, e *env, userID string, quizID string, pct float64, status domain.SubmissionStatus) {
	t.Helper()
	e.store.PutSubmission(domain.Submission{
		ID:              userID + "-" + quizID + "-" + string(status),
		QuizID:          quizID,
		UserID:          userID,
		PercentageScore: pct,
		Status:          status,
	})
}

func TestIssueGroupCertificateRequiresEveryQuiz(t *testing.T) {
	e := newEnv(t)
	e.store.PutUser(domain.User{ID: "u1", Name: "Grace"})
	e.store.PutGroup(domain.Group{ID: "g1", Name: "Databases", QuizIDs: []string{"q-a", "q-b", "q-c", "q-a"}})
	seedPassed(t, e, "u1", "q-a", 80, domain.SubmissionPassed)
	seedPassed(t, e, "u1", "q-b", 30, domain.SubmissionFailed)

	_, err := e.certificates().IssueGroupCertificate(context.Background(), "g1", "u1")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	var de *domain.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected domain error")
	}
	progress, ok := de.Data.(app.GroupProgress)
	if !ok {
		t.Fatalf("expected progress payload, got %T", de.Data)
	}
	if progress.TotalQuizzes != 3 || progress.PassedQuizzes != 1 || progress.RemainingQuizzes != 2 {
		t.Fatalf("unexpected progress %+v", progress)
	}
}

func TestIssueGroupCertificateIssuesOnceThenReturnsExisting(t *testing.T) {
	e := newEnv(t)
	e.store.PutUser(domain.User{ID: "u1", Name: "Grace"})
	e.store.PutGroup(domain.Group{ID: "g1", Name: "Databases", QuizIDs: []string{"q-a", "q-b"}})
	seedPassed(t, e, "u1", "q-a", 80, domain.SubmissionPassed)
	seedPassed(t, e, "u1", "q-b", 91, domain.SubmissionPassed)
	seedPassed(t, e, "u1", "q-other", 10, domain.SubmissionPassed)

	svc := e.certificates()
	first, err := svc.IssueGroupCertificate(context.Background(), "g1", "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if first.AlreadyExists || first.CertificateID != "CERT00000001" {
		t.Fatalf("unexpected first result %+v", first)
	}
	if first.AveragePercentage != 86 {
		t.Fatalf("average = %d, want 86", first.AveragePercentage)
	}
	if first.CertificateURL != "s3://certs/CERTIFICATES/CERT00000001-u1-group.pdf" {
		t.Fatalf("url = %s", first.CertificateURL)
	}
	if first.IssuedDate != fixedNow.UnixMilli() {
		t.Fatalf("issued date = %d", first.IssuedDate)
	}
	rendered := e.renderer.calls[0]
	if rendered.Highlight != "Databases" || !strings.Contains(rendered.CompletionText, "the Databases group") {
		t.Fatalf("group name not highlighted: %+v", rendered)
	}

	group, err := e.store.GetGroup(context.Background(), "g1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if len(group.CertificateTakenBy) != 1 || group.CertificateTakenBy[0] != "u1" {
		t.Fatalf("taker not recorded: %v", group.CertificateTakenBy)
	}

	second, err := svc.IssueGroupCertificate(context.Background(), "g1", "u1")
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if !second.AlreadyExists || second.CertificateID != first.CertificateID || second.CertificateURL != first.CertificateURL {
		t.Fatalf("expected existing certificate, got %+v", second)
	}
	if len(e.renderer.calls) != 1 {
		t.Fatalf("renderer calls = %d, want 1", len(e.renderer.calls))
	}
	group, _ = e.store.GetGroup(context.Background(), "g1")
	if len(group.CertificateTakenBy) != 1 {
		t.Fatalf("taker recorded twice: %v", group.CertificateTakenBy)
	}
}

func TestIssueGroupCertificateValidation(t *testing.T) {
	e := newEnv(t)
	svc := e.certificates()
	if _, err := svc.IssueGroupCertificate(context.Background(), "", "u1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	e.store.PutUser(domain.User{ID: "u1"})
	e.store.PutGroup(domain.Group{ID: "empty", Name: "Empty"})
	if _, err := svc.IssueGroupCertificate(context.Background(), "empty", "u1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty group, got %v", err)
	}
	if _, err := svc.IssueGroupCertificate(context.Background(), "missing", "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetCertificateResolvesQuizOrGroup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.PutUser(domain.User{ID: "u1", Name: "Grace"})
	e.store.PutQuiz(twoQuestionQuiz("quiz-1", 50))
	e.store.PutGroup(domain.Group{ID: "g1", Name: "Databases", QuizIDs: []string{"quiz-1"}})
	for _, c := range []domain.Certificate{
		{ID: "QUIZCERT0001", SubjectID: "quiz-1", UserID: "u1", Status: domain.StatusActive},
		{ID: "GROUPCERT001", SubjectID: "g1", UserID: "u1", Status: domain.StatusActive},
		{ID: "ORPHANCERT01", SubjectID: "gone", UserID: "u1", Status: domain.StatusActive},
		{ID: "NOUSERCERT01", SubjectID: "quiz-1", UserID: "ghost", Status: domain.StatusActive},
	} {
		if err := e.store.CreateCertificate(ctx, c); err != nil {
			t.Fatalf("seed %s: %v", c.ID, err)
		}
	}
	svc := e.certificates()

	quizCert, err := svc.GetCertificate(ctx, "QUIZCERT0001")
	if err != nil {
		t.Fatalf("quiz certificate: %v", err)
	}
	if quizCert.Quiz == nil || quizCert.Group != nil || quizCert.User.Name != "Grace" {
		t.Fatalf("unexpected details %+v", quizCert)
	}

	groupCert, err := svc.GetCertificate(ctx, "GROUPCERT001")
	if err != nil {
		t.Fatalf("group certificate: %v", err)
	}
	if groupCert.Quiz != nil || groupCert.Group == nil || groupCert.Group.Name != "Databases" {
		t.Fatalf("unexpected details %+v", groupCert)
	}

	if _, err := svc.GetCertificate(ctx, "ORPHANCERT01"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for orphan, got %v", err)
	}
	if _, err := svc.GetCertificate(ctx, "NOUSERCERT01"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing user, got %v", err)
	}
}

func TestUpdateCertificateRejectsUnknownAndMistypedFields(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if err := e.store.CreateCertificate(ctx, domain.Certificate{ID: "C1", UserID: "u1", Status: domain.StatusActive}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := e.certificates()

	if _, err := svc.UpdateCertificate(ctx, "C1", map[string]any{"userId": "u2"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown field, got %v", err)
	}
	if _, err := svc.UpdateCertificate(ctx, "C1", map[string]any{"eligibleForCredits": "yes"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for wrong type, got %v", err)
	}
	if _, err := svc.UpdateCertificate(ctx, "missing", map[string]any{"status": "INACTIVE"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	updated, err := svc.UpdateCertificate(ctx, "C1", map[string]any{"status": "INACTIVE", "eligibleForCredits": true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusInactive || !updated.EligibleForCredits || updated.UserID != "u1" {
		t.Fatalf("unexpected certificate %+v", updated)
	}
}
