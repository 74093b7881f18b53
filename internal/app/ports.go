package app

import (
	"context"

	"dbkompare-functions/internal/certificate"
	"dbkompare-functions/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// UserRepository persists user accounts and their credit balances.
// Mutating methods return domain.ErrConditionFailed when their guard rejects the write.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	BatchGetUsers(ctx context.Context, userIDs []string) (map[string]domain.User, error)
	// CreateUser fails if a user with the same id exists.
	CreateUser(ctx context.Context, user domain.User) error
	// SetFreeQuizCredits writes balance if the stored balance still equals expected
	// (nil expected means the attribute was never written). A non-empty unlockQuizID
	// is appended to the user's unlocked quizzes.
	SetFreeQuizCredits(ctx context.Context, userID string, expected *int, balance int, unlockQuizID string, now int64) (domain.User, error)
	// ClaimFreePlan adds credits to the free quiz balance and flags the claim,
	// only if the user has not claimed before.
	ClaimFreePlan(ctx context.Context, userID string, credits int, now int64) (domain.User, error)
	SetStripeCustomerID(ctx context.Context, userID, customerID string, now int64) error
	// GrantCredits applies grant atomically. When grant.TransactionID is set the
	// grant applies at most once per id.
	GrantCredits(ctx context.Context, grant CreditGrant) (domain.User, error)
}

// CreditGrant adds to one or both credit balances of a user.
type CreditGrant struct {
	UserID             string
	TransactionID      string
	CertificateCredits int
	FreeQuizCredits    int
	Now                int64
}

// SubmissionRepository stores scored attempts.
type SubmissionRepository interface {
	// RecordSubmission writes the submission and, when cert is non-nil, the
	// certificate and the owner's certificate credit increment, all or nothing.
	RecordSubmission(ctx context.Context, submission domain.Submission, cert *domain.Certificate) error
	GetSubmission(ctx context.Context, submissionID string) (domain.Submission, error)
	ListSubmissionsByUser(ctx context.Context, userID string) ([]domain.Submission, error)
}

type CertificateRepository interface {
	// CreateCertificate fails if the id is taken.
	CreateCertificate(ctx context.Context, cert domain.Certificate) error
	GetCertificate(ctx context.Context, certificateID string) (domain.Certificate, error)
	ListCertificatesByUser(ctx context.Context, userID string) ([]domain.Certificate, error)
	UpdateCertificate(ctx context.Context, certificateID string, patch domain.Patch) (domain.Certificate, error)
}

type GroupRepository interface {
	GetGroup(ctx context.Context, groupID string) (domain.Group, error)
	AddCertificateTaker(ctx context.Context, groupID, userID string) error
}

type PlanRepository interface {
	GetPlan(ctx context.Context, planID string) (domain.CertificationPlan, error)
	// ListPlans returns every plan, or only those with the given status when status is non-empty.
	ListPlans(ctx context.Context, status string) ([]domain.CertificationPlan, error)
	PutPlans(ctx context.Context, plans []domain.CertificationPlan) error
	UpdatePlanStatus(ctx context.Context, planID, status string, now int64) (domain.CertificationPlan, error)
}

// AchievementRepository stores the per-user event log, counters and notification markers.
type AchievementRepository interface {
	// AppendEvent fails if an event with the same sort key exists.
	AppendEvent(ctx context.Context, event domain.AchievementEvent) error
	// GetCounter returns a zero counter and false when none was written.
	GetCounter(ctx context.Context, userID, sortKey string) (domain.AchievementCounter, bool, error)
	SetCounter(ctx context.Context, counter domain.AchievementCounter) error
	// AddToCounter adds delta atomically and returns the new value.
	AddToCounter(ctx context.Context, userID, sortKey string, delta int, ts string) (int, error)
	PutNotification(ctx context.Context, marker domain.NotificationMarker) error
	// ListCounters returns every user's counter with the given sort key.
	ListCounters(ctx context.Context, sortKey string) ([]domain.AchievementCounter, error)
}

// ObjectStorage holds certificate templates and rendered documents.
type ObjectStorage interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	// Store writes body under key and returns the object's URI.
	Store(ctx context.Context, key string, body []byte, contentType string) (string, error)
	// URI names the object at key without touching storage.
	URI(key string) string
}

// Renderer fills a certificate template.
type Renderer interface {
	Render(template []byte, fields certificate.Fields) ([]byte, error)
}

// PaymentProcessor is the card payment provider.
type PaymentProcessor interface {
	CreateCustomer(ctx context.Context, email, name, userID string) (string, error)
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, intentID, paymentMethodID string) (PaymentIntent, error)
	// ParseWebhook verifies the signature and decodes the event.
	ParseWebhook(payload []byte, signature string) (PaymentEvent, error)
}

type PaymentIntentRequest struct {
	CustomerID string
	Amount     int64
	Currency   string
	Metadata   map[string]string
}

type PaymentIntent struct {
	ID           string
	Status       string
	ClientSecret string
	Metadata     map[string]string
}

type PaymentEvent struct {
	Type   string
	Intent PaymentIntent
}

// Payment intent statuses and webhook event types the ledger reacts to.
const (
	PaymentSucceeded      = "succeeded"
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Mailer notifies the operators.
type Mailer interface {
	NotifyAdmin(ctx context.Context, subject, html string) error
}

// IdentityProvider manages accounts in the user pool.
type IdentityProvider interface {
	AssignGroup(ctx context.Context, username, group string) error
	UpdateAttributes(ctx context.Context, username string, attrs map[string]string) error
}

// TextGenerator completes a prompt into a JSON object.
type TextGenerator interface {
	CompleteJSON(ctx context.Context, prompt string) (map[string]any, error)
}
