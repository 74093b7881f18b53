package domain

// SubmissionStatus is the pass/fail outcome of a scored attempt.
type SubmissionStatus string

const (
	SubmissionPassed SubmissionStatus = "PASSED"
	SubmissionFailed SubmissionStatus = "FAILED"
)

const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
	StatusDisabled = "DISABLED"
)

// Role is the coarse role carried by the identity provider's group claim.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleVendor Role = "VENDOR"
)

// DefaultFreeQuizCredits is granted to every new user and assumed for records
// that predate the attribute.
const DefaultFreeQuizCredits = 2

// Option represents a possible answer for a question.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question models a single- or multi-answer MCQ question.
type Question struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Options          []Option `json:"options"`
	IsMultipleAnswer bool     `json:"isMultipleAnswer"`
	Points           int      `json:"points,omitempty"` // defaults to 1 if zero
}

// CorrectOptionIDs returns the ids of every option flagged correct, in option order.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, 1)
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// MultipleAnswer reports whether the question is scored with set equality.
func (q Question) MultipleAnswer() bool {
	return q.IsMultipleAnswer || len(q.CorrectOptionIDs()) > 1
}

// PointValue is the score awarded for a correct answer.
func (q Question) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Quiz is a question bank plus its pass rule.
type Quiz struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Category          string     `json:"category,omitempty"`
	Difficulty        string     `json:"difficulty,omitempty"`
	Questions         []Question `json:"questions"`
	PassingPercentage float64    `json:"passingPerc"`
	DesiredQuestions  int        `json:"desiredQuestions,omitempty"`
}

// Answer is what a user submitted for one question.
type Answer struct {
	QuestionID        string   `json:"questionId"`
	SelectedOptionIDs []string `json:"selectedOptionIds"`
}

// QuizDetails is the quiz metadata snapshotted onto a submission.
type QuizDetails struct {
	Name       string     `json:"name"`
	Category   string     `json:"category,omitempty"`
	Difficulty string     `json:"difficulty,omitempty"`
	Questions  []Question `json:"questions,omitempty"`
}

// Submission is one scored attempt by a user at a quiz. It is never mutated.
type Submission struct {
	ID                string           `json:"id"`
	QuizID            string           `json:"quizId"`
	UserID            string           `json:"userId"`
	CreatedAt         int64            `json:"createdAt"`
	Answers           []Answer         `json:"answers"`
	CorrectCount      int              `json:"correctCount"`
	TotalQuestions    int              `json:"totalQuestions"`
	TotalScore        int              `json:"totalScore"`
	PercentageScore   float64          `json:"percentageScore"`
	PassingPercentage float64          `json:"passingPercentage"`
	Status            SubmissionStatus `json:"status"`
	CertificateID     string           `json:"certificateId,omitempty"`
	QuizDetails       QuizDetails      `json:"quizDetails"`
}

// CertificateMeta holds the display data stored with a certificate.
type CertificateMeta struct {
	Score         float64 `json:"score,omitempty"`
	QuizName      string  `json:"quizName,omitempty"`
	AverageScore  int     `json:"averageScore,omitempty"`
	GroupName     string  `json:"groupName,omitempty"`
	TotalQuizzes  int     `json:"totalQuizzes,omitempty"`
	PassedQuizzes int     `json:"passedQuizzes,omitempty"`
}

// Certificate is an issued proof of completion for a quiz or a group.
type Certificate struct {
	ID                 string          `json:"id"`
	SubjectID          string          `json:"subjectId,omitempty"`
	UserID             string          `json:"userId"`
	SubmissionID       string          `json:"submissionId,omitempty"`
	IssueDate          int64           `json:"issueDate"`
	Status             string          `json:"status"`
	MetaData           CertificateMeta `json:"metaData"`
	EligibleForCredits bool            `json:"eligibleForCredits"`
}

// User is the account record shared by every function.
type User struct {
	ID                 string   `json:"id"`
	CognitoID          string   `json:"cognitoId,omitempty"`
	Email              string   `json:"email"`
	Name               string   `json:"name"`
	Role               Role     `json:"role"`
	CertificateCredits int      `json:"certificateCredits"`
	FreeQuizCredits    *int     `json:"freeQuizCredits,omitempty"`
	UnlockedQuizIDs    []string `json:"unlockedQuizIds"`
	HasClaimedFreePlan bool     `json:"hasClaimedFreePlan"`
	Status             string   `json:"status"`
	StripeCustomerID   string   `json:"stripeCustomerId,omitempty"`
	TransactionIDs     []string `json:"transactionIds,omitempty"`
	LoggedAt           string   `json:"loggedAt,omitempty"`
	UpdatedAt          int64    `json:"updatedAt,omitempty"`
}

// FreeQuizBalance returns the free quiz credits, applying the default for records
// written before the attribute existed.
func (u User) FreeQuizBalance() int {
	if u.FreeQuizCredits == nil {
		return DefaultFreeQuizCredits
	}
	return *u.FreeQuizCredits
}

// HasTransaction reports whether an external transaction id was already applied.
func (u User) HasTransaction(id string) bool {
	for _, t := range u.TransactionIDs {
		if t == id {
			return true
		}
	}
	return false
}

// Group is a named set of quizzes that unlocks a group certificate.
type Group struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	QuizIDs            []string `json:"quizIds"`
	CertificateTakenBy []string `json:"certificateTakenBy,omitempty"`
}

// CertificationPlan is read-only reference data for the credit ledger.
type CertificationPlan struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Badge                  string   `json:"badge,omitempty"`
	Description            string   `json:"description,omitempty"`
	Price                  float64  `json:"price"`
	CertificationsUnlocked int      `json:"certificationsUnlocked"`
	Features               []string `json:"features,omitempty"`
	Status                 string   `json:"status"`
	CreatedAt              int64    `json:"createdAt,omitempty"`
	UpdatedAt              int64    `json:"updatedAt,omitempty"`
}
