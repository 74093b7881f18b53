package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dbkompare-functions/internal/certificate"
	"dbkompare-functions/internal/domain"
)

// EligibleCreditThreshold is the certificate credit count above which a new
// certificate is flagged as eligible for credits.
const EligibleCreditThreshold = 25

// SubmitQuizRequest is one attempt at a quiz.
type SubmitQuizRequest struct {
	QuizID  string          `json:"quizId" validate:"required"`
	UserID  string          `json:"userId" validate:"required"`
	Answers []domain.Answer `json:"answers" validate:"required,min=1"`
}

// SubmitResult is returned to the caller after scoring.
type SubmitResult struct {
	SubmissionID       string  `json:"submissionId"`
	CorrectCount       int     `json:"correctCount"`
	TotalQuestions     int     `json:"totalQuestions"`
	PercentageScore    int     `json:"percentageScore"`
	Passed             bool    `json:"passed"`
	PassingPercentage  float64 `json:"passingPercentage"`
	EligibleForCredits bool    `json:"eligibleForCredits"`
	CertificateURL     *string `json:"certificateUrl"`
	CertificateID      *string `json:"certificateId"`
}

// SubmissionDetails is a stored submission with fresh quiz content.
type SubmissionDetails struct {
	domain.Submission
	EligibleForCredits bool `json:"eligibleForCredits"`
}

// SubmissionService scores quiz attempts and issues certificates for passing ones.
type SubmissionService struct {
	quizzes      QuizRepository
	users        UserRepository
	submissions  SubmissionRepository
	certificates CertificateRepository
	issuer       *CertificateIssuer
	log          logrus.FieldLogger
	now          func() time.Time
	newID        func() string
}

func NewSubmissionService(
	quizzes QuizRepository,
	users UserRepository,
	submissions SubmissionRepository,
	certificates CertificateRepository,
	issuer *CertificateIssuer,
	log logrus.FieldLogger,
) *SubmissionService {
	return &SubmissionService{
		quizzes:      quizzes,
		users:        users,
		submissions:  submissions,
		certificates: certificates,
		issuer:       issuer,
		log:          log,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *SubmissionService) WithClock(now func() time.Time) *SubmissionService {
	s.now = now
	return s
}

// SubmitQuiz scores the answers and records the submission. A passing attempt also
// renders a certificate and, in the same write, stores the certificate and adds a
// certificate credit to the user.
func (s *SubmissionService) SubmitQuiz(ctx context.Context, req SubmitQuizRequest) (SubmitResult, error) {
	if req.QuizID == "" || req.UserID == "" || req.Answers == nil {
		return SubmitResult{}, domain.Validation("Missing required fields: quizId, userId, answers")
	}
	if len(req.Answers) == 0 {
		return SubmitResult{}, domain.Validation("Answers must be a non-empty array")
	}
	if err := validateRequest(req); err != nil {
		return SubmitResult{}, err
	}

	var (
		quiz domain.Quiz
		user domain.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quiz, err = s.quizzes.GetQuiz(gctx, req.QuizID)
		return storeError(err, "Failed to load quiz")
	})
	g.Go(func() error {
		var err error
		user, err = s.users.GetUser(gctx, req.UserID)
		return storeError(err, "Failed to load user")
	})
	if err := g.Wait(); err != nil {
		return SubmitResult{}, err
	}

	score := ScoreAnswers(quiz, req.Answers)
	percentage := PercentageScore(quiz, score.CorrectCount)
	passed := Passed(quiz, percentage)
	now := s.now()

	submission := domain.Submission{
		ID:                s.newID(),
		QuizID:            quiz.ID,
		UserID:            req.UserID,
		CreatedAt:         now.UnixMilli(),
		Answers:           req.Answers,
		CorrectCount:      score.CorrectCount,
		TotalQuestions:    len(quiz.Questions),
		TotalScore:        score.TotalScore,
		PercentageScore:   percentage,
		PassingPercentage: quiz.PassingPercentage,
		Status:            domain.SubmissionFailed,
		QuizDetails: domain.QuizDetails{
			Name:       quiz.Name,
			Category:   quiz.Category,
			Difficulty: quiz.Difficulty,
		},
	}
	result := SubmitResult{
		SubmissionID:       submission.ID,
		CorrectCount:       score.CorrectCount,
		TotalQuestions:     len(quiz.Questions),
		PercentageScore:    roundPercent(percentage),
		Passed:             passed,
		PassingPercentage:  quiz.PassingPercentage,
		EligibleForCredits: user.CertificateCredits > EligibleCreditThreshold,
	}

	var cert *domain.Certificate
	if passed {
		submission.Status = domain.SubmissionPassed
		submission.CertificateID = s.issuer.NewID()

		quizName := quiz.Name
		if quizName == "" {
			quizName = "Quiz"
		}
		uri, err := s.issuer.Publish(ctx, Document{
			CertificateID:  submission.CertificateID,
			UserID:         req.UserID,
			SubmissionID:   submission.ID,
			RecipientName:  user.Name,
			CompletionText: certificate.QuizCompletionText(quizName, roundPercent(percentage), certificate.FormatIssuedAt(now)),
		})
		if err != nil {
			return SubmitResult{}, err
		}

		cert = &domain.Certificate{
			ID:           submission.CertificateID,
			SubjectID:    quiz.ID,
			UserID:       req.UserID,
			SubmissionID: submission.ID,
			IssueDate:    now.UnixMilli(),
			Status:       domain.StatusActive,
			MetaData: domain.CertificateMeta{
				Score:    percentage,
				QuizName: quiz.Name,
			},
			EligibleForCredits: result.EligibleForCredits,
		}
		result.CertificateURL = &uri
		result.CertificateID = &cert.ID
	}

	if err := s.submissions.RecordSubmission(ctx, submission, cert); err != nil {
		if errors.Is(err, domain.ErrConditionFailed) {
			return SubmitResult{}, domain.Conflict("Submission could not be recorded, please retry")
		}
		return SubmitResult{}, storeError(err, "Failed to record submission")
	}

	s.log.WithFields(logrus.Fields{
		"userId":       req.UserID,
		"quizId":       quiz.ID,
		"submissionId": submission.ID,
		"passed":       passed,
	}).Info("quiz submitted")
	return result, nil
}

// GetSubmission returns a submission with the quiz's current questions and the
// eligibility flag of its certificate.
func (s *SubmissionService) GetSubmission(ctx context.Context, submissionID string) (SubmissionDetails, error) {
	if submissionID == "" {
		return SubmissionDetails{}, domain.Validation("Missing Submission ID")
	}
	submission, err := s.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return SubmissionDetails{}, storeError(err, "Failed to load submission")
	}
	quiz, err := s.quizzes.GetQuiz(ctx, submission.QuizID)
	if err != nil {
		return SubmissionDetails{}, storeError(err, "Failed to load quiz")
	}
	submission.QuizDetails = domain.QuizDetails{
		Name:       quiz.Name,
		Category:   quiz.Category,
		Difficulty: quiz.Difficulty,
		Questions:  quiz.Questions,
	}

	details := SubmissionDetails{Submission: submission}
	if submission.CertificateID != "" {
		cert, err := s.certificates.GetCertificate(ctx, submission.CertificateID)
		switch {
		case err == nil:
			details.EligibleForCredits = cert.EligibleForCredits
		case !errors.Is(err, domain.ErrNotFound):
			return SubmissionDetails{}, storeError(err, "Failed to load certificate")
		}
	}
	return details, nil
}
