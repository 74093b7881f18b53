package app

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dbkompare-functions/internal/certificate"
	"dbkompare-functions/internal/domain"
)

// GroupProgress is attached to the error returned when a group is not complete yet.
type GroupProgress struct {
	TotalQuizzes     int `json:"totalQuizzes"`
	PassedQuizzes    int `json:"passedQuizzes"`
	RemainingQuizzes int `json:"remainingQuizzes"`
}

// GroupCertificateResult describes an issued or previously issued group certificate.
type GroupCertificateResult struct {
	CertificateID      string `json:"certificateId"`
	CertificateURL     string `json:"certificateUrl"`
	GroupName          string `json:"groupName"`
	AveragePercentage  int    `json:"averagePercentage,omitempty"`
	IssuedDate         int64  `json:"issuedDate"`
	EligibleForCredits bool   `json:"eligibleForCredits"`
	AlreadyExists      bool   `json:"alreadyExists,omitempty"`
}

// CertificateDetails is a certificate joined with its subject and owner.
type CertificateDetails struct {
	Certificate domain.Certificate `json:"certificate"`
	Quiz        *domain.Quiz       `json:"quiz"`
	Group       *domain.Group      `json:"group,omitempty"`
	User        domain.User        `json:"user"`
}

// CertificateService issues group certificates and serves certificate records.
type CertificateService struct {
	certificates CertificateRepository
	submissions  SubmissionRepository
	groups       GroupRepository
	users        UserRepository
	quizzes      QuizRepository
	issuer       *CertificateIssuer
	log          logrus.FieldLogger
	now          func() time.Time
}

func NewCertificateService(
	certificates CertificateRepository,
	submissions SubmissionRepository,
	groups GroupRepository,
	users UserRepository,
	quizzes QuizRepository,
	issuer *CertificateIssuer,
	log logrus.FieldLogger,
) *CertificateService {
	return &CertificateService{
		certificates: certificates,
		submissions:  submissions,
		groups:       groups,
		users:        users,
		quizzes:      quizzes,
		issuer:       issuer,
		log:          log,
		now:          time.Now,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *CertificateService) WithClock(now func() time.Time) *CertificateService {
	s.now = now
	return s
}

// IssueGroupCertificate issues a certificate once the user has passed every quiz
// of the group. If the user already holds an active certificate for the group it
// is returned instead of issuing another.
func (s *CertificateService) IssueGroupCertificate(ctx context.Context, groupID, userID string) (GroupCertificateResult, error) {
	if groupID == "" || userID == "" {
		return GroupCertificateResult{}, domain.Validation("Missing required parameters: groupId and userId")
	}

	var (
		group domain.Group
		user  domain.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		group, err = s.groups.GetGroup(gctx, groupID)
		return storeError(err, "Failed to load group")
	})
	g.Go(func() error {
		var err error
		user, err = s.users.GetUser(gctx, userID)
		return storeError(err, "Failed to load user")
	})
	if err := g.Wait(); err != nil {
		return GroupCertificateResult{}, err
	}

	groupQuizzes := make(map[string]struct{}, len(group.QuizIDs))
	for _, id := range group.QuizIDs {
		groupQuizzes[id] = struct{}{}
	}
	if len(groupQuizzes) == 0 {
		return GroupCertificateResult{}, domain.Validation("Group has no quizzes")
	}

	submissions, err := s.submissions.ListSubmissionsByUser(ctx, userID)
	if err != nil {
		return GroupCertificateResult{}, storeError(err, "Failed to load submissions")
	}
	var (
		passedTotal float64
		passedCount int
		passedQuiz  = make(map[string]struct{})
	)
	for _, sub := range submissions {
		if sub.Status != domain.SubmissionPassed {
			continue
		}
		if _, ok := groupQuizzes[sub.QuizID]; !ok {
			continue
		}
		passedQuiz[sub.QuizID] = struct{}{}
		passedTotal += sub.PercentageScore
		passedCount++
	}
	if len(passedQuiz) < len(groupQuizzes) {
		remaining := len(groupQuizzes) - len(passedQuiz)
		return GroupCertificateResult{}, domain.Forbidden(
			"You must pass all quizzes in this group. %d quiz(es) remaining.", remaining,
		).WithData(GroupProgress{
			TotalQuizzes:     len(groupQuizzes),
			PassedQuizzes:    len(passedQuiz),
			RemainingQuizzes: remaining,
		})
	}

	existing, err := s.activeGroupCertificate(ctx, userID, groupID)
	if err != nil {
		return GroupCertificateResult{}, err
	}
	if existing != nil {
		if err := s.recordTaker(ctx, group, userID); err != nil {
			return GroupCertificateResult{}, err
		}
		return GroupCertificateResult{
			CertificateID:      existing.ID,
			CertificateURL:     s.issuer.Location(existing.ID, userID, existing.SubmissionID),
			GroupName:          group.Name,
			IssuedDate:         existing.IssueDate,
			EligibleForCredits: existing.EligibleForCredits,
			AlreadyExists:      true,
		}, nil
	}

	groupName := group.Name
	if groupName == "" {
		groupName = "Group"
	}
	now := s.now()
	average := int(math.Round(passedTotal / float64(passedCount)))
	cert := domain.Certificate{
		ID:        s.issuer.NewID(),
		SubjectID: groupID,
		UserID:    userID,
		IssueDate: now.UnixMilli(),
		Status:    domain.StatusActive,
		MetaData: domain.CertificateMeta{
			AverageScore:  average,
			GroupName:     group.Name,
			TotalQuizzes:  len(groupQuizzes),
			PassedQuizzes: len(passedQuiz),
		},
		EligibleForCredits: user.CertificateCredits > EligibleCreditThreshold,
	}

	uri, err := s.issuer.Publish(ctx, Document{
		CertificateID:  cert.ID,
		UserID:         userID,
		RecipientName:  user.Name,
		CompletionText: certificate.GroupCompletionText(groupName, certificate.FormatIssuedAt(now)),
		Highlight:      groupName,
	})
	if err != nil {
		return GroupCertificateResult{}, err
	}

	if err := s.certificates.CreateCertificate(ctx, cert); err != nil {
		if errors.Is(err, domain.ErrConditionFailed) {
			return GroupCertificateResult{}, domain.Conflict("Certificate %s already exists", cert.ID)
		}
		return GroupCertificateResult{}, storeError(err, "Failed to save certificate")
	}
	if err := s.recordTaker(ctx, group, userID); err != nil {
		return GroupCertificateResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"userId":        userID,
		"groupId":       groupID,
		"certificateId": cert.ID,
	}).Info("group certificate issued")

	return GroupCertificateResult{
		CertificateID:      cert.ID,
		CertificateURL:     uri,
		GroupName:          group.Name,
		AveragePercentage:  average,
		IssuedDate:         cert.IssueDate,
		EligibleForCredits: cert.EligibleForCredits,
	}, nil
}

func (s *CertificateService) activeGroupCertificate(ctx context.Context, userID, groupID string) (*domain.Certificate, error) {
	certs, err := s.certificates.ListCertificatesByUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, "Failed to load certificates")
	}
	for i := range certs {
		if certs[i].SubjectID == groupID && certs[i].Status == domain.StatusActive {
			return &certs[i], nil
		}
	}
	return nil, nil
}

func (s *CertificateService) recordTaker(ctx context.Context, group domain.Group, userID string) error {
	for _, id := range group.CertificateTakenBy {
		if id == userID {
			return nil
		}
	}
	if err := s.groups.AddCertificateTaker(ctx, group.ID, userID); err != nil {
		return storeError(err, "Failed to update group")
	}
	return nil
}

// GetCertificate returns a certificate with its quiz (or group) and owner.
func (s *CertificateService) GetCertificate(ctx context.Context, certificateID string) (CertificateDetails, error) {
	if certificateID == "" {
		return CertificateDetails{}, domain.Validation("Missing Certificate ID")
	}
	cert, err := s.certificates.GetCertificate(ctx, certificateID)
	if err != nil {
		return CertificateDetails{}, storeError(err, "Failed to load certificate")
	}
	details := CertificateDetails{Certificate: cert}

	if cert.SubjectID != "" {
		quiz, err := s.quizzes.GetQuiz(ctx, cert.SubjectID)
		switch {
		case err == nil:
			details.Quiz = &quiz
		case errors.Is(err, domain.ErrNotFound):
			group, gerr := s.groups.GetGroup(ctx, cert.SubjectID)
			if errors.Is(gerr, domain.ErrNotFound) {
				return CertificateDetails{}, domain.NotFound("Associated quiz not found")
			}
			if gerr != nil {
				return CertificateDetails{}, storeError(gerr, "Failed to load group")
			}
			details.Group = &group
		default:
			return CertificateDetails{}, storeError(err, "Failed to load quiz")
		}
	}

	user, err := s.users.GetUser(ctx, cert.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return CertificateDetails{}, domain.NotFound("Associated user not found")
	}
	if err != nil {
		return CertificateDetails{}, storeError(err, "Failed to load user")
	}
	details.User = user
	return details, nil
}

// UpdateCertificate applies an allow-listed patch to a certificate.
func (s *CertificateService) UpdateCertificate(ctx context.Context, certificateID string, fields map[string]any) (domain.Certificate, error) {
	if certificateID == "" {
		return domain.Certificate{}, domain.Validation("Missing certificate ID")
	}
	patch, err := domain.NewPatch(fields, domain.CertificatePatchFields)
	if err != nil {
		return domain.Certificate{}, err
	}
	if err := checkPatchTypes(patch, &domain.Certificate{}); err != nil {
		return domain.Certificate{}, err
	}
	updated, err := s.certificates.UpdateCertificate(ctx, certificateID, patch)
	if err != nil {
		return domain.Certificate{}, storeError(err, "Failed to update certificate")
	}
	s.log.WithFields(logrus.Fields{
		"certificateId": certificateID,
		"fields":        patch.Fields(),
	}).Info("certificate updated")
	return updated, nil
}

// checkPatchTypes decodes patch into target to reject values of the wrong shape.
func checkPatchTypes(patch domain.Patch, target any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return domain.Validation("Invalid update data: %v", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return domain.Validation("Invalid update data: %v", err)
	}
	return nil
}
