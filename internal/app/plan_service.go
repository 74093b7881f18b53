package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dbkompare-functions/internal/domain"
)

// PlanInput is a certification plan as submitted by an admin.
type PlanInput struct {
	Name                   string   `json:"name" validate:"required"`
	Badge                  string   `json:"badge"`
	Description            string   `json:"description"`
	Price                  float64  `json:"price" validate:"gte=0"`
	CertificationsUnlocked int      `json:"certificationsUnlocked" validate:"gte=0"`
	Features               []string `json:"features"`
	Status                 string   `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}

type UpdatePlanStatusRequest struct {
	PlanID string `json:"planId" validate:"required"`
	Status string `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}

var standardFeatures = []string{
	"Access to certification quizzes",
	"Take quizzes at your own pace",
	"Earn certificates upon completion",
	"Download PDF certificates",
	"Track your progress",
}

func catalogPlan(name, badge, description string, price float64, unlocked int, unlockLabel string) PlanInput {
	return PlanInput{
		Name:                   name,
		Badge:                  badge,
		Description:            description,
		Price:                  price,
		CertificationsUnlocked: unlocked,
		Features:               append([]string{unlockLabel}, standardFeatures...),
		Status:                 domain.StatusActive,
	}
}

// DefaultPlans is the catalogue written when an admin creates plans without a body.
var DefaultPlans = []PlanInput{
	catalogPlan("Promotional Pack", "Limited Time Offer", "For database professionals", 0, 1, "Unlock 1 certification"),
	catalogPlan("Starter Pack", "New User Special", "Perfect for beginners", 59.9, 2, "Unlock 2 certifications"),
	catalogPlan("Professional Pack", "Most Popular", "Best for serious learners", 79.9, 3, "Unlock 3 certifications"),
	catalogPlan("Expert Pack", "Best Value", "For database professionals", 89.9, 5, "Unlock 5 certifications"),
	catalogPlan("Master Pack", "Complete Package", "COMPLETE MASTERY PACKAGE", 99.9, 10, "Unlock 10 certifications"),
}

// PlanService serves the certification plan catalogue.
type PlanService struct {
	plans PlanRepository
	log   logrus.FieldLogger
	now   func() time.Time
	newID func() string
}

func NewPlanService(plans PlanRepository, log logrus.FieldLogger) *PlanService {
	return &PlanService{plans: plans, log: log, now: time.Now, newID: uuid.NewString}
}

// ListPlans returns plans ordered by price, optionally only those with status.
func (s *PlanService) ListPlans(ctx context.Context, status string) ([]domain.CertificationPlan, error) {
	if status != "" && status != domain.StatusActive && status != domain.StatusInactive {
		return nil, domain.Validation("Invalid status. Must be %q or %q", domain.StatusActive, domain.StatusInactive)
	}
	plans, err := s.plans.ListPlans(ctx, status)
	if err != nil {
		return nil, storeError(err, "Error fetching certification plans")
	}
	sortPlansByPrice(plans)
	return plans, nil
}

func (s *PlanService) GetPlan(ctx context.Context, planID string) (domain.CertificationPlan, error) {
	if planID == "" {
		return domain.CertificationPlan{}, domain.Validation("Plan ID is required")
	}
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return domain.CertificationPlan{}, storeError(err, "Error fetching certification plan")
	}
	return plan, nil
}

func (s *PlanService) UpdatePlanStatus(ctx context.Context, req UpdatePlanStatusRequest) (domain.CertificationPlan, error) {
	if err := validateRequest(req); err != nil {
		return domain.CertificationPlan{}, err
	}
	plan, err := s.plans.UpdatePlanStatus(ctx, req.PlanID, req.Status, s.now().UnixMilli())
	if err != nil {
		return domain.CertificationPlan{}, storeError(err, "Error updating certification plan status")
	}
	s.log.WithFields(logrus.Fields{"planId": req.PlanID, "status": req.Status}).Info("certification plan status updated")
	return plan, nil
}

// CreatePlans validates inputs (or takes DefaultPlans when none are given) and
// writes them with fresh ids.
func (s *PlanService) CreatePlans(ctx context.Context, inputs []PlanInput) ([]domain.CertificationPlan, error) {
	if inputs == nil {
		inputs = DefaultPlans
	}
	if len(inputs) == 0 {
		return nil, domain.Validation("Plans array is required and must not be empty")
	}

	now := s.now().UnixMilli()
	plans := make([]domain.CertificationPlan, 0, len(inputs))
	for i, in := range inputs {
		in.Name = strings.TrimSpace(in.Name)
		if err := validateRequest(in); err != nil {
			return nil, domain.Validation("Plan %d: %s", i, err.Error())
		}
		status := in.Status
		if status == "" {
			status = domain.StatusActive
		}
		features := make([]string, 0, len(in.Features))
		for _, f := range in.Features {
			features = append(features, strings.TrimSpace(f))
		}
		plans = append(plans, domain.CertificationPlan{
			ID:                     s.newID(),
			Name:                   in.Name,
			Badge:                  strings.TrimSpace(in.Badge),
			Description:            strings.TrimSpace(in.Description),
			Price:                  in.Price,
			CertificationsUnlocked: in.CertificationsUnlocked,
			Features:               features,
			Status:                 status,
			CreatedAt:              now,
			UpdatedAt:              now,
		})
	}

	if err := s.plans.PutPlans(ctx, plans); err != nil {
		return nil, storeError(err, "Error creating certification plans")
	}
	s.log.WithField("count", len(plans)).Info("certification plans created")
	return plans, nil
}

func sortPlansByPrice(plans []domain.CertificationPlan) {
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].Price < plans[j].Price })
}
