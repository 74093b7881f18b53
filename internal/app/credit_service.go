package app

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"dbkompare-functions/internal/domain"
)

// CreditBalance reports a free quiz credit change.
type CreditBalance struct {
	UserID             string `json:"userId"`
	PreviousBalance    int    `json:"previousBalance"`
	Delta              int    `json:"delta"`
	FreeQuizCredits    int    `json:"freeQuizCredits"`
	HasClaimedFreePlan bool   `json:"hasClaimedFreePlan"`
}

// FreePlanClaim reports a successful free plan claim.
type FreePlanClaim struct {
	FreeQuizCredits    int    `json:"freeQuizCredits"`
	CreditsAdded       int    `json:"creditsAdded"`
	HasClaimedFreePlan bool   `json:"hasClaimedFreePlan"`
	PlanID             string `json:"planId"`
	PlanName           string `json:"planName"`
}

// PaymentIntentResult carries what a client needs to finish a card payment.
type PaymentIntentResult struct {
	ClientSecret string `json:"clientSecret"`
}

// PurchaseResult is the outcome of a plan purchase or an in-app purchase.
type PurchaseResult struct {
	Message                string `json:"-"`
	Free                   bool   `json:"free,omitempty"`
	RequiresAction         bool   `json:"requiresAction,omitempty"`
	ClientSecret           string `json:"clientSecret,omitempty"`
	PaymentIntentID        string `json:"paymentIntentId,omitempty"`
	PaymentIntentStatus    string `json:"paymentIntentStatus,omitempty"`
	PreviousCredits        int    `json:"previousCredits"`
	CreditsAdded           int    `json:"creditsAdded"`
	CertificateCredits     int    `json:"certificateCredits,omitempty"`
	FreeQuizCredits        int    `json:"freeQuizCredits,omitempty"`
	TransactionID          string `json:"transactionId,omitempty"`
	CertificationsUnlocked int    `json:"certificationsUnlocked,omitempty"`
}

type AdjustCreditsRequest struct {
	UserID string `json:"userId" validate:"required"`
	Delta  int    `json:"delta"`
	QuizID string `json:"quizId"`
}

type ConsumeFreePlanRequest struct {
	UserID string `json:"userId" validate:"required"`
	PlanID string `json:"planId" validate:"required"`
}

type CreateIntentRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Amount   int64  `json:"amount" validate:"gt=0"`
	Currency string `json:"currency"`
}

type PurchasePlanRequest struct {
	UserID          string `json:"userId" validate:"required"`
	PlanID          string `json:"planId" validate:"required"`
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
}

type InAppPurchaseRequest struct {
	UserID        string `json:"userId" validate:"required"`
	PlanID        string `json:"planId" validate:"required"`
	TransactionID string `json:"transactionId" validate:"required"`
}

// CreditService owns every mutation of a user's credit balances.
type CreditService struct {
	users    UserRepository
	plans    PlanRepository
	payments PaymentProcessor
	currency string
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewCreditService(users UserRepository, plans PlanRepository, payments PaymentProcessor, currency string, log logrus.FieldLogger) *CreditService {
	if currency == "" {
		currency = "eur"
	}
	return &CreditService{
		users:    users,
		plans:    plans,
		payments: payments,
		currency: currency,
		log:      log,
		now:      time.Now,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *CreditService) WithClock(now func() time.Time) *CreditService {
	s.now = now
	return s
}

// AdjustFreeQuizCredits adds delta to the free quiz balance. Spending a credit
// requires the quiz it unlocks; the balance never goes below zero.
func (s *CreditService) AdjustFreeQuizCredits(ctx context.Context, req AdjustCreditsRequest) (CreditBalance, error) {
	if err := validateRequest(req); err != nil {
		return CreditBalance{}, err
	}
	user, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		return CreditBalance{}, storeError(err, "Failed to load user")
	}

	current := user.FreeQuizBalance()
	next := current + req.Delta
	if next < 0 {
		return CreditBalance{}, domain.Validation("Insufficient free quiz credits to apply this change")
	}
	unlock := ""
	if req.Delta < 0 {
		if req.QuizID == "" {
			return CreditBalance{}, domain.Validation("quizId is required when consuming a free quiz credit")
		}
		unlock = req.QuizID
	}

	updated, err := s.users.SetFreeQuizCredits(ctx, req.UserID, user.FreeQuizCredits, next, unlock, s.now().UnixMilli())
	if err != nil {
		if errors.Is(err, domain.ErrConditionFailed) {
			return CreditBalance{}, domain.Conflict("Free quiz credits changed concurrently, please retry")
		}
		return CreditBalance{}, storeError(err, "Failed to update free quiz credits")
	}

	s.log.WithFields(logrus.Fields{
		"userId": req.UserID,
		"delta":  req.Delta,
		"quizId": req.QuizID,
	}).Info("free quiz credits adjusted")
	return CreditBalance{
		UserID:             req.UserID,
		PreviousBalance:    current,
		Delta:              req.Delta,
		FreeQuizCredits:    updated.FreeQuizBalance(),
		HasClaimedFreePlan: updated.HasClaimedFreePlan,
	}, nil
}

// ConsumeFreePlan grants a zero-price plan's credits as free quiz credits, once per user.
func (s *CreditService) ConsumeFreePlan(ctx context.Context, req ConsumeFreePlanRequest) (FreePlanClaim, error) {
	if err := validateRequest(req); err != nil {
		return FreePlanClaim{}, err
	}
	user, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		return FreePlanClaim{}, storeError(err, "Failed to load user")
	}
	if user.HasClaimedFreePlan {
		return FreePlanClaim{}, alreadyClaimed(user)
	}

	plan, err := s.plans.GetPlan(ctx, req.PlanID)
	if err != nil {
		return FreePlanClaim{}, storeError(err, "Failed to load certification plan")
	}
	if plan.Price != 0 {
		return FreePlanClaim{}, domain.Validation("Only free plans can be claimed")
	}
	if plan.CertificationsUnlocked <= 0 {
		return FreePlanClaim{}, domain.Validation("Free plan does not unlock any certifications")
	}

	updated, err := s.users.ClaimFreePlan(ctx, req.UserID, plan.CertificationsUnlocked, s.now().UnixMilli())
	if err != nil {
		if errors.Is(err, domain.ErrConditionFailed) {
			latest, gerr := s.users.GetUser(ctx, req.UserID)
			if gerr != nil {
				latest = user
				latest.HasClaimedFreePlan = true
			}
			return FreePlanClaim{}, alreadyClaimed(latest)
		}
		return FreePlanClaim{}, storeError(err, "Failed to claim free plan")
	}

	s.log.WithFields(logrus.Fields{
		"userId": req.UserID,
		"planId": plan.ID,
	}).Info("free plan claimed")
	return FreePlanClaim{
		FreeQuizCredits:    updated.FreeQuizBalance(),
		CreditsAdded:       plan.CertificationsUnlocked,
		HasClaimedFreePlan: true,
		PlanID:             plan.ID,
		PlanName:           plan.Name,
	}, nil
}

func alreadyClaimed(user domain.User) error {
	return domain.Conflict("Free plan has already been claimed. You can only claim it once.").
		WithData(map[string]any{
			"hasClaimedFreePlan": true,
			"freeQuizCredits":    user.FreeQuizBalance(),
		})
}

// CreatePaymentIntent opens a card payment for amount (minor units) on the user's
// processor customer.
func (s *CreditService) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (PaymentIntentResult, error) {
	if err := validateRequest(req); err != nil {
		return PaymentIntentResult{}, err
	}
	user, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		return PaymentIntentResult{}, storeError(err, "Failed to load user")
	}
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return PaymentIntentResult{}, err
	}
	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}
	intent, err := s.payments.CreatePaymentIntent(ctx, PaymentIntentRequest{
		CustomerID: customerID,
		Amount:     req.Amount,
		Currency:   currency,
		Metadata:   map[string]string{"userId": user.ID},
	})
	if err != nil {
		return PaymentIntentResult{}, domain.Upstream(err, "Failed to create payment intent")
	}
	return PaymentIntentResult{ClientSecret: intent.ClientSecret}, nil
}

// PurchasePlan buys a certification plan. Free plans credit at once; paid plans are
// charged and credited when the payment succeeds synchronously, otherwise the client
// secret is returned so the client can complete authentication.
func (s *CreditService) PurchasePlan(ctx context.Context, req PurchasePlanRequest) (PurchaseResult, error) {
	if err := validateRequest(req); err != nil {
		return PurchaseResult{}, err
	}
	user, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		return PurchaseResult{}, storeError(err, "Failed to load user")
	}
	plan, err := s.plans.GetPlan(ctx, req.PlanID)
	if err != nil {
		return PurchaseResult{}, storeError(err, "Failed to load certification plan")
	}

	if plan.Price == 0 {
		updated, err := s.users.GrantCredits(ctx, CreditGrant{
			UserID:             user.ID,
			CertificateCredits: plan.CertificationsUnlocked,
			Now:                s.now().UnixMilli(),
		})
		if err != nil {
			return PurchaseResult{}, storeError(err, "Failed to update certificate credits")
		}
		return PurchaseResult{
			Message:            "Free plan activated. Credits added.",
			Free:               true,
			PreviousCredits:    user.CertificateCredits,
			CreditsAdded:       plan.CertificationsUnlocked,
			CertificateCredits: updated.CertificateCredits,
		}, nil
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return PurchaseResult{}, err
	}
	intent, err := s.payments.CreatePaymentIntent(ctx, PaymentIntentRequest{
		CustomerID: customerID,
		Amount:     int64(math.Round(plan.Price * 100)),
		Currency:   s.currency,
		Metadata: map[string]string{
			"userId":                 user.ID,
			"planId":                 plan.ID,
			"certificationsUnlocked": strconv.Itoa(plan.CertificationsUnlocked),
		},
	})
	if err != nil {
		return PurchaseResult{}, domain.Upstream(err, "Failed to create payment intent")
	}
	intent, err = s.payments.ConfirmPaymentIntent(ctx, intent.ID, req.PaymentMethodID)
	if err != nil {
		return PurchaseResult{}, domain.Upstream(err, "Failed to confirm payment")
	}

	if intent.Status != PaymentSucceeded {
		return PurchaseResult{
			Message:             "Payment requires additional action",
			RequiresAction:      true,
			ClientSecret:        intent.ClientSecret,
			PaymentIntentID:     intent.ID,
			PaymentIntentStatus: intent.Status,
			PreviousCredits:     user.CertificateCredits,
		}, nil
	}

	updated, applied, err := s.grantOnce(ctx, CreditGrant{
		UserID:             user.ID,
		TransactionID:      intent.ID,
		CertificateCredits: plan.CertificationsUnlocked,
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	added := 0
	if applied {
		added = plan.CertificationsUnlocked
	}
	return PurchaseResult{
		Message:             "Payment successful. Credits added.",
		PaymentIntentID:     intent.ID,
		PaymentIntentStatus: intent.Status,
		PreviousCredits:     user.CertificateCredits,
		CreditsAdded:        added,
		CertificateCredits:  updated.CertificateCredits,
	}, nil
}

// HandlePaymentWebhook verifies a processor event and credits succeeded plan
// payments. Credits are keyed by payment intent so redelivery and the synchronous
// purchase path apply them once.
func (s *CreditService) HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.payments.ParseWebhook(payload, signature)
	if err != nil {
		return domain.Validation("Webhook signature verification failed")
	}
	log := s.log.WithFields(logrus.Fields{"event": event.Type, "paymentIntentId": event.Intent.ID})

	switch event.Type {
	case EventPaymentSucceeded:
		userID := event.Intent.Metadata["userId"]
		credits, _ := strconv.Atoi(event.Intent.Metadata["certificationsUnlocked"])
		if userID == "" || credits <= 0 {
			log.Warn("payment intent carries no plan credits")
			return nil
		}
		_, applied, err := s.grantOnce(ctx, CreditGrant{
			UserID:             userID,
			TransactionID:      event.Intent.ID,
			CertificateCredits: credits,
		})
		if err != nil {
			return err
		}
		log.WithField("applied", applied).Info("payment credited")
	case EventPaymentFailed:
		log.Warn("payment failed")
	default:
		log.Debug("unhandled payment event")
	}
	return nil
}

// GrantInAppPurchase credits a store purchase as free quiz credits, once per transaction id.
func (s *CreditService) GrantInAppPurchase(ctx context.Context, req InAppPurchaseRequest) (PurchaseResult, error) {
	if err := validateRequest(req); err != nil {
		return PurchaseResult{}, err
	}
	user, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		return PurchaseResult{}, storeError(err, "Failed to load user")
	}
	if user.HasTransaction(req.TransactionID) {
		return duplicatePurchase(user, req.TransactionID), nil
	}

	plan, err := s.plans.GetPlan(ctx, req.PlanID)
	if err != nil {
		return PurchaseResult{}, storeError(err, "Failed to load certification plan")
	}
	updated, applied, err := s.grantOnce(ctx, CreditGrant{
		UserID:          user.ID,
		TransactionID:   req.TransactionID,
		FreeQuizCredits: plan.CertificationsUnlocked,
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	if !applied {
		return duplicatePurchase(updated, req.TransactionID), nil
	}

	s.log.WithFields(logrus.Fields{
		"userId":        user.ID,
		"planId":        plan.ID,
		"transactionId": req.TransactionID,
	}).Info("in-app purchase credited")
	return PurchaseResult{
		Message:                "Free quiz credits updated successfully",
		PreviousCredits:        user.FreeQuizBalance(),
		CreditsAdded:           plan.CertificationsUnlocked,
		FreeQuizCredits:        updated.FreeQuizBalance(),
		TransactionID:          req.TransactionID,
		CertificationsUnlocked: plan.CertificationsUnlocked,
	}, nil
}

func duplicatePurchase(user domain.User, transactionID string) PurchaseResult {
	return PurchaseResult{
		Message:         "Duplicate transactionId ignored",
		PreviousCredits: user.FreeQuizBalance(),
		FreeQuizCredits: user.FreeQuizBalance(),
		TransactionID:   transactionID,
	}
}

// grantOnce applies a transaction-keyed grant and reports whether it was new.
func (s *CreditService) grantOnce(ctx context.Context, grant CreditGrant) (domain.User, bool, error) {
	grant.Now = s.now().UnixMilli()
	updated, err := s.users.GrantCredits(ctx, grant)
	if err == nil {
		return updated, true, nil
	}
	if !errors.Is(err, domain.ErrConditionFailed) {
		return domain.User{}, false, storeError(err, "Failed to update credits")
	}
	latest, err := s.users.GetUser(ctx, grant.UserID)
	if err != nil {
		return domain.User{}, false, storeError(err, "Failed to load user")
	}
	return latest, false, nil
}

func (s *CreditService) ensureCustomer(ctx context.Context, user domain.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}
	customerID, err := s.payments.CreateCustomer(ctx, user.Email, user.Name, user.ID)
	if err != nil {
		return "", domain.Upstream(err, "Failed to create payment customer")
	}
	if err := s.users.SetStripeCustomerID(ctx, user.ID, customerID, s.now().UnixMilli()); err != nil {
		return "", storeError(err, "Failed to save payment customer")
	}
	return customerID, nil
}
