package app_test

import (
	"context"
	"errors"
	"testing"

	"dbkompare-functions/internal/app"
	"dbkompare-functions/internal/domain"
)

type fakePayments struct {
	customers     int
	intents       []app.PaymentIntentRequest
	confirmStatus string
	event         app.PaymentEvent
	webhookErr    error
}

func (p *fakePayments) CreateCustomer(_ context.Context, _, _, userID string) (string, error) {
	p.customers++
	return "cus_" + userID, nil
}

func (p *fakePayments) CreatePaymentIntent(_ context.Context, req app.PaymentIntentRequest) (app.PaymentIntent, error) {
	p.intents = append(p.intents, req)
	return app.PaymentIntent{ID: "pi_1", Status: "requires_confirmation", ClientSecret: "pi_1_secret", Metadata: req.Metadata}, nil
}

func (p *fakePayments) ConfirmPaymentIntent(_ context.Context, intentID, _ string) (app.PaymentIntent, error) {
	return app.PaymentIntent{ID: intentID, Status: p.confirmStatus, ClientSecret: intentID + "_secret"}, nil
}

func (p *fakePayments) ParseWebhook(_ []byte, _ string) (app.PaymentEvent, error) {
	return p.event, p.webhookErr
}

func newCredits(e *env, payments app.PaymentProcessor) *app.CreditService {
	return app.NewCreditService(e.store, e.store, payments, "", e.log).WithClock(clock)
}

func seedPlans(t *testing.T, e *env) {
	t.Helper()
	err := e.store.PutPlans(context.Background(), []domain.CertificationPlan{
		{ID: "free", Name: "Promotional Pack", Price: 0, CertificationsUnlocked: 1, Status: domain.StatusActive},
		{ID: "starter", Name: "Starter Pack", Price: 59.9, CertificationsUnlocked: 2, Status: domain.StatusActive},
	})
	if err != nil {
		t.Fatalf("seed plans: %v", err)
	}
}

func TestAdjustFreeQuizCredits(t *testing.T) {
	e := newEnv(t)
	e.store.PutUser(domain.User{ID: "u1"})
	svc := newCredits(e, nil)
	ctx := context.Background()

	bal, err := svc.AdjustFreeQuizCredits(ctx, app.AdjustCreditsRequest{UserID: "u1", Delta: -1, QuizID: "quiz-9"})
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if bal.PreviousBalance != domain.DefaultFreeQuizCredits || bal.FreeQuizCredits != 1 {
		t.Fatalf("unexpected balance %+v", bal)
	}
	u := e.user(t, "u1")
	if len(u.UnlockedQuizIDs) != 1 || u.UnlockedQuizIDs[0] != "quiz-9" {
		t.Fatalf("quiz not unlocked: %v", u.UnlockedQuizIDs)
	}

	if _, err := svc.AdjustFreeQuizCredits(ctx, app.AdjustCreditsRequest{UserID: "u1", Delta: -5, QuizID: "quiz-9"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected insufficient credits, got %v", err)
	}
	if _, err := svc.AdjustFreeQuizCredits(ctx, app.AdjustCreditsRequest{UserID: "u1", Delta: -1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected quizId required, got %v", err)
	}

	bal, err = svc.AdjustFreeQuizCredits(ctx, app.AdjustCreditsRequest{UserID: "u1", Delta: 3})
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if bal.FreeQuizCredits != 4 {
		t.Fatalf("balance = %d, want 4", bal.FreeQuizCredits)
	}
	if _, err := svc.AdjustFreeQuizCredits(ctx, app.AdjustCreditsRequest{UserID: "ghost", Delta: 1}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConsumeFreePlanOnce(t *testing.T) {
	e := newEnv(t)
	seedPlans(t, e)
	e.store.PutUser(domain.User{ID: "u1", FreeQuizCredits: intPtr(1)})
	svc := newCredits(e, nil)
	ctx := context.Background()

	if _, err := svc.ConsumeFreePlan(ctx, app.ConsumeFreePlanRequest{UserID: "u1", PlanID: "starter"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("paid plan must be rejected, got %v", err)
	}

	claim, err := svc.ConsumeFreePlan(ctx, app.ConsumeFreePlanRequest{UserID: "u1", PlanID: "free"})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.FreeQuizCredits != 2 || claim.CreditsAdded != 1 || !claim.HasClaimedFreePlan || claim.PlanName != "Promotional Pack" {
		t.Fatalf("unexpected claim %+v", claim)
	}

	_, err = svc.ConsumeFreePlan(ctx, app.ConsumeFreePlanRequest{UserID: "u1", PlanID: "free"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second claim must conflict, got %v", err)
	}
	var de *domain.Error
	if !errors.As(err, &de) || de.Data == nil {
		t.Fatalf("expected claim state in error payload")
	}
	if got := e.user(t, "u1").FreeQuizBalance(); got != 2 {
		t.Fatalf("balance = %d after repeated claim", got)
	}
}

func TestPurchaseFreePlanCreditsImmediately(t *testing.T) {
	e := newEnv(t)
	seedPlans(t, e)
	e.store.PutUser(domain.User{ID: "u1", CertificateCredits: 2})
	payments := &fakePayments{}

	res, err := newCredits(e, payments).PurchasePlan(context.Background(), app.PurchasePlanRequest{
		UserID: "u1", PlanID: "free", PaymentMethodID: "pm_card",
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !res.Free || res.CertificateCredits != 3 || res.PreviousCredits != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if payments.customers != 0 || len(payments.intents) != 0 {
		t.Fatalf("free plan must not touch the payment processor")
	}
}

func TestPurchasePaidPlanSucceededThenWebhookIsIdempotent(t *testing.T) {
	e := newEnv(t)
	seedPlans(t, e)
	e.store.PutUser(domain.User{ID: "u1", Email: "u1@example.com"})
	payments := &fakePayments{confirmStatus: app.PaymentSucceeded}
	svc := newCredits(e, payments)
	ctx := context.Background()

	res, err := svc.PurchasePlan(ctx, app.PurchasePlanRequest{UserID: "u1", PlanID: "starter", PaymentMethodID: "pm_card"})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if res.Message != "Payment successful. Credits added." || res.CreditsAdded != 2 || res.CertificateCredits != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(payments.intents) != 1 {
		t.Fatalf("intents = %d", len(payments.intents))
	}
	intent := payments.intents[0]
	if intent.Amount != 5990 || intent.Currency != "eur" || intent.CustomerID != "cus_u1" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if intent.Metadata["certificationsUnlocked"] != "2" || intent.Metadata["planId"] != "starter" {
		t.Fatalf("unexpected metadata %v", intent.Metadata)
	}
	if e.user(t, "u1").StripeCustomerID != "cus_u1" {
		t.Fatalf("customer id not saved")
	}

	payments.event = app.PaymentEvent{
		Type: app.EventPaymentSucceeded,
		Intent: app.PaymentIntent{ID: "pi_1", Metadata: map[string]string{
			"userId": "u1", "certificationsUnlocked": "2",
		}},
	}
	if err := svc.HandlePaymentWebhook(ctx, []byte("{}"), "sig"); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if got := e.user(t, "u1").CertificateCredits; got != 2 {
		t.Fatalf("credits = %d after redelivered payment, want 2", got)
	}
}

func TestPurchasePaidPlanRequiresAction(t *testing.T) {
	e := newEnv(t)
	seedPlans(t, e)
	e.store.PutUser(domain.User{ID: "u1", StripeCustomerID: "cus_existing"})
	payments := &fakePayments{confirmStatus: "requires_action"}

	res, err := newCredits(e, payments).PurchasePlan(context.Background(), app.PurchasePlanRequest{
		UserID: "u1", PlanID: "starter", PaymentMethodID: "pm_card",
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !res.RequiresAction || res.ClientSecret != "pi_1_secret" || res.CreditsAdded != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if payments.customers != 0 {
		t.Fatalf("existing customer must be reused")
	}
	if got := e.user(t, "u1").CertificateCredits; got != 0 {
		t.Fatalf("credits granted before payment: %d", got)
	}
}

func TestHandlePaymentWebhookRejectsBadSignature(t *testing.T) {
	e := newEnv(t)
	payments := &fakePayments{webhookErr: errors.New("bad signature")}
	err := newCredits(e, payments).HandlePaymentWebhook(context.Background(), []byte("{}"), "sig")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGrantInAppPurchaseOncePerTransaction(t *testing.T) {
	e := newEnv(t)
	seedPlans(t, e)
	e.store.PutUser(domain.User{ID: "u1"})
	svc := newCredits(e, nil)
	ctx := context.Background()
	req := app.InAppPurchaseRequest{UserID: "u1", PlanID: "starter", TransactionID: "txn-1"}

	res, err := svc.GrantInAppPurchase(ctx, req)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if res.FreeQuizCredits != domain.DefaultFreeQuizCredits+2 || res.CreditsAdded != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = svc.GrantInAppPurchase(ctx, req)
	if err != nil {
		t.Fatalf("duplicate grant: %v", err)
	}
	if res.Message != "Duplicate transactionId ignored" || res.FreeQuizCredits != domain.DefaultFreeQuizCredits+2 {
		t.Fatalf("unexpected duplicate result %+v", res)
	}
}

func TestCreatePaymentIntent(t *testing.T) {
	e := newEnv(t)
	e.store.PutUser(domain.User{ID: "u1"})
	payments := &fakePayments{}
	svc := newCredits(e, payments)

	res, err := svc.CreatePaymentIntent(context.Background(), app.CreateIntentRequest{UserID: "u1", Amount: 999, Currency: "usd"})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if res.ClientSecret != "pi_1_secret" || payments.intents[0].Currency != "usd" {
		t.Fatalf("unexpected intent %+v / %+v", res, payments.intents[0])
	}
	if _, err := svc.CreatePaymentIntent(context.Background(), app.CreateIntentRequest{UserID: "u1"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
}
