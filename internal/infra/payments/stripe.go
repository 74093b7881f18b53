// Package payments adapts Stripe to the credit ledger's payment processor.
package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"dbkompare-functions/internal/app"
)

type Stripe struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	return &Stripe{api: client.New(secretKey, nil), webhookSecret: webhookSecret}
}

var _ app.PaymentProcessor = (*Stripe)(nil)

func (s *Stripe) CreateCustomer(ctx context.Context, email, name, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata("userId", userID)
	c, err := s.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

func (s *Stripe) CreatePaymentIntent(ctx context.Context, req app.PaymentIntentRequest) (app.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return app.PaymentIntent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return toIntent(pi), nil
}

func (s *Stripe) ConfirmPaymentIntent(ctx context.Context, intentID, paymentMethodID string) (app.PaymentIntent, error) {
	params := &stripe.PaymentIntentConfirmParams{PaymentMethod: stripe.String(paymentMethodID)}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Confirm(intentID, params)
	if err != nil {
		return app.PaymentIntent{}, fmt.Errorf("confirm payment intent: %w", err)
	}
	return toIntent(pi), nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes payment intent events.
// Other event types come back with an empty intent.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (app.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return app.PaymentEvent{}, err
	}
	out := app.PaymentEvent{Type: string(event.Type)}
	if event.Data == nil || event.Data.Object["object"] != "payment_intent" {
		return out, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return app.PaymentEvent{}, fmt.Errorf("decode payment intent: %w", err)
	}
	out.Intent = toIntent(&pi)
	return out, nil
}

func toIntent(pi *stripe.PaymentIntent) app.PaymentIntent {
	return app.PaymentIntent{
		ID:           pi.ID,
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
		Metadata:     pi.Metadata,
	}
}
