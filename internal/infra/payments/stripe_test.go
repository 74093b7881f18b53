package payments

import (
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"

	"dbkompare-functions/internal/app"
)

const testSecret = "whsec_test"

func signed(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestParseWebhookPaymentSucceeded(t *testing.T) {
	s := NewStripe("sk_test", testSecret)
	header, body := signed(t, `{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_1",
			"object": "payment_intent",
			"status": "succeeded",
			"client_secret": "pi_1_secret",
			"metadata": {"userId": "u1", "planId": "p1", "certificationsUnlocked": "3"}
		}}
	}`)

	ev, err := s.ParseWebhook(body, header)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Type != app.EventPaymentSucceeded {
		t.Fatalf("unexpected type %q", ev.Type)
	}
	if ev.Intent.ID != "pi_1" || ev.Intent.Status != app.PaymentSucceeded || ev.Intent.Metadata["planId"] != "p1" {
		t.Fatalf("unexpected intent %+v", ev.Intent)
	}
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	s := NewStripe("sk_test", testSecret)
	_, body := signed(t, `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{}}}`)
	if _, err := s.ParseWebhook(body, "t=1,v1=deadbeef"); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseWebhookOtherEvent(t *testing.T) {
	s := NewStripe("sk_test", testSecret)
	header, body := signed(t, `{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)
	ev, err := s.ParseWebhook(body, header)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Type != "customer.created" || ev.Intent.ID != "" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
