package stripe_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/settlement/adapters/stripe"
	settlementdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/settlement/domain"
)

const testSecret = "whsec_adapter_test"

func newAdapter(t *testing.T) settlementdomain.PaymentAdapter {
	t.Helper()

	adapter, err := stripe.NewFactory().NewAdapter(settlementdomain.AdapterConfig{
		Provider: "stripe",
		Config:   map[string]any{"webhook_secret": testSecret},
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func signedHeaders(secret string, payload []byte) http.Header {
	timestamp := time.Now().Unix()
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))

	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil))))
	return headers
}

func TestFactoryRequiresWebhookSecret(t *testing.T) {
	cases := []map[string]any{
		nil,
		{},
		{"webhook_secret": ""},
		{"webhook_secret": "   "},
	}
	for _, cfg := range cases {
		_, err := stripe.NewFactory().NewAdapter(settlementdomain.AdapterConfig{Provider: "stripe", Config: cfg})
		if !errors.Is(err, settlementdomain.ErrInvalidConfig) {
			t.Fatalf("config %v: expected ErrInvalidConfig, got %v", cfg, err)
		}
	}
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	if err := adapter.Verify(context.Background(), payload, signedHeaders(testSecret, payload)); err != nil {
		t.Fatalf("expected valid signature to pass, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_1"}`)

	err := adapter.Verify(context.Background(), payload, signedHeaders("whsec_other", payload))
	if !errors.Is(err, settlementdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_1","amount":100}`)
	headers := signedHeaders(testSecret, payload)

	tampered := []byte(`{"id":"evt_1","amount":999}`)
	if err := adapter.Verify(context.Background(), tampered, headers); !errors.Is(err, settlementdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsMissingOrMalformedHeader(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_1"}`)

	if err := adapter.Verify(context.Background(), payload, http.Header{}); !errors.Is(err, settlementdomain.ErrInvalidSignature) {
		t.Fatalf("missing header: expected ErrInvalidSignature, got %v", err)
	}

	headers := http.Header{}
	headers.Set("Stripe-Signature", "not-a-signature")
	if err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, settlementdomain.ErrInvalidSignature) {
		t.Fatalf("malformed header: expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseCheckoutSessionCompleted(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1767000000,
		"data": {"object": {
			"id": "cs_1",
			"payment_intent": "pi_1",
			"metadata": {
				"user_id": "u1",
				"plan_id": "starter",
				"credits": "25",
				"pix_bonus": "5",
				"plan_type": "one-time"
			}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != settlementdomain.EventTypeCheckoutCompleted {
		t.Fatalf("unexpected type %s", event.Type)
	}
	if event.SessionID != "cs_1" || event.PaymentIntentID != "pi_1" {
		t.Fatalf("unexpected session fields: %+v", event)
	}
	if event.UserID != "u1" || event.PlanID != "starter" {
		t.Fatalf("unexpected identity fields: %+v", event)
	}
	if event.Credits != 25 || event.PixBonus != 5 {
		t.Fatalf("unexpected credit fields: %+v", event)
	}
}

func TestParseInvoiceFallsBackToLineMetadata(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_2",
		"type": "invoice.payment_succeeded",
		"created": 1767000000,
		"data": {"object": {
			"id": "in_1",
			"subscription": "sub_1",
			"lines": {"data": [{"metadata": {"user_id": "u2", "plan_id": "subscription-monthly"}}]}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != settlementdomain.EventTypeInvoicePaid {
		t.Fatalf("unexpected type %s", event.Type)
	}
	if event.UserID != "u2" || event.PlanID != "subscription-monthly" {
		t.Fatalf("expected line item metadata fallback, got %+v", event)
	}
	if event.SubscriptionID != "sub_1" {
		t.Fatalf("unexpected subscription id %q", event.SubscriptionID)
	}
}

func TestParseIgnoresUnhandledEventTypes(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_3","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)

	_, err := adapter.Parse(context.Background(), payload)
	if !errors.Is(err, settlementdomain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	adapter := newAdapter(t)

	if _, err := adapter.Parse(context.Background(), []byte(`not json`)); !errors.Is(err, settlementdomain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if _, err := adapter.Parse(context.Background(), []byte(`{"type":"checkout.session.completed"}`)); !errors.Is(err, settlementdomain.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for missing id, got %v", err)
	}
}
