package stripeapi_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/stripeapi"
)

func TestCreateCheckoutSessionSendsFormAndIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Errorf("missing bearer auth")
		}
		if r.Header.Get("Idempotency-Key") != "checkout:u1:starter" {
			t.Errorf("missing idempotency key, got %q", r.Header.Get("Idempotency-Key"))
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("mode") != "payment" {
			t.Errorf("expected form-encoded body, got %v", r.PostForm)
		}
		fmt.Fprint(w, `{"id":"cs_1","url":"https://checkout.stripe.com/c/pay/cs_1"}`)
	}))
	defer srv.Close()

	client := stripeapi.NewClientWithBaseURL("sk_test", srv.URL)
	values := url.Values{}
	values.Set("mode", "payment")

	session, err := client.CreateCheckoutSession(context.Background(), values, "checkout:u1:starter")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID != "cs_1" || session.URL == "" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestRetrievePaymentIntentExpandsLatestCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("expand[]") != "latest_charge" {
			t.Errorf("expected latest_charge expansion, got %v", r.URL.Query())
		}
		fmt.Fprint(w, `{"id":"pi_1","status":"succeeded","latest_charge":{"id":"ch_1","payment_method_details":{"type":"pix"}}}`)
	}))
	defer srv.Close()

	client := stripeapi.NewClientWithBaseURL("sk_test", srv.URL)
	intent, err := client.RetrievePaymentIntent(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("retrieve intent: %v", err)
	}
	if intent.LatestCharge.PaymentMethodDetails.Type != "pix" {
		t.Fatalf("unexpected payment method %q", intent.LatestCharge.PaymentMethodDetails.Type)
	}
}

func TestClientSurfacesStripeErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"message":"Your card was declined."}}`)
	}))
	defer srv.Close()

	client := stripeapi.NewClientWithBaseURL("sk_test", srv.URL)
	_, err := client.CreateCheckoutSession(context.Background(), url.Values{}, "")
	if err == nil || err.Error() != "Your card was declined." {
		t.Fatalf("expected stripe error message, got %v", err)
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := stripeapi.NewClientWithBaseURL("", "http://127.0.0.1:0")

	_, err := client.CreateCheckoutSession(context.Background(), url.Values{}, "")
	if err != stripeapi.ErrMissingAPIKey {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
