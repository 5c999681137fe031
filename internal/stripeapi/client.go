package stripeapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrMissingAPIKey  = errors.New("stripe api key is not configured")
	ErrInvalidPayload = errors.New("stripe response invalid")
)

// Client is a minimal form-encoded Stripe REST client covering the
// endpoints this service needs.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// CheckoutSession is the subset of the checkout session resource we read.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PaymentIntent carries the fields needed to confirm the payment method.
type PaymentIntent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	LatestCharge struct {
		ID                   string `json:"id"`
		PaymentMethodDetails struct {
			Type string `json:"type"`
		} `json:"payment_method_details"`
	} `json:"latest_charge"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient builds a client against the live Stripe API.
func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, "https://api.stripe.com")
}

// NewClientWithBaseURL allows tests to point the client at a fake server.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: 12 * time.Second},
	}
}

// CreateCheckoutSession opens a hosted checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, values url.Values, idempotencyKey string) (CheckoutSession, error) {
	var session CheckoutSession
	if err := c.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions", values, idempotencyKey, &session); err != nil {
		return CheckoutSession{}, err
	}
	if session.ID == "" {
		return CheckoutSession{}, ErrInvalidPayload
	}
	return session, nil
}

// RetrievePaymentIntent fetches a payment intent with its latest charge
// expanded so the settled payment method type is visible.
func (c *Client) RetrievePaymentIntent(ctx context.Context, intentID string) (PaymentIntent, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return PaymentIntent{}, ErrInvalidPayload
	}

	var intent PaymentIntent
	path := "/v1/payment_intents/" + intentID + "?expand[]=latest_charge"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, "", &intent); err != nil {
		return PaymentIntent{}, err
	}
	if intent.ID == "" {
		return PaymentIntent{}, ErrInvalidPayload
	}
	return intent, nil
}

func (c *Client) doRequest(
	ctx context.Context,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
	out any,
) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}

	var bodyReader io.Reader = strings.NewReader("")
	if values != nil {
		bodyReader = strings.NewReader(values.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil {
			return errors.New("stripe_request_failed")
		}
		message := strings.TrimSpace(stripeErr.Error.Message)
		if message == "" {
			message = "stripe_request_failed"
		}
		return errors.New(message)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
