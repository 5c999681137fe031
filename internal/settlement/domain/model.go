package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventTypeCheckoutCompleted    = "checkout_completed"
	EventTypeInvoicePaid          = "invoice_paid"
	EventTypeSubscriptionCanceled = "subscription_canceled"
)

var (
	ErrInvalidProvider       = errors.New("invalid provider")
	ErrProviderNotFound      = errors.New("provider not found")
	ErrInvalidConfig         = errors.New("invalid adapter config")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrInvalidPayload        = errors.New("invalid payload")
	ErrInvalidEvent          = errors.New("invalid event")
	ErrEventIgnored          = errors.New("event ignored")
	ErrEventAlreadyProcessed = errors.New("event already processed")
)

// PaymentEvent is the provider-neutral settlement event an adapter
// produces from a raw webhook payload.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	Type            string

	SessionID       string
	PaymentIntentID string
	SubscriptionID  string

	// Fields parsed from processor-side metadata. Settlement trusts
	// these over local state so renewals work without a local row.
	UserID   string
	PlanID   string
	Credits  int64
	PixBonus int64
	PlanType string

	OccurredAt time.Time
	RawPayload []byte
}

// EventRecord is the persisted dedupe row for a webhook delivery.
type EventRecord struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Provider    string       `gorm:"not null"`
	EventID     string       `gorm:"column:event_id;not null"`
	EventType   string       `gorm:"not null"`
	Payload     datatypes.JSON
	ReceivedAt  time.Time `gorm:"not null"`
	ProcessedAt *time.Time
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "payment_events" }

// PaymentAdapter verifies and decodes a provider's webhook deliveries.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// AdapterConfig carries provider credentials to a factory.
type AdapterConfig struct {
	Provider string
	Config   map[string]any
}

// AdapterFactory builds adapters for one provider.
type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// Repository persists webhook event records for exactly-once processing.
type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, eventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

// Outcome summarizes what a webhook delivery changed.
type Outcome struct {
	Processed      bool
	CreditsGranted int64
	UserID         string
}

// Service ingests raw webhook deliveries.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (Outcome, error)
}
