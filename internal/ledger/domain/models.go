package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// TransactionStatus tracks the lifecycle of a purchase.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
)

// PlanType distinguishes one-time credit packs from subscriptions.
type PlanType string

const (
	PlanTypeOneTime      PlanType = "one_time"
	PlanTypeSubscription PlanType = "subscription"
)

// GrantSource labels where a credit grant came from.
type GrantSource string

const (
	GrantSourcePurchase GrantSource = "purchase"
	GrantSourceRenewal  GrantSource = "renewal"
	GrantSourceRefund   GrantSource = "refund"
)

var (
	ErrInvalidUser          = errors.New("user id is required")
	ErrInvalidAmount        = errors.New("credit amount must be positive")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("transaction already recorded for session")
)

// CreditBalance is the single authoritative credit count per user.
type CreditBalance struct {
	UserID    string    `gorm:"primaryKey"`
	Balance   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditBalance) TableName() string { return "credit_balances" }

// CreditTransaction records a purchase from checkout through settlement.
type CreditTransaction struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	UserID        string            `gorm:"not null;index"`
	SessionID     string            `gorm:"not null;uniqueIndex"`
	PlanID        string            `gorm:"not null"`
	PlanType      PlanType          `gorm:"type:text;not null"`
	AmountCents   int64             `gorm:"not null"`
	Credits       int64             `gorm:"not null"`
	BonusCredits  int64             `gorm:"not null;default:0"`
	PaymentMethod string            `gorm:"type:text"`
	Status        TransactionStatus `gorm:"type:text;not null"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	CompletedAt   *time.Time
}

// TableName sets the database table name.
func (CreditTransaction) TableName() string { return "credit_transactions" }

// Service exposes balance reads and the atomic mutations settlement and
// generation rely on.
type Service interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	AddCredits(ctx context.Context, userID string, amount int64, source GrantSource) error
	ConsumeCredits(ctx context.Context, userID string, amount int64) (int64, error)

	CreatePendingTransaction(ctx context.Context, txn *CreditTransaction) error
	FindBySessionID(ctx context.Context, sessionID string) (*CreditTransaction, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]CreditTransaction, error)

	// SettlePurchase marks the session's transaction completed and
	// credits the user in one database transaction. Returns the
	// transaction, or ErrTransactionNotFound when the session id is
	// unknown, or ErrDuplicateTransaction when it already settled.
	SettlePurchase(ctx context.Context, sessionID string, totalCredits int64, paymentMethod string, bonusCredits int64) (*CreditTransaction, error)

	// WithTx returns a Service whose mutations run on the given
	// transaction, so callers can commit ledger writes together with
	// their own.
	WithTx(tx *gorm.DB) Service
}
