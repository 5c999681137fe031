package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/ledger/domain"
	obsmetrics "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/observability/metrics"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		obsMetrics: p.ObsMetrics,
	}
}

// WithTx returns a copy of the service bound to the given transaction.
// Mutations made through the copy commit or roll back with the caller's
// transaction.
func (s *Service) WithTx(tx *gorm.DB) ledgerdomain.Service {
	bound := *s
	bound.db = tx
	return &bound
}

// GetBalance returns the user's current credit count. Users without a
// balance row read as zero.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ledgerdomain.ErrInvalidUser
	}

	var balance ledgerdomain.CreditBalance
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return balance.Balance, nil
}

// AddCredits grants credits through a single upsert so concurrent grants
// never lose an increment.
func (s *Service) AddCredits(ctx context.Context, userID string, amount int64, source ledgerdomain.GrantSource) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ledgerdomain.ErrInvalidUser
	}
	if amount <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}

	if err := addCredits(s.db.WithContext(ctx), userID, amount); err != nil {
		return err
	}

	s.obsMetrics.RecordCreditsGranted(ctx, string(source), amount)
	s.log.Info("credits granted",
		zap.String("user_id", userID),
		zap.Int64("amount", amount),
		zap.String("source", string(source)),
	)
	return nil
}

// ConsumeCredits decrements the balance only when enough credits remain
// and returns the balance after the decrement.
func (s *Service) ConsumeCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ledgerdomain.ErrInvalidUser
	}
	if amount <= 0 {
		return 0, ledgerdomain.ErrInvalidAmount
	}

	var remaining int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`UPDATE credit_balances
			SET balance = balance - ?, updated_at = ?
			WHERE user_id = ? AND balance >= ?`,
			amount, time.Now().UTC(), userID, amount,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ledgerdomain.ErrInsufficientCredits
		}

		row := tx.Raw(`SELECT balance FROM credit_balances WHERE user_id = ?`, userID).Row()
		return row.Scan(&remaining)
	})
	if err != nil {
		return 0, err
	}

	s.obsMetrics.RecordCreditsConsumed(ctx, amount)
	return remaining, nil
}

// CreatePendingTransaction records a checkout session before redirecting
// the user to the payment page.
func (s *Service) CreatePendingTransaction(ctx context.Context, txn *ledgerdomain.CreditTransaction) error {
	if txn == nil {
		return errors.New("transaction is required")
	}
	txn.UserID = strings.TrimSpace(txn.UserID)
	txn.SessionID = strings.TrimSpace(txn.SessionID)
	if txn.UserID == "" {
		return ledgerdomain.ErrInvalidUser
	}
	if txn.SessionID == "" {
		return errors.New("session id is required")
	}

	now := time.Now().UTC()
	txn.ID = s.genID.Generate()
	txn.Status = ledgerdomain.TransactionStatusPending
	txn.CreatedAt = now
	txn.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ledgerdomain.ErrDuplicateTransaction
		}
		return err
	}

	s.log.Info("pending transaction recorded",
		zap.String("user_id", txn.UserID),
		zap.String("session_id", txn.SessionID),
		zap.String("plan_id", txn.PlanID),
	)
	return nil
}

func (s *Service) FindBySessionID(ctx context.Context, sessionID string) (*ledgerdomain.CreditTransaction, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ledgerdomain.ErrTransactionNotFound
	}

	var txn ledgerdomain.CreditTransaction
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID string, limit int) ([]ledgerdomain.CreditTransaction, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var txns []ledgerdomain.CreditTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// SettlePurchase flips the session's transaction to completed and grants
// its credits inside one database transaction. The conditional update on
// status makes redelivered settlements a no-op.
func (s *Service) SettlePurchase(ctx context.Context, sessionID string, totalCredits int64, paymentMethod string, bonusCredits int64) (*ledgerdomain.CreditTransaction, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ledgerdomain.ErrTransactionNotFound
	}
	if totalCredits <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	var settled ledgerdomain.CreditTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		result := tx.Exec(
			`UPDATE credit_transactions
			SET status = ?, payment_method = ?, bonus_credits = ?, completed_at = ?, updated_at = ?
			WHERE session_id = ? AND status = ?`,
			ledgerdomain.TransactionStatusCompleted,
			strings.TrimSpace(paymentMethod),
			bonusCredits,
			now, now,
			sessionID,
			ledgerdomain.TransactionStatusPending,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var existing ledgerdomain.CreditTransaction
			findErr := tx.Where("session_id = ?", sessionID).First(&existing).Error
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ledgerdomain.ErrTransactionNotFound
			}
			if findErr != nil {
				return findErr
			}
			return ledgerdomain.ErrDuplicateTransaction
		}

		if err := tx.Where("session_id = ?", sessionID).First(&settled).Error; err != nil {
			return err
		}
		return addCredits(tx, settled.UserID, totalCredits)
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordCreditsGranted(ctx, string(ledgerdomain.GrantSourcePurchase), totalCredits)
	s.log.Info("purchase settled",
		zap.String("user_id", settled.UserID),
		zap.String("session_id", sessionID),
		zap.Int64("credits", totalCredits),
		zap.Int64("bonus_credits", bonusCredits),
	)
	return &settled, nil
}

// addCredits is the single write path for balance increments.
func addCredits(tx *gorm.DB, userID string, amount int64) error {
	now := time.Now().UTC()
	return tx.Exec(
		`INSERT INTO credit_balances (user_id, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = credit_balances.balance + excluded.balance,
		    updated_at = excluded.updated_at`,
		userID, amount, now, now,
	).Error
}
