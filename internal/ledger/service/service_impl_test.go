package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/ledger/domain"
	ledgerservice "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/ledger/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newLedger(t *testing.T) (ledgerdomain.Service, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(11)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
	return svc, db
}

func TestGetBalanceDefaultsToZero(t *testing.T) {
	svc, _ := newLedger(t)

	balance, err := svc.GetBalance(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance, got %d", balance)
	}
}

func TestAddCreditsAccumulates(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()

	if err := svc.AddCredits(ctx, "u1", 20, ledgerdomain.GrantSourcePurchase); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if err := svc.AddCredits(ctx, "u1", 150, ledgerdomain.GrantSourceRenewal); err != nil {
		t.Fatalf("second grant: %v", err)
	}

	balance, err := svc.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 170 {
		t.Fatalf("expected 170, got %d", balance)
	}
}

func TestAddCreditsKeepsSingleBalanceRow(t *testing.T) {
	svc, db := newLedger(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := svc.AddCredits(ctx, "u1", 5, ledgerdomain.GrantSourcePurchase); err != nil {
			t.Fatalf("grant %d: %v", i, err)
		}
	}

	assertCount(t, db, `SELECT COUNT(*) FROM credit_balances`, 1)
	balance, err := svc.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 50 {
		t.Fatalf("expected 50 after repeated grants, got %d", balance)
	}
}

func TestAddCreditsRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newLedger(t)

	if err := svc.AddCredits(context.Background(), "u1", 0, ledgerdomain.GrantSourcePurchase); !errors.Is(err, ledgerdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestConsumeCreditsDecrementsAndReportsRemaining(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()

	if err := svc.AddCredits(ctx, "u1", 3, ledgerdomain.GrantSourcePurchase); err != nil {
		t.Fatalf("grant: %v", err)
	}

	remaining, err := svc.ConsumeCredits(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 remaining, got %d", remaining)
	}
}

func TestConsumeCreditsInsufficientBalance(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()

	if _, err := svc.ConsumeCredits(ctx, "u1", 1); !errors.Is(err, ledgerdomain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	if err := svc.AddCredits(ctx, "u1", 2, ledgerdomain.GrantSourcePurchase); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := svc.ConsumeCredits(ctx, "u1", 3); !errors.Is(err, ledgerdomain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	balance, err := svc.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 2 {
		t.Fatalf("failed consume must not change balance, got %d", balance)
	}
}

func TestCreatePendingTransactionRejectsDuplicateSession(t *testing.T) {
	svc, db := newLedger(t)
	ctx := context.Background()

	txn := &ledgerdomain.CreditTransaction{
		UserID:      "u1",
		SessionID:   "cs_1",
		PlanID:      "starter",
		PlanType:    ledgerdomain.PlanTypeOneTime,
		AmountCents: 990,
		Credits:     20,
	}
	if err := svc.CreatePendingTransaction(ctx, txn); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &ledgerdomain.CreditTransaction{
		UserID:    "u1",
		SessionID: "cs_1",
		PlanID:    "starter",
		PlanType:  ledgerdomain.PlanTypeOneTime,
		Credits:   20,
	}
	if err := svc.CreatePendingTransaction(ctx, dup); !errors.Is(err, ledgerdomain.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	assertCount(t, db, `SELECT COUNT(*) FROM credit_transactions`, 1)
}

func TestSettlePurchaseCompletesAndCredits(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()

	pending := &ledgerdomain.CreditTransaction{
		UserID:       "u1",
		SessionID:    "cs_1",
		PlanID:       "starter",
		PlanType:     ledgerdomain.PlanTypeOneTime,
		Credits:      20,
		BonusCredits: 5,
	}
	if err := svc.CreatePendingTransaction(ctx, pending); err != nil {
		t.Fatalf("create: %v", err)
	}

	settled, err := svc.SettlePurchase(ctx, "cs_1", 25, "pix", 5)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Status != ledgerdomain.TransactionStatusCompleted {
		t.Fatalf("expected completed, got %s", settled.Status)
	}
	if settled.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}

	balance, err := svc.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 25 {
		t.Fatalf("expected 25, got %d", balance)
	}
}

func TestSettlePurchaseIsIdempotent(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()

	pending := &ledgerdomain.CreditTransaction{
		UserID:    "u1",
		SessionID: "cs_1",
		PlanID:    "starter",
		PlanType:  ledgerdomain.PlanTypeOneTime,
		Credits:   20,
	}
	if err := svc.CreatePendingTransaction(ctx, pending); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.SettlePurchase(ctx, "cs_1", 20, "card", 0); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if _, err := svc.SettlePurchase(ctx, "cs_1", 20, "card", 0); !errors.Is(err, ledgerdomain.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}

	balance, err := svc.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 20 {
		t.Fatalf("expected 20 after replay, got %d", balance)
	}
}

func TestSettlePurchaseUnknownSession(t *testing.T) {
	svc, _ := newLedger(t)

	if _, err := svc.SettlePurchase(context.Background(), "cs_missing", 20, "card", 0); !errors.Is(err, ledgerdomain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestListTransactionsNewestFirst(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		txn := &ledgerdomain.CreditTransaction{
			UserID:    "u1",
			SessionID: fmt.Sprintf("cs_%d", i),
			PlanID:    "starter",
			PlanType:  ledgerdomain.PlanTypeOneTime,
			Credits:   20,
		}
		if err := svc.CreatePendingTransaction(ctx, txn); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	txns, err := svc.ListTransactions(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(txns))
	}
	if txns[0].SessionID != "cs_2" {
		t.Fatalf("expected newest first, got %s", txns[0].SessionID)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE credit_balances (
			user_id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE credit_transactions (
			id BIGINT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			plan_id TEXT NOT NULL,
			plan_type TEXT NOT NULL,
			amount_cents BIGINT NOT NULL DEFAULT 0,
			credits BIGINT NOT NULL,
			bonus_credits BIGINT NOT NULL DEFAULT 0,
			payment_method TEXT,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE UNIQUE INDEX idx_credit_transactions_session ON credit_transactions(session_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()

	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d, got %d", expected, count)
	}
}
