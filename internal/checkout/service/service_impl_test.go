package service_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/checkout/domain"
	checkoutservice "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/checkout/service"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/config"
	ledgerdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/ledger/domain"
	ledgerservice "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/ledger/service"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/plan"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/stripeapi"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type checkoutFixture struct {
	svc    checkoutdomain.Service
	ledger ledgerdomain.Service
	db     *gorm.DB

	// last form payload the fake processor received
	lastForm url.Values

	// the fake replays a cached session for a reused Idempotency-Key,
	// like the real processor does
	sessions map[string]string
	minted   int
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(12)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})

	f := &checkoutFixture{ledger: ledgerSvc, db: db, sessions: map[string]string{}}

	stripeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastForm = r.PostForm

		key := r.Header.Get("Idempotency-Key")
		sessionID, ok := f.sessions[key]
		if !ok {
			f.minted++
			sessionID = fmt.Sprintf("cs_test_%d", f.minted)
			f.sessions[key] = sessionID
		}
		fmt.Fprintf(w, `{"id":%q,"url":"https://checkout.stripe.com/c/pay/%s"}`, sessionID, sessionID)
	}))
	t.Cleanup(stripeSrv.Close)

	f.svc = checkoutservice.NewService(checkoutservice.Params{
		Cfg:     config.Config{SiteURL: "https://imagenius.app"},
		Log:     zap.NewNop(),
		GenID:   node,
		Catalog: plan.NewCatalog("", zap.NewNop()),
		Ledger:  ledgerSvc,
		Stripe:  stripeapi.NewClientWithBaseURL("sk_test", stripeSrv.URL),
	})
	return f
}

func TestCreateSessionRecordsPendingTransaction(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateSession(ctx, "u1", checkoutdomain.CreateSessionRequest{
		PlanID:   "starter",
		PixBonus: 5,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if resp.SessionID != "cs_test_1" {
		t.Fatalf("expected session id from processor, got %q", resp.SessionID)
	}
	if resp.URL == "" {
		t.Fatalf("expected redirect url")
	}

	txn, err := f.ledger.FindBySessionID(ctx, "cs_test_1")
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	if txn.Status != ledgerdomain.TransactionStatusPending {
		t.Fatalf("expected pending status, got %s", txn.Status)
	}
	if txn.Credits != 20 || txn.BonusCredits != 5 {
		t.Fatalf("expected 20 base and 5 bonus credits, got %d/%d", txn.Credits, txn.BonusCredits)
	}
	if txn.AmountCents != 990 {
		t.Fatalf("expected catalog price 990, got %d", txn.AmountCents)
	}
}

func TestCreateSessionStampsSettlementMetadata(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.CreateSession(context.Background(), "u1", checkoutdomain.CreateSessionRequest{
		PlanID:   "starter",
		PixBonus: 5,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	form := f.lastForm
	if form.Get("mode") != "payment" {
		t.Fatalf("expected payment mode, got %q", form.Get("mode"))
	}
	if form.Get("metadata[user_id]") != "u1" {
		t.Fatalf("expected user metadata, got %q", form.Get("metadata[user_id]"))
	}
	if form.Get("metadata[credits]") != "25" {
		t.Fatalf("metadata credits must include the bonus, got %q", form.Get("metadata[credits]"))
	}
	if form.Get("metadata[pix_bonus]") != "5" {
		t.Fatalf("expected pix bonus metadata, got %q", form.Get("metadata[pix_bonus]"))
	}
	if form.Get("metadata[plan_type]") != "one-time" {
		t.Fatalf("expected one-time plan type, got %q", form.Get("metadata[plan_type]"))
	}
	if form.Get("payment_method_types[1]") != "pix" {
		t.Fatalf("one-time checkouts must offer pix")
	}
	if form.Get("success_url") != "https://imagenius.app/success?session_id={CHECKOUT_SESSION_ID}" {
		t.Fatalf("unexpected success url %q", form.Get("success_url"))
	}
}

func TestCreateSessionYearlyChargesAnnualTotal(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.CreateSession(context.Background(), "u1", checkoutdomain.CreateSessionRequest{
		PlanID: "subscription-yearly",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	form := f.lastForm
	if form.Get("mode") != "subscription" {
		t.Fatalf("expected subscription mode, got %q", form.Get("mode"))
	}
	if form.Get("line_items[0][price_data][unit_amount]") != "17880" {
		t.Fatalf("yearly plan must bill the annual total, got %q", form.Get("line_items[0][price_data][unit_amount]"))
	}
	if form.Get("line_items[0][price_data][recurring][interval]") != "year" {
		t.Fatalf("expected yearly interval, got %q", form.Get("line_items[0][price_data][recurring][interval]"))
	}
	if form.Get("subscription_data[metadata][user_id]") != "u1" {
		t.Fatalf("subscription metadata must carry the identity for renewals")
	}
}

func TestCreateSessionSubscriptionIgnoresClientOverrides(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateSession(ctx, "u1", checkoutdomain.CreateSessionRequest{
		PlanID:   "subscription-monthly",
		Amount:   1,
		Currency: "usd",
		PixBonus: 50,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	form := f.lastForm
	if form.Get("line_items[0][price_data][unit_amount]") != "1790" {
		t.Fatalf("subscription price must come from the catalog, got %q", form.Get("line_items[0][price_data][unit_amount]"))
	}
	if form.Get("line_items[0][price_data][currency]") != "brl" {
		t.Fatalf("subscription currency must come from the catalog, got %q", form.Get("line_items[0][price_data][currency]"))
	}
	if form.Get("metadata[pix_bonus]") != "" {
		t.Fatalf("subscriptions must not carry a pix bonus")
	}

	txn, err := f.ledger.FindBySessionID(ctx, "cs_test_1")
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	if txn.BonusCredits != 0 {
		t.Fatalf("expected no bonus on subscription, got %d", txn.BonusCredits)
	}
	if txn.PlanType != ledgerdomain.PlanTypeSubscription {
		t.Fatalf("expected subscription plan type, got %s", txn.PlanType)
	}
}

func TestCreateSessionRepeatPurchaseOpensNewSession(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateSession(ctx, "u1", checkoutdomain.CreateSessionRequest{PlanID: "starter"})
	if err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	second, err := f.svc.CreateSession(ctx, "u1", checkoutdomain.CreateSessionRequest{PlanID: "starter"})
	if err != nil {
		t.Fatalf("second purchase of the same plan: %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Fatalf("repeat purchase must not replay the first session, got %s twice", first.SessionID)
	}
	assertCount(t, f.db, `SELECT COUNT(*) FROM credit_transactions`, 2)
}

func TestCreateSessionUnknownPlan(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.CreateSession(context.Background(), "u1", checkoutdomain.CreateSessionRequest{
		PlanID: "nonexistent",
	})
	if !errors.Is(err, checkoutdomain.ErrUnknownPlan) {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
	assertCount(t, f.db, `SELECT COUNT(*) FROM credit_transactions`, 0)
}

func TestCreateSessionRequiresIdentity(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.CreateSession(context.Background(), "", checkoutdomain.CreateSessionRequest{
		PlanID: "starter",
	})
	if !errors.Is(err, checkoutdomain.ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
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
