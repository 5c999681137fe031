package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/clock"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/config"
	ledgerdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/ledger/domain"
	obsmetrics "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/observability/metrics"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/plan"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/settlement/adapters"
	settlementdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/settlement/domain"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/stripeapi"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const paymentMethodPix = "pix"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Catalog    *plan.Catalog
	Ledger     ledgerdomain.Service
	Repo       settlementdomain.Repository
	Adapters   *adapters.Registry
	Stripe     *stripeapi.Client
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	catalog    *plan.Catalog
	ledger     ledgerdomain.Service
	repo       settlementdomain.Repository
	adapters   *adapters.Registry
	stripe     *stripeapi.Client
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) settlementdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("settlement.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg,
		catalog:    p.Catalog,
		ledger:     p.Ledger,
		repo:       p.Repo,
		adapters:   p.Adapters,
		stripe:     p.Stripe,
		obsMetrics: p.ObsMetrics,
	}
}

// IngestWebhook verifies, dedupes and applies one webhook delivery.
// Credits are granted here and nowhere else.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (settlementdomain.Outcome, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return settlementdomain.Outcome{}, settlementdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return settlementdomain.Outcome{}, settlementdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return settlementdomain.Outcome{}, settlementdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, settlementdomain.AdapterConfig{
		Provider: provider,
		Config:   map[string]any{"webhook_secret": s.cfg.StripeWebhookSecret},
	})
	if err != nil {
		// No usable signing secret means nothing can be trusted.
		return settlementdomain.Outcome{}, settlementdomain.ErrInvalidSignature
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return settlementdomain.Outcome{}, err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, settlementdomain.ErrEventIgnored) {
			return settlementdomain.Outcome{}, nil
		}
		return settlementdomain.Outcome{}, err
	}

	s.obsMetrics.RecordPaymentEvent(ctx, provider, event.Type)

	record := &settlementdomain.EventRecord{
		ID:         s.genID.Generate(),
		Provider:   provider,
		EventID:    event.ProviderEventID,
		EventType:  event.Type,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return settlementdomain.Outcome{}, err
	}
	if !inserted {
		existing, err := s.repo.FindEvent(ctx, s.db, provider, event.ProviderEventID)
		if err != nil {
			return settlementdomain.Outcome{}, err
		}
		if existing != nil && existing.ProcessedAt != nil {
			s.log.Info("webhook event already processed",
				zap.String("provider", provider),
				zap.String("event_id", event.ProviderEventID),
			)
			return settlementdomain.Outcome{}, nil
		}
		if existing != nil {
			record = existing
		}
	}

	// Balance writes and the processed flag commit together. If either
	// fails the whole delivery rolls back and the event row stays
	// unprocessed, so the provider's redelivery applies it exactly once.
	var outcome settlementdomain.Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var applyErr error
		outcome, applyErr = s.applyEvent(ctx, tx, event)
		if applyErr != nil {
			return applyErr
		}
		return s.repo.MarkProcessed(ctx, tx, record.ID, s.clock.Now())
	})
	if err != nil {
		return settlementdomain.Outcome{}, err
	}
	return outcome, nil
}

func (s *Service) applyEvent(ctx context.Context, tx *gorm.DB, event *settlementdomain.PaymentEvent) (settlementdomain.Outcome, error) {
	ledger := s.ledger.WithTx(tx)
	switch event.Type {
	case settlementdomain.EventTypeCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, ledger, event)
	case settlementdomain.EventTypeInvoicePaid:
		return s.applyInvoicePaid(ctx, ledger, event)
	case settlementdomain.EventTypeSubscriptionCanceled:
		s.log.Info("subscription canceled, no balance change",
			zap.String("subscription_id", event.SubscriptionID),
			zap.String("user_id", event.UserID),
		)
		return settlementdomain.Outcome{}, nil
	default:
		return settlementdomain.Outcome{}, nil
	}
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, ledger ledgerdomain.Service, event *settlementdomain.PaymentEvent) (settlementdomain.Outcome, error) {
	if event.SessionID == "" {
		return settlementdomain.Outcome{}, settlementdomain.ErrInvalidEvent
	}

	txn, err := ledger.FindBySessionID(ctx, event.SessionID)
	if err != nil && !errors.Is(err, ledgerdomain.ErrTransactionNotFound) {
		return settlementdomain.Outcome{}, err
	}

	// A delivery can arrive before the local row was written (or the
	// write failed after the session opened). Rebuild the row from the
	// session metadata the checkout step stamped on it.
	if txn == nil {
		txn, err = s.transactionFromMetadata(ctx, ledger, event)
		if err != nil {
			return settlementdomain.Outcome{}, err
		}
	}

	baseCredits := txn.Credits
	if p, ok := s.catalog.Get(txn.PlanID); ok {
		baseCredits = p.Credits
	}

	bonus, method := s.resolvePixBonus(ctx, event, txn)
	total := baseCredits + bonus

	settled, err := ledger.SettlePurchase(ctx, event.SessionID, total, method, bonus)
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrDuplicateTransaction) {
			s.log.Info("session already settled",
				zap.String("session_id", event.SessionID),
			)
			return settlementdomain.Outcome{}, nil
		}
		return settlementdomain.Outcome{}, err
	}

	return settlementdomain.Outcome{
		Processed:      true,
		CreditsGranted: total,
		UserID:         settled.UserID,
	}, nil
}

func (s *Service) applyInvoicePaid(ctx context.Context, ledger ledgerdomain.Service, event *settlementdomain.PaymentEvent) (settlementdomain.Outcome, error) {
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		// Without processor-side metadata there is no identity to
		// credit. Acknowledge and move on rather than retry forever.
		s.log.Warn("renewal invoice missing identity metadata, skipping",
			zap.String("subscription_id", event.SubscriptionID),
			zap.String("event_id", event.ProviderEventID),
		)
		return settlementdomain.Outcome{}, nil
	}

	credits := event.Credits
	if p, ok := s.catalog.Get(event.PlanID); ok {
		credits = p.Credits
	}
	if credits <= 0 {
		s.log.Warn("renewal invoice resolves to zero credits, skipping",
			zap.String("user_id", userID),
			zap.String("plan_id", event.PlanID),
		)
		return settlementdomain.Outcome{}, nil
	}

	if err := ledger.AddCredits(ctx, userID, credits, ledgerdomain.GrantSourceRenewal); err != nil {
		return settlementdomain.Outcome{}, err
	}

	s.log.Info("subscription renewal credited",
		zap.String("user_id", userID),
		zap.String("plan_id", event.PlanID),
		zap.Int64("credits", credits),
	)
	return settlementdomain.Outcome{
		Processed:      true,
		CreditsGranted: credits,
		UserID:         userID,
	}, nil
}

func (s *Service) transactionFromMetadata(ctx context.Context, ledger ledgerdomain.Service, event *settlementdomain.PaymentEvent) (*ledgerdomain.CreditTransaction, error) {
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		return nil, settlementdomain.ErrInvalidEvent
	}

	planType := ledgerdomain.PlanTypeOneTime
	if strings.TrimSpace(event.PlanType) == "subscription" {
		planType = ledgerdomain.PlanTypeSubscription
	}

	base := event.Credits - event.PixBonus
	if base < 0 {
		base = event.Credits
	}
	txn := &ledgerdomain.CreditTransaction{
		UserID:       userID,
		SessionID:    event.SessionID,
		PlanID:       strings.TrimSpace(event.PlanID),
		PlanType:     planType,
		Credits:      base,
		BonusCredits: event.PixBonus,
	}
	if err := ledger.CreatePendingTransaction(ctx, txn); err != nil {
		if errors.Is(err, ledgerdomain.ErrDuplicateTransaction) {
			return ledger.FindBySessionID(ctx, event.SessionID)
		}
		return nil, err
	}
	return txn, nil
}

// resolvePixBonus grants the bonus only for one-time plans whose payment
// intent confirms the charge settled through PIX.
func (s *Service) resolvePixBonus(ctx context.Context, event *settlementdomain.PaymentEvent, txn *ledgerdomain.CreditTransaction) (int64, string) {
	bonus := txn.BonusCredits
	if bonus <= 0 {
		bonus = event.PixBonus
	}
	if txn.PlanType != ledgerdomain.PlanTypeOneTime || bonus <= 0 {
		return 0, ""
	}
	if event.PaymentIntentID == "" {
		return 0, ""
	}

	intent, err := s.stripe.RetrievePaymentIntent(ctx, event.PaymentIntentID)
	if err != nil {
		s.log.Warn("payment intent lookup failed, granting base credits only",
			zap.String("payment_intent_id", event.PaymentIntentID),
			zap.Error(err),
		)
		return 0, ""
	}

	method := strings.ToLower(strings.TrimSpace(intent.LatestCharge.PaymentMethodDetails.Type))
	if method != paymentMethodPix {
		return 0, method
	}
	return bonus, method
}
