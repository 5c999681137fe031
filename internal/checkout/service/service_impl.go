package service

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/checkout/domain"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/config"
	ledgerdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/ledger/domain"
	obsmetrics "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/observability/metrics"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/plan"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/stripeapi"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	GenID      *snowflake.Node
	Catalog    *plan.Catalog
	Ledger     ledgerdomain.Service
	Stripe     *stripeapi.Client
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg        config.Config
	log        *zap.Logger
	genID      *snowflake.Node
	catalog    *plan.Catalog
	ledger     ledgerdomain.Service
	stripe     *stripeapi.Client
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) checkoutdomain.Service {
	return &Service{
		cfg:        p.Cfg,
		log:        p.Log.Named("checkout.service"),
		genID:      p.GenID,
		catalog:    p.Catalog,
		ledger:     p.Ledger,
		stripe:     p.Stripe,
		obsMetrics: p.ObsMetrics,
	}
}

// CreateSession validates the plan, opens a hosted checkout session on
// the payment processor and records a pending transaction keyed by the
// returned session id.
func (s *Service) CreateSession(ctx context.Context, authUserID string, req checkoutdomain.CreateSessionRequest) (checkoutdomain.CreateSessionResponse, error) {
	userID := strings.TrimSpace(authUserID)
	if userID == "" {
		return checkoutdomain.CreateSessionResponse{}, checkoutdomain.ErrMissingIdentity
	}
	if explicit := strings.TrimSpace(req.UserID); explicit != "" && explicit != userID {
		s.log.Warn("checkout user_id mismatch, using authenticated identity",
			zap.String("user_id", userID),
			zap.String("claimed_user_id", explicit),
		)
	}

	p, ok := s.catalog.Get(req.PlanID)
	if !ok {
		return checkoutdomain.CreateSessionResponse{}, checkoutdomain.ErrUnknownPlan
	}

	charge := p.ChargeCents()
	currency := p.Currency
	if !p.IsSubscription() && req.Amount > 0 {
		charge = req.Amount
		if c := strings.ToLower(strings.TrimSpace(req.Currency)); c != "" {
			currency = c
		}
	}

	var bonus int64
	if !p.IsSubscription() && req.PixBonus > 0 {
		bonus = req.PixBonus
	}
	totalCredits := p.Credits + bonus

	// The idempotency key guards against transport-level retries of this
	// one attempt. It must be unique per attempt: a key reused across
	// attempts makes Stripe replay the first session, and repeat
	// purchases of the same plan would collide on its session id.
	idempotencyKey := "checkout:" + userID + ":" + p.ID + ":" + s.genID.Generate().String()

	session, err := s.stripe.CreateCheckoutSession(ctx, s.sessionValues(userID, p, charge, currency, totalCredits, bonus), idempotencyKey)
	if err != nil {
		return checkoutdomain.CreateSessionResponse{}, err
	}

	planType := ledgerdomain.PlanTypeOneTime
	if p.IsSubscription() {
		planType = ledgerdomain.PlanTypeSubscription
	}
	txn := &ledgerdomain.CreditTransaction{
		UserID:       userID,
		SessionID:    session.ID,
		PlanID:       p.ID,
		PlanType:     planType,
		AmountCents:  charge,
		Credits:      p.Credits,
		BonusCredits: bonus,
	}
	if err := s.ledger.CreatePendingTransaction(ctx, txn); err != nil {
		return checkoutdomain.CreateSessionResponse{}, err
	}

	s.obsMetrics.RecordCheckoutSession(ctx, p.ID)
	s.log.Info("checkout session created",
		zap.String("user_id", userID),
		zap.String("plan_id", p.ID),
		zap.String("session_id", session.ID),
		zap.Int64("amount_cents", charge),
		zap.Int64("credits", totalCredits),
	)

	return checkoutdomain.CreateSessionResponse{
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}

// sessionValues builds the form payload for the hosted session. The
// metadata block is what settlement later reads back, so it must carry
// everything needed to grant credits without local lookups.
func (s *Service) sessionValues(userID string, p plan.Plan, charge int64, currency string, totalCredits, bonus int64) url.Values {
	values := url.Values{}
	values.Set("success_url", s.cfg.SiteURL+"/success?session_id={CHECKOUT_SESSION_ID}")
	values.Set("cancel_url", s.cfg.SiteURL+"/plans")
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(currency))
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(charge, 10))
	values.Set("line_items[0][price_data][product_data][name]", p.Name)

	metadata := map[string]string{
		"user_id":   userID,
		"plan_id":   p.ID,
		"credits":   strconv.FormatInt(totalCredits, 10),
		"plan_type": planTypeLabel(p),
	}
	if bonus > 0 {
		metadata["pix_bonus"] = strconv.FormatInt(bonus, 10)
	}

	if p.IsSubscription() {
		values.Set("mode", "subscription")
		values.Set("line_items[0][price_data][recurring][interval]", string(p.Interval))
		metadata["interval"] = string(p.Interval)
		// Copy onto the subscription so renewal invoices can resolve
		// the identity and plan from the processor side alone.
		for key, value := range metadata {
			values.Set("subscription_data[metadata]["+key+"]", value)
		}
	} else {
		values.Set("mode", "payment")
		values.Set("payment_method_types[0]", "card")
		values.Set("payment_method_types[1]", "pix")
	}

	for key, value := range metadata {
		values.Set("metadata["+key+"]", value)
	}
	return values
}

func planTypeLabel(p plan.Plan) string {
	if p.IsSubscription() {
		return "subscription"
	}
	return "one-time"
}
