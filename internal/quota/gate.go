package quota

import (
	"context"
	"time"

	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/clock"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/config"
	obsmetrics "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/observability/metrics"
	"go.uber.org/zap"
)

// Endpoints the gate budgets independently.
const (
	EndpointGenerate = "generate"
	EndpointSuggest  = "suggest"
)

// Decision is the result of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Store counts admitted requests per identity and endpoint inside fixed
// windows. Take admits the request only while fewer than limit are
// counted for the window and reports the count after the attempt.
// Denied requests leave the stored count untouched, so it never exceeds
// the limit.
type Store interface {
	Take(ctx context.Context, userID, endpoint string, windowStart time.Time, limit int64) (used int64, admitted bool, err error)
}

// Gate enforces per-user fixed-window request budgets. Store failures
// fail open: an unavailable counter must not take the product down.
type Gate struct {
	store      Store
	clock      clock.Clock
	window     time.Duration
	limits     map[string]int64
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func NewGate(store Store, clk clock.Clock, cfg config.QuotaConfig, log *zap.Logger, obsMetrics *obsmetrics.Metrics) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	window := time.Duration(cfg.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	return &Gate{
		store:  store,
		clock:  clk,
		window: window,
		limits: map[string]int64{
			EndpointGenerate: int64(cfg.GenerateMax),
			EndpointSuggest:  int64(cfg.SuggestMax),
		},
		log:        log.Named("quota.gate"),
		obsMetrics: obsMetrics,
	}
}

// Allow admits or rejects one request for the given identity and endpoint.
func (g *Gate) Allow(ctx context.Context, userID, endpoint string) Decision {
	limit, ok := g.limits[endpoint]
	if !ok || limit <= 0 {
		return Decision{Allowed: true, Remaining: 0}
	}

	now := g.clock.Now()
	windowStart := now.Truncate(g.window)

	used, admitted, err := g.store.Take(ctx, userID, endpoint, windowStart, limit)
	if err != nil {
		g.log.Warn("quota store unavailable, failing open",
			zap.String("user_id", userID),
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		g.obsMetrics.RecordQuotaAllowed(ctx, endpoint)
		return Decision{Allowed: true, Remaining: limit}
	}

	if !admitted {
		g.obsMetrics.RecordQuotaDenied(ctx, endpoint, "window_exhausted")
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: windowStart.Add(g.window).Sub(now),
		}
	}

	g.obsMetrics.RecordQuotaAllowed(ctx, endpoint)
	return Decision{Allowed: true, Remaining: limit - used}
}
