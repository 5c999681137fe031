package plan

import (
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Interval is the billing period of a subscription plan.
type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Plan is one purchasable credit pack or subscription tier.
type Plan struct {
	ID       string   `mapstructure:"id"`
	Name     string   `mapstructure:"name"`
	Type     string   `mapstructure:"type"`
	Interval Interval `mapstructure:"interval"`
	Credits  int64    `mapstructure:"credits"`

	// PriceCents is the charge per purchase, or per month for
	// subscriptions. Yearly subscriptions charge AnnualTotalCents
	// upfront instead.
	PriceCents       int64  `mapstructure:"price_cents"`
	AnnualTotalCents int64  `mapstructure:"annual_total_cents"`
	Currency         string `mapstructure:"currency"`
}

// ChargeCents is the amount a checkout session bills for this plan.
func (p Plan) ChargeCents() int64 {
	if p.Interval == IntervalYear && p.AnnualTotalCents > 0 {
		return p.AnnualTotalCents
	}
	return p.PriceCents
}

// IsSubscription reports whether the plan renews on an interval.
func (p Plan) IsSubscription() bool {
	return p.Type == "subscription"
}

// Catalog maps plan identifiers to their fixed credit amount and price.
// It can reload from a YAML file at runtime; lookups always see a
// consistent snapshot.
type Catalog struct {
	mu    sync.RWMutex
	plans map[string]Plan
	log   *zap.Logger
}

// NewCatalog builds a catalog from the built-in defaults, optionally
// overridden by a YAML file that is watched for changes.
func NewCatalog(path string, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Catalog{
		plans: defaultPlans(),
		log:   log.Named("plan.catalog"),
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return c
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		c.log.Warn("plan catalog file unreadable, using defaults",
			zap.String("path", path), zap.Error(err))
		return c
	}
	c.apply(v)

	v.OnConfigChange(func(_ fsnotify.Event) {
		c.apply(v)
	})
	v.WatchConfig()

	return c
}

func (c *Catalog) apply(v *viper.Viper) {
	var file struct {
		Plans []Plan `mapstructure:"plans"`
	}
	if err := v.Unmarshal(&file); err != nil {
		c.log.Warn("plan catalog reload failed", zap.Error(err))
		return
	}
	if len(file.Plans) == 0 {
		c.log.Warn("plan catalog file has no plans, keeping current set")
		return
	}

	plans := make(map[string]Plan, len(file.Plans))
	for _, p := range file.Plans {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" || p.Credits <= 0 || p.PriceCents <= 0 {
			c.log.Warn("skipping invalid plan entry", zap.String("plan_id", p.ID))
			continue
		}
		if p.Currency == "" {
			p.Currency = "brl"
		}
		plans[p.ID] = p
	}
	if len(plans) == 0 {
		return
	}

	c.mu.Lock()
	c.plans = plans
	c.mu.Unlock()
	c.log.Info("plan catalog loaded", zap.Int("plans", len(plans)))
}

// Get resolves a plan identifier.
func (c *Catalog) Get(planID string) (Plan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.plans[strings.TrimSpace(planID)]
	return p, ok
}

// All returns the current plan set sorted by price.
func (c *Catalog) All() []Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceCents < out[j].PriceCents })
	return out
}

func defaultPlans() map[string]Plan {
	plans := []Plan{
		{ID: "starter", Name: "Starter", Type: "one_time", Credits: 20, PriceCents: 990, Currency: "brl"},
		{ID: "genius", Name: "Genius", Type: "one_time", Credits: 100, PriceCents: 3990, Currency: "brl"},
		{ID: "master", Name: "Master", Type: "one_time", Credits: 300, PriceCents: 9990, Currency: "brl"},
		{ID: "subscription-monthly", Name: "Genius Monthly", Type: "subscription", Interval: IntervalMonth, Credits: 150, PriceCents: 1790, Currency: "brl"},
		{ID: "subscription-yearly", Name: "Genius Yearly", Type: "subscription", Interval: IntervalYear, Credits: 150, PriceCents: 1490, AnnualTotalCents: 17880, Currency: "brl"},
	}

	out := make(map[string]Plan, len(plans))
	for _, p := range plans {
		out[p.ID] = p
	}
	return out
}
