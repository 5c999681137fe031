package quota

import (
	"time"

	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/clock"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/config"
	obsmetrics "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/observability/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type storeParams struct {
	fx.In

	Cfg config.Config
	DB  *gorm.DB
	Log *zap.Logger
}

func provideStore(p storeParams) Store {
	q := p.Cfg.Quota
	if q.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     q.RedisAddr,
			Password: q.RedisPassword,
			DB:       q.RedisDB,
		})
		p.Log.Info("quota store using redis", zap.String("addr", q.RedisAddr))
		return NewRedisStore(client, time.Duration(q.WindowSeconds)*time.Second)
	}
	return NewDBStore(p.DB)
}

type gateParams struct {
	fx.In

	Store      Store
	Clock      clock.Clock
	Cfg        config.Config
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

var Module = fx.Module("quota.gate",
	fx.Provide(provideStore),
	fx.Provide(func(p gateParams) *Gate {
		return NewGate(p.Store, p.Clock, p.Cfg.Quota, p.Log, p.ObsMetrics)
	}),
)
