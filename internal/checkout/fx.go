package checkout

import (
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/checkout/service"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/config"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/stripeapi"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(func(cfg config.Config) *stripeapi.Client {
		return stripeapi.NewClient(cfg.StripeSecretKey)
	}),
	fx.Provide(service.NewService),
)
