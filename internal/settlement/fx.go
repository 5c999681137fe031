package settlement

import (
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/settlement/adapters"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/settlement/adapters/stripe"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/settlement/repository"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(stripe.NewFactory())
	}),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
