package generation

import (
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/generation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generation.service",
	fx.Provide(service.NewService),
)
