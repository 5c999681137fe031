package ledger

import (
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(service.NewService),
)
