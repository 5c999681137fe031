package plan

import (
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("plan.catalog",
	fx.Provide(func(log *zap.Logger) *Catalog {
		return NewCatalog(os.Getenv("PLAN_CATALOG_PATH"), log)
	}),
)
