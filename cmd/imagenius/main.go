package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/checkout"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/clock"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/config"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/generation"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/ledger"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/migration"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/observability"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/plan"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/quota"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/server"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/settlement"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		plan.Module,
		ledger.Module,
		checkout.Module,
		settlement.Module,
		quota.Module,
		generation.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
