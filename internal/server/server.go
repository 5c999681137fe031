package server

import (
	"context"
	"net/http"
	"time"

	checkoutdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/checkout/domain"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/config"
	generationdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/generation/domain"
	ledgerdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/ledger/domain"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/observability"
	obsmiddleware "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/observability/logger"
	obsmetrics "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/observability/metrics"
	obstracing "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/observability/tracing"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/plan"
	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/quota"
	settlementdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/settlement/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	catalog       *plan.Catalog
	checkoutSvc   checkoutdomain.Service
	settlementSvc settlementdomain.Service
	ledgerSvc     ledgerdomain.Service
	generationSvc generationdomain.Service
	quotaGate     *quota.Gate
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Catalog       *plan.Catalog
	CheckoutSvc   checkoutdomain.Service
	SettlementSvc settlementdomain.Service
	LedgerSvc     ledgerdomain.Service
	GenerationSvc generationdomain.Service
	QuotaGate     *quota.Gate
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		catalog:       p.Catalog,
		checkoutSvc:   p.CheckoutSvc,
		settlementSvc: p.SettlementSvc,
		ledgerSvc:     p.LedgerSvc,
		generationSvc: p.GenerationSvc,
		quotaGate:     p.QuotaGate,
	}
}

func registerRoutes(s *Server) {
	api := s.engine.Group("/api")

	api.GET("/plans", s.HandleListPlans)
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)

	authed := api.Group("")
	authed.Use(s.RequireAuth())
	authed.POST("/checkout", s.HandleCreateCheckout)
	authed.GET("/credits", s.HandleGetCredits)
	authed.GET("/credits/transactions", s.HandleListTransactions)
	authed.POST("/generate", s.QuotaMiddleware(quota.EndpointGenerate), s.HandleGenerate)
	authed.POST("/suggest", s.QuotaMiddleware(quota.EndpointSuggest), s.HandleSuggest)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
