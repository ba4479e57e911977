package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/ledger/internal/bootstrap"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/scheduler"
	"github.com/erp/ledger/internal/interfaces/http/handler"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/erp/ledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/erp/ledger/docs"
)

//	@title			Procurement Ledger API
//	@version		1.0
//	@description	Reconciles purchase orders, invoices and payments into a published ledger

//	@host		localhost:8080
//	@BasePath	/api/v1

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		ServiceVersion: version,
		Telemetry:      true,
		AutoMigrate:    true,
	})
	if err != nil {
		panic("Failed to initialize: " + err.Error())
	}
	log := app.Logger
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			log.Error("Error releasing resources", zap.Error(err))
		}
	}()

	log.Info("Starting procurement ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	app.Metrics.StartPeriodicCollection(ctx, time.Minute)

	var daily *scheduler.DailyRunScheduler
	if cfg.Pipeline.ScheduleEnabled {
		daily, err = startScheduler(ctx, cfg, app, log)
		if err != nil {
			log.Fatal("Failed to start daily run scheduler", zap.Error(err))
		}
		defer func() {
			if err := daily.Stop(context.Background()); err != nil {
				log.Error("Error stopping scheduler", zap.Error(err))
			}
		}()
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitRPS > 0 {
		rateLimiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
		rateLimiter.StartCleanup(ctx)
		defer rateLimiter.Stop()
		log.Info("Rate limiting enabled for writes",
			zap.Float64("rps", cfg.HTTP.RateLimitRPS),
			zap.Int("burst", cfg.HTTP.RateLimitBurst),
		)
	}

	engine := newEngine(cfg, app, log)
	router.Setup(engine, newHandlers(cfg, app, daily), router.RouteConfig{
		QueryTimeout:   cfg.HTTP.QueryTimeout,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
		RateLimiter:    rateLimiter,
		Docs: middleware.SwaggerConfig{
			Enabled:    cfg.Docs.Enabled,
			AllowedIPs: cfg.Docs.AllowedIPs,
		},
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

func startScheduler(ctx context.Context, cfg *config.Config, app *bootstrap.App, log *zap.Logger) (*scheduler.DailyRunScheduler, error) {
	schedCfg := scheduler.DefaultDailyRunConfig()
	schedCfg.Hour = cfg.Pipeline.ScheduleHour
	schedCfg.Minute = cfg.Pipeline.ScheduleMinute
	schedCfg.Location = cfg.Pipeline.Location()
	schedCfg.RunTimeout = cfg.Pipeline.RunTimeout
	schedCfg.RetryAttempts = cfg.Pipeline.RetryAttempts
	schedCfg.RetryDelay = cfg.Pipeline.RetryDelay

	daily, err := scheduler.NewDailyRunScheduler(schedCfg, app.Runs.ScheduledRun, log.Named("scheduler"))
	if err != nil {
		return nil, err
	}
	if err := daily.Start(ctx); err != nil {
		return nil, err
	}
	return daily, nil
}

// newEngine builds the gin engine with the global middleware stack:
// request id, logging, recovery, tracing, metrics, CORS and security headers
func newEngine(cfg *config.Config, app *bootstrap.App, log *zap.Logger) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.RequestLogger(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled)...)
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: app.Meter,
		Enabled:       cfg.Telemetry.MetricsEnabled,
	}))
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfigFrom(
		cfg.HTTP.CORSAllowOrigins, cfg.HTTP.CORSAllowMethods, cfg.HTTP.CORSAllowHeaders)))
	security := middleware.DefaultSecurityConfig()
	security.HSTSMaxAge = cfg.HTTP.HSTSMaxAge
	engine.Use(middleware.SecureWithConfig(security))
	return engine
}

func newHandlers(cfg *config.Config, app *bootstrap.App, daily *scheduler.DailyRunScheduler) router.Handlers {
	// Interfaces stay nil when the scheduler is disabled
	var next handler.NextRunReporter
	var status handler.SchedulerStatusReporter
	if daily != nil {
		next, status = daily, daily
	}
	return router.Handlers{
		Ledger: handler.NewLedgerHandler(app.Queries, next),
		Ingest: handler.NewIngestHandler(app.Ingest, handler.IngestConfig{
			MaxUploadBytes:  cfg.Ingest.MaxUploadBytes,
			DefaultEncoding: cfg.Ingest.DefaultEncoding,
		}),
		Run:     handler.NewRunHandler(app.Runs),
		Payment: handler.NewPaymentHandler(app.Payments),
		System:  handler.NewSystemHandler(cfg.App.Name, version, app.DB, status),
	}
}
