// Package bootstrap assembles the ledger services from configuration. It is
// shared by the server and the ledgerctl command.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	ledgerapp "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/erp/ledger/internal/infrastructure/config"
	csvimport "github.com/erp/ledger/internal/infrastructure/import"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/storage"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Options selects the optional parts of the stack
type Options struct {
	ServiceVersion string
	// Telemetry starts the OTLP trace, metric and log exporters
	Telemetry bool
	// AutoMigrate creates the tables on SQLite databases
	AutoMigrate bool
}

// App holds the assembled services and the resources they depend on
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *persistence.Database

	Coordination *cache.Coordination
	Meter        *telemetry.MeterProvider
	Metrics      *telemetry.PipelineMetrics

	Ingest   *ledgerapp.IngestService
	Payments *ledgerapp.PaymentService
	Queries  *ledgerapp.QueryService
	Runs     *ledgerapp.RunService

	closers []func(context.Context) error
}

// New opens the database and coordination stores and wires the services.
// On error every resource opened so far is released.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	if err := app.initTelemetry(ctx, opts); err != nil {
		return nil, err
	}
	log := app.Logger

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		return nil, err
	}
	app.DB = db
	app.onClose(func(context.Context) error { return db.Close() })
	log.Info("Database connected", zap.String("driver", db.Driver()))

	if opts.AutoMigrate && db.Driver() == persistence.DriverSQLite {
		if err := db.AutoMigrate(ctx); err != nil {
			return nil, err
		}
	}

	if err := app.instrumentDB(ctx, opts); err != nil {
		return nil, err
	}

	coord, err := cache.NewCoordination(ctx, cfg.Redis, cfg.Pipeline.LockTTL, cache.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("coordination stores: %w", err)
	}
	app.Coordination = coord
	app.onClose(func(context.Context) error { return coord.Close() })

	archiver, err := app.newArchiver(ctx)
	if err != nil {
		return nil, err
	}

	if err := app.wireServices(archiver); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) initTelemetry(ctx context.Context, opts Options) error {
	cfg := a.Config
	logCfg := &logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.Logger = log
	a.onClose(func(context.Context) error {
		_ = log.Sync()
		return nil
	})

	tel := cfg.Telemetry
	enabled := opts.Telemetry && tel.Enabled
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		CollectorEndpoint: tel.CollectorEndpoint,
		Insecure:          tel.Insecure,
		ServiceName:       tel.ServiceName,
		ServiceVersion:    opts.ServiceVersion,
		Traces:            enabled,
		SamplingRatio:     tel.SamplingRatio,
		Metrics:           enabled && tel.MetricsEnabled,
		Logs:              enabled && tel.LogsEnabled,
	}, log)
	if err != nil {
		return err
	}
	a.Meter = providers.Meter
	a.onClose(providers.Shutdown)

	if providers.LogsEnabled() {
		logCfg.Tee = append(logCfg.Tee, providers.LogCore(tel.ServiceName, logger.ParseLevel(cfg.Log.Level)))
		bridged, err := logger.New(logCfg)
		if err != nil {
			return fmt.Errorf("initialize bridged logger: %w", err)
		}
		a.Logger = bridged
		a.onClose(func(context.Context) error {
			_ = bridged.Sync()
			return nil
		})
	}
	return nil
}

func (a *App) instrumentDB(ctx context.Context, opts Options) error {
	tel := a.Config.Telemetry
	dbSystem := "postgresql"
	if a.DB.Driver() == persistence.DriverSQLite {
		dbSystem = "sqlite"
	}
	tracing := telemetry.NewDBTracing(telemetry.DBTracingConfig{
		Enabled:     opts.Telemetry && tel.Enabled && tel.DBTraceEnabled,
		IncludeVars: tel.DBLogFullSQL,
		SlowQuery:   tel.DBSlowQueryThresh,
		System:      dbSystem,
	}, a.Logger)
	if err := tracing.Register(a.DB.DB); err != nil {
		return fmt.Errorf("register db tracing: %w", err)
	}

	dbMetrics, err := telemetry.RegisterDBMetrics(ctx, a.DB.DB, a.Meter, telemetry.DBMetricsConfig{
		Enabled:   true,
		SlowQuery: tel.DBSlowQueryThresh,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("register db metrics: %w", err)
	}
	if dbMetrics != nil {
		a.onClose(func(context.Context) error {
			dbMetrics.Stop()
			return nil
		})
	}
	return nil
}

func (a *App) newArchiver(ctx context.Context) (ledger.SnapshotArchiver, error) {
	if !a.Config.Pipeline.ArchiveEnabled {
		return nil, nil
	}
	archiver, err := storage.NewArchiver(ctx, &a.Config.Storage, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("snapshot archiver: %w", err)
	}
	if closer, ok := archiver.(io.Closer); ok {
		a.onClose(func(context.Context) error { return closer.Close() })
	}
	if archiver != nil {
		a.Logger.Info("Snapshot archive enabled", zap.String("backend", a.Config.Storage.Backend))
	}
	return archiver, nil
}

func (a *App) wireServices(archiver ledger.SnapshotArchiver) error {
	cfg := a.Config
	raw := persistence.NewGormRawStore(a.DB.DB)
	snapshots := persistence.NewGormSnapshotStore(a.DB.DB)
	runs := persistence.NewGormRunRepository(a.DB.DB)

	metrics, err := telemetry.NewPipelineMetrics(telemetry.PipelineMetricsConfig{
		Meter:  a.Meter.Meter("ledger.pipeline"),
		Logger: a.Logger,
		Source: snapshots,
	})
	if err != nil {
		return fmt.Errorf("pipeline metrics: %w", err)
	}
	a.Metrics = metrics
	a.onClose(func(context.Context) error {
		metrics.Stop()
		return nil
	})

	mappings, err := csvimport.LoadMappings(cfg.Ingest.MappingsFile)
	if err != nil {
		return fmt.Errorf("load mappings %s: %w", cfg.Ingest.MappingsFile, err)
	}
	loader := csvimport.NewLoader(mappings, csvimport.NewCoercer(
		csvimport.WithLocation(cfg.Pipeline.Location()),
		csvimport.WithMaxErrors(cfg.Ingest.MaxRowErrors),
	))

	a.Ingest = ledgerapp.NewIngestService(raw, loader,
		ledgerapp.WithIdempotency(a.Coordination.Idempotency, cfg.Ingest.IdempotencyTTL),
		ledgerapp.WithIngestMetrics(metrics),
		ledgerapp.WithIngestLogger(a.Logger),
	)
	a.Payments = ledgerapp.NewPaymentService(a.Ingest)
	a.Queries = ledgerapp.NewQueryService(snapshots, runs, raw)

	duePolicy, err := ledger.ParseDuePolicy(cfg.Pipeline.DuePolicy)
	if err != nil {
		return fmt.Errorf("pipeline.due_policy: %w", err)
	}
	a.Runs = ledgerapp.NewRunService(ledgerapp.RunServiceConfig{
		Raw:       raw,
		Snapshots: snapshots,
		Runs:      runs,
		Lock:      a.Coordination.RunLock,
		Defaults: ledgerapp.RunDefaults{
			Tolerance:   cfg.Pipeline.ToleranceDecimal(),
			GracePeriod: cfg.Pipeline.GracePeriod(),
			DuePolicy:   duePolicy,
			Location:    cfg.Pipeline.Location(),
		},
		Archiver: archiver,
		Metrics:  metrics,
		Logger:   a.Logger,
	})
	return nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
