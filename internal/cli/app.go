package cli

import (
	"autoservice/internal/config"
	"autoservice/internal/services"
	"autoservice/internal/telemetry"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Catalog is the part of the application that needs no storage
type Catalog struct {
	Settings *config.SettingsStore
	Locator  *services.ProgramLocator
	Registry *services.Registry
	Presets  *services.PresetResolver
}

// NewCatalog loads settings and builds the service registry and presets
func NewCatalog(ctx context.Context, cfg *config.Config) (*Catalog, error) {
	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return nil, err
	}
	locator, err := services.NewProgramLocator(services.BuiltinPrograms(), settings)
	if err != nil {
		return nil, fmt.Errorf("program locator: %w", err)
	}
	registry, err := services.NewRegistry(locator, services.BuiltinCatalog(locator)...)
	if err != nil {
		return nil, fmt.Errorf("service registry: %w", err)
	}
	presets := services.NewPresetResolver(registry, settings)
	if _, err := presets.NormalizePresets(settings.CustomPresets()); err != nil {
		slog.WarnContext(ctx, "custom presets in settings are invalid", "file", cfg.SettingsFile, "error", err)
	}
	return &Catalog{Settings: settings, Locator: locator, Registry: registry, Presets: presets}, nil
}

// App wires every component of the toolkit
type App struct {
	*Catalog

	Config      *config.Config
	Metrics     *telemetry.Metrics
	Hub         *services.EventHub
	Estimator   *services.Estimator
	Reports     services.ReportStore
	Fingerprint *services.FingerprintService
	History     *services.RunHistory
	Coordinator *services.Coordinator

	retention []services.RetentionTarget
	closers   []func() error
}

// NewApp builds the application. Optional backends (PostgreSQL, Redis,
// NATS, S3) are connected only when configured.
func NewApp(ctx context.Context, cfg *config.Config) (app *App, err error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	catalog, err := NewCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app = &App{Catalog: catalog, Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = telemetry.New(reg)

	hubOpts := []services.HubOption{services.WithDropHook(app.Metrics.EventDropped)}
	if cfg.NATS.URL != "" {
		sink, err := services.NewNATSSink(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, sink.Close)
		hubOpts = append(hubOpts, services.WithSinks(sink))
		slog.InfoContext(ctx, "forwarding events to nats", "subject", cfg.NATS.Subject)
	}
	app.Hub = services.NewEventHub(cfg.EventBuffer, hubOpts...)
	app.closers = append(app.closers, func() error {
		app.Hub.Close()
		return nil
	})

	var store services.SampleStore
	if cfg.SamplesDSN != "" {
		pg, err := services.OpenPostgresSampleStore(ctx, cfg.SamplesDSN)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		store = pg
	} else {
		fileStore, err := services.NewFileSampleStore(cfg.SamplesFile())
		if err != nil {
			return nil, err
		}
		store = fileStore
	}

	var cache services.PredictionCache
	if cfg.Redis.Addr != "" {
		rc, err := services.NewRedisPredictionCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, rc.Close)
		cache = rc
	}

	app.Estimator = services.NewEstimator(cfg.Estimator, store, cache)
	if err := app.Estimator.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading duration samples: %w", err)
	}
	app.retention = append(app.retention, services.RetentionTarget{Name: "samples", Pruner: app.Estimator})

	files, err := services.NewFileReportStore(cfg.ReportsDir())
	if err != nil {
		return nil, err
	}
	app.Reports = files
	app.retention = append(app.retention, services.RetentionTarget{Name: "reports", Pruner: files})
	if cfg.S3.Bucket != "" {
		s3, err := services.NewS3ReportStore(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		app.Reports = services.NewMirroredReportStore(files, s3)
		app.retention = append(app.retention, services.RetentionTarget{Name: "s3 reports", Pruner: s3})
		slog.InfoContext(ctx, "mirroring reports to s3", "bucket", cfg.S3.Bucket)
	}

	app.Fingerprint = services.NewFingerprintService(cfg.FingerprintTTL)
	app.History = services.NewRunHistory(cfg.HistorySize)
	app.Coordinator = services.NewCoordinator(services.CoordinatorDeps{
		Registry: app.Registry,
		Events:   app.Hub,
		Samples:  app.Estimator,
		Machine:  app.Fingerprint,
		Reports:  app.Reports,
		Settings: app.Settings,
		Observer: app.Metrics,
		History:  app.History,
	})
	return app, nil
}

// RetentionTargets lists every store that retention prunes
func (a *App) RetentionTargets() []services.RetentionTarget {
	return a.retention
}

// Close releases backend connections in reverse order of creation
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
