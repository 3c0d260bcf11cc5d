// Package app assembles the scanhub services from a loaded config. The
// server and the one-shot scan command share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"scanhub/internal/config"
	"scanhub/internal/dao"
	"scanhub/internal/database"
	"scanhub/internal/notification"
	"scanhub/internal/services"
	"scanhub/pkg/adapters"
	"scanhub/pkg/engine"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/hooks"
	"scanhub/pkg/logger"
	"scanhub/pkg/metrics"
	"scanhub/pkg/normalizer"
	"scanhub/pkg/runner"
	"scanhub/pkg/snippet"
	"scanhub/pkg/telemetry"
	"scanhub/pkg/tools"
)

type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *gorm.DB
	Registry *tools.Registry
	Catalog  *tools.Catalog

	ScanService services.ScanServiceMethods
	VulnService services.VulnerabilityServiceMethods
	ToolService services.ToolServiceMethods

	discordClient *notification.NotificationClient
	ownsDB        bool
	cleanup       func(ctx context.Context)
}

type OptFunc func(*options)

type options struct {
	db          *gorm.DB
	uploadsRoot *string
	watch       bool
}

// WithDB reuses an open database instead of connecting with cfg.Database.
func WithDB(db *gorm.DB) OptFunc {
	return func(o *options) {
		o.db = db
	}
}

// WithUploadsRoot overrides workspace.uploads_root.
func WithUploadsRoot(dir string) OptFunc {
	return func(o *options) {
		o.uploadsRoot = &dir
	}
}

// WithCatalogWatch hot reloads the tool catalog when tools.watch is set.
func WithCatalogWatch() OptFunc {
	return func(o *options) {
		o.watch = true
	}
}

// New wires every component. ctx bounds background work such as the catalog
// watcher; Close releases the rest.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...OptFunc) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg, Logger: log, Registry: tools.DefaultRegistry()}

	providers, cleanup, err := telemetry.InitTelemetry(log, telemetry.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ExporterEndpoint: cfg.Telemetry.Endpoint,
		Probability:      cfg.Telemetry.Probability,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}
	a.cleanup = cleanup

	scanMetrics, err := metrics.NewScanMetrics(providers.Meter)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	a.DB = o.db
	if a.DB == nil {
		if a.DB, err = database.Connect(cfg.Database, log); err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.ownsDB = true
	}

	a.Catalog, err = tools.NewCatalog(a.Registry, cfg.Tools.ConfigDir, log)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if o.watch && cfg.Tools.Watch {
		if err := a.Catalog.Watch(ctx); err != nil {
			log.WithError(err).Warn("Tool config hot reload disabled")
		}
	}

	rules, err := cfg.SeverityRules()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	norm, err := normalizer.New(log, rules, normalizer.WithFallbackWarnRatio(cfg.Normalizer.FallbackWarnRatio))
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	tracer := providers.Tracer.Tracer("scanhub/dao")
	scanDao := dao.NewScanDAO(a.DB, tracer)
	vulnDao := dao.NewVulnerabilityDAO(a.DB, tracer)

	engine.InitGlobalQueue(cfg.Engine.MaxConcurrentScans, log)

	uploadsRoot := cfg.Workspace.UploadsRoot
	if o.uploadsRoot != nil {
		uploadsRoot = *o.uploadsRoot
	}

	a.ScanService = services.NewScanService(services.ScanServiceDeps{
		ScanDAO:  scanDao,
		Registry: a.Registry,
		Factory:  adapters.NewCatalogFactory(a.Catalog, runner.NewSimpleRunner(log), log),
		Engine: engine.NewEngine(log,
			engine.WithMaxWorkers(cfg.Engine.MaxWorkers),
			engine.WithToolTimeout(cfg.Engine.ToolTimeout),
			engine.WithCancelGrace(cfg.Engine.CancelGrace),
			engine.WithMetrics(scanMetrics),
		),
		Normalizer:        norm,
		Queue:             engine.GetGlobalQueue(),
		Hooks:             a.completionHooks(),
		Metrics:           scanMetrics,
		Logger:            log,
		WorkspaceRoot:     cfg.Workspace.Root,
		UploadsRoot:       uploadsRoot,
		ProgressPerSecond: cfg.Progress.UpdatesPerSecond,
		StopWait:          cfg.Engine.CancelGrace * 2,
	})
	a.VulnService = services.NewVulnerabilityService(scanDao, vulnDao, snippet.NewExtractor(cfg.Snippet.Window, log), log)
	a.ToolService = services.NewToolService(a.Registry, a.Catalog)

	return a, nil
}

func (a *App) completionHooks() []hooks.CompletionHook {
	completion := []hooks.CompletionHook{&hooks.SarifExportHook{Registry: a.Registry}}

	client, err := notification.NewNotificationClient(a.Config.Discord.Token, a.Config.Discord.ChannelID)
	switch {
	case errors.Is(err, scanerrors.ErrDiscordNotConfigured):
		a.Logger.Info("DISCORD_TOKEN not set - Discord notifications disabled")
	case err != nil:
		a.Logger.WithError(err).Warn("Failed to initialize Discord client")
	default:
		a.discordClient = client
		completion = append(completion, hooks.NewNotifierHook(client, hooks.NotifierHookConfig{}, a.Logger))
		a.Logger.Info("Discord notifications enabled")
	}
	return completion
}

// Close flushes telemetry and closes the Discord session, and the database
// when New opened it.
func (a *App) Close(ctx context.Context) {
	if a.discordClient != nil {
		if err := a.discordClient.Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to close Discord client")
		}
	}
	if a.ownsDB && a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			a.Logger.WithError(err).Warn("Failed to close database")
		}
	}
	if a.cleanup != nil {
		a.cleanup(ctx)
	}
}
