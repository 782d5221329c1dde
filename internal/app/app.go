// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lastplayed-crawler/internal/clock/system"
	"github.com/JakeFAU/lastplayed-crawler/internal/config"
	"github.com/JakeFAU/lastplayed-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/lastplayed-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/lastplayed-crawler/internal/id/uuid"
	"github.com/JakeFAU/lastplayed-crawler/internal/logging"
	"github.com/JakeFAU/lastplayed-crawler/internal/metrics"
	"github.com/JakeFAU/lastplayed-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/lastplayed-crawler/internal/songdb"
	"github.com/JakeFAU/lastplayed-crawler/internal/storage/local"
	"github.com/JakeFAU/lastplayed-crawler/internal/storage/postgres"
)

// Exporter writes the song history into an external database.
type Exporter interface {
	EnsureSchema(ctx context.Context) error
	Export(ctx context.Context, db *songdb.Database) (postgres.ExportResult, error)
	Close()
}

// App holds all the shared, long-lived services for one CLI invocation.
// It is built once in the root command's pre-run hook and closed after the
// subcommand returns.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	runID   string
	store   *local.StateStore
	fetcher *collyfetcher.Fetcher
	engine  *crawler.Engine
	metrics *metrics.Server
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetLogger returns the run-scoped zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetStore exposes the song database state file.
func (a *App) GetStore() crawler.StateStore {
	return a.store
}

// GetFetcher exposes the listing fetcher.
func (a *App) GetFetcher() crawler.PageFetcher {
	return a.fetcher
}

// GetEngine returns the crawl engine wired to the fetcher and state file.
func (a *App) GetEngine() *crawler.Engine {
	return a.engine
}

// OpenExporter connects to the configured Postgres database.
func (a *App) OpenExporter(ctx context.Context) (Exporter, error) {
	store, err := postgres.NewHistoryStore(ctx, postgres.HistoryStoreConfig{
		DSN:            a.cfg.Export.DSN,
		SongsTable:     a.cfg.Export.SongsTable,
		ConflictsTable: a.cfg.Export.ConflictsTable,
		MaxConns:       2,
	})
	if err != nil {
		return nil, fmt.Errorf("open export database: %w", err)
	}
	return store, nil
}

// New creates and initializes the App from configuration. It fails fast if
// any service cannot be built.
func New(_ context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	runID := uuid.New().RunID()
	logger = logger.With(zap.String("run_id", runID))

	store, err := local.New(local.Config{Path: cfg.State.Path}, logger.Named("state"))
	if err != nil {
		return nil, fmt.Errorf("init state store: %w", err)
	}

	fetcher, err := collyfetcher.New(collyfetcher.Config{
		BaseURL:   cfg.Source.BaseURL,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Source.RequestTimeout,
	}, logger.Named("fetcher"))
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	clock := system.New()
	engine := crawler.NewEngine(
		cfg.Engine(),
		fetcher,
		store,
		ratelimit.New(ratelimit.Config{Interval: cfg.Crawler.PagePause}),
		crawler.NewExponentialRetryPolicy(cfg.Retry()),
		clock,
		logger.Named("engine"),
	)

	a := &App{
		cfg:     cfg,
		logger:  logger,
		runID:   runID,
		store:   store,
		fetcher: fetcher,
		engine:  engine,
	}
	if cfg.Metrics.ListenAddr != "" {
		srv, err := metrics.StartServer(cfg.Metrics.ListenAddr, logger.Named("metrics"))
		if err != nil {
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
		a.metrics = srv
	}

	logger.Debug("Application services initialized",
		zap.String("state", store.Path()),
		zap.String("source", cfg.Source.BaseURL),
		zap.String("started_at", clock.Stamp()),
	)
	return a, nil
}

// RunID identifies this invocation in logs.
func (a *App) RunID() string {
	return a.runID
}

// Close flushes metrics and shuts down services. It is called by a Cobra hook
// after the command finishes execution.
func (a *App) Close() {
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			a.logger.Warn("Error writing metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("Error stopping metrics server", zap.Error(err))
		}
	}
	// Sync fails on some terminals (ENOTTY on stderr); nothing useful to do about it.
	_ = a.logger.Sync()
}
