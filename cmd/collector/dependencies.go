package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/FACorreiaa/lsx-collector/internal/domain/ingest/repository"
	"github.com/FACorreiaa/lsx-collector/internal/domain/ingest/service"
	"github.com/FACorreiaa/lsx-collector/internal/domain/kursblatt"
	"github.com/FACorreiaa/lsx-collector/internal/domain/lsx"
	"github.com/FACorreiaa/lsx-collector/pkg/config"
	"github.com/FACorreiaa/lsx-collector/pkg/db"
	"github.com/FACorreiaa/lsx-collector/pkg/logger"
	"github.com/FACorreiaa/lsx-collector/pkg/metrics"
	"github.com/FACorreiaa/lsx-collector/pkg/storage"
	"github.com/FACorreiaa/lsx-collector/pkg/tracing"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Repositories
	ShareRepo repository.ShareRepository

	// Services
	Store         storage.Storage
	IngestService *service.IngestService

	// LS-X sources
	Client     *lsx.Client
	Calendar   *lsx.Calendar
	Crawler    *lsx.ReportCrawler
	Downloader *lsx.Downloader
	SyncJob    *lsx.SyncJob

	shutdownTracing func(context.Context) error
}

// InitDependencies initializes all application dependencies. The database is only connected
// when withDB is set; commands that only touch files run without one.
func InitDependencies(ctx context.Context, cfg *config.Config, withDB bool) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger.New(cfg.Log, os.Stderr),
		Metrics: metrics.New(),
	}

	shutdown, err := tracing.Init(ctx, cfg.Observability.TracingEnabled, os.Stderr, version)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	deps.shutdownTracing = shutdown

	if withDB {
		if err := deps.initDatabase(); err != nil {
			deps.Cleanup()
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
		deps.initRepositories()
	}

	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initSources(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init sources: %w", err)
	}

	deps.Logger.Debug("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase connects to the database and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := d.connect()
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) connect() (*db.DB, error) {
	return db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		Schema:          d.Config.Database.Schema,
		MaxConns:        int32(d.Config.Database.MaxConns),
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() {
	d.ShareRepo = repository.NewPostgresShareRepository(d.DB.Pool, d.Config.Database.UpsertChunk)
	d.Logger.Debug("repositories initialized")
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	store, err := storage.New(&storage.Config{
		Type:      storage.StorageTypeLocal,
		LocalPath: d.Config.Storage.Dir,
	})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.Store = store

	strategy, err := kursblatt.ParseLocaleStrategy(d.Config.Ingest.LocaleStrategy)
	if err != nil {
		return err
	}

	d.IngestService = service.NewIngestService(d.Store, d.ShareRepo, d.Metrics, d.Logger, service.Config{
		Workers:            d.Config.Ingest.Workers,
		LocaleStrategy:     strategy,
		Location:           d.Config.Ingest.Location(),
		ProgressCheckpoint: d.Config.Ingest.ProgressCheckpoint,
		ExportXLSX:         d.Config.Ingest.ExportXLSX,
	})

	d.Logger.Debug("services initialized")
	return nil
}

// initSources initializes the LS-X web clients and the sync job
func (d *Dependencies) initSources() error {
	client, err := lsx.NewClient(d.Config.Sources, d.Logger)
	if err != nil {
		return err
	}
	d.Client = client
	d.Calendar = lsx.NewCalendar(client, d.Config.Sources.Location(), d.Config.Sources.CalendarCacheTTL, d.Logger)
	d.Crawler = lsx.NewReportCrawler(client, d.Logger)
	d.Downloader = lsx.NewDownloader(client, d.Store, d.Metrics, d.Logger)

	var ingester lsx.Ingester
	if d.ShareRepo != nil {
		ingester = d.IngestService
	}
	d.SyncJob = lsx.NewSyncJob(client, d.Calendar, d.Crawler, d.Downloader, ingester, d.Metrics, d.Logger)
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	if d.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.shutdownTracing(ctx); err != nil {
			d.Logger.Warn("failed to flush traces", slog.Any("error", err))
		}
	}
	d.Logger.Debug("cleanup completed")
}
