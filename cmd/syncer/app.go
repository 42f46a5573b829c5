package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"notion_sync/internal/assets"
	"notion_sync/internal/config"
	"notion_sync/internal/domain"
	"notion_sync/internal/publisher"
	"notion_sync/internal/service"
	"notion_sync/internal/source/notion"
	"notion_sync/internal/storage/postgres"
	"notion_sync/internal/storage/postgres/migrations"
)

// app holds the wired dependencies shared by the subcommands. Close releases them.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sqlx.DB
	publisher *publisher.RabbitMQ
	service   *service.SyncService
}

type appOptions struct {
	// migrateOnStart honours database.migrate_on_start; otherwise the schema version is only checked.
	migrateOnStart bool
	// publish connects to RabbitMQ when it is enabled in the config.
	publish bool
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, setupLogger(cfg.LogLevel), nil
}

func connectDB(cfg *config.Config, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	return db, nil
}

func newApp(ctx context.Context, configPath string, opts appOptions) (*app, error) {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	db, err := connectDB(cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, db: db}

	if opts.migrateOnStart && cfg.Database.MigrateOnStart {
		if err := migrations.MigrateUp(db.DB); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	} else if err := migrations.CheckDBMigrationStatus(db.DB); err != nil {
		a.Close()
		return nil, fmt.Errorf("check schema: %w", err)
	}

	storage, err := assets.NewStorageFromConfig(ctx, cfg.Assets)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create asset storage: %w", err)
	}

	clock := domain.RealClock{}

	var pub service.Publisher
	if opts.publish && cfg.RabbitMQ.Enabled {
		a.publisher, err = publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, clock, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		pub = a.publisher
	}

	source := notion.New(notion.Config{
		BaseURL:           cfg.Notion.BaseURL,
		APIKey:            cfg.Notion.APIKey,
		Version:           cfg.Notion.Version,
		DataSourceID:      cfg.Notion.DataSourceID,
		ContainerKind:     cfg.Notion.ContainerKind,
		PageSize:          cfg.Notion.PageSize,
		Timeout:           cfg.Notion.Timeout,
		RequestsPerSecond: cfg.Notion.RequestsPerSecond,
		MaxAttempts:       cfg.Notion.Retry.MaxAttempts,
		InitialBackoff:    cfg.Notion.Retry.InitialBackoff,
		MaxBackoff:        cfg.Notion.Retry.MaxBackoff,
		Properties: notion.PropertyNames{
			Title:   cfg.Notion.Properties.Title,
			Excerpt: cfg.Notion.Properties.Excerpt,
			Date:    cfg.Notion.Properties.Date,
			Status:  cfg.Notion.Properties.Status,
			Cover:   cfg.Notion.Properties.Cover,
		},
		PublishedStatus: cfg.Notion.PublishedStatus,
	}, logger)

	downloader := assets.NewDownloader(assets.DownloaderConfig{
		Timeout:    cfg.Assets.DownloadTimeout,
		MaxSize:    cfg.Assets.MaxSize,
		MaxRetries: cfg.Assets.MaxRetries,
		UserAgent:  cfg.Assets.UserAgent,
	})

	mirror := assets.NewMirror(
		postgres.NewAssetStore(db),
		storage,
		downloader,
		clock,
		cfg.Assets.DownloadDelay,
		logger,
	)

	a.service = service.NewSyncService(
		source,
		postgres.NewArticleStore(db),
		mirror,
		postgres.NewTransactionManager(db),
		pub,
		clock,
		domain.UUIDGenerator{},
		logger,
		service.Config{
			PageDelay:       cfg.Sync.PageDelay,
			PublishedStatus: cfg.Notion.PublishedStatus,
			PlaceholderURL:  cfg.Assets.PlaceholderURL,
		},
	)

	return a, nil
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("failed to close publisher", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
