package cmd

import (
	"context"
	"fmt"
	"strings"

	"holdings-sync/core/config"
	"holdings-sync/core/database"
	"holdings-sync/core/logger"
	"holdings-sync/core/storage"
	"holdings-sync/feature/catalog"
	"holdings-sync/feature/catalog/legacy"
	"holdings-sync/feature/catalog/marc"
	"holdings-sync/feature/catalog/rest"
	"holdings-sync/feature/index"
	"holdings-sync/feature/pipeline"
	"holdings-sync/feature/queue"
	"holdings-sync/feature/review"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds what every command needs: configuration, logger and the sync database.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	queue  *queue.Store
	state  *pipeline.StateStore
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: l,
		db:     db,
		queue:  queue.NewStore(db, l),
		state:  pipeline.NewStateStore(db),
	}, nil
}

func (a *app) migrate(ctx context.Context) error {
	if err := a.queue.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate queue: %w", err)
	}
	if err := a.state.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate record state: %w", err)
	}
	return nil
}

// source connects to the configured upstream catalog and loads its locations.
func (a *app) source(ctx context.Context) (catalog.Source, error) {
	switch a.cfg.Catalog.Source {
	case catalog.SourceREST:
		client := rest.NewClient(a.cfg.Catalog, a.logger)
		locs, err := rest.LoadLocations(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to load locations: %w", err)
		}
		a.logger.Info("Connected to REST catalog", zap.String("base_url", a.cfg.Catalog.BaseURL))
		return rest.New(client, locs, marc.JSONParser{}, a.logger), nil
	default:
		lc := a.cfg.Legacy
		db, err := database.Connect(lc.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to legacy catalog: %w", err)
		}
		if lc.Verify {
			problems, err := legacy.Verify(db, lc.Schema)
			if err != nil {
				return nil, fmt.Errorf("failed to verify legacy schema: %w", err)
			}
			if len(problems) > 0 {
				return nil, fmt.Errorf("legacy schema mismatch: %s", strings.Join(problems, "; "))
			}
		}
		locs, err := legacy.LoadLocations(ctx, db, lc.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to load locations: %w", err)
		}
		a.logger.Info("Connected to legacy catalog", zap.String("database", lc.Database.Name))
		return legacy.New(db, lc.Schema, locs, marc.JSONParser{}, a.logger), nil
	}
}

// indexer connects to the search index and makes sure it is configured.
func (a *app) indexer(ctx context.Context) (*index.Indexer, error) {
	idx := index.New(index.NewBackend(a.cfg.Index), a.cfg.Index.Name, a.logger)
	idx.SetFlushTimeout(a.cfg.Index.FlushTimeout)
	if err := idx.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare index %s: %w", a.cfg.Index.Name, err)
	}
	return idx, nil
}

// reviews returns the review archive, or nil when storage is disabled.
func (a *app) reviews(ctx context.Context) (pipeline.ReviewStore, error) {
	if !a.cfg.Storage.Enabled {
		return nil, nil
	}
	client, err := storage.NewClient(a.cfg.Storage)
	if err != nil {
		return nil, err
	}
	archive := review.NewArchive(client, a.cfg.Storage.Bucket, a.logger)
	if err := archive.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare review bucket: %w", err)
	}
	return archive, nil
}

func (a *app) processor(source catalog.Source, idx *index.Indexer, reviews pipeline.ReviewStore) *pipeline.Processor {
	cfg := a.cfg.Queue
	cfg.Writes = a.cfg.Index.WriteOptions()
	return pipeline.NewProcessor(a.queue, source, idx, a.state, reviews, nil, cfg, a.logger)
}
