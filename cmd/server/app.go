package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/seo401b/new-Allert/config"
	"github.com/seo401b/new-Allert/internal/domain"
	"github.com/seo401b/new-Allert/internal/infrastructure/cache"
	"github.com/seo401b/new-Allert/internal/infrastructure/catalog"
	"github.com/seo401b/new-Allert/internal/infrastructure/gemini"
	"github.com/seo401b/new-Allert/internal/infrastructure/metrics"
	"github.com/seo401b/new-Allert/internal/logging"
	"github.com/seo401b/new-Allert/internal/usecase"
)

// app is the wired object graph shared by serve and resolve
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	catalog  []domain.CatalogRow
	preparer *gemini.ImagePreparer
	service  *usecase.ResolutionService
	recorder *metrics.Recorder

	closers []io.Closer
}

func newLogger(cfg config.LogConfig, out io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{Level: cfg.Level, Format: cfg.Format, Output: out})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(logger)
	return logger, nil
}

// buildApp loads the catalog snapshot and wires every collaborator
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, recorder: metrics.NewRecorder()}

	rows, err := loadCatalog(ctx, cfg.Catalog, logger)
	if err != nil {
		return nil, err
	}
	a.catalog = rows

	imageCache := cache.NewMemoryCache(cache.Options{MaxEntries: cfg.Image.CacheMaxEntries})
	a.closers = append(a.closers, imageCache)

	a.preparer = gemini.NewImagePreparer(gemini.ImageOptions{
		MaxDimension: cfg.Image.MaxDimension,
		JPEGQuality:  cfg.Image.JPEGQuality,
	})
	fetcher := gemini.NewImageFetcher(imageCache, a.preparer, gemini.FetcherConfig{
		Timeout:  cfg.Image.FetchTimeout,
		MaxBytes: cfg.Image.MaxFetchBytes,
		CacheTTL: cfg.Image.CacheTTL,
		Logger:   logger,
	})

	client := gemini.NewClient(gemini.Config{
		APIKey:            cfg.Gemini.APIKey,
		BaseURL:           cfg.Gemini.BaseURL,
		Model:             cfg.Gemini.Model,
		Timeout:           cfg.Gemini.Timeout,
		RequestsPerSecond: cfg.Gemini.RequestsPerSecond,
		Burst:             cfg.Gemini.Burst,
		Logger:            logger,
	})

	a.service = usecase.NewResolutionService(
		gemini.NewExtractor(client),
		gemini.NewRefiner(client),
		gemini.NewVerifier(client, fetcher),
		gemini.NewSelector(client),
		usecase.ResolutionConfig{
			TopN:                    cfg.Resolution.TopN,
			RefineCount:             cfg.Resolution.RefineCount,
			ExtractPolicy:           usecase.RetryPolicy{MaxAttempts: cfg.Resolution.ExtractAttempts},
			RefinePolicy:            usecase.RetryPolicy{MaxAttempts: cfg.Resolution.RefineAttempts},
			SelectPolicy:            usecase.RetryPolicy{MaxAttempts: cfg.Resolution.SelectAttempts, Delay: cfg.Resolution.SelectDelay},
			MaxConcurrentDetections: cfg.Resolution.MaxConcurrentDetections,
			DetectionTimeout:        cfg.Resolution.DetectionTimeout,
			Logger:                  logger,
			Observer:                a.recorder,
		},
	)

	logger.Info("application wired",
		"catalog_source", cfg.Catalog.Source,
		"catalog_rows", len(rows),
		"model", cfg.Gemini.Model,
		"max_concurrent_detections", cfg.Resolution.MaxConcurrentDetections,
	)

	return a, nil
}

// loadCatalog reads the snapshot once from the configured source
func loadCatalog(ctx context.Context, cfg config.CatalogConfig, logger *slog.Logger) ([]domain.CatalogRow, error) {
	columns := catalog.Columns{Name: cfg.NameColumn, Image: cfg.ImageColumn}

	switch cfg.Source {
	case "csv":
		source := catalog.NewCSVSource(catalog.CSVConfig{
			Path:     cfg.Path,
			Columns:  columns,
			Encoding: cfg.Encoding,
			Logger:   logger,
		})
		return source.Load(ctx)
	case "xlsx":
		source := catalog.NewXLSXSource(catalog.XLSXConfig{
			Path:    cfg.Path,
			Sheet:   cfg.Sheet,
			Columns: columns,
			Logger:  logger,
		})
		return source.Load(ctx)
	case "sql":
		db, err := catalog.OpenDB(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		// The snapshot is read once, so the pool is not needed afterwards
		defer db.Close()

		source, err := catalog.NewSQLSource(db, catalog.SQLConfig{
			Table:       cfg.Table,
			OrderColumn: cfg.OrderColumn,
			Columns:     columns,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return source.Load(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown catalog source %q", domain.ErrCatalogLoadFailure, cfg.Source)
	}
}

// Close releases background resources
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
