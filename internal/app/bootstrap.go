package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"graphtrack/api/internal/config"
	"graphtrack/api/internal/export"
	"graphtrack/api/internal/reports"
	"graphtrack/api/internal/search"
	"graphtrack/api/internal/store"
)

// Runtime is a wired Service plus the resources it owns.
type Runtime struct {
	Service *Service
	Store   *store.GraphStore
	DB      *sql.DB
	closers []func() error
}

// Bootstrap connects the configured store, optionally applies migrations and
// attaches whichever of search, report retention and export upload is
// configured. Optional backends that fail to start are logged and skipped.
func Bootstrap(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialect, err := store.ParseDialect(cfg.Store)
	if err != nil {
		return nil, err
	}
	dsn := cfg.DatabaseURL
	if dialect == store.DialectSQLite {
		dsn = cfg.SQLitePath
	}
	db, err := store.Connect(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s store: %w", dialect, err)
	}
	rt := &Runtime{DB: db, closers: []func() error{db.Close}}

	if migrate {
		if err := store.ApplyMigrations(ctx, db, dialect, cfg.MigrationsPath(string(dialect))); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	rt.Store = store.NewGraphStore(db, dialect)

	opts := Options{MaxCycles: cfg.MaxCycles}
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		rt.closers = append(rt.closers, func() error { meili.Close(); return nil })
		opts.Index = meili
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		retained, err := reports.NewRedisStore(cfg.RedisURL, cfg.ReportTTL)
		if err != nil {
			logger.Warn("report retention disabled", "error", err)
		} else {
			rt.closers = append(rt.closers, retained.Close)
			opts.Reports = retained
		}
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		uploader, err := export.NewMinioUploader(ctx, export.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Warn("export upload disabled", "error", err)
		} else {
			opts.Uploader = uploader
		}
	}

	rt.Service = New(rt.Store, opts)
	logger.Info("store ready",
		"dialect", dialect,
		"search_index", opts.Index != nil,
		"report_retention", opts.Reports != nil,
		"export_upload", opts.Uploader != nil,
	)
	return rt, nil
}

// Close waits for background index updates, then releases resources in
// reverse order of acquisition.
func (r *Runtime) Close() error {
	if r.Service != nil {
		r.Service.Wait()
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
