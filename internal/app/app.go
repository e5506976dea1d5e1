// Package app opens a workspace: database, migrations, config, logger and
// engine, in that order.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/engine"
	"assetline/internal/logger"
	"assetline/internal/migrate"
)

type Options struct {
	// LogMode overrides log.mode from the config file when set.
	LogMode string
	// Quiet discards all log output.
	Quiet bool
}

type Runtime struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Log       *logger.Logger
	Engine    engine.Engine
}

// Open prepares the workspace for use. The config file is optional; a
// missing assetline.yml means defaults.
func Open(ctx context.Context, workspace string, opts Options) (*Runtime, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg, opts)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Runtime{
		Workspace: workspace,
		DB:        conn,
		Config:    cfg,
		Log:       log,
		Engine:    engine.New(conn, cfg, log),
	}, nil
}

func newLogger(cfg *config.Config, opts Options) (*logger.Logger, error) {
	if opts.Quiet {
		return logger.NewNop(), nil
	}
	mode := cfg.Log.Mode
	if opts.LogMode != "" {
		mode = opts.LogMode
	}
	return logger.New(logger.Options{Mode: mode, HashUserIDs: cfg.Log.HashUserIDs})
}

func (r *Runtime) Close() error {
	r.Log.Sync()
	return r.DB.Close()
}
