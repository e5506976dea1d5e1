// Package engine is the caller-scoped facade over the lineage graph and the
// workflow tracker. Every operation takes the caller's user id; records owned
// by anyone else are reported as not found.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"assetline/internal/apperr"
	"assetline/internal/config"
	"assetline/internal/events"
	"assetline/internal/lineage"
	"assetline/internal/logger"
	"assetline/internal/relationship"
	"assetline/internal/repo"
	"assetline/internal/workflow"
)

type Engine struct {
	DB            *sql.DB
	Repo          repo.Repo
	Events        events.Writer
	Lineage       lineage.Store
	Relationships relationship.Service
	Workflows     workflow.Machine
	Config        *config.Config
	Log           *logger.Logger
	Locks         *lineage.KeyedMutex
	Now           func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log *logger.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.NewNop()
	}
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Log:    log.With("component", "engine"),
		Locks:  &lineage.KeyedMutex{},
	}
	return e.WithClock(time.Now)
}

// WithClock returns a copy of e whose components all read time from now.
func (e Engine) WithClock(now func() time.Time) Engine {
	e.Now = now
	e.Events = events.Writer{Now: now}
	e.Lineage = lineage.Store{Repo: e.Repo, Now: now, MaxDepth: e.Config.Lineage.MaxTraversalDepth}
	e.Relationships = relationship.Service{Store: e.Lineage, Events: e.Events, Types: e.Config.RelationshipTypes()}
	e.Workflows = workflow.Machine{
		Repo:            e.Repo,
		Events:          e.Events,
		Relationships:   e.Relationships,
		DefaultPriority: e.Config.Workflows.DefaultPriority,
		Now:             now,
	}
	return e
}

func requireCaller(userID string) error {
	if userID == "" {
		return apperr.New(apperr.KindUnauthenticated, "caller identity required")
	}
	return nil
}

// write runs fn in an immediate transaction while holding the given lock
// keys. Locks are taken before BEGIN so a waiting goroutine never holds the
// database write lock.
func (e Engine) write(ctx context.Context, op string, keys []string, fn func(tx *sql.Tx) error) error {
	if e.Locks != nil && len(keys) > 0 {
		unlock := e.Locks.Lock(keys...)
		defer unlock()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return e.normalize(op, err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return e.normalize(op, err)
	}
	if err := tx.Commit(); err != nil {
		return e.normalize(op, err)
	}
	return nil
}

// read runs fn in a read-only transaction so every query sees one snapshot.
func (e Engine) read(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return e.normalize(op, err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return e.normalize(op, err)
	}
	return nil
}

func (e Engine) normalize(op string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		var ae *apperr.Error
		if !errors.As(err, &ae) {
			return apperr.NotFound("not found")
		}
	}
	out := apperr.Database(err, op)
	switch apperr.KindOf(out) {
	case apperr.KindDatabase, apperr.KindInternal, apperr.KindStorage:
		if e.Log == nil {
			break
		}
		e.Log.Error("operation failed", "op", op, "error", err)
	}
	return out
}
