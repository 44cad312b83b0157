package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"servicehub/internal/config"
	"servicehub/internal/engine/auth"
	"servicehub/internal/events"
	"servicehub/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Now    func() time.Time
	Log    zerolog.Logger

	locks *keyedMutex
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Now:    time.Now,
		Log:    zerolog.Nop(),
		locks:  newKeyedMutex(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// fallbackLocks serializes engines built without New.
var fallbackLocks = newKeyedMutex()

// lockRequest serializes load, transition and save for one request id
// within this process.
func (e Engine) lockRequest(id string) func() {
	if e.locks == nil {
		return fallbackLocks.Lock(id)
	}
	return e.locks.Lock(id)
}

// inTx runs fn in one write transaction and commits when it succeeds.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, kind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, tx, evtType, kind, entityID, actorID, payload)
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
