package app

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"servicehub/internal/config"
	"servicehub/internal/db"
	"servicehub/internal/engine"
	"servicehub/internal/logger"
	"servicehub/internal/migrate"
)

// Workspace is an opened, migrated servicehub workspace.
type Workspace struct {
	Dir    string
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
	Log    zerolog.Logger
}

// Options override what the config file says.
type Options struct {
	Workspace string
	LogLevel  string
	LogFormat string
	LogOut    io.Writer
}

// Open loads servicehub.yml (defaults when missing), opens and migrates the
// database and wires the engine with a logger.
func Open(opts Options) (*Workspace, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("servicehub")
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Out: opts.LogOut})

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %w", db.Path(opts.Workspace), err)
	}
	eng := engine.New(conn, cfg)
	eng.Log = log
	log.Debug().Str("db", db.Path(opts.Workspace)).Msg("workspace opened")
	return &Workspace{Dir: opts.Workspace, Config: cfg, DB: conn, Engine: eng, Log: log}, nil
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}
