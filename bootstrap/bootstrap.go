// Package bootstrap wires the repository adapters to the schedule and apply
// engines for one command-line run.
package bootstrap

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/modreg/adapters/clock"
	"github.com/artpar/modreg/adapters/filestore"
	"github.com/artpar/modreg/adapters/idgen"
	"github.com/artpar/modreg/adapters/lock"
	"github.com/artpar/modreg/adapters/metrics"
	"github.com/artpar/modreg/adapters/sqlite"
	"github.com/artpar/modreg/config"
	"github.com/artpar/modreg/core/apply"
	"github.com/artpar/modreg/core/registry"
	"github.com/artpar/modreg/core/schedule"
)

// App holds the wired components of one run.
type App struct {
	Logger  zerolog.Logger
	Config  *config.Config
	Metrics *metrics.Collector

	Registry  *registry.Store
	Schemas   *filestore.SchemaDir
	Data      *filestore.DataDir
	Scheduler *schedule.Manager
	Engine    *apply.Engine

	db *sqlite.DB
}

// New opens the repository described by cfg. Log output goes to out.
func New(cfg *config.Config, out io.Writer) (*App, error) {
	logger := NewLogger(cfg.Logging, out)

	for _, dir := range []string{cfg.Repository.SchemasDir, cfg.Repository.DataDir, filepath.Dir(cfg.Registry.File)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create repository directory: %w", err)
		}
	}

	db, err := sqlite.Open(cfg.Replay.DSN)
	if err != nil {
		return nil, fmt.Errorf("open replay index: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate replay index: %w", err)
	}

	a := &App{
		Logger:   logger,
		Config:   cfg,
		Metrics:  metrics.New(),
		Registry: registry.NewStore(cfg.Registry.File, lock.NewFile(cfg.Lock.File)),
		Schemas:  filestore.NewSchemaDir(cfg.Repository.SchemasDir),
		Data:     filestore.NewDataDir(cfg.Repository.DataDir),
		db:       db,
	}
	a.Scheduler = schedule.NewManager(a.Registry, a.Schemas, sqlite.NewReplayIndex(db), clock.Real{}, a.Metrics, logger)
	a.Engine = apply.NewEngine(a.Registry, a.Schemas, a.Data, idgen.UUID{}, a.Metrics, logger)

	logger.Debug().
		Str("registry", cfg.Registry.File).
		Str("schemas", cfg.Repository.SchemasDir).
		Str("data", cfg.Repository.DataDir).
		Msg("repository opened")
	return a, nil
}

// Close exports metrics when a textfile is configured and releases the
// replay index.
func (a *App) Close() error {
	var exportErr error
	if path := a.Config.Metrics.Textfile; path != "" {
		if exportErr = a.Metrics.WriteTextfile(path); exportErr != nil {
			a.Logger.Warn().Err(exportErr).Str("path", path).Msg("failed to write metrics textfile")
		}
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close replay index: %w", err)
	}
	return exportErr
}

// NewLogger builds the process logger from the logging configuration.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
