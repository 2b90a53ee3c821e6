// Package storage opens the configured backend and returns its repositories.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"

	"github.com/and161185/sleep-keeper/internal/migrate"
	"github.com/and161185/sleep-keeper/internal/repository"
	"github.com/and161185/sleep-keeper/internal/repository/postgres"
	"github.com/and161185/sleep-keeper/internal/repository/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects a backend. Path is used by sqlite, DSN by postgres.
type Config struct {
	Driver string
	Path   string
	DSN    string
}

// Store bundles the repositories of one backend.
type Store struct {
	Settings repository.SettingsRepository
	Plans    repository.PlanRepository
	close    func() error
}

// Close releases the backend.
func (s *Store) Close() error { return s.close() }

// DefaultDir is the per-user data directory.
func DefaultDir() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "sleepkeeper")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "sleepkeeper")
}

// Open connects to the backend and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		if cfg.Path == "" {
			cfg.Path = filepath.Join(DefaultDir(), "sleep.db")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, err
		}
		db, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := migrate.Up(ctx, db.SQL, goose.DialectSQLite3); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return &Store{
			Settings: sqlite.NewSettingsRepo(db),
			Plans:    sqlite.NewPlanRepo(db),
			close:    db.Close,
		}, nil

	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres: empty dsn")
		}
		if err := migrate.UpPostgres(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &Store{
			Settings: postgres.NewSettingsRepo(db),
			Plans:    postgres.NewPlanRepo(db),
			close:    func() error { db.Close(); return nil },
		}, nil

	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}
