package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades a catalog from version-1 to version.
type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations run in order on catalogs whose user_version is below theirs.
var migrations = []migration{
	{1, "index plans by spec hash", []string{
		`CREATE INDEX IF NOT EXISTS idx_plans_spec_hash ON plans(spec_hash)`,
	}},
	{2, "index plans by stencil and mode", []string{
		`CREATE INDEX IF NOT EXISTS idx_plans_stencil_mode ON plans(stencil, mode)`,
	}},
}

// SchemaVersion is the user_version of a fully migrated catalog.
var SchemaVersion = migrations[len(migrations)-1].version

const defaultBusyTimeout = 5 * time.Second

// Store is the plan catalog.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

type config struct {
	logger      *slog.Logger
	busyTimeout time.Duration
}

// Option configures Open.
type Option func(*config)

// WithLogger sets the logger migrations are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithBusyTimeout sets how long a statement waits on a locked catalog.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) { c.busyTimeout = d }
}

// Open creates or opens the catalog at path, configures the connection and
// brings the schema up to SchemaVersion. Opening a catalog twice is safe.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{logger: slog.Default(), busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	// One connection: SQLite has a single writer, and :memory: catalogs
	// exist per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: cfg.logger.With("catalog", path)}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect catalog %s: %w", path, err)
	}
	if err := s.configure(ctx, cfg, path == ":memory:"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the catalog.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// pragma is one connection setting and the value SQLite reports once it
// took effect.
type pragma struct {
	name, value, want string
}

func pragmas(cfg config, memory bool) []pragma {
	ms := cfg.busyTimeout.Milliseconds()
	ps := []pragma{
		{"synchronous", "NORMAL", "1"},
		{"busy_timeout", fmt.Sprint(ms), fmt.Sprint(ms)},
		{"foreign_keys", "ON", "1"},
	}
	if !memory {
		ps = append([]pragma{{"journal_mode", "WAL", "wal"}}, ps...)
	}
	return ps
}

// configure applies and verifies the connection pragmas.
func (s *Store) configure(ctx context.Context, cfg config, memory bool) error {
	for _, p := range pragmas(cfg, memory) {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("set pragma %s: %w", p.name, err)
		}
		got, err := s.pragma(ctx, p.name)
		if err != nil {
			return err
		}
		if !strings.EqualFold(got, p.want) {
			return fmt.Errorf("pragma %s = %q, want %q", p.name, got, p.want)
		}
	}
	return nil
}

func (s *Store) pragma(ctx context.Context, name string) (string, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}

// Version returns the catalog's schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// migrate applies every pending migration, each in its own transaction
// together with the version bump.
func (s *Store) migrate(ctx context.Context) error {
	current, err := s.Version(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		for _, stmt := range append(m.stmts, fmt.Sprintf("PRAGMA user_version = %d", m.version)) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		s.logger.Debug("catalog migrated", "version", m.version, "step", m.name)
		current = m.version
	}
	return nil
}
