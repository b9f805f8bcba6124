// Package store persists balances, tournaments and hand settlements in
// sqlite, and hand checkpoints in memory or redis.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRegistrationClosed  = errors.New("registration closed")
	ErrTournamentFull      = errors.New("tournament full")
	ErrAlreadyRegistered   = errors.New("already registered")
	ErrNotRegistered       = errors.New("not registered")
)

// Store wraps the sqlite database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
	manual bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// SkipMigrations leaves migrations to an explicit Migrate call.
func SkipMigrations() Option {
	return func(s *Store) { s.manual = true }
}

// Open opens (creating if needed) the sqlite database at path and applies
// pending migrations. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string, logger zerolog.Logger, opts ...Option) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	// sqlite serialises writers anyway; one connection keeps :memory: databases whole
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.manual {
		return s, nil
	}
	if _, err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func scanTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
