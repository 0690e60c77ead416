/*
Package sqlstore implements ledger.Store over database/sql.

PURPOSE:
  One implementation of every ledger table for both SQLite and PostgreSQL.
  The driver packages (store/sqlite, store/postgres) open the connection and
  supply a Dialect; everything else (queries, scanning, transactions,
  migrations) lives here.

INTERFACES IMPLEMENTED:
  ledger.Store:    every ledger table
  ledger.TxStore:  WithTx over sql.Tx
  ledger.RunStore: reconciliation run history

STORAGE FORMAT:
  - Amounts are decimal strings (never REAL) so no precision is lost
  - Business dates are YYYY-MM-DD text
  - Timestamps are fixed-width UTC text, so ORDER BY created_at is correct
    on both engines

CONCURRENCY:
  SQLite: a single open connection plus a process mutex serializes writers,
  as SQLite itself only admits one. PostgreSQL: no process lock; WithTx runs
  SERIALIZABLE and serialization failures surface as
  ledger.ErrConcurrentModification so the invoice ledger retries them.

  Inside WithTx the callback gets a view bound to the sql.Tx that never
  touches the mutex, so nested store calls cannot deadlock.

MIGRATIONS:
  Versioned SQL files under migrations/, embedded and applied with goose.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ShahFaisal5714/agro-crm-nexus/ledger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// =============================================================================
// DIALECT
// =============================================================================

// Dialect captures what differs between engines.
type Dialect struct {
	Name  string
	Goose goose.Dialect

	// NumberedPlaceholders rewrites ? to $1, $2, ...
	NumberedPlaceholders bool

	// SerializeWrites guards writes and transactions with a process mutex.
	SerializeWrites bool

	TxOptions *sql.TxOptions

	IsUniqueViolation func(error) bool

	// IsConflict reports transaction conflicts that are safe to retry.
	IsConflict func(error) bool
}

// =============================================================================
// STORE
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      *sync.RWMutex
	q       querier
	inTx    bool
	log     zerolog.Logger
}

// New wraps an open database. Call Migrate before first use.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		mu:      &sync.RWMutex{},
		q:       db,
		log:     log.Logger.With().Str("component", "sqlstore").Str("dialect", dialect.Name).Logger(),
	}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Migrate applies every pending migration.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(s.dialect.Goose, s.db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	for _, r := range results {
		s.log.Info().Int64("version", r.Source.Version).Dur("took", r.Duration).Msg("migration applied")
	}
	return nil
}

func (s *Store) lock() func() {
	if s.inTx || !s.dialect.SerializeWrites {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if s.inTx || !s.dialect.SerializeWrites {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// =============================================================================
// TRANSACTIONS (ledger.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	defer s.lock()()

	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	view := &Store{db: s.db, dialect: s.dialect, mu: s.mu, q: tx, inTx: true, log: s.log}
	if err := fn(view); err != nil {
		return s.conflict(err)
	}
	return s.conflict(tx.Commit())
}

// atomically runs fn in the current transaction, or a fresh one.
func (s *Store) atomically(ctx context.Context, fn func(q querier) error) error {
	if s.inTx {
		return fn(s.q)
	}
	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return s.conflict(err)
	}
	return s.conflict(tx.Commit())
}

// conflict maps retryable engine conflicts to ErrConcurrentModification.
func (s *Store) conflict(err error) error {
	if err == nil || errors.Is(err, ledger.ErrConcurrentModification) {
		return err
	}
	if s.dialect.IsConflict != nil && s.dialect.IsConflict(err) {
		return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
	}
	return err
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

func (s *Store) rebind(query string) string {
	if !s.dialect.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	res, err := q.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.classify(err)
	}
	return res, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.classify(err)
	}
	return rows, nil
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *Store) classify(err error) error {
	if s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ledger.ErrDuplicate, err)
	}
	return s.conflict(err)
}

// mustAffect turns a zero-row update or delete into ErrNotFound.
func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// where joins equality predicates; empty values are skipped.
type where struct {
	clauses []string
	args    []any
}

func (w *where) eq(column, value string) {
	if value == "" {
		return
	}
	w.clauses = append(w.clauses, column+" = ?")
	w.args = append(w.args, value)
}

func (w *where) cmp(column, op, value string) {
	if value == "" {
		return
	}
	w.clauses = append(w.clauses, column+" "+op+" ?")
	w.args = append(w.args, value)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// =============================================================================
// ENCODING
// =============================================================================

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func now() time.Time { return time.Now().UTC() }

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// decoder parses stored text, keeping the first failure.
type decoder struct {
	err error
}

func (d *decoder) amount(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("bad amount %q: %w", s, err)
	}
	return v
}

func (d *decoder) date(s string) ledger.Date {
	if s == "" {
		return ledger.Date{}
	}
	v, err := ledger.ParseDate(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("bad date %q: %w", s, err)
	}
	return v
}

func (d *decoder) time(s string) time.Time {
	v, err := time.Parse(timeLayout, s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return v
}
