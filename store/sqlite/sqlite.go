/*
Package sqlite opens the ledger store on SQLite.

PURPOSE:
  Single-file deployments and tests. All queries live in store/sqlstore;
  this package only opens the database and describes the SQLite dialect.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

CONCURRENCY:
  One open connection, and writes are serialized in process. SQLITE_BUSY
  and SQLITE_LOCKED surface as ledger.ErrConcurrentModification.

USAGE:
  store, err := sqlite.New(ctx, "./data/ledger.db")
  if err != nil {
      log.Fatal().Err(err).Msg("open store")
  }
  defer store.Close()

SEE ALSO:
  - store/sqlstore: queries and migrations
  - store/postgres: the PostgreSQL variant
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/ShahFaisal5714/agro-crm-nexus/store/sqlstore"
)

// Dialect describes SQLite to sqlstore.
var Dialect = sqlstore.Dialect{
	Name:              "sqlite",
	Goose:             goose.DialectSQLite3,
	SerializeWrites:   true,
	IsUniqueViolation: isUniqueConstraintError,
	IsConflict:        isBusyError,
}

// New opens (creating if needed) the database at path and applies
// migrations. Use ":memory:" for an in-memory database.
func New(ctx context.Context, path string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would be a different database.
	db.SetMaxOpenConns(1)

	store := sqlstore.New(db, Dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func isBusyError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
