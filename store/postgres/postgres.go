// Package postgres opens the ledger store on PostgreSQL through pgx.
//
// Transactions run SERIALIZABLE. A serialization failure (40001) or deadlock
// (40P01) is reported as ledger.ErrConcurrentModification, which the invoice
// ledger already retries.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ShahFaisal5714/agro-crm-nexus/store/sqlstore"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

var Dialect = sqlstore.Dialect{
	Name:                 "postgres",
	Goose:                goose.DialectPostgres,
	NumberedPlaceholders: true,
	TxOptions:            &sql.TxOptions{Isolation: sql.LevelSerializable},
	IsUniqueViolation:    func(err error) bool { return hasCode(err, codeUniqueViolation) },
	IsConflict: func(err error) bool {
		return hasCode(err, codeSerializationFailure) || hasCode(err, codeDeadlockDetected)
	},
}

// Config tunes the connection pool. Zero values keep database/sql defaults.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New connects, pings and migrates.
func New(ctx context.Context, cfg Config) (*sqlstore.Store, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := sqlstore.New(db, Dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
