/*
main.go - Application entry point

PURPOSE:
  Builds the ledgerd command tree. "serve" runs the HTTP API and the
  background reconciler; the other subcommands are operator tools that
  share the same configuration and store.

COMMANDS:
  serve             HTTP server with graceful shutdown
  migrate           Apply schema migrations and exit
  reconcile         Run one reconciliation pass and print the result
  import-payments   Bulk import dealer payments from a CSV file
  token             Issue a bearer token for a user id

CONFIGURATION:
  Environment (and .env), see config/config.go. Flags on the root command
  override the environment:
    --port, --db-driver, --db-path, --database-url

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reconciliation scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ledgerd serve --db-path=./data/ledger.db

  # Run against Postgres
  DB_DRIVER=postgres DATABASE_URL=postgres://... ledgerd serve

  # Mint a token for local testing
  ledgerd token --user=u-42 --ttl=24h

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment variables
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShahFaisal5714/agro-crm-nexus/api"
	"github.com/ShahFaisal5714/agro-crm-nexus/config"
	"github.com/ShahFaisal5714/agro-crm-nexus/logger"
	"github.com/ShahFaisal5714/agro-crm-nexus/store/postgres"
	"github.com/ShahFaisal5714/agro-crm-nexus/store/sqlite"
	"github.com/ShahFaisal5714/agro-crm-nexus/store/sqlstore"
)

var version = "0.1.0"

// app carries what every subcommand needs after PersistentPreRunE.
type app struct {
	cfg        *config.Config
	closeLog   func() error
	port       string
	dbDriver   string
	dbPath     string
	dbURL      string
	dbMaxConns int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		cmdLog := logger.WithComponent("cmd")
		cmdLog.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "ledgerd",
		Short:         "Dealer, supplier, invoice and cash ledgers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.port, "port", "", "HTTP server port (overrides PORT)")
	flags.StringVar(&a.dbDriver, "db-driver", "", "sqlite or postgres (overrides DB_DRIVER)")
	flags.StringVar(&a.dbPath, "db-path", "", "SQLite database path, \":memory:\" for in-memory (overrides DB_PATH)")
	flags.StringVar(&a.dbURL, "database-url", "", "Postgres connection string (overrides DATABASE_URL)")
	flags.IntVar(&a.dbMaxConns, "db-max-conns", 10, "Postgres pool size")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newReconcileCmd(a),
		newImportCmd(a),
		newTokenCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.port != "" {
		cfg.Port = a.port
	}
	if a.dbDriver != "" {
		cfg.DBDriver = a.dbDriver
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.dbURL != "" {
		cfg.DatabaseURL = a.dbURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	closeLog, err := logger.Setup(cfg.GetLoggerConfig())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.closeLog = closeLog
	return nil
}

// openStore opens the configured database and applies migrations.
func (a *app) openStore(ctx context.Context) (*sqlstore.Store, error) {
	switch a.cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.New(ctx, postgres.Config{
			DSN:             a.cfg.DatabaseURL,
			MaxOpenConns:    a.dbMaxConns,
			MaxIdleConns:    a.dbMaxConns / 2,
			ConnMaxLifetime: 30 * time.Minute,
		})
	default:
		return sqlite.New(ctx, a.cfg.DBPath)
	}
}

func (a *app) handler(store *sqlstore.Store) *api.Handler {
	h := api.NewHandler(store, a.cfg.LedgerOptions())
	h.Scheduler.CheckInterval = a.cfg.ReconcileInterval
	h.Scheduler.Enabled = a.cfg.ReconcileInterval > 0
	return h
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	log := logger.WithComponent("server")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	handler := a.handler(store)
	handler.Scheduler.Start(ctx)
	defer handler.Scheduler.Stop()

	auth := api.Authenticator{Secret: []byte(a.cfg.JWTSecret)}
	if a.cfg.AuthDisabled {
		auth.DevUser = a.cfg.DevUser
		log.Warn().Str("user", a.cfg.DevUser).Msg("authentication disabled, all requests run as the dev user")
	}

	server := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      api.NewRouter(handler, auth, a.cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("driver", a.cfg.DBDriver).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	handler.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
