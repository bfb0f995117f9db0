package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cultivarhq/trace-sync-server/internal/api"
	"github.com/cultivarhq/trace-sync-server/internal/config"
	"github.com/cultivarhq/trace-sync-server/internal/db"
	"github.com/cultivarhq/trace-sync-server/internal/ledger"
	"github.com/cultivarhq/trace-sync-server/internal/store"
	"github.com/cultivarhq/trace-sync-server/internal/store/postgres"
	synceng "github.com/cultivarhq/trace-sync-server/internal/sync"
	"github.com/cultivarhq/trace-sync-server/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trace sync API server",
	Long: `Start the trace sync API server.

The server requires a configuration file (--config) that specifies:
- The listen address and timeouts
- Database connection parameters
- External ledger timeouts and retry policy
- Scheduled sync interval (optional)

Per-site ledger credentials live in the database, not in the config file.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 60 * time.Second // Triggered syncs call the external ledger inline
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		slog.Error("Failed to bind config flag", "error", err)
		os.Exit(1)
	}
	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"server", cfg.GetServerName(),
		"address", cfg.Server.Address)

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	st := postgres.New(conn.Pool)
	metrics := telemetry.NewMetrics()

	engineOpts := []synceng.EngineOption{
		synceng.WithMetrics(metrics.Sync),
		synceng.WithClientFactory(ledgerClientFactory(cfg)),
	}
	if cfg.Sync.MaxReconcileAttempts > 0 {
		engineOpts = append(engineOpts, synceng.WithMaxReconcileAttempts(cfg.Sync.MaxReconcileAttempts))
	}
	engine := synceng.NewEngine(st, engineOpts...)

	router := api.NewServer(engine, st,
		api.WithMetrics(metrics),
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		IdleTimeout:  serverIdleTimeout,
	}

	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	if interval, ok := cfg.GetSyncInterval(); ok {
		go runScheduledSyncs(schedulerCtx, engine, cfg.GetSyncOrganizationID(), interval)
	}

	go func() {
		slog.Info("Server listening", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}

// ledgerClientFactory builds per-site ledger clients carrying the configured
// timeout and retry policy.
func ledgerClientFactory(cfg *config.Config) synceng.ClientFactory {
	timeout := cfg.GetLedgerTimeout()
	maxTries := cfg.Ledger.MaxTries
	return func(creds ledger.Credentials) *ledger.Client {
		opts := []ledger.Option{ledger.WithTimeout(timeout)}
		if maxTries > 0 {
			opts = append(opts, ledger.WithMaxTries(uint(maxTries))) // #nosec G115 -- validated non-negative
		}
		return ledger.New(creds, opts...)
	}
}

// runScheduledSyncs runs a full sync pass for every sync-enabled site of the
// configured organization on each tick. Scheduled passes run as the system
// actor (the nil UUID).
func runScheduledSyncs(ctx context.Context, engine *synceng.Engine, orgID uuid.UUID, interval time.Duration) {
	slog.Info("Scheduled syncs enabled", "organization_id", orgID, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	types := []store.SyncType{
		store.SyncTypeStrains, store.SyncTypeBatches, store.SyncTypeHarvests,
		store.SyncTypePackages, store.SyncTypeLabTests, store.SyncTypeWaste,
		store.SyncTypeTransfers,
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduled syncs stopped")
			return
		case <-ticker.C:
			results := engine.RunAll(ctx, orgID, uuid.Nil, types)
			for siteID, result := range results {
				if !result.Success {
					slog.Warn("Scheduled sync pass reported failures",
						"site_id", siteID,
						"errors", result.Errors)
				}
			}
		}
	}
}
