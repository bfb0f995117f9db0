package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cultivarhq/trace-sync-server/internal/config"
	"github.com/cultivarhq/trace-sync-server/internal/db"
	"github.com/cultivarhq/trace-sync-server/internal/store"
	"github.com/cultivarhq/trace-sync-server/internal/store/postgres"
	synceng "github.com/cultivarhq/trace-sync-server/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass and exit",
	Long: `Run one full sync pass for every sync-enabled site of an organization,
or for a single site, then exit. Useful for cron-driven deployments and for
operator-triggered reconciliation.

Examples:
  # Sync everything for an organization
  cts-trace-api sync --config config.yaml --organization-id 3f0c...

  # Sync only waste reconciliation for one site
  cts-trace-api sync --config config.yaml --organization-id 3f0c... \
      --site-id 9a1e... --types waste`,
	RunE: runSyncCmd,
}

func init() {
	syncCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	syncCmd.Flags().String("organization-id", "", "Organization to sync (required)")
	syncCmd.Flags().String("site-id", "", "Restrict to a single site")
	syncCmd.Flags().StringSlice("types", nil,
		"Sync types to run (strains, batches, harvests, packages, labtests, waste, transfers); default all")

	for _, name := range []string{"config", "organization-id"} {
		if err := syncCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
}

func runSyncCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	orgStr, err := cmd.Flags().GetString("organization-id")
	if err != nil {
		return fmt.Errorf("failed to get organization-id flag: %w", err)
	}
	orgID, err := uuid.Parse(orgStr)
	if err != nil {
		return fmt.Errorf("organization-id must be a valid UUID: %w", err)
	}

	types, err := parseSyncTypes(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database == nil {
		return fmt.Errorf("database configuration is required")
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	engine := synceng.NewEngine(postgres.New(conn.Pool),
		synceng.WithClientFactory(ledgerClientFactory(cfg)))

	results, err := runRequestedSyncs(ctx, cmd, engine, orgID, types)
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	fmt.Println(string(output))

	for _, result := range results {
		if !result.Success {
			os.Exit(1)
		}
	}
	return nil
}

func parseSyncTypes(cmd *cobra.Command) ([]store.SyncType, error) {
	names, err := cmd.Flags().GetStringSlice("types")
	if err != nil {
		return nil, fmt.Errorf("failed to get types flag: %w", err)
	}
	if len(names) == 0 {
		return []store.SyncType{
			store.SyncTypeStrains, store.SyncTypeBatches, store.SyncTypeHarvests,
			store.SyncTypePackages, store.SyncTypeLabTests, store.SyncTypeWaste,
			store.SyncTypeTransfers,
		}, nil
	}

	types := make([]store.SyncType, 0, len(names))
	for _, name := range names {
		t := store.SyncType(name)
		if !t.Valid() {
			return nil, fmt.Errorf("unknown sync type %q", name)
		}
		types = append(types, t)
	}
	return types, nil
}

func runRequestedSyncs(
	ctx context.Context,
	cmd *cobra.Command,
	engine *synceng.Engine,
	orgID uuid.UUID,
	types []store.SyncType,
) (map[uuid.UUID]*synceng.Result, error) {
	siteStr, err := cmd.Flags().GetString("site-id")
	if err != nil {
		return nil, fmt.Errorf("failed to get site-id flag: %w", err)
	}

	if siteStr == "" {
		return engine.RunAll(ctx, orgID, uuid.Nil, types), nil
	}

	siteID, err := uuid.Parse(siteStr)
	if err != nil {
		return nil, fmt.Errorf("site-id must be a valid UUID: %w", err)
	}

	results := make(map[uuid.UUID]*synceng.Result, 1)
	merged := &synceng.Result{Success: true}
	for _, t := range types {
		r := engine.RunSync(ctx, synceng.Request{
			Type:           t,
			SiteID:         siteID,
			OrganizationID: orgID,
			ActorID:        uuid.Nil,
		})
		merged.Success = merged.Success && r.Success
		merged.Created += r.Created
		merged.Updated += r.Updated
		merged.Errors = append(merged.Errors, r.Errors...)
		merged.Warnings = append(merged.Warnings, r.Warnings...)
		merged.CreatedIDs = append(merged.CreatedIDs, r.CreatedIDs...)
	}
	results[siteID] = merged
	return results, nil
}
