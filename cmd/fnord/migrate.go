package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ananasregina/fnord/internal/config"
	"github.com/ananasregina/fnord/internal/migrate"
)

var (
	migrateFrom    string
	migrateTo      string
	migrateFromDSN string
	migrateToDSN   string
	migrateBatch   int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy all sightings from one backend to another, preserving ids",
	Long: `Copy all sightings from one backend to another. Identifiers survive
the move, gaps included. Records already present in the destination are
skipped, so an interrupted migration can be rerun safely.

Examples:
  fnord migrate --from sqlite --from-dsn ~/.config/fnord/fnord.db \
      --to postgres --to-dsn postgres://localhost/fnord`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFrom, "from", config.BackendSQLite, "source backend (sqlite or postgres)")
	migrateCmd.Flags().StringVar(&migrateTo, "to", config.BackendPostgres, "destination backend (sqlite or postgres)")
	migrateCmd.Flags().StringVar(&migrateFromDSN, "from-dsn", "", "source database path or URL (default from config)")
	migrateCmd.Flags().StringVar(&migrateToDSN, "to-dsn", "", "destination database path or URL (default from config)")
	migrateCmd.Flags().IntVar(&migrateBatch, "batch", 0, "records per batch (default: page size)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)
	embedder := newEmbedder(cfg)

	src, err := openStore(ctx, withDSN(cfg, migrateFrom, migrateFromDSN), migrateFrom, embedder, log)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	dst, err := openStore(ctx, withDSN(cfg, migrateTo, migrateToDSN), migrateTo, embedder, log)
	if err != nil {
		return fmt.Errorf("opening destination: %w", err)
	}
	defer dst.Close()

	batch := migrateBatch
	if batch <= 0 {
		batch = cfg.PageSize
	}

	stats, err := migrate.Run(ctx, src, dst, batch, log)
	if err != nil {
		return err
	}
	fmt.Printf("Migrated %d fnords (%d already present)\n", stats.Copied, stats.Skipped)
	return nil
}

// withDSN returns a copy of cfg with the backend's DSN replaced, when one
// was given on the command line.
func withDSN(cfg *config.Config, backend, dsn string) *config.Config {
	out := *cfg
	if dsn == "" {
		return &out
	}
	switch backend {
	case config.BackendSQLite:
		out.DBPath = dsn
	case config.BackendPostgres:
		out.PostgresURL = dsn
	}
	return &out
}
