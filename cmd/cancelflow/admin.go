package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/voltgrid/cancelflow/internal/config"
	"github.com/voltgrid/cancelflow/internal/logging"
	"github.com/voltgrid/cancelflow/internal/retrieval"
	"github.com/voltgrid/cancelflow/internal/store"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the SQLite database and schema",
	Long: `Create the SQLite database file and all tables. Running it against
an existing database is a no-op; the schema is applied idempotently.`,
	RunE: runInitDB,
}

func runInitDB(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	db, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	fmt.Printf("Database ready: %s\n", cfg.Store.Path)
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print ticket, draft, review and queue counts",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	db, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	stats, err := db.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("collecting stats: %w", err)
	}

	fmt.Printf("Tickets:  %d\n", stats.Tickets)
	fmt.Printf("Drafts:   %d\n", stats.Drafts)
	fmt.Printf("Reviews:  %d\n", stats.Reviews)
	fmt.Println("Queue:")
	for _, status := range []store.Status{store.StatusPending, store.StatusProcessing, store.StatusSucceeded, store.StatusFailed} {
		fmt.Printf("  %-11s %d\n", string(status), stats.QueueByStatus[status])
	}
	return nil
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete finished queue items past the retention window",
	Long: `Delete succeeded and failed delivery-queue items whose last update is
older than the configured retention period. Tickets, drafts and reviews
are never deleted; they are the audit trail.`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	db, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Cleanup.RetentionDays)
	deleted, err := db.Cleanup(cmd.Context(), cutoff)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	fmt.Printf("Deleted %d queue item(s) older than %s\n", deleted, cutoff.Format("2006-01-02"))
	return nil
}

var seedCmd = &cobra.Command{
	Use:   "seed-context [file]",
	Short: "Load historical tickets into the retrieval store",
	Long: `Load a JSONL export of resolved cancellation tickets into the local
vector store used for retrieval-augmented drafting.

Examples:
  cancelflow seed-context data/resolved-tickets.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if !cfg.Retrieval.Enabled {
		return fmt.Errorf("retrieval is disabled in the configuration")
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	rs, err := retrieval.NewStore(cfg.Retrieval, logger.Named("retrieval"))
	if err != nil {
		return fmt.Errorf("opening retrieval store: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	n, err := rs.Seed(ctx, args[0])
	if err != nil {
		return fmt.Errorf("seeding retrieval store: %w", err)
	}

	fmt.Printf("Seeded %d document(s) into collection %q (total %d)\n", n, cfg.Retrieval.Collection, rs.Count())
	return nil
}
