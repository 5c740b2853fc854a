// Package main implements the cancelflow daemon and its admin CLI.
//
// cancelflow triages inbound cancellation emails: it classifies them,
// composes a policy-compliant reply draft, and pushes the draft to the
// review channel for human approval.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voltgrid/cancelflow/internal/compose"
	"github.com/voltgrid/cancelflow/internal/config"
	"github.com/voltgrid/cancelflow/internal/delivery"
	"github.com/voltgrid/cancelflow/internal/extraction"
	"github.com/voltgrid/cancelflow/internal/logging"
	"github.com/voltgrid/cancelflow/internal/pipeline"
	"github.com/voltgrid/cancelflow/internal/queue"
	"github.com/voltgrid/cancelflow/internal/retrieval"
	"github.com/voltgrid/cancelflow/internal/server"
	"github.com/voltgrid/cancelflow/internal/store"
)

var (
	// configFile is the optional YAML config path; environment
	// variables override it either way.
	configFile string
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cancelflow",
	Short: "Cancellation email triage pipeline",
	Long: `cancelflow receives customer cancellation emails, extracts the
cancellation details, composes a policy-compliant reply draft and
queues it for human review.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(seedCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cancelflow HTTP server and delivery worker",
	Long: `Start the full pipeline: the inbound HTTP API, the classification
and composition stages, and the background delivery-retry worker.

Examples:
  # Start with defaults (SQLite under ./data)
  cancelflow serve

  # Start with a config file
  cancelflow serve --config /etc/cancelflow/config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	logger.Info("starting cancelflow",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("inference_enabled", cfg.Inference.Enabled),
		zap.Bool("retrieval_enabled", cfg.Retrieval.Enabled),
	)

	db, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	var retriever pipeline.Retriever
	if cfg.Retrieval.Enabled {
		rs, err := retrieval.NewStore(cfg.Retrieval, logger.Named("retrieval"))
		if err != nil {
			return fmt.Errorf("opening retrieval store: %w", err)
		}
		logger.Info("retrieval store ready",
			zap.String("collection", cfg.Retrieval.Collection),
			zap.Int("documents", rs.Count()))
		retriever = rs
	}

	var inference extraction.InferenceExtractor
	if cfg.Inference.Enabled {
		llm, err := extraction.NewLLMExtractor(cfg.Inference)
		if err != nil {
			return fmt.Errorf("initializing inference extractor: %w", err)
		}
		inference = llm
	}
	router := extraction.NewRouter(
		extraction.NewHeuristicExtractor(),
		inference,
		extraction.RouterConfig{EscalationEnabled: cfg.Inference.Enabled},
		logger.Named("extraction"),
	)

	deliverer := delivery.NewClient(cfg.Delivery, logger.Named("delivery"))
	if !deliverer.Enabled() {
		logger.Warn("delivery webhook not configured, drafts will only be visible via the API")
	}

	proc := pipeline.New(
		router,
		retriever,
		compose.New(logger.Named("compose")),
		db,
		deliverer,
		logger.Named("pipeline"),
	)

	worker := queue.NewWorker(db, deliverer, cfg.Queue, logger.Named("queue"))
	if err := worker.Start(); err != nil {
		return fmt.Errorf("starting delivery worker: %w", err)
	}
	defer worker.Stop()

	srv, err := server.NewServer(proc, db, logger.Named("http"), cfg.Server)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
