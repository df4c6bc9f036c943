package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/worker"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *domain.Config) error {
	logger := slog.Default()
	logger.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	logger.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// With the worker on, the API only queues transactions.
	var ingest *worker.Worker
	if cfg.Worker.Enabled {
		ingest = worker.NewWorker(a.bus, a.repo, a.scans, a.insights, logger)
		if err := ingest.Start(worker.Config{}); err != nil {
			return fmt.Errorf("start ingest worker: %w", err)
		}
		logger.Info("ingest worker started")
	}

	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:     a.repo,
		Cache:    a.cache,
		Bus:      a.bus,
		Scans:    a.scans,
		Alerts:   a.alerts,
		Insights: a.insights,
		Stats:    a.stats,
		Logger:   logger,
		Version:  Version,
		Async:    ingest != nil,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("shutting down...")

	if ingest != nil {
		if err := ingest.Stop(); err != nil {
			logger.Error("failed to stop ingest worker", "error", err)
		}
		stats := ingest.GetStats()
		logger.Info("ingest worker stopped",
			"processed", stats.Processed,
			"flagged", stats.Flagged,
			"failed", stats.Failed,
		)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("kestrel shutdown complete")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║     Card Fraud & Rewards Engine           ║")
	fmt.Println("  ║      Hovering over every swipe.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /security/transactions/scan          - Scan a user's transactions")
	fmt.Println("    POST /security/transactions/report        - Report a transaction")
	fmt.Println("    POST /security/transactions/{id}/approve  - Approve a flagged transaction")
	fmt.Println("    POST /security/transactions/{id}/reject   - Reject a flagged transaction")
	fmt.Println("    GET  /security/security-alerts            - List alerts")
	fmt.Println("    POST /transactions                        - Ingest a transaction")
	fmt.Println("    GET  /rewards/optimization                - Card per spending category")
	fmt.Println("    GET  /budget/analysis                     - Budgets and utilization")
	fmt.Println("    GET  /health                              - Health check")
	fmt.Println()
}
