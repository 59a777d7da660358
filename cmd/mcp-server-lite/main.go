// Package main provides the lightweight entry point for the trial matching MCP
// server. It requires no external databases: profiles are read from disk and
// preferences are kept in SQLite.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trial-matching-mcp-server/internal/config"
	"github.com/trial-matching-mcp-server/internal/logging"
	"github.com/trial-matching-mcp-server/internal/mcp"
	"github.com/trial-matching-mcp-server/internal/setup"
)

func main() {
	cfg := config.LoadLiteConfig()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(cfg, logger).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(cfg *config.LiteConfig, logger *logrus.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "mcp-server-lite",
		Short:        "Clinical trial eligibility matching over MCP (stdio)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg, logger)
		},
	}

	var outDir string
	evaluateCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate every patient against their retrieved trials and write JSON results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outDir == "" {
				outDir = cfg.ResultsDir()
			}
			return evaluate(cmd, cfg, logger, outDir)
		},
	}
	evaluateCmd.Flags().StringVar(&outDir, "out", "", "output directory (defaults to the data directory's eligibility_results)")

	root.AddCommand(evaluateCmd, setup.NewCommand(cfg, logger))
	return root
}

func serve(ctx context.Context, cfg *config.LiteConfig, logger *logrus.Logger) error {
	logger.WithField("data_dir", cfg.DataDir).Info("Starting trial matching MCP server (lite)")

	server, err := mcp.NewLiteServer(cfg, mcp.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Error("Failed to create MCP server")
		return err
	}
	defer server.Close()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("MCP server failed")
		return err
	}

	logger.Info("Trial matching MCP server (lite) stopped")
	return nil
}

func evaluate(cmd *cobra.Command, cfg *config.LiteConfig, logger *logrus.Logger, outDir string) error {
	server, err := mcp.NewLiteServer(cfg, mcp.WithLogger(logger))
	if err != nil {
		return err
	}
	defer server.Close()

	run, err := server.Matching().EvaluateAll(cmd.Context(), outDir)
	if err != nil {
		return fmt.Errorf("batch evaluation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: evaluated %d patient(s)", run.RunID, len(run.Patients))
	if len(run.Skipped) > 0 {
		fmt.Fprintf(out, ", skipped %d", len(run.Skipped))
	}
	fmt.Fprintln(out)
	for _, p := range run.Patients {
		fmt.Fprintf(out, "  %s: eligible for %d of %d trials\n", p.PatientID, p.Summary.EligibleTrials, p.Summary.TotalTrials)
	}
	fmt.Fprintf(out, "Results written to %s\n", run.OutDir)
	return nil
}
