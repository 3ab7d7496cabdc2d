// Package main is the QuantWand command line client. It runs the optimizer
// in-process against the same cache database and data sources as the server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aristath/quantwand/internal/config"
	"github.com/aristath/quantwand/internal/di"
	"github.com/aristath/quantwand/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	outputFormat string
	logLevel     string
	offline      bool
	seed         int64
	workers      int
)

// rootCmd is the base command for the frontier CLI
var rootCmd = &cobra.Command{
	Use:   "frontier",
	Short: "Monte Carlo portfolio frontier search",
	Long: `frontier samples random long-only portfolios over a set of assets,
scores them by return, risk and Sharpe ratio, and reports the best one.

Price history comes from Alpha Vantage when ALPHA_VANTAGE_API_KEY is set,
otherwise from the synthetic generator.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Skip upstream requests and use cached or synthetic history")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 0, "Sampler seed (0 = time based)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Sampler workers (0 = from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// wire loads configuration, applies command line overrides and builds the container.
func wire(ctx context.Context, samples int) (*di.Container, error) {
	if outputFormat != "table" && outputFormat != "json" {
		return nil, fmt.Errorf("unknown format %q", outputFormat)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, samples)

	log := logger.New(logger.Config{
		Level:  logLevel,
		Pretty: true,
		Output: os.Stderr,
	})

	container, _, err := di.Wire(ctx, cfg, log)
	return container, err
}

func applyOverrides(cfg *config.Config, samples int) {
	if offline {
		cfg.AlphaVantageAPIKey = ""
	}
	if cfg.Optimizer == nil {
		return
	}
	if seed != 0 {
		cfg.Optimizer.Seed = seed
	}
	if workers > 0 {
		cfg.Optimizer.Workers = workers
	}
	if samples > 0 {
		cfg.Optimizer.OptimizationSamples = samples
		cfg.Optimizer.SimulationSamples = samples
	}
}
