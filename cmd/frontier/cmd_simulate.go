package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/aristath/quantwand/internal/modules/optimization"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a Monte Carlo simulation and report every sample",
	Long: `Sample random portfolios without weight bounds. The table format prints
the max-Sharpe and minimum-variance portfolios and the correlation matrix;
the json format includes every sample.

Examples:
  frontier simulate --assets AAPL,MSFT --samples 5000
  frontier simulate --assets AAPL,MSFT,GOOGL --format json > frontier.json`,
	RunE: runSimulate,
}

var (
	simulateAssets  []string
	simulateSamples int
)

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringSliceVar(&simulateAssets, "assets", nil, "Comma separated ticker symbols")
	simulateCmd.Flags().IntVar(&simulateSamples, "samples", 0, "Number of portfolios to sample (0 = from config)")
	_ = simulateCmd.MarkFlagRequired("assets")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simulateSamples < 0 || simulateSamples > optimization.MaxSampleCount {
		return fmt.Errorf("--samples must be between 0 and %d", optimization.MaxSampleCount)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := wire(ctx, simulateSamples)
	if err != nil {
		return err
	}
	defer container.Close()

	var progress optimization.ProgressFunc
	if outputFormat == "table" {
		errOut := cmd.ErrOrStderr()
		progress = func(completed, total int) {
			fmt.Fprintf(errOut, "\rSampling %d/%d", completed, total)
			if completed == total {
				fmt.Fprintln(errOut)
			}
		}
	}

	result, err := container.OptimizerService.MonteCarloSimulationWithProgress(ctx, simulateAssets, simulateSamples, progress)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	return printSimulation(cmd.OutOrStdout(), result)
}

func printSimulation(out io.Writer, r *optimization.SimulationResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Run\t%s\n", r.RunID)
	fmt.Fprintf(w, "Samples\t%d\n", r.SampleCount)
	fmt.Fprintln(w)

	fmt.Fprint(w, "PORTFOLIO\tRETURN\tRISK\tSHARPE")
	for _, sym := range r.Assets {
		fmt.Fprintf(w, "\t%s", sym)
	}
	fmt.Fprintln(w)
	printSample(w, "max sharpe", r.OptimalPortfolio)
	printSample(w, "min variance", r.MinVariancePortfolio)
	fmt.Fprintln(w)

	fmt.Fprint(w, "CORRELATION")
	for _, sym := range r.Assets {
		fmt.Fprintf(w, "\t%s", sym)
	}
	fmt.Fprintln(w)
	for i, row := range r.CorrelationMatrix {
		fmt.Fprint(w, r.Assets[i])
		for _, v := range row {
			fmt.Fprintf(w, "\t%.3f", v)
		}
		fmt.Fprintln(w)
	}

	return w.Flush()
}

func printSample(w io.Writer, label string, p optimization.PortfolioSample) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%.3f", label, percent(p.Return), percent(p.Risk), p.SharpeRatio)
	for _, wt := range p.Weights {
		fmt.Fprintf(w, "\t%s", percent(wt))
	}
	fmt.Fprintln(w)
}
