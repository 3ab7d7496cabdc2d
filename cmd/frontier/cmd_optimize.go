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

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Find the max-Sharpe portfolio within weight bounds",
	Long: `Sample random portfolios over the given assets and report the one with
the highest Sharpe ratio whose weights all lie within [min-weight, max-weight].
When no sample satisfies the bounds the unconstrained optimum is reported.

Examples:
  frontier optimize --assets AAPL,MSFT,GOOGL
  frontier optimize --assets AAPL,MSFT --max-weight 0.6 --samples 50000
  frontier optimize --assets AAPL,MSFT,TSLA --format json --seed 42`,
	RunE: runOptimize,
}

var (
	optimizeAssets    []string
	optimizeMinWeight float64
	optimizeMaxWeight float64
	optimizeSamples   int
)

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeCmd.Flags().StringSliceVar(&optimizeAssets, "assets", nil, "Comma separated ticker symbols")
	optimizeCmd.Flags().Float64Var(&optimizeMinWeight, "min-weight", 0, "Minimum weight per asset")
	optimizeCmd.Flags().Float64Var(&optimizeMaxWeight, "max-weight", 1, "Maximum weight per asset")
	optimizeCmd.Flags().IntVar(&optimizeSamples, "samples", 0, "Number of portfolios to sample (0 = from config)")
	_ = optimizeCmd.MarkFlagRequired("assets")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	if optimizeSamples < 0 || optimizeSamples > optimization.MaxSampleCount {
		return fmt.Errorf("--samples must be between 0 and %d", optimization.MaxSampleCount)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := wire(ctx, optimizeSamples)
	if err != nil {
		return err
	}
	defer container.Close()

	result, err := container.OptimizerService.OptimizePortfolio(ctx, optimizeAssets, optimization.Constraints{
		MinWeight: optimizeMinWeight,
		MaxWeight: optimizeMaxWeight,
	})
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	return printOptimization(cmd.OutOrStdout(), result)
}

func printOptimization(out io.Writer, r *optimization.OptimizationResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Run\t%s\n", r.RunID)
	fmt.Fprintf(w, "Samples\t%d\n", r.SampleCount)
	fmt.Fprintf(w, "Expected return\t%s\n", percent(r.ExpectedReturn))
	fmt.Fprintf(w, "Risk\t%s\n", percent(r.Risk))
	fmt.Fprintf(w, "Sharpe ratio\t%.3f\n", r.SharpeRatio)
	if !r.ConstraintsSatisfied {
		fmt.Fprintf(w, "Constraints\tnot satisfiable [%.2f, %.2f], showing unconstrained optimum\n",
			r.Constraints.MinWeight, r.Constraints.MaxWeight)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "ASSET\tWEIGHT\tSOURCE\tANN. RETURN\tANN. VOLATILITY")
	for i, aw := range r.OptimizedWeights {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			aw.Symbol,
			percent(aw.Weight),
			r.DataSources[aw.Symbol],
			percent(r.Statistics.MeanReturns[i]),
			percent(r.Statistics.Volatilities[i]),
		)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Min variance\treturn %s\trisk %s\n",
		percent(r.MinVariancePortfolio.Return), percent(r.MinVariancePortfolio.Risk))

	return w.Flush()
}
