package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aristath/quantwand/internal/reliability"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List archived optimization runs for a day",
	Long: `List optimization results uploaded to the archive bucket on the given
UTC day. Requires ARCHIVE_BUCKET to be configured.

Examples:
  frontier runs
  frontier runs --date 2024-06-03 --format json`,
	RunE: runRuns,
}

var runsDate string

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().StringVar(&runsDate, "date", "", "Day to list, YYYY-MM-DD (default today, UTC)")
}

func runRuns(cmd *cobra.Command, args []string) error {
	day := time.Now().UTC()
	if runsDate != "" {
		parsed, err := time.Parse("2006-01-02", runsDate)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		day = parsed
	}

	container, err := wire(cmd.Context(), 0)
	if err != nil {
		return err
	}
	defer container.Close()

	if container.ResultArchive == nil {
		return errors.New("archive is not configured (set ARCHIVE_BUCKET)")
	}

	runs, err := container.ResultArchive.List(cmd.Context(), day)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), runs)
	}
	return printRuns(cmd.OutOrStdout(), runs)
}

func printRuns(out io.Writer, runs []reliability.ArchivedRun) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "No archived runs")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSIZE\tUPLOADED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%d\t%s\n", r.RunID, r.SizeBytes, r.LastModified.Format(time.RFC3339))
	}
	return w.Flush()
}
