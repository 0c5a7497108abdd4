package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Long: `List recent invocations, newest first.

Runs are read from the configured store (runs.store). With the memory
store only runs of this process are visible.`,
	Args: cobra.NoArgs,
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs")
}

func runRuns(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Runs == nil {
		return errors.New("run history is disabled (runs.store: none)")
	}
	if runsLimit < 1 {
		return fmt.Errorf("invalid limit %d", runsLimit)
	}

	runs, err := a.Runs.Recent(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMETHOD\tSTATUS\tSOURCE\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Method, r.Status, r.Source,
			r.StartedAt.Local().Format(time.DateTime), r.Duration.Round(time.Microsecond))
	}
	return w.Flush()
}
