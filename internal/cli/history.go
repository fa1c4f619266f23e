package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/ciresolve/internal/analytics"
	"github.com/lucasnoah/ciresolve/internal/db"
)

var (
	historyLimit  int
	historyStatus string
	historyRoot   string
	historySince  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded resolution runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent resolution runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		filter := db.RunFilter{Status: historyStatus, Limit: historyLimit}
		if historyRoot != "" {
			if filter.RootPath, err = filepath.Abs(historyRoot); err != nil {
				return err
			}
		}
		runs, err := store.ListRuns(filter)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tSTATUS\tJOBS\tDURATION\tROOT\tERROR")
		for _, r := range runs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%dms\t%s\t%s\n",
				r.ID, r.Timestamp, r.Status, r.JobCount, r.DurationMs, r.RootPath, dash(r.ErrorKind))
		}
		return w.Flush()
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recorded runs per document and failure kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		roots, err := analytics.QueryRootStats(store, historySince)
		if err != nil {
			return err
		}
		if len(roots) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		kinds, err := analytics.QueryErrorKinds(store, historySince)
		if err != nil {
			return err
		}
		days, err := analytics.QueryDailyRuns(store, historySince)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROOT\tRUNS\tFAILED\tAVG\tP50\tP95\tLAST")
		for _, r := range roots {
			fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.1fms\t%.1fms\t%.1fms\t%s\n",
				r.RootPath, r.Runs, r.FailurePct, r.AvgMs, r.P50Ms, r.P95Ms, r.LastStatus)
		}
		w.Flush()

		if len(kinds) > 0 {
			fmt.Fprintln(out)
			w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ERROR KIND\tCOUNT\tSHARE\tLAST SEEN")
			for _, k := range kinds {
				fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%s\n", k.Kind, k.Count, k.Pct, k.LastSeen)
			}
			w.Flush()
		}

		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DAY\tRUNS\tFAILED")
		for _, d := range days {
			fmt.Fprintf(w, "%s\t%d\t%d\n", d.Day, d.Runs, d.Failed)
		}
		return w.Flush()
	},
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs to show")
	historyListCmd.Flags().StringVar(&historyStatus, "status", "", "only show runs with this status (ok, failed)")
	historyListCmd.Flags().StringVar(&historyRoot, "root", "", "only show runs of this root document")
	historyStatsCmd.Flags().StringVar(&historySince, "since", "", "only count runs at or after this time (YYYY-MM-DD)")
	historyCmd.AddCommand(historyListCmd, historyStatsCmd)
}
