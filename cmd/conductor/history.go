package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/state"
	"github.com/ShayCichocki/conductor/pkg/models"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently finished runs from the journal",
	Long: `Show runs recorded in the sqlite run journal, newest first.

The journal is written only when journal.path is set.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", state.DefaultHistoryLimit, "Number of runs to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print runs as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.Journal.Path == "" {
		printStatus(out, "⚠", fmt.Sprintf("journal disabled; set journal.path (for example %s)", state.DefaultPath()), color.FgYellow)
		return nil
	}

	db, err := state.OpenJournal(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()

	runs, err := db.RecentRuns(historyLimit)
	if err != nil {
		return err
	}
	if historyJSON {
		if runs == nil {
			runs = []models.RunSnapshot{}
		}
		return printJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s ", color.New(color.Faint).Sprint(r.StartedAt.Local().Format("2006-01-02 15:04:05")))
		printRun(out, r)
	}

	counts, err := db.CountByStatus()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\ncompleted %d, failed %d, timeout %d, cancelled %d\n",
		counts[models.RunCompleted], counts[models.RunFailed], counts[models.RunTimeout], counts[models.RunCancelled])
	return nil
}
