package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/raivaus/config"
	"github.com/yairfalse/raivaus/history"
)

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "List stored teardown runs or show one report",
	Long: `Without arguments, lists the run IDs stored in the history database.
With a run ID, prints that run's full report as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	hist, err := history.Open(cfg.HistoryDir)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer func() { _ = hist.Close() }()

	if len(args) == 0 {
		return listRuns(cmd, hist)
	}
	return showRun(cmd, hist, args[0])
}

func listRuns(cmd *cobra.Command, hist *history.Store) error {
	runs, err := hist.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored runs.")
		return nil
	}
	for _, runID := range runs {
		result, err := hist.GetRun(runID)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  (unreadable: %v)\n", runID, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %d deleted, %d skipped, %d failed\n",
			runID,
			result.Summary.TotalDeleted,
			result.Summary.TotalSkipped,
			result.Summary.TotalFailed,
		)
	}
	return nil
}

func showRun(cmd *cobra.Command, hist *history.Store, runID string) error {
	result, err := hist.GetRun(runID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
