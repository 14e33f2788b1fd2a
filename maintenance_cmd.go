package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newMaintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Housekeeping for the state database",
	}

	cmd.AddCommand(newPruneCmd())

	return cmd
}

func newPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old finished download audit records",
		Args:  cobra.NoArgs,
		RunE:  runPrune,
	}

	cmd.Flags().Int("retention-hours", 0, "override the configured retention window")

	return cmd
}

func runPrune(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	hours, _ := cmd.Flags().GetInt("retention-hours")
	if hours <= 0 {
		hours = a.cfg.Storage.RetentionHours
	}

	if hours <= 0 {
		statusf("Retention disabled; nothing to prune.\n")
		return nil
	}

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	n, err := a.store.PruneDownloads(cmd.Context(), cutoff)
	if err != nil {
		return err
	}

	statusf("Pruned %s audit record(s) older than %dh\n", formatCount(n), hours)

	return nil
}
