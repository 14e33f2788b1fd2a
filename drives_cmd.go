package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/driveconnect/driveconnect/internal/store"
)

func newDrivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drives",
		Short: "Inspect the shared drive catalogue",
	}

	cmd.AddCommand(newDrivesLsCmd())
	cmd.AddCommand(newDrivesRefreshCmd())

	return cmd
}

func newDrivesLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List catalogued drives",
		Args:  cobra.NoArgs,
		RunE:  runDrivesLs,
	}
}

func runDrivesLs(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.store.ListDrives(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(entries)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		active := "yes"
		if !e.IsActive {
			active = "no"
		}

		rows = append(rows, []string{e.DriveID, e.Kind, active, formatTimePtr(e.LastSyncedAt), e.Name})
	}

	printTable(os.Stdout, []string{"ID", "KIND", "ACTIVE", "SYNCED", "NAME"}, rows)

	return nil
}

func newDrivesRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the catalogue from the Drive API",
		Args:  cobra.NoArgs,
		RunE:  runDrivesRefresh,
	}
}

// runDrivesRefresh pulls the current shared drive list, upserts every entry,
// and deactivates drives that were not reported this round.
func runDrivesRefresh(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	refreshedAt := time.Now()

	drives, err := a.client.ListSharedDrives(ctx)
	if err != nil {
		return err
	}

	for _, d := range drives {
		if err := a.store.UpsertDrive(ctx, d.ID, d.Name, store.DriveKindShared, refreshedAt); err != nil {
			return err
		}
	}

	if err := a.store.DeactivateDrivesBefore(ctx, refreshedAt); err != nil {
		return err
	}

	statusf("Catalogued %d shared drive(s)\n", len(drives))

	return nil
}
