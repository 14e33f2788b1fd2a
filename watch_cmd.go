package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/driveconnect/driveconnect/internal/config"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage webhook watch channels",
	}

	cmd.AddCommand(newWatchRegisterCmd())
	cmd.AddCommand(newWatchLsCmd())
	cmd.AddCommand(newWatchStopCmd())
	cmd.AddCommand(newWatchRenewCmd())

	return cmd
}

func newWatchRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new changes watch channel",
		Args:  cobra.NoArgs,
		RunE:  runWatchRegister,
	}

	cmd.Flags().Duration("ttl", 0, "requested channel lifetime (default from config)")

	return cmd
}

func runWatchRegister(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl == 0 {
		ttl = config.Duration(a.cfg.Webhook.ChannelTTL, 24*time.Hour)
	}

	ch, err := a.watches.Register(cmd.Context(), ttl)
	if err != nil {
		return err
	}

	statusf("Registered channel %s (resource %s, expires %s)\n",
		ch.ChannelID, ch.ResourceID, formatTimePtr(ch.Expiration))

	return nil
}

func newWatchLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List registered watch channels",
		Args:  cobra.NoArgs,
		RunE:  runWatchLs,
	}
}

func runWatchLs(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	channels, err := a.watches.List(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(channels)
	}

	rows := make([][]string, 0, len(channels))
	for _, ch := range channels {
		rows = append(rows, []string{
			ch.ChannelID, ch.ResourceID, ch.Kind, formatTimePtr(ch.Expiration),
		})
	}

	printTable(os.Stdout, []string{"CHANNEL", "RESOURCE", "KIND", "EXPIRES"}, rows)

	return nil
}

func newWatchStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <channel-id>",
		Short: "Stop a watch channel and remove its record",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatchStop,
	}
}

func runWatchStop(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.watches.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}

	statusf("Stopped channel %s\n", args[0])

	return nil
}

func newWatchRenewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renew",
		Short: "Renew channels expiring soon",
		Args:  cobra.NoArgs,
		RunE:  runWatchRenew,
	}
}

func runWatchRenew(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	threshold := config.Duration(a.cfg.Webhook.RenewThreshold, time.Hour)
	ttl := config.Duration(a.cfg.Webhook.ChannelTTL, 24*time.Hour)

	renewed, err := a.watches.Renew(cmd.Context(), threshold, ttl)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(map[string][]string{"renewed": renewed})
	}

	if len(renewed) == 0 {
		statusf("No channels due for renewal\n")
		return nil
	}

	statusf("Renewed %d channel(s): %s\n", len(renewed), strings.Join(renewed, ", "))

	return nil
}
