package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/driveconnect/driveconnect/internal/api"
	"github.com/driveconnect/driveconnect/internal/config"
)

// shutdownGrace is how long in-flight requests get to finish on shutdown.
const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the connector as a long-lived service",
		Long: `Run the HTTP API, the webhook endpoint for Drive push notifications,
the websocket event stream, and the scheduled channel renewal sweep.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	listen, _ := cmd.Flags().GetString("listen")
	if listen == "" {
		listen = a.cfg.Serve.ListenAddr
	}

	if listen == "" {
		listen = ":8080"
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(api.Options{
		Client:     a.client,
		Engine:     a.engine,
		Watches:    a.watches,
		Downloader: a.downloader,
		Webhook:    a.cfg.Webhook,
		Origins:    a.cfg.Serve.AllowedOrigins,
		Logger:     a.logger,
	})

	httpServer := &http.Server{
		Addr:              listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", slog.String("addr", listen))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return runRenewalScheduler(ctx, a, server.Hub())
	})

	if flagConfigPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, flagConfigPath, a.logger, func(cfg *config.Config) {
				// Only the log level is hot-reloadable; everything else needs
				// a restart because components capture config at construction.
				a.logger.Info("config reloaded",
					slog.String("log_level", cfg.Logging.Level),
				)
				resolvedCfg.Logging = cfg.Logging
			})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.logger.Info("shutdown complete")

	return nil
}

// runRenewalScheduler runs the cron-driven channel renewal sweep until the
// context is canceled. Each sweep broadcasts its result when it did work.
func runRenewalScheduler(ctx context.Context, a *app, hub *api.Hub) error {
	schedule := a.cfg.Webhook.RenewSchedule
	if schedule == "" {
		schedule = "@every 30m"
	}

	threshold := config.Duration(a.cfg.Webhook.RenewThreshold, time.Hour)
	ttl := config.Duration(a.cfg.Webhook.ChannelTTL, 24*time.Hour)

	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		renewed, sweepErr := a.watches.Renew(ctx, threshold, ttl)
		if sweepErr != nil {
			a.logger.Error("renewal sweep failed", slog.String("error", sweepErr.Error()))
		}

		// Channels renewed before a partway failure are still announced.
		if len(renewed) > 0 {
			hub.Broadcast("watch.renewed", map[string][]string{"renewed": renewed})
		}
	})
	if err != nil {
		return err
	}

	a.logger.Info("renewal scheduler started", slog.String("schedule", schedule))

	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()

	return nil
}
