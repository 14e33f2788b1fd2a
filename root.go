package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/driveconnect/driveconnect/internal/config"
	"github.com/driveconnect/driveconnect/internal/drive"
	"github.com/driveconnect/driveconnect/internal/store"
	"github.com/driveconnect/driveconnect/internal/syncer"
	"github.com/driveconnect/driveconnect/internal/token"
	"github.com/driveconnect/driveconnect/internal/transfer"
	"github.com/driveconnect/driveconnect/internal/watch"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAccount    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Config

// httpClientTimeout is the default timeout for HTTP requests.
// Prevents hung connections from blocking CLI commands indefinitely.
const httpClientTimeout = 30 * time.Second

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "driveconnect",
		Short:   "Google Drive connector",
		Long:    "A Google Drive integration connector: file access, change sync, and webhook watch channels.",
		Version: version,
		// Silence cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagAccount, "account", "", "account ID (defaults to the configured account)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newFilesCmd())
	cmd.AddCommand(newChangesCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newDrivesCmd())
	cmd.AddCommand(newPermsCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newMaintenanceCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// loadConfig resolves the effective configuration (defaults, then config
// file, then environment) and stores the result for subcommands.
func loadConfig() error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if flagAccount != "" {
		cfg.Account.DefaultID = flagAccount
	}

	resolvedCfg = cfg

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. Format "auto" picks
// text on a terminal and JSON otherwise.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		if resolvedCfg.Logging.Format != "" {
			format = resolvedCfg.Logging.Format
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	useText := format == "text"
	if format == "auto" {
		useText = isatty.IsTerminal(os.Stderr.Fd())
	}

	if useText {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// app bundles the wired components every command needs. Close it when done.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	tokens     *token.Provider
	client     *drive.Client
	engine     *syncer.Engine
	watches    *watch.Manager
	downloader *transfer.Downloader
}

// newApp wires configuration, storage, token provider, and the Drive client
// into a ready-to-use component set.
func newApp() (*app, error) {
	cfg := resolvedCfg
	logger := buildLogger()

	st, err := store.Open(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout: config.Duration(cfg.Network.Timeout, httpClientTimeout),
	}

	tokens := token.NewProvider(cfg.OAuth, cfg.Account.DefaultID, st, httpClient, logger)

	client := drive.NewClient(drive.Options{
		BaseURL:    cfg.API.BaseURL,
		UploadURL:  cfg.API.UploadURL,
		HTTPClient: httpClient,
		Tokens:     tokens,
		Account:    cfg.Account.DefaultID,
		UserAgent:  cfg.Network.UserAgent,
		RateLimit:  cfg.Network.RateLimit,
		Burst:      cfg.Network.Burst,
		Logger:     logger,
	})

	account := cfg.Account.DefaultID

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		tokens:     tokens,
		client:     client,
		engine:     syncer.NewEngine(client, st, account, logger),
		watches:    watch.NewManager(client, st, account, cfg.Webhook.CallbackURL, logger),
		downloader: transfer.NewDownloader(client, st, account, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close state database", slog.String("error", err.Error()))
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
