package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/opensync/syncd/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that handle config loading themselves
// (or don't need it at all), mirroring the teacher's root.go annotation.
const skipConfigAnnotation = "skipConfig"

// cliFlags snapshots the persistent flags at PersistentPreRunE time so
// RunE handlers don't read package-level vars directly.
type cliFlags struct {
	ConfigPath string
	JSON       bool
	Quiet      bool
}

// CLIContext bundles resolved config and logger, built once in
// PersistentPreRunE and threaded through the command's context — the
// teacher's root.go CLIContext pattern, adapted to this repo's
// single-sync-root config model.
//
// Config is held behind a config.Holder rather than a bare *config.Config:
// `sync --watch`'s SIGHUP handler (reloadConfig in sync.go) replaces the
// live config from a different goroutine than the one periodically reading
// it to build status.json snapshots, and Holder is what makes that swap
// safe without pausing the status-write loop.
type CLIContext struct {
	cfg    *config.Holder
	Logger *slog.Logger
	Flags  cliFlags
}

// Cfg returns the current effective config. Safe to call concurrently with
// a reload in progress.
func (cc *CLIContext) Cfg() *config.Config {
	return cc.cfg.Config()
}

// CfgPath returns the config file path this CLIContext was loaded from.
func (cc *CLIContext) CfgPath() string {
	return cc.cfg.Path()
}

type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context, or
// nil if no config was loaded (commands annotated with skipConfigAnnotation).
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message — a programmer error if it fires, since the command tree
// guarantees PersistentPreRunE ran first for any command without
// skipConfigAnnotation.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — command must not set skipConfigAnnotation")
	}

	return cc
}

// newRootCmd builds the fully-assembled root command with all subcommands
// registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "syncd",
		Short:   "Background file-sync agent",
		Long:    "syncd mirrors a local directory against a remote project, reconciling local and remote changes.",
		Version: version,
		// Silence Cobra's default error/usage printing — exitOnError handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (default: "+config.DefaultConfigPath()+")")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newReloadCmd())

	return cmd
}

// loadConfig resolves the effective configuration (file + env overrides)
// and stores it in the command's context for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	logger := buildLogger(nil)

	path := flagConfigPath
	env := config.ReadEnvOverrides()

	if path == "" {
		path = env.ConfigPath
	}

	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if env.SyncDir != "" {
		cfg.Sync.SyncDir = env.SyncDir
	}

	finalLogger := buildLogger(cfg)

	cc := &CLIContext{
		cfg:    config.NewHolder(cfg, path),
		Logger: finalLogger,
		Flags: cliFlags{
			ConfigPath: path,
			JSON:       flagJSON,
			Quiet:      flagQuiet,
		},
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap. Config-file settings are
// the baseline; --verbose/--debug/--quiet (mutually exclusive) override
// them because CLI flags always win, matching the teacher's root.go
// buildLogger precedence.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if cfg != nil {
		format = cfg.Logging.LogFormat

		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg != nil && cfg.Logging.LogFile != "" {
		if f, err := os.OpenFile(cfg.Logging.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			return slog.New(handlerFor(format, f, level))
		}
	}

	return slog.New(handlerFor(format, out, level))
}

// handlerFor picks a JSON or text slog handler. "auto" renders text when
// stderr is a terminal (isatty.IsTerminal) and JSON otherwise, so piped
// or redirected output stays machine-readable by default.
func handlerFor(format string, w *os.File, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "text":
		return slog.NewTextHandler(w, opts)
	default:
		if isatty.IsTerminal(w.Fd()) {
			return slog.NewTextHandler(w, opts)
		}

		return slog.NewJSONHandler(w, opts)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
