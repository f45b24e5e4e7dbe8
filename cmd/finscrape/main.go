package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/engine"
	"github.com/IshaanNene/finscrape/internal/fetcher"
	"github.com/IshaanNene/finscrape/internal/observability"
	"github.com/IshaanNene/finscrape/internal/storage"
	"github.com/IshaanNene/finscrape/internal/types"
)

var (
	cfgFile string
	verbose bool

	runOnce       bool
	runInterval   time.Duration
	noRender      bool
	maxCandidates int
	storageType   string
)

const defaultInterval = 30 * time.Minute

func main() {
	rootCmd := &cobra.Command{
		Use:   "finscrape",
		Short: "Financial news collector",
		Long: `finscrape visits configured news landing pages, discovers article links,
extracts the article body with several fallback methods, keeps the financially
relevant ones and stores each distinct article once for downstream generation.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(linksCmd())
	rootCmd.AddCommand(targetsCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run orchestration passes over the configured targets",
		Long: `Run one pass over every active target: fetch the landing page, discover
candidate links, extract, filter and store new articles. With --interval or
--once=false passes repeat until interrupted. The config file is
watched and each pass uses the latest valid version.`,
		Args: cobra.NoArgs,
		RunE: runPasses,
	}

	cmd.Flags().BoolVar(&runOnce, "once", true, "run a single pass and exit")
	cmd.Flags().DurationVar(&runInterval, "interval", 0, "repeat passes at this interval (default engine.interval, else 30m)")
	cmd.Flags().BoolVar(&noRender, "no-render", false, "disable the headless browser")
	cmd.Flags().IntVar(&maxCandidates, "max-candidates", 0, "candidates processed per target (0 = use config)")
	cmd.Flags().StringVar(&storageType, "storage", "", "storage backend: memory, jsonl, mongo, postgres")

	return cmd
}

// runPasses executes the run command.
func runPasses(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := config.Watch(cfgFile, applyRunOverrides, setupLogger(config.LoggingConfig{}))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := watcher.Current()
	logger := setupLogger(cfg.Logging)

	client, err := fetcher.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer client.Close()

	store, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	eng := engine.New(watcher, client, store, logger)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(eng.Stats(), logger)
		metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path)
	}

	for {
		summary, err := eng.Run(ctx)
		if metrics != nil {
			metrics.ObservePass(summary)
		}
		if summary != nil {
			printSummary(os.Stdout, summary)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("interrupted, partial results recorded")
				return nil
			}
			return err
		}
		if runOnce && !cmd.Flags().Changed("interval") {
			return nil
		}

		wait := watcher.Current().Engine.Interval
		if wait <= 0 {
			wait = defaultInterval
		}
		logger.Info("next pass scheduled", "in", wait)
		if err := engine.Sleep(ctx, wait); err != nil {
			logger.Info("interrupted, shutting down")
			return nil
		}
	}
}

// printSummary writes the per-target results as a table.
func printSummary(w io.Writer, s *types.RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSTATUS\tFOUND\tNEW\tDURATION\tERROR")
	for _, r := range s.Results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.Target, r.Status, r.Found, r.New, r.Duration.Round(time.Millisecond), r.Error)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nPass complete in %s: %d found, %d new, %d failed\n",
		s.Duration.Round(time.Millisecond), s.Found(), s.New(), s.Failed())
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("finscrape %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
}

// loadConfig reads and validates the configuration for one-shot commands.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogger creates a structured logger.
func setupLogger(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(lc.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyRunOverrides applies run flags to every loaded config, including
// hot reloads.
func applyRunOverrides(cfg *config.Config) {
	if noRender {
		cfg.Browser.Enabled = false
	}
	if maxCandidates > 0 {
		cfg.Engine.MaxCandidates = maxCandidates
	}
	if runInterval > 0 {
		cfg.Engine.Interval = runInterval
	}
	if storageType != "" {
		cfg.Storage.Type = strings.ToLower(storageType)
	}
}
