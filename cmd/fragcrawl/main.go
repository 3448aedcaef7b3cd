package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	crawlerrors "github.com/PentesterFlow/fragcrawl/internal/errors"
	"github.com/PentesterFlow/fragcrawl/internal/logger"
	"github.com/PentesterFlow/fragcrawl/internal/metrics"
	"github.com/PentesterFlow/fragcrawl/internal/model"
	"github.com/PentesterFlow/fragcrawl/internal/progress"
	"github.com/PentesterFlow/fragcrawl/internal/shutdown"
	"github.com/PentesterFlow/fragcrawl/internal/state"
	"github.com/PentesterFlow/fragcrawl/pkg/crawler"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitCleanup     = 3
	exitInterrupted = 130
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	envFile    string
	verbose    bool
	debug      bool
	logJSON    bool

	// Crawl flags
	targets       []string
	outputDir     string
	outputFormat  string
	filePrefix    string
	parallelism   int
	delayMin      time.Duration
	delayMax      time.Duration
	seed          int64
	listingSettle time.Duration
	itemSettle    time.Duration
	loadTimeout   time.Duration
	retries       int
	browserBin    string
	headed        bool
	stateFile     string
	resume        bool
	dedupURLs     bool
	metricsAddr   string
	showProgress  bool
	saveConfig    string
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "fragcrawl",
		Short: "fragcrawl - award listing crawler",
		Long: `fragcrawl - A browser-driven crawler for perfume award listings.

For every configured category it renders the listing page, follows each item link,
extracts the perfume name and its notes, and writes one CSV file per category.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Crawl command
	crawlCmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the configured categories",
		Long:  "Crawl every configured category and write one output file per category that produced records.",
		Args:  cobra.NoArgs,
		RunE:  runCrawl,
	}

	// Status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show crawl status",
		Long:  "Show the last run and the per-category outcomes stored in a state file.",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fragcrawl %s\n", version)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading FRAGCRAWL_* variables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON instead of console output")

	// Crawl flags
	crawlCmd.Flags().StringArrayVarP(&targets, "target", "t", nil, "Category to crawl as label=url (repeatable, replaces configured targets)")
	crawlCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory for output files")
	crawlCmd.Flags().StringVarP(&outputFormat, "format", "f", "csv", "Output format (csv, jsonl)")
	crawlCmd.Flags().StringVar(&filePrefix, "prefix", "perfumy_", "Output file name prefix")
	crawlCmd.Flags().IntVarP(&parallelism, "parallelism", "p", 1, "Concurrent browser sessions")
	crawlCmd.Flags().DurationVar(&delayMin, "delay-min", 2*time.Second, "Minimum pause before each item")
	crawlCmd.Flags().DurationVar(&delayMax, "delay-max", 4*time.Second, "Maximum pause before each item")
	crawlCmd.Flags().Int64Var(&seed, "seed", 0, "Seed for the random pauses (0 = random)")
	crawlCmd.Flags().DurationVar(&listingSettle, "listing-settle", 10*time.Second, "Settle time after a listing page loads")
	crawlCmd.Flags().DurationVar(&itemSettle, "item-settle", 5*time.Second, "Settle time after an item page loads")
	crawlCmd.Flags().DurationVar(&loadTimeout, "load-timeout", 60*time.Second, "Page load timeout")
	crawlCmd.Flags().IntVar(&retries, "retries", 0, "Extra attempts for timed-out page loads")
	crawlCmd.Flags().StringVar(&browserBin, "browser-bin", "", "Chrome/Chromium executable (default: auto-detect or download)")
	crawlCmd.Flags().BoolVar(&headed, "headed", false, "Show the browser window")
	crawlCmd.Flags().StringVar(&stateFile, "state-file", "", "State file for resume and status")
	crawlCmd.Flags().BoolVar(&resume, "resume", false, "Skip categories completed by an earlier run")
	crawlCmd.Flags().BoolVar(&dedupURLs, "dedup", false, "Skip item URLs already visited in this run")
	crawlCmd.Flags().BoolVar(&showProgress, "progress", false, "Show a progress bar (logs drop to warnings unless --verbose)")
	crawlCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	crawlCmd.Flags().StringVar(&saveConfig, "save-config", "", "Write the effective configuration to this file and exit without crawling")

	// Status flags
	statusCmd.Flags().StringVar(&stateFile, "state-file", "", "State file to check")

	// Add commands
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		code := exitFailure
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			code = exitErr.code
		}
		if exitErr == nil || exitErr.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(code)
	}
}

// loadConfig builds the configuration: defaults, then file, then environment, then flags.
func loadConfig(cmd *cobra.Command) (*crawler.Config, error) {
	if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	config := crawler.DefaultConfig()
	if configFile != "" {
		fileConfig, err := crawler.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	config.ApplyEnv(os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("target") {
		parsed := make([]model.CrawlTarget, 0, len(targets))
		for _, t := range targets {
			target, err := crawler.ParseTarget(t)
			if err != nil {
				return nil, err
			}
			parsed = append(parsed, target)
		}
		config.Targets = parsed
	}
	if flags.Changed("output-dir") {
		config.Output.Dir = outputDir
	}
	if flags.Changed("format") {
		config.Output.Format = outputFormat
	}
	if flags.Changed("prefix") {
		config.Output.Prefix = filePrefix
	}
	if flags.Changed("parallelism") {
		config.Parallelism = parallelism
	}
	if flags.Changed("delay-min") {
		config.RateLimit.DelayMin = delayMin
	}
	if flags.Changed("delay-max") {
		config.RateLimit.DelayMax = delayMax
	}
	if flags.Changed("seed") {
		config.RateLimit.Seed = seed
	}
	if flags.Changed("listing-settle") {
		config.ListingWait.Settle = listingSettle
	}
	if flags.Changed("item-settle") {
		config.ItemWait.Settle = itemSettle
	}
	if flags.Changed("load-timeout") {
		config.Browser.LoadTimeout = loadTimeout
	}
	if flags.Changed("retries") {
		config.NavigationRetries = retries
	}
	if flags.Changed("browser-bin") {
		config.Browser.BrowserBin = browserBin
	}
	if headed {
		config.Browser.Headless = false
	}
	if flags.Changed("state-file") {
		config.State.FilePath = stateFile
	}
	if flags.Changed("resume") {
		config.State.Resume = resume
	}
	if flags.Changed("dedup") {
		config.DedupURLs = dedupURLs
	}
	if showProgress && !flags.Changed("verbose") && !flags.Changed("debug") {
		config.LogLevel = "warn"
	}
	if verbose || debug {
		config.LogLevel = "debug"
	}
	if logJSON {
		config.LogJSON = true
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func newLogger(config *crawler.Config) *logger.Logger {
	level, err := logger.ParseLevel(config.LogLevel)
	if err != nil {
		level = logger.InfoLevel
	}
	return logger.New(logger.Config{
		Level:     level,
		Pretty:    !config.LogJSON,
		Component: "fragcrawl",
	})
}

func runCrawl(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	if saveConfig != "" {
		if err := writeConfig(cmd, config, saveConfig); err != nil {
			return &exitError{code: exitFailure, err: err}
		}
		return nil
	}

	log := newLogger(config)
	collector := metrics.New()

	var active atomic.Pointer[crawler.Crawler]

	// Setup signal handling
	handler := shutdown.New(context.Background(), shutdown.Config{
		Timeout: 30 * time.Second,
		OnSignal: func(sig os.Signal, count int) {
			if count == 1 {
				log.Warnf("Received %s, finishing the current item and flushing results...", sig)
				return
			}
			log.Warnf("Received %s again, exiting immediately", sig)
			abortCrawl(active.Load(), log)
			os.Exit(exitInterrupted)
		},
	})

	if metricsAddr != "" {
		server := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(collector.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.ErrorEvent(err, "", metricsAddr, "metrics_server")
			}
		}()
		handler.Register("metrics-server", server.Shutdown)
		log.Infof("Metrics server listening on %s", metricsAddr)
	}

	opts := []crawler.Option{
		crawler.WithConfig(config),
		crawler.WithLogger(log),
		crawler.WithMetrics(collector),
	}
	if showProgress {
		opts = append(opts, crawler.WithProgress(progress.New()))
	}

	c, err := crawler.New(opts...)
	if err != nil {
		handler.Cleanup()
		return &exitError{code: exitFailure, err: fmt.Errorf("failed to create crawler: %w", err)}
	}
	handler.Register("state-store", func(ctx context.Context) error { return c.Close() })
	active.Store(c)

	printBanner(cmd, config)

	run, runErr := c.Run(handler.Context())
	cleanup := handler.Cleanup()

	if run != nil {
		printSummary(cmd, run, collector.Snapshot())
	}

	switch {
	case runErr != nil:
		if crawlerrors.IsFatal(runErr) {
			return &exitError{code: exitFailure, err: fmt.Errorf("crawl aborted: %w", runErr)}
		}
		return &exitError{code: exitFailure, err: fmt.Errorf("crawl failed: %w", runErr)}
	case run.Interrupted || handler.Interrupted():
		return &exitError{code: exitInterrupted}
	case run.CleanupErr != nil || cleanup.HasErrors():
		if run.CleanupErr != nil {
			log.WarnEvent(run.CleanupErr, "session_cleanup")
		}
		for _, err := range cleanup.Errors {
			log.WarnEvent(err, "shutdown")
		}
		return &exitError{code: exitCleanup}
	}
	return nil
}

// writeConfig saves the effective configuration so it can be reused with --config.
func writeConfig(cmd *cobra.Command, config *crawler.Config, path string) error {
	if err := config.SaveToFile(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}

// abortCrawl closes the browser sessions and the state store of a crawl that will
// not get to finish, so a forced exit leaves no Chrome profiles behind.
func abortCrawl(c *crawler.Crawler, log *logger.Logger) {
	if c == nil {
		return
	}
	if err := c.Abort(); err != nil {
		log.WarnEvent(err, "session_abort")
	}
	if err := c.Close(); err != nil {
		log.WarnEvent(err, "state_close")
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	if stateFile == "" {
		stateFile = os.Getenv(crawler.EnvStateFile)
	}
	if stateFile == "" {
		return fmt.Errorf("no state file specified (use --state-file or %s)", crawler.EnvStateFile)
	}
	if _, err := os.Stat(stateFile); err != nil {
		return fmt.Errorf("state file not found: %w", err)
	}

	store, err := state.NewBoltStore(stateFile)
	if err != nil {
		return fmt.Errorf("failed to open state file: %w", err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "State file: %s\n\n", stateFile)

	run, err := store.LastRun()
	if err != nil {
		return fmt.Errorf("failed to read last run: %w", err)
	}
	if run == nil {
		fmt.Fprintln(out, "No runs recorded")
	} else {
		fmt.Fprintf(out, "Last run:    %s\n", run.RunID)
		fmt.Fprintf(out, "Started:     %s\n", run.StartedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Finished:    %s\n", run.FinishedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Records:     %d\n", run.Records)
		fmt.Fprintf(out, "Files:       %d\n", run.Files)
		fmt.Fprintf(out, "Interrupted: %v\n", run.Interrupted)
	}

	categories, err := store.Categories()
	if err != nil {
		return fmt.Errorf("failed to read categories: %w", err)
	}
	if len(categories) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Categories:")
	for _, cat := range categories {
		fmt.Fprintf(out, "  %-20s %-12s links=%-4d records=%-4d failed=%-4d %s\n",
			cat.Label, cat.State, cat.Links, cat.Records, cat.Failed, cat.Path)
		if cat.Error != "" {
			fmt.Fprintf(out, "  %-20s error: %s\n", "", cat.Error)
		}
	}
	return nil
}

func printBanner(cmd *cobra.Command, config *crawler.Config) {
	out := cmd.ErrOrStderr()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(out, "║                      fragcrawl v%-29s║\n", version)
	fmt.Fprintln(out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)
	for _, t := range config.Targets {
		fmt.Fprintf(out, "Category:    %s  %s\n", t.Label, t.URL)
	}
	fmt.Fprintf(out, "Output:      %s (%s)\n", config.Output.Dir, config.Output.Format)
	fmt.Fprintf(out, "Sessions:    %d\n", config.Parallelism)
	fmt.Fprintf(out, "Item delay:  %s - %s\n", config.RateLimit.DelayMin, config.RateLimit.DelayMax)
	fmt.Fprintln(out)
}

func printSummary(cmd *cobra.Command, run *crawler.RunResult, snap *metrics.Snapshot) {
	out := cmd.ErrOrStderr()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║                       Crawl Summary                          ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Duration:        %v\n", run.Stats.Duration.Round(time.Second))
	fmt.Fprintf(out, "Categories:      %d (%d done, %d empty, %d abandoned, %d skipped)\n",
		run.Stats.Categories, run.Stats.CategoriesDone, run.Stats.CategoriesEmpty,
		run.Stats.CategoriesAbandoned, run.Stats.CategoriesSkipped)
	fmt.Fprintf(out, "Item links:      %d\n", run.Stats.Links)
	fmt.Fprintf(out, "Records:         %d\n", run.Stats.Records)
	fmt.Fprintf(out, "Failed items:    %d\n", run.Stats.ItemsFailed)
	fmt.Fprintf(out, "Pages rendered:  %d (avg %v)\n", snap.Renders, snap.AverageRender.Round(time.Millisecond))
	fmt.Fprintf(out, "Item pauses:     %d (%v total)\n", run.Stats.Waits, run.Stats.TotalDelay.Round(time.Second))
	if run.Stats.URLsSeen > 0 {
		fmt.Fprintf(out, "Distinct URLs:   %d\n", run.Stats.URLsSeen)
	}
	fmt.Fprintln(out)

	for _, cat := range run.Categories {
		line := fmt.Sprintf("  [%s] %s", cat.State, cat.Target.Label)
		if cat.Path != "" {
			line += fmt.Sprintf(" -> %s (%d rows)", cat.Path, len(cat.Records))
		}
		if cat.Err != nil {
			line += fmt.Sprintf(": %v", cat.Err)
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)
}
