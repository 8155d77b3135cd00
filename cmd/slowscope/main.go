package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/slowscope/internal/output"
	"github.com/PentesterFlow/slowscope/internal/progress"
	"github.com/PentesterFlow/slowscope/internal/shutdown"
	"github.com/PentesterFlow/slowscope/pkg/scanner"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	saveConfig string
	verbose    bool
	debug      bool
	jsonLogs   bool
	logLevel   string

	// Crawl flags
	maxDepth        int
	maxPages        int
	crawlDelay      time.Duration
	excludePatterns []string
	noHeadless      bool
	userAgent       string
	browserURL      string
	headers         []string

	// Fuzz flags
	trials       int
	topK         int
	dedup        bool
	probeDelay   time.Duration
	rateLimit    float64
	probeTimeout time.Duration
	seed         int64

	// Output flags
	outputFile       string
	stateFile        string
	reportOutput     bool
	streamOutput     bool
	compactOutput    bool
	interval         time.Duration
	proxyPlaceholder string

	// Display flags
	noProgress bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree and binds every flag to its default.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "slowscope [target]",
		Short: "slowscope - API latency fuzzer",
		Long: `slowscope - Find the request payloads that make a web application slow.

Renders the target in a headless browser, records the XHR/fetch endpoints it calls,
probes every parameter with edge-case values and writes load-test descriptors for
the slowest payloads.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		RunE:          runScan,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	crawlCmd := &cobra.Command{
		Use:   "crawl [target]",
		Short: "Discover endpoints without fuzzing",
		Long:  "Crawl a target URL and record the API endpoints it calls. Use --state-file to keep them for a later fuzz run.",
		Args:  cobra.ExactArgs(1),
		RunE:  runCrawl,
	}

	fuzzCmd := &cobra.Command{
		Use:   "fuzz",
		Short: "Fuzz endpoints recorded by an earlier crawl",
		Long:  "Fuzz the endpoints stored in a state file by 'slowscope crawl' and write load-test descriptors.",
		Args:  cobra.NoArgs,
		RunE:  runFuzz,
	}

	descriptorsCmd := &cobra.Command{
		Use:   "descriptors [scan-id]",
		Short: "Print descriptors stored by an earlier scan",
		Long:  "Write the load-test descriptors kept in a state file. Without a scan ID the latest scan is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDescriptors,
	}

	flags := rootCmd.PersistentFlags()

	// Global flags
	flags.StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	flags.StringVar(&saveConfig, "save-config", "", "Write the effective configuration to this file (.json for JSON, YAML otherwise)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	flags.BoolVar(&debug, "debug", false, "Debug mode")
	flags.BoolVar(&jsonLogs, "json-logs", false, "Log as JSON lines instead of console output")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides --verbose and --debug")

	// Crawl flags
	flags.IntVarP(&maxDepth, "depth", "d", 2, "Maximum crawl depth (the target page is depth 1)")
	flags.IntVar(&maxPages, "max-pages", 200, "Maximum pages to render (0 = unbounded)")
	flags.DurationVar(&crawlDelay, "crawl-delay", 100*time.Millisecond, "Delay before each child page render")
	flags.StringArrayVar(&excludePatterns, "exclude", nil, "Link patterns never followed (regex)")
	flags.BoolVar(&noHeadless, "no-headless", false, "Show the browser window")
	flags.StringVar(&userAgent, "user-agent", "", "Browser and probe user agent")
	flags.StringVar(&browserURL, "browser-url", "", "DevTools URL of a running browser instead of launching one")
	flags.StringArrayVarP(&headers, "header", "H", nil, "Custom header 'Name: value' (repeatable)")

	// Fuzz flags
	flags.IntVarP(&trials, "trials", "t", 5, "Probes per payload")
	flags.IntVarP(&topK, "top-k", "k", 3, "Slowest payloads kept per endpoint")
	flags.BoolVar(&dedup, "dedup", false, "Rank each distinct payload once")
	flags.DurationVar(&probeDelay, "probe-delay", 100*time.Millisecond, "Delay awaited before each probe")
	flags.Float64VarP(&rateLimit, "rate-limit", "r", 0, "Maximum probes per second (0 = unlimited)")
	flags.DurationVar(&probeTimeout, "probe-timeout", 30*time.Second, "Timeout of a single probe")
	flags.Int64Var(&seed, "seed", 0, "Seed for generated object values")

	// Output flags
	flags.StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	flags.StringVar(&stateFile, "state-file", "", "State file for persistence")
	flags.BoolVar(&reportOutput, "report", false, "Write the full report instead of descriptors")
	flags.BoolVar(&streamOutput, "stream", false, "Write one descriptor per line as they are produced")
	flags.BoolVar(&compactOutput, "compact", false, "Disable pretty printing")
	flags.DurationVar(&interval, "interval", 100*time.Millisecond, "Request interval written into descriptors")
	flags.StringVar(&proxyPlaceholder, "proxy-placeholder", "{{proxy_urls}}", "Proxy list placeholder written into descriptors")

	// Display flags
	flags.BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(fuzzCmd)
	rootCmd.AddCommand(descriptorsCmd)

	return rootCmd
}

func runScan(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, args[0])
	if err != nil {
		return err
	}

	s, err := scanner.New(scanner.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}
	attachProgress(s, config)

	h := newShutdownHandler()
	defer h.Stop()

	printBanner(config)

	result, err := s.Run(h.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	printSummary(result)
	return nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, args[0])
	if err != nil {
		return err
	}
	if !config.State.Enabled() {
		fmt.Fprintln(os.Stderr, "No --state-file given: discovered endpoints will not be kept for 'slowscope fuzz'.")
	}

	s, err := scanner.New(scanner.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}

	h := newShutdownHandler()
	defer h.Stop()

	printBanner(config)

	session, err := s.Crawl(h.Context())
	if session == nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	if err != nil && h.Context().Err() == nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	printEndpoints(session.Registry.Endpoints())
	fmt.Fprintf(os.Stderr, "Pages rendered: %d, render failures: %d, endpoints: %d\n",
		session.PagesRendered, session.RenderFailures, session.Registry.Len())
	if session.Truncated {
		fmt.Fprintln(os.Stderr, "Page limit reached; raise --max-pages to crawl further.")
	}
	if config.State.Enabled() {
		fmt.Fprintf(os.Stderr, "Endpoints saved to %s\n", config.State.FilePath)
	}
	return nil
}

func runFuzz(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, "")
	if err != nil {
		return err
	}
	if !config.State.Enabled() {
		return fmt.Errorf("--state-file is required")
	}

	s, err := scanner.New(scanner.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}
	attachProgress(s, config)

	h := newShutdownHandler()
	defer h.Stop()

	result, err := s.FuzzStored(h.Context())
	if err != nil {
		return fmt.Errorf("fuzz failed: %w", err)
	}

	printSummary(result)
	return nil
}

func runDescriptors(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, "")
	if err != nil {
		return err
	}
	if !config.State.Enabled() {
		return fmt.Errorf("--state-file is required")
	}

	scanID := ""
	if len(args) == 1 {
		scanID = args[0]
	}

	s, err := scanner.New(scanner.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}
	descriptors, err := s.ExportDescriptors(scanID)
	if err != nil {
		return fmt.Errorf("failed to export descriptors: %w", err)
	}

	fmt.Fprintf(os.Stderr, "%d descriptors written\n", len(descriptors))
	return nil
}

// buildConfig loads the config file, if any, then applies the flags the
// user set explicitly.
func buildConfig(cmd *cobra.Command, target string) (*scanner.Config, error) {
	config := scanner.DefaultConfig()
	if configFile != "" {
		fileConfig, err := scanner.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	if target != "" {
		config.Target = target
	}

	flags := cmd.Flags()

	if flags.Changed("verbose") {
		config.Verbose = verbose
	}
	if flags.Changed("debug") {
		config.Debug = debug
	}
	if flags.Changed("json-logs") {
		config.JSONLogs = jsonLogs
	}
	if flags.Changed("log-level") {
		config.LogLevel = logLevel
	}

	if flags.Changed("depth") {
		config.Crawl.MaxDepth = maxDepth
	}
	if flags.Changed("max-pages") {
		config.Crawl.MaxPages = maxPages
	}
	if flags.Changed("crawl-delay") {
		config.Crawl.Delay = crawlDelay
	}
	if flags.Changed("exclude") {
		config.Crawl.ExcludePatterns = append(config.Crawl.ExcludePatterns, excludePatterns...)
	}
	if flags.Changed("no-headless") {
		config.Browser.Headless = !noHeadless
	}
	if flags.Changed("user-agent") {
		config.Browser.UserAgent = userAgent
	}
	if flags.Changed("browser-url") {
		config.Browser.ControlURL = browserURL
	}
	if flags.Changed("header") {
		parsed, err := parseHeaders(headers)
		if err != nil {
			return nil, err
		}
		if config.CustomHeaders == nil {
			config.CustomHeaders = make(map[string]string)
		}
		for k, v := range parsed {
			config.CustomHeaders[k] = v
		}
	}

	if flags.Changed("trials") {
		config.Fuzz.Trials = trials
	}
	if flags.Changed("top-k") {
		config.Fuzz.TopK = topK
	}
	if flags.Changed("dedup") {
		config.Fuzz.DedupPayloads = dedup
	}
	if flags.Changed("probe-delay") {
		config.Fuzz.Delay = probeDelay
	}
	if flags.Changed("rate-limit") {
		config.Fuzz.RequestsPerSecond = rateLimit
	}
	if flags.Changed("probe-timeout") {
		config.HTTP.Timeout = probeTimeout
	}
	if flags.Changed("seed") {
		config.Fuzz.Seed = seed
	}

	if flags.Changed("output") {
		config.Output.FilePath = outputFile
	}
	if flags.Changed("state-file") {
		config.State.FilePath = stateFile
	}
	if flags.Changed("report") && reportOutput {
		config.Output.Format = output.FormatReport
	}
	if flags.Changed("stream") {
		config.Output.Stream = streamOutput
	}
	if flags.Changed("compact") {
		config.Output.Pretty = !compactOutput
	}
	if flags.Changed("interval") {
		config.Descriptor.Interval = interval
	}
	if flags.Changed("proxy-placeholder") {
		config.Descriptor.ProxyPlaceholder = proxyPlaceholder
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if saveConfig != "" {
		if err := config.SaveToFile(saveConfig); err != nil {
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
	}
	return config, nil
}

// parseHeaders parses "Name: value" pairs.
func parseHeaders(raw []string) (map[string]string, error) {
	parsed := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, want 'Name: value'", h)
		}
		parsed[name] = strings.TrimSpace(value)
	}
	return parsed, nil
}

func attachProgress(s *scanner.Scanner, config *scanner.Config) {
	// log lines would break the bar
	if noProgress || config.Verbose || config.Debug {
		return
	}
	s.SetProgress(progress.New(os.Stderr))
}

func newShutdownHandler() *shutdown.Handler {
	return shutdown.New(context.Background(), shutdown.Config{
		OnShutdownStart: func(sig os.Signal) {
			fmt.Fprintf(os.Stderr, "\nReceived %v, stopping and writing partial results...\n", sig)
		},
	})
}
