package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/doccrawl/internal/config"
	"github.com/nao1215/doccrawl/internal/coordinator"
	"github.com/nao1215/doccrawl/internal/database"
	"github.com/nao1215/doccrawl/internal/extract"
	"github.com/nao1215/doccrawl/internal/fetch"
	seclog "github.com/nao1215/doccrawl/internal/log"
	"github.com/nao1215/doccrawl/internal/metrics"
	"github.com/nao1215/doccrawl/internal/model"
	"github.com/nao1215/doccrawl/internal/report"
	"github.com/nao1215/doccrawl/internal/scope"
	"github.com/nao1215/doccrawl/internal/sink"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <start-url>",
		Short: "Crawl a documentation site and save its pages as markdown",
		Long: `Crawl fetches the start URL and follows links breadth-first while they stay
on the same domain and under the base path, up to --depth link hops and
--max-pages successful fetches. The main content of every page (the
--selector region, or the whole body when it is missing) is converted to
markdown and written to the output directory, one file per page.

Examples:
  # Crawl everything under /docs/
  doccrawl crawl https://example.com/docs/

  # Small, shallow crawl into a custom directory
  doccrawl crawl --max-pages 20 --depth 2 -o ./site https://example.com/docs/

  # Render JavaScript-heavy pages with headless Chrome
  doccrawl crawl --fetcher browser https://spa.example.com/docs/

  # Honor robots.txt and expose Prometheus metrics
  doccrawl crawl --robots --metrics-addr 127.0.0.1:9090 https://example.com/docs/

Configuration file (.doccrawl) example:
  defaults:
    selector: main
  sites:
    docs.example.com:
      selector: "article.content"
      prefix: /guide/
      exclude:
        - "\\.pdf$"`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	// Scope
	cmd.Flags().String("prefix", "",
		"Base path prefix of admitted URLs (default: directory of the start URL)")
	cmd.Flags().String("domain", "",
		"Allowed domain (default: host of the start URL)")
	cmd.Flags().Bool("allow-subdomains", false,
		"Also crawl subdomains of the allowed domain")
	cmd.Flags().StringSlice("include", nil,
		"Only crawl URLs matching one of these regular expressions")
	cmd.Flags().StringSlice("exclude", nil,
		"Skip URLs matching one of these regular expressions")
	cmd.Flags().StringSlice("ignore", nil,
		"Skip URL paths matching these glob patterns")
	cmd.Flags().StringSlice("follow", nil,
		"Only crawl URL paths matching these glob patterns")
	cmd.Flags().Bool("robots", false,
		"Honor robots.txt rules and crawl-delay")
	cmd.Flags().Bool("nofollow", false,
		`Skip links marked rel="nofollow"`)

	// Limits
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link distance from the start URL")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to fetch")
	cmd.Flags().IntP("concurrency", "c", config.DefaultConcurrency,
		"Number of pages processed in parallel")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Duration("delay", config.DefaultDelay,
		"Minimum delay between requests")
	cmd.Flags().Int("retries", config.DefaultMaxRetries,
		"Retries for transient failures (timeouts, 5xx, connection errors)")
	cmd.Flags().Duration("retry-backoff", config.DefaultRetryBackoff,
		"Wait before the first retry; doubles after each attempt")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")

	// Extraction and output
	cmd.Flags().StringP("selector", "s", config.DefaultSelector,
		"CSS selector of the main content region")
	cmd.Flags().StringSlice("strip", nil,
		"CSS selectors removed from the content before conversion")
	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Output directory for markdown files")
	cmd.Flags().String("collision", config.DefaultCollisionPolicy,
		"Filename collision policy: suffix or overwrite")
	cmd.Flags().Int("max-sink-failures", config.DefaultMaxSinkFailures,
		"Abort after this many consecutive write failures")

	// Requests
	cmd.Flags().String("fetcher", config.DefaultFetcher,
		"Fetcher: http or browser (headless Chrome)")
	cmd.Flags().String("browser-path", "",
		"Chrome executable for --fetcher browser")
	cmd.Flags().String("wait-selector", "",
		"Element the browser waits for before reading the page")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy URL (e.g. socks5://127.0.0.1:9050)")
	cmd.Flags().String("user-agent", "",
		"User-Agent header (default: doccrawl/<version>)")
	cmd.Flags().StringArrayP("header", "H", nil,
		`Extra request header "Name: value" (repeatable)`)
	cmd.Flags().String("cookie", "",
		`Cookie header value, e.g. "session=abc"`)

	// Config file, reporting, history
	cmd.Flags().String("config", "",
		"Configuration file path (default: .doccrawl in current or home directory)")
	cmd.Flags().String("report", config.DefaultReportFormat,
		"Summary format: text, markdown or json")
	cmd.Flags().String("report-file", "",
		"Write the summary to this file instead of stdout")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics at this address during the crawl")
	cmd.Flags().Bool("no-history", false,
		"Do not record the crawl in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
	cmd.Flags().BoolP("quiet", "q", false,
		"Do not print a line per page")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd, cfg)
	slog.SetDefault(logger)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, stopping crawl")
			cancel()
		case <-ctx.Done():
		}
	}()

	quiet, _ := cmd.Flags().GetBool("quiet") //nolint:errcheck // flag is registered above
	var progress io.Writer
	if !quiet {
		progress = cmd.ErrOrStderr()
	}

	summary, crawlErr := runCrawl(ctx, cfg, logger, progress)
	if summary.State == model.StateReady {
		// Nothing ran: setup failed before the first request.
		return crawlErr
	}

	if err := writeReport(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, &summary); err != nil {
		logger.Error("failed to write report", "error", err)
		if crawlErr == nil {
			return err
		}
	}
	return crawlErr
}

// flagReader collects flag lookup errors so buildConfig reads linearly.
type flagReader struct {
	cmd *cobra.Command
	err error
}

func (r *flagReader) str(name string) string {
	v, err := r.cmd.Flags().GetString(name)
	r.keep(err)
	return v
}

func (r *flagReader) integer(name string) int {
	v, err := r.cmd.Flags().GetInt(name)
	r.keep(err)
	return v
}

func (r *flagReader) boolean(name string) bool {
	v, err := r.cmd.Flags().GetBool(name)
	r.keep(err)
	return v
}

func (r *flagReader) slice(name string) []string {
	v, err := r.cmd.Flags().GetStringSlice(name)
	r.keep(err)
	return v
}

func (r *flagReader) keep(err error) {
	if err != nil && r.err == nil {
		r.err = err
	}
}

// buildConfig creates a Config from defaults, the configuration file and
// the command line, in increasing precedence.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	r := &flagReader{cmd: cmd}

	if len(args) > 0 {
		cfg.StartURL = strings.TrimSpace(args[0])
	}

	cfg.Prefix = r.str("prefix")
	cfg.AllowedDomain = r.str("domain")
	cfg.AllowSubdomains = r.boolean("allow-subdomains")
	cfg.Include = r.slice("include")
	cfg.Exclude = r.slice("exclude")
	cfg.Ignore = r.slice("ignore")
	cfg.Follow = r.slice("follow")
	cfg.Robots = r.boolean("robots")
	cfg.Nofollow = r.boolean("nofollow")

	cfg.MaxDepth = r.integer("depth")
	cfg.MaxPages = r.integer("max-pages")
	cfg.Concurrency = r.integer("concurrency")
	cfg.MaxRetries = r.integer("retries")
	cfg.MaxSinkFailures = r.integer("max-sink-failures")

	var err error
	if cfg.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = cmd.Flags().GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.RetryBackoff, err = cmd.Flags().GetDuration("retry-backoff"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = cmd.Flags().GetInt64("max-body-size"); err != nil {
		return nil, err
	}

	cfg.Selector = r.str("selector")
	cfg.Strip = r.slice("strip")
	cfg.OutputDir = r.str("output")
	cfg.CollisionPolicy = r.str("collision")

	cfg.Fetcher = r.str("fetcher")
	cfg.BrowserPath = r.str("browser-path")
	cfg.WaitSelector = r.str("wait-selector")
	cfg.Proxy = r.str("proxy")
	cfg.UserAgent = r.str("user-agent")
	cfg.Cookie = r.str("cookie")

	cfg.ConfigFilePath = r.str("config")
	cfg.ReportFormat = r.str("report")
	cfg.ReportFile = r.str("report-file")
	cfg.MetricsAddr = r.str("metrics-addr")
	cfg.NoHistory = r.boolean("no-history")
	cfg.DBDir = r.str("db-dir")
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.LogFormat = getLogFormat(cmd)

	if r.err != nil {
		return nil, r.err
	}

	rawHeaders, err := cmd.Flags().GetStringArray("header")
	if err != nil {
		return nil, err
	}
	if cfg.Headers, err = parseHeaders(rawHeaders); err != nil {
		return nil, err
	}

	// A missing file is an error only when the user named one.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	if u, err := url.Parse(cfg.StartURL); err == nil && u.Host != "" {
		cfg.ApplySite(cfg.SiteConfigs.GetSiteConfig(u.Host), cmd.Flags().Changed)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = userAgent()
	}
	return cfg, nil
}

// parseHeaders turns "Name: value" strings into a map.
func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected \"Name: value\"", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

func getLogFormat(cmd *cobra.Command) string {
	format, err := cmd.Flags().GetString("log-format")
	if err != nil {
		format, err = cmd.Root().PersistentFlags().GetString("log-format")
		if err != nil {
			return config.DefaultLogFormat
		}
	}
	return format
}

// setupLogger creates the credential-masking logger on stderr.
func setupLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return seclog.New(cmd.ErrOrStderr(), seclog.Format(cfg.LogFormat), cfg.Verbose)
}

// runCrawl wires the components for cfg and runs one session. The summary
// state is READY when setup failed before any request was made.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, progress io.Writer) (model.Summary, error) {
	start, err := cfg.ParsedStartURL()
	if err != nil {
		return model.Summary{}, err
	}
	outputDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		outputDir = cfg.OutputDir
	}
	policy, err := sink.ParseCollisionPolicy(cfg.CollisionPolicy)
	if err != nil {
		return model.Summary{}, err
	}
	fileSink, err := sink.NewFileSink(outputDir,
		sink.WithCollisionPolicy(policy),
		sink.WithLogger(logger),
	)
	if err != nil {
		return model.Summary{}, err
	}

	extractor, err := extract.New(cfg.Selector,
		extract.WithStrip(cfg.Strip...),
		extract.WithLogger(logger),
	)
	if err != nil {
		return model.Summary{}, err
	}

	fetcher, closeFetcher, err := newFetcher(ctx, cfg, logger)
	if err != nil {
		return model.Summary{}, err
	}
	defer closeFetcher()

	chain, err := buildChain(cfg, start)
	if err != nil {
		return model.Summary{}, err
	}

	delay := cfg.Delay
	if cfg.Robots {
		robots := loadRobots(ctx, cfg, start, logger)
		if robots != nil {
			chain.Append(scope.NewRobotsFilter(robots.Group))
			if robots.CrawlDelay > delay {
				logger.Info("using robots.txt crawl-delay", "delay", robots.CrawlDelay)
				delay = robots.CrawlDelay
			}
		}
	}

	opts := []coordinator.Option{coordinator.WithLogger(logger)}

	if cfg.MetricsAddr != "" {
		m := metrics.New()
		srv, err := metrics.Serve(cfg.MetricsAddr, m, logger)
		if err != nil {
			return model.Summary{}, err
		}
		defer func() {
			if err := srv.Close(); err != nil {
				logger.Warn("failed to stop metrics server", "error", err)
			}
		}()
		if progress != nil {
			fmt.Fprintf(progress, "Metrics: http://%s/metrics\n", srv.Addr())
		}
		opts = append(opts, coordinator.WithMetrics(m))
	}

	var session *database.Session
	if !cfg.NoHistory {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			logger.Warn("crawl history disabled", "error", err)
		} else {
			defer db.Close()
			session, err = db.StartSession(ctx, start.String(), outputDir, cfg.MaxPages, cfg.MaxDepth)
			if err != nil {
				logger.Warn("crawl history disabled", "error", err)
			} else {
				opts = append(opts, coordinator.WithRecorder(session))
			}
		}
	}

	if progress != nil {
		opts = append(opts, coordinator.WithProgress(func(o model.PageOutcome) {
			printProgress(progress, o)
		}))
	}

	c, err := coordinator.New(coordinator.Settings{
		MaxDepth:        cfg.MaxDepth,
		MaxPages:        cfg.MaxPages,
		Concurrency:     cfg.Concurrency,
		MaxRetries:      cfg.MaxRetries,
		RetryBackoff:    cfg.RetryBackoff,
		MaxSinkFailures: cfg.MaxSinkFailures,
		Delay:           delay,
		OutputDir:       outputDir,
	}, fetcher, extractor, fileSink, chain, opts...)
	if err != nil {
		return model.Summary{}, err
	}

	summary, runErr := c.Run(ctx, start.String())

	if session != nil {
		summary.SessionID = session.ID()
		if err := session.Finish(context.WithoutCancel(ctx), summary); err != nil {
			logger.Warn("failed to record crawl summary", "error", err)
		}
	}
	return summary, runErr
}

// newFetcher returns the configured fetcher and a function releasing it.
func newFetcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (fetch.Fetcher, func(), error) {
	if cfg.Fetcher == config.FetcherBrowser {
		headers := make(map[string]string, len(cfg.Headers)+1)
		for k, v := range cfg.Headers {
			headers[k] = v
		}
		if cfg.Cookie != "" {
			headers["Cookie"] = cfg.Cookie
		}
		opts := []fetch.BrowserOption{
			fetch.WithBrowserTimeout(cfg.Timeout),
			fetch.WithBrowserUserAgent(cfg.UserAgent),
			fetch.WithBrowserHeaders(headers),
			fetch.WithBrowserNofollow(cfg.Nofollow),
			fetch.WithBrowserLogger(logger),
		}
		if cfg.BrowserPath != "" {
			opts = append(opts, fetch.WithExecPath(cfg.BrowserPath))
		}
		if cfg.Proxy != "" {
			opts = append(opts, fetch.WithBrowserProxy(cfg.Proxy))
		}
		if cfg.WaitSelector != "" {
			opts = append(opts, fetch.WithWaitSelector(cfg.WaitSelector))
		}
		b, err := fetch.NewBrowserFetcher(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	}

	h, err := newHTTPFetcher(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return h, func() {}, nil
}

func newHTTPFetcher(cfg *config.Config, logger *slog.Logger) (*fetch.HTTPFetcher, error) {
	opts := []fetch.HTTPOption{
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithHeaders(cfg.Headers),
		fetch.WithCookie(cfg.Cookie),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithNofollow(cfg.Nofollow),
		fetch.WithHTTPLogger(logger),
	}
	if cfg.Proxy != "" {
		opts = append(opts, fetch.WithProxy(cfg.Proxy))
	}
	return fetch.NewHTTPFetcher(opts...)
}

// buildChain assembles the scope filters for links found during the crawl.
func buildChain(cfg *config.Config, start *url.URL) (*scope.Chain, error) {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = scope.DefaultPrefix(start)
	}

	chain := scope.NewChain(
		scope.SchemeFilter{},
		scope.NewDomainFilter(cfg.AllowSubdomains, cfg.Domain()),
		scope.NewPathPrefixFilter(prefix),
	)

	rf, err := scope.NewRegexFilter(cfg.Include, cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidPattern, err)
	}
	if !rf.Empty() {
		chain.Append(rf)
	}
	if pf := scope.NewPatternFilter(cfg.Ignore, cfg.Follow); !pf.Empty() {
		chain.Append(pf)
	}
	return chain, nil
}

// loadRobots returns nil when robots.txt cannot be fetched; the crawl then
// proceeds without robots rules.
func loadRobots(ctx context.Context, cfg *config.Config, start *url.URL, logger *slog.Logger) *fetch.Robots {
	h, err := newHTTPFetcher(cfg, logger)
	if err != nil {
		logger.Warn("robots.txt not loaded", "error", err)
		return nil
	}
	rctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	robots, err := fetch.LoadRobots(rctx, h.Client(), start, cfg.UserAgent)
	if err != nil {
		logger.Warn("robots.txt not loaded", "error", err)
		return nil
	}
	return robots
}

func printProgress(w io.Writer, o model.PageOutcome) {
	switch o.Status {
	case model.PageSaved:
		fmt.Fprintf(w, "saved    %s\n", o.Target.URL)
	case model.PageSinkError:
		fmt.Fprintf(w, "unsaved  %s (%s)\n", o.Target.URL, o.Error)
	default:
		fmt.Fprintf(w, "failed   %s (%s)\n", o.Target.URL, o.Class)
	}
}

// writeReport writes the summary in the configured format. The saved and
// failed counts always reach the terminal, even when the report goes to a
// file or is not plain text.
func writeReport(stdout, stderr io.Writer, cfg *config.Config, s *model.Summary) error {
	format, err := report.ParseFormat(cfg.ReportFormat)
	if err != nil {
		return err
	}

	out := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	w, err := report.New(format, out, getVersion(), cfg.Verbose)
	if err != nil {
		return err
	}
	if _, err := w.Write(s); err != nil {
		return err
	}

	if format != report.FormatText || cfg.ReportFile != "" {
		fmt.Fprintln(stderr, report.SavedLine(s))
		fmt.Fprintf(stderr, "Output: %s\n", s.OutputDir)
	}
	return nil
}
