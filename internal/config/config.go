package config

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "doccrawl"

	// DefaultMaxDepth bounds the link distance from the start URL.
	DefaultMaxDepth = 10

	// DefaultMaxPages bounds successful fetches per invocation.
	DefaultMaxPages = 200

	// DefaultConcurrency is the number of pages processed at the same time.
	// Documentation sites are often small servers; four keeps the crawl
	// polite while hiding most of the latency.
	DefaultConcurrency = 4

	// DefaultTimeout applies to one request, redirects included.
	DefaultTimeout = 30 * time.Second

	// DefaultDelay is the minimum interval between two requests.
	DefaultDelay = 250 * time.Millisecond

	// DefaultSelector picks the main content region.
	DefaultSelector = "main"

	// DefaultOutputDir receives the markdown files.
	DefaultOutputDir = "./crawled_docs"

	// DefaultMaxBodySize caps response bodies at 10 MiB.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultCollisionPolicy keeps the first owner of a filename.
	DefaultCollisionPolicy = "suffix"

	// DefaultMaxRetries disables retries of transient failures.
	DefaultMaxRetries = 0

	// DefaultRetryBackoff is the wait before the first retry.
	DefaultRetryBackoff = 1 * time.Second

	// DefaultMaxSinkFailures consecutive write failures abort the crawl.
	DefaultMaxSinkFailures = 3

	// DefaultFetcher is the plain HTTP fetcher.
	DefaultFetcher = FetcherHTTP

	// DefaultReportFormat is the terminal summary.
	DefaultReportFormat = "text"

	// DefaultLogFormat is slog's text handler.
	DefaultLogFormat = "text"
)

// Fetcher kinds.
const (
	FetcherHTTP    = "http"
	FetcherBrowser = "browser"
)

// Config holds every setting of one crawl invocation. It is populated from
// defaults, the configuration file and CLI flags, in that order, and passed
// down explicitly.
type Config struct {
	// StartURL is the absolute URL the crawl begins at.
	StartURL string

	// Prefix restricts admitted URLs to a path subtree. Empty means the
	// directory of the start URL.
	Prefix string

	// AllowedDomain overrides the host derived from StartURL.
	AllowedDomain string

	// AllowSubdomains also admits subdomains of the allowed domain.
	AllowSubdomains bool

	MaxDepth    int
	MaxPages    int
	Concurrency int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Delay is the minimum interval between requests. Zero disables pacing.
	Delay time.Duration

	// Selector locates the main content region.
	Selector string

	// Strip lists selectors removed from the region before conversion.
	Strip []string

	// OutputDir receives one markdown file per page. It is created if absent.
	OutputDir string

	// CollisionPolicy is "suffix" or "overwrite".
	CollisionPolicy string

	MaxBodySize     int64
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxSinkFailures int

	// Fetcher is "http" or "browser".
	Fetcher string

	// BrowserPath is the Chrome executable used by the browser fetcher.
	// Empty lets chromedp find one.
	BrowserPath string

	// WaitSelector makes the browser fetcher wait for an element.
	WaitSelector string

	// Proxy is a socks5:// proxy URL.
	Proxy string

	UserAgent string
	Headers   map[string]string
	Cookie    string

	// Include and Exclude are regular expressions matched against the
	// full URL.
	Include []string
	Exclude []string

	// Ignore and Follow are glob patterns matched against the URL path.
	Ignore []string
	Follow []string

	// Robots enables robots.txt rules and crawl-delay.
	Robots bool

	// Nofollow skips links marked rel="nofollow".
	Nofollow bool

	// MetricsAddr starts a /metrics listener when set.
	MetricsAddr string

	// ReportFormat is "text", "markdown" or "json".
	ReportFormat string

	// ReportFile receives the report instead of stdout.
	ReportFile string

	// NoHistory disables the SQLite crawl history.
	NoHistory bool

	// DBDir holds the history database. Defaults to XDGDataDir.
	DBDir string

	Verbose bool

	// LogFormat is "text" or "json".
	LogFormat string

	// ConfigFilePath is the configuration file given with --config.
	ConfigFilePath string

	// SiteConfigs is the loaded configuration file, if any.
	SiteConfigs *File
}

// NewConfig returns a Config populated with the defaults.
func NewConfig() *Config {
	return &Config{
		MaxDepth:        DefaultMaxDepth,
		MaxPages:        DefaultMaxPages,
		Concurrency:     DefaultConcurrency,
		Timeout:         DefaultTimeout,
		Delay:           DefaultDelay,
		Selector:        DefaultSelector,
		OutputDir:       DefaultOutputDir,
		CollisionPolicy: DefaultCollisionPolicy,
		MaxBodySize:     DefaultMaxBodySize,
		MaxRetries:      DefaultMaxRetries,
		RetryBackoff:    DefaultRetryBackoff,
		MaxSinkFailures: DefaultMaxSinkFailures,
		Fetcher:         DefaultFetcher,
		ReportFormat:    DefaultReportFormat,
		LogFormat:       DefaultLogFormat,
		DBDir:           XDGDataDir(),
	}
}

// XDGDataDir returns the data directory that holds the crawl history.
// On Linux: ~/.local/share/doccrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the doccrawl configuration directory.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ParsedStartURL returns StartURL parsed. Call Validate first.
func (c *Config) ParsedStartURL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(c.StartURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStartURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStartURL, c.StartURL)
	}
	return u, nil
}

// Domain returns the host that links must belong to.
func (c *Config) Domain() string {
	if c.AllowedDomain != "" {
		return c.AllowedDomain
	}
	u, err := c.ParsedStartURL()
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if _, err := c.ParsedStartURL(); err != nil {
		return err
	}

	switch {
	case c.MaxDepth < 0:
		return ErrInvalidMaxDepth
	case c.MaxPages <= 0:
		return ErrInvalidMaxPages
	case c.Concurrency <= 0:
		return ErrInvalidConcurrency
	case c.Timeout <= 0:
		return ErrInvalidTimeout
	case c.Delay < 0:
		return ErrInvalidDelay
	case c.MaxRetries < 0 || c.RetryBackoff < 0:
		return ErrInvalidRetries
	case c.MaxBodySize <= 0:
		return ErrInvalidMaxBodySize
	case strings.TrimSpace(c.OutputDir) == "":
		return ErrEmptyOutputDir
	case strings.TrimSpace(c.Selector) == "":
		return ErrEmptySelector
	}

	if !oneOf(c.CollisionPolicy, "suffix", "overwrite") {
		return fmt.Errorf("%w: %q", ErrInvalidCollisionPolicy, c.CollisionPolicy)
	}
	if !oneOf(c.Fetcher, FetcherHTTP, FetcherBrowser) {
		return fmt.Errorf("%w: %q", ErrInvalidFetcher, c.Fetcher)
	}
	if !oneOf(c.ReportFormat, "text", "markdown", "json") {
		return fmt.Errorf("%w: %q", ErrInvalidReportFormat, c.ReportFormat)
	}
	if !oneOf(c.LogFormat, "text", "json") {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}

	for _, expr := range append(append([]string{}, c.Include...), c.Exclude...) {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}
	}
	for _, glob := range append(append([]string{}, c.Ignore...), c.Follow...) {
		if _, err := path.Match(glob, ""); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrInvalidPattern, glob, err)
		}
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// ApplySite merges a site entry into c. Settings whose flag was set on the
// command line, as reported by changed, keep their flag value.
func (c *Config) ApplySite(sc SiteConfig, changed func(flag string) bool) {
	if changed == nil {
		changed = func(string) bool { return false }
	}

	if sc.Selector != "" && !changed("selector") {
		c.Selector = sc.Selector
	}
	if sc.Prefix != "" && !changed("prefix") {
		c.Prefix = sc.Prefix
	}
	if sc.Depth != nil && !changed("depth") {
		c.MaxDepth = *sc.Depth
	}
	if sc.MaxPages != nil && !changed("max-pages") {
		c.MaxPages = *sc.MaxPages
	}
	if sc.Cookie != "" && !changed("cookie") {
		c.Cookie = sc.Cookie
	}
	if sc.UserAgent != "" && !changed("user-agent") {
		c.UserAgent = sc.UserAgent
	}
	if len(sc.Strip) > 0 && !changed("strip") {
		c.Strip = sc.Strip
	}
	if len(sc.Include) > 0 && !changed("include") {
		c.Include = sc.Include
	}
	if len(sc.Exclude) > 0 && !changed("exclude") {
		c.Exclude = sc.Exclude
	}
	if len(sc.Ignore) > 0 && !changed("ignore") {
		c.Ignore = sc.Ignore
	}
	if len(sc.Follow) > 0 && !changed("follow") {
		c.Follow = sc.Follow
	}

	// Headers merge; a header given with --header wins over the file.
	if len(sc.Headers) > 0 {
		merged := make(map[string]string, len(sc.Headers)+len(c.Headers))
		for k, v := range sc.Headers {
			merged[k] = v
		}
		for k, v := range c.Headers {
			merged[k] = v
		}
		c.Headers = merged
	}
}
