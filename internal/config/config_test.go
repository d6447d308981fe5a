package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig documents the defaults; a failing case means a default
// changed.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	checks := []struct {
		name string
		ok   bool
	}{
		{"max depth is 10", cfg.MaxDepth == 10},
		{"max pages is 200", cfg.MaxPages == 200},
		{"concurrency is 4", cfg.Concurrency == 4},
		{"timeout is 30s", cfg.Timeout == 30*time.Second},
		{"delay is 250ms", cfg.Delay == 250*time.Millisecond},
		{"selector is main", cfg.Selector == "main"},
		{"output dir is ./crawled_docs", cfg.OutputDir == "./crawled_docs"},
		{"collision policy is suffix", cfg.CollisionPolicy == "suffix"},
		{"max body size is 10MiB", cfg.MaxBodySize == 10<<20},
		{"no retries", cfg.MaxRetries == 0},
		{"retry backoff is 1s", cfg.RetryBackoff == time.Second},
		{"three sink failures abort", cfg.MaxSinkFailures == 3},
		{"http fetcher", cfg.Fetcher == FetcherHTTP},
		{"text report", cfg.ReportFormat == "text"},
		{"history db in data dir", cfg.DBDir == XDGDataDir()},
		{"robots off", !cfg.Robots},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			if !c.ok {
				t.Errorf("unexpected default: %+v", cfg)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.StartURL = "https://example.com/docs/"
		return cfg
	}

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()
		if err := validConfig().Validate(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"missing start url", func(c *Config) { c.StartURL = "" }, ErrInvalidStartURL},
		{"relative start url", func(c *Config) { c.StartURL = "/docs" }, ErrInvalidStartURL},
		{"ftp start url", func(c *Config) { c.StartURL = "ftp://example.com/docs" }, ErrInvalidStartURL},
		{"unparseable start url", func(c *Config) { c.StartURL = "http://[::1" }, ErrInvalidStartURL},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }, ErrInvalidMaxDepth},
		{"zero pages", func(c *Config) { c.MaxPages = 0 }, ErrInvalidMaxPages},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, ErrInvalidConcurrency},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"negative delay", func(c *Config) { c.Delay = -time.Second }, ErrInvalidDelay},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, ErrInvalidRetries},
		{"negative backoff", func(c *Config) { c.RetryBackoff = -1 }, ErrInvalidRetries},
		{"negative body size", func(c *Config) { c.MaxBodySize = -1 }, ErrInvalidMaxBodySize},
		{"zero body size", func(c *Config) { c.MaxBodySize = 0 }, ErrInvalidMaxBodySize},
		{"empty output dir", func(c *Config) { c.OutputDir = " " }, ErrEmptyOutputDir},
		{"empty selector", func(c *Config) { c.Selector = "" }, ErrEmptySelector},
		{"unknown collision policy", func(c *Config) { c.CollisionPolicy = "rename" }, ErrInvalidCollisionPolicy},
		{"unknown fetcher", func(c *Config) { c.Fetcher = "curl" }, ErrInvalidFetcher},
		{"unknown report format", func(c *Config) { c.ReportFormat = "html" }, ErrInvalidReportFormat},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, ErrInvalidLogFormat},
		{"bad include regex", func(c *Config) { c.Include = []string{"(unclosed"} }, ErrInvalidPattern},
		{"bad exclude regex", func(c *Config) { c.Exclude = []string{"[z-a]"} }, ErrInvalidPattern},
		{"bad ignore glob", func(c *Config) { c.Ignore = []string{"/docs/["} }, ErrInvalidPattern},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("depth zero is valid", func(t *testing.T) {
		t.Parallel()

		cfg := validConfig()
		cfg.MaxDepth = 0
		cfg.Delay = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}

func TestConfigDomain(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.StartURL = "https://Docs.Example.com:8443/guide/"
	if got := cfg.Domain(); got != "Docs.Example.com" {
		t.Errorf("expected host from start url, got %q", got)
	}

	cfg.AllowedDomain = "example.com"
	if got := cfg.Domain(); got != "example.com" {
		t.Errorf("expected override, got %q", got)
	}

	cfg = NewConfig()
	cfg.StartURL = "not a url"
	if got := cfg.Domain(); got != "" {
		t.Errorf("expected empty domain for invalid url, got %q", got)
	}
}

func intPtr(n int) *int { return &n }

func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	cf := &File{
		Defaults: SiteConfig{
			Selector: "article",
			Depth:    intPtr(3),
			Headers:  map[string]string{"Accept-Language": "en"},
			Ignore:   []string{"/docs/old/*"},
		},
		Sites: map[string]SiteConfig{
			"docs.example.com": {
				Selector: "div.content",
				MaxPages: intPtr(50),
				Headers:  map[string]string{"X-Team": "docs"},
			},
			"localhost:8080": {
				Depth: intPtr(0),
			},
			"localhost": {
				Selector: "body",
			},
		},
	}

	t.Run("unknown host returns defaults", func(t *testing.T) {
		t.Parallel()

		sc := cf.GetSiteConfig("other.example.com")
		if sc.Selector != "article" || *sc.Depth != 3 || sc.MaxPages != nil {
			t.Errorf("unexpected config %+v", sc)
		}
	})

	t.Run("site overrides and merges headers", func(t *testing.T) {
		t.Parallel()

		sc := cf.GetSiteConfig("Docs.Example.com")
		if sc.Selector != "div.content" {
			t.Errorf("expected site selector, got %q", sc.Selector)
		}
		if sc.Depth == nil || *sc.Depth != 3 {
			t.Error("expected default depth to remain")
		}
		if sc.MaxPages == nil || *sc.MaxPages != 50 {
			t.Error("expected site max pages")
		}
		if sc.Headers["Accept-Language"] != "en" || sc.Headers["X-Team"] != "docs" {
			t.Errorf("expected merged headers, got %v", sc.Headers)
		}
		if len(sc.Ignore) != 1 {
			t.Errorf("expected default ignore patterns, got %v", sc.Ignore)
		}
		if _, leaked := cf.Defaults.Headers["X-Team"]; leaked {
			t.Error("merging must not modify the defaults")
		}
	})

	t.Run("port-specific entry wins", func(t *testing.T) {
		t.Parallel()

		sc := cf.GetSiteConfig("localhost:8080")
		if sc.Depth == nil || *sc.Depth != 0 {
			t.Errorf("expected explicit depth 0, got %v", sc.Depth)
		}
		if sc.Selector != "article" {
			t.Errorf("expected defaults selector, got %q", sc.Selector)
		}
	})

	t.Run("host entry matches any port", func(t *testing.T) {
		t.Parallel()

		sc := cf.GetSiteConfig("localhost:9999")
		if sc.Selector != "body" {
			t.Errorf("expected host entry, got %q", sc.Selector)
		}
	})
}

func TestApplySite(t *testing.T) {
	t.Parallel()

	sc := SiteConfig{
		Selector:  "article",
		Prefix:    "/guide/",
		Depth:     intPtr(0),
		MaxPages:  intPtr(5),
		Cookie:    "session=abc",
		UserAgent: "docs-bot",
		Headers:   map[string]string{"X-A": "file", "X-B": "file"},
		Include:   []string{"guide"},
		Exclude:   []string{"\\.pdf$"},
		Ignore:    []string{"/guide/old/*"},
		Follow:    []string{"/guide/*"},
		Strip:     []string{".edit"},
	}

	t.Run("file values apply when no flag set", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.ApplySite(sc, nil)
		if cfg.Selector != "article" || cfg.Prefix != "/guide/" || cfg.MaxDepth != 0 || cfg.MaxPages != 5 {
			t.Errorf("site values not applied: %+v", cfg)
		}
		if cfg.Cookie != "session=abc" || cfg.UserAgent != "docs-bot" {
			t.Errorf("site request settings not applied: %+v", cfg)
		}
		if len(cfg.Include) != 1 || len(cfg.Exclude) != 1 || len(cfg.Ignore) != 1 || len(cfg.Follow) != 1 || len(cfg.Strip) != 1 {
			t.Errorf("site patterns not applied: %+v", cfg)
		}
	})

	t.Run("explicit flags win", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.Selector = "main.docs"
		cfg.MaxDepth = 4
		cfg.Headers = map[string]string{"X-A": "flag"}
		changed := map[string]bool{"selector": true, "depth": true}

		cfg.ApplySite(sc, func(name string) bool { return changed[name] })
		if cfg.Selector != "main.docs" || cfg.MaxDepth != 4 {
			t.Errorf("flags overridden by file: %+v", cfg)
		}
		if cfg.MaxPages != 5 {
			t.Errorf("expected unset flag to take file value, got %d", cfg.MaxPages)
		}
		if cfg.Headers["X-A"] != "flag" || cfg.Headers["X-B"] != "file" {
			t.Errorf("unexpected headers %v", cfg.Headers)
		}
	})
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.doccrawl")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".doccrawl")
		content := `defaults:
  selector: main
  depth: 4
sites:
  docs.example.com:
    selector: "div.markdown-body"
    prefix: /v2/
    depth: 0
    max_pages: 30
    cookie: "session=xyz"
    headers:
      Authorization: "Bearer token"
    exclude:
      - "\\.zip$"
    ignore:
      - "/v2/changelog/*"
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cf, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cf.Defaults.Selector != "main" || cf.Defaults.Depth == nil || *cf.Defaults.Depth != 4 {
			t.Errorf("unexpected defaults %+v", cf.Defaults)
		}

		site, ok := cf.Sites["docs.example.com"]
		if !ok {
			t.Fatal("expected docs.example.com in sites")
		}
		if site.Depth == nil || *site.Depth != 0 {
			t.Error("expected explicit depth 0 to be kept")
		}
		if site.MaxPages == nil || *site.MaxPages != 30 {
			t.Error("expected max_pages 30")
		}
		if site.Headers["Authorization"] != "Bearer token" || site.Prefix != "/v2/" {
			t.Errorf("unexpected site %+v", site)
		}
		if len(site.Exclude) != 1 || site.Exclude[0] != `\.zip$` {
			t.Errorf("unexpected exclude %v", site.Exclude)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".doccrawl")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".doccrawl")
		if err := os.WriteFile(configPath, []byte("defaults:\n  depth: 2\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		cf, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cf.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Run("returns explicit path if exists", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if got := FindConfigFile(configPath); got != configPath {
			t.Errorf("expected %q, got %q", configPath, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		if got := FindConfigFile("/nonexistent/path/config.yaml"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("finds file in current directory", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if got := FindConfigFile(""); filepath.Base(got) != DefaultConfigFile || filepath.Dir(got) == "" {
			t.Errorf("expected config in cwd, got %q", got)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if filepath.Base(XDGDataDir()) != AppName {
		t.Errorf("unexpected data dir %q", XDGDataDir())
	}
	if filepath.Base(XDGConfigDir()) != AppName {
		t.Errorf("unexpected config dir %q", XDGConfigDir())
	}
}
