package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/doccrawl/internal/config"
	"github.com/nao1215/doccrawl/internal/database"
	"github.com/nao1215/doccrawl/internal/model"
	"github.com/nao1215/doccrawl/internal/report"
	"github.com/nao1215/doccrawl/internal/sink"
)

// emptyConfig writes an empty configuration file so tests do not pick up
// a .doccrawl from the working or home directory.
func emptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".doccrawl")
	if err := os.WriteFile(path, []byte("defaults: {}\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// docsServer serves /docs/ with two children, one out-of-scope link and
// one dead link. Paths match exactly, so /docs is a 404.
func docsServer(t *testing.T) *httptest.Server {
	t.Helper()

	links := map[string][]string{
		"/docs/":  {"/docs/a", "/docs/b"},
		"/docs/a": {"/docs/missing"},
		"/docs/b": {"/blog/post"},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /docs/b\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ls, ok := links[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var anchors strings.Builder
		for _, l := range ls {
			fmt.Fprintf(&anchors, `<li><a href="%s">%s</a></li>`, l, l)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><head><title>%s</title></head><body>
<nav>Site navigation</nav>
<main><h1>Page %s</h1><p>Content of %s.</p><ul>%s</ul></main>
</body></html>`, r.URL.Path, r.URL.Path, r.URL.Path, anchors.String())
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func runCrawlArgs(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"crawl"}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func markdownFiles(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return files
}

func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()

	tests := []struct {
		name      string
		shorthand string
		def       string
	}{
		{"depth", "d", "10"},
		{"max-pages", "p", "200"},
		{"concurrency", "c", "4"},
		{"timeout", "t", "30s"},
		{"delay", "", "250ms"},
		{"selector", "s", "main"},
		{"output", "o", "./crawled_docs"},
		{"collision", "", "suffix"},
		{"fetcher", "", "http"},
		{"report", "", "text"},
		{"robots", "", "false"},
		{"no-history", "", "false"},
		{"header", "H", "[]"},
		{"quiet", "q", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.def {
				t.Errorf("expected default %q, got %q", tt.def, flag.DefValue)
			}
		})
	}

	t.Run("requires exactly one argument", func(t *testing.T) {
		t.Parallel()
		if err := cmd.Args(cmd, nil); err == nil {
			t.Error("expected error without start url")
		}
		if err := cmd.Args(cmd, []string{"a", "b"}); err == nil {
			t.Error("expected error with two start urls")
		}
	})
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cmd := NewCrawlCmd()
		_ = cmd.Flags().Set("config", emptyConfig(t))

		cfg, err := buildConfig(cmd, []string{" https://example.com/docs/ "})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.StartURL != "https://example.com/docs/" {
			t.Errorf("unexpected start url %q", cfg.StartURL)
		}
		if cfg.MaxDepth != config.DefaultMaxDepth || cfg.MaxPages != config.DefaultMaxPages {
			t.Errorf("unexpected limits depth=%d pages=%d", cfg.MaxDepth, cfg.MaxPages)
		}
		if !strings.HasPrefix(cfg.UserAgent, "doccrawl/") {
			t.Errorf("expected default user agent, got %q", cfg.UserAgent)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("default config does not validate: %v", err)
		}
	})

	t.Run("flags", func(t *testing.T) {
		t.Parallel()
		cmd := NewCrawlCmd()
		for name, value := range map[string]string{
			"config":      emptyConfig(t),
			"depth":       "2",
			"max-pages":   "5",
			"concurrency": "1",
			"delay":       "0s",
			"selector":    "article",
			"strip":       ".toc,.footer",
			"header":      "X-Token: abc",
			"exclude":     `\.pdf$`,
			"no-history":  "true",
		} {
			if err := cmd.Flags().Set(name, value); err != nil {
				t.Fatalf("set %s: %v", name, err)
			}
		}

		cfg, err := buildConfig(cmd, []string{"https://example.com/docs/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxDepth != 2 || cfg.MaxPages != 5 || cfg.Concurrency != 1 || cfg.Delay != 0 {
			t.Errorf("limits not applied: %+v", cfg)
		}
		if cfg.Selector != "article" || len(cfg.Strip) != 2 {
			t.Errorf("extraction flags not applied: %q %v", cfg.Selector, cfg.Strip)
		}
		if cfg.Headers["X-Token"] != "abc" {
			t.Errorf("header not parsed: %v", cfg.Headers)
		}
		if len(cfg.Exclude) != 1 || !cfg.NoHistory {
			t.Errorf("scope or history flags not applied")
		}
	})

	t.Run("site entry applies unless a flag is set", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "site.yaml")
		content := `defaults:
  selector: main
sites:
  example.com:
    selector: "article.doc"
    prefix: /guide/
    depth: 3
    headers:
      X-Site: yes
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewCrawlCmd()
		_ = cmd.Flags().Set("config", path)
		_ = cmd.Flags().Set("depth", "7")

		cfg, err := buildConfig(cmd, []string{"https://example.com/guide/start"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Selector != "article.doc" {
			t.Errorf("expected site selector, got %q", cfg.Selector)
		}
		if cfg.Prefix != "/guide/" {
			t.Errorf("expected site prefix, got %q", cfg.Prefix)
		}
		if cfg.MaxDepth != 7 {
			t.Errorf("flag should win over site depth, got %d", cfg.MaxDepth)
		}
		if cfg.Headers["X-Site"] != "yes" {
			t.Errorf("expected site header, got %v", cfg.Headers)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()
		cmd := NewCrawlCmd()
		_ = cmd.Flags().Set("config", filepath.Join(t.TempDir(), "nope.yaml"))

		_, err := buildConfig(cmd, []string{"https://example.com/docs/"})
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		t.Parallel()
		cmd := NewCrawlCmd()
		_ = cmd.Flags().Set("config", emptyConfig(t))
		_ = cmd.Flags().Set("header", "no-colon")

		if _, err := buildConfig(cmd, []string{"https://example.com/docs/"}); err == nil {
			t.Error("expected error for malformed header")
		}
	})
}

func TestParseHeaders(t *testing.T) {
	t.Parallel()

	headers, err := parseHeaders([]string{"Authorization: Bearer a:b", " X-Empty :"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if headers["Authorization"] != "Bearer a:b" {
		t.Errorf("value split at the wrong colon: %q", headers["Authorization"])
	}
	if v, ok := headers["X-Empty"]; !ok || v != "" {
		t.Errorf("expected empty X-Empty header, got %q %v", v, ok)
	}

	if h, err := parseHeaders(nil); err != nil || h != nil {
		t.Errorf("expected nil map for no headers, got %v %v", h, err)
	}
	if _, err := parseHeaders([]string{": value"}); err == nil {
		t.Error("expected error for empty header name")
	}
}

func TestBuildChain(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.StartURL = "https://example.com/docs/intro"
	cfg.Exclude = []string{`/private/`}
	cfg.Ignore = []string{"/docs/old/*"}
	start, err := cfg.ParsedStartURL()
	if err != nil {
		t.Fatal(err)
	}

	chain, err := buildChain(cfg, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/docs/guide", true},
		{"https://example.com/docs", true},
		{"https://example.com/blog", false},
		{"https://other.com/docs/guide", false},
		{"mailto:a@example.com", false},
		{"https://example.com/docs/private/x", false},
		{"https://example.com/docs/old/page", false},
	}
	for _, tt := range tests {
		if got, reason := chain.AdmitString(tt.url); got != tt.want {
			t.Errorf("%s: admit=%v (%s), want %v", tt.url, got, reason, tt.want)
		}
	}

	cfg.Include = []string{"("}
	if _, err := buildChain(cfg, start); !errors.Is(err, config.ErrInvalidPattern) {
		t.Errorf("expected ErrInvalidPattern, got %v", err)
	}
}

func TestRunCrawlCmd(t *testing.T) {
	t.Parallel()

	t.Run("crawls site and prints summary", func(t *testing.T) {
		t.Parallel()
		ts := docsServer(t)
		out := t.TempDir()

		stdout, stderr, err := runCrawlArgs(t,
			"--config", emptyConfig(t),
			"--no-history",
			"--delay", "0s",
			"-o", out,
			ts.URL+"/docs/",
		)
		if err != nil {
			t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
		}

		if !strings.Contains(stdout, "Completed") {
			t.Errorf("expected completed state in report:\n%s", stdout)
		}
		if !strings.Contains(stdout, "Saved: 3, Failed/Skipped: 1") {
			t.Errorf("unexpected counts in report:\n%s", stdout)
		}
		if !strings.Contains(stderr, "saved") || !strings.Contains(stderr, "failed") {
			t.Errorf("expected progress lines on stderr:\n%s", stderr)
		}

		files := markdownFiles(t, out)
		if len(files) != 3 {
			t.Fatalf("expected 3 files, got %d: %v", len(files), files)
		}
		index := filepath.Join(out, sink.SanitizeFilename(ts.URL+"/docs/"))
		if !strings.HasSuffix(index, "_docs_index.md") {
			t.Errorf("expected index file name, got %s", index)
		}
		if data, err := os.ReadFile(index); err != nil {
			t.Errorf("expected start page at %s: %v", index, err)
		} else if !strings.HasPrefix(string(data), "# Source: "+ts.URL+"/docs/\n") {
			t.Errorf("unexpected start page header:\n%s", data)
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				t.Fatal(err)
			}
			text := string(data)
			if !strings.HasPrefix(text, "# Source: "+ts.URL+"/docs") {
				t.Errorf("%s: missing source header:\n%s", f, text)
			}
			if strings.Contains(text, "Site navigation") {
				t.Errorf("%s: navigation leaked into content", f)
			}
		}
	})

	t.Run("robots and json report file", func(t *testing.T) {
		t.Parallel()
		ts := docsServer(t)
		out := t.TempDir()
		reportPath := filepath.Join(t.TempDir(), "reports", "crawl.json")

		_, stderr, err := runCrawlArgs(t,
			"--config", emptyConfig(t),
			"--no-history",
			"--delay", "0s",
			"--robots",
			"--quiet",
			"--report", "json",
			"--report-file", reportPath,
			"-o", out,
			ts.URL+"/docs/",
		)
		if err != nil {
			t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
		}
		if !strings.Contains(stderr, "Saved: 2, Failed/Skipped: 1") {
			t.Errorf("expected saved line on stderr:\n%s", stderr)
		}

		data, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("report not written: %v", err)
		}
		var rep report.JSONReport
		if err := json.Unmarshal(data, &rep); err != nil {
			t.Fatalf("invalid report: %v", err)
		}
		if rep.Summary == nil || rep.Summary.State != model.StateCompleted {
			t.Fatalf("unexpected summary: %+v", rep.Summary)
		}
		if rep.Summary.Saved != 2 {
			t.Errorf("robots.txt should keep /docs/b out, saved %d", rep.Summary.Saved)
		}
	})

	t.Run("page limit and history", func(t *testing.T) {
		t.Parallel()
		ts := docsServer(t)
		dbDir := t.TempDir()

		_, stderr, err := runCrawlArgs(t,
			"--config", emptyConfig(t),
			"--db-dir", dbDir,
			"--delay", "0s",
			"--max-pages", "1",
			"-q",
			"-o", t.TempDir(),
			ts.URL+"/docs/",
		)
		if err != nil {
			t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
		}

		db, err := database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open history: %v", err)
		}
		defer db.Close()

		sessions, err := db.ListSessions(context.Background(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(sessions) != 1 {
			t.Fatalf("expected 1 session, got %d", len(sessions))
		}
		s := sessions[0]
		if s.State != model.StatePageLimitReached {
			t.Errorf("expected PAGE_LIMIT_REACHED, got %s", s.State)
		}
		if s.PagesFetched != 1 || s.Saved != 1 || s.Discarded != 2 {
			t.Errorf("unexpected counters: %+v", s)
		}

		pages, err := db.SessionPages(context.Background(), s.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(pages) != 1 || pages[0].Status != model.PageSaved {
			t.Errorf("unexpected pages: %+v", pages)
		}
	})

	t.Run("invalid start url", func(t *testing.T) {
		t.Parallel()
		_, _, err := runCrawlArgs(t, "--config", emptyConfig(t), "--no-history", "ftp://example.com/docs")
		if !errors.Is(err, config.ErrInvalidStartURL) {
			t.Errorf("expected ErrInvalidStartURL, got %v", err)
		}
	})

	t.Run("invalid flag value", func(t *testing.T) {
		t.Parallel()
		_, _, err := runCrawlArgs(t, "--config", emptyConfig(t), "--concurrency", "0", "https://example.com/docs/")
		if !errors.Is(err, config.ErrInvalidConcurrency) {
			t.Errorf("expected ErrInvalidConcurrency, got %v", err)
		}
	})

	t.Run("zero body size", func(t *testing.T) {
		t.Parallel()
		_, _, err := runCrawlArgs(t, "--config", emptyConfig(t), "--no-history", "--max-body-size", "0", "https://example.com/docs/")
		if !errors.Is(err, config.ErrInvalidMaxBodySize) {
			t.Errorf("expected ErrInvalidMaxBodySize, got %v", err)
		}
	})
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	summary := &model.Summary{
		StartURL:     "https://example.com/docs",
		OutputDir:    "/tmp/out",
		State:        model.StateCompleted,
		PagesFetched: 2,
		MaxPages:     10,
		Saved:        2,
	}

	t.Run("text to stdout", func(t *testing.T) {
		t.Parallel()
		var stdout, stderr bytes.Buffer
		cfg := config.NewConfig()

		if err := writeReport(&stdout, &stderr, cfg, summary); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout.String(), "Saved: 2, Failed/Skipped: 0") {
			t.Errorf("unexpected stdout:\n%s", stdout.String())
		}
		if stderr.Len() != 0 {
			t.Errorf("expected nothing on stderr, got %q", stderr.String())
		}
	})

	t.Run("markdown to stdout also prints counts", func(t *testing.T) {
		t.Parallel()
		var stdout, stderr bytes.Buffer
		cfg := config.NewConfig()
		cfg.ReportFormat = "markdown"

		if err := writeReport(&stdout, &stderr, cfg, summary); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout.String(), "# Crawl Report") {
			t.Errorf("unexpected stdout:\n%s", stdout.String())
		}
		if !strings.Contains(stderr.String(), "Output: /tmp/out") {
			t.Errorf("unexpected stderr:\n%s", stderr.String())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.ReportFormat = "xml"
		if err := writeReport(&bytes.Buffer{}, &bytes.Buffer{}, cfg, summary); !errors.Is(err, report.ErrUnknownFormat) {
			t.Errorf("expected ErrUnknownFormat, got %v", err)
		}
	})
}
