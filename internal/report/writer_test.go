package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/doccrawl/internal/model"
)

func createTestSummary() *model.Summary {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &model.Summary{
		SessionID:    "20260301T100000-0a1b2c3d",
		StartURL:     "https://example.com/docs",
		OutputDir:    "./crawled_docs",
		State:        model.StatePageLimitReached,
		PagesFetched: 3,
		MaxPages:     3,
		MaxDepth:     2,
		Saved:        2,
		Failed:       2,
		SinkFailures: 1,
		Discarded:    4,
		Errors: map[model.ErrorClass]int{
			model.ClassTimeout: 1,
			model.ClassHTTP4xx: 1,
			model.ClassHTTP5xx: 0,
		},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Pages: []model.PageOutcome{
			{Target: model.CrawlTarget{URL: "https://example.com/docs"}, Status: model.PageSaved},
			{Target: model.CrawlTarget{URL: "https://example.com/docs/slow"}, Status: model.PageFailed, Class: model.ClassTimeout, Error: "deadline exceeded"},
			{Target: model.CrawlTarget{URL: "https://example.com/docs/gone"}, Status: model.PageFailed, Class: model.ClassHTTP4xx, StatusCode: 404, Error: "404 Not Found"},
			{Target: model.CrawlTarget{URL: "https://example.com/docs/a"}, Status: model.PageSinkError, Error: "disk full"},
			{Target: model.CrawlTarget{URL: "https://example.com/docs/b"}, Status: model.PageSaved},
		},
	}
}

func TestTextWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes counts and output directory", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewTextWriter(&buf).Write(createTestSummary())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("expected %d bytes reported, got %d", buf.Len(), n)
		}

		output := buf.String()
		for _, want := range []string{
			"Saved: 2, Failed/Skipped: 7",
			"Output: ./crawled_docs",
			"State:          Page Limit Reached",
			"Pages fetched:  3 / 3 (max depth 2)",
			"Duration:       1.5s",
			"timeout",
			"http_4xx",
			"Discarded:      4",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q:\n%s", want, output)
			}
		}
		if strings.Contains(output, "http_5xx") {
			t.Error("expected zero counts to be omitted")
		}
		if strings.Contains(output, "Pages not saved") {
			t.Error("expected page list only in verbose mode")
		}
	})

	t.Run("verbose lists pages not saved", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewTextWriter(&buf, WithVerbose(true)).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{
			"[timeout] https://example.com/docs/slow",
			"[http_4xx] https://example.com/docs/gone",
			"[write] https://example.com/docs/a: disk full",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q:\n%s", want, output)
			}
		}
	})

	t.Run("aborted shows reason", func(t *testing.T) {
		t.Parallel()

		s := createTestSummary()
		s.State = model.StateAborted
		s.AbortReason = "context canceled"

		var buf bytes.Buffer
		if _, err := NewTextWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "Abort reason:   context canceled") {
			t.Errorf("expected abort reason:\n%s", buf.String())
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("page limit report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{
			"# Crawl Report",
			"`https://example.com/docs`",
			"Page Limit Reached",
			"[!NOTE]",
			"## Results",
			"```mermaid",
			"## Pages Not Saved",
			"https://example.com/docs/gone",
			"404",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected markdown to contain %q:\n%s", want, output)
			}
		}
	})

	t.Run("clean completed report", func(t *testing.T) {
		t.Parallel()

		s := &model.Summary{
			StartURL:     "https://example.com/docs",
			State:        model.StateCompleted,
			PagesFetched: 1,
			MaxPages:     10,
			Saved:        1,
		}
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "[!TIP]") {
			t.Errorf("expected tip alert:\n%s", output)
		}
		if strings.Contains(output, "Pages Not Saved") || strings.Contains(output, "mermaid") {
			t.Errorf("expected no failure sections:\n%s", output)
		}
	})

	t.Run("aborted report", func(t *testing.T) {
		t.Parallel()

		s := createTestSummary()
		s.State = model.StateAborted
		s.AbortReason = "sink failed persistently"
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!CAUTION]") {
			t.Errorf("expected caution alert:\n%s", buf.String())
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewJSONWriter(&buf, "v1.2.3", WithPrettyPrint()).Write(createTestSummary()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "}\n") {
		t.Error("expected trailing newline")
	}
	if !strings.Contains(buf.String(), "\n  \"version\"") {
		t.Error("expected indented output")
	}

	var doc JSONReport
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if doc.Version != "v1.2.3" || doc.FailedOrSkipped != 7 || doc.DurationSeconds != 1.5 {
		t.Errorf("unexpected metadata %+v", doc)
	}
	if doc.Summary.State != model.StatePageLimitReached {
		t.Errorf("expected state to survive encoding, got %s", doc.Summary.State)
	}
	if doc.Summary.Errors[model.ClassTimeout] != 1 {
		t.Errorf("unexpected errors %v", doc.Summary.Errors)
	}

	var raw map[string]any
	_ = json.Unmarshal(buf.Bytes(), &raw)
	summary, _ := raw["summary"].(map[string]any)
	if summary["state"] != "PAGE_LIMIT_REACHED" {
		t.Errorf("expected state encoded by name, got %v", summary["state"])
	}
}

func TestNewAndParseFormat(t *testing.T) {
	t.Parallel()

	for _, f := range Formats() {
		parsed, err := ParseFormat(strings.ToUpper(string(f)))
		if err != nil || parsed != f {
			t.Errorf("ParseFormat(%q) = %q, %v", f, parsed, err)
		}
		w, err := New(f, &bytes.Buffer{}, "dev", false)
		if err != nil || w == nil {
			t.Errorf("New(%q) failed: %v", f, err)
		}
	}

	if _, err := ParseFormat("html"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
	if _, err := New("html", &bytes.Buffer{}, "dev", false); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	mw := NewMultiWriter(NewTextWriter(&a), NewJSONWriter(&b, "dev"))
	n, err := mw.Write(createTestSummary())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != a.Len()+b.Len() {
		t.Errorf("expected %d bytes, got %d", a.Len()+b.Len(), n)
	}
}

func TestStateTitle(t *testing.T) {
	t.Parallel()

	tests := map[model.State]string{
		model.StateReady:            "Ready",
		model.StateCompleted:        "Completed",
		model.StatePageLimitReached: "Page Limit Reached",
		model.StateAborted:          "Aborted",
	}
	for st, want := range tests {
		if got := stateTitle(st); got != want {
			t.Errorf("stateTitle(%s) = %q, want %q", st, got, want)
		}
	}
}
