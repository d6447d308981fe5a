package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/doccrawl/internal/model"
)

// TextWriter writes a plain summary for the terminal. It ends with the
// saved/failed counts and the output directory.
type TextWriter struct {
	baseWriter

	// verbose lists every page that was not saved.
	verbose bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithVerbose lists failed pages individually.
func WithVerbose(verbose bool) TextWriterOption {
	return func(w *TextWriter) {
		w.verbose = verbose
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *TextWriter) Write(s *model.Summary) (int, error) {
	var sb strings.Builder

	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Start URL:      %s\n", s.StartURL)
	fmt.Fprintf(&sb, "State:          %s\n", stateTitle(s.State))
	if s.AbortReason != "" {
		fmt.Fprintf(&sb, "Abort reason:   %s\n", s.AbortReason)
	}
	fmt.Fprintf(&sb, "Pages fetched:  %d / %d (max depth %d)\n", s.PagesFetched, s.MaxPages, s.MaxDepth)
	if d := s.Duration(); d > 0 {
		fmt.Fprintf(&sb, "Duration:       %s\n", d.Round(1e6))
	}
	if s.SessionID != "" {
		fmt.Fprintf(&sb, "Session:        %s\n", s.SessionID)
	}

	if errs := sortedErrors(s.Errors); len(errs) > 0 {
		sb.WriteString("\nFailures by class:\n")
		for _, e := range errs {
			fmt.Fprintf(&sb, "  %-20s %d\n", e.class, e.count)
		}
	}
	if s.SinkFailures > 0 {
		fmt.Fprintf(&sb, "\nWrite failures: %d\n", s.SinkFailures)
	}
	if s.Discarded > 0 {
		fmt.Fprintf(&sb, "Discarded:      %d queued URL(s) not crawled\n", s.Discarded)
	}

	if w.verbose {
		if pages := problemPages(s); len(pages) > 0 {
			sb.WriteString("\nPages not saved:\n")
			for _, p := range pages {
				reason := string(p.Class)
				if p.Status == model.PageSinkError {
					reason = "write"
				}
				fmt.Fprintf(&sb, "  [%s] %s: %s\n", reason, p.Target.URL, truncateString(p.Error, 80))
			}
		}
	}

	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	sb.WriteString(SavedLine(s))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Output: %s\n", s.OutputDir)

	return io.WriteString(w.output, sb.String())
}
