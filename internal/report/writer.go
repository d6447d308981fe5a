package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/doccrawl/internal/model"
)

// ErrUnknownFormat is returned by New for an unsupported report format.
var ErrUnknownFormat = errors.New("unknown report format")

// Format names a report format.
type Format string

const (
	// FormatText is the plain terminal summary.
	FormatText Format = "text"
	// FormatMarkdown is a GitHub-flavored markdown report.
	FormatMarkdown Format = "markdown"
	// FormatJSON is a machine-readable report.
	FormatJSON Format = "json"
)

// Formats lists the supported formats in the order shown in help output.
func Formats() []Format {
	return []Format{FormatText, FormatMarkdown, FormatJSON}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats() {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Writer writes the summary of a crawl session.
type Writer interface {
	// Write outputs the summary and returns the number of bytes written.
	Write(summary *model.Summary) (int, error)
}

// New returns the writer for format. version is embedded in formats that
// carry metadata.
func New(format Format, output io.Writer, version string, verbose bool) (Writer, error) {
	switch format {
	case FormatText:
		return NewTextWriter(output, WithVerbose(verbose)), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, version, WithPrettyPrint()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to several Writers, e.g. the terminal and a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to every Writer and stops at the first error.
func (m *MultiWriter) Write(summary *model.Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// stateTitle turns PAGE_LIMIT_REACHED into "Page Limit Reached".
func stateTitle(s model.State) string {
	words := strings.ReplaceAll(strings.ToLower(s.String()), "_", " ")
	return cases.Title(language.English).String(words)
}

// SavedLine is the one-line result printed at the end of every crawl.
func SavedLine(s *model.Summary) string {
	return fmt.Sprintf("Saved: %d, Failed/Skipped: %d", s.Saved, s.FailedOrSkipped())
}

type classCount struct {
	class model.ErrorClass
	count int
}

// sortedErrors orders error classes by count, then name.
func sortedErrors(errs map[model.ErrorClass]int) []classCount {
	out := make([]classCount, 0, len(errs))
	for c, n := range errs {
		if n > 0 {
			out = append(out, classCount{class: c, count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].class < out[j].class
	})
	return out
}

// problemPages returns the pages that were not saved.
func problemPages(s *model.Summary) []model.PageOutcome {
	var out []model.PageOutcome
	for _, p := range s.Pages {
		if p.Status != model.PageSaved {
			out = append(out, p)
		}
	}
	return out
}

// truncateString truncates s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
