package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/doccrawl/internal/model"
)

// JSONWriter writes the summary wrapped in a JSONReport.
type JSONWriter struct {
	baseWriter

	version      string
	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output with the given prefix and indent.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
		version:    version,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the document written by JSONWriter.
type JSONReport struct {
	// Version is the doccrawl version that produced the report.
	Version string `json:"version"`

	// FailedOrSkipped duplicates Summary.FailedOrSkipped for consumers
	// that do not want to add the counters themselves.
	FailedOrSkipped int `json:"failed_or_skipped"`

	// DurationSeconds is the wall time of the session.
	DurationSeconds float64 `json:"duration_seconds"`

	Summary *model.Summary `json:"summary"`
}

// Write implements Writer.
func (w *JSONWriter) Write(s *model.Summary) (int, error) {
	doc := JSONReport{
		Version:         w.version,
		FailedOrSkipped: s.FailedOrSkipped(),
		DurationSeconds: s.Duration().Seconds(),
		Summary:         s,
	}

	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(doc, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
