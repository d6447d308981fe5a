package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/doccrawl/internal/model"
)

// MarkdownWriter writes the summary as GitHub-flavored markdown, suitable
// for a CI job summary or an index next to the crawled files.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write implements Writer.
func (w *MarkdownWriter) Write(s *model.Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, s)
	w.writeAlert(md, s)
	w.writeResults(md, s)
	w.writeFailures(md, s)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.Summary) {
	md.H1("Crawl Report")
	md.PlainText("")

	rows := [][]string{
		{"Start URL", "`" + s.StartURL + "`"},
		{"State", stateTitle(s.State)},
		{"Pages Fetched", strconv.Itoa(s.PagesFetched) + " / " + strconv.Itoa(s.MaxPages)},
		{"Max Depth", strconv.Itoa(s.MaxDepth)},
		{"Output", "`" + s.OutputDir + "`"},
	}
	if !s.StartedAt.IsZero() {
		rows = append(rows, []string{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")})
	}
	if s.SessionID != "" {
		rows = append(rows, []string{"Session", "`" + s.SessionID + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.Summary) {
	switch s.State {
	case model.StateAborted:
		md.Cautionf("Crawl aborted: %s", s.AbortReason)
	case model.StatePageLimitReached:
		md.Note(fmt.Sprintf("Page limit of %d reached; %d queued URL(s) were not crawled.", s.MaxPages, s.Discarded))
	default:
		if s.FailedOrSkipped() > 0 {
			md.Warningf("%d page(s) could not be saved.", s.FailedOrSkipped())
		} else {
			md.Tip("Every discovered page was saved.")
		}
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeResults(md *markdown.Markdown, s *model.Summary) {
	md.H2("Results")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Result", "Count"},
		Rows: [][]string{
			{"Saved", strconv.Itoa(s.Saved)},
			{"Failed", strconv.Itoa(s.Failed)},
			{"Write failures", strconv.Itoa(s.SinkFailures)},
			{"Discarded", strconv.Itoa(s.Discarded)},
			{"**Failed/Skipped**", "**" + strconv.Itoa(s.FailedOrSkipped()) + "**"},
		},
	})
	md.PlainText("")

	errs := sortedErrors(s.Errors)
	if len(errs) == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Failures by class"),
		piechart.WithShowData(true),
	)
	rows := make([][]string, 0, len(errs))
	for _, e := range errs {
		chart.LabelAndIntValue(string(e.class), uint64(e.count)) //nolint:gosec // counts are non-negative
		rows = append(rows, []string{"`" + string(e.class) + "`", strconv.Itoa(e.count)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Error Class", "Pages"},
		Rows:   rows,
	})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, s *model.Summary) {
	pages := problemPages(s)
	if len(pages) == 0 {
		return
	}

	md.H2("Pages Not Saved")
	md.PlainText("")

	rows := make([][]string, len(pages))
	for i, p := range pages {
		reason := string(p.Class)
		if p.Status == model.PageSinkError {
			reason = "write"
		}
		code := "-"
		if p.StatusCode != 0 {
			code = strconv.Itoa(p.StatusCode)
		}
		rows[i] = []string{
			truncateString(p.Target.URL, 80),
			reason,
			code,
			truncateString(p.Error, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Reason", "Status", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [doccrawl](https://github.com/nao1215/doccrawl)*")
}
