package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// FirstHeading returns the text of the first level-one heading in a
// markdown document, or "" if there is none.
func FirstHeading(markdown string) string {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		heading, ok := n.(*ast.Heading)
		if !ok || !entering || heading.Level != 1 {
			return ast.WalkContinue, nil
		}
		var sb strings.Builder
		collectText(heading, source, &sb)
		title = strings.TrimSpace(sb.String())
		return ast.WalkStop, nil
	})
	return title
}

// collectText appends the text of n's descendants, so headings with
// links or emphasis keep their words.
func collectText(n ast.Node, source []byte, sb *strings.Builder) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		default:
			collectText(c, source, sb)
		}
	}
}
