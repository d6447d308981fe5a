package fetch

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parser extracts the title and outbound links from an HTML document.
type Parser struct {
	baseURL      *url.URL
	skipNofollow bool
}

// ParseResult is the output of Parser.Parse.
type ParseResult struct {
	// Title is the text of the first <title> element.
	Title string

	// Links are absolute http(s) URLs from <a> and <area> elements, in
	// document order, without fragments and without duplicates.
	Links []string

	// NoFollow is set when a robots meta tag asks crawlers not to follow
	// links. Links is empty in that case if the parser honors nofollow.
	NoFollow bool
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithSkipNofollow drops links marked rel="nofollow" and honors
// <meta name="robots" content="nofollow">.
func WithSkipNofollow(skip bool) ParserOption {
	return func(p *Parser) {
		p.skipNofollow = skip
	}
}

// NewParser returns a parser resolving relative references against
// baseURL, which should be the final URL of the response.
func NewParser(baseURL string, opts ...ParserOption) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	p := &Parser{baseURL: u}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Parse reads an HTML document from content.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{Links: make([]string, 0)}
	base := p.baseURL
	seen := make(map[string]struct{})
	titleSet := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if !titleSet {
					result.Title = strings.Join(strings.Fields(textOf(n)), " ")
					titleSet = true
				}
			case atom.Base:
				// Only the first <base href> counts.
				if href := getAttr(n, "href"); href != "" && base == p.baseURL {
					if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
						base = p.baseURL.ResolveReference(ref)
					}
				}
			case atom.Meta:
				if strings.EqualFold(getAttr(n, "name"), "robots") &&
					strings.Contains(strings.ToLower(getAttr(n, "content")), "nofollow") {
					result.NoFollow = true
				}
			case atom.A, atom.Area:
				if p.skipNofollow && hasRel(n, "nofollow") {
					break
				}
				if link := resolveLink(base, getAttr(n, "href")); link != "" {
					if _, dup := seen[link]; !dup {
						seen[link] = struct{}{}
						result.Links = append(result.Links, link)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if p.skipNofollow && result.NoFollow {
		result.Links = result.Links[:0]
	}
	return result, nil
}

// resolveLink returns href as an absolute URL without fragment, or "" for
// references that cannot lead to another document.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func hasRel(n *html.Node, value string) bool {
	for _, rel := range strings.Fields(getAttr(n, "rel")) {
		if strings.EqualFold(rel, value) {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
