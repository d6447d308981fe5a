package extract

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/nao1215/doccrawl/internal/model"
)

// DefaultSelector locates the main content of most documentation themes.
const DefaultSelector = "main"

var (
	// ErrInvalidSelector is returned by New for selectors that do not compile.
	ErrInvalidSelector = errors.New("invalid content selector")

	// ErrEmptyDocument is returned for results without content.
	ErrEmptyDocument = errors.New("empty document")
)

// noise is always removed from the selected region.
const noise = "script, style, noscript, template, iframe"

// Extractor isolates the main content region of a page and converts it to
// markdown. An Extractor is immutable and safe for concurrent use.
type Extractor struct {
	selector string
	strip    []string
	logger   *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStrip removes elements matching the selectors from the region before
// conversion, e.g. ".edit-this-page" or "nav.breadcrumbs".
func WithStrip(selectors ...string) Option {
	return func(e *Extractor) {
		e.strip = append(e.strip, selectors...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New returns an extractor for selector. An empty selector means
// DefaultSelector.
func New(selector string, opts ...Option) (*Extractor, error) {
	if strings.TrimSpace(selector) == "" {
		selector = DefaultSelector
	}
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSelector, selector, err)
	}
	e := &Extractor{selector: selector}
	for _, opt := range opts {
		opt(e)
	}
	for _, s := range e.strip {
		if _, err := cascadia.ParseGroup(s); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidSelector, s, err)
		}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Selector returns the content selector.
func (e *Extractor) Selector() string {
	return e.selector
}

// Extract converts a successful fetch result into an ExtractedPage.
//
// The first element matching the selector is the content region. When
// nothing matches, the <body> is used, and failing that the whole document.
// Links and image sources inside the region are made absolute against the
// page's final URL. The output is a pure function of the input document.
func (e *Extractor) Extract(r model.FetchResult) (model.ExtractedPage, error) {
	if len(bytes.TrimSpace(r.Content)) == 0 {
		return model.ExtractedPage{}, ErrEmptyDocument
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Content))
	if err != nil {
		return model.ExtractedPage{}, fmt.Errorf("failed to parse document: %w", err)
	}

	region, fallback := e.locate(doc)
	region.Find(noise).Remove()
	for _, s := range e.strip {
		region.Find(s).Remove()
	}

	base := documentBase(doc, r.BaseURL())
	absolutize(region, base)

	fragment, err := goquery.OuterHtml(region)
	if err != nil {
		return model.ExtractedPage{}, fmt.Errorf("failed to render content region: %w", err)
	}

	opts := []converter.ConvertOptionFunc{}
	if base != nil {
		opts = append(opts, converter.WithDomain(base.Scheme+"://"+base.Host))
	}
	markdown, err := htmltomarkdown.ConvertString(fragment, opts...)
	if err != nil {
		return model.ExtractedPage{}, fmt.Errorf("failed to convert to markdown: %w", err)
	}
	markdown = tidy(markdown)

	title := r.Title
	if title == "" {
		title = strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
	}
	if title == "" {
		title = FirstHeading(markdown)
	}

	if fallback {
		e.logger.Debug("content selector matched nothing, using body",
			"url", r.URL, "selector", e.selector)
	}

	return model.ExtractedPage{
		URL:          r.URL,
		Title:        title,
		Markdown:     markdown,
		UsedFallback: fallback,
	}, nil
}

func (e *Extractor) locate(doc *goquery.Document) (*goquery.Selection, bool) {
	if region := doc.Find(e.selector).First(); region.Length() > 0 {
		return region, false
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		return body, true
	}
	return doc.Selection, true
}

// documentBase returns the URL relative references resolve against,
// honoring the first <base href>.
func documentBase(doc *goquery.Document, pageURL string) *url.URL {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			return u.ResolveReference(ref)
		}
	}
	return u
}

var urlAttrs = []struct {
	selector string
	attr     string
}{
	{"a[href]", "href"},
	{"img[src]", "src"},
	{"source[src]", "src"},
}

func absolutize(region *goquery.Selection, base *url.URL) {
	if base == nil {
		return
	}
	for _, ua := range urlAttrs {
		region.Find(ua.selector).AddBackFiltered(ua.selector).Each(func(_ int, s *goquery.Selection) {
			val, _ := s.Attr(ua.attr)
			val = strings.TrimSpace(val)
			if val == "" || strings.HasPrefix(val, "#") {
				return
			}
			ref, err := url.Parse(val)
			if err != nil || ref.IsAbs() {
				return
			}
			s.SetAttr(ua.attr, base.ResolveReference(ref).String())
		})
	}
}

// tidy trims surrounding whitespace, drops trailing spaces on lines and
// ends the text with exactly one newline.
func tidy(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	out := strings.TrimSpace(strings.Join(lines, "\n"))
	if out == "" {
		return ""
	}
	return out + "\n"
}
