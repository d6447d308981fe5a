package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/proxy"

	"github.com/nao1215/doccrawl/internal/model"
)

// HTTPFetcher fetches pages with net/http. It does not execute scripts; use
// BrowserFetcher for sites that render content client side.
type HTTPFetcher struct {
	client       *http.Client
	timeout      time.Duration
	userAgent    string
	headers      map[string]string
	cookie       string
	maxBodySize  int64
	maxRedirects int
	proxyURL     string
	skipNofollow bool
	logger       *slog.Logger
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithTimeout sets the per-request timeout covering connect, headers and body.
func WithTimeout(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		f.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithHeaders adds request headers to every request.
func WithHeaders(headers map[string]string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.headers = headers
	}
}

// WithCookie sets the Cookie header, e.g. "session=abc; theme=dark".
func WithCookie(cookie string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.cookie = cookie
	}
}

// WithMaxBodySize limits how many bytes of a response body are read.
// Values below one keep the default.
func WithMaxBodySize(n int64) HTTPOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithMaxRedirects sets how many redirects are followed.
func WithMaxRedirects(n int) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxRedirects = n
	}
}

// WithProxy routes requests through a SOCKS5 proxy given as
// "socks5://[user:pass@]host:port".
func WithProxy(proxyURL string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.proxyURL = proxyURL
	}
}

// WithHTTPClient replaces the underlying client. Redirect and proxy options
// are not applied to a custom client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// WithNofollow makes link extraction honor rel="nofollow" and robots meta
// nofollow.
func WithNofollow(skip bool) HTTPOption {
	return func(f *HTTPFetcher) {
		f.skipNofollow = skip
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

// NewHTTPFetcher builds a fetcher. It fails only when the proxy setting is
// unusable.
func NewHTTPFetcher(opts ...HTTPOption) (*HTTPFetcher, error) {
	f := &HTTPFetcher{
		timeout:      30 * time.Second,
		userAgent:    DefaultUserAgent,
		maxBodySize:  DefaultMaxBodySize,
		maxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.client == nil {
		client, err := f.newClient()
		if err != nil {
			return nil, err
		}
		f.client = client
	}
	return f, nil
}

func (f *HTTPFetcher) newClient() (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if f.proxyURL != "" {
		dialer, err := socksDialer(f.proxyURL)
		if err != nil {
			return nil, err
		}
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}

	maxRedirects := f.maxRedirects
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}, nil
}

func socksDialer(raw string) (proxy.Dialer, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, fmt.Errorf("%w: scheme %q is not socks5", ErrInvalidProxy, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidProxy)
	}
	var auth *proxy.Auth
	if u.User != nil {
		pw, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pw}
	}
	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	return dialer, nil
}

// Client returns the HTTP client, for auxiliary requests such as robots.txt.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// UserAgent returns the configured User-Agent.
func (f *HTTPFetcher) UserAgent() string {
	return f.userAgent
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) model.FetchResult {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return model.Failed(rawURL, model.ClassMalformed, 0, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return model.Failed(rawURL, Classify(err), 0, err)
	}
	defer resp.Body.Close()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if class := ClassifyStatus(resp.StatusCode); class != model.ClassNone {
		r := model.Failed(rawURL, class, resp.StatusCode, nil)
		r.FinalURL = finalURL
		return r
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		r := model.Failed(rawURL, Classify(err), resp.StatusCode, fmt.Errorf("failed to read body: %w", err))
		r.FinalURL = finalURL
		return r
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType := mediaTypeOf(contentType, body)
	if !isHTML(mediaType) {
		r := model.Failed(rawURL, model.ClassUnsupportedContent, resp.StatusCode,
			fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType))
		r.FinalURL = finalURL
		r.ContentType = mediaType
		return r
	}

	decoded, err := decode(body, contentType)
	if err != nil {
		r := model.Failed(rawURL, model.ClassMalformed, resp.StatusCode, err)
		r.FinalURL = finalURL
		return r
	}

	result, err := ParseDocument(finalURL, decoded, f.skipNofollow)
	if err != nil {
		r := model.Failed(rawURL, model.ClassMalformed, resp.StatusCode, err)
		r.FinalURL = finalURL
		return r
	}

	f.logger.Debug("fetched page",
		"url", rawURL,
		"final_url", finalURL,
		"status", resp.StatusCode,
		"bytes", len(decoded),
		"links", len(result.Links),
	)

	return model.FetchResult{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: mediaType,
		Success:     true,
		Content:     decoded,
		Title:       result.Title,
		Links:       result.Links,
	}
}

// ParseDocument runs a Parser over content with base URL finalURL.
func ParseDocument(finalURL string, content []byte, skipNofollow bool) (*ParseResult, error) {
	parser, err := NewParser(finalURL, WithSkipNofollow(skipNofollow))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", finalURL, err)
	}
	result, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return result, nil
}

func mediaTypeOf(header string, body []byte) string {
	if header == "" {
		header = http.DetectContentType(body)
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return header
	}
	return mt
}

func isHTML(mediaType string) bool {
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// decode converts body to UTF-8 using the Content-Type charset, a <meta>
// declaration, or content sniffing.
func decode(body []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to detect charset: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}
	return out, nil
}
