package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/nao1215/doccrawl/internal/model"
)

// BrowserFetcher renders pages in headless Chrome before extracting them,
// for documentation sites that build their content with JavaScript.
// Each Fetch opens a new tab in a shared browser process.
type BrowserFetcher struct {
	allocCtx     context.Context
	allocCancel  context.CancelFunc
	browserCtx   context.Context
	browserClose context.CancelFunc

	timeout      time.Duration
	userAgent    string
	execPath     string
	proxyServer  string
	waitSelector string
	headers      map[string]string
	skipNofollow bool
	logger       *slog.Logger

	closeOnce sync.Once
}

// BrowserOption configures a BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// WithBrowserTimeout sets the per-page navigation timeout.
func WithBrowserTimeout(d time.Duration) BrowserOption {
	return func(b *BrowserFetcher) {
		b.timeout = d
	}
}

// WithBrowserUserAgent sets the browser User-Agent.
func WithBrowserUserAgent(ua string) BrowserOption {
	return func(b *BrowserFetcher) {
		b.userAgent = ua
	}
}

// WithExecPath points to a Chrome or Chromium binary.
func WithExecPath(path string) BrowserOption {
	return func(b *BrowserFetcher) {
		b.execPath = path
	}
}

// WithBrowserProxy sets Chrome's --proxy-server, e.g. "socks5://127.0.0.1:9050".
func WithBrowserProxy(server string) BrowserOption {
	return func(b *BrowserFetcher) {
		b.proxyServer = server
	}
}

// WithWaitSelector waits for selector to be ready instead of "body".
func WithWaitSelector(selector string) BrowserOption {
	return func(b *BrowserFetcher) {
		b.waitSelector = selector
	}
}

// WithBrowserHeaders sets extra request headers, including Cookie.
func WithBrowserHeaders(headers map[string]string) BrowserOption {
	return func(b *BrowserFetcher) {
		b.headers = headers
	}
}

// WithBrowserNofollow makes link extraction honor nofollow.
func WithBrowserNofollow(skip bool) BrowserOption {
	return func(b *BrowserFetcher) {
		b.skipNofollow = skip
	}
}

// WithBrowserLogger sets the logger.
func WithBrowserLogger(logger *slog.Logger) BrowserOption {
	return func(b *BrowserFetcher) {
		b.logger = logger
	}
}

// NewBrowserFetcher starts a headless browser bound to ctx. Call Close to
// shut it down.
func NewBrowserFetcher(ctx context.Context, opts ...BrowserOption) (*BrowserFetcher, error) {
	b := &BrowserFetcher{
		timeout:      30 * time.Second,
		userAgent:    DefaultUserAgent,
		waitSelector: "body",
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.DisableGPU,
		chromedp.UserAgent(b.userAgent),
	)
	if b.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.execPath))
	}
	if b.proxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(b.proxyServer))
	}

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(ctx, allocOpts...)
	b.browserCtx, b.browserClose = chromedp.NewContext(b.allocCtx)

	// Running no actions starts the browser process.
	if err := chromedp.Run(b.browserCtx); err != nil {
		b.Close()
		return nil, fmt.Errorf("%w: %v", ErrNoBrowser, err)
	}
	return b, nil
}

// Close stops the browser. It is safe to call more than once.
func (b *BrowserFetcher) Close() error {
	b.closeOnce.Do(func() {
		if b.browserClose != nil {
			b.browserClose()
		}
		if b.allocCancel != nil {
			b.allocCancel()
		}
	})
	return nil
}

// Fetch implements Fetcher.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) model.FetchResult {
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	// The tab derives from the browser context, so the caller's
	// cancellation has to be forwarded explicitly.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var (
		status   atomic.Int64
		mimeType atomic.Value
	)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		// The first document response belongs to the main frame.
		if status.CompareAndSwap(0, e.Response.Status) {
			mimeType.Store(e.Response.MimeType)
		}
	})

	actions := []chromedp.Action{network.Enable()}
	if len(b.headers) > 0 {
		h := make(network.Headers, len(b.headers))
		for k, v := range b.headers {
			h[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(h))
	}

	var finalURL, content string
	actions = append(actions,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady(b.waitSelector, chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &content, chromedp.ByQuery),
	)

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return model.Failed(rawURL, b.classify(ctx, tabCtx, err), int(status.Load()), err)
	}
	if finalURL == "" {
		finalURL = rawURL
	}

	code := int(status.Load())
	if class := ClassifyStatus(code); class != model.ClassNone {
		r := model.Failed(rawURL, class, code, nil)
		r.FinalURL = finalURL
		return r
	}

	mt, _ := mimeType.Load().(string)
	if mt != "" && !isHTML(mt) {
		r := model.Failed(rawURL, model.ClassUnsupportedContent, code,
			fmt.Errorf("%w: %s", ErrUnsupportedContent, mt))
		r.FinalURL = finalURL
		r.ContentType = mt
		return r
	}

	result, err := ParseDocument(finalURL, []byte(content), b.skipNofollow)
	if err != nil {
		r := model.Failed(rawURL, model.ClassMalformed, code, err)
		r.FinalURL = finalURL
		return r
	}

	b.logger.Debug("rendered page", "url", rawURL, "final_url", finalURL, "status", code)

	return model.FetchResult{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  code,
		ContentType: "text/html",
		Success:     true,
		Content:     []byte(content),
		Title:       result.Title,
		Links:       result.Links,
	}
}

func (b *BrowserFetcher) classify(parent, tab context.Context, err error) model.ErrorClass {
	switch {
	case parent.Err() != nil:
		return model.ClassCanceled
	case errors.Is(tab.Err(), context.DeadlineExceeded):
		return model.ClassTimeout
	default:
		return Classify(err)
	}
}
