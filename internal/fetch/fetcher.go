package fetch

import (
	"context"

	"github.com/nao1215/doccrawl/internal/model"
)

// Fetcher retrieves one page.
//
// Fetch never panics on network input and never returns a Go error: every
// failure is reported through a FetchResult with Success false and a
// classified Err. Implementations do not retry; retry policy belongs to the
// caller. Fetch must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) model.FetchResult
}

// Func adapts a function to the Fetcher interface.
type Func func(ctx context.Context, rawURL string) model.FetchResult

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, rawURL string) model.FetchResult {
	return f(ctx, rawURL)
}

const (
	// DefaultUserAgent identifies the crawler when none is configured.
	DefaultUserAgent = "doccrawl/1.0 (+https://github.com/nao1215/doccrawl)"

	// DefaultMaxBodySize caps response bodies at 10 MiB.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultMaxRedirects is the redirect limit of HTTPFetcher.
	DefaultMaxRedirects = 10

	acceptHeader = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5"
)
