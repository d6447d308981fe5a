package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/doccrawl/internal/fetch"
	"github.com/nao1215/doccrawl/internal/frontier"
	"github.com/nao1215/doccrawl/internal/metrics"
	"github.com/nao1215/doccrawl/internal/model"
	"github.com/nao1215/doccrawl/internal/scope"
	"github.com/nao1215/doccrawl/internal/sink"
)

var (
	// ErrAborted is returned by Run when the session ends in ABORTED. It
	// wraps the cause: ErrSinkFailing or the context error.
	ErrAborted = errors.New("crawl aborted")

	// ErrSinkFailing means too many consecutive pages could not be written.
	ErrSinkFailing = errors.New("sink failed persistently")

	// ErrInvalidStartURL is returned for a start URL that is not an
	// absolute http(s) URL.
	ErrInvalidStartURL = errors.New("invalid start url")

	// ErrInvalidSettings is returned by New for out of range limits.
	ErrInvalidSettings = errors.New("invalid coordinator settings")

	// ErrAlreadyStarted is returned when Run is called twice.
	ErrAlreadyStarted = errors.New("crawl already started")
)

// Extractor converts a fetched page to markdown.
type Extractor interface {
	Extract(r model.FetchResult) (model.ExtractedPage, error)
}

// Recorder observes page outcomes, e.g. to keep a crawl history. Recorder
// errors are logged and never stop the crawl.
type Recorder interface {
	RecordPage(ctx context.Context, outcome model.PageOutcome) error
}

// Settings are the limits of one crawl session.
type Settings struct {
	// MaxDepth is the largest link distance from the start URL that is
	// fetched. 0 fetches only the start URL.
	MaxDepth int
	// MaxPages caps successful fetches.
	MaxPages int
	// Concurrency caps pages processed at the same time.
	Concurrency int
	// MaxRetries is how often a transient fetch failure is retried.
	MaxRetries int
	// RetryBackoff is the wait before the first retry; it doubles after
	// each attempt.
	RetryBackoff time.Duration
	// MaxSinkFailures consecutive write failures abort the session.
	MaxSinkFailures int
	// Delay is the minimum interval between requests. Ignored when a
	// limiter is supplied with WithLimiter.
	Delay time.Duration
	// OutputDir is reported in the summary.
	OutputDir string
}

// Coordinator runs one breadth-first crawl session.
//
// It owns the frontier, the visited set and the page counter. Pages of a
// batch are fetched, extracted and persisted concurrently; everything that
// affects which URLs are crawled next (counters, link admission, terminal
// state) is decided after the batch in dequeue order, so the set of pages
// crawled for a given site is reproducible.
type Coordinator struct {
	settings  Settings
	fetcher   fetch.Fetcher
	extractor Extractor
	sink      sink.Sink
	chain     *scope.Chain
	frontier  *frontier.Frontier

	logger   *slog.Logger
	metrics  *metrics.Metrics
	recorder Recorder
	limiter  *rate.Limiter
	progress func(model.PageOutcome)

	mu           sync.Mutex
	state        model.State
	fetched      int
	sinkFailures int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics records progress in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithRecorder reports every page outcome to r.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// WithLimiter paces requests, retries included.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Coordinator) {
		c.limiter = l
	}
}

// WithProgress calls fn for every page outcome, in dequeue order.
func WithProgress(fn func(model.PageOutcome)) Option {
	return func(c *Coordinator) {
		c.progress = fn
	}
}

// New validates settings and wires the components. A nil chain admits
// every URL.
func New(s Settings, f fetch.Fetcher, e Extractor, sk sink.Sink, chain *scope.Chain, opts ...Option) (*Coordinator, error) {
	switch {
	case s.MaxDepth < 0:
		return nil, fmt.Errorf("%w: max depth %d", ErrInvalidSettings, s.MaxDepth)
	case s.MaxPages < 1:
		return nil, fmt.Errorf("%w: max pages %d", ErrInvalidSettings, s.MaxPages)
	case s.Concurrency < 1:
		return nil, fmt.Errorf("%w: concurrency %d", ErrInvalidSettings, s.Concurrency)
	case s.MaxRetries < 0:
		return nil, fmt.Errorf("%w: max retries %d", ErrInvalidSettings, s.MaxRetries)
	}
	if s.MaxSinkFailures < 1 {
		s.MaxSinkFailures = 1
	}
	if chain == nil {
		chain = scope.NewChain()
	}

	c := &Coordinator{
		settings:  s,
		fetcher:   f,
		extractor: e,
		sink:      sk,
		chain:     chain,
		state:     model.StateReady,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.limiter == nil && s.Delay > 0 {
		c.limiter = rate.NewLimiter(rate.Every(s.Delay), 1)
	}
	c.frontier = frontier.New(s.MaxDepth, frontier.WithLogger(c.logger))
	return c, nil
}

// State returns the current session state.
func (c *Coordinator) State() model.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PagesFetched returns the number of successful fetches applied so far.
// Fetches whose result was discarded by cancellation or a duplicate
// redirect are not counted.
func (c *Coordinator) PagesFetched() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetched
}

func (c *Coordinator) transition(to model.State, attrs ...any) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	c.logger.Info("crawl state changed", append([]any{"from", from.String(), "to", to.String()}, attrs...)...)
}

// Run crawls from startURL until the frontier is exhausted, the page limit
// is reached, ctx is canceled, or the sink keeps failing. The summary is
// valid in every case; the error is non-nil only for an invalid start URL,
// a second call, or an ABORTED session.
//
// The start URL is always fetched, even when the scope chain would reject
// it. Links found on a page are admitted when their depth is within
// MaxDepth and every filter of the chain accepts them.
func (c *Coordinator) Run(ctx context.Context, startURL string) (model.Summary, error) {
	c.mu.Lock()
	if c.state != model.StateReady {
		c.mu.Unlock()
		return model.Summary{}, ErrAlreadyStarted
	}
	c.mu.Unlock()

	summary := model.Summary{
		StartURL:  startURL,
		OutputDir: c.settings.OutputDir,
		MaxPages:  c.settings.MaxPages,
		MaxDepth:  c.settings.MaxDepth,
		Errors:    make(map[model.ErrorClass]int),
		StartedAt: time.Now(),
	}

	if _, err := frontier.Normalize(startURL); err != nil {
		return summary, fmt.Errorf("%w: %w", ErrInvalidStartURL, err)
	}
	c.frontier.Enqueue(model.CrawlTarget{URL: startURL, Depth: 0})

	c.transition(model.StateRunning, "start_url", startURL)

	var abortErr error
	for {
		if err := ctx.Err(); err != nil {
			abortErr = err
			break
		}
		remaining := c.settings.MaxPages - c.PagesFetched()
		if remaining <= 0 {
			break
		}
		if c.frontier.IsEmpty() {
			break
		}

		batch := c.frontier.DequeueBatch(min(c.settings.Concurrency, remaining))
		c.metrics.SetFrontierSize(c.frontier.Len())
		if r, ok := c.sink.(sink.Reserver); ok {
			for _, t := range batch {
				r.Reserve(t.URL)
			}
		}

		results := c.processBatch(ctx, batch)

		if err := c.collect(ctx, results, &summary); err != nil {
			abortErr = err
			break
		}
	}

	summary.PagesFetched = c.PagesFetched()
	summary.Discarded += c.frontier.Discard()
	c.metrics.SetFrontierSize(0)
	summary.FinishedAt = time.Now()

	switch {
	case abortErr != nil:
		summary.State = model.StateAborted
		summary.AbortReason = abortErr.Error()
		c.transition(model.StateAborted, "reason", abortErr, "discarded", summary.Discarded)
		return summary, fmt.Errorf("%w: %w", ErrAborted, abortErr)
	case summary.PagesFetched >= c.settings.MaxPages:
		summary.State = model.StatePageLimitReached
		c.transition(model.StatePageLimitReached, "pages", summary.PagesFetched, "discarded", summary.Discarded)
	default:
		summary.State = model.StateCompleted
		c.transition(model.StateCompleted, "pages", summary.PagesFetched)
	}
	return summary, nil
}

// pageResult is what a worker hands back for one target.
type pageResult struct {
	target  model.CrawlTarget
	outcome model.PageOutcome
	fetch   model.FetchResult
	// duplicate is set when the target redirected to a URL that is
	// already visited or queued. Nothing was extracted or written.
	duplicate bool
}

func (c *Coordinator) processBatch(ctx context.Context, batch []model.CrawlTarget) []pageResult {
	results := make([]pageResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.settings.Concurrency)
	for i, t := range batch {
		g.Go(func() error {
			results[i] = c.process(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// collect applies batch results in dequeue order: counters, history,
// link admission and the sink failure budget.
func (c *Coordinator) collect(ctx context.Context, results []pageResult, summary *model.Summary) error {
	canceled := ctx.Err() != nil

	for _, r := range results {
		o := r.outcome
		if o.Class == model.ClassCanceled || r.duplicate {
			summary.Discarded++
			continue
		}
		if r.fetch.Success {
			c.mu.Lock()
			c.fetched++
			c.mu.Unlock()
		}

		summary.Pages = append(summary.Pages, o)
		switch o.Status {
		case model.PageSaved:
			summary.Saved++
			c.sinkFailures = 0
		case model.PageFailed:
			summary.Failed++
			summary.Errors[o.Class]++
		case model.PageSinkError:
			summary.SinkFailures++
			c.sinkFailures++
		}

		c.metrics.ObservePage(o)
		if c.progress != nil {
			c.progress(o)
		}
		if c.recorder != nil {
			if err := c.recorder.RecordPage(context.WithoutCancel(ctx), o); err != nil {
				c.logger.Warn("failed to record page", "url", o.Target.URL, "error", err)
			}
		}

		if c.sinkFailures >= c.settings.MaxSinkFailures {
			return fmt.Errorf("%w: %d consecutive write failures, last: %s",
				ErrSinkFailing, c.sinkFailures, o.Error)
		}

		if r.fetch.Success && !canceled {
			c.admitLinks(r.target, r.fetch)
		}
	}

	if canceled {
		return ctx.Err()
	}
	return nil
}

func (c *Coordinator) admitLinks(parent model.CrawlTarget, r model.FetchResult) {
	depth := parent.Depth + 1
	if depth > c.settings.MaxDepth {
		return
	}
	for _, link := range r.Links {
		target, err := frontier.RequestURL(link)
		if err != nil {
			continue
		}
		u, err := url.Parse(target)
		if err != nil {
			continue
		}
		if ok, by := c.chain.Explain(u); !ok {
			c.logger.Debug("link out of scope", "url", target, "filter", by, "from", parent.URL)
			continue
		}
		c.frontier.Enqueue(model.CrawlTarget{URL: target, Depth: depth, DiscoveredFrom: parent.URL})
	}
	c.metrics.SetFrontierSize(c.frontier.Len())
}
