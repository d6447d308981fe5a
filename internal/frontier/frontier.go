package frontier

import (
	"log/slog"
	"sync"

	"github.com/nao1215/doccrawl/internal/model"
)

// Decision is the result of offering a target to the frontier.
type Decision int

const (
	// Admitted means the target was queued.
	Admitted Decision = iota
	// Duplicate means an equivalent URL was queued or fetched before.
	Duplicate
	// TooDeep means the target depth exceeds the configured maximum.
	TooDeep
	// Invalid means the URL could not be normalized.
	Invalid
)

// String returns a lowercase name for log output.
func (d Decision) String() string {
	switch d {
	case Admitted:
		return "admitted"
	case Duplicate:
		return "duplicate"
	case TooDeep:
		return "too_deep"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Frontier is a breadth-first queue of crawl targets with de-duplication.
//
// A URL is marked visited in the same critical section that queues it, so
// two workers discovering the same link can never both enqueue it. Targets
// come out in the order they went in; because every link found at depth d
// is queued before any page at depth d+1 is processed, all depth d targets
// are dequeued before any depth d+1 target.
type Frontier struct {
	mu       sync.Mutex
	queue    []model.CrawlTarget
	visited  *VisitedSet
	maxDepth int
	logger   *slog.Logger
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Frontier) {
		f.logger = logger
	}
}

// WithVisitedSet shares an existing visited set with the frontier.
func WithVisitedSet(v *VisitedSet) Option {
	return func(f *Frontier) {
		f.visited = v
	}
}

// New returns an empty frontier that refuses targets deeper than maxDepth.
func New(maxDepth int, opts ...Option) *Frontier {
	f := &Frontier{
		queue:    make([]model.CrawlTarget, 0),
		maxDepth: maxDepth,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.visited == nil {
		f.visited = NewVisitedSet()
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Enqueue queues t unless it is invalid, deeper than the maximum depth, or
// already visited. Visits are tracked by the normalized URL; the queued
// target keeps its RequestURL form so that "/docs/" is fetched as written.
func (f *Frontier) Enqueue(t model.CrawlTarget) Decision {
	normalized, err := Normalize(t.URL)
	if err != nil {
		f.logger.Debug("frontier rejected url", "url", t.URL, "error", err)
		return Invalid
	}
	requestURL, err := RequestURL(t.URL)
	if err != nil {
		return Invalid
	}
	if t.Depth < 0 || t.Depth > f.maxDepth {
		return TooDeep
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.visited.Add(normalized) {
		return Duplicate
	}
	t.URL = requestURL
	f.queue = append(f.queue, t)
	return Admitted
}

// MarkVisited records raw as visited without queueing it. It is used for
// redirect targets so that later links to them are not fetched again.
// It reports whether raw was new.
func (f *Frontier) MarkVisited(raw string) bool {
	normalized, err := Normalize(raw)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Add(normalized)
}

// DequeueBatch removes and returns up to n targets in FIFO order.
// It returns nil when the frontier is empty or n <= 0.
func (f *Frontier) DequeueBatch(n int) []model.CrawlTarget {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n <= 0 || len(f.queue) == 0 {
		return nil
	}
	if n > len(f.queue) {
		n = len(f.queue)
	}
	batch := make([]model.CrawlTarget, n)
	copy(batch, f.queue[:n])
	f.queue = f.queue[n:]
	return batch
}

// Discard drops every queued target and returns how many were dropped.
func (f *Frontier) Discard() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.queue)
	f.queue = nil
	return n
}

// IsEmpty reports whether no targets are queued.
func (f *Frontier) IsEmpty() bool {
	return f.Len() == 0
}

// Len returns the number of queued targets.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Visited returns the number of distinct URLs ever admitted or marked.
func (f *Frontier) Visited() int {
	return f.visited.Len()
}

// MaxDepth returns the depth limit.
func (f *Frontier) MaxDepth() int {
	return f.maxDepth
}
