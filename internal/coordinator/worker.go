package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/doccrawl/internal/frontier"
	"github.com/nao1215/doccrawl/internal/model"
)

// process fetches, extracts and persists one target. It never panics: a
// panic anywhere below is recorded as a failed page of class other.
func (c *Coordinator) process(ctx context.Context, t model.CrawlTarget) (res pageResult) {
	start := time.Now()
	res.target = t
	res.outcome = model.PageOutcome{Target: t}

	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("recovered panic while processing page", "url", t.URL, "panic", p)
			res.fetch.Success = false
			res.outcome.Status = model.PageFailed
			res.outcome.Class = model.ClassOther
			res.outcome.Error = fmt.Sprintf("panic: %v", p)
		}
		res.outcome.Duration = time.Since(start)
	}()

	fr, attempts := c.fetchWithRetry(ctx, t.URL)
	c.metrics.ObserveFetch(time.Since(start))
	res.fetch = fr
	res.outcome.Attempts = attempts
	res.outcome.StatusCode = fr.StatusCode

	if !fr.Success {
		res.outcome.Status = model.PageFailed
		res.outcome.Class = model.ClassOther
		if fr.Err != nil {
			res.outcome.Class = fr.Err.Class
			res.outcome.Error = fr.Err.Error()
		}
		if res.outcome.Class != model.ClassCanceled {
			c.logger.Warn("fetch failed", "url", t.URL, "class", string(res.outcome.Class), "error", res.outcome.Error)
		}
		return res
	}

	if _, err := frontier.Normalize(fr.FinalURL); err == nil && !frontier.SameDocument(fr.FinalURL, t.URL) {
		if !c.frontier.MarkVisited(fr.FinalURL) {
			// The redirect target is queued or done on its own.
			c.logger.Debug("redirect target already known", "url", t.URL, "final_url", fr.FinalURL)
			res.duplicate = true
			return res
		}
	}
	res.outcome.Links = len(fr.Links)

	page, err := c.extractor.Extract(fr)
	if err != nil {
		res.outcome.Status = model.PageFailed
		res.outcome.Class = model.ClassExtraction
		res.outcome.Error = err.Error()
		c.logger.Warn("extraction failed", "url", t.URL, "error", err)
		return res
	}
	page.URL = t.URL
	res.outcome.Title = page.Title
	res.outcome.Hash = page.ContentHash()

	path, err := c.sink.Persist(ctx, page)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			res.outcome.Status = model.PageFailed
			res.outcome.Class = model.ClassCanceled
			res.outcome.Error = err.Error()
			return res
		}
		res.outcome.Status = model.PageSinkError
		res.outcome.Error = err.Error()
		c.logger.Error("failed to persist page", "url", t.URL, "error", err)
		return res
	}

	res.outcome.Status = model.PageSaved
	res.outcome.File = path
	c.logger.Debug("saved page", "url", t.URL, "depth", t.Depth, "file", path)
	return res
}

// fetchWithRetry fetches rawURL, retrying transient failures up to
// MaxRetries times with exponential backoff. It returns the last result and
// the number of attempts made.
func (c *Coordinator) fetchWithRetry(ctx context.Context, rawURL string) (model.FetchResult, int) {
	backoff := c.settings.RetryBackoff
	var r model.FetchResult

	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return model.Failed(rawURL, model.ClassCanceled, 0, err), attempt
			}
		}

		r = c.fetcher.Fetch(ctx, rawURL)
		if r.Success || attempt > c.settings.MaxRetries || r.Err == nil || !r.Err.Class.Transient() {
			return r, attempt
		}
		if ctx.Err() != nil {
			return model.Failed(rawURL, model.ClassCanceled, 0, ctx.Err()), attempt
		}

		c.logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt, "class", string(r.Err.Class), "backoff", backoff)
		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return model.Failed(rawURL, model.ClassCanceled, 0, ctx.Err()), attempt
			case <-timer.C:
			}
			backoff *= 2
		}
	}
}
