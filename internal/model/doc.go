// Package model defines the data passed between the crawler components.
//
//   - CrawlTarget: a URL waiting in the frontier, with its depth
//   - FetchResult: what a fetcher returned, including classified errors
//   - ExtractedPage: converted main content handed to the sink
//   - State, PageOutcome, Summary: crawl session bookkeeping
//
// The types live in their own package so that frontier, fetch, extract,
// sink and coordinator can share them without import cycles.
package model
