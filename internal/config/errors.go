package config

import "errors"

// Configuration validation errors returned by Config.Validate. Each one is
// a fatal configuration error reported before crawling starts.
var (
	// ErrInvalidStartURL is returned when the start URL is missing, relative,
	// or not http(s).
	ErrInvalidStartURL = errors.New("invalid start url: must be an absolute http or https url")

	// ErrInvalidMaxDepth is returned for a negative depth.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is not positive.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidConcurrency is returned when the concurrency limit is not
	// positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidTimeout is returned when the per-request timeout is not
	// positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDelay is returned for a negative delay.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidRetries is returned for a negative retry count or backoff.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidMaxBodySize is returned for a body size limit below one byte.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be positive")

	// ErrEmptyOutputDir is returned when no output directory is set.
	ErrEmptyOutputDir = errors.New("output directory must not be empty")

	// ErrEmptySelector is returned when the content selector is blank.
	ErrEmptySelector = errors.New("content selector must not be empty")

	// ErrInvalidCollisionPolicy is returned for an unknown collision policy.
	ErrInvalidCollisionPolicy = errors.New("invalid collision policy: use suffix or overwrite")

	// ErrInvalidFetcher is returned for an unknown fetcher kind.
	ErrInvalidFetcher = errors.New("invalid fetcher: use http or browser")

	// ErrInvalidReportFormat is returned for an unknown report format.
	ErrInvalidReportFormat = errors.New("invalid report format: use text, markdown or json")

	// ErrInvalidLogFormat is returned for an unknown log format.
	ErrInvalidLogFormat = errors.New("invalid log format: use text or json")

	// ErrInvalidPattern is returned when an include/exclude regular
	// expression or an ignore/follow glob does not compile.
	ErrInvalidPattern = errors.New("invalid url pattern")
)
