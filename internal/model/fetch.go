package model

import (
	"errors"
	"fmt"
)

// ErrorClass categorizes why fetching or processing a page failed.
type ErrorClass string

const (
	// ClassNone means no error occurred.
	ClassNone ErrorClass = ""
	// ClassTimeout covers request and context deadline expiry.
	ClassTimeout ErrorClass = "timeout"
	// ClassDNS covers host lookup failures.
	ClassDNS ErrorClass = "dns"
	// ClassHTTP4xx is a client error status from the server.
	ClassHTTP4xx ErrorClass = "http_4xx"
	// ClassHTTP5xx is a server error status.
	ClassHTTP5xx ErrorClass = "http_5xx"
	// ClassConnectionReset is a peer reset or an unexpected EOF mid-response.
	ClassConnectionReset ErrorClass = "connection_reset"
	// ClassConnectionRefused means nothing listened on the target port.
	ClassConnectionRefused ErrorClass = "connection_refused"
	// ClassTLS covers handshake and certificate failures.
	ClassTLS ErrorClass = "tls"
	// ClassTooManyRedirects means the redirect limit was exceeded.
	ClassTooManyRedirects ErrorClass = "too_many_redirects"
	// ClassMalformed covers unparseable URLs and documents.
	ClassMalformed ErrorClass = "malformed"
	// ClassUnsupportedContent is a response that is not HTML.
	ClassUnsupportedContent ErrorClass = "unsupported_content"
	// ClassCanceled means the crawl was stopped while the request was in flight.
	ClassCanceled ErrorClass = "canceled"
	// ClassExtraction means the page was fetched but could not be converted.
	ClassExtraction ErrorClass = "extraction"
	// ClassOther is anything not covered above, including recovered panics.
	ClassOther ErrorClass = "other"
)

// Transient reports whether a retry of the same request may succeed.
func (c ErrorClass) Transient() bool {
	switch c {
	case ClassTimeout, ClassHTTP5xx, ClassConnectionReset, ClassConnectionRefused, ClassDNS:
		return true
	default:
		return false
	}
}

// FetchError is the classified error carried by a failed FetchResult.
type FetchError struct {
	Class      ErrorClass
	StatusCode int
	Err        error
}

// Error implements error.
func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s (status %d): %v", e.Class, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d)", e.Class, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	default:
		return string(e.Class)
	}
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassOf returns the ErrorClass of err, ClassOther when err carries none,
// and ClassNone for a nil error.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ClassOther
}

// FetchResult is what a Fetcher returns for one URL.
type FetchResult struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after redirects. Outbound links are resolved
	// against it. Equal to URL when no redirect happened.
	FinalURL string

	// StatusCode is the HTTP status of the final response, 0 when no
	// response was received.
	StatusCode int

	// ContentType is the response media type without parameters.
	ContentType string

	// Success is true when a usable HTML document was retrieved.
	Success bool

	// Err holds the classified failure when Success is false.
	Err *FetchError

	// Content is the decoded document body.
	Content []byte

	// Title is the document <title>, if any.
	Title string

	// Links are the absolute outbound hyperlinks in document order,
	// without duplicates.
	Links []string
}

// Failed builds an unsuccessful result for rawURL.
func Failed(rawURL string, class ErrorClass, status int, err error) FetchResult {
	return FetchResult{
		URL:        rawURL,
		FinalURL:   rawURL,
		StatusCode: status,
		Err:        &FetchError{Class: class, StatusCode: status, Err: err},
	}
}

// BaseURL returns the URL that relative references in the document resolve
// against.
func (r FetchResult) BaseURL() string {
	if r.FinalURL != "" {
		return r.FinalURL
	}
	return r.URL
}
