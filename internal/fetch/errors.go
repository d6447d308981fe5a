package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/nao1215/doccrawl/internal/model"
)

var (
	// ErrTooManyRedirects is returned when a redirect chain exceeds the limit.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrUnsupportedContent is returned for responses that are not HTML.
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrInvalidProxy is returned when the proxy URL cannot be used.
	ErrInvalidProxy = errors.New("invalid proxy")

	// ErrNoBrowser is returned when no Chrome executable could be started.
	ErrNoBrowser = errors.New("headless browser unavailable")
)

// ClassifyStatus maps an HTTP status code to an error class.
// Statuses below 400 are ClassNone.
func ClassifyStatus(status int) model.ErrorClass {
	switch {
	case status >= http.StatusInternalServerError:
		return model.ClassHTTP5xx
	case status >= http.StatusBadRequest:
		return model.ClassHTTP4xx
	default:
		return model.ClassNone
	}
}

// Classify maps a transport error to an error class. Order matters:
// cancellation is checked before timeouts because a canceled crawl must not
// be reported as a slow server.
func Classify(err error) model.ErrorClass {
	if err == nil {
		return model.ClassNone
	}

	var fe *model.FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}

	if errors.Is(err, context.Canceled) {
		return model.ClassCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ClassTimeout
	}
	if errors.Is(err, ErrTooManyRedirects) {
		return model.ClassTooManyRedirects
	}
	if errors.Is(err, ErrUnsupportedContent) {
		return model.ClassUnsupportedContent
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return model.ClassTimeout
		}
		return model.ClassDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ClassTimeout
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return model.ClassConnectionReset
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return model.ClassConnectionRefused
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) || errors.As(err, &recordErr) {
		return model.ClassTLS
	}

	return ClassifyMessage(err.Error())
}

// chromeErrors maps Chrome network error codes to classes.
var chromeErrors = []struct {
	code  string
	class model.ErrorClass
}{
	{"ERR_NAME_NOT_RESOLVED", model.ClassDNS},
	{"ERR_NAME_RESOLUTION_FAILED", model.ClassDNS},
	{"ERR_TIMED_OUT", model.ClassTimeout},
	{"ERR_CONNECTION_TIMED_OUT", model.ClassTimeout},
	{"ERR_CONNECTION_RESET", model.ClassConnectionReset},
	{"ERR_CONNECTION_CLOSED", model.ClassConnectionReset},
	{"ERR_EMPTY_RESPONSE", model.ClassConnectionReset},
	{"ERR_CONNECTION_REFUSED", model.ClassConnectionRefused},
	{"ERR_CERT_", model.ClassTLS},
	{"ERR_SSL_", model.ClassTLS},
	{"ERR_TOO_MANY_REDIRECTS", model.ClassTooManyRedirects},
	{"ERR_INVALID_URL", model.ClassMalformed},
	{"ERR_ABORTED", model.ClassCanceled},
}

// ClassifyMessage classifies errors that only survive as text, such as
// Chrome's "net::ERR_*" navigation failures.
func ClassifyMessage(msg string) model.ErrorClass {
	for _, ce := range chromeErrors {
		if strings.Contains(msg, ce.code) {
			return ce.class
		}
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no such host"):
		return model.ClassDNS
	case strings.Contains(lower, "connection reset"):
		return model.ClassConnectionReset
	case strings.Contains(lower, "connection refused"):
		return model.ClassConnectionRefused
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return model.ClassTimeout
	}
	return model.ClassOther
}
