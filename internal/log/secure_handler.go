package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// MaskValue replaces sensitive values in log output.
const MaskValue = "***REDACTED***"

// Format selects the output encoding of a logger built by New.
type Format string

const (
	// FormatText writes logfmt style key=value lines.
	FormatText Format = "text"
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
)

// sensitiveKeys are attribute keys whose values are never logged.
// Crawls may carry site credentials through --cookie and --header, and
// those end up in request logs.
var sensitiveKeys = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"password":            true,
	"secret":              true,
	"token":               true,
	"api_key":             true,
	"apikey":              true,
	"access_token":        true,
	"refresh_token":       true,
	"session":             true,
	"session_id":          true,
	"sessionid":           true,
	"jsessionid":          true,
	"credentials":         true,
}

// sensitiveKeywords mark a key as sensitive when contained anywhere in it.
// The bare word "key" is left out because it matches harmless keys such as
// "cache_key".
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth", "credential", "cookie",
}

// sensitivePatterns mask a whole string value regardless of its key.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// sensitiveQueryParams are URL query parameters that get masked in place
// while the rest of the URL stays readable.
var sensitiveQueryParams = []string{
	"token", "access_token", "api_key", "apikey", "key", "signature",
	"sig", "password", "auth", "session", "sessionid",
}

// SecureHandler wraps an slog.Handler and masks sensitive attribute values
// before they reach the underlying handler.
//
// Keys that name credentials are replaced entirely. URL valued strings keep
// their host and path but lose userinfo passwords and credential-like query
// parameters, so crawl logs stay useful without leaking what a site was
// accessed with.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler wraps handler. A nil handler wraps slog.Default().Handler().
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled delegates to the wrapped handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes r's attributes and its message and forwards the result.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a handler whose preset attributes are already sanitized.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(out)}
}

// WithGroup returns a handler that nests attributes under name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = sanitizeAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, sanitizeString(a.Value.String()))
	case slog.KindAny:
		if u, ok := a.Value.Any().(*url.URL); ok && u != nil {
			return slog.String(a.Key, RedactURL(u.String()))
		}
		if m, ok := a.Value.Any().(map[string]string); ok {
			return slog.Any(a.Key, sanitizeHeaderMap(m))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	if sensitiveKeys[lower] {
		return true
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func sanitizeString(s string) string {
	for _, p := range sensitivePatterns {
		if p.MatchString(s) {
			return MaskValue
		}
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "socks5://") {
		return RedactURL(s)
	}
	return s
}

func sanitizeHeaderMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = MaskValue
			continue
		}
		out[k] = sanitizeString(v)
	}
	return out
}

// RedactURL masks the userinfo password and credential-like query values of
// raw. Strings that do not parse as URLs are returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	changed := false
	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), MaskValue)
			changed = true
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if isSensitiveQueryParam(key) {
				q.Set(key, MaskValue)
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}
	if !changed {
		return raw
	}
	// url.URL escapes the mask inside userinfo; restore it for readability.
	return strings.NewReplacer("%2A%2A%2AREDACTED%2A%2A%2A", MaskValue).Replace(u.String())
}

func isSensitiveQueryParam(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range sensitiveQueryParams {
		if lower == p {
			return true
		}
	}
	return false
}

// NewSecureLogger returns a text logger on w. Level is Warn, or Debug when
// verbose is set.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return New(w, FormatText, verbose)
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return New(w, FormatJSON, verbose)
}

// New builds a sanitizing logger for the given format. Unknown formats fall
// back to text.
func New(w io.Writer, format Format, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewSecureHandler(h))
}
