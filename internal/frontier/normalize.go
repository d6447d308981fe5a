package frontier

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

var (
	// ErrNotAbsolute is returned for URLs without scheme or host.
	ErrNotAbsolute = errors.New("url is not absolute")

	// ErrUnsupportedScheme is returned for schemes other than http and https.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// Normalize returns the canonical string form of raw used for
// de-duplication. Two URLs that refer to the same document normalize to the
// same string:
//   - scheme and host are lowercased
//   - default ports (80 for http, 443 for https) are dropped
//   - the fragment is removed
//   - dot segments are resolved and a trailing slash is removed, except for
//     the root path
//   - query parameters are sorted by key, then by value
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse url %q: %w", raw, err)
	}
	n, err := NormalizeURL(u)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

// NormalizeURL is Normalize for a parsed URL. u is not modified.
func NormalizeURL(u *url.URL) (*url.URL, error) {
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrNotAbsolute, u.String())
	}

	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	if n.Scheme != "http" && n.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, n.Scheme)
	}

	n.Host = normalizeHost(n.Scheme, n.Host)
	n.Fragment = ""
	n.RawFragment = ""

	escaped := cleanPath(n.EscapedPath())
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, fmt.Errorf("failed to unescape path %q: %w", escaped, err)
	}
	n.Path = unescaped
	n.RawPath = escaped

	n.RawQuery = sortedQuery(n.RawQuery)
	n.ForceQuery = false

	return &n, nil
}

// RequestURL returns the form of raw that is fetched, saved and shown to
// the user. Unlike Normalize it keeps the path as written, trailing slash
// included, since "/docs" and "/docs/" may be different resources on the
// server. Only the fragment is dropped, scheme and host are lowercased and
// an empty path becomes "/".
func RequestURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrNotAbsolute, raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	u.Host = normalizeHost(u.Scheme, u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" && u.RawPath == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// SameDocument reports whether a and b normalize to the same URL.
func SameDocument(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}

func normalizeHost(scheme, host string) string {
	host = strings.ToLower(host)
	h, port, found := strings.Cut(host, ":")
	if strings.HasPrefix(host, "[") {
		// IPv6 literal: the port follows the closing bracket.
		end := strings.LastIndex(host, "]")
		h, port, found = host[:end+1], "", false
		if end+1 < len(host) && host[end+1] == ':' {
			port, found = host[end+2:], true
		}
	}
	if !found {
		return h
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") || port == "" {
		return h
	}
	return h + ":" + port
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "/"
	}
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return cleaned
}

func sortedQuery(raw string) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		// Keep unparseable queries verbatim rather than dropping parameters.
		return raw
	}
	for _, values := range q {
		sort.Strings(values)
	}
	return q.Encode()
}
