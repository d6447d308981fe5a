package scope

import (
	"net/url"
	"strings"
)

// PathPrefixFilter admits URLs whose path starts with a base path.
//
// A prefix ending in "/" also admits the directory itself without the
// slash, since URLs are compared after normalization removes trailing
// slashes: prefix "/docs/" admits "/docs" and "/docs/intro" but not
// "/docsearch".
type PathPrefixFilter struct {
	prefix string
}

// NewPathPrefixFilter accepts either a path ("/docs/") or a full URL
// ("https://example.com/docs/"), in which case only its path is used.
func NewPathPrefixFilter(prefix string) *PathPrefixFilter {
	return &PathPrefixFilter{prefix: PrefixPath(prefix)}
}

// PrefixPath extracts the path part of a prefix given as path or URL.
// The empty prefix becomes "/".
func PrefixPath(prefix string) string {
	p := strings.TrimSpace(prefix)
	if u, err := url.Parse(p); err == nil && u.Scheme != "" && u.Host != "" {
		p = u.EscapedPath()
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Admit implements Filter.
func (f *PathPrefixFilter) Admit(u *url.URL) bool {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if strings.HasPrefix(p, f.prefix) {
		return true
	}
	return strings.HasSuffix(f.prefix, "/") && p == strings.TrimSuffix(f.prefix, "/")
}

// Name implements Filter.
func (f *PathPrefixFilter) Name() string { return "path_prefix" }

// Prefix returns the configured path prefix.
func (f *PathPrefixFilter) Prefix() string { return f.prefix }

// DefaultPrefix returns the directory of startURL's path, which is the
// scope used when no base path is configured: "https://x/docs/guide"
// yields "/docs/", "https://x/docs/" yields "/docs/".
func DefaultPrefix(startURL *url.URL) string {
	p := startURL.EscapedPath()
	if p == "" {
		return "/"
	}
	if strings.HasSuffix(p, "/") {
		return p
	}
	i := strings.LastIndex(p, "/")
	return p[:i+1]
}
