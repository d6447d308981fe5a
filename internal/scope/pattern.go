package scope

import (
	"net/url"
	"path"
	"strings"
)

// PatternFilter applies glob-style ignore and follow patterns to URL paths.
//
// A path matching any ignore pattern is rejected. When follow patterns are
// set, a path must match at least one of them.
//
// Supported forms:
//   - "/api/*" matches "/api" and everything below it
//   - "*.pdf" matches any path ending in ".pdf"
//   - other patterns use path.Match semantics (* and ? within a segment)
type PatternFilter struct {
	ignore []string
	follow []string
}

// NewPatternFilter returns a filter for the given pattern lists.
func NewPatternFilter(ignore, follow []string) *PatternFilter {
	return &PatternFilter{ignore: ignore, follow: follow}
}

// Empty reports whether the filter has no patterns.
func (f *PatternFilter) Empty() bool {
	return len(f.ignore) == 0 && len(f.follow) == 0
}

// Admit implements Filter.
func (f *PatternFilter) Admit(u *url.URL) bool {
	p := u.Path
	if p == "" {
		p = "/"
	}
	for _, pattern := range f.ignore {
		if MatchPattern(pattern, p) {
			return false
		}
	}
	if len(f.follow) == 0 {
		return true
	}
	for _, pattern := range f.follow {
		if MatchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// Name implements Filter.
func (f *PatternFilter) Name() string { return "pattern" }

// MatchPattern reports whether p matches the glob pattern.
func MatchPattern(pattern, p string) bool {
	if strings.HasSuffix(pattern, "/*") {
		dir := strings.TrimSuffix(pattern, "/*")
		if p == dir || strings.HasPrefix(p, dir+"/") {
			return true
		}
	}
	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(p, pattern[1:]) {
		return true
	}
	if ok, err := path.Match(pattern, p); err == nil && ok {
		return true
	}
	// Bare file globs like "draft-*" match the last segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if ok, err := path.Match(pattern, path.Base(p)); err == nil && ok {
			return true
		}
	}
	return false
}
