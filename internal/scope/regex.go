package scope

import (
	"fmt"
	"net/url"
	"regexp"
)

// RegexFilter matches full URL strings against include and exclude
// expressions. Exclusions win. When includes are present a URL must match
// at least one of them.
type RegexFilter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewRegexFilter compiles the expressions. It fails on the first invalid one.
func NewRegexFilter(include, exclude []string) (*RegexFilter, error) {
	f := &RegexFilter{}
	for _, expr := range include {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", expr, err)
		}
		f.include = append(f.include, re)
	}
	for _, expr := range exclude {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", expr, err)
		}
		f.exclude = append(f.exclude, re)
	}
	return f, nil
}

// Empty reports whether the filter has no expressions.
func (f *RegexFilter) Empty() bool {
	return len(f.include) == 0 && len(f.exclude) == 0
}

// Admit implements Filter.
func (f *RegexFilter) Admit(u *url.URL) bool {
	s := u.String()
	for _, re := range f.exclude {
		if re.MatchString(s) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, re := range f.include {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Name implements Filter.
func (f *RegexFilter) Name() string { return "regex" }
