package scope

import (
	"net/url"

	"github.com/temoto/robotstxt"
)

// RobotsFilter rejects URLs disallowed by a robots.txt group.
// A nil group admits everything.
type RobotsFilter struct {
	group *robotstxt.Group
}

// NewRobotsFilter wraps the group selected for the crawler's user agent.
func NewRobotsFilter(group *robotstxt.Group) *RobotsFilter {
	return &RobotsFilter{group: group}
}

// Admit implements Filter.
func (f *RobotsFilter) Admit(u *url.URL) bool {
	if f.group == nil {
		return true
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return f.group.Test(p)
}

// Name implements Filter.
func (f *RobotsFilter) Name() string { return "robots" }

// SchemeFilter admits only http and https URLs.
type SchemeFilter struct{}

// Admit implements Filter.
func (SchemeFilter) Admit(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

// Name implements Filter.
func (SchemeFilter) Name() string { return "scheme" }
