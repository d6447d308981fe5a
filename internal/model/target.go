package model

// CrawlTarget is a URL waiting in the frontier.
// Targets are created when a link passes the scope filters and are consumed
// exactly once by the coordinator.
type CrawlTarget struct {
	// URL is the absolute, normalized URL to fetch.
	URL string `json:"url"`

	// Depth is the link distance from the start URL. The start URL has depth 0.
	Depth int `json:"depth"`

	// DiscoveredFrom is the URL of the page that linked here.
	// Empty for the start URL.
	DiscoveredFrom string `json:"discovered_from,omitempty"`
}

// IsSeed reports whether t is the start URL of a crawl.
func (t CrawlTarget) IsSeed() bool {
	return t.DiscoveredFrom == "" && t.Depth == 0
}
