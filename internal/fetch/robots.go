package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// Robots is the robots.txt group that applies to the crawler.
type Robots struct {
	Group *robotstxt.Group
	// CrawlDelay is the delay requested by the site, zero if none.
	CrawlDelay time.Duration
}

// LoadRobots fetches and parses robots.txt for the host of start.
//
// robotstxt.FromResponse applies the usual status semantics: a missing
// file (4xx) allows everything, a server error (5xx) disallows everything.
// Transport errors are returned so the caller can decide.
func LoadRobots(ctx context.Context, client *http.Client, start *url.URL, userAgent string) (*Robots, error) {
	robotsURL := &url.URL{Scheme: start.Scheme, Host: start.Host, Path: "/robots.txt"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create robots.txt request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", robotsURL, err)
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", robotsURL, err)
	}

	group := data.FindGroup(userAgent)
	return &Robots{Group: group, CrawlDelay: group.CrawlDelay}, nil
}
