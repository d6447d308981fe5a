package config

import "strings"

// SiteConfig holds overrides for one documentation host. Zero values mean
// "not set"; Depth and MaxPages are pointers so that 0 can be configured.
type SiteConfig struct {
	// Selector overrides the content selector.
	Selector string `yaml:"selector,omitempty"`

	// Strip lists selectors removed before conversion, e.g. ".edit-link".
	Strip []string `yaml:"strip,omitempty"`

	// Prefix overrides the base path prefix.
	Prefix string `yaml:"prefix,omitempty"`

	Depth    *int `yaml:"depth,omitempty"`
	MaxPages *int `yaml:"max_pages,omitempty"`

	// Headers are added to every request to this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Cookie is sent with every request, e.g. "session=abc".
	Cookie string `yaml:"cookie,omitempty"`

	UserAgent string `yaml:"user_agent,omitempty"`

	// Include and Exclude are regular expressions on the full URL.
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	// Ignore and Follow are glob patterns on the URL path.
	Ignore []string `yaml:"ignore,omitempty"`
	Follow []string `yaml:"follow,omitempty"`
}

// File is the structure of the .doccrawl configuration file.
type File struct {
	// Defaults applies to every site unless the site entry overrides it.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// Sites maps a host name (e.g. "docs.example.com") to its overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`
}

// GetSiteConfig returns the defaults merged with the entry for host.
// Hosts match case-insensitively; an entry with a port ("localhost:8080")
// is preferred over one without.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults

	site, ok := cf.lookup(host)
	if !ok {
		return result
	}

	if site.Selector != "" {
		result.Selector = site.Selector
	}
	if len(site.Strip) > 0 {
		result.Strip = site.Strip
	}
	if site.Prefix != "" {
		result.Prefix = site.Prefix
	}
	if site.Depth != nil {
		result.Depth = site.Depth
	}
	if site.MaxPages != nil {
		result.MaxPages = site.MaxPages
	}
	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.UserAgent != "" {
		result.UserAgent = site.UserAgent
	}
	if len(site.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(site.Headers))
		for k, v := range result.Headers {
			merged[k] = v
		}
		for k, v := range site.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}
	if len(site.Include) > 0 {
		result.Include = site.Include
	}
	if len(site.Exclude) > 0 {
		result.Exclude = site.Exclude
	}
	if len(site.Ignore) > 0 {
		result.Ignore = site.Ignore
	}
	if len(site.Follow) > 0 {
		result.Follow = site.Follow
	}
	return result
}

func (cf *File) lookup(host string) (SiteConfig, bool) {
	host = strings.ToLower(host)
	hostname := host
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.HasSuffix(host, "]") {
		hostname = host[:i]
	}

	var fallback SiteConfig
	found := false
	for key, sc := range cf.Sites {
		switch strings.ToLower(key) {
		case host:
			return sc, true
		case hostname:
			fallback, found = sc, true
		}
	}
	return fallback, found
}
