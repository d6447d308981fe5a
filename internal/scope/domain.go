package scope

import (
	"net/url"
	"strings"
)

// DomainFilter admits URLs whose host is one of Hosts. With
// AllowSubdomains, any subdomain of a listed host is admitted too.
// Ports are ignored and comparison is case-insensitive.
type DomainFilter struct {
	hosts           map[string]struct{}
	allowSubdomains bool
}

// NewDomainFilter returns a filter for hosts.
func NewDomainFilter(allowSubdomains bool, hosts ...string) *DomainFilter {
	f := &DomainFilter{
		hosts:           make(map[string]struct{}, len(hosts)),
		allowSubdomains: allowSubdomains,
	}
	for _, h := range hosts {
		h = strings.TrimSuffix(strings.ToLower(stripPort(h)), ".")
		if h != "" {
			f.hosts[h] = struct{}{}
		}
	}
	return f
}

// Admit implements Filter.
func (f *DomainFilter) Admit(u *url.URL) bool {
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return false
	}
	if _, ok := f.hosts[host]; ok {
		return true
	}
	if !f.allowSubdomains {
		return false
	}
	for allowed := range f.hosts {
		if strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// Name implements Filter.
func (f *DomainFilter) Name() string { return "domain" }

func stripPort(hostport string) string {
	u := url.URL{Host: hostport}
	if h := u.Hostname(); h != "" {
		return h
	}
	return hostport
}
