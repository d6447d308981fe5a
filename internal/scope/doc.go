// Package scope decides which discovered URLs a crawl may visit.
//
// Filters are small predicates over *url.URL composed into a Chain that
// admits a URL only if every filter does. The chain stops at the first
// rejection, so later filters never see URLs an earlier one refused.
//
// Available filters:
//   - DomainFilter: host equals, or is a subdomain of, an allowed host
//   - PathPrefixFilter: path lies under the documentation base path
//   - RegexFilter: include and exclude regular expressions on the full URL
//   - PatternFilter: glob ignore and follow patterns on the path
//   - RobotsFilter: robots.txt rules for the crawler's user agent
//   - SchemeFilter: http and https only
//
// New predicates implement Filter and are appended to the chain; the
// coordinator only ever calls Chain.Explain.
package scope
