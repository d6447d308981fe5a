// Package metrics exposes crawl progress as Prometheus metrics.
package metrics
