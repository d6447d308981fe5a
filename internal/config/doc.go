// Package config holds the settings of a crawl: built-in defaults, the
// optional YAML configuration file with per-site overrides, and validation
// of the merged result before any request is made.
package config
