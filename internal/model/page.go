package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// ExtractedPage is the main content of a fetched page, ready for the sink.
type ExtractedPage struct {
	// URL is the page URL written into the output header.
	URL string `json:"url"`

	// Title is the document title, or the first heading when the document
	// has no <title>.
	Title string `json:"title,omitempty"`

	// Markdown is the converted main-content region.
	Markdown string `json:"markdown"`

	// UsedFallback is true when the content selector matched nothing and the
	// document body was used instead.
	UsedFallback bool `json:"used_fallback"`
}

// ContentHash returns the hex SHA-256 of the markdown text.
func (p ExtractedPage) ContentHash() string {
	sum := sha256.Sum256([]byte(p.Markdown))
	return hex.EncodeToString(sum[:])
}
