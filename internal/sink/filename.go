package sink

import (
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// Extension is appended to every output file.
	Extension = ".md"

	// MaxBaseLength bounds the filename without extension.
	MaxBaseLength = 200

	// indexSegment names directory-style URLs.
	indexSegment = "index"

	// suffixLength is the number of hex digits used to disambiguate
	// colliding names.
	suffixLength = 8
)

// SanitizeFilename maps a URL to an output filename. It is a pure function.
//
// The host (with ":" replaced by "_") comes first, followed by the path
// segments, all joined with "_". Characters outside [A-Za-z0-9_.-] become
// "_". An empty path, or one ending in "/", gets an "index" segment. The
// name is cut to MaxBaseLength characters and ends in Extension.
//
//	https://example.com/docs/getting-started  -> example.com_docs_getting-started.md
//	https://example.com:8080/docs/            -> example.com_8080_docs_index.md
//	https://example.com/docs/a%20b?x=1        -> example.com_docs_a_20b.md
func SanitizeFilename(rawURL string) string {
	return baseName(rawURL) + Extension
}

func baseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return truncate(sanitizeSegment(rawURL), MaxBaseLength)
	}

	domain := sanitizeSegment(strings.ReplaceAll(u.Host, ":", "_"))

	p := u.EscapedPath()
	var parts []string
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if seg != "" {
			parts = append(parts, sanitizeSegment(seg))
		}
	}
	if len(parts) == 0 || strings.HasSuffix(p, "/") {
		parts = append(parts, indexSegment)
	}

	return truncate(domain+"_"+strings.Join(parts, "_"), MaxBaseLength)
}

// SuffixedFilename is the disambiguated name used when another URL already
// owns SanitizeFilename(rawURL). The suffix is derived from the URL alone,
// so the same URL always gets the same name.
func SuffixedFilename(rawURL string) string {
	sum := sha3.Sum256([]byte(rawURL))
	suffix := "-" + hex.EncodeToString(sum[:])[:suffixLength]
	return truncate(baseName(rawURL), MaxBaseLength-len(suffix)) + suffix + Extension
}

func sanitizeSegment(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isSafe(c) {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func isSafe(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') || c == '-' || c == '.' || c == '_'
}

// truncate works on bytes; sanitized names are ASCII only.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
