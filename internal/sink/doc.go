// Package sink writes extracted pages to disk under names derived from
// their URLs.
//
// Distinct URLs can sanitize to the same filename, for example when they
// differ only in query string or in characters that are replaced by "_".
// FileSink resolves this with a CollisionPolicy. The default, suffix,
// appends eight hex digits of the URL's SHA3-256 to every URL after the
// first, so no page is lost and every name is reproducible.
package sink
