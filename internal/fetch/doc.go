// Package fetch retrieves documentation pages and the links they contain.
//
// Two Fetcher implementations are provided. HTTPFetcher issues plain GET
// requests with charset decoding and an optional SOCKS5 proxy.
// BrowserFetcher renders pages in headless Chrome through chromedp.
//
// Failures are never returned as Go errors. They come back as a
// model.FetchResult with a classified model.FetchError (timeout, dns,
// http_4xx, http_5xx, connection_reset, ...). Fetchers do not retry.
//
// Outbound links are resolved against the response's final URL, after
// redirects, honoring <base href>.
package fetch
