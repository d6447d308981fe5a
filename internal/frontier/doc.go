// Package frontier holds the URLs a crawl has discovered but not yet
// fetched, in breadth-first order, together with the set of URLs already
// seen.
package frontier
