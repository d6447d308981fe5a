// Package report renders the summary of a crawl session as plain text,
// markdown or JSON.
package report
