// Package database keeps the crawl history in SQLite.
//
// Every invocation of the crawl command becomes one session row; every
// processed page becomes one page row of that session. The history is
// informational: it never influences which pages a later crawl fetches.
//
// SQLite is provided by modernc.org/sqlite, which needs no cgo, so the
// binary cross-compiles like the rest of doccrawl.
package database
