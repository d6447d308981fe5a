// Package extract turns fetched HTML into markdown.
//
// The content region is chosen with a CSS selector (goquery), falling back
// to the document body. The region is cleaned of scripts and styles, its
// links are made absolute, and it is converted with html-to-markdown. The
// title comes from <title>, or from the first markdown H1 (goldmark) when
// the document has none.
package extract
