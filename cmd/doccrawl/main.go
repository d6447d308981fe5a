// Package main provides the entry point for the doccrawl CLI.
//
// doccrawl crawls a documentation site breadth-first, starting at one URL
// and staying inside its domain and path prefix, and writes the main
// content of every page as a markdown file.
//
// Usage:
//
//	doccrawl crawl https://docs.example.com/guide/
//	doccrawl crawl --max-pages 50 --depth 3 -o ./out https://docs.example.com/
//
// See --help for all available options.
package main

func main() {
	Execute()
}
