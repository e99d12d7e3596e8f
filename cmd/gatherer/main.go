// Package main provides the entry point for the gatherer CLI.
//
// gatherer is a polite sitemap crawler: it discovers URLs from sitemaps,
// honors robots.txt, paces its requests per host and extracts tabular
// records into NDJSON or SQLite.
//
// Usage:
//
//	gatherer crawl <seed-url>...
//
// See --help for all available options.
package main

func main() {
	Execute()
}
