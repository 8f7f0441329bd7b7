// Package textutil provides text helpers shared by the scrapers and the
// registered buildings pipeline: filesystem-safe names, reference
// sanitisation, Markdown escaping and whitespace cleanup of scraped text.
package textutil
