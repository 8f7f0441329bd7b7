// Package companies scrapes the Isle of Man Companies Registry search pages
// into per-term CSV files, resuming from sources/status.json, and derives the
// live, non-live and previous-name company lists.
//
// Layout under <data>/gov.im/companies:
//
//	sources/sources.json   search terms
//	sources/status.json    last page fetched per term
//	sources/terms/*.csv    raw search results, appended page by page
//	sources/details.json   cached company detail pages
//	outputs/*.csv          derived lists
package companies
