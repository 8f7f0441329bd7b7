// Package tabular is the in-memory table every dataset job loads its CSV
// sources into: ordered string columns, row filtering and stable sorting,
// keep-first/keep-last deduplication, concatenation of frames with differing
// columns, and quote-all CSV output.
//
// Cells are plain strings; a missing value is the empty string.
package tabular
