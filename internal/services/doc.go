// Package services defines shared utilities consumed by the dataset jobs and
// their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp dataset names, run identifiers, and record
//     keys (search term, RB number) for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent run-ledger statuses (failed vs invalid).
//
// Use these helpers when wiring new jobs so error handling and observability
// stay uniform across datasets.
package services
