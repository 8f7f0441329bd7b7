// Package runlog persists the run ledger: one row per dataset job executed by
// `imdata update` or `imdata rb`, backed by SQLite.
//
// The ledger answers "when did this dataset last refresh, and did it work"
// for `imdata history`. It is not a checkpoint store; resume state lives in
// the per-dataset JSON files managed by the checkpoint package.
package runlog
