// Package jobrun executes dataset jobs one after another, recording each run
// in the ledger and holding the single-writer lock on the state directory.
package jobrun
