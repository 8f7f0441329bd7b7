// Command imdata refreshes the Isle of Man open datasets kept under the
// configured data directory and runs the registered buildings pipeline.
//
// Every dataset job is recorded in a sqlite run ledger (see `imdata history`)
// and a lock file in the state directory keeps two runs from overlapping.
package main
