// Package checkpoint persists the small JSON state files that let dataset
// jobs resume: the companies search status and the company details cache.
//
// Every write goes through a temp file and rename so an interrupted run
// leaves the previous state intact.
package checkpoint
