// Package fileutil holds the small filesystem helpers every job shares:
// atomic replace-on-write for outputs and checkpoints, plus plain copies.
package fileutil
