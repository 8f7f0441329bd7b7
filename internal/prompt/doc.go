// Package prompt decides whether a dataset job may hit the network, either by
// asking on the terminal or from --yes / --no-input / per-dataset flags.
package prompt
