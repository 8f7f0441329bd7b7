// Package fetch is the shared HTTP layer for dataset jobs: a resty client with
// the configured user agent, timeout and retry policy, plus context-aware
// politeness delays between requests.
package fetch
