// Package llm provides an OpenAI-compatible chat completion client for
// structured extraction.
//
// This package is used by:
//   - rb extract: turn OCR text from registered-building documents into
//     structured fields
//   - doctor --llm: verify the API key and model
//
// # Response formats
//
// Complete first asks for a strict json_schema response when the request
// carries a schema. If that mode keeps failing, or the server rejects it with
// 400/422, the same prompt is re-sent in json_object mode. Only the outcome of
// the json_object attempts is surfaced to the caller.
//
// # Retry Behaviour
//
// Each mode retries HTTP 408/429/5xx, network timeouts, empty content and
// undecodable JSON up to MaxRetries extra attempts, sleeping
// min(base*2^attempt + U(0,base), cap) between attempts (Retry-After wins when
// present). 401 is fatal unless RetryUnauthorized is set. A random polite delay
// precedes every Complete call. Context cancellation aborts immediately.
package llm
