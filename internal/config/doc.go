// Package config loads, normalizes, and validates imdata configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY. Dataset directories that are left blank are derived from
// paths.data_dir so a single setting relocates every job.
package config
