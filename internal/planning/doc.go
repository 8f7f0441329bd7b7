// Package planning refreshes the Planning Applications datasets.
//
// Three record types (planning applications, delegated decisions and
// appeals) are published as one CSV per year. sources/sources.json lists the
// yearly files per record type in order and sources/defaults.json gives the
// canonical column mapping each year is normalised to. Years may override
// the number of preamble lines and the mapping, drop personal-data columns on
// download, or be skipped entirely.
package planning
