// Package landtx refreshes the Land Transactions dataset.
//
// The government CSV export is downloaded to sources/land-transactions.csv,
// given a per-row MD5 Hash, corrected from sources/corrections/, and checked
// against address validation rules. Valid parishes, towns, localities,
// streets and postcodes are written as addressing lists; rows that break a
// rule are reported in outputs/issues.csv and outputs/issue-rows.csv.
package landtx
