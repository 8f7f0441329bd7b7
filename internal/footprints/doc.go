// Package footprints refreshes the Global ML Building Footprints extract.
//
// The published dataset-links CSV lists one newline-delimited GeoJSON file
// per QuadKey tile (usually gzip-compressed). Tiles for the configured
// location are stored as FeatureCollections under sources/ and merged into
// outputs/building-footprints.geojson.
package footprints
