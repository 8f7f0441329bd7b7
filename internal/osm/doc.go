// Package osm refreshes OpenStreetMap extracts through the Overpass API.
//
// Each labelled query in sources/sources.json is posted to the Overpass
// interpreter with JSON output and full geometry. Responses are converted
// to GeoJSON FeatureCollections with go-geom and stored under
// sources/overpass/; outputs/ receives a cleaned copy of every stored
// collection.
package osm
