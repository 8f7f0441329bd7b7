package osm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// BuildQuery wraps a query body in the Overpass settings and output
// statements.
func BuildQuery(body string, timeoutSeconds int, verbosity string) string {
	body = strings.TrimSpace(body)
	if body != "" && !strings.HasSuffix(body, ";") {
		body += ";"
	}
	return fmt.Sprintf("[out:json][timeout:%d];%sout %s;", timeoutSeconds, body, verbosity)
}

// Response is an Overpass JSON response.
type Response struct {
	Version   float64   `json:"version"`
	Generator string    `json:"generator"`
	Remark    string    `json:"remark,omitempty"`
	Elements  []Element `json:"elements"`
}

// Element is a node, way or relation returned with geometry.
type Element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Lat      *float64          `json:"lat,omitempty"`
	Lon      *float64          `json:"lon,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Geometry []*LatLon         `json:"geometry,omitempty"`
	Members  []Member          `json:"members,omitempty"`
}

// Member is one relation member.
type Member struct {
	Type     string    `json:"type"`
	Ref      int64     `json:"ref"`
	Role     string    `json:"role"`
	Lat      *float64  `json:"lat,omitempty"`
	Lon      *float64  `json:"lon,omitempty"`
	Geometry []*LatLon `json:"geometry,omitempty"`
}

// LatLon is one geometry vertex. Overpass emits null for vertices it could
// not resolve.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ParseResponse decodes an Overpass JSON body.
func ParseResponse(body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode overpass response: %w", err)
	}
	return &resp, nil
}

// Features converts elements to GeoJSON. Elements without usable geometry
// are dropped.
func (r *Response) Features() *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, el := range r.Elements {
		g := el.geometry()
		if g == nil {
			continue
		}
		id := el.Type + "/" + strconv.FormatInt(el.ID, 10)
		props := make(map[string]interface{}, len(el.Tags)+1)
		for k, v := range el.Tags {
			props[k] = v
		}
		props["@id"] = id
		fc.Features = append(fc.Features, &geojson.Feature{ID: id, Geometry: g, Properties: props})
	}
	return fc
}

func (el Element) geometry() geom.T {
	switch el.Type {
	case "node":
		if el.Lat == nil || el.Lon == nil {
			return nil
		}
		return geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{*el.Lon, *el.Lat})
	case "way":
		coords := path(el.Geometry)
		if len(coords) < 2 {
			return nil
		}
		if closed(coords) && len(coords) >= 4 {
			return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{coords})
		}
		return geom.NewLineString(geom.XY).MustSetCoords(coords)
	case "relation":
		var lines [][]geom.Coord
		for _, m := range el.Members {
			if coords := path(m.Geometry); len(coords) >= 2 {
				lines = append(lines, coords)
			}
		}
		if len(lines) == 0 {
			return nil
		}
		return geom.NewMultiLineString(geom.XY).MustSetCoords(lines)
	}
	return nil
}

func path(points []*LatLon) []geom.Coord {
	coords := make([]geom.Coord, 0, len(points))
	for _, p := range points {
		if p != nil {
			coords = append(coords, geom.Coord{p.Lon, p.Lat})
		}
	}
	return coords
}

func closed(coords []geom.Coord) bool {
	first, last := coords[0], coords[len(coords)-1]
	return first[0] == last[0] && first[1] == last[1]
}

// Clean reads a stored file, which is either a FeatureCollection or a raw
// Overpass response, and returns a FeatureCollection without empty features,
// ordered by id.
func Clean(body []byte) (*geojson.FeatureCollection, error) {
	var shape struct {
		Type     string          `json:"type"`
		Elements json.RawMessage `json:"elements"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	var fc *geojson.FeatureCollection
	switch {
	case shape.Type == "FeatureCollection":
		fc = &geojson.FeatureCollection{}
		if err := json.Unmarshal(body, fc); err != nil {
			return nil, fmt.Errorf("decode feature collection: %w", err)
		}
	case shape.Elements != nil:
		resp, err := ParseResponse(body)
		if err != nil {
			return nil, err
		}
		fc = resp.Features()
	default:
		return nil, fmt.Errorf("unrecognised stored response (type %q)", shape.Type)
	}

	kept := make([]*geojson.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f != nil && f.Geometry != nil {
			kept = append(kept, f)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	return &geojson.FeatureCollection{Features: kept}, nil
}
