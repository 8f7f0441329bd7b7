package footprints

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/twpayne/go-geom/encoding/geojson"
)

const maxLineBytes = 64 << 20

// DecodeLines parses newline-delimited GeoJSON features. Gzip input is
// detected from its magic bytes. Blank lines are ignored.
func DecodeLines(body []byte) ([]*geojson.Feature, error) {
	var r io.Reader = bytes.NewReader(body)
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), maxLineBytes)
	features := []*geojson.Feature{}
	for line := 1; scanner.Scan(); line++ {
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		f := &geojson.Feature{}
		if err := json.Unmarshal(text, f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		features = append(features, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	return features, nil
}
