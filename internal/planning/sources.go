package planning

import (
	"path/filepath"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"imdata/internal/checkpoint"
	"imdata/internal/services"
)

// RecordTypes are processed in this order.
var RecordTypes = []string{"planning-applications", "delegated-decisions", "appeals"}

// YearSource describes one yearly file.
type YearSource struct {
	URL         string            `json:"url"`
	ColumnsDrop []string          `json:"columns_drop,omitempty"`
	HeaderSkip  *int              `json:"header_skip,omitempty"`
	HeaderMap   *HeaderMap        `json:"header_map,omitempty"`
	Skip        bool              `json:"skip,omitempty"`
}

// HeaderMap maps output column to source column. Its key order is the output
// column order.
type HeaderMap = orderedmap.OrderedMap[string, string]

// Defaults is the per record type fallback.
type Defaults struct {
	HeaderMap  *HeaderMap `json:"header_map"`
	HeaderSkip *int       `json:"header_skip,omitempty"`
}

// Columns returns the output columns in order.
func (d Defaults) Columns() []string {
	return outputColumns(d.HeaderMap)
}

func outputColumns(m *HeaderMap) []string {
	if m == nil {
		return nil
	}
	columns := make([]string, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		columns = append(columns, pair.Key)
	}
	return columns
}

// Year is one entry of a record type's ordered year list.
type Year struct {
	Name   string
	Source YearSource
}

// Sources holds the decoded sources.json and defaults.json.
type Sources struct {
	years    map[string][]Year
	defaults map[string]Defaults
}

// LoadSources reads sources/sources.json and sources/defaults.json under dir.
func LoadSources(dir string) (*Sources, error) {
	var raw map[string]*orderedmap.OrderedMap[string, YearSource]
	found, err := checkpoint.Load(filepath.Join(dir, "sources", "sources.json"), &raw)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, Dataset, "load sources", "sources/sources.json is invalid", err)
	}
	if !found {
		return nil, services.Wrap(services.ErrConfiguration, Dataset, "load sources", "sources/sources.json is missing", nil)
	}
	var defaults map[string]Defaults
	found, err = checkpoint.Load(filepath.Join(dir, "sources", "defaults.json"), &defaults)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, Dataset, "load defaults", "sources/defaults.json is invalid", err)
	}
	if !found {
		return nil, services.Wrap(services.ErrConfiguration, Dataset, "load defaults", "sources/defaults.json is missing", nil)
	}

	s := &Sources{years: make(map[string][]Year, len(raw)), defaults: defaults}
	for recordType, years := range raw {
		if years == nil {
			continue
		}
		for pair := years.Oldest(); pair != nil; pair = pair.Next() {
			s.years[recordType] = append(s.years[recordType], Year{Name: pair.Key, Source: pair.Value})
		}
	}
	for _, recordType := range RecordTypes {
		if _, ok := s.years[recordType]; !ok {
			continue
		}
		if d, ok := defaults[recordType]; !ok || len(d.Columns()) == 0 {
			return nil, services.Wrap(services.ErrConfiguration, Dataset, "load defaults", "no header_map for "+recordType, nil)
		}
	}
	return s, nil
}

// Years returns the ordered yearly sources of recordType.
func (s *Sources) Years(recordType string) []Year {
	return s.years[recordType]
}

// Defaults returns the fallback options of recordType.
func (s *Sources) Defaults(recordType string) Defaults {
	return s.defaults[recordType]
}

// headerSkip returns the year override or the default, zero when neither is set.
func headerSkip(d Defaults, y YearSource) int {
	switch {
	case y.HeaderSkip != nil:
		return *y.HeaderSkip
	case d.HeaderSkip != nil:
		return *d.HeaderSkip
	}
	return 0
}

// renameMap returns the source → output column mapping for a year.
func renameMap(d Defaults, y YearSource) map[string]string {
	headerMap := d.HeaderMap
	if y.HeaderMap != nil {
		headerMap = y.HeaderMap
	}
	out := make(map[string]string)
	if headerMap == nil {
		return out
	}
	for pair := headerMap.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Value] = pair.Key
	}
	return out
}
