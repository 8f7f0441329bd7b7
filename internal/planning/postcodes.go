package planning

import (
	"regexp"

	"imdata/internal/tabular"
)

var postcodePattern = regexp.MustCompile(`IM[0-9]9? [0-9][A-Z]{2}`)

// Postcodes collects the first postcode of every Property Address across all
// record types, sorted and deduplicated.
func Postcodes(data map[string]*tabular.Frame) *tabular.Frame {
	out := tabular.New("Postcode")
	for _, recordType := range RecordTypes {
		frame, ok := data[recordType]
		if !ok {
			continue
		}
		for _, address := range frame.Column("Property Address") {
			if code := postcodePattern.FindString(address); code != "" {
				_ = out.Append(code)
			}
		}
	}
	return out.SortBy("Postcode").Dedupe(tabular.KeepFirst)
}
