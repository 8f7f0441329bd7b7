package registered

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var yearPattern = regexp.MustCompile(`\b(1[0-9]{3}|20[0-9]{2}|2100)\b`)

// Extraction is the structured result for one registered building.
type Extraction struct {
	CleanedText               string   `json:"cleaned_text"`
	ArchitectNames            []string `json:"architect_names"`
	BuilderNames              []string `json:"builder_names"`
	ReasonsForRegistration    []string `json:"reasons_for_registration"`
	ConstructionStartYear     *int     `json:"construction_start_year"`
	ConstructionEndYear       *int     `json:"construction_end_year"`
	ConstructionStartDateText *string  `json:"construction_start_date_text"`
	ConstructionEndDateText   *string  `json:"construction_end_date_text"`
	RegistrationDateText      *string  `json:"registration_date_text"`
	DeregistrationDateText    *string  `json:"deregistration_date_text"`
	Notes                     *string  `json:"notes"`
}

// Coerce maps whatever the model returned onto an Extraction. Every field is
// always set: lists default to empty, years and date texts to null, and
// cleaned_text and notes to "". Unknown keys are ignored.
func Coerce(data any) Extraction {
	out := Extraction{
		ArchitectNames:         []string{},
		BuilderNames:           []string{},
		ReasonsForRegistration: []string{},
		Notes:                  new(string),
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return out
	}
	if v, ok := obj["cleaned_text"].(string); ok {
		out.CleanedText = v
	}
	out.ArchitectNames = coerceList(obj["architect_names"])
	out.BuilderNames = coerceList(obj["builder_names"])
	out.ReasonsForRegistration = coerceList(obj["reasons_for_registration"])
	out.ConstructionStartYear = coerceYear(obj["construction_start_year"])
	out.ConstructionEndYear = coerceYear(obj["construction_end_year"])
	out.ConstructionStartDateText = coerceText(obj["construction_start_date_text"])
	out.ConstructionEndDateText = coerceText(obj["construction_end_date_text"])
	out.RegistrationDateText = coerceText(obj["registration_date_text"])
	out.DeregistrationDateText = coerceText(obj["deregistration_date_text"])
	if v, present := obj["notes"]; present {
		out.Notes = coerceText(v)
	}
	return out
}

func coerceList(v any) []string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return []string{}
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s := stringify(item)
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func coerceYear(v any) *int {
	switch t := v.(type) {
	case string:
		m := yearPattern.FindString(t)
		if m == "" {
			return nil
		}
		n, _ := strconv.Atoi(m)
		return &n
	case float64:
		n := int(t)
		return &n
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil
		}
		n := int(f)
		return &n
	}
	return nil
}

func coerceText(v any) *string {
	if v == nil {
		return nil
	}
	s := stringify(v)
	return &s
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "True"
		}
		return "False"
	case nil:
		return "None"
	}
	data, err := marshalJSON(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return data
}

// marshalJSON encodes v without escaping HTML or non-ASCII characters.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// jsonList renders a list cell as a JSON array.
func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	s, err := marshalJSON(items)
	if err != nil {
		return "[]"
	}
	return s
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func textCell(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
