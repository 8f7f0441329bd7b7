package registered

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"imdata/internal/services/llm"
)

// ExtractionFields are the keys the model must return.
var ExtractionFields = []string{
	"cleaned_text",
	"architect_names",
	"builder_names",
	"reasons_for_registration",
	"construction_start_year",
	"construction_end_year",
	"construction_start_date_text",
	"construction_end_date_text",
	"registration_date_text",
	"deregistration_date_text",
	"notes",
}

// ExtractionSchema is the strict structured-output schema sent with every
// json_schema request.
func ExtractionSchema() *llm.Schema {
	stringList := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	year := map[string]any{"type": []any{"integer", "null"}, "minimum": 1000, "maximum": 2100}
	optionalText := map[string]any{"type": []any{"string", "null"}}
	required := make([]any, len(ExtractionFields))
	for i, f := range ExtractionFields {
		required[i] = f
	}
	return &llm.Schema{
		Name:   "rb_extraction",
		Strict: true,
		Schema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"cleaned_text":                 map[string]any{"type": "string"},
				"architect_names":              stringList,
				"builder_names":                stringList,
				"reasons_for_registration":     stringList,
				"construction_start_year":      year,
				"construction_end_year":        year,
				"construction_start_date_text": optionalText,
				"construction_end_date_text":   optionalText,
				"registration_date_text":       optionalText,
				"deregistration_date_text":     optionalText,
				"notes":                        map[string]any{"type": "string"},
			},
			"required": required,
		},
	}
}

var (
	compiledOnce   sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// ValidateExtraction checks a decoded model response against
// ExtractionSchema.
func ValidateExtraction(data any) error {
	compiledOnce.Do(func() {
		raw, err := json.Marshal(ExtractionSchema().Schema)
		if err != nil {
			compileErr = err
			return
		}
		compiledSchema, compileErr = jsonschema.CompileString("rb_extraction.json", string(raw))
	})
	if compileErr != nil {
		return compileErr
	}
	return compiledSchema.Validate(data)
}
