package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"imdata/internal/fileutil"
)

// Load decodes the JSON file at path into out. A missing or empty file leaves
// out untouched and reports found=false.
func Load(path string, out any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if fileutil.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// Save writes v as indented JSON to path atomically.
func Save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
