package landtx

import (
	"path/filepath"

	"imdata/internal/fileutil"
	"imdata/internal/logging"
	"imdata/internal/services"
	"imdata/internal/tabular"
)

// CorrectedFields are overwritten by whole-row corrections.
var CorrectedFields = []string{
	"SubUnit_Name",
	"House_Number",
	"House_Name",
	"Street_Name",
	"Locality",
	"Town",
	"Postcode",
	"Parish",
	"Market_Value",
	"Consideration",
	"Acquisition_Date",
	"CompletionDate",
}

func (j *Job) applyCorrections(data *tabular.Frame) error {
	data.Rename(map[string]string{"Parish_": "Parish"})

	dir := filepath.Join(j.dir, "sources", "corrections")
	towns, err := j.readCorrections(filepath.Join(dir, "towns.csv"))
	if err != nil {
		return err
	}
	rows, err := j.readCorrections(filepath.Join(dir, "rows.csv"))
	if err != nil {
		return err
	}
	fixedTowns := CorrectTowns(data, towns)
	fixedRows := CorrectRows(data, rows)
	j.logger.Info("corrections applied",
		logging.Int("town_corrections", fixedTowns),
		logging.Int("row_corrections", fixedRows))
	return nil
}

func (j *Job) readCorrections(path string) (*tabular.Frame, error) {
	frame, err := tabular.ReadCSVFile(path, tabular.ReadOptions{})
	if fileutil.IsNotExist(err) {
		logging.WarnWithContext(j.logger, "corrections file missing", "landtx_corrections_missing",
			logging.String("path", path),
			logging.String(logging.FieldImpact, "no corrections applied from this file"))
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, Dataset, "read corrections", filepath.Base(path), err)
	}
	return frame, nil
}

// CorrectTowns replaces Town values that exactly match a From entry with its
// To value. It returns the number of cells changed.
func CorrectTowns(data, corrections *tabular.Frame) int {
	if corrections.Len() == 0 {
		return 0
	}
	replace := make(map[string]string, corrections.Len())
	for i := 0; i < corrections.Len(); i++ {
		from := corrections.Get(i, "From")
		if _, ok := replace[from]; !ok {
			replace[from] = corrections.Get(i, "To")
		}
	}
	changed := 0
	data.Apply("Town", func(v string) string {
		if to, ok := replace[v]; ok && to != v {
			changed++
			return to
		}
		return v
	})
	return changed
}

// CorrectRows overwrites CorrectedFields of every row whose Hash matches a
// correction row. Later corrections for the same hash win. It returns the
// number of rows changed.
func CorrectRows(data, corrections *tabular.Frame) int {
	if corrections.Len() == 0 {
		return 0
	}
	byHash := make(map[string]tabular.Row, corrections.Len())
	for i := 0; i < corrections.Len(); i++ {
		byHash[corrections.Get(i, "Hash")] = corrections.Row(i)
	}
	changed := 0
	for i := 0; i < data.Len(); i++ {
		fix, ok := byHash[data.Get(i, "Hash")]
		if !ok {
			continue
		}
		for _, field := range CorrectedFields {
			data.Set(i, field, fix.Get(field))
		}
		changed++
	}
	return changed
}
