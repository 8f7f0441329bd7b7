package landtx

import (
	"path/filepath"
	"regexp"
	"strings"

	"imdata/internal/logging"
	"imdata/internal/services"
	"imdata/internal/tabular"
)

var (
	invalidStreet = regexp.MustCompile(`^$|[0-9]|[(]|Abutting|Adjacent |Adjoining |At |Allotment ` +
		`|^Land |^Lands |^Lane |^Off |Of Land |Opposite ` +
		`|^Parcel |Part Of |Pathway |Patio Area |Plot |Private |Rear Of `)
	invalidLocality = regexp.MustCompile(`[0-9]|&| And |Abutting|Adjacent To|Adjoining| Road| Drive| Street|^$`)
	invalidTown     = regexp.MustCompile(` Road|[0-9]|Isle [oO]f Man|Part Of| And |^Nr `)
	validPostcode   = regexp.MustCompile(`^IM[0-9]9? [0-9][A-Z]{2}$`)
)

// AddressFields make up one address in addresses.csv.
var AddressFields = []string{
	"SubUnit_Name", "House_Number", "House_Name", "Street_Name",
	"Locality", "Town", "Postcode", "Parish",
}

var addressSort = []string{"Street_Name", "Town", "House_Number", "House_Name", "SubUnit_Name"}

// Report holds the addressing lists and the rule violations found in one run.
type Report struct {
	Parishes   *tabular.Frame
	Towns      *tabular.Frame
	Localities *tabular.Frame
	Streets    *tabular.Frame
	Postcodes  *tabular.Frame
	Addresses  *tabular.Frame
	// Issues has one Hash, Description row per violation.
	Issues *tabular.Frame
	// IssueRows repeats the offending row with an Issue column.
	IssueRows *tabular.Frame
}

// Validate trims the address columns of data in place, builds the addressing
// lists and records every violation.
func Validate(data *tabular.Frame) *Report {
	r := &Report{
		Issues:    tabular.New("Hash", "Description"),
		IssueRows: tabular.New(append(data.Columns(), "Issue")...),
	}
	for _, column := range []string{"Parish", "Town", "Locality", "Street_Name", "Postcode"} {
		data.Apply(column, strings.TrimSpace)
	}

	r.Parishes = nameList(data, "Parish", func(string) bool { return true })

	r.Towns = nameList(data, "Town", func(v string) bool { return !invalidTown.MatchString(v) })
	r.flag(data, "Town", func(v string) bool { return invalidTown.MatchString(v) }, "is an invalid town name")

	r.Localities = nameList(data, "Locality", func(v string) bool { return !invalidLocality.MatchString(v) })
	r.flag(data, "Locality", func(v string) bool { return v != "" && invalidLocality.MatchString(v) }, "is an invalid locality name")

	streets := data.Filter(func(row tabular.Row) bool { return !invalidStreet.MatchString(row.Get("Street_Name")) })
	streets, _ = streets.Reindex("Street_Name", "Town")
	r.Streets = streets.SortBy("Street_Name", "Town").Dedupe(tabular.KeepFirst).Rename(map[string]string{"Street_Name": "Name"})
	r.flag(data, "Street_Name", func(v string) bool { return v != "" && invalidStreet.MatchString(v) }, "is an invalid street name")

	postcodes := data.Filter(func(row tabular.Row) bool { return validPostcode.MatchString(row.Get("Postcode")) })
	postcodes, _ = postcodes.Reindex("Postcode")
	r.Postcodes = postcodes.SortBy("Postcode").Dedupe(tabular.KeepFirst)
	r.flag(data, "Postcode", func(v string) bool { return v != "" && !validPostcode.MatchString(v) }, "is an invalid postcode")

	addresses, _ := data.Reindex(AddressFields...)
	r.Addresses = addresses.SortBy(addressSort...).Dedupe(tabular.KeepFirst)
	return r
}

// nameList returns the sorted distinct non-empty values of column that pass
// keep, under a single Name column.
func nameList(data *tabular.Frame, column string, keep func(string) bool) *tabular.Frame {
	rows := data.Filter(func(row tabular.Row) bool {
		v := row.Get(column)
		return v != "" && keep(v)
	})
	names, _ := rows.Reindex(column)
	return names.SortBy(column).Dedupe(tabular.KeepFirst).Rename(map[string]string{column: "Name"})
}

func (r *Report) flag(data *tabular.Frame, column string, invalid func(string) bool, suffix string) {
	for i := 0; i < data.Len(); i++ {
		value := data.Get(i, column)
		if !invalid(value) {
			continue
		}
		issue := value + " " + suffix
		_ = r.Issues.Append(data.Get(i, "Hash"), issue)
		_ = r.IssueRows.Append(append(data.Values(i), issue)...)
	}
}

var addressingFiles = []struct {
	name  string
	frame func(*Report) *tabular.Frame
}{
	{"parishes.csv", func(r *Report) *tabular.Frame { return r.Parishes }},
	{"towns.csv", func(r *Report) *tabular.Frame { return r.Towns }},
	{"localities.csv", func(r *Report) *tabular.Frame { return r.Localities }},
	{"streets.csv", func(r *Report) *tabular.Frame { return r.Streets }},
	{"postcodes.csv", func(r *Report) *tabular.Frame { return r.Postcodes }},
	{"addresses.csv", func(r *Report) *tabular.Frame { return r.Addresses }},
}

func (j *Job) writeAddressing(r *Report) error {
	dir := filepath.Join(j.dir, "outputs", "addressing")
	for _, file := range addressingFiles {
		frame := file.frame(r)
		if err := tabular.WriteCSVFile(filepath.Join(dir, file.name), frame); err != nil {
			return services.Wrap(services.ErrExternalTool, Dataset, "write addressing", file.name, err)
		}
		j.logger.Info("addressing written",
			logging.String("file", file.name),
			logging.Int("rows", frame.Len()))
	}
	return nil
}
