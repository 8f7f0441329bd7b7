package registered

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"imdata/internal/config"
	"imdata/internal/fileutil"
	"imdata/internal/jobrun"
	"imdata/internal/logging"
	"imdata/internal/services"
	"imdata/internal/tabular"
)

// MergeDataset is the ledger name of `rb merge`.
const MergeDataset = "rb-merge"

// Review flags joined into Needs_Review.
const (
	ReviewNoNames      = "no_names"
	ReviewNoReasons    = "no_reasons"
	ReviewNoDates      = "no_dates"
	ReviewOCRNotFenced = "ocr_not_fenced"
)

// MergedColumns are added to (or overwritten in) the index for every RB
// with an extraction.
var MergedColumns = []string{
	"architect_names", "builder_names", "reasons_for_registration",
	"construction_start_year", "construction_end_year",
	"construction_start_date_text", "construction_end_date_text",
	"registration_date_text", "deregistration_date_text",
	"notes_extraction", "cleaned_text_source", "md_path", "Needs_Review",
}

// MergeOptions configures a MergeJob.
type MergeOptions struct {
	Config *config.Config
	Logger *slog.Logger
	// UpdateMarkdown rewrites the per-RB Markdown files.
	UpdateMarkdown bool
	// Backup keeps a one-time <file>.md.bak before the first rewrite.
	Backup bool
	// AddCleaned writes a "## Cleaned OCR" section.
	AddCleaned bool
	// FillDates fills empty date sections from the extracted date texts.
	FillDates bool
	// Limit stops after this many index rows when positive.
	Limit int
}

// MergeJob folds extracted fields into the index CSV.
type MergeJob struct {
	cfg    config.Registered
	opts   MergeOptions
	logger *slog.Logger
}

// NewMerge builds the job from configuration.
func NewMerge(opts MergeOptions) *MergeJob {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &MergeJob{
		cfg:    opts.Config.Registered,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, MergeDataset),
	}
}

// Name implements jobrun.Job.
func (j *MergeJob) Name() string { return MergeDataset }

// Run writes the merged CSV and, when enabled, updates the Markdown files.
func (j *MergeJob) Run(ctx context.Context) (jobrun.Result, error) {
	j.logger = logging.WithContext(ctx, j.logger)
	result := jobrun.Result{}

	index, err := ReadIndex(j.cfg.IndexCSV, "RB_Number")
	if err != nil {
		return result, err
	}
	extracted, err := ReadIndex(j.cfg.ExtractedCSV, "RB_Number")
	if err != nil {
		return result, err
	}
	byRB := make(map[string]tabular.Row, extracted.Len())
	for i := 0; i < extracted.Len(); i++ {
		row := extracted.Row(i)
		if rb := strings.TrimSpace(row.Get("RB_Number")); rb != "" {
			byRB[rb] = row
		}
	}
	j.logger.Info("merging extractions",
		logging.Int("extracted", extracted.Len()),
		logging.Int("index", index.Len()))

	columns := index.Columns()
	for _, name := range MergedColumns {
		if !index.Has(name) {
			columns = append(columns, name)
		}
	}
	merged, _ := index.Reindex(columns...)

	rows := merged.Len()
	if j.opts.Limit > 0 && j.opts.Limit < rows {
		rows = j.opts.Limit
	}
	touched, missing := 0, 0
	for i := 0; i < rows; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rb := strings.TrimSpace(merged.Get(i, "RB_Number"))
		ext, ok := byRB[rb]
		if !ok {
			continue
		}
		mergeRow(merged, i, ext)
		if !j.opts.UpdateMarkdown {
			continue
		}
		updated, err := j.updateMarkdown(rb, merged.Get(i, "Status"), ext)
		if err != nil {
			return result, err
		}
		if updated {
			touched++
		} else {
			missing++
		}
	}
	if rows < merged.Len() {
		j.logger.Info("limit reached", logging.Int("limit", j.opts.Limit))
		merged = merged.Filter(func(r tabular.Row) bool { return r.Index() < rows })
	}

	if merged.Len() == 0 {
		logging.WarnWithContext(j.logger, "no rows to write", "rb_merge_empty")
	} else if err := tabular.WriteCSVFile(j.cfg.MergedCSV, merged); err != nil {
		return result, services.Wrap(services.ErrExternalTool, MergeDataset, "write", j.cfg.MergedCSV, err)
	}
	j.logger.Info("merged csv written", logging.String("path", j.cfg.MergedCSV), logging.Int("rows", merged.Len()))
	if j.opts.UpdateMarkdown {
		j.logger.Info("markdown updated", logging.Int("touched", touched), logging.Int("missing_md", missing))
	}

	result.RowsWritten = merged.Len()
	result.Issues = missing
	return result, nil
}

func mergeRow(merged *tabular.Frame, i int, ext tabular.Row) {
	merged.Set(i, "architect_names", jsonList(AsList(ext.Get("architect_names"))))
	merged.Set(i, "builder_names", jsonList(AsList(ext.Get("builder_names"))))
	merged.Set(i, "reasons_for_registration", jsonList(AsList(ext.Get("reasons_for_registration"))))
	for _, name := range []string{
		"construction_start_year", "construction_end_year",
		"construction_start_date_text", "construction_end_date_text",
		"registration_date_text", "deregistration_date_text",
		"cleaned_text_source", "md_path",
	} {
		merged.Set(i, name, ext.Get(name))
	}
	merged.Set(i, "notes_extraction", ext.Get("notes"))
	merged.Set(i, "Needs_Review", strings.Join(ReviewFlags(ext), "; "))
}

// ReviewFlags lists what a reviewer should look at for one extraction.
func ReviewFlags(ext tabular.Row) []string {
	var flags []string
	if len(AsList(ext.Get("architect_names"))) == 0 && len(AsList(ext.Get("builder_names"))) == 0 {
		flags = append(flags, ReviewNoNames)
	}
	if len(AsList(ext.Get("reasons_for_registration"))) == 0 {
		flags = append(flags, ReviewNoReasons)
	}
	if ext.Get("construction_start_year") == "" && ext.Get("construction_end_year") == "" &&
		ext.Get("construction_start_date_text") == "" && ext.Get("construction_end_date_text") == "" {
		flags = append(flags, ReviewNoDates)
	}
	if ext.Get("cleaned_text_source") != SourceFencedBlock {
		flags = append(flags, ReviewOCRNotFenced)
	}
	return flags
}

var listSeparators = regexp.MustCompile(`[;,]+`)

// AsList reads a list cell: a JSON array, or text split on ";" and ",".
func AsList(cell string) []string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return []string{}
	}
	var items []any
	if err := json.Unmarshal([]byte(cell), &items); err == nil {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, stringify(item))
		}
		return out
	}
	var out []string
	for _, part := range listSeparators.Split(cell, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// updateMarkdown reports false when the Markdown file does not exist.
func (j *MergeJob) updateMarkdown(rb, status string, ext tabular.Row) (bool, error) {
	path := ext.Get("md_path")
	if path == "" {
		path = MarkdownPath(j.cfg.MDRoot, rb)
	}
	logger := j.logger.With(logging.String("rb", rb))
	data, err := os.ReadFile(path)
	if err != nil {
		if fileutil.IsNotExist(err) {
			logger.Debug("markdown missing", logging.String("path", path))
			return false, nil
		}
		return false, services.Wrap(services.ErrExternalTool, MergeDataset, "read markdown", path, err)
	}
	text := strings.ToValidUTF8(string(data), "")

	if j.opts.FillDates {
		text = FillDateSection(text, "Registration date", ext.Get("registration_date_text"))
		dereg := ext.Get("deregistration_date_text")
		if strings.EqualFold(strings.TrimSpace(status), "de-registered") || dereg != "" {
			text = FillDateSection(text, "De-registration date", dereg)
		}
	}
	text = SetExtractedDetails(text, Details{
		Architects: AsList(ext.Get("architect_names")),
		Builders:   AsList(ext.Get("builder_names")),
		StartYear:  ext.Get("construction_start_year"),
		EndYear:    ext.Get("construction_end_year"),
		StartText:  ext.Get("construction_start_date_text"),
		EndText:    ext.Get("construction_end_date_text"),
		Reasons:    AsList(ext.Get("reasons_for_registration")),
	})
	if j.opts.AddCleaned {
		text = SetCleanedOCR(text, ext.Get("cleaned_text"))
	}

	if j.opts.Backup {
		backup := path + ".bak"
		if !fileutil.Exists(backup) {
			if err := fileutil.CopyFile(path, backup); err != nil {
				return false, services.Wrap(services.ErrExternalTool, MergeDataset, "backup markdown", path, err)
			}
		}
	}
	if err := fileutil.WriteFileAtomic(path, []byte(text)); err != nil {
		return false, services.Wrap(services.ErrExternalTool, MergeDataset, "write markdown", path, err)
	}
	logger.Debug("markdown updated", logging.String("path", path))
	return true, nil
}
