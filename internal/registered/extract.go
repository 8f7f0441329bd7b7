package registered

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imdata/internal/config"
	"imdata/internal/fileutil"
	"imdata/internal/jobrun"
	"imdata/internal/logging"
	"imdata/internal/services"
	"imdata/internal/services/llm"
	"imdata/internal/tabular"
	"imdata/internal/textutil"
)

// ExtractDataset is the ledger name of `rb extract`.
const ExtractDataset = "rb-extract"

const systemPrompt = "You are a meticulous archivist. Cite only the provided OCR text."

const promptTemplate = `You will be given OCR text from an Isle of Man Registered Building document.

Tasks:
1) CLEAN the OCR text: fix obvious OCR artifacts (l/1/I swaps, hyphenation at line ends, duplicated headers), DO NOT invent facts.
2) EXTRACT and return as JSON with these fields:
   - architect_names (list)
   - builder_names (list)
   - reasons_for_registration (list of short phrases)
   - construction_start_year (int or null)
   - construction_end_year (int or null)
   - construction_start_date_text (string or null)
   - construction_end_date_text (string or null)
   - registration_date_text (string or null)
   - deregistration_date_text (string or null)
3) Put the cleaned text in 'cleaned_text'.

Context (from CSV; may help but use OCR as source of truth):
RB number: %s
Building name: %s
Parish: %s
Status: %s
Links: %s

Return ONLY JSON per the schema.

--- OCR TEXT START ---
%s
--- OCR TEXT END ---
`

// ExtractedColumns is the column order of a new extracted CSV.
var ExtractedColumns = []string{
	"RB_Number", "Building_Name", "Parish", "Status", "Date_Registered", "Deregistration_Date", "Links", "Features",
	"architect_names", "builder_names", "reasons_for_registration",
	"construction_start_year", "construction_end_year",
	"construction_start_date_text", "construction_end_date_text",
	"registration_date_text", "deregistration_date_text",
	"notes", "cleaned_text_source", "md_path", "cleaned_text",
}

// Skip reasons written to the status stream.
const (
	SkipNoRB        = "no_rb"
	SkipAlreadyDone = "already_done"
	SkipNoMarkdown  = "no_md"
	SkipNoOCR       = "no_ocr"
)

// Completer sends one structured completion.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Result, error)
}

// ClientConfig maps the [llm] section onto the client settings.
func ClientConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		TimeoutSeconds:    cfg.LLM.TimeoutSeconds,
		MaxRetries:        cfg.LLM.MaxRetries,
		RetryUnauthorized: cfg.LLM.RetryUnauthorized,
		BackoffBase:       seconds(cfg.LLM.BackoffBaseSeconds),
		BackoffCap:        seconds(cfg.LLM.BackoffCapSeconds),
		DelayMin:          seconds(cfg.LLM.DelayMinSeconds),
		DelayMax:          seconds(cfg.LLM.DelayMaxSeconds),
	}
}

// ExtractOptions configures an ExtractJob.
type ExtractOptions struct {
	Config *config.Config
	Logger *slog.Logger
	// LLM defaults to a client built from the [llm] section.
	LLM Completer
	Now func() time.Time
}

// ExtractJob sends each RB's OCR text to the model and collects the
// structured answers in the extracted CSV.
type ExtractJob struct {
	cfg    config.Registered
	apiKey string
	logger *slog.Logger
	llm    Completer
	now    func() time.Time
	status *statusStream
}

// NewExtract builds the job from configuration.
func NewExtract(opts ExtractOptions) *ExtractJob {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	completer := opts.LLM
	if completer == nil {
		completer = llm.NewClient(ClientConfig(opts.Config), llm.WithLogger(logger))
	}
	logger = logging.NewComponentLogger(logger, ExtractDataset)
	return &ExtractJob{
		cfg:    opts.Config.Registered,
		apiKey: strings.TrimSpace(opts.Config.LLM.APIKey),
		logger: logger,
		llm:    completer,
		now:    now,
		status: &statusStream{path: opts.Config.Registered.StatusJSONL, now: now, logger: logger},
	}
}

// Name implements jobrun.Job.
func (j *ExtractJob) Name() string { return ExtractDataset }

type extractCounts struct {
	succeeded, failed, skipped int
}

// Run extracts every index row not already in the extracted CSV. Failed
// requests are logged and counted as issues; the next row still runs.
func (j *ExtractJob) Run(ctx context.Context) (jobrun.Result, error) {
	j.logger = logging.WithContext(ctx, j.logger)
	j.status.logger = j.logger
	result := jobrun.Result{}
	if j.apiKey == "" {
		return result, services.Wrap(services.ErrConfiguration, ExtractDataset, "start",
			"llm.api_key is not set (or OPENAI_API_KEY)", nil)
	}

	index, err := ReadIndex(j.cfg.IndexCSV, "RB_Number")
	if err != nil {
		return result, err
	}
	previous, err := j.loadPrevious()
	if err != nil {
		return result, err
	}
	done := make(map[string]bool, previous.Len())
	for _, rb := range previous.Column("RB_Number") {
		done[strings.TrimSpace(rb)] = true
	}
	if len(done) > 0 {
		j.logger.Info("resuming", logging.Int("already_done", len(done)), logging.String("path", j.cfg.ExtractedCSV))
	}

	j.logger.Info("starting extraction", logging.Int("rows", index.Len()))
	records := tabular.New(ExtractedColumns...)
	counts := extractCounts{}
	for i := 0; i < index.Len(); i++ {
		row := index.Row(i)
		record, err := j.extractRow(ctx, row, done, &counts)
		if err != nil {
			// Finished rows are saved so the next run resumes after them.
			if werr := j.save(previous, records); werr != nil {
				return result, errors.Join(err, werr)
			}
			result.RowsWritten = counts.succeeded
			result.Issues = counts.failed
			return result, err
		}
		if record != nil {
			records.AppendRecord(record)
		}
	}

	if err := j.save(previous, records); err != nil {
		return result, err
	}
	j.logger.Info("extraction finished",
		logging.Int("succeeded", counts.succeeded),
		logging.Int("failed", counts.failed),
		logging.Int("skipped", counts.skipped))

	result.RowsWritten = counts.succeeded
	result.Issues = counts.failed
	result.Skipped = counts.succeeded == 0 && counts.failed == 0
	return result, nil
}

// save writes previous plus the new records to the extracted CSV. Nothing is
// written when there are no new records.
func (j *ExtractJob) save(previous, records *tabular.Frame) error {
	if records.Len() == 0 {
		return nil
	}
	out := tabular.Concat(previous, records)
	if err := tabular.WriteCSVFile(j.cfg.ExtractedCSV, out); err != nil {
		return services.Wrap(services.ErrExternalTool, ExtractDataset, "write", j.cfg.ExtractedCSV, err)
	}
	j.logger.Info("extracted rows written",
		logging.Int("new", records.Len()),
		logging.Int("total", out.Len()),
		logging.String("path", j.cfg.ExtractedCSV))
	return nil
}

func (j *ExtractJob) loadPrevious() (*tabular.Frame, error) {
	frame, err := tabular.ReadCSVFile(j.cfg.ExtractedCSV, tabular.ReadOptions{})
	if err != nil {
		if fileutil.IsNotExist(err) {
			return tabular.New(ExtractedColumns...), nil
		}
		return nil, services.Wrap(services.ErrValidation, ExtractDataset, "read extracted", j.cfg.ExtractedCSV, err)
	}
	if !frame.Has("RB_Number") {
		return nil, services.Wrap(services.ErrValidation, ExtractDataset, "read extracted",
			j.cfg.ExtractedCSV+" has no RB_Number column", nil)
	}
	return frame, nil
}

// extractRow returns the output record, or nil when the row was skipped or
// failed. Only context cancellation is returned as an error.
func (j *ExtractJob) extractRow(ctx context.Context, row tabular.Row, done map[string]bool, counts *extractCounts) (map[string]string, error) {
	rb := strings.TrimSpace(row.Get("RB_Number"))
	if rb == "" {
		counts.skipped++
		logging.WarnWithContext(j.logger, "skipping row with empty RB_Number", "rb_skip",
			logging.Int("row", row.Index()+1))
		j.status.emit(statusEvent{Event: "skip", Reason: SkipNoRB})
		return nil, nil
	}
	logger := j.logger.With(logging.String("rb", rb))
	if done[rb] {
		counts.skipped++
		logger.Debug("already extracted; skipping")
		j.status.emit(statusEvent{RB: &rb, Event: "skip", Reason: SkipAlreadyDone})
		return nil, nil
	}

	mdPath := MarkdownPath(j.cfg.MDRoot, rb)
	data, err := os.ReadFile(mdPath)
	if err != nil {
		counts.skipped++
		logging.WarnWithContext(logger, "no markdown; skipping", "rb_skip",
			logging.String("path", mdPath),
			logging.String(logging.FieldErrorHint, "run rb download first"))
		j.status.emit(statusEvent{RB: &rb, Event: "skip", Reason: SkipNoMarkdown})
		return nil, nil
	}
	ocr, source := ExtractOCRBlock(strings.ToValidUTF8(string(data), ""))
	if ocr == "" {
		counts.skipped++
		logging.WarnWithContext(logger, "OCR text empty; skipping", "rb_skip")
		j.status.emit(statusEvent{RB: &rb, Event: "skip", Reason: SkipNoOCR})
		return nil, nil
	}
	if runes := []rune(ocr); j.cfg.MaxChars > 0 && len(runes) > j.cfg.MaxChars {
		logger.Info("OCR text trimmed", logging.Int("from", len(runes)), logging.Int("to", j.cfg.MaxChars))
		ocr = string(runes[:j.cfg.MaxChars])
	}

	logger.Info("extraction start", logging.String("source", source))
	j.status.emit(statusEvent{RB: &rb, Event: "start"})

	extraction, err := j.complete(ctx, logger, rb, Prompt(row, rb, ocr))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		counts.failed++
		code := llm.StatusCode(err)
		logging.ErrorWithContext(logger, "extraction failed", "rb_extract_failed",
			logging.Int("status_code", code),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, failureHint(err)))
		j.status.emit(statusEvent{RB: &rb, Event: "failure", Status: code, Error: truncate(err.Error(), 500)})
		return nil, nil
	}

	logger.Info("extraction done",
		logging.String("architects", strings.Join(head(extraction.ArchitectNames, 3), ", ")),
		logging.String("builders", strings.Join(head(extraction.BuilderNames, 3), ", ")),
		logging.String("years", intCell(extraction.ConstructionStartYear)+"–"+intCell(extraction.ConstructionEndYear)),
		logging.Int("reasons", len(extraction.ReasonsForRegistration)),
		logging.Int("cleaned_len", len(extraction.CleanedText)))
	counts.succeeded++
	j.status.emit(statusEvent{RB: &rb, Event: "success"})
	return extractionRecord(row, rb, extraction, source, mdPath), nil
}

// Prompt renders the user message for one RB.
func Prompt(row tabular.Row, rb, ocr string) string {
	return fmt.Sprintf(promptTemplate, rb,
		row.Get("Building_Name"), row.Get("Parish"), row.Get("Status"), row.Get("Links"), ocr)
}

func (j *ExtractJob) complete(ctx context.Context, logger *slog.Logger, rb, prompt string) (Extraction, error) {
	res, err := j.llm.Complete(ctx, llm.Request{
		System: systemPrompt,
		User:   prompt,
		Schema: ExtractionSchema(),
		Label:  rb,
		OnInvalidJSON: func(mode, content string) {
			j.saveDebug(logger, rb, "json-decode", content)
		},
	})
	if err != nil {
		return Extraction{}, err
	}

	var data any
	if err := llm.DecodeLLMJSON(res.Content, &data); err != nil {
		j.saveDebug(logger, rb, "json-decode", res.Content)
		return Extraction{}, err
	}
	if j.cfg.ValidateSchema {
		if verr := ValidateExtraction(data); verr != nil {
			logging.WarnWithContext(logger, "schema validation failed", "rb_schema_violation",
				logging.String("mode", res.Mode),
				logging.Error(verr),
				logging.String(logging.FieldImpact, "response coerced to the schema"))
			j.saveDebug(logger, rb, "schema-violation", res.Content)
		}
	}
	return Coerce(data), nil
}

// saveDebug writes <debug_dir>/<YYYYmmdd-HHMMSS>-rb<rb>-<kind>.txt.
func (j *ExtractJob) saveDebug(logger *slog.Logger, rb, kind, content string) {
	if j.cfg.DebugDir == "" {
		return
	}
	name := fmt.Sprintf("%s-rb%s-%s.txt", j.now().Format("20060102-150405"), textutil.SanitizeFileName(rb), kind)
	path := filepath.Join(j.cfg.DebugDir, name)
	if err := fileutil.WriteFileAtomic(path, []byte(content)); err != nil {
		logger.Warn("debug blob not saved", logging.String("path", path), logging.Error(err))
		return
	}
	logger.Debug("debug blob saved", logging.String("path", path))
}

func extractionRecord(row tabular.Row, rb string, e Extraction, source, mdPath string) map[string]string {
	return map[string]string{
		"RB_Number":                    rb,
		"Building_Name":                row.Get("Building_Name"),
		"Parish":                       row.Get("Parish"),
		"Status":                       row.Get("Status"),
		"Date_Registered":              row.Get("Date_Registered"),
		"Deregistration_Date":          row.Get("Deregistration_Date"),
		"Links":                        row.Get("Links"),
		"Features":                     row.Get("Features"),
		"architect_names":              jsonList(e.ArchitectNames),
		"builder_names":                jsonList(e.BuilderNames),
		"reasons_for_registration":     jsonList(e.ReasonsForRegistration),
		"construction_start_year":      intCell(e.ConstructionStartYear),
		"construction_end_year":        intCell(e.ConstructionEndYear),
		"construction_start_date_text": textCell(e.ConstructionStartDateText),
		"construction_end_date_text":   textCell(e.ConstructionEndDateText),
		"registration_date_text":       textCell(e.RegistrationDateText),
		"deregistration_date_text":     textCell(e.DeregistrationDateText),
		"notes":                        textCell(e.Notes),
		"cleaned_text_source":          source,
		"md_path":                      mdPath,
		"cleaned_text":                 e.CleanedText,
	}
}

func failureHint(err error) string {
	switch code := llm.StatusCode(err); {
	case llm.IsUnauthorized(err):
		return "401 means authentication or permissions (key/project), not a schema issue"
	case code == 400 || code == 422:
		return "400/422 often indicate invalid parameters or a schema/format mismatch"
	case llm.IsInvalidJSON(err):
		return "the model returned invalid JSON; see the debug directory"
	case errors.Is(err, services.ErrTransient):
		return "the API kept failing transiently; retry later"
	}
	return "see the error for details"
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

// statusEvent is one line of the status stream.
type statusEvent struct {
	TS     string  `json:"ts"`
	RB     *string `json:"rb"`
	Event  string  `json:"event"`
	Reason string  `json:"reason,omitempty"`
	Status int     `json:"status,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// statusStream appends JSON lines to the configured status file. Write
// failures are logged; extraction carries on.
type statusStream struct {
	path   string
	now    func() time.Time
	logger *slog.Logger
}

func (s *statusStream) emit(ev statusEvent) {
	if s == nil || s.path == "" {
		return
	}
	ev.TS = s.now().Format("2006-01-02T15:04:05")
	if err := s.write(ev); err != nil {
		logging.WarnWithContext(s.logger, "status event not written", "rb_status_write_failed",
			logging.String("path", s.path),
			logging.String("event", ev.Event),
			logging.Error(err),
			logging.String(logging.FieldImpact, "status file is missing this event"))
	}
}

func (s *statusStream) write(ev statusEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
