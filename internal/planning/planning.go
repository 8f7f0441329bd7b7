package planning

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"imdata/internal/config"
	"imdata/internal/fileutil"
	"imdata/internal/jobrun"
	"imdata/internal/logging"
	"imdata/internal/prompt"
	"imdata/internal/services"
	"imdata/internal/tabular"
)

// Dataset is the ledger name of this job.
const Dataset = "planning-applications"

// Downloader saves a URL to a local file.
type Downloader interface {
	Download(ctx context.Context, url, dest string) (int64, error)
}

// Options configures a Job.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	HTTP   Downloader
	Asker  prompt.Asker
	// ForceDownload refreshes every yearly file without asking.
	ForceDownload bool
}

// Job refreshes the planning datasets.
type Job struct {
	dir           string
	encoding      string
	logger        *slog.Logger
	http          Downloader
	asker         prompt.Asker
	forceDownload bool
}

// New builds the job from configuration.
func New(opts Options) *Job {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Job{
		dir:           opts.Config.PlanningDir(),
		encoding:      opts.Config.Planning.SourceEncoding,
		logger:        logging.NewComponentLogger(logger, Dataset),
		http:          opts.HTTP,
		asker:         opts.Asker,
		forceDownload: opts.ForceDownload,
	}
}

// Name implements jobrun.Job.
func (j *Job) Name() string { return Dataset }

// Run downloads confirmed record types, then rebuilds every output.
func (j *Job) Run(ctx context.Context) (jobrun.Result, error) {
	j.logger = logging.WithContext(ctx, j.logger)
	sources, err := LoadSources(j.dir)
	if err != nil {
		return jobrun.Result{}, err
	}

	result := jobrun.Result{}
	data := make(map[string]*tabular.Frame, len(RecordTypes))
	for _, recordType := range RecordTypes {
		if j.asker.Force(j.forceDownload, "Download updated "+recordType+" files?") {
			failed, err := j.download(ctx, recordType, sources)
			if err != nil {
				return result, err
			}
			result.Issues += failed
		}
		frame, issues := j.read(recordType, sources)
		result.Issues += issues
		data[recordType] = frame
	}

	postcodes := Postcodes(data)
	path := filepath.Join(j.dir, "outputs", "addressing", "postcodes.csv")
	if err := tabular.WriteCSVFile(path, postcodes); err != nil {
		return result, services.Wrap(services.ErrExternalTool, Dataset, "write addressing", "postcodes.csv", err)
	}
	j.logger.Info("postcodes written", logging.Int("postcodes", postcodes.Len()))

	for _, recordType := range RecordTypes {
		frame := data[recordType]
		path := filepath.Join(j.dir, "outputs", recordType+".csv")
		if err := tabular.WriteCSVFile(path, frame); err != nil {
			return result, services.Wrap(services.ErrExternalTool, Dataset, "write output", recordType, err)
		}
		result.RowsWritten += frame.Len()
		j.logger.Info("rows written",
			logging.String("record_type", recordType),
			logging.Int("rows", frame.Len()))
	}
	return result, nil
}

func (j *Job) yearPath(year, recordType string) string {
	return filepath.Join(j.dir, "sources", year, recordType+".csv")
}

// download fetches every year of recordType. A failing year is logged and
// counted; cancellation stops the loop.
func (j *Job) download(ctx context.Context, recordType string, sources *Sources) (int, error) {
	defaults := sources.Defaults(recordType)
	failed := 0
	for _, year := range sources.Years(recordType) {
		if year.Source.URL == "" {
			continue
		}
		path := j.yearPath(year.Name, recordType)
		if _, err := j.http.Download(ctx, year.Source.URL, path); err != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			failed++
			logging.ErrorWithContext(j.logger, "download failed", "planning_download_failed",
				logging.String("record_type", recordType),
				logging.String("year", year.Name),
				logging.String("url", year.Source.URL),
				logging.Error(err))
			continue
		}
		j.logger.Info("downloaded",
			logging.String("record_type", recordType),
			logging.String("year", year.Name))

		if len(year.Source.ColumnsDrop) == 0 {
			continue
		}
		if err := j.dropColumns(path, headerSkip(defaults, year.Source), year.Source.ColumnsDrop); err != nil {
			failed++
			logging.ErrorWithContext(j.logger, "column drop failed", "planning_drop_failed",
				logging.String("record_type", recordType),
				logging.String("year", year.Name),
				logging.Error(err))
			continue
		}
		j.logger.Info("columns dropped",
			logging.String("year", year.Name),
			logging.Any("columns", year.Source.ColumnsDrop))
	}
	return failed, nil
}

// read loads and normalises every yearly file of recordType. It returns the
// combined frame and the number of files that were missing or unreadable.
func (j *Job) read(recordType string, sources *Sources) (*tabular.Frame, int) {
	defaults := sources.Defaults(recordType)
	columns := append(defaults.Columns(), "Year")
	frames := []*tabular.Frame{tabular.New(columns...)}
	issues := 0
	for _, year := range sources.Years(recordType) {
		logger := j.logger.With(logging.String("record_type", recordType), logging.String("year", year.Name))
		path := j.yearPath(year.Name, recordType)
		if !fileutil.Exists(path) {
			issues++
			logging.WarnWithContext(logger, "file missing", "planning_file_missing",
				logging.String("path", path),
				logging.String(logging.FieldImpact, "year excluded from outputs"))
			continue
		}
		if year.Source.Skip {
			logging.WarnWithContext(logger, "skipping year", "planning_year_skipped",
				logging.String(logging.FieldImpact, "year excluded from outputs"))
			continue
		}
		frame, err := j.readYear(path, defaults, year)
		if err != nil {
			issues++
			logging.ErrorWithContext(logger, "file unreadable", "planning_file_unreadable", logging.Error(err))
			continue
		}
		aligned, missing := frame.Reindex(defaults.Columns()...)
		if len(missing) > 0 {
			logging.WarnWithContext(logger, "columns missing", "planning_columns_missing",
				logging.Any("columns", missing),
				logging.String(logging.FieldImpact, "columns left empty"))
		}
		name := year.Name
		aligned.Insert(-1, "Year", func(tabular.Row) string { return name })
		logger.Debug("read year", logging.Int("rows", aligned.Len()))
		frames = append(frames, aligned)
	}
	return tabular.Concat(frames...), issues
}

func (j *Job) readYear(path string, defaults Defaults, year Year) (*tabular.Frame, error) {
	frame, err := j.readFile(path, headerSkip(defaults, year.Source))
	if err != nil {
		return nil, err
	}
	return frame.Rename(renameMap(defaults, year.Source)), nil
}

// decode returns the file content as UTF-8. Files already rewritten after a
// column drop are UTF-8; anything else uses the configured source encoding.
func (j *Job) decode(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if utf8.Valid(raw) {
		return raw, nil
	}
	dec, err := tabular.Decoder(j.encoding)
	if err != nil || dec == nil {
		return raw, err
	}
	return dec.Bytes(raw)
}

func (j *Job) readFile(path string, skip int) (*tabular.Frame, error) {
	content, err := j.decode(path)
	if err != nil {
		return nil, err
	}
	return tabular.ReadCSV(bytes.NewReader(content), tabular.ReadOptions{SkipLines: skip})
}

// dropColumns removes columns from a downloaded file, keeping its preamble
// lines, and rewrites it as UTF-8.
func (j *Job) dropColumns(path string, skip int, columns []string) error {
	content, err := j.decode(path)
	if err != nil {
		return err
	}
	preamble := content[:preambleEnd(content, skip)]
	frame, err := tabular.ReadCSV(bytes.NewReader(content[len(preamble):]), tabular.ReadOptions{})
	if err != nil {
		return err
	}
	frame.Drop(columns...)
	return fileutil.WriteAtomic(path, func(w io.Writer) error {
		if _, err := w.Write(preamble); err != nil {
			return err
		}
		return tabular.WriteCSV(w, frame)
	})
}

// preambleEnd returns the offset just past the first n lines of content.
func preambleEnd(content []byte, n int) int {
	end := 0
	for ; n > 0; n-- {
		i := bytes.IndexByte(content[end:], '\n')
		if i < 0 {
			return len(content)
		}
		end += i + 1
	}
	return end
}
