package osm

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"imdata/internal/checkpoint"
	"imdata/internal/config"
	"imdata/internal/fileutil"
	"imdata/internal/jobrun"
	"imdata/internal/logging"
	"imdata/internal/prompt"
	"imdata/internal/services"
	"imdata/internal/textutil"
)

// Dataset is the ledger name of this job.
const Dataset = "openstreetmap"

const (
	FormatGeoJSON = "geojson"
	FormatJSON    = "json"
)

// Poster sends a form POST and returns the body.
type Poster interface {
	PostForm(ctx context.Context, url string, form map[string]string) ([]byte, error)
}

// Query is one labelled Overpass query.
type Query struct {
	Label          string `json:"label"`
	Query          string `json:"query"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// Sources mirrors sources/sources.json.
type Sources struct {
	Overpass []Query `json:"overpass"`
}

// Options configures a Job.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	HTTP   Poster
	Asker  prompt.Asker
	// ForceDownload runs the queries without asking.
	ForceDownload bool
}

// Job refreshes the OpenStreetMap extracts.
type Job struct {
	dir           string
	overpassURL   string
	timeout       int
	verbosity     string
	logger        *slog.Logger
	http          Poster
	asker         prompt.Asker
	forceDownload bool
}

// New builds the job from configuration.
func New(opts Options) *Job {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg := opts.Config
	return &Job{
		dir:           cfg.OpenStreetMapDir(),
		overpassURL:   cfg.OpenStreetMap.OverpassURL,
		timeout:       cfg.OpenStreetMap.TimeoutSeconds,
		verbosity:     cfg.OpenStreetMap.Verbosity,
		logger:        logging.NewComponentLogger(logger, Dataset),
		http:          opts.HTTP,
		asker:         opts.Asker,
		forceDownload: opts.ForceDownload,
	}
}

// Name implements jobrun.Job.
func (j *Job) Name() string { return Dataset }

// Run queries Overpass when confirmed and rebuilds the outputs from the
// stored responses.
func (j *Job) Run(ctx context.Context) (jobrun.Result, error) {
	j.logger = logging.WithContext(ctx, j.logger)
	var sources Sources
	found, err := checkpoint.Load(filepath.Join(j.dir, "sources", "sources.json"), &sources)
	if err != nil {
		return jobrun.Result{}, services.Wrap(services.ErrConfiguration, Dataset, "load sources", "sources/sources.json is invalid", err)
	}
	if !found || len(sources.Overpass) == 0 {
		return jobrun.Result{}, services.Wrap(services.ErrConfiguration, Dataset, "load sources", "no overpass queries in sources/sources.json", nil)
	}

	result := jobrun.Result{}
	if j.asker.Force(j.forceDownload, "Download updated OpenStreetMap data?") {
		for _, q := range sources.Overpass {
			if err := j.fetch(services.WithRecord(ctx, q.Label), q); err != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				result.Issues++
				logging.ErrorWithContext(j.logger, "overpass query failed", "osm_query_failed",
					logging.String("label", q.Label),
					logging.Error(err))
			}
		}
	}

	for _, q := range sources.Overpass {
		n, err := j.writeOutput(q.Label)
		if err != nil {
			result.Issues++
			continue
		}
		result.RowsWritten += n
	}
	return result, nil
}

func (j *Job) sourcePath(label string) string {
	return filepath.Join(j.dir, "sources", "overpass", textutil.SanitizeFileName(label)+".geojson")
}

func (j *Job) fetch(ctx context.Context, q Query) error {
	format := q.ResponseFormat
	if format == "" {
		format = FormatGeoJSON
	}
	if format != FormatGeoJSON && format != FormatJSON {
		return services.Wrap(services.ErrConfiguration, Dataset, "query", q.Label, errUnsupportedFormat(format))
	}
	j.logger.Info("querying overpass",
		logging.String("label", q.Label),
		logging.String("format", format),
		logging.String("verbosity", j.verbosity))

	body, err := j.http.PostForm(ctx, j.overpassURL, map[string]string{
		"data": BuildQuery(q.Query, j.timeout, j.verbosity),
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, Dataset, "query", q.Label, err)
	}
	resp, err := ParseResponse(body)
	if err != nil {
		return services.Wrap(services.ErrValidation, Dataset, "query", q.Label, err)
	}
	if resp.Remark != "" {
		logging.WarnWithContext(j.logger, "overpass remark", "osm_remark",
			logging.String("label", q.Label),
			logging.String("remark", resp.Remark))
	}

	var out any = resp
	if format == FormatGeoJSON {
		out = resp.Features()
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, Dataset, "encode", q.Label, err)
	}
	if err := fileutil.WriteFileAtomic(j.sourcePath(q.Label), append(data, '\n')); err != nil {
		return services.Wrap(services.ErrExternalTool, Dataset, "save", q.Label, err)
	}
	j.logger.Info("overpass response saved",
		logging.String("label", q.Label),
		logging.Int("elements", len(resp.Elements)))
	return nil
}

func (j *Job) writeOutput(label string) (int, error) {
	path := j.sourcePath(label)
	body, err := os.ReadFile(path)
	if fileutil.IsNotExist(err) {
		logging.WarnWithContext(j.logger, "no stored response", "osm_source_missing",
			logging.String("label", label),
			logging.String(logging.FieldErrorHint, "download the OpenStreetMap data to create it"))
		return 0, err
	}
	if err != nil {
		logging.ErrorWithContext(j.logger, "stored response unreadable", "osm_source_unreadable",
			logging.String("label", label), logging.Error(err))
		return 0, err
	}
	fc, err := Clean(body)
	if err != nil {
		logging.ErrorWithContext(j.logger, "stored response invalid", "osm_source_invalid",
			logging.String("label", label), logging.Error(err))
		return 0, err
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err == nil {
		err = fileutil.WriteFileAtomic(filepath.Join(j.dir, "outputs", filepath.Base(path)), append(data, '\n'))
	}
	if err != nil {
		logging.ErrorWithContext(j.logger, "output not written", "osm_output_failed",
			logging.String("label", label), logging.Error(err))
		return 0, err
	}
	j.logger.Info("features written",
		logging.String("label", label),
		logging.Int("features", len(fc.Features)))
	return len(fc.Features), nil
}

type errUnsupportedFormat string

func (e errUnsupportedFormat) Error() string {
	return "unsupported response_format " + string(e)
}
