package landtx

import (
	"context"
	"log/slog"
	"path/filepath"

	"imdata/internal/checkpoint"
	"imdata/internal/config"
	"imdata/internal/fileutil"
	"imdata/internal/jobrun"
	"imdata/internal/logging"
	"imdata/internal/prompt"
	"imdata/internal/services"
	"imdata/internal/tabular"
)

// Dataset is the ledger name of this job.
const Dataset = "land-transactions"

const sourceFile = "land-transactions.csv"

// Downloader saves a URL to a local file.
type Downloader interface {
	Download(ctx context.Context, url, dest string) (int64, error)
}

// Sources mirrors sources/sources.json.
type Sources struct {
	URL string `json:"url"`
}

// Options configures a Job.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	HTTP   Downloader
	Asker  prompt.Asker
	// ForceDownload refreshes the source file without asking.
	ForceDownload bool
}

// Job refreshes the land transactions dataset.
type Job struct {
	dir           string
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
		dir:           opts.Config.LandTransactionsDir(),
		logger:        logging.NewComponentLogger(logger, Dataset),
		http:          opts.HTTP,
		asker:         opts.Asker,
		forceDownload: opts.ForceDownload,
	}
}

// Name implements jobrun.Job.
func (j *Job) Name() string { return Dataset }

// Run downloads the export when needed and rebuilds every output.
func (j *Job) Run(ctx context.Context) (jobrun.Result, error) {
	j.logger = logging.WithContext(ctx, j.logger)
	data, err := j.load(ctx)
	if err != nil {
		return jobrun.Result{}, err
	}
	j.logger.Info("rows loaded", logging.Int("rows", data.Len()))

	data = AddHash(data)
	if err := j.applyCorrections(data); err != nil {
		return jobrun.Result{}, err
	}

	report := Validate(data)
	if err := j.writeAddressing(report); err != nil {
		return jobrun.Result{}, err
	}

	outputs := filepath.Join(j.dir, "outputs")
	if err := tabular.WriteCSVFile(filepath.Join(outputs, "land-transactions.csv"), data); err != nil {
		return jobrun.Result{}, services.Wrap(services.ErrExternalTool, Dataset, "write output", "land-transactions.csv", err)
	}
	j.logger.Info("rows written", logging.String("file", "land-transactions.csv"), logging.Int("rows", data.Len()))

	if err := tabular.WriteCSVFile(filepath.Join(outputs, "issues.csv"), report.Issues); err != nil {
		return jobrun.Result{}, services.Wrap(services.ErrExternalTool, Dataset, "write output", "issues.csv", err)
	}
	if err := tabular.WriteCSVFile(filepath.Join(outputs, "issue-rows.csv"), report.IssueRows); err != nil {
		return jobrun.Result{}, services.Wrap(services.ErrExternalTool, Dataset, "write output", "issue-rows.csv", err)
	}
	j.logger.Info("issues written", logging.Int("issues", report.Issues.Len()))

	return jobrun.Result{RowsWritten: data.Len(), Issues: report.Issues.Len()}, nil
}

func (j *Job) load(ctx context.Context) (*tabular.Frame, error) {
	path := filepath.Join(j.dir, "sources", sourceFile)
	if !fileutil.Exists(path) || j.asker.Force(j.forceDownload, "Download updated land transactions file?") {
		if err := j.download(ctx, path); err != nil {
			return nil, err
		}
	}
	data, err := tabular.ReadCSVFile(path, tabular.ReadOptions{})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, Dataset, "read source", sourceFile, err)
	}
	return data, nil
}

func (j *Job) download(ctx context.Context, dest string) error {
	var sources Sources
	found, err := checkpoint.Load(filepath.Join(j.dir, "sources", "sources.json"), &sources)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, Dataset, "load sources", "sources/sources.json is invalid", err)
	}
	if !found || sources.URL == "" {
		return services.Wrap(services.ErrConfiguration, Dataset, "load sources", "no url in sources/sources.json", nil)
	}
	size, err := j.http.Download(ctx, sources.URL, dest)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, Dataset, "download", sources.URL, err)
	}
	j.logger.Info("land transactions retrieved",
		logging.String("url", sources.URL),
		logging.Int64("bytes", size))
	return nil
}

// AddHash prepends a Hash column holding the MD5 digest of each row's
// original values.
func AddHash(data *tabular.Frame) *tabular.Frame {
	hashes := make([]string, data.Len())
	for i := range hashes {
		hashes[i] = data.RowHash(i)
	}
	data.Insert(0, "Hash", func(r tabular.Row) string { return hashes[r.Index()] })
	return data
}
