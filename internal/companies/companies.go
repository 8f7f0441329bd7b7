package companies

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"imdata/internal/checkpoint"
	"imdata/internal/config"
	"imdata/internal/fetch"
	"imdata/internal/fileutil"
	"imdata/internal/jobrun"
	"imdata/internal/logging"
	"imdata/internal/prompt"
	"imdata/internal/services"
	"imdata/internal/tabular"
	"imdata/internal/textutil"
)

// Dataset is the ledger name of this job.
const Dataset = "companies"

// Getter fetches a URL body.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Sources mirrors sources/sources.json.
type Sources struct {
	Search struct {
		Terms []string `json:"terms"`
	} `json:"search"`
}

// Options configures a Job.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	HTTP   Getter
	Asker  prompt.Asker
	// ForceSearch downloads search pages without asking.
	ForceSearch bool
	// ForceDetails downloads missing detail pages without asking.
	ForceDetails bool
	// Sleep overrides politeness sleeps (tests).
	Sleep fetch.Sleeper
	Now   func() time.Time
}

// Job refreshes the companies dataset.
type Job struct {
	dir          string
	registryURL  string
	pageSize     int
	logger       *slog.Logger
	http         Getter
	asker        prompt.Asker
	forceSearch  bool
	forceDetails bool
	pagePacer    *fetch.Pacer
	detailsPacer *fetch.Pacer
	now          func() time.Time
}

// New builds the job from configuration.
func New(opts Options) *Job {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	pagePacer := fetch.Fixed(time.Duration(cfg.Companies.PageDelaySeconds) * time.Second)
	detailsPacer := fetch.Fixed(time.Duration(cfg.Companies.DetailsDelaySeconds) * time.Second)
	pagePacer.Sleep = opts.Sleep
	detailsPacer.Sleep = opts.Sleep
	return &Job{
		dir:          cfg.CompaniesDir(),
		registryURL:  cfg.Companies.RegistryURL,
		pageSize:     cfg.Companies.PageSize,
		logger:       logging.NewComponentLogger(logger, Dataset),
		http:         opts.HTTP,
		asker:        opts.Asker,
		forceSearch:  opts.ForceSearch,
		forceDetails: opts.ForceDetails,
		pagePacer:    pagePacer,
		detailsPacer: detailsPacer,
		now:          now,
	}
}

// Name implements jobrun.Job.
func (j *Job) Name() string { return Dataset }

// Run downloads (when confirmed) and rebuilds the outputs.
func (j *Job) Run(ctx context.Context) (jobrun.Result, error) {
	j.logger = logging.WithContext(ctx, j.logger)
	var sources Sources
	found, err := checkpoint.Load(filepath.Join(j.dir, "sources", "sources.json"), &sources)
	if err != nil {
		return jobrun.Result{}, services.Wrap(services.ErrConfiguration, Dataset, "load sources", "sources/sources.json is invalid", err)
	}
	if !found || len(sources.Search.Terms) == 0 {
		return jobrun.Result{}, services.Wrap(services.ErrConfiguration, Dataset, "load sources", "no search terms in sources/sources.json", nil)
	}

	if j.asker.Force(j.forceSearch, "Download latest company registry details?") {
		failed, err := j.UpdateSearch(ctx, sources.Search.Terms)
		if err != nil {
			return jobrun.Result{}, err
		}
		if failed > 0 {
			j.logger.Warn("some search terms failed", logging.Int("failed_terms", failed))
		}
	}

	data := j.ReadTerms(sources.Search.Terms)
	lists := Process(data)
	result := jobrun.Result{}
	for _, name := range OutputNames {
		frame := lists[name]
		path := filepath.Join(j.dir, "outputs", name+".csv")
		if err := tabular.WriteCSVFile(path, frame); err != nil {
			return result, services.Wrap(services.ErrExternalTool, Dataset, "write output", name, err)
		}
		result.RowsWritten += frame.Len()
		j.logger.Info("rows written", logging.String("file", name+".csv"), logging.Int("rows", frame.Len()))
	}

	written, err := j.refreshDetails(ctx, lists)
	if err != nil {
		return result, err
	}
	result.RowsWritten += written
	return result, nil
}

// ReadTerms concatenates every term CSV and sorts by company number. Missing
// files are warned about; unreadable files are logged and skipped.
func (j *Job) ReadTerms(terms []string) *tabular.Frame {
	frames := make([]*tabular.Frame, 0, len(terms))
	for _, term := range terms {
		path := j.termPath(term)
		frame, err := tabular.ReadCSVFile(path, tabular.ReadOptions{})
		switch {
		case fileutil.IsNotExist(err):
			logging.WarnWithContext(j.logger, "file missing for term", "companies_term_missing",
				logging.String("term", term),
				logging.String("path", path),
				logging.String(logging.FieldErrorHint, "download the registry search to create it"),
				logging.String(logging.FieldImpact, "term excluded from outputs"))
			continue
		case err != nil:
			logging.ErrorWithContext(j.logger, "term file unreadable", "companies_term_unreadable",
				logging.String("term", term),
				logging.Error(err))
			continue
		}
		j.logger.Debug("read term data", logging.String("term", term), logging.Int("rows", frame.Len()))
		frames = append(frames, frame)
	}
	data := tabular.Concat(frames...)
	if data.Len() == 0 && len(data.Columns()) == 0 {
		data = tabular.New(Columns...)
	}
	return data.SortBy("Number")
}

// OutputNames lists the derived outputs in write order.
var OutputNames = []string{"companies-live", "companies-non-live", "old-names"}

// Process splits the concatenated search results into the derived lists.
func Process(data *tabular.Frame) map[string]*tabular.Frame {
	current := func(r tabular.Row) bool { return r.Get("Name Status") == "Current" }
	live := data.Filter(func(r tabular.Row) bool { return r.Get("Status") == "Live" && current(r) })
	nonLive := data.Filter(func(r tabular.Row) bool { return r.Get("Status") != "Live" && current(r) })
	previous := data.Filter(func(r tabular.Row) bool { return r.Get("Name Status") == "Previous" })
	return map[string]*tabular.Frame{
		"companies-live":     live.Dedupe(tabular.KeepLast, "Number", "Registry Type"),
		"companies-non-live": nonLive.Dedupe(tabular.KeepLast, "Number", "Registry Type"),
		"old-names":          previous.Dedupe(tabular.KeepLast, "Name", "Number", "Registry Type"),
	}
}

func termFileName(term string) string {
	name := textutil.SanitizeFileName(term)
	if name == "" {
		name = "_"
	}
	return name
}
