package footprints

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/twpayne/go-geom/encoding/geojson"

	"imdata/internal/config"
	"imdata/internal/fileutil"
	"imdata/internal/jobrun"
	"imdata/internal/logging"
	"imdata/internal/prompt"
	"imdata/internal/services"
	"imdata/internal/tabular"
	"imdata/internal/textutil"
)

// Dataset is the ledger name of this job.
const Dataset = "global-ml-building-footprints"

// OutputName is the merged output file.
const OutputName = "building-footprints.geojson"

// Getter fetches a URL body.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Options configures a Job.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	HTTP   Getter
	Asker  prompt.Asker
	// ForceDownload refreshes the tiles without asking.
	ForceDownload bool
}

// Job refreshes the building footprints dataset.
type Job struct {
	dir           string
	linksURL      string
	location      string
	logger        *slog.Logger
	http          Getter
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
		dir:           opts.Config.FootprintsDir(),
		linksURL:      opts.Config.Footprints.LinksURL,
		location:      opts.Config.Footprints.Location,
		logger:        logging.NewComponentLogger(logger, Dataset),
		http:          opts.HTTP,
		asker:         opts.Asker,
		forceDownload: opts.ForceDownload,
	}
}

// Name implements jobrun.Job.
func (j *Job) Name() string { return Dataset }

// Run downloads the tiles when confirmed and merges every stored tile.
func (j *Job) Run(ctx context.Context) (jobrun.Result, error) {
	j.logger = logging.WithContext(ctx, j.logger)
	result := jobrun.Result{}
	if j.asker.Force(j.forceDownload, "Download updated Global ML Building Footprints data?") {
		failed, err := j.download(ctx)
		if err != nil {
			return result, err
		}
		result.Issues += failed
	}

	tiles, merged, err := j.merge()
	if err != nil {
		return result, err
	}
	result.RowsWritten = merged
	result.Skipped = tiles == 0 && result.Issues == 0
	return result, nil
}

// Tile is one dataset-links entry.
type Tile struct {
	QuadKey string
	URL     string
}

// Tiles returns the entries of the dataset-links CSV for location.
func Tiles(links *tabular.Frame, location string) []Tile {
	var tiles []Tile
	for i := 0; i < links.Len(); i++ {
		if links.Get(i, "Location") != location {
			continue
		}
		tiles = append(tiles, Tile{QuadKey: links.Get(i, "QuadKey"), URL: links.Get(i, "Url")})
	}
	return tiles
}

func (j *Job) download(ctx context.Context) (int, error) {
	body, err := j.http.Get(ctx, j.linksURL)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, Dataset, "download links", j.linksURL, err)
	}
	links, err := tabular.ReadCSV(bytes.NewReader(body), tabular.ReadOptions{})
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, Dataset, "parse links", j.linksURL, err)
	}
	tiles := Tiles(links, j.location)
	if len(tiles) == 0 {
		logging.WarnWithContext(j.logger, "no tiles for location", "footprints_no_tiles",
			logging.String("location", j.location),
			logging.String(logging.FieldErrorHint, "check footprints.location against the Location column"))
		return 0, nil
	}
	j.logger.Info("tiles listed", logging.String("location", j.location), logging.Int("tiles", len(tiles)))

	failed := 0
	for _, tile := range tiles {
		n, err := j.fetchTile(ctx, tile)
		if err != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			failed++
			logging.ErrorWithContext(j.logger, "tile failed", "footprints_tile_failed",
				logging.String("quadkey", tile.QuadKey),
				logging.Error(err))
			continue
		}
		j.logger.Info("tile saved", logging.String("quadkey", tile.QuadKey), logging.Int("features", n))
	}
	return failed, nil
}

func (j *Job) fetchTile(ctx context.Context, tile Tile) (int, error) {
	body, err := j.http.Get(ctx, tile.URL)
	if err != nil {
		return 0, err
	}
	features, err := DecodeLines(body)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, Dataset, "decode tile", tile.QuadKey, err)
	}
	name := textutil.SanitizeFileName(tile.QuadKey) + ".geojson"
	if err := writeCollection(filepath.Join(j.dir, "sources", name), features); err != nil {
		return 0, err
	}
	return len(features), nil
}

// merge concatenates every stored tile, in file name order, into the output.
// It returns the number of tiles and features merged.
func (j *Job) merge() (int, int, error) {
	paths, err := filepath.Glob(filepath.Join(j.dir, "sources", "*.geojson"))
	if err != nil {
		return 0, 0, err
	}
	if len(paths) == 0 {
		logging.WarnWithContext(j.logger, "no tiles stored", "footprints_no_sources",
			logging.String(logging.FieldErrorHint, "download the footprints to create them"))
		return 0, 0, nil
	}
	sort.Strings(paths)

	features := []*geojson.Feature{}
	for _, path := range paths {
		body, err := os.ReadFile(path)
		if err != nil {
			return 0, 0, services.Wrap(services.ErrExternalTool, Dataset, "read tile", path, err)
		}
		fc := &geojson.FeatureCollection{}
		if err := json.Unmarshal(body, fc); err != nil {
			return 0, 0, services.Wrap(services.ErrValidation, Dataset, "read tile", filepath.Base(path), err)
		}
		features = append(features, fc.Features...)
	}
	if err := writeCollection(filepath.Join(j.dir, "outputs", OutputName), features); err != nil {
		return 0, 0, err
	}
	j.logger.Info("footprints merged",
		logging.Int("tiles", len(paths)),
		logging.Int("features", len(features)))
	return len(paths), len(features), nil
}

func writeCollection(path string, features []*geojson.Feature) error {
	data, err := json.Marshal(&geojson.FeatureCollection{Features: features})
	if err != nil {
		return services.Wrap(services.ErrValidation, Dataset, "encode", filepath.Base(path), err)
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n')); err != nil {
		return services.Wrap(services.ErrExternalTool, Dataset, "write", filepath.Base(path), err)
	}
	return nil
}
