package companies

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"imdata/internal/checkpoint"
	"imdata/internal/logging"
	"imdata/internal/services"
	"imdata/internal/tabular"
)

func (j *Job) detailsPath() string {
	return filepath.Join(j.dir, "sources", "details.json")
}

// refreshDetails fetches detail pages for current companies missing from the
// cache (when confirmed) and writes outputs/company-details.csv.
func (j *Job) refreshDetails(ctx context.Context, lists map[string]*tabular.Frame) (int, error) {
	cache := checkpoint.NewDetailsCache(j.detailsPath(), j.logger)

	pending := missingDetails(cache, lists["companies-live"], lists["companies-non-live"])
	if len(pending) > 0 {
		question := fmt.Sprintf("Download company details for %d companies?", len(pending))
		if j.asker.Force(j.forceDetails, question) {
			if err := j.fetchDetails(ctx, cache, pending); err != nil {
				return 0, err
			}
		}
	}

	if cache.Count() == 0 {
		return 0, nil
	}
	frame := DetailsFrame(cache.List())
	if err := tabular.WriteCSVFile(filepath.Join(j.dir, "outputs", "company-details.csv"), frame); err != nil {
		return 0, services.Wrap(services.ErrExternalTool, Dataset, "write output", "company-details", err)
	}
	j.logger.Info("rows written", logging.String("file", "company-details.csv"), logging.Int("rows", frame.Len()))
	return frame.Len(), nil
}

type detailTarget struct {
	number   string
	registry string
	url      string
}

func missingDetails(cache *checkpoint.DetailsCache, frames ...*tabular.Frame) []detailTarget {
	seen := make(map[string]bool)
	var out []detailTarget
	for _, frame := range frames {
		for i := 0; i < frame.Len(); i++ {
			number, registry, link := frame.Get(i, "Number"), frame.Get(i, "Registry Type"), frame.Get(i, "URL")
			key := checkpoint.DetailsKey(registry, number)
			if number == "" || link == "" || seen[key] {
				continue
			}
			seen[key] = true
			if _, ok := cache.Lookup(registry, number); ok {
				continue
			}
			out = append(out, detailTarget{number: number, registry: registry, url: link})
		}
	}
	return out
}

func (j *Job) fetchDetails(ctx context.Context, cache *checkpoint.DetailsCache, pending []detailTarget) error {
	sampler := logging.NewProgressSampler(0.1)
	failed := 0
	for i, target := range pending {
		body, err := j.http.Get(ctx, target.url)
		if err == nil {
			var fields map[string]string
			if fields, err = ParseDetailsPage(body); err == nil {
				err = cache.Store(checkpoint.Details{
					Number:       target.number,
					RegistryType: target.registry,
					URL:          target.url,
					Fetched:      j.now().UTC().Truncate(time.Second),
					Fields:       fields,
				})
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			logging.WarnWithContext(j.logger, "company details failed", "companies_details_failed",
				logging.String("number", target.number),
				logging.String("registry_type", target.registry),
				logging.Error(err),
				logging.String(logging.FieldImpact, "company omitted from company-details.csv until the next run"))
		}
		if sampler.ShouldLog(i+1, len(pending)) {
			j.logger.Info("company details progress",
				logging.Int("done", i+1),
				logging.Int("total", len(pending)),
				logging.Int("failed", failed))
		}
		if i < len(pending)-1 {
			if _, err := j.detailsPacer.Wait(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// DetailsFrame lays the cache out as Number, Registry Type, URL, Fetched and
// then every field label seen, sorted.
func DetailsFrame(entries []checkpoint.Details) *tabular.Frame {
	labels := make(map[string]bool)
	for _, entry := range entries {
		for label := range entry.Fields {
			labels[label] = true
		}
	}
	delete(labels, "Number")
	delete(labels, "Registry Type")
	delete(labels, "URL")
	delete(labels, "Fetched")
	sorted := make([]string, 0, len(labels))
	for label := range labels {
		sorted = append(sorted, label)
	}
	sort.Strings(sorted)

	frame := tabular.New(append([]string{"Number", "Registry Type", "URL", "Fetched"}, sorted...)...)
	for _, entry := range entries {
		record := map[string]string{
			"Number":        entry.Number,
			"Registry Type": entry.RegistryType,
			"URL":           entry.URL,
			"Fetched":       entry.Fetched.Format(time.RFC3339),
		}
		for label, value := range entry.Fields {
			if _, reserved := record[label]; !reserved {
				record[label] = value
			}
		}
		frame.AppendRecord(record)
	}
	return frame
}
