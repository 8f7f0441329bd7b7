package companies

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"

	"imdata/internal/checkpoint"
	"imdata/internal/logging"
	"imdata/internal/services"
	"imdata/internal/tabular"
)

const searchPage = "companysearch.iom?SortBy=IncorporationDate&SortDirection=0&search=Search&searchtext="

// SearchURL builds the registry search URL for term and page.
func SearchURL(registryURL, term string, page int) string {
	return registryURL + searchPage + url.QueryEscape(term) + "&page=" + strconv.Itoa(page)
}

// ResumePoint returns where a term's search continues. After a full page the
// next page starts fresh; after a partial page the same page is fetched again
// and the rows already stored are skipped.
func ResumePoint(mark checkpoint.PageMark, found bool, pageSize int) (page, skip int) {
	if !found || mark.Page < 1 {
		return 1, 0
	}
	if mark.Rows >= pageSize {
		return mark.Page + 1, 0
	}
	return mark.Page, max(mark.Rows, 0)
}

func (j *Job) termPath(term string) string {
	return filepath.Join(j.dir, "sources", "terms", termFileName(term)+".csv")
}

func (j *Job) statusPath() string {
	return filepath.Join(j.dir, "sources", "status.json")
}

// UpdateSearch pages through the registry for every term, appending new rows
// and saving the status file after every page. A failing term is logged and
// the next term still runs; the number of failed terms is returned.
func (j *Job) UpdateSearch(ctx context.Context, terms []string) (int, error) {
	status, err := checkpoint.LoadStatus(j.statusPath())
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, Dataset, "load status", "sources/status.json is unreadable", err)
	}
	failed := 0
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		if err := j.searchTerm(ctx, status, term); err != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			failed++
			hint := "check the registry URL and the search page layout"
			if services.Retryable(err) {
				hint = "rerun update; the term resumes from its last page"
			}
			logging.WarnWithContext(j.logger, "search term failed", "companies_term_failed",
				logging.String("term", term),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, hint),
				logging.String(logging.FieldImpact, "results for this term are incomplete"))
		}
	}
	return failed, nil
}

func (j *Job) searchTerm(ctx context.Context, status *checkpoint.Status, term string) error {
	mark, found := status.Latest(term)
	page, skip := ResumePoint(mark, found, j.pageSize)
	logger := j.logger.With(logging.String("term", term))
	if skip > 0 || page > 1 {
		logger.Info("resuming search",
			logging.Args(append(logging.DecisionAttrs("companies_resume", "resume", "status file has progress"),
				logging.Int("page", page), logging.Int("skip", skip))...)...)
	}

	for {
		link := SearchURL(j.registryURL, term, page)
		logger.Info("downloading results", logging.Int("page", page), logging.String("url", link))
		body, err := j.http.Get(ctx, link)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		frame, err := ParseSearchPage(body, j.registryURL, j.now().Format("2006-01-02"))
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		seen := frame.Len()
		if seen == 0 {
			logger.Info("no more data", logging.Int("page", page))
			return nil
		}

		fresh := frame
		if skip > 0 {
			logger.Info("skipping rows already retrieved", logging.Int("skip", skip))
			fresh = frame.Filter(func(r tabular.Row) bool { return r.Index() >= skip })
			skip = 0
		}
		if fresh.Len() > 0 {
			if err := tabular.AppendCSVFile(j.termPath(term), fresh); err != nil {
				return services.Wrap(services.ErrExternalTool, Dataset, "append term csv", term, err)
			}
		}

		status.Record(term, checkpoint.PageMark{
			Page:    page,
			Rows:    seen,
			LastRow: frame.Row(seen - 1).Record(),
		}, j.now())
		if err := status.Save(j.statusPath()); err != nil {
			return services.Wrap(services.ErrExternalTool, Dataset, "save status", term, err)
		}
		logger.Info("page stored", logging.Int("page", page), logging.Int("rows", seen), logging.Int("new_rows", fresh.Len()))

		if seen < j.pageSize {
			logger.Info("end of list", logging.Int("page", page))
			return nil
		}
		page++
		if _, err := j.pagePacer.Wait(ctx); err != nil {
			return err
		}
	}
}
