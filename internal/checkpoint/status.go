package checkpoint

import (
	"strings"
	"time"
)

// StatusTimeLayout is the timestamp format stored in PageMark.Updated.
const StatusTimeLayout = "2006-01-02 15:04:05"

// Status mirrors sources/status.json for the companies search.
type Status struct {
	Search SearchStatus `json:"search"`
}

// SearchStatus holds per-term progress.
type SearchStatus struct {
	Terms map[string]TermStatus `json:"terms"`
}

// TermStatus holds the latest page written for one search term.
type TermStatus struct {
	Latest *PageMark `json:"latest,omitempty"`
}

// PageMark records the last page fetched for a term. Rows counts every row
// seen on that page, including rows skipped because an earlier run stored them.
type PageMark struct {
	Updated string            `json:"updated"`
	Page    int               `json:"page"`
	Rows    int               `json:"rows"`
	LastRow map[string]string `json:"last_row,omitempty"`
}

// LoadStatus reads the status file. A missing file yields an empty status.
func LoadStatus(path string) (*Status, error) {
	status := &Status{}
	if _, err := Load(path, status); err != nil {
		return nil, err
	}
	if status.Search.Terms == nil {
		status.Search.Terms = make(map[string]TermStatus)
	}
	return status, nil
}

// Latest returns the latest page mark for term.
func (s *Status) Latest(term string) (PageMark, bool) {
	if s == nil {
		return PageMark{}, false
	}
	ts, ok := s.Search.Terms[strings.TrimSpace(term)]
	if !ok || ts.Latest == nil {
		return PageMark{}, false
	}
	return *ts.Latest, true
}

// Record stores mark as the latest page for term, stamping Updated with now
// when it is empty.
func (s *Status) Record(term string, mark PageMark, now time.Time) {
	if s.Search.Terms == nil {
		s.Search.Terms = make(map[string]TermStatus)
	}
	if mark.Updated == "" {
		mark.Updated = now.Format(StatusTimeLayout)
	}
	s.Search.Terms[strings.TrimSpace(term)] = TermStatus{Latest: &mark}
}

// Save writes the status file atomically.
func (s *Status) Save(path string) error {
	return Save(path, s)
}
