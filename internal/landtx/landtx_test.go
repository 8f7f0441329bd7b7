package landtx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"imdata/internal/config"
	"imdata/internal/fetch"
	"imdata/internal/tabular"
	"imdata/internal/testsupport"
)

const exportCSV = `Parish_,SubUnit_Name,House_Number,House_Name,Street_Name,Locality,Town,Postcode,Market_Value,Consideration,Acquisition_Date,CompletionDate
Braddan,,1,,Main Road,,Douglas,IM1 1AA,100,100,2020-01-01,2020-02-01
 Onchan ,,2,,Plot 5 Hillside,Governors Hill,Dougals,IM3 2BB,200,200,2020-01-02,2020-02-02
Braddan,,3,,Main Road,Ballabeg 2,Isle of Man,im1,300,300,2020-01-03,2020-02-03
`

type exportServer struct {
	url      string
	requests atomic.Int32
}

func newExportServer(t *testing.T) *exportServer {
	t.Helper()
	s := &exportServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.requests.Add(1)
		_, _ = w.Write([]byte(exportCSV))
	}))
	t.Cleanup(server.Close)
	s.url = server.URL + "/land-transactions.csv"
	return s
}

func newJob(cfg *config.Config, asker testsupport.Asker, force bool) *Job {
	return New(Options{
		Config:        cfg,
		HTTP:          fetch.New(fetch.Options{}),
		Asker:         asker,
		ForceDownload: force,
	})
}

func readOutput(t *testing.T, cfg *config.Config, name string) *tabular.Frame {
	t.Helper()
	frame, err := tabular.ReadCSVFile(filepath.Join(cfg.LandTransactionsDir(), "outputs", name), tabular.ReadOptions{})
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return frame
}

func TestRunDownloadsMissingSourceAndValidates(t *testing.T) {
	server := newExportServer(t)
	cfg := testsupport.NewConfig(t)
	dir := cfg.LandTransactionsDir()
	testsupport.WriteFile(t, filepath.Join(dir, "sources", "sources.json"), `{"url":"`+server.url+`"}`)
	testsupport.WriteFile(t, filepath.Join(dir, "sources", "corrections", "towns.csv"), "From,To\nDougals,Douglas\n")

	result, err := newJob(cfg, false, false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if server.requests.Load() != 1 {
		t.Fatalf("expected one download without prompting, got %d", server.requests.Load())
	}
	if result.RowsWritten != 3 || result.Issues != 4 {
		t.Fatalf("unexpected result %+v", result)
	}

	data := readOutput(t, cfg, "land-transactions.csv")
	if cols := data.Columns(); cols[0] != "Hash" || cols[1] != "Parish" {
		t.Fatalf("unexpected leading columns %v", cols[:2])
	}
	if got := data.Column("Town"); !cmp.Equal(got, []string{"Douglas", "Douglas", "Isle of Man"}) {
		t.Fatalf("towns not corrected: %v", got)
	}
	if got := data.Get(1, "Parish"); got != "Onchan" {
		t.Fatalf("parish not trimmed: %q", got)
	}

	lists := map[string][]string{
		"parishes.csv":   readOutput(t, cfg, "addressing/parishes.csv").Column("Name"),
		"towns.csv":      readOutput(t, cfg, "addressing/towns.csv").Column("Name"),
		"localities.csv": readOutput(t, cfg, "addressing/localities.csv").Column("Name"),
		"postcodes.csv":  readOutput(t, cfg, "addressing/postcodes.csv").Column("Postcode"),
	}
	want := map[string][]string{
		"parishes.csv":   {"Braddan", "Onchan"},
		"towns.csv":      {"Douglas"},
		"localities.csv": {"Governors Hill"},
		"postcodes.csv":  {"IM1 1AA", "IM3 2BB"},
	}
	if diff := cmp.Diff(want, lists); diff != "" {
		t.Fatalf("addressing lists mismatch (-want +got):\n%s", diff)
	}

	streets := readOutput(t, cfg, "addressing/streets.csv")
	if diff := cmp.Diff([]string{"Name", "Town"}, streets.Columns()); diff != "" {
		t.Fatalf("streets columns (-want +got):\n%s", diff)
	}
	if got := streets.Column("Town"); !cmp.Equal(got, []string{"Douglas", "Isle of Man"}) {
		t.Fatalf("unexpected street towns %v", got)
	}

	issues := readOutput(t, cfg, "issues.csv")
	wantIssues := []string{
		"Isle of Man is an invalid town name",
		"Ballabeg 2 is an invalid locality name",
		"Plot 5 Hillside is an invalid street name",
		"im1 is an invalid postcode",
	}
	if diff := cmp.Diff(wantIssues, issues.Column("Description")); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
	if issues.Get(0, "Hash") != data.Get(2, "Hash") {
		t.Fatalf("issue hash does not reference the offending row")
	}

	issueRows := readOutput(t, cfg, "issue-rows.csv")
	cols := issueRows.Columns()
	if cols[len(cols)-1] != "Issue" || issueRows.Len() != 4 {
		t.Fatalf("unexpected issue rows: columns %v, rows %d", cols, issueRows.Len())
	}
	if got := issueRows.Get(2, "Street_Name"); got != "Plot 5 Hillside" {
		t.Fatalf("issue row does not repeat the source row: %q", got)
	}

	addresses := readOutput(t, cfg, "addressing/addresses.csv")
	if diff := cmp.Diff(AddressFields, addresses.Columns()); diff != "" {
		t.Fatalf("address columns (-want +got):\n%s", diff)
	}
	if addresses.Len() != 3 {
		t.Fatalf("expected 3 addresses, got %d", addresses.Len())
	}
}

func TestRunPromptsWhenSourceExists(t *testing.T) {
	for _, tc := range []struct {
		name     string
		asker    testsupport.Asker
		force    bool
		requests int32
	}{
		{name: "declined", requests: 0},
		{name: "confirmed", asker: true, requests: 1},
		{name: "forced", force: true, requests: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			server := newExportServer(t)
			cfg := testsupport.NewConfig(t)
			dir := cfg.LandTransactionsDir()
			testsupport.WriteFile(t, filepath.Join(dir, "sources", "sources.json"), `{"url":"`+server.url+`"}`)
			testsupport.WriteFile(t, filepath.Join(dir, "sources", sourceFile), exportCSV)

			if _, err := newJob(cfg, tc.asker, tc.force).Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := server.requests.Load(); got != tc.requests {
				t.Fatalf("expected %d downloads, got %d", tc.requests, got)
			}
		})
	}
}

func TestRunWithoutSourcesFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := newJob(cfg, true, false).Run(context.Background()); err == nil {
		t.Fatal("expected an error without sources.json or a local copy")
	}
}

func TestAddHashUsesOriginalValues(t *testing.T) {
	data := tabular.New("A", "B")
	_ = data.Append("1", "2")
	AddHash(data)
	if diff := cmp.Diff([]string{"Hash", "A", "B"}, data.Columns()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	fresh := tabular.New("A", "B")
	_ = fresh.Append("1", "2")
	if data.Get(0, "Hash") != fresh.RowHash(0) {
		t.Fatal("hash must be computed before the Hash column is added")
	}
}

func TestCorrectRowsOverwritesAddressFields(t *testing.T) {
	data := tabular.New(append([]string{"Hash"}, CorrectedFields...)...)
	_ = data.Append("aaa", "", "1", "", "Mian Road")
	_ = data.Append("bbb", "", "2", "", "Main Road")

	fixes := tabular.New(append([]string{"Hash"}, CorrectedFields...)...)
	_ = fixes.Append("aaa", "Flat 1", "1", "Rose Cottage", "Main Road", "", "Douglas", "IM1 1AA", "Braddan")

	if n := CorrectRows(data, fixes); n != 1 {
		t.Fatalf("expected one corrected row, got %d", n)
	}
	if got := data.Values(0); got[1] != "Flat 1" || got[4] != "Main Road" || got[8] != "Braddan" || got[9] != "" {
		t.Fatalf("row not overwritten: %v", got)
	}
	if got := data.Get(1, "Street_Name"); got != "Main Road" {
		t.Fatalf("unmatched row changed: %q", got)
	}
}

func TestValidateSkipsBlankAddressValues(t *testing.T) {
	data := tabular.New("Hash", "Parish", "Street_Name", "Locality", "Town", "Postcode")
	_ = data.Append("a", " ", "", "", "", "")
	_ = data.Append("b", "Braddan", "Main Road", "", "Douglas", "IM1 1AA")

	r := Validate(data)
	if r.Issues.Len() != 0 {
		t.Fatalf("blank values must not raise issues: %v", r.Issues.Column("Description"))
	}
	if diff := cmp.Diff([]string{"Braddan"}, r.Parishes.Column("Name")); diff != "" {
		t.Fatalf("parishes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Douglas"}, r.Towns.Column("Name")); diff != "" {
		t.Fatalf("towns (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Main Road"}, r.Streets.Column("Name")); diff != "" {
		t.Fatalf("streets (-want +got):\n%s", diff)
	}
}

func TestInvalidStreetRules(t *testing.T) {
	for _, tc := range []struct {
		street  string
		invalid bool
	}{
		{"Main Road", false},
		{"Land Adjacent To School", true},
		{"Landscape Drive", false},
		{"Rear Of 12 Strand Street", true},
		{"Off Peel Road", true},
		{"The Parade (East)", true},
		{"", true},
	} {
		if got := invalidStreet.MatchString(tc.street); got != tc.invalid {
			t.Errorf("%q: invalid=%v, want %v", tc.street, got, tc.invalid)
		}
	}
	for _, code := range []string{"IM1 1AA", "IM99 1AB"} {
		if !validPostcode.MatchString(code) {
			t.Errorf("%q should be a valid postcode", code)
		}
	}
	for _, code := range []string{"IM1 1aa", "im1 1AA", "IM12 1AA", "IM1  1AA", strings.Repeat("IM1 1AA", 2)} {
		if validPostcode.MatchString(code) {
			t.Errorf("%q should be an invalid postcode", code)
		}
	}
}
