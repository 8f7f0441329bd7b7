package footprints

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/twpayne/go-geom/encoding/geojson"

	"imdata/internal/config"
	"imdata/internal/fetch"
	"imdata/internal/testsupport"
)

func featureLine(height int) string {
	return `{"type":"Feature","properties":{"height":` + strings.Repeat("1", height) +
		`,"confidence":-1},"geometry":{"type":"Polygon","coordinates":[[[-4.5,54.1],[-4.4,54.1],[-4.4,54.2],[-4.5,54.1]]]}}`
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

type requestLog struct {
	mu    sync.Mutex
	paths []string
}

func (l *requestLog) add(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, path)
}

func (l *requestLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

func newServer(t *testing.T) (*config.Config, *requestLog) {
	t.Helper()
	requests := &requestLog{}
	var server *httptest.Server
	tileA := gzipped(t, featureLine(1)+"\n"+featureLine(2)+"\n")
	tileB := []byte(featureLine(3) + "\n\n")
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.add(r.URL.Path)
		switch r.URL.Path {
		case "/dataset-links.csv":
			_, _ = w.Write([]byte("Location,QuadKey,Url,Size\n" +
				"IsleofMan,031311,\"" + server.URL + "/a.csv.gz\",1KB\n" +
				"Ireland,031310,\"" + server.URL + "/ie.csv.gz\",9KB\n" +
				"IsleofMan,031313,\"" + server.URL + "/b.csv\",1KB\n"))
		case "/a.csv.gz":
			_, _ = w.Write(tileA)
		case "/b.csv":
			_, _ = w.Write(tileB)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t, testsupport.With(func(c *config.Config) {
		c.Footprints.LinksURL = server.URL + "/dataset-links.csv"
	}))
	return cfg, requests
}

func newJob(cfg *config.Config, asker testsupport.Asker) *Job {
	return New(Options{Config: cfg, HTTP: fetch.New(fetch.Options{}), Asker: asker})
}

func readCollection(t *testing.T, path string) *geojson.FeatureCollection {
	t.Helper()
	fc := &geojson.FeatureCollection{}
	if err := json.Unmarshal([]byte(testsupport.ReadFile(t, path)), fc); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return fc
}

func TestRunDownloadsTilesForLocation(t *testing.T) {
	cfg, requests := newServer(t)

	result, err := newJob(cfg, true).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RowsWritten != 3 || result.Issues != 0 || result.Skipped {
		t.Fatalf("unexpected result %+v", result)
	}
	if strings.Contains(strings.Join(requests.all(), ","), "/ie.csv.gz") {
		t.Fatalf("other locations must not be fetched: %v", requests.all())
	}

	dir := cfg.FootprintsDir()
	if n := len(readCollection(t, filepath.Join(dir, "sources", "031311.geojson")).Features); n != 2 {
		t.Fatalf("expected 2 features in gzipped tile, got %d", n)
	}
	if n := len(readCollection(t, filepath.Join(dir, "sources", "031313.geojson")).Features); n != 1 {
		t.Fatalf("expected 1 feature in plain tile, got %d", n)
	}
	merged := readCollection(t, filepath.Join(dir, "outputs", OutputName))
	if len(merged.Features) != 3 {
		t.Fatalf("expected 3 merged features, got %d", len(merged.Features))
	}
	if got := merged.Features[2].Properties["height"]; got != float64(111) {
		t.Fatalf("merge should follow tile order, last height %v", got)
	}
}

func TestRunDeclinedWithoutTilesIsSkipped(t *testing.T) {
	cfg, requests := newServer(t)

	result, err := newJob(cfg, false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Skipped || len(requests.all()) != 0 {
		t.Fatalf("expected a skipped run without requests, got %+v %v", result, requests.all())
	}
}

func TestDecodeLinesRejectsBadJSON(t *testing.T) {
	if _, err := DecodeLines([]byte(featureLine(1) + "\n{not json}\n")); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected a line 2 error, got %v", err)
	}
}
