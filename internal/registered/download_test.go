package registered

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imdata/internal/config"
	"imdata/internal/testsupport"
)

type fakeTools struct {
	ocrCalls []string
}

func (f *fakeTools) OCR(_ context.Context, in, out string) error {
	f.ocrCalls = append(f.ocrCalls, filepath.Base(in))
	return os.WriteFile(out, []byte("%PDF readable"), 0o644)
}

func (f *fakeTools) Text(_ context.Context, pdf string) (string, error) {
	return "OCR TEXT from " + filepath.Base(pdf), nil
}

func (f *fakeTools) Images(context.Context, string, string) (int, error) {
	return 0, ErrToolMissing
}

func pdfServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/rb-247.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 247"))
		case "/download/241":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 241"))
		case "/docs/html.pdf":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadWritesMarkdown(t *testing.T) {
	srv := pdfServer(t)
	cfg := testsupport.NewConfig(t, testsupport.With(func(c *config.Config) {
		c.Registered.PDFURLBase = srv.URL
	}))
	testsupport.WriteFile(t, cfg.Registered.IndexCSV, strings.Join([]string{
		"RB_Number,Building_Name,Parish,Status,Date_Registered,Links",
		`247,Old Hall,Braddan,Registered,1 May 1990,/docs/rb-247.pdf`,
		`241/REGBLD1,Chapel,Lonan,Registered,,"/docs/page.html ` + srv.URL + `/download/241?f=x.pdf"`,
		`300,No Link,,,,https://example.invalid/page`,
		`301,Missing,,,,/docs/missing.pdf`,
		"",
	}, "\n"))

	tools := &fakeTools{}
	job := NewDownload(DownloadOptions{Config: cfg, HTTP: NewPDFClient(cfg, nil), Tools: tools})
	result, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RowsWritten != 2 || result.Issues != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	plain := NewLayout(cfg.Registered.PDFDir, cfg.Registered.OutputDir, "247")
	if got := testsupport.ReadFile(t, plain.SourcePDF); got != "%PDF-1.4 247" {
		t.Fatalf("cached pdf = %q", got)
	}
	md := testsupport.ReadFile(t, plain.Markdown)
	for _, want := range []string{
		"# RB 247\n\nOld Hall\n",
		"## Parish\nBraddan\n",
		"## Links\n- " + srv.URL + "/docs/rb-247.pdf\n",
		"## OCR\n```\nOCR TEXT from rb-247-readable.pdf\n```\n",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("expected %q in markdown:\n%s", want, md)
		}
	}

	nested := NewLayout(cfg.Registered.PDFDir, cfg.Registered.OutputDir, "241/REGBLD1")
	if !strings.HasSuffix(nested.Markdown, filepath.Join("rb-241", "REGBLD1", "REGBLD1.md")) {
		t.Fatalf("unexpected nested markdown path %s", nested.Markdown)
	}
	if got := testsupport.ReadFile(t, nested.Markdown); !strings.Contains(got, "OCR TEXT from REGBLD1-readable.pdf") {
		t.Fatalf("unexpected nested markdown:\n%s", got)
	}

	// A second run reuses the cached and readable PDFs.
	if _, err := NewDownload(DownloadOptions{Config: cfg, HTTP: NewPDFClient(cfg, nil), Tools: tools}).Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(tools.ocrCalls) != 2 {
		t.Fatalf("expected OCR once per PDF, got %v", tools.ocrCalls)
	}
}

func TestDownloadRejectsNonPDFResponse(t *testing.T) {
	srv := pdfServer(t)
	cfg := testsupport.NewConfig(t)
	job := NewDownload(DownloadOptions{Config: cfg, HTTP: NewPDFClient(cfg, nil), Tools: &fakeTools{}})

	dest := filepath.Join(t.TempDir(), "rb-1.pdf")
	if _, err := job.downloadPDF(context.Background(), srv.URL+"/download/html", dest); err == nil {
		t.Fatal("expected 404 error")
	}
	n, err := job.downloadPDF(context.Background(), srv.URL+"/docs/html.pdf", dest)
	if err != nil || n == 0 {
		t.Fatalf("a .pdf URL is accepted whatever its content type: n=%d err=%v", n, err)
	}
}

func TestDownloadRequiresLinksColumn(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg.Registered.IndexCSV, "RB_Number\n1\n")
	_, err := NewDownload(DownloadOptions{Config: cfg, Tools: &fakeTools{}}).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Links") {
		t.Fatalf("expected missing Links error, got %v", err)
	}
}
