package registered

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"imdata/internal/config"
	"imdata/internal/fetch"
	"imdata/internal/fileutil"
	"imdata/internal/jobrun"
	"imdata/internal/logging"
	"imdata/internal/services"
	"imdata/internal/tabular"
	"imdata/internal/textutil"
)

// DownloadDataset is the ledger name of `rb download`.
const DownloadDataset = "rb-download"

// Requester performs one HTTP request.
type Requester interface {
	Do(ctx context.Context, method, url string, form map[string]string) (*fetch.Response, error)
}

// PDFTools is the subset of Tools the download job uses.
type PDFTools interface {
	OCR(ctx context.Context, in, out string) error
	Text(ctx context.Context, pdf string) (string, error)
	Images(ctx context.Context, pdf, dir string) (int, error)
}

// NewPDFClient builds the HTTP client used for register PDFs, which has its
// own user agent, timeout and retry count.
func NewPDFClient(cfg *config.Config, logger *slog.Logger) *fetch.Client {
	return fetch.New(fetch.Options{
		UserAgent: cfg.Registered.UserAgent,
		Timeout:   time.Duration(cfg.Registered.TimeoutSeconds) * time.Second,
		Retries:   cfg.Registered.Retries,
		RetryWait: time.Duration(cfg.HTTP.RetryWaitSeconds) * time.Second,
		Logger:    logger,
	})
}

// DownloadOptions configures a DownloadJob.
type DownloadOptions struct {
	Config *config.Config
	Logger *slog.Logger
	HTTP   Requester
	Tools  PDFTools
	// Pacer spaces out PDF downloads. Defaults to the configured delay range.
	Pacer *fetch.Pacer
}

// DownloadJob fetches register PDFs and renders one Markdown file per row.
type DownloadJob struct {
	cfg    config.Registered
	logger *slog.Logger
	http   Requester
	tools  PDFTools
	pacer  *fetch.Pacer
}

// NewDownload builds the job from configuration.
func NewDownload(opts DownloadOptions) *DownloadJob {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg := opts.Config.Registered
	pacer := opts.Pacer
	if pacer == nil {
		pacer = fetch.Between(seconds(cfg.DelayMinSeconds), seconds(cfg.DelayMaxSeconds))
	}
	tools := opts.Tools
	if tools == nil {
		tools = NewTools()
	}
	return &DownloadJob{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, DownloadDataset),
		http:   opts.HTTP,
		tools:  tools,
		pacer:  pacer,
	}
}

// Name implements jobrun.Job.
func (j *DownloadJob) Name() string { return DownloadDataset }

// Run processes every index row. A failing row is logged and counted as an
// issue; the remaining rows still run.
func (j *DownloadJob) Run(ctx context.Context) (jobrun.Result, error) {
	j.logger = logging.WithContext(ctx, j.logger)
	result := jobrun.Result{}

	index, err := ReadIndex(j.cfg.IndexCSV, "RB_Number", "Links")
	if err != nil {
		return result, err
	}
	for _, dir := range []string{j.cfg.PDFDir, j.cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return result, services.Wrap(services.ErrConfiguration, DownloadDataset, "create dir", dir, err)
		}
	}

	j.logger.Info("processing index", logging.Int("rows", index.Len()))
	for i := 0; i < index.Len(); i++ {
		row := index.Row(i)
		wrote, err := j.processRow(ctx, row)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Issues++
			logging.ErrorWithContext(j.logger, "row failed", "rb_download_failed",
				logging.String("rb", strings.TrimSpace(row.Get("RB_Number"))),
				logging.Error(err))
			continue
		}
		if wrote {
			result.RowsWritten++
		} else {
			result.Issues++
		}
	}
	j.logger.Info("download finished",
		logging.Int("markdown", result.RowsWritten),
		logging.Int("issues", result.Issues))
	return result, nil
}

// processRow reports whether a Markdown file was written.
func (j *DownloadJob) processRow(ctx context.Context, row tabular.Row) (bool, error) {
	ref := textutil.SanitizeRef(row.Get("RB_Number"))
	if ref == "" {
		logging.WarnWithContext(j.logger, "missing RB_Number; skipping", "rb_no_ref",
			logging.Int("row", row.Index()+1))
		return false, nil
	}
	logger := j.logger.With(logging.String("rb", ref))
	layout := NewLayout(j.cfg.PDFDir, j.cfg.OutputDir, ref)
	if err := os.MkdirAll(layout.Dir, 0o755); err != nil {
		return false, err
	}

	if !fileutil.Exists(layout.SourcePDF) {
		if url := PickPDF(row.Get("Links"), j.cfg.PDFURLBase); url != "" {
			logger.Info("downloading pdf", logging.String("url", url))
			n, err := j.downloadPDF(ctx, url, layout.SourcePDF)
			if err != nil {
				if ctx.Err() != nil {
					return false, ctx.Err()
				}
				logging.WarnWithContext(logger, "pdf download failed", "rb_pdf_failed",
					logging.String("url", url),
					logging.Error(err))
			} else {
				logger.Info("pdf saved", logging.String("size", humanize.Bytes(uint64(n))))
			}
			if _, err := j.pacer.Wait(ctx); err != nil {
				return false, err
			}
		} else {
			logging.WarnWithContext(logger, "no PDF link", "rb_no_pdf_link",
				logging.String(logging.FieldErrorHint, "the Links column has no .pdf URL"))
		}
	}
	if !fileutil.Exists(layout.SourcePDF) {
		logging.WarnWithContext(logger, "missing source PDF; skipping", "rb_no_pdf",
			logging.String("path", layout.SourcePDF))
		return false, nil
	}

	used := layout.SourcePDF
	if fileutil.Exists(layout.ReadablePDF) {
		used = layout.ReadablePDF
	} else if err := j.tools.OCR(ctx, layout.SourcePDF, layout.ReadablePDF); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if errors.Is(err, ErrToolMissing) {
			logger.Info("ocrmypdf not found; skipping OCR")
		} else {
			logging.WarnWithContext(logger, "ocr failed", "rb_ocr_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "text is taken from the source PDF"))
		}
	} else {
		used = layout.ReadablePDF
	}

	text, err := j.tools.Text(ctx, used)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		logging.WarnWithContext(logger, "text extraction failed", "rb_text_failed", logging.Error(err))
		text = ""
	}
	images, err := j.tools.Images(ctx, used, layout.ImagesDir)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		logger.Debug("image extraction failed", logging.Error(err))
	}

	md := BuildMarkdown(ref, row, text, SplitLinks(row.Get("Links"), j.cfg.PDFURLBase))
	if err := fileutil.WriteFileAtomic(layout.Markdown, []byte(md)); err != nil {
		return false, fmt.Errorf("write markdown: %w", err)
	}
	logger.Info("rb processed",
		logging.String("markdown", layout.Markdown),
		logging.Int("images", images),
		logging.Bool("readable", fileutil.Exists(layout.ReadablePDF)))
	return true, nil
}

// downloadPDF accepts a 200 response when it is served as a PDF or the URL
// names a .pdf file.
func (j *DownloadJob) downloadPDF(ctx context.Context, url, dest string) (int, error) {
	res, err := j.http.Do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	ctype := strings.ToLower(res.ContentType)
	if !strings.Contains(ctype, "pdf") && !strings.HasSuffix(strings.ToLower(url), ".pdf") {
		return 0, services.Wrap(services.ErrValidation, DownloadDataset, "download pdf",
			fmt.Sprintf("%s served %q", url, res.ContentType), nil)
	}
	if err := fileutil.WriteFileAtomic(dest, res.Body); err != nil {
		return 0, err
	}
	return len(res.Body), nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
