package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"imdata/internal/config"
	"imdata/internal/fileutil"
	"imdata/internal/logging"
	"imdata/internal/services"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultRetryWait = 2 * time.Second
	maxRetryWait     = 30 * time.Second
	maxDiscard       = 64 << 10
)

// Options configures a Client.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
	Logger    *slog.Logger
}

// Client performs GET/POST requests and file downloads.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// New builds a client. Failed requests are retried on transport errors, 408,
// 429 and 5xx responses.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "fetch")
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}

	client := resty.New()
	client.SetLogger(restyLogger{logger: logger})
	client.SetTimeout(opts.Timeout)
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		client.SetHeader("User-Agent", ua)
	}
	client.SetRetryCount(max(opts.Retries, 0))
	client.SetRetryWaitTime(opts.RetryWait)
	client.SetRetryMaxWaitTime(max(opts.RetryWait, maxRetryWait))
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		if !retryableStatus(res.StatusCode()) {
			return false
		}
		// Unparsed bodies of abandoned attempts are ours to release.
		discardBody(res)
		return true
	})
	client.OnError(func(req *resty.Request, err error) {
		logging.WithContext(req.Context(), logger).Debug("http request failed",
			logging.String("method", req.Method),
			logging.String("url", req.URL),
			logging.Error(err))
	})

	return &Client{http: client, logger: logger}
}

// NewFromConfig builds a client from the [http] config section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	return New(Options{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		Retries:   cfg.HTTP.Retries,
		RetryWait: time.Duration(cfg.HTTP.RetryWaitSeconds) * time.Second,
		Logger:    logger,
	})
}

// Get fetches url and returns the body. Non-2xx responses are errors.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	res, err := c.Do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// PostForm sends a form-encoded POST and returns the body.
func (c *Client) PostForm(ctx context.Context, url string, form map[string]string) ([]byte, error) {
	res, err := c.Do(ctx, http.MethodPost, url, form)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// Do performs a request, returning the response when the status is 2xx.
func (c *Client) Do(ctx context.Context, method, url string, form map[string]string) (*Response, error) {
	req := c.http.R().SetContext(ctx)
	if form != nil {
		req.SetFormData(form)
	}
	c.logger.Debug("http request", logging.String("method", method), logging.String("url", url))
	res, err := req.Execute(method, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "", "fetch", method+" "+url, err)
	}
	out := &Response{
		StatusCode:  res.StatusCode(),
		ContentType: res.Header().Get("Content-Type"),
		Body:        res.Body(),
	}
	if err := statusError(method, url, res.StatusCode(), res.Status()); err != nil {
		return out, err
	}
	return out, nil
}

// Download streams url into dest atomically and returns the bytes written.
// The response body is not held in memory.
func (c *Client) Download(ctx context.Context, url, dest string) (int64, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, services.Wrap(services.ErrTransient, "", "download", url, err)
	}
	body := res.RawBody()
	defer body.Close()
	if err := statusError(http.MethodGet, url, res.StatusCode(), res.Status()); err != nil {
		return 0, err
	}

	var written int64
	err = fileutil.WriteAtomic(dest, func(w io.Writer) error {
		n, copyErr := io.Copy(w, body)
		written = n
		return copyErr
	})
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", url, err)
	}
	c.logger.Debug("downloaded file",
		logging.String("url", url),
		logging.String("path", dest),
		logging.Int64("bytes", written))
	return written, nil
}

// discardBody drains and closes a response body so its connection can be
// reused. Closing an already consumed body is a no-op.
func discardBody(res *resty.Response) {
	if res == nil || res.RawResponse == nil || res.RawResponse.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.RawResponse.Body, maxDiscard))
	_ = res.RawResponse.Body.Close()
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

func statusError(method, url string, code int, status string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	marker := services.ErrExternalTool
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		marker = services.ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		marker = services.ErrUnauthorized
	case retryableStatus(code):
		marker = services.ErrTransient
	}
	return services.Wrap(marker, "", "fetch", fmt.Sprintf("%s %s returned %s", method, url, status), nil)
}

// restyLogger routes resty's internal messages through slog.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
