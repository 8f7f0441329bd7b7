package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"imdata/internal/logging"
	"imdata/internal/services"
)

const (
	// ModeJSONSchema requests strict structured output.
	ModeJSONSchema = "json_schema"
	// ModeJSONObject requests free-form JSON output.
	ModeJSONObject = "json_object"

	defaultBaseURL        = "https://api.openai.com/v1/chat/completions"
	defaultHTTPTimeout    = 120 * time.Second
	defaultRetryBaseDelay = 1500 * time.Millisecond
	defaultRetryMaxDelay  = 30 * time.Second
	defaultMaxRetries     = 3
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	TimeoutSeconds    int
	MaxRetries        int
	RetryUnauthorized bool
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	DelayMin          time.Duration
	DelayMax          time.Duration
}

// Client wraps the chat completion API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	sleeper    func(context.Context, time.Duration) error
	jitter     func() float64
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides how delays are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithJitter overrides the random source used for backoff and polite delays.
// It must return values in [0,1).
func WithJitter(jitter func() float64) Option {
	return func(c *Client) {
		if jitter != nil {
			c.jitter = jitter
		}
	}
}

// WithLogger sets the logger for attempt and fallback messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase < 0 {
		cfg.BackoffBase = 0
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultRetryMaxDelay
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
		sleeper:    sleepContext,
		jitter:     rand.Float64,
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "llm")
	return client
}

// DefaultConfig returns the built-in retry and backoff settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:     defaultBaseURL,
		MaxRetries:  defaultMaxRetries,
		BackoffBase: defaultRetryBaseDelay,
		BackoffCap:  defaultRetryMaxDelay,
	}
}

// Schema is a named JSON schema for structured output.
type Schema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// Request is one structured completion.
type Request struct {
	System string
	User   string
	// Schema enables the json_schema mode. Nil goes straight to json_object.
	Schema *Schema
	// Label identifies the request in logs (for example an RB number).
	Label string
	// OnInvalidJSON receives content the model returned that did not decode.
	OnInvalidJSON func(mode, content string)
}

// Result is a successful completion.
type Result struct {
	// Content is the JSON payload with code fences removed.
	Content  string
	Mode     string
	Attempts int
	Elapsed  time.Duration
}

// Complete runs the polite delay, then the json_schema attempts (when a
// schema is set), then the json_object fallback.
func (c *Client) Complete(ctx context.Context, req Request) (Result, error) {
	req.System = strings.TrimSpace(req.System)
	req.User = strings.TrimSpace(req.User)
	if req.System == "" {
		return Result{}, errors.New("llm complete: system prompt required")
	}
	if req.User == "" {
		return Result{}, errors.New("llm complete: user prompt required")
	}
	if c.cfg.APIKey == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "", "llm complete", "api key required", nil)
	}

	if err := c.sleep(ctx, c.politeDelay()); err != nil {
		return Result{}, err
	}

	logger := c.logger
	if req.Label != "" {
		logger = logger.With(logging.String(logging.FieldRecord, req.Label))
	}

	if req.Schema != nil {
		payload := c.newPayload(req, map[string]any{"type": ModeJSONSchema, "json_schema": req.Schema})
		res, err := c.attempts(ctx, logger, payload, ModeJSONSchema, req)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if IsUnauthorized(err) && !c.cfg.RetryUnauthorized {
			return Result{}, err
		}
		logger.Warn("structured output failed; falling back to json_object",
			logging.String(logging.FieldEventType, "llm_mode_fallback"),
			logging.Int("status_code", StatusCode(err)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "400/422 usually mean the model rejects the schema"),
			logging.String(logging.FieldImpact, "response keys are coerced locally"))
	}

	payload := c.newPayload(req, map[string]any{"type": ModeJSONObject})
	return c.attempts(ctx, logger, payload, ModeJSONObject, req)
}

// CompleteJSON issues a json_object request and returns the raw JSON payload.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	res, err := c.Complete(ctx, Request{System: systemPrompt, User: userPrompt})
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.CompleteJSON(ctx, "You must respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return fmt.Errorf("llm health: %w", err)
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

type chatCompletionRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Client) newPayload(req Request, format map[string]any) chatCompletionRequest {
	return chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature:    0,
		ResponseFormat: format,
	}
}

func (c *Client) attempts(ctx context.Context, logger *slog.Logger, payload chatCompletionRequest, mode string, req Request) (Result, error) {
	total := c.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < total; attempt++ {
		logger.Debug("llm request",
			logging.String("mode", mode),
			logging.Int("attempt", attempt+1),
			logging.Int("attempts", total))
		started := time.Now()
		content, err := c.completeOnce(ctx, payload)
		elapsed := time.Since(started)
		if err == nil {
			var raw json.RawMessage
			if decodeErr := DecodeLLMJSON(content, &raw); decodeErr != nil {
				if req.OnInvalidJSON != nil {
					req.OnInvalidJSON(mode, content)
				}
				err = &invalidJSONError{Mode: mode, Err: decodeErr}
			} else {
				logger.Info("llm request succeeded",
					logging.String("mode", mode),
					logging.Int("attempt", attempt+1),
					logging.Duration("elapsed", elapsed))
				return Result{Content: string(raw), Mode: mode, Attempts: attempt + 1, Elapsed: elapsed}, nil
			}
		}
		lastErr = err

		logger.Warn("llm request failed",
			logging.String("mode", mode),
			logging.Int("attempt", attempt+1),
			logging.Int("status_code", StatusCode(err)),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
			logging.String(logging.FieldEventType, "llm_attempt_failed"),
			logging.String(logging.FieldErrorHint, hintFor(err)),
			logging.String(logging.FieldImpact, "request will be retried or fall back"))

		if !c.shouldRetry(ctx, err) || attempt+1 >= total {
			break
		}
		if err := c.sleep(ctx, c.retryDelay(err, attempt)); err != nil {
			return Result{}, err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return Result{}, fmt.Errorf("llm %s: failed after %d attempts: %w", mode, total, lastErr)
}

func (c *Client) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var invalid *invalidJSONError
	if errors.As(err, &invalid) {
		return true
	}
	var empty *emptyContentError
	if errors.As(err, &empty) {
		return true
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch code := statusErr.StatusCode; {
		case code == http.StatusUnauthorized:
			return c.cfg.RetryUnauthorized
		case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// backoff returns min(base*2^attempt + U(0,base), cap) for a 0-based attempt.
func (c *Client) backoff(attempt int) time.Duration {
	base := float64(c.cfg.BackoffBase)
	if base <= 0 {
		return 0
	}
	delay := base*math.Pow(2, float64(attempt)) + c.jitter()*base
	if limit := float64(c.cfg.BackoffCap); delay > limit {
		delay = limit
	}
	return time.Duration(delay)
}

func (c *Client) retryDelay(err error, attempt int) time.Duration {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return min(statusErr.RetryAfter, c.cfg.BackoffCap)
	}
	return c.backoff(attempt)
}

func (c *Client) politeDelay() time.Duration {
	lo, hi := c.cfg.DelayMin, c.cfg.DelayMax
	if hi <= 0 {
		return max(lo, 0)
	}
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(c.jitter()*float64(hi-lo))
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	return c.sleeper(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) completeOnce(ctx context.Context, payload chatCompletionRequest) (string, error) {
	completion, body, err := c.sendChatRequestOnce(ctx, payload)
	if err != nil {
		return "", err
	}
	content, finishReason := extractCompletionPayload(completion)
	if content != "" {
		return content, nil
	}
	if len(completion.Choices) == 0 {
		return "", &emptyContentError{FinishReason: "", Snippet: summarizePayloadSnippet(string(body))}
	}
	return "", &emptyContentError{
		FinishReason: finishReason,
		Refusal:      extractCompletionRefusal(completion),
		Snippet:      summarizePayloadSnippet(string(body)),
	}
}

func (c *Client) sendChatRequestOnce(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, []byte, error) {
	var completion chatCompletionResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return completion, body, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, body, &invalidJSONError{Mode: "response", Err: fmt.Errorf("decode response: %w", err)}
	}
	if completion.Error != nil {
		return completion, body, fmt.Errorf("llm request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	return completion, body, nil
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func hintFor(err error) string {
	switch StatusCode(err) {
	case http.StatusUnauthorized:
		return "401 means the API key or project lacks access; check llm.api_key"
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "400/422 usually mean invalid parameters or a schema mismatch"
	case http.StatusTooManyRequests:
		return "rate limited; lower request volume or raise llm.delay_min_seconds"
	}
	return "check network connectivity and the llm section of the config"
}
