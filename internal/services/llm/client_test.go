package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"imdata/internal/services"
)

type recordedRequest struct {
	Mode string
	Auth string
}

type fakeServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(n int, mode string, w http.ResponseWriter)
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mode, _ := payload.ResponseFormat["type"].(string)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Mode: mode, Auth: r.Header.Get("Authorization")})
		n := len(f.requests)
		f.mu.Unlock()
		f.respond(n, mode, w)
	})
}

func (f *fakeServer) modes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Mode
	}
	return out
}

func writeContent(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}},
		},
	})
}

func testSchema() *Schema {
	return &Schema{Name: "demo", Strict: true, Schema: map[string]any{"type": "object"}}
}

func newTestClient(url string, cfg Config, slept *[]time.Duration) *Client {
	cfg.APIKey = "test"
	cfg.BaseURL = url
	cfg.Model = "demo-model"
	return NewClient(cfg,
		WithSleeper(func(_ context.Context, d time.Duration) error {
			if slept != nil {
				*slept = append(*slept, d)
			}
			return nil
		}),
		WithJitter(func() float64 { return 0 }),
	)
}

func TestCompleteUsesJSONSchemaFirst(t *testing.T) {
	fake := &fakeServer{respond: func(_ int, _ string, w http.ResponseWriter) {
		writeContent(w, "```json\n{\"ok\":true}\n```")
	}}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(server.URL, Config{MaxRetries: 2}, nil)
	res, err := client.Complete(context.Background(), Request{System: "sys", User: "user", Schema: testSchema()})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Mode != ModeJSONSchema || res.Content != `{"ok":true}` || res.Attempts != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if fake.requests[0].Auth != "Bearer test" {
		t.Fatalf("unexpected auth header %q", fake.requests[0].Auth)
	}
}

func TestCompleteRetries429WithBackoff(t *testing.T) {
	fake := &fakeServer{respond: func(n int, _ string, w http.ResponseWriter) {
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeContent(w, `{"ok":true}`)
	}}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server.URL, Config{MaxRetries: 3, BackoffBase: time.Second, BackoffCap: 30 * time.Second}, &slept)
	res, err := client.Complete(context.Background(), Request{System: "sys", User: "user", Schema: testSchema()})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Attempts != 3 || res.Mode != ModeJSONSchema {
		t.Fatalf("unexpected result %+v", res)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(slept) != len(want) || slept[0] != want[0] || slept[1] != want[1] {
		t.Fatalf("expected backoff %v, got %v", want, slept)
	}
}

func TestCompleteHonoursRetryAfter(t *testing.T) {
	fake := &fakeServer{respond: func(n int, _ string, w http.ResponseWriter) {
		if n == 1 {
			w.Header().Set("Retry-After", "4")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeContent(w, `{"ok":true}`)
	}}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server.URL, Config{MaxRetries: 1, BackoffBase: time.Second, BackoffCap: 3 * time.Second}, &slept)
	if _, err := client.Complete(context.Background(), Request{System: "s", User: "u"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(slept) != 1 || slept[0] != 3*time.Second {
		t.Fatalf("expected Retry-After capped at 3s, got %v", slept)
	}
}

func TestCompleteUnauthorizedIsFatal(t *testing.T) {
	fake := &fakeServer{respond: func(_ int, _ string, w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(server.URL, Config{MaxRetries: 3, BackoffBase: time.Second}, nil)
	_, err := client.Complete(context.Background(), Request{System: "s", User: "u", Schema: testSchema()})
	if !IsUnauthorized(err) || !errors.Is(err, services.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if got := fake.modes(); len(got) != 1 {
		t.Fatalf("401 must not be retried or fall back, got requests %v", got)
	}
}

func TestCompleteRetryUnauthorizedWhenEnabled(t *testing.T) {
	fake := &fakeServer{respond: func(n int, _ string, w http.ResponseWriter) {
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeContent(w, `{"ok":true}`)
	}}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(server.URL, Config{MaxRetries: 1, RetryUnauthorized: true}, nil)
	res, err := client.Complete(context.Background(), Request{System: "s", User: "u", Schema: testSchema()})
	if err != nil || res.Attempts != 2 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestCompleteFallsBackOn400(t *testing.T) {
	fake := &fakeServer{respond: func(_ int, mode string, w http.ResponseWriter) {
		if mode == ModeJSONSchema {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"response_format not supported"}}`))
			return
		}
		writeContent(w, `{"ok":true}`)
	}}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(server.URL, Config{MaxRetries: 3}, nil)
	res, err := client.Complete(context.Background(), Request{System: "s", User: "u", Schema: testSchema()})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Mode != ModeJSONObject {
		t.Fatalf("expected json_object fallback, got %+v", res)
	}
	want := []string{ModeJSONSchema, ModeJSONObject}
	if got := fake.modes(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected modes %v, got %v", want, got)
	}
}

func TestCompleteFallsBackAfterExhaustingSchemaAttempts(t *testing.T) {
	fake := &fakeServer{respond: func(_ int, mode string, w http.ResponseWriter) {
		if mode == ModeJSONSchema {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeContent(w, `{"ok":true}`)
	}}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(server.URL, Config{MaxRetries: 2}, nil)
	res, err := client.Complete(context.Background(), Request{System: "s", User: "u", Schema: testSchema()})
	if err != nil || res.Mode != ModeJSONObject {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if got := fake.modes(); len(got) != 4 {
		t.Fatalf("expected 3 json_schema attempts then 1 json_object, got %v", got)
	}
}

func TestCompleteSurfacesJSONObjectFailure(t *testing.T) {
	var invalid []string
	fake := &fakeServer{respond: func(_ int, _ string, w http.ResponseWriter) {
		writeContent(w, "not json at all")
	}}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(server.URL, Config{MaxRetries: 1}, nil)
	_, err := client.Complete(context.Background(), Request{
		System: "s", User: "u",
		OnInvalidJSON: func(mode, content string) { invalid = append(invalid, mode+":"+content) },
	})
	if !IsInvalidJSON(err) {
		t.Fatalf("expected invalid JSON error, got %v", err)
	}
	if len(invalid) != 2 || invalid[0] != "json_object:not json at all" {
		t.Fatalf("unexpected invalid JSON callbacks %v", invalid)
	}
}

func TestCompleteRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.Complete(context.Background(), Request{System: "s", User: "u"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCompleteAppliesPoliteDelay(t *testing.T) {
	fake := &fakeServer{respond: func(_ int, _ string, w http.ResponseWriter) { writeContent(w, `{}`) }}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "k", BaseURL: server.URL, DelayMin: 400 * time.Millisecond, DelayMax: 1200 * time.Millisecond},
		WithSleeper(func(_ context.Context, d time.Duration) error { slept = append(slept, d); return nil }),
		WithJitter(func() float64 { return 0.5 }),
	)
	if _, err := client.Complete(context.Background(), Request{System: "s", User: "u"}); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 || slept[0] != 800*time.Millisecond {
		t.Fatalf("expected one 800ms polite delay, got %v", slept)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	client := NewClient(Config{BackoffBase: 1500 * time.Millisecond, BackoffCap: 30 * time.Second}, WithJitter(func() float64 { return 0.5 }))
	cases := map[int]time.Duration{
		0: 2250 * time.Millisecond,
		1: 3750 * time.Millisecond,
		2: 6750 * time.Millisecond,
		5: 30 * time.Second,
	}
	for attempt, want := range cases {
		if got := client.backoff(attempt); got != want {
			t.Errorf("attempt %d: got %s want %s", attempt, got, want)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	fake := &fakeServer{respond: func(_ int, _ string, w http.ResponseWriter) { writeContent(w, `{"ok":true}`) }}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	if err := newTestClient(server.URL, Config{}, nil).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestDecodeLLMJSONStripsFencesAndProse(t *testing.T) {
	var out struct {
		Notes string `json:"notes"`
	}
	if err := DecodeLLMJSON("Here you go:\n{\"notes\":\"x\"}\nThanks", &out); err != nil || out.Notes != "x" {
		t.Fatalf("out=%+v err=%v", out, err)
	}
	if err := DecodeLLMJSON("   ", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
