package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(url string) Config {
	cfg := DefaultConfig(url, "test-key")
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.JitterFactor = 0
	return cfg
}

func TestClientSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexes/events/search" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("missing API key header")
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query != "warehouse" {
			t.Errorf("Query = %q, want %q", req.Query, "warehouse")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hits": []map[string]any{
				{"event_id": 3},
				{"event_id": 11},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ids, err := client.Search(context.Background(), "warehouse", []string{"GM"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 11 {
		t.Errorf("Search() = %v, want [3 11]", ids)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"hits": []map[string]any{}})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.Search(context.Background(), "x", nil); err != nil {
		t.Fatalf("Search() error = %v, want success after retries", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.Search(context.Background(), "x", nil); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server called %d times, want 1 (no retry on 4xx)", got)
	}
}

func TestClientExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 2
	client, err := NewClient(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Search(context.Background(), "x", nil)
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestClientIndexDocuments(t *testing.T) {
	var gotDocs int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("Method = %q, want PUT", r.Method)
		}
		var body struct {
			Documents []Document `json:"documents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotDocs = len(body.Documents)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	docs := []Document{
		{ObjectID: "event:1", EventID: 1, EventName: "One"},
		{ObjectID: "event:2", EventID: 2, EventName: "Two"},
	}
	if err := client.IndexDocuments(context.Background(), docs); err != nil {
		t.Fatalf("IndexDocuments() error = %v", err)
	}
	if gotDocs != 2 {
		t.Errorf("server received %d documents, want 2", gotDocs)
	}
}

func TestClientIndexDocumentsEmptyBatch(t *testing.T) {
	client, err := NewClient(testConfig("http://127.0.0.1:1"), nil, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	// Empty batches never hit the network.
	if err := client.IndexDocuments(context.Background(), nil); err != nil {
		t.Errorf("IndexDocuments(nil) error = %v", err)
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClientContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 100
	cfg.BaseDelay = 50 * time.Millisecond
	cfg.MaxDelay = 500 * time.Millisecond
	client, err := NewClient(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.Search(ctx, "x", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline error, got %v", err)
	}
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	if _, err := NewClient(Config{}, nil, nil); err == nil {
		t.Error("expected error for empty config")
	}
}
