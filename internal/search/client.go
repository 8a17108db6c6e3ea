package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Client errors.
var (
	ErrIndexUnavailable = errors.New("search index unavailable")
	ErrBadResponse      = errors.New("unexpected response from search index")
)

// Client talks to the hosted search index over HTTP. Requests are retried
// with exponential backoff and jitter; 4xx responses are never retried since
// the request will not get better.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics

	mu  sync.Mutex
	rng *rand.Rand // protected by mu
}

// NewClient creates a new search index client with the given configuration.
// metrics may be nil.
func NewClient(config Config, logger *slog.Logger, metrics *Metrics) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// searchRequest is the body of POST /indexes/events/search.
type searchRequest struct {
	Query      string   `json:"query"`
	Categories []string `json:"categories,omitempty"`
}

// searchResponse carries the matching document IDs.
type searchResponse struct {
	Hits []struct {
		EventID int64 `json:"event_id"`
	} `json:"hits"`
}

// Search queries the index and returns matching event IDs in relevance
// order.
func (c *Client) Search(ctx context.Context, keyword string, categories []string) ([]int64, error) {
	body, err := json.Marshal(searchRequest{Query: keyword, Categories: categories})
	if err != nil {
		return nil, err
	}

	respBody, err := c.do(ctx, http.MethodPost, "/indexes/events/search", body)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	ids := make([]int64, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		ids = append(ids, hit.EventID)
	}
	return ids, nil
}

// IndexDocuments pushes a batch of documents to the index, replacing any
// existing documents with the same objectID.
func (c *Client) IndexDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string]any{"documents": docs})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPut, "/indexes/events/documents", body)
	if err == nil && c.metrics != nil {
		c.metrics.AddUpserts(len(docs))
	}
	return err
}

// DeleteDocument removes a single event from the index.
func (c *Client) DeleteDocument(ctx context.Context, eventID int64) error {
	path := "/indexes/events/documents/event:" + strconv.FormatInt(eventID, 10)
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

// HealthCheck reports whether the index answers on its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err
}

// do runs one request with retries. The returned bytes are the response
// body of the first successful attempt.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.computeBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		respBody, retryable, err := c.attempt(ctx, method, path, body)
		if err == nil {
			if c.metrics != nil {
				c.metrics.IncRequests(method)
			}
			return respBody, nil
		}
		lastErr = err
		if c.metrics != nil {
			c.metrics.IncErrors(method)
		}
		if !retryable {
			return nil, err
		}
		c.logger.Warn("search index request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
	}

	return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, lastErr)
}

// attempt runs a single HTTP exchange. The second return reports whether
// the failure is worth retrying.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte) ([]byte, bool, error) {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.URL+path, reader)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("X-API-Key", c.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer func() { _ = resp.Body.Close() }()

	if c.metrics != nil {
		c.metrics.ObserveLatency(time.Since(start).Seconds())
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, false, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("search index returned %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("search index returned %d", resp.StatusCode)
	}
}

// computeBackoff calculates the retry delay with exponential backoff and jitter.
func (c *Client) computeBackoff(attempt int) time.Duration {
	// Exponential backoff: baseDelay * 2^(attempt-1), capped at MaxDelay
	shift := uint(attempt - 1)
	if shift > 30 {
		shift = 30
	}
	backoff := float64(c.config.BaseDelay) * float64(uint64(1)<<shift)
	if backoff > float64(c.config.MaxDelay) {
		backoff = float64(c.config.MaxDelay)
	}

	// Apply jitter: delay * (1 - jitter/2 + rand*jitter)
	if c.config.JitterFactor > 0 {
		c.mu.Lock()
		jitter := (c.rng.Float64() - 0.5) * c.config.JitterFactor
		c.mu.Unlock()
		backoff = backoff * (1 + jitter)
	}

	return time.Duration(backoff)
}
