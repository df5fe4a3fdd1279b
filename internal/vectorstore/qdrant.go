package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ragcache/ragcache/internal/log"
)

const qdrantTimeout = 30 * time.Second

// qdrantMetricNames maps our metric identifiers to Qdrant's distance names.
var qdrantMetricNames = map[Metric]string{
	MetricCosine:    "Cosine",
	MetricEuclidean: "Euclid",
}

// Qdrant talks to a Qdrant instance over its REST API.
// Safe for concurrent use; the embedded http.Client pools connections.
type Qdrant struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  log.Logger
}

// NewQdrant returns a client for the Qdrant REST API at url. apiKey may be
// empty for unauthenticated instances.
func NewQdrant(url, apiKey string, logger log.Logger) *Qdrant {
	return &Qdrant{
		baseURL: strings.TrimRight(url, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: qdrantTimeout},
		logger:  logger,
	}
}

// EnsureCollection declares the collection if it does not exist yet.
// A concurrent or earlier creation is not an error.
func (q *Qdrant) EnsureCollection(ctx context.Context, name string, dims int, metric Metric) error {
	distance, ok := qdrantMetricNames[metric]
	if !ok {
		return fmt.Errorf("unsupported metric %q", metric)
	}

	data, err := q.doRequest(ctx, http.MethodGet, "/collections/"+name, nil)
	if err == nil {
		return q.verifyCollection(data, name, dims, distance)
	}
	var apiErr *qdrantAPIError
	if !errors.As(err, &apiErr) || apiErr.status != http.StatusNotFound {
		return fmt.Errorf("checking collection %q: %w", name, err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dims,
			"distance": distance,
		},
	}
	if _, err := q.doRequest(ctx, http.MethodPut, "/collections/"+name, body); err != nil {
		// Another process may have created it between the GET and the PUT.
		if errors.As(err, &apiErr) && apiErr.alreadyExists() {
			return nil
		}
		return fmt.Errorf("creating collection %q: %w", name, err)
	}
	q.logger.Debug("collection created",
		"collection", name, "dims", dims, "distance", distance)
	return nil
}

// Upsert writes points with write-consistency wait, so a subsequent search
// sees them.
func (q *Qdrant) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]any, 0, len(points))
	for _, p := range points {
		body = append(body, map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		})
	}
	req := map[string]any{"points": body}
	if _, err := q.doRequest(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", req); err != nil {
		return &WriteError{Collection: collection, Err: err}
	}
	return nil
}

// Search returns the k nearest points with payloads. Qdrant already orders
// results best match first for the collection's metric.
func (q *Qdrant) Search(ctx context.Context, collection string, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		k = 1
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	data, err := q.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/search", req)
	if err != nil {
		return nil, &SearchError{Collection: collection, Err: err}
	}

	var parsed struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &SearchError{Collection: collection, Err: fmt.Errorf("decoding response: %w", err)}
	}

	results := make([]Result, 0, len(parsed.Result))
	for _, item := range parsed.Result {
		results = append(results, Result{
			ID:      fmt.Sprintf("%v", item.ID),
			Score:   item.Score,
			Payload: item.Payload,
		})
	}
	return results, nil
}

// verifyCollection compares an existing collection's declared parameters
// against the requested ones. A changed dimensionality or metric must fail
// here rather than produce incomparable search results later.
func (q *Qdrant) verifyCollection(data []byte, name string, dims int, distance string) error {
	var parsed struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("decoding collection %q: %w", name, err)
	}
	got := parsed.Result.Config.Params.Vectors
	if got.Size != dims {
		return fmt.Errorf("collection %q has %d dimensions, want %d", name, got.Size, dims)
	}
	if got.Distance != distance {
		return fmt.Errorf("collection %q uses %s distance, want %s", name, got.Distance, distance)
	}
	q.logger.Debug("collection already exists", "collection", name)
	return nil
}

// Close implements Store. The HTTP client holds no resources that outlive
// requests.
func (q *Qdrant) Close() error { return nil }

// qdrantAPIError is a non-2xx response from Qdrant.
type qdrantAPIError struct {
	status int
	body   string
}

func (e *qdrantAPIError) Error() string {
	return fmt.Sprintf("qdrant status %d: %s", e.status, e.body)
}

func (e *qdrantAPIError) alreadyExists() bool {
	return e.status == http.StatusConflict ||
		strings.Contains(strings.ToLower(e.body), "already exists")
}

func (q *Qdrant) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &qdrantAPIError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	return data, nil
}
