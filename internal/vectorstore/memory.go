package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is a brute-force in-process Store. It backs unit tests and the
// "memory" provider for local development; nothing survives the process.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	dims   int
	metric Metric
	order  []string         // insertion order, for deterministic ties
	points map[string]Point // keyed by ID, upsert replaces
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) EnsureCollection(_ context.Context, name string, dims int, metric Metric) error {
	if metric != MetricCosine && metric != MetricEuclidean {
		return fmt.Errorf("unsupported metric %q", metric)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[name]; ok {
		if c.dims != dims || c.metric != metric {
			return fmt.Errorf("collection %q already exists with dims=%d metric=%q", name, c.dims, c.metric)
		}
		return nil
	}
	m.collections[name] = &memCollection{
		dims:   dims,
		metric: metric,
		points: make(map[string]Point),
	}
	return nil
}

func (m *Memory) Upsert(_ context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return &WriteError{Collection: collection, Err: fmt.Errorf("collection does not exist")}
	}
	for _, p := range points {
		if len(p.Vector) != c.dims {
			return &WriteError{
				Collection: collection,
				Err:        fmt.Errorf("%w: got %d, collection has %d", ErrDimensionMismatch, len(p.Vector), c.dims),
			}
		}
	}
	for _, p := range points {
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.points[p.ID] = clonePoint(p)
	}
	return nil
}

func (m *Memory) Search(_ context.Context, collection string, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		k = 1
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, &SearchError{Collection: collection, Err: fmt.Errorf("collection does not exist")}
	}

	results := make([]Result, 0, len(c.points))
	for _, id := range c.order {
		p := c.points[id]
		var score float64
		switch c.metric {
		case MetricCosine:
			score = cosineSimilarity(vector, p.Vector)
		case MetricEuclidean:
			score = euclideanDistance(vector, p.Vector)
		}
		results = append(results, Result{ID: p.ID, Score: score, Payload: p.Payload})
	}

	// Best match first: similarity descends, distance ascends.
	if c.metric == MetricCosine {
		sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	} else {
		sort.SliceStable(results, func(i, j int) bool { return results[i].Score < results[j].Score })
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *Memory) Close() error { return nil }

// PointCount reports how many points a collection holds. Zero for unknown
// collections. Used by tests asserting cache growth.
func (m *Memory) PointCount(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return 0
	}
	return len(c.points)
}

func clonePoint(p Point) Point {
	cp := Point{ID: p.ID, Vector: make([]float32, len(p.Vector))}
	copy(cp.Vector, p.Vector)
	if p.Payload != nil {
		cp.Payload = make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			cp.Payload[k] = v
		}
	}
	return cp
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func euclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
