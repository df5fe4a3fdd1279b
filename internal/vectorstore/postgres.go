package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/ragcache/ragcache/internal/log"
)

// Postgres stores collections as pgvector tables, one table per collection.
// The rc_collections registry (created by db migrations) records each
// collection's dimensionality and metric so searches pick the right operator.
//
// The pool is shared and owned by the caller; Close here does not close it.
type Postgres struct {
	pool   *pgxpool.Pool
	logger log.Logger

	mu          sync.RWMutex
	collections map[string]collectionInfo
}

type collectionInfo struct {
	dims   int
	metric Metric
}

// NewPostgres returns a store over an existing connection pool. The pool must
// point at a database with the vector extension and the rc_collections
// registry already migrated.
func NewPostgres(pool *pgxpool.Pool, logger log.Logger) *Postgres {
	return &Postgres{
		pool:        pool,
		logger:      logger,
		collections: make(map[string]collectionInfo),
	}
}

// pgMetricOps maps metrics to the pgvector index operator class.
var pgMetricOps = map[Metric]string{
	MetricCosine:    "vector_cosine_ops",
	MetricEuclidean: "vector_l2_ops",
}

// EnsureCollection registers the collection and creates its table and index
// if missing. A second call with the same parameters is a no-op; differing
// parameters are an error rather than a silent redefinition.
func (p *Postgres) EnsureCollection(ctx context.Context, name string, dims int, metric Metric) error {
	ops, ok := pgMetricOps[metric]
	if !ok {
		return fmt.Errorf("unsupported metric %q", metric)
	}
	if err := checkCollectionName(name); err != nil {
		return err
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO rc_collections (name, dims, metric) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`, name, dims, string(metric))
	if err != nil {
		return fmt.Errorf("registering collection %q: %w", name, err)
	}

	var haveDims int
	var haveMetric string
	err = p.pool.QueryRow(ctx,
		`SELECT dims, metric FROM rc_collections WHERE name = $1`, name).
		Scan(&haveDims, &haveMetric)
	if err != nil {
		return fmt.Errorf("reading collection registry for %q: %w", name, err)
	}
	if haveDims != dims || Metric(haveMetric) != metric {
		return fmt.Errorf("collection %q already exists with dims=%d metric=%q", name, haveDims, haveMetric)
	}

	tbl := tableName(name)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id text PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		payload jsonb NOT NULL DEFAULT '{}'::jsonb,
		created_at timestamptz NOT NULL DEFAULT now()
	)`, tbl, dims)
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table for collection %q: %w", name, err)
	}

	// hnsw builds incrementally, so creating the index before any data
	// arrives does not hurt recall the way ivfflat's fixed lists would.
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s)`,
		indexName(name), tbl, ops)
	if _, err := p.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("creating index for collection %q: %w", name, err)
	}

	p.mu.Lock()
	p.collections[name] = collectionInfo{dims: dims, metric: metric}
	p.mu.Unlock()

	p.logger.Debug("collection ready", "collection", name, "dims", dims, "metric", metric)
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	info, err := p.lookupCollection(ctx, collection)
	if err != nil {
		return &WriteError{Collection: collection, Err: err}
	}
	for _, pt := range points {
		if len(pt.Vector) != info.dims {
			return &WriteError{Collection: collection,
				Err: fmt.Errorf("%w: point %q has %d dimensions, collection wants %d",
					ErrDimensionMismatch, pt.ID, len(pt.Vector), info.dims)}
		}
	}

	sql := fmt.Sprintf(`INSERT INTO %s (id, embedding, payload) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`,
		tableName(collection))

	batch := &pgx.Batch{}
	for _, pt := range points {
		payloadJSON, err := json.Marshal(pt.Payload)
		if err != nil {
			return &WriteError{Collection: collection, Err: fmt.Errorf("encoding payload: %w", err)}
		}
		batch.Queue(sql, pt.ID, pgvector.NewVector(pt.Vector), payloadJSON)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range points {
		if _, err := br.Exec(); err != nil {
			return &WriteError{Collection: collection, Err: err}
		}
	}
	return nil
}

func (p *Postgres) Search(ctx context.Context, collection string, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		k = 1
	}
	info, err := p.lookupCollection(ctx, collection)
	if err != nil {
		return nil, &SearchError{Collection: collection, Err: err}
	}

	// Cosine reports similarity so larger is better; Euclidean reports the
	// raw distance. Both queries order best match first.
	var sql string
	switch info.metric {
	case MetricCosine:
		sql = fmt.Sprintf(`SELECT id, 1 - (embedding <=> $1) AS score, payload
			FROM %s ORDER BY embedding <=> $1 LIMIT $2`, tableName(collection))
	case MetricEuclidean:
		sql = fmt.Sprintf(`SELECT id, embedding <-> $1 AS score, payload
			FROM %s ORDER BY embedding <-> $1 LIMIT $2`, tableName(collection))
	default:
		return nil, &SearchError{Collection: collection, Err: fmt.Errorf("unsupported metric %q", info.metric)}
	}

	rows, err := p.pool.Query(ctx, sql, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, &SearchError{Collection: collection, Err: err}
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			id          string
			score       float64
			payloadJSON []byte
		)
		if err := rows.Scan(&id, &score, &payloadJSON); err != nil {
			return nil, &SearchError{Collection: collection, Err: err}
		}
		var payload map[string]any
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &payload); err != nil {
				return nil, &SearchError{Collection: collection, Err: fmt.Errorf("decoding payload: %w", err)}
			}
		}
		results = append(results, Result{ID: id, Score: score, Payload: payload})
	}
	if err := rows.Err(); err != nil {
		return nil, &SearchError{Collection: collection, Err: err}
	}
	return results, nil
}

// Close implements Store. The pool belongs to the application, which closes
// it during shutdown.
func (p *Postgres) Close() error { return nil }

// lookupCollection resolves a collection's declared parameters, preferring
// the in-process cache and falling back to the registry for collections
// created by earlier processes.
func (p *Postgres) lookupCollection(ctx context.Context, collection string) (collectionInfo, error) {
	p.mu.RLock()
	info, ok := p.collections[collection]
	p.mu.RUnlock()
	if ok {
		return info, nil
	}

	if err := checkCollectionName(collection); err != nil {
		return collectionInfo{}, err
	}
	var (
		dims int
		raw  string
	)
	err := p.pool.QueryRow(ctx,
		`SELECT dims, metric FROM rc_collections WHERE name = $1`, collection).Scan(&dims, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return collectionInfo{}, fmt.Errorf("collection does not exist")
	}
	if err != nil {
		return collectionInfo{}, err
	}

	info = collectionInfo{dims: dims, metric: Metric(raw)}
	p.mu.Lock()
	p.collections[collection] = info
	p.mu.Unlock()
	return info, nil
}

func tableName(collection string) string {
	return pgx.Identifier{"rc_" + collection}.Sanitize()
}

func indexName(collection string) string {
	return pgx.Identifier{"rc_" + collection + "_embedding_idx"}.Sanitize()
}

// checkCollectionName guards the identifiers spliced into DDL. Config
// validates names too; this keeps the store safe on its own.
func checkCollectionName(name string) error {
	if name == "" || len(name) > 48 {
		return fmt.Errorf("invalid collection name %q", name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("invalid collection name %q", name)
		}
	}
	return nil
}
