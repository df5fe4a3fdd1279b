package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragcache/ragcache/db"
	"github.com/ragcache/ragcache/internal/cache"
	"github.com/ragcache/ragcache/internal/config"
	"github.com/ragcache/ragcache/internal/embedding"
	"github.com/ragcache/ragcache/internal/generation"
	"github.com/ragcache/ragcache/internal/knowledge"
	"github.com/ragcache/ragcache/internal/log"
	"github.com/ragcache/ragcache/internal/observability"
	"github.com/ragcache/ragcache/internal/rag"
	"github.com/ragcache/ragcache/internal/vectorstore"
)

// Database pool tuning. Requests hold a connection only for the duration of
// one search or upsert, so a small pool with regular recycling is enough.
const (
	dbMaxConns          = 10
	dbMinConns          = 2
	dbMaxConnLifetime   = 30 * time.Minute
	dbMaxConnIdleTime   = 5 * time.Minute
	dbHealthCheckPeriod = 1 * time.Minute
	dbPingTimeout       = 5 * time.Second
)

// tracerShutdownTimeout bounds the final span flush during teardown.
const tracerShutdownTimeout = 5 * time.Second

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.New(log.Config{})
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if cfg.Tracing.Enabled {
		otelCleanup, err := provideOtelShutdown(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.cleanups = append(a.cleanups, otelCleanup)
	}

	store, pool, storeCleanup, err := provideStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.Pool = pool
	a.cleanups = append(a.cleanups, storeCleanup)

	a.Embedder = embedding.NewOpenAI(embedding.Config{
		APIBase:    cfg.OpenAIAPIBase,
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.Dimensions,
	})
	a.Generator = generation.NewOpenAI(generation.Config{
		APIBase: cfg.OpenAIAPIBase,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.ChatModel,
	})

	a.Cache = cache.New(store, cfg.CacheCollectionName(), cfg.CacheMaxDistance, logger)
	a.Retriever = knowledge.NewRetriever(store, cfg.KnowledgeCollection)
	a.Indexer = knowledge.NewIndexer(store, cfg.KnowledgeCollection)
	a.Pipeline = rag.New(a.Embedder, a.Cache, a.Retriever, a.Generator, logger)

	logger.Debug("application initialized",
		"store_provider", cfg.StoreProvider,
		"knowledge_collection", cfg.KnowledgeCollection,
		"cache_collection", cfg.CacheCollectionName(),
	)

	return a, nil
}

// EnsureCollections declares the knowledge and cache collections. Creation
// is idempotent, so every command calls this on startup.
//
// Knowledge uses cosine similarity so documents rank by direction rather
// than magnitude. The cache uses Euclidean distance, the unit the optional
// cache_max_distance threshold is expressed in.
func (a *App) EnsureCollections(ctx context.Context) error {
	cfg := a.Config
	if err := a.Store.EnsureCollection(ctx, cfg.KnowledgeCollection, cfg.Dimensions, vectorstore.MetricCosine); err != nil {
		return fmt.Errorf("ensuring knowledge collection: %w", err)
	}
	if err := a.Store.EnsureCollection(ctx, cfg.CacheCollectionName(), cfg.Dimensions, vectorstore.MetricEuclidean); err != nil {
		return fmt.Errorf("ensuring cache collection: %w", err)
	}
	return nil
}

// provideOtelShutdown installs the OTLP trace exporter and returns a cleanup
// that flushes pending spans within a bounded timeout.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) (func(), error) {
	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}, nil
}

// provideStore builds the configured vector store backend. The returned pool
// is non-nil only for the postgres provider.
func provideStore(ctx context.Context, cfg *config.Config, logger log.Logger) (vectorstore.Store, *pgxpool.Pool, func(), error) {
	switch cfg.StoreProvider {
	case config.ProviderQdrant:
		store := vectorstore.NewQdrant(cfg.QdrantURL, cfg.QdrantAPIKey, logger)
		return store, nil, storeCloser(store, logger), nil

	case config.ProviderPostgres:
		pool, poolCleanup, err := provideDBPool(ctx, cfg, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return vectorstore.NewPostgres(pool, logger), pool, poolCleanup, nil

	case config.ProviderMemory:
		store := vectorstore.NewMemory()
		return store, nil, storeCloser(store, logger), nil

	default:
		// Load validates the provider, so this is only reachable with a
		// hand-built Config.
		return nil, nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.StoreProvider)
	}
}

func storeCloser(store vectorstore.Store, logger log.Logger) func() {
	return func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing vector store", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL, logger); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = dbMaxConns
	poolCfg.MinConns = dbMinConns
	poolCfg.MaxConnLifetime = dbMaxConnLifetime
	poolCfg.MaxConnIdleTime = dbMaxConnIdleTime
	poolCfg.HealthCheckPeriod = dbHealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, dbPingTimeout)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	cleanup := func() {
		pool.Close()
	}

	return pool, cleanup, nil
}
