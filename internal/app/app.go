// Package app provides application initialization and dependency wiring.
//
// Setup builds every service the commands need from a validated Config and
// returns them on an App. Construction order follows dependency order:
// tracing, vector store, model clients, then the pipeline on top. Cleanup
// runs in reverse via Close.
package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragcache/ragcache/internal/cache"
	"github.com/ragcache/ragcache/internal/config"
	"github.com/ragcache/ragcache/internal/embedding"
	"github.com/ragcache/ragcache/internal/generation"
	"github.com/ragcache/ragcache/internal/knowledge"
	"github.com/ragcache/ragcache/internal/log"
	"github.com/ragcache/ragcache/internal/rag"
	"github.com/ragcache/ragcache/internal/vectorstore"
)

// App holds the initialized services.
type App struct {
	Config *config.Config
	Logger log.Logger

	// Store is the configured vector store. Pool is non-nil only for the
	// postgres provider; the readiness probe uses it when available.
	Store vectorstore.Store
	Pool  *pgxpool.Pool

	Embedder  embedding.Client
	Generator generation.Client
	Cache     *cache.Cache
	Retriever *knowledge.Retriever
	Indexer   *knowledge.Indexer
	Pipeline  *rag.Pipeline

	// cleanups run in reverse registration order on Close.
	cleanups []func()
}

// Close releases resources acquired during Setup. Safe to call more than
// once; cleanups only run the first time.
func (a *App) Close() error {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
	return nil
}
