// Package ingest seeds the knowledge collection from CSV files and web
// pages. Documents are embedded in batches and written through the
// knowledge indexer; a cross-process lock keeps concurrent runs from
// interleaving writes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"golang.org/x/time/rate"

	"github.com/ragcache/ragcache/internal/embedding"
	"github.com/ragcache/ragcache/internal/knowledge"
	"github.com/ragcache/ragcache/internal/log"
)

// DefaultBatchSize is the number of documents sent per embedding request.
const DefaultBatchSize = 64

// ErrLocked indicates another ingestion holds the cross-process lock.
var ErrLocked = errors.New("another ingestion is already running")

// Config for an Ingestor.
type Config struct {
	// Embedder turns document batches into vectors. Required.
	Embedder embedding.Client
	// Indexer writes embedded documents to the knowledge collection. Required.
	Indexer *knowledge.Indexer
	// Logger defaults to a plain text logger when nil.
	Logger log.Logger
	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int
	// RateLimit throttles embedding batches per second. Zero means unlimited.
	RateLimit float64
	// Progress receives per-batch progress. Nil disables reporting.
	Progress ProgressReporter
}

// Ingestor embeds documents and populates the knowledge collection.
type Ingestor struct {
	embedder  embedding.Client
	indexer   *knowledge.Indexer
	logger    log.Logger
	batchSize int
	limiter   *rate.Limiter
	progress  ProgressReporter
}

// New validates cfg and creates an Ingestor.
func New(cfg Config) (*Ingestor, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("ingest: embedder is required")
	}
	if cfg.Indexer == nil {
		return nil, errors.New("ingest: indexer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Config{})
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Ingestor{
		embedder:  cfg.Embedder,
		indexer:   cfg.Indexer,
		logger:    logger,
		batchSize: batchSize,
		limiter:   limiter,
		progress:  cfg.Progress,
	}, nil
}

// Files ingests the CSV files matched by the given glob patterns. The first
// column of every record after the header row is taken as one document.
//
// Returns the number of documents written. On error the count reflects the
// batches committed before the failure.
func (i *Ingestor) Files(ctx context.Context, patterns []string) (int, error) {
	release, err := i.acquireLock()
	if err != nil {
		return 0, err
	}
	defer release()

	paths, err := ExpandGlobs(patterns)
	if err != nil {
		return 0, err
	}

	var docs []string
	for _, path := range paths {
		fileDocs, err := ReadCSV(path)
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", path, err)
		}
		i.logger.Debug("read source file", "path", path, "documents", len(fileDocs))
		docs = append(docs, fileDocs...)
	}

	return i.run(ctx, docs)
}

// URL ingests the readable text of a web page. The page is reduced to its
// article content and split into paragraphs, each becoming one document.
func (i *Ingestor) URL(ctx context.Context, pageURL string) (int, error) {
	release, err := i.acquireLock()
	if err != nil {
		return 0, err
	}
	defer release()

	docs, title, err := fetchArticle(pageURL)
	if err != nil {
		return 0, err
	}
	i.logger.Debug("fetched page", "url", pageURL, "title", title, "documents", len(docs))

	return i.run(ctx, docs)
}

// run embeds docs in batches and writes each batch before starting the
// next, so a failure never leaves vectors without their documents.
func (i *Ingestor) run(ctx context.Context, docs []string) (int, error) {
	if len(docs) == 0 {
		i.logger.Info("nothing to ingest")
		return 0, nil
	}

	if i.progress != nil {
		i.progress.Start(len(docs))
		defer i.progress.Finish()
	}

	written := 0
	for start := 0; start < len(docs); start += i.batchSize {
		end := min(start+i.batchSize, len(docs))
		batch := docs[start:end]

		if i.limiter != nil {
			if err := i.limiter.Wait(ctx); err != nil {
				return written, fmt.Errorf("waiting on rate limit: %w", err)
			}
		}

		vectors, err := i.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return written, fmt.Errorf("embedding batch at %d: %w", start, err)
		}
		if err := i.indexer.Add(ctx, batch, vectors); err != nil {
			return written, fmt.Errorf("indexing batch at %d: %w", start, err)
		}

		written += len(batch)
		if i.progress != nil {
			i.progress.Increment(len(batch))
		}
	}

	i.logger.Info("ingestion complete", "documents", written)
	return written, nil
}

// acquireLock takes the cross-process ingest lock without blocking.
func (i *Ingestor) acquireLock() (release func(), err error) {
	path, err := lockPath()
	if err != nil {
		return nil, err
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring ingest lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			i.logger.Warn("releasing ingest lock", "error", err)
		}
	}, nil
}

// lockPath resolves the lock file under the user cache directory, creating
// the parent as needed.
func lockPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving cache directory: %w", err)
	}
	d := filepath.Join(dir, "ragcache")
	if err := os.MkdirAll(d, 0o750); err != nil {
		return "", fmt.Errorf("creating lock directory: %w", err)
	}
	return filepath.Join(d, "ingest.lock"), nil
}
