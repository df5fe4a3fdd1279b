// Package rag sequences the answer pipeline: embed the prompt, probe the
// semantic cache, and on a miss retrieve context, generate an answer, and
// populate the cache.
package rag

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ragcache/ragcache/internal/cache"
	"github.com/ragcache/ragcache/internal/embedding"
	"github.com/ragcache/ragcache/internal/generation"
	"github.com/ragcache/ragcache/internal/knowledge"
	"github.com/ragcache/ragcache/internal/log"
)

// Pipeline runs the end-to-end answer flow. All collaborators are shared,
// thread-safe clients; the pipeline itself holds no per-request state, so a
// single instance serves all requests.
type Pipeline struct {
	embedder  embedding.Client
	cache     *cache.Cache
	retriever *knowledge.Retriever
	generator generation.Client
	logger    log.Logger
	tracer    trace.Tracer
}

// New wires the pipeline stages together.
func New(embedder embedding.Client, c *cache.Cache, retriever *knowledge.Retriever, generator generation.Client, logger log.Logger) *Pipeline {
	return &Pipeline{
		embedder:  embedder,
		cache:     c,
		retriever: retriever,
		generator: generator,
		logger:    logger,
		tracer:    otel.Tracer("ragcache/rag"),
	}
}

// Answer runs the pipeline for one prompt. Stages run strictly sequentially;
// each stage's input is the previous stage's output.
//
// A cache lookup failure is treated as a miss so a degraded cache never
// blocks answering. A cache store failure fails the request even though an
// answer was already generated: the next identical prompt would regenerate
// and retry the write, and surfacing the error keeps a broken cache from
// going unnoticed.
func (p *Pipeline) Answer(ctx context.Context, prompt string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "rag.answer")
	defer span.End()

	vector, err := p.embed(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("embedding prompt: %w", err)
	}

	if answer, ok := p.cacheLookup(ctx, vector); ok {
		span.SetAttributes(attribute.Bool("rag.cache_hit", true))
		p.logger.Debug("cache hit")
		return answer, nil
	}
	span.SetAttributes(attribute.Bool("rag.cache_hit", false))

	docContext, err := p.retrieve(ctx, vector)
	if err != nil {
		return "", fmt.Errorf("retrieving context: %w", err)
	}

	answer, err := p.generate(ctx, prompt, docContext)
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}

	if err := p.cacheStore(ctx, vector, answer); err != nil {
		return "", fmt.Errorf("caching answer: %w", err)
	}
	return answer, nil
}

func (p *Pipeline) embed(ctx context.Context, prompt string) ([]float32, error) {
	ctx, span := p.tracer.Start(ctx, "rag.embed")
	defer span.End()
	return p.embedder.Embed(ctx, prompt)
}

// cacheLookup is fail-open: any error counts as a miss and the pipeline
// proceeds to retrieval.
func (p *Pipeline) cacheLookup(ctx context.Context, vector []float32) (string, bool) {
	ctx, span := p.tracer.Start(ctx, "rag.cache_lookup")
	defer span.End()

	answer, ok, err := p.cache.Lookup(ctx, vector)
	if err != nil {
		p.logger.Warn("cache lookup failed, treating as miss", "error", err)
		return "", false
	}
	return answer, ok
}

func (p *Pipeline) retrieve(ctx context.Context, vector []float32) (string, error) {
	ctx, span := p.tracer.Start(ctx, "rag.retrieve")
	defer span.End()
	return p.retriever.Retrieve(ctx, vector)
}

func (p *Pipeline) generate(ctx context.Context, prompt, docContext string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "rag.generate")
	defer span.End()
	return p.generator.Generate(ctx, prompt, docContext)
}

func (p *Pipeline) cacheStore(ctx context.Context, vector []float32, answer string) error {
	ctx, span := p.tracer.Start(ctx, "rag.cache_store")
	defer span.End()
	return p.cache.Store(ctx, vector, answer)
}
