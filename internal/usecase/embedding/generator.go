// Package embedding turns document and query text into validated vectors:
// chunking long text, retrying transient provider failures, and persisting
// document vectors. This package is the only writer of vector records.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/finhive/docrank/internal/domain"
	"github.com/finhive/docrank/internal/metrics"
)

// Defaults for the retry policy and chunk sizing.
const (
	DefaultChunkTokens = 2000
	DefaultMaxRetries  = 3
	DefaultBaseDelay   = 500 * time.Millisecond
)

// VectorStore persists validated document vectors.
type VectorStore interface {
	StoreVector(ctx context.Context, tenantID, docID string, vector []float32, model string) error
}

// Config holds generator tuning knobs.
type Config struct {
	ChunkTokens  int
	OverlapChars int
	MaxRetries   int
	BaseDelay    time.Duration
}

func (c *Config) applyDefaults() {
	if c.ChunkTokens <= 0 {
		c.ChunkTokens = DefaultChunkTokens
	}
	if c.OverlapChars <= 0 {
		c.OverlapChars = DefaultOverlapChars
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
}

// Generator produces and persists embeddings.
type Generator struct {
	provider domain.Embedder
	store    VectorStore
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger
}

// New creates an embedding generator. The provider may be nil, in which
// case every operation fails with domain.ErrNoEmbeddingProvider.
func New(provider domain.Embedder, store VectorStore, cfg Config, logger *zap.Logger) *Generator {
	cfg.applyDefaults()
	return &Generator{
		provider: provider,
		store:    store,
		cfg:      cfg,
		sleep:    sleepCtx,
		logger:   logger,
	}
}

// WithSleep overrides the backoff sleeper, for tests.
func (g *Generator) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Generator {
	g.sleep = sleep
	return g
}

// Generate embeds a single text, chunking when the estimated token count
// exceeds the configured chunk size. A multi-chunk text yields the
// element-wise mean of its chunk vectors. The returned vector is validated
// against the provider's declared dimensionality.
func (g *Generator) Generate(ctx context.Context, text string) ([]float32, error) {
	if g.provider == nil {
		return nil, domain.ErrNoEmbeddingProvider
	}
	if text == "" {
		return nil, domain.NewVectorValidationError("empty input text", 0, 0)
	}

	var vec []float32
	if EstimateTokens(text) <= g.cfg.ChunkTokens {
		res, err := g.embedWithRetry(ctx, text)
		if err != nil {
			return nil, err
		}
		vec = res.Embedding
	} else {
		chunks := ChunkText(text, g.cfg.ChunkTokens*bytesPerToken, g.cfg.OverlapChars)
		g.logger.Debug("Chunking long text for embedding",
			zap.Int("estimated_tokens", EstimateTokens(text)),
			zap.Int("chunks", len(chunks)),
		)

		vectors := make([][]float32, 0, len(chunks))
		for _, chunk := range chunks {
			res, err := g.embedWithRetry(ctx, chunk)
			if err != nil {
				return nil, err
			}
			vectors = append(vectors, res.Embedding)
		}
		vec = meanPool(vectors)
	}

	if err := g.validate(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// GenerateBatch embeds multiple texts, preserving input order. Texts that
// fit a single chunk share one provider batch call; longer texts follow the
// same chunking rules as Generate.
func (g *Generator) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if g.provider == nil {
		return nil, domain.ErrNoEmbeddingProvider
	}

	vectors := make([][]float32, len(texts))

	var short []string
	var shortIdx []int
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("embed text [%d]: %w", i, domain.NewVectorValidationError("empty input text", 0, 0))
		}
		if EstimateTokens(text) <= g.cfg.ChunkTokens {
			short = append(short, text)
			shortIdx = append(shortIdx, i)
			continue
		}
		vec, err := g.Generate(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text [%d]: %w", i, err)
		}
		vectors[i] = vec
	}

	if len(short) > 0 {
		res, err := g.batchEmbedWithRetry(ctx, short)
		if err != nil {
			return nil, err
		}
		if len(res.Embeddings) != len(short) {
			return nil, fmt.Errorf("batch embed: got %d vectors for %d texts", len(res.Embeddings), len(short))
		}
		for j, vec := range res.Embeddings {
			if err := g.validate(vec); err != nil {
				return nil, fmt.Errorf("embed text [%d]: %w", shortIdx[j], err)
			}
			vectors[shortIdx[j]] = vec
		}
	}
	return vectors, nil
}

// GenerateAndStore embeds a document's text and persists the vector keyed
// by document id. The error return lets the ingest caller decide to absorb
// it: embedding is an enrichment, not a prerequisite, for document
// availability.
func (g *Generator) GenerateAndStore(ctx context.Context, tenantID, docID, text string) error {
	vec, err := g.Generate(ctx, text)
	if err != nil {
		return fmt.Errorf("generate embedding for %s: %w", docID, err)
	}

	if err := g.store.StoreVector(ctx, tenantID, docID, vec, g.provider.ModelName()); err != nil {
		return fmt.Errorf("persist embedding for %s: %w", docID, err)
	}

	g.logger.Debug("Stored document embedding",
		zap.String("tenant_id", tenantID),
		zap.String("document_id", docID),
		zap.Int("dimensions", len(vec)),
	)
	return nil
}

// Dimensions returns the provider's declared dimensionality, 0 without a provider.
func (g *Generator) Dimensions() int {
	if g.provider == nil {
		return 0
	}
	return g.provider.Dimensions()
}

// embedWithRetry retries transient provider failures with exponential
// backoff (baseDelay * 2^attempt). Auth failures and dimension mismatches
// fail immediately.
func (g *Generator) embedWithRetry(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var lastErr error

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.cfg.BaseDelay * (1 << (attempt - 1))
			if err := g.sleep(ctx, delay); err != nil {
				return domain.EmbeddingResult{}, fmt.Errorf("embed backoff: %w", err)
			}
			metrics.EmbeddingRetriesTotal.WithLabelValues(providerLabel(g.provider), g.provider.ModelName()).Inc()
		}

		res, err := g.provider.Embed(ctx, text)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !domain.IsRetryable(err) {
			g.logger.Error("Embedding failed with non-transient error", zap.Error(err))
			return domain.EmbeddingResult{}, err
		}

		g.logger.Warn("Embedding attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", g.cfg.MaxRetries+1),
			zap.Error(err),
		)
	}

	return domain.EmbeddingResult{}, fmt.Errorf("embed after %d attempts: %w", g.cfg.MaxRetries+1, lastErr)
}

// batchEmbedWithRetry applies the single-text retry policy to a whole batch,
// routing through the provider's native batch API when it has one and
// falling back to per-text Embed otherwise.
func (g *Generator) batchEmbedWithRetry(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	var lastErr error

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.cfg.BaseDelay * (1 << (attempt - 1))
			if err := g.sleep(ctx, delay); err != nil {
				return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed backoff: %w", err)
			}
			metrics.EmbeddingRetriesTotal.WithLabelValues(providerLabel(g.provider), g.provider.ModelName()).Inc()
		}

		res, err := g.batchEmbed(ctx, texts)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !domain.IsRetryable(err) {
			g.logger.Error("Batch embedding failed with non-transient error", zap.Error(err))
			return domain.BatchEmbeddingResult{}, err
		}

		g.logger.Warn("Batch embedding attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", g.cfg.MaxRetries+1),
			zap.Error(err),
		)
	}

	return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed after %d attempts: %w", g.cfg.MaxRetries+1, lastErr)
}

func (g *Generator) batchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := g.provider.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, g.provider, texts)
}

// validate rejects a vector before it can be persisted or searched with.
func (g *Generator) validate(vec []float32) error {
	if len(vec) == 0 {
		return domain.NewVectorValidationError("empty vector", 0, g.provider.Dimensions())
	}
	if want := g.provider.Dimensions(); want > 0 && len(vec) != want {
		return domain.NewVectorValidationError("dimension mismatch", len(vec), want)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return domain.NewVectorValidationError(
				fmt.Sprintf("non-finite component at index %d", i), len(vec), g.provider.Dimensions(),
			)
		}
	}
	return nil
}

// meanPool returns the element-wise mean of the given vectors.
func meanPool(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	if len(vectors) == 1 {
		return vectors[0]
	}

	dim := len(vectors[0])
	sums := make([]float64, dim)
	for _, vec := range vectors {
		for i, v := range vec {
			if i < dim {
				sums[i] += float64(v)
			}
		}
	}

	mean := make([]float32, dim)
	n := float64(len(vectors))
	for i, s := range sums {
		mean[i] = float32(s / n)
	}
	return mean
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func providerLabel(e domain.Embedder) string {
	if e == nil {
		return "none"
	}
	return "openai"
}
