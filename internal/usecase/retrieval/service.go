// Package retrieval composes embedding, search, fusion, re-ranking, and
// hydration into the context-retrieval pipeline consumed by the chat layer.
package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	domretr "github.com/finhive/docrank/internal/domain/retrieval"
	"github.com/finhive/docrank/internal/domain/search/filter"
	"github.com/finhive/docrank/internal/domain/search/result"
	"github.com/finhive/docrank/internal/metrics"
)

// Pipeline defaults. Every external call carries its own timeout so one
// slow stage cannot consume the whole request budget.
const (
	DefaultSearchTimeout = 5 * time.Second
	DefaultExpandTimeout = 5 * time.Second
	DefaultRerankTimeout = 10 * time.Second

	// DefaultSnippetChars bounds the document text attached to each result.
	DefaultSnippetChars = 500
)

// Config holds orchestrator tuning knobs.
type Config struct {
	SearchTimeout time.Duration
	ExpandTimeout time.Duration
	RerankTimeout time.Duration
	SnippetChars  int
}

func (c *Config) applyDefaults() {
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = DefaultSearchTimeout
	}
	if c.ExpandTimeout <= 0 {
		c.ExpandTimeout = DefaultExpandTimeout
	}
	if c.RerankTimeout <= 0 {
		c.RerankTimeout = DefaultRerankTimeout
	}
	if c.SnippetChars <= 0 {
		c.SnippetChars = DefaultSnippetChars
	}
}

// Service is the retrieval orchestrator.
type Service struct {
	embedder queryEmbedder
	search   searcher
	docs     documentFinder
	expander expander
	reranker reranker
	cfg      Config
	logger   *zap.Logger
}

// New creates the retrieval orchestrator. expander and reranker may be
// nil; the corresponding stages are then skipped.
func New(
	embedder queryEmbedder,
	search searcher,
	docs documentFinder,
	exp expander,
	rr reranker,
	cfg Config,
	logger *zap.Logger,
) *Service {
	cfg.applyDefaults()
	return &Service{
		embedder: embedder,
		search:   search,
		docs:     docs,
		expander: exp,
		reranker: rr,
		cfg:      cfg,
		logger:   logger,
	}
}

// RetrieveContext runs the retrieval pipeline on the query as given,
// without conversational expansion.
func (s *Service) RetrieveContext(
	ctx context.Context, tenantID, query string, opts domretr.Options,
) (*domretr.Context, error) {
	return s.run(ctx, tenantID, query, query, opts)
}

// RetrieveEnhancedContext expands the query against conversation history
// before running the retrieval pipeline. Expansion failure degrades to the
// original query; it never blocks retrieval.
func (s *Service) RetrieveEnhancedContext(
	ctx context.Context, tenantID, query string, opts domretr.Options,
) (*domretr.Context, error) {
	effective := query
	if s.expander != nil && len(opts.History()) > 0 {
		start := time.Now()
		expandCtx, cancel := context.WithTimeout(ctx, s.cfg.ExpandTimeout)
		effective = s.expander.Expand(expandCtx, query, opts.History())
		cancel()
		metrics.RetrievalStageDuration.WithLabelValues("expand").Observe(time.Since(start).Seconds())
		if effective == query {
			metrics.RetrievalDegradedTotal.WithLabelValues("expand").Inc()
		}
	}
	return s.run(ctx, tenantID, query, effective, opts)
}

// EmbedQuery returns the cache-fronted embedding for a query, for callers
// driving HybridSearch directly.
func (s *Service) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := s.embedder.GetOrCompute(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

// HybridSearch runs semantic and keyword search concurrently and fuses the
// two ranked lists by RRF. The keyword branch degrades to "no lexical
// signal" on failure; a semantic failure fails the call, as semantic
// search is the one mandatory signal.
func (s *Service) HybridSearch(
	ctx context.Context, tenantID, query string, queryVector []float32,
	limit int, minSimilarity float64, f filter.Filter,
) ([]result.Result, error) {
	fused, _, err := s.hybridSearch(ctx, tenantID, query, queryVector, limit, minSimilarity, f)
	return fused, err
}

// hybridSearch additionally returns the raw cosine similarity per id from
// the semantic branch, which later stages need: the fused RRF score
// replaces Score, and the re-rank fallback derives from similarity.
func (s *Service) hybridSearch(
	ctx context.Context, tenantID, query string, queryVector []float32,
	limit int, minSimilarity float64, f filter.Filter,
) ([]result.Result, map[string]float64, error) {
	var (
		wg       sync.WaitGroup
		semantic []result.Result
		keyword  []result.Result
		semErr   error
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		start := time.Now()
		searchCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
		defer cancel()
		semantic, semErr = s.search.SearchSemantic(searchCtx, queryVector, tenantID, limit, minSimilarity, f)
		metrics.RetrievalStageDuration.WithLabelValues("semantic").Observe(time.Since(start).Seconds())
	}()

	go func() {
		defer wg.Done()
		start := time.Now()
		searchCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
		defer cancel()
		var err error
		keyword, err = s.search.SearchKeyword(searchCtx, query, tenantID, limit, f)
		metrics.RetrievalStageDuration.WithLabelValues("keyword").Observe(time.Since(start).Seconds())
		if err != nil {
			s.logger.Warn("Keyword search degraded to empty result", zap.Error(err))
			metrics.RetrievalDegradedTotal.WithLabelValues("keyword").Inc()
			keyword = nil
		}
	}()

	wg.Wait()

	if semErr != nil {
		return nil, nil, fmt.Errorf("hybrid search: %w", semErr)
	}

	sims := make(map[string]float64, len(semantic))
	for _, r := range semantic {
		sims[r.ID()] = r.Score()
	}

	start := time.Now()
	fused := fuseRRF([][]result.Result{semantic, keyword}, limit)
	metrics.RetrievalStageDuration.WithLabelValues("fuse").Observe(time.Since(start).Seconds())

	s.logger.Debug("Fused hybrid candidates",
		zap.Int("semantic", len(semantic)),
		zap.Int("keyword", len(keyword)),
		zap.Int("fused", len(fused)),
	)
	return fused, sims, nil
}

// run is the shared pipeline: embed, search (plain or hybrid), hydrate,
// re-rank, truncate.
func (s *Service) run(
	ctx context.Context, tenantID, query, effectiveQuery string, opts domretr.Options,
) (*domretr.Context, error) {
	mode := "semantic"
	if opts.UseHybridSearch() {
		mode = "hybrid"
	}

	rctx, err := s.runPipeline(ctx, tenantID, effectiveQuery, mode, opts)
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(mode, "error").Inc()
		return nil, err
	}
	rctx.EffectiveQuery = effectiveQuery
	metrics.RetrievalRequestsTotal.WithLabelValues(mode, "ok").Inc()

	s.logger.Info("Retrieved context",
		zap.String("tenant_id", tenantID),
		zap.String("mode", mode),
		zap.Int("results", rctx.TotalResults),
		zap.Bool("expanded", effectiveQuery != query),
	)
	return rctx, nil
}

func (s *Service) runPipeline(
	ctx context.Context, tenantID, query, mode string, opts domretr.Options,
) (*domretr.Context, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if len(query) > domretr.MaxQueryLength {
		return nil, fmt.Errorf("query exceeds %d bytes", domretr.MaxQueryLength)
	}

	start := time.Now()
	vec, err := s.embedder.GetOrCompute(ctx, query)
	metrics.RetrievalStageDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var (
		candidates  []result.Result
		sims        map[string]float64
		hybridCount int
	)
	if mode == "hybrid" {
		candidates, sims, err = s.hybridSearch(ctx, tenantID, query, vec, opts.TopK(), opts.MinSimilarity(), opts.Filters())
		if err != nil {
			return nil, err
		}
		hybridCount = len(candidates)
	} else {
		searchCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
		searchStart := time.Now()
		candidates, err = s.search.SearchSemantic(searchCtx, vec, tenantID, opts.TopK(), opts.MinSimilarity(), opts.Filters())
		cancel()
		metrics.RetrievalStageDuration.WithLabelValues("semantic").Observe(time.Since(searchStart).Seconds())
		if err != nil {
			return nil, fmt.Errorf("semantic search: %w", err)
		}
	}

	docs, err := s.hydrate(ctx, tenantID, candidates, sims, opts)
	if err != nil {
		return nil, err
	}

	if opts.UseReranking() && s.reranker != nil && s.reranker.Enabled() {
		rerankCtx, cancel := context.WithTimeout(ctx, s.cfg.RerankTimeout)
		rerankStart := time.Now()
		docs = s.reranker.Rerank(rerankCtx, query, docs)
		cancel()
		metrics.RetrievalStageDuration.WithLabelValues("rerank").Observe(time.Since(rerankStart).Seconds())
	}

	if len(docs) > opts.TopK() {
		docs = docs[:opts.TopK()]
	}

	return &domretr.Context{
		Documents:      docs,
		QueryEmbedding: vec,
		TotalResults:   len(docs),
		HybridResults:  hybridCount,
	}, nil
}

// hydrate converts ranked candidates into retrieval documents with a
// bounded snippet and optional metadata. Candidates whose stored fields
// did not come back with the search hit are backfilled from the document
// store in one batched lookup.
func (s *Service) hydrate(
	ctx context.Context, tenantID string, candidates []result.Result,
	sims map[string]float64, opts domretr.Options,
) ([]domretr.Document, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() {
		metrics.RetrievalStageDuration.WithLabelValues("hydrate").Observe(time.Since(start).Seconds())
	}()

	var missing []string
	for _, c := range candidates {
		if c.Content() == "" {
			missing = append(missing, c.ID())
		}
	}

	backfill := make(map[string]backfilled, len(missing))
	if len(missing) > 0 {
		found, err := s.docs.FindByIDs(ctx, tenantID, missing)
		if err != nil {
			return nil, fmt.Errorf("hydrate candidates: %w", err)
		}
		for _, d := range found {
			backfill[d.ID()] = backfilled{
				content:   d.Content(),
				docType:   d.DocType(),
				companyID: d.CompanyID(),
				createdAt: d.CreatedAt().Unix(),
			}
		}
	}

	docs := make([]domretr.Document, 0, len(candidates))
	for _, c := range candidates {
		content := c.Content()
		docType := c.DocType()
		companyID := c.CompanyID()
		createdAt := c.CreatedAt()
		if content == "" {
			if b, ok := backfill[c.ID()]; ok {
				content, docType, companyID, createdAt = b.content, b.docType, b.companyID, b.createdAt
			}
		}

		similarity := c.Score()
		if sims != nil {
			similarity = sims[c.ID()]
		}
		doc := domretr.Document{
			ID:         c.ID(),
			Score:      c.Score(),
			Similarity: similarity,
			Snippet:    truncate(content, s.cfg.SnippetChars),
		}
		if opts.IncludeMetadata() {
			doc.Metadata = &domretr.Metadata{
				DocType:   docType,
				CompanyID: companyID,
				CreatedAt: createdAt,
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

type backfilled struct {
	content   string
	docType   string
	companyID string
	createdAt int64
}

// truncate cuts text at limit bytes, backing up to a rune boundary so a
// multibyte character is never split mid-sequence.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}
