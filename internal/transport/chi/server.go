// Package chi exposes the retrieval engine over HTTP: document ingest and
// lifecycle, the retrieval pipeline, and the operational endpoints.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/finhive/docrank/internal/domain"
	domretr "github.com/finhive/docrank/internal/domain/retrieval"
	"github.com/finhive/docrank/internal/domain/search/filter"
	documentuc "github.com/finhive/docrank/internal/usecase/document"
	healthuc "github.com/finhive/docrank/internal/usecase/health"
	retrievaluc "github.com/finhive/docrank/internal/usecase/retrieval"
)

// Error codes returned in the JSON error body.
const (
	codeBadRequest            = "bad_request"
	codeValidationFailed      = "validation_failed"
	codeDocumentNotFound      = "document_not_found"
	codeVectorDimMismatch     = "vector_dim_mismatch"
	codeMalformedQuery        = "malformed_query"
	codeRateLimited           = "rate_limited"
	codeEmbeddingAuthFailed   = "embedding_auth_failed"
	codeEmbeddingProvider     = "embedding_provider_error"
	codeNoEmbeddingProvider   = "no_embedding_provider"
	codeVectorSearchMissing   = "vector_search_not_supported"
	codeIndexMissing          = "index_missing"
	codePermissionDenied      = "permission_denied"
	codeInternalError         = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers for the retrieval API.
type Server struct {
	documents     *documentuc.Service
	retrieval     *retrievaluc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	documents *documentuc.Service,
	retrieval *retrievaluc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		documents: documents,
		retrieval: retrieval,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, codeDocumentNotFound),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch),
		sentinelHandler(domain.ErrMalformedQuery, http.StatusBadRequest, codeMalformedQuery),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrAuthFailed, http.StatusBadGateway, codeEmbeddingAuthFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrNoEmbeddingProvider, http.StatusServiceUnavailable, codeNoEmbeddingProvider),
		sentinelHandler(domain.ErrVectorSearchNotSupported, http.StatusNotImplemented, codeVectorSearchMissing),
		sentinelHandler(domain.ErrIndexMissing, http.StatusServiceUnavailable, codeIndexMissing),
		sentinelHandler(domain.ErrPermissionDenied, http.StatusForbidden, codePermissionDenied),
	}
	return s
}

// Routes registers the API routes on the given router. Middleware is the
// caller's concern; the composition root owns the full chain.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1/tenants/{tenantID}", func(r chi.Router) {
		r.Post("/documents", s.IngestDocument)
		r.Get("/documents/{docID}", s.GetDocument)
		r.Delete("/documents/{docID}", s.DeleteDocument)
		r.Post("/retrieve", s.Retrieve)
		r.Post("/search/hybrid", s.HybridSearch)
	})
}

type ingestRequest struct {
	ID        string `json:"id,omitempty"`
	Content   string `json:"content"`
	DocType   string `json:"doc_type,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
}

type documentResponse struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	DocType   string    `json:"doc_type,omitempty"`
	CompanyID string    `json:"company_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	HasVector *bool     `json:"has_vector,omitempty"`
}

// IngestDocument handles POST /v1/tenants/{tenantID}/documents.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Document content is required")
		return
	}

	doc, err := s.documents.Ingest(r.Context(), tenantID, req.ID, req.Content, req.DocType, req.CompanyID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	hasVector, vecErr := s.documents.HasVector(r.Context(), tenantID, doc.ID())

	resp := documentResponse{
		ID:        doc.ID(),
		Content:   doc.Content(),
		DocType:   doc.DocType(),
		CompanyID: doc.CompanyID(),
		CreatedAt: doc.CreatedAt(),
	}
	if vecErr == nil {
		resp.HasVector = &hasVector
	}

	w.Header().Set("Location", fmt.Sprintf("/v1/tenants/%s/documents/%s", tenantID, doc.ID()))
	writeJSON(w, http.StatusCreated, resp)
}

// GetDocument handles GET /v1/tenants/{tenantID}/documents/{docID}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	docID := chi.URLParam(r, "docID")

	doc, err := s.documents.Get(r.Context(), tenantID, docID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, documentResponse{
		ID:        doc.ID(),
		Content:   doc.Content(),
		DocType:   doc.DocType(),
		CompanyID: doc.CompanyID(),
		CreatedAt: doc.CreatedAt(),
	})
}

// DeleteDocument handles DELETE /v1/tenants/{tenantID}/documents/{docID}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	docID := chi.URLParam(r, "docID")

	if err := s.documents.Delete(r.Context(), tenantID, docID); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type filterRequest struct {
	CompanyID string     `json:"company_id,omitempty"`
	DocType   string     `json:"doc_type,omitempty"`
	DateFrom  *time.Time `json:"date_from,omitempty"`
	DateTo    *time.Time `json:"date_to,omitempty"`
}

type turnRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type retrieveRequest struct {
	Query           string         `json:"query"`
	TopK            int            `json:"top_k,omitempty"`
	MinSimilarity   *float64       `json:"min_similarity,omitempty"`
	Filters         *filterRequest `json:"filters,omitempty"`
	IncludeMetadata bool           `json:"include_metadata,omitempty"`
	UseHybridSearch bool           `json:"use_hybrid_search,omitempty"`
	UseReranking    bool           `json:"use_reranking,omitempty"`
	History         []turnRequest  `json:"conversation_history,omitempty"`
}

type metadataResponse struct {
	DocType   string `json:"doc_type,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

type retrievedDocResponse struct {
	ID          string            `json:"id"`
	Score       float64           `json:"score"`
	Similarity  float64           `json:"similarity,omitempty"`
	RerankScore float64           `json:"rerank_score,omitempty"`
	Reranked    bool              `json:"reranked,omitempty"`
	Snippet     string            `json:"snippet"`
	Metadata    *metadataResponse `json:"metadata,omitempty"`
}

type retrieveResponse struct {
	Documents      []retrievedDocResponse `json:"documents"`
	QueryEmbedding []float32              `json:"query_embedding,omitempty"`
	EffectiveQuery string                 `json:"effective_query"`
	TotalResults   int                    `json:"total_results"`
	HybridResults  int                    `json:"hybrid_results,omitempty"`
}

// Retrieve handles POST /v1/tenants/{tenantID}/retrieve. Conversation
// history, when present, routes through query expansion.
func (s *Server) Retrieve(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Query is required")
		return
	}

	opts, err := optionsFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	var rctx *domretr.Context
	if len(opts.History()) > 0 {
		rctx, err = s.retrieval.RetrieveEnhancedContext(r.Context(), tenantID, req.Query, opts)
	} else {
		rctx, err = s.retrieval.RetrieveContext(r.Context(), tenantID, req.Query, opts)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, contextToResponse(rctx))
}

type hybridSearchRequest struct {
	Query         string         `json:"query"`
	TopK          int            `json:"top_k,omitempty"`
	MinSimilarity *float64       `json:"min_similarity,omitempty"`
	Filters       *filterRequest `json:"filters,omitempty"`
}

type hybridHitResponse struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Content string  `json:"content,omitempty"`
}

type hybridSearchResponse struct {
	Items []hybridHitResponse `json:"items"`
	Total int                 `json:"total"`
}

// HybridSearch handles POST /v1/tenants/{tenantID}/search/hybrid: the raw
// fused candidate list, without hydration or re-ranking.
func (s *Server) HybridSearch(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req hybridSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Query is required")
		return
	}

	opts, err := optionsFromRequest(retrieveRequest{
		Query:         req.Query,
		TopK:          req.TopK,
		MinSimilarity: req.MinSimilarity,
		Filters:       req.Filters,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	vec, err := s.retrieval.EmbedQuery(r.Context(), req.Query)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	fused, err := s.retrieval.HybridSearch(
		r.Context(), tenantID, req.Query, vec, opts.TopK(), opts.MinSimilarity(), opts.Filters(),
	)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]hybridHitResponse, len(fused))
	for i, hit := range fused {
		items[i] = hybridHitResponse{ID: hit.ID(), Score: hit.Score(), Content: hit.Content()}
	}
	writeJSON(w, http.StatusOK, hybridSearchResponse{Items: items, Total: len(items)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func optionsFromRequest(req retrieveRequest) (domretr.Options, error) {
	f, err := filterFromRequest(req.Filters)
	if err != nil {
		return domretr.Options{}, err
	}

	// minSimilarity absent selects the configured default floor.
	minSimilarity := -1.0
	if req.MinSimilarity != nil {
		minSimilarity = *req.MinSimilarity
	}

	history := make([]domretr.Turn, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, domretr.Turn{Role: t.Role, Content: t.Content})
	}

	return domretr.NewOptions(
		req.TopK, minSimilarity, f,
		req.IncludeMetadata, req.UseHybridSearch, req.UseReranking,
		history,
	)
}

func filterFromRequest(req *filterRequest) (filter.Filter, error) {
	if req == nil {
		return filter.Filter{}, nil
	}
	f, err := filter.New(req.CompanyID, req.DocType, req.DateFrom, req.DateTo)
	if err != nil {
		return filter.Filter{}, fmt.Errorf("parse filters: %w", err)
	}
	return f, nil
}

func contextToResponse(rctx *domretr.Context) retrieveResponse {
	docs := make([]retrievedDocResponse, len(rctx.Documents))
	for i, d := range rctx.Documents {
		docs[i] = retrievedDocResponse{
			ID:          d.ID,
			Score:       d.Score,
			Similarity:  d.Similarity,
			RerankScore: d.RerankScore,
			Reranked:    d.Reranked,
			Snippet:     d.Snippet,
		}
		if d.Metadata != nil {
			docs[i].Metadata = &metadataResponse{
				DocType:   d.Metadata.DocType,
				CompanyID: d.Metadata.CompanyID,
				CreatedAt: d.Metadata.CreatedAt,
			}
		}
	}
	return retrieveResponse{
		Documents:      docs,
		QueryEmbedding: rctx.QueryEmbedding,
		EffectiveQuery: rctx.EffectiveQuery,
		TotalResults:   rctx.TotalResults,
		HybridResults:  rctx.HybridResults,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentNotFound,
		domain.ErrVectorDimMismatch,
		domain.ErrMalformedQuery,
		domain.ErrRateLimited,
		domain.ErrAuthFailed,
		domain.ErrEmbeddingProviderError,
		domain.ErrNoEmbeddingProvider,
		domain.ErrVectorSearchNotSupported,
		domain.ErrIndexMissing,
		domain.ErrPermissionDenied,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
