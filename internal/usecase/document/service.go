// Package document handles document ingest and lifecycle: persisting the
// text record and triggering embedding generation.
package document

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domdoc "github.com/finhive/docrank/internal/domain/document"
)

// Service handles document ingest with automatic vectorization.
type Service struct {
	repo     Repository
	embedder Embedder
	logger   *zap.Logger
}

// New creates a document service. embedder may be nil; documents then
// ingest without a vector and are reachable through keyword search only.
func New(repo Repository, embedder Embedder, logger *zap.Logger) *Service {
	return &Service{repo: repo, embedder: embedder, logger: logger}
}

// Ingest stores a document and embeds it. A blank id gets a generated
// UUID. Embedding failure is logged and absorbed: the document stays
// available for lexical search, and a later re-ingest can fill the vector
// in. This is the one place a failure is intentionally swallowed.
func (s *Service) Ingest(
	ctx context.Context, tenantID, docID, content, docType, companyID string,
) (domdoc.Document, error) {
	if docID == "" {
		docID = uuid.NewString()
	}

	doc, err := domdoc.New(tenantID, docID, content, docType, companyID, time.Now().UTC())
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("build document: %w", err)
	}

	if err := s.repo.Upsert(ctx, &doc); err != nil {
		return domdoc.Document{}, fmt.Errorf("store document: %w", err)
	}

	if s.embedder != nil {
		if err := s.embedder.GenerateAndStore(ctx, tenantID, docID, content); err != nil {
			s.logger.Warn("Document stored without embedding",
				zap.String("tenant_id", tenantID),
				zap.String("document_id", docID),
				zap.Error(err),
			)
		}
	}

	return doc, nil
}

// Get retrieves a live document.
func (s *Service) Get(ctx context.Context, tenantID, docID string) (domdoc.Document, error) {
	doc, err := s.repo.FindByID(ctx, tenantID, docID)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// Delete soft-deletes a document; it disappears from search immediately.
func (s *Service) Delete(ctx context.Context, tenantID, docID string) error {
	if err := s.repo.SoftDelete(ctx, tenantID, docID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// HasVector reports whether a document carries an embedding.
func (s *Service) HasVector(ctx context.Context, tenantID, docID string) (bool, error) {
	return s.repo.HasVector(ctx, tenantID, docID)
}
