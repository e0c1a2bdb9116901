package document

import (
	"context"

	domdoc "github.com/finhive/docrank/internal/domain/document"
)

// Repository defines the storage contract for documents.
type Repository interface {
	Upsert(ctx context.Context, doc *domdoc.Document) error
	FindByID(ctx context.Context, tenantID, docID string) (domdoc.Document, error)
	SoftDelete(ctx context.Context, tenantID, docID string) error
	HasVector(ctx context.Context, tenantID, docID string) (bool, error)
}

// Embedder vectorizes and persists a document's embedding.
type Embedder interface {
	GenerateAndStore(ctx context.Context, tenantID, docID, text string) error
}
