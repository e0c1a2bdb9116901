// Package document persists the engine-owned document records: source text
// plus metadata in one hash per document, with the embedding vector stored
// alongside by the embedding pipeline.
package document

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/finhive/docrank/internal/db"
	"github.com/finhive/docrank/internal/domain"
	domdoc "github.com/finhive/docrank/internal/domain/document"
)

// Key layout. One FT index covers every tenant; scoping happens via the
// tenant_id TAG, never via key pattern matching.
const (
	KeyPrefix = "docrank:doc:"
	IndexName = "docrank:documents:idx"
)

// Hash field names shared with the FT index schema.
const (
	fieldTenantID  = "tenant_id"
	fieldContent   = "content"
	fieldDocType   = "doc_type"
	fieldCompanyID = "company_id"
	fieldCreatedAt = "created_at"
	fieldDeleted   = "deleted"

	fieldEmbedding = "embedding"
	fieldEmbModel  = "emb_model"
	fieldEmbAt     = "emb_created_at"
)

// store is the consumer interface for document persistence.
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	HExistsField(ctx context.Context, key, field string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Repo implements document persistence over a hash store.
type Repo struct {
	store store
	now   func() time.Time
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s, now: time.Now}
}

// WithClock overrides the timestamp source, for tests.
func (r *Repo) WithClock(now func() time.Time) *Repo {
	r.now = now
	return r
}

// Key returns the storage key for a tenant's document.
func Key(tenantID, docID string) string {
	return KeyPrefix + tenantID + ":" + docID
}

// Upsert writes the document text and metadata. The embedding fields are
// left untouched; the embedding pipeline owns them.
func (r *Repo) Upsert(ctx context.Context, doc *domdoc.Document) error {
	fields := map[string]string{
		fieldTenantID:  doc.TenantID(),
		fieldContent:   doc.Content(),
		fieldDocType:   doc.DocType(),
		fieldCompanyID: doc.CompanyID(),
		fieldCreatedAt: strconv.FormatInt(doc.CreatedAt().Unix(), 10),
		fieldDeleted:   "0",
	}
	if err := r.store.HSet(ctx, Key(doc.TenantID(), doc.ID()), fields); err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID(), err)
	}
	return nil
}

// FindByID returns a live document. Soft-deleted and missing documents both
// surface as domain.ErrDocumentNotFound.
func (r *Repo) FindByID(ctx context.Context, tenantID, docID string) (domdoc.Document, error) {
	fields, err := r.store.HGetAll(ctx, Key(tenantID, docID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domdoc.Document{}, domain.ErrDocumentNotFound
		}
		return domdoc.Document{}, fmt.Errorf("get document %s: %w", docID, err)
	}
	if len(fields) == 0 || fields[fieldDeleted] == "1" {
		return domdoc.Document{}, domain.ErrDocumentNotFound
	}
	return parseDoc(tenantID, docID, fields), nil
}

// FindByIDs fetches multiple documents in one pipelined round-trip,
// preserving input order. Missing or deleted documents are skipped.
func (r *Repo) FindByIDs(ctx context.Context, tenantID string, docIDs []string) ([]domdoc.Document, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(docIDs))
	for i, id := range docIDs {
		keys[i] = Key(tenantID, id)
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}

	docs := make([]domdoc.Document, 0, len(docIDs))
	for i, fields := range maps {
		if len(fields) == 0 || fields[fieldDeleted] == "1" {
			continue
		}
		docs = append(docs, parseDoc(tenantID, docIDs[i], fields))
	}
	return docs, nil
}

// StoreVector upserts the embedding fields for a document. A single HSET
// carries vector, model, and timestamp, so the write is all-or-nothing and
// a repeated write simply overwrites the previous record.
func (r *Repo) StoreVector(ctx context.Context, tenantID, docID string, vector []float32, model string) error {
	key := Key(tenantID, docID)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check document %s: %w", docID, err)
	}
	if !exists {
		return fmt.Errorf("store vector for %s: %w", docID, domain.ErrDocumentNotFound)
	}

	fields := map[string]string{
		fieldEmbedding: vectorToBytes(vector),
		fieldEmbModel:  model,
		fieldEmbAt:     strconv.FormatInt(r.now().Unix(), 10),
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("store vector for %s: %w", docID, err)
	}
	return nil
}

// HasVector reports whether a document already carries an embedding.
func (r *Repo) HasVector(ctx context.Context, tenantID, docID string) (bool, error) {
	ok, err := r.store.HExistsField(ctx, Key(tenantID, docID), fieldEmbedding)
	if err != nil {
		return false, fmt.Errorf("check vector for %s: %w", docID, err)
	}
	return ok, nil
}

// SoftDelete marks a document deleted; searches exclude it from then on.
func (r *Repo) SoftDelete(ctx context.Context, tenantID, docID string) error {
	key := Key(tenantID, docID)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check document %s: %w", docID, err)
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}

	if err := r.store.HSet(ctx, key, map[string]string{fieldDeleted: "1"}); err != nil {
		return fmt.Errorf("soft delete %s: %w", docID, err)
	}
	return nil
}

func parseDoc(tenantID, docID string, fields map[string]string) domdoc.Document {
	createdAt, _ := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	return domdoc.Reconstruct(
		tenantID,
		docID,
		fields[fieldContent],
		fields[fieldDocType],
		fields[fieldCompanyID],
		time.Unix(createdAt, 0).UTC(),
		fields[fieldDeleted] == "1",
	)
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
