// Package document defines the engine-owned document entity: the source
// text the retrieval pipeline searches, plus its tenant-scoped metadata.
package document

import (
	"fmt"
	"time"
)

// MaxContentBytes limits a single document's text size.
const MaxContentBytes = 512 * 1024

// Document is the source-of-truth text record, scoped to a tenant.
type Document struct {
	tenantID  string
	id        string
	content   string
	docType   string
	companyID string
	createdAt time.Time
	deleted   bool
}

// New validates and creates a document.
func New(tenantID, id, content, docType, companyID string, createdAt time.Time) (Document, error) {
	if tenantID == "" {
		return Document{}, fmt.Errorf("tenant id is required")
	}
	if id == "" {
		return Document{}, fmt.Errorf("document id is required")
	}
	if content == "" {
		return Document{}, fmt.Errorf("document content is required")
	}
	if len(content) > MaxContentBytes {
		return Document{}, fmt.Errorf("document content too large (max %d bytes)", MaxContentBytes)
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return Document{
		tenantID:  tenantID,
		id:        id,
		content:   content,
		docType:   docType,
		companyID: companyID,
		createdAt: createdAt,
	}, nil
}

// Reconstruct rebuilds a document from storage without validation.
func Reconstruct(
	tenantID, id, content, docType, companyID string,
	createdAt time.Time, deleted bool,
) Document {
	return Document{
		tenantID:  tenantID,
		id:        id,
		content:   content,
		docType:   docType,
		companyID: companyID,
		createdAt: createdAt,
		deleted:   deleted,
	}
}

// TenantID returns the owning tenant.
func (d *Document) TenantID() string { return d.tenantID }

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Content returns the document text.
func (d *Document) Content() string { return d.content }

// DocType returns the document type (e.g. "invoice", "contract").
func (d *Document) DocType() string { return d.docType }

// CompanyID returns the associated company, if any.
func (d *Document) CompanyID() string { return d.companyID }

// CreatedAt returns the creation timestamp.
func (d *Document) CreatedAt() time.Time { return d.createdAt }

// Deleted reports whether the document is soft-deleted.
func (d *Document) Deleted() bool { return d.deleted }
