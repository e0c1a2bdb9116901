// Package filter defines the tenant-scoped pre-filter applied to every
// search: optional company, document type, and inclusive date range.
// Soft-deleted documents are always excluded at the query level.
package filter

import (
	"fmt"
	"time"
)

// Filter narrows a search within a tenant's corpus.
type Filter struct {
	companyID string
	docType   string
	dateFrom  *time.Time
	dateTo    *time.Time
}

// New validates and creates a filter. Zero values mean "no constraint".
func New(companyID, docType string, dateFrom, dateTo *time.Time) (Filter, error) {
	if dateFrom != nil && dateTo != nil && dateFrom.After(*dateTo) {
		return Filter{}, fmt.Errorf("date_from %s is after date_to %s",
			dateFrom.Format(time.RFC3339), dateTo.Format(time.RFC3339))
	}
	return Filter{
		companyID: companyID,
		docType:   docType,
		dateFrom:  dateFrom,
		dateTo:    dateTo,
	}, nil
}

// CompanyID returns the company constraint.
func (f Filter) CompanyID() string { return f.companyID }

// DocType returns the document type constraint.
func (f Filter) DocType() string { return f.docType }

// DateFrom returns the inclusive lower date bound.
func (f Filter) DateFrom() *time.Time { return f.dateFrom }

// DateTo returns the inclusive upper date bound.
func (f Filter) DateTo() *time.Time { return f.dateTo }

// IsEmpty reports whether the filter has no constraints.
func (f Filter) IsEmpty() bool {
	return f.companyID == "" && f.docType == "" && f.dateFrom == nil && f.dateTo == nil
}
