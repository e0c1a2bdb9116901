package db

import (
	"errors"
	"strings"

	"github.com/finhive/docrank/internal/domain"
)

// Sentinel errors for database operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
)

// Op constants map to Redis command names for error context.
const (
	OpCreateIndex = "FT.CREATE"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpDel         = "DEL"
	OpHGetAll     = "HGETALL"
	OpHSet        = "HSET"
	OpHExists     = "HEXISTS"
	OpExists      = "EXISTS"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Classify maps a low-level search error onto the domain error taxonomy so
// callers surface a legible message instead of a raw server reply. The
// original error stays wrapped for diagnostics.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unknown index") || strings.Contains(msg, "no such index"):
		return joinClassified(domain.ErrIndexMissing, err)
	case strings.Contains(msg, "unknown command") || strings.Contains(msg, "knn") && strings.Contains(msg, "unsupported"):
		return joinClassified(domain.ErrVectorSearchNotSupported, err)
	case strings.Contains(msg, "dimension") || strings.Contains(msg, "blob size"):
		return joinClassified(domain.ErrVectorDimMismatch, err)
	case strings.Contains(msg, "syntax error") || strings.Contains(msg, "parse"):
		return joinClassified(domain.ErrMalformedQuery, err)
	case strings.Contains(msg, "noperm") || strings.Contains(msg, "permission"):
		return joinClassified(domain.ErrPermissionDenied, err)
	default:
		return err
	}
}

func joinClassified(sentinel, cause error) error {
	return &classifiedError{sentinel: sentinel, cause: cause}
}

// classifiedError pairs a domain sentinel with the low-level cause.
// Error() stays user-legible; the cause is reachable via Unwrap for logging.
type classifiedError struct {
	sentinel error
	cause    error
}

func (e *classifiedError) Error() string { return e.sentinel.Error() }

func (e *classifiedError) Unwrap() []error { return []error{e.sentinel, e.cause} }
