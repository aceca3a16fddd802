package fetch

import (
	"errors"
	"fmt"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
)

// Kind classifies a fetch failure.
type Kind string

const (
	// KindTimeout means the request exceeded its deadline.
	KindTimeout Kind = "timeout"

	// KindTransport means the source failed for a reason outside the loader's control.
	KindTransport Kind = "transport"

	// KindCancelled means the caller abandoned the request.
	KindCancelled Kind = "cancelled"
)

// Sentinel errors matched by *FetchError through errors.Is.
var (
	ErrTimeout   = errors.New("batch fetch timed out")
	ErrTransport = errors.New("batch fetch failed")
	ErrCancelled = errors.New("batch fetch cancelled")

	// ErrInvalidRequest is returned for a negative batch index.
	ErrInvalidRequest = errors.New("invalid batch request")
)

// FetchError describes a failed batch fetch.
type FetchError struct {
	Kind       Kind
	Key        filter.CacheKey
	BatchIndex int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("batch %d of %s: %s: %v", e.BatchIndex, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("batch %d of %s: %s", e.BatchIndex, e.Key, e.Kind)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrCancelled:
		return e.Kind == KindCancelled
	default:
		return false
	}
}

// Retryable reports whether a caller may reasonably try the same batch again.
// Transport failures are retryable unless the source error says otherwise
// through its own Retryable method.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTimeout:
		return true
	case KindTransport:
		var r interface{ Retryable() bool }
		if errors.As(e.Err, &r) {
			return r.Retryable()
		}
		return true
	default:
		return false
	}
}

// KindOf returns the kind of a fetch error, or "" for other errors.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsRetryable reports whether err is a retryable *FetchError.
func IsRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable()
}
