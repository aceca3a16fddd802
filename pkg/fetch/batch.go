package fetch

import (
	"context"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
)

// Source is the remote paginated data source.
// Query must be idempotent for identical arguments and may return fewer
// than limit records only on the final page.
type Source[T any] interface {
	Query(ctx context.Context, filters filter.FilterSet, offset, limit int) ([]T, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc[T any] func(ctx context.Context, filters filter.FilterSet, offset, limit int) ([]T, error)

// Query calls fn.
func (fn SourceFunc[T]) Query(ctx context.Context, filters filter.FilterSet, offset, limit int) ([]T, error) {
	return fn(ctx, filters, offset, limit)
}

// Batch is one page of records. It is immutable once returned by Fetch.
type Batch[T any] struct {
	// Index is the zero-based batch position in the result set.
	Index int

	// Offset is the record offset the batch was requested at.
	Offset int

	// Requested is the limit sent to the source.
	Requested int

	// Returned is the number of records the source supplied.
	Returned int

	// Last is set when Returned < Requested.
	Last bool

	Records []T
}

// Request identifies one batch to fetch.
type Request struct {
	Key     filter.CacheKey
	Filters filter.FilterSet

	// BatchIndex must be >= 0.
	BatchIndex int

	// Limit clips the request below the configured batch size.
	// Zero means a full batch.
	Limit int
}
