package loader

import (
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
)

// Snapshot is the consumer-facing state of one key after a call.
type Snapshot[T any] struct {
	Key filter.CacheKey `json:"key"`

	// Records are the records currently held in the window, oldest first.
	// Once eviction has happened they no longer start at record zero.
	Records []T `json:"records"`

	// HasMore is false once the source is exhausted or the ceiling is hit.
	HasMore bool `json:"has_more"`

	// IsLoading is set while a fetch for this key is outstanding.
	IsLoading bool `json:"is_loading"`

	// Complete is set once the source returned a short batch.
	Complete bool `json:"complete"`

	// CapacityReached is set once Loaded hit MaxClientRecords.
	CapacityReached bool `json:"capacity_reached"`

	// Loaded is the cumulative number of records fetched for the key.
	Loaded int `json:"loaded"`

	// FirstBatch and NextBatch bound the batch indexes held in the window.
	FirstBatch int `json:"first_batch"`
	NextBatch  int `json:"next_batch"`

	// Evicted counts batches that slid out of the window.
	Evicted int `json:"evicted"`

	// Err is the last timeout or transport failure for the key, cleared
	// by the next successful load.
	Err error `json:"-"`
}

// ErrorMessage returns the message of Err, or "".
func (s Snapshot[T]) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Stats summarizes the controller for diagnostics.
type Stats struct {
	Keys     int `json:"keys"`
	Loading  int `json:"loading"`
	InFlight int `json:"in_flight"`
	Peak     int `json:"peak_in_flight"`
}
