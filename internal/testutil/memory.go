// Package testutil provides in-memory and HTTP fakes of the remote
// paginated data source for tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
)

// ErrInjected is returned by MemorySource when FailAt matches.
var ErrInjected = errors.New("injected source failure")

// Row is the record type used by the fakes.
type Row struct {
	ID        int    `json:"id"`
	Namespace string `json:"namespace"`
}

// Rows generates n rows with IDs 0..n-1.
func Rows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{ID: i, Namespace: filter.NamespaceTickets}
	}
	return rows
}

// Query records one call made to a MemorySource.
type Query struct {
	Key    filter.CacheKey
	Offset int
	Limit  int
}

// MemorySource serves a fixed slice of records page by page.
type MemorySource struct {
	mu      sync.Mutex
	records []Row
	calls   []Query

	// Delay is applied before answering each query.
	Delay time.Duration

	// IgnoreContext makes the source sleep through Delay even after
	// its context is done, like a misbehaving backend.
	IgnoreContext bool

	// FailAt returns an error for a given offset, or nil.
	FailAt func(offset int) error

	// Release, when set, blocks every query until a value is received,
	// the channel is closed or the context ends.
	Release chan struct{}

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// NewMemorySource creates a source over the given records.
func NewMemorySource(records []Row) *MemorySource {
	return &MemorySource{records: records}
}

// Query returns records[offset:offset+limit].
func (m *MemorySource) Query(ctx context.Context, filters filter.FilterSet, offset, limit int) ([]Row, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, Query{Key: filter.Normalize(filters), Offset: offset, Limit: limit})
	fail := m.FailAt
	release := m.Release
	delay := m.Delay
	ignoreContext := m.IgnoreContext
	m.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if delay > 0 {
		if ignoreContext {
			time.Sleep(delay)
		} else {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if fail != nil {
		if err := fail(offset); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if offset >= len(m.records) {
		return []Row{}, nil
	}
	end := offset + limit
	if end > len(m.records) {
		end = len(m.records)
	}
	out := make([]Row, end-offset)
	copy(out, m.records[offset:end])
	return out, nil
}

// SetDelay changes the per-query delay.
func (m *MemorySource) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Delay = d
}

// SetRelease changes the channel queries wait on. Nil stops blocking.
func (m *MemorySource) SetRelease(ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Release = ch
}

// SetFailAt replaces the failure hook.
func (m *MemorySource) SetFailAt(fn func(offset int) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailAt = fn
}

// Calls returns a copy of the recorded queries.
func (m *MemorySource) Calls() []Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Query, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of queries received.
func (m *MemorySource) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MaxInFlight returns the highest number of concurrent queries observed.
func (m *MemorySource) MaxInFlight() int {
	return int(m.maxInFlight.Load())
}
