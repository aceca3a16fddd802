// Package window holds fetched batches per cache key in a bounded,
// forward-growing window.
//
// Each entry keeps at most MaxBatches batches, oldest first. Appending is
// append-then-evict: the new batch is added and, while the entry is over
// its cap, the oldest batch is dropped. Eviction is pure FIFO by batch
// index; there is no access-recency tracking, so a range that has slid out
// of the window must be fetched again.
package window

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/fetch"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/logging"
)

// DefaultMaxBatches is the default number of batches retained per key.
const DefaultMaxBatches = 20

var (
	windowEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statsloader_window_evictions_total",
		Help: "Total number of batches evicted from window entries",
	})

	windowEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "statsloader_window_entries",
		Help: "Number of cache keys currently held in window caches",
	})
)

// Config holds window cache configuration.
type Config struct {
	// MaxBatches caps the batches held per key.
	MaxBatches int

	// Logger receives eviction diagnostics. Zero value uses the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default window configuration.
func DefaultConfig() Config {
	return Config{MaxBatches: DefaultMaxBatches}
}

// View is a read-only snapshot of one entry.
type View[T any] struct {
	Key filter.CacheKey

	// Records are the records of every held batch, in batch order.
	Records []T

	// Batches is the number of batches held.
	Batches int

	// FirstIndex is the index of the oldest held batch, or NextIndex when empty.
	FirstIndex int

	// NextIndex is the index the next appended batch is expected to carry.
	NextIndex int

	// Evicted counts batches dropped from the front of the window.
	Evicted int

	// Complete is set once a short batch has been appended.
	Complete bool
}

// Entry is the window of one cache key.
type Entry[T any] struct {
	mu         sync.RWMutex
	key        filter.CacheKey
	batches    *deque[fetch.Batch[T]]
	maxBatches int
	nextIndex  int
	complete   bool
	records    int
	evicted    int
	logger     *zerolog.Logger
}

func newEntry[T any](key filter.CacheKey, maxBatches int, logger *zerolog.Logger) *Entry[T] {
	return &Entry[T]{
		key: key,
		// One spare slot so a push can precede the eviction.
		batches:    newDeque[fetch.Batch[T]](maxBatches + 1),
		maxBatches: maxBatches,
		logger:     logger,
	}
}

// Key returns the entry's cache key.
func (e *Entry[T]) Key() filter.CacheKey {
	return e.key
}

// Append adds a batch to the window and evicts the oldest batches while
// over the cap. A batch whose index is below NextIndex has already been
// appended (or skipped) and is ignored; Append reports whether the batch
// was added.
func (e *Entry[T]) Append(batch fetch.Batch[T]) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if batch.Index < e.nextIndex {
		e.logger.Debug().
			Str("key", e.key.String()).
			Int("batch_index", batch.Index).
			Int("next_index", e.nextIndex).
			Msg("Duplicate batch ignored")
		return false
	}

	e.batches.PushBack(batch)
	e.records += len(batch.Records)
	e.nextIndex = batch.Index + 1
	if batch.Last {
		e.complete = true
	}

	for e.batches.Len() > e.maxBatches {
		old, _ := e.batches.PopFront()
		e.records -= len(old.Records)
		e.evicted++
		windowEvictions.Inc()
		e.logger.Debug().
			Str("key", e.key.String()).
			Int("evicted", old.Index).
			Int("held", e.batches.Len()).
			Msg("Batch evicted from window")
	}

	return true
}

// NextIndex returns the index of the next batch to fetch.
func (e *Entry[T]) NextIndex() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nextIndex
}

// Complete reports whether a short batch has been appended.
func (e *Entry[T]) Complete() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.complete
}

// Len returns the number of batches held.
func (e *Entry[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.batches.Len()
}

// Records returns the number of records held.
func (e *Entry[T]) Records() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.records
}

// Batches returns the held batches, oldest first.
func (e *Entry[T]) Batches() []fetch.Batch[T] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]fetch.Batch[T], e.batches.Len())
	for i := range out {
		out[i] = e.batches.At(i)
	}
	return out
}

// Snapshot returns the entry's current view.
func (e *Entry[T]) Snapshot() View[T] {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v := View[T]{
		Key:        e.key,
		Records:    make([]T, 0, e.records),
		Batches:    e.batches.Len(),
		FirstIndex: e.nextIndex,
		NextIndex:  e.nextIndex,
		Evicted:    e.evicted,
		Complete:   e.complete,
	}
	if front, ok := e.batches.Front(); ok {
		v.FirstIndex = front.Index
	}
	for i := 0; i < e.batches.Len(); i++ {
		v.Records = append(v.Records, e.batches.At(i).Records...)
	}
	return v
}

// Cache maps cache keys to window entries.
type Cache[T any] struct {
	mu         sync.RWMutex
	entries    map[filter.CacheKey]*Entry[T]
	maxBatches int
	logger     zerolog.Logger
}

// New creates a window cache.
func New[T any](config Config) *Cache[T] {
	if config.MaxBatches <= 0 {
		config.MaxBatches = DefaultMaxBatches
	}
	return &Cache[T]{
		entries:    make(map[filter.CacheKey]*Entry[T]),
		maxBatches: config.MaxBatches,
		logger:     logging.Component(config.Logger, logging.ComponentWindow),
	}
}

// MaxBatches returns the per-key batch cap.
func (c *Cache[T]) MaxBatches() int {
	return c.maxBatches
}

// GetOrCreate returns the entry for key, creating an empty one if needed.
func (c *Cache[T]) GetOrCreate(key filter.CacheKey) *Entry[T] {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e
	}
	e = newEntry[T](key, c.maxBatches, &c.logger)
	c.entries[key] = e
	windowEntries.Inc()
	return e
}

// Get returns the entry for key if present.
func (c *Cache[T]) Get(key filter.CacheKey) (*Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Append adds a batch to the entry for key. See Entry.Append.
func (c *Cache[T]) Append(key filter.CacheKey, batch fetch.Batch[T]) bool {
	return c.GetOrCreate(key).Append(batch)
}

// Snapshot returns the view of key. An unknown key yields an empty view.
func (c *Cache[T]) Snapshot(key filter.CacheKey) View[T] {
	if e, ok := c.Get(key); ok {
		return e.Snapshot()
	}
	return View[T]{Key: key, Records: []T{}}
}

// Delete drops the entry for key and reports whether it existed.
func (c *Cache[T]) Delete(key filter.CacheKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	windowEntries.Dec()
	return true
}

// Len returns the number of keys held.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the keys currently held, in no particular order.
func (c *Cache[T]) Keys() []filter.CacheKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]filter.CacheKey, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}
