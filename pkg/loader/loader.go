// Package loader exposes incremental, memory-bounded loading of large
// tabular datasets.
//
// A Controller turns each FilterSet into a canonical key, keeps one state
// per key and, on LoadMore, fetches the next batch through the shared
// admission gate and appends it to the key's bounded window. Per key at
// most one fetch is outstanding; concurrent LoadMore calls for a key that
// is already loading return the current snapshot without fetching.
//
// State machine per key:
//
//	Idle -> Loading -> Idle      (success or failure)
//	Idle -> Complete             (short batch seen or record ceiling reached)
//
// Nothing leaves Complete. Timeouts and transport failures are returned to
// the caller and never retried here; the next LoadMore retries the same
// batch index.
package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/fetch"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/gate"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/logging"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/window"
)

var (
	// ErrClosed is returned by LoadMore after Close.
	ErrClosed = errors.New("loader closed")

	// ErrDiscarded is wrapped in the cancelled FetchError returned to a
	// LoadMore whose key was discarded while its fetch was outstanding.
	ErrDiscarded = errors.New("key discarded")
)

// Results recorded by loadMoreTotal.
const (
	resultFetched   = "fetched"
	resultBusy      = "busy"
	resultComplete  = "complete"
	resultCapacity  = "capacity"
	resultError     = "error"
	resultCancelled = "cancelled"
)

var loadMoreTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "statsloader_load_more_total",
	Help: "Total LoadMore calls by result",
}, []string{"result"})

// state is the per-key loader state. All fields are guarded by mu.
type state[T any] struct {
	mu      sync.Mutex
	key     filter.CacheKey
	filters filter.FilterSet
	entry   *window.Entry[T]
	loading bool
	loaded  int
	lastErr error

	// ctx ends when the key is discarded; outstanding fetches derive from it.
	ctx       context.Context
	cancel    context.CancelFunc
	discarded bool
}

type shard[T any] struct {
	mu     sync.Mutex
	states map[filter.CacheKey]*state[T]
}

// Controller orchestrates loading for any number of keys.
type Controller[T any] struct {
	fetcher *fetch.Fetcher[T]
	cache   *window.Cache[T]
	config  Config
	shards  []*shard[T]
	closed  atomic.Bool
	logger  zerolog.Logger
}

// New creates a controller over source. The gate should be shared by
// every controller of the process; when nil a private gate sized by
// MaxConcurrentBatches is created.
func New[T any](source fetch.Source[T], g *gate.Gate, config Config) *Controller[T] {
	config = config.withDefaults()

	base := log.Logger
	if config.Logger != nil {
		base = *config.Logger
	}

	if g == nil {
		g = gate.New(config.MaxConcurrentBatches)
	}

	c := &Controller[T]{
		fetcher: fetch.NewFetcher[T](source, g, fetch.Config{
			BatchSize: config.BatchSize,
			Timeout:   config.RequestTimeout,
			Logger:    &base,
		}),
		cache: window.New[T](window.Config{
			MaxBatches: config.MaxBatches,
			Logger:     &base,
		}),
		config: config,
		shards: make([]*shard[T], config.Shards),
		logger: logging.Component(&base, logging.ComponentLoader),
	}
	for i := range c.shards {
		c.shards[i] = &shard[T]{states: make(map[filter.CacheKey]*state[T])}
	}
	return c
}

// Config returns the effective configuration.
func (c *Controller[T]) Config() Config {
	return c.config
}

// Gate returns the admission gate used by the controller.
func (c *Controller[T]) Gate() *gate.Gate {
	return c.fetcher.Gate()
}

func (c *Controller[T]) shardFor(key filter.CacheKey) *shard[T] {
	return c.shards[key.Hash()%uint64(len(c.shards))]
}

// stateFor returns the state of key, creating it on first access. It
// reports false once the controller is closed.
func (c *Controller[T]) stateFor(key filter.CacheKey, filters filter.FilterSet) (*state[T], bool) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	// Checked under the shard lock so Close's sweep cannot miss a new state.
	if c.closed.Load() {
		return nil, false
	}
	if st, ok := sh.states[key]; ok {
		return st, true
	}
	ctx, cancel := context.WithCancel(context.Background())
	st := &state[T]{
		key:     key,
		filters: filters.Canonical(),
		entry:   c.cache.GetOrCreate(key),
		ctx:     ctx,
		cancel:  cancel,
	}
	sh.states[key] = st
	c.logger.Debug().Str("key", key.String()).Msg("Loader state created")
	return st, true
}

func (c *Controller[T]) lookup(key filter.CacheKey) (*state[T], bool) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, ok := sh.states[key]
	return st, ok
}

// LoadMore fetches the next batch for filters and returns the updated snapshot.
//
// The call is a no-op returning the current snapshot when a fetch for the
// same key is already outstanding, when the source is exhausted or when the
// key has reached MaxClientRecords. A failed fetch leaves the key unchanged
// and returns the error; the failed batch index is not consumed.
func (c *Controller[T]) LoadMore(ctx context.Context, filters filter.FilterSet) (Snapshot[T], error) {
	if c.closed.Load() {
		return Snapshot[T]{}, ErrClosed
	}
	if err := filters.Validate(); err != nil {
		return Snapshot[T]{}, err
	}
	key := filter.Normalize(filters)

	var st *state[T]
	for {
		var ok bool
		st, ok = c.stateFor(key, filters)
		if !ok {
			return Snapshot[T]{}, ErrClosed
		}
		st.mu.Lock()
		if !st.discarded {
			break
		}
		// Lost a race with Discard; pick up the fresh state.
		st.mu.Unlock()
	}

	if st.loading {
		snap := c.snapshotLocked(st)
		st.mu.Unlock()
		loadMoreTotal.WithLabelValues(resultBusy).Inc()
		return snap, nil
	}
	if st.entry.Complete() {
		snap := c.snapshotLocked(st)
		st.mu.Unlock()
		loadMoreTotal.WithLabelValues(resultComplete).Inc()
		return snap, nil
	}
	if st.loaded >= c.config.MaxClientRecords {
		snap := c.snapshotLocked(st)
		st.mu.Unlock()
		loadMoreTotal.WithLabelValues(resultCapacity).Inc()
		return snap, nil
	}

	st.loading = true
	req := fetch.Request{
		Key:        key,
		Filters:    st.filters,
		BatchIndex: st.entry.NextIndex(),
		Limit:      min(c.config.BatchSize, c.config.MaxClientRecords-st.loaded),
	}
	keyCtx := st.ctx
	st.mu.Unlock()

	fetchCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(keyCtx, cancel)
	batch, err := c.fetcher.Fetch(fetchCtx, req)
	stop()
	cancel()

	st.mu.Lock()
	defer st.mu.Unlock()
	st.loading = false

	if st.discarded {
		loadMoreTotal.WithLabelValues(resultCancelled).Inc()
		c.logger.Debug().
			Str("key", key.String()).
			Int("batch_index", req.BatchIndex).
			Msg("Result for discarded key dropped")
		return Snapshot[T]{Key: key, Records: []T{}}, &fetch.FetchError{
			Kind:       fetch.KindCancelled,
			Key:        key,
			BatchIndex: req.BatchIndex,
			Err:        ErrDiscarded,
		}
	}

	if err != nil {
		if fetch.KindOf(err) == fetch.KindCancelled {
			loadMoreTotal.WithLabelValues(resultCancelled).Inc()
			return c.snapshotLocked(st), err
		}
		st.lastErr = err
		loadMoreTotal.WithLabelValues(resultError).Inc()
		c.logger.Warn().
			Err(err).
			Str("key", key.String()).
			Int("batch_index", req.BatchIndex).
			Str("error_kind", string(fetch.KindOf(err))).
			Msg("Load more failed")
		return c.snapshotLocked(st), err
	}

	st.entry.Append(batch)
	st.loaded += batch.Returned
	st.lastErr = nil
	loadMoreTotal.WithLabelValues(resultFetched).Inc()

	snap := c.snapshotLocked(st)
	c.logger.Debug().
		Str("key", key.String()).
		Int("batch_index", batch.Index).
		Int("returned", batch.Returned).
		Int("loaded", st.loaded).
		Bool("has_more", snap.HasMore).
		Msg("Batch loaded")

	return snap, nil
}

// Snapshot returns the current snapshot for filters without fetching.
// An unknown key yields an empty snapshot with HasMore set.
func (c *Controller[T]) Snapshot(filters filter.FilterSet) (Snapshot[T], error) {
	if err := filters.Validate(); err != nil {
		return Snapshot[T]{}, err
	}
	key := filter.Normalize(filters)

	st, ok := c.lookup(key)
	if !ok {
		return Snapshot[T]{Key: key, Records: []T{}, HasMore: true}, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return c.snapshotLocked(st), nil
}

func (c *Controller[T]) snapshotLocked(st *state[T]) Snapshot[T] {
	view := st.entry.Snapshot()
	capacity := st.loaded >= c.config.MaxClientRecords
	return Snapshot[T]{
		Key:             st.key,
		Records:         view.Records,
		HasMore:         !view.Complete && !capacity,
		IsLoading:       st.loading,
		Complete:        view.Complete,
		CapacityReached: capacity,
		Loaded:          st.loaded,
		FirstBatch:      view.FirstIndex,
		NextBatch:       view.NextIndex,
		Evicted:         view.Evicted,
		Err:             st.lastErr,
	}
}

// Discard drops all state for filters and cancels its outstanding fetch.
// Results arriving afterwards are discarded. It reports whether the key
// was known.
func (c *Controller[T]) Discard(filters filter.FilterSet) bool {
	return c.DiscardKey(filter.Normalize(filters))
}

// DiscardKey is Discard for an already normalized key.
func (c *Controller[T]) DiscardKey(key filter.CacheKey) bool {
	sh := c.shardFor(key)
	sh.mu.Lock()
	st, ok := sh.states[key]
	if ok {
		delete(sh.states, key)
		// Under the shard lock so a recreated state gets a fresh window.
		c.cache.Delete(key)
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}

	st.mu.Lock()
	st.discarded = true
	loading := st.loading
	st.cancel()
	st.mu.Unlock()

	c.logger.Debug().
		Str("key", key.String()).
		Bool("loading", loading).
		Msg("Loader state discarded")
	return true
}

// Keys returns the keys with live state, in no particular order.
func (c *Controller[T]) Keys() []filter.CacheKey {
	var keys []filter.CacheKey
	for _, sh := range c.shards {
		sh.mu.Lock()
		for k := range sh.states {
			keys = append(keys, k)
		}
		sh.mu.Unlock()
	}
	return keys
}

// Stats returns a point-in-time summary.
func (c *Controller[T]) Stats() Stats {
	s := Stats{
		InFlight: c.Gate().InFlight(),
		Peak:     c.Gate().Peak(),
	}
	for _, sh := range c.shards {
		sh.mu.Lock()
		states := make([]*state[T], 0, len(sh.states))
		for _, st := range sh.states {
			states = append(states, st)
		}
		sh.mu.Unlock()

		for _, st := range states {
			s.Keys++
			st.mu.Lock()
			if st.loading {
				s.Loading++
			}
			st.mu.Unlock()
		}
	}
	return s
}

// Reset discards every key.
func (c *Controller[T]) Reset() {
	for _, key := range c.Keys() {
		c.DiscardKey(key)
	}
}

// Close discards every key and rejects further loads.
func (c *Controller[T]) Close() error {
	c.closed.Store(true)
	c.Reset()
	return nil
}
