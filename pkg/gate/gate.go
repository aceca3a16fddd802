// Package gate bounds how many batch requests may be outstanding at once.
//
// A single Gate is shared by every loader in the process so the cap applies
// to total backend load, not per view. Each Acquire hands out a Permit that
// must be released exactly once; Release is safe to call more than once
// and only the first call returns the slot.
package gate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/logging"
)

// DefaultLimit is the default number of concurrently outstanding batches.
const DefaultLimit = 3

// Prometheus metrics for admission control.
var (
	gateInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "statsloader_gate_in_flight",
		Help: "Number of batch requests currently holding an admission permit",
	})

	gateWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "statsloader_gate_wait_seconds",
		Help:    "Time spent waiting for an admission permit",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
	})
)

// Gate is a process-wide counting semaphore for batch fetches.
type Gate struct {
	sem      *semaphore.Weighted
	limit    int64
	inFlight atomic.Int64
	peak     atomic.Int64
	logger   zerolog.Logger
}

// New creates a gate admitting at most limit permits at a time.
// A non-positive limit falls back to DefaultLimit.
func New(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Gate{
		sem:    semaphore.NewWeighted(int64(limit)),
		limit:  int64(limit),
		logger: logging.NewLogger(logging.ComponentGate),
	}
}

// Acquire blocks until a slot is free or ctx is done.
// On success the caller owns the returned Permit and must Release it.
func (g *Gate) Acquire(ctx context.Context) (*Permit, error) {
	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	gateWaitSeconds.Observe(time.Since(start).Seconds())
	return g.admit(), nil
}

// TryAcquire takes a slot without blocking. It returns nil when the gate is full.
func (g *Gate) TryAcquire() *Permit {
	if !g.sem.TryAcquire(1) {
		return nil
	}
	return g.admit()
}

// Limit returns the configured number of slots.
func (g *Gate) Limit() int {
	return int(g.limit)
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Peak returns the highest number of permits ever held at once.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}

func (g *Gate) admit() *Permit {
	n := g.inFlight.Add(1)
	gateInFlight.Inc()
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	return &Permit{gate: g}
}

func (g *Gate) release() {
	g.inFlight.Add(-1)
	gateInFlight.Dec()
	g.sem.Release(1)
}

// Permit is one admitted slot.
type Permit struct {
	gate     *Gate
	released atomic.Bool
}

// Release returns the slot to the gate. Only the first call has an effect.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	if !p.released.CompareAndSwap(false, true) {
		p.gate.logger.Error().Msg("Admission permit released twice")
		return
	}
	p.gate.release()
}
