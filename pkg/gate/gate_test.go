package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, New(0).Limit())
	assert.Equal(t, DefaultLimit, New(-4).Limit())
	assert.Equal(t, 7, New(7).Limit())
}

func TestGate_AcquireRelease(t *testing.T) {
	g := New(2)
	ctx := context.Background()

	p1, err := g.Acquire(ctx)
	require.NoError(t, err)
	p2, err := g.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, g.InFlight())

	assert.Nil(t, g.TryAcquire(), "gate should be full")

	p1.Release()
	assert.Equal(t, 1, g.InFlight())

	p3 := g.TryAcquire()
	require.NotNil(t, p3)

	p2.Release()
	p3.Release()
	assert.Equal(t, 0, g.InFlight())
}

func TestPermit_DoubleReleaseIsNoop(t *testing.T) {
	g := New(1)

	p, err := g.Acquire(context.Background())
	require.NoError(t, err)

	p.Release()
	p.Release()
	assert.Equal(t, 0, g.InFlight())

	// A second release must not have freed a phantom slot.
	p1 := g.TryAcquire()
	require.NotNil(t, p1)
	assert.Nil(t, g.TryAcquire())
	p1.Release()

	var nilPermit *Permit
	nilPermit.Release()
}

func TestGate_AcquireCancelled(t *testing.T) {
	g := New(1)
	held, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p, err := g.Acquire(ctx)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.InFlight())
}

func TestGate_BoundsConcurrency(t *testing.T) {
	const limit = 3
	g := New(limit)

	var (
		wg      sync.WaitGroup
		current atomic.Int64
		maxSeen atomic.Int64
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := g.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer p.Release()

			n := current.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int64(limit))
	assert.LessOrEqual(t, g.Peak(), limit)
	assert.Equal(t, 0, g.InFlight())
}
