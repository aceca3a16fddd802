// Package retry is the caller-side retry helper for batch loads.
//
// The loader never retries on its own; callers that want backoff (export
// jobs, scripts) wrap their LoadMore or FetchRange calls with Do. Only
// retryable fetch failures (timeout, transport) are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/fetch"
)

// ErrRetryExhausted is returned when all attempts failed.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statsloader_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"error_kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statsloader_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"error_kind"})
)

// Policy configures exponential backoff.
type Policy struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx ends. Backoff carries ±20% jitter.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}

	var lastErr error
	backoff := policy.InitialBackoff

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Load succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !fetch.IsRetryable(err) {
			return err
		}
		if attempt >= policy.MaxAttempts {
			break
		}

		kind := string(fetch.KindOf(err))
		retriesTotal.WithLabelValues(kind).Inc()

		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		log.Debug().
			Err(err).
			Str("error_kind", kind).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying load after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry interrupted: %w", ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * policy.Multiplier)
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	retryExhaustedTotal.WithLabelValues(string(fetch.KindOf(lastErr))).Inc()
	log.Warn().
		Err(lastErr).
		Int("max_attempts", policy.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, policy.MaxAttempts, lastErr)
}
