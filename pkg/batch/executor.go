package batch

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for per-item retry behavior.
var (
	itemRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ainav_item_retries_total",
		Help: "Total number of per-item retry attempts after rate-limit classification",
	})

	itemRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ainav_item_retry_backoff_seconds",
		Help:    "Backoff duration slept before per-item retries",
		Buckets: []float64{0.5, 1, 2, 5, 10},
	})

	itemRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ainav_item_retry_exhausted_total",
		Help: "Total number of items that exhausted their rate-limit retries",
	})
)

// Outcome is the tagged classification of a processing error. The scheduler
// branches on it exhaustively instead of string-matching error text.
type Outcome string

const (
	// OutcomeOK means no error occurred.
	OutcomeOK Outcome = "ok"

	// OutcomeRateLimited means the failure was attributed to upstream
	// throttling (HTTP 429 or a known throttle phrase).
	OutcomeRateLimited Outcome = "rate_limited"

	// OutcomeError means any other failure (content, network, provider).
	OutcomeError Outcome = "error"
)

// Classifier maps a processing error to its Outcome. It is supplied by the
// provider integration, which knows the upstream's throttle signals.
type Classifier func(err error) Outcome

// Processor performs the external per-item work. Implementations must return
// an error on failure; throttling errors must be recognizable by the task's
// Classifier. Partial completion is reported by returning a *PartialError.
type Processor interface {
	ProcessItem(ctx context.Context, item Item) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, item Item) error

// ProcessItem implements Processor.
func (f ProcessorFunc) ProcessItem(ctx context.Context, item Item) error {
	return f(ctx, item)
}

// ItemResult is the settled outcome of one item. Item failures never
// propagate as errors out of the executor; they are always converted to a
// result the scheduler records.
type ItemResult struct {
	// Success is true when the item's work completed, possibly partially.
	Success bool

	// RateLimited is true when any attempt was classified as throttled,
	// even if a later retry succeeded. It marks the whole window.
	RateLimited bool

	// Err is the final failure when Success is false.
	Err error

	// PartialErr annotates a success whose work only partially completed.
	PartialErr error
}

// itemExecutor wraps one external item call with bounded retry for
// rate-limited failures.
type itemExecutor struct {
	proc       Processor
	classify   Classifier
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger
}

// process runs one item to settlement. Rate-limited failures are retried up
// to maxRetries times with an exponential, cancellable backoff (2s, 4s with
// the default unit). Any other failure, and exhausted retries, settle as
// failure immediately. Partial completion settles as success with the
// annotation carried along.
func (e *itemExecutor) process(ctx context.Context, item Item) ItemResult {
	rateLimited := false

	for retry := 0; ; retry++ {
		err := e.proc.ProcessItem(ctx, item)
		if err == nil {
			return ItemResult{Success: true, RateLimited: rateLimited}
		}

		var partial *PartialError
		if errors.As(err, &partial) {
			return ItemResult{Success: true, RateLimited: rateLimited, PartialErr: partial}
		}

		if e.classify(err) != OutcomeRateLimited {
			return ItemResult{RateLimited: rateLimited, Err: err}
		}

		rateLimited = true
		if retry >= e.maxRetries {
			itemRetryExhaustedTotal.Inc()
			e.logger.Warn().
				Str("item_id", item.ID).
				Int("max_retries", e.maxRetries).
				Msg("Rate-limit retries exhausted")
			return ItemResult{RateLimited: true, Err: err}
		}

		backoff := e.backoff * (1 << (retry + 1))
		itemRetriesTotal.Inc()
		itemRetryBackoffSeconds.Observe(backoff.Seconds())

		e.logger.Debug().
			Str("item_id", item.ID).
			Int("attempt", retry+1).
			Dur("backoff", backoff).
			Msg("Rate limited, retrying item after backoff")

		if !sleepCtx(ctx, backoff) {
			// Cancelled mid-backoff: settle without further attempts.
			return ItemResult{RateLimited: true, Err: err}
		}
	}
}

// sleepCtx sleeps for d unless the context is cancelled first. Returns false
// when interrupted.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
