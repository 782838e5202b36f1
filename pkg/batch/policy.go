package batch

import (
	"fmt"
	"time"
)

// Policy holds the tunable constants of the adaptive engine. The defaults
// reproduce the production behavior; all values are policy knobs, not
// invariants, and may be tuned per deployment.
type Policy struct {
	// MinConcurrency is the lower bound the adaptor never goes below.
	MinConcurrency int

	// MaxConcurrency is the upper bound the adaptor never exceeds.
	MaxConcurrency int

	// InitialConcurrency is the window size of a fresh task.
	InitialConcurrency int

	// CleanStreakTarget is the number of consecutive fully-clean windows
	// required before concurrency is raised by one.
	CleanStreakTarget int

	// MaxRetries is the number of additional attempts granted to an item
	// whose failure classified as rate-limited.
	MaxRetries int

	// RetryBackoffUnit scales the per-item retry backoff: attempt n sleeps
	// RetryBackoffUnit * 2^(n+1) (2s, 4s with the 1s default).
	RetryBackoffUnit time.Duration

	// ErrorLogCap is the capacity of the task error ring buffer.
	ErrorLogCap int

	// MinParallelDelay is the floor for the halved inter-batch delay used
	// when running more than one item per window.
	MinParallelDelay time.Duration

	// MaxRateLimitDelay caps the exponential inter-batch delay applied
	// after throttled windows.
	MaxRateLimitDelay time.Duration

	// RateLimitBackoffCap caps the exponent applied to accumulated
	// rate-limit events when computing the throttled inter-batch delay.
	RateLimitBackoffCap int

	// DefaultBaseDelay is used when StartOptions does not supply a base
	// inter-batch delay.
	DefaultBaseDelay time.Duration

	// FinalizeGrace is the fixed delay between the final 100% snapshot and
	// the flip back to idle, so pollers can observe completion.
	FinalizeGrace time.Duration
}

// DefaultPolicy returns the production policy constants.
func DefaultPolicy() Policy {
	return Policy{
		MinConcurrency:      1,
		MaxConcurrency:      5,
		InitialConcurrency:  3,
		CleanStreakTarget:   3,
		MaxRetries:          2,
		RetryBackoffUnit:    1 * time.Second,
		ErrorLogCap:         100,
		MinParallelDelay:    200 * time.Millisecond,
		MaxRateLimitDelay:   30 * time.Second,
		RateLimitBackoffCap: 4,
		DefaultBaseDelay:    2 * time.Second,
		FinalizeGrace:       500 * time.Millisecond,
	}
}

// Validate checks the policy for internally consistent bounds.
func (p Policy) Validate() error {
	if p.MinConcurrency < 1 {
		return fmt.Errorf("%w: min concurrency must be >= 1 (got %d)", ErrInvalidPolicy, p.MinConcurrency)
	}
	if p.MaxConcurrency < p.MinConcurrency {
		return fmt.Errorf("%w: max concurrency %d < min %d", ErrInvalidPolicy, p.MaxConcurrency, p.MinConcurrency)
	}
	if p.InitialConcurrency < p.MinConcurrency || p.InitialConcurrency > p.MaxConcurrency {
		return fmt.Errorf("%w: initial concurrency %d outside [%d, %d]",
			ErrInvalidPolicy, p.InitialConcurrency, p.MinConcurrency, p.MaxConcurrency)
	}
	if p.CleanStreakTarget < 1 {
		return fmt.Errorf("%w: clean streak target must be >= 1 (got %d)", ErrInvalidPolicy, p.CleanStreakTarget)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0 (got %d)", ErrInvalidPolicy, p.MaxRetries)
	}
	if p.ErrorLogCap < 1 {
		return fmt.Errorf("%w: error log capacity must be >= 1 (got %d)", ErrInvalidPolicy, p.ErrorLogCap)
	}
	return nil
}

// windowOutcome is the classification of one fully-settled window.
type windowOutcome struct {
	allSucceeded   bool
	anyRateLimited bool
	anyFailed      bool
}

// adaptResult is the adaptor's decision for the next window.
type adaptResult struct {
	concurrency int
	cleanStreak int
	rateLimited bool
	eventDelta  int
}

// adaptConcurrency applies the AIMD rules to one window outcome. Rules are
// priority-ordered: a throttle signal wins over everything else and halves
// concurrency immediately; raising it requires CleanStreakTarget consecutive
// clean windows. Mixed windows hold concurrency and reset the streak.
func adaptConcurrency(p Policy, concurrency, cleanStreak int, w windowOutcome) adaptResult {
	switch {
	case w.anyRateLimited:
		next := concurrency / 2
		if next < p.MinConcurrency {
			next = p.MinConcurrency
		}
		return adaptResult{
			concurrency: next,
			cleanStreak: 0,
			rateLimited: true,
			eventDelta:  1,
		}

	case w.allSucceeded:
		streak := cleanStreak + 1
		next := concurrency
		if streak >= p.CleanStreakTarget && concurrency < p.MaxConcurrency {
			next = concurrency + 1
			streak = 0
		}
		return adaptResult{concurrency: next, cleanStreak: streak}

	default:
		// Non-rate-limit failures only: hold concurrency, lose the streak.
		return adaptResult{concurrency: concurrency, cleanStreak: 0}
	}
}

// nextDelay computes the inter-batch wait before the next window.
//
//   - After a throttled window the delay grows exponentially with the
//     accumulated rate-limit event count, capped at MaxRateLimitDelay.
//   - Serial pacing (concurrency 1) waits the full base delay.
//   - Parallel pacing halves the base delay, floored at MinParallelDelay.
func nextDelay(p Policy, base time.Duration, concurrency, rateLimitEvents int, rateLimited bool) time.Duration {
	if rateLimited {
		exp := rateLimitEvents
		if exp > p.RateLimitBackoffCap {
			exp = p.RateLimitBackoffCap
		}
		d := base * (1 << exp)
		if d > p.MaxRateLimitDelay {
			d = p.MaxRateLimitDelay
		}
		return d
	}

	if concurrency == 1 {
		return base
	}

	d := base / 2
	if d < p.MinParallelDelay {
		d = p.MinParallelDelay
	}
	return d
}
