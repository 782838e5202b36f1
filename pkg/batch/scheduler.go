package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the batch scheduler.
var (
	batchWindowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ainav_batch_windows_total",
		Help: "Total processed windows by classification",
	}, []string{"result"}) // "clean", "rate_limited", "mixed"

	batchConcurrency = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ainav_batch_concurrency",
		Help: "Current adaptive concurrency level",
	})

	batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ainav_batch_items_total",
		Help: "Total settled items by status",
	}, []string{"status"}) // "success", "partial", "failed"

	batchRateLimitEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ainav_batch_rate_limit_events_total",
		Help: "Total windows that observed an upstream throttle signal",
	})

	batchDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ainav_batch_delay_seconds",
		Help:    "Inter-batch pacing delay",
		Buckets: []float64{0.2, 0.5, 1, 2, 5, 10, 30},
	})

	batchTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ainav_batch_tasks_total",
		Help: "Total finished tasks by outcome",
	}, []string{"outcome"}) // "completed", "stopped", "failed"
)

// run is the scheduler loop. It is the sole writer of the task record after
// creation; every mutation happens under the controller mutex and every
// change publishes a snapshot. Item failures never escape as errors; the
// only abnormal exit is a recovered panic, which aborts the task early.
func (c *Controller) run(ctx context.Context, t *task, exec *itemExecutor, notify func()) {
	defer func() {
		if r := recover(); r != nil {
			c.abort(t, r)
		}
	}()

	for {
		window, ok := c.beginWindow(ctx, t)
		if !ok {
			break
		}

		results := runWindow(ctx, exec, window)

		delay, more := c.settleWindow(t, window, results, notify)
		if !more {
			break
		}

		batchDelaySeconds.Observe(delay.Seconds())
		if !sleepCtx(ctx, delay) {
			break
		}
	}

	c.finalize(ctx, t, notify)
}

// beginWindow slices the next window out of the item list and publishes the
// pre-window snapshot. Returns false when the task is cancelled or exhausted.
func (c *Controller) beginWindow(ctx context.Context, t *task) ([]Item, bool) {
	c.mu.Lock()
	if ctx.Err() != nil || t.state != StateRunning || t.cursor >= len(t.items) {
		c.mu.Unlock()
		return nil, false
	}

	end := t.cursor + t.concurrency
	if end > len(t.items) {
		end = len(t.items)
	}
	window := t.items[t.cursor:end]

	t.currentCard = windowLabel(window)
	snap := t.snapshot()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	c.logger.Debug().
		Int("cursor", snap.Current).
		Int("window_size", len(window)).
		Int("concurrency", snap.Concurrency).
		Msg("Launching window")

	deliver(subs, snap)
	return window, true
}

// runWindow fans the window out and joins on full settlement. Completion
// order within the window is unspecified; results land at their original
// window index so they can be applied in order.
func runWindow(ctx context.Context, exec *itemExecutor, window []Item) []ItemResult {
	results := make([]ItemResult, len(window))

	var wg sync.WaitGroup
	for i := range window {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() {
				// A panicking processor settles as an item failure instead
				// of taking down the process.
				if r := recover(); r != nil {
					results[i] = ItemResult{Err: fmt.Errorf("processor panic: %v", r)}
				}
			}()
			results[i] = exec.process(ctx, window[i])
		}(i)
	}
	wg.Wait()

	return results
}

// settleWindow applies the settled results in original window order, feeds
// the window classification to the adaptor, publishes the post-window
// snapshot, and returns the pacing delay plus whether work remains.
func (c *Controller) settleWindow(t *task, window []Item, results []ItemResult, notify func()) (time.Duration, bool) {
	c.mu.Lock()

	outcome := windowOutcome{allSucceeded: true}
	successes := 0

	for i, res := range results {
		t.cursor++

		switch {
		case res.Success && res.PartialErr == nil:
			t.successCount++
			successes++
			batchItemsTotal.WithLabelValues("success").Inc()

		case res.Success:
			t.successCount++
			successes++
			batchItemsTotal.WithLabelValues("partial").Inc()
			t.errors.append(ErrorEntry{
				ItemID:    window[i].ID,
				Message:   res.PartialErr.Error(),
				Time:      time.Now(),
				IsWarning: true,
			})

		default:
			t.failCount++
			outcome.allSucceeded = false
			outcome.anyFailed = true
			batchItemsTotal.WithLabelValues("failed").Inc()
			t.errors.append(ErrorEntry{
				ItemID:  window[i].ID,
				Message: res.Err.Error(),
				Time:    time.Now(),
			})
		}

		if res.RateLimited {
			outcome.anyRateLimited = true
		}
	}

	adapted := adaptConcurrency(c.policy, t.concurrency, t.cleanStreak, outcome)
	t.concurrency = adapted.concurrency
	t.cleanStreak = adapted.cleanStreak
	t.isRateLimited = adapted.rateLimited
	t.rateLimitEvents += adapted.eventDelta

	batchConcurrency.Set(float64(t.concurrency))
	batchWindowsTotal.WithLabelValues(classifyWindow(outcome)).Inc()
	if adapted.eventDelta > 0 {
		batchRateLimitEventsTotal.Inc()
	}

	delay := nextDelay(c.policy, t.baseDelay, t.concurrency, t.rateLimitEvents, t.isRateLimited)
	more := t.cursor < len(t.items) && t.state == StateRunning

	snap := t.snapshot()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	c.logger.Info().
		Int("current", snap.Current).
		Int("total", snap.Total).
		Int("window_size", len(window)).
		Str("window_result", classifyWindow(outcome)).
		Int("concurrency", snap.Concurrency).
		Bool("rate_limited", snap.IsRateLimited).
		Dur("next_delay", delay).
		Msg("Window settled")

	if notify != nil {
		for i := 0; i < successes; i++ {
			notify()
		}
	}
	deliver(subs, snap)

	return delay, more
}

// finalize publishes the terminal snapshot, fires the notifier exactly once
// more, waits out the fixed grace delay so the final state is observable,
// and flips the task back to idle.
func (c *Controller) finalize(ctx context.Context, t *task, notify func()) {
	c.mu.Lock()
	natural := t.state == StateRunning && ctx.Err() == nil && t.cursor >= len(t.items)
	if natural {
		t.cursor = len(t.items)
	}
	t.currentCard = ""
	snap := t.snapshot()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	deliver(subs, snap)
	if notify != nil {
		notify()
	}

	// Fixed observation window before dropping to idle.
	time.Sleep(c.policy.FinalizeGrace)

	c.mu.Lock()
	t.state = StateIdle
	final := t.snapshot()
	subs = c.subscribersLocked()
	c.mu.Unlock()
	t.cancel()

	outcome := "stopped"
	if natural {
		outcome = "completed"
	}
	batchTasksTotal.WithLabelValues(outcome).Inc()

	c.logger.Info().
		Str("task_id", t.id.String()).
		Str("outcome", outcome).
		Int("success", final.SuccessCount).
		Int("fail", final.FailCount).
		Int("total", final.Total).
		Dur("duration", time.Since(final.StartTime)).
		Msg("Batch task finished")

	deliver(subs, final)
}

// abort handles a panic escaping the scheduler loop: the task is terminated
// early with a system-level error entry and the cursor left where it was.
func (c *Controller) abort(t *task, cause any) {
	c.mu.Lock()
	t.errors.append(ErrorEntry{
		ItemID:  "scheduler",
		Message: fmt.Sprintf("scheduler fatal error: %v", cause),
		Time:    time.Now(),
	})
	t.state = StateIdle
	t.currentCard = ""
	snap := t.snapshot()
	subs := c.subscribersLocked()
	c.mu.Unlock()
	t.cancel()

	batchTasksTotal.WithLabelValues("failed").Inc()
	c.logger.Error().
		Str("task_id", t.id.String()).
		Interface("cause", cause).
		Int("cursor", snap.Current).
		Msg("Scheduler aborted by fatal error")

	deliver(subs, snap)
}

func classifyWindow(w windowOutcome) string {
	switch {
	case w.anyRateLimited:
		return "rate_limited"
	case w.allSucceeded:
		return "clean"
	default:
		return "mixed"
	}
}

func windowLabel(window []Item) string {
	if len(window) == 0 {
		return ""
	}
	if len(window) == 1 {
		return window[0].Label
	}
	return fmt.Sprintf("%s (+%d)", window[0].Label, len(window)-1)
}
