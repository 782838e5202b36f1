package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Controller owns the single task slot and enforces the at-most-one-task
// invariant. One controller per process gives the production singleton
// behavior; nothing prevents independent controllers in tests.
type Controller struct {
	policy Policy
	logger zerolog.Logger

	mu      sync.Mutex
	task    *task
	subs    map[uint64]func(Snapshot)
	nextSub uint64
}

// StartOptions carries the per-task collaborators and pacing.
type StartOptions struct {
	// BaseDelay is the inter-batch pacing base for this task. Values <= 0
	// fall back to the policy default. The engine never adapts it.
	BaseDelay time.Duration

	// Classifier recognizes throttle errors from the provider. When nil,
	// every failure classifies as a plain error and nothing is retried.
	Classifier Classifier

	// Notifier is invoked after each successfully processed item and once
	// more at task completion. The engine is agnostic to its effect.
	Notifier func()
}

// StartResult is returned by a successful Start.
type StartResult struct {
	TaskID uuid.UUID `json:"task_id"`
	Total  int       `json:"total"`
}

// StopResult is returned by Stop.
type StopResult struct {
	Stopped bool `json:"stopped"`
}

// NewController creates a controller with the given policy.
func NewController(policy Policy) (*Controller, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		policy: policy,
		logger: log.With().Str("component", "batch-controller").Logger(),
		subs:   make(map[uint64]func(Snapshot)),
	}, nil
}

// Start creates a task over items and launches the scheduler asynchronously.
// It returns ErrAlreadyRunning while a task is running or stopping; the
// running task is untouched in that case. An empty item list succeeds and
// completes trivially. Completion time is independent of Start returning;
// progress is observed via Status and Subscribe.
func (c *Controller) Start(items []Item, proc Processor, opts StartOptions) (StartResult, error) {
	if proc == nil {
		return StartResult{}, fmt.Errorf("processor is required")
	}

	classifier := opts.Classifier
	if classifier == nil {
		classifier = func(error) Outcome { return OutcomeError }
	}

	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = c.policy.DefaultBaseDelay
	}

	c.mu.Lock()
	if c.task != nil && c.task.state != StateIdle {
		c.mu.Unlock()
		return StartResult{}, ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:          uuid.New(),
		state:       StateRunning,
		items:       items,
		concurrency: c.policy.InitialConcurrency,
		errors:      newErrorRing(c.policy.ErrorLogCap),
		startTime:   time.Now(),
		baseDelay:   baseDelay,
		cancel:      cancel,
	}
	c.task = t
	c.mu.Unlock()

	exec := &itemExecutor{
		proc:       proc,
		classify:   classifier,
		maxRetries: c.policy.MaxRetries,
		backoff:    c.policy.RetryBackoffUnit,
		logger:     c.logger.With().Str("component", "batch-executor").Logger(),
	}

	c.logger.Info().
		Str("task_id", t.id.String()).
		Int("total", len(items)).
		Int("concurrency", t.concurrency).
		Dur("base_delay", baseDelay).
		Msg("Starting batch task")

	go c.run(ctx, t, exec, opts.Notifier)

	return StartResult{TaskID: t.id, Total: len(items)}, nil
}

// Stop requests cancellation of the active task. It is idempotent, including
// when no task exists. Cancellation is cooperative: the scheduler observes
// it at the next batch boundary or sleep interruption, so in-flight items
// settle normally first.
func (c *Controller) Stop() StopResult {
	c.mu.Lock()
	t := c.task
	if t == nil || t.state == StateIdle {
		c.mu.Unlock()
		return StopResult{Stopped: true}
	}

	t.state = StateStopping
	t.cancel()
	snap := t.snapshot()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	c.logger.Info().Str("task_id", t.id.String()).Msg("Stop requested")
	deliver(subs, snap)

	return StopResult{Stopped: true}
}

// Status returns a read-only snapshot of the current task, or an idle
// snapshot when none exists. It never blocks on scheduler progress.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.task == nil {
		return Snapshot{Running: false, State: StateIdle, Errors: []ErrorEntry{}}
	}
	return c.task.snapshot()
}

// Subscribe registers a callback invoked with a snapshot on every task
// change. The returned function removes the subscription. Callbacks run
// outside the controller lock, so they may call Status or Stop.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// subscribersLocked copies the current subscriber list. Callers must hold
// the controller mutex.
func (c *Controller) subscribersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}

func deliver(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
