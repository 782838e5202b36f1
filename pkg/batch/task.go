package batch

import (
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of the controller's task slot.
type State string

const (
	// StateIdle means no task is active.
	StateIdle State = "idle"

	// StateRunning means the scheduler is processing windows.
	StateRunning State = "running"

	// StateStopping means Stop was called and the scheduler has not yet
	// observed the cancellation.
	StateStopping State = "stopping"
)

// Item is an opaque reference to one unit of work. The engine never
// interprets it beyond passing it to the Processor and using Label for
// progress reporting.
type Item struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ErrorEntry is one recorded item failure or warning.
type ErrorEntry struct {
	ItemID    string    `json:"item_id"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
	IsWarning bool      `json:"is_warning"`
}

// Snapshot is an immutable copy of the task state at one point in time.
// Readers only ever see snapshots; the live task record is never shared.
type Snapshot struct {
	Running       bool         `json:"running"`
	TaskID        uuid.UUID    `json:"task_id,omitempty"`
	State         State        `json:"state"`
	Current       int          `json:"current"`
	Total         int          `json:"total"`
	SuccessCount  int          `json:"success_count"`
	FailCount     int          `json:"fail_count"`
	CurrentCard   string       `json:"current_card"`
	StartTime     time.Time    `json:"start_time"`
	Concurrency   int          `json:"concurrency"`
	IsRateLimited bool         `json:"is_rate_limited"`
	Errors        []ErrorEntry `json:"errors"`
}

// task is the single mutable task record. It is owned by the Controller and
// guarded by the controller mutex; the scheduler goroutine is its only
// writer after creation.
type task struct {
	id    uuid.UUID
	state State

	items  []Item
	cursor int

	concurrency     int
	cleanStreak     int
	rateLimitEvents int
	isRateLimited   bool

	successCount int
	failCount    int
	errors       *errorRing

	currentCard string
	startTime   time.Time

	baseDelay time.Duration
	cancel    func()
}

func (t *task) snapshot() Snapshot {
	return Snapshot{
		Running:       t.state != StateIdle,
		TaskID:        t.id,
		State:         t.state,
		Current:       t.cursor,
		Total:         len(t.items),
		SuccessCount:  t.successCount,
		FailCount:     t.failCount,
		CurrentCard:   t.currentCard,
		StartTime:     t.startTime,
		Concurrency:   t.concurrency,
		IsRateLimited: t.isRateLimited,
		Errors:        t.errors.entries(),
	}
}

// errorRing is a fixed-capacity FIFO of error entries. When full, appending
// evicts the oldest entry.
type errorRing struct {
	buf   []ErrorEntry
	start int
	count int
}

func newErrorRing(capacity int) *errorRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &errorRing{buf: make([]ErrorEntry, capacity)}
}

func (r *errorRing) append(e ErrorEntry) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// Full: overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *errorRing) len() int {
	return r.count
}

// entries returns the recorded entries oldest-first as a fresh slice.
func (r *errorRing) entries() []ErrorEntry {
	out := make([]ErrorEntry, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
