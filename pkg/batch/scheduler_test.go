package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// recorder collects every published snapshot in order.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

// cursorProgression reduces the snapshot stream to the distinct successive
// cursor values, i.e. the window boundaries.
func cursorProgression(snaps []Snapshot) []int {
	var out []int
	for _, s := range snaps {
		if len(out) == 0 || out[len(out)-1] != s.Current {
			out = append(out, s.Current)
		}
	}
	return out
}

// Ten clean items starting at concurrency 3 must run as windows [3,3,3,1]:
// the third consecutive clean window raises concurrency to 4, which only
// benefits the remaining single item.
func TestScheduler_CleanRunWindowProgression(t *testing.T) {
	c, _ := NewController(fastPolicy())
	rec := &recorder{}
	defer c.Subscribe(rec.record)()

	if _, err := c.Start(makeItems(10), okProcessor(), fastOptions()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := waitIdle(t, c)

	if snap.SuccessCount != 10 || snap.FailCount != 0 {
		t.Fatalf("counts = %d/%d, want 10/0", snap.SuccessCount, snap.FailCount)
	}
	if snap.Current != 10 {
		t.Errorf("Current = %d, want 10 at natural completion", snap.Current)
	}

	progression := cursorProgression(rec.all())
	want := []int{0, 3, 6, 9, 10}
	if fmt.Sprint(progression) != fmt.Sprint(want) {
		t.Errorf("cursor progression = %v, want %v", progression, want)
	}

	// The snapshot completing the 3rd clean window carries the increase.
	for _, s := range rec.all() {
		if s.Current == 9 {
			if s.Concurrency != 4 {
				t.Errorf("concurrency after 3rd clean window = %d, want 4", s.Concurrency)
			}
			break
		}
	}
}

// Item 4 of 10 fails twice with a 429-classified error and succeeds on the
// third attempt: it counts as a success with no error entry, but its window
// is marked rate-limited and concurrency halves.
func TestScheduler_RateLimitedItemRecovers(t *testing.T) {
	c, _ := NewController(fastPolicy())
	rec := &recorder{}
	defer c.Subscribe(rec.record)()

	var mu sync.Mutex
	attempts := make(map[string]int)
	proc := ProcessorFunc(func(ctx context.Context, item Item) error {
		mu.Lock()
		attempts[item.ID]++
		n := attempts[item.ID]
		mu.Unlock()

		if item.ID == "item-4" && n <= 2 {
			return errThrottled
		}
		return nil
	})

	if _, err := c.Start(makeItems(10), proc, fastOptions()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := waitIdle(t, c)

	if snap.SuccessCount != 10 || snap.FailCount != 0 {
		t.Fatalf("counts = %d/%d, want 10/0", snap.SuccessCount, snap.FailCount)
	}
	if len(snap.Errors) != 0 {
		t.Errorf("errors = %v, want none (retried item succeeded)", snap.Errors)
	}

	// The window containing item-4 settles at cursor 6 with halved concurrency.
	var sawHalved bool
	for _, s := range rec.all() {
		if s.Current == 6 && s.IsRateLimited {
			sawHalved = true
			if s.Concurrency != 1 {
				t.Errorf("concurrency after throttled window = %d, want 1", s.Concurrency)
			}
		}
	}
	if !sawHalved {
		t.Error("no rate-limited snapshot observed at the throttled window boundary")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts["item-4"] != 3 {
		t.Errorf("item-4 attempts = %d, want 3", attempts["item-4"])
	}
}

// Stop mid-window lets the in-flight window settle, launches nothing more,
// and leaves the cursor short of the total.
func TestScheduler_StopMidWindow(t *testing.T) {
	c, _ := NewController(fastPolicy())

	var mu sync.Mutex
	processed := 0
	started := make(chan struct{}, 16)
	release := make(chan struct{})

	proc := ProcessorFunc(func(ctx context.Context, item Item) error {
		started <- struct{}{}
		<-release
		mu.Lock()
		processed++
		mu.Unlock()
		return nil
	})

	if _, err := c.Start(makeItems(10), proc, fastOptions()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for the full first window to be in flight.
	for i := 0; i < 3; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("first window did not launch")
		}
	}

	if res := c.Stop(); !res.Stopped {
		t.Fatal("Stop() did not report stopped")
	}
	close(release)

	snap := waitIdle(t, c)

	mu.Lock()
	got := processed
	mu.Unlock()
	if got != 3 {
		t.Errorf("processed = %d, want 3 (in-flight window only)", got)
	}
	if snap.Current != 3 {
		t.Errorf("Current = %d, want 3", snap.Current)
	}
	if snap.Current >= snap.Total {
		t.Errorf("cursor reached total after cancellation: %d/%d", snap.Current, snap.Total)
	}
	if snap.Running {
		t.Error("Running = true after stop settled")
	}
}

// Stop during the inter-batch delay interrupts the sleep instead of waiting
// it out.
func TestScheduler_StopInterruptsDelay(t *testing.T) {
	p := fastPolicy()
	c, _ := NewController(p)

	opts := fastOptions()
	opts.BaseDelay = 10 * time.Second

	start := time.Now()
	if _, err := c.Start(makeItems(6), okProcessor(), opts); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let the first window settle into its long pacing sleep.
	time.Sleep(100 * time.Millisecond)
	c.Stop()

	waitIdle(t, c)
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("stop took %v, inter-batch sleep was not interrupted", elapsed)
	}
}

func TestScheduler_ErrorRingCapped(t *testing.T) {
	c, _ := NewController(fastPolicy())

	proc := ProcessorFunc(func(ctx context.Context, item Item) error {
		return fmt.Errorf("no description generated for %s", item.ID)
	})

	if _, err := c.Start(makeItems(150), proc, fastOptions()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := waitIdle(t, c)

	if snap.SuccessCount != 0 || snap.FailCount != 150 {
		t.Fatalf("counts = %d/%d, want 0/150", snap.SuccessCount, snap.FailCount)
	}
	if len(snap.Errors) != 100 {
		t.Fatalf("errors = %d entries, want 100", len(snap.Errors))
	}
	// Oldest 50 evicted; the ring starts at item-50.
	if snap.Errors[0].ItemID != "item-50" {
		t.Errorf("oldest entry = %s, want item-50", snap.Errors[0].ItemID)
	}
	if last := snap.Errors[99].ItemID; last != "item-149" {
		t.Errorf("newest entry = %s, want item-149", last)
	}
}

func TestScheduler_PartialSuccessLoggedAsWarning(t *testing.T) {
	c, _ := NewController(fastPolicy())

	proc := ProcessorFunc(func(ctx context.Context, item Item) error {
		if item.ID == "item-2" {
			return &PartialError{Err: errors.New("tags field missing")}
		}
		return nil
	})

	if _, err := c.Start(makeItems(5), proc, fastOptions()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := waitIdle(t, c)

	if snap.SuccessCount != 5 || snap.FailCount != 0 {
		t.Fatalf("counts = %d/%d, want 5/0 (partial counts as success)", snap.SuccessCount, snap.FailCount)
	}
	if len(snap.Errors) != 1 {
		t.Fatalf("errors = %d entries, want 1 warning", len(snap.Errors))
	}
	if !snap.Errors[0].IsWarning {
		t.Error("IsWarning = false, want true")
	}
	if snap.Errors[0].ItemID != "item-2" {
		t.Errorf("warning item = %s, want item-2", snap.Errors[0].ItemID)
	}
}

func TestScheduler_ProcessorPanicSettlesAsFailure(t *testing.T) {
	c, _ := NewController(fastPolicy())

	proc := ProcessorFunc(func(ctx context.Context, item Item) error {
		if item.ID == "item-1" {
			panic("template exploded")
		}
		return nil
	})

	if _, err := c.Start(makeItems(4), proc, fastOptions()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := waitIdle(t, c)

	if snap.SuccessCount != 3 || snap.FailCount != 1 {
		t.Fatalf("counts = %d/%d, want 3/1", snap.SuccessCount, snap.FailCount)
	}
	if len(snap.Errors) != 1 {
		t.Fatalf("errors = %d entries, want 1", len(snap.Errors))
	}
	if snap.Errors[0].ItemID != "item-1" {
		t.Errorf("failed item = %s, want item-1", snap.Errors[0].ItemID)
	}
}

// Mixed outcomes must still account for every settled item.
func TestScheduler_CountsSumToTotal(t *testing.T) {
	c, _ := NewController(fastPolicy())

	proc := ProcessorFunc(func(ctx context.Context, item Item) error {
		switch item.ID {
		case "item-3", "item-7", "item-11":
			return errors.New("provider refused")
		default:
			return nil
		}
	})

	if _, err := c.Start(makeItems(13), proc, fastOptions()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := waitIdle(t, c)

	if snap.SuccessCount+snap.FailCount != snap.Total {
		t.Errorf("success+fail = %d, want total %d",
			snap.SuccessCount+snap.FailCount, snap.Total)
	}
	if snap.FailCount != 3 {
		t.Errorf("FailCount = %d, want 3", snap.FailCount)
	}
}
