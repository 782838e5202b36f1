// Package batch implements the adaptive batch-processing engine that drives
// a rate-limited, black-box text-generation provider at maximum sustainable
// throughput without manual concurrency tuning.
//
// The engine processes a fixed list of items in lockstep windows: every
// window launches up to `concurrency` items in parallel, waits for all of
// them to settle, and feeds the single window outcome into an AIMD-style
// feedback loop. One throttle signal halves concurrency immediately;
// recovery requires three consecutive clean windows before a single-step
// increase.
//
// Usage:
//
//	ctrl, err := batch.NewController(batch.DefaultPolicy())
//	res, err := ctrl.Start(items, processor, batch.StartOptions{
//		BaseDelay:  2 * time.Second,
//		Classifier: enrich.Classify,
//	})
//	unsub := ctrl.Subscribe(func(s batch.Snapshot) { ... })
//	defer unsub()
//	...
//	ctrl.Stop()
//
// A controller owns at most one task at a time. Start returns immediately;
// progress is observed via Status or Subscribe, never via returned errors.
package batch
