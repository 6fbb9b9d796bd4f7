package pipeline

import "sync/atomic"

// Counters tallies backpressure and overload events so they are
// surfaced for monitoring instead of silently swallowed, without
// turning them into per-event errors.
type Counters struct {
	HotDropped     atomic.Uint64 // reserved for symmetry with producer.Counters; HotDispatcher never drops
	EventOverloads atomic.Uint64
	EventDropped   atomic.Uint64 // per-client TryPush failures, one count per dropped delivery
}
