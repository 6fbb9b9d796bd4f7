// Package pipeline implements the HotDispatcher and EventDispatcher
// stages that sit between the hot ring, the event ring, and the set of
// connected sessions.
package pipeline

import "sync/atomic"

const (
	histogramBuckets    = 4096
	histogramBucketBits = 10 // ticks are nanoseconds here, so ticks >> 10 gives 1024ns per bucket
)

// LatencyHistogram is the per-publish-interval snapshot HotDispatcher
// accumulates locally before handing it to a LatencySnapshot.
type LatencyHistogram struct {
	Buckets [histogramBuckets]uint64
	Count   uint64
}

func (h *LatencyHistogram) observe(ticks uint64) {
	bucket := ticks >> histogramBucketBits
	if bucket >= histogramBuckets {
		bucket = histogramBuckets - 1
	}
	h.Buckets[bucket]++
	h.Count++
}

func (h *LatencyHistogram) reset() {
	for i := range h.Buckets {
		h.Buckets[i] = 0
	}
	h.Count = 0
}

// LatencySnapshot is a single-writer, non-blocking double buffer: the
// writer only copies a fresh histogram in once the reader has marked the
// previous one consumed, so the hot path never blocks on the monitor
// thread.
type LatencySnapshot struct {
	buf      [2]LatencyHistogram
	active   atomic.Uint32
	consumed atomic.Bool
}

// NewLatencySnapshot returns a snapshot with nothing pending.
func NewLatencySnapshot() *LatencySnapshot {
	s := &LatencySnapshot{}
	s.consumed.Store(true)
	return s
}

// Publish copies h into the inactive buffer and exposes it to readers,
// unless the previous publish hasn't been consumed yet, in which case it
// is skipped rather than blocking.
func (s *LatencySnapshot) Publish(h *LatencyHistogram) {
	if !s.consumed.Load() {
		return
	}
	next := 1 - s.active.Load()
	s.buf[next] = *h
	s.active.Store(next)
	s.consumed.Store(false)
}

// Read returns the most recent published histogram and marks it
// consumed. The second return value is false if nothing new has been
// published since the last Read.
func (s *LatencySnapshot) Read() (LatencyHistogram, bool) {
	if s.consumed.Load() {
		return LatencyHistogram{}, false
	}
	idx := s.active.Load()
	h := s.buf[idx]
	s.consumed.Store(true)
	return h, true
}

// Percentile returns the ticks value at the given percentile in (0,1]
// using the bucket boundaries, for console rendering by the monitor.
func (h *LatencyHistogram) Percentile(p float64) uint64 {
	if h.Count == 0 {
		return 0
	}
	target := uint64(p * float64(h.Count))
	var cum uint64
	for i, c := range h.Buckets {
		cum += c
		if cum >= target {
			return uint64(i) << histogramBucketBits
		}
	}
	return uint64(histogramBuckets-1) << histogramBucketBits
}
