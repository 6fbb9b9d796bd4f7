package ring

import (
	"runtime"
	"time"
)

// Backoff implements the graduated idle ladder shared by every hot-path
// stage: CPU pause while freshly idle, a batched pause once idling gets
// sustained, then a scheduler yield, then a short sleep. Callers call
// Hit() after a tick that produced no work and Reset() after one that did.
type Backoff struct {
	idle uint64
}

// Reset clears the idle streak after a productive tick.
func (b *Backoff) Reset() { b.idle = 0 }

// Hit advances the ladder by one idle tick and applies the corresponding
// wait.
func (b *Backoff) Hit() {
	switch {
	case b.idle < 1000:
		runtime.Gosched()
	case b.idle < 50000:
		for i := 0; i < 10; i++ {
			runtime.Gosched()
		}
	case b.idle < 100000:
		runtime.Gosched()
	default:
		time.Sleep(time.Millisecond)
	}
	b.idle++
}
