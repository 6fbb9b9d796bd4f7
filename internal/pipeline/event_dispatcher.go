package pipeline

import (
	"context"
	"log"
	"sync/atomic"

	"odin-tradefanout/internal/market"
	"odin-tradefanout/internal/ring"
)

const (
	eventBatchSize             = 1024
	eventTailPublishChunk      = 512
	eventSafetyRebuildInterval = 10_000_000_000
)

// SessionTarget is the subset of Session that EventDispatcher needs:
// enough to route a WhaleEvent without depending on the session package
// directly, avoiding an import cycle and keeping routing decoupled from
// the TCP protocol state machine.
type SessionTarget interface {
	SymbolIndex() int32
	WhaleThreshold() float64
	TryPush(ev market.WhaleEvent) bool
}

// SubscriberSnapshot returns the currently registered sessions. The
// Server supplies this, taking its subscribers mutex internally; it must
// never be called from a hot loop more often than the changed flag
// indicates is necessary.
type SubscriberSnapshot func() []SessionTarget

// EventDispatcher is the single consumer of the event ring. It fans each
// WhaleEvent out to every session subscribed to its instrument whose
// per-session threshold the trade clears.
type EventDispatcher struct {
	registry           *market.Registry
	events             *ring.Broadcast[market.WhaleEvent]
	subscribersChanged *atomic.Bool
	snapshot           SubscriberSnapshot
	counters           *Counters
	logger             *log.Logger

	routing [][]SessionTarget

	cursor           uint64
	sinceTailPublish uint64
	iterations       uint64
}

// NewEventDispatcher wires an EventDispatcher over reg's instrument
// count. subscribersChanged is set by the Server whenever the
// subscriber set is registered or expired; snapshot fetches the current
// list under the Server's mutex.
func NewEventDispatcher(reg *market.Registry, events *ring.Broadcast[market.WhaleEvent], subscribersChanged *atomic.Bool, snapshot SubscriberSnapshot, counters *Counters, logger *log.Logger) *EventDispatcher {
	return &EventDispatcher{
		registry:           reg,
		events:             events,
		subscribersChanged: subscribersChanged,
		snapshot:           snapshot,
		counters:           counters,
		logger:             logger,
		routing:            make([][]SessionTarget, reg.Count()),
	}
}

// Run drives the dispatcher until ctx is canceled.
func (d *EventDispatcher) Run(ctx context.Context, backoff *ring.Backoff) {
	for {
		select {
		case <-ctx.Done():
			d.publishTail()
			return
		default:
		}

		head := d.events.Head()
		occupancy := head - d.cursor
		highWater := d.events.Capacity() * 9 / 10

		if occupancy > highWater {
			d.logger.Printf("OVERLOADED! DROPS!")
			d.counters.EventOverloads.Add(1)
			d.cursor = head
			d.events.UpdateTail(d.cursor)
			d.sinceTailPublish = 0
			backoff.Reset()
			continue
		}

		d.maybeRebuildRouting()

		if occupancy == 0 {
			d.publishTail()
			backoff.Hit()
			continue
		}
		backoff.Reset()

		n := occupancy
		if n > eventBatchSize {
			n = eventBatchSize
		}
		for i := uint64(0); i < n; i++ {
			e := d.events.Read(d.cursor + i)
			d.route(e)
		}

		d.cursor += n
		d.sinceTailPublish += n
		if d.sinceTailPublish >= eventTailPublishChunk {
			d.publishTail()
		}

		d.iterations++
		if d.iterations >= eventSafetyRebuildInterval {
			d.rebuildRouting()
			d.iterations = 0
		}
	}
}

func (d *EventDispatcher) publishTail() {
	if d.sinceTailPublish == 0 {
		return
	}
	d.events.UpdateTail(d.cursor)
	d.sinceTailPublish = 0
}

func (d *EventDispatcher) route(e *market.WhaleEvent) {
	if !d.registry.Valid(e.IndexSymbol) {
		return
	}
	notional := e.Price * e.Quantity
	for _, s := range d.routing[e.IndexSymbol] {
		if notional < s.WhaleThreshold() {
			continue
		}
		if !s.TryPush(*e) {
			d.counters.EventDropped.Add(1)
		}
	}
}

func (d *EventDispatcher) maybeRebuildRouting() {
	if d.subscribersChanged.CompareAndSwap(true, false) {
		d.rebuildRouting()
	}
}

func (d *EventDispatcher) rebuildRouting() {
	routing := make([][]SessionTarget, d.registry.Count())
	for _, s := range d.snapshot() {
		idx := s.SymbolIndex()
		if !d.registry.Valid(idx) {
			continue
		}
		routing[idx] = append(routing[idx], s)
	}
	d.routing = routing
}
