package pipeline

import (
	"context"
	"log"
	"time"

	"odin-tradefanout/internal/analytics"
	"odin-tradefanout/internal/market"
	"odin-tradefanout/internal/producer"
	"odin-tradefanout/internal/ring"
)

const (
	hotBatchSize          = 64
	hotTailPublishChunk   = 1024
	histogramPublishEvery = 10_000_000
)

// HotDispatcher is the single consumer of the hot ring and single
// producer of the event ring. It normalizes trades, maintains
// per-instrument VWAP analytics, detects whales, and accumulates a
// latency histogram.
type HotDispatcher struct {
	registry  *market.Registry
	hot       *ring.Broadcast[market.MarketEvent]
	events    *ring.Broadcast[market.WhaleEvent]
	resetFlag *producer.VWAPResetFlag
	snapshot  *LatencySnapshot
	extVWAP   bool
	logger    *log.Logger

	coins []analytics.CoinAnalytics

	cursor           uint64
	sinceTailPublish uint64
	sinceHistPublish uint64
	hist             LatencyHistogram

	onLatency func(nanos uint64)
	onWhale   func()
}

// SetMetricsHooks wires optional callbacks the server layer uses to feed
// its Prometheus collector. Either may be nil.
func (d *HotDispatcher) SetMetricsHooks(onLatency func(nanos uint64), onWhale func()) {
	d.onLatency = onLatency
	d.onWhale = onWhale
}

// NewHotDispatcher wires a HotDispatcher over reg's instrument set.
// extVWAP enables the rolling-50 tracker and its fields in emitted whale
// events; when false those fields stay at zero.
func NewHotDispatcher(reg *market.Registry, hot *ring.Broadcast[market.MarketEvent], events *ring.Broadcast[market.WhaleEvent], resetFlag *producer.VWAPResetFlag, snapshot *LatencySnapshot, extVWAP bool, logger *log.Logger) *HotDispatcher {
	return &HotDispatcher{
		registry:  reg,
		hot:       hot,
		events:    events,
		resetFlag: resetFlag,
		snapshot:  snapshot,
		extVWAP:   extVWAP,
		logger:    logger,
		coins:     make([]analytics.CoinAnalytics, reg.Count()),
	}
}

// Run drives the dispatcher until ctx is canceled.
func (d *HotDispatcher) Run(ctx context.Context, backoff *ring.Backoff) {
	whales := make([]market.WhaleEvent, 0, hotBatchSize)

	for {
		select {
		case <-ctx.Done():
			d.publishTail()
			return
		default:
		}

		if d.resetFlag.ConsumeAndClear() {
			for i := range d.coins {
				d.coins[i].Reset()
			}
		}

		head := d.hot.Head()
		if head == d.cursor {
			d.publishTail()
			backoff.Hit()
			continue
		}

		n := head - d.cursor
		if n > hotBatchSize {
			n = hotBatchSize
		}
		for !d.events.CanWrite(n) {
			backoff.Hit()
		}
		backoff.Reset()

		whales = whales[:0]
		now := uint64(time.Now().UnixNano())
		for i := uint64(0); i < n; i++ {
			e := d.hot.Read(d.cursor + i)
			if w, ok := d.process(e, now); ok {
				whales = append(whales, w)
			}
		}
		if len(whales) > 0 {
			d.events.PushBatch(whales)
			if d.onWhale != nil {
				for range whales {
					d.onWhale()
				}
			}
		}

		d.cursor += n
		d.sinceTailPublish += n
		if d.sinceTailPublish >= hotTailPublishChunk {
			d.publishTail()
		}

		d.sinceHistPublish += n
		if d.sinceHistPublish >= histogramPublishEvery {
			d.snapshot.Publish(&d.hist)
			d.hist.reset()
			d.sinceHistPublish = 0
		}
	}
}

func (d *HotDispatcher) publishTail() {
	if d.sinceTailPublish == 0 {
		return
	}
	d.hot.UpdateTail(d.cursor)
	d.sinceTailPublish = 0
}

func (d *HotDispatcher) process(e *market.MarketEvent, now uint64) (market.WhaleEvent, bool) {
	if !d.registry.Valid(e.IndexSymbol) {
		return market.WhaleEvent{}, false
	}

	c := &d.coins[e.IndexSymbol]
	c.Session.Add(e.Price, e.Quantity)
	if d.extVWAP {
		c.Roll.Add(e.Price, e.Quantity)
	}

	if now >= e.TickReceived {
		latency := now - e.TickReceived
		d.hist.observe(latency)
		if d.onLatency != nil {
			d.onLatency(latency)
		}
	}

	inst := d.registry.Instruments[e.IndexSymbol]
	notional := e.Price * e.Quantity
	if notional < inst.GlobalWhaleThreshold {
		return market.WhaleEvent{}, false
	}

	w := market.WhaleEvent{
		Price:       e.Price,
		Quantity:    e.Quantity,
		IsSell:      e.IsSell,
		TimestampMs: e.TimestampMs,
		IndexSymbol: e.IndexSymbol,
		VWAPSession: c.Session.Value(),
	}
	if d.extVWAP {
		roll := c.Roll.Value()
		w.VWAPRoll50 = roll
		w.DeltaRoll = float32(e.Price - roll)
	}
	return w, true
}
