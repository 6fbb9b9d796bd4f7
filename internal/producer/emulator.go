package producer

import (
	"context"
	"time"

	"odin-tradefanout/internal/market"
	"odin-tradefanout/internal/ring"
)

const (
	emulatorBatchSize       = 64
	timestampRefreshEvents  = 50_000_000
	whaleInjectionEvents    = 75_000_000
	pacingPauseEveryBatches = 10
)

// Emulator synthesizes MarketEvents at saturation rate for benchmarking,
// standing in for a live exchange feed. It is single-producer: exactly
// one goroutine may call Run for a given Emulator.
type Emulator struct {
	registry *market.Registry
	rng      *xorshift32

	timestampMs    uint64
	eventsSinceTS  uint64
	eventsSinceWhl uint64
	batchCount     uint64
}

// NewEmulator builds an emulator over the given instrument set. seed
// selects the xorshift stream; tests pass a fixed value for
// reproducibility, production runs derive it from the clock.
func NewEmulator(reg *market.Registry, seed uint32) *Emulator {
	return &Emulator{
		registry:    reg,
		rng:         newXorshift32(seed),
		timestampMs: uint64(time.Now().UnixMilli()),
	}
}

// Run fills hot at saturation rate until ctx is canceled, using backoff
// to pause between batches when hot has no room.
func (e *Emulator) Run(ctx context.Context, hot *ring.Broadcast[market.MarketEvent], backoff *ring.Backoff, counters *Counters) {
	batch := make([]market.MarketEvent, 0, emulatorBatchSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !hot.CanWrite(emulatorBatchSize) {
			backoff.Hit()
			continue
		}
		backoff.Reset()

		batch = batch[:0]
		tick := uint64(time.Now().UnixNano())
		for i := 0; i < emulatorBatchSize; i++ {
			batch = append(batch, e.nextEvent(tick))
		}
		hot.PushBatch(batch)

		e.batchCount++
		if e.batchCount%pacingPauseEveryBatches == 0 {
			backoff.Hit()
			backoff.Reset()
		}
	}
}

func (e *Emulator) nextEvent(tick uint64) market.MarketEvent {
	count := e.registry.Count()
	idx := int32(e.rng.fastRange(uint32(count)))
	inst := e.registry.Instruments[idx]

	e.eventsSinceTS++
	if e.eventsSinceTS >= timestampRefreshEvents {
		e.timestampMs = uint64(time.Now().UnixMilli())
		e.eventsSinceTS = 0
	}

	price := inst.ReferencePrice + e.rng.fastFloatRange(0, 0.7)
	quantity := 1.0

	e.eventsSinceWhl++
	if e.eventsSinceWhl >= whaleInjectionEvents {
		e.eventsSinceWhl = 0
		base := inst.GlobalWhaleThreshold / inst.ReferencePrice
		quantity = base + e.rng.fastFloatRange(0, base*0.05)
	}

	isSell := e.rng.next()&1 == 0

	return market.MarketEvent{
		Price:        price,
		Quantity:     quantity,
		TimestampMs:  e.timestampMs,
		TickReceived: tick,
		IndexSymbol:  idx,
		IsSell:       isSell,
	}
}
