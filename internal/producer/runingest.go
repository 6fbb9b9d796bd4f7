package producer

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"odin-tradefanout/internal/market"
	"odin-tradefanout/internal/ring"
)

// Counters tallies events a RunIngest or Emulator instance could not
// deliver, surfaced through metrics rather than per-event errors.
// Dropped is written from the single producer goroutine and read
// concurrently by the server's monitor loop, hence atomic.
type Counters struct {
	Dropped atomic.Uint64
}

// RunIngest drives source until ctx is canceled or source.Run returns,
// looking up each trade's instrument and pushing it into hot one record
// at a time. Unknown symbols are silently dropped; a full HotRing is a
// counted backpressure drop, not an error.
func RunIngest(ctx context.Context, source IngestSource, reg *market.Registry, hot *ring.Broadcast[market.MarketEvent], counters *Counters, logger *log.Logger) error {
	handle := func(rec TradeRecord) {
		idx := reg.IndexOf(rec.Symbol)
		if idx < 0 {
			return
		}
		ev := market.MarketEvent{
			Price:        rec.Price,
			Quantity:     rec.Quantity,
			TimestampMs:  rec.TimestampMs,
			TickReceived: uint64(time.Now().UnixNano()),
			IndexSymbol:  idx,
			IsSell:       rec.IsSell,
		}
		if !hot.CanWrite(1) {
			counters.Dropped.Add(1)
			return
		}
		hot.PushBatch([]market.MarketEvent{ev})
	}

	err := source.Run(ctx, handle)
	if err != nil && ctx.Err() == nil {
		logger.Printf("ingest source exited: %v", err)
	}
	return err
}
