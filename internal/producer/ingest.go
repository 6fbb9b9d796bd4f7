package producer

import (
	"context"
	"sync/atomic"
)

// TradeRecord is the normalized shape an ingest adapter hands to RunIngest:
// symbol, price, quantity, side, timestamp, independent of the wire format
// any particular exchange or broker uses.
type TradeRecord struct {
	Symbol      string
	Price       float64
	Quantity    float64
	IsSell      bool
	TimestampMs uint64
}

// TradeHandler is invoked once per decoded trade.
type TradeHandler func(TradeRecord)

// IngestSource is the opaque external collaborator that delivers decoded
// trade records. wsfeed and natsfeed are the two concrete
// implementations; both call handle for every trade and Raise the shared
// VWAPResetFlag whenever they reconnect after a no-data timeout.
type IngestSource interface {
	Run(ctx context.Context, handle TradeHandler) error
}

// VWAPResetFlag is the single-writer, any-reader signal an ingest adapter
// raises after a reconnect. HotDispatcher consumes it at the next batch
// boundary and resets every instrument's SessionVWAP.
type VWAPResetFlag struct {
	flag atomic.Bool
}

// Raise marks that a VWAP reset is due. Safe to call from the ingest
// adapter's goroutine.
func (f *VWAPResetFlag) Raise() { f.flag.Store(true) }

// ConsumeAndClear reports whether a reset was pending and clears it
// atomically. Called by HotDispatcher at a batch boundary.
func (f *VWAPResetFlag) ConsumeAndClear() bool { return f.flag.Swap(false) }
