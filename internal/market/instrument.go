// Package market holds the fixed instrument universe, the event record
// shapes that flow through the pipeline, and the symbol-to-index
// registry every stage looks up through.
package market

// Instrument describes one tradeable symbol. The instrument set is fixed
// at startup; InstrumentCount never changes afterward.
type Instrument struct {
	Symbol               string  // ASCII, at most 15 bytes + NUL worth of meaningful content
	ReferencePrice       float64 // used only by the emulator
	GlobalWhaleThreshold float64 // notional in quote currency
}

// MarketEvent is the normalized record the Producer writes into the hot
// ring and the HotDispatcher consumes: price, quantity, side, timestamp,
// symbol index, and a latency anchor, sized to fit a cache line. Go
// doesn't let us pin the in-memory layout to an exact byte count the way
// a packed C struct would, so this is the logical equivalent rather than
// a byte-exact one (see DESIGN.md).
type MarketEvent struct {
	Price        float64
	Quantity     float64
	TimestampMs  uint64
	TickReceived uint64 // monotonic cycle counter captured at batch construction, for latency accounting
	IndexSymbol  int32  // -1 for unknown symbol; HotDispatcher drops these
	IsSell       bool
}

// TotalUSD returns the notional value of the trade.
func (e *MarketEvent) TotalUSD() float64 { return e.Price * e.Quantity }

// WhaleEvent is the annotated record the HotDispatcher emits once a
// MarketEvent's notional clears the instrument's whale threshold. It is
// consumed by the EventDispatcher and, per session, by SessionWriter.
type WhaleEvent struct {
	Price       float64
	Quantity    float64
	VWAPSession float64
	VWAPRoll50  float64 // 0 when extended analytics are disabled
	TimestampMs uint64
	IndexSymbol int32
	IsSell      bool
	DeltaRoll   float32 // price - VWAPRoll50; 0 when extended analytics are disabled
}

// TotalUSD returns the notional value of the trade.
func (e *WhaleEvent) TotalUSD() float64 { return e.Price * e.Quantity }
