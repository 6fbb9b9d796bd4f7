// Package analytics implements the incremental volume-weighted-average-price
// trackers the HotDispatcher updates on every market event.
package analytics

const rollingWindow = 50

const zeroVolumeEpsilon = 1e-7

// SessionVWAP accumulates a running volume-weighted average price over the
// whole lifetime of the session (until explicitly Reset). It never
// allocates after construction.
type SessionVWAP struct {
	sumPV float64
	sumV  float64
}

// Add folds one trade into the running average.
func (s *SessionVWAP) Add(price, qty float64) {
	s.sumPV += price * qty
	s.sumV += qty
}

// Value returns the current average, or 0 if no volume has been seen yet.
func (s *SessionVWAP) Value() float64 {
	if s.sumV > 0 {
		return s.sumPV / s.sumV
	}
	return 0
}

// Reset clears accumulated volume, used when a VWAP-reset flag fires after
// an ingest reconnect.
func (s *SessionVWAP) Reset() {
	s.sumPV = 0
	s.sumV = 0
}

type priceQty struct {
	pv float64
	v  float64
}

// RollingVWAP tracks a volume-weighted average over the last 50 trades
// using a fixed ring of (price*qty, qty) pairs. Because the ring starts
// zero-valued, Add can unconditionally subtract the slot being overwritten
// before adding the new one without a separate fill phase: subtracting a
// zero pair is a no-op.
type RollingVWAP struct {
	data  [rollingWindow]priceQty
	pos   int
	sumPV float64
	sumV  float64
}

// Add folds one trade into the rolling window, evicting the oldest entry.
func (r *RollingVWAP) Add(price, qty float64) {
	pv := price * qty
	old := r.data[r.pos]
	r.sumPV += pv - old.pv
	r.sumV += qty - old.v
	r.data[r.pos] = priceQty{pv: pv, v: qty}
	r.pos = (r.pos + 1) % rollingWindow
}

// Value returns the current rolling average, or 0 if accumulated volume is
// within epsilon of zero.
func (r *RollingVWAP) Value() float64 {
	if r.sumV > zeroVolumeEpsilon {
		return r.sumPV / r.sumV
	}
	return 0
}

// Reset clears the window back to its zero state.
func (r *RollingVWAP) Reset() {
	r.data = [rollingWindow]priceQty{}
	r.pos = 0
	r.sumPV = 0
	r.sumV = 0
}

// CoinAnalytics bundles the two VWAP trackers maintained per instrument.
// Roll is only updated when extended analytics are enabled for the run.
type CoinAnalytics struct {
	Session SessionVWAP
	Roll    RollingVWAP
}

// Reset clears both trackers, used on a VWAP-reset signal.
func (c *CoinAnalytics) Reset() {
	c.Session.Reset()
	c.Roll.Reset()
}
