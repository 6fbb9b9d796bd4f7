package session

import (
	"time"

	"odin-tradefanout/internal/market"
	"odin-tradefanout/internal/ring"
	"odin-tradefanout/internal/wire"
)

const (
	writerBatchMax    = 4096
	aliveQuiescence   = 5 * time.Second
)

// Writer drains a Session's ring onto its socket, one dedicated
// goroutine per session. Because it is the only writer, frames are
// naturally serialized without a separate strand or write queue.
type Writer struct {
	session *Session
	msgNum  uint8
}

// NewWriter builds a Writer for an already-subscribed session.
func NewWriter(s *Session) *Writer { return &Writer{session: s} }

// Run drains the session ring until the session closes, encoding
// batches into Data frames and emitting an Alive frame after a
// quiescence interval with no whale traffic.
func (w *Writer) Run() {
	var backoff ring.Backoff
	buf := make([]market.WhaleEvent, writerBatchMax)
	lastSend := time.Now()

	for !w.session.Closing() {
		n := w.session.ring.PopBatch(buf)
		if n == 0 {
			if time.Since(lastSend) >= aliveQuiescence {
				if err := w.sendAlive(); err != nil {
					return
				}
				lastSend = time.Now()
			}
			backoff.Hit()
			continue
		}
		backoff.Reset()

		if err := w.sendData(buf[:n]); err != nil {
			w.session.logger.Printf("session %s: write error: %v", w.session.id, err)
			w.session.Close()
			return
		}
		lastSend = time.Now()
	}
}

func (w *Writer) sendData(events []market.WhaleEvent) error {
	wantVWAP := w.session.DataTypeMask()&wire.SubscribeMaskVWAP != 0

	records := make([]wire.Record, len(events))
	for i, e := range events {
		rec := wire.Record{
			Price:       e.Price,
			Quantity:    e.Quantity,
			IsSell:      e.IsSell,
			TimestampMs: e.TimestampMs,
			Symbol:      w.session.registry.Symbol(e.IndexSymbol),
		}
		if wantVWAP {
			rec.VWAPSession = e.VWAPSession
			rec.VWAPRoll50 = e.VWAPRoll50
			rec.DeltaRoll = float64(e.DeltaRoll)
		}
		records[i] = rec
	}
	body, err := wire.EncodeData(records)
	if err != nil {
		return err
	}
	return w.sendFrame(wire.DataTypeData, body)
}

func (w *Writer) sendAlive() error {
	return w.sendFrame(wire.DataTypeAlive, nil)
}

func (w *Writer) sendFrame(dataType uint8, body []byte) error {
	h := wire.Header{DataType: dataType, MsgNum: w.msgNum, Len: uint32(len(body))}
	w.msgNum++
	frame := append(h.Encode(), body...)
	return w.session.writeFrame(frame)
}
