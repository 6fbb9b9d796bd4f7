// Package session implements the per-client TCP protocol state machine:
// accepting a connection, validating the Subscribe handshake, and then
// running a dedicated writer that drains the session's whale-event ring
// onto the wire.
package session

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"sync/atomic"
	"time"

	"odin-tradefanout/internal/market"
	"odin-tradefanout/internal/ring"
	"odin-tradefanout/internal/wire"
)

const sessionRingCapacity = 1 << 18 // 256Ki entries, the minimum for whale-event sessions

// State is the session's protocol state machine position.
type State int32

const (
	StateConnected State = iota
	StateReadingHeader
	StateReadingBody
	StateSubscribed
	StateClosed
)

// Session owns one accepted TCP connection and the per-session ring that
// feeds it. SymbolIndex, WhaleThreshold, and TryPush satisfy
// pipeline.SessionTarget without this package depending on pipeline.
type Session struct {
	conn     net.Conn
	registry *market.Registry
	logger   *log.Logger

	id string

	ring *ring.Session[market.WhaleEvent]

	state         atomic.Int32
	symbolIndex   atomic.Int32
	thresholdBits atomic.Uint64
	dataTypeMask  atomic.Uint32
	closing       atomic.Bool

	onSubscribed func(*Session)
	onClosed     func(*Session)
}

// New wraps an accepted connection. onSubscribed and onClosed let the
// Server maintain its subscriber set: onSubscribed is called at most
// once, from Serve's goroutine, after a successful Subscribe; onClosed is
// called exactly once, from whichever goroutine first calls Close.
func New(conn net.Conn, registry *market.Registry, logger *log.Logger, onSubscribed, onClosed func(*Session)) *Session {
	tuneConn(conn)
	s := &Session{
		conn:         conn,
		registry:     registry,
		logger:       logger,
		id:           conn.RemoteAddr().String(),
		ring:         ring.NewSession[market.WhaleEvent](sessionRingCapacity),
		onSubscribed: onSubscribed,
		onClosed:     onClosed,
	}
	s.symbolIndex.Store(-1)
	s.state.Store(int32(StateConnected))
	return s
}

// ID identifies the session for logging, the remote address.
func (s *Session) ID() string { return s.id }

// State returns the current protocol state.
func (s *Session) State() State { return State(s.state.Load()) }

// SymbolIndex returns the instrument this session filters on, or -1
// before a successful Subscribe.
func (s *Session) SymbolIndex() int32 { return s.symbolIndex.Load() }

// WhaleThreshold returns the session's notional threshold.
func (s *Session) WhaleThreshold() float64 {
	return math.Float64frombits(s.thresholdBits.Load())
}

// Closing reports whether the session has begun shutting down.
func (s *Session) Closing() bool { return s.closing.Load() }

// DataTypeMask returns the subscription bitset (wire.SubscribeMaskWhale,
// wire.SubscribeMaskVWAP) the session's Subscribe frame requested.
func (s *Session) DataTypeMask() uint8 { return uint8(s.dataTypeMask.Load()) }

// TryPush enqueues a whale event for delivery, per the EventDispatcher's
// routing contract. Returns false if the session is closing or its ring
// is full; the caller counts that as a per-client drop.
func (s *Session) TryPush(ev market.WhaleEvent) bool {
	if s.closing.Load() {
		return false
	}
	return s.ring.TryPush(ev)
}

// Serve runs the read side of the protocol state machine to completion:
// header, body, subscribe validation, then blocks reading for EOF/error
// to detect connection loss while the writer (started separately) drains
// the session ring. It always leaves the session Closed on return.
func (s *Session) Serve() {
	defer s.Close()

	s.state.Store(int32(StateReadingHeader))
	sub, err := s.readSubscribe()
	if err != nil {
		s.logger.Printf("session %s: subscribe failed: %v", s.id, err)
		return
	}

	idx := s.registry.IndexOf(sub.Symbol)
	if idx < 0 {
		s.logger.Printf("session %s: unknown symbol %q, closing", s.id, sub.Symbol)
		return
	}
	s.symbolIndex.Store(idx)
	s.thresholdBits.Store(math.Float64bits(sub.WhaleThreshold))
	s.dataTypeMask.Store(uint32(sub.DataTypeMask))
	s.state.Store(int32(StateSubscribed))

	if s.onSubscribed != nil {
		s.onSubscribed(s)
	}

	// Block here to detect peer close/error; the client sends nothing
	// further once subscribed.
	buf := make([]byte, 1)
	for {
		if _, err := s.conn.Read(buf); err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Printf("session %s: read error after subscribe: %v", s.id, err)
			}
			return
		}
		// Any post-subscribe traffic is a protocol violation: close.
		s.logger.Printf("session %s: unexpected post-subscribe traffic, closing", s.id)
		return
	}
}

func (s *Session) readSubscribe() (wire.Subscribe, error) {
	h, err := wire.ReadHeader(s.conn)
	if err != nil {
		return wire.Subscribe{}, fmt.Errorf("reading header: %w", err)
	}
	s.state.Store(int32(StateReadingBody))

	if h.DataType != wire.DataTypeSubscribe || h.MsgNum != 0 {
		return wire.Subscribe{}, fmt.Errorf("expected Subscribe header (data_type=0x01, msg_num=0), got data_type=%#x msg_num=%d", h.DataType, h.MsgNum)
	}

	body := make([]byte, h.Len)
	if _, err := io.ReadFull(s.conn, body); err != nil {
		return wire.Subscribe{}, fmt.Errorf("reading body: %w", err)
	}

	return wire.DecodeSubscribe(body)
}

// Close is idempotent: it transitions the session to Closed, closes the
// socket, and invokes onClosed exactly once. The per-session ring is
// abandoned, not drained.
func (s *Session) Close() {
	if s.closing.Swap(true) {
		return
	}
	s.state.Store(int32(StateClosed))
	_ = s.conn.Close()
	if s.onClosed != nil {
		s.onClosed(s)
	}
}

// writeFrame performs the raw write the writer goroutine issues, kept as
// a method so tests can substitute a net.Pipe conn.
func (s *Session) writeFrame(payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Time{}); err != nil {
		return err
	}
	_, err := s.conn.Write(payload)
	return err
}
