// Package wsfeed adapts an exchange-style streaming WebSocket endpoint
// into a producer.IngestSource, decoding the same Binance trade-stream
// JSON shape the emulator's whale formula is calibrated against.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"odin-tradefanout/internal/producer"
)

const (
	noDataTimeout = 5 * time.Second
	reconnectWait = 2 * time.Second
	readDeadline  = noDataTimeout
)

// tradeMessage mirrors the exchange's trade-stream shape:
// {"s":symbol,"E":timestamp_ms,"p":"price","q":"qty","m":is_buyer_maker}.
type tradeMessage struct {
	Symbol      string `json:"s"`
	EventTimeMs uint64 `json:"E"`
	Price       string `json:"p"`
	Quantity    string `json:"q"`
	IsSell      bool   `json:"m"`
}

// Source dials url and feeds decoded trades to a producer.TradeHandler,
// reconnecting on any error or on noDataTimeout of silence. Every
// reconnect raises Reset so HotDispatcher clears session VWAPs at the
// next batch boundary.
type Source struct {
	url    string
	reset  *producer.VWAPResetFlag
	logger *log.Logger
}

// New builds a wsfeed.Source dialing url. reset is raised on every
// reconnect.
func New(url string, reset *producer.VWAPResetFlag, logger *log.Logger) *Source {
	return &Source{url: url, reset: reset, logger: logger}
}

// Run dials and redials url until ctx is canceled, decoding trades into
// handle. It only returns when ctx is done.
func (s *Source) Run(ctx context.Context, handle producer.TradeHandler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.runOnce(ctx, handle); err != nil {
			s.logger.Printf("wsfeed: %v, reconnecting in %s", err, reconnectWait)
		}
		s.reset.Raise()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectWait):
		}
	}
}

func (s *Source) runOnce(ctx context.Context, handle producer.TradeHandler) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		var msg tradeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Printf("wsfeed: malformed trade message: %v", err)
			continue
		}
		price, err := strconv.ParseFloat(msg.Price, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(msg.Quantity, 64)
		if err != nil {
			continue
		}
		handle(producer.TradeRecord{
			Symbol:      msg.Symbol,
			Price:       price,
			Quantity:    qty,
			IsSell:      msg.IsSell,
			TimestampMs: msg.EventTimeMs,
		})
	}
}
