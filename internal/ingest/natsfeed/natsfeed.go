// Package natsfeed adapts a NATS subject carrying trade JSON into a
// producer.IngestSource, for deployments where trades arrive over an
// internal bus rather than a public exchange feed.
package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"odin-tradefanout/internal/producer"
)

const (
	noDataTimeout = 5 * time.Second
	reconnectWait = 2 * time.Second
)

// tradeMessage is the same exchange trade-stream shape wsfeed decodes,
// carried verbatim onto the internal bus.
type tradeMessage struct {
	Symbol      string `json:"s"`
	EventTimeMs uint64 `json:"E"`
	Price       string `json:"p"`
	Quantity    string `json:"q"`
	IsSell      bool   `json:"m"`
}

// Source subscribes to subject on a NATS server and feeds decoded
// trades to a producer.TradeHandler. Each reconnect cycle raises reset
// so HotDispatcher clears session VWAPs at the next batch boundary.
type Source struct {
	url     string
	subject string
	reset   *producer.VWAPResetFlag
	logger  *log.Logger
}

// New builds a natsfeed.Source.
func New(url, subject string, reset *producer.VWAPResetFlag, logger *log.Logger) *Source {
	return &Source{url: url, subject: subject, reset: reset, logger: logger}
}

// Run connects and subscribes, reconnecting from scratch on any error or
// on noDataTimeout of silence, until ctx is canceled.
func (s *Source) Run(ctx context.Context, handle producer.TradeHandler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.runOnce(ctx, handle); err != nil {
			s.logger.Printf("natsfeed: %v, reconnecting in %s", err, reconnectWait)
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
	conn, err := nats.Connect(s.url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	activity := make(chan struct{}, 1)
	sub, err := conn.Subscribe(s.subject, func(msg *nats.Msg) {
		s.decodeAndHandle(msg.Data, handle)
		select {
		case activity <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	defer sub.Unsubscribe()

	timer := time.NewTimer(noDataTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-activity:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(noDataTimeout)
		case <-timer.C:
			return fmt.Errorf("no data for %s", noDataTimeout)
		}
	}
}

func (s *Source) decodeAndHandle(data []byte, handle producer.TradeHandler) {
	var tm tradeMessage
	if err := json.Unmarshal(data, &tm); err != nil {
		s.logger.Printf("natsfeed: malformed trade message: %v", err)
		return
	}
	price, err := strconv.ParseFloat(tm.Price, 64)
	if err != nil {
		return
	}
	qty, err := strconv.ParseFloat(tm.Quantity, 64)
	if err != nil {
		return
	}
	handle(producer.TradeRecord{
		Symbol:      tm.Symbol,
		Price:       price,
		Quantity:    qty,
		IsSell:      tm.IsSell,
		TimestampMs: tm.EventTimeMs,
	})
}
