package producer

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"odin-tradefanout/internal/market"
	"odin-tradefanout/internal/ring"
)

func testRegistry() *market.Registry {
	return market.NewRegistry([]market.Instrument{
		{Symbol: "BTCUSDT", ReferencePrice: 96000, GlobalWhaleThreshold: 100000},
		{Symbol: "ETHUSDT", ReferencePrice: 2700, GlobalWhaleThreshold: 70000},
	})
}

func TestEmulatorFillsHotRing(t *testing.T) {
	reg := testRegistry()
	hot := ring.NewBroadcast[market.MarketEvent](1024)
	e := NewEmulator(reg, 42)
	var backoff ring.Backoff

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx, hot, &backoff, &Counters{})
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for hot.Head() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if hot.Head() == 0 {
		t.Fatal("expected emulator to push at least one batch")
	}
	ev := hot.Read(hot.Tail())
	if !reg.Valid(ev.IndexSymbol) {
		t.Fatalf("emitted event has invalid IndexSymbol %d", ev.IndexSymbol)
	}
}

type fakeIngestSource struct {
	records []TradeRecord
}

func (f *fakeIngestSource) Run(ctx context.Context, handle TradeHandler) error {
	for _, r := range f.records {
		handle(r)
	}
	return nil
}

func TestRunIngestDropsUnknownSymbols(t *testing.T) {
	reg := testRegistry()
	hot := ring.NewBroadcast[market.MarketEvent](16)
	source := &fakeIngestSource{records: []TradeRecord{
		{Symbol: "BTCUSDT", Price: 96000, Quantity: 1},
		{Symbol: "DOGEUSDT", Price: 1, Quantity: 1},
		{Symbol: "ETHUSDT", Price: 2700, Quantity: 2},
	}}
	counters := &Counters{}
	logger := log.New(io.Discard, "", 0)

	if err := RunIngest(context.Background(), source, reg, hot, counters, logger); err != nil {
		t.Fatalf("RunIngest: %v", err)
	}

	if hot.Head() != 2 {
		t.Fatalf("hot.Head() = %d, want 2 (unknown symbol dropped)", hot.Head())
	}
}

func TestVWAPResetFlag(t *testing.T) {
	var f VWAPResetFlag
	if f.ConsumeAndClear() {
		t.Fatal("fresh flag should not be set")
	}
	f.Raise()
	if !f.ConsumeAndClear() {
		t.Fatal("expected flag to be set after Raise")
	}
	if f.ConsumeAndClear() {
		t.Fatal("ConsumeAndClear should clear the flag")
	}
}
