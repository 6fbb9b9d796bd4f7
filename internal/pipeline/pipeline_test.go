package pipeline

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"odin-tradefanout/internal/market"
	"odin-tradefanout/internal/producer"
	"odin-tradefanout/internal/ring"
)

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func testRegistry() *market.Registry {
	return market.NewRegistry([]market.Instrument{
		{Symbol: "BTCUSDT", ReferencePrice: 96000, GlobalWhaleThreshold: 100000},
		{Symbol: "ETHUSDT", ReferencePrice: 2700, GlobalWhaleThreshold: 70000},
	})
}

func TestHotDispatcherEmitsWhaleAndTracksVWAP(t *testing.T) {
	reg := testRegistry()
	hot := ring.NewBroadcast[market.MarketEvent](64)
	events := ring.NewBroadcast[market.WhaleEvent](64)
	var resetFlag producer.VWAPResetFlag
	snapshot := NewLatencySnapshot()
	d := NewHotDispatcher(reg, hot, events, &resetFlag, snapshot, false, discardLogger())

	hot.PushBatch([]market.MarketEvent{
		{Price: 95000, Quantity: 2.0, IndexSymbol: 0, TickReceived: 1},
		{Price: 97000, Quantity: 0.5, IndexSymbol: 0, TickReceived: 1},
		{Price: 96000, Quantity: 1.2, IndexSymbol: 0, IsSell: true, TickReceived: 1},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var backoff ring.Backoff
	go func() {
		d.Run(ctx, &backoff)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for events.Head() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	// 95000*2.0 and 96000*1.2 both clear the 100000 threshold; 97000*0.5 does not.
	if events.Head() != 2 {
		t.Fatalf("events.Head() = %d, want 2 whales", events.Head())
	}
	w := events.Read(1)
	if w.Price != 96000 || w.Quantity != 1.2 || !w.IsSell {
		t.Fatalf("unexpected whale event %+v", w)
	}
	wantVWAP := (95000.0*2 + 97000.0*0.5 + 96000.0*1.2) / (2 + 0.5 + 1.2)
	if diff := w.VWAPSession - wantVWAP; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("VWAPSession = %v, want %v", w.VWAPSession, wantVWAP)
	}
}

func TestHotDispatcherDropsUnknownIndexSymbol(t *testing.T) {
	reg := testRegistry()
	hot := ring.NewBroadcast[market.MarketEvent](16)
	events := ring.NewBroadcast[market.WhaleEvent](16)
	var resetFlag producer.VWAPResetFlag
	d := NewHotDispatcher(reg, hot, events, &resetFlag, NewLatencySnapshot(), false, discardLogger())

	hot.PushBatch([]market.MarketEvent{{Price: 1, Quantity: 1, IndexSymbol: -1}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var backoff ring.Backoff
	go func() { d.Run(ctx, &backoff); close(done) }()

	deadline := time.Now().Add(300 * time.Millisecond)
	for hot.Tail() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if events.Head() != 0 {
		t.Fatalf("events.Head() = %d, want 0 (invalid symbol must be skipped)", events.Head())
	}
}

func TestHotDispatcherVWAPResetFlag(t *testing.T) {
	reg := testRegistry()
	hot := ring.NewBroadcast[market.MarketEvent](16)
	events := ring.NewBroadcast[market.WhaleEvent](16)
	var resetFlag producer.VWAPResetFlag
	d := NewHotDispatcher(reg, hot, events, &resetFlag, NewLatencySnapshot(), false, discardLogger())

	hot.PushBatch([]market.MarketEvent{{Price: 100, Quantity: 1, IndexSymbol: 0}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var backoff ring.Backoff
	go func() { d.Run(ctx, &backoff); close(done) }()
	for hot.Tail() == 0 {
		time.Sleep(time.Millisecond)
	}
	if v := d.coins[0].Session.Value(); v != 100 {
		t.Fatalf("Session.Value() = %v, want 100", v)
	}

	resetFlag.Raise()
	hot.PushBatch([]market.MarketEvent{{Price: 200, Quantity: 1, IndexSymbol: 0}})
	deadline := time.Now().Add(time.Second)
	for hot.Tail() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if v := d.coins[0].Session.Value(); v != 200 {
		t.Fatalf("Session.Value() after reset+new trade = %v, want 200 (reset should clear prior volume)", v)
	}
}

type fakeSession struct {
	symbolIndex int32
	threshold   float64
	pushed      []market.WhaleEvent
	pushOK      bool
}

func (f *fakeSession) SymbolIndex() int32          { return f.symbolIndex }
func (f *fakeSession) WhaleThreshold() float64     { return f.threshold }
func (f *fakeSession) TryPush(ev market.WhaleEvent) bool {
	if !f.pushOK {
		return false
	}
	f.pushed = append(f.pushed, ev)
	return true
}

func TestEventDispatcherRoutesBySymbolAndThreshold(t *testing.T) {
	reg := testRegistry()
	events := ring.NewBroadcast[market.WhaleEvent](64)
	var changed atomic.Bool
	changed.Store(true)

	low := &fakeSession{symbolIndex: 0, threshold: 100000, pushOK: true}
	high := &fakeSession{symbolIndex: 0, threshold: 200000, pushOK: true}
	other := &fakeSession{symbolIndex: 1, threshold: 1, pushOK: true}

	snapshot := func() []SessionTarget {
		return []SessionTarget{low, high, other}
	}
	counters := &Counters{}
	d := NewEventDispatcher(reg, events, &changed, snapshot, counters, discardLogger())

	events.PushBatch([]market.WhaleEvent{
		{IndexSymbol: 0, Price: 120000, Quantity: 1},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var backoff ring.Backoff
	go func() { d.Run(ctx, &backoff); close(done) }()

	deadline := time.Now().Add(time.Second)
	for len(low.pushed) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if len(low.pushed) != 1 {
		t.Fatalf("low-threshold session got %d events, want 1", len(low.pushed))
	}
	if len(high.pushed) != 0 {
		t.Fatalf("high-threshold session got %d events, want 0", len(high.pushed))
	}
	if len(other.pushed) != 0 {
		t.Fatalf("other-symbol session got %d events, want 0", len(other.pushed))
	}
}

func TestEventDispatcherOverloadDropsAndAdvancesTail(t *testing.T) {
	reg := testRegistry()
	events := ring.NewBroadcast[market.WhaleEvent](16) // high water = 14
	var changed atomic.Bool

	frozen := &fakeSession{symbolIndex: 0, threshold: 0, pushOK: false}
	snapshot := func() []SessionTarget { return []SessionTarget{frozen} }
	counters := &Counters{}
	d := NewEventDispatcher(reg, events, &changed, snapshot, counters, discardLogger())

	batch := make([]market.WhaleEvent, 15)
	for i := range batch {
		batch[i] = market.WhaleEvent{IndexSymbol: 0, Price: 1, Quantity: 1}
	}
	events.PushBatch(batch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var backoff ring.Backoff
	go func() { d.Run(ctx, &backoff); close(done) }()

	deadline := time.Now().Add(time.Second)
	for counters.EventOverloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if counters.EventOverloads.Load() == 0 {
		t.Fatal("expected an overload to be counted")
	}
	if events.Tail() != events.Head() {
		t.Fatalf("tail = %d, head = %d; overload should advance tail to head", events.Tail(), events.Head())
	}
}

func TestLatencySnapshotSkipsUnconsumedPublish(t *testing.T) {
	s := NewLatencySnapshot()
	var h1, h2 LatencyHistogram
	h1.observe(5)
	s.Publish(&h1)

	h2.observe(5)
	h2.observe(5)
	s.Publish(&h2) // should be skipped, h1 not consumed yet

	got, ok := s.Read()
	if !ok {
		t.Fatal("expected a pending snapshot")
	}
	if got.Count != 1 {
		t.Fatalf("Count = %d, want 1 (second publish should have been skipped)", got.Count)
	}

	if _, ok := s.Read(); ok {
		t.Fatal("expected no pending snapshot after consuming")
	}

	s.Publish(&h2)
	got, ok = s.Read()
	if !ok || got.Count != 2 {
		t.Fatalf("Read() after consume = %+v, %v; want Count=2, ok=true", got, ok)
	}
}
