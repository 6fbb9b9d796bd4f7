package natsfeed

import (
	"io"
	"log"
	"testing"

	"odin-tradefanout/internal/producer"
)

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestDecodeAndHandleParsesTradeMessage(t *testing.T) {
	var reset producer.VWAPResetFlag
	src := New("nats://unused", "trades.>", &reset, discardLogger())

	var got producer.TradeRecord
	src.decodeAndHandle([]byte(`{"s":"ETHUSDT","E":1700000000000,"p":"2700.25","q":"3.5","m":false}`), func(rec producer.TradeRecord) {
		got = rec
	})

	if got.Symbol != "ETHUSDT" || got.Price != 2700.25 || got.Quantity != 3.5 || got.IsSell {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestDecodeAndHandleSkipsMalformedJSON(t *testing.T) {
	var reset producer.VWAPResetFlag
	src := New("nats://unused", "trades.>", &reset, discardLogger())

	called := false
	src.decodeAndHandle([]byte(`not json`), func(producer.TradeRecord) { called = true })

	if called {
		t.Fatal("handle should not be called for malformed JSON")
	}
}

func TestDecodeAndHandleSkipsUnparsablePrice(t *testing.T) {
	var reset producer.VWAPResetFlag
	src := New("nats://unused", "trades.>", &reset, discardLogger())

	called := false
	src.decodeAndHandle([]byte(`{"s":"ETHUSDT","E":1,"p":"not-a-number","q":"1","m":false}`), func(producer.TradeRecord) { called = true })

	if called {
		t.Fatal("handle should not be called when price fails to parse")
	}
}
