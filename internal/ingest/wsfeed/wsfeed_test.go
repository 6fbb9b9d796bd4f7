package wsfeed

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"odin-tradefanout/internal/producer"
)

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestServer(t *testing.T, onConn func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		onConn(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWsfeedDecodesTradeMessage(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"BTCUSDT","E":1700000000000,"p":"96000.50","q":"1.25","m":true}`))
		time.Sleep(50 * time.Millisecond)
	})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	var reset producer.VWAPResetFlag
	src := New(url, &reset, discardLogger())

	received := make(chan producer.TradeRecord, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go src.Run(ctx, func(rec producer.TradeRecord) {
		select {
		case received <- rec:
		default:
		}
	})

	select {
	case rec := <-received:
		if rec.Symbol != "BTCUSDT" || rec.Price != 96000.50 || rec.Quantity != 1.25 || !rec.IsSell {
			t.Fatalf("unexpected record: %+v", rec)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decoded trade")
	}
}

func TestWsfeedRaisesResetOnReconnect(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		// Close immediately to force a reconnect cycle.
	})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	var reset producer.VWAPResetFlag
	src := New(url, &reset, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	src.Run(ctx, func(producer.TradeRecord) {})

	if !reset.ConsumeAndClear() {
		t.Fatal("expected reset flag to be raised after a reconnect cycle")
	}
}
