// Command odin-server runs the trade fan-out service: a single market
// data producer (an emulator or a live exchange feed), the hot and
// event dispatcher pipeline, and the TCP session layer that streams
// whale events to subscribed clients.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"odin-tradefanout/internal/config"
	"odin-tradefanout/internal/ingest/natsfeed"
	"odin-tradefanout/internal/ingest/wsfeed"
	"odin-tradefanout/internal/market"
	"odin-tradefanout/internal/producer"
	"odin-tradefanout/internal/server"
)

// defaultInstruments is the fixed coin list and per-symbol whale
// threshold used when no other instrument set is configured.
var defaultInstruments = []market.Instrument{
	{Symbol: "BTCUSDT", ReferencePrice: 96000, GlobalWhaleThreshold: 100000},
	{Symbol: "ETHUSDT", ReferencePrice: 2700, GlobalWhaleThreshold: 70000},
	{Symbol: "SOLUSDT", ReferencePrice: 180, GlobalWhaleThreshold: 50000},
	{Symbol: "BNBUSDT", ReferencePrice: 600, GlobalWhaleThreshold: 60000},
}

func main() {
	feedURL := flag.String("feed-url", "wss://stream.binance.com:9443/ws/!trade", "upstream feed URL used when emulate=0: the exchange WebSocket trade stream for -feed=ws, or the NATS server URL for -feed=nats")
	feed := flag.String("feed", "ws", "live feed transport when emulate=0: \"ws\" or \"nats\"")
	natsSubject := flag.String("nats-subject", "trades.>", "NATS subject to subscribe to when -feed=nats")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (disabled if empty)")
	flag.Parse()

	if flag.NArg() < 1 || flag.Arg(0) != "serve" {
		fmt.Fprintln(os.Stderr, "usage: odin-server serve [port] [emulate] [ext_vwap]")
		os.Exit(2)
	}

	cfg, err := config.ParseServerArgs(flag.Args()[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "odin-server: %v\n", err)
		os.Exit(2)
	}

	var ingestFactory func(*producer.VWAPResetFlag) producer.IngestSource
	if !cfg.Emulate {
		switch *feed {
		case "ws":
			ingestFactory = func(reset *producer.VWAPResetFlag) producer.IngestSource {
				return wsfeed.New(*feedURL, reset, log.Default())
			}
		case "nats":
			ingestFactory = func(reset *producer.VWAPResetFlag) producer.IngestSource {
				return natsfeed.New(*feedURL, *natsSubject, reset, log.Default())
			}
		default:
			fmt.Fprintf(os.Stderr, "odin-server: unknown -feed %q (want ws or nats)\n", *feed)
			os.Exit(2)
		}
	}

	srv := server.NewServer(cfg, defaultInstruments, ingestFactory, *metricsAddr)
	if err := srv.Start(); err != nil {
		log.Fatalf("odin-server: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	srv.Stop()
}
