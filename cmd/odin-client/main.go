// Command odin-client connects to an odin-server instance, subscribes
// to one symbol's whale stream, and prints every Data frame it
// receives. It reconnects automatically on any connection loss.
package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	"odin-tradefanout/internal/config"
	"odin-tradefanout/internal/wire"
)

const reconnectWait = 2 * time.Second

func main() {
	if len(os.Args) < 2 || os.Args[1] != "client" {
		fmt.Fprintln(os.Stderr, "usage: odin-client client <host> <port> <data_mask> <symbol> <threshold> <ext_vwap>")
		os.Exit(2)
	}

	cfg, err := config.ParseClientArgs(os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "odin-client: %v\n", err)
		os.Exit(2)
	}

	logger := log.New(os.Stdout, "[odin-client] ", log.LstdFlags)

	for {
		if err := runOnce(cfg, logger); err != nil {
			logger.Printf("connection lost: %v", err)
		}
		time.Sleep(reconnectWait)
	}
}

func runOnce(cfg config.ClientConfig, logger *log.Logger) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	logger.Printf("connected to %s", addr)

	sub := wire.Subscribe{
		DataTypeMask:   cfg.DataMask,
		Symbol:         cfg.Symbol,
		WhaleThreshold: cfg.Threshold,
	}
	body, err := sub.Encode()
	if err != nil {
		return fmt.Errorf("encode subscribe: %w", err)
	}
	hdr := wire.Header{DataType: wire.DataTypeSubscribe, MsgNum: 0, Len: uint32(len(body))}
	if _, err := conn.Write(append(hdr.Encode(), body...)); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	for {
		h, err := wire.ReadHeader(conn)
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("server closed connection")
			}
			return fmt.Errorf("read header: %w", err)
		}

		var rawBody []byte
		if h.Len > 0 {
			rawBody = make([]byte, h.Len)
			if _, err := io.ReadFull(conn, rawBody); err != nil {
				return fmt.Errorf("read body: %w", err)
			}
		}

		switch h.DataType {
		case wire.DataTypeData:
			records, err := wire.DecodeData(rawBody)
			if err != nil {
				return fmt.Errorf("decode data: %w", err)
			}
			for _, r := range records {
				side := "buy"
				if r.IsSell {
					side = "sell"
				}
				logger.Printf("%s %s qty=%.6f price=%.2f vwap_session=%.2f vwap_roll50=%.2f delta_roll=%.4f ts=%d",
					r.Symbol, side, r.Quantity, r.Price, r.VWAPSession, r.VWAPRoll50, r.DeltaRoll, r.TimestampMs)
			}
		case wire.DataTypeAlive:
			logger.Printf("alive")
		default:
			logger.Printf("unknown data_type=0x%02x, ignoring", h.DataType)
		}
	}
}
