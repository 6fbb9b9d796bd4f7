// Package config assembles the small, explicit configuration the server
// and client need: no persisted state, no environment variables, and no
// config files. Everything comes from positional CLI arguments parsed
// once at startup.
package config

import (
	"fmt"
	"strconv"
)

// ServerConfig holds the parsed `serve <port> <emulate> <ext_vwap>`
// arguments, defaulting to "6000 1 0" when omitted.
type ServerConfig struct {
	Port          int
	Emulate       bool
	ExtendedVWAP  bool
}

// DefaultServerConfig returns the documented defaults: port 6000,
// emulated feed, standard (non-extended) VWAP fields.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Port: 6000, Emulate: true, ExtendedVWAP: false}
}

// ParseServerArgs parses positional args after the "serve" subcommand.
// Missing trailing arguments fall back to the default for that position.
func ParseServerArgs(args []string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return cfg, fmt.Errorf("config: invalid port %q: %w", args[0], err)
		}
		cfg.Port = port
	}
	if len(args) > 1 {
		emulate, err := parseBoolFlag(args[1])
		if err != nil {
			return cfg, fmt.Errorf("config: invalid emulate flag %q: %w", args[1], err)
		}
		cfg.Emulate = emulate
	}
	if len(args) > 2 {
		extVWAP, err := parseBoolFlag(args[2])
		if err != nil {
			return cfg, fmt.Errorf("config: invalid ext_vwap flag %q: %w", args[2], err)
		}
		cfg.ExtendedVWAP = extVWAP
	}
	return cfg, nil
}

// ClientConfig holds the parsed
// `client <host> <port> <data_mask> <symbol> <threshold> <ext_vwap>` arguments.
type ClientConfig struct {
	Host         string
	Port         int
	DataMask     uint8
	Symbol       string
	Threshold    float64
	ExtendedVWAP bool
}

// ParseClientArgs parses positional args after the "client" subcommand.
// All six are required; there is no default host or symbol to fall back
// to.
func ParseClientArgs(args []string) (ClientConfig, error) {
	var cfg ClientConfig
	if len(args) != 6 {
		return cfg, fmt.Errorf("config: client requires 6 arguments (host port data_mask symbol threshold ext_vwap), got %d", len(args))
	}
	cfg.Host = args[0]

	port, err := strconv.Atoi(args[1])
	if err != nil {
		return cfg, fmt.Errorf("config: invalid port %q: %w", args[1], err)
	}
	cfg.Port = port

	mask, err := strconv.ParseUint(args[2], 10, 8)
	if err != nil {
		return cfg, fmt.Errorf("config: invalid data_mask %q: %w", args[2], err)
	}
	cfg.DataMask = uint8(mask)

	cfg.Symbol = args[3]

	threshold, err := strconv.ParseFloat(args[4], 64)
	if err != nil {
		return cfg, fmt.Errorf("config: invalid threshold %q: %w", args[4], err)
	}
	cfg.Threshold = threshold

	extVWAP, err := parseBoolFlag(args[5])
	if err != nil {
		return cfg, fmt.Errorf("config: invalid ext_vwap flag %q: %w", args[5], err)
	}
	cfg.ExtendedVWAP = extVWAP

	return cfg, nil
}

func parseBoolFlag(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("expected 0 or 1, got %q", s)
	}
}
