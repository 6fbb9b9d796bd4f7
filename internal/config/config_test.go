package config

import "testing"

func TestParseServerArgsDefaults(t *testing.T) {
	cfg, err := ParseServerArgs(nil)
	if err != nil {
		t.Fatalf("ParseServerArgs(nil): %v", err)
	}
	want := DefaultServerConfig()
	if cfg != want {
		t.Fatalf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestParseServerArgsOverrides(t *testing.T) {
	cfg, err := ParseServerArgs([]string{"7000", "0", "1"})
	if err != nil {
		t.Fatalf("ParseServerArgs: %v", err)
	}
	if cfg.Port != 7000 || cfg.Emulate || !cfg.ExtendedVWAP {
		t.Fatalf("cfg = %+v, want {7000 false true}", cfg)
	}
}

func TestParseServerArgsInvalidPort(t *testing.T) {
	if _, err := ParseServerArgs([]string{"not-a-port"}); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestParseClientArgs(t *testing.T) {
	cfg, err := ParseClientArgs([]string{"localhost", "6000", "1", "BTCUSDT", "100000", "0"})
	if err != nil {
		t.Fatalf("ParseClientArgs: %v", err)
	}
	want := ClientConfig{Host: "localhost", Port: 6000, DataMask: 1, Symbol: "BTCUSDT", Threshold: 100000, ExtendedVWAP: false}
	if cfg != want {
		t.Fatalf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestParseClientArgsWrongCount(t *testing.T) {
	if _, err := ParseClientArgs([]string{"localhost", "6000"}); err == nil {
		t.Fatal("expected error for wrong argument count")
	}
}
