package market

import "testing"

func TestRegistryRoundTrip(t *testing.T) {
	instruments := []Instrument{
		{Symbol: "BTCUSDT", ReferencePrice: 96000, GlobalWhaleThreshold: 100000},
		{Symbol: "ETHUSDT", ReferencePrice: 2700, GlobalWhaleThreshold: 70000},
		{Symbol: "SOLUSDT", ReferencePrice: 180, GlobalWhaleThreshold: 50000},
		{Symbol: "BNBUSDT", ReferencePrice: 600, GlobalWhaleThreshold: 60000},
	}
	reg := NewRegistry(instruments)

	for i, inst := range instruments {
		idx := reg.IndexOf(inst.Symbol)
		if idx != int32(i) {
			t.Fatalf("IndexOf(%s) = %d, want %d", inst.Symbol, idx, i)
		}
		if reg.Symbol(idx) != inst.Symbol {
			t.Fatalf("Symbol(%d) = %s, want %s", idx, reg.Symbol(idx), inst.Symbol)
		}
	}

	if idx := reg.IndexOf("DOGEUSDT"); idx != -1 {
		t.Fatalf("IndexOf(unregistered) = %d, want -1", idx)
	}
	if reg.Valid(-1) || reg.Valid(int32(len(instruments))) {
		t.Fatal("Valid out of range indices should be false")
	}
	for i := range instruments {
		if !reg.Valid(int32(i)) {
			t.Fatalf("Valid(%d) should be true", i)
		}
	}
}

func TestRegistrySizingIsPowerOfTwoAtLeastEightTimesCount(t *testing.T) {
	r := NewCoinRegistry(4)
	if len(r.table) != 32 {
		t.Fatalf("table size = %d, want 32 (8 * 4, already a power of two)", len(r.table))
	}

	r = NewCoinRegistry(5)
	if len(r.table) != 64 {
		t.Fatalf("table size = %d, want 64 (next power of two >= 40)", len(r.table))
	}
}

func TestRegistryReRegisterUpdatesIndex(t *testing.T) {
	r := NewCoinRegistry(2)
	r.Register("BTCUSDT", 0)
	r.Register("BTCUSDT", 1)
	if got := r.Lookup("BTCUSDT"); got != 1 {
		t.Fatalf("Lookup after re-register = %d, want 1", got)
	}
}
