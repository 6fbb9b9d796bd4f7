package market

// symbolKey packs the first up to 8 bytes of a symbol into a uint64, the
// same scheme the registry hashes on for both registration and lookup.
// key == 0 is reserved as the empty-slot sentinel, so an all-NUL symbol
// (never a valid instrument symbol) can't collide with it.
func symbolKey(symbol string) uint64 {
	var key uint64
	n := len(symbol)
	if n > 8 {
		n = 8
	}
	for i := 0; i < n; i++ {
		key |= uint64(symbol[i]) << (8 * uint(i))
	}
	return key
}

// finalizeHash is a 64-bit Murmur3-style mix finalizer, used to spread
// symbol keys across the table.
func finalizeHash(h uint64) uint64 {
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return h
}

type coinNode struct {
	key   uint64
	index int32
}

// CoinRegistry maps a packed symbol key to a dense instrument index using
// open addressing with linear probing. Insertion happens single-threaded
// at startup; lookups afterward are wait-free and read-only.
type CoinRegistry struct {
	table []coinNode
	mask  uint64
}

// NewCoinRegistry allocates a table sized to a power of two at least
// 8x instrumentCount, keeping the open-addressed load factor low.
func NewCoinRegistry(instrumentCount int) *CoinRegistry {
	size := uint64(8)
	for size < uint64(instrumentCount)*8 {
		size <<= 1
	}
	return &CoinRegistry{
		table: make([]coinNode, size),
		mask:  size - 1,
	}
}

func (r *CoinRegistry) slot(key uint64) uint64 {
	return finalizeHash(key) & r.mask
}

// Register inserts or updates symbol -> idx. Not safe for concurrent use
// with Lookup; call only during single-threaded startup.
func (r *CoinRegistry) Register(symbol string, idx int) {
	key := symbolKey(symbol)
	slot := r.slot(key)

	for r.table[slot].key != 0 {
		if r.table[slot].key == key {
			r.table[slot].index = int32(idx)
			return
		}
		slot = (slot + 1) & r.mask
	}
	r.table[slot] = coinNode{key: key, index: int32(idx)}
}

// Lookup returns the dense index for symbol, or -1 if it was never
// registered. Wait-free and safe for concurrent readers once
// registration has completed.
func (r *CoinRegistry) Lookup(symbol string) int32 {
	return r.lookupKey(symbolKey(symbol))
}

func (r *CoinRegistry) lookupKey(key uint64) int32 {
	slot := r.slot(key)
	for r.table[slot].key != 0 {
		if r.table[slot].key == key {
			return r.table[slot].index
		}
		slot = (slot + 1) & r.mask
	}
	return -1
}

// Registry bundles the fixed instrument set with the symbol index built
// over it. It is the single value the Server owns and threads into each
// pipeline stage at startup.
type Registry struct {
	Instruments []Instrument
	coins       *CoinRegistry
}

// NewRegistry builds a dense index over instruments and registers every
// symbol into a freshly sized CoinRegistry.
func NewRegistry(instruments []Instrument) *Registry {
	reg := &Registry{
		Instruments: instruments,
		coins:       NewCoinRegistry(len(instruments)),
	}
	for i, inst := range instruments {
		reg.coins.Register(inst.Symbol, i)
	}
	return reg
}

// Count returns the fixed instrument count.
func (r *Registry) Count() int { return len(r.Instruments) }

// IndexOf looks up the dense index for symbol, or -1 if unknown.
func (r *Registry) IndexOf(symbol string) int32 { return r.coins.Lookup(symbol) }

// Symbol returns the symbol for a valid dense index, or "" otherwise.
func (r *Registry) Symbol(idx int32) string {
	if idx < 0 || int(idx) >= len(r.Instruments) {
		return ""
	}
	return r.Instruments[idx].Symbol
}

// Valid reports whether idx lies in [0, Count()).
func (r *Registry) Valid(idx int32) bool {
	return idx >= 0 && int(idx) < len(r.Instruments)
}
