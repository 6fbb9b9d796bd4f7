package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Record is one entry in a Data frame body. Unlike market.WhaleEvent it
// carries the resolved symbol string rather than a dense index, since the
// wire protocol is symbol-addressed.
type Record struct {
	Price       float64
	Quantity    float64
	IsSell      bool
	TimestampMs uint64
	Symbol      string
	VWAPSession float64
	VWAPRoll50  float64
	DeltaRoll   float64
}

func (r Record) encodedLen() int {
	return 8 + 8 + 1 + 8 + 2 + len(r.Symbol) + 8 + 8 + 8
}

// EncodeData serializes a Data frame body: count:u32 BE followed by each
// record in order.
func EncodeData(records []Record) ([]byte, error) {
	total := 4
	for _, r := range records {
		if len(r.Symbol) > 0xFFFF {
			return nil, fmt.Errorf("wire: symbol %q longer than 65535 bytes", r.Symbol)
		}
		total += r.encodedLen()
	}
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(records)))
	off := 4
	for _, r := range records {
		binary.BigEndian.PutUint64(buf[off:], math.Float64bits(r.Price))
		off += 8
		binary.BigEndian.PutUint64(buf[off:], math.Float64bits(r.Quantity))
		off += 8
		if r.IsSell {
			buf[off] = 1
		} else {
			buf[off] = 0
		}
		off++
		binary.BigEndian.PutUint64(buf[off:], r.TimestampMs)
		off += 8
		binary.BigEndian.PutUint16(buf[off:], uint16(len(r.Symbol)))
		off += 2
		off += copy(buf[off:], r.Symbol)
		binary.BigEndian.PutUint64(buf[off:], math.Float64bits(r.VWAPSession))
		off += 8
		binary.BigEndian.PutUint64(buf[off:], math.Float64bits(r.VWAPRoll50))
		off += 8
		binary.BigEndian.PutUint64(buf[off:], math.Float64bits(r.DeltaRoll))
		off += 8
	}
	return buf, nil
}

// DecodeData parses a Data frame body into its records. It validates
// lengths strictly and, on malformed input, returns a nil slice and an
// error; records decoded before the fault are discarded.
func DecodeData(body []byte) ([]Record, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("wire: data body too short: %d bytes", len(body))
	}
	count := binary.BigEndian.Uint32(body[0:4])
	off := 4
	records := make([]Record, 0, count)
	for i := uint32(0); i < count; i++ {
		const fixed = 8 + 8 + 1 + 8 + 2
		if off+fixed > len(body) {
			return nil, fmt.Errorf("wire: data body truncated at record %d", i)
		}
		price := math.Float64frombits(binary.BigEndian.Uint64(body[off:]))
		off += 8
		qty := math.Float64frombits(binary.BigEndian.Uint64(body[off:]))
		off += 8
		isSell := body[off] != 0
		off++
		ts := binary.BigEndian.Uint64(body[off:])
		off += 8
		symLen := int(binary.BigEndian.Uint16(body[off:]))
		off += 2
		if off+symLen+24 > len(body) {
			return nil, fmt.Errorf("wire: data body truncated in record %d symbol/tail", i)
		}
		symbol := string(body[off : off+symLen])
		off += symLen
		vwapSess := math.Float64frombits(binary.BigEndian.Uint64(body[off:]))
		off += 8
		vwapRoll := math.Float64frombits(binary.BigEndian.Uint64(body[off:]))
		off += 8
		delta := math.Float64frombits(binary.BigEndian.Uint64(body[off:]))
		off += 8
		records = append(records, Record{
			Price:       price,
			Quantity:    qty,
			IsSell:      isSell,
			TimestampMs: ts,
			Symbol:      symbol,
			VWAPSession: vwapSess,
			VWAPRoll50:  vwapRoll,
			DeltaRoll:   delta,
		})
	}
	if off != len(body) {
		return nil, fmt.Errorf("wire: data body has %d trailing bytes", len(body)-off)
	}
	return records, nil
}
