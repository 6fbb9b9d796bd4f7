package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	SubscribeMaskWhale = 1 << 0
	SubscribeMaskVWAP  = 1 << 1
)

// Subscribe is the decoded body of the single client-to-server message
// that establishes filter parameters for the life of a connection.
type Subscribe struct {
	DataTypeMask   uint8
	Symbol         string
	WhaleThreshold float64
}

// Encode serializes a Subscribe body: data_type_mask, symbol_len, symbol
// bytes, then the threshold as a big-endian f64 bit pattern.
func (s Subscribe) Encode() ([]byte, error) {
	if len(s.Symbol) > 255 {
		return nil, fmt.Errorf("wire: symbol %q longer than 255 bytes", s.Symbol)
	}
	buf := make([]byte, 2+len(s.Symbol)+8)
	buf[0] = s.DataTypeMask
	buf[1] = uint8(len(s.Symbol))
	copy(buf[2:], s.Symbol)
	binary.BigEndian.PutUint64(buf[2+len(s.Symbol):], math.Float64bits(s.WhaleThreshold))
	return buf, nil
}

// DecodeSubscribe parses a Subscribe body. It rejects malformed input
// without partially populating the result.
func DecodeSubscribe(body []byte) (Subscribe, error) {
	if len(body) < 2 {
		return Subscribe{}, fmt.Errorf("wire: subscribe body too short: %d bytes", len(body))
	}
	mask := body[0]
	symLen := int(body[1])
	want := 2 + symLen + 8
	if len(body) != want {
		return Subscribe{}, fmt.Errorf("wire: subscribe body length = %d, want %d", len(body), want)
	}
	symbol := string(body[2 : 2+symLen])
	threshold := math.Float64frombits(binary.BigEndian.Uint64(body[2+symLen:]))
	return Subscribe{
		DataTypeMask:   mask,
		Symbol:         symbol,
		WhaleThreshold: threshold,
	}, nil
}
