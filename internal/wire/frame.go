// Package wire implements the length-prefixed binary protocol spoken
// between clients and the server: a 9-byte header followed by a
// data_type-specific body.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	HeaderSize = 9
	Signature  = 0xAA55
	Version    = 1

	MaxBodyLen = 10 * 1024 * 1024 // 10 MiB

	DataTypeSubscribe = 0x01
	DataTypeData      = 0x02
	DataTypeAlive     = 0x03
)

var (
	ErrBadSignature = errors.New("wire: bad signature")
	ErrBadVersion   = errors.New("wire: unsupported version")
	ErrBodyTooLarge = errors.New("wire: body exceeds max length")
)

// Header is the fixed 9-byte frame prefix.
type Header struct {
	DataType uint8
	MsgNum   uint8
	Len      uint32
}

// Encode writes the header into a fresh 9-byte slice.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], Signature)
	buf[2] = Version
	buf[3] = h.DataType
	buf[4] = h.MsgNum
	binary.BigEndian.PutUint32(buf[5:9], h.Len)
	return buf
}

// DecodeHeader parses a 9-byte buffer, validating signature and version.
// It does not validate data_type, msg_num, or len against any particular
// state-machine expectation; callers apply those checks themselves.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, fmt.Errorf("wire: header must be %d bytes, got %d", HeaderSize, len(buf))
	}
	sig := binary.BigEndian.Uint16(buf[0:2])
	if sig != Signature {
		return Header{}, ErrBadSignature
	}
	version := buf[2]
	if version != Version {
		return Header{}, ErrBadVersion
	}
	h := Header{
		DataType: buf[3],
		MsgNum:   buf[4],
		Len:      binary.BigEndian.Uint32(buf[5:9]),
	}
	if h.Len > MaxBodyLen {
		return Header{}, ErrBodyTooLarge
	}
	return h, nil
}

// ReadHeader reads and decodes exactly one header from r.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, err
	}
	return DecodeHeader(buf)
}
