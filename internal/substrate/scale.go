package substrate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

var ErrShortInput = errors.New("scale: unexpected end of input")

// Decoder reads SCALE encoded values from a byte slice. It only covers the
// primitives the report modules need.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{buf: data}
}

func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

func (d *Decoder) Bytes(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortInput, n, d.off, d.Remaining())
	}
	out := d.buf[d.off : d.off+n]
	d.off += n
	return out, nil
}

func (d *Decoder) Skip(n int) error {
	_, err := d.Bytes(n)
	return err
}

func (d *Decoder) U8() (uint8, error) {
	b, err := d.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) U16() (uint16, error) {
	b, err := d.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) U32() (uint32, error) {
	b, err := d.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) U64() (uint64, error) {
	b, err := d.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// U128 decodes a little-endian unsigned 128-bit integer.
func (d *Decoder) U128() (*big.Int, error) {
	b, err := d.Bytes(16)
	if err != nil {
		return nil, err
	}
	be := make([]byte, 16)
	for i := range b {
		be[15-i] = b[i]
	}
	return new(big.Int).SetBytes(be), nil
}

// Compact decodes a compact-encoded unsigned integer that fits in 64 bits.
func (d *Decoder) Compact() (uint64, error) {
	first, err := d.U8()
	if err != nil {
		return 0, err
	}
	switch first & 0b11 {
	case 0b00:
		return uint64(first >> 2), nil
	case 0b01:
		second, err := d.U8()
		if err != nil {
			return 0, err
		}
		return (uint64(first) | uint64(second)<<8) >> 2, nil
	case 0b10:
		rest, err := d.Bytes(3)
		if err != nil {
			return 0, err
		}
		value := uint32(first) | uint32(rest[0])<<8 | uint32(rest[1])<<16 | uint32(rest[2])<<24
		return uint64(value >> 2), nil
	default:
		n := int(first>>2) + 4
		if n > 8 {
			return 0, fmt.Errorf("scale: compact integer of %d bytes exceeds 64 bits", n)
		}
		raw, err := d.Bytes(n)
		if err != nil {
			return 0, err
		}
		var value uint64
		for i := n - 1; i >= 0; i-- {
			value = value<<8 | uint64(raw[i])
		}
		return value, nil
	}
}

// Length decodes a compact collection length and bounds it by the remaining
// input so corrupted lengths fail instead of allocating.
func (d *Decoder) Length() (int, error) {
	n, err := d.Compact()
	if err != nil {
		return 0, err
	}
	if n > uint64(d.Remaining()) {
		return 0, fmt.Errorf("%w: length %d exceeds remaining %d bytes", ErrShortInput, n, d.Remaining())
	}
	return int(n), nil
}
