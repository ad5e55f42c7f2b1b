package bytestream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned by every read that would touch bytes outside the view.
var ErrOutOfBounds = errors.New("read out of bounds")

// Array is an immutable view over a byte buffer. Offsets are relative to the
// start of the view.
type Array struct {
	data []byte
}

// New wraps b without copying it. The caller must not mutate b afterwards.
func New(b []byte) Array {
	return Array{data: b}
}

// Len returns the number of bytes in the view.
func (a Array) Len() int {
	return len(a.data)
}

func (a Array) check(off, n int) error {
	if off < 0 || n < 0 || off > len(a.data)-n {
		return fmt.Errorf("%w: offset %08x size %d (length %08x)", ErrOutOfBounds, off, n, len(a.data))
	}
	return nil
}

// U1 reads an unsigned byte.
func (a Array) U1(off int) (int, error) {
	if err := a.check(off, 1); err != nil {
		return 0, err
	}
	return int(a.data[off]), nil
}

// S1 reads a signed byte.
func (a Array) S1(off int) (int, error) {
	if err := a.check(off, 1); err != nil {
		return 0, err
	}
	return int(int8(a.data[off])), nil
}

// U2 reads a big-endian unsigned 16-bit value.
func (a Array) U2(off int) (int, error) {
	if err := a.check(off, 2); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint16(a.data[off:])), nil
}

// S2 reads a big-endian signed 16-bit value.
func (a Array) S2(off int) (int, error) {
	if err := a.check(off, 2); err != nil {
		return 0, err
	}
	return int(int16(binary.BigEndian.Uint16(a.data[off:]))), nil
}

// U4 reads a big-endian unsigned 32-bit value.
func (a Array) U4(off int) (uint32, error) {
	if err := a.check(off, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(a.data[off:]), nil
}

// S4 reads a big-endian signed 32-bit value.
func (a Array) S4(off int) (int32, error) {
	v, err := a.U4(off)
	return int32(v), err //nolint:gosec // G115: two's complement reinterpretation
}

// S8 reads a big-endian signed 64-bit value.
func (a Array) S8(off int) (int64, error) {
	if err := a.check(off, 8); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(a.data[off:])), nil //nolint:gosec // G115: two's complement reinterpretation
}

// Slice returns the sub-view [start, end).
func (a Array) Slice(start, end int) (Array, error) {
	if start < 0 || end < start {
		return Array{}, fmt.Errorf("%w: bad slice [%08x, %08x)", ErrOutOfBounds, start, end)
	}
	if err := a.check(start, end-start); err != nil {
		return Array{}, err
	}
	return Array{data: a.data[start:end:end]}, nil
}

// Bytes returns a copy of the viewed bytes.
func (a Array) Bytes() []byte {
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// Equal reports whether both views hold the same bytes.
func (a Array) Equal(b Array) bool {
	return bytes.Equal(a.data, b.data)
}

// Reader returns a sequential cursor positioned at the start of the view.
func (a Array) Reader() *Reader {
	return &Reader{arr: a}
}
