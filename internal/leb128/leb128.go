// Package leb128 implements the base-128 variable-length integer encoding used
// throughout the container format. Values are 32 bits wide; at most five bytes
// are produced per value.
package leb128

import (
	"errors"
	"fmt"
	"io"
)

// ErrOverflow is returned when an encoded value does not fit in 32 bits.
var ErrOverflow = errors.New("leb128: value overflows 32 bits")

// UnsignedSize returns the number of bytes needed to encode v as unsigned LEB128.
func UnsignedSize(v uint32) int {
	remaining := v >> 7
	count := 0
	for remaining != 0 {
		remaining >>= 7
		count++
	}
	return count + 1
}

// SignedSize returns the number of bytes needed to encode v as signed LEB128.
func SignedSize(v int32) int {
	return len(AppendSigned(make([]byte, 0, 5), v))
}

// AppendUnsigned appends the unsigned LEB128 encoding of v to dst.
func AppendUnsigned(dst []byte, v uint32) []byte {
	remaining := v >> 7
	for remaining != 0 {
		dst = append(dst, byte(v&0x7f)|0x80)
		v = remaining
		remaining >>= 7
	}
	return append(dst, byte(v&0x7f))
}

// AppendSigned appends the signed LEB128 encoding of v to dst. Encoding stops
// once the remaining bits are pure sign extension of the last emitted byte.
func AppendSigned(dst []byte, v int32) []byte {
	remaining := v >> 7
	end := int32(0)
	if v < 0 {
		end = -1
	}
	hasMore := true
	for hasMore {
		hasMore = remaining != end || (remaining&1) != ((v>>6)&1)
		b := byte(v & 0x7f)
		if hasMore {
			b |= 0x80
		}
		dst = append(dst, b)
		v = remaining
		remaining >>= 7
	}
	return dst
}

// WriteUnsigned writes the unsigned encoding of v to w.
func WriteUnsigned(w io.ByteWriter, v uint32) error {
	var buf [5]byte
	for _, b := range AppendUnsigned(buf[:0], v) {
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

// WriteSigned writes the signed encoding of v to w.
func WriteSigned(w io.ByteWriter, v int32) error {
	var buf [5]byte
	for _, b := range AppendSigned(buf[:0], v) {
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

// ReadUnsigned decodes one unsigned value from r.
func ReadUnsigned(r io.ByteReader) (uint32, error) {
	var result uint32
	for i := 0; i < 5; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("leb128: %w", err)
		}
		if i == 4 && b&0xf0 != 0 {
			return 0, ErrOverflow
		}
		result |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return result, nil
		}
	}
	return 0, ErrOverflow
}

// ReadSigned decodes one signed value from r.
func ReadSigned(r io.ByteReader) (int32, error) {
	var result int32
	shift := 0
	for i := 0; i < 5; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("leb128: %w", err)
		}
		result |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 32 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
	return 0, ErrOverflow
}
