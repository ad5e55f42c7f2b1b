package bytestream

import (
	"fmt"

	"fortio.org/safecast"
)

// Reader is a sequential cursor over an Array. The first failed read is
// remembered; later reads return zero values and Err reports the failure.
type Reader struct {
	arr Array
	off int
	err error
}

// Pos returns the offset of the next byte to be read.
func (r *Reader) Pos() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return r.arr.Len() - r.off }

// EOF reports whether the whole view has been consumed.
func (r *Reader) EOF() bool { return r.off >= r.arr.Len() }

// Err returns the first read failure, if any.
func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// U1 reads an unsigned byte.
func (r *Reader) U1() int {
	if r.err != nil {
		return 0
	}
	v, err := r.arr.U1(r.off)
	if err != nil {
		r.fail(err)
		return 0
	}
	r.off++
	return v
}

// U2 reads an unsigned 16-bit value.
func (r *Reader) U2() int {
	if r.err != nil {
		return 0
	}
	v, err := r.arr.U2(r.off)
	if err != nil {
		r.fail(err)
		return 0
	}
	r.off += 2
	return v
}

// U4 reads an unsigned 32-bit value.
func (r *Reader) U4() uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.arr.U4(r.off)
	if err != nil {
		r.fail(err)
		return 0
	}
	r.off += 4
	return v
}

// U4Len reads an unsigned 32-bit length and converts it to int.
func (r *Reader) U4Len() int {
	v := r.U4()
	n, err := safecast.Conv[int](v)
	if err != nil {
		r.fail(fmt.Errorf("length %08x overflows int: %w", v, err))
		return 0
	}
	return n
}

// Take returns the next n bytes as a sub-view and advances past them.
func (r *Reader) Take(n int) Array {
	if r.err != nil {
		return Array{}
	}
	sub, err := r.arr.Slice(r.off, r.off+n)
	if err != nil {
		r.fail(err)
		return Array{}
	}
	r.off += n
	return sub
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) {
	r.Take(n)
}
