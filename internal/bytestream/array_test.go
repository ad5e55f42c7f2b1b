package bytestream

import (
	"errors"
	"testing"
)

func TestArrayFixedWidthReads(t *testing.T) {
	a := New([]byte{0xca, 0xfe, 0xba, 0xbe, 0xff, 0xff, 0xff, 0xfe, 0x80})

	if v, err := a.U2(0); err != nil || v != 0xcafe {
		t.Fatalf("U2(0) = %#x, %v", v, err)
	}
	if v, err := a.U4(0); err != nil || v != 0xcafebabe {
		t.Fatalf("U4(0) = %#x, %v", v, err)
	}
	if v, err := a.S4(4); err != nil || v != -2 {
		t.Fatalf("S4(4) = %d, %v", v, err)
	}
	if v, err := a.S1(8); err != nil || v != -128 {
		t.Fatalf("S1(8) = %d, %v", v, err)
	}
	if v, err := a.S8(0); err != nil || v != -0x3501454100000002 {
		t.Fatalf("S8(0) = %#x, %v", v, err)
	}
}

func TestArrayBounds(t *testing.T) {
	a := New([]byte{1, 2, 3})
	cases := []struct {
		name string
		read func() error
	}{
		{"u1 past end", func() error { _, err := a.U1(3); return err }},
		{"u2 straddles end", func() error { _, err := a.U2(2); return err }},
		{"u4 too short", func() error { _, err := a.U4(0); return err }},
		{"negative offset", func() error { _, err := a.U1(-1); return err }},
		{"slice past end", func() error { _, err := a.Slice(1, 4); return err }},
		{"inverted slice", func() error { _, err := a.Slice(2, 1); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.read(); !errors.Is(err, ErrOutOfBounds) {
				t.Fatalf("expected ErrOutOfBounds, got %v", err)
			}
		})
	}
}

func TestSliceIsRelative(t *testing.T) {
	a := New([]byte{0, 0, 0x12, 0x34, 0x56})
	sub, err := a.Slice(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Len() != 2 {
		t.Fatalf("len = %d", sub.Len())
	}
	if v, _ := sub.U2(0); v != 0x1234 {
		t.Fatalf("U2 = %#x", v)
	}
	if _, err := sub.U1(2); err == nil {
		t.Fatal("sub-view must not expose bytes past its end")
	}
}

func TestReaderStickyError(t *testing.T) {
	r := New([]byte{0x00, 0x05, 0x01}).Reader()
	if v := r.U2(); v != 5 {
		t.Fatalf("U2 = %d", v)
	}
	if v := r.U2(); v != 0 {
		t.Fatalf("expected zero on short read, got %d", v)
	}
	if r.Err() == nil {
		t.Fatal("expected error after short read")
	}
	if v := r.U1(); v != 0 {
		t.Fatalf("reads after failure must return zero, got %d", v)
	}
	if r.Pos() != 2 {
		t.Fatalf("failed reads must not advance, pos=%d", r.Pos())
	}
}

func TestReaderTake(t *testing.T) {
	r := New([]byte{1, 2, 3, 4}).Reader()
	r.Skip(1)
	sub := r.Take(2)
	if r.Err() != nil {
		t.Fatal(r.Err())
	}
	if !sub.Equal(New([]byte{2, 3})) {
		t.Fatalf("unexpected slice %v", sub.Bytes())
	}
	if r.Remaining() != 1 || r.EOF() {
		t.Fatalf("remaining = %d", r.Remaining())
	}
}
