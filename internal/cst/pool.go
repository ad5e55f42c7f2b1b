package cst

import "fmt"

// Pool is an indexed, read-only view of a constant pool. Index 0 is never a
// valid entry.
type Pool interface {
	Size() int
	// Get returns entry n, failing for index 0, out-of-range or unused slots.
	Get(n int) (Constant, error)
	// Get0Ok is Get, except that index 0 yields a nil constant.
	Get0Ok(n int) (Constant, error)
	// GetOrNil returns entry n or nil without failing.
	GetOrNil(n int) Constant
}

// StdPool is the standard mutable Pool implementation.
type StdPool struct {
	entries []Constant
}

// NewStdPool returns a pool with size slots; slot 0 is reserved.
func NewStdPool(size int) *StdPool {
	if size < 1 {
		size = 1
	}
	return &StdPool{entries: make([]Constant, size)}
}

func (p *StdPool) Size() int { return len(p.entries) }

func (p *StdPool) Get(n int) (Constant, error) {
	if n <= 0 || n >= len(p.entries) {
		return nil, fmt.Errorf("constant pool index out of range: %04x", n)
	}
	c := p.entries[n]
	if c == nil {
		return nil, fmt.Errorf("unused constant pool entry %04x", n)
	}
	return c, nil
}

func (p *StdPool) Get0Ok(n int) (Constant, error) {
	if n == 0 {
		return nil, nil
	}
	return p.Get(n)
}

func (p *StdPool) GetOrNil(n int) Constant {
	if n <= 0 || n >= len(p.entries) {
		return nil
	}
	return p.entries[n]
}

// Set stores c at index n. Wide constants occupy n and n+1, so the following
// slot must be free and must stay free.
func (p *StdPool) Set(n int, c Constant) error {
	if n <= 0 || n >= len(p.entries) {
		return fmt.Errorf("constant pool index out of range: %04x", n)
	}
	if n > 1 {
		if prev, ok := p.entries[n-1].(Typed); ok && prev.Type().Category() == 2 {
			return fmt.Errorf("constant pool entry %04x is the second half of a wide constant", n)
		}
	}
	if t, ok := c.(Literal); ok && t.Type().Category() == 2 {
		if n == len(p.entries)-1 {
			return fmt.Errorf("wide constant at last constant pool index %04x", n)
		}
		p.entries[n+1] = nil
	}
	p.entries[n] = c
	return nil
}

// ZeroFor returns the zero value constant for t: false, 0 or null.
func ZeroFor(t Type) Constant {
	switch t.Descriptor {
	case "Z":
		return Boolean{}
	case "B":
		return Byte{}
	case "C":
		return Char{}
	case "S":
		return Short{}
	case "I":
		return Integer{}
	case "J":
		return Long{}
	case "F":
		return Float{}
	case "D":
		return Double{}
	}
	return KnownNull{}
}

// IsZero reports whether c is a literal whose raw bits are all zero.
func IsZero(c Constant) bool {
	lit, ok := c.(Literal)
	return ok && lit.Bits() == 0
}
