package dexfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/adler32"

	"classdex/internal/cst"
	"classdex/internal/leb128"
	"classdex/internal/mutf8"
)

// ErrMalformed wraps every structural problem found while reading a
// container.
var ErrMalformed = errors.New("malformed dex file")

// Header holds the fields of the container header that Read checks or
// exposes.
type Header struct {
	Checksum  uint32
	Signature [20]byte
	FileSize  int
	MapOff    int
	DataSize  int
	DataOff   int
}

// FieldEntry is a decoded field declaration.
type FieldEntry struct {
	Ref         cst.FieldRef
	AccessFlags int
}

// MethodEntry is a decoded method declaration. Code is nil when the method
// has no code item.
type MethodEntry struct {
	Ref         cst.MethodRef
	AccessFlags int
	Code        *CodeItem
}

// CodeItem is a decoded code_item header plus its raw instruction units.
type CodeItem struct {
	RegistersSize int
	InsSize       int
	OutsSize      int
	DebugInfoOff  int
	Insns         []uint16
}

// ClassInfo is a decoded class_def with its class data and static values.
type ClassInfo struct {
	Class          cst.Type
	AccessFlags    int
	Super          *cst.Type
	Interfaces     []cst.Type
	SourceFile     string
	StaticFields   []FieldEntry
	InstanceFields []FieldEntry
	DirectMethods  []MethodEntry
	VirtualMethods []MethodEntry
	StaticValues   []cst.Constant
}

// Dex is a decoded container.
type Dex struct {
	Header  Header
	Strings []string
	Types   []cst.Type
	Protos  []cst.Prototype
	Fields  []cst.FieldRef
	Methods []cst.MethodRef
	Classes []*ClassInfo
}

// Class returns the decoded class with the given descriptor, or nil.
func (d *Dex) Class(descriptor string) *ClassInfo {
	for _, c := range d.Classes {
		if c.Class.Descriptor == descriptor {
			return c
		}
	}
	return nil
}

type reader struct {
	b []byte
	d *Dex
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func (r *reader) u16(off int) (int, error) {
	if off < 0 || off+2 > len(r.b) {
		return 0, malformed("read of 2 bytes at %#x past end", off)
	}
	return int(binary.LittleEndian.Uint16(r.b[off:])), nil
}

func (r *reader) u32(off int) (int, error) {
	if off < 0 || off+4 > len(r.b) {
		return 0, malformed("read of 4 bytes at %#x past end", off)
	}
	return int(binary.LittleEndian.Uint32(r.b[off:])), nil
}

// Read decodes a container, verifying its magic, checksum and size.
func Read(b []byte) (*Dex, error) {
	if len(b) < SizeOfHeader {
		return nil, malformed("file of %d bytes is shorter than the header", len(b))
	}
	if !bytes.Equal(b[:8], Magic[:]) {
		return nil, malformed("bad magic % x", b[:8])
	}
	r := &reader{b: b, d: &Dex{}}
	h := &r.d.Header
	h.Checksum = binary.LittleEndian.Uint32(b[8:])
	copy(h.Signature[:], b[12:32])
	if sum := adler32.Checksum(b[12:]); sum != h.Checksum {
		return nil, malformed("checksum %#08x, computed %#08x", h.Checksum, sum)
	}
	var err error
	if h.FileSize, err = r.u32(32); err != nil {
		return nil, err
	}
	if h.FileSize != len(b) {
		return nil, malformed("header file size %d, actual %d", h.FileSize, len(b))
	}
	if tag, _ := r.u32(40); tag != endianTag {
		return nil, malformed("unsupported endian tag %#x", tag)
	}
	h.MapOff, _ = r.u32(52)
	h.DataSize, _ = r.u32(104)
	h.DataOff, _ = r.u32(108)

	section := func(i int) (int, int) {
		n, _ := r.u32(56 + 8*i)
		off, _ := r.u32(60 + 8*i)
		return n, off
	}
	steps := []func(n, off int) error{r.strings, r.types, r.protos, r.fields, r.methods, r.classes}
	for i, step := range steps {
		n, off := section(i)
		if err := step(n, off); err != nil {
			return nil, err
		}
	}
	return r.d, nil
}

func (r *reader) strings(n, off int) error {
	r.d.Strings = make([]string, n)
	for i := range n {
		dataOff, err := r.u32(off + SizeOfStringID*i)
		if err != nil {
			return err
		}
		if dataOff >= len(r.b) {
			return malformed("string %d data at %#x past end", i, dataOff)
		}
		br := bytes.NewReader(r.b[dataOff:])
		if _, err := leb128.ReadUnsigned(br); err != nil {
			return malformed("string %d length: %v", i, err)
		}
		start := len(r.b) - br.Len()
		end := bytes.IndexByte(r.b[start:], 0)
		if end < 0 {
			return malformed("string %d is not terminated", i)
		}
		s, err := mutf8.Decode(r.b[start : start+end])
		if err != nil {
			return malformed("string %d: %v", i, err)
		}
		r.d.Strings[i] = s
	}
	return nil
}

func (r *reader) str(i int) (string, error) {
	if i < 0 || i >= len(r.d.Strings) {
		return "", malformed("string index %d out of range", i)
	}
	return r.d.Strings[i], nil
}

func (r *reader) typ(i int) (cst.Type, error) {
	if i < 0 || i >= len(r.d.Types) {
		return cst.Type{}, malformed("type index %d out of range", i)
	}
	return r.d.Types[i], nil
}

func (r *reader) types(n, off int) error {
	r.d.Types = make([]cst.Type, n)
	for i := range n {
		si, err := r.u32(off + SizeOfTypeID*i)
		if err != nil {
			return err
		}
		s, err := r.str(si)
		if err != nil {
			return err
		}
		r.d.Types[i] = cst.TypeFor(s)
	}
	return nil
}

func (r *reader) typeList(off int) ([]cst.Type, error) {
	if off == 0 {
		return nil, nil
	}
	n, err := r.u32(off)
	if err != nil {
		return nil, err
	}
	out := make([]cst.Type, 0, min(n, len(r.b)))
	for i := range n {
		ti, err := r.u16(off + 4 + 2*i)
		if err != nil {
			return nil, err
		}
		t, err := r.typ(ti)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *reader) protos(n, off int) error {
	r.d.Protos = make([]cst.Prototype, n)
	for i := range n {
		base := off + SizeOfProtoID*i
		ri, err := r.u32(base + 4)
		if err != nil {
			return err
		}
		ret, err := r.typ(ri)
		if err != nil {
			return err
		}
		lo, err := r.u32(base + 8)
		if err != nil {
			return err
		}
		params, err := r.typeList(lo)
		if err != nil {
			return err
		}
		desc := "("
		for _, p := range params {
			desc += p.Descriptor
		}
		desc += ")" + ret.Descriptor
		r.d.Protos[i] = cst.Prototype{Descriptor: desc, Return: ret, Params: params}
	}
	return nil
}

// member reads the (class u2, u2, name u4) layout shared by field and
// method ids.
func (r *reader) member(base int) (cst.Type, int, string, error) {
	ci, err := r.u16(base)
	if err != nil {
		return cst.Type{}, 0, "", err
	}
	class, err := r.typ(ci)
	if err != nil {
		return cst.Type{}, 0, "", err
	}
	mid, err := r.u16(base + 2)
	if err != nil {
		return cst.Type{}, 0, "", err
	}
	ni, err := r.u32(base + 4)
	if err != nil {
		return cst.Type{}, 0, "", err
	}
	name, err := r.str(ni)
	return class, mid, name, err
}

func (r *reader) fields(n, off int) error {
	r.d.Fields = make([]cst.FieldRef, n)
	for i := range n {
		class, ti, name, err := r.member(off + SizeOfFieldID*i)
		if err != nil {
			return err
		}
		t, err := r.typ(ti)
		if err != nil {
			return err
		}
		r.d.Fields[i] = cst.FieldRef{Class: class, NAT: nat(name, t.Descriptor)}
	}
	return nil
}

func (r *reader) methods(n, off int) error {
	r.d.Methods = make([]cst.MethodRef, n)
	for i := range n {
		class, pi, name, err := r.member(off + SizeOfMethodID*i)
		if err != nil {
			return err
		}
		if pi >= len(r.d.Protos) {
			return malformed("proto index %d out of range", pi)
		}
		r.d.Methods[i] = cst.MethodRef{Class: class, NAT: nat(name, r.d.Protos[pi].Descriptor)}
	}
	return nil
}

func (r *reader) classes(n, off int) error {
	r.d.Classes = make([]*ClassInfo, 0, min(n, len(r.b)/SizeOfClassDef))
	for i := range n {
		var w [8]int
		base := off + SizeOfClassDef*i
		for j := range w {
			v, err := r.u32(base + 4*j)
			if err != nil {
				return err
			}
			w[j] = v
		}
		class, err := r.typ(w[0])
		if err != nil {
			return err
		}
		c := &ClassInfo{Class: class, AccessFlags: w[1]}
		if w[2] != noIndex {
			super, err := r.typ(w[2])
			if err != nil {
				return err
			}
			c.Super = &super
		}
		if c.Interfaces, err = r.typeList(w[3]); err != nil {
			return err
		}
		if w[4] != noIndex {
			if c.SourceFile, err = r.str(w[4]); err != nil {
				return err
			}
		}
		if w[6] != 0 {
			if err := r.classData(c, w[6]); err != nil {
				return fmt.Errorf("class %s: %w", class, err)
			}
		}
		if w[7] != 0 {
			if w[7] >= len(r.b) {
				return malformed("class %s static values past end", class)
			}
			vd := &valueDecoder{r: bytes.NewReader(r.b[w[7]:]), d: r.d}
			a, err := vd.array()
			if err != nil {
				return fmt.Errorf("%w: class %s static values: %w", ErrMalformed, class, err)
			}
			c.StaticValues = a.Values
		}
		r.d.Classes = append(r.d.Classes, c)
	}
	return nil
}

func (r *reader) classData(c *ClassInfo, off int) error {
	if off >= len(r.b) {
		return malformed("class data at %#x past end", off)
	}
	br := bytes.NewReader(r.b[off:])
	next := func() (int, error) {
		v, err := leb128.ReadUnsigned(br)
		if err != nil {
			return 0, fmt.Errorf("%w: class data: %w", ErrMalformed, err)
		}
		return int(v), nil
	}
	var counts [4]int
	for i := range counts {
		v, err := next()
		if err != nil {
			return err
		}
		counts[i] = v
	}
	for i, dst := range []*[]FieldEntry{&c.StaticFields, &c.InstanceFields} {
		idx := 0
		for range counts[i] {
			delta, err := next()
			if err != nil {
				return err
			}
			flags, err := next()
			if err != nil {
				return err
			}
			idx += delta
			if idx >= len(r.d.Fields) {
				return malformed("field index %d out of range", idx)
			}
			*dst = append(*dst, FieldEntry{Ref: r.d.Fields[idx], AccessFlags: flags})
		}
	}
	for i, dst := range []*[]MethodEntry{&c.DirectMethods, &c.VirtualMethods} {
		idx := 0
		for range counts[2+i] {
			delta, err := next()
			if err != nil {
				return err
			}
			flags, err := next()
			if err != nil {
				return err
			}
			codeOff, err := next()
			if err != nil {
				return err
			}
			idx += delta
			if idx >= len(r.d.Methods) {
				return malformed("method index %d out of range", idx)
			}
			m := MethodEntry{Ref: r.d.Methods[idx], AccessFlags: flags}
			if codeOff != 0 {
				if m.Code, err = r.code(codeOff); err != nil {
					return err
				}
			}
			*dst = append(*dst, m)
		}
	}
	return nil
}

func (r *reader) code(off int) (*CodeItem, error) {
	var h [4]int
	for i := range h {
		v, err := r.u16(off + 2*i)
		if err != nil {
			return nil, err
		}
		h[i] = v
	}
	debug, err := r.u32(off + 8)
	if err != nil {
		return nil, err
	}
	n, err := r.u32(off + 12)
	if err != nil {
		return nil, err
	}
	start := off + SizeOfCodeHeader
	if n > (len(r.b)-start)/2 {
		return nil, malformed("code item at %#x overruns the file", off)
	}
	insns := make([]uint16, n)
	for i := range insns {
		insns[i] = binary.LittleEndian.Uint16(r.b[start+2*i:])
	}
	return &CodeItem{RegistersSize: h[0], InsSize: h[1], OutsSize: h[2], DebugInfoOff: debug, Insns: insns}, nil
}
