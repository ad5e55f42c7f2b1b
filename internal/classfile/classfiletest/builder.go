// Package classfiletest assembles class files in memory for tests.
package classfiletest

import (
	"encoding/binary"
	"math"
)

// Builder interns constant pool entries and serialises classes that use them.
type Builder struct {
	entries [][]byte
	next    int
	index   map[string]int
}

// New returns an empty builder; the first usable pool index is 1.
func New() *Builder {
	return &Builder{next: 1, index: make(map[string]int)}
}

func (b *Builder) add(key string, wide bool, entry []byte) int {
	if key != "" {
		if idx, ok := b.index[key]; ok {
			return idx
		}
	}
	idx := b.next
	b.entries = append(b.entries, entry)
	b.next++
	if wide {
		b.next++
	}
	if key != "" {
		b.index[key] = idx
	}
	return idx
}

// PoolCount is the constant_pool_count value for the interned entries.
func (b *Builder) PoolCount() int { return b.next }

func (b *Builder) Utf8(s string) int {
	data := []byte(s)
	return b.add("u:"+s, false, Cat([]byte{1}, U2(len(data)), data))
}

// Utf8Raw interns an already-encoded modified UTF-8 payload.
func (b *Builder) Utf8Raw(data []byte) int {
	return b.add("", false, Cat([]byte{1}, U2(len(data)), data))
}

func (b *Builder) Integer(v int32) int {
	return b.add("", false, Cat([]byte{3}, U4(uint32(v)))) //nolint:gosec // G115: raw bits
}

func (b *Builder) Float(v float32) int {
	return b.add("", false, Cat([]byte{4}, U4(math.Float32bits(v))))
}

func (b *Builder) Long(v int64) int {
	return b.add("", true, Cat([]byte{5}, U8(uint64(v)))) //nolint:gosec // G115: raw bits
}

func (b *Builder) Double(v float64) int {
	return b.add("", true, Cat([]byte{6}, U8(math.Float64bits(v))))
}

func (b *Builder) Class(name string) int {
	n := b.Utf8(name)
	return b.add("c:"+name, false, Cat([]byte{7}, U2(n)))
}

func (b *Builder) String(s string) int {
	n := b.Utf8(s)
	return b.add("s:"+s, false, Cat([]byte{8}, U2(n)))
}

func (b *Builder) NAT(name, desc string) int {
	n, d := b.Utf8(name), b.Utf8(desc)
	return b.add("n:"+name+":"+desc, false, Cat([]byte{12}, U2(n), U2(d)))
}

func (b *Builder) ref(tag byte, class, name, desc string) int {
	c, n := b.Class(class), b.NAT(name, desc)
	return b.add("r:"+string(rune('0'+tag))+class+"."+name+":"+desc, false, Cat([]byte{tag}, U2(c), U2(n)))
}

func (b *Builder) Field(class, name, desc string) int  { return b.ref(9, class, name, desc) }
func (b *Builder) Method(class, name, desc string) int { return b.ref(10, class, name, desc) }
func (b *Builder) InterfaceMethod(class, name, desc string) int {
	return b.ref(11, class, name, desc)
}

// Raw appends an arbitrary entry, for tags the builder does not model.
func (b *Builder) Raw(entry ...byte) int { return b.add("", false, entry) }

// PoolBytes returns constant_pool_count followed by the entries.
func (b *Builder) PoolBytes() []byte {
	out := U2(b.next)
	for _, e := range b.entries {
		out = append(out, e...)
	}
	return out
}

// Attr is an attribute with a name and pre-encoded body.
type Attr struct {
	Name string
	Data []byte
}

// Encode returns the attribute with its six-byte header.
func (b *Builder) Encode(a Attr) []byte {
	return Cat(U2(b.Utf8(a.Name)), U4(uint32(len(a.Data))), a.Data) //nolint:gosec // G115: test sizes
}

// EncodeList returns a u2-counted attribute list.
func (b *Builder) EncodeList(attrs []Attr) []byte {
	out := U2(len(attrs))
	for _, a := range attrs {
		out = append(out, b.Encode(a)...)
	}
	return out
}

// Catch is a raw exception table row.
type Catch struct {
	Start, End, Handler, Type int
}

// Code builds a Code attribute body.
func (b *Builder) Code(maxStack, maxLocals int, code []byte, catches []Catch, attrs ...Attr) Attr {
	data := Cat(U2(maxStack), U2(maxLocals), U4(uint32(len(code))), code, U2(len(catches))) //nolint:gosec // G115: test sizes
	for _, c := range catches {
		data = Cat(data, U2(c.Start), U2(c.End), U2(c.Handler), U2(c.Type))
	}
	data = append(data, b.EncodeList(attrs)...)
	return Attr{Name: "Code", Data: data}
}

// Member describes a field or method.
type Member struct {
	Flags int
	Name  string
	Desc  string
	Attrs []Attr
}

// Class describes a whole class file.
type Class struct {
	Major      int
	Flags      int
	This       string
	Super      string
	Interfaces []string
	Fields     []Member
	Methods    []Member
	Attrs      []Attr
}

// Bytes serialises c. Every name c mentions is interned before the pool is
// written, so indices handed out earlier stay valid.
func (b *Builder) Bytes(c Class) []byte {
	this := b.Class(c.This)
	super := 0
	if c.Super != "" {
		super = b.Class(c.Super)
	}
	ifaces := make([]int, len(c.Interfaces))
	for i, name := range c.Interfaces {
		ifaces[i] = b.Class(name)
	}
	var members []byte
	for _, group := range [][]Member{c.Fields, c.Methods} {
		members = append(members, U2(len(group))...)
		for _, m := range group {
			members = Cat(members, U2(m.Flags), U2(b.Utf8(m.Name)), U2(b.Utf8(m.Desc)), b.EncodeList(m.Attrs))
		}
	}
	attrs := b.EncodeList(c.Attrs)

	major := c.Major
	if major == 0 {
		major = 50
	}
	out := Cat(U4(0xcafebabe), U2(0), U2(major), b.PoolBytes(), U2(c.Flags), U2(this), U2(super), U2(len(ifaces)))
	for _, idx := range ifaces {
		out = append(out, U2(idx)...)
	}
	return Cat(out, members, attrs)
}

// WithPool returns a class file prefix (magic, version, pool) followed by rest.
func (b *Builder) WithPool(rest ...byte) []byte {
	return Cat(U4(0xcafebabe), U2(0), U2(50), b.PoolBytes(), rest)
}

func U2(v int) []byte {
	return binary.BigEndian.AppendUint16(nil, uint16(v)) //nolint:gosec // G115: test values
}

func U4(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

func U8(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }

// Cat concatenates byte slices into a new slice.
func Cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
