package classfile

import (
	"classdex/internal/bytestream"
	"classdex/internal/cst"
	"classdex/internal/mutf8"
)

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagInvokeDynamic      = 18
)

const (
	poolCountOffset = 8
	poolStartOffset = 10
)

const (
	slotPending uint8 = iota
	slotActive
	slotDone
)

type poolParser struct {
	data    bytestream.Array
	pool    *cst.StdPool
	offsets []int
	state   []uint8
}

// ParseConstantPool reads the pool of a class file. It returns the resolved
// pool and the offset of the first byte after it.
func ParseConstantPool(data bytestream.Array) (*cst.StdPool, int, error) {
	size, err := data.U2(poolCountOffset)
	if err != nil {
		return nil, 0, asParseError(err)
	}
	p := &poolParser{
		data:    data,
		pool:    cst.NewStdPool(size),
		offsets: make([]int, max(size, 1)),
		state:   make([]uint8, max(size, 1)),
	}
	end, err := p.determineOffsets()
	if err != nil {
		return nil, 0, err
	}
	for i := 1; i < len(p.offsets); i++ {
		if p.offsets[i] != 0 && p.state[i] != slotDone {
			if _, err := p.parse0(i); err != nil {
				return nil, 0, err
			}
		}
	}
	return p.pool, end, nil
}

// determineOffsets records where each slot starts without building constants.
func (p *poolParser) determineOffsets() (int, error) {
	at := poolStartOffset
	category := 1
	for i := 1; i < len(p.offsets); i += category {
		p.offsets[i] = at
		tag, err := p.data.U1(at)
		if err != nil {
			return 0, withContext(err, "...while preparsing cst %04x at offset %08x", i, at)
		}
		category = 1
		switch tag {
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType:
			at += 5
		case tagLong, tagDouble:
			category = 2
			at += 9
		case tagClass, tagString:
			at += 3
		case tagUtf8:
			n, err := p.data.U2(at + 1)
			if err != nil {
				return 0, withContext(err, "...while preparsing cst %04x at offset %08x", i, at)
			}
			at += n + 3
		case tagMethodHandle:
			return 0, withContext(unsupported("MethodHandle not supported"), "...while preparsing cst %04x at offset %08x", i, at)
		case tagMethodType:
			return 0, withContext(unsupported("MethodType not supported"), "...while preparsing cst %04x at offset %08x", i, at)
		case tagInvokeDynamic:
			return 0, withContext(unsupported("InvokeDynamic not supported"), "...while preparsing cst %04x at offset %08x", i, at)
		default:
			return 0, withContext(malformed("unknown tag byte: %02x", tag), "...while preparsing cst %04x at offset %08x", i, at)
		}
	}
	if at > p.data.Len() {
		return 0, malformed("constant pool runs past end of file (%08x > %08x)", at, p.data.Len())
	}
	return at, nil
}

// ref resolves a slot referenced from another entry.
func (p *poolParser) ref(idx int) (cst.Constant, error) {
	if idx <= 0 || idx >= len(p.offsets) {
		return nil, malformed("constant pool index out of range: %04x", idx)
	}
	if p.offsets[idx] == 0 {
		return nil, malformed("reference to second half of wide constant %04x", idx)
	}
	return p.parse0(idx)
}

func (p *poolParser) refString(idx int) (cst.String, error) {
	c, err := p.ref(idx)
	if err != nil {
		return cst.String{}, err
	}
	s, ok := c.(cst.String)
	if !ok {
		return cst.String{}, malformed("constant pool entry %04x is %s, expected utf8", idx, c.Kind())
	}
	return s, nil
}

func (p *poolParser) refType(idx int) (cst.Type, error) {
	c, err := p.ref(idx)
	if err != nil {
		return cst.Type{}, err
	}
	t, ok := c.(cst.Type)
	if !ok {
		return cst.Type{}, malformed("constant pool entry %04x is %s, expected class", idx, c.Kind())
	}
	return t, nil
}

func (p *poolParser) refNAT(idx int) (cst.NameAndType, error) {
	c, err := p.ref(idx)
	if err != nil {
		return cst.NameAndType{}, err
	}
	n, ok := c.(cst.NameAndType)
	if !ok {
		return cst.NameAndType{}, malformed("constant pool entry %04x is %s, expected name-and-type", idx, c.Kind())
	}
	return n, nil
}

func (p *poolParser) member(at int) (cst.Type, cst.NameAndType, error) {
	classIdx, err := p.data.U2(at + 1)
	if err != nil {
		return cst.Type{}, cst.NameAndType{}, err
	}
	class, err := p.refType(classIdx)
	if err != nil {
		return cst.Type{}, cst.NameAndType{}, err
	}
	natIdx, err := p.data.U2(at + 3)
	if err != nil {
		return cst.Type{}, cst.NameAndType{}, err
	}
	nat, err := p.refNAT(natIdx)
	return class, nat, err
}

// parse0 resolves slot idx, resolving its dependencies first.
func (p *poolParser) parse0(idx int) (cst.Constant, error) {
	switch p.state[idx] {
	case slotDone:
		return p.pool.GetOrNil(idx), nil
	case slotActive:
		return nil, malformed("circular constant pool reference at %04x", idx)
	}
	p.state[idx] = slotActive
	at := p.offsets[idx]
	c, err := p.decode(at)
	if err != nil {
		return nil, withContext(err, "...while parsing cst %04x at offset %08x", idx, at)
	}
	if err := p.pool.Set(idx, c); err != nil {
		return nil, withContext(err, "...while parsing cst %04x at offset %08x", idx, at)
	}
	p.state[idx] = slotDone
	return c, nil
}

func (p *poolParser) decode(at int) (cst.Constant, error) {
	tag, err := p.data.U1(at)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagUtf8:
		n, err := p.data.U2(at + 1)
		if err != nil {
			return nil, err
		}
		raw, err := p.data.Slice(at+3, at+3+n)
		if err != nil {
			return nil, err
		}
		s, err := mutf8.Decode(raw.Bytes())
		if err != nil {
			return nil, malformed("%v", err)
		}
		return cst.String{Value: s}, nil
	case tagInteger:
		v, err := p.data.S4(at + 1)
		return cst.Integer{Value: v}, err
	case tagFloat:
		v, err := p.data.U4(at + 1)
		return cst.Float{RawBits: v}, err
	case tagLong:
		v, err := p.data.S8(at + 1)
		return cst.Long{Value: v}, err
	case tagDouble:
		v, err := p.data.S8(at + 1)
		return cst.Double{RawBits: uint64(v)}, err //nolint:gosec // G115: raw bit pattern
	case tagClass:
		nameIdx, err := p.data.U2(at + 1)
		if err != nil {
			return nil, err
		}
		name, err := p.refString(nameIdx)
		if err != nil {
			return nil, err
		}
		t := cst.ClassType(name.Value)
		if _, err := cst.ParseFieldDescriptor(t.Descriptor); err != nil {
			return nil, malformed("bad class name %q", name.Value)
		}
		return t, nil
	case tagString:
		strIdx, err := p.data.U2(at + 1)
		if err != nil {
			return nil, err
		}
		return p.refString(strIdx)
	case tagFieldref:
		class, nat, err := p.member(at)
		return cst.FieldRef{Class: class, NAT: nat}, err
	case tagMethodref:
		class, nat, err := p.member(at)
		return cst.MethodRef{Class: class, NAT: nat}, err
	case tagInterfaceMethodref:
		class, nat, err := p.member(at)
		return cst.InterfaceMethodRef{Class: class, NAT: nat}, err
	case tagNameAndType:
		nameIdx, err := p.data.U2(at + 1)
		if err != nil {
			return nil, err
		}
		name, err := p.refString(nameIdx)
		if err != nil {
			return nil, err
		}
		descIdx, err := p.data.U2(at + 3)
		if err != nil {
			return nil, err
		}
		desc, err := p.refString(descIdx)
		if err != nil {
			return nil, err
		}
		return cst.NameAndType{Name: name, Descriptor: desc}, nil
	case tagMethodHandle:
		return nil, unsupported("MethodHandle not supported")
	case tagMethodType:
		return nil, unsupported("MethodType not supported")
	case tagInvokeDynamic:
		return nil, unsupported("InvokeDynamic not supported")
	}
	return nil, malformed("unknown tag byte: %02x", tag)
}
