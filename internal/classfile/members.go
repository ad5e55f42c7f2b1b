package classfile

import (
	"classdex/internal/attrib"
	"classdex/internal/bytestream"
	"classdex/internal/cst"
)

// Access flags shared by classes, fields and methods.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSynchronized = 0x0020
	AccSuper        = 0x0020
	AccVolatile     = 0x0040
	AccBridge       = 0x0040
	AccTransient    = 0x0080
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
)

// MemberKind selects the attribute context and the name used in error trails.
type MemberKind uint8

const (
	MemberField MemberKind = iota
	MemberMethod
)

func (k MemberKind) context() Context {
	if k == MemberMethod {
		return ContextMethod
	}
	return ContextField
}

func (k MemberKind) String() string {
	if k == MemberMethod {
		return "method"
	}
	return "field"
}

// Member is one field or method declaration.
type Member struct {
	Definer     cst.Type
	AccessFlags int
	NAT         cst.NameAndType
	Attributes  attrib.List
}

// Name returns the member name.
func (m *Member) Name() string { return m.NAT.Name.Value }

// Descriptor returns the raw member descriptor.
func (m *Member) Descriptor() string { return m.NAT.Descriptor.Value }

func (m *Member) IsStatic() bool { return m.AccessFlags&AccStatic != 0 }

// FieldRef returns the reference naming this member as a field.
func (m *Member) FieldRef() cst.FieldRef { return cst.FieldRef{Class: m.Definer, NAT: m.NAT} }

// MethodRef returns the reference naming this member as a method.
func (m *Member) MethodRef() cst.MethodRef { return cst.MethodRef{Class: m.Definer, NAT: m.NAT} }

// Code returns the method body, or nil.
func (m *Member) Code() *attrib.Code {
	c, _ := m.Attributes.FindFirst(attrib.NameCode).(*attrib.Code)
	return c
}

// ParseMembers decodes a u2-counted field or method table starting at offset
// and returns the offset just past it.
func ParseMembers(data bytestream.Array, pool cst.Pool, definer cst.Type, kind MemberKind, offset int) ([]Member, int, error) {
	r := &attrReader{data: data, pool: pool}
	count, err := data.U2(offset)
	if err != nil {
		return nil, 0, withContext(err, "...while parsing %ss", kind)
	}
	at := offset + 2
	members := make([]Member, count)
	for i := range members {
		m, end, err := r.member(definer, kind, at)
		if err != nil {
			return nil, 0, withContext(err, "...while parsing %ss[%d]", kind, i)
		}
		members[i] = m
		at = end
	}
	return members, at, nil
}

func (r *attrReader) member(definer cst.Type, kind MemberKind, at int) (Member, int, error) {
	in := r.data.Reader()
	in.Skip(at)
	flags, nameIdx, descIdx := in.U2(), in.U2(), in.U2()
	if err := in.Err(); err != nil {
		return Member{}, 0, err
	}
	name, err := poolString(r.pool, nameIdx)
	if err != nil {
		return Member{}, 0, err
	}
	desc, err := poolString(r.pool, descIdx)
	if err != nil {
		return Member{}, 0, err
	}
	if kind == MemberMethod {
		_, err = cst.ParseMethodDescriptor(desc.Value)
	} else {
		_, err = cst.ParseFieldDescriptor(desc.Value)
	}
	if err != nil {
		return Member{}, 0, malformed("%v", err)
	}
	attrs, end, err := r.list(kind.context(), at+6)
	if err != nil {
		return Member{}, 0, err
	}
	return Member{
		Definer:     definer,
		AccessFlags: flags,
		NAT:         cst.NameAndType{Name: name, Descriptor: desc},
		Attributes:  attrs,
	}, end, nil
}
