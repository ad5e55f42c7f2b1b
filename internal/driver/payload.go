package driver

import (
	"fmt"

	"classdex/internal/cst"
	"classdex/internal/dexcode"
	"classdex/internal/dexfile"
)

// Payload is a translated class as stored in the cache.
type Payload struct {
	Schema      uint16
	Class       string
	AccessFlags int
	// Super is empty for the root class.
	Super      string
	Interfaces []string
	SourceFile string
	Fields     []FieldPayload
	Methods    []MethodPayload
}

type FieldPayload struct {
	Name        string
	Desc        string
	AccessFlags int
	Value       *ValuePayload
}

// ValuePayload is a static initial value; Bits holds the literal bits of
// numeric kinds and Str the text of a string.
type ValuePayload struct {
	Kind cst.Kind
	Bits int64
	Str  string
}

type MethodPayload struct {
	Name        string
	Desc        string
	AccessFlags int
	Code        *dexcode.Snapshot
}

func newPayload(def *dexfile.ClassDef) (*Payload, error) {
	p := &Payload{
		Class:       def.Class.Descriptor,
		AccessFlags: def.AccessFlags,
		SourceFile:  def.SourceFile,
	}
	if def.Super != nil {
		p.Super = def.Super.Descriptor
	}
	for _, t := range def.Interfaces {
		p.Interfaces = append(p.Interfaces, t.Descriptor)
	}
	d := def.Data
	for _, f := range append(append([]*dexfile.EncodedField(nil), d.StaticFields...), d.InstanceFields...) {
		fp := FieldPayload{Name: f.Ref.NAT.Name.Value, Desc: f.Ref.NAT.Descriptor.Value, AccessFlags: f.AccessFlags}
		if f.Value != nil {
			v, err := valuePayload(f.Value)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fp.Name, err)
			}
			fp.Value = v
		}
		p.Fields = append(p.Fields, fp)
	}
	for _, m := range append(append([]*dexfile.EncodedMethod(nil), d.DirectMethods...), d.VirtualMethods...) {
		mp := MethodPayload{Name: m.Ref.NAT.Name.Value, Desc: m.Ref.NAT.Descriptor.Value, AccessFlags: m.AccessFlags}
		if m.Code != nil {
			s, err := m.Code.Snapshot()
			if err != nil {
				return nil, fmt.Errorf("method %s%s: %w", mp.Name, mp.Desc, err)
			}
			mp.Code = s
		}
		p.Methods = append(p.Methods, mp)
	}
	return p, nil
}

func valuePayload(c cst.Constant) (*ValuePayload, error) {
	switch v := c.(type) {
	case cst.String:
		return &ValuePayload{Kind: cst.KindString, Str: v.Value}, nil
	case cst.Literal:
		return &ValuePayload{Kind: v.Kind(), Bits: v.Bits()}, nil
	}
	return nil, fmt.Errorf("cannot cache a %s value", c.Kind())
}

func (v *ValuePayload) constant() (cst.Constant, error) {
	b := v.Bits
	switch v.Kind {
	case cst.KindString:
		return cst.String{Value: v.Str}, nil
	case cst.KindKnownNull:
		return cst.KnownNull{}, nil
	case cst.KindBoolean:
		return cst.Boolean{Value: b != 0}, nil
	case cst.KindByte:
		return cst.Byte{Value: int8(b)}, nil //nolint:gosec // G115: stored from an int8
	case cst.KindChar:
		return cst.Char{Value: uint16(b)}, nil //nolint:gosec // G115: stored from a uint16
	case cst.KindShort:
		return cst.Short{Value: int16(b)}, nil //nolint:gosec // G115: stored from an int16
	case cst.KindInteger:
		return cst.Integer{Value: int32(b)}, nil //nolint:gosec // G115: stored from an int32
	case cst.KindLong:
		return cst.Long{Value: b}, nil
	case cst.KindFloat:
		return cst.Float{RawBits: uint32(b)}, nil //nolint:gosec // G115: raw bits
	case cst.KindDouble:
		return cst.Double{RawBits: uint64(b)}, nil //nolint:gosec // G115: raw bits
	}
	return nil, fmt.Errorf("unknown cached value kind %d", v.Kind)
}

// ClassDef rebuilds the class definition.
func (p *Payload) ClassDef() (*dexfile.ClassDef, error) {
	class := cst.TypeFor(p.Class)
	def := &dexfile.ClassDef{
		Class:       class,
		AccessFlags: p.AccessFlags,
		SourceFile:  p.SourceFile,
		Data:        &dexfile.ClassDataItem{},
	}
	if p.Super != "" {
		s := cst.TypeFor(p.Super)
		def.Super = &s
	}
	for _, t := range p.Interfaces {
		def.Interfaces = append(def.Interfaces, cst.TypeFor(t))
	}
	nat := func(name, desc string) cst.NameAndType {
		return cst.NameAndType{Name: cst.String{Value: name}, Descriptor: cst.String{Value: desc}}
	}
	for _, fp := range p.Fields {
		f := &dexfile.EncodedField{Ref: cst.FieldRef{Class: class, NAT: nat(fp.Name, fp.Desc)}, AccessFlags: fp.AccessFlags}
		if fp.Value != nil {
			v, err := fp.Value.constant()
			if err != nil {
				return nil, err
			}
			f.Value = v
		}
		def.Data.AddField(f)
	}
	for _, mp := range p.Methods {
		m := &dexfile.EncodedMethod{Ref: cst.MethodRef{Class: class, NAT: nat(mp.Name, mp.Desc)}, AccessFlags: mp.AccessFlags}
		if mp.Code != nil {
			code, err := dexcode.FromSnapshot(mp.Code)
			if err != nil {
				return nil, fmt.Errorf("method %s%s: %w", mp.Name, mp.Desc, err)
			}
			m.Code = code
		}
		def.Data.AddMethod(m)
	}
	return def, nil
}
