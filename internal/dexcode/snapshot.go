package dexcode

import (
	"fmt"

	"classdex/internal/cst"
)

// RefKind tags the constant a Ref stands for.
type RefKind uint8

const (
	RefString RefKind = iota + 1
	RefType
	RefField
	RefMethod
	RefInterfaceMethod
)

// Ref is a constant reference flattened to strings. For RefString and
// RefType only Name is set.
type Ref struct {
	Kind  RefKind
	Class string
	Name  string
	Desc  string
}

// SnapshotInsn is one encoded instruction before index resolution.
type SnapshotInsn struct {
	Op     uint8
	Format uint8
	Regs   []int
	Lit    int64
	Ref    *Ref
	Target int
	Addr   int
}

// Snapshot is a Code with every field exported and no interface values,
// suitable for serialisation.
type Snapshot struct {
	RegistersSize int
	InsSize       int
	OutsSize      int
	ParamNames    []string
	Size          int
	Insns         []SnapshotInsn
	Labels        map[int]int
	Positions     []Position
}

func (c *Code) Snapshot() (*Snapshot, error) {
	s := &Snapshot{
		RegistersSize: c.RegistersSize,
		InsSize:       c.InsSize,
		OutsSize:      c.OutsSize,
		ParamNames:    c.ParamNames,
		Size:          c.size,
		Insns:         make([]SnapshotInsn, len(c.insns)),
		Labels:        c.labels,
		Positions:     c.positions,
	}
	for i, in := range c.insns {
		ref, err := flatten(in.ref)
		if err != nil {
			return nil, fmt.Errorf("%04x %s: %w", in.addr, opNames[in.op], err)
		}
		s.Insns[i] = SnapshotInsn{
			Op:     in.op,
			Format: uint8(in.format),
			Regs:   in.regs,
			Lit:    in.lit,
			Ref:    ref,
			Target: in.target,
			Addr:   in.addr,
		}
	}
	return s, nil
}

// FromSnapshot rebuilds a Code. It checks that formats are known and that
// instruction addresses add up to Size.
func FromSnapshot(s *Snapshot) (*Code, error) {
	c := &Code{
		RegistersSize: s.RegistersSize,
		InsSize:       s.InsSize,
		OutsSize:      s.OutsSize,
		ParamNames:    s.ParamNames,
		insns:         make([]insn, len(s.Insns)),
		size:          s.Size,
		labels:        s.Labels,
		positions:     s.Positions,
	}
	if c.labels == nil {
		c.labels = map[int]int{}
	}
	addr := 0
	for i, si := range s.Insns {
		if int(si.Format) >= len(units) {
			return nil, fmt.Errorf("insn %d: unknown format %d", i, si.Format)
		}
		if si.Addr != addr {
			return nil, fmt.Errorf("insn %d: address %04x, expected %04x", i, si.Addr, addr)
		}
		ref, err := si.Ref.constant()
		if err != nil {
			return nil, fmt.Errorf("insn %d: %w", i, err)
		}
		c.insns[i] = insn{
			op:     si.Op,
			format: format(si.Format),
			regs:   si.Regs,
			lit:    si.Lit,
			ref:    ref,
			target: si.Target,
			addr:   si.Addr,
		}
		addr += units[si.Format]
	}
	if addr != s.Size {
		return nil, fmt.Errorf("code size %d, instructions cover %d", s.Size, addr)
	}
	return c, nil
}

func flatten(c cst.Constant) (*Ref, error) {
	switch c := c.(type) {
	case nil:
		return nil, nil
	case cst.String:
		return &Ref{Kind: RefString, Name: c.Value}, nil
	case cst.Type:
		return &Ref{Kind: RefType, Name: c.Descriptor}, nil
	case cst.FieldRef:
		return &Ref{Kind: RefField, Class: c.Class.Descriptor, Name: c.NAT.Name.Value, Desc: c.NAT.Descriptor.Value}, nil
	case cst.MethodRef:
		return &Ref{Kind: RefMethod, Class: c.Class.Descriptor, Name: c.NAT.Name.Value, Desc: c.NAT.Descriptor.Value}, nil
	case cst.InterfaceMethodRef:
		return &Ref{Kind: RefInterfaceMethod, Class: c.Class.Descriptor, Name: c.NAT.Name.Value, Desc: c.NAT.Descriptor.Value}, nil
	}
	return nil, fmt.Errorf("unexpected constant %s", c.Kind())
}

func (r *Ref) constant() (cst.Constant, error) {
	if r == nil {
		return nil, nil
	}
	nat := cst.NameAndType{Name: cst.String{Value: r.Name}, Descriptor: cst.String{Value: r.Desc}}
	switch r.Kind {
	case RefString:
		return cst.String{Value: r.Name}, nil
	case RefType:
		return cst.TypeFor(r.Name), nil
	case RefField:
		return cst.FieldRef{Class: cst.TypeFor(r.Class), NAT: nat}, nil
	case RefMethod:
		return cst.MethodRef{Class: cst.TypeFor(r.Class), NAT: nat}, nil
	case RefInterfaceMethod:
		return cst.InterfaceMethodRef{Class: cst.TypeFor(r.Class), NAT: nat}, nil
	}
	return nil, fmt.Errorf("unknown reference kind %d", r.Kind)
}
