package dexfile

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"classdex/internal/cst"
	"classdex/internal/mutf8"
)

// ErrNotFinalized is returned by index lookups made before Finalize.
var ErrNotFinalized = errors.New("id tables are not finalized")

type memberKey struct {
	class string
	name  string
	desc  string
}

// IDs interns strings, types, prototypes, fields and methods and, once
// finalized, hands out their indices in container order.
type IDs struct {
	strings map[string]int
	types   map[string]int
	protos  map[string]cst.Prototype
	fields  map[memberKey]int
	methods map[memberKey]int

	final      bool
	stringList []string
	typeList   []cst.Type
	protoList  []cst.Prototype
	protoIdx   map[string]int
	fieldList  []cst.FieldRef
	methodList []cst.MethodRef
}

// NewIDs returns empty tables.
func NewIDs() *IDs {
	return &IDs{
		strings: map[string]int{},
		types:   map[string]int{},
		protos:  map[string]cst.Prototype{},
		fields:  map[memberKey]int{},
		methods: map[memberKey]int{},
	}
}

func (t *IDs) mutable() error {
	if t.final {
		return errors.New("id tables are finalized")
	}
	return nil
}

// InternString adds s.
func (t *IDs) InternString(s string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	t.strings[s] = -1
	return nil
}

// InternType adds ty and its descriptor string.
func (t *IDs) InternType(ty cst.Type) error {
	if err := t.InternString(ty.Descriptor); err != nil {
		return err
	}
	t.types[ty.Descriptor] = -1
	return nil
}

// InternProto adds p with its shorty and all of its types.
func (t *IDs) InternProto(p cst.Prototype) error {
	if err := t.InternString(p.Shorty()); err != nil {
		return err
	}
	if err := t.InternType(p.Return); err != nil {
		return err
	}
	for _, param := range p.Params {
		if err := t.InternType(param); err != nil {
			return err
		}
	}
	t.protos[p.Descriptor] = p
	return nil
}

// InternField adds f and everything it names.
func (t *IDs) InternField(f cst.FieldRef) error {
	if err := t.InternType(f.Class); err != nil {
		return err
	}
	if err := t.InternType(f.Type()); err != nil {
		return err
	}
	if err := t.InternString(f.NAT.Name.Value); err != nil {
		return err
	}
	t.fields[keyOf(f)] = -1
	return nil
}

// InternMethod adds m, which may be a class or interface method reference.
func (t *IDs) InternMethod(m cst.MemberRef) error {
	nat := m.NameAndType()
	p, err := cst.ParseMethodDescriptor(nat.Descriptor.Value)
	if err != nil {
		return err
	}
	if err := t.InternType(m.DefiningClass()); err != nil {
		return err
	}
	if err := t.InternProto(p); err != nil {
		return err
	}
	if err := t.InternString(nat.Name.Value); err != nil {
		return err
	}
	t.methods[keyOf(m)] = -1
	return nil
}

// Intern adds any constant that can be referenced from code, class data or
// an encoded value. Literals need no table entry.
func (t *IDs) Intern(c cst.Constant) error {
	switch c := c.(type) {
	case cst.String:
		return t.InternString(c.Value)
	case cst.Type:
		return t.InternType(c)
	case cst.FieldRef:
		return t.InternField(c)
	case cst.MethodRef, cst.InterfaceMethodRef:
		return t.InternMethod(c.(cst.MemberRef))
	case cst.EnumRef:
		return t.InternField(enumField(c))
	case cst.Array:
		for _, v := range c.Values {
			if err := t.Intern(v); err != nil {
				return err
			}
		}
		return nil
	case cst.Literal:
		return nil
	}
	return fmt.Errorf("cannot intern %s constant", c.Kind())
}

func enumField(e cst.EnumRef) cst.FieldRef {
	return cst.FieldRef{Class: cst.TypeFor(e.NAT.Descriptor.Value), NAT: e.NAT}
}

func keyOf(m cst.MemberRef) memberKey {
	nat := m.NameAndType()
	return memberKey{class: m.DefiningClass().Descriptor, name: nat.Name.Value, desc: nat.Descriptor.Value}
}

// Finalize sorts every table into container order and assigns indices.
// Nothing can be interned afterwards.
func (t *IDs) Finalize() {
	if t.final {
		return
	}
	t.final = true

	t.stringList = sortedKeys(t.strings, mutf8.CompareUTF16)
	for i, s := range t.stringList {
		t.strings[s] = i
	}

	descs := sortedKeys(t.types, func(a, b string) int { return t.strings[a] - t.strings[b] })
	t.typeList = make([]cst.Type, len(descs))
	for i, d := range descs {
		t.types[d] = i
		t.typeList[i] = cst.TypeFor(d)
	}

	t.protoList = make([]cst.Prototype, 0, len(t.protos))
	for _, p := range t.protos {
		t.protoList = append(t.protoList, p)
	}
	slices.SortFunc(t.protoList, t.compareProtos)
	t.protoIdx = make(map[string]int, len(t.protoList))
	for i, p := range t.protoList {
		t.protoIdx[p.Descriptor] = i
	}

	fieldKeys := sortedKeys(t.fields, func(a, b memberKey) int {
		if c := t.types[a.class] - t.types[b.class]; c != 0 {
			return c
		}
		if c := t.strings[a.name] - t.strings[b.name]; c != 0 {
			return c
		}
		return t.types[a.desc] - t.types[b.desc]
	})
	t.fieldList = make([]cst.FieldRef, len(fieldKeys))
	for i, k := range fieldKeys {
		t.fields[k] = i
		t.fieldList[i] = cst.FieldRef{Class: cst.TypeFor(k.class), NAT: nat(k.name, k.desc)}
	}

	methodKeys := sortedKeys(t.methods, func(a, b memberKey) int {
		if c := t.types[a.class] - t.types[b.class]; c != 0 {
			return c
		}
		if c := t.strings[a.name] - t.strings[b.name]; c != 0 {
			return c
		}
		return t.protoIdx[a.desc] - t.protoIdx[b.desc]
	})
	t.methodList = make([]cst.MethodRef, len(methodKeys))
	for i, k := range methodKeys {
		t.methods[k] = i
		t.methodList[i] = cst.MethodRef{Class: cst.TypeFor(k.class), NAT: nat(k.name, k.desc)}
	}
}

func (t *IDs) compareProtos(a, b cst.Prototype) int {
	if c := t.types[a.Return.Descriptor] - t.types[b.Return.Descriptor]; c != 0 {
		return c
	}
	return slices.CompareFunc(a.Params, b.Params, func(x, y cst.Type) int {
		return t.types[x.Descriptor] - t.types[y.Descriptor]
	})
}

func sortedKeys[K comparable](m map[K]int, cmp func(a, b K) int) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.SortFunc(out, cmp)
	return out
}

func nat(name, desc string) cst.NameAndType {
	return cst.NameAndType{Name: cst.String{Value: name}, Descriptor: cst.String{Value: desc}}
}

func lookup[K comparable](t *IDs, m map[K]int, k K, what string) (int, error) {
	if !t.final {
		return 0, ErrNotFinalized
	}
	i, ok := m[k]
	if !ok {
		return 0, fmt.Errorf("%s not interned", what)
	}
	return i, nil
}

func (t *IDs) StringIndex(s string) (int, error) {
	return lookup(t, t.strings, s, fmt.Sprintf("string %q", s))
}

func (t *IDs) TypeIndex(ty cst.Type) (int, error) {
	return lookup(t, t.types, ty.Descriptor, "type "+ty.Descriptor)
}

func (t *IDs) ProtoIndex(p cst.Prototype) (int, error) {
	return lookup(t, t.protoIdx, p.Descriptor, "prototype "+p.Descriptor)
}

func (t *IDs) FieldIndex(f cst.FieldRef) (int, error) {
	return lookup(t, t.fields, keyOf(f), "field "+f.String())
}

func (t *IDs) MethodIndex(m cst.MemberRef) (int, error) {
	return lookup(t, t.methods, keyOf(m), "method "+m.String())
}

// IndexOf resolves any interned reference constant to its table index.
func (t *IDs) IndexOf(c cst.Constant) (int, error) {
	switch c := c.(type) {
	case cst.String:
		return t.StringIndex(c.Value)
	case cst.Type:
		return t.TypeIndex(c)
	case cst.FieldRef:
		return t.FieldIndex(c)
	case cst.EnumRef:
		return t.FieldIndex(enumField(c))
	case cst.MemberRef:
		return t.MethodIndex(c)
	}
	return 0, fmt.Errorf("%s constants have no index", c.Kind())
}

// Counts reports the table sizes.
func (t *IDs) Counts() (stringN, typeN, protoN, fieldN, methodN int) {
	return len(t.strings), len(t.types), len(t.protos), len(t.fields), len(t.methods)
}

// String lists the tables, one entry per line.
func (t *IDs) String() string {
	var sb strings.Builder
	for i, s := range t.stringList {
		fmt.Fprintf(&sb, "string %d: %q\n", i, s)
	}
	for i, ty := range t.typeList {
		fmt.Fprintf(&sb, "type %d: %s\n", i, ty)
	}
	for i, p := range t.protoList {
		fmt.Fprintf(&sb, "proto %d: %s\n", i, p.Descriptor)
	}
	for i, f := range t.fieldList {
		fmt.Fprintf(&sb, "field %d: %s\n", i, f)
	}
	for i, m := range t.methodList {
		fmt.Fprintf(&sb, "method %d: %s\n", i, m)
	}
	return sb.String()
}
