package dexfile

import (
	"errors"
	"fmt"
	"slices"

	"fortio.org/safecast"

	"classdex/internal/cst"
	"classdex/internal/dexcode"
	"classdex/internal/leb128"
	"classdex/internal/mutf8"
)

var (
	// ErrSortedStatics is returned when static values are requested before
	// the static fields have been put in their final order.
	ErrSortedStatics = errors.New("static values requested before static fields were sorted")
	// ErrNonMonotonic means the index collaborator disagrees with reference
	// order for members of one class.
	ErrNonMonotonic = errors.New("member indices are not ascending in reference order")
)

// IndexResolver is the interning collaborator the class data encoder relies
// on: a stable non-negative index for every reference constant.
type IndexResolver interface {
	IndexOf(c cst.Constant) (int, error)
}

// EncodedField is a field declaration. Value is the static initial value,
// nil when absent.
type EncodedField struct {
	Ref         cst.FieldRef
	AccessFlags int
	Value       cst.Constant
}

// EncodedMethod is a method declaration. Code is nil for abstract and native
// methods.
type EncodedMethod struct {
	Ref         cst.MethodRef
	AccessFlags int
	Code        *dexcode.Code
}

// ClassDataItem holds the member declarations of one class.
type ClassDataItem struct {
	StaticFields   []*EncodedField
	InstanceFields []*EncodedField
	DirectMethods  []*EncodedMethod
	VirtualMethods []*EncodedMethod

	sorted bool
}

// IsEmpty reports whether the class declares no members.
func (c *ClassDataItem) IsEmpty() bool {
	return len(c.StaticFields)+len(c.InstanceFields)+len(c.DirectMethods)+len(c.VirtualMethods) == 0
}

// AddField appends f to the static or instance list by its access flags.
func (c *ClassDataItem) AddField(f *EncodedField) {
	if f.AccessFlags&AccStatic != 0 {
		c.StaticFields = append(c.StaticFields, f)
	} else {
		c.InstanceFields = append(c.InstanceFields, f)
	}
	c.sorted = false
}

// AddMethod appends m to the direct list (static, private, constructors) or
// the virtual list.
func (c *ClassDataItem) AddMethod(m *EncodedMethod) {
	if m.AccessFlags&(AccStatic|AccPrivate|AccConstructor) != 0 {
		c.DirectMethods = append(c.DirectMethods, m)
	} else {
		c.VirtualMethods = append(c.VirtualMethods, m)
	}
	c.sorted = false
}

// Sort puts each list in reference order.
func (c *ClassDataItem) Sort() {
	if c.sorted {
		return
	}
	for _, l := range [][]*EncodedField{c.StaticFields, c.InstanceFields} {
		slices.SortStableFunc(l, func(a, b *EncodedField) int { return CompareFields(a.Ref, b.Ref) })
	}
	for _, l := range [][]*EncodedMethod{c.DirectMethods, c.VirtualMethods} {
		slices.SortStableFunc(l, func(a, b *EncodedMethod) int { return CompareMethods(a.Ref, b.Ref) })
	}
	c.sorted = true
}

// CompareFields orders fields of one class by name, then type descriptor.
func CompareFields(a, b cst.FieldRef) int {
	if c := mutf8.CompareUTF16(a.NAT.Name.Value, b.NAT.Name.Value); c != 0 {
		return c
	}
	return mutf8.CompareUTF16(a.NAT.Descriptor.Value, b.NAT.Descriptor.Value)
}

// CompareMethods orders methods of one class by name, then prototype: return
// type first, then the parameter types.
func CompareMethods(a, b cst.MethodRef) int {
	if c := mutf8.CompareUTF16(a.NAT.Name.Value, b.NAT.Name.Value); c != 0 {
		return c
	}
	pa, errA := a.Prototype()
	pb, errB := b.Prototype()
	if errA != nil || errB != nil {
		return mutf8.CompareUTF16(a.NAT.Descriptor.Value, b.NAT.Descriptor.Value)
	}
	if c := mutf8.CompareUTF16(pa.Return.Descriptor, pb.Return.Descriptor); c != 0 {
		return c
	}
	return slices.CompareFunc(pa.Params, pb.Params, func(x, y cst.Type) int {
		return mutf8.CompareUTF16(x.Descriptor, y.Descriptor)
	})
}

// StaticValues returns the initial values of the sorted static fields with
// trailing default values dropped, or nil when none remain. Absent values
// inside the kept prefix become explicit zeros of the field type.
func (c *ClassDataItem) StaticValues() (*cst.Array, error) {
	if !c.sorted {
		return nil, ErrSortedStatics
	}
	n := len(c.StaticFields)
	for n > 0 {
		v := c.StaticFields[n-1].Value
		if v != nil && !cst.IsZero(v) {
			break
		}
		n--
	}
	if n == 0 {
		return nil, nil
	}
	values := make([]cst.Constant, n)
	for i, f := range c.StaticFields[:n] {
		values[i] = f.Value
		if values[i] == nil {
			values[i] = cst.ZeroFor(f.Ref.Type())
		}
	}
	return &cst.Array{Values: values}, nil
}

// Encode sorts the lists and writes the class_data_item: the four counts,
// then each list as index deltas and access flags. codeOff supplies the
// code item offset of each method, zero for methods without code.
func (c *ClassDataItem) Encode(idx IndexResolver, codeOff func(*EncodedMethod) int) ([]byte, error) {
	c.Sort()
	var out []byte
	for _, n := range []int{len(c.StaticFields), len(c.InstanceFields), len(c.DirectMethods), len(c.VirtualMethods)} {
		out = leb128.AppendUnsigned(out, uint32(n)) //nolint:gosec // list lengths
	}
	var err error
	for _, l := range [][]*EncodedField{c.StaticFields, c.InstanceFields} {
		prev := 0
		for i, f := range l {
			if out, prev, err = appendMember(out, idx, f.Ref, i, prev, f.AccessFlags); err != nil {
				return nil, err
			}
		}
	}
	for _, l := range [][]*EncodedMethod{c.DirectMethods, c.VirtualMethods} {
		prev := 0
		for i, m := range l {
			if out, prev, err = appendMember(out, idx, m.Ref, i, prev, m.AccessFlags); err != nil {
				return nil, err
			}
			off := 0
			if m.Code != nil && codeOff != nil {
				off = codeOff(m)
			}
			u, err := safecast.Conv[uint32](off)
			if err != nil {
				return nil, err
			}
			out = leb128.AppendUnsigned(out, u)
		}
	}
	return out, nil
}

func appendMember(out []byte, idx IndexResolver, ref cst.Constant, i, prev, flags int) ([]byte, int, error) {
	n, err := idx.IndexOf(ref)
	if err != nil {
		return nil, 0, err
	}
	if i > 0 && n <= prev {
		return nil, 0, fmt.Errorf("%w: %s has index %d after %d", ErrNonMonotonic, ref, n, prev)
	}
	delta, err := safecast.Conv[uint32](n - prev)
	if err != nil {
		return nil, 0, err
	}
	f, err := safecast.Conv[uint32](flags)
	if err != nil {
		return nil, 0, err
	}
	out = leb128.AppendUnsigned(out, delta)
	return leb128.AppendUnsigned(out, f), n, nil
}
