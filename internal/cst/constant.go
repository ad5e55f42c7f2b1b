package cst

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"classdex/internal/mutf8"
)

// Kind identifies the concrete type of a Constant.
type Kind uint8

const (
	KindBoolean Kind = iota + 1
	KindByte
	KindChar
	KindShort
	KindInteger
	KindLong
	KindFloat
	KindDouble
	KindKnownNull
	KindString
	KindType
	KindNameAndType
	KindFieldRef
	KindMethodRef
	KindInterfaceMethodRef
	KindEnumRef
	KindAnnotation
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindByte:
		return "byte"
	case KindChar:
		return "char"
	case KindShort:
		return "short"
	case KindInteger:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindKnownNull:
		return "null"
	case KindString:
		return "string"
	case KindType:
		return "type"
	case KindNameAndType:
		return "nat"
	case KindFieldRef:
		return "field"
	case KindMethodRef:
		return "method"
	case KindInterfaceMethodRef:
		return "imethod"
	case KindEnumRef:
		return "enum"
	case KindAnnotation:
		return "annotation"
	case KindArray:
		return "array"
	}
	return "unknown"
}

// Constant is a value that can live in a constant pool or an annotation.
// Identity is structural.
type Constant interface {
	Kind() Kind
	String() string
}

// Typed is a constant with a value type, as carried by ConstantValue attributes.
type Typed interface {
	Constant
	Type() Type
}

// Literal is a constant whose value fits in 64 raw bits.
type Literal interface {
	Typed
	Bits() int64
}

// MemberRef is implemented by field, method and interface-method references.
type MemberRef interface {
	Constant
	DefiningClass() Type
	NameAndType() NameAndType
}

type (
	Integer   struct{ Value int32 }
	Long      struct{ Value int64 }
	Float     struct{ RawBits uint32 }
	Double    struct{ RawBits uint64 }
	Boolean   struct{ Value bool }
	Byte      struct{ Value int8 }
	Short     struct{ Value int16 }
	Char      struct{ Value uint16 }
	KnownNull struct{}
	String    struct{ Value string }
)

// NameAndType pairs a member name with its descriptor.
type NameAndType struct {
	Name       String
	Descriptor String
}

type FieldRef struct {
	Class Type
	NAT   NameAndType
}

type MethodRef struct {
	Class Type
	NAT   NameAndType
}

type InterfaceMethodRef struct {
	Class Type
	NAT   NameAndType
}

// EnumRef names an enum constant; NAT.Name is the constant and NAT.Descriptor
// the enum type.
type EnumRef struct {
	NAT NameAndType
}

// AnnotationValue wraps an annotation used as a value.
type AnnotationValue struct {
	Annotation *Annotation
}

// Array is an ordered list of constants.
type Array struct {
	Values []Constant
}

func (Integer) Kind() Kind            { return KindInteger }
func (Long) Kind() Kind               { return KindLong }
func (Float) Kind() Kind              { return KindFloat }
func (Double) Kind() Kind             { return KindDouble }
func (Boolean) Kind() Kind            { return KindBoolean }
func (Byte) Kind() Kind               { return KindByte }
func (Short) Kind() Kind              { return KindShort }
func (Char) Kind() Kind               { return KindChar }
func (KnownNull) Kind() Kind          { return KindKnownNull }
func (String) Kind() Kind             { return KindString }
func (NameAndType) Kind() Kind        { return KindNameAndType }
func (FieldRef) Kind() Kind           { return KindFieldRef }
func (MethodRef) Kind() Kind          { return KindMethodRef }
func (InterfaceMethodRef) Kind() Kind { return KindInterfaceMethodRef }
func (EnumRef) Kind() Kind            { return KindEnumRef }
func (AnnotationValue) Kind() Kind    { return KindAnnotation }
func (Array) Kind() Kind              { return KindArray }

func (c Integer) Type() Type   { return TypeInt }
func (c Long) Type() Type      { return TypeLong }
func (c Float) Type() Type     { return TypeFloat }
func (c Double) Type() Type    { return TypeDouble }
func (c Boolean) Type() Type   { return TypeBoolean }
func (c Byte) Type() Type      { return TypeByte }
func (c Short) Type() Type     { return TypeShort }
func (c Char) Type() Type      { return TypeChar }
func (c KnownNull) Type() Type { return TypeObject }
func (c String) Type() Type    { return TypeString }

func (c Integer) Bits() int64 { return int64(c.Value) }
func (c Long) Bits() int64    { return c.Value }
func (c Float) Bits() int64   { return int64(c.RawBits) }
func (c Double) Bits() int64  { return int64(c.RawBits) } //nolint:gosec // G115: raw bit pattern
func (c Byte) Bits() int64    { return int64(c.Value) }
func (c Short) Bits() int64   { return int64(c.Value) }
func (c Char) Bits() int64    { return int64(c.Value) }
func (KnownNull) Bits() int64 { return 0 }
func (c Boolean) Bits() int64 {
	if c.Value {
		return 1
	}
	return 0
}

// FloatOf returns the float constant for v.
func FloatOf(v float32) Float { return Float{RawBits: math.Float32bits(v)} }

// DoubleOf returns the double constant for v.
func DoubleOf(v float64) Double { return Double{RawBits: math.Float64bits(v)} }

func (c Float) Value() float32  { return math.Float32frombits(c.RawBits) }
func (c Double) Value() float64 { return math.Float64frombits(c.RawBits) }

func (c Integer) String() string { return strconv.FormatInt(int64(c.Value), 10) }
func (c Long) String() string    { return strconv.FormatInt(c.Value, 10) + "L" }
func (c Float) String() string {
	return strconv.FormatFloat(float64(c.Value()), 'g', -1, 32) + "f"
}
func (c Double) String() string  { return strconv.FormatFloat(c.Value(), 'g', -1, 64) }
func (c Boolean) String() string { return strconv.FormatBool(c.Value) }
func (c Byte) String() string    { return "(byte)" + strconv.Itoa(int(c.Value)) }
func (c Short) String() string   { return "(short)" + strconv.Itoa(int(c.Value)) }
func (c Char) String() string    { return fmt.Sprintf("(char)%#04x", c.Value) }
func (KnownNull) String() string { return "null" }
func (c String) String() string  { return strconv.Quote(c.Value) }
func (c NameAndType) String() string {
	return c.Name.Value + ":" + c.Descriptor.Value
}
func (c FieldRef) String() string {
	return c.Class.ClassName() + "." + c.NAT.Name.Value + ":" + c.NAT.Descriptor.Value
}
func (c MethodRef) String() string {
	return c.Class.ClassName() + "." + c.NAT.Name.Value + c.NAT.Descriptor.Value
}
func (c InterfaceMethodRef) String() string {
	return c.Class.ClassName() + "." + c.NAT.Name.Value + c.NAT.Descriptor.Value
}
func (c EnumRef) String() string {
	return TypeFor(c.NAT.Descriptor.Value).ClassName() + "." + c.NAT.Name.Value
}
func (c AnnotationValue) String() string {
	if c.Annotation == nil {
		return "@?"
	}
	return c.Annotation.String()
}
func (c Array) String() string {
	parts := make([]string, len(c.Values))
	for i, v := range c.Values {
		parts[i] = v.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (c FieldRef) DefiningClass() Type                { return c.Class }
func (c MethodRef) DefiningClass() Type               { return c.Class }
func (c InterfaceMethodRef) DefiningClass() Type      { return c.Class }
func (c FieldRef) NameAndType() NameAndType           { return c.NAT }
func (c MethodRef) NameAndType() NameAndType          { return c.NAT }
func (c InterfaceMethodRef) NameAndType() NameAndType { return c.NAT }

// Type returns the declared type of the referenced field.
func (c FieldRef) Type() Type { return TypeFor(c.NAT.Descriptor.Value) }

// Prototype parses the referenced method's descriptor.
func (c MethodRef) Prototype() (Prototype, error) {
	return ParseMethodDescriptor(c.NAT.Descriptor.Value)
}

// Prototype parses the referenced method's descriptor.
func (c InterfaceMethodRef) Prototype() (Prototype, error) {
	return ParseMethodDescriptor(c.NAT.Descriptor.Value)
}

// IsInstanceInit reports whether the method is a constructor.
func (c MethodRef) IsInstanceInit() bool { return c.NAT.Name.Value == "<init>" }

// IsClassInit reports whether the method is a static initializer.
func (c MethodRef) IsClassInit() bool { return c.NAT.Name.Value == "<clinit>" }

func cmpInt[T ~int8 | ~int16 | ~uint16 | ~int32 | ~int64 | ~uint32 | ~uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpNAT(a, b NameAndType) int {
	if c := mutf8.CompareUTF16(a.Name.Value, b.Name.Value); c != 0 {
		return c
	}
	return mutf8.CompareUTF16(a.Descriptor.Value, b.Descriptor.Value)
}

func cmpMember(ac Type, an NameAndType, bc Type, bn NameAndType) int {
	if c := mutf8.CompareUTF16(ac.Descriptor, bc.Descriptor); c != 0 {
		return c
	}
	return cmpNAT(an, bn)
}

// Compare is the total order over constants: first by kind, then by payload.
// Member references order by defining class, then name, then descriptor.
func Compare(a, b Constant) int {
	if a.Kind() != b.Kind() {
		return cmpInt(uint32(a.Kind()), uint32(b.Kind()))
	}
	switch av := a.(type) {
	case Integer:
		return cmpInt(av.Value, b.(Integer).Value)
	case Long:
		return cmpInt(av.Value, b.(Long).Value)
	case Float:
		return cmpInt(av.RawBits, b.(Float).RawBits)
	case Double:
		return cmpInt(av.RawBits, b.(Double).RawBits)
	case Boolean:
		return cmpInt(av.Bits(), b.(Boolean).Bits())
	case Byte:
		return cmpInt(av.Value, b.(Byte).Value)
	case Short:
		return cmpInt(av.Value, b.(Short).Value)
	case Char:
		return cmpInt(av.Value, b.(Char).Value)
	case KnownNull:
		return 0
	case String:
		return mutf8.CompareUTF16(av.Value, b.(String).Value)
	case Type:
		return mutf8.CompareUTF16(av.Descriptor, b.(Type).Descriptor)
	case NameAndType:
		return cmpNAT(av, b.(NameAndType))
	case FieldRef:
		bv := b.(FieldRef)
		return cmpMember(av.Class, av.NAT, bv.Class, bv.NAT)
	case MethodRef:
		bv := b.(MethodRef)
		return cmpMember(av.Class, av.NAT, bv.Class, bv.NAT)
	case InterfaceMethodRef:
		bv := b.(InterfaceMethodRef)
		return cmpMember(av.Class, av.NAT, bv.Class, bv.NAT)
	case EnumRef:
		return cmpNAT(av.NAT, b.(EnumRef).NAT)
	case AnnotationValue:
		return av.Annotation.Compare(b.(AnnotationValue).Annotation)
	case Array:
		bv := b.(Array)
		for i := 0; i < len(av.Values) && i < len(bv.Values); i++ {
			if c := Compare(av.Values[i], bv.Values[i]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(av.Values)), int64(len(bv.Values)))
	}
	return 0
}

// Equal reports structural equality.
func Equal(a, b Constant) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Compare(a, b) == 0
}
