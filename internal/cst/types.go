package cst

import (
	"fmt"
	"strings"
)

// Type is a field type descriptor such as "I", "[J" or "Ljava/lang/Object;".
// As a constant it stands for a class reference.
type Type struct {
	Descriptor string
}

var (
	TypeVoid    = Type{"V"}
	TypeBoolean = Type{"Z"}
	TypeByte    = Type{"B"}
	TypeChar    = Type{"C"}
	TypeShort   = Type{"S"}
	TypeInt     = Type{"I"}
	TypeLong    = Type{"J"}
	TypeFloat   = Type{"F"}
	TypeDouble  = Type{"D"}
	TypeObject  = Type{"Ljava/lang/Object;"}
	TypeString  = Type{"Ljava/lang/String;"}
	TypeClass   = Type{"Ljava/lang/Class;"}
)

// TypeFor returns the type with the given descriptor.
func TypeFor(descriptor string) Type { return Type{Descriptor: descriptor} }

// ClassType converts an internal class name (as found in a Class constant)
// into a type. Array names are already descriptors.
func ClassType(internalName string) Type {
	if strings.HasPrefix(internalName, "[") {
		return Type{internalName}
	}
	return Type{"L" + internalName + ";"}
}

func (Type) Kind() Kind { return KindType }

func (t Type) String() string { return t.Descriptor }

// Type of a class constant is java.lang.Class.
func (t Type) Type() Type { return TypeClass }

// Category returns the number of register slots a value of t occupies.
func (t Type) Category() int {
	switch t.Descriptor {
	case "J", "D":
		return 2
	case "V":
		return 0
	}
	return 1
}

// IsPrimitive reports whether t is a primitive type other than void.
func (t Type) IsPrimitive() bool {
	return len(t.Descriptor) == 1 && t.Descriptor != "V"
}

// IsReference reports whether t is a class or array type.
func (t Type) IsReference() bool {
	return len(t.Descriptor) > 1
}

// IsArray reports whether t is an array type.
func (t Type) IsArray() bool { return strings.HasPrefix(t.Descriptor, "[") }

// ComponentType returns the element type of an array type.
func (t Type) ComponentType() Type {
	if !t.IsArray() {
		return t
	}
	return Type{t.Descriptor[1:]}
}

// ArrayOf returns the array type whose elements are t.
func (t Type) ArrayOf() Type { return Type{"[" + t.Descriptor} }

// ClassName returns the internal name of a class type, or the descriptor for
// primitives and arrays.
func (t Type) ClassName() string {
	if strings.HasPrefix(t.Descriptor, "L") && strings.HasSuffix(t.Descriptor, ";") {
		return t.Descriptor[1 : len(t.Descriptor)-1]
	}
	return t.Descriptor
}

// Shorty returns the one-character shorty form: 'L' for any reference.
func (t Type) Shorty() byte {
	if t.IsReference() {
		return 'L'
	}
	if t.Descriptor == "" {
		return 'V'
	}
	return t.Descriptor[0]
}

// Prototype is a parsed method descriptor.
type Prototype struct {
	Descriptor string
	Return     Type
	Params     []Type
}

// ParamWidth returns the register width of the parameters, including the
// receiver for instance methods.
func (p Prototype) ParamWidth(static bool) int {
	w := 0
	if !static {
		w = 1
	}
	for _, t := range p.Params {
		w += t.Category()
	}
	return w
}

// Shorty returns the shorty descriptor: return type followed by parameters.
func (p Prototype) Shorty() string {
	b := make([]byte, 0, len(p.Params)+1)
	b = append(b, p.Return.Shorty())
	for _, t := range p.Params {
		b = append(b, t.Shorty())
	}
	return string(b)
}

// scanFieldType returns the length of the field type at the start of s.
func scanFieldType(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i > 255 {
		return 0, fmt.Errorf("too many array dimensions in %q", s)
	}
	if i >= len(s) {
		return 0, fmt.Errorf("bad descriptor %q", s)
	}
	switch s[i] {
	case 'Z', 'B', 'C', 'S', 'I', 'J', 'F', 'D':
		return i + 1, nil
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end <= 1 {
			return 0, fmt.Errorf("bad class descriptor %q", s)
		}
		for _, c := range s[i+1 : i+end] {
			if c == '.' || c == '[' || c == '(' || c == ')' {
				return 0, fmt.Errorf("bad class descriptor %q", s)
			}
		}
		return i + end + 1, nil
	}
	return 0, fmt.Errorf("bad descriptor %q", s)
}

// ParseFieldDescriptor validates a field descriptor.
func ParseFieldDescriptor(s string) (Type, error) {
	n, err := scanFieldType(s)
	if err != nil {
		return Type{}, err
	}
	if n != len(s) {
		return Type{}, fmt.Errorf("bad descriptor %q", s)
	}
	return Type{s}, nil
}

// ParseMethodDescriptor parses "(params)return".
func ParseMethodDescriptor(s string) (Prototype, error) {
	if !strings.HasPrefix(s, "(") {
		return Prototype{}, fmt.Errorf("bad method descriptor %q", s)
	}
	p := Prototype{Descriptor: s}
	rest := s[1:]
	for {
		if rest == "" {
			return Prototype{}, fmt.Errorf("bad method descriptor %q", s)
		}
		if rest[0] == ')' {
			rest = rest[1:]
			break
		}
		n, err := scanFieldType(rest)
		if err != nil {
			return Prototype{}, fmt.Errorf("bad method descriptor %q: %w", s, err)
		}
		p.Params = append(p.Params, Type{rest[:n]})
		rest = rest[n:]
	}
	if rest == "V" {
		p.Return = TypeVoid
		return p, nil
	}
	ret, err := ParseFieldDescriptor(rest)
	if err != nil {
		return Prototype{}, fmt.Errorf("bad method descriptor %q: %w", s, err)
	}
	p.Return = ret
	return p, nil
}
