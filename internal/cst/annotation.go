package cst

import (
	"fmt"
	"slices"
	"strings"

	"classdex/internal/mutf8"
)

// Visibility is the retention of an annotation.
type Visibility uint8

const (
	VisibilityBuild Visibility = iota + 1
	VisibilityRuntime
	// VisibilityEmbedded marks an annotation nested inside another's value.
	VisibilityEmbedded
)

func (v Visibility) String() string {
	switch v {
	case VisibilityBuild:
		return "build"
	case VisibilityRuntime:
		return "runtime"
	case VisibilityEmbedded:
		return "embedded"
	}
	return "unknown"
}

// NameValuePair is one element of an annotation.
type NameValuePair struct {
	Name  String
	Value Constant
}

// Annotation is a typed set of name-value pairs with unique names.
type Annotation struct {
	Type       Type
	Visibility Visibility
	elements   []NameValuePair
}

// NewAnnotation creates an empty annotation.
func NewAnnotation(t Type, v Visibility) *Annotation {
	return &Annotation{Type: t, Visibility: v}
}

// Add inserts an element keeping the list sorted by name.
func (a *Annotation) Add(p NameValuePair) error {
	i, found := slices.BinarySearchFunc(a.elements, p.Name.Value, func(e NameValuePair, name string) int {
		return mutf8.CompareUTF16(e.Name.Value, name)
	})
	if found {
		return fmt.Errorf("name already added: %s", p.Name.Value)
	}
	a.elements = slices.Insert(a.elements, i, p)
	return nil
}

// Elements returns the elements sorted by name.
func (a *Annotation) Elements() []NameValuePair { return a.elements }

// Compare orders annotations by type, visibility, then elements.
func (a *Annotation) Compare(b *Annotation) int {
	if c := mutf8.CompareUTF16(a.Type.Descriptor, b.Type.Descriptor); c != 0 {
		return c
	}
	if a.Visibility != b.Visibility {
		return cmpInt(uint32(a.Visibility), uint32(b.Visibility))
	}
	for i := 0; i < len(a.elements) && i < len(b.elements); i++ {
		ea, eb := a.elements[i], b.elements[i]
		if c := mutf8.CompareUTF16(ea.Name.Value, eb.Name.Value); c != 0 {
			return c
		}
		if c := Compare(ea.Value, eb.Value); c != 0 {
			return c
		}
	}
	return cmpInt(int64(len(a.elements)), int64(len(b.elements)))
}

func (a *Annotation) String() string {
	var sb strings.Builder
	sb.WriteString("@")
	sb.WriteString(a.Type.ClassName())
	sb.WriteString("(")
	for i, e := range a.elements {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.Name.Value)
		sb.WriteString("=")
		sb.WriteString(e.Value.String())
	}
	sb.WriteString(")")
	return sb.String()
}

// Annotations is a set of annotations with unique types.
type Annotations struct {
	items []*Annotation
}

// Add inserts an annotation keeping the set sorted by type.
func (s *Annotations) Add(a *Annotation) error {
	i, found := slices.BinarySearchFunc(s.items, a.Type.Descriptor, func(e *Annotation, desc string) int {
		return mutf8.CompareUTF16(e.Type.Descriptor, desc)
	})
	if found {
		return fmt.Errorf("duplicate type: %s", a.Type.ClassName())
	}
	s.items = slices.Insert(s.items, i, a)
	return nil
}

// Items returns the annotations sorted by type.
func (s *Annotations) Items() []*Annotation {
	if s == nil {
		return nil
	}
	return s.items
}

// Len returns the number of annotations.
func (s *Annotations) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Combine returns the union of two sets; overlapping types are an error.
func Combine(a, b *Annotations) (*Annotations, error) {
	out := &Annotations{}
	for _, set := range []*Annotations{a, b} {
		for _, item := range set.Items() {
			if err := out.Add(item); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// AnnotationsList holds one annotation set per method parameter.
type AnnotationsList []*Annotations
