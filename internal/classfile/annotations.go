package classfile

import (
	"classdex/internal/bytestream"
	"classdex/internal/cst"
)

// AnnotationParser decodes annotation structures from one attribute body.
type AnnotationParser struct {
	pool cst.Pool
	in   *bytestream.Reader
}

// NewAnnotationParser binds a parser to data[offset:offset+length].
func NewAnnotationParser(data bytestream.Array, pool cst.Pool, offset, length int) (*AnnotationParser, error) {
	body, err := data.Slice(offset, offset+length)
	if err != nil {
		return nil, asParseError(err)
	}
	return &AnnotationParser{pool: pool, in: body.Reader()}, nil
}

func (p *AnnotationParser) finish() error {
	if p.in.Remaining() != 0 {
		return malformed("extra data in attribute")
	}
	return nil
}

// ParseValueAttribute reads a single element value filling the attribute.
func (p *AnnotationParser) ParseValueAttribute() (cst.Constant, error) {
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	return v, p.finish()
}

// ParseAnnotationAttribute reads a u2-counted annotation set filling the attribute.
func (p *AnnotationParser) ParseAnnotationAttribute(vis cst.Visibility) (*cst.Annotations, error) {
	set, err := p.annotations(vis)
	if err != nil {
		return nil, err
	}
	return set, p.finish()
}

// ParseParameterAttribute reads a u1-counted list of annotation sets filling
// the attribute.
func (p *AnnotationParser) ParseParameterAttribute(vis cst.Visibility) (cst.AnnotationsList, error) {
	if err := p.require(1); err != nil {
		return nil, err
	}
	count := p.in.U1()
	list := make(cst.AnnotationsList, count)
	for i := range list {
		set, err := p.annotations(vis)
		if err != nil {
			return nil, err
		}
		list[i] = set
	}
	return list, p.finish()
}

func (p *AnnotationParser) require(n int) error {
	if p.in.Remaining() < n {
		return malformed("truncated annotation attribute")
	}
	return nil
}

func (p *AnnotationParser) u2() (int, error) {
	if err := p.require(2); err != nil {
		return 0, err
	}
	return p.in.U2(), nil
}

func (p *AnnotationParser) annotations(vis cst.Visibility) (*cst.Annotations, error) {
	count, err := p.u2()
	if err != nil {
		return nil, err
	}
	set := &cst.Annotations{}
	for range count {
		a, err := p.annotation(vis)
		if err != nil {
			return nil, err
		}
		if err := set.Add(a); err != nil {
			return nil, malformed("%v", err)
		}
	}
	return set, nil
}

func (p *AnnotationParser) annotation(vis cst.Visibility) (*cst.Annotation, error) {
	if err := p.require(4); err != nil {
		return nil, err
	}
	typeIdx := p.in.U2()
	numElements := p.in.U2()
	typeName, err := poolString(p.pool, typeIdx)
	if err != nil {
		return nil, err
	}
	t, err := cst.ParseFieldDescriptor(typeName.Value)
	if err != nil {
		return nil, malformed("%v", err)
	}
	a := cst.NewAnnotation(t, vis)
	for range numElements {
		if err := p.require(5); err != nil {
			return nil, err
		}
		name, err := poolString(p.pool, p.in.U2())
		if err != nil {
			return nil, err
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		if err := a.Add(cst.NameValuePair{Name: name, Value: v}); err != nil {
			return nil, malformed("%v", err)
		}
	}
	return a, nil
}

func (p *AnnotationParser) constant() (cst.Constant, error) {
	idx, err := p.u2()
	if err != nil {
		return nil, err
	}
	c, err := p.pool.Get(idx)
	if err != nil {
		return nil, malformed("%v", err)
	}
	return c, nil
}

// constantTags maps the element tags read straight from the pool to the
// kind the referenced entry must have.
var constantTags = map[int]cst.Kind{
	'D': cst.KindDouble,
	'F': cst.KindFloat,
	'I': cst.KindInteger,
	'J': cst.KindLong,
	's': cst.KindString,
}

func (p *AnnotationParser) typedConstant(want cst.Kind) (cst.Constant, error) {
	c, err := p.constant()
	if err != nil {
		return nil, err
	}
	if c.Kind() != want {
		return nil, malformed("annotation constant is %s, expected %s", c.Kind(), want)
	}
	return c, nil
}

func (p *AnnotationParser) integer() (int32, error) {
	c, err := p.constant()
	if err != nil {
		return 0, err
	}
	v, ok := c.(cst.Integer)
	if !ok {
		return 0, malformed("annotation constant is %s, expected int", c.Kind())
	}
	return v.Value, nil
}

func (p *AnnotationParser) value() (cst.Constant, error) {
	if err := p.require(1); err != nil {
		return nil, err
	}
	tag := p.in.U1()
	switch tag {
	case 'B':
		v, err := p.integer()
		return cst.Byte{Value: int8(v)}, err //nolint:gosec // G115: narrowing is the encoding
	case 'C':
		v, err := p.integer()
		return cst.Char{Value: uint16(v)}, err //nolint:gosec // G115: narrowing is the encoding
	case 'S':
		v, err := p.integer()
		return cst.Short{Value: int16(v)}, err //nolint:gosec // G115: narrowing is the encoding
	case 'Z':
		v, err := p.integer()
		return cst.Boolean{Value: v != 0}, err
	case 'D', 'F', 'I', 'J', 's':
		return p.typedConstant(constantTags[tag])
	case 'c':
		idx, err := p.u2()
		if err != nil {
			return nil, err
		}
		name, err := poolString(p.pool, idx)
		if err != nil {
			return nil, err
		}
		if name.Value == "V" {
			return cst.TypeVoid, nil
		}
		t, err := cst.ParseFieldDescriptor(name.Value)
		if err != nil {
			return nil, malformed("%v", err)
		}
		return t, nil
	case 'e':
		if err := p.require(4); err != nil {
			return nil, err
		}
		typeName, err := poolString(p.pool, p.in.U2())
		if err != nil {
			return nil, err
		}
		constName, err := poolString(p.pool, p.in.U2())
		if err != nil {
			return nil, err
		}
		return cst.EnumRef{NAT: cst.NameAndType{Name: constName, Descriptor: typeName}}, nil
	case '@':
		a, err := p.annotation(cst.VisibilityEmbedded)
		if err != nil {
			return nil, err
		}
		return cst.AnnotationValue{Annotation: a}, nil
	case '[':
		n, err := p.u2()
		if err != nil {
			return nil, err
		}
		values := make([]cst.Constant, n)
		for i := range values {
			if values[i], err = p.value(); err != nil {
				return nil, err
			}
		}
		return cst.Array{Values: values}, nil
	}
	return nil, malformed("unknown annotation tag: %02x", tag)
}
