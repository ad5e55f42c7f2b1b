package classfile

import (
	"fortio.org/safecast"

	"classdex/internal/attrib"
	"classdex/internal/bytestream"
	"classdex/internal/cst"
)

// Context says which structure an attribute is attached to. Each context
// decodes its own set of attribute names; everything else is kept raw.
type Context uint8

const (
	ContextClass Context = iota
	ContextField
	ContextMethod
	ContextCode
)

func (c Context) String() string {
	switch c {
	case ContextClass:
		return "class"
	case ContextField:
		return "field"
	case ContextMethod:
		return "method"
	case ContextCode:
		return "code"
	}
	return "unknown"
}

type decodeFunc func(r *attrReader, offset, length int) (attrib.Attribute, error)

type registryKey struct {
	ctx  Context
	name string
}

var registry map[registryKey]decodeFunc

func init() {
	registry = make(map[registryKey]decodeFunc)
	register := func(ctx Context, name string, fn decodeFunc) {
		registry[registryKey{ctx, name}] = fn
	}
	register(ContextClass, attrib.NameDeprecated, decodeDeprecated)
	register(ContextClass, attrib.NameEnclosingMethod, decodeEnclosingMethod)
	register(ContextClass, attrib.NameInnerClasses, decodeInnerClasses)
	register(ContextClass, attrib.NameRuntimeInvisibleAnnotations, decodeAnnotations(attrib.NameRuntimeInvisibleAnnotations, cst.VisibilityBuild))
	register(ContextClass, attrib.NameRuntimeVisibleAnnotations, decodeAnnotations(attrib.NameRuntimeVisibleAnnotations, cst.VisibilityRuntime))
	register(ContextClass, attrib.NameSynthetic, decodeSynthetic)
	register(ContextClass, attrib.NameSignature, decodeSignature)
	register(ContextClass, attrib.NameSourceFile, decodeSourceFile)

	register(ContextField, attrib.NameConstantValue, decodeConstantValue)
	register(ContextField, attrib.NameDeprecated, decodeDeprecated)
	register(ContextField, attrib.NameRuntimeInvisibleAnnotations, decodeAnnotations(attrib.NameRuntimeInvisibleAnnotations, cst.VisibilityBuild))
	register(ContextField, attrib.NameRuntimeVisibleAnnotations, decodeAnnotations(attrib.NameRuntimeVisibleAnnotations, cst.VisibilityRuntime))
	register(ContextField, attrib.NameSignature, decodeSignature)
	register(ContextField, attrib.NameSynthetic, decodeSynthetic)

	register(ContextMethod, attrib.NameAnnotationDefault, decodeAnnotationDefault)
	register(ContextMethod, attrib.NameCode, decodeCode)
	register(ContextMethod, attrib.NameDeprecated, decodeDeprecated)
	register(ContextMethod, attrib.NameExceptions, decodeExceptions)
	register(ContextMethod, attrib.NameRuntimeInvisibleAnnotations, decodeAnnotations(attrib.NameRuntimeInvisibleAnnotations, cst.VisibilityBuild))
	register(ContextMethod, attrib.NameRuntimeVisibleAnnotations, decodeAnnotations(attrib.NameRuntimeVisibleAnnotations, cst.VisibilityRuntime))
	register(ContextMethod, attrib.NameRuntimeInvisibleParameterAnnotations, decodeParameterAnnotations(attrib.NameRuntimeInvisibleParameterAnnotations, cst.VisibilityBuild))
	register(ContextMethod, attrib.NameRuntimeVisibleParameterAnnotations, decodeParameterAnnotations(attrib.NameRuntimeVisibleParameterAnnotations, cst.VisibilityRuntime))
	register(ContextMethod, attrib.NameSignature, decodeSignature)
	register(ContextMethod, attrib.NameSynthetic, decodeSynthetic)

	register(ContextCode, attrib.NameLineNumberTable, decodeLineNumberTable)
	register(ContextCode, attrib.NameLocalVariableTable, decodeLocalVariables(false))
	register(ContextCode, attrib.NameLocalVariableTypeTable, decodeLocalVariables(true))
}

type attrReader struct {
	data bytestream.Array
	pool cst.Pool
}

// ParseAttribute decodes the attribute at offset and returns it together with
// the offset just past it.
func ParseAttribute(data bytestream.Array, pool cst.Pool, ctx Context, offset int) (attrib.Attribute, int, error) {
	r := &attrReader{data: data, pool: pool}
	return r.attribute(ctx, offset)
}

// ParseAttributeList decodes a u2-counted attribute list starting at offset.
func ParseAttributeList(data bytestream.Array, pool cst.Pool, ctx Context, offset int) (attrib.List, int, error) {
	r := &attrReader{data: data, pool: pool}
	return r.list(ctx, offset)
}

func (r *attrReader) list(ctx Context, offset int) (attrib.List, int, error) {
	count, err := r.data.U2(offset)
	if err != nil {
		return nil, 0, asParseError(err)
	}
	at := offset + 2
	list := make(attrib.List, 0, count)
	for i := 0; i < count; i++ {
		a, end, err := r.attribute(ctx, at)
		if err != nil {
			return nil, 0, withContext(err, "...while parsing attributes[%d]", i)
		}
		list = append(list, a)
		at = end
	}
	return list, at, nil
}

func (r *attrReader) attribute(ctx Context, offset int) (attrib.Attribute, int, error) {
	nameIdx, err := r.data.U2(offset)
	if err != nil {
		return nil, 0, withContext(err, "...while parsing attribute at offset %08x", offset)
	}
	rawLen, err := r.data.U4(offset + 2)
	if err != nil {
		return nil, 0, withContext(err, "...while parsing attribute at offset %08x", offset)
	}
	name, err := poolString(r.pool, nameIdx)
	if err != nil {
		return nil, 0, withContext(err, "...while parsing attribute at offset %08x", offset)
	}
	length, err := safecast.Conv[int](rawLen)
	if err != nil {
		return nil, 0, withContext(err, "...while parsing %s attribute at offset %08x", name.Value, offset)
	}
	decode := registry[registryKey{ctx, name.Value}]
	if decode == nil {
		decode = decodeRaw(name.Value)
	}
	a, err := decode(r, offset+6, length)
	if err != nil {
		return nil, 0, withContext(err, "...while parsing %s attribute at offset %08x", name.Value, offset)
	}
	return a, offset + 6 + length, nil
}

func severelyTruncated() error { return malformed("severely truncated attribute") }
func truncated() error         { return malformed("truncated attribute") }
func badLength(expected int) error {
	return malformed("bad attribute length; expected length %08x", expected)
}

func decodeRaw(name string) decodeFunc {
	return func(r *attrReader, offset, length int) (attrib.Attribute, error) {
		data, err := r.data.Slice(offset, offset+length)
		if err != nil {
			return nil, err
		}
		return &attrib.Raw{AttrName: name, Data: data}, nil
	}
}

func decodeAnnotationDefault(r *attrReader, offset, length int) (attrib.Attribute, error) {
	if length < 2 {
		return nil, severelyTruncated()
	}
	ap, err := NewAnnotationParser(r.data, r.pool, offset, length)
	if err != nil {
		return nil, err
	}
	v, err := ap.ParseValueAttribute()
	if err != nil {
		return nil, err
	}
	return &attrib.AnnotationDefault{Value: v, Length: length}, nil
}

func decodeAnnotations(name string, vis cst.Visibility) decodeFunc {
	return func(r *attrReader, offset, length int) (attrib.Attribute, error) {
		if length < 2 {
			return nil, severelyTruncated()
		}
		ap, err := NewAnnotationParser(r.data, r.pool, offset, length)
		if err != nil {
			return nil, err
		}
		set, err := ap.ParseAnnotationAttribute(vis)
		if err != nil {
			return nil, err
		}
		return &attrib.Annotations{AttrName: name, Annotations: set, Length: length}, nil
	}
}

func decodeParameterAnnotations(name string, vis cst.Visibility) decodeFunc {
	return func(r *attrReader, offset, length int) (attrib.Attribute, error) {
		if length < 2 {
			return nil, severelyTruncated()
		}
		ap, err := NewAnnotationParser(r.data, r.pool, offset, length)
		if err != nil {
			return nil, err
		}
		list, err := ap.ParseParameterAttribute(vis)
		if err != nil {
			return nil, err
		}
		return &attrib.ParameterAnnotations{AttrName: name, List: list, Length: length}, nil
	}
}

func decodeCode(r *attrReader, offset, length int) (attrib.Attribute, error) {
	if length < 12 {
		return nil, severelyTruncated()
	}
	in := r.data.Reader()
	in.Skip(offset)
	maxStack := in.U2()
	maxLocals := in.U2()
	codeLength := in.U4Len()
	if err := in.Err(); err != nil {
		return nil, err
	}
	origOffset := offset
	offset += 8
	length -= 8
	if length < codeLength+4 {
		return nil, truncated()
	}
	code := in.Take(codeLength)
	offset += codeLength
	length -= codeLength

	count := in.U2()
	offset += 2
	length -= 2
	if err := in.Err(); err != nil {
		return nil, err
	}
	if length < count*8+2 {
		return nil, truncated()
	}
	catches := make([]attrib.CatchEntry, count)
	for i := range catches {
		e := attrib.CatchEntry{StartPC: in.U2(), EndPC: in.U2(), HandlerPC: in.U2()}
		typeIdx := in.U2()
		if err := in.Err(); err != nil {
			return nil, err
		}
		t, err := poolType0(r.pool, typeIdx)
		if err != nil {
			return nil, err
		}
		if t != nil {
			e.CatchType = *t
		}
		catches[i] = e
		offset += 8
		length -= 8
	}

	attrs, end, err := r.list(ContextCode, offset)
	if err != nil {
		return nil, err
	}
	if consumed := end - offset; consumed != length {
		return nil, badLength(consumed + (offset - origOffset))
	}
	return &attrib.Code{
		MaxStack:   maxStack,
		MaxLocals:  maxLocals,
		Bytecode:   code,
		Catches:    catches,
		Attributes: attrs,
	}, nil
}

func decodeConstantValue(r *attrReader, offset, length int) (attrib.Attribute, error) {
	if length != 2 {
		return nil, badLength(2)
	}
	idx, err := r.data.U2(offset)
	if err != nil {
		return nil, err
	}
	c, err := r.pool.Get(idx)
	if err != nil {
		return nil, err
	}
	typed, ok := c.(cst.Typed)
	if !ok {
		return nil, malformed("constant pool entry %04x is %s, expected a value", idx, c.Kind())
	}
	return &attrib.ConstantValue{Value: typed}, nil
}

func decodeDeprecated(_ *attrReader, _, length int) (attrib.Attribute, error) {
	if length != 0 {
		return nil, badLength(0)
	}
	return &attrib.Deprecated{}, nil
}

func decodeSynthetic(_ *attrReader, _, length int) (attrib.Attribute, error) {
	if length != 0 {
		return nil, badLength(0)
	}
	return &attrib.Synthetic{}, nil
}

func decodeEnclosingMethod(r *attrReader, offset, length int) (attrib.Attribute, error) {
	if length != 4 {
		return nil, badLength(4)
	}
	in := r.data.Reader()
	in.Skip(offset)
	classIdx, natIdx := in.U2(), in.U2()
	if err := in.Err(); err != nil {
		return nil, err
	}
	class, err := poolType(r.pool, classIdx)
	if err != nil {
		return nil, err
	}
	nat, err := poolNAT0(r.pool, natIdx)
	if err != nil {
		return nil, err
	}
	return &attrib.EnclosingMethod{Class: class, Method: nat}, nil
}

func decodeExceptions(r *attrReader, offset, length int) (attrib.Attribute, error) {
	if length < 2 {
		return nil, severelyTruncated()
	}
	in := r.data.Reader()
	in.Skip(offset)
	count := in.U2()
	if err := in.Err(); err != nil {
		return nil, err
	}
	if length-2 != count*2 {
		return nil, badLength(count*2 + 2)
	}
	types := make([]cst.Type, count)
	for i := range types {
		idx := in.U2()
		if err := in.Err(); err != nil {
			return nil, err
		}
		t, err := poolType(r.pool, idx)
		if err != nil {
			return nil, err
		}
		types[i] = t
	}
	return &attrib.Exceptions{Types: types}, nil
}

func decodeInnerClasses(r *attrReader, offset, length int) (attrib.Attribute, error) {
	if length < 2 {
		return nil, severelyTruncated()
	}
	in := r.data.Reader()
	in.Skip(offset)
	count := in.U2()
	if err := in.Err(); err != nil {
		return nil, err
	}
	if length-2 != count*8 {
		return nil, badLength(count*8 + 2)
	}
	classes := make([]attrib.InnerClass, count)
	for i := range classes {
		innerIdx, outerIdx, nameIdx, flags := in.U2(), in.U2(), in.U2(), in.U2()
		if err := in.Err(); err != nil {
			return nil, err
		}
		inner, err := poolType(r.pool, innerIdx)
		if err != nil {
			return nil, err
		}
		outer, err := poolType0(r.pool, outerIdx)
		if err != nil {
			return nil, err
		}
		name, err := poolString0(r.pool, nameIdx)
		if err != nil {
			return nil, err
		}
		classes[i] = attrib.InnerClass{Inner: inner, Outer: outer, InnerName: name, AccessFlags: flags}
	}
	return &attrib.InnerClasses{Classes: classes}, nil
}

func decodeLineNumberTable(r *attrReader, offset, length int) (attrib.Attribute, error) {
	if length < 2 {
		return nil, severelyTruncated()
	}
	in := r.data.Reader()
	in.Skip(offset)
	count := in.U2()
	if err := in.Err(); err != nil {
		return nil, err
	}
	if length-2 != count*4 {
		return nil, badLength(count*4 + 2)
	}
	lines := make([]attrib.LineNumber, count)
	for i := range lines {
		lines[i] = attrib.LineNumber{StartPC: in.U2(), Line: in.U2()}
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return &attrib.LineNumberTable{Lines: lines}, nil
}

func decodeLocalVariables(typeTable bool) decodeFunc {
	return func(r *attrReader, offset, length int) (attrib.Attribute, error) {
		if length < 2 {
			return nil, severelyTruncated()
		}
		in := r.data.Reader()
		in.Skip(offset)
		count := in.U2()
		if err := in.Err(); err != nil {
			return nil, err
		}
		if length-2 != count*10 {
			return nil, badLength(count*10 + 2)
		}
		vars := make([]attrib.LocalVariable, count)
		for i := range vars {
			startPC, n, nameIdx, typeIdx, index := in.U2(), in.U2(), in.U2(), in.U2(), in.U2()
			if err := in.Err(); err != nil {
				return nil, err
			}
			name, err := poolString(r.pool, nameIdx)
			if err != nil {
				return nil, err
			}
			typ, err := poolString(r.pool, typeIdx)
			if err != nil {
				return nil, err
			}
			v := attrib.LocalVariable{StartPC: startPC, Length: n, Name: name, Index: index}
			if typeTable {
				v.Signature = &typ
			} else {
				v.Descriptor = &typ
			}
			vars[i] = v
		}
		if typeTable {
			return &attrib.LocalVariableTypeTable{Vars: vars}, nil
		}
		return &attrib.LocalVariableTable{Vars: vars}, nil
	}
}

func decodeSignature(r *attrReader, offset, length int) (attrib.Attribute, error) {
	if length != 2 {
		return nil, badLength(2)
	}
	idx, err := r.data.U2(offset)
	if err != nil {
		return nil, err
	}
	s, err := poolString(r.pool, idx)
	if err != nil {
		return nil, err
	}
	return &attrib.Signature{Value: s}, nil
}

func decodeSourceFile(r *attrReader, offset, length int) (attrib.Attribute, error) {
	if length != 2 {
		return nil, badLength(2)
	}
	idx, err := r.data.U2(offset)
	if err != nil {
		return nil, err
	}
	s, err := poolString(r.pool, idx)
	if err != nil {
		return nil, err
	}
	return &attrib.SourceFile{Value: s}, nil
}
