// Package translate turns one parsed class file into a container class
// definition: access flags, members, static initial values and encoded
// method bodies.
package translate

import (
	"context"
	"fmt"

	"classdex/internal/attrib"
	"classdex/internal/classfile"
	"classdex/internal/cst"
	"classdex/internal/dexcode"
	"classdex/internal/dexfile"
	"classdex/internal/rop"
	"classdex/internal/ropper"
	"classdex/internal/ssa"
	"classdex/internal/ssa/back"
	"classdex/internal/trace"
)

const (
	classFlagMask  = 0x7611
	fieldFlagMask  = 0x50df
	methodFlagMask = 0x1dff
)

// CfTranslator translates class files with fixed options. It holds no
// per-class state and may be shared between goroutines.
type CfTranslator struct {
	opts CfOptions
}

func New(opts CfOptions) *CfTranslator {
	return &CfTranslator{opts: opts}
}

func (t *CfTranslator) Options() CfOptions { return t.opts }

// Translate parses b, read from path, and translates it.
func (t *CfTranslator) Translate(ctx context.Context, path string, b []byte) (*dexfile.ClassDef, error) {
	cf, err := classfile.Parse(b, path, classfile.Options{StrictNameCheck: t.opts.StrictNameCheck})
	if err != nil {
		return nil, err
	}
	return t.TranslateClass(ctx, cf)
}

// TranslateClass translates an already parsed class.
func (t *CfTranslator) TranslateClass(ctx context.Context, cf *classfile.ClassFile) (*dexfile.ClassDef, error) {
	span, ctx := trace.Start(ctx, trace.ScopeClass, cf.ThisClass.ClassName())
	def, err := t.translate(ctx, cf)
	if err != nil {
		span.WithExtra("error", err.Error())
	}
	span.End("")
	return def, err
}

func (t *CfTranslator) translate(ctx context.Context, cf *classfile.ClassFile) (*dexfile.ClassDef, error) {
	name := cf.ThisClass.ClassName()
	def := &dexfile.ClassDef{
		Class:       cf.ThisClass,
		AccessFlags: cf.AccessFlags & classFlagMask,
		Super:       cf.SuperClass,
		Interfaces:  cf.Interfaces,
		SourceFile:  cf.SourceFile(),
		Data:        &dexfile.ClassDataItem{},
	}
	for i := range cf.Fields {
		f, err := field(&cf.Fields[i])
		if err != nil {
			return nil, &Error{Class: name, Member: cf.Fields[i].Name(), Err: err}
		}
		def.Data.AddField(f)
	}
	for i := range cf.Methods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := &cf.Methods[i]
		em, err := t.method(ctx, cf, m)
		if err != nil {
			return nil, &Error{Class: name, Member: m.Name() + m.Descriptor(), Err: err}
		}
		def.Data.AddMethod(em)
	}
	return def, nil
}

func field(m *classfile.Member) (*dexfile.EncodedField, error) {
	f := &dexfile.EncodedField{Ref: m.FieldRef(), AccessFlags: m.AccessFlags & fieldFlagMask}
	if !m.IsStatic() {
		return f, nil
	}
	cv, ok := m.Attributes.FindFirst(attrib.NameConstantValue).(*attrib.ConstantValue)
	if !ok {
		return f, nil
	}
	v, err := coerce(cv.Value, m.FieldRef().Type())
	if err != nil {
		return nil, err
	}
	f.Value = v
	return f, nil
}

// coerce narrows a ConstantValue to the declared field type. The class file
// stores every int-like value as an Integer.
func coerce(v cst.Typed, t cst.Type) (cst.Constant, error) {
	mismatch := func() error {
		return fmt.Errorf("constant value of type %s for field of type %s", v.Type(), t)
	}
	if t == cst.TypeString {
		if s, ok := v.(cst.String); ok {
			return s, nil
		}
		return nil, mismatch()
	}
	switch t {
	case cst.TypeBoolean, cst.TypeByte, cst.TypeChar, cst.TypeShort, cst.TypeInt:
		i, ok := v.(cst.Integer)
		if !ok {
			return nil, mismatch()
		}
		switch t {
		case cst.TypeBoolean:
			return cst.Boolean{Value: i.Value != 0}, nil
		case cst.TypeByte:
			return cst.Byte{Value: int8(i.Value)}, nil //nolint:gosec // G115: narrowing is the language rule
		case cst.TypeChar:
			return cst.Char{Value: uint16(i.Value)}, nil //nolint:gosec // G115: narrowing is the language rule
		case cst.TypeShort:
			return cst.Short{Value: int16(i.Value)}, nil //nolint:gosec // G115: narrowing is the language rule
		}
		return i, nil
	}
	if v.Type() != t {
		return nil, mismatch()
	}
	return v, nil
}

func methodFlags(m *classfile.Member) int {
	flags := m.AccessFlags & methodFlagMask
	ref := m.MethodRef()
	if ref.IsInstanceInit() || ref.IsClassInit() {
		flags |= dexfile.AccConstructor
	}
	if flags&classfile.AccSynchronized != 0 {
		flags |= dexfile.AccDeclaredSynchronized
		if flags&classfile.AccNative == 0 {
			flags &^= classfile.AccSynchronized
		}
	}
	return flags
}

func (t *CfTranslator) method(ctx context.Context, cf *classfile.ClassFile, m *classfile.Member) (*dexfile.EncodedMethod, error) {
	em := &dexfile.EncodedMethod{Ref: m.MethodRef(), AccessFlags: methodFlags(m)}
	if m.AccessFlags&(classfile.AccAbstract|classfile.AccNative) != 0 {
		return em, nil
	}
	code := m.Code()
	if code == nil {
		return nil, fmt.Errorf("concrete method without code")
	}
	if m.AccessFlags&classfile.AccSynchronized != 0 {
		return nil, fmt.Errorf("%w: synchronized method body", ErrUnsupported)
	}

	span, _ := trace.Start(ctx, trace.ScopeMethod, m.Name()+m.Descriptor())
	out, err := t.code(cf, m, code)
	if err != nil {
		span.WithExtra("error", err.Error())
	} else {
		span.WithExtra("units", fmt.Sprint(out.Size()))
	}
	span.End("")
	if err != nil {
		return nil, err
	}
	em.Code = out
	return em, nil
}

func (t *CfTranslator) code(cf *classfile.ClassFile, m *classfile.Member, code *attrib.Code) (*dexcode.Code, error) {
	res, err := ropper.Convert(ropper.Method{
		Class:    cf.ThisClass,
		Ref:      m.MethodRef(),
		IsStatic: m.IsStatic(),
		Code:     code,
	}, cf.Pool, ropper.Options{Positions: t.opts.PositionInfo})
	if err != nil {
		return nil, err
	}
	rm := res.Rop
	if t.opts.Optimize {
		sm, err := ssa.FromRop(rm, res.ParamWidth, m.IsStatic())
		if err != nil {
			return nil, err
		}
		if rm, err = back.ToRop(sm, back.Options{ParamsHigh: t.opts.ParamsHigh}); err != nil {
			return nil, err
		}
	}
	if err := rop.Validate(rm); err != nil {
		return nil, err
	}
	out, err := dexcode.Encode(rm, res.ParamWidth)
	if err != nil {
		return nil, err
	}
	if t.opts.LocalInfo {
		names, err := paramNames(m, code)
		if err != nil {
			return nil, err
		}
		out.ParamNames = names
	}
	return out, nil
}

// paramNames returns the declared parameter names recorded for the locals
// live at offset zero, "" where none is recorded.
func paramNames(m *classfile.Member, code *attrib.Code) ([]string, error) {
	lvt, ok := code.Attributes.FindFirst(attrib.NameLocalVariableTable).(*attrib.LocalVariableTable)
	if !ok {
		return nil, nil
	}
	proto, err := m.MethodRef().Prototype()
	if err != nil {
		return nil, err
	}
	bySlot := map[int]string{}
	for _, v := range lvt.Vars {
		if v.StartPC == 0 {
			bySlot[v.Index] = v.Name.Value
		}
	}
	names := make([]string, len(proto.Params))
	slot := 0
	if !m.IsStatic() {
		slot = 1
	}
	for i, p := range proto.Params {
		names[i] = bySlot[slot]
		slot += p.Category()
	}
	return names, nil
}
