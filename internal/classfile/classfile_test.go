package classfile_test

import (
	"errors"
	"strings"
	"testing"

	"classdex/internal/attrib"
	"classdex/internal/bytestream"
	"classdex/internal/classfile"
	"classdex/internal/classfile/classfiletest"
	"classdex/internal/cst"
)

func parseError(t *testing.T, err error) *classfile.ParseError {
	t.Helper()
	var pe *classfile.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	return pe
}

func TestEmptyPool(t *testing.T) {
	b := classfiletest.New()
	pool, end, err := classfile.ParseConstantPool(bytestream.New(b.WithPool()))
	if err != nil {
		t.Fatal(err)
	}
	if pool.Size() != 1 || end != 10 {
		t.Fatalf("size %d end %d", pool.Size(), end)
	}
	if _, err := pool.Get(1); err == nil {
		t.Fatal("empty pool resolved an entry")
	}
}

func TestPoolResolution(t *testing.T) {
	b := classfiletest.New()
	long := b.Long(1 << 40)
	field := b.Field("p/C", "count", "I")
	str := b.String("hi")
	dbl := b.Double(2.5)
	pool, _, err := classfile.ParseConstantPool(bytestream.New(b.WithPool()))
	if err != nil {
		t.Fatal(err)
	}
	if c, _ := pool.Get(long); c != (cst.Long{Value: 1 << 40}) {
		t.Fatalf("long = %v", c)
	}
	if pool.GetOrNil(long+1) != nil {
		t.Fatal("second half of a long must stay empty")
	}
	c, err := pool.Get(field)
	if err != nil {
		t.Fatal(err)
	}
	ref, ok := c.(cst.FieldRef)
	if !ok || ref.Class != cst.ClassType("p/C") || ref.NAT.Name.Value != "count" || ref.Type() != cst.TypeInt {
		t.Fatalf("field ref = %#v", c)
	}
	if c, _ := pool.Get(str); c != (cst.String{Value: "hi"}) {
		t.Fatalf("string = %v", c)
	}
	if c, _ := pool.Get(dbl); c != cst.DoubleOf(2.5) {
		t.Fatalf("double = %v", c)
	}
}

func TestPoolErrors(t *testing.T) {
	tests := []struct {
		name    string
		build   func(b *classfiletest.Builder)
		kind    classfile.Kind
		msg     string
		context string
	}{
		{
			name:    "method handle",
			build:   func(b *classfiletest.Builder) { b.Raw(15, 1, 0, 1) },
			kind:    classfile.KindUnsupported,
			msg:     "MethodHandle not supported",
			context: "...while preparsing cst 0001 at offset 0000000a",
		},
		{
			name:    "method type",
			build:   func(b *classfiletest.Builder) { b.Utf8("x"); b.Raw(16, 0, 1) },
			kind:    classfile.KindUnsupported,
			msg:     "MethodType not supported",
			context: "...while preparsing cst 0002 at offset 0000000e",
		},
		{
			name:    "invoke dynamic",
			build:   func(b *classfiletest.Builder) { b.Raw(18, 0, 0, 0, 0) },
			kind:    classfile.KindUnsupported,
			msg:     "InvokeDynamic not supported",
			context: "...while preparsing cst 0001",
		},
		{
			name:    "unknown tag",
			build:   func(b *classfiletest.Builder) { b.Raw(2) },
			kind:    classfile.KindMalformed,
			msg:     "unknown tag byte: 02",
			context: "...while preparsing cst 0001",
		},
		{
			name: "wrong referenced type",
			build: func(b *classfiletest.Builder) {
				b.Integer(5)
				b.Raw(7, 0, 1)
			},
			kind:    classfile.KindMalformed,
			msg:     "expected utf8",
			context: "...while parsing cst 0002 at offset 0000000f",
		},
		{
			name:    "cycle",
			build:   func(b *classfiletest.Builder) { b.Raw(8, 0, 1) },
			kind:    classfile.KindMalformed,
			msg:     "circular constant pool reference",
			context: "...while parsing cst 0001",
		},
		{
			name:    "index out of range",
			build:   func(b *classfiletest.Builder) { b.Raw(8, 0, 9) },
			kind:    classfile.KindMalformed,
			msg:     "out of range",
			context: "...while parsing cst 0001",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := classfiletest.New()
			tt.build(b)
			_, _, err := classfile.ParseConstantPool(bytestream.New(b.WithPool()))
			pe := parseError(t, err)
			if pe.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", pe.Kind, tt.kind)
			}
			if !strings.Contains(pe.Msg, tt.msg) {
				t.Errorf("msg = %q, want %q", pe.Msg, tt.msg)
			}
			if !strings.Contains(pe.Error(), tt.context) {
				t.Errorf("error %q lacks frame %q", pe.Error(), tt.context)
			}
		})
	}
}

func codeAttr(b *classfiletest.Builder) classfiletest.Attr {
	lines := classfiletest.Attr{Name: "LineNumberTable", Data: classfiletest.Cat(classfiletest.U2(1), classfiletest.U2(0), classfiletest.U2(7))}
	return b.Code(1, 1, []byte{0xb1}, nil, lines)
}

func TestCodeAttribute(t *testing.T) {
	b := classfiletest.New()
	code := codeAttr(b)
	encoded := b.Encode(code)
	data := bytestream.New(b.WithPool(encoded...))
	pool, at, err := classfile.ParseConstantPool(data)
	if err != nil {
		t.Fatal(err)
	}
	a, end, err := classfile.ParseAttribute(data, pool, classfile.ContextMethod, at)
	if err != nil {
		t.Fatal(err)
	}
	c, ok := a.(*attrib.Code)
	if !ok {
		t.Fatalf("got %T", a)
	}
	if end != data.Len() || c.ByteLength() != len(encoded) {
		t.Fatalf("end %d/%d, byte length %d/%d", end, data.Len(), c.ByteLength(), len(encoded))
	}
	if c.MaxStack != 1 || c.Bytecode.Len() != 1 || len(c.LineNumbers()) != 1 || c.LineNumbers()[0].Line != 7 {
		t.Fatalf("unexpected code %+v", c)
	}

	// The same bytes in a class context are not decoded.
	a, _, err = classfile.ParseAttribute(data, pool, classfile.ContextClass, at)
	if err != nil {
		t.Fatal(err)
	}
	if raw, ok := a.(*attrib.Raw); !ok || raw.Name() != "Code" {
		t.Fatalf("class-context Code = %T", a)
	}
}

func TestAttributeLengthErrors(t *testing.T) {
	tests := []struct {
		name string
		attr func(b *classfiletest.Builder) classfiletest.Attr
		msg  string
	}{
		{
			name: "severely truncated code",
			attr: func(*classfiletest.Builder) classfiletest.Attr {
				return classfiletest.Attr{Name: "Code", Data: make([]byte, 11)}
			},
			msg: "severely truncated attribute",
		},
		{
			name: "truncated code",
			attr: func(*classfiletest.Builder) classfiletest.Attr {
				data := classfiletest.Cat(classfiletest.U2(1), classfiletest.U2(1), classfiletest.U4(100), make([]byte, 4))
				return classfiletest.Attr{Name: "Code", Data: data}
			},
			msg: "truncated attribute",
		},
		{
			name: "code trailing bytes",
			attr: func(b *classfiletest.Builder) classfiletest.Attr {
				a := b.Code(1, 1, []byte{0xb1}, nil)
				a.Data = append(a.Data, 0)
				return a
			},
			msg: "bad attribute length; expected length 0000000d",
		},
		{
			name: "deprecated with body",
			attr: func(*classfiletest.Builder) classfiletest.Attr {
				return classfiletest.Attr{Name: "Deprecated", Data: []byte{0}}
			},
			msg: "bad attribute length; expected length 00000000",
		},
		{
			name: "exceptions count mismatch",
			attr: func(*classfiletest.Builder) classfiletest.Attr {
				return classfiletest.Attr{Name: "Exceptions", Data: classfiletest.Cat(classfiletest.U2(2), classfiletest.U2(1))}
			},
			msg: "bad attribute length; expected length 00000006",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := classfiletest.New()
			a := tt.attr(b)
			data := bytestream.New(b.WithPool(b.Encode(a)...))
			pool, at, err := classfile.ParseConstantPool(data)
			if err != nil {
				t.Fatal(err)
			}
			_, _, err = classfile.ParseAttribute(data, pool, classfile.ContextMethod, at)
			pe := parseError(t, err)
			if pe.Msg != tt.msg {
				t.Fatalf("msg = %q, want %q", pe.Msg, tt.msg)
			}
			frame := a.Name + " attribute at offset"
			if len(pe.Context) == 0 || !strings.Contains(pe.Context[0], frame) {
				t.Fatalf("context %v lacks %q", pe.Context, frame)
			}
		})
	}
}

func TestAnnotations(t *testing.T) {
	b := classfiletest.New()
	typ := b.Utf8("Lp/Ann;")
	elem := b.Utf8("value")
	arr := b.Utf8("list")
	kind := b.Utf8("kind")
	enumType := b.Utf8("Lp/Color;")
	red := b.Utf8("RED")
	seven := b.Integer(7)
	body := classfiletest.Cat(
		classfiletest.U2(1),
		classfiletest.U2(typ), classfiletest.U2(3),
		classfiletest.U2(elem), []byte{'I'}, classfiletest.U2(seven),
		classfiletest.U2(arr), []byte{'['}, classfiletest.U2(2), []byte{'Z'}, classfiletest.U2(seven), []byte{'B'}, classfiletest.U2(seven),
		classfiletest.U2(kind), []byte{'e'}, classfiletest.U2(enumType), classfiletest.U2(red),
	)

	parse := func(body []byte) (*cst.Annotations, error) {
		data := bytestream.New(b.WithPool(body...))
		pool, at, err := classfile.ParseConstantPool(data)
		if err != nil {
			t.Fatal(err)
		}
		ap, err := classfile.NewAnnotationParser(data, pool, at, len(body))
		if err != nil {
			t.Fatal(err)
		}
		return ap.ParseAnnotationAttribute(cst.VisibilityRuntime)
	}

	set, err := parse(body)
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 1 {
		t.Fatalf("Len = %d", set.Len())
	}
	ann := set.Items()[0]
	els := ann.Elements()
	if ann.Type != cst.ClassType("p/Ann") || len(els) != 3 {
		t.Fatalf("annotation = %v", ann)
	}
	// Elements are sorted by name: kind, list, value.
	if e, ok := els[0].Value.(cst.EnumRef); !ok || e.NAT.Name.Value != "RED" || e.NAT.Descriptor.Value != "Lp/Color;" {
		t.Fatalf("enum element = %v", els[0].Value)
	}
	if a, ok := els[1].Value.(cst.Array); !ok || a.Values[0] != (cst.Boolean{Value: true}) || a.Values[1] != (cst.Byte{Value: 7}) {
		t.Fatalf("array element = %v", els[1].Value)
	}
	if els[2].Value != (cst.Integer{Value: 7}) {
		t.Fatalf("int element = %v", els[2].Value)
	}

	_, err = parse(append(body[:len(body):len(body)], 0))
	if pe := parseError(t, err); pe.Msg != "extra data in attribute" {
		t.Fatalf("msg = %q", pe.Msg)
	}
	_, err = parse(body[:len(body)-1])
	if pe := parseError(t, err); pe.Msg != "truncated annotation attribute" {
		t.Fatalf("msg = %q", pe.Msg)
	}
	bad := classfiletest.Cat(classfiletest.U2(1), classfiletest.U2(typ), classfiletest.U2(1), classfiletest.U2(elem), []byte{'x', 0, 0})
	_, err = parse(bad)
	if pe := parseError(t, err); pe.Msg != "unknown annotation tag: 78" {
		t.Fatalf("msg = %q", pe.Msg)
	}

	long := b.Long(5)
	for _, tc := range []struct {
		tag  byte
		idx  int
		want string
	}{
		{'I', elem, "annotation constant is string, expected int"},
		{'D', long, "annotation constant is long, expected double"},
		{'s', long, "annotation constant is long, expected string"},
		{'J', typ, "annotation constant is string, expected long"},
		{'F', seven, "annotation constant is int, expected float"},
	} {
		mismatched := classfiletest.Cat(classfiletest.U2(1), classfiletest.U2(typ), classfiletest.U2(1),
			classfiletest.U2(elem), []byte{tc.tag}, classfiletest.U2(tc.idx))
		_, err = parse(mismatched)
		if pe := parseError(t, err); pe.Msg != tc.want {
			t.Fatalf("tag %c: msg = %q, want %q", tc.tag, pe.Msg, tc.want)
		}
	}
}

func sampleClass(b *classfiletest.Builder) classfiletest.Class {
	cv := classfiletest.Attr{Name: "ConstantValue", Data: classfiletest.U2(b.Integer(42))}
	src := classfiletest.Attr{Name: "SourceFile", Data: classfiletest.U2(b.Utf8("Sample.java"))}
	return classfiletest.Class{
		Flags:      classfile.AccPublic | classfile.AccSuper,
		This:       "p/Sample",
		Super:      "java/lang/Object",
		Interfaces: []string{"java/lang/Runnable"},
		Fields: []classfiletest.Member{
			{Flags: classfile.AccStatic | classfile.AccFinal, Name: "N", Desc: "I", Attrs: []classfiletest.Attr{cv}},
			{Name: "x", Desc: "J"},
		},
		Methods: []classfiletest.Member{
			{Flags: classfile.AccPublic, Name: "run", Desc: "()V", Attrs: []classfiletest.Attr{codeAttr(b)}},
		},
		Attrs: []classfiletest.Attr{src},
	}
}

func TestParseClass(t *testing.T) {
	b := classfiletest.New()
	data := b.Bytes(sampleClass(b))
	cf, err := classfile.Parse(data, "p/Sample.class", classfile.Options{StrictNameCheck: true})
	if err != nil {
		t.Fatal(err)
	}
	if cf.ThisClass != cst.ClassType("p/Sample") || cf.SuperClass == nil || *cf.SuperClass != cst.TypeObject {
		t.Fatalf("this %v super %v", cf.ThisClass, cf.SuperClass)
	}
	if len(cf.Interfaces) != 1 || len(cf.Fields) != 2 || len(cf.Methods) != 1 {
		t.Fatalf("interfaces %d fields %d methods %d", len(cf.Interfaces), len(cf.Fields), len(cf.Methods))
	}
	cv, ok := cf.Fields[0].Attributes.FindFirst(attrib.NameConstantValue).(*attrib.ConstantValue)
	if !ok || cv.Value != (cst.Integer{Value: 42}) {
		t.Fatalf("constant value = %v", cf.Fields[0].Attributes)
	}
	if cf.Methods[0].Code() == nil || cf.SourceFile() != "Sample.java" {
		t.Fatal("missing code or source file")
	}

	if _, err := classfile.Parse(data, "q/Other.class", classfile.Options{StrictNameCheck: true}); err == nil {
		t.Fatal("name check accepted a mismatched path")
	}
	if _, err := classfile.Parse(data, "q/Other.class", classfile.Options{}); err != nil {
		t.Fatalf("name check ran without being asked: %v", err)
	}
	if _, err := classfile.Parse(append(data, 0), "", classfile.Options{}); err == nil {
		t.Fatal("trailing bytes accepted")
	}
	bad := append([]byte{}, data...)
	bad[0] = 0
	if _, err := classfile.Parse(bad, "", classfile.Options{}); err == nil {
		t.Fatal("bad magic accepted")
	}
}

func TestMemberContext(t *testing.T) {
	b := classfiletest.New()
	c := sampleClass(b)
	c.Methods = append(c.Methods, classfiletest.Member{Name: "broken", Desc: "()V", Attrs: []classfiletest.Attr{{Name: "Code", Data: make([]byte, 3)}}})
	_, err := classfile.Parse(b.Bytes(c), "", classfile.Options{})
	pe := parseError(t, err)
	if pe.Msg != "severely truncated attribute" {
		t.Fatalf("msg = %q", pe.Msg)
	}
	want := []string{"Code attribute at offset", "attributes[0]", "methods[1]"}
	if len(pe.Context) != len(want) {
		t.Fatalf("context = %v", pe.Context)
	}
	for i, w := range want {
		if !strings.Contains(pe.Context[i], w) {
			t.Errorf("context[%d] = %q, want %q", i, pe.Context[i], w)
		}
	}
}
