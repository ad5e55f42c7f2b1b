package cst_test

import (
	"strings"
	"testing"

	"classdex/internal/cst"
)

func nat(name, desc string) cst.NameAndType {
	return cst.NameAndType{Name: cst.String{Value: name}, Descriptor: cst.String{Value: desc}}
}

func TestCompareMembers(t *testing.T) {
	a := cst.FieldRef{Class: cst.ClassType("a/A"), NAT: nat("x", "I")}
	b := cst.FieldRef{Class: cst.ClassType("a/A"), NAT: nat("y", "I")}
	c := cst.FieldRef{Class: cst.ClassType("a/B"), NAT: nat("a", "I")}
	d := cst.FieldRef{Class: cst.ClassType("a/A"), NAT: nat("x", "J")}
	if cst.Compare(a, b) >= 0 || cst.Compare(b, c) >= 0 || cst.Compare(a, d) >= 0 {
		t.Fatal("member order must be class, name, then descriptor")
	}
	if cst.Compare(a, a) != 0 || !cst.Equal(a, a) {
		t.Fatal("a constant must equal itself")
	}
	if cst.Compare(cst.Integer{Value: 5}, cst.Long{Value: 1}) >= 0 {
		t.Fatal("kinds order before payloads")
	}
}

func TestDescriptors(t *testing.T) {
	p, err := cst.ParseMethodDescriptor("(IJ[Ljava/lang/String;D)V")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Params) != 4 || p.Return != cst.TypeVoid {
		t.Fatalf("unexpected prototype %+v", p)
	}
	if w := p.ParamWidth(true); w != 6 {
		t.Fatalf("static ParamWidth = %d, want 6", w)
	}
	if w := p.ParamWidth(false); w != 7 {
		t.Fatalf("instance ParamWidth = %d, want 7", w)
	}
	if s := p.Shorty(); s != "VIJLD" {
		t.Fatalf("Shorty = %q", s)
	}
	for _, bad := range []string{"", "I", "(", "(Q)V", "(L;)V", "()", "()VV", "(Ljava/lang/String)V"} {
		if _, err := cst.ParseMethodDescriptor(bad); err == nil {
			t.Errorf("ParseMethodDescriptor(%q) accepted", bad)
		}
	}
	if _, err := cst.ParseFieldDescriptor("[[I"); err != nil {
		t.Fatal(err)
	}
	if _, err := cst.ParseFieldDescriptor("V"); err == nil {
		t.Fatal("void is not a field type")
	}
	if _, err := cst.ParseFieldDescriptor(strings.Repeat("[", 256) + "I"); err == nil {
		t.Fatal("too many dimensions accepted")
	}
}

func TestClassType(t *testing.T) {
	if got := cst.ClassType("java/lang/Object"); got != cst.TypeObject {
		t.Fatalf("ClassType = %v", got)
	}
	if got := cst.ClassType("[I"); got.Descriptor != "[I" || got.ComponentType() != cst.TypeInt {
		t.Fatalf("array ClassType = %v", got)
	}
	if cst.TypeLong.Category() != 2 || cst.TypeObject.Category() != 1 {
		t.Fatal("bad categories")
	}
}

func TestPool(t *testing.T) {
	p := cst.NewStdPool(4)
	if err := p.Set(1, cst.Long{Value: 7}); err != nil {
		t.Fatal(err)
	}
	if err := p.Set(2, cst.Integer{Value: 1}); err == nil {
		t.Fatal("second half of wide constant was writable")
	}
	if err := p.Set(3, cst.Double{}); err == nil {
		t.Fatal("wide constant at last index accepted")
	}
	if _, err := p.Get(0); err == nil {
		t.Fatal("index 0 must fail Get")
	}
	if c, err := p.Get0Ok(0); err != nil || c != nil {
		t.Fatalf("Get0Ok(0) = %v, %v", c, err)
	}
	if _, err := p.Get(2); err == nil {
		t.Fatal("unused slot must fail Get")
	}
	if c, _ := p.Get(1); c != (cst.Long{Value: 7}) {
		t.Fatalf("Get(1) = %v", c)
	}
	if p.GetOrNil(9) != nil {
		t.Fatal("GetOrNil out of range must be nil")
	}
}

func TestZeroFor(t *testing.T) {
	tests := []struct {
		t    cst.Type
		want cst.Constant
	}{
		{cst.TypeBoolean, cst.Boolean{}},
		{cst.TypeByte, cst.Byte{}},
		{cst.TypeChar, cst.Char{}},
		{cst.TypeShort, cst.Short{}},
		{cst.TypeInt, cst.Integer{}},
		{cst.TypeLong, cst.Long{}},
		{cst.TypeFloat, cst.Float{}},
		{cst.TypeDouble, cst.Double{}},
		{cst.TypeString, cst.KnownNull{}},
	}
	for _, tt := range tests {
		got := cst.ZeroFor(tt.t)
		if !cst.Equal(got, tt.want) || !cst.IsZero(got) {
			t.Errorf("ZeroFor(%v) = %v", tt.t, got)
		}
	}
	if cst.IsZero(cst.String{Value: ""}) {
		t.Fatal("strings are never zero literals")
	}
	if cst.IsZero(cst.Integer{Value: 3}) {
		t.Fatal("nonzero literal reported zero")
	}
}

func TestAnnotations(t *testing.T) {
	a := cst.NewAnnotation(cst.ClassType("p/Ann"), cst.VisibilityRuntime)
	if err := a.Add(cst.NameValuePair{Name: cst.String{Value: "b"}, Value: cst.Integer{Value: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := a.Add(cst.NameValuePair{Name: cst.String{Value: "a"}, Value: cst.Integer{Value: 2}}); err != nil {
		t.Fatal(err)
	}
	if err := a.Add(cst.NameValuePair{Name: cst.String{Value: "a"}, Value: cst.Integer{Value: 3}}); err == nil {
		t.Fatal("duplicate element name accepted")
	}
	if els := a.Elements(); els[0].Name.Value != "a" || els[1].Name.Value != "b" {
		t.Fatalf("elements not sorted: %v", a)
	}
	var set cst.Annotations
	if err := set.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := set.Add(cst.NewAnnotation(cst.ClassType("p/Ann"), cst.VisibilityBuild)); err == nil {
		t.Fatal("duplicate annotation type accepted")
	}
	if set.Len() != 1 {
		t.Fatalf("Len = %d", set.Len())
	}
}
