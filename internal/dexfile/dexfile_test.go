package dexfile_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdex/internal/cst"
	"classdex/internal/dexcode"
	"classdex/internal/dexfile"
	"classdex/internal/rop"
)

func field(class, name, desc string) cst.FieldRef {
	return cst.FieldRef{Class: cst.ClassType(class), NAT: cst.NameAndType{
		Name: cst.String{Value: name}, Descriptor: cst.String{Value: desc},
	}}
}

func method(class, name, desc string) cst.MethodRef {
	return cst.MethodRef{Class: cst.ClassType(class), NAT: cst.NameAndType{
		Name: cst.String{Value: name}, Descriptor: cst.String{Value: desc},
	}}
}

// fixedIndex hands out indices by member name.
type fixedIndex map[string]int

func (f fixedIndex) IndexOf(c cst.Constant) (int, error) {
	m, ok := c.(cst.MemberRef)
	if !ok {
		return 0, errors.New("not a member")
	}
	i, ok := f[m.NameAndType().Name.Value]
	if !ok {
		return 0, errors.New("unknown member")
	}
	return i, nil
}

func TestClassDataWritesIndexDeltas(t *testing.T) {
	var data dexfile.ClassDataItem
	for _, name := range []string{"c", "a", "b"} {
		data.AddField(&dexfile.EncodedField{Ref: field("p/K", name, "I"), AccessFlags: dexfile.AccStatic})
	}
	got, err := data.Encode(fixedIndex{"a": 2, "b": 7, "c": 9}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0, 0, 0, 2, 8, 5, 8, 2, 8}, got)
}

func TestClassDataMethods(t *testing.T) {
	var data dexfile.ClassDataItem
	code := &dexcode.Code{}
	data.AddMethod(&dexfile.EncodedMethod{Ref: method("p/K", "run", "()V"), AccessFlags: dexfile.AccPublic, Code: code})
	data.AddMethod(&dexfile.EncodedMethod{Ref: method("p/K", "<init>", "()V"), AccessFlags: dexfile.AccPublic | dexfile.AccConstructor})
	require.Len(t, data.DirectMethods, 1)
	require.Len(t, data.VirtualMethods, 1)

	got, err := data.Encode(fixedIndex{"<init>": 0, "run": 300}, func(*dexfile.EncodedMethod) int { return 0x70 })
	require.NoError(t, err)
	want := []byte{
		0, 0, 1, 1,
		0, 0x81, 0x80, 0x04, 0, // <init>: public|constructor, no code
		0xac, 0x02, 1, 0x70,    // run at 300
	}
	assert.Equal(t, want, got)
}

func TestClassDataRejectsNonMonotonicIndices(t *testing.T) {
	var data dexfile.ClassDataItem
	data.AddField(&dexfile.EncodedField{Ref: field("p/K", "a", "I")})
	data.AddField(&dexfile.EncodedField{Ref: field("p/K", "b", "I")})
	_, err := data.Encode(fixedIndex{"a": 9, "b": 2}, nil)
	assert.ErrorIs(t, err, dexfile.ErrNonMonotonic)
}

func TestStaticValues(t *testing.T) {
	t.Run("requires sorting", func(t *testing.T) {
		var data dexfile.ClassDataItem
		data.AddField(&dexfile.EncodedField{Ref: field("p/K", "a", "I"), AccessFlags: dexfile.AccStatic})
		_, err := data.StaticValues()
		assert.ErrorIs(t, err, dexfile.ErrSortedStatics)
	})

	cases := []struct {
		name   string
		fields []*dexfile.EncodedField
		want   []cst.Constant
	}{
		{
			name:   "no static fields",
			fields: nil,
		},
		{
			name: "all defaults",
			fields: []*dexfile.EncodedField{
				{Ref: field("p/K", "a", "I"), Value: cst.Integer{}},
				{Ref: field("p/K", "b", "Ljava/lang/String;")},
			},
		},
		{
			name: "trailing defaults trimmed",
			fields: []*dexfile.EncodedField{
				{Ref: field("p/K", "c", "I"), Value: cst.Integer{Value: 0}},
				{Ref: field("p/K", "a", "I"), Value: cst.Integer{Value: 5}},
				{Ref: field("p/K", "b", "J")},
			},
			want: []cst.Constant{cst.Integer{Value: 5}},
		},
		{
			name: "absent values before the last become zeros",
			fields: []*dexfile.EncodedField{
				{Ref: field("p/K", "a", "Z")},
				{Ref: field("p/K", "b", "Ljava/lang/Object;")},
				{Ref: field("p/K", "c", "J"), Value: cst.Long{Value: 3}},
			},
			want: []cst.Constant{cst.Boolean{}, cst.KnownNull{}, cst.Long{Value: 3}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var data dexfile.ClassDataItem
			for _, f := range tc.fields {
				f.AccessFlags = dexfile.AccStatic
				data.AddField(f)
			}
			data.Sort()
			got, err := data.StaticValues()
			require.NoError(t, err)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.Values)
		})
	}
}

func TestEncodedValueWidths(t *testing.T) {
	cases := []struct {
		value cst.Constant
		want  []byte
	}{
		{cst.Integer{Value: 0}, []byte{0x04, 0x00}},
		{cst.Integer{Value: -1}, []byte{0x04, 0xff}},
		{cst.Integer{Value: 200}, []byte{0x24, 0xc8, 0x00}},
		{cst.Char{Value: 200}, []byte{0x03, 0xc8}},
		{cst.Long{Value: -129}, []byte{0x26, 0x7f, 0xff}},
		{cst.FloatOf(1), []byte{0x30, 0x80, 0x3f}},
		{cst.DoubleOf(0), []byte{0x11, 0x00}},
		{cst.Boolean{Value: true}, []byte{0x3f}},
		{cst.KnownNull{}, []byte{0x1e}},
	}
	for _, tc := range cases {
		got, err := dexfile.AppendValue(nil, tc.value, nil)
		require.NoError(t, err, "%s", tc.value)
		assert.Equal(t, tc.want, got, "%s", tc.value)
	}
}

func TestIDsOrder(t *testing.T) {
	ids := dexfile.NewIDs()
	require.NoError(t, ids.Intern(method("b/B", "m", "(Lb/B;I)V")))
	require.NoError(t, ids.Intern(field("a/A", "x", "I")))
	require.NoError(t, ids.Intern(cst.String{Value: "é"}))

	_, err := ids.StringIndex("m")
	require.ErrorIs(t, err, dexfile.ErrNotFinalized)

	ids.Finalize()
	order := []string{"I", "La/A;", "Lb/B;", "V", "VLI", "m", "x", "é"}
	for i, s := range order {
		n, err := ids.StringIndex(s)
		require.NoError(t, err, s)
		assert.Equal(t, i, n, s)
	}
	ti, err := ids.TypeIndex(cst.ClassType("b/B"))
	require.NoError(t, err)
	assert.Equal(t, 2, ti)
	assert.Error(t, ids.InternString("late"))
}

func initCode(t *testing.T) *dexcode.Code {
	t.Helper()
	block := &rop.BasicBlock{Label: 0, Primary: -1, Insns: rop.InsnList{
		{Op: rop.OpReturn, Pos: rop.SourcePosition{Line: 3}, Type: cst.TypeVoid},
	}}
	l, err := rop.NewBasicBlockList([]*rop.BasicBlock{block})
	require.NoError(t, err)
	code, err := dexcode.Encode(rop.NewMethod(l, 0), 1)
	require.NoError(t, err)
	return code
}

func TestWriteAndRead(t *testing.T) {
	object := cst.ClassType("java/lang/Object")
	base := cst.ClassType("p/Base")

	f := dexfile.NewFile()
	sub := &dexfile.ClassDef{
		Class:       cst.ClassType("p/Sub"),
		AccessFlags: dexfile.AccPublic,
		Super:       &base,
		Interfaces:  []cst.Type{cst.ClassType("java/lang/Runnable")},
		SourceFile:  "Sub.java",
		Data:        &dexfile.ClassDataItem{},
	}
	sub.Data.AddField(&dexfile.EncodedField{Ref: field("p/Sub", "COUNT", "I"), AccessFlags: dexfile.AccStatic | dexfile.AccFinal, Value: cst.Integer{Value: 42}})
	sub.Data.AddField(&dexfile.EncodedField{Ref: field("p/Sub", "total", "J"), AccessFlags: dexfile.AccPrivate})
	sub.Data.AddMethod(&dexfile.EncodedMethod{Ref: method("p/Sub", "<init>", "()V"), AccessFlags: dexfile.AccPublic | dexfile.AccConstructor, Code: initCode(t)})
	sub.Data.AddMethod(&dexfile.EncodedMethod{Ref: method("p/Sub", "run", "()V"), AccessFlags: dexfile.AccPublic | dexfile.AccAbstract})
	require.NoError(t, f.Add(sub))
	require.NoError(t, f.Add(&dexfile.ClassDef{Class: base, AccessFlags: dexfile.AccPublic, Super: &object}))
	assert.ErrorIs(t, f.Add(&dexfile.ClassDef{Class: base}), dexfile.ErrDuplicateClass)

	b, err := f.Bytes()
	require.NoError(t, err)
	assert.Equal(t, dexfile.Magic[:], b[:8])

	d, err := dexfile.Read(b)
	require.NoError(t, err)
	require.Len(t, d.Classes, 2)
	assert.Equal(t, "Lp/Base;", d.Classes[0].Class.Descriptor, "superclass is written first")

	got := d.Class("Lp/Sub;")
	require.NotNil(t, got)
	assert.Equal(t, "Lp/Base;", got.Super.Descriptor)
	assert.Equal(t, []cst.Type{cst.ClassType("java/lang/Runnable")}, got.Interfaces)
	assert.Equal(t, "Sub.java", got.SourceFile)
	require.Len(t, got.StaticFields, 1)
	assert.Equal(t, "COUNT", got.StaticFields[0].Ref.NAT.Name.Value)
	assert.Equal(t, []cst.Constant{cst.Integer{Value: 42}}, got.StaticValues)
	require.Len(t, got.InstanceFields, 1)
	assert.Equal(t, dexfile.AccPrivate, got.InstanceFields[0].AccessFlags)

	require.Len(t, got.DirectMethods, 1)
	ctor := got.DirectMethods[0]
	assert.Equal(t, "<init>", ctor.Ref.NAT.Name.Value)
	require.NotNil(t, ctor.Code)
	assert.Equal(t, []uint16{0x000e}, ctor.Code.Insns)
	assert.Equal(t, 1, ctor.Code.InsSize)
	assert.NotZero(t, ctor.Code.DebugInfoOff)
	require.Len(t, got.VirtualMethods, 1)
	assert.Nil(t, got.VirtualMethods[0].Code)

	assert.Nil(t, d.Class("Lp/Base;").StaticValues)
	assert.Error(t, f.Add(&dexfile.ClassDef{Class: cst.ClassType("p/Late")}), "tables are final")
}

func TestReadRejectsCorruption(t *testing.T) {
	f := dexfile.NewFile()
	require.NoError(t, f.Add(&dexfile.ClassDef{Class: cst.ClassType("p/A")}))
	b, err := f.Bytes()
	require.NoError(t, err)

	bad := append([]byte(nil), b...)
	bad[len(bad)-1] ^= 0xff
	_, err = dexfile.Read(bad)
	assert.ErrorIs(t, err, dexfile.ErrMalformed)

	_, err = dexfile.Read(b[:40])
	assert.ErrorIs(t, err, dexfile.ErrMalformed)
}

func TestAddLeavesFileUnchangedOnError(t *testing.T) {
	f := dexfile.NewFile()
	def := &dexfile.ClassDef{Class: cst.ClassType("p/A"), Data: &dexfile.ClassDataItem{}}
	def.Data.AddMethod(&dexfile.EncodedMethod{Ref: method("p/A", "m", "bogus")})
	require.Error(t, f.Add(def))
	assert.Empty(t, f.Classes())
	n, _, _, _, _ := f.IDs().Counts()
	assert.Zero(t, n)
}
