package dexcode_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"classdex/internal/cst"
	"classdex/internal/dexcode"
	"classdex/internal/rop"
)

type fakeIndex struct{}

func (fakeIndex) StringIndex(string) (int, error)        { return 3, nil }
func (fakeIndex) TypeIndex(cst.Type) (int, error)        { return 4, nil }
func (fakeIndex) FieldIndex(cst.FieldRef) (int, error)   { return 5, nil }
func (fakeIndex) MethodIndex(cst.MemberRef) (int, error) { return 7, nil }

func at(line int) rop.SourcePosition { return rop.SourcePosition{Address: 0, Line: line} }

func spec(r int) rop.RegisterSpec { return rop.Spec(r, cst.TypeInt) }

func res(r int) *rop.RegisterSpec {
	s := spec(r)
	return &s
}

func konst(r int, v int32, pos rop.SourcePosition) *rop.Insn {
	return &rop.Insn{Op: rop.OpConst, Pos: pos, Result: res(r), Constant: cst.Integer{Value: v}, Type: cst.TypeInt}
}

func ret(r int, pos rop.SourcePosition) *rop.Insn {
	return &rop.Insn{Op: rop.OpReturn, Pos: pos, Sources: rop.RegisterSpecList{spec(r)}, Type: cst.TypeInt}
}

func method(t *testing.T, blocks ...*rop.BasicBlock) *rop.Method {
	t.Helper()
	l, err := rop.NewBasicBlockList(blocks)
	if err != nil {
		t.Fatal(err)
	}
	return rop.NewMethod(l, blocks[0].Label)
}

func encode(t *testing.T, m *rop.Method, paramWidth int) (*dexcode.Code, []uint16) {
	t.Helper()
	code, err := dexcode.Encode(m, paramWidth)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	units, err := code.Units(fakeIndex{})
	if err != nil {
		t.Fatalf("Units: %v", err)
	}
	if len(units) != code.Size() {
		t.Fatalf("Units returned %d units, Size is %d", len(units), code.Size())
	}
	return code, units
}

func TestEncodeStraightLine(t *testing.T) {
	m := method(t, &rop.BasicBlock{Label: 0, Primary: -1, Insns: rop.InsnList{
		{Op: rop.OpMoveParam, Pos: rop.NoPosition, Result: res(1), Constant: cst.Integer{Value: 0}, Type: cst.TypeInt},
		konst(0, 5, rop.NoPosition),
		{Op: rop.OpAdd, Pos: rop.NoPosition, Result: res(0), Sources: rop.RegisterSpecList{spec(0), spec(1)}, Type: cst.TypeInt},
		ret(0, rop.NoPosition),
	}})
	code, units := encode(t, m, 1)
	want := []uint16{0x0014, 5, 0, 0x0090, 0x0100, 0x000f}
	if !slices.Equal(units, want) {
		t.Fatalf("units = %04x, want %04x", units, want)
	}
	if code.RegistersSize != 2 || code.InsSize != 1 || code.OutsSize != 0 {
		t.Fatalf("sizes = %d/%d/%d", code.RegistersSize, code.InsSize, code.OutsSize)
	}
}

func TestMisplacedParameterIsMoved(t *testing.T) {
	m := method(t, &rop.BasicBlock{Label: 0, Primary: -1, Insns: rop.InsnList{
		{Op: rop.OpMoveParam, Pos: rop.NoPosition, Result: res(0), Constant: cst.Integer{Value: 0}, Type: cst.TypeInt},
		konst(1, 2, rop.NoPosition),
		ret(0, rop.NoPosition),
	}})
	_, units := encode(t, m, 1)
	if !slices.Equal(units[:3], []uint16{0x0003, 0, 1}) {
		t.Fatalf("prologue = %04x, want move/16 v0, v1", units[:3])
	}
}

func TestBranchLayout(t *testing.T) {
	ifz := &rop.Insn{Op: rop.OpIfEq, Pos: rop.NoPosition, Sources: rop.RegisterSpecList{spec(0)}, Type: cst.TypeInt}
	m := method(t,
		&rop.BasicBlock{Label: 0, Successors: []int{1, 2}, Primary: 1, Insns: rop.InsnList{konst(0, 0, rop.NoPosition), ifz}},
		&rop.BasicBlock{Label: 1, Successors: []int{3}, Primary: 3, Insns: rop.InsnList{konst(1, 1, rop.NoPosition), rop.NewGoto(rop.NoPosition)}},
		&rop.BasicBlock{Label: 2, Successors: []int{3}, Primary: 3, Insns: rop.InsnList{konst(1, 2, rop.NoPosition), rop.NewGoto(rop.NoPosition)}},
		&rop.BasicBlock{Label: 3, Primary: -1, Insns: rop.InsnList{ret(1, rop.NoPosition)}},
	)
	_, units := encode(t, m, 0)
	want := []uint16{
		0x0014, 0, 0,           // 0000: const v0 #0
		0x0038, 6,              // 0003: if-eqz v0 -> 0009
		0x0114, 1, 0,           // 0005: const v1 #1, falls into block 3
		0x010f,                 // 0008: return v1
		0x0114, 2, 0,           // 0009: const v1 #2
		0x002a, 0xfffc, 0xffff, // 000c: goto/32 -> 0008
	}
	if !slices.Equal(units, want) {
		t.Fatalf("units = %04x\nwant    %04x", units, want)
	}
}

func TestInvokeGathersArguments(t *testing.T) {
	callee := cst.MethodRef{Class: cst.ClassType("a/B"), NAT: cst.NameAndType{
		Name: cst.String{Value: "f"}, Descriptor: cst.String{Value: "(II)V"},
	}}
	m := method(t, &rop.BasicBlock{Label: 0, Primary: -1, Insns: rop.InsnList{
		konst(0, 1, rop.NoPosition),
		konst(1, 9, rop.NoPosition),
		konst(2, 3, rop.NoPosition),
		{Op: rop.OpInvokeStatic, Pos: rop.NoPosition, Sources: rop.RegisterSpecList{spec(0), spec(2)}, Constant: callee, Type: cst.TypeVoid},
		{Op: rop.OpReturn, Pos: rop.NoPosition, Type: cst.TypeVoid},
	}})
	code, units := encode(t, m, 0)
	if code.RegistersSize != 5 || code.OutsSize != 2 {
		t.Fatalf("registers %d outs %d, want 5 and 2", code.RegistersSize, code.OutsSize)
	}
	tail := units[9:]
	want := []uint16{
		0x0003, 0, 2, // move/16 v0, v2
		0x0003, 1, 4, // move/16 v1, v4
		0x0277, 7, 0, // invoke-static/range {v0, v1}
		0x000e,
	}
	if !slices.Equal(tail, want) {
		t.Fatalf("tail = %04x, want %04x", tail, want)
	}
	if refs := code.Refs(); len(refs) != 1 || !cst.Equal(refs[0], callee) {
		t.Fatalf("refs = %v", refs)
	}
}

func TestIncrementUsesLiteralForm(t *testing.T) {
	m := method(t, &rop.BasicBlock{Label: 0, Primary: -1, Insns: rop.InsnList{
		konst(0, 1, rop.NoPosition),
		{Op: rop.OpAdd, Pos: rop.NoPosition, Result: res(0), Sources: rop.RegisterSpecList{spec(0)}, Constant: cst.Integer{Value: -2}, Type: cst.TypeInt},
		ret(0, rop.NoPosition),
	}})
	code, units := encode(t, m, 0)
	if !slices.Equal(units[3:5], []uint16{0x00d8, 0xfe00}) {
		t.Fatalf("add = %04x", units[3:5])
	}
	if !strings.Contains(code.String(), "add-int/lit8 v0, v0 #-2") {
		t.Fatalf("disassembly:\n%s", code)
	}
}

func TestRegisterOutOfRange(t *testing.T) {
	m := method(t, &rop.BasicBlock{Label: 0, Primary: -1, Insns: rop.InsnList{
		konst(300, 1, rop.NoPosition),
		ret(300, rop.NoPosition),
	}})
	_, err := dexcode.Encode(m, 0)
	if !errors.Is(err, dexcode.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestDebugInfo(t *testing.T) {
	m := method(t, &rop.BasicBlock{Label: 0, Primary: -1, Insns: rop.InsnList{
		konst(0, 1, at(10)),
		ret(0, at(12)),
	}})
	code, _ := encode(t, m, 0)
	got, err := code.DebugInfo(0, fakeIndex{})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{10, 0, 0x0e, 0x01, 3, 0x02, 2, 0x0e, 0x00}
	if !slices.Equal(got, want) {
		t.Fatalf("debug info = % x, want % x", got, want)
	}

	code, _ = encode(t, method(t, &rop.BasicBlock{Label: 0, Primary: -1, Insns: rop.InsnList{ret(0, rop.NoPosition)}}), 0)
	if info, _ := code.DebugInfo(0, fakeIndex{}); info != nil {
		t.Fatalf("expected no debug info, got % x", info)
	}

	// Names alone are enough to emit an item; "x" resolves to string 3.
	code.ParamNames = []string{"", "x"}
	got, err = code.DebugInfo(2, fakeIndex{})
	if err != nil {
		t.Fatal(err)
	}
	want = []byte{1, 2, 0, 4, 0x00}
	if !slices.Equal(got, want) {
		t.Fatalf("named debug info = % x, want % x", got, want)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	callee := cst.MethodRef{Class: cst.ClassType("a/B"), NAT: cst.NameAndType{
		Name: cst.String{Value: "f"}, Descriptor: cst.String{Value: "(I)V"},
	}}
	m := method(t, &rop.BasicBlock{Label: 0, Primary: -1, Insns: rop.InsnList{
		konst(0, 1, at(4)),
		{Op: rop.OpInvokeStatic, Pos: at(5), Sources: rop.RegisterSpecList{spec(0)}, Constant: callee, Type: cst.TypeVoid},
		{Op: rop.OpReturn, Pos: rop.NoPosition, Type: cst.TypeVoid},
	}})
	code, units := encode(t, m, 0)
	code.ParamNames = []string{"n"}

	snap, err := code.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	back, err := dexcode.FromSnapshot(snap)
	if err != nil {
		t.Fatal(err)
	}
	got, err := back.Units(fakeIndex{})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, units) {
		t.Fatalf("units = %04x, want %04x", got, units)
	}
	if refs := back.Refs(); len(refs) != 2 || !cst.Equal(refs[0], callee) {
		t.Fatalf("refs = %v", refs)
	}
	if !slices.Equal(back.Positions(), code.Positions()) {
		t.Fatalf("positions = %v, want %v", back.Positions(), code.Positions())
	}

	snap.Size++
	if _, err := dexcode.FromSnapshot(snap); err == nil {
		t.Fatal("expected a size mismatch error")
	}
}
