package ropper_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdex/internal/attrib"
	"classdex/internal/bytestream"
	"classdex/internal/cst"
	"classdex/internal/rop"
	"classdex/internal/ropper"
	"classdex/internal/ssa"
	"classdex/internal/ssa/back"
)

func nat(name, desc string) cst.NameAndType {
	return cst.NameAndType{Name: cst.String{Value: name}, Descriptor: cst.String{Value: desc}}
}

func method(name, desc string, static bool, maxStack, maxLocals int, code ...byte) ropper.Method {
	return ropper.Method{
		Class:    cst.ClassType("a/B"),
		Ref:      cst.MethodRef{Class: cst.ClassType("a/B"), NAT: nat(name, desc)},
		IsStatic: static,
		Code:     &attrib.Code{MaxStack: maxStack, MaxLocals: maxLocals, Bytecode: bytestream.New(code)},
	}
}

func convert(t *testing.T, m ropper.Method, pool cst.Pool, opts ropper.Options) *ropper.Result {
	t.Helper()
	if pool == nil {
		pool = cst.NewStdPool(1)
	}
	res, err := ropper.Convert(m, pool, opts)
	require.NoError(t, err)
	require.NoError(t, rop.Validate(res.Rop))
	return res
}

func ops(b *rop.BasicBlock) []rop.Opcode {
	out := make([]rop.Opcode, len(b.Insns))
	for i, insn := range b.Insns {
		out[i] = insn.Op
	}
	return out
}

// static int max(int a, int b) { return a > b ? a : b; }
func maxMethod() ropper.Method {
	return method("max", "(II)I", true, 2, 2,
		0x1a,             // 0: iload_0
		0x1b,             // 1: iload_1
		0xa4, 0x00, 0x05, // 2: if_icmple 7
		0x1a,             // 5: iload_0
		0xac,             // 6: ireturn
		0x1b,             // 7: iload_1
		0xac,             // 8: ireturn
	)
}

func TestConvertBranchingMethod(t *testing.T) {
	res := convert(t, maxMethod(), nil, ropper.Options{})
	m := res.Rop
	assert.Equal(t, 2, res.ParamWidth)
	assert.Equal(t, 9, m.FirstLabel, "entry label follows the code")
	assert.Equal(t, 5, m.Blocks.Len())

	entry := m.Blocks.LabelToBlock(9)
	assert.Equal(t, []rop.Opcode{rop.OpMoveParam, rop.OpMoveParam, rop.OpGoto}, ops(entry))
	assert.Equal(t, []int{0}, entry.Successors)

	head := m.Blocks.LabelToBlock(0)
	assert.Equal(t, []rop.Opcode{rop.OpMove, rop.OpMove, rop.OpIfLe}, ops(head))
	assert.Equal(t, []int{5, 7}, head.Successors)
	assert.Equal(t, 5, head.Primary, "fall-through is primary")

	for _, label := range []int{5, 7} {
		b := m.Blocks.LabelToBlock(label)
		assert.Equal(t, []rop.Opcode{rop.OpMove, rop.OpMove, rop.OpGoto}, ops(b))
		assert.Equal(t, 4, b.Insns[1].Result.Reg, "return value register")
		assert.Equal(t, []int{10}, b.Successors)
	}

	ret := m.Blocks.LabelToBlock(10)
	require.NotNil(t, ret)
	assert.Equal(t, rop.OpReturn, ret.Insns[0].Op)
	assert.Equal(t, 4, ret.Insns[0].Sources[0].Reg)
	assert.Equal(t, []int{5, 7}, m.Predecessors(10))
}

func TestConvertedMethodSurvivesOptimizer(t *testing.T) {
	res := convert(t, maxMethod(), nil, ropper.Options{})
	sm, err := ssa.FromRop(res.Rop, res.ParamWidth, true)
	require.NoError(t, err)
	out, err := back.ToRop(sm, back.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, rop.Validate(out))

	n := out.RegCount()
	entry := out.Blocks.LabelToBlock(out.FirstLabel)
	require.Equal(t, rop.OpMoveParam, entry.Insns[0].Op)
	assert.Equal(t, n-2, entry.Insns[0].Result.Reg)
	assert.Equal(t, n-1, entry.Insns[1].Result.Reg)
	assert.Less(t, out.Blocks.InstructionCount(), res.Rop.Blocks.InstructionCount())
}

func TestInvokeSpecialKinds(t *testing.T) {
	pool := cst.NewStdPool(3)
	object := cst.ClassType("java/lang/Object")
	require.NoError(t, pool.Set(1, cst.MethodRef{Class: object, NAT: nat("<init>", "()V")}))
	require.NoError(t, pool.Set(2, cst.MethodRef{Class: object, NAT: nat("toString", "()Ljava/lang/String;")}))

	m := method("m", "()Ljava/lang/String;", false, 1, 1,
		0x2a,             // aload_0
		0xb7, 0x00, 0x01, // invokespecial Object.<init>
		0x2a,             // aload_0
		0xb7, 0x00, 0x02, // invokespecial Object.toString
		0xb0,             // areturn
	)
	res := convert(t, m, pool, ropper.Options{})
	assert.Equal(t, 1, res.ParamWidth)

	b := res.Rop.Blocks.LabelToBlock(0)
	assert.Equal(t, []rop.Opcode{
		rop.OpMove, rop.OpInvokeDirect,
		rop.OpMove, rop.OpInvokeSuper, rop.OpMoveResult,
		rop.OpMove, rop.OpGoto,
	}, ops(b))
	assert.Equal(t, cst.TypeString, b.Insns[4].Result.Type)
	assert.Equal(t, 2, b.Insns[5].Result.Reg)
}

func TestIincBecomesAddLiteral(t *testing.T) {
	m := method("f", "(I)V", true, 0, 1,
		0x84, 0x00, 0x05, // iinc 0 5
		0xb1,             // return
	)
	b := convert(t, m, nil, ropper.Options{}).Rop.Blocks.LabelToBlock(0)
	add := b.Insns[0]
	assert.Equal(t, rop.OpAdd, add.Op)
	assert.Equal(t, 0, add.Result.Reg)
	assert.Equal(t, rop.RegisterSpecList{rop.Spec(0, cst.TypeInt)}, add.Sources)
	assert.Equal(t, cst.Integer{Value: 5}, add.Constant)
}

func TestSwapUsesScratchRegister(t *testing.T) {
	m := method("f", "()I", true, 2, 0,
		0x04, // iconst_1
		0x05, // iconst_2
		0x5f, // swap
		0x57, // pop
		0xac, // ireturn
	)
	b := convert(t, m, nil, ropper.Options{}).Rop.Blocks.LabelToBlock(0)
	require.Equal(t, []rop.Opcode{
		rop.OpConst, rop.OpConst,
		rop.OpMove, rop.OpMove, rop.OpMove,
		rop.OpMove, rop.OpGoto,
	}, ops(b))
	assert.Equal(t, 2, b.Insns[2].Result.Reg)
	assert.Equal(t, 1, b.Insns[3].Result.Reg)
	assert.Equal(t, 0, b.Insns[4].Result.Reg)
	assert.Equal(t, 0, b.Insns[5].Sources[0].Reg, "the value returned is the one swapped down")
}

func TestPositions(t *testing.T) {
	build := func() ropper.Method {
		m := method("f", "()V", true, 1, 0,
			0x04, // iconst_1
			0x57, // pop
			0xb1, // return
		)
		m.Code.Attributes = attrib.List{&attrib.LineNumberTable{Lines: []attrib.LineNumber{
			{StartPC: 2, Line: 11},
			{StartPC: 0, Line: 10},
		}}}
		return m
	}

	tests := []struct {
		name      string
		positions ropper.PositionInfo
		constPos  rop.SourcePosition
		returnPos rop.SourcePosition
	}{
		{"none", ropper.PositionNone, rop.NoPosition, rop.NoPosition},
		{"lines", ropper.PositionLines, rop.SourcePosition{Address: 0, Line: 10}, rop.SourcePosition{Address: 2, Line: 11}},
		{"important", ropper.PositionImportant, rop.NoPosition, rop.SourcePosition{Address: 2, Line: 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := convert(t, build(), nil, ropper.Options{Positions: tt.positions}).Rop.Blocks.LabelToBlock(0)
			assert.Equal(t, tt.constPos, b.Insns[0].Pos)
			assert.Equal(t, tt.returnPos, b.LastInsn().Pos)
		})
	}
}

func TestParsePositionInfo(t *testing.T) {
	for s, want := range map[string]ropper.PositionInfo{
		"":          ropper.PositionLines,
		"lines":     ropper.PositionLines,
		"none":      ropper.PositionNone,
		"important": ropper.PositionImportant,
	} {
		got, err := ropper.ParsePositionInfo(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}
	_, err := ropper.ParsePositionInfo("all")
	assert.Error(t, err)
}

func TestConvertErrors(t *testing.T) {
	withCatch := method("f", "()V", true, 0, 0, 0xb1)
	withCatch.Code.Catches = []attrib.CatchEntry{{StartPC: 0, EndPC: 1, HandlerPC: 0}}

	tests := []struct {
		name        string
		m           ropper.Method
		unsupported bool
		msg         string
	}{
		{"switch", method("f", "(I)V", true, 1, 1, 0x1a, 0xaa, 0, 0, 0, 0, 0, 0), true, "tableswitch"},
		{"handlers", withCatch, true, "exception handlers"},
		{"overflow", method("f", "()V", true, 1, 0, 0x04, 0x04, 0xb1), false, "stack overflow"},
		{"underflow", method("f", "()V", true, 1, 0, 0x57, 0xb1), false, "stack underflow"},
		{"falls off", method("f", "()V", true, 1, 0, 0x04), false, "falls off"},
		{"local range", method("f", "()V", true, 1, 1, 0x1b, 0x57, 0xb1), false, "local 1 out of range"},
		{"void return mismatch", method("f", "()I", true, 0, 0, 0xb1), false, "void return"},
		{"param slots", method("f", "(JJ)V", true, 0, 2, 0xb1), false, "parameters need 4 slots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ropper.Convert(tt.m, cst.NewStdPool(1), ropper.Options{})
			var bad *ropper.Error
			require.True(t, errors.As(err, &bad), "got %v", err)
			assert.Equal(t, tt.unsupported, bad.Unsupported)
			assert.Contains(t, bad.Error(), tt.msg)
		})
	}
}

func TestClassLiteralIsUnsupported(t *testing.T) {
	pool := cst.NewStdPool(2)
	require.NoError(t, pool.Set(1, cst.ClassType("a/C")))
	m := method("f", "()Ljava/lang/Object;", true, 1, 0, 0x12, 0x01, 0xb0)
	_, err := ropper.Convert(m, pool, ropper.Options{})
	var bad *ropper.Error
	require.ErrorAs(t, err, &bad)
	assert.True(t, bad.Unsupported)
}
