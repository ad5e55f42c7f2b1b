package rop_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdex/internal/cst"
	"classdex/internal/rop"
)

func intReg(r int) rop.RegisterSpec  { return rop.Spec(r, cst.TypeInt) }
func longReg(r int) rop.RegisterSpec { return rop.Spec(r, cst.TypeLong) }

func TestRegisterSpec(t *testing.T) {
	assert.Equal(t, 4, intReg(3).NextReg())
	assert.Equal(t, 5, longReg(3).NextReg())
	assert.True(t, longReg(3).Overlaps(intReg(4)))
	assert.False(t, longReg(3).Overlaps(intReg(5)))
	assert.False(t, intReg(2).Overlaps(longReg(3)))
	assert.Equal(t, 4, rop.RegisterSpecList{intReg(0), longReg(1), intReg(3)}.WordCount())
}

func TestBasicRegisterMapper(t *testing.T) {
	m := rop.NewBasicRegisterMapper(4)
	m.AddMapping(0, 2, 1)
	m.AddMapping(1, 0, 2)
	assert.Equal(t, 3, m.NewRegisterCount())

	insn := &rop.Insn{Op: rop.OpAdd, Result: ptr(intReg(0)), Sources: rop.RegisterSpecList{longReg(1), intReg(3)}}
	got := insn.WithRegisters(m)
	assert.Equal(t, 2, got.Result.Reg)
	assert.Equal(t, 0, got.Sources[0].Reg)
	assert.Equal(t, 3, got.Sources[1].Reg, "unmapped registers keep their number")
	assert.Equal(t, 0, insn.Result.Reg, "original is untouched")
}

func ptr(r rop.RegisterSpec) *rop.RegisterSpec { return &r }

func block(label int, succ []int, primary int, insns ...*rop.Insn) *rop.BasicBlock {
	return &rop.BasicBlock{Label: label, Insns: insns, Successors: succ, Primary: primary}
}

func ret(src rop.RegisterSpec) *rop.Insn {
	return &rop.Insn{Op: rop.OpReturn, Pos: rop.NoPosition, Sources: rop.RegisterSpecList{src}}
}

func diamond(t *testing.T) *rop.Method {
	t.Helper()
	ifz := &rop.Insn{Op: rop.OpIfEq, Pos: rop.NoPosition, Sources: rop.RegisterSpecList{intReg(0)}}
	blocks, err := rop.NewBasicBlockList([]*rop.BasicBlock{
		block(0, []int{1, 2}, 1, ifz),
		block(1, []int{3}, 3, &rop.Insn{Op: rop.OpConst, Result: ptr(longReg(1)), Constant: cst.Long{Value: 1}}, rop.NewGoto(rop.NoPosition)),
		block(2, []int{3}, 3, rop.NewGoto(rop.NoPosition)),
		block(3, nil, -1, ret(intReg(0))),
	})
	require.NoError(t, err)
	return rop.NewMethod(blocks, 0)
}

func TestBlockListQueries(t *testing.T) {
	m := diamond(t)
	l := m.Blocks
	assert.Equal(t, 3, l.RegCount())
	assert.Equal(t, 5, l.InstructionCount())
	assert.Equal(t, []int{1, 2}, m.Predecessors(3))
	assert.Empty(t, m.Predecessors(0))
	assert.Equal(t, 2, l.At(0).SecondarySuccessor())
	assert.Equal(t, 1, l.PreferredSuccessorOf(l.At(0)).Label)
	assert.Nil(t, l.PreferredSuccessorOf(l.At(3)))
	assert.Nil(t, l.LabelToBlock(9))
	require.NoError(t, rop.Validate(m))
}

func TestNewBasicBlockListRejectsDuplicateLabels(t *testing.T) {
	_, err := rop.NewBasicBlockList([]*rop.BasicBlock{
		block(1, nil, -1, ret(intReg(0))),
		block(1, nil, -1, ret(intReg(0))),
	})
	require.Error(t, err)
}

func TestMutableCopyIsIndependent(t *testing.T) {
	m := diamond(t)
	cp := m.Blocks.MutableCopy()
	cp.At(1).Insns = cp.At(1).Insns[1:]
	cp.At(0).Successors[0] = 7
	assert.Equal(t, 2, len(m.Blocks.At(1).Insns))
	assert.Equal(t, 1, m.Blocks.At(0).Successors[0])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		blocks []*rop.BasicBlock
		want   string
	}{
		{
			name:   "non-branch end",
			blocks: []*rop.BasicBlock{block(0, nil, -1, rop.NewMove(intReg(0), intReg(1)))},
			want:   "non-branch",
		},
		{
			name:   "missing successor",
			blocks: []*rop.BasicBlock{block(0, []int{4}, 4, rop.NewGoto(rop.NoPosition))},
			want:   "successor 4 missing",
		},
		{
			name: "goto with two successors",
			blocks: []*rop.BasicBlock{
				block(0, []int{1, 1}, 1, rop.NewGoto(rop.NoPosition)),
				block(1, nil, -1, ret(intReg(0))),
			},
			want: "goto with 2 successors",
		},
		{
			name: "phi survives",
			blocks: []*rop.BasicBlock{block(0, nil, -1,
				&rop.Insn{Op: rop.OpPhi, Result: ptr(intReg(0))}, ret(intReg(0)))},
			want: "phi in register form",
		},
		{
			name:   "return with successor",
			blocks: []*rop.BasicBlock{block(0, []int{0}, 0, ret(intReg(0)))},
			want:   "return with 1 successors",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := rop.NewBasicBlockList(tt.blocks)
			require.NoError(t, err)
			err = rop.Validate(rop.NewMethod(l, 0))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInsnContentEquals(t *testing.T) {
	a := &rop.Insn{Op: rop.OpConst, Result: ptr(intReg(0)), Constant: cst.Integer{Value: 3}, Type: cst.TypeInt}
	b := &rop.Insn{Op: rop.OpConst, Result: ptr(intReg(0)), Constant: cst.Integer{Value: 3}, Type: cst.TypeInt}
	c := &rop.Insn{Op: rop.OpConst, Result: ptr(intReg(0)), Constant: cst.Integer{Value: 4}, Type: cst.TypeInt}
	assert.True(t, a.ContentEquals(b))
	assert.False(t, a.ContentEquals(c))
	assert.Equal(t, "v0:I <- const-I 3", a.String())
}
