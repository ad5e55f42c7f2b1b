// Package back takes a method out of SSA form: liveness, interference,
// register allocation, phi removal and the final register-form blocks.
package back

import (
	"errors"
	"fmt"
	"slices"

	"classdex/internal/rop"
	"classdex/internal/ssa"
)

// Stage is a step of the conversion. Stages run in declaration order and
// never repeat.
type Stage uint8

const (
	StageStart Stage = iota
	StageInterferenceBuilt
	StageAllocated
	StagePhisRemoved
	StageParamsRepositioned
	StageGotosPruned
	StageRopEmitted
	StageBlocksMerged
)

var stageNames = [...]string{
	StageStart:              "start",
	StageInterferenceBuilt:  "interference-built",
	StageAllocated:          "allocated",
	StagePhisRemoved:        "phis-removed",
	StageParamsRepositioned: "params-repositioned",
	StageGotosPruned:        "gotos-pruned",
	StageRopEmitted:         "rop-emitted",
	StageBlocksMerged:       "blocks-merged",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", s)
}

// InternalError is a broken converter invariant: it never comes from valid
// input and must abort the whole run.
type InternalError struct {
	Stage Stage
	Msg   string
	Err   error
}

func (e *InternalError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	return fmt.Sprintf("internal error during %s: %s", e.Stage, msg)
}

func (e *InternalError) Unwrap() error { return e.Err }

func internalf(stage Stage, format string, args ...any) error {
	return &InternalError{Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

func wrapInternal(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var ie *InternalError
	if errors.As(err, &ie) {
		return err
	}
	return &InternalError{Stage: stage, Err: err}
}

// Options controls the conversion.
type Options struct {
	// ParamsHigh moves the parameters to the top of the frame.
	ParamsHigh bool
	// OnStage, when set, is called after each completed stage.
	OnStage func(Stage, *ssa.Method)
}

// DefaultOptions matches the register-VM calling convention.
func DefaultOptions() Options { return Options{ParamsHigh: true} }

// Converter runs the stages for one method.
type Converter struct {
	m     *ssa.Method
	opts  Options
	stage Stage
	alloc Allocator
	graph *InterferenceGraph
}

// NewConverter prepares the conversion of m. The method is consumed.
func NewConverter(m *ssa.Method, opts Options) *Converter {
	return &Converter{m: m, opts: opts}
}

// Stage is the last completed stage.
func (c *Converter) Stage() Stage { return c.stage }

// Graph returns the interference graph once it has been built.
func (c *Converter) Graph() *InterferenceGraph { return c.graph }

func (c *Converter) advance(s Stage) {
	c.stage = s
	if c.opts.OnStage != nil {
		c.opts.OnStage(s, c.m)
	}
}

// ToRop converts m out of SSA form with the default first-fit allocator.
func ToRop(m *ssa.Method, opts Options) (*rop.Method, error) {
	return NewConverter(m, opts).Run()
}

// Run executes every stage and returns the register-form method.
func (c *Converter) Run() (*rop.Method, error) {
	c.graph = BuildInterferenceGraph(c.m)
	c.advance(StageInterferenceBuilt)

	if c.alloc == nil {
		c.alloc = NewFirstFitLocalCombiningAllocator(c.m, c.graph, c.opts.ParamsHigh)
	}
	mapper, err := c.alloc.Allocate()
	if err != nil {
		return nil, wrapInternal(StageAllocated, err)
	}
	c.m.MapRegisters(mapper)
	dropIdentityMoves(c.m)
	c.advance(StageAllocated)

	if err := c.removePhis(); err != nil {
		return nil, wrapInternal(StagePhisRemoved, err)
	}
	c.advance(StagePhisRemoved)

	if c.alloc.WantsParamsMovedHigh() {
		c.moveParamsToHighRegisters()
		c.advance(StageParamsRepositioned)
	}

	c.removeEmptyGotos()
	c.advance(StageGotosPruned)

	rm, err := c.convertBlocks()
	if err != nil {
		return nil, err
	}
	c.advance(StageRopEmitted)

	if rm, err = CombineIdenticalBlocks(rm); err != nil {
		return nil, err
	}
	c.advance(StageBlocksMerged)
	return rm, nil
}

// WithAllocator replaces the default allocator.
func (c *Converter) WithAllocator(a Allocator) *Converter {
	c.alloc = a
	return c
}

// dropIdentityMoves removes moves that allocation turned into v <- v.
func dropIdentityMoves(m *ssa.Method) {
	for _, b := range m.Blocks {
		b.Insns = slices.DeleteFunc(b.Insns, func(insn *ssa.Insn) bool {
			return insn.IsMove() && insn.Result.Reg == insn.Sources[0].Reg
		})
	}
}

// removePhis turns each phi into moves at the end of its predecessors, then
// orders those moves so none clobbers a register still to be read.
func (c *Converter) removePhis() error {
	for _, b := range c.m.Blocks {
		for _, phi := range b.Phis() {
			for i, src := range phi.Sources {
				pred := c.m.Blocks[phi.PhiPreds[i]]
				if err := c.m.AddMoveToEnd(pred, *phi.Result, src); err != nil {
					return err
				}
			}
		}
		b.RemovePhis()
	}
	for _, b := range c.m.Blocks {
		if err := c.m.ScheduleMovesFromPhis(b); err != nil {
			return err
		}
	}
	if n := c.m.PhiCount(); n != 0 {
		return internalf(StagePhisRemoved, "%d phis left", n)
	}
	return nil
}

// moveParamsToHighRegisters maps [0, paramWidth) to the top of the frame and
// slides every other register down.
func (c *Converter) moveParamsToHighRegisters() {
	pw := c.m.ParamWidth
	regCount := c.m.RegCount
	mapper := rop.NewBasicRegisterMapper(regCount)
	for i := range regCount {
		if i < pw {
			mapper.AddMapping(i, regCount-pw+i, 1)
		} else {
			mapper.AddMapping(i, i-pw, 1)
		}
	}
	c.m.MapRegisters(mapper)
}

// removeEmptyGotos reroutes the predecessors of every goto-only block to its
// successor. The block itself becomes unreachable.
func (c *Converter) removeEmptyGotos() {
	c.m.ForEachBlockDepthFirst(func(b, _ *ssa.BasicBlock) {
		if len(b.Insns) != 1 || b.Insns[0].Op != rop.OpGoto {
			return
		}
		target := b.Primary
		if target < 0 && len(b.Succs) == 1 {
			target = b.Succs[0]
		}
		if target < 0 {
			return
		}
		for _, p := range slices.Clone(b.Preds) {
			c.m.ReplaceSuccessor(c.m.Blocks[p], b.Index, target)
		}
	})
}

// convertBlocks emits the reachable blocks in index order, dropping the
// virtual exit from successor lists.
func (c *Converter) convertBlocks() (*rop.Method, error) {
	c.m.ComputeReachability()
	exit := c.m.Exit()
	if exit != nil && len(exit.Insns) != 0 {
		return nil, internalf(StageRopEmitted, "exit block must have no instructions when leaving SSA form")
	}
	var blocks []*rop.BasicBlock
	for _, b := range c.m.Blocks {
		if !b.Reachable || b == exit {
			continue
		}
		rb, err := c.convertBlock(b, exit)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, rb)
	}
	list, err := rop.NewBasicBlockList(blocks)
	if err != nil {
		return nil, wrapInternal(StageRopEmitted, err)
	}
	return rop.NewMethod(list, c.m.Entry().RopLabel), nil
}

func (c *Converter) convertBlock(b, exit *ssa.BasicBlock) (*rop.BasicBlock, error) {
	succs := c.m.RopLabels(b.Succs)
	primary := -1
	if b.Primary >= 0 {
		primary = c.m.Blocks[b.Primary].RopLabel
	}
	if exit != nil && slices.Contains(b.Succs, exit.Index) {
		if len(b.Succs) > 1 {
			return nil, internalf(StageRopEmitted, "exit predecessor %d must have no other successors", b.RopLabel)
		}
		if last := b.Last(); last == nil || !last.Op.IsExit() {
			return nil, internalf(StageRopEmitted, "exit predecessor %d must end in a return or throw", b.RopLabel)
		}
		succs = nil
		primary = -1
	}
	insns := make(rop.InsnList, 0, len(b.Insns))
	for _, insn := range b.Insns {
		if insn.IsPhi() {
			return nil, internalf(StageRopEmitted, "phi left in block %d", b.RopLabel)
		}
		insns = append(insns, insn.ToRop())
	}
	return &rop.BasicBlock{Label: b.RopLabel, Insns: insns, Successors: succs, Primary: primary}, nil
}
