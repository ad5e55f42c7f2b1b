package ropper

import (
	"slices"

	"classdex/internal/bytestream"
)

// insnInfo is the decoded shape of one bytecode instruction.
type insnInfo struct {
	length   int
	targets  []int
	terminal bool // control never falls through
	branch   bool // ends its block
}

func isIf(op int) bool {
	return (op >= opIfeq && op <= opIfAcmpne) || op == opIfnull || op == opIfnonnull
}

func isReturn(op int) bool { return op >= opIreturn && op <= opReturn }

func supported(op int) bool {
	switch {
	case op <= opLdc2W,
		op >= opIload && op <= opAload3,
		op >= opIstore && op <= opAstore3,
		op >= opPop && op <= opDup, op == opSwap,
		op >= opIadd && op <= opDmul,
		op == opIneg, op == opLneg,
		op == opIshl, op == opIshr, op == opIushr,
		op == opIand, op == opIor, op == opIxor,
		op == opIinc, op == opI2l, op == opL2i,
		isIf(op), op == opGoto, op == opGotoW, isReturn(op),
		op >= opGetstatic && op <= opInvokeintf,
		op == opNew, op == opArraylength, op == opAthrow, op == opCheckcast:
		return true
	}
	return false
}

// decode reads the shape of the instruction at pc.
func decode(code bytestream.Array, pc int) (insnInfo, error) {
	op, err := code.U1(pc)
	if err != nil {
		return insnInfo{}, malformedf(pc, "truncated instruction")
	}
	if !supported(op) {
		if name, ok := unsupportedNames[op]; ok {
			return insnInfo{}, unsupportedf(pc, "unsupported opcode %s", name)
		}
		return insnInfo{}, unsupportedf(pc, "unsupported opcode %02x", op)
	}
	info := insnInfo{length: 1}
	switch {
	case op == opBipush, op == opLdc,
		op >= opIload && op <= opAload, op >= opIstore && op <= opAstore:
		info.length = 2
	case op == opSipush, op == opLdcW, op == opLdc2W, op == opIinc,
		op >= opGetstatic && op <= opInvokestat, op == opNew, op == opCheckcast:
		info.length = 3
	case op == opInvokeintf:
		info.length = 5
	case isIf(op), op == opGoto:
		off, err := code.S2(pc + 1)
		if err != nil {
			return insnInfo{}, malformedf(pc, "truncated branch")
		}
		info.length = 3
		info.targets = []int{pc + off}
		info.branch = true
		info.terminal = op == opGoto
	case op == opGotoW:
		off, err := code.S4(pc + 1)
		if err != nil {
			return insnInfo{}, malformedf(pc, "truncated branch")
		}
		info.length = 5
		info.targets = []int{pc + int(off)}
		info.branch = true
		info.terminal = true
	case isReturn(op), op == opAthrow:
		info.branch = true
		info.terminal = true
	}
	if pc+info.length > code.Len() {
		return insnInfo{}, malformedf(pc, "truncated instruction")
	}
	return info, nil
}

// scan decodes every instruction once and returns the sorted block leaders.
func scan(code bytestream.Array) (map[int]insnInfo, []int, error) {
	if code.Len() == 0 {
		return nil, nil, malformedf(0, "empty code")
	}
	insns := map[int]insnInfo{}
	leaders := map[int]bool{0: true}
	var last insnInfo
	for pc := 0; pc < code.Len(); {
		info, err := decode(code, pc)
		if err != nil {
			return nil, nil, err
		}
		insns[pc] = info
		for _, t := range info.targets {
			leaders[t] = true
		}
		next := pc + info.length
		if info.branch && next < code.Len() {
			leaders[next] = true
		}
		last = info
		pc = next
	}
	if !last.terminal {
		return nil, nil, malformedf(code.Len(), "control falls off the end of the code")
	}
	out := make([]int, 0, len(leaders))
	for pc := range leaders {
		if _, ok := insns[pc]; !ok {
			return nil, nil, malformedf(pc, "branch target is not an instruction")
		}
		out = append(out, pc)
	}
	slices.Sort(out)
	return insns, out, nil
}
