package rop

// Opcode is a register-form operation.
type Opcode uint8

const (
	OpNop Opcode = iota
	OpMove
	// OpMoveParam defines a parameter register; Constant is the cst.Integer
	// parameter slot.
	OpMoveParam
	// OpMoveResult captures the value of the immediately preceding invoke.
	OpMoveResult
	OpConst
	OpAdd
	OpSub
	OpMul
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpUshr
	OpNeg
	// OpConv converts Sources[0] to the result type.
	OpConv
	// If opcodes compare one source against zero or two sources with each
	// other. The primary successor is the fall-through.
	OpIfEq
	OpIfNe
	OpIfLt
	OpIfGe
	OpIfGt
	OpIfLe
	OpGoto
	OpReturn
	OpThrow
	OpGetStatic
	OpPutStatic
	OpGetField
	OpPutField
	OpInvokeStatic
	OpInvokeVirtual
	OpInvokeDirect
	OpInvokeSuper
	OpInvokeInterface
	OpNewInstance
	OpCheckCast
	OpArrayLength
	// OpPhi exists only in SSA form.
	OpPhi
)

// Branching classifies how an instruction leaves its block.
type Branching uint8

const (
	BranchNone Branching = iota
	BranchGoto
	BranchIf
	BranchReturn
	BranchThrow
)

var opNames = [...]string{
	OpNop:             "nop",
	OpMove:            "move",
	OpMoveParam:       "move-param",
	OpMoveResult:      "move-result",
	OpConst:           "const",
	OpAdd:             "add",
	OpSub:             "sub",
	OpMul:             "mul",
	OpAnd:             "and",
	OpOr:              "or",
	OpXor:             "xor",
	OpShl:             "shl",
	OpShr:             "shr",
	OpUshr:            "ushr",
	OpNeg:             "neg",
	OpConv:            "conv",
	OpIfEq:            "if-eq",
	OpIfNe:            "if-ne",
	OpIfLt:            "if-lt",
	OpIfGe:            "if-ge",
	OpIfGt:            "if-gt",
	OpIfLe:            "if-le",
	OpGoto:            "goto",
	OpReturn:          "return",
	OpThrow:           "throw",
	OpGetStatic:       "get-static",
	OpPutStatic:       "put-static",
	OpGetField:        "get-field",
	OpPutField:        "put-field",
	OpInvokeStatic:    "invoke-static",
	OpInvokeVirtual:   "invoke-virtual",
	OpInvokeDirect:    "invoke-direct",
	OpInvokeSuper:     "invoke-super",
	OpInvokeInterface: "invoke-interface",
	OpNewInstance:     "new-instance",
	OpCheckCast:       "check-cast",
	OpArrayLength:     "array-length",
	OpPhi:             "phi",
}

func (o Opcode) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "op?"
}

// Branching returns how o leaves its block.
func (o Opcode) Branching() Branching {
	switch o {
	case OpGoto:
		return BranchGoto
	case OpIfEq, OpIfNe, OpIfLt, OpIfGe, OpIfGt, OpIfLe:
		return BranchIf
	case OpReturn:
		return BranchReturn
	case OpThrow:
		return BranchThrow
	}
	return BranchNone
}

// IsInvoke reports whether o is one of the invoke opcodes.
func (o Opcode) IsInvoke() bool {
	return o >= OpInvokeStatic && o <= OpInvokeInterface
}

// IsExit reports whether o leaves the method.
func (o Opcode) IsExit() bool { return o == OpReturn || o == OpThrow }
