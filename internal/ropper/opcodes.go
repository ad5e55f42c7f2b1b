package ropper

// Bytecode opcodes understood by the front end.
const (
	opNop         = 0x00
	opAconstNull  = 0x01
	opIconstM1    = 0x02
	opIconst5     = 0x08
	opLconst0     = 0x09
	opLconst1     = 0x0a
	opFconst0     = 0x0b
	opFconst2     = 0x0d
	opDconst0     = 0x0e
	opDconst1     = 0x0f
	opBipush      = 0x10
	opSipush      = 0x11
	opLdc         = 0x12
	opLdcW        = 0x13
	opLdc2W       = 0x14
	opIload       = 0x15
	opAload       = 0x19
	opIload0      = 0x1a
	opAload3      = 0x2d
	opIstore      = 0x36
	opAstore      = 0x3a
	opIstore0     = 0x3b
	opAstore3     = 0x4e
	opPop         = 0x57
	opPop2        = 0x58
	opDup         = 0x59
	opSwap        = 0x5f
	opIadd        = 0x60
	opLadd        = 0x61
	opFadd        = 0x62
	opDadd        = 0x63
	opIsub        = 0x64
	opLsub        = 0x65
	opFsub        = 0x66
	opDsub        = 0x67
	opImul        = 0x68
	opLmul        = 0x69
	opFmul        = 0x6a
	opDmul        = 0x6b
	opIneg        = 0x74
	opLneg        = 0x75
	opIshl        = 0x78
	opIshr        = 0x7a
	opIushr       = 0x7c
	opIand        = 0x7e
	opIor         = 0x80
	opIxor        = 0x82
	opIinc        = 0x84
	opI2l         = 0x85
	opL2i         = 0x88
	opIfeq        = 0x99
	opIfle        = 0x9e
	opIfIcmpeq    = 0x9f
	opIfIcmple    = 0xa4
	opIfAcmpeq    = 0xa5
	opIfAcmpne    = 0xa6
	opGoto        = 0xa7
	opIreturn     = 0xac
	opLreturn     = 0xad
	opFreturn     = 0xae
	opDreturn     = 0xaf
	opAreturn     = 0xb0
	opReturn      = 0xb1
	opGetstatic   = 0xb2
	opPutstatic   = 0xb3
	opGetfield    = 0xb4
	opPutfield    = 0xb5
	opInvokevirt  = 0xb6
	opInvokespec  = 0xb7
	opInvokestat  = 0xb8
	opInvokeintf  = 0xb9
	opNew         = 0xbb
	opArraylength = 0xbe
	opAthrow      = 0xbf
	opCheckcast   = 0xc0
	opIfnull      = 0xc6
	opIfnonnull   = 0xc7
	opGotoW       = 0xc8
)

// unsupportedNames names the opcodes most often met outside the supported
// subset, for error messages.
var unsupportedNames = map[int]string{
	0xa8: "jsr",
	0xa9: "ret",
	0xaa: "tableswitch",
	0xab: "lookupswitch",
	0xba: "invokedynamic",
	0xbc: "newarray",
	0xbd: "anewarray",
	0xc1: "instanceof",
	0xc2: "monitorenter",
	0xc3: "monitorexit",
	0xc4: "wide",
	0xc5: "multianewarray",
	0xc9: "jsr_w",
}

// localTypes is the value type moved by the load/store family, indexed by
// the offset from the first opcode of that family (i, l, f, d, a).
var localTypes = [...]string{"I", "J", "F", "D", "Ljava/lang/Object;"}
