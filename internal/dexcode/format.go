package dexcode

// format is an instruction layout. The name follows the register-VM
// convention: units, register count, kind.
type format uint8

const (
	f10x format = iota
	f11x
	f12x
	f21c
	f21t
	f22b
	f22c
	f22s
	f22t
	f23x
	f30t
	f31c
	f31i
	f32x
	f3rc
	f51l
)

// units is the encoded size of each format in 16-bit code units.
var units = [...]int{
	f10x: 1, f11x: 1, f12x: 1,
	f21c: 2, f21t: 2, f22b: 2, f22c: 2, f22s: 2, f22t: 2, f23x: 2,
	f30t: 3, f31c: 3, f31i: 3, f32x: 3, f3rc: 3,
	f51l: 5,
}

// regLimit is one past the largest register each format can name.
var regLimit = [...]int{
	f10x: 0, f11x: 1 << 8, f12x: 1 << 4,
	f21c: 1 << 8, f21t: 1 << 8, f22b: 1 << 8, f22c: 1 << 4, f22s: 1 << 4, f22t: 1 << 4, f23x: 1 << 8,
	f30t: 0, f31c: 1 << 8, f31i: 1 << 8, f32x: 1 << 16, f3rc: 1 << 16,
	f51l: 1 << 8,
}

// Opcodes emitted by the encoder.
const (
	opNop            = 0x00
	opMove16         = 0x03
	opMoveWide16     = 0x06
	opMoveObject16   = 0x09
	opMoveResult     = 0x0a
	opMoveResultWide = 0x0b
	opMoveResultObj  = 0x0c
	opReturnVoid     = 0x0e
	opReturn         = 0x0f
	opReturnWide     = 0x10
	opReturnObject   = 0x11
	opConst          = 0x14
	opConstWide      = 0x18
	opConstString32  = 0x1b
	opCheckCast      = 0x1f
	opArrayLength    = 0x21
	opNewInstance    = 0x22
	opThrow          = 0x27
	opGoto32         = 0x2a
	opIfEq           = 0x32
	opIfEqz          = 0x38
	opIget           = 0x52
	opIput           = 0x59
	opSget           = 0x60
	opSput           = 0x67
	opInvokeVirtualR = 0x74
	opInvokeSuperR   = 0x75
	opInvokeDirectR  = 0x76
	opInvokeStaticR  = 0x77
	opInvokeIfaceR   = 0x78
	opNegInt         = 0x7b
	opNegLong        = 0x7d
	opIntToLong      = 0x81
	opLongToInt      = 0x84
	opAddInt         = 0x90
	opAddLong        = 0x9b
	opAddFloat       = 0xa6
	opAddDouble      = 0xab
	opAddIntLit16    = 0xd0
	opAddIntLit8     = 0xd8
)

var opNames = map[uint8]string{
	opNop: "nop", opMove16: "move/16", opMoveWide16: "move-wide/16", opMoveObject16: "move-object/16",
	opMoveResult: "move-result", opMoveResultWide: "move-result-wide", opMoveResultObj: "move-result-object",
	opReturnVoid: "return-void", opReturn: "return", opReturnWide: "return-wide", opReturnObject: "return-object",
	opConst: "const", opConstWide: "const-wide", opConstString32: "const-string/jumbo",
	opCheckCast: "check-cast", opArrayLength: "array-length", opNewInstance: "new-instance", opThrow: "throw",
	opGoto32: "goto/32",
	opIfEq: "if-eq", opIfEq + 1: "if-ne", opIfEq + 2: "if-lt", opIfEq + 3: "if-ge", opIfEq + 4: "if-gt", opIfEq + 5: "if-le",
	opIfEqz: "if-eqz", opIfEqz + 1: "if-nez", opIfEqz + 2: "if-ltz", opIfEqz + 3: "if-gez", opIfEqz + 4: "if-gtz", opIfEqz + 5: "if-lez",
	opIget: "iget", opIget + 1: "iget-wide", opIget + 2: "iget-object", opIget + 3: "iget-boolean",
	opIget + 4: "iget-byte", opIget + 5: "iget-char", opIget + 6: "iget-short",
	opIput: "iput", opIput + 1: "iput-wide", opIput + 2: "iput-object", opIput + 3: "iput-boolean",
	opIput + 4: "iput-byte", opIput + 5: "iput-char", opIput + 6: "iput-short",
	opSget: "sget", opSget + 1: "sget-wide", opSget + 2: "sget-object", opSget + 3: "sget-boolean",
	opSget + 4: "sget-byte", opSget + 5: "sget-char", opSget + 6: "sget-short",
	opSput: "sput", opSput + 1: "sput-wide", opSput + 2: "sput-object", opSput + 3: "sput-boolean",
	opSput + 4: "sput-byte", opSput + 5: "sput-char", opSput + 6: "sput-short",
	opInvokeVirtualR: "invoke-virtual/range", opInvokeSuperR: "invoke-super/range",
	opInvokeDirectR: "invoke-direct/range", opInvokeStaticR: "invoke-static/range",
	opInvokeIfaceR: "invoke-interface/range",
	opNegInt: "neg-int", opNegLong: "neg-long", opIntToLong: "int-to-long", opLongToInt: "long-to-int",
	opAddInt: "add-int", opAddInt + 1: "sub-int", opAddInt + 2: "mul-int",
	opAddInt + 5: "and-int", opAddInt + 6: "or-int", opAddInt + 7: "xor-int",
	opAddInt + 8: "shl-int", opAddInt + 9: "shr-int", opAddInt + 10: "ushr-int",
	opAddLong: "add-long", opAddLong + 1: "sub-long", opAddLong + 2: "mul-long",
	opAddFloat: "add-float", opAddFloat + 1: "sub-float", opAddFloat + 2: "mul-float",
	opAddDouble: "add-double", opAddDouble + 1: "sub-double", opAddDouble + 2: "mul-double",
	opAddIntLit16: "add-int/lit16", opAddIntLit8: "add-int/lit8",
}
