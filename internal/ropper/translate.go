package ropper

import (
	"classdex/internal/cst"
	"classdex/internal/rop"
)

// frame is the operand stack while one block is translated.
type frame struct {
	t     *translator
	pc    int
	stack []cst.Type
	insns rop.InsnList
}

func (f *frame) push(typ cst.Type) (rop.RegisterSpec, error) {
	w := words(f.stack)
	if w+typ.Category() > f.t.maxStack {
		return rop.RegisterSpec{}, malformedf(f.pc, "stack overflow (max_stack %d)", f.t.maxStack)
	}
	f.stack = append(f.stack, typ)
	return rop.Spec(f.t.maxLocals+w, typ), nil
}

func (f *frame) pop() (rop.RegisterSpec, error) {
	if len(f.stack) == 0 {
		return rop.RegisterSpec{}, malformedf(f.pc, "stack underflow")
	}
	typ := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return rop.Spec(f.t.maxLocals+words(f.stack), typ), nil
}

// popN pops n values and returns them bottom first.
func (f *frame) popN(n int) (rop.RegisterSpecList, error) {
	out := make(rop.RegisterSpecList, n)
	for i := n - 1; i >= 0; i-- {
		v, err := f.pop()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *frame) local(idx int, typ cst.Type) (rop.RegisterSpec, error) {
	if idx < 0 || idx+typ.Category() > f.t.maxLocals {
		return rop.RegisterSpec{}, malformedf(f.pc, "local %d out of range (max_locals %d)", idx, f.t.maxLocals)
	}
	return rop.Spec(idx, typ), nil
}

// u1 and u2 read the unsigned operand following the opcode.
func (f *frame) u1() int { v, _ := f.t.code.U1(f.pc + 1); return v }
func (f *frame) u2() int { v, _ := f.t.code.U2(f.pc + 1); return v }

func (f *frame) emit(insn *rop.Insn) { f.insns = append(f.insns, insn) }

func (f *frame) emitResult(op rop.Opcode, important bool, res rop.RegisterSpec, typ cst.Type, c cst.Constant, sources ...rop.RegisterSpec) {
	f.emit(&rop.Insn{Op: op, Pos: f.t.position(f.pc, important), Result: &res, Sources: sources, Constant: c, Type: typ})
}

// translateBlock lowers the bytecode block starting at start. It returns the
// block and the operand stack types on exit.
func (t *translator) translateBlock(start int, stack []cst.Type) (*rop.BasicBlock, []cst.Type, error) {
	f := &frame{t: t, stack: stack}
	b := &rop.BasicBlock{Label: start, Primary: -1}
	for pc := start; ; {
		f.pc = pc
		info := t.insns[pc]
		op, _ := t.code.U1(pc)
		if err := f.insn(op, info, b); err != nil {
			return nil, nil, err
		}
		if info.branch {
			break
		}
		next := pc + info.length
		if t.isLeader(next) {
			f.emit(rop.NewGoto(t.position(pc, false)))
			b.Successors = []int{next}
			b.Primary = next
			break
		}
		pc = next
	}
	b.Insns = f.insns
	return b, f.stack, nil
}

func (f *frame) insn(op int, info insnInfo, b *rop.BasicBlock) error {
	t := f.t
	pc := f.pc

	switch {
	case op == opNop:
		return nil

	case op == opAconstNull:
		return f.constant(cst.TypeObject, cst.KnownNull{})
	case op >= opIconstM1 && op <= opIconst5:
		return f.constant(cst.TypeInt, cst.Integer{Value: int32(op - opIconstM1 - 1)}) //nolint:gosec // small
	case op == opLconst0 || op == opLconst1:
		return f.constant(cst.TypeLong, cst.Long{Value: int64(op - opLconst0)})
	case op >= opFconst0 && op <= opFconst2:
		return f.constant(cst.TypeFloat, cst.FloatOf(float32(op-opFconst0)))
	case op == opDconst0 || op == opDconst1:
		return f.constant(cst.TypeDouble, cst.DoubleOf(float64(op-opDconst0)))
	case op == opBipush:
		v, _ := t.code.S1(pc + 1)
		return f.constant(cst.TypeInt, cst.Integer{Value: int32(v)}) //nolint:gosec // one byte
	case op == opSipush:
		v, _ := t.code.S2(pc + 1)
		return f.constant(cst.TypeInt, cst.Integer{Value: int32(v)}) //nolint:gosec // two bytes
	case op == opLdc:
		return f.ldc(f.u1(), false)
	case op == opLdcW:
		return f.ldc(f.u2(), false)
	case op == opLdc2W:
		return f.ldc(f.u2(), true)

	case op >= opIload && op <= opAload:
		return f.load(f.u1(), cst.TypeFor(localTypes[op-opIload]))
	case op >= opIload0 && op <= opAload3:
		n := op - opIload0
		return f.load(n%4, cst.TypeFor(localTypes[n/4]))
	case op >= opIstore && op <= opAstore:
		return f.store(f.u1(), cst.TypeFor(localTypes[op-opIstore]))
	case op >= opIstore0 && op <= opAstore3:
		n := op - opIstore0
		return f.store(n%4, cst.TypeFor(localTypes[n/4]))

	case op == opPop:
		v, err := f.pop()
		if err == nil && v.Category() != 1 {
			return malformedf(pc, "pop of a wide value")
		}
		return err
	case op == opPop2:
		v, err := f.pop()
		if err != nil || v.Category() == 2 {
			return err
		}
		v, err = f.pop()
		if err == nil && v.Category() != 1 {
			return malformedf(pc, "pop2 splits a wide value")
		}
		return err
	case op == opDup:
		v, err := f.pop()
		if err != nil {
			return err
		}
		if v.Category() != 1 {
			return malformedf(pc, "dup of a wide value")
		}
		f.stack = append(f.stack, v.Type)
		dst, err := f.push(v.Type)
		if err != nil {
			return err
		}
		f.emit(rop.NewMoveAt(dst, v, t.position(pc, false)))
		return nil
	case op == opSwap:
		return f.swap()

	case op >= opIadd && op <= opDmul:
		kinds := [...]rop.Opcode{rop.OpAdd, rop.OpSub, rop.OpMul}
		return f.binop(kinds[(op-opIadd)/4], cst.TypeFor(localTypes[(op-opIadd)%4]))
	case op == opIshl:
		return f.binop(rop.OpShl, cst.TypeInt)
	case op == opIshr:
		return f.binop(rop.OpShr, cst.TypeInt)
	case op == opIushr:
		return f.binop(rop.OpUshr, cst.TypeInt)
	case op == opIand:
		return f.binop(rop.OpAnd, cst.TypeInt)
	case op == opIor:
		return f.binop(rop.OpOr, cst.TypeInt)
	case op == opIxor:
		return f.binop(rop.OpXor, cst.TypeInt)
	case op == opIneg || op == opLneg:
		typ := cst.TypeInt
		if op == opLneg {
			typ = cst.TypeLong
		}
		return f.unop(rop.OpNeg, typ, typ)
	case op == opI2l:
		return f.unop(rop.OpConv, cst.TypeInt, cst.TypeLong)
	case op == opL2i:
		return f.unop(rop.OpConv, cst.TypeLong, cst.TypeInt)
	case op == opIinc:
		c, _ := t.code.S1(pc + 2)
		reg, err := f.local(f.u1(), cst.TypeInt)
		if err != nil {
			return err
		}
		f.emitResult(rop.OpAdd, false, reg, cst.TypeInt, cst.Integer{Value: int32(c)}, reg) //nolint:gosec // one byte
		return nil

	case isIf(op):
		return f.branchIf(op, info, b)
	case op == opGoto || op == opGotoW:
		f.emit(rop.NewGoto(t.position(pc, false)))
		b.Successors = []int{info.targets[0]}
		b.Primary = info.targets[0]
		return nil
	case isReturn(op):
		return f.ret(op, b)
	case op == opAthrow:
		v, err := f.pop()
		if err != nil {
			return err
		}
		f.emit(&rop.Insn{Op: rop.OpThrow, Pos: t.position(pc, true), Sources: rop.RegisterSpecList{v}, Type: v.Type})
		return nil

	case op >= opGetstatic && op <= opPutfield:
		return f.field(op, f.u2())
	case op >= opInvokevirt && op <= opInvokeintf:
		return f.invoke(op, f.u2())
	case op == opNew:
		typ, err := f.classRef(f.u2())
		if err != nil {
			return err
		}
		res, err := f.push(typ)
		if err != nil {
			return err
		}
		f.emitResult(rop.OpNewInstance, true, res, typ, typ)
		return nil
	case op == opCheckcast:
		typ, err := f.classRef(f.u2())
		if err != nil {
			return err
		}
		v, err := f.pop()
		if err != nil {
			return err
		}
		res, err := f.push(typ)
		if err != nil {
			return err
		}
		f.emitResult(rop.OpCheckCast, true, res, typ, typ, v)
		return nil
	case op == opArraylength:
		v, err := f.pop()
		if err != nil {
			return err
		}
		res, err := f.push(cst.TypeInt)
		if err != nil {
			return err
		}
		f.emitResult(rop.OpArrayLength, true, res, cst.TypeInt, nil, v)
		return nil
	}
	return unsupportedf(pc, "unsupported opcode %02x", op)
}

func (f *frame) constant(typ cst.Type, c cst.Constant) error {
	res, err := f.push(typ)
	if err != nil {
		return err
	}
	f.emitResult(rop.OpConst, false, res, typ, c)
	return nil
}

func (f *frame) ldc(idx int, wide bool) error {
	c, err := f.t.pool.Get(idx)
	if err != nil {
		return malformedf(f.pc, "%v", err)
	}
	switch v := c.(type) {
	case cst.Integer, cst.Float, cst.String:
		if !wide {
			return f.constant(c.(cst.Typed).Type(), c)
		}
	case cst.Long, cst.Double:
		if wide {
			return f.constant(c.(cst.Typed).Type(), c)
		}
	case cst.Type:
		return unsupportedf(f.pc, "class literal constant %s", v)
	}
	return malformedf(f.pc, "ldc of %s constant", c.Kind())
}

func (f *frame) load(idx int, typ cst.Type) error {
	src, err := f.local(idx, typ)
	if err != nil {
		return err
	}
	dst, err := f.push(typ)
	if err != nil {
		return err
	}
	f.emit(rop.NewMoveAt(dst, src, f.t.position(f.pc, false)))
	return nil
}

func (f *frame) store(idx int, typ cst.Type) error {
	v, err := f.pop()
	if err != nil {
		return err
	}
	if v.Category() != typ.Category() {
		return malformedf(f.pc, "store of %s into %s local", v.Type, typ)
	}
	dst, err := f.local(idx, v.Type)
	if err != nil {
		return err
	}
	f.emit(rop.NewMoveAt(dst, v, f.t.position(f.pc, false)))
	return nil
}

func (f *frame) swap() error {
	top, err := f.pop()
	if err != nil {
		return err
	}
	below, err := f.pop()
	if err != nil {
		return err
	}
	if top.Category() != 1 || below.Category() != 1 {
		return malformedf(f.pc, "swap of a wide value")
	}
	pos := f.t.position(f.pc, false)
	tmp := rop.Spec(below.Reg+2, top.Type)
	f.emit(rop.NewMoveAt(tmp, top, pos))
	newTop := rop.Spec(top.Reg, below.Type)
	f.emit(rop.NewMoveAt(newTop, below, pos))
	f.emit(rop.NewMoveAt(rop.Spec(below.Reg, top.Type), tmp, pos))
	f.stack = append(f.stack, top.Type, below.Type)
	return nil
}

func (f *frame) binop(op rop.Opcode, typ cst.Type) error {
	args, err := f.popN(2)
	if err != nil {
		return err
	}
	res, err := f.push(typ)
	if err != nil {
		return err
	}
	f.emitResult(op, false, res, typ, nil, args...)
	return nil
}

func (f *frame) unop(op rop.Opcode, from, to cst.Type) error {
	v, err := f.pop()
	if err != nil {
		return err
	}
	if v.Category() != from.Category() {
		return malformedf(f.pc, "operand is %s, want %s", v.Type, from)
	}
	res, err := f.push(to)
	if err != nil {
		return err
	}
	f.emitResult(op, false, res, to, nil, v)
	return nil
}

func (f *frame) branchIf(op int, info insnInfo, b *rop.BasicBlock) error {
	var (
		kind    rop.Opcode
		operand = cst.TypeInt
		n       = 1
	)
	switch {
	case op >= opIfeq && op <= opIfle:
		kind = rop.OpIfEq + rop.Opcode(op-opIfeq)
	case op >= opIfIcmpeq && op <= opIfIcmple:
		kind = rop.OpIfEq + rop.Opcode(op-opIfIcmpeq)
		n = 2
	case op == opIfAcmpeq || op == opIfAcmpne:
		kind = rop.OpIfEq + rop.Opcode(op-opIfAcmpeq)
		operand, n = cst.TypeObject, 2
	case op == opIfnull || op == opIfnonnull:
		kind = rop.OpIfEq + rop.Opcode(op-opIfnull)
		operand = cst.TypeObject
	}
	args, err := f.popN(n)
	if err != nil {
		return err
	}
	f.emit(&rop.Insn{Op: kind, Pos: f.t.position(f.pc, false), Sources: args, Type: operand})
	next := f.pc + info.length
	b.Successors = []int{next, info.targets[0]}
	b.Primary = next
	return nil
}

func (f *frame) ret(op int, b *rop.BasicBlock) error {
	t := f.t
	f.t.usesReturnBlock = true
	b.Successors = []int{t.returnLabel()}
	b.Primary = t.returnLabel()
	pos := t.position(f.pc, true)
	if op == opReturn {
		if t.proto.Return != cst.TypeVoid {
			return malformedf(f.pc, "void return from method returning %s", t.proto.Return)
		}
		f.emit(rop.NewGoto(pos))
		return nil
	}
	v, err := f.pop()
	if err != nil {
		return err
	}
	if t.proto.Return == cst.TypeVoid || v.Category() != t.proto.Return.Category() {
		return malformedf(f.pc, "return of %s from method returning %s", v.Type, t.proto.Return)
	}
	f.emit(rop.NewMoveAt(rop.Spec(t.returnReg(), t.proto.Return), v, pos))
	f.emit(rop.NewGoto(pos))
	return nil
}

func (f *frame) classRef(idx int) (cst.Type, error) {
	c, err := f.t.pool.Get(idx)
	if err != nil {
		return cst.Type{}, malformedf(f.pc, "%v", err)
	}
	typ, ok := c.(cst.Type)
	if !ok {
		return cst.Type{}, malformedf(f.pc, "constant %04x is %s, expected class", idx, c.Kind())
	}
	return typ, nil
}

func (f *frame) field(op, idx int) error {
	c, err := f.t.pool.Get(idx)
	if err != nil {
		return malformedf(f.pc, "%v", err)
	}
	ref, ok := c.(cst.FieldRef)
	if !ok {
		return malformedf(f.pc, "constant %04x is %s, expected field", idx, c.Kind())
	}
	typ := ref.Type()
	pos := f.t.position(f.pc, true)
	switch op {
	case opGetstatic:
		res, err := f.push(typ)
		if err != nil {
			return err
		}
		f.emitResult(rop.OpGetStatic, true, res, typ, ref)
	case opPutstatic:
		v, err := f.pop()
		if err != nil {
			return err
		}
		f.emit(&rop.Insn{Op: rop.OpPutStatic, Pos: pos, Sources: rop.RegisterSpecList{v}, Constant: ref, Type: typ})
	case opGetfield:
		obj, err := f.pop()
		if err != nil {
			return err
		}
		res, err := f.push(typ)
		if err != nil {
			return err
		}
		f.emitResult(rop.OpGetField, true, res, typ, ref, obj)
	case opPutfield:
		v, err := f.pop()
		if err != nil {
			return err
		}
		obj, err := f.pop()
		if err != nil {
			return err
		}
		f.emit(&rop.Insn{Op: rop.OpPutField, Pos: pos, Sources: rop.RegisterSpecList{v, obj}, Constant: ref, Type: typ})
	}
	return nil
}

func (f *frame) invoke(op, idx int) error {
	c, err := f.t.pool.Get(idx)
	if err != nil {
		return malformedf(f.pc, "%v", err)
	}
	var (
		proto cst.Prototype
		class cst.Type
		name  string
	)
	switch ref := c.(type) {
	case cst.MethodRef:
		if op == opInvokeintf {
			return malformedf(f.pc, "invokeinterface of class method %s", ref)
		}
		proto, err = ref.Prototype()
		class, name = ref.Class, ref.NAT.Name.Value
	case cst.InterfaceMethodRef:
		if op == opInvokevirt {
			return malformedf(f.pc, "invokevirtual of interface method %s", ref)
		}
		proto, err = ref.Prototype()
		class, name = ref.Class, ref.NAT.Name.Value
	default:
		return malformedf(f.pc, "constant %04x is %s, expected method", idx, c.Kind())
	}
	if err != nil {
		return malformedf(f.pc, "%v", err)
	}

	var kind rop.Opcode
	switch op {
	case opInvokestat:
		kind = rop.OpInvokeStatic
	case opInvokevirt:
		kind = rop.OpInvokeVirtual
	case opInvokeintf:
		kind = rop.OpInvokeInterface
	case opInvokespec:
		kind = rop.OpInvokeSuper
		if name == "<init>" || class == f.t.m.Class {
			kind = rop.OpInvokeDirect
		}
	}
	n := len(proto.Params)
	if kind != rop.OpInvokeStatic {
		n++
	}
	args, err := f.popN(n)
	if err != nil {
		return err
	}
	pos := f.t.position(f.pc, true)
	f.emit(&rop.Insn{Op: kind, Pos: pos, Sources: args, Constant: c, Type: proto.Return})
	if proto.Return == cst.TypeVoid {
		return nil
	}
	res, err := f.push(proto.Return)
	if err != nil {
		return err
	}
	f.emitResult(rop.OpMoveResult, true, res, proto.Return, nil)
	return nil
}
