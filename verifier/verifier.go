// Package verifier checks method bytecode by simulating the operand stack
// with coarse value kinds.
//
// Each instruction is visited at most once. A branch explores its target
// with a copy of the current stack; a target that was already visited is
// not checked again against the new stack.
package verifier

import (
	"fmt"

	"github.com/dhamidi/jcheck/classfile"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("jcheck.verifier")

// Error is a verification failure at one instruction.
type Error struct {
	Method  string
	Offset  int
	Opcode  Opcode
	Message string
}

func (e *Error) Error() string {
	where := fmt.Sprintf("offset %d", e.Offset)
	if e.Method != "" {
		where = e.Method + " at " + where
	}
	return fmt.Sprintf("%s: %s (%s): %s", classfile.VerifyError, where, e.Opcode, e.Message)
}

func (e *Error) Unwrap() error { return classfile.ErrVerificationFailure }

type mark uint8

const (
	unreachable mark = iota
	unseen
	done
)

type methodVerifier struct {
	method   string
	code     []byte
	maxStack int
	handlers []classfile.ExceptionTableEntry
	pool     *classfile.ConstantPool
	// returnKind is 0 for void methods; checked only when known.
	returnKind  Kind
	checkReturn bool
	marks       []mark
}

// Verify checks the code of one method against pool. A nil code attribute
// belongs to an abstract or native method and always verifies.
func Verify(code *classfile.CodeAttribute, pool *classfile.ConstantPool) error {
	if code == nil {
		return nil
	}
	return newMethodVerifier("", code, pool).run()
}

// VerifyMethod checks m, a method of cf. In addition to Verify it checks
// that return instructions match the method descriptor.
func VerifyMethod(cf *classfile.ClassFile, m *classfile.MethodInfo) error {
	if m.Code == nil {
		return nil
	}
	v := newMethodVerifier(cf.ClassName()+"."+m.Name.String()+m.Descriptor.String(), m.Code, cf.ConstantPool)
	if m.Type != nil {
		v.checkReturn = true
		if m.Type.ReturnType != nil {
			v.returnKind = KindOf(m.Type.ReturnType)
		}
	}
	log.Debugf("verifying %s (%d bytes, max_stack %d)", v.method, len(v.code), v.maxStack)
	return v.run()
}

// VerifyClass verifies every method of cf and returns the first failure.
func VerifyClass(cf *classfile.ClassFile) error {
	for i := range cf.Methods {
		if err := VerifyMethod(cf, &cf.Methods[i]); err != nil {
			return err
		}
	}
	return nil
}

func newMethodVerifier(method string, code *classfile.CodeAttribute, pool *classfile.ConstantPool) *methodVerifier {
	return &methodVerifier{
		method:   method,
		code:     code.Code,
		maxStack: int(code.MaxStack),
		handlers: code.ExceptionTable,
		pool:     pool,
		marks:    make([]mark, len(code.Code)),
	}
}

func (v *methodVerifier) errorf(pc int, format string, args ...any) *Error {
	e := &Error{Method: v.method, Offset: pc, Message: fmt.Sprintf(format, args...)}
	if pc < len(v.code) {
		e.Opcode = Opcode(v.code[pc])
	}
	return e
}

func (v *methodVerifier) run() error {
	if len(v.code) == 0 {
		return v.errorf(0, "control flow falls through code end")
	}
	for pc := 0; pc < len(v.code); {
		n, err := instructionLength(v.code, pc)
		if err != nil {
			return v.errorf(pc, "%v", err)
		}
		v.marks[pc] = unseen
		pc += n
	}
	if err := v.checkHandlers(); err != nil {
		return err
	}
	return v.walk(0, NewStack(v.maxStack))
}

func (v *methodVerifier) instructionStart(pc int) bool {
	return pc >= 0 && pc < len(v.code) && v.marks[pc] != unreachable
}

func (v *methodVerifier) checkHandlers() error {
	for _, h := range v.handlers {
		start, end, handler := int(h.StartPC), int(h.EndPC), int(h.HandlerPC)
		switch {
		case !v.instructionStart(start):
			return v.errorf(0, "exception handler start %d is not an instruction", start)
		case end <= start:
			return v.errorf(0, "exception handler range [%d, %d) is empty", start, end)
		case end != len(v.code) && !v.instructionStart(end):
			return v.errorf(0, "exception handler end %d is not an instruction", end)
		case !v.instructionStart(handler):
			return v.errorf(0, "exception handler %d is not an instruction", handler)
		}
		if h.CatchType != 0 {
			if _, err := v.pool.ClassAt(h.CatchType); err != nil {
				return v.errorf(0, "invalid catch type: %v", err)
			}
		}
	}
	return nil
}

// walk runs instructions linearly from pc until it reaches one that was
// already verified or one that does not fall through.
func (v *methodVerifier) walk(pc int, stack *Stack) error {
	for {
		if pc >= len(v.code) {
			return v.errorf(len(v.code)-1, "control flow falls through code end")
		}
		switch v.marks[pc] {
		case unreachable:
			return v.errorf(pc, "jump into the middle of an instruction")
		case done:
			return nil
		}
		next, err := v.step(pc, stack)
		if err != nil {
			return err
		}
		if next < 0 {
			return nil
		}
		pc = next
	}
}

// branch explores target with a copy of stack. A target that was already
// verified is accepted whatever the incoming stack looks like.
func (v *methodVerifier) branch(from, target int, stack *Stack) error {
	if target < 0 || target >= len(v.code) {
		return v.errorf(from, "branch target %d out of range", target)
	}
	switch v.marks[target] {
	case unreachable:
		return v.errorf(from, "branch into the middle of an instruction at %d", target)
	case done:
		return nil
	}
	return v.walk(target, stack.Copy())
}

func (v *methodVerifier) exploreHandlers(pc int) error {
	for _, h := range v.handlers {
		if pc < int(h.StartPC) || pc >= int(h.EndPC) {
			continue
		}
		exception := NewStack(v.maxStack)
		exception.Push(Reference)
		if err := exception.Err(); err != nil {
			return v.errorf(pc, "exception handler %d: %v", h.HandlerPC, err)
		}
		if err := v.branch(pc, int(h.HandlerPC), exception); err != nil {
			return err
		}
	}
	return nil
}

// step verifies the instruction at pc and returns the offset of the next
// one, or -1 when control does not fall through.
func (v *methodVerifier) step(pc int, stack *Stack) (int, error) {
	v.marks[pc] = done
	if err := v.exploreHandlers(pc); err != nil {
		return 0, err
	}

	op := Opcode(v.code[pc])
	length, _ := instructionLength(v.code, pc)
	next := pc + length

	if e, ok := stackEffects[op]; ok {
		stack.Pop(e.pop...)
		stack.Push(e.push...)
		return next, v.check(pc, stack)
	}

	switch op {
	case OpNop, OpIinc, OpJsr, OpJsrW:
		// jsr does not transfer control during verification.
	case OpPop, OpPop2, OpDup, OpDupX1, OpDupX2, OpDup2, OpDup2X1, OpDup2X2, OpSwap:
		stack.shuffle(op)

	case OpLdc, OpLdcW, OpLdc2W:
		index := uint16(v.code[pc+1])
		if op != OpLdc {
			index = readU2(v.code, pc+1)
		}
		kind, err := v.loadableKind(index)
		if err != nil {
			return 0, v.errorf(pc, "%v", err)
		}
		if kind.Category2() != (op == OpLdc2W) {
			return 0, v.errorf(pc, "%s cannot load a %s constant", op, kind)
		}
		stack.Push(kind)

	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle:
		stack.Pop(Int)
		return next, v.conditional(pc, stack)
	case OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple:
		stack.Pop(Int, Int)
		return next, v.conditional(pc, stack)
	case OpIfAcmpeq, OpIfAcmpne:
		stack.Pop(Reference, Reference)
		return next, v.conditional(pc, stack)
	case OpIfnull, OpIfnonnull:
		stack.Pop(Reference)
		return next, v.conditional(pc, stack)
	case OpGoto:
		return -1, v.branch(pc, pc+readS2(v.code, pc+1), stack)
	case OpGotoW:
		return -1, v.branch(pc, pc+readS4(v.code, pc+1), stack)
	case OpRet:
		return -1, nil
	case OpTableswitch, OpLookupswitch:
		stack.Pop(Int)
		if err := v.check(pc, stack); err != nil {
			return 0, err
		}
		return -1, v.switchTargets(pc, op, stack)

	case OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn:
		kind := returnKinds[op]
		if v.checkReturn && kind != v.returnKind {
			return 0, v.errorf(pc, "%s in a method returning %s", op, v.describeReturn())
		}
		stack.Pop(kind)
		return -1, v.check(pc, stack)
	case OpReturn:
		if v.checkReturn && v.returnKind != 0 {
			return 0, v.errorf(pc, "return in a method returning %s", v.describeReturn())
		}
		return -1, nil
	case OpAthrow:
		stack.Pop(Reference)
		return -1, v.check(pc, stack)

	case OpGetstatic, OpGetfield, OpPutstatic, OpPutfield:
		if err := v.fieldAccess(pc, op, stack); err != nil {
			return 0, err
		}
	case OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface:
		if err := v.invoke(pc, op, stack); err != nil {
			return 0, err
		}
	case OpInvokedynamic:
		if err := v.invokeDynamic(pc, stack); err != nil {
			return 0, err
		}

	case OpNew, OpCheckcast, OpInstanceof, OpAnewarray:
		if _, err := v.pool.ClassAt(readU2(v.code, pc+1)); err != nil {
			return 0, v.errorf(pc, "%v", err)
		}
		switch op {
		case OpNew:
			stack.Push(Reference)
		case OpCheckcast:
			stack.Pop(Reference)
			stack.Push(Reference)
		case OpInstanceof:
			stack.Pop(Reference)
			stack.Push(Int)
		case OpAnewarray:
			stack.Pop(Int)
			stack.Push(Reference)
		}
	case OpNewarray:
		if t := v.code[pc+1]; t < 4 || t > 11 {
			return 0, v.errorf(pc, "invalid array type %d", t)
		}
		stack.Pop(Int)
		stack.Push(Reference)
	case OpMultianewarray:
		if _, err := v.pool.ClassAt(readU2(v.code, pc+1)); err != nil {
			return 0, v.errorf(pc, "%v", err)
		}
		dims := int(v.code[pc+3])
		if dims == 0 {
			return 0, v.errorf(pc, "multianewarray with zero dimensions")
		}
		for i := 0; i < dims; i++ {
			stack.Pop(Int)
		}
		stack.Push(Reference)

	case OpWide:
		inner := Opcode(v.code[pc+1])
		if inner == OpRet {
			return -1, nil
		}
		if e, ok := stackEffects[inner]; ok {
			stack.Pop(e.pop...)
			stack.Push(e.push...)
		}

	default:
		return 0, v.errorf(pc, "invalid opcode")
	}
	return next, v.check(pc, stack)
}

func (v *methodVerifier) check(pc int, stack *Stack) error {
	if err := stack.Err(); err != nil {
		return v.errorf(pc, "%v", err)
	}
	return nil
}

func (v *methodVerifier) conditional(pc int, stack *Stack) error {
	if err := v.check(pc, stack); err != nil {
		return err
	}
	return v.branch(pc, pc+readS2(v.code, pc+1), stack)
}

// switchTargets explores every case target and then the default target.
func (v *methodVerifier) switchTargets(pc int, op Opcode, stack *Stack) error {
	base := switchBase(pc)
	defaultTarget := pc + readS4(v.code, base)
	if op == OpTableswitch {
		low, high := readS4(v.code, base+4), readS4(v.code, base+8)
		for i := 0; i <= high-low; i++ {
			if err := v.branch(pc, pc+readS4(v.code, base+12+4*i), stack); err != nil {
				return err
			}
		}
	} else {
		pairs := readS4(v.code, base+4)
		for i := 0; i < pairs; i++ {
			at := base + 8 + 8*i
			if i > 0 && readS4(v.code, at) <= readS4(v.code, at-8) {
				return v.errorf(pc, "lookupswitch keys are not sorted")
			}
			if err := v.branch(pc, pc+readS4(v.code, at+4), stack); err != nil {
				return err
			}
		}
	}
	return v.branch(pc, defaultTarget, stack)
}

func (v *methodVerifier) describeReturn() string {
	if v.returnKind == 0 {
		return "void"
	}
	return v.returnKind.String()
}

// loadableKind returns the kind ldc pushes for the constant at index.
func (v *methodVerifier) loadableKind(index uint16) (Kind, error) {
	tag, err := v.pool.TagAt(index)
	if err != nil {
		return 0, err
	}
	switch tag {
	case classfile.ConstantInteger:
		return Int, nil
	case classfile.ConstantFloat:
		return Float, nil
	case classfile.ConstantLong:
		return Long, nil
	case classfile.ConstantDouble:
		return Double, nil
	case classfile.ConstantClass, classfile.ConstantString,
		classfile.ConstantMethodHandle, classfile.ConstantMethodType:
		return Reference, nil
	case classfile.ConstantDynamic:
		d, err := v.pool.DynamicAt(index)
		if err != nil {
			return 0, err
		}
		ft, err := classfile.ParseFieldDescriptor(d.Descriptor.String())
		if err != nil {
			return 0, err
		}
		return KindOf(ft), nil
	}
	return 0, fmt.Errorf("invalid constant pool load: #%d is %s", index, tag)
}

func (v *methodVerifier) fieldAccess(pc int, op Opcode, stack *Stack) error {
	ref, err := v.pool.FieldAt(readU2(v.code, pc+1))
	if err != nil {
		return v.errorf(pc, "%v", err)
	}
	ft, err := classfile.ParseFieldDescriptor(ref.Descriptor.String())
	if err != nil {
		return v.errorf(pc, "%v", err)
	}
	kind := KindOf(ft)
	switch op {
	case OpGetstatic:
		stack.Push(kind)
	case OpGetfield:
		stack.Pop(Reference)
		stack.Push(kind)
	case OpPutstatic:
		stack.Pop(kind)
	case OpPutfield:
		stack.Pop(kind, Reference)
	}
	return nil
}

func (v *methodVerifier) invoke(pc int, op Opcode, stack *Stack) error {
	index := readU2(v.code, pc+1)
	var ref classfile.MemberRef
	var err error
	switch op {
	case OpInvokevirtual:
		ref, err = v.pool.MethodAt(index)
	case OpInvokeinterface:
		ref, err = v.pool.InterfaceMethodAt(index)
	default:
		ref, err = v.pool.AnyMethodAt(index)
	}
	if err != nil {
		return v.errorf(pc, "%v", err)
	}
	switch name := ref.Name.String(); {
	case name == classfile.ClassInitMethodName:
		return v.errorf(pc, "%s cannot be invoked", name)
	case name == classfile.InitMethodName && op != OpInvokespecial:
		return v.errorf(pc, "%s must be invoked with invokespecial", name)
	}
	md, err := classfile.ParseMethodDescriptor(ref.Descriptor.String())
	if err != nil {
		return v.errorf(pc, "%v", err)
	}
	if op == OpInvokeinterface {
		if count := int(v.code[pc+3]); count != md.ArgumentSlots()+1 {
			return v.errorf(pc, "invokeinterface count %d does not match %d argument words", count, md.ArgumentSlots()+1)
		}
		if v.code[pc+4] != 0 {
			return v.errorf(pc, "invokeinterface fourth operand byte must be zero")
		}
	}
	popArguments(stack, md)
	if op != OpInvokestatic {
		stack.Pop(Reference)
	}
	if md.ReturnType != nil {
		stack.Push(KindOf(md.ReturnType))
	}
	return nil
}

func (v *methodVerifier) invokeDynamic(pc int, stack *Stack) error {
	site, err := v.pool.InvokeDynamicAt(readU2(v.code, pc+1))
	if err != nil {
		return v.errorf(pc, "%v", err)
	}
	if v.code[pc+3] != 0 || v.code[pc+4] != 0 {
		return v.errorf(pc, "invokedynamic operand bytes 3 and 4 must be zero")
	}
	md, err := classfile.ParseMethodDescriptor(site.Descriptor.String())
	if err != nil {
		return v.errorf(pc, "%v", err)
	}
	popArguments(stack, md)
	if md.ReturnType != nil {
		stack.Push(KindOf(md.ReturnType))
	}
	return nil
}

func popArguments(stack *Stack, md *classfile.MethodDescriptor) {
	for i := len(md.Parameters) - 1; i >= 0; i-- {
		stack.Pop(KindOf(&md.Parameters[i]))
	}
}
