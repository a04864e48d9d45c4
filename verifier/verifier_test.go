package verifier

import (
	"errors"
	"strings"
	"testing"

	"github.com/dhamidi/jcheck/classfile"
)

// fixture holds a parsed pool and the indices of its constants.
type fixture struct {
	pool *classfile.ConstantPool

	intConst, longConst, stringConst, utf8Const uint16
	dynamicLong, dynamicRef                     uint16
	intField, objField, longStatic              uint16
	staticMethod, virtualMethod, ifaceMethod    uint16
	initMethod, site, class                     uint16
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := newTestClass()
	f := &fixture{
		intConst:      c.integer(42),
		longConst:     c.long(7),
		stringConst:   c.stringConst("hello"),
		utf8Const:     c.utf8("plain"),
		dynamicLong:   c.dynamic("big", "J"),
		dynamicRef:    c.dynamic("obj", "Ljava/lang/Object;"),
		intField:      c.fieldref("T", "count", "I"),
		objField:      c.fieldref("T", "next", "LT;"),
		longStatic:    c.fieldref("T", "total", "J"),
		staticMethod:  c.methodref("T", "add", "(II)J"),
		virtualMethod: c.methodref("T", "name", "()Ljava/lang/String;"),
		ifaceMethod:   c.interfaceMethodref("java/lang/Runnable", "run", "()V"),
		initMethod:    c.methodref(classfile.ObjectClassName, classfile.InitMethodName, "()V"),
		site:          c.invokeDynamic("get", "(I)Ljava/lang/Runnable;"),
		class:         c.class("java/lang/String"),
	}
	f.pool = c.parse(t).ConstantPool
	return f
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name     string
		maxStack uint16
		body     []byte
		wantErr  string
	}{
		{"iconst_0 ireturn", 1, ops(OpIconst0, OpIreturn), ""},
		{"kind mismatch on return", 1, ops(OpIconst0, OpFreturn), "int on stack, required: float"},
		{"dup of a long", 4, ops(OpLconst0, OpDup), "category 2 operand for dup"},
		{"goto forward", 1, ops(OpIconst0, OpGoto, 0, 3, OpIreturn), ""},
		{"long return", 2, ops(OpLconst1, OpLreturn), ""},
		{"long exceeds max_stack", 1, ops(OpLconst1, OpLreturn), "stack overflow"},
		{"dup2 of a long", 4, ops(OpLconst0, OpDup2, OpPop2, OpLreturn), ""},
		{"swap and add", 2, ops(OpIconst0, OpIconst1, OpSwap, OpIadd, OpIreturn), ""},
		{"double add", 4, ops(OpDconst1, OpDconst1, OpDadd, OpDreturn), ""},
		{"long add of ints", 4, ops(OpIconst0, OpIconst1, OpLadd, OpLreturn), "int on stack, required: long"},
		{"dup_x1", 3, ops(OpIconst0, OpAconstNull, OpDupX1, OpPop, OpPop, OpAreturn), ""},
		{"pop of empty stack", 1, ops(OpPop, OpReturn), "stack underflow"},
		{"return of empty stack", 1, ops(OpIreturn), "stack underflow"},
		{"long shift", 3, ops(OpLconst1, OpIconst1, OpLshl, OpLreturn), ""},
		{"shift operands reversed", 3, ops(OpIconst1, OpLconst1, OpLshl, OpLreturn), "long on stack, required: int"},
		{"comparison", 4, ops(OpLconst0, OpLconst1, OpLcmp, OpIreturn), ""},
		{"conversion", 2, ops(OpIconst1, OpI2d, OpDreturn), ""},
		{"array load", 2, ops(OpAconstNull, OpIconst0, OpIaload, OpIreturn), ""},
		{"array store", 3, ops(OpAconstNull, OpIconst0, OpIconst1, OpIastore, OpReturn), ""},
		{"array store kind mismatch", 4, ops(OpAconstNull, OpIconst0, OpLconst0, OpIastore, OpReturn), "long on stack, required: int"},
		{"monitor", 1, ops(OpAconstNull, OpMonitorenter, OpReturn), ""},
		{"falls through code end", 1, ops(OpIconst0), "falls through code end"},
		{"empty code", 1, nil, "falls through code end"},
		{"breakpoint opcode", 1, ops(0xCA, OpReturn), "invalid opcode"},
		{"reserved opcode", 1, ops(0xFF), "invalid opcode"},
		{"truncated operand", 1, ops(OpBipush), "truncated bipush"},
		{"jump into an instruction", 1, ops(OpGoto, 0, 4, OpSipush, 0, 1, OpIreturn), "middle of an instruction"},
		{"branch out of range", 1, ops(OpGoto, 0x7F, 0xFF), "out of range"},
		{"backward branch to start", 1, ops(OpGoto, 0, 0), ""},
		{"conditional", 1, ops(OpIconst0, OpIfeq, 0, 5, OpIconst1, OpIreturn, OpIconst2, OpIreturn), ""},
		{"conditional target checked", 1, ops(OpIconst0, OpIfeq, 0, 5, OpIconst1, OpIreturn, OpIconst2, OpFreturn), "required: float"},
		{"conditional needs int", 1, ops(OpAconstNull, OpIfeq, 0, 3, OpReturn), "reference on stack, required: int"},
		{"ifnull", 1, ops(OpAconstNull, OpIfnull, 0, 3, OpReturn), ""},
		{"if_acmpeq", 2, ops(OpAconstNull, OpAconstNull, OpIfAcmpeq, 0, 3, OpReturn), ""},
		{"jsr does not transfer control", 1, ops(OpJsr, 0, 3, OpReturn), ""},
		{"ret ends the run", 1, ops(OpRet, 0), ""},
		{"wide load", 1, ops(OpWide, OpIload, 1, 0, OpIreturn), ""},
		{"wide iinc", 1, ops(OpWide, OpIinc, 0, 1, 0, 1, OpReturn), ""},
		{"wide of an arithmetic opcode", 1, ops(OpWide, OpIadd, OpReturn), "cannot be modified by wide"},
		{"newarray", 1, ops(OpIconst1, OpNewarray, 10, OpAreturn), ""},
		{"newarray of an invalid type", 1, ops(OpIconst1, OpNewarray, 3, OpAreturn), "invalid array type 3"},
		{"arraylength", 1, ops(OpAconstNull, OpArraylength, OpIreturn), ""},
		{"athrow", 1, ops(OpAconstNull, OpAthrow), ""},
		{"athrow of an int", 1, ops(OpIconst0, OpAthrow), "int on stack, required: reference"},

		{"ldc int", 1, ops(OpLdc, f.intConst, OpIreturn), ""},
		{"ldc string", 1, ops(OpLdc, f.stringConst, OpAreturn), ""},
		{"ldc_w int", 1, ops(OpLdcW, be2(f.intConst), OpIreturn), ""},
		{"ldc of a long", 2, ops(OpLdcW, be2(f.longConst), OpLreturn), "ldc_w cannot load a long constant"},
		{"ldc2_w long", 2, ops(OpLdc2W, be2(f.longConst), OpLreturn), ""},
		{"ldc2_w of an int", 2, ops(OpLdc2W, be2(f.intConst), OpIreturn), "ldc2_w cannot load a int constant"},
		{"ldc of a Utf8", 1, ops(OpLdcW, be2(f.utf8Const), OpAreturn), "invalid constant pool load"},
		{"ldc2_w dynamic long", 2, ops(OpLdc2W, be2(f.dynamicLong), OpLreturn), ""},
		{"ldc_w dynamic reference", 1, ops(OpLdcW, be2(f.dynamicRef), OpAreturn), ""},
		{"ldc index out of range", 1, ops(OpLdcW, 0x7F, 0xFF, OpAreturn), "out of range"},

		{"getstatic", 2, ops(OpGetstatic, be2(f.longStatic), OpLreturn), ""},
		{"getfield", 1, ops(OpAconstNull, OpGetfield, be2(f.intField), OpIreturn), ""},
		{"getfield without receiver", 1, ops(OpGetfield, be2(f.intField), OpIreturn), "stack underflow"},
		{"putfield", 2, ops(OpAconstNull, OpIconst0, OpPutfield, be2(f.intField), OpReturn), ""},
		{"putfield kind mismatch", 2, ops(OpAconstNull, OpIconst0, OpPutfield, be2(f.objField), OpReturn), "int on stack, required: reference"},
		{"putstatic", 2, ops(OpLconst0, OpPutstatic, be2(f.longStatic), OpReturn), ""},
		{"field access through a methodref", 1, ops(OpGetstatic, be2(f.staticMethod), OpReturn), "expected Fieldref"},

		{"invokestatic", 2, ops(OpIconst0, OpIconst1, OpInvokestatic, be2(f.staticMethod), OpLreturn), ""},
		{"invokestatic argument mismatch", 2, ops(OpIconst0, OpFconst0, OpInvokestatic, be2(f.staticMethod), OpLreturn), "float on stack, required: int"},
		{"invokevirtual", 1, ops(OpAconstNull, OpInvokevirtual, be2(f.virtualMethod), OpAreturn), ""},
		{"invokevirtual without receiver", 1, ops(OpInvokevirtual, be2(f.virtualMethod), OpAreturn), "stack underflow"},
		{"invokevirtual of an interface method", 1, ops(OpAconstNull, OpInvokevirtual, be2(f.ifaceMethod), OpReturn), "expected Methodref"},
		{"invokeinterface", 1, ops(OpAconstNull, OpInvokeinterface, be2(f.ifaceMethod), 1, 0, OpReturn), ""},
		{"invokeinterface count mismatch", 1, ops(OpAconstNull, OpInvokeinterface, be2(f.ifaceMethod), 2, 0, OpReturn), "count 2"},
		{"invokeinterface of a class method", 1, ops(OpAconstNull, OpInvokeinterface, be2(f.virtualMethod), 1, 0, OpReturn), "expected InterfaceMethodref"},
		{"invokespecial constructor", 1, ops(OpAconstNull, OpInvokespecial, be2(f.initMethod), OpReturn), ""},
		{"invokevirtual constructor", 1, ops(OpAconstNull, OpInvokevirtual, be2(f.initMethod), OpReturn), "must be invoked with invokespecial"},
		{"invokedynamic", 1, ops(OpIconst0, OpInvokedynamic, be2(f.site), 0, 0, OpAreturn), ""},
		{"invokedynamic nonzero operand", 1, ops(OpIconst0, OpInvokedynamic, be2(f.site), 1, 0, OpAreturn), "must be zero"},
		{"invokedynamic of a methodref", 1, ops(OpIconst0, OpInvokedynamic, be2(f.staticMethod), 0, 0, OpAreturn), "expected InvokeDynamic"},

		{"new", 1, ops(OpNew, be2(f.class), OpAreturn), ""},
		{"new of a string constant", 1, ops(OpNew, be2(f.stringConst), OpAreturn), "expected Class"},
		{"checkcast", 1, ops(OpAconstNull, OpCheckcast, be2(f.class), OpAreturn), ""},
		{"instanceof", 1, ops(OpAconstNull, OpInstanceof, be2(f.class), OpIreturn), ""},
		{"anewarray", 1, ops(OpIconst1, OpAnewarray, be2(f.class), OpAreturn), ""},
		{"anewarray of an integer constant", 1, ops(OpIconst1, OpAnewarray, be2(f.intConst), OpAreturn), "expected Class"},
		{"multianewarray", 2, ops(OpIconst1, OpIconst2, OpMultianewarray, be2(f.class), 2, OpAreturn), ""},
		{"multianewarray without dimensions", 2, ops(OpMultianewarray, be2(f.class), 0, OpAreturn), "zero dimensions"},
		{"multianewarray missing a dimension", 2, ops(OpIconst1, OpMultianewarray, be2(f.class), 2, OpAreturn), "stack underflow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(code(tt.maxStack, tt.body), f.pool)
			checkError(t, err, tt.wantErr)
		})
	}
}

func checkError(t *testing.T, err error, want string) {
	t.Helper()
	if want == "" {
		if err != nil {
			t.Fatalf("Verify() = %v, want nil", err)
		}
		return
	}
	if err == nil {
		t.Fatalf("Verify() = nil, want error containing %q", want)
	}
	if !strings.Contains(err.Error(), want) {
		t.Errorf("Verify() = %v, want error containing %q", err, want)
	}
	if !errors.Is(err, classfile.ErrVerificationFailure) {
		t.Errorf("Expected %v to match ErrVerificationFailure", err)
	}
}

func TestVerifySwitches(t *testing.T) {
	f := newFixture(t)
	s4 := func(v int32) []byte { return be4(uint32(v)) }

	// tableswitch at offset 1: operands start at 4, cases at 16 and 20,
	// code resumes at 24.
	table := func(case1 Opcode) []byte {
		return ops(OpIconst0, OpTableswitch, 0, 0,
			s4(23), s4(0), s4(1), s4(23), s4(25),
			OpIconst1, OpIreturn, OpIconst2, case1)
	}
	// lookupswitch at offset 1 with one pair: code resumes at 20.
	lookup := func(keys ...int32) []byte {
		body := ops(OpIconst0, OpLookupswitch, 0, 0, s4(19), s4(int32(len(keys))))
		for _, k := range keys {
			body = ops(body, s4(k), s4(19))
		}
		return ops(body, OpIconst1, OpIreturn)
	}

	tests := []struct {
		name    string
		body    []byte
		wantErr string
	}{
		{"tableswitch", table(OpIreturn), ""},
		{"tableswitch explores the last case", table(OpFreturn), "required: float"},
		{"tableswitch low above high", ops(OpIconst0, OpTableswitch, 0, 0, s4(0), s4(2), s4(1)), "greater than high"},
		{"lookupswitch", lookup(5), ""},
		{"lookupswitch without pairs", ops(OpIconst0, OpLookupswitch, 0, 0, s4(11), s4(0), OpIconst1, OpIreturn), ""},
		{"lookupswitch needs an int", ops(OpAconstNull, OpLookupswitch, 0, 0, s4(11), s4(0), OpIconst1, OpIreturn), "required: int"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkError(t, Verify(code(1, tt.body), f.pool), tt.wantErr)
		})
	}

	t.Run("lookupswitch keys not sorted", func(t *testing.T) {
		// two pairs: code resumes at 28
		body := ops(OpIconst0, OpLookupswitch, 0, 0, s4(27), s4(2), s4(5), s4(27), s4(3), s4(27), OpIconst1, OpIreturn)
		checkError(t, Verify(code(1, body), f.pool), "not sorted")
	})
}

func TestVerifyExceptionHandlers(t *testing.T) {
	f := newFixture(t)
	body := ops(OpAconstNull, OpAthrow, OpAreturn)
	handler := func(start, end, pc uint16) classfile.ExceptionTableEntry {
		return classfile.ExceptionTableEntry{StartPC: start, EndPC: end, HandlerPC: pc}
	}

	t.Run("handler receives the exception", func(t *testing.T) {
		checkError(t, Verify(code(1, body, handler(0, 2, 2)), f.pool), "")
	})
	t.Run("handler code is verified", func(t *testing.T) {
		bad := ops(OpAconstNull, OpAthrow, OpIreturn)
		checkError(t, Verify(code(1, bad, handler(0, 2, 2)), f.pool), "reference on stack, required: int")
	})
	t.Run("handler needs a stack word", func(t *testing.T) {
		checkError(t, Verify(code(0, ops(OpReturn, OpAreturn), handler(0, 1, 1)), f.pool), "stack overflow")
	})
	t.Run("catch type must be a class", func(t *testing.T) {
		h := handler(0, 2, 2)
		h.CatchType = f.intConst
		checkError(t, Verify(code(1, body, h), f.pool), "invalid catch type")
	})
	t.Run("catch type class", func(t *testing.T) {
		h := handler(0, 2, 2)
		h.CatchType = f.class
		checkError(t, Verify(code(1, body, h), f.pool), "")
	})

	bounds := []struct {
		name    string
		entry   classfile.ExceptionTableEntry
		wantErr string
	}{
		{"empty range", handler(1, 1, 2), "is empty"},
		{"handler past the end", handler(0, 2, 9), "is not an instruction"},
		{"end at an instruction", handler(0, 2, 2), ""},
		{"end at code length", handler(0, 3, 2), ""},
	}
	for _, tt := range bounds {
		t.Run(tt.name, func(t *testing.T) {
			checkError(t, Verify(code(1, body, tt.entry), f.pool), tt.wantErr)
		})
	}
	t.Run("start inside an instruction", func(t *testing.T) {
		withOperand := ops(OpBipush, 1, OpIreturn)
		checkError(t, Verify(code(1, withOperand, handler(1, 3, 2)), f.pool), "is not an instruction")
	})
}

// A join point is verified against the first stack that reaches it. Here
// the branch reaches offset 8 with an empty stack and the fall-through
// path with one int; the JVM's stack map verifier rejects this method.
func TestVerifyAcceptsInconsistentStacksAtJoin(t *testing.T) {
	f := newFixture(t)
	body := ops(OpIconst0, OpIfeq, 0, 7, OpIconst1, OpGoto, 0, 3, OpReturn)
	if err := Verify(code(1, body), f.pool); err != nil {
		t.Fatalf("Verify() = %v, want nil: visited targets are not re-checked", err)
	}
}

func TestVerifyNilCode(t *testing.T) {
	if err := Verify(nil, nil); err != nil {
		t.Errorf("Verify(nil) = %v, want nil", err)
	}
}

func TestVerifyError(t *testing.T) {
	f := newFixture(t)
	err := Verify(code(1, ops(OpNop, OpIconst0, OpFreturn)), f.pool)

	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("Expected *Error, got %T: %v", err, err)
	}
	if verr.Offset != 2 {
		t.Errorf("Offset = %d, want 2", verr.Offset)
	}
	if verr.Opcode != OpFreturn {
		t.Errorf("Opcode = %s, want freturn", verr.Opcode)
	}
	if name := classfile.JavaErrorName(err); name != classfile.VerifyError {
		t.Errorf("JavaErrorName() = %q, want %q", name, classfile.VerifyError)
	}
	if !strings.HasPrefix(err.Error(), "VerifyError: offset 2 (freturn)") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestVerifyMethod(t *testing.T) {
	c := newTestClass()
	ctor := c.methodref(classfile.ObjectClassName, classfile.InitMethodName, "()V")
	c.method(classfile.AccPublic, classfile.InitMethodName, "()V", 1, ops(OpAload0, OpInvokespecial, be2(ctor), OpReturn))
	c.method(classfile.AccPublic|classfile.AccStatic, "count", "()I", 1, ops(OpIconst0, OpIreturn))
	c.method(classfile.AccPublic|classfile.AccStatic, "flag", "()Z", 1, ops(OpIconst1, OpIreturn))
	c.method(classfile.AccPublic|classfile.AccStatic, "wrongVoid", "()I", 1, ops(OpReturn))
	c.method(classfile.AccPublic|classfile.AccStatic, "wrongKind", "()J", 2, ops(OpIconst0, OpIreturn))
	cf := c.parse(t)

	tests := []struct {
		name, desc string
		wantErr    string
	}{
		{classfile.InitMethodName, "()V", ""},
		{"count", "()I", ""},
		{"flag", "()Z", ""},
		{"wrongVoid", "()I", "return in a method returning int"},
		{"wrongKind", "()J", "ireturn in a method returning long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := cf.GetMethod(tt.name, tt.desc)
			if m == nil {
				t.Fatalf("method %s%s not found", tt.name, tt.desc)
			}
			err := VerifyMethod(cf, m)
			checkError(t, err, tt.wantErr)
			var verr *Error
			if errors.As(err, &verr) && verr.Method != "T."+tt.name+tt.desc {
				t.Errorf("Method = %q, want %q", verr.Method, "T."+tt.name+tt.desc)
			}
		})
	}

	if err := VerifyClass(cf); err == nil || !strings.Contains(err.Error(), "wrongVoid") {
		t.Errorf("VerifyClass() = %v, want the wrongVoid failure", err)
	}
}

// The class from "public class A { public A() { super(); } }".
func TestVerifyMinimalClass(t *testing.T) {
	c := newTestClass()
	ctor := c.methodref(classfile.ObjectClassName, classfile.InitMethodName, "()V")
	c.method(classfile.AccPublic, classfile.InitMethodName, "()V", 1, ops(OpAload0, OpInvokespecial, be2(ctor), OpReturn))
	cf := c.parse(t)

	if len(cf.Methods) != 1 {
		t.Fatalf("got %d methods, want 1", len(cf.Methods))
	}
	if err := VerifyClass(cf); err != nil {
		t.Errorf("VerifyClass() = %v, want nil", err)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "nop"},
		{OpIconstM1, "iconst_m1"},
		{OpInvokeinterface, "invokeinterface"},
		{OpJsrW, "jsr_w"},
		{0xCA, "opcode(0xCA)"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", uint8(tt.op), got, tt.want)
		}
	}
	for op := OpNop; op <= MaxOpcode; op++ {
		if opcodeNames[op] == "" {
			t.Errorf("opcode 0x%02X has no name", uint8(op))
		}
	}
}
