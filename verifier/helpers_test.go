package verifier

import (
	"encoding/binary"
	"testing"

	"github.com/dhamidi/jcheck/classfile"
)

// testClass assembles a class T with the constants a test needs. Methods
// added with method are parsed along with the class.
type testClass struct {
	pool      []byte
	next      uint16
	utf8s     map[string]uint16
	methods   [][]byte
	bootstrap []uint16
}

func newTestClass() *testClass {
	return &testClass{next: 1, utf8s: map[string]uint16{}}
}

func be2(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }

func be4(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

func join(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func (c *testClass) entry(tag classfile.ConstantTag, payload ...byte) uint16 {
	index := c.next
	c.pool = append(append(c.pool, byte(tag)), payload...)
	c.next++
	if tag == classfile.ConstantLong || tag == classfile.ConstantDouble {
		c.next++
	}
	return index
}

func (c *testClass) utf8(s string) uint16 {
	if i, ok := c.utf8s[s]; ok {
		return i
	}
	i := c.entry(classfile.ConstantUtf8, join(be2(uint16(len(s))), []byte(s))...)
	c.utf8s[s] = i
	return i
}

func (c *testClass) class(name string) uint16 {
	return c.entry(classfile.ConstantClass, be2(c.utf8(name))...)
}

func (c *testClass) integer(v int32) uint16 {
	return c.entry(classfile.ConstantInteger, be4(uint32(v))...)
}

func (c *testClass) long(v int64) uint16 {
	return c.entry(classfile.ConstantLong, binary.BigEndian.AppendUint64(nil, uint64(v))...)
}

func (c *testClass) stringConst(s string) uint16 {
	return c.entry(classfile.ConstantString, be2(c.utf8(s))...)
}

func (c *testClass) nameAndType(name, desc string) uint16 {
	return c.entry(classfile.ConstantNameAndType, join(be2(c.utf8(name)), be2(c.utf8(desc)))...)
}

func (c *testClass) member(tag classfile.ConstantTag, class, name, desc string) uint16 {
	cl, nt := c.class(class), c.nameAndType(name, desc)
	return c.entry(tag, join(be2(cl), be2(nt))...)
}

func (c *testClass) fieldref(class, name, desc string) uint16 {
	return c.member(classfile.ConstantFieldref, class, name, desc)
}

func (c *testClass) methodref(class, name, desc string) uint16 {
	return c.member(classfile.ConstantMethodref, class, name, desc)
}

func (c *testClass) interfaceMethodref(class, name, desc string) uint16 {
	return c.member(classfile.ConstantInterfaceMethodref, class, name, desc)
}

// bootstrapMethod registers a bootstrap method without arguments and
// returns its index in the BootstrapMethods attribute.
func (c *testClass) bootstrapMethod() uint16 {
	ref := c.methodref("T", "bsm", "()Ljava/lang/invoke/CallSite;")
	handle := c.entry(classfile.ConstantMethodHandle, join([]byte{byte(classfile.RefInvokeStatic)}, be2(ref))...)
	c.bootstrap = append(c.bootstrap, handle)
	return uint16(len(c.bootstrap) - 1)
}

func (c *testClass) invokeDynamic(name, desc string) uint16 {
	bsm := c.bootstrapMethod()
	return c.entry(classfile.ConstantInvokeDynamic, join(be2(bsm), be2(c.nameAndType(name, desc)))...)
}

func (c *testClass) dynamic(name, desc string) uint16 {
	bsm := c.bootstrapMethod()
	return c.entry(classfile.ConstantDynamic, join(be2(bsm), be2(c.nameAndType(name, desc)))...)
}

func (c *testClass) method(flags classfile.AccessFlags, name, desc string, maxStack uint16, code []byte) {
	body := join(be2(maxStack), be2(16), be4(uint32(len(code))), code, be2(0), be2(0))
	codeAttr := join(be2(c.utf8(classfile.AttrCode)), be4(uint32(len(body))), body)
	c.methods = append(c.methods, join(be2(uint16(flags)), be2(c.utf8(name)), be2(c.utf8(desc)), be2(1), codeAttr))
}

func (c *testClass) bytes() []byte {
	this, super := c.class("T"), c.class(classfile.ObjectClassName)
	var attrs [][]byte
	if len(c.bootstrap) > 0 {
		body := be2(uint16(len(c.bootstrap)))
		for _, h := range c.bootstrap {
			body = join(body, be2(h), be2(0))
		}
		attrs = append(attrs, join(be2(c.utf8(classfile.AttrBootstrapMethods)), be4(uint32(len(body))), body))
	}
	out := join(be4(classfile.Magic), be2(0), be2(classfile.Java8), be2(c.next), c.pool)
	out = join(out, be2(uint16(classfile.AccPublic|classfile.AccSuper)), be2(this), be2(super), be2(0), be2(0))
	out = join(out, be2(uint16(len(c.methods))), join(c.methods...))
	return join(out, be2(uint16(len(attrs))), join(attrs...))
}

func (c *testClass) parse(t *testing.T) *classfile.ClassFile {
	t.Helper()
	cf, err := classfile.NewParser(classfile.NewSymbolTable(), classfile.NewStringTable()).Parse(c.bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return cf
}

// ops concatenates opcodes and operand bytes into a method body. A uint16
// is a one-byte constant pool index for ldc.
func ops(parts ...any) []byte {
	var out []byte
	for _, p := range parts {
		switch p := p.(type) {
		case Opcode:
			out = append(out, byte(p))
		case byte:
			out = append(out, p)
		case []byte:
			out = append(out, p...)
		case int:
			out = append(out, byte(p))
		case uint16:
			out = append(out, byte(p))
		}
	}
	return out
}

func code(maxStack uint16, body []byte, handlers ...classfile.ExceptionTableEntry) *classfile.CodeAttribute {
	return &classfile.CodeAttribute{MaxStack: maxStack, MaxLocals: 4, Code: body, ExceptionTable: handlers}
}
