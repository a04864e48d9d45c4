package classfile

import (
	"encoding/binary"
	"math"
)

// classBuilder assembles class files in memory for tests. Pool indices are
// handed out in insertion order; Utf8 and Class entries are shared.
type classBuilder struct {
	magic        uint32
	minor, major uint16
	poolBytes    []byte
	next         uint16
	utf8s        map[string]uint16
	classes      map[string]uint16

	flags      AccessFlags
	thisClass  uint16
	superClass uint16
	interfaces []uint16
	fields     [][]byte
	methods    [][]byte
	attributes [][]byte
}

func newClassBuilder(name, super string) *classBuilder {
	b := &classBuilder{
		magic:   Magic,
		major:   Java8,
		next:    1,
		utf8s:   map[string]uint16{},
		classes: map[string]uint16{},
		flags:   AccPublic | AccSuper,
	}
	b.thisClass = b.class(name)
	if super != "" {
		b.superClass = b.class(super)
	}
	return b
}

// newInterfaceBuilder starts an interface extending java/lang/Object.
func newInterfaceBuilder(name string) *classBuilder {
	b := newClassBuilder(name, ObjectClassName)
	b.flags = AccPublic | AccInterface | AccAbstract
	return b
}

func u2(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }

func u4(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// entry appends a raw constant and returns its index.
func (b *classBuilder) entry(tag ConstantTag, payload ...byte) uint16 {
	index := b.next
	b.poolBytes = append(b.poolBytes, byte(tag))
	b.poolBytes = append(b.poolBytes, payload...)
	b.next++
	if tag == ConstantLong || tag == ConstantDouble {
		b.next++
	}
	return index
}

func (b *classBuilder) utf8(s string) uint16 {
	if i, ok := b.utf8s[s]; ok {
		return i
	}
	i := b.entry(ConstantUtf8, cat(u2(uint16(len(s))), []byte(s))...)
	b.utf8s[s] = i
	return i
}

func (b *classBuilder) class(name string) uint16 {
	if i, ok := b.classes[name]; ok {
		return i
	}
	n := b.utf8(name)
	i := b.entry(ConstantClass, u2(n)...)
	b.classes[name] = i
	return i
}

func (b *classBuilder) integer(v int32) uint16 {
	return b.entry(ConstantInteger, u4(uint32(v))...)
}

func (b *classBuilder) long(v int64) uint16 {
	return b.entry(ConstantLong, binary.BigEndian.AppendUint64(nil, uint64(v))...)
}

func (b *classBuilder) double(v float64) uint16 {
	return b.entry(ConstantDouble, binary.BigEndian.AppendUint64(nil, math.Float64bits(v))...)
}

func (b *classBuilder) stringConst(s string) uint16 {
	return b.entry(ConstantString, u2(b.utf8(s))...)
}

func (b *classBuilder) nameAndType(name, desc string) uint16 {
	n, d := b.utf8(name), b.utf8(desc)
	return b.entry(ConstantNameAndType, cat(u2(n), u2(d))...)
}

func (b *classBuilder) memberRef(tag ConstantTag, class, name, desc string) uint16 {
	c, nt := b.class(class), b.nameAndType(name, desc)
	return b.entry(tag, cat(u2(c), u2(nt))...)
}

func (b *classBuilder) fieldref(class, name, desc string) uint16 {
	return b.memberRef(ConstantFieldref, class, name, desc)
}

func (b *classBuilder) methodref(class, name, desc string) uint16 {
	return b.memberRef(ConstantMethodref, class, name, desc)
}

func (b *classBuilder) interfaceMethodref(class, name, desc string) uint16 {
	return b.memberRef(ConstantInterfaceMethodref, class, name, desc)
}

func (b *classBuilder) methodHandle(kind MethodHandleKind, ref uint16) uint16 {
	return b.entry(ConstantMethodHandle, cat([]byte{byte(kind)}, u2(ref))...)
}

func (b *classBuilder) methodType(desc string) uint16 {
	return b.entry(ConstantMethodType, u2(b.utf8(desc))...)
}

func (b *classBuilder) invokeDynamic(bootstrap uint16, name, desc string) uint16 {
	nt := b.nameAndType(name, desc)
	return b.entry(ConstantInvokeDynamic, cat(u2(bootstrap), u2(nt))...)
}

// attr encodes an attribute whose declared length matches body.
func (b *classBuilder) attr(name string, body ...[]byte) []byte {
	payload := cat(body...)
	return cat(u2(b.utf8(name)), u4(uint32(len(payload))), payload)
}

// attrWithLength encodes an attribute that declares length regardless of
// the size of body.
func (b *classBuilder) attrWithLength(name string, length uint32, body []byte) []byte {
	return cat(u2(b.utf8(name)), u4(length), body)
}

func attributeTable(attrs [][]byte) []byte {
	return cat(u2(uint16(len(attrs))), cat(attrs...))
}

// code encodes a Code attribute without exception handlers.
func (b *classBuilder) code(maxStack, maxLocals uint16, code []byte, attrs ...[]byte) []byte {
	return b.codeWithHandlers(maxStack, maxLocals, code, nil, attrs...)
}

func (b *classBuilder) codeWithHandlers(maxStack, maxLocals uint16, code []byte, handlers []ExceptionTableEntry, attrs ...[]byte) []byte {
	var table []byte
	for _, h := range handlers {
		table = cat(table, u2(h.StartPC), u2(h.EndPC), u2(h.HandlerPC), u2(h.CatchType))
	}
	return b.attr(AttrCode,
		u2(maxStack), u2(maxLocals),
		u4(uint32(len(code))), code,
		u2(uint16(len(handlers))), table,
		attributeTable(attrs))
}

func (b *classBuilder) field(flags AccessFlags, name, desc string, attrs ...[]byte) {
	b.fields = append(b.fields, cat(u2(uint16(flags)), u2(b.utf8(name)), u2(b.utf8(desc)), attributeTable(attrs)))
}

func (b *classBuilder) method(flags AccessFlags, name, desc string, attrs ...[]byte) {
	b.methods = append(b.methods, cat(u2(uint16(flags)), u2(b.utf8(name)), u2(b.utf8(desc)), attributeTable(attrs)))
}

func (b *classBuilder) classAttr(attr []byte) {
	b.attributes = append(b.attributes, attr)
}

// defaultConstructor adds <init>()V calling the super constructor.
func (b *classBuilder) defaultConstructor(super string) {
	ref := b.methodref(super, InitMethodName, "()V")
	body := cat([]byte{0x2a, 0xb7}, u2(ref), []byte{0xb1})
	b.method(AccPublic, InitMethodName, "()V", b.code(1, 1, body))
}

func (b *classBuilder) bytes() []byte {
	out := cat(u4(b.magic), u2(b.minor), u2(b.major), u2(b.next), b.poolBytes)
	out = cat(out, u2(uint16(b.flags)), u2(b.thisClass), u2(b.superClass))
	out = cat(out, u2(uint16(len(b.interfaces))))
	for _, i := range b.interfaces {
		out = cat(out, u2(i))
	}
	out = cat(out, u2(uint16(len(b.fields))), cat(b.fields...))
	out = cat(out, u2(uint16(len(b.methods))), cat(b.methods...))
	return cat(out, attributeTable(b.attributes))
}

// minimalClass returns class A extending Object with a default constructor.
func minimalClass() *classBuilder {
	b := newClassBuilder("A", ObjectClassName)
	b.defaultConstructor(ObjectClassName)
	return b
}

func parseBytes(data []byte, opts ...Option) (*ClassFile, error) {
	return NewParser(NewSymbolTable(), NewStringTable()).Parse(data, opts...)
}
