package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/dhamidi/jcheck/classfile"
)

// testClass assembles a class file extending java/lang/Object.
type testClass struct {
	pool    []byte
	next    uint16
	utf8s   map[string]uint16
	classes map[string]uint16
	this    uint16
	super   uint16
	methods [][]byte
}

func newTestClass(name string) *testClass {
	c := &testClass{next: 1, utf8s: map[string]uint16{}, classes: map[string]uint16{}}
	c.this = c.class(name)
	c.super = c.class(classfile.ObjectClassName)
	return c
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

func (c *testClass) entry(tag classfile.ConstantTag, payload []byte) uint16 {
	index := c.next
	c.pool = cat(c.pool, []byte{byte(tag)}, payload)
	c.next++
	return index
}

func (c *testClass) utf8(s string) uint16 {
	if i, ok := c.utf8s[s]; ok {
		return i
	}
	i := c.entry(classfile.ConstantUtf8, cat(u2(uint16(len(s))), []byte(s)))
	c.utf8s[s] = i
	return i
}

func (c *testClass) class(name string) uint16 {
	if i, ok := c.classes[name]; ok {
		return i
	}
	i := c.entry(classfile.ConstantClass, u2(c.utf8(name)))
	c.classes[name] = i
	return i
}

func (c *testClass) methodref(class, name, desc string) uint16 {
	cl := c.class(class)
	nt := c.entry(classfile.ConstantNameAndType, cat(u2(c.utf8(name)), u2(c.utf8(desc))))
	return c.entry(classfile.ConstantMethodref, cat(u2(cl), u2(nt)))
}

// method adds a method; code is nil for native methods.
func (c *testClass) method(flags classfile.AccessFlags, name, desc string, maxStack uint16, code []byte) *testClass {
	attrs := u2(0)
	if code != nil {
		body := cat(u2(maxStack), u2(4), u4(uint32(len(code))), code, u2(0), u2(0))
		attrs = cat(u2(1), u2(c.utf8(classfile.AttrCode)), u4(uint32(len(body))), body)
	}
	c.methods = append(c.methods, cat(u2(uint16(flags)), u2(c.utf8(name)), u2(c.utf8(desc)), attrs))
	return c
}

func (c *testClass) bytes() []byte {
	return cat(
		u4(classfile.Magic), u2(0), u2(classfile.Java8), u2(c.next), c.pool,
		u2(uint16(classfile.AccPublic|classfile.AccSuper)), u2(c.this), u2(c.super), u2(0),
		u2(0),
		u2(uint16(len(c.methods))), cat(c.methods...),
		u2(0),
	)
}

// returning returns class name with static int m() running code.
func returning(name string, code ...byte) *testClass {
	return newTestClass(name).method(classfile.AccPublic|classfile.AccStatic, "m", "()I", 1, code)
}

func writeClass(t *testing.T, dir string, c *testClass, name string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name)+".class")
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, c.bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}
