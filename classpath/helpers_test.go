package classpath

import (
	"archive/zip"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/dhamidi/jcheck/classfile"
)

// testClass assembles a class file without code: methods are native or
// abstract.
type testClass struct {
	pool       []byte
	next       uint16
	utf8s      map[string]uint16
	classes    map[string]uint16
	flags      classfile.AccessFlags
	this       uint16
	super      uint16
	interfaces []uint16
	fields     [][]byte
	methods    [][]byte
}

func newTestClass(name, super string) *testClass {
	c := &testClass{
		next:    1,
		utf8s:   map[string]uint16{},
		classes: map[string]uint16{},
		flags:   classfile.AccPublic | classfile.AccSuper,
	}
	c.this = c.class(name)
	if super != "" {
		c.super = c.class(super)
	}
	return c
}

func newTestInterface(name string) *testClass {
	c := newTestClass(name, classfile.ObjectClassName)
	c.flags = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	return c
}

func u2(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }

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

func (c *testClass) ref(tag classfile.ConstantTag, class, name, desc string) uint16 {
	cl := c.class(class)
	nt := c.entry(classfile.ConstantNameAndType, cat(u2(c.utf8(name)), u2(c.utf8(desc))))
	return c.entry(tag, cat(u2(cl), u2(nt)))
}

func (c *testClass) implements(name string) *testClass {
	c.interfaces = append(c.interfaces, c.class(name))
	return c
}

func (c *testClass) field(flags classfile.AccessFlags, name, desc string) *testClass {
	c.fields = append(c.fields, cat(u2(uint16(flags)), u2(c.utf8(name)), u2(c.utf8(desc)), u2(0)))
	return c
}

func (c *testClass) method(flags classfile.AccessFlags, name, desc string) *testClass {
	c.methods = append(c.methods, cat(u2(uint16(flags)), u2(c.utf8(name)), u2(c.utf8(desc)), u2(0)))
	return c
}

func (c *testClass) bytes() []byte {
	out := cat(binary.BigEndian.AppendUint32(nil, classfile.Magic), u2(0), u2(classfile.Java8), u2(c.next), c.pool)
	out = cat(out, u2(uint16(c.flags)), u2(c.this), u2(c.super), u2(uint16(len(c.interfaces))))
	for _, i := range c.interfaces {
		out = cat(out, u2(i))
	}
	out = cat(out, u2(uint16(len(c.fields))), cat(c.fields...))
	out = cat(out, u2(uint16(len(c.methods))), cat(c.methods...))
	return cat(out, u2(0))
}

// writeClasses stores classes under dir by internal name.
func writeClasses(t *testing.T, dir string, classes map[string]*testClass) {
	t.Helper()
	for name, c := range classes {
		p := filepath.Join(dir, filepath.FromSlash(name)+".class")
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, c.bytes(), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// writeJar stores classes in a new archive and returns its path.
func writeJar(t *testing.T, dir, name string, classes map[string]*testClass) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for n, c := range classes {
		w, err := zw.Create(n + ".class")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(c.bytes()); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func newParser() *classfile.Parser {
	return classfile.NewParser(classfile.NewSymbolTable(), classfile.NewStringTable())
}

func openPath(t *testing.T, entries ...string) *ClassPath {
	t.Helper()
	cp, err := OpenPath(newParser(), entries)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { cp.Close() })
	return cp
}
