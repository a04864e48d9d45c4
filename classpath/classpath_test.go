package classpath

import (
	"archive/zip"
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/dhamidi/jcheck/classfile"
)

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeClasses(t, dir, map[string]*testClass{
		"p/A": newTestClass("p/A", classfile.ObjectClassName),
		"p/I": newTestInterface("p/I"),
		"p/B": newTestClass("p/B", "p/A").implements("p/I"),
	})
	cp := openPath(t, dir)

	b, err := cp.Load("p/B")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := b.SuperClass().Name().String(); got != "p/A" {
		t.Errorf("super = %s, want p/A", got)
	}
	ifaces := b.Interfaces()
	if len(ifaces) != 1 || ifaces[0].Name().String() != "p/I" {
		t.Errorf("Interfaces() = %v, want [p/I]", ifaces)
	}
	if b.Source != dir {
		t.Errorf("Source = %s, want %s", b.Source, dir)
	}
	object := b.SuperClass().SuperClass()
	if object == nil || object.Name().String() != classfile.ObjectClassName {
		t.Fatalf("Expected p/A to extend the builtin java/lang/Object, got %v", object)
	}
	if object.SuperClass() != nil {
		t.Errorf("java/lang/Object has super class %v", object.SuperClass())
	}

	again, err := cp.Load("p/B")
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if again != b {
		t.Error("Expected the same *Class for a second load")
	}
}

func TestLoadFromJar(t *testing.T) {
	dir := t.TempDir()
	jar := writeJar(t, dir, "lib.jar", map[string]*testClass{
		"lib/Util": newTestClass("lib/Util", classfile.ObjectClassName).
			method(classfile.AccPublic|classfile.AccStatic|classfile.AccNative, "run", "()V"),
	})
	cp := openPath(t, jar)

	c, err := cp.Load("lib/Util")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	symbols := cp.Parser().Symbols()
	if c.DeclaredMethod(symbols.InternString("run"), symbols.InternString("()V")) == nil {
		t.Error("Expected lib/Util to declare run()V")
	}
	if c.File == nil || c.File.ClassName() != "lib/Util" {
		t.Errorf("File = %v, want the parsed lib/Util", c.File)
	}
}

func TestLoadSearchesEntriesInOrder(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeClasses(t, first, map[string]*testClass{
		"p/A": newTestClass("p/A", classfile.ObjectClassName).field(classfile.AccPublic, "first", "I"),
	})
	writeClasses(t, second, map[string]*testClass{
		"p/A": newTestClass("p/A", classfile.ObjectClassName).field(classfile.AccPublic, "second", "I"),
	})
	cp := openPath(t, first, second)

	c, err := cp.Load("p/A")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Source != first {
		t.Errorf("Source = %s, want %s", c.Source, first)
	}
}

func TestLoadErrors(t *testing.T) {
	final := newTestClass("p/Final", classfile.ObjectClassName)
	final.flags |= classfile.AccFinal
	classes := map[string]*testClass{
		"p/Loop1":     newTestClass("p/Loop1", "p/Loop2"),
		"p/Loop2":     newTestClass("p/Loop2", "p/Loop1"),
		"p/I":         newTestInterface("p/I"),
		"p/A":         newTestClass("p/A", classfile.ObjectClassName),
		"p/ExtendsI":  newTestClass("p/ExtendsI", "p/I"),
		"p/ImplA":     newTestClass("p/ImplA", classfile.ObjectClassName).implements("p/A"),
		"p/Final":     final,
		"p/SubFinal":  newTestClass("p/SubFinal", "p/Final"),
		"p/Orphan":    newTestClass("p/Orphan", "p/Missing"),
		"p/WrongName": newTestClass("p/Other", classfile.ObjectClassName),
	}
	dir := t.TempDir()
	writeClasses(t, dir, classes)

	tests := []struct {
		name      string
		class     string
		javaError string
		message   string
	}{
		{"missing", "p/Missing", classfile.NoClassDefFoundError, "p/Missing"},
		{"missing super", "p/Orphan", classfile.NoClassDefFoundError, "p/Missing"},
		{"circular", "p/Loop1", classfile.ClassCircularityError, "p/Loop1"},
		{"interface as super", "p/ExtendsI", classfile.IncompatibleClassChangeError, "has interface p/I as super class"},
		{"class as interface", "p/ImplA", classfile.IncompatibleClassChangeError, "cannot implement class p/A"},
		{"final super", "p/SubFinal", classfile.VerifyError, "cannot inherit from final class p/Final"},
		{"wrong name", "p/WrongName", classfile.NoClassDefFoundError, "wrong name: p/Other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := openPath(t, dir)
			_, err := cp.Load(tt.class)
			if err == nil {
				t.Fatalf("Expected loading %s to fail", tt.class)
			}
			if got := classfile.JavaErrorName(err); got != tt.javaError {
				t.Errorf("JavaErrorName() = %q, want %q (%v)", got, tt.javaError, err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error = %q, want it to contain %q", err, tt.message)
			}
		})
	}
}

func TestArrayClasses(t *testing.T) {
	hidden := newTestClass("p/Hidden", classfile.ObjectClassName)
	hidden.flags = classfile.AccSuper
	dir := t.TempDir()
	writeClasses(t, dir, map[string]*testClass{
		"p/A":      newTestClass("p/A", classfile.ObjectClassName),
		"p/Hidden": hidden,
	})
	cp := openPath(t, dir)
	symbols := cp.Parser().Symbols()

	ints, err := cp.Load("[I")
	if err != nil {
		t.Fatalf("Load([I) failed: %v", err)
	}
	if !ints.Flags().IsPublic() || !ints.Flags().IsFinal() || ints.Element != nil {
		t.Errorf("[I: flags %v, element %v", ints.Flags(), ints.Element)
	}
	if got := ints.SuperClass().Name().String(); got != classfile.ObjectClassName {
		t.Errorf("[I super = %s, want %s", got, classfile.ObjectClassName)
	}

	as, err := cp.Load("[[Lp/A;")
	if err != nil {
		t.Fatalf("Load([[Lp/A;) failed: %v", err)
	}
	if as.Element == nil || as.Element.Name().String() != "p/A" {
		t.Errorf("element = %v, want p/A", as.Element)
	}

	accessing, err := cp.Load("p/A")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cp.LoadClass(symbols.InternString("[Lp/Hidden;"), accessing); err != nil {
		t.Errorf("same package array access failed: %v", err)
	}

	other := newTestClass("q/Other", classfile.ObjectClassName)
	cf, err := cp.Parser().Parse(other.bytes())
	if err != nil {
		t.Fatal(err)
	}
	q, err := cp.Define(cf, "test")
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	_, err = cp.LoadClass(symbols.InternString("[Lp/Hidden;"), q)
	if classfile.JavaErrorName(err) != classfile.IllegalAccessError {
		t.Errorf("LoadClass from another package = %v, want IllegalAccessError", err)
	}
}

func TestRuntimePackagesAndAssignability(t *testing.T) {
	dir := t.TempDir()
	writeClasses(t, dir, map[string]*testClass{
		"p/A": newTestClass("p/A", classfile.ObjectClassName),
		"p/I": newTestInterface("p/I"),
		"p/B": newTestClass("p/B", "p/A").implements("p/I"),
		"q/C": newTestClass("q/C", classfile.ObjectClassName),
	})
	cp := openPath(t, dir)
	load := func(name string) *Class {
		c, err := cp.Load(name)
		if err != nil {
			t.Fatalf("Load(%s) failed: %v", name, err)
		}
		return c
	}
	a, b, i, c := load("p/A"), load("p/B"), load("p/I"), load("q/C")
	object := load(classfile.ObjectClassName)

	if !cp.SameRuntimePackage(a, b) {
		t.Error("Expected p/A and p/B to share a runtime package")
	}
	if cp.SameRuntimePackage(a, c) {
		t.Error("Expected p/A and q/C to be in different runtime packages")
	}
	tests := []struct {
		to, from *Class
		want     bool
	}{
		{a, b, true},
		{i, b, true},
		{b, a, false},
		{object, i, true},
		{object, c, true},
		{a, c, false},
	}
	for _, tt := range tests {
		if got := cp.IsAssignableFrom(tt.to, tt.from); got != tt.want {
			t.Errorf("IsAssignableFrom(%s, %s) = %v, want %v", tt.to, tt.from, got, tt.want)
		}
	}
}

func TestResolveThroughClassPath(t *testing.T) {
	dir := t.TempDir()
	writeClasses(t, dir, map[string]*testClass{
		"lib/Util": newTestClass("lib/Util", classfile.ObjectClassName).
			method(classfile.AccPublic|classfile.AccStatic|classfile.AccNative, "run", "()V").
			field(0, "count", "I"),
		"lib/Base": newTestClass("lib/Base", classfile.ObjectClassName).
			field(classfile.AccProtected, "shared", "J"),
	})
	cp := openPath(t, dir)

	main := newTestClass("app/Main", "lib/Base")
	run := main.ref(classfile.ConstantMethodref, "lib/Util", "run", "()V")
	count := main.ref(classfile.ConstantFieldref, "lib/Util", "count", "I")
	shared := main.ref(classfile.ConstantFieldref, "app/Main", "shared", "J")
	hash := main.ref(classfile.ConstantMethodref, classfile.ObjectClassName, "hashCode", "()I")
	asInterface := main.ref(classfile.ConstantInterfaceMethodref, "lib/Util", "run", "()V")
	missing := main.ref(classfile.ConstantMethodref, "lib/Util", "gone", "()V")
	cf, err := cp.Parser().Parse(main.bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	accessing, err := cp.Define(cf, "test")
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}

	tests := []struct {
		name      string
		index     uint16
		owner     string
		javaError string
	}{
		{"public static method", run, "lib/Util", ""},
		{"inherited protected field", shared, "lib/Base", ""},
		{"builtin object method", hash, classfile.ObjectClassName, ""},
		{"package private field", count, "", classfile.IllegalAccessError},
		{"class through interface ref", asInterface, "", classfile.IncompatibleClassChangeError},
		{"missing method", missing, "", classfile.NoSuchMethodError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			member, err := cf.ConstantPool.ResolveMember(tt.index, accessing, cp)
			if tt.javaError != "" {
				if got := classfile.JavaErrorName(err); got != tt.javaError {
					t.Fatalf("ResolveMember() error = %v, want %s", err, tt.javaError)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveMember failed: %v", err)
			}
			if got := member.DeclaringClass().Name().String(); got != tt.owner {
				t.Errorf("declaring class = %s, want %s", got, tt.owner)
			}
		})
	}
}

func TestLinkMethodType(t *testing.T) {
	dir := t.TempDir()
	writeClasses(t, dir, map[string]*testClass{
		"p/A": newTestClass("p/A", classfile.ObjectClassName),
	})
	cp := openPath(t, dir)
	symbols := cp.Parser().Symbols()

	v, err := cp.LinkMethodType(symbols.InternString("(Lp/A;[I[Lp/A;)V"), nil)
	if err != nil {
		t.Fatalf("LinkMethodType failed: %v", err)
	}
	mt, ok := v.(*MethodType)
	if !ok || len(mt.Type.Parameters) != 3 {
		t.Errorf("LinkMethodType() = %#v, want a *MethodType with 3 parameters", v)
	}

	_, err = cp.LinkMethodType(symbols.InternString("()Lp/Missing;"), nil)
	if classfile.JavaErrorName(err) != classfile.NoClassDefFoundError {
		t.Errorf("LinkMethodType() error = %v, want NoClassDefFoundError", err)
	}
}

func TestWalk(t *testing.T) {
	var nested bytes.Buffer
	zw := zip.NewWriter(&nested)
	w, err := zw.Create("b/B.class")
	if err != nil {
		t.Fatal(err)
	}
	w.Write(newTestClass("b/B", classfile.ObjectClassName).bytes())
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	src := NewFSSource("mem", fstest.MapFS{
		"a/A.class":  {Data: newTestClass("a/A", classfile.ObjectClassName).bytes()},
		"lib.jar":    {Data: nested.Bytes()},
		"README.txt": {Data: []byte("not a class")},
	})
	var entries []string
	err = src.Walk(func(entry string, data []byte) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	want := []string{"mem!a/A.class", "mem!lib.jar!b/B.class"}
	if !slices.Equal(entries, want) {
		t.Errorf("entries = %v, want %v", entries, want)
	}

	stop := errors.New("stop")
	if err := src.Walk(func(string, []byte) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("Walk() = %v, want the callback error", err)
	}
}

func TestOpenRejectsUnknownEntries(t *testing.T) {
	if _, err := Open(t.TempDir() + "/missing"); err == nil {
		t.Error("Expected a missing path to fail")
	}
	if _, err := OpenPath(newParser(), []string{"classpath.go"}); err == nil {
		t.Error("Expected a .go file to be rejected")
	}
}
