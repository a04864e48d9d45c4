// Package classpath loads classes from directories and archives for
// constant pool resolution. A ClassPath is the single defining loader of
// every class it returns, so two classes share a runtime package exactly
// when their package names are equal.
package classpath

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dhamidi/jcheck/classfile"
	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("jcheck.classpath")

// ClassPath finds, parses and links classes on demand. It implements
// classfile.Resolver. Loading is serialized; resolution of entries in
// different pools may still proceed concurrently.
type ClassPath struct {
	sources []Source
	parser  *classfile.Parser
	opts    []classfile.Option

	mu      sync.Mutex
	classes map[string]*Class
}

// New returns a class path searching sources in order. Classes are parsed
// with parser, which also provides the symbol table for member lookups.
func New(parser *classfile.Parser, sources []Source, opts ...classfile.Option) *ClassPath {
	return &ClassPath{
		sources: sources,
		parser:  parser,
		opts:    opts,
		classes: make(map[string]*Class),
	}
}

// OpenPath opens every entry of a list of paths separated by
// filepath.ListSeparator.
func OpenPath(parser *classfile.Parser, list []string, opts ...classfile.Option) (*ClassPath, error) {
	var sources []Source
	for _, p := range list {
		src, err := Open(p)
		if err != nil {
			for _, s := range sources {
				s.Close()
			}
			return nil, err
		}
		sources = append(sources, src)
	}
	return New(parser, sources, opts...), nil
}

func (cp *ClassPath) Parser() *classfile.Parser { return cp.parser }

// Close closes every source and reports all failures.
func (cp *ClassPath) Close() error {
	var result *multierror.Error
	for _, s := range cp.sources {
		if err := s.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", s, err))
		}
	}
	return result.ErrorOrNil()
}

// Load returns the class with the given internal name.
func (cp *ClassPath) Load(name string) (*Class, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.load(name, map[string]bool{})
}

// Define links an already parsed class into the class path, loading its
// super class and interfaces. A class of the same name found later on the
// class path is shadowed.
func (cp *ClassPath) Define(cf *classfile.ClassFile, source string) (*Class, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	name := cf.ClassName()
	if c, ok := cp.classes[name]; ok {
		return c, nil
	}
	return cp.link(cf, source, map[string]bool{name: true})
}

func (cp *ClassPath) load(name string, loading map[string]bool) (*Class, error) {
	if c, ok := cp.classes[name]; ok {
		return c, nil
	}
	if classfile.IsArrayName(name) {
		return cp.loadArray(name, loading)
	}
	if loading[name] {
		return nil, &classfile.LinkageError{JavaError: classfile.ClassCircularityError, Message: name}
	}
	loading[name] = true
	defer delete(loading, name)

	for _, src := range cp.sources {
		data, err := src.Find(name)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s from %s: %w", name, src, err)
		}
		opts := append([]classfile.Option{classfile.WithExpectedName(name)}, cp.opts...)
		cf, err := cp.parser.Parse(data, opts...)
		if err != nil {
			return nil, fmt.Errorf("load %s from %s: %w", name, src, err)
		}
		return cp.link(cf, src.String(), loading)
	}
	if name == classfile.ObjectClassName {
		return cp.builtinObject(), nil
	}
	return nil, &classfile.LinkageError{JavaError: classfile.NoClassDefFoundError, Message: name}
}

// builtinObject stands in for java/lang/Object when no class path entry
// provides it, as with modular JDKs that ship no rt.jar.
func (cp *ClassPath) builtinObject() *Class {
	symbols := cp.parser.Symbols()
	c := &Class{
		Source:  "builtin",
		name:    symbols.InternString(classfile.ObjectClassName),
		flags:   classfile.AccPublic | classfile.AccSuper,
		fields:  map[memberKey]*Member{},
		methods: map[memberKey]*Member{},
	}
	for _, m := range objectMethods {
		name, desc := symbols.InternString(m.name), symbols.InternString(m.descriptor)
		c.methods[memberKey{m.name, m.descriptor}] = &Member{name: name, descriptor: desc, flags: m.flags, class: c}
	}
	cp.classes[classfile.ObjectClassName] = c
	log.Debugf("no %s on the class path, using the builtin", classfile.ObjectClassName)
	return c
}

var objectMethods = []struct {
	name, descriptor string
	flags            classfile.AccessFlags
}{
	{classfile.InitMethodName, "()V", classfile.AccPublic},
	{"getClass", "()Ljava/lang/Class;", classfile.AccPublic | classfile.AccFinal | classfile.AccNative},
	{"hashCode", "()I", classfile.AccPublic | classfile.AccNative},
	{"equals", "(Ljava/lang/Object;)Z", classfile.AccPublic},
	{"clone", "()Ljava/lang/Object;", classfile.AccProtected | classfile.AccNative},
	{"toString", "()Ljava/lang/String;", classfile.AccPublic},
	{"notify", "()V", classfile.AccPublic | classfile.AccFinal | classfile.AccNative},
	{"notifyAll", "()V", classfile.AccPublic | classfile.AccFinal | classfile.AccNative},
	{"wait", "()V", classfile.AccPublic | classfile.AccFinal},
	{"wait", "(J)V", classfile.AccPublic | classfile.AccFinal},
	{"wait", "(JI)V", classfile.AccPublic | classfile.AccFinal},
	{"finalize", "()V", classfile.AccProtected},
}

func (cp *ClassPath) link(cf *classfile.ClassFile, source string, loading map[string]bool) (*Class, error) {
	c := &Class{
		File:   cf,
		Source: source,
		name:   cf.Name,
		flags:  cf.AccessFlags,
	}
	if cf.SuperName != nil {
		super, err := cp.load(cf.SuperName.String(), loading)
		if err != nil {
			return nil, err
		}
		if super.flags.IsInterface() {
			return nil, &classfile.LinkageError{
				JavaError: classfile.IncompatibleClassChangeError,
				Message:   fmt.Sprintf("class %s has interface %s as super class", c.name, super.name),
			}
		}
		if super.flags.IsFinal() {
			return nil, &classfile.LinkageError{
				JavaError: classfile.VerifyError,
				Message:   fmt.Sprintf("cannot inherit from final class %s", super.name),
			}
		}
		c.super = super
	}
	for _, n := range cf.InterfaceNames {
		iface, err := cp.load(n.String(), loading)
		if err != nil {
			return nil, err
		}
		if !iface.flags.IsInterface() {
			return nil, &classfile.LinkageError{
				JavaError: classfile.IncompatibleClassChangeError,
				Message:   fmt.Sprintf("class %s cannot implement class %s", c.name, iface.name),
			}
		}
		c.interfaces = append(c.interfaces, iface)
	}
	c.fields = make(map[memberKey]*Member, len(cf.Fields))
	for i := range cf.Fields {
		f := &cf.Fields[i]
		c.fields[memberKey{f.Name.String(), f.Descriptor.String()}] = &Member{name: f.Name, descriptor: f.Descriptor, flags: f.AccessFlags, class: c}
	}
	c.methods = make(map[memberKey]*Member, len(cf.Methods))
	for i := range cf.Methods {
		m := &cf.Methods[i]
		c.methods[memberKey{m.Name.String(), m.Descriptor.String()}] = &Member{name: m.Name, descriptor: m.Descriptor, flags: m.AccessFlags, class: c, Method: m}
	}
	cp.classes[c.name.String()] = c
	log.Debugf("loaded %s from %s", c.name, source)
	return c, nil
}

// loadArray synthesizes an array class. Its accessibility is that of the
// element type.
func (cp *ClassPath) loadArray(name string, loading map[string]bool) (*Class, error) {
	elem := strings.TrimLeft(name, "[")
	flags := classfile.AccPublic | classfile.AccFinal | classfile.AccAbstract
	var element *Class
	if strings.HasPrefix(elem, "L") {
		var err error
		element, err = cp.load(strings.TrimSuffix(elem[1:], ";"), loading)
		if err != nil {
			return nil, err
		}
		flags = flags&^classfile.AccPublic | element.flags&classfile.AccPublic
	}
	object, err := cp.load(classfile.ObjectClassName, loading)
	if err != nil {
		return nil, err
	}
	c := &Class{
		name:    cp.parser.Symbols().InternString(name),
		flags:   flags,
		super:   object,
		Element: element,
	}
	cp.classes[name] = c
	return c, nil
}

// LoadClass implements classfile.Resolver.
func (cp *ClassPath) LoadClass(name *classfile.Symbol, accessing classfile.ClassHandle) (classfile.ClassHandle, error) {
	c, err := cp.Load(name.String())
	if err != nil {
		return nil, err
	}
	if c.Element != nil && accessing != nil && !classfile.CheckClassAccess(c.Element, accessing, cp) {
		return nil, &classfile.LinkageError{
			JavaError: classfile.IllegalAccessError,
			Message:   fmt.Sprintf("class %s cannot access class %s", accessing.Name(), c.Element.name),
		}
	}
	return c, nil
}

// SameRuntimePackage implements classfile.Resolver.
func (cp *ClassPath) SameRuntimePackage(a, b classfile.ClassHandle) bool {
	return classfile.PackageName(a.Name().String()) == classfile.PackageName(b.Name().String())
}

// IsAssignableFrom implements classfile.Resolver for class types: every
// class is assignable to java/lang/Object and to its super types.
func (cp *ClassPath) IsAssignableFrom(to, from classfile.ClassHandle) bool {
	if to.Name().String() == classfile.ObjectClassName {
		return true
	}
	return classfile.IsSubclassOf(from, to)
}

// MethodHandle is the linked form of a CONSTANT_MethodHandle. It is never
// invoked.
type MethodHandle struct {
	Kind   classfile.MethodHandleKind
	Member classfile.MemberHandle
}

func (h *MethodHandle) String() string {
	return fmt.Sprintf("%s %s.%s:%s", h.Kind, h.Member.DeclaringClass().Name(), h.Member.Name(), h.Member.Descriptor())
}

// MethodType is the linked form of a CONSTANT_MethodType.
type MethodType struct {
	Descriptor *classfile.Symbol
	Type       *classfile.MethodDescriptor
}

func (t *MethodType) String() string { return t.Descriptor.String() }

// CallSite is the linked form of a Dynamic or InvokeDynamic entry. The
// bootstrap method is linked but not run.
type CallSite struct {
	Site      classfile.DynamicSite
	Bootstrap any
}

func (s *CallSite) String() string {
	return fmt.Sprintf("%s:%s via %v", s.Site.Name, s.Site.Descriptor, s.Bootstrap)
}

// LinkMethodHandle implements classfile.Resolver.
func (cp *ClassPath) LinkMethodHandle(kind classfile.MethodHandleKind, member classfile.MemberHandle, accessing classfile.ClassHandle) (any, error) {
	return &MethodHandle{Kind: kind, Member: member}, nil
}

// LinkMethodType implements classfile.Resolver. Every class named by the
// descriptor must be loadable.
func (cp *ClassPath) LinkMethodType(descriptor *classfile.Symbol, accessing classfile.ClassHandle) (any, error) {
	md, err := classfile.ParseMethodDescriptor(descriptor.String())
	if err != nil {
		return nil, err
	}
	types := md.Parameters
	if md.ReturnType != nil {
		types = append(types[:len(types):len(types)], *md.ReturnType)
	}
	for _, t := range types {
		if t.ClassName == "" {
			continue
		}
		if _, err := cp.LoadClass(cp.parser.Symbols().InternString(t.ClassName), accessing); err != nil {
			return nil, err
		}
	}
	return &MethodType{Descriptor: descriptor, Type: md}, nil
}

// LinkDynamic implements classfile.Resolver.
func (cp *ClassPath) LinkDynamic(site classfile.DynamicSite, accessing classfile.ClassHandle) (any, error) {
	return &CallSite{Site: site, Bootstrap: site.Bootstrap}, nil
}
