package classpath

import "github.com/dhamidi/jcheck/classfile"

type memberKey struct {
	name, descriptor string
}

// Class is a loaded class. It implements classfile.ClassHandle; the same
// *Class is returned for every load of a name.
type Class struct {
	// File is nil for array classes and the builtin java/lang/Object.
	File *classfile.ClassFile
	// Source names the class path entry the class was loaded from.
	Source string
	// Element is the element class of an array of references.
	Element *Class

	name       *classfile.Symbol
	flags      classfile.AccessFlags
	super      *Class
	interfaces []*Class
	fields     map[memberKey]*Member
	methods    map[memberKey]*Member
}

func (c *Class) Name() *classfile.Symbol { return c.name }

func (c *Class) Flags() classfile.AccessFlags { return c.flags }

func (c *Class) String() string { return c.name.String() }

func (c *Class) SuperClass() classfile.ClassHandle {
	if c.super == nil {
		return nil
	}
	return c.super
}

func (c *Class) Interfaces() []classfile.ClassHandle {
	out := make([]classfile.ClassHandle, len(c.interfaces))
	for i, iface := range c.interfaces {
		out[i] = iface
	}
	return out
}

func (c *Class) HostClass() classfile.ClassHandle {
	if c.File == nil {
		return nil
	}
	return c.File.HostClass
}

func (c *Class) DeclaredField(name, descriptor *classfile.Symbol) classfile.MemberHandle {
	if f, ok := c.fields[memberKey{name.String(), descriptor.String()}]; ok {
		return f
	}
	return nil
}

func (c *Class) DeclaredMethod(name, descriptor *classfile.Symbol) classfile.MemberHandle {
	if m, ok := c.methods[memberKey{name.String(), descriptor.String()}]; ok {
		return m
	}
	return nil
}

// Member is a field or method of a loaded class.
type Member struct {
	// Method is set for methods parsed from a class file.
	Method *classfile.MethodInfo

	name       *classfile.Symbol
	descriptor *classfile.Symbol
	flags      classfile.AccessFlags
	class      *Class
}

func (m *Member) Name() *classfile.Symbol { return m.name }

func (m *Member) Descriptor() *classfile.Symbol { return m.descriptor }

func (m *Member) Flags() classfile.AccessFlags { return m.flags }

func (m *Member) DeclaringClass() classfile.ClassHandle { return m.class }

func (m *Member) String() string {
	return m.class.name.String() + "." + m.name.String() + ":" + m.descriptor.String()
}
