package classfile

import (
	"fmt"
	"strings"
)

// ClassHandle is a class known to the class-loading collaborator.
// Implementations return an untyped nil for a missing super class or host
// class.
type ClassHandle interface {
	Name() *Symbol
	Flags() AccessFlags
	SuperClass() ClassHandle
	Interfaces() []ClassHandle
	HostClass() ClassHandle
	DeclaredField(name, descriptor *Symbol) MemberHandle
	DeclaredMethod(name, descriptor *Symbol) MemberHandle
}

// MemberHandle is a field or method of a loaded class.
type MemberHandle interface {
	Name() *Symbol
	Descriptor() *Symbol
	Flags() AccessFlags
	DeclaringClass() ClassHandle
}

// DynamicSite describes a Dynamic or InvokeDynamic entry being linked.
type DynamicSite struct {
	Tag        ConstantTag
	Bootstrap  BootstrapMethod
	Name       *Symbol
	Descriptor *Symbol
}

// Resolver is the class-loading collaborator. Errors it returns are passed
// to the caller of Resolve unchanged.
type Resolver interface {
	LoadClass(name *Symbol, accessing ClassHandle) (ClassHandle, error)
	SameRuntimePackage(a, b ClassHandle) bool
	IsAssignableFrom(to, from ClassHandle) bool
	LinkMethodHandle(kind MethodHandleKind, member MemberHandle, accessing ClassHandle) (any, error)
	LinkMethodType(descriptor *Symbol, accessing ClassHandle) (any, error)
	LinkDynamic(site DynamicSite, accessing ClassHandle) (any, error)
}

// Resolve returns the resolved form of the entry at index, resolving it on
// first use. Concurrent callers share one lookup and the first committed
// result wins; failures are not cached.
func (cp *ConstantPool) Resolve(index uint16, accessing ClassHandle, resolver Resolver) (ConstantPoolEntry, error) {
	c, err := cp.cell(index)
	if err != nil {
		return nil, err
	}
	if r := c.resolved.Load(); r != nil {
		return r.entry, nil
	}
	if !IsResolvable(c.entry) {
		return c.entry, nil
	}
	v, err, _ := cp.group.Do(cellKey(index), func() (any, error) {
		if r := c.resolved.Load(); r != nil {
			return r.entry, nil
		}
		resolved, err := cp.resolveEntry(index, c.entry, accessing, resolver)
		if err != nil {
			return nil, err
		}
		if !c.resolved.CompareAndSwap(nil, &resolution{entry: resolved}) {
			return c.resolved.Load().entry, nil
		}
		log.Debugf("resolved #%d %s", index, resolved.Tag())
		return resolved, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ConstantPoolEntry), nil
}

// ResolveClass resolves the Class entry at index.
func (cp *ConstantPool) ResolveClass(index uint16, accessing ClassHandle, resolver Resolver) (ClassHandle, error) {
	if _, err := cp.raw(index, ConstantClass); err != nil {
		return nil, err
	}
	e, err := cp.Resolve(index, accessing, resolver)
	if err != nil {
		return nil, err
	}
	return e.(*ResolvedClass).Class, nil
}

// ResolveMember resolves the Fieldref, Methodref or InterfaceMethodref entry
// at index.
func (cp *ConstantPool) ResolveMember(index uint16, accessing ClassHandle, resolver Resolver) (MemberHandle, error) {
	if _, err := cp.raw(index, ConstantFieldref, ConstantMethodref, ConstantInterfaceMethodref); err != nil {
		return nil, err
	}
	e, err := cp.Resolve(index, accessing, resolver)
	if err != nil {
		return nil, err
	}
	return e.(*ResolvedMember).Member, nil
}

func (cp *ConstantPool) resolveEntry(index uint16, e ConstantPoolEntry, accessing ClassHandle, resolver Resolver) (ConstantPoolEntry, error) {
	switch e := e.(type) {
	case *ConstantClassInfo:
		name, err := cp.Utf8At(e.NameIndex)
		if err != nil {
			return nil, err
		}
		class, err := loadAccessibleClass(name, accessing, resolver)
		if err != nil {
			return nil, err
		}
		return &ResolvedClass{Class: class}, nil

	case *ConstantStringInfo:
		sym, err := cp.Utf8At(e.StringIndex)
		if err != nil {
			return nil, err
		}
		return &ResolvedString{Value: cp.strings.Intern(sym)}, nil

	case *ConstantFieldrefInfo:
		return cp.resolveMemberRef(ConstantFieldref, e.ClassIndex, e.NameAndTypeIndex, accessing, resolver)
	case *ConstantMethodrefInfo:
		return cp.resolveMemberRef(ConstantMethodref, e.ClassIndex, e.NameAndTypeIndex, accessing, resolver)
	case *ConstantInterfaceMethodrefInfo:
		return cp.resolveMemberRef(ConstantInterfaceMethodref, e.ClassIndex, e.NameAndTypeIndex, accessing, resolver)

	case *SymbolicMemberRef:
		holder, err := loadAccessibleClass(e.Class, accessing, resolver)
		if err != nil {
			return nil, err
		}
		return lookupMember(e.RefTag, holder, e.Name, e.Descriptor, accessing, resolver)

	case *ConstantMethodHandleInfo:
		ref, err := cp.Resolve(e.ReferenceIndex, accessing, resolver)
		if err != nil {
			return nil, err
		}
		member, ok := ref.(*ResolvedMember)
		if !ok {
			return nil, formatError(ErrUnexpectedConstantTag, "method handle #%d refers to %s", index, ref.Tag())
		}
		v, err := resolver.LinkMethodHandle(e.ReferenceKind, member.Member, accessing)
		if err != nil {
			return nil, err
		}
		return &ResolvedMethodHandle{Kind: e.ReferenceKind, Value: v}, nil

	case *ConstantMethodTypeInfo:
		desc, err := cp.Utf8At(e.DescriptorIndex)
		if err != nil {
			return nil, err
		}
		v, err := resolver.LinkMethodType(desc, accessing)
		if err != nil {
			return nil, err
		}
		return &ResolvedMethodType{Value: v}, nil

	case *ConstantDynamicInfo, *ConstantInvokeDynamicInfo:
		ref, err := cp.dynamicAt(index, e.Tag())
		if err != nil {
			return nil, err
		}
		if int(ref.BootstrapIndex) >= len(cp.bootstrapMethods) {
			return nil, formatError(nil, "bootstrap method index %d out of range for #%d", ref.BootstrapIndex, index)
		}
		site := DynamicSite{
			Tag:        ref.Tag,
			Bootstrap:  cp.bootstrapMethods[ref.BootstrapIndex],
			Name:       ref.Name,
			Descriptor: ref.Descriptor,
		}
		v, err := resolver.LinkDynamic(site, accessing)
		if err != nil {
			return nil, err
		}
		return &ResolvedDynamic{RefTag: ref.Tag, Value: v}, nil
	}
	return e, nil
}

func (cp *ConstantPool) resolveMemberRef(tag ConstantTag, classIndex, natIndex uint16, accessing ClassHandle, resolver Resolver) (ConstantPoolEntry, error) {
	holder, err := cp.ResolveClass(classIndex, accessing, resolver)
	if err != nil {
		return nil, err
	}
	name, desc, err := cp.NameAndTypeAt(natIndex)
	if err != nil {
		return nil, err
	}
	return lookupMember(tag, holder, name, desc, accessing, resolver)
}

func loadAccessibleClass(name *Symbol, accessing ClassHandle, resolver Resolver) (ClassHandle, error) {
	class, err := resolver.LoadClass(name, accessing)
	if err != nil {
		return nil, err
	}
	// arrays take the accessibility of their element type, which the loader
	// has already checked when creating them
	if accessing != nil && !strings.HasPrefix(name.String(), "[") && !CheckClassAccess(class, accessing, resolver) {
		return nil, &LinkageError{
			JavaError: IllegalAccessError,
			Message:   fmt.Sprintf("class %s cannot access class %s", accessing.Name(), name),
		}
	}
	return class, nil
}

func lookupMember(tag ConstantTag, holder ClassHandle, name, desc *Symbol, accessing ClassHandle, resolver Resolver) (ConstantPoolEntry, error) {
	var member MemberHandle
	switch tag {
	case ConstantFieldref:
		member = LookupField(holder, name, desc)
		if member == nil {
			return nil, &LinkageError{JavaError: NoSuchFieldError, Message: fmt.Sprintf("%s.%s", holder.Name(), name)}
		}
	case ConstantMethodref:
		if holder.Flags().IsInterface() {
			return nil, &LinkageError{
				JavaError: IncompatibleClassChangeError,
				Message:   fmt.Sprintf("found interface %s, but class was expected", holder.Name()),
			}
		}
		member = LookupMethod(holder, name, desc)
	case ConstantInterfaceMethodref:
		if !holder.Flags().IsInterface() {
			return nil, &LinkageError{
				JavaError: IncompatibleClassChangeError,
				Message:   fmt.Sprintf("found class %s, but interface was expected", holder.Name()),
			}
		}
		member = LookupMethod(holder, name, desc)
	}
	if member == nil {
		return nil, &LinkageError{JavaError: NoSuchMethodError, Message: fmt.Sprintf("%s.%s%s", holder.Name(), name, desc)}
	}
	if accessing != nil && !CheckAccess(accessing, holder, member, resolver) {
		return nil, &LinkageError{
			JavaError: IllegalAccessError,
			Message:   fmt.Sprintf("class %s cannot access %s.%s", accessing.Name(), member.DeclaringClass().Name(), name),
		}
	}
	return &ResolvedMember{RefTag: tag, Member: member}, nil
}

// LookupField searches class, then its superinterfaces, then its super
// classes.
func LookupField(class ClassHandle, name, desc *Symbol) MemberHandle {
	for c := class; c != nil; c = c.SuperClass() {
		if f := c.DeclaredField(name, desc); f != nil {
			return f
		}
		if f := lookupInterfaceField(c.Interfaces(), name, desc); f != nil {
			return f
		}
	}
	return nil
}

func lookupInterfaceField(interfaces []ClassHandle, name, desc *Symbol) MemberHandle {
	for _, iface := range interfaces {
		if f := iface.DeclaredField(name, desc); f != nil {
			return f
		}
		if f := lookupInterfaceField(iface.Interfaces(), name, desc); f != nil {
			return f
		}
	}
	return nil
}

// LookupMethod searches class and its super classes, then the
// superinterfaces of each of them.
func LookupMethod(class ClassHandle, name, desc *Symbol) MemberHandle {
	for c := class; c != nil; c = c.SuperClass() {
		if m := c.DeclaredMethod(name, desc); m != nil {
			return m
		}
	}
	for c := class; c != nil; c = c.SuperClass() {
		if m := lookupInterfaceMethod(c.Interfaces(), name, desc); m != nil {
			return m
		}
	}
	return nil
}

func lookupInterfaceMethod(interfaces []ClassHandle, name, desc *Symbol) MemberHandle {
	for _, iface := range interfaces {
		if m := iface.DeclaredMethod(name, desc); m != nil && !m.Flags().IsStatic() {
			return m
		}
		if m := lookupInterfaceMethod(iface.Interfaces(), name, desc); m != nil {
			return m
		}
	}
	return nil
}

// IsSubclassOf reports whether sub is super or inherits from it through
// the super class or interface chain.
func IsSubclassOf(sub, super ClassHandle) bool {
	if sub == nil || super == nil {
		return false
	}
	if sub == super {
		return true
	}
	if IsSubclassOf(sub.SuperClass(), super) {
		return true
	}
	for _, iface := range sub.Interfaces() {
		if IsSubclassOf(iface, super) {
			return true
		}
	}
	return false
}

// CheckClassAccess reports whether accessing may refer to class: public
// classes are visible everywhere, others only inside their runtime package.
func CheckClassAccess(class, accessing ClassHandle, resolver Resolver) bool {
	if class.Flags().IsPublic() {
		return true
	}
	if resolver.SameRuntimePackage(class, accessing) {
		return true
	}
	if host := accessing.HostClass(); host != nil {
		return CheckClassAccess(class, host, resolver)
	}
	return false
}

// CheckAccess reports whether accessing may use member, which was found
// through resolved.
func CheckAccess(accessing, resolved ClassHandle, member MemberHandle, resolver Resolver) bool {
	flags := member.Flags()
	if flags.IsPublic() {
		return true
	}
	declaring := member.DeclaringClass()
	if flags.IsProtected() {
		if !flags.IsStatic() {
			if resolver.IsAssignableFrom(resolved, accessing) || resolver.IsAssignableFrom(accessing, resolved) {
				return true
			}
		} else if resolver.IsAssignableFrom(declaring, accessing) {
			return true
		}
	}
	if flags.IsProtected() || flags.IsPackagePrivate() {
		if resolver.SameRuntimePackage(accessing, declaring) {
			return true
		}
	}
	if flags.IsPrivate() && accessing == declaring {
		return true
	}
	if host := accessing.HostClass(); host != nil {
		return CheckAccess(host, resolved, member, resolver)
	}
	return false
}
