package classfile

type MethodInfo struct {
	AccessFlags     AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Name            *Symbol
	Descriptor      *Symbol
	Type            *MethodDescriptor
	Attributes      Attributes
	// Code is nil for native and abstract methods.
	Code *CodeAttribute
	// ArgumentSlots counts the receiver of instance methods.
	ArgumentSlots int
}

func (m *MethodInfo) GetAttribute(name string) *AttributeInfo {
	return m.Attributes.Get(name)
}

// ExceptionNames returns the classes listed in the Exceptions attribute.
func (m *MethodInfo) ExceptionNames(cp *ConstantPool) []string {
	ex := m.Attributes.Get(AttrExceptions).AsExceptions()
	if ex == nil {
		return nil
	}
	names := make([]string, len(ex.ExceptionIndexTable))
	for i, idx := range ex.ExceptionIndexTable {
		names[i] = cp.GetClassName(idx)
	}
	return names
}

func (m *MethodInfo) IsPublic() bool       { return m.AccessFlags.IsPublic() }
func (m *MethodInfo) IsPrivate() bool      { return m.AccessFlags.IsPrivate() }
func (m *MethodInfo) IsProtected() bool    { return m.AccessFlags.IsProtected() }
func (m *MethodInfo) IsStatic() bool       { return m.AccessFlags.IsStatic() }
func (m *MethodInfo) IsFinal() bool        { return m.AccessFlags.IsFinal() }
func (m *MethodInfo) IsSynchronized() bool { return m.AccessFlags.IsSynchronized() }
func (m *MethodInfo) IsBridge() bool       { return m.AccessFlags.IsBridge() }
func (m *MethodInfo) IsVarargs() bool      { return m.AccessFlags.IsVarargs() }
func (m *MethodInfo) IsNative() bool       { return m.AccessFlags.IsNative() }
func (m *MethodInfo) IsAbstract() bool     { return m.AccessFlags.IsAbstract() }
func (m *MethodInfo) IsStrict() bool       { return m.AccessFlags.IsStrict() }
func (m *MethodInfo) IsSynthetic() bool    { return m.AccessFlags.IsSynthetic() }

func (m *MethodInfo) IsConstructor() bool {
	return m.Name.String() == InitMethodName
}

func (m *MethodInfo) IsStaticInitializer() bool {
	return m.Name.String() == ClassInitMethodName
}
