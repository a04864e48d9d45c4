package classfile

// ClassFile is the immutable result of one parse. Only its ConstantPool
// changes afterwards, as entries are resolved.
type ClassFile struct {
	MinorVersion   uint16
	MajorVersion   uint16
	ConstantPool   *ConstantPool
	AccessFlags    AccessFlags
	ThisClass      uint16
	SuperClass     uint16
	Interfaces     []uint16
	Name           *Symbol
	SuperName      *Symbol
	InterfaceNames []*Symbol
	Fields         []FieldInfo
	Methods        []MethodInfo
	Attributes     Attributes
	HostClass      ClassHandle

	// Set from the InnerClasses entry describing this class.
	IsInnerClass     bool
	OuterClass       *Symbol
	InnerAccessFlags AccessFlags
}

func (cf *ClassFile) ClassName() string {
	return cf.Name.String()
}

func (cf *ClassFile) SuperClassName() string {
	return cf.SuperName.String()
}

func (cf *ClassFile) IsClass() bool {
	return !cf.AccessFlags.IsInterface() && !cf.AccessFlags.IsModule()
}

func (cf *ClassFile) IsInterface() bool {
	return cf.AccessFlags.IsInterface() && !cf.AccessFlags.IsAnnotation()
}

func (cf *ClassFile) IsAnnotation() bool {
	return cf.AccessFlags.IsAnnotation()
}

func (cf *ClassFile) IsEnum() bool {
	return cf.AccessFlags.IsEnum()
}

func (cf *ClassFile) GetMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name.String() == name {
			if descriptor == "" || cf.Methods[i].Descriptor.String() == descriptor {
				return &cf.Methods[i]
			}
		}
	}
	return nil
}

func (cf *ClassFile) GetAttribute(name string) *AttributeInfo {
	return cf.Attributes.Get(name)
}

func (cf *ClassFile) SourceFile() string {
	if sf := cf.Attributes.Get(AttrSourceFile).AsSourceFile(); sf != nil {
		return sf.SourceFile.String()
	}
	return ""
}
