package classfile

type FieldInfo struct {
	AccessFlags     AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Name            *Symbol
	Descriptor      *Symbol
	Type            *FieldType
	Attributes      Attributes
}

func (f *FieldInfo) GetAttribute(name string) *AttributeInfo {
	return f.Attributes.Get(name)
}

// ConstantValueIndex returns the pool index of the field's ConstantValue
// attribute, or 0.
func (f *FieldInfo) ConstantValueIndex() uint16 {
	if cv := f.Attributes.Get(AttrConstantValue).AsConstantValue(); cv != nil {
		return cv.ConstantValueIndex
	}
	return 0
}

func (f *FieldInfo) IsPublic() bool    { return f.AccessFlags.IsPublic() }
func (f *FieldInfo) IsPrivate() bool   { return f.AccessFlags.IsPrivate() }
func (f *FieldInfo) IsProtected() bool { return f.AccessFlags.IsProtected() }
func (f *FieldInfo) IsStatic() bool    { return f.AccessFlags.IsStatic() }
func (f *FieldInfo) IsFinal() bool     { return f.AccessFlags.IsFinal() }
func (f *FieldInfo) IsVolatile() bool  { return f.AccessFlags.IsVolatile() }
func (f *FieldInfo) IsTransient() bool { return f.AccessFlags.IsTransient() }
func (f *FieldInfo) IsSynthetic() bool { return f.AccessFlags.IsSynthetic() }
func (f *FieldInfo) IsEnum() bool      { return f.AccessFlags.IsEnum() }
