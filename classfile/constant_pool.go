package classfile

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ConstantPoolEntry is one slot of a constant pool. The set of
// implementations is closed; resolved forms report the tag of the entry they
// replace.
type ConstantPoolEntry interface {
	Tag() ConstantTag
	isEntry()
}

type ConstantInvalidInfo struct{}

type ConstantUtf8Info struct {
	Value *Symbol
}

type ConstantIntegerInfo struct {
	Value int32
}

type ConstantFloatInfo struct {
	Value float32
}

type ConstantLongInfo struct {
	Value int64
}

type ConstantDoubleInfo struct {
	Value float64
}

type ConstantClassInfo struct {
	NameIndex uint16
}

type ConstantStringInfo struct {
	StringIndex uint16
}

type ConstantFieldrefInfo struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type ConstantMethodrefInfo struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type ConstantInterfaceMethodrefInfo struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

// SymbolicMemberRef is a member reference that names its declaring class,
// name and descriptor directly instead of through pool indices.
type SymbolicMemberRef struct {
	RefTag     ConstantTag
	Class      *Symbol
	Name       *Symbol
	Descriptor *Symbol
}

// ConstantNameAndTypeInfo carries Name and Descriptor once both operands
// have been checked to be Utf8 entries.
type ConstantNameAndTypeInfo struct {
	NameIndex       uint16
	DescriptorIndex uint16
	Name            *Symbol
	Descriptor      *Symbol
}

type ConstantMethodHandleInfo struct {
	ReferenceKind  MethodHandleKind
	ReferenceIndex uint16
}

type ConstantMethodTypeInfo struct {
	DescriptorIndex uint16
}

type ConstantDynamicInfo struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

type ConstantInvokeDynamicInfo struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

type ResolvedClass struct {
	Class ClassHandle
}

type ResolvedString struct {
	Value *JavaString
}

type ResolvedMember struct {
	RefTag ConstantTag
	Member MemberHandle
}

type ResolvedMethodHandle struct {
	Kind  MethodHandleKind
	Value any
}

type ResolvedMethodType struct {
	Value any
}

type ResolvedDynamic struct {
	RefTag ConstantTag
	Value  any
}

func (*ConstantInvalidInfo) Tag() ConstantTag            { return ConstantInvalid }
func (*ConstantUtf8Info) Tag() ConstantTag               { return ConstantUtf8 }
func (*ConstantIntegerInfo) Tag() ConstantTag            { return ConstantInteger }
func (*ConstantFloatInfo) Tag() ConstantTag              { return ConstantFloat }
func (*ConstantLongInfo) Tag() ConstantTag               { return ConstantLong }
func (*ConstantDoubleInfo) Tag() ConstantTag             { return ConstantDouble }
func (*ConstantClassInfo) Tag() ConstantTag              { return ConstantClass }
func (*ConstantStringInfo) Tag() ConstantTag             { return ConstantString }
func (*ConstantFieldrefInfo) Tag() ConstantTag           { return ConstantFieldref }
func (*ConstantMethodrefInfo) Tag() ConstantTag          { return ConstantMethodref }
func (*ConstantInterfaceMethodrefInfo) Tag() ConstantTag { return ConstantInterfaceMethodref }
func (c *SymbolicMemberRef) Tag() ConstantTag            { return c.RefTag }
func (*ConstantNameAndTypeInfo) Tag() ConstantTag        { return ConstantNameAndType }
func (*ConstantMethodHandleInfo) Tag() ConstantTag       { return ConstantMethodHandle }
func (*ConstantMethodTypeInfo) Tag() ConstantTag         { return ConstantMethodType }
func (*ConstantDynamicInfo) Tag() ConstantTag            { return ConstantDynamic }
func (*ConstantInvokeDynamicInfo) Tag() ConstantTag      { return ConstantInvokeDynamic }
func (*ResolvedClass) Tag() ConstantTag                  { return ConstantClass }
func (*ResolvedString) Tag() ConstantTag                 { return ConstantString }
func (c *ResolvedMember) Tag() ConstantTag               { return c.RefTag }
func (*ResolvedMethodHandle) Tag() ConstantTag           { return ConstantMethodHandle }
func (*ResolvedMethodType) Tag() ConstantTag             { return ConstantMethodType }
func (c *ResolvedDynamic) Tag() ConstantTag              { return c.RefTag }

func (*ConstantInvalidInfo) isEntry()            {}
func (*ConstantUtf8Info) isEntry()               {}
func (*ConstantIntegerInfo) isEntry()            {}
func (*ConstantFloatInfo) isEntry()              {}
func (*ConstantLongInfo) isEntry()               {}
func (*ConstantDoubleInfo) isEntry()             {}
func (*ConstantClassInfo) isEntry()              {}
func (*ConstantStringInfo) isEntry()             {}
func (*ConstantFieldrefInfo) isEntry()           {}
func (*ConstantMethodrefInfo) isEntry()          {}
func (*ConstantInterfaceMethodrefInfo) isEntry() {}
func (*SymbolicMemberRef) isEntry()              {}
func (*ConstantNameAndTypeInfo) isEntry()        {}
func (*ConstantMethodHandleInfo) isEntry()       {}
func (*ConstantMethodTypeInfo) isEntry()         {}
func (*ConstantDynamicInfo) isEntry()            {}
func (*ConstantInvokeDynamicInfo) isEntry()      {}
func (*ResolvedClass) isEntry()                  {}
func (*ResolvedString) isEntry()                 {}
func (*ResolvedMember) isEntry()                 {}
func (*ResolvedMethodHandle) isEntry()           {}
func (*ResolvedMethodType) isEntry()             {}
func (*ResolvedDynamic) isEntry()                {}

var invalidEntry ConstantPoolEntry = &ConstantInvalidInfo{}

// IsResolvable reports whether Resolve does more than return the entry.
func IsResolvable(e ConstantPoolEntry) bool {
	switch e.(type) {
	case *ConstantClassInfo, *ConstantStringInfo,
		*ConstantFieldrefInfo, *ConstantMethodrefInfo, *ConstantInterfaceMethodrefInfo,
		*SymbolicMemberRef, *ConstantMethodHandleInfo, *ConstantMethodTypeInfo,
		*ConstantDynamicInfo, *ConstantInvokeDynamicInfo:
		return true
	}
	return false
}

// IsResolved reports whether e is the resolved form of an entry.
func IsResolved(e ConstantPoolEntry) bool {
	switch e.(type) {
	case *ResolvedClass, *ResolvedString, *ResolvedMember,
		*ResolvedMethodHandle, *ResolvedMethodType, *ResolvedDynamic:
		return true
	}
	return false
}

type resolution struct {
	entry ConstantPoolEntry
}

type poolCell struct {
	entry    ConstantPoolEntry
	resolved atomic.Pointer[resolution]
}

// ConstantPool holds the decoded entries of one class file. Entries move
// from their symbolic form to a resolved form at most once; the symbolic
// form stays readable through the accessors afterwards.
type ConstantPool struct {
	majorVersion uint16
	symbols      *SymbolTable
	strings      *StringTable
	cells        []poolCell
	group        singleflight.Group

	bootstrapMethods  []BootstrapMethod
	maxBootstrapIndex int
}

// NewConstantPool builds a pool from entries; entries[0] must be an
// invalid entry or nil, as must the slot following every Long and Double.
func NewConstantPool(entries []ConstantPoolEntry, symbols *SymbolTable, strings *StringTable) *ConstantPool {
	cp := &ConstantPool{
		majorVersion:      MaxSupportedMajor,
		symbols:           symbols,
		strings:           strings,
		cells:             make([]poolCell, len(entries)),
		maxBootstrapIndex: -1,
	}
	for i, e := range entries {
		if e == nil {
			e = invalidEntry
		}
		cp.cells[i].entry = e
	}
	return cp
}

// Size returns the constant_pool_count of the class file: valid indices
// are 1 through Size()-1.
func (cp *ConstantPool) Size() int { return len(cp.cells) }

func (cp *ConstantPool) MajorVersion() uint16 { return cp.majorVersion }

func (cp *ConstantPool) Symbols() *SymbolTable { return cp.symbols }

func (cp *ConstantPool) BootstrapMethods() []BootstrapMethod { return cp.bootstrapMethods }

// MaxBootstrapIndex returns the largest bootstrap method index referenced by
// a Dynamic or InvokeDynamic entry, or -1.
func (cp *ConstantPool) MaxBootstrapIndex() int { return cp.maxBootstrapIndex }

func (cp *ConstantPool) cell(index uint16) (*poolCell, error) {
	if int(index) >= len(cp.cells) {
		return nil, &IndexError{Index: index, Size: len(cp.cells)}
	}
	return &cp.cells[index], nil
}

func (cp *ConstantPool) raw(index uint16, expected ...ConstantTag) (ConstantPoolEntry, error) {
	c, err := cp.cell(index)
	if err != nil {
		return nil, err
	}
	tag := c.entry.Tag()
	if len(expected) == 0 {
		return c.entry, nil
	}
	for _, t := range expected {
		if t == tag {
			return c.entry, nil
		}
	}
	return nil, &TagError{Index: index, Found: tag, Expected: expected}
}

// Entry returns the current entry at index: the resolved form once
// resolution has committed, the decoded form otherwise.
func (cp *ConstantPool) Entry(index uint16) (ConstantPoolEntry, error) {
	c, err := cp.cell(index)
	if err != nil {
		return nil, err
	}
	if r := c.resolved.Load(); r != nil {
		return r.entry, nil
	}
	return c.entry, nil
}

func (cp *ConstantPool) TagAt(index uint16) (ConstantTag, error) {
	c, err := cp.cell(index)
	if err != nil {
		return ConstantInvalid, err
	}
	return c.entry.Tag(), nil
}

func (cp *ConstantPool) Utf8At(index uint16) (*Symbol, error) {
	e, err := cp.raw(index, ConstantUtf8)
	if err != nil {
		return nil, err
	}
	return e.(*ConstantUtf8Info).Value, nil
}

// ClassAt returns the name of the class entry at index.
func (cp *ConstantPool) ClassAt(index uint16) (*Symbol, error) {
	e, err := cp.raw(index, ConstantClass)
	if err != nil {
		return nil, err
	}
	return cp.Utf8At(e.(*ConstantClassInfo).NameIndex)
}

func (cp *ConstantPool) StringAt(index uint16) (*Symbol, error) {
	e, err := cp.raw(index, ConstantString)
	if err != nil {
		return nil, err
	}
	return cp.Utf8At(e.(*ConstantStringInfo).StringIndex)
}

func (cp *ConstantPool) NameAndTypeAt(index uint16) (name, descriptor *Symbol, err error) {
	e, err := cp.raw(index, ConstantNameAndType)
	if err != nil {
		return nil, nil, err
	}
	nt := e.(*ConstantNameAndTypeInfo)
	if nt.Name != nil && nt.Descriptor != nil {
		return nt.Name, nt.Descriptor, nil
	}
	if name, err = cp.Utf8At(nt.NameIndex); err != nil {
		return nil, nil, err
	}
	if descriptor, err = cp.Utf8At(nt.DescriptorIndex); err != nil {
		return nil, nil, err
	}
	return name, descriptor, nil
}

func (cp *ConstantPool) IntegerAt(index uint16) (int32, error) {
	e, err := cp.raw(index, ConstantInteger)
	if err != nil {
		return 0, err
	}
	return e.(*ConstantIntegerInfo).Value, nil
}

func (cp *ConstantPool) FloatAt(index uint16) (float32, error) {
	e, err := cp.raw(index, ConstantFloat)
	if err != nil {
		return 0, err
	}
	return e.(*ConstantFloatInfo).Value, nil
}

func (cp *ConstantPool) LongAt(index uint16) (int64, error) {
	e, err := cp.raw(index, ConstantLong)
	if err != nil {
		return 0, err
	}
	return e.(*ConstantLongInfo).Value, nil
}

func (cp *ConstantPool) DoubleAt(index uint16) (float64, error) {
	e, err := cp.raw(index, ConstantDouble)
	if err != nil {
		return 0, err
	}
	return e.(*ConstantDoubleInfo).Value, nil
}

// MemberRef is the symbolic view of a field, method or interface method
// reference.
type MemberRef struct {
	Tag        ConstantTag
	Class      *Symbol
	Name       *Symbol
	Descriptor *Symbol
}

func (m MemberRef) String() string {
	return fmt.Sprintf("%s.%s:%s", m.Class, m.Name, m.Descriptor)
}

func (cp *ConstantPool) FieldAt(index uint16) (MemberRef, error) {
	return cp.memberAt(index, ConstantFieldref)
}

func (cp *ConstantPool) MethodAt(index uint16) (MemberRef, error) {
	return cp.memberAt(index, ConstantMethodref)
}

func (cp *ConstantPool) InterfaceMethodAt(index uint16) (MemberRef, error) {
	return cp.memberAt(index, ConstantInterfaceMethodref)
}

// AnyMethodAt accepts both Methodref and InterfaceMethodref entries.
func (cp *ConstantPool) AnyMethodAt(index uint16) (MemberRef, error) {
	return cp.memberAt(index, ConstantMethodref, ConstantInterfaceMethodref)
}

func (cp *ConstantPool) memberAt(index uint16, tags ...ConstantTag) (MemberRef, error) {
	e, err := cp.raw(index, tags...)
	if err != nil {
		return MemberRef{}, err
	}
	ref := MemberRef{Tag: e.Tag()}
	var classIndex, natIndex uint16
	switch e := e.(type) {
	case *SymbolicMemberRef:
		ref.Class, ref.Name, ref.Descriptor = e.Class, e.Name, e.Descriptor
		return ref, nil
	case *ConstantFieldrefInfo:
		classIndex, natIndex = e.ClassIndex, e.NameAndTypeIndex
	case *ConstantMethodrefInfo:
		classIndex, natIndex = e.ClassIndex, e.NameAndTypeIndex
	case *ConstantInterfaceMethodrefInfo:
		classIndex, natIndex = e.ClassIndex, e.NameAndTypeIndex
	}
	if ref.Class, err = cp.ClassAt(classIndex); err != nil {
		return MemberRef{}, err
	}
	if ref.Name, ref.Descriptor, err = cp.NameAndTypeAt(natIndex); err != nil {
		return MemberRef{}, err
	}
	return ref, nil
}

func (cp *ConstantPool) MethodHandleAt(index uint16) (MethodHandleKind, uint16, error) {
	e, err := cp.raw(index, ConstantMethodHandle)
	if err != nil {
		return 0, 0, err
	}
	mh := e.(*ConstantMethodHandleInfo)
	return mh.ReferenceKind, mh.ReferenceIndex, nil
}

func (cp *ConstantPool) MethodTypeAt(index uint16) (*Symbol, error) {
	e, err := cp.raw(index, ConstantMethodType)
	if err != nil {
		return nil, err
	}
	return cp.Utf8At(e.(*ConstantMethodTypeInfo).DescriptorIndex)
}

// DynamicRef is the symbolic view of a Dynamic or InvokeDynamic entry.
type DynamicRef struct {
	Tag            ConstantTag
	BootstrapIndex uint16
	Name           *Symbol
	Descriptor     *Symbol
}

func (cp *ConstantPool) InvokeDynamicAt(index uint16) (DynamicRef, error) {
	return cp.dynamicAt(index, ConstantInvokeDynamic)
}

func (cp *ConstantPool) DynamicAt(index uint16) (DynamicRef, error) {
	return cp.dynamicAt(index, ConstantDynamic)
}

func (cp *ConstantPool) dynamicAt(index uint16, tag ConstantTag) (DynamicRef, error) {
	e, err := cp.raw(index, tag)
	if err != nil {
		return DynamicRef{}, err
	}
	ref := DynamicRef{Tag: tag}
	var natIndex uint16
	switch e := e.(type) {
	case *ConstantDynamicInfo:
		ref.BootstrapIndex, natIndex = e.BootstrapMethodAttrIndex, e.NameAndTypeIndex
	case *ConstantInvokeDynamicInfo:
		ref.BootstrapIndex, natIndex = e.BootstrapMethodAttrIndex, e.NameAndTypeIndex
	}
	if ref.Name, ref.Descriptor, err = cp.NameAndTypeAt(natIndex); err != nil {
		return DynamicRef{}, err
	}
	return ref, nil
}

// GetUtf8 returns the text of a Utf8 entry or the empty string.
func (cp *ConstantPool) GetUtf8(index uint16) string {
	sym, err := cp.Utf8At(index)
	if err != nil {
		return ""
	}
	return sym.String()
}

// GetClassName returns the internal name of a Class entry or the empty string.
func (cp *ConstantPool) GetClassName(index uint16) string {
	sym, err := cp.ClassAt(index)
	if err != nil {
		return ""
	}
	return sym.String()
}

// Describe renders the entry at index for dumps, e.g. "Class java/lang/Object".
func (cp *ConstantPool) Describe(index uint16) string {
	e, err := cp.Entry(index)
	if err != nil {
		return err.Error()
	}
	tag := e.Tag()
	switch e := e.(type) {
	case *ConstantInvalidInfo:
		return tag.String()
	case *ConstantUtf8Info:
		return fmt.Sprintf("%s %s", tag, strconv.Quote(e.Value.String()))
	case *ConstantIntegerInfo:
		return fmt.Sprintf("%s %d", tag, e.Value)
	case *ConstantFloatInfo:
		return fmt.Sprintf("%s %gf", tag, e.Value)
	case *ConstantLongInfo:
		return fmt.Sprintf("%s %dl", tag, e.Value)
	case *ConstantDoubleInfo:
		return fmt.Sprintf("%s %gd", tag, e.Value)
	case *ConstantClassInfo:
		return fmt.Sprintf("%s %s", tag, cp.GetUtf8(e.NameIndex))
	case *ResolvedClass:
		return fmt.Sprintf("%s %s (resolved)", tag, e.Class.Name())
	case *ConstantStringInfo:
		return fmt.Sprintf("%s %s", tag, strconv.Quote(cp.GetUtf8(e.StringIndex)))
	case *ResolvedString:
		return fmt.Sprintf("%s %s (resolved)", tag, strconv.Quote(e.Value.String()))
	case *ConstantFieldrefInfo, *ConstantMethodrefInfo, *ConstantInterfaceMethodrefInfo, *SymbolicMemberRef:
		ref, err := cp.memberAt(index, tag)
		if err != nil {
			return fmt.Sprintf("%s <%v>", tag, err)
		}
		return fmt.Sprintf("%s %s", tag, ref)
	case *ResolvedMember:
		return fmt.Sprintf("%s %s.%s:%s (resolved)", tag,
			e.Member.DeclaringClass().Name(), e.Member.Name(), e.Member.Descriptor())
	case *ConstantNameAndTypeInfo:
		name, desc, err := cp.NameAndTypeAt(index)
		if err != nil {
			return fmt.Sprintf("%s <%v>", tag, err)
		}
		return fmt.Sprintf("%s %s:%s", tag, name, desc)
	case *ConstantMethodHandleInfo:
		return fmt.Sprintf("%s %s #%d", tag, e.ReferenceKind, e.ReferenceIndex)
	case *ResolvedMethodHandle:
		return fmt.Sprintf("%s %s %v (resolved)", tag, e.Kind, e.Value)
	case *ConstantMethodTypeInfo:
		return fmt.Sprintf("%s %s", tag, cp.GetUtf8(e.DescriptorIndex))
	case *ResolvedMethodType:
		return fmt.Sprintf("%s %v (resolved)", tag, e.Value)
	case *ConstantDynamicInfo, *ConstantInvokeDynamicInfo:
		ref, err := cp.dynamicAt(index, tag)
		if err != nil {
			return fmt.Sprintf("%s <%v>", tag, err)
		}
		return fmt.Sprintf("%s #%d:%s:%s", tag, ref.BootstrapIndex, ref.Name, ref.Descriptor)
	case *ResolvedDynamic:
		return fmt.Sprintf("%s %v (resolved)", tag, e.Value)
	}
	return tag.String()
}

// validate checks the operands of every entry and pre-resolves NameAndType
// entries. It runs once, after the last entry was read.
func (cp *ConstantPool) validate() error {
	for i := 1; i < len(cp.cells); i++ {
		index := uint16(i)
		var err error
		switch e := cp.cells[i].entry.(type) {
		case *ConstantClassInfo:
			_, err = cp.Utf8At(e.NameIndex)
		case *ConstantStringInfo:
			_, err = cp.Utf8At(e.StringIndex)
		case *ConstantNameAndTypeInfo:
			if e.Name, err = cp.Utf8At(e.NameIndex); err == nil {
				e.Descriptor, err = cp.Utf8At(e.DescriptorIndex)
			}
		case *ConstantFieldrefInfo:
			err = cp.checkMemberOperands(e.ClassIndex, e.NameAndTypeIndex)
		case *ConstantMethodrefInfo:
			err = cp.checkMemberOperands(e.ClassIndex, e.NameAndTypeIndex)
		case *ConstantInterfaceMethodrefInfo:
			err = cp.checkMemberOperands(e.ClassIndex, e.NameAndTypeIndex)
		case *ConstantMethodHandleInfo:
			err = cp.checkMethodHandle(e)
		case *ConstantMethodTypeInfo:
			_, err = cp.Utf8At(e.DescriptorIndex)
		case *ConstantDynamicInfo:
			_, err = cp.raw(e.NameAndTypeIndex, ConstantNameAndType)
			cp.noteBootstrapIndex(e.BootstrapMethodAttrIndex)
		case *ConstantInvokeDynamicInfo:
			_, err = cp.raw(e.NameAndTypeIndex, ConstantNameAndType)
			cp.noteBootstrapIndex(e.BootstrapMethodAttrIndex)
		}
		if err != nil {
			return formatError(err, "invalid constant pool entry #%d (%s): %v", index, cp.cells[i].entry.Tag(), err)
		}
	}
	return nil
}

func (cp *ConstantPool) noteBootstrapIndex(index uint16) {
	if int(index) > cp.maxBootstrapIndex {
		cp.maxBootstrapIndex = int(index)
	}
}

func (cp *ConstantPool) checkMemberOperands(classIndex, natIndex uint16) error {
	if _, err := cp.raw(classIndex, ConstantClass); err != nil {
		return err
	}
	_, err := cp.raw(natIndex, ConstantNameAndType)
	return err
}

func (cp *ConstantPool) checkMethodHandle(mh *ConstantMethodHandleInfo) error {
	var expected []ConstantTag
	switch mh.ReferenceKind {
	case RefGetField, RefGetStatic, RefPutField, RefPutStatic:
		expected = []ConstantTag{ConstantFieldref}
	case RefInvokeVirtual, RefNewInvokeSpecial:
		expected = []ConstantTag{ConstantMethodref}
	case RefInvokeStatic, RefInvokeSpecial:
		expected = []ConstantTag{ConstantMethodref}
		if cp.majorVersion >= Java8 {
			expected = append(expected, ConstantInterfaceMethodref)
		}
	case RefInvokeInterface:
		expected = []ConstantTag{ConstantInterfaceMethodref}
	default:
		return fmt.Errorf("invalid method handle kind %d", mh.ReferenceKind)
	}
	_, err := cp.raw(mh.ReferenceIndex, expected...)
	return err
}

func cellKey(index uint16) string { return strconv.Itoa(int(index)) }
