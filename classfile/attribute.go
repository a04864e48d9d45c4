package classfile

import (
	"errors"
	"fmt"
)

const (
	AttrCode                                 = "Code"
	AttrConstantValue                        = "ConstantValue"
	AttrExceptions                           = "Exceptions"
	AttrSourceFile                           = "SourceFile"
	AttrSourceDebugExtension                 = "SourceDebugExtension"
	AttrLineNumberTable                      = "LineNumberTable"
	AttrLocalVariableTable                   = "LocalVariableTable"
	AttrLocalVariableTypeTable               = "LocalVariableTypeTable"
	AttrStackMapTable                        = "StackMapTable"
	AttrInnerClasses                         = "InnerClasses"
	AttrEnclosingMethod                      = "EnclosingMethod"
	AttrBootstrapMethods                     = "BootstrapMethods"
	AttrMethodParameters                     = "MethodParameters"
	AttrSignature                            = "Signature"
	AttrSynthetic                            = "Synthetic"
	AttrDeprecated                           = "Deprecated"
	AttrRuntimeVisibleAnnotations            = "RuntimeVisibleAnnotations"
	AttrRuntimeInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	AttrRuntimeVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	AttrRuntimeInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
	AttrRuntimeVisibleTypeAnnotations        = "RuntimeVisibleTypeAnnotations"
	AttrRuntimeInvisibleTypeAnnotations      = "RuntimeInvisibleTypeAnnotations"
	AttrAnnotationDefault                    = "AnnotationDefault"
)

// AttributeInfo is one attribute record. Info is the raw payload of exactly
// the declared length; Parsed is nil for attributes kept opaque.
type AttributeInfo struct {
	NameIndex uint16
	Name      *Symbol
	Info      []byte
	Parsed    any
}

// Attributes is an attribute table in class file order.
type Attributes []AttributeInfo

// Get returns the last attribute called name, or nil.
func (as Attributes) Get(name string) *AttributeInfo {
	for i := len(as) - 1; i >= 0; i-- {
		if as[i].Name.String() == name {
			return &as[i]
		}
	}
	return nil
}

type CodeAttribute struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionTableEntry
	Attributes     Attributes
}

type ExceptionTableEntry struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	// CatchType is 0 for a handler that catches everything.
	CatchType uint16
}

type LineNumberTableAttribute struct {
	LineNumberTable []LineNumberEntry
}

type LineNumberEntry struct {
	StartPC    uint16
	LineNumber uint16
}

type LocalVariableTableAttribute struct {
	LocalVariableTable []LocalVariableEntry
}

// LocalVariableEntry is shared by LocalVariableTable and
// LocalVariableTypeTable; for the latter DescriptorIndex names a signature.
type LocalVariableEntry struct {
	StartPC         uint16
	Length          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

type SourceFileAttribute struct {
	SourceFileIndex uint16
	SourceFile      *Symbol
}

type ConstantValueAttribute struct {
	ConstantValueIndex uint16
}

type ExceptionsAttribute struct {
	ExceptionIndexTable []uint16
}

type InnerClassesAttribute struct {
	Classes []InnerClassEntry
}

type InnerClassEntry struct {
	InnerClassInfoIndex   uint16
	OuterClassInfoIndex   uint16
	InnerNameIndex        uint16
	InnerClassAccessFlags AccessFlags
}

type SignatureAttribute struct {
	SignatureIndex uint16
	Signature      *Symbol
}

type BootstrapMethodsAttribute struct {
	BootstrapMethods []BootstrapMethod
}

type BootstrapMethod struct {
	BootstrapMethodRef uint16
	BootstrapArguments []uint16
}

type EnclosingMethodAttribute struct {
	ClassIndex  uint16
	MethodIndex uint16
}

type SyntheticAttribute struct{}

type DeprecatedAttribute struct{}

type SourceDebugExtensionAttribute struct {
	DebugExtension []byte
}

type MethodParametersAttribute struct {
	Parameters []MethodParameter
}

type MethodParameter struct {
	NameIndex   uint16
	AccessFlags AccessFlags
}

type Annotation struct {
	TypeIndex         uint16
	ElementValuePairs []ElementValuePair
}

type ElementValuePair struct {
	ElementNameIndex uint16
	Value            ElementValue
}

// ElementValue holds a constant pool index (uint16) for the primitive,
// string and class tags, or an EnumConstValue, Annotation or ArrayValue.
type ElementValue struct {
	Tag   byte
	Value any
}

type EnumConstValue struct {
	TypeNameIndex  uint16
	ConstNameIndex uint16
}

type ArrayValue struct {
	Values []ElementValue
}

type AnnotationsAttribute struct {
	Visible     bool
	Annotations []Annotation
}

type ParameterAnnotationsAttribute struct {
	Visible              bool
	ParameterAnnotations [][]Annotation
}

type AnnotationDefaultAttribute struct {
	DefaultValue ElementValue
}

func (a *AttributeInfo) AsCode() *CodeAttribute {
	if a == nil {
		return nil
	}
	code, _ := a.Parsed.(*CodeAttribute)
	return code
}

func (a *AttributeInfo) AsLineNumberTable() *LineNumberTableAttribute {
	if a == nil {
		return nil
	}
	lnt, _ := a.Parsed.(*LineNumberTableAttribute)
	return lnt
}

func (a *AttributeInfo) AsLocalVariableTable() *LocalVariableTableAttribute {
	if a == nil {
		return nil
	}
	lvt, _ := a.Parsed.(*LocalVariableTableAttribute)
	return lvt
}

func (a *AttributeInfo) AsSourceFile() *SourceFileAttribute {
	if a == nil {
		return nil
	}
	sf, _ := a.Parsed.(*SourceFileAttribute)
	return sf
}

func (a *AttributeInfo) AsConstantValue() *ConstantValueAttribute {
	if a == nil {
		return nil
	}
	cv, _ := a.Parsed.(*ConstantValueAttribute)
	return cv
}

func (a *AttributeInfo) AsExceptions() *ExceptionsAttribute {
	if a == nil {
		return nil
	}
	ex, _ := a.Parsed.(*ExceptionsAttribute)
	return ex
}

func (a *AttributeInfo) AsInnerClasses() *InnerClassesAttribute {
	if a == nil {
		return nil
	}
	ic, _ := a.Parsed.(*InnerClassesAttribute)
	return ic
}

func (a *AttributeInfo) AsSignature() *SignatureAttribute {
	if a == nil {
		return nil
	}
	sig, _ := a.Parsed.(*SignatureAttribute)
	return sig
}

func (a *AttributeInfo) AsBootstrapMethods() *BootstrapMethodsAttribute {
	if a == nil {
		return nil
	}
	bm, _ := a.Parsed.(*BootstrapMethodsAttribute)
	return bm
}

func (a *AttributeInfo) AsEnclosingMethod() *EnclosingMethodAttribute {
	if a == nil {
		return nil
	}
	em, _ := a.Parsed.(*EnclosingMethodAttribute)
	return em
}

func (a *AttributeInfo) AsMethodParameters() *MethodParametersAttribute {
	if a == nil {
		return nil
	}
	mp, _ := a.Parsed.(*MethodParametersAttribute)
	return mp
}

func (a *AttributeInfo) AsStackMapTable() *StackMapTableAttribute {
	if a == nil {
		return nil
	}
	smt, _ := a.Parsed.(*StackMapTableAttribute)
	return smt
}

func (a *AttributeInfo) AsAnnotations() *AnnotationsAttribute {
	if a == nil {
		return nil
	}
	anns, _ := a.Parsed.(*AnnotationsAttribute)
	return anns
}

// attributeLocation says where an attribute table appears.
type attributeLocation int

const (
	locClass attributeLocation = iota
	locField
	locMethod
	locCode
)

func (l attributeLocation) String() string {
	switch l {
	case locClass:
		return "class"
	case locField:
		return "field"
	case locMethod:
		return "method"
	}
	return "Code"
}

type attributeDecoder func(p *parser, r *ByteReader) (any, error)

type attributeSpec struct {
	minMajor uint16
	unique   bool
	decode   attributeDecoder
}

// attributeSpecs is filled in init: the Code decoder reads nested
// attributes through it.
var attributeSpecs map[attributeLocation]map[string]attributeSpec

func init() {
	attributeSpecs = map[attributeLocation]map[string]attributeSpec{
		locClass: {
			AttrSourceFile:                      {unique: true, decode: readSourceFile},
			AttrSourceDebugExtension:            {unique: true, decode: readSourceDebugExtension},
			AttrInnerClasses:                    {unique: true, decode: readInnerClasses},
			AttrEnclosingMethod:                 {minMajor: Java5, unique: true, decode: readEnclosingMethod},
			AttrBootstrapMethods:                {minMajor: BootstrapMethodsMajorVersion, unique: true, decode: readBootstrapMethods},
			AttrSignature:                       {minMajor: Java5, unique: true, decode: readSignature},
			AttrSynthetic:                       {decode: readSynthetic},
			AttrDeprecated:                      {decode: readDeprecated},
			AttrRuntimeVisibleAnnotations:       {minMajor: AnnotationsMajorVersion, unique: true, decode: readVisibleAnnotations},
			AttrRuntimeInvisibleAnnotations:     {minMajor: AnnotationsMajorVersion, unique: true, decode: readInvisibleAnnotations},
			AttrRuntimeVisibleTypeAnnotations:   {minMajor: AnnotationsMajorVersion, unique: true},
			AttrRuntimeInvisibleTypeAnnotations: {minMajor: AnnotationsMajorVersion, unique: true},
		},
		locField: {
			AttrConstantValue:                   {unique: true, decode: readConstantValue},
			AttrSignature:                       {minMajor: Java5, unique: true, decode: readSignature},
			AttrSynthetic:                       {decode: readSynthetic},
			AttrDeprecated:                      {decode: readDeprecated},
			AttrRuntimeVisibleAnnotations:       {minMajor: AnnotationsMajorVersion, unique: true, decode: readVisibleAnnotations},
			AttrRuntimeInvisibleAnnotations:     {minMajor: AnnotationsMajorVersion, unique: true, decode: readInvisibleAnnotations},
			AttrRuntimeVisibleTypeAnnotations:   {minMajor: AnnotationsMajorVersion, unique: true},
			AttrRuntimeInvisibleTypeAnnotations: {minMajor: AnnotationsMajorVersion, unique: true},
		},
		locMethod: {
			AttrCode:                                 {unique: true, decode: readCode},
			AttrExceptions:                           {unique: true, decode: readExceptions},
			AttrSignature:                            {minMajor: Java5, unique: true, decode: readSignature},
			AttrSynthetic:                            {decode: readSynthetic},
			AttrDeprecated:                           {decode: readDeprecated},
			AttrMethodParameters:                     {unique: true, decode: readMethodParameters},
			AttrRuntimeVisibleAnnotations:            {minMajor: AnnotationsMajorVersion, unique: true, decode: readVisibleAnnotations},
			AttrRuntimeInvisibleAnnotations:          {minMajor: AnnotationsMajorVersion, unique: true, decode: readInvisibleAnnotations},
			AttrRuntimeVisibleParameterAnnotations:   {minMajor: AnnotationsMajorVersion, unique: true, decode: readVisibleParameterAnnotations},
			AttrRuntimeInvisibleParameterAnnotations: {minMajor: AnnotationsMajorVersion, unique: true, decode: readInvisibleParameterAnnotations},
			AttrRuntimeVisibleTypeAnnotations:        {minMajor: AnnotationsMajorVersion, unique: true},
			AttrRuntimeInvisibleTypeAnnotations:      {minMajor: AnnotationsMajorVersion, unique: true},
			AttrAnnotationDefault:                    {minMajor: AnnotationsMajorVersion, unique: true, decode: readAnnotationDefault},
		},
		locCode: {
			AttrLineNumberTable:                 {decode: readLineNumberTable},
			AttrLocalVariableTable:              {decode: readLocalVariableTable},
			AttrLocalVariableTypeTable:          {minMajor: Java5, decode: readLocalVariableTypeTable},
			AttrStackMapTable:                   {minMajor: StackMapTableMajorVersion, unique: true, decode: readStackMapTable},
			AttrRuntimeVisibleTypeAnnotations:   {minMajor: AnnotationsMajorVersion, unique: true},
			AttrRuntimeInvisibleTypeAnnotations: {minMajor: AnnotationsMajorVersion, unique: true},
		},
	}
}

// readAttributes reads an attribute count and that many attributes.
func (p *parser) readAttributes(r *ByteReader, loc attributeLocation) (Attributes, error) {
	count := r.ReadU2()
	if err := r.Err(); err != nil {
		return nil, err
	}
	attrs := make(Attributes, 0, count)
	seen := make(map[string]bool)
	for i := uint16(0); i < count; i++ {
		attr, err := p.readAttribute(r, loc, seen)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func (p *parser) readAttribute(r *ByteReader, loc attributeLocation, seen map[string]bool) (AttributeInfo, error) {
	nameIndex := r.ReadU2()
	length := r.ReadU4()
	if err := r.Err(); err != nil {
		return AttributeInfo{}, err
	}
	name, err := p.pool.Utf8At(nameIndex)
	if err != nil {
		return AttributeInfo{}, formatError(err, "invalid %s attribute name index %d", loc, nameIndex)
	}
	if uint64(length) > uint64(r.Remaining()) {
		return AttributeInfo{}, formatError(ErrTruncatedInput, "%s attribute %s declares %d bytes, %d available",
			loc, name, length, r.Remaining())
	}
	info := r.ReadBytes(int(length))
	attr := AttributeInfo{NameIndex: nameIndex, Name: name, Info: info}

	spec, known := attributeSpecs[loc][name.String()]
	if !known || p.major < spec.minMajor {
		return attr, nil
	}
	if spec.unique {
		if seen[name.String()] {
			return attr, semanticError("duplicate %s attribute in %s", name, loc)
		}
		seen[name.String()] = true
	}
	if spec.decode == nil {
		return attr, nil
	}

	sub := NewByteReader(info)
	parsed, err := spec.decode(p, sub)
	if err == nil {
		err = sub.Err()
	}
	if errors.Is(err, ErrTruncatedInput) {
		return attr, formatError(ErrAttributeLengthMismatch, "%s attribute %s: declared length %d is shorter than its contents",
			loc, name, length)
	}
	if err != nil {
		return attr, fmt.Errorf("%s attribute %s: %w", loc, name, err)
	}
	if sub.Remaining() != 0 {
		return attr, formatError(ErrAttributeLengthMismatch, "%s attribute %s: declared length %d, decoded %d bytes",
			loc, name, length, sub.Position())
	}
	attr.Parsed = parsed
	return attr, nil
}

func readCode(p *parser, r *ByteReader) (any, error) {
	code := &CodeAttribute{
		MaxStack:  r.ReadU2(),
		MaxLocals: r.ReadU2(),
	}
	codeLength := r.ReadU4()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if codeLength == 0 || codeLength > 65535 {
		return nil, semanticError("code length %d not in 1..65535", codeLength)
	}
	code.Code = r.ReadBytes(int(codeLength))

	exceptionTableLength := r.ReadU2()
	code.ExceptionTable = make([]ExceptionTableEntry, exceptionTableLength)
	for i := range code.ExceptionTable {
		e := ExceptionTableEntry{
			StartPC:   r.ReadU2(),
			EndPC:     r.ReadU2(),
			HandlerPC: r.ReadU2(),
			CatchType: r.ReadU2(),
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		if e.StartPC >= e.EndPC || uint32(e.EndPC) > codeLength || uint32(e.HandlerPC) >= codeLength {
			return nil, semanticError("illegal exception table range [%d, %d) handler %d", e.StartPC, e.EndPC, e.HandlerPC)
		}
		if e.CatchType != 0 {
			if _, err := p.pool.ClassAt(e.CatchType); err != nil {
				return nil, formatError(err, "invalid catch type #%d", e.CatchType)
			}
		}
		code.ExceptionTable[i] = e
	}

	attrs, err := p.readAttributes(r, locCode)
	if err != nil {
		return nil, err
	}
	code.Attributes = attrs
	return code, nil
}

func readExceptions(p *parser, r *ByteReader) (any, error) {
	count := r.ReadU2()
	ex := &ExceptionsAttribute{ExceptionIndexTable: make([]uint16, count)}
	for i := range ex.ExceptionIndexTable {
		index := r.ReadU2()
		if err := r.Err(); err != nil {
			return nil, err
		}
		if index == 0 {
			return nil, formatError(nil, "exception class index 0")
		}
		if _, err := p.pool.ClassAt(index); err != nil {
			return nil, formatError(err, "invalid exception class #%d", index)
		}
		ex.ExceptionIndexTable[i] = index
	}
	return ex, nil
}

func readLineNumberTable(_ *parser, r *ByteReader) (any, error) {
	count := r.ReadU2()
	lnt := &LineNumberTableAttribute{LineNumberTable: make([]LineNumberEntry, count)}
	for i := range lnt.LineNumberTable {
		lnt.LineNumberTable[i] = LineNumberEntry{
			StartPC:    r.ReadU2(),
			LineNumber: r.ReadU2(),
		}
	}
	return lnt, r.Err()
}

func readLocalVariables(r *ByteReader) []LocalVariableEntry {
	count := r.ReadU2()
	entries := make([]LocalVariableEntry, count)
	for i := range entries {
		entries[i] = LocalVariableEntry{
			StartPC:         r.ReadU2(),
			Length:          r.ReadU2(),
			NameIndex:       r.ReadU2(),
			DescriptorIndex: r.ReadU2(),
			Index:           r.ReadU2(),
		}
	}
	return entries
}

func readLocalVariableTable(_ *parser, r *ByteReader) (any, error) {
	return &LocalVariableTableAttribute{LocalVariableTable: readLocalVariables(r)}, r.Err()
}

func readLocalVariableTypeTable(_ *parser, r *ByteReader) (any, error) {
	return &LocalVariableTableAttribute{LocalVariableTable: readLocalVariables(r)}, r.Err()
}

func readSourceFile(p *parser, r *ByteReader) (any, error) {
	index := r.ReadU2()
	if err := r.Err(); err != nil {
		return nil, err
	}
	name, err := p.pool.Utf8At(index)
	if err != nil {
		return nil, formatError(err, "invalid source file index %d", index)
	}
	return &SourceFileAttribute{SourceFileIndex: index, SourceFile: name}, nil
}

func readSourceDebugExtension(_ *parser, r *ByteReader) (any, error) {
	return &SourceDebugExtensionAttribute{DebugExtension: r.ReadBytes(r.Remaining())}, r.Err()
}

func readConstantValue(_ *parser, r *ByteReader) (any, error) {
	return &ConstantValueAttribute{ConstantValueIndex: r.ReadU2()}, r.Err()
}

func readSignature(p *parser, r *ByteReader) (any, error) {
	index := r.ReadU2()
	if err := r.Err(); err != nil {
		return nil, err
	}
	sig, err := p.pool.Utf8At(index)
	if err != nil {
		return nil, formatError(err, "invalid signature index %d", index)
	}
	return &SignatureAttribute{SignatureIndex: index, Signature: sig}, nil
}

func readSynthetic(*parser, *ByteReader) (any, error) { return &SyntheticAttribute{}, nil }

func readDeprecated(*parser, *ByteReader) (any, error) { return &DeprecatedAttribute{}, nil }

func readEnclosingMethod(p *parser, r *ByteReader) (any, error) {
	em := &EnclosingMethodAttribute{
		ClassIndex:  r.ReadU2(),
		MethodIndex: r.ReadU2(),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if _, err := p.pool.ClassAt(em.ClassIndex); err != nil {
		return nil, formatError(err, "invalid enclosing class #%d", em.ClassIndex)
	}
	if em.MethodIndex != 0 {
		if _, _, err := p.pool.NameAndTypeAt(em.MethodIndex); err != nil {
			return nil, formatError(err, "invalid enclosing method #%d", em.MethodIndex)
		}
	}
	return em, nil
}

func readMethodParameters(p *parser, r *ByteReader) (any, error) {
	count := r.ReadU1()
	mp := &MethodParametersAttribute{Parameters: make([]MethodParameter, count)}
	for i := range mp.Parameters {
		param := MethodParameter{
			NameIndex:   r.ReadU2(),
			AccessFlags: AccessFlags(r.ReadU2()),
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		if param.NameIndex != 0 {
			if _, err := p.pool.Utf8At(param.NameIndex); err != nil {
				return nil, formatError(err, "invalid parameter name index %d", param.NameIndex)
			}
		}
		mp.Parameters[i] = param
	}
	return mp, nil
}

func readBootstrapMethods(p *parser, r *ByteReader) (any, error) {
	count := r.ReadU2()
	bm := &BootstrapMethodsAttribute{BootstrapMethods: make([]BootstrapMethod, count)}
	for i := range bm.BootstrapMethods {
		ref := r.ReadU2()
		argc := r.ReadU2()
		if err := r.Err(); err != nil {
			return nil, err
		}
		if ref == 0 || int(ref) >= p.pool.Size() {
			return nil, formatError(ErrIndexOutOfRange, "bootstrap method %d: invalid method handle index %d", i, ref)
		}
		if _, err := p.pool.raw(ref, ConstantMethodHandle); err != nil {
			return nil, formatError(err, "bootstrap method %d", i)
		}
		args := make([]uint16, argc)
		for j := range args {
			args[j] = r.ReadU2()
			if err := r.Err(); err != nil {
				return nil, err
			}
			tag, err := p.pool.TagAt(args[j])
			if err != nil {
				return nil, formatError(err, "bootstrap method %d argument %d", i, j)
			}
			if !tag.IsLoadable() {
				return nil, formatError(ErrUnexpectedConstantTag, "bootstrap method %d argument %d is not loadable: %s", i, j, tag)
			}
		}
		bm.BootstrapMethods[i] = BootstrapMethod{BootstrapMethodRef: ref, BootstrapArguments: args}
	}
	if p.pool.maxBootstrapIndex >= int(count) {
		return nil, formatError(nil, "BootstrapMethods has %d entries, constant pool refers to index %d",
			count, p.pool.maxBootstrapIndex)
	}
	p.pool.bootstrapMethods = bm.BootstrapMethods
	return bm, nil
}

func readVisibleAnnotations(p *parser, r *ByteReader) (any, error) {
	anns, err := readAnnotationList(p, r)
	return &AnnotationsAttribute{Visible: true, Annotations: anns}, err
}

func readInvisibleAnnotations(p *parser, r *ByteReader) (any, error) {
	anns, err := readAnnotationList(p, r)
	return &AnnotationsAttribute{Annotations: anns}, err
}

func readVisibleParameterAnnotations(p *parser, r *ByteReader) (any, error) {
	params, err := readParameterAnnotations(p, r)
	return &ParameterAnnotationsAttribute{Visible: true, ParameterAnnotations: params}, err
}

func readInvisibleParameterAnnotations(p *parser, r *ByteReader) (any, error) {
	params, err := readParameterAnnotations(p, r)
	return &ParameterAnnotationsAttribute{ParameterAnnotations: params}, err
}

func readAnnotationDefault(p *parser, r *ByteReader) (any, error) {
	ev, err := readElementValue(p, r, 0)
	if err != nil {
		return nil, err
	}
	return &AnnotationDefaultAttribute{DefaultValue: ev}, nil
}

func readParameterAnnotations(p *parser, r *ByteReader) ([][]Annotation, error) {
	count := r.ReadU1()
	params := make([][]Annotation, count)
	for i := range params {
		anns, err := readAnnotationList(p, r)
		if err != nil {
			return nil, err
		}
		params[i] = anns
	}
	return params, r.Err()
}

func readAnnotationList(p *parser, r *ByteReader) ([]Annotation, error) {
	count := r.ReadU2()
	anns := make([]Annotation, 0, count)
	for i := uint16(0); i < count; i++ {
		ann, err := readAnnotation(p, r, 0)
		if err != nil {
			return nil, err
		}
		anns = append(anns, ann)
	}
	return anns, r.Err()
}

// Nesting is bounded so that adversarial input cannot exhaust the stack.
const maxAnnotationDepth = 64

func readAnnotation(p *parser, r *ByteReader, depth int) (Annotation, error) {
	ann := Annotation{TypeIndex: r.ReadU2()}
	numPairs := r.ReadU2()
	if err := r.Err(); err != nil {
		return ann, err
	}
	if _, err := p.pool.Utf8At(ann.TypeIndex); err != nil {
		return ann, formatError(err, "invalid annotation type index %d", ann.TypeIndex)
	}
	ann.ElementValuePairs = make([]ElementValuePair, numPairs)
	for i := range ann.ElementValuePairs {
		pair := ElementValuePair{ElementNameIndex: r.ReadU2()}
		value, err := readElementValue(p, r, depth)
		if err != nil {
			return ann, err
		}
		pair.Value = value
		ann.ElementValuePairs[i] = pair
	}
	return ann, nil
}

func readElementValue(p *parser, r *ByteReader, depth int) (ElementValue, error) {
	if depth > maxAnnotationDepth {
		return ElementValue{}, formatError(nil, "annotation nesting deeper than %d", maxAnnotationDepth)
	}
	ev := ElementValue{Tag: r.ReadU1()}
	if err := r.Err(); err != nil {
		return ev, err
	}
	switch ev.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		ev.Value = r.ReadU2()
	case 'e':
		ev.Value = EnumConstValue{
			TypeNameIndex:  r.ReadU2(),
			ConstNameIndex: r.ReadU2(),
		}
	case '@':
		ann, err := readAnnotation(p, r, depth+1)
		if err != nil {
			return ev, err
		}
		ev.Value = ann
	case '[':
		numValues := r.ReadU2()
		values := make([]ElementValue, 0, numValues)
		for i := uint16(0); i < numValues; i++ {
			v, err := readElementValue(p, r, depth+1)
			if err != nil {
				return ev, err
			}
			values = append(values, v)
		}
		ev.Value = ArrayValue{Values: values}
	default:
		return ev, formatError(nil, "invalid element value tag %q", ev.Tag)
	}
	return ev, r.Err()
}
