package classfile

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("jcheck.classfile")

type options struct {
	expectedName string
	host         ClassHandle
	maxMajor     uint16
	logger       commonlog.Logger
}

type Option func(*options)

// WithExpectedName makes the parse fail with NoClassDefFoundError unless
// this_class names the given internal name.
func WithExpectedName(name string) Option {
	return func(o *options) {
		o.expectedName = name
	}
}

// WithHostClass records the host class of an anonymous or hidden class.
func WithHostClass(host ClassHandle) Option {
	return func(o *options) {
		o.host = host
	}
}

// WithMaxMajorVersion changes the newest accepted class file version.
func WithMaxMajorVersion(major uint16) Option {
	return func(o *options) {
		o.maxMajor = major
	}
}

func WithLogger(logger commonlog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Parser turns class file bytes into ClassFile values. Utf8 constants are
// interned in the parser's SymbolTable and string literals in its
// StringTable. A Parser is safe for concurrent use.
type Parser struct {
	symbols  *SymbolTable
	strings  *StringTable
	defaults options
}

func NewParser(symbols *SymbolTable, strings *StringTable, opts ...Option) *Parser {
	p := &Parser{
		symbols:  symbols,
		strings:  strings,
		defaults: options{maxMajor: MaxSupportedMajor, logger: log},
	}
	for _, opt := range opts {
		opt(&p.defaults)
	}
	return p
}

func (p *Parser) Symbols() *SymbolTable { return p.symbols }

func (p *Parser) Strings() *StringTable { return p.strings }

// Parse decodes one class file. The first violation aborts the parse and
// no ClassFile is returned. data is copied, so the caller may reuse it.
func (p *Parser) Parse(data []byte, opts ...Option) (*ClassFile, error) {
	o := p.defaults
	for _, opt := range opts {
		opt(&o)
	}
	ps := &parser{
		Parser: p,
		opts:   o,
		log:    o.logger,
		r:      NewByteReader(bytes.Clone(data)),
	}
	cf, err := ps.parseClass()
	if err != nil {
		ps.log.Debugf("rejected class file (%d bytes): %v", len(data), err)
		return nil, err
	}
	ps.log.Debugf("parsed %s (version %d.%d, %d fields, %d methods)",
		cf.Name, cf.MajorVersion, cf.MinorVersion, len(cf.Fields), len(cf.Methods))
	return cf, nil
}

func (p *Parser) ParseFile(path string, opts ...Option) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class file: %w", err)
	}
	return p.Parse(data, opts...)
}

// Parse reads a class file from rd using fresh symbol and string tables.
func Parse(rd io.Reader, opts ...Option) (*ClassFile, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to read class file: %w", err)
	}
	return NewParser(NewSymbolTable(), NewStringTable()).Parse(data, opts...)
}

func ParseFile(path string, opts ...Option) (*ClassFile, error) {
	return NewParser(NewSymbolTable(), NewStringTable()).ParseFile(path, opts...)
}

// parser holds the state of one parse.
type parser struct {
	*Parser
	opts options
	log  commonlog.Logger
	r    *ByteReader

	major, minor    uint16
	pool            *ConstantPool
	badConstantSeen ConstantTag
	thisClassIndex  uint16
	className       *Symbol
	flags           AccessFlags

	outerClass     *Symbol
	innerFlags     AccessFlags
	hasInnerRecord bool
}

func (p *parser) parseClass() (*ClassFile, error) {
	r := p.r

	magic := r.ReadU4()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, formatError(ErrBadMagic, "invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	p.minor = r.ReadU2()
	p.major = r.ReadU2()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if err := p.checkVersion(); err != nil {
		return nil, err
	}

	if err := p.readConstantPool(); err != nil {
		return nil, err
	}

	cf := &ClassFile{
		MinorVersion: p.minor,
		MajorVersion: p.major,
		ConstantPool: p.pool,
		HostClass:    p.opts.host,
	}

	if err := p.readClassFlags(); err != nil {
		return nil, err
	}
	cf.AccessFlags = p.flags

	if err := p.readThisClass(cf); err != nil {
		return nil, err
	}
	if err := p.readSuperClass(cf); err != nil {
		return nil, err
	}
	if err := p.readInterfaces(cf); err != nil {
		return nil, err
	}

	fields, err := p.readFields()
	if err != nil {
		return nil, err
	}
	cf.Fields = fields

	methods, err := p.readMethods()
	if err != nil {
		return nil, err
	}
	cf.Methods = methods

	attrs, err := p.readAttributes(r, locClass)
	if err != nil {
		return nil, err
	}
	cf.Attributes = attrs
	if p.pool.maxBootstrapIndex >= 0 {
		if bm := attrs.Get(AttrBootstrapMethods); bm == nil || bm.AsBootstrapMethods() == nil {
			return nil, formatError(nil, "missing BootstrapMethods attribute in %s", p.className)
		}
	}
	if p.hasInnerRecord {
		cf.OuterClass = p.outerClass
		cf.InnerAccessFlags = p.innerFlags
		cf.IsInnerClass = true
	}

	if err := r.AssertExhausted(); err != nil {
		return nil, err
	}
	return cf, nil
}

func (p *parser) checkVersion() error {
	maxMajor := p.opts.maxMajor
	if p.major < MinSupportedMajor || p.major > maxMajor || (p.major == maxMajor && p.minor != 0) {
		return newError(ErrMalformedInput, ErrUnsupportedVersion, UnsupportedClassVersionError,
			"unsupported class file version %d.%d (supported %d.0 to %d.0)", p.major, p.minor, MinSupportedMajor, maxMajor)
	}
	return nil
}

func (p *parser) readConstantPool() error {
	r := p.r
	count := r.ReadU2()
	if err := r.Err(); err != nil {
		return err
	}
	if count < 1 {
		return formatError(ErrInvalidPoolSize, "invalid constant pool size %d", count)
	}

	entries := make([]ConstantPoolEntry, count)
	entries[0] = invalidEntry
	for i := 1; i < int(count); i++ {
		tag := ConstantTag(r.ReadU1())
		if err := r.Err(); err != nil {
			return err
		}
		entry, err := p.readConstant(tag)
		if err != nil {
			return err
		}
		if err := r.Err(); err != nil {
			return err
		}
		entries[i] = entry
		if tag == ConstantLong || tag == ConstantDouble {
			i++
			if i >= int(count) {
				return formatError(nil, "%s constant at index %d overruns constant pool of size %d", tag, i-1, count)
			}
			entries[i] = invalidEntry
		}
	}

	p.pool = NewConstantPool(entries, p.symbols, p.strings)
	p.pool.majorVersion = p.major
	return p.pool.validate()
}

func (p *parser) readConstant(tag ConstantTag) (ConstantPoolEntry, error) {
	r := p.r
	switch tag {
	case ConstantUtf8:
		b := r.ReadUtf8()
		if err := r.Err(); err != nil {
			return nil, err
		}
		return &ConstantUtf8Info{Value: p.symbols.Intern(b)}, nil
	case ConstantInteger:
		return &ConstantIntegerInfo{Value: r.ReadS4()}, nil
	case ConstantFloat:
		return &ConstantFloatInfo{Value: r.ReadFloat()}, nil
	case ConstantLong:
		return &ConstantLongInfo{Value: r.ReadS8()}, nil
	case ConstantDouble:
		return &ConstantDoubleInfo{Value: r.ReadDouble()}, nil
	case ConstantClass:
		return &ConstantClassInfo{NameIndex: r.ReadU2()}, nil
	case ConstantString:
		return &ConstantStringInfo{StringIndex: r.ReadU2()}, nil
	case ConstantFieldref:
		return &ConstantFieldrefInfo{ClassIndex: r.ReadU2(), NameAndTypeIndex: r.ReadU2()}, nil
	case ConstantMethodref:
		return &ConstantMethodrefInfo{ClassIndex: r.ReadU2(), NameAndTypeIndex: r.ReadU2()}, nil
	case ConstantInterfaceMethodref:
		return &ConstantInterfaceMethodrefInfo{ClassIndex: r.ReadU2(), NameAndTypeIndex: r.ReadU2()}, nil
	case ConstantNameAndType:
		return &ConstantNameAndTypeInfo{NameIndex: r.ReadU2(), DescriptorIndex: r.ReadU2()}, nil
	case ConstantMethodHandle:
		if err := p.checkConstantVersion(tag, MethodHandleMajorVersion); err != nil {
			return nil, err
		}
		return &ConstantMethodHandleInfo{ReferenceKind: MethodHandleKind(r.ReadU1()), ReferenceIndex: r.ReadU2()}, nil
	case ConstantMethodType:
		if err := p.checkConstantVersion(tag, MethodHandleMajorVersion); err != nil {
			return nil, err
		}
		return &ConstantMethodTypeInfo{DescriptorIndex: r.ReadU2()}, nil
	case ConstantDynamic:
		if err := p.checkConstantVersion(tag, DynamicConstantMajorVersion); err != nil {
			return nil, err
		}
		return &ConstantDynamicInfo{BootstrapMethodAttrIndex: r.ReadU2(), NameAndTypeIndex: r.ReadU2()}, nil
	case ConstantInvokeDynamic:
		if err := p.checkConstantVersion(tag, InvokeDynamicMajorVersion); err != nil {
			return nil, err
		}
		return &ConstantInvokeDynamicInfo{BootstrapMethodAttrIndex: r.ReadU2(), NameAndTypeIndex: r.ReadU2()}, nil
	case ConstantModule, ConstantPackage:
		if p.major < ModuleConstantMajorVersion {
			return nil, formatError(ErrInvalidConstantTag, "unknown constant tag %d", uint8(tag))
		}
		// only legal in module-info; the error is raised once the class
		// flags show this is not a module
		r.ReadU2()
		if p.badConstantSeen == 0 {
			p.badConstantSeen = tag
			p.log.Warningf("deferring error for %s constant", tag)
		}
		return invalidEntry, nil
	}
	return nil, formatError(ErrInvalidConstantTag, "unknown constant tag %d", uint8(tag))
}

func (p *parser) checkConstantVersion(tag ConstantTag, minMajor uint16) error {
	if p.major < minMajor {
		return unsupportedError(ErrUnsupportedConstantForVersion,
			"%s constant requires class file version %d, got %d", tag, minMajor, p.major)
	}
	return nil
}

func (p *parser) readClassFlags() error {
	flags := AccessFlags(p.r.ReadU2())
	if err := p.r.Err(); err != nil {
		return err
	}
	mask := RecognizedClassFlags
	if p.major >= Java9 {
		mask |= AccModule
	}
	flags &= mask

	if flags.IsModule() {
		return noClassDefFoundError("class file has ACC_MODULE set and is not a class")
	}
	if p.badConstantSeen != 0 {
		return formatError(ErrInvalidConstantTag, "unknown constant tag %d", uint8(p.badConstantSeen))
	}
	if flags.IsInterface() && p.major < InterfaceAbstractMajorVersion {
		flags |= AccAbstract
	}
	if err := checkClassFlags(flags, p.major); err != nil {
		return err
	}
	p.flags = flags
	return nil
}

func (p *parser) readThisClass(cf *ClassFile) error {
	index := p.r.ReadU2()
	if err := p.r.Err(); err != nil {
		return err
	}
	name, err := p.pool.ClassAt(index)
	if err != nil {
		return formatError(err, "invalid this_class index %d", index)
	}
	if IsArrayName(name.String()) {
		return formatError(nil, "this_class %s is not a class", name)
	}
	if p.opts.expectedName != "" && p.opts.expectedName != name.String() {
		return newError(ErrSemanticViolation, nil, NoClassDefFoundError,
			"%s (wrong name: %s)", p.opts.expectedName, name)
	}
	p.thisClassIndex = index
	p.className = name
	cf.ThisClass = index
	cf.Name = name
	return nil
}

func (p *parser) readSuperClass(cf *ClassFile) error {
	index := p.r.ReadU2()
	if err := p.r.Err(); err != nil {
		return err
	}
	cf.SuperClass = index
	if index == 0 {
		if p.className.String() != ObjectClassName {
			return formatError(nil, "invalid superclass index 0 in %s", p.className)
		}
		return nil
	}
	name, err := p.pool.ClassAt(index)
	if err != nil {
		return formatError(err, "invalid superclass index %d", index)
	}
	if IsArrayName(name.String()) {
		return formatError(nil, "superclass %s of %s is not a class", name, p.className)
	}
	if p.flags.IsInterface() && name.String() != ObjectClassName {
		return formatError(nil, "interface %s must extend %s, not %s", p.className, ObjectClassName, name)
	}
	cf.SuperName = name
	return nil
}

func (p *parser) readInterfaces(cf *ClassFile) error {
	count := p.r.ReadU2()
	if err := p.r.Err(); err != nil {
		return err
	}
	cf.Interfaces = make([]uint16, count)
	cf.InterfaceNames = make([]*Symbol, count)
	seen := make(map[*Symbol]bool, count)
	for i := range cf.Interfaces {
		index := p.r.ReadU2()
		if err := p.r.Err(); err != nil {
			return err
		}
		name, err := p.pool.ClassAt(index)
		if err != nil {
			return formatError(err, "invalid interface index %d", index)
		}
		if IsArrayName(name.String()) {
			return formatError(nil, "interface %s of %s is not a class", name, p.className)
		}
		if seen[name] {
			return semanticError("duplicate interface %s in %s", name, p.className)
		}
		seen[name] = true
		cf.Interfaces[i] = index
		cf.InterfaceNames[i] = name
	}
	return nil
}

type memberKey struct {
	name, descriptor *Symbol
}

func (p *parser) readFields() ([]FieldInfo, error) {
	count := p.r.ReadU2()
	if err := p.r.Err(); err != nil {
		return nil, err
	}
	fields := make([]FieldInfo, 0, count)
	seen := make(map[memberKey]bool, count)
	for i := uint16(0); i < count; i++ {
		field, err := p.readField()
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		key := memberKey{field.Name, field.Descriptor}
		if seen[key] {
			return nil, semanticError("duplicate field %s:%s in %s", field.Name, field.Descriptor, p.className)
		}
		seen[key] = true
		fields = append(fields, field)
	}
	return fields, nil
}

func (p *parser) readField() (FieldInfo, error) {
	r := p.r
	field := FieldInfo{
		AccessFlags:     AccessFlags(r.ReadU2()) & RecognizedFieldFlags,
		NameIndex:       r.ReadU2(),
		DescriptorIndex: r.ReadU2(),
	}
	if err := r.Err(); err != nil {
		return field, err
	}
	var err error
	if field.Name, err = p.pool.Utf8At(field.NameIndex); err != nil {
		return field, formatError(err, "invalid field name index %d", field.NameIndex)
	}
	if field.Descriptor, err = p.pool.Utf8At(field.DescriptorIndex); err != nil {
		return field, formatError(err, "invalid field descriptor index %d", field.DescriptorIndex)
	}
	if err := checkFieldFlags(field.AccessFlags, p.flags.IsInterface()); err != nil {
		return field, fmt.Errorf("%s: %w", field.Name, err)
	}
	if field.Descriptor.String() == "V" {
		return field, semanticError("field %s has void type", field.Name)
	}
	if field.Type, err = ParseFieldDescriptor(field.Descriptor.String()); err != nil {
		return field, formatError(nil, "field %s: %v", field.Name, err)
	}

	if field.Attributes, err = p.readAttributes(r, locField); err != nil {
		return field, err
	}
	// ConstantValue is ignored on instance fields.
	if !field.AccessFlags.IsStatic() {
		return field, nil
	}
	if cv := field.Attributes.Get(AttrConstantValue).AsConstantValue(); cv != nil {
		if err := p.checkConstantValue(&field, cv.ConstantValueIndex); err != nil {
			return field, err
		}
	}
	return field, nil
}

func (p *parser) checkConstantValue(field *FieldInfo, index uint16) error {
	tag, err := p.pool.TagAt(index)
	if err != nil {
		return formatError(err, "invalid ConstantValue index %d for field %s", index, field.Name)
	}
	var expected ConstantTag
	ft := field.Type
	switch {
	case ft.IsArray():
	case ft.Char == 'Z', ft.Char == 'B', ft.Char == 'S', ft.Char == 'C', ft.Char == 'I':
		expected = ConstantInteger
	case ft.Char == 'F':
		expected = ConstantFloat
	case ft.Char == 'J':
		expected = ConstantLong
	case ft.Char == 'D':
		expected = ConstantDouble
	case ft.ClassName == StringClassName:
		expected = ConstantString
	}
	if expected == ConstantInvalid {
		return semanticError("field %s of type %s cannot have a ConstantValue", field.Name, field.Descriptor)
	}
	if tag != expected {
		return semanticError("inconsistent ConstantValue for field %s: %s constant, %s expected", field.Name, tag, expected)
	}
	return nil
}

func (p *parser) readMethods() ([]MethodInfo, error) {
	count := p.r.ReadU2()
	if err := p.r.Err(); err != nil {
		return nil, err
	}
	methods := make([]MethodInfo, 0, count)
	seen := make(map[memberKey]bool, count)
	for i := uint16(0); i < count; i++ {
		method, err := p.readMethod()
		if err != nil {
			return nil, fmt.Errorf("method %d: %w", i, err)
		}
		key := memberKey{method.Name, method.Descriptor}
		if seen[key] {
			return nil, semanticError("duplicate method %s%s in %s", method.Name, method.Descriptor, p.className)
		}
		seen[key] = true
		methods = append(methods, method)
	}
	return methods, nil
}

func (p *parser) readMethod() (MethodInfo, error) {
	r := p.r
	method := MethodInfo{
		AccessFlags:     AccessFlags(r.ReadU2()),
		NameIndex:       r.ReadU2(),
		DescriptorIndex: r.ReadU2(),
	}
	if err := r.Err(); err != nil {
		return method, err
	}
	var err error
	if method.Name, err = p.pool.Utf8At(method.NameIndex); err != nil {
		return method, formatError(err, "invalid method name index %d", method.NameIndex)
	}
	if method.Descriptor, err = p.pool.Utf8At(method.DescriptorIndex); err != nil {
		return method, formatError(err, "invalid method descriptor index %d", method.DescriptorIndex)
	}
	name := method.Name.String()

	switch {
	case name == ClassInitMethodName:
		if p.major < StaticInitFlagsMajorVersion {
			method.AccessFlags = AccStatic
		} else if method.AccessFlags.IsStatic() {
			method.AccessFlags &= AccStrict | AccStatic
		} else {
			return method, formatError(nil, "method %s in %s is not static", name, p.className)
		}
	case len(name) == 0 || (name[0] == '<' && name != InitMethodName):
		return method, formatError(nil, "illegal method name %q in %s", name, p.className)
	default:
		method.AccessFlags &= RecognizedMethodFlags
		if err := checkMethodFlags(method.AccessFlags, p.flags.IsInterface(), name, p.major); err != nil {
			return method, fmt.Errorf("%s%s: %w", name, method.Descriptor, err)
		}
	}

	if method.Type, err = ParseMethodDescriptor(method.Descriptor.String()); err != nil {
		return method, formatError(nil, "method %s: %v", name, err)
	}
	if (name == InitMethodName || name == ClassInitMethodName) && method.Type.ReturnType != nil {
		return method, formatError(nil, "method %s%s must return void", name, method.Descriptor)
	}
	if name == ClassInitMethodName && p.major >= Java7 && len(method.Type.Parameters) != 0 {
		return method, formatError(nil, "method %s%s in %s has an invalid signature", name, method.Descriptor, p.className)
	}
	method.ArgumentSlots = method.Type.ArgumentSlots()
	if !method.AccessFlags.IsStatic() {
		method.ArgumentSlots++
	}
	if method.ArgumentSlots > MaxArgumentSlots {
		return method, semanticError("method %s%s has %d argument slots, more than %d",
			name, method.Descriptor, method.ArgumentSlots, MaxArgumentSlots)
	}

	if method.Attributes, err = p.readAttributes(r, locMethod); err != nil {
		return method, fmt.Errorf("%s%s: %w", name, method.Descriptor, err)
	}
	method.Code = method.Attributes.Get(AttrCode).AsCode()
	if method.AccessFlags.IsNative() || method.AccessFlags.IsAbstract() {
		if method.Code != nil {
			return method, semanticError("%s method %s%s has a Code attribute", nativeOrAbstract(method.AccessFlags), name, method.Descriptor)
		}
	} else if method.Code == nil {
		return method, semanticError("method %s%s has no Code attribute", name, method.Descriptor)
	}
	return method, nil
}

func nativeOrAbstract(flags AccessFlags) string {
	if flags.IsNative() {
		return "native"
	}
	return "abstract"
}
