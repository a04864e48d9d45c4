// Package format renders summaries of parsed class files.
package format

import (
	"encoding"
	"fmt"
	"io"
	"strings"

	"github.com/dhamidi/jcheck/classfile"
)

type Encoder interface {
	encoding.TextMarshaler
	Encode(class *Class) error
}

// Names lists the formats accepted by NewEncoder.
var Names = []string{"json", "line", "cbor"}

func NewEncoder(name string, w io.Writer) (Encoder, error) {
	switch name {
	case "json":
		return NewJSONEncoder(w), nil
	case "line":
		return NewLineEncoder(w), nil
	case "cbor":
		return NewCBOREncoder(w), nil
	}
	return nil, fmt.Errorf("unknown format %q, want one of %s", name, strings.Join(Names, ", "))
}

// Class is the summary of one class file shared by all encoders.
type Class struct {
	Name            string     `json:"name"`
	Package         string     `json:"package"`
	SuperClass      string     `json:"superClass,omitempty"`
	Interfaces      []string   `json:"interfaces,omitempty"`
	Visibility      string     `json:"visibility"`
	Kind            string     `json:"kind"`
	Modifiers       []string   `json:"modifiers,omitempty"`
	Version         Version    `json:"version"`
	SourceFile      string     `json:"sourceFile,omitempty"`
	Signature       string     `json:"signature,omitempty"`
	EnclosingMethod string     `json:"enclosingMethod,omitempty"`
	Annotations     []string   `json:"annotations,omitempty"`
	Constants       []Constant `json:"constants,omitempty"`
	Fields          []Field    `json:"fields,omitempty"`
	Methods         []Method   `json:"methods,omitempty"`
}

type Version struct {
	Major uint16 `json:"major"`
	Minor uint16 `json:"minor"`
}

// Constant is one usable constant pool entry; the slots after Long and
// Double entries are left out.
type Constant struct {
	Index       uint16 `json:"index"`
	Tag         string `json:"tag"`
	Description string `json:"description"`
}

type Field struct {
	Name        string   `json:"name"`
	Descriptor  string   `json:"descriptor"`
	Type        string   `json:"type"`
	Visibility  string   `json:"visibility"`
	Modifiers   []string `json:"modifiers,omitempty"`
	Signature   string   `json:"signature,omitempty"`
	Annotations []string `json:"annotations,omitempty"`
}

type Method struct {
	Name       string   `json:"name"`
	Descriptor string   `json:"descriptor"`
	ReturnType string   `json:"returnType"`
	Parameters []string `json:"parameters,omitempty"`
	Visibility string   `json:"visibility"`
	Modifiers  []string `json:"modifiers,omitempty"`
	// ParameterNames comes from MethodParameters; unnamed parameters are
	// empty strings.
	ParameterNames []string `json:"parameterNames,omitempty"`
	Signature      string   `json:"signature,omitempty"`
	Annotations    []string `json:"annotations,omitempty"`
	Code           *Code    `json:"code,omitempty"`
	// VerifyError is set by callers that verified the method and saw it
	// fail.
	VerifyError string `json:"verifyError,omitempty"`
}

type Code struct {
	MaxStack  uint16 `json:"maxStack"`
	MaxLocals uint16 `json:"maxLocals"`
	Length    int    `json:"length"`
	Handlers  int    `json:"handlers,omitempty"`
	// FirstLine and LastLine span the LineNumberTable, 0 without one.
	FirstLine      int `json:"firstLine,omitempty"`
	LastLine       int `json:"lastLine,omitempty"`
	LocalVariables int `json:"localVariables,omitempty"`
}

// Summarize builds the summary of cf. Methods appear in class file order.
func Summarize(cf *classfile.ClassFile) *Class {
	c := &Class{
		Name:       classfile.InternalToSourceName(cf.ClassName()),
		Package:    classfile.InternalToSourceName(classfile.PackageName(cf.ClassName())),
		Visibility: visibility(cf.AccessFlags),
		Kind:       classKind(cf),
		Modifiers:  classModifiers(cf.AccessFlags),
		Version:    Version{Major: cf.MajorVersion, Minor: cf.MinorVersion},
		SourceFile: cf.SourceFile(),
		Signature:  signature(cf.Attributes),
	}
	pool := cf.ConstantPool
	c.Annotations = annotations(pool, cf.Attributes)
	if em := cf.GetAttribute(classfile.AttrEnclosingMethod).AsEnclosingMethod(); em != nil {
		c.EnclosingMethod = pool.GetClassName(em.ClassIndex)
		if em.MethodIndex != 0 {
			if name, desc, err := pool.NameAndTypeAt(em.MethodIndex); err == nil {
				c.EnclosingMethod += "." + name.String() + desc.String()
			}
		}
	}
	if cf.SuperName != nil {
		c.SuperClass = classfile.InternalToSourceName(cf.SuperName.String())
	}
	for _, n := range cf.InterfaceNames {
		c.Interfaces = append(c.Interfaces, classfile.InternalToSourceName(n.String()))
	}
	for i := 1; i < pool.Size(); i++ {
		tag, err := pool.TagAt(uint16(i))
		if err != nil || tag == classfile.ConstantInvalid {
			continue
		}
		c.Constants = append(c.Constants, Constant{Index: uint16(i), Tag: tag.String(), Description: pool.Describe(uint16(i))})
	}
	for i := range cf.Fields {
		f := &cf.Fields[i]
		c.Fields = append(c.Fields, Field{
			Name:        f.Name.String(),
			Descriptor:  f.Descriptor.String(),
			Type:        f.Type.String(),
			Visibility:  visibility(f.AccessFlags),
			Modifiers:   fieldModifiers(f.AccessFlags),
			Signature:   signature(f.Attributes),
			Annotations: annotations(pool, f.Attributes),
		})
	}
	for i := range cf.Methods {
		c.Methods = append(c.Methods, summarizeMethod(pool, &cf.Methods[i]))
	}
	return c
}

func summarizeMethod(pool *classfile.ConstantPool, m *classfile.MethodInfo) Method {
	out := Method{
		Name:        m.Name.String(),
		Descriptor:  m.Descriptor.String(),
		ReturnType:  "void",
		Visibility:  visibility(m.AccessFlags),
		Modifiers:   methodModifiers(m.AccessFlags),
		Signature:   signature(m.Attributes),
		Annotations: annotations(pool, m.Attributes),
	}
	if rt := m.Type.ReturnType; rt != nil {
		out.ReturnType = rt.String()
	}
	for _, p := range m.Type.Parameters {
		out.Parameters = append(out.Parameters, p.String())
	}
	if mp := m.GetAttribute(classfile.AttrMethodParameters).AsMethodParameters(); mp != nil {
		for _, p := range mp.Parameters {
			out.ParameterNames = append(out.ParameterNames, pool.GetUtf8(p.NameIndex))
		}
	}
	if m.Code != nil {
		out.Code = &Code{
			MaxStack:  m.Code.MaxStack,
			MaxLocals: m.Code.MaxLocals,
			Length:    len(m.Code.Code),
			Handlers:  len(m.Code.ExceptionTable),
		}
		if lnt := m.Code.Attributes.Get(classfile.AttrLineNumberTable).AsLineNumberTable(); lnt != nil {
			for _, e := range lnt.LineNumberTable {
				line := int(e.LineNumber)
				if out.Code.FirstLine == 0 || line < out.Code.FirstLine {
					out.Code.FirstLine = line
				}
				out.Code.LastLine = max(out.Code.LastLine, line)
			}
		}
		if lvt := m.Code.Attributes.Get(classfile.AttrLocalVariableTable).AsLocalVariableTable(); lvt != nil {
			out.Code.LocalVariables = len(lvt.LocalVariableTable)
		}
	}
	return out
}

func signature(attrs classfile.Attributes) string {
	if sig := attrs.Get(classfile.AttrSignature).AsSignature(); sig != nil {
		return sig.Signature.String()
	}
	return ""
}

// annotations lists the types of the visible then invisible annotations
// in source form.
func annotations(pool *classfile.ConstantPool, attrs classfile.Attributes) []string {
	var names []string
	for _, attr := range []string{classfile.AttrRuntimeVisibleAnnotations, classfile.AttrRuntimeInvisibleAnnotations} {
		anns := attrs.Get(attr).AsAnnotations()
		if anns == nil {
			continue
		}
		for _, a := range anns.Annotations {
			name := pool.GetUtf8(a.TypeIndex)
			if ft, err := classfile.ParseFieldDescriptor(name); err == nil {
				name = ft.String()
			}
			names = append(names, name)
		}
	}
	return names
}

func visibility(flags classfile.AccessFlags) string {
	switch {
	case flags.IsPublic():
		return "public"
	case flags.IsProtected():
		return "protected"
	case flags.IsPrivate():
		return "private"
	}
	return "package"
}

func classKind(cf *classfile.ClassFile) string {
	switch {
	case cf.IsAnnotation():
		return "annotation"
	case cf.IsEnum():
		return "enum"
	case cf.IsInterface():
		return "interface"
	case cf.AccessFlags.IsModule():
		return "module"
	default:
		return "class"
	}
}

func classModifiers(flags classfile.AccessFlags) []string {
	var mods []string
	if flags.IsFinal() {
		mods = append(mods, "final")
	}
	if flags.IsAbstract() && !flags.IsInterface() {
		mods = append(mods, "abstract")
	}
	if flags.IsSynthetic() {
		mods = append(mods, "synthetic")
	}
	return mods
}

func fieldModifiers(flags classfile.AccessFlags) []string {
	var mods []string
	if flags.IsStatic() {
		mods = append(mods, "static")
	}
	if flags.IsFinal() {
		mods = append(mods, "final")
	}
	if flags.IsVolatile() {
		mods = append(mods, "volatile")
	}
	if flags.IsTransient() {
		mods = append(mods, "transient")
	}
	if flags.IsSynthetic() {
		mods = append(mods, "synthetic")
	}
	if flags.IsEnum() {
		mods = append(mods, "enum")
	}
	return mods
}

func methodModifiers(flags classfile.AccessFlags) []string {
	var mods []string
	if flags.IsStatic() {
		mods = append(mods, "static")
	}
	if flags.IsFinal() {
		mods = append(mods, "final")
	}
	if flags.IsAbstract() {
		mods = append(mods, "abstract")
	}
	if flags.IsSynchronized() {
		mods = append(mods, "synchronized")
	}
	if flags.IsNative() {
		mods = append(mods, "native")
	}
	if flags.IsBridge() {
		mods = append(mods, "bridge")
	}
	if flags.IsVarargs() {
		mods = append(mods, "varargs")
	}
	if flags.IsSynthetic() {
		mods = append(mods, "synthetic")
	}
	return mods
}
