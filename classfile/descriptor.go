package classfile

import (
	"fmt"
	"strings"
)

const maxArrayDimensions = 255

type FieldType struct {
	BaseType   string
	ClassName  string
	ArrayDepth int
	// Char is the first character of the descriptor.
	Char byte
}

func (ft *FieldType) String() string {
	var sb strings.Builder
	if ft.BaseType != "" {
		sb.WriteString(ft.BaseType)
	} else if ft.ClassName != "" {
		sb.WriteString(InternalToSourceName(ft.ClassName))
	}
	for i := 0; i < ft.ArrayDepth; i++ {
		sb.WriteString("[]")
	}
	return sb.String()
}

func (ft *FieldType) IsArray() bool {
	return ft.ArrayDepth > 0
}

func (ft *FieldType) IsPrimitive() bool {
	return ft.ArrayDepth == 0 && ft.ClassName == ""
}

func (ft *FieldType) IsReference() bool {
	return ft.ClassName != "" || ft.ArrayDepth > 0
}

// Slots returns the number of local variable or operand stack words a value
// of this type occupies.
func (ft *FieldType) Slots() int {
	if ft.ArrayDepth == 0 && (ft.Char == 'J' || ft.Char == 'D') {
		return 2
	}
	return 1
}

type MethodDescriptor struct {
	Parameters []FieldType
	// ReturnType is nil for void.
	ReturnType *FieldType
}

func (md *MethodDescriptor) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	for i, p := range md.Parameters {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(")")
	if md.ReturnType != nil {
		sb.WriteString(" ")
		sb.WriteString(md.ReturnType.String())
	} else {
		sb.WriteString(" void")
	}
	return sb.String()
}

// ArgumentSlots returns the words taken by the parameters, without the
// receiver.
func (md *MethodDescriptor) ArgumentSlots() int {
	n := 0
	for i := range md.Parameters {
		n += md.Parameters[i].Slots()
	}
	return n
}

func ParseFieldDescriptor(desc string) (*FieldType, error) {
	if desc == "V" {
		return nil, fmt.Errorf("field descriptor %q: void is not a field type", desc)
	}
	ft, consumed := parseFieldType(desc, 0)
	if ft == nil || consumed != len(desc) {
		return nil, fmt.Errorf("invalid field descriptor %q", desc)
	}
	return ft, nil
}

func ParseMethodDescriptor(desc string) (*MethodDescriptor, error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, fmt.Errorf("invalid method descriptor %q", desc)
	}

	md := &MethodDescriptor{}
	i := 1

	for i < len(desc) && desc[i] != ')' {
		ft, consumed := parseFieldType(desc, i)
		if ft == nil {
			return nil, fmt.Errorf("invalid parameter at offset %d in method descriptor %q", i, desc)
		}
		md.Parameters = append(md.Parameters, *ft)
		i += consumed
	}

	if i >= len(desc) || desc[i] != ')' {
		return nil, fmt.Errorf("unterminated parameter list in method descriptor %q", desc)
	}
	i++

	switch {
	case i == len(desc)-1 && desc[i] == 'V':
		md.ReturnType = nil
	default:
		ft, consumed := parseFieldType(desc, i)
		if ft == nil || i+consumed != len(desc) {
			return nil, fmt.Errorf("invalid return type in method descriptor %q", desc)
		}
		md.ReturnType = ft
	}

	return md, nil
}

func parseFieldType(desc string, start int) (*FieldType, int) {
	if start >= len(desc) {
		return nil, 0
	}

	ft := &FieldType{Char: desc[start]}
	i := start

	for i < len(desc) && desc[i] == '[' {
		ft.ArrayDepth++
		i++
	}

	if i >= len(desc) || ft.ArrayDepth > maxArrayDimensions {
		return nil, 0
	}

	switch desc[i] {
	case 'B':
		ft.BaseType = "byte"
	case 'C':
		ft.BaseType = "char"
	case 'D':
		ft.BaseType = "double"
	case 'F':
		ft.BaseType = "float"
	case 'I':
		ft.BaseType = "int"
	case 'J':
		ft.BaseType = "long"
	case 'S':
		ft.BaseType = "short"
	case 'Z':
		ft.BaseType = "boolean"
	case 'L':
		semicolon := strings.IndexByte(desc[i:], ';')
		if semicolon <= 1 {
			return nil, 0
		}
		ft.ClassName = desc[i+1 : i+semicolon]
		return ft, i - start + semicolon + 1
	default:
		return nil, 0
	}
	return ft, i - start + 1
}

// IsArrayName reports whether an internal class name denotes an array.
func IsArrayName(name string) bool {
	return strings.HasPrefix(name, "[")
}

func InternalToSourceName(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

func SourceToInternalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// PackageName returns the package part of an internal class name.
func PackageName(name string) string {
	if IsArrayName(name) {
		name = strings.TrimLeft(name, "[")
		name = strings.TrimSuffix(strings.TrimPrefix(name, "L"), ";")
	}
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}
