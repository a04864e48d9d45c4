package format

import (
	"fmt"
	"io"
	"strings"
)

// LineEncoder writes one tab separated record per class, constant, field
// and method. Empty columns are written as "-".
type LineEncoder struct {
	w     io.Writer
	class *Class
}

func NewLineEncoder(w io.Writer) *LineEncoder {
	return &LineEncoder{w: w}
}

func (e *LineEncoder) Encode(class *Class) error {
	e.class = class
	text, err := e.MarshalText()
	if err != nil {
		return err
	}
	_, err = e.w.Write(text)
	return err
}

func (e *LineEncoder) MarshalText() ([]byte, error) {
	var sb strings.Builder
	c := e.class

	fmt.Fprintf(&sb, "%s\t%s\t%d.%d\t%s\t%s\n",
		c.Kind,
		c.Name,
		c.Version.Major,
		c.Version.Minor,
		column(c.SuperClass),
		modifiersStr(c.Visibility, c.Modifiers),
	)

	for _, k := range c.Constants {
		fmt.Fprintf(&sb, "constant\t#%d\t%s\n", k.Index, k.Description)
	}

	for _, f := range c.Fields {
		fmt.Fprintf(&sb, "field\t%s\t%s\t%s\n",
			f.Name,
			f.Type,
			modifiersStr(f.Visibility, f.Modifiers),
		)
	}

	for _, m := range c.Methods {
		fmt.Fprintf(&sb, "method\t%s\t%s\t%s\t%s\t%s\n",
			m.Name,
			m.ReturnType,
			column(strings.Join(m.Parameters, ",")),
			modifiersStr(m.Visibility, m.Modifiers),
			verifyStatus(m),
		)
	}

	return []byte(sb.String()), nil
}

func modifiersStr(visibility string, mods []string) string {
	return strings.Join(append([]string{visibility}, mods...), ",")
}

func column(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func verifyStatus(m Method) string {
	switch {
	case m.VerifyError != "":
		return m.VerifyError
	case m.Code == nil:
		return "-"
	}
	return fmt.Sprintf("stack=%d,locals=%d,length=%d", m.Code.MaxStack, m.Code.MaxLocals, m.Code.Length)
}
