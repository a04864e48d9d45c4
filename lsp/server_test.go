package lsp

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/dhamidi/jcheck/classfile"
)

func u2(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }

func u4(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

func utf8(s string) []byte {
	return append(append([]byte{byte(classfile.ConstantUtf8)}, u2(uint16(len(s)))...), s...)
}

// classWithMethod returns class T declaring public static int m() with
// the given body.
func classWithMethod(code ...byte) []byte {
	var out []byte
	for _, part := range [][]byte{
		u4(classfile.Magic), u2(0), u2(classfile.Java8), u2(8),
		utf8("T"), {byte(classfile.ConstantClass), 0, 1},
		utf8(classfile.ObjectClassName), {byte(classfile.ConstantClass), 0, 3},
		utf8("m"), utf8("()I"), utf8(classfile.AttrCode),
		u2(uint16(classfile.AccPublic | classfile.AccSuper)), u2(2), u2(4), u2(0),
		u2(0),
		u2(1), u2(uint16(classfile.AccPublic | classfile.AccStatic)), u2(5), u2(6), u2(1),
		u2(7), u4(uint32(12 + len(code))), u2(1), u2(0), u4(uint32(len(code))), code, u2(0), u2(0),
		u2(0),
	} {
		out = append(out, part...)
	}
	return out
}

func TestDiagnose(t *testing.T) {
	badMagic := classWithMethod(0x03, 0xac)
	badMagic[3] = 0xBA

	tests := []struct {
		name      string
		data      []byte
		javaError string
		message   string
	}{
		{"valid", classWithMethod(0x03, 0xac), "", ""},
		{"wrong return", classWithMethod(0x03, 0xae), classfile.VerifyError, "freturn"},
		{"bad magic", badMagic, classfile.ClassFormatError, "magic"},
	}
	ls := NewServer("test")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ls.Diagnose(tt.data)
			if got == nil {
				t.Fatal("Expected a non-nil slice so clients clear old diagnostics")
			}
			if tt.javaError == "" {
				if len(got) != 0 {
					t.Errorf("got %d diagnostics, want none: %+v", len(got), got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("got %d diagnostics, want 1", len(got))
			}
			d := got[0]
			if d.Code == nil || d.Code.Value != tt.javaError {
				t.Errorf("Code = %+v, want %s", d.Code, tt.javaError)
			}
			if !strings.Contains(d.Message, tt.message) {
				t.Errorf("Message = %q, want it to contain %q", d.Message, tt.message)
			}
			if d.Source == nil || *d.Source != lsName {
				t.Errorf("Source = %v, want %s", d.Source, lsName)
			}
		})
	}
}

func TestURIToPath(t *testing.T) {
	tests := []struct {
		uri, want string
	}{
		{"file:///tmp/a%20b/T.class", "/tmp/a b/T.class"},
		{"file:///tmp/x/../T.class", "/tmp/T.class"},
		{"/plain/T.class", "/plain/T.class"},
	}
	for _, tt := range tests {
		got, err := uriToPath(tt.uri)
		if err != nil {
			t.Errorf("uriToPath(%q) failed: %v", tt.uri, err)
			continue
		}
		if got != tt.want {
			t.Errorf("uriToPath(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}
