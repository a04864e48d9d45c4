package classfile

import (
	"sync"
	"unicode/utf8"
)

// Symbol is the canonical handle for a modified UTF-8 byte sequence. Two
// symbols obtained from the same SymbolTable are equal as pointers exactly
// when their bytes are equal.
type Symbol struct {
	raw  string
	text string
}

// String returns the decoded text.
func (s *Symbol) String() string {
	if s == nil {
		return ""
	}
	return s.text
}

// Bytes returns a copy of the modified UTF-8 encoding.
func (s *Symbol) Bytes() []byte { return []byte(s.raw) }

func (s *Symbol) Len() int { return len(s.raw) }

// SymbolTable interns Utf8 constants. It is shared by every parse of one
// runtime and safe for concurrent use.
type SymbolTable struct {
	mu      sync.Mutex
	symbols map[string]*Symbol
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: make(map[string]*Symbol)}
}

func (t *SymbolTable) Intern(b []byte) *Symbol {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sym, ok := t.symbols[string(b)]; ok {
		return sym
	}
	sym := newSymbol(string(b))
	t.symbols[sym.raw] = sym
	return sym
}

func (t *SymbolTable) InternString(s string) *Symbol {
	return t.Intern([]byte(s))
}

func (t *SymbolTable) Lookup(s string) (*Symbol, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sym, ok := t.symbols[s]
	return sym, ok
}

func (t *SymbolTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.symbols)
}

func newSymbol(raw string) *Symbol {
	sym := &Symbol{raw: raw, text: raw}
	for i := 0; i < len(raw); i++ {
		if raw[i] == 0 || raw[i] >= utf8.RuneSelf {
			sym.text = decodeModifiedUtf8([]byte(raw))
			break
		}
	}
	return sym
}

// JavaString is an interned string literal.
type JavaString struct {
	Symbol *Symbol
}

func (s *JavaString) String() string { return s.Symbol.String() }

// StringTable interns string literals by their Utf8 symbol.
type StringTable struct {
	mu      sync.Mutex
	strings map[*Symbol]*JavaString
}

func NewStringTable() *StringTable {
	return &StringTable{strings: make(map[*Symbol]*JavaString)}
}

func (t *StringTable) Intern(sym *Symbol) *JavaString {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.strings[sym]; ok {
		return s
	}
	s := &JavaString{Symbol: sym}
	t.strings[sym] = s
	return s
}

func (t *StringTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.strings)
}

func decodeModifiedUtf8(bytes []byte) string {
	runes := make([]rune, 0, len(bytes))
	i := 0
	for i < len(bytes) {
		b := bytes[i]
		switch {
		case b&0x80 == 0:
			runes = append(runes, rune(b))
			i++
		case b&0xE0 == 0xC0 && i+1 < len(bytes):
			runes = append(runes, rune(b&0x1F)<<6|rune(bytes[i+1]&0x3F))
			i += 2
		case b&0xF0 == 0xE0 && i+2 < len(bytes):
			r := rune(b&0x0F)<<12 | rune(bytes[i+1]&0x3F)<<6 | rune(bytes[i+2]&0x3F)
			// surrogate pairs are encoded as two 3-byte sequences
			if r >= 0xD800 && r <= 0xDBFF && i+5 < len(bytes) && bytes[i+3] == 0xED {
				low := rune(bytes[i+3]&0x0F)<<12 | rune(bytes[i+4]&0x3F)<<6 | rune(bytes[i+5]&0x3F)
				if low >= 0xDC00 && low <= 0xDFFF {
					runes = append(runes, 0x10000+((r-0xD800)<<10)+(low-0xDC00))
					i += 6
					continue
				}
			}
			runes = append(runes, r)
			i += 3
		default:
			runes = append(runes, utf8.RuneError)
			i++
		}
	}
	return string(runes)
}
