package verifier

import (
	"fmt"

	"github.com/dhamidi/jcheck/classfile"
)

// Kind is the coarse type of an operand stack entry.
type Kind uint8

const (
	Int Kind = iota + 1
	Float
	Long
	Double
	Reference
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case Long:
		return "long"
	case Double:
		return "double"
	case Reference:
		return "reference"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Category2 reports whether a value of kind k takes two stack words.
func (k Kind) Category2() bool {
	return k == Long || k == Double
}

func (k Kind) words() int {
	if k.Category2() {
		return 2
	}
	return 1
}

// KindOf maps a field type to the kind its values take on the operand stack.
func KindOf(ft *classfile.FieldType) Kind {
	if ft.IsReference() {
		return Reference
	}
	switch ft.Char {
	case 'F':
		return Float
	case 'J':
		return Long
	case 'D':
		return Double
	}
	return Int
}

// Stack is the operand stack of one method under verification. It holds
// one entry per value and bounds the number of words by max_stack.
//
// Like classfile.ByteReader, a Stack keeps the first error it encounters;
// later operations are no-ops, so callers check Err once per instruction.
type Stack struct {
	kinds    []Kind
	words    int
	maxWords int
	err      error
}

func NewStack(maxStack int) *Stack {
	return &Stack{maxWords: maxStack}
}

func (s *Stack) Err() error { return s.err }

// Depth returns the number of values on the stack.
func (s *Stack) Depth() int { return len(s.kinds) }

// Words returns the number of stack words in use.
func (s *Stack) Words() int { return s.words }

// Copy returns an independent snapshot for exploring a branch.
func (s *Stack) Copy() *Stack {
	c := *s
	c.kinds = append([]Kind(nil), s.kinds...)
	return &c
}

func (s *Stack) fail(format string, args ...any) {
	if s.err == nil {
		s.err = fmt.Errorf(format, args...)
	}
}

func (s *Stack) Push(kinds ...Kind) {
	for _, k := range kinds {
		if s.err != nil {
			return
		}
		if s.words+k.words() > s.maxWords {
			s.fail("stack overflow: pushing %s exceeds max_stack %d", k, s.maxWords)
			return
		}
		s.kinds = append(s.kinds, k)
		s.words += k.words()
	}
}

// Pop removes values from the top of the stack, which must match kinds in
// order: kinds[0] is the topmost value.
func (s *Stack) Pop(kinds ...Kind) {
	for _, want := range kinds {
		got, ok := s.take()
		if !ok {
			return
		}
		if got != want {
			s.fail("%s on stack, required: %s", got, want)
			return
		}
	}
}

func (s *Stack) take() (Kind, bool) {
	if s.err != nil {
		return 0, false
	}
	if len(s.kinds) == 0 {
		s.fail("stack underflow")
		return 0, false
	}
	k := s.kinds[len(s.kinds)-1]
	s.kinds = s.kinds[:len(s.kinds)-1]
	s.words -= k.words()
	return k, true
}

// peek returns the n topmost values, topmost first.
func (s *Stack) peek(n int) ([]Kind, bool) {
	if s.err != nil {
		return nil, false
	}
	if len(s.kinds) < n {
		s.fail("stack underflow")
		return nil, false
	}
	top := make([]Kind, n)
	for i := range top {
		top[i] = s.kinds[len(s.kinds)-1-i]
	}
	return top, true
}

// replace pops n values and pushes kinds, bottom first.
func (s *Stack) replace(n int, kinds ...Kind) {
	for i := 0; i < n; i++ {
		s.take()
	}
	s.Push(kinds...)
}

// shuffle applies one of the pop/dup/swap instructions. Each form lists
// the categories of the values it consumes, topmost first.
func (s *Stack) shuffle(op Opcode) {
	v, ok := s.peek(1)
	if !ok {
		return
	}
	v1 := v[0]
	switch op {
	case OpPop:
		if v1.Category2() {
			s.fail("category 2 operand for pop")
			return
		}
		s.take()
	case OpPop2:
		if v1.Category2() {
			s.take()
			return
		}
		if v, ok = s.peek(2); ok {
			if v[1].Category2() {
				s.fail("category 2 second operand for pop2")
				return
			}
			s.replace(2)
		}
	case OpDup:
		if v1.Category2() {
			s.fail("category 2 operand for dup")
			return
		}
		s.Push(v1)
	case OpDupX1:
		if v, ok = s.peek(2); !ok {
			return
		}
		if v[0].Category2() || v[1].Category2() {
			s.fail("category 2 operand for dup_x1")
			return
		}
		s.replace(2, v[0], v[1], v[0])
	case OpDupX2:
		if v1.Category2() {
			s.fail("category 2 operand for dup_x2")
			return
		}
		if v, ok = s.peek(2); !ok {
			return
		}
		if v[1].Category2() {
			s.replace(2, v[0], v[1], v[0])
			return
		}
		if v, ok = s.peek(3); !ok {
			return
		}
		if v[2].Category2() {
			s.fail("category 2 third operand for dup_x2")
			return
		}
		s.replace(3, v[0], v[2], v[1], v[0])
	case OpDup2:
		if v1.Category2() {
			s.Push(v1)
			return
		}
		if v, ok = s.peek(2); !ok {
			return
		}
		if v[1].Category2() {
			s.fail("category 2 second operand for dup2")
			return
		}
		s.Push(v[1], v[0])
	case OpDup2X1:
		if v, ok = s.peek(2); !ok {
			return
		}
		if v[1].Category2() {
			s.fail("category 2 second operand for dup2_x1")
			return
		}
		if v1.Category2() {
			s.replace(2, v[0], v[1], v[0])
			return
		}
		if v, ok = s.peek(3); !ok {
			return
		}
		if v[2].Category2() {
			s.fail("category 2 third operand for dup2_x1")
			return
		}
		s.replace(3, v[1], v[0], v[2], v[1], v[0])
	case OpDup2X2:
		s.dup2x2()
	case OpSwap:
		if v, ok = s.peek(2); !ok {
			return
		}
		if v[0].Category2() || v[1].Category2() {
			s.fail("category 2 operand for swap")
			return
		}
		s.replace(2, v[0], v[1])
	}
}

func (s *Stack) dup2x2() {
	v, ok := s.peek(2)
	if !ok {
		return
	}
	switch {
	case v[0].Category2() && v[1].Category2():
		s.replace(2, v[0], v[1], v[0])
		return
	case v[1].Category2():
		s.fail("category 2 second operand for dup2_x2")
		return
	}
	if v, ok = s.peek(3); !ok {
		return
	}
	switch {
	case !v[0].Category2() && v[2].Category2():
		s.replace(3, v[1], v[0], v[2], v[1], v[0])
		return
	case v[0].Category2() && !v[2].Category2():
		s.replace(3, v[0], v[2], v[1], v[0])
		return
	case v[0].Category2():
		s.fail("category 2 third operand for dup2_x2")
		return
	}
	if v, ok = s.peek(4); !ok {
		return
	}
	if v[3].Category2() {
		s.fail("category 2 fourth operand for dup2_x2")
		return
	}
	s.replace(4, v[1], v[0], v[3], v[2], v[1], v[0])
}
