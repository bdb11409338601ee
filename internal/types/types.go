package types

import (
	"fmt"
	"strings"
)

// Type describes a C type known to the compiler. Sizes and alignments are
// fixed once a Type is constructed.
type Type interface {
	Size() int
	Align() int
	String() string
}

// Basic is a scalar type: int, long, or void.
type Basic struct {
	name  string
	size  int
	align int
}

func (b *Basic) Size() int      { return b.size }
func (b *Basic) Align() int     { return b.align }
func (b *Basic) String() string { return b.name }

// Singleton basic types. All code compares against these by pointer.
var (
	Int  = &Basic{name: "int", size: 4, align: 4}
	Long = &Basic{name: "long", size: 8, align: 8}
	Void = &Basic{name: "void", size: 0, align: 1}
)

// Field is a named member of a struct with its computed byte offset.
type Field struct {
	Name   string
	Type   Type
	Offset int
}

// Struct is a named struct type with a deterministic layout: each field
// starts at the next offset aligned to the field's own alignment, and the
// total size is rounded up to the largest member alignment.
type Struct struct {
	Name   string
	Fields []Field
	size   int
	align  int
}

// NewStruct lays out the given members in order and returns the struct type.
func NewStruct(name string, members []Field) *Struct {
	s := &Struct{Name: name, align: 1}
	offset := 0
	for _, m := range members {
		a := m.Type.Align()
		offset = alignUp(offset, a)
		s.Fields = append(s.Fields, Field{Name: m.Name, Type: m.Type, Offset: offset})
		offset += m.Type.Size()
		if a > s.align {
			s.align = a
		}
	}
	s.size = alignUp(offset, s.align)
	return s
}

func (s *Struct) Size() int      { return s.size }
func (s *Struct) Align() int     { return s.align }
func (s *Struct) String() string { return "struct " + s.Name }

// FieldByName returns the field with the given name, if present.
func (s *Struct) FieldByName(name string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// Describe returns a one-line layout summary, used by debug output.
func (s *Struct) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "struct %s (size=%d align=%d):", s.Name, s.size, s.align)
	for _, f := range s.Fields {
		fmt.Fprintf(&b, " %s %s@%d;", f.Type, f.Name, f.Offset)
	}
	return b.String()
}

// IsNumeric reports whether t is an arithmetic type (int or long).
func IsNumeric(t Type) bool {
	return t == Int || t == Long
}

// Arith returns the result type of an arithmetic operation on a and b:
// long if either operand is long, otherwise int.
func Arith(a, b Type) Type {
	if a == Long || b == Long {
		return Long
	}
	return Int
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}
