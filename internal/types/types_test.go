package types

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestBasicSizes(t *testing.T) {
	be.Equal(t, Int.Size(), 4)
	be.Equal(t, Int.Align(), 4)
	be.Equal(t, Long.Size(), 8)
	be.Equal(t, Long.Align(), 8)
	be.Equal(t, Void.Size(), 0)
}

func TestPointStructLayout(t *testing.T) {
	p := NewStruct("Point", []Field{
		{Name: "x", Type: Int},
		{Name: "y", Type: Int},
	})
	be.Equal(t, p.Size(), 8)
	be.Equal(t, p.Align(), 4)

	x, ok := p.FieldByName("x")
	be.True(t, ok)
	be.Equal(t, x.Offset, 0)

	y, ok := p.FieldByName("y")
	be.True(t, ok)
	be.Equal(t, y.Offset, 4)
}

func TestMixedStructLayout(t *testing.T) {
	// The long field forces 8-byte alignment, leaving a hole after the int,
	// and the trailing int pads the total size out to a multiple of 8.
	s := NewStruct("Mixed", []Field{
		{Name: "a", Type: Int},
		{Name: "b", Type: Long},
		{Name: "c", Type: Int},
	})
	a, _ := s.FieldByName("a")
	b, _ := s.FieldByName("b")
	c, _ := s.FieldByName("c")
	be.Equal(t, a.Offset, 0)
	be.Equal(t, b.Offset, 8)
	be.Equal(t, c.Offset, 16)
	be.Equal(t, s.Size(), 24)
	be.Equal(t, s.Align(), 8)
}

func TestNestedStructLayout(t *testing.T) {
	inner := NewStruct("Point", []Field{
		{Name: "x", Type: Int},
		{Name: "y", Type: Int},
	})
	outer := NewStruct("Segment", []Field{
		{Name: "from", Type: inner},
		{Name: "to", Type: inner},
		{Name: "id", Type: Long},
	})
	from, _ := outer.FieldByName("from")
	to, _ := outer.FieldByName("to")
	id, _ := outer.FieldByName("id")
	be.Equal(t, from.Offset, 0)
	be.Equal(t, to.Offset, 8)
	be.Equal(t, id.Offset, 16)
	be.Equal(t, outer.Size(), 24)
}

func TestLayoutIsDeterministic(t *testing.T) {
	mk := func() *Struct {
		return NewStruct("P", []Field{
			{Name: "x", Type: Int},
			{Name: "y", Type: Long},
		})
	}
	a, b := mk(), mk()
	be.Equal(t, a.Size(), b.Size())
	for i := range a.Fields {
		be.Equal(t, a.Fields[i].Offset, b.Fields[i].Offset)
	}
}

func TestStructDescribe(t *testing.T) {
	s := NewStruct("Point", []Field{
		{Name: "x", Type: Int},
		{Name: "y", Type: Int},
	})
	be.Equal(t, s.Describe(), "struct Point (size=8 align=4): int x@0; int y@4;")
}

func TestArith(t *testing.T) {
	be.Equal(t, Arith(Int, Int), Type(Int))
	be.Equal(t, Arith(Int, Long), Type(Long))
	be.Equal(t, Arith(Long, Int), Type(Long))
	be.True(t, IsNumeric(Int))
	be.True(t, IsNumeric(Long))
	be.True(t, !IsNumeric(Void))
}
