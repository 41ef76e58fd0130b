package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutRowMajorStrides(t *testing.T) {
	g := New()
	m := g.NewTensor("m", Float32, Shape{11, 16})
	m.SetRequiredOrder(RowMajor)
	g.ComputeLayout()

	assert.Equal(t, 64, m.Stride(0), "row pitch is 16 floats")
	assert.Equal(t, 4, m.Stride(1))
	assert.Equal(t, 11*16*4, m.Size())
	assert.Equal(t, 0, m.Offset())
}

func TestLayoutColumnMajorStrides(t *testing.T) {
	g := New()
	m := g.NewTensor("m", Float32, Shape{3, 5})
	m.SetRequiredOrder(ColumnMajor)
	g.ComputeLayout()

	assert.Equal(t, 4, m.Stride(0))
	assert.Equal(t, 12, m.Stride(1))
	assert.Equal(t, 3*5*4, m.Size())
}

func TestLayoutMinAlignment(t *testing.T) {
	g := New()
	g.NewTensor("pad", Uint8, Shape{3})
	v := g.NewTensor("v", Float32, Shape{1, 8})
	v.SetMinAlignment(32)
	arena := g.ComputeLayout()

	assert.Equal(t, 32, v.Offset(), "offset rounded up to the alignment")
	assert.Equal(t, 64, arena)
}

func TestLayoutDimensionGranularity(t *testing.T) {
	g := New()
	m := g.NewTensor("m", Float32, Shape{4, 5})
	m.SetRequiredOrder(RowMajor)
	m.Align([]int{1, 8})
	g.ComputeLayout()

	assert.Equal(t, 8*4, m.Stride(0), "rows padded to the block width")
	assert.Equal(t, 4*8*4, m.Size())
}

func TestLayoutReferenceSlot(t *testing.T) {
	g := New()
	m := g.NewTensor("m", Float32, Shape{11, 16})
	v := g.NewTensor("v", Float32, Shape{1, 16})
	v.SetRef(true)
	v.SetLink(m)
	g.ComputeLayout()

	assert.Equal(t, PointerSize, v.Space(), "reference tensors hold one pointer")
	assert.Equal(t, 16*4, v.Size(), "data size still follows the shape")
	assert.Equal(t, 0, v.Offset()%PointerSize)
}

func TestLayoutShareChain(t *testing.T) {
	g := New()
	a := g.NewTensor("a", Float32, Shape{2, 3})
	shape1 := g.NewTensor("shape1", Int32, Shape{2})
	b := g.NewTensor("b", Float32, Shape{3, 2})
	shape2 := g.NewTensor("shape2", Int32, Shape{1})
	c := g.NewTensor("c", Float32, Shape{6})
	s1 := g.NewStep("reshape0", "Reshape", []*Tensor{a, shape1}, []*Tensor{b})
	s2 := g.NewStep("reshape1", "Reshape", []*Tensor{b, shape2}, []*Tensor{c})

	require.True(t, s1.AllowInPlace(0, 0))
	require.True(t, s2.AllowInPlace(0, 0), "a shared input can be shared onward")
	g.ComputeLayout()

	assert.Equal(t, a.Offset(), b.Offset())
	assert.Equal(t, a.Offset(), c.Offset(), "chained grants resolve to the root")
	assert.True(t, b.SharedWith(c))
}

func TestLayoutInPlaceShare(t *testing.T) {
	g := New()
	x := g.NewTensor("x", Float32, Shape{2, 3})
	shape := g.NewTensor("shape", Int32, Shape{2})
	y := g.NewTensor("y", Float32, Shape{3, 2})
	s := g.NewStep("reshape", "Reshape", []*Tensor{x, shape}, []*Tensor{y})

	require.True(t, s.AllowInPlace(0, 0))
	require.True(t, s.AllowInPlace(0, 0), "repeated requests must stay granted")
	g.ComputeLayout()

	assert.Equal(t, x.Offset(), y.Offset())
	assert.True(t, x.SharedWith(y))
	assert.True(t, y.SharedWith(x))
}

func TestLayoutInPlaceShareRejected(t *testing.T) {
	g := New()
	x := g.NewTensor("x", Float32, Shape{2, 3})
	shape := g.NewTensor("shape", Int32, Shape{2})
	y := g.NewTensor("y", Float32, Shape{4, 2})
	s := g.NewStep("reshape", "Reshape", []*Tensor{x, shape}, []*Tensor{y})

	assert.False(t, s.AllowInPlace(0, 0), "element counts differ")
}

func TestLayoutConflictingOrder(t *testing.T) {
	g := New()
	m := g.NewTensor("m", Float32, Shape{2, 2})
	m.SetRequiredOrder(RowMajor)
	m.SetRequiredOrder(ColumnMajor)
	assert.Equal(t, ConflictingOrder, m.RequiredOrder())
	assert.Panics(t, func() { g.ComputeLayout() })
}

func TestLayoutAccessBeforePlacement(t *testing.T) {
	g := New()
	m := g.NewTensor("m", Float32, Shape{2, 2})
	assert.Panics(t, func() { m.Offset() })
	assert.Panics(t, func() { m.Stride(0) })
}
