package graph

import (
	"encoding/binary"
	"fmt"
)

// Tensor describes one variable in a compute graph: its element type, shape,
// memory order, alignment requirements and, after layout, its byte strides and
// offset in the instance arena.
//
// A tensor marked as a reference does not own storage. Its arena slot holds a
// pointer value (an address computed by generated code) and its link points at
// the tensor whose storage it aliases.
type Tensor struct {
	name  string
	typ   Type
	shape Shape

	// Layout constraints, accumulated by kernel Adjust calls.
	order    Order
	minAlign int
	dimAlign []int

	ref  bool
	link *Tensor

	data []byte // constant payload, nil for instance variables

	input  bool
	output bool

	producer  *Step
	consumers []*Step

	// Filled in by ComputeLayout.
	strides    []int
	offset     int
	size       int
	space      int
	sharedWith *Tensor
	placed     bool
}

// Name returns the tensor's name.
func (t *Tensor) Name() string { return t.name }

// Type returns the element type.
func (t *Tensor) Type() Type { return t.typ }

// SetType changes the element type. Used by type inference before layout.
func (t *Tensor) SetType(typ Type) { t.typ = typ }

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape { return t.shape }

// SetShape replaces the tensor's shape. A nil shape makes the tensor a
// scalar. Used by type inference before layout.
func (t *Tensor) SetShape(s Shape) {
	t.shape = s.Clone()
	t.dimAlign = defaultDimAlign(len(t.shape))
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Dim returns the extent of dimension d.
func (t *Tensor) Dim(d int) int { return t.shape[d] }

// Elements returns the total number of elements.
func (t *Tensor) Elements() int { return t.shape.Elements() }

// Stride returns the byte stride of dimension d. Only valid after layout.
func (t *Tensor) Stride(d int) int {
	t.checkPlaced()
	return t.strides[d]
}

// Offset returns the tensor's byte offset in the instance arena. Only valid
// after layout.
func (t *Tensor) Offset() int {
	t.checkPlaced()
	return t.offset
}

// Size returns the tensor's padded data byte size, derived from its shape
// and strides. Only valid after layout. For a reference tensor this is the
// size of the data it points at, not of its arena slot.
func (t *Tensor) Size() int {
	t.checkPlaced()
	return t.size
}

// Space returns the bytes the tensor occupies in the instance arena. Equal
// to Size for materialized tensors; a reference tensor occupies one pointer
// slot. Only valid after layout.
func (t *Tensor) Space() int {
	t.checkPlaced()
	return t.space
}

// RequiredOrder returns the memory order required so far.
func (t *Tensor) RequiredOrder() Order { return t.order }

// SetRequiredOrder merges a required memory order into the tensor. Two
// kernels requiring different concrete orders leave the tensor in
// ConflictingOrder, which is fatal at layout time.
func (t *Tensor) SetRequiredOrder(o Order) {
	switch {
	case t.order == AnyOrder:
		t.order = o
	case o == AnyOrder || o == t.order:
		// No new constraint.
	default:
		t.order = ConflictingOrder
	}
}

// MinAlignment returns the minimum byte alignment required for the tensor's
// arena offset.
func (t *Tensor) MinAlignment() int { return t.minAlign }

// SetMinAlignment raises the minimum byte alignment. Lower requests are
// ignored.
func (t *Tensor) SetMinAlignment(align int) {
	if align > t.minAlign {
		t.minAlign = align
	}
}

// Align raises the per-dimension extent granularity. Dimension d is padded to
// a multiple of granularity[d] when strides are computed, so rows can be
// over-allocated to a vector block width.
func (t *Tensor) Align(granularity []int) {
	if len(granularity) != len(t.shape) {
		panic(fmt.Sprintf("tensor %s: alignment granularity rank %d does not match shape %v",
			t.name, len(granularity), t.shape))
	}
	for i, g := range granularity {
		if g > t.dimAlign[i] {
			t.dimAlign[i] = g
		}
	}
}

// Ref reports whether the tensor is a reference (an alias into another
// tensor's storage).
func (t *Tensor) Ref() bool { return t.ref }

// SetRef marks or clears the reference flag.
func (t *Tensor) SetRef(ref bool) { t.ref = ref }

// Link returns the tensor this reference aliases, or nil.
func (t *Tensor) Link() *Tensor { return t.link }

// SetLink records the tensor this reference aliases.
func (t *Tensor) SetLink(link *Tensor) { t.link = link }

// Data returns the constant payload, or nil for instance variables.
func (t *Tensor) Data() []byte { return t.data }

// SetData attaches a constant payload. The payload is materialized into the
// arena when an instance is created.
func (t *Tensor) SetData(data []byte) {
	if len(data) != t.Elements()*t.typ.Size() {
		panic(fmt.Sprintf("tensor %s: payload is %d bytes, shape %v of %s needs %d",
			t.name, len(data), t.shape, t.typ, t.Elements()*t.typ.Size()))
	}
	t.data = data
}

// Constant reports whether the tensor carries a constant payload.
func (t *Tensor) Constant() bool { return t.data != nil }

// ScalarInt32 returns the tensor's value as an int32 if it is a constant
// int32 scalar. Used by kernels that match on attribute-style inputs such as
// a concatenation axis.
func (t *Tensor) ScalarInt32() (int32, bool) {
	if t.typ != Int32 || t.Elements() != 1 || t.data == nil {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(t.data)), true
}

// MarkInput flags the tensor as a session input.
func (t *Tensor) MarkInput() { t.input = true }

// MarkOutput flags the tensor as a session output.
func (t *Tensor) MarkOutput() { t.output = true }

// IsInput reports whether the tensor is a session input.
func (t *Tensor) IsInput() bool { return t.input }

// IsOutput reports whether the tensor is a session output.
func (t *Tensor) IsOutput() bool { return t.output }

// Producer returns the step that writes the tensor, or nil for graph inputs
// and constants.
func (t *Tensor) Producer() *Step { return t.producer }

// Consumers returns the steps that read the tensor.
func (t *Tensor) Consumers() []*Step { return t.consumers }

// SharedWith reports whether the two tensors were granted the same storage by
// the layout planner.
func (t *Tensor) SharedWith(other *Tensor) bool {
	return t.sharedWith == other || other.sharedWith == t
}

// TypeString formats the tensor as "float32[4,16]" for diagnostics.
func (t *Tensor) TypeString() string {
	if len(t.shape) == 0 {
		return t.typ.String()
	}
	return fmt.Sprintf("%s%v", t.typ, []int(t.shape))
}

func (t *Tensor) checkPlaced() {
	if !t.placed {
		panic(fmt.Sprintf("tensor %s: layout has not been computed", t.name))
	}
}

func defaultDimAlign(rank int) []int {
	a := make([]int, rank)
	for i := range a {
		a[i] = 1
	}
	return a
}
