package graph

import "fmt"

// PointerSize is the byte size of a reference tensor's arena slot.
const PointerSize = 8

// ComputeLayout resolves strides, sizes and arena offsets for every tensor in
// the graph and returns the total arena size. It must be called once, after
// all kernel Adjust calls and before code generation.
//
// Conflicting order requirements and broken in-place grants are bugs in
// kernel logic or the surrounding compiler and abort the process.
func (g *Graph) ComputeLayout() int {
	arena := 0
	for _, t := range g.tensors {
		if t.order == ConflictingOrder {
			panic(fmt.Sprintf("layout: tensor %s has conflicting order requirements", t.name))
		}
		computeStrides(t)
		if t.sharedWith != nil {
			continue // Placed with its share target below.
		}
		align := t.minAlign
		if t.ref && align < PointerSize {
			align = PointerSize
		}
		arena = roundUp(arena, align)
		t.offset = arena
		t.placed = true
		arena += t.space
	}

	// Place shared tensors on top of their targets and verify the grants.
	// Chained grants (a reshape output feeding another reshape) resolve to
	// the placed root of the chain.
	for _, t := range g.tensors {
		if t.sharedWith == nil {
			continue
		}
		target := t.sharedWith
		for target.sharedWith != nil {
			target = target.sharedWith
		}
		if !target.placed {
			panic(fmt.Sprintf("layout: share target %s of %s was never placed",
				target.name, t.name))
		}
		if t.space > target.space {
			panic(fmt.Sprintf("layout: tensor %s (%d bytes) cannot share smaller tensor %s (%d bytes)",
				t.name, t.space, target.name, target.space))
		}
		t.offset = target.offset
		t.placed = true
	}
	return arena
}

// computeStrides fills in byte strides, the data size and the arena space
// for one tensor. The data size follows the shape even for reference
// tensors, whose arena space is a single pointer slot.
func computeStrides(t *Tensor) {
	elem := t.typ.Size()
	rank := len(t.shape)
	if rank == 0 {
		t.strides = nil
		t.size = elem
	} else {
		padded := make([]int, rank)
		for i, dim := range t.shape {
			padded[i] = roundUp(dim, t.dimAlign[i])
		}

		t.strides = make([]int, rank)
		if t.order == ColumnMajor {
			t.strides[0] = elem
			for i := 1; i < rank; i++ {
				t.strides[i] = t.strides[i-1] * padded[i-1]
			}
			t.size = t.strides[rank-1] * padded[rank-1]
		} else {
			// Row-major is the default when no kernel constrained the order.
			t.strides[rank-1] = elem
			for i := rank - 2; i >= 0; i-- {
				t.strides[i] = t.strides[i+1] * padded[i+1]
			}
			t.size = t.strides[0] * padded[0]
		}
	}

	t.space = t.size
	if t.ref {
		t.space = PointerSize
	}
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
