// Package graph provides the tensor/operation graph model consumed by the
// Lattice compiler: typed, shaped tensors, operation steps, and the memory
// layout planner that assigns every tensor a slot in the instance arena.
package graph

// Type represents runtime type information for tensors.
type Type int

// Supported tensor element types.
const (
	Float32 Type = iota
	Float64
	Int32
	Int64
	Uint8
)

// Size returns the byte size of one element of the type.
func (t Type) Size() int {
	switch t {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8:
		return 1
	default:
		panic("unknown tensor type")
	}
}

// String returns a human-readable name for the type.
func (t Type) String() string {
	switch t {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// Order describes the required memory order for a tensor.
type Order int

// Memory orders. AnyOrder means no kernel has constrained the tensor yet;
// ConflictingOrder means two kernels asked for incompatible orders.
const (
	AnyOrder Order = iota
	RowMajor
	ColumnMajor
	ConflictingOrder
)

// String returns a human-readable order name.
func (o Order) String() string {
	switch o {
	case AnyOrder:
		return "any"
	case RowMajor:
		return "row-major"
	case ColumnMajor:
		return "column-major"
	case ConflictingOrder:
		return "conflicting"
	default:
		return "unknown"
	}
}
