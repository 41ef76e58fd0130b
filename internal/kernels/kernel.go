// Package kernels implements the hardware-specialized kernels for feature
// extraction graphs: embedding lookup (scalar, vector-unrolled, and
// zero-copy single-feature variants), weighted collect with an OOV
// indicator, concatenation, and in-place reshape elision.
//
// Each kernel is a stateless value registered once in a Library. For a graph
// step, the compiler offers every kernel registered for the step's operation
// in registration order and binds the first one whose Supports predicate
// succeeds. Supports is a pure predicate; Adjust may constrain tensor layout
// before memory planning; Generate emits code once addresses are fixed.
package kernels

import (
	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/masm"
)

// Kernel is one implementation strategy for a logical operation.
type Kernel interface {
	// Name returns a stable identifier for diagnostics. Not used for
	// matching.
	Name() string

	// Operation returns the logical operation the kernel implements.
	Operation() string

	// Supports reports whether the kernel can implement the step. It must
	// check arity, types, ranks and every shape relationship the emitted
	// code assumes, and must not mutate the step.
	Supports(step *graph.Step) bool

	// Adjust imposes layout requirements (memory order, alignment,
	// in-place sharing) on the step's tensors. Called once after
	// selection, before the memory layout is computed. Metadata only;
	// idempotent.
	Adjust(step *graph.Step)

	// Generate emits the instruction sequence computing the step's
	// outputs, assuming every constraint requested in Adjust was honored.
	Generate(step *graph.Step, m *masm.MacroAssembler)

	// Complexity returns a non-negative cost estimate, monotonic with the
	// work performed. Zero means negligible or constant-time work.
	Complexity(step *graph.Step) int
}

// Typer assigns output types and shapes for operations the generic type
// inference cannot handle. InferTypes returns true to request another
// inference pass.
type Typer interface {
	InferTypes(step *graph.Step) bool
}
