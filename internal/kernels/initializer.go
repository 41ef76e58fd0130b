package kernels

import (
	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/masm"
)

// InitializerOp is the synthetic operation that seeds feature extraction
// state. It carries no real computation.
const InitializerOp = "EmbeddingInitializer"

// EmbeddingInitializer is the no-op kernel for the initializer operation.
type EmbeddingInitializer struct{}

// Name returns the kernel name.
func (EmbeddingInitializer) Name() string { return "EmbeddingInitializerDummy" }

// Operation returns the logical operation name.
func (EmbeddingInitializer) Operation() string { return InitializerOp }

// Supports matches every initializer step.
func (EmbeddingInitializer) Supports(step *graph.Step) bool {
	return true
}

// Adjust imposes no layout constraints.
func (EmbeddingInitializer) Adjust(step *graph.Step) {
}

// Generate emits nothing.
func (EmbeddingInitializer) Generate(step *graph.Step, m *masm.MacroAssembler) {
}

// Complexity is zero.
func (EmbeddingInitializer) Complexity(step *graph.Step) int {
	return 0
}

// InitializerTyper assigns the initializer's output type: an int32 scalar.
type InitializerTyper struct{}

// InferTypes sets the output type and shape for initializer steps. It never
// requests another inference pass.
func (InitializerTyper) InferTypes(step *graph.Step) bool {
	if step.Operation() == InitializerOp && step.Outdegree() == 1 {
		out := step.Output(0)
		out.SetType(graph.Int32)
		out.SetShape(nil)
	}
	return false
}
