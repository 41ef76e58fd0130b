package kernels

import (
	"fmt"

	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/masm"
)

// NoOpReshape elides a reshape whose output has the same memory layout as
// its input: the output shares the input's storage and no instructions are
// emitted. Applicable only when this step is the input's sole consumer.
type NoOpReshape struct{}

// Name returns the kernel name.
func (NoOpReshape) Name() string { return "NoOpReshape" }

// Operation returns the logical operation name.
func (NoOpReshape) Operation() string { return "Reshape" }

// Supports requires an input/shape pair, matching element type and count
// between input and output, and no other reader of the input.
func (NoOpReshape) Supports(step *graph.Step) bool {
	if step.Indegree() != 2 || step.Outdegree() != 1 {
		return false
	}
	x := step.Input(0)
	y := step.Output(0)
	if x.Type() != y.Type() {
		return false
	}
	if x.Elements() != y.Elements() {
		return false
	}
	if len(x.Consumers()) != 1 {
		return false
	}
	return true
}

// Adjust propagates the input's reference flag and requests in-place
// sharing of the input/output pair. The request not being grantable means
// the applicability check was wrong, which is fatal.
func (NoOpReshape) Adjust(step *graph.Step) {
	step.Output(0).SetRef(step.Input(0).Ref())
	if !step.AllowInPlace(0, 0) {
		panic(fmt.Sprintf("NoOpReshape: in-place sharing denied for step %s", step.Name()))
	}
}

// Generate emits nothing; it only verifies that the layout planner honored
// the sharing request.
func (NoOpReshape) Generate(step *graph.Step, m *masm.MacroAssembler) {
	if !step.Input(0).SharedWith(step.Output(0)) {
		panic(fmt.Sprintf("NoOpReshape: input and output of step %s do not share storage",
			step.Name()))
	}
}

// Complexity is zero; the reshape is purely a layout decision.
func (NoOpReshape) Complexity(step *graph.Step) int {
	return 0
}
