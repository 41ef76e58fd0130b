package kernels

import (
	"fmt"

	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/masm"
)

// FeatureConcat concatenates its data inputs along the feature axis by
// copying their raw bytes, in input order, into successive ranges of the
// output. The trailing input is the axis and must be the constant 1.
type FeatureConcat struct{}

// Name returns the kernel name.
func (FeatureConcat) Name() string { return "FeatureConcat" }

// Operation returns the logical operation name.
func (FeatureConcat) Operation() string { return "Concat" }

// Supports requires at least one data input plus the trailing axis input,
// and an axis value of 1.
func (FeatureConcat) Supports(step *graph.Step) bool {
	if step.Indegree() < 2 || step.Outdegree() != 1 {
		return false
	}

	// Only concatenation along the feature axis is supported.
	axis := step.Input(step.Indegree() - 1)
	v, ok := axis.ScalarInt32()
	if !ok || v != 1 {
		return false
	}
	return true
}

// Adjust imposes no layout constraints.
func (FeatureConcat) Adjust(step *graph.Step) {
}

// Generate copies each data input's bytes into the output in order. The
// bytes copied must add up to exactly the output's size; a mismatch means
// the shapes were inconsistent and aborts.
func (FeatureConcat) Generate(step *graph.Step, m *masm.MacroAssembler) {
	// The last input is the axis.
	n := step.Indegree() - 1

	rr := m.RR()
	src := rr.Alloc()
	dst := rr.Alloc()

	m.LoadTensorAddress(dst, step.Output(0))

	offset := 0
	for i := 0; i < n; i++ {
		size := step.Input(i).Size()
		m.LoadTensorAddress(src, step.Input(i))
		m.Copy(dst, offset, src, 0, size)
		offset += size
	}
	if offset != step.Output(0).Size() {
		panic(fmt.Sprintf("FeatureConcat: copied %d bytes into %d byte output in step %s",
			offset, step.Output(0).Size(), step.Name()))
	}
}

// Complexity is zero; inputs are copied, not computed.
func (FeatureConcat) Complexity(step *graph.Step) int {
	return 0
}
