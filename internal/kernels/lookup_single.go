package kernels

import (
	"fmt"

	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/masm"
)

// FeatureLookupSingle handles a lookup with exactly one feature id without
// copying the embedding row: it resolves the row address and stores it as
// the output's value, marking the output as a reference into the embedding
// matrix. Any negative id resolves to the OOV row.
type FeatureLookupSingle struct{}

// Name returns the kernel name.
func (FeatureLookupSingle) Name() string { return "FeatureLookupSingle" }

// Operation returns the logical operation name.
func (FeatureLookupSingle) Operation() string { return "Lookup" }

// Supports matches the shared lookup contract restricted to a single
// feature id.
func (FeatureLookupSingle) Supports(step *graph.Step) bool {
	if !matchesLookup(step) {
		return false
	}
	return step.Input(0).Elements() == 1
}

// Adjust marks the output as a reference into the embedding matrix and
// requires the matrix to be row-major.
func (FeatureLookupSingle) Adjust(step *graph.Step) {
	step.Output(0).SetRef(true)
	step.Output(0).SetLink(step.Input(1))
	step.Input(1).SetRequiredOrder(graph.RowMajor)
}

// Generate resolves the row index, computes the row's absolute address and
// stores it into the output's pointer slot. The feature-id input must hold a
// materialized scalar; an id that is itself a reference is a bug upstream.
func (FeatureLookupSingle) Generate(step *graph.Step, m *masm.MacroAssembler) {
	f := step.Input(0)
	emb := step.Input(1)
	v := step.Output(0)

	oovRow := emb.Dim(0) - 1

	if f.Ref() {
		panic(fmt.Sprintf("FeatureLookupSingle: feature id %s is a reference in step %s",
			f.Name(), step.Name()))
	}

	rr := m.RR()
	acc := rr.Alloc()
	oov := rr.Alloc()
	embeddings := rr.Alloc()

	// Get the feature id and substitute the OOV row for negative ids.
	m.LoadTensorInt32(acc, f)
	m.MoveImm(oov, int64(oovRow))
	m.CondMoveNegative(acc, oov)

	// Compute the row address in the embedding matrix.
	m.MulImm(acc, int64(emb.Stride(0)))
	m.LoadTensorAddress(embeddings, emb)
	m.AddReg(acc, embeddings)

	// Save the reference to the embedding row.
	m.StoreTensorPointer(v, acc)
}

// Complexity is zero; the kernel only stores one address.
func (FeatureLookupSingle) Complexity(step *graph.Step) int {
	return 0
}
