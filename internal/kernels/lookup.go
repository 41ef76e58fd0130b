package kernels

import (
	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/masm"
)

// matchesLookup checks the type and shape contract shared by all lookup
// kernels: a [1,N] int32 feature-id tensor, a rank-2 float32 embedding
// matrix, and a [1,D] float32 output whose width equals the embedding
// dimension. The matrix carries one extra trailing row for the OOV
// representation, so valid row indices run to Dim(0)-2.
func matchesLookup(step *graph.Step) bool {
	if step.Indegree() != 2 || step.Outdegree() != 1 {
		return false
	}
	f := step.Input(0)
	m := step.Input(1)
	v := step.Output(0)
	if f.Type() != graph.Int32 || f.Rank() != 2 || f.Dim(0) != 1 {
		return false
	}
	if m.Type() != graph.Float32 || m.Rank() != 2 {
		return false
	}
	if v.Type() != graph.Float32 || v.Rank() != 2 {
		return false
	}
	if v.Dim(0) != 1 || v.Dim(1) != m.Dim(1) {
		return false
	}
	return true
}

// FeatureLookup accumulates embedding rows for a vector of feature ids with
// a scalar loop. A feature id of -1 resolves to the trailing OOV row; any
// other negative id contributes nothing.
type FeatureLookup struct{}

// Name returns the kernel name.
func (FeatureLookup) Name() string { return "FeatureLookup" }

// Operation returns the logical operation name.
func (FeatureLookup) Operation() string { return "Lookup" }

// Supports matches any step that satisfies the shared lookup contract.
func (FeatureLookup) Supports(step *graph.Step) bool {
	return matchesLookup(step)
}

// Adjust requires the embedding matrix to be row-major so rows can be
// addressed by feature id.
func (FeatureLookup) Adjust(step *graph.Step) {
	step.Input(1).SetRequiredOrder(graph.RowMajor)
}

// Generate emits: zero the output, then for each feature id resolve an
// embedding row (OOV row for -1, skip for other negatives) and add it
// element-wise into the output.
func (FeatureLookup) Generate(step *graph.Step, m *masm.MacroAssembler) {
	f := step.Input(0)
	emb := step.Input(1)
	v := step.Output(0)

	// The trailing row of the embedding matrix is the OOV element.
	oovRow := emb.Dim(0) - 1
	dims := v.Dim(1)
	numFeatures := f.Dim(1)

	rr := m.RR()
	acc := rr.Alloc()
	input := rr.Alloc()
	embeddings := rr.Alloc()
	output := rr.Alloc()
	col := rr.Alloc()
	row := rr.Alloc()
	oov := rr.Alloc()
	elem := m.MM().Alloc()

	m.LoadTensorAddress(input, f)
	m.LoadTensorAddress(embeddings, emb)
	m.LoadTensorAddress(output, v)

	// Clear the output accumulator.
	clear := m.NewLabel()
	m.VClear(elem)
	m.Clear(row)
	m.Bind(clear)
	m.StoreF32(output, row, 4, 0, elem)
	m.Inc(row)
	m.JumpIfNotEqualImm(row, int64(dims), clear)

	// Loop over input features.
	next := m.NewLabel()
	resolved := m.NewLabel()
	inner := m.NewLabel()
	skip := m.NewLabel()
	m.MoveImm(oov, int64(oovRow))
	m.Clear(col)
	m.Bind(next)

	// Get the next feature id. Use the OOV row for -1, skip any other
	// negative id.
	m.LoadIndex32(acc, input, col, 4)
	m.JumpIfNonNegative(acc, resolved)
	m.JumpIfNotEqualImm(acc, -1, skip)
	m.MoveReg(acc, oov)

	// Compute the address of the embedding row.
	m.Bind(resolved)
	m.MulImm(acc, int64(emb.Stride(0)))
	m.AddReg(acc, embeddings)

	// Add the embedding row to the output.
	m.Clear(row)
	m.Bind(inner)
	m.LoadF32(elem, output, row, 4, 0)
	m.AddF32(elem, acc, row, 4, 0)
	m.StoreF32(output, row, 4, 0, elem)
	m.Inc(row)
	m.JumpIfNotEqualImm(row, int64(dims), inner)

	// Next feature.
	m.Bind(skip)
	m.Inc(col)
	m.JumpIfNotEqualImm(col, int64(numFeatures), next)
}

// Complexity is the number of feature ids times the embedding dimension.
func (FeatureLookup) Complexity(step *graph.Step) int {
	return step.Input(0).Elements() * step.Output(0).Elements()
}
