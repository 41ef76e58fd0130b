package kernels

import (
	"math"

	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/masm"
)

// FeatureCollect maps a batch of feature ids through an embedding matrix
// into an output with one extra trailing column. A non-negative id copies
// the embedding row verbatim; id -1 leaves the row untouched and sets the
// trailing OOV indicator column to 1.0; any other negative id leaves the
// whole row as zero-initialized by the instance.
type FeatureCollect struct{}

// Name returns the kernel name.
func (FeatureCollect) Name() string { return "FeatureCollect" }

// Operation returns the logical operation name.
func (FeatureCollect) Operation() string { return "Collect" }

// Supports requires a [1,B] int32 id tensor, a rank-2 float32 embedding
// matrix, and a [B,D+1] float32 output where D is the embedding dimension.
func (FeatureCollect) Supports(step *graph.Step) bool {
	if step.Indegree() != 2 || step.Outdegree() != 1 {
		return false
	}
	f := step.Input(0)
	m := step.Input(1)
	r := step.Output(0)
	if f.Type() != graph.Int32 || f.Rank() != 2 {
		return false
	}
	if m.Type() != graph.Float32 || m.Rank() != 2 {
		return false
	}
	if r.Type() != graph.Float32 || r.Rank() != 2 {
		return false
	}
	if f.Dim(0) != 1 || f.Dim(1) != r.Dim(0) {
		return false
	}
	if r.Dim(1) != m.Dim(1)+1 {
		return false
	}
	return true
}

// Adjust requires both the embedding matrix and the output to be row-major.
func (FeatureCollect) Adjust(step *graph.Step) {
	step.Input(1).SetRequiredOrder(graph.RowMajor)
	step.Output(0).SetRequiredOrder(graph.RowMajor)
}

// Generate emits one pass over the batch: copy the embedding row for
// non-negative ids, set the OOV indicator for id -1, and advance to the
// next output row.
func (FeatureCollect) Generate(step *graph.Step, m *masm.MacroAssembler) {
	f := step.Input(0)
	emb := step.Input(1)
	r := step.Output(0)

	dims := emb.Dim(1)
	numFeatures := f.Dim(1)

	rr := m.RR()
	acc := rr.Alloc()
	input := rr.Alloc()
	activations := rr.Alloc()
	output := rr.Alloc()
	index := rr.Alloc()
	one := rr.Alloc()

	m.LoadTensorAddress(input, f)
	m.LoadTensorAddress(activations, emb)
	m.LoadTensorAddress(output, r)

	// Loop over input features.
	oovCheck := m.NewLabel()
	next := m.NewLabel()
	var top *masm.Label
	if numFeatures != 1 {
		top = m.NewLabel()
		m.Clear(index)
		m.Bind(top)
	}

	// Get the next feature id.
	if numFeatures == 1 {
		m.LoadIndex32(acc, input, masm.NoReg, 0)
	} else {
		m.LoadIndex32(acc, input, index, 4)
	}
	m.JumpIfNegative(acc, oovCheck)

	// Copy the embedding row to the output.
	m.MulImm(acc, int64(emb.Stride(0)))
	m.AddReg(acc, activations)
	m.Copy(output, 0, acc, 0, dims*4)
	m.Jump(next)

	// Set the OOV indicator to 1.0 if the feature id is -1.
	m.Bind(oovCheck)
	m.JumpIfNotEqualImm(acc, -1, next)
	m.MoveImm(one, int64(math.Float32bits(1.0)))
	m.StoreReg32(output, dims*4, one)

	// Next feature.
	m.Bind(next)
	if numFeatures != 1 {
		m.AddImm(output, int64(r.Stride(0)))
		m.Inc(index)
		m.JumpIfNotEqualImm(index, int64(numFeatures), top)
	}
}

// Complexity is zero; rows are copied, not computed.
func (FeatureCollect) Complexity(step *graph.Step) int {
	return 0
}
