package kernels

import (
	"github.com/lattice-ml/lattice/internal/cpufeature"
	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/masm"
)

// Block geometry for the unrolled lookup. The embedding dimension cap
// guarantees the whole accumulator fits in the vector register file, so the
// running sum never spills to memory.
const (
	lookupBlockSize       = masm.VecWidth
	lookupMaxEmbeddingDim = lookupBlockSize * masm.NumVecRegisters
)

// FeatureLookupUnrolled accumulates embedding rows entirely in vector
// registers: one register per block of the embedding dimension, stored to
// the output once after the feature loop. Numerically equivalent to
// FeatureLookup up to floating-point summation order.
type FeatureLookupUnrolled struct{}

// Name returns the kernel name.
func (FeatureLookupUnrolled) Name() string { return "FeatureLookupUnrolled" }

// Operation returns the logical operation name.
func (FeatureLookupUnrolled) Operation() string { return "Lookup" }

// Supports requires AVX on the host and an embedding dimension that is a
// multiple of the vector block width, small enough for the accumulator to
// stay in registers, on top of the shared lookup contract.
func (FeatureLookupUnrolled) Supports(step *graph.Step) bool {
	if !cpufeature.Enabled(cpufeature.AVX) {
		return false
	}
	if !matchesLookup(step) {
		return false
	}
	dims := step.Input(1).Dim(1)
	if dims > lookupMaxEmbeddingDim {
		return false
	}
	if dims%lookupBlockSize != 0 {
		return false
	}
	return true
}

// Adjust aligns the embedding matrix and output to the vector block width
// and requires the matrix to be row-major.
func (FeatureLookupUnrolled) Adjust(step *graph.Step) {
	align := lookupBlockSize * 4
	step.Input(1).Align([]int{1, lookupBlockSize})
	step.Input(1).SetMinAlignment(align)
	step.Output(0).Align([]int{1, lookupBlockSize})
	step.Output(0).SetMinAlignment(align)
	step.Input(1).SetRequiredOrder(graph.RowMajor)
}

// Generate emits the feature loop with the accumulator held in vector
// registers. Feature id resolution matches the scalar kernel: OOV row for
// -1, skip for any other negative id.
func (FeatureLookupUnrolled) Generate(step *graph.Step, m *masm.MacroAssembler) {
	f := step.Input(0)
	emb := step.Input(1)
	v := step.Output(0)

	oovRow := emb.Dim(0) - 1
	dims := v.Dim(1)
	numFeatures := f.Dim(1)

	rr := m.RR()
	acc := rr.Alloc()
	input := rr.Alloc()
	embeddings := rr.Alloc()
	output := rr.Alloc()
	col := rr.Alloc()
	oov := rr.Alloc()

	// One vector register per block of the embedding dimension.
	blocks := dims / lookupBlockSize
	sum := make([]masm.VecRegister, blocks)
	for i := range sum {
		sum[i] = m.MM().Alloc()
	}

	m.LoadTensorAddress(input, f)
	m.LoadTensorAddress(embeddings, emb)
	m.LoadTensorAddress(output, v)

	// Clear the accumulator.
	for i := range sum {
		m.VClear(sum[i])
	}

	// Loop over input features.
	next := m.NewLabel()
	resolved := m.NewLabel()
	skip := m.NewLabel()
	m.MoveImm(oov, int64(oovRow))
	m.Clear(col)
	m.Bind(next)

	m.LoadIndex32(acc, input, col, 4)
	m.JumpIfNonNegative(acc, resolved)
	m.JumpIfNotEqualImm(acc, -1, skip)
	m.MoveReg(acc, oov)

	// Add the embedding row to the accumulator, one block at a time.
	m.Bind(resolved)
	m.MulImm(acc, int64(emb.Stride(0)))
	m.AddReg(acc, embeddings)
	for i := range sum {
		m.VAddMem(sum[i], acc, i*lookupBlockSize*4)
	}

	// Next feature.
	m.Bind(skip)
	m.Inc(col)
	m.JumpIfNotEqualImm(col, int64(numFeatures), next)

	// Store the accumulated sum.
	for i := range sum {
		m.VStoreAligned(output, i*lookupBlockSize*4, sum[i])
	}
}

// Complexity is the number of feature ids times the embedding dimension.
func (FeatureLookupUnrolled) Complexity(step *graph.Step) int {
	return step.Input(0).Elements() * step.Output(0).Elements()
}
