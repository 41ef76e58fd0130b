package kernels_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-ml/lattice/internal/compiler"
	"github.com/lattice-ml/lattice/internal/cpufeature"
	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/kernels"
	"github.com/lattice-ml/lattice/internal/masm"
)

// f32bytes encodes float32 values as a little-endian payload.
func f32bytes(vals []float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func i32bytes(vals []int32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

// embedding builds a deterministic (vocab+1) x dims matrix. The trailing row
// is the OOV representation.
func embedding(vocab, dims int) ([][]float32, []byte) {
	rows := make([][]float32, vocab+1)
	flat := make([]float32, 0, (vocab+1)*dims)
	for r := range rows {
		rows[r] = make([]float32, dims)
		for c := range rows[r] {
			rows[r][c] = float32(r+1)*0.5 + float32(c)*0.25
		}
		flat = append(flat, rows[r]...)
	}
	return rows, f32bytes(flat)
}

// expectLookup computes the reference accumulation: -1 resolves to the OOV
// row, other negatives contribute nothing.
func expectLookup(rows [][]float32, ids []int32, dims int) []float32 {
	out := make([]float32, dims)
	oov := len(rows) - 1
	for _, id := range ids {
		var row []float32
		switch {
		case id >= 0:
			row = rows[id]
		case id == -1:
			row = rows[oov]
		default:
			continue
		}
		for c := range out {
			out[c] += row[c]
		}
	}
	return out
}

// buildLookup assembles a Lookup graph: ids [1,n], embedding matrix
// [vocab+1,dims] constant, output [1,dims].
func buildLookup(n, vocab, dims int, payload []byte) (*graph.Graph, *graph.Tensor, *graph.Tensor, *graph.Tensor) {
	g := graph.New()
	ids := g.NewTensor("ids", graph.Int32, graph.Shape{1, n})
	emb := g.NewTensor("embeddings", graph.Float32, graph.Shape{vocab + 1, dims})
	emb.SetData(payload)
	out := g.NewTensor("out", graph.Float32, graph.Shape{1, dims})
	g.NewStep("lookup0", "Lookup", []*graph.Tensor{ids, emb}, []*graph.Tensor{out})
	return g, ids, emb, out
}

func compile(t *testing.T, g *graph.Graph) *masm.Cell {
	t.Helper()
	lib := kernels.NewLibrary()
	kernels.RegisterFeatureKernels(lib)
	cell, err := compiler.Compile(g, lib)
	require.NoError(t, err)
	return cell
}

func TestScalarLookupAccumulation(t *testing.T) {
	cpufeature.Override(cpufeature.AVX, false)
	t.Cleanup(cpufeature.Reset)

	const vocab, dims = 10, 16
	rows, payload := embedding(vocab, dims)
	ids := []int32{2, -1, 0, -7, 5}

	g, idsT, _, outT := buildLookup(len(ids), vocab, dims, payload)
	cell := compile(t, g)
	assert.Equal(t, "FeatureLookup", g.Steps()[0].Variant())

	inst := cell.NewInstance()
	inst.SetInt32s(idsT, ids)
	inst.Run()

	want := expectLookup(rows, ids, dims)
	got := inst.Float32s(outT)
	for c := range want {
		assert.InDelta(t, want[c], got[c], 1e-5, "column %d", c)
	}
}

func TestScalarLookupAllAbsent(t *testing.T) {
	cpufeature.Override(cpufeature.AVX, false)
	t.Cleanup(cpufeature.Reset)

	const vocab, dims = 4, 8
	_, payload := embedding(vocab, dims)
	ids := []int32{-2, -3, -100}

	g, idsT, _, outT := buildLookup(len(ids), vocab, dims, payload)
	cell := compile(t, g)

	inst := cell.NewInstance()
	inst.SetInt32s(idsT, ids)
	inst.Run()

	for c, v := range inst.Float32s(outT) {
		assert.Zero(t, v, "column %d", c)
	}
}

func TestUnrolledLookupMatchesScalar(t *testing.T) {
	const vocab, dims = 10, 32
	rows, payload := embedding(vocab, dims)
	ids := []int32{0, 3, -1, 9, -1, -4, 7}

	run := func(avx bool) []float32 {
		cpufeature.Override(cpufeature.AVX, avx)
		defer cpufeature.Reset()
		g, idsT, _, outT := buildLookup(len(ids), vocab, dims, payload)
		cell := compile(t, g)
		want := "FeatureLookup"
		if avx {
			want = "FeatureLookupUnrolled"
		}
		require.Equal(t, want, g.Steps()[0].Variant())
		inst := cell.NewInstance()
		inst.SetInt32s(idsT, ids)
		inst.Run()
		return inst.Float32s(outT)
	}

	scalar := run(false)
	unrolled := run(true)
	reference := expectLookup(rows, ids, dims)

	// The two kernels add the same rows, possibly in a different order, so
	// agreement is within tolerance, not bit-exact by contract.
	for c := range reference {
		assert.InDelta(t, reference[c], scalar[c], 1e-4)
		assert.InDelta(t, scalar[c], unrolled[c], 1e-4)
	}
}

func TestUnrolledLookupApplicability(t *testing.T) {
	cpufeature.Override(cpufeature.AVX, true)
	t.Cleanup(cpufeature.Reset)

	// Dimension not a multiple of the block width.
	_, payload := embedding(4, 12)
	g, _, _, _ := buildLookup(3, 4, 12, payload)
	compile(t, g)
	assert.Equal(t, "FeatureLookup", g.Steps()[0].Variant())

	// Dimension too large for the register file.
	_, payload = embedding(4, 136)
	g, _, _, _ = buildLookup(3, 4, 136, payload)
	compile(t, g)
	assert.Equal(t, "FeatureLookup", g.Steps()[0].Variant())

	// Without AVX the unrolled kernel is never offered.
	cpufeature.Override(cpufeature.AVX, false)
	_, payload = embedding(4, 16)
	g, _, _, _ = buildLookup(3, 4, 16, payload)
	compile(t, g)
	assert.Equal(t, "FeatureLookup", g.Steps()[0].Variant())
}

func TestLookupSingleZeroCopy(t *testing.T) {
	cpufeature.Override(cpufeature.AVX, true)
	t.Cleanup(cpufeature.Reset)

	const vocab, dims = 10, 16
	rows, payload := embedding(vocab, dims)

	for _, tc := range []struct {
		name string
		id   int32
		row  int
	}{
		{"valid id", 3, 3},
		{"oov id", -1, vocab},
		{"other negative id", -9, vocab},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, idsT, embT, outT := buildLookup(1, vocab, dims, payload)
			cell := compile(t, g)
			require.Equal(t, "FeatureLookupSingle", g.Steps()[0].Variant(),
				"single-feature lookups bind to the zero-copy kernel")
			require.True(t, outT.Ref())
			require.Same(t, embT, outT.Link())

			inst := cell.NewInstance()
			inst.SetInt32s(idsT, []int32{tc.id})
			inst.Run()

			wantAddr := int64(embT.Offset() + tc.row*embT.Stride(0))
			assert.Equal(t, wantAddr, inst.Pointer(outT),
				"output must point at the row, not copy it")

			got := inst.Float32s(outT)
			for c := range got {
				assert.InDelta(t, rows[tc.row][c], got[c], 1e-6)
			}
		})
	}
}

func TestLookupSingleIntoConcat(t *testing.T) {
	const vocab, dims = 5, 6
	rows, payload := embedding(vocab, dims)

	// A fixed single-feature channel concatenated with a dense input: the
	// zero-copy lookup output is a reference, so concat must copy the row
	// it points at, not its pointer slot.
	g := graph.New()
	ids := g.NewTensor("ids", graph.Int32, graph.Shape{1, 1})
	emb := g.NewTensor("embeddings", graph.Float32, graph.Shape{vocab + 1, dims})
	emb.SetData(payload)
	channel := g.NewTensor("channel", graph.Float32, graph.Shape{1, dims})
	g.NewStep("lookup0", "Lookup", []*graph.Tensor{ids, emb}, []*graph.Tensor{channel})

	dense := g.NewTensor("dense", graph.Float32, graph.Shape{1, 2})
	ax := g.NewTensor("axis", graph.Int32, graph.Shape{})
	ax.SetData(i32bytes([]int32{1}))
	out := g.NewTensor("out", graph.Float32, graph.Shape{1, dims + 2})
	g.NewStep("concat0", "Concat", []*graph.Tensor{channel, dense, ax}, []*graph.Tensor{out})

	cell := compile(t, g)
	require.Equal(t, "FeatureLookupSingle", g.Steps()[0].Variant())
	require.Equal(t, "FeatureConcat", g.Steps()[1].Variant())
	require.True(t, channel.Ref())

	inst := cell.NewInstance()
	inst.SetInt32s(ids, []int32{2})
	inst.SetFloat32s(dense, []float32{41, 43})
	inst.Run()

	got := inst.Float32s(out)
	for c := 0; c < dims; c++ {
		assert.InDelta(t, rows[2][c], got[c], 1e-6, "column %d", c)
	}
	assert.Equal(t, float32(41), got[dims])
	assert.Equal(t, float32(43), got[dims+1])
}

func TestChainedReshapeElision(t *testing.T) {
	g := graph.New()
	x := g.NewTensor("x", graph.Float32, graph.Shape{2, 3})
	shape1 := g.NewTensor("shape1", graph.Int32, graph.Shape{2})
	shape1.SetData(i32bytes([]int32{3, 2}))
	y := g.NewTensor("y", graph.Float32, graph.Shape{3, 2})
	shape2 := g.NewTensor("shape2", graph.Int32, graph.Shape{1})
	shape2.SetData(i32bytes([]int32{6}))
	z := g.NewTensor("z", graph.Float32, graph.Shape{6})
	g.NewStep("reshape0", "Reshape", []*graph.Tensor{x, shape1}, []*graph.Tensor{y})
	g.NewStep("reshape1", "Reshape", []*graph.Tensor{y, shape2}, []*graph.Tensor{z})

	cell := compile(t, g)
	assert.Equal(t, "NoOpReshape", g.Steps()[0].Variant())
	assert.Equal(t, "NoOpReshape", g.Steps()[1].Variant())
	assert.Zero(t, cell.Instructions(), "both reshapes elide")
	assert.Equal(t, x.Offset(), y.Offset())
	assert.Equal(t, x.Offset(), z.Offset(), "the chain collapses onto one slot")

	inst := cell.NewInstance()
	inst.SetFloat32s(x, []float32{1, 2, 3, 4, 5, 6})
	inst.Run()
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, inst.Float32s(z))
}

func TestCollect(t *testing.T) {
	const vocab, dims = 6, 8
	rows, payload := embedding(vocab, dims)
	ids := []int32{2, -1, -5}
	batch := len(ids)

	g := graph.New()
	idsT := g.NewTensor("ids", graph.Int32, graph.Shape{1, batch})
	embT := g.NewTensor("embeddings", graph.Float32, graph.Shape{vocab + 1, dims})
	embT.SetData(payload)
	outT := g.NewTensor("out", graph.Float32, graph.Shape{batch, dims + 1})
	g.NewStep("collect0", "Collect", []*graph.Tensor{idsT, embT}, []*graph.Tensor{outT})

	cell := compile(t, g)
	assert.Equal(t, "FeatureCollect", g.Steps()[0].Variant())

	inst := cell.NewInstance()
	inst.SetInt32s(idsT, ids)
	inst.Run()

	got := inst.Float32s(outT)
	width := dims + 1
	for b, id := range ids {
		row := got[b*width : (b+1)*width]
		switch {
		case id >= 0:
			for c := 0; c < dims; c++ {
				assert.InDelta(t, rows[id][c], row[c], 1e-6, "row %d col %d", b, c)
			}
			assert.Zero(t, row[dims], "indicator clear for valid id")
		case id == -1:
			for c := 0; c < dims; c++ {
				assert.Zero(t, row[c], "row %d col %d untouched", b, c)
			}
			assert.Equal(t, float32(1.0), row[dims], "indicator set for OOV")
		default:
			for c := 0; c <= dims; c++ {
				assert.Zero(t, row[c], "absent feature leaves row zeroed")
			}
		}
	}
}

func buildConcat(axis int32, outWidth int) (*graph.Graph, *graph.Tensor, *graph.Tensor, *graph.Tensor) {
	g := graph.New()
	a := g.NewTensor("a", graph.Float32, graph.Shape{1, 2})
	b := g.NewTensor("b", graph.Float32, graph.Shape{1, 4})
	ax := g.NewTensor("axis", graph.Int32, graph.Shape{})
	ax.SetData(i32bytes([]int32{axis}))
	out := g.NewTensor("out", graph.Float32, graph.Shape{1, outWidth})
	g.NewStep("concat0", "Concat", []*graph.Tensor{a, b, ax}, []*graph.Tensor{out})
	return g, a, b, out
}

func TestConcat(t *testing.T) {
	g, a, b, out := buildConcat(1, 6)
	cell := compile(t, g)
	assert.Equal(t, "FeatureConcat", g.Steps()[0].Variant())

	inst := cell.NewInstance()
	inst.SetFloat32s(a, []float32{1, 2})
	inst.SetFloat32s(b, []float32{3, 4, 5, 6})
	inst.Run()

	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, inst.Float32s(out),
		"output bytes are the ordered concatenation of the inputs")
}

func TestConcatWrongAxisNotApplicable(t *testing.T) {
	g, _, _, _ := buildConcat(0, 6)
	lib := kernels.NewLibrary()
	kernels.RegisterFeatureKernels(lib)
	_, err := compiler.Compile(g, lib)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concat0")
	assert.Contains(t, err.Error(), "Concat")
}

func TestConcatByteCountMismatchAborts(t *testing.T) {
	g, _, _, _ := buildConcat(1, 7)
	lib := kernels.NewLibrary()
	kernels.RegisterFeatureKernels(lib)
	assert.Panics(t, func() { _, _ = compiler.Compile(g, lib) },
		"byte-count mismatch is a fatal invariant, not a selection failure")
}

func TestReshapeElision(t *testing.T) {
	g := graph.New()
	x := g.NewTensor("x", graph.Float32, graph.Shape{2, 3})
	shape := g.NewTensor("shape", graph.Int32, graph.Shape{2})
	shape.SetData(i32bytes([]int32{3, 2}))
	y := g.NewTensor("y", graph.Float32, graph.Shape{3, 2})
	g.NewStep("reshape0", "Reshape", []*graph.Tensor{x, shape}, []*graph.Tensor{y})

	cell := compile(t, g)
	assert.Equal(t, "NoOpReshape", g.Steps()[0].Variant())
	assert.Zero(t, cell.Instructions(), "reshape elision emits no instructions")
	assert.Equal(t, x.Offset(), y.Offset(), "input and output share storage")

	inst := cell.NewInstance()
	inst.SetFloat32s(x, []float32{1, 2, 3, 4, 5, 6})
	inst.Run()
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, inst.Float32s(y))
}

func TestReshapeNotApplicableWithSecondConsumer(t *testing.T) {
	g := graph.New()
	x := g.NewTensor("x", graph.Float32, graph.Shape{2, 3})
	shape := g.NewTensor("shape", graph.Int32, graph.Shape{2})
	shape.SetData(i32bytes([]int32{3, 2}))
	y := g.NewTensor("y", graph.Float32, graph.Shape{3, 2})
	z := g.NewTensor("z", graph.Float32, graph.Shape{6})
	g.NewStep("reshape0", "Reshape", []*graph.Tensor{x, shape}, []*graph.Tensor{y})
	g.NewStep("reshape1", "Reshape", []*graph.Tensor{x, shape}, []*graph.Tensor{z})

	lib := kernels.NewLibrary()
	kernels.RegisterFeatureKernels(lib)
	_, err := compiler.Compile(g, lib)
	require.Error(t, err, "elision requires a single consumer")
}

func TestSelectionDeterminism(t *testing.T) {
	cpufeature.Override(cpufeature.AVX, true)
	t.Cleanup(cpufeature.Reset)

	const vocab, dims = 5, 16
	_, payload := embedding(vocab, dims)
	for i := 0; i < 10; i++ {
		g, _, _, _ := buildLookup(4, vocab, dims, payload)
		compile(t, g)
		assert.Equal(t, "FeatureLookupUnrolled", g.Steps()[0].Variant(),
			"repeated selection is stable")
	}
}

func TestInitializerTyper(t *testing.T) {
	g := graph.New()
	state := g.NewTensor("state", graph.Float32, graph.Shape{5})
	g.NewStep("init0", kernels.InitializerOp, nil, []*graph.Tensor{state})

	typer := kernels.InitializerTyper{}
	again := typer.InferTypes(g.Steps()[0])
	assert.False(t, again, "the initializer typer never requests another pass")
	assert.Equal(t, graph.Int32, state.Type())
	assert.Equal(t, 0, state.Rank(), "output becomes a scalar")

	cell := compile(t, g)
	assert.Zero(t, cell.Instructions(), "the initializer stub emits nothing")
}
