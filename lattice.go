// Package lattice compiles neural feature extraction graphs to native cells.
//
// A graph of typed tensor operations (embedding lookup, weighted collect,
// concatenation, reshape) is lowered by selecting, for each step, a
// hardware-specialized kernel and emitting the instruction sequence that
// computes it directly into a preallocated instance arena.
//
// This package is a thin facade over the internal packages:
//
//	g := lattice.NewGraph()
//	ids := g.NewTensor("ids", lattice.Int32, lattice.Shape{1, 4})
//	ids.MarkInput()
//	// ... add the embedding matrix, outputs and steps ...
//	sess, err := lattice.NewSession(g, lattice.Options{})
//	if err != nil {
//	    // no kernel matched some step
//	}
//	inst := sess.NewInstance()
//	sess.Attach(inst, "ids", []int32{5, -1, 0, -7})
//	sess.Run(inst)
package lattice

import (
	"github.com/lattice-ml/lattice/internal/compiler"
	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/kernels"
	"github.com/lattice-ml/lattice/internal/masm"
	"github.com/lattice-ml/lattice/internal/session"
)

// Core graph and execution types.
type (
	Graph    = graph.Graph
	Tensor   = graph.Tensor
	Step     = graph.Step
	Shape    = graph.Shape
	Type     = graph.Type
	Kernel   = kernels.Kernel
	Library  = kernels.Library
	Cell     = masm.Cell
	Instance = masm.Instance
	Session  = session.Session
	Options  = session.Options
)

// Tensor element types.
const (
	Float32 = graph.Float32
	Float64 = graph.Float64
	Int32   = graph.Int32
	Int64   = graph.Int64
	Uint8   = graph.Uint8
)

// NewGraph creates an empty compute graph.
func NewGraph() *Graph {
	return graph.New()
}

// NewFeatureLibrary returns a library with the feature extraction kernels
// registered in their selection order. Additional kernels may be registered
// before the library is used to compile.
func NewFeatureLibrary() *Library {
	lib := kernels.NewLibrary()
	kernels.RegisterFeatureKernels(lib)
	return lib
}

// Compile lowers a graph with the given kernel library, freezing the
// library. It fails when no registered kernel supports some step.
func Compile(g *Graph, lib *Library) (*Cell, error) {
	return compiler.Compile(g, lib)
}

// NewSession compiles a graph with the default feature kernels and wraps it
// in a stateful compute session.
func NewSession(g *Graph, opts Options) (*Session, error) {
	return session.New(g, nil, opts)
}
