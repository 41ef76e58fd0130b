// Package compiler lowers a feature extraction graph to an executable cell.
// For every step it binds the first registered kernel whose applicability
// predicate succeeds, lets the bound kernels negotiate tensor layout, plans
// the instance arena, and drives code generation.
package compiler

import (
	"fmt"

	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/kernels"
	"github.com/lattice-ml/lattice/internal/masm"
)

// binding pairs a step with its selected kernel.
type binding struct {
	step   *graph.Step
	kernel kernels.Kernel
}

// Compile lowers the graph using the kernels in lib. The library is frozen
// on first use; no registration is possible afterwards.
//
// Compilation fails with a diagnostic naming the unmatched operation and its
// signature when no registered kernel supports a step. That is the only
// recoverable error class: everything else that can go wrong past selection
// is a broken contract and aborts.
func Compile(g *graph.Graph, lib *kernels.Library) (*masm.Cell, error) {
	lib.Freeze()

	// Run type inference extensions until no extension requests another
	// pass.
	for again := true; again; {
		again = false
		for _, typer := range lib.Typers() {
			for _, step := range g.Steps() {
				if typer.InferTypes(step) {
					again = true
				}
			}
		}
	}

	// Bind each step to the first applicable kernel, in registration
	// order.
	bindings := make([]binding, 0, len(g.Steps()))
	for _, step := range g.Steps() {
		var selected kernels.Kernel
		for _, k := range lib.Lookup(step.Operation()) {
			if k.Supports(step) {
				selected = k
				break
			}
		}
		if selected == nil {
			return nil, fmt.Errorf("compiler: no kernel supports step %s: %s",
				step.Name(), step.Signature())
		}
		step.SetVariant(selected.Name())
		step.SetComplexity(selected.Complexity(step))
		bindings = append(bindings, binding{step: step, kernel: selected})
	}

	// Let the bound kernels impose layout constraints, then fix the
	// memory layout.
	for _, b := range bindings {
		b.kernel.Adjust(b.step)
	}
	arenaSize := g.ComputeLayout()

	// Generate code. Each kernel emits with a full register file and must
	// stay within it.
	m := masm.New()
	for _, b := range bindings {
		m.ResetRegisters()
		b.kernel.Generate(b.step, m)
	}

	return masm.NewCell(m.Freeze(), g, arenaSize), nil
}
