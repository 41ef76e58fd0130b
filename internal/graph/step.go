package graph

import "fmt"

// Step is one node in the compute graph: a single operation instance with
// bound input and output tensors.
type Step struct {
	name    string
	op      string
	inputs  []*Tensor
	outputs []*Tensor

	// Kernel binding, recorded by the compiler after selection.
	variant    string
	complexity int

	// In-place sharing requests, granted by the layout planner.
	shares []sharePair
}

type sharePair struct {
	input  *Tensor
	output *Tensor
}

// Name returns the step's name.
func (s *Step) Name() string { return s.name }

// Operation returns the logical operation name, used for kernel lookup.
func (s *Step) Operation() string { return s.op }

// Indegree returns the number of input tensors.
func (s *Step) Indegree() int { return len(s.inputs) }

// Outdegree returns the number of output tensors.
func (s *Step) Outdegree() int { return len(s.outputs) }

// Input returns input tensor i.
func (s *Step) Input(i int) *Tensor { return s.inputs[i] }

// Output returns output tensor i.
func (s *Step) Output(i int) *Tensor { return s.outputs[i] }

// Inputs returns all input tensors.
func (s *Step) Inputs() []*Tensor { return s.inputs }

// Outputs returns all output tensors.
func (s *Step) Outputs() []*Tensor { return s.outputs }

// AllowInPlace requests that output out share storage with input in. The
// request is granted immediately if the output is not already shared
// elsewhere and the element counts and types match; the layout planner then
// places both tensors at the same arena offset and the grant is verified
// after layout. The input may itself be a shared output, forming a chain
// that the planner resolves to its root.
func (s *Step) AllowInPlace(in, out int) bool {
	x := s.inputs[in]
	y := s.outputs[out]
	if y.sharedWith == x {
		return true // Already granted; Adjust must stay idempotent.
	}
	if y.sharedWith != nil {
		return false
	}
	if x.typ != y.typ || x.Elements() != y.Elements() {
		return false
	}
	y.sharedWith = x
	s.shares = append(s.shares, sharePair{input: x, output: y})
	return true
}

// Variant returns the name of the kernel bound to the step, or "" before
// selection.
func (s *Step) Variant() string { return s.variant }

// SetVariant records the name of the selected kernel.
func (s *Step) SetVariant(name string) { s.variant = name }

// Complexity returns the cost estimate recorded for the bound kernel.
func (s *Step) Complexity() int { return s.complexity }

// SetComplexity records the selected kernel's cost estimate.
func (s *Step) SetComplexity(c int) { s.complexity = c }

// Signature formats the step's operation and tensor types for diagnostics,
// e.g. "Lookup(int32[1,4], float32[11,16]) -> (float32[1,16])".
func (s *Step) Signature() string {
	sig := s.op + "("
	for i, t := range s.inputs {
		if i > 0 {
			sig += ", "
		}
		sig += t.TypeString()
	}
	sig += ") -> ("
	for i, t := range s.outputs {
		if i > 0 {
			sig += ", "
		}
		sig += t.TypeString()
	}
	return sig + ")"
}

// String returns the step's name and signature.
func (s *Step) String() string {
	return fmt.Sprintf("%s: %s", s.name, s.Signature())
}
