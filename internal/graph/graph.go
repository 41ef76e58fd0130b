package graph

import "fmt"

// Graph is an ordered collection of tensors and steps. Steps are compiled in
// insertion order; the builder is expected to add them in topological order.
type Graph struct {
	tensors []*Tensor
	steps   []*Step
	byName  map[string]*Tensor
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{byName: make(map[string]*Tensor)}
}

// NewTensor adds a tensor to the graph. Names must be unique and shapes
// valid.
func (g *Graph) NewTensor(name string, typ Type, shape Shape) *Tensor {
	if _, ok := g.byName[name]; ok {
		panic(fmt.Sprintf("graph: duplicate tensor name %q", name))
	}
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("graph: tensor %q: %v", name, err))
	}
	t := &Tensor{
		name:     name,
		typ:      typ,
		shape:    shape.Clone(),
		minAlign: typ.Size(),
		dimAlign: defaultDimAlign(len(shape)),
		offset:   -1,
	}
	g.tensors = append(g.tensors, t)
	g.byName[name] = t
	return t
}

// NewStep adds a step to the graph and wires producer/consumer links.
func (g *Graph) NewStep(name, op string, inputs, outputs []*Tensor) *Step {
	s := &Step{
		name:    name,
		op:      op,
		inputs:  append([]*Tensor(nil), inputs...),
		outputs: append([]*Tensor(nil), outputs...),
	}
	for _, t := range s.inputs {
		t.consumers = append(t.consumers, s)
	}
	for _, t := range s.outputs {
		if t.producer != nil {
			panic(fmt.Sprintf("graph: tensor %q produced by both %q and %q",
				t.Name(), t.producer.Name(), name))
		}
		t.producer = s
	}
	g.steps = append(g.steps, s)
	return s
}

// Var returns the tensor with the given name, or nil.
func (g *Graph) Var(name string) *Tensor {
	return g.byName[name]
}

// Tensors returns all tensors in insertion order.
func (g *Graph) Tensors() []*Tensor { return g.tensors }

// Steps returns all steps in insertion order.
func (g *Graph) Steps() []*Step { return g.steps }
