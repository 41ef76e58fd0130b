// Package session exposes compiled feature extraction graphs as stateful
// compute sessions: a session owns one compiled cell and hands out
// instances that batches are attached to and run on. Sessions are created
// after kernel registration is complete; the library is frozen by the first
// compile.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lattice-ml/lattice/internal/compiler"
	"github.com/lattice-ml/lattice/internal/cpufeature"
	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/kernels"
	"github.com/lattice-ml/lattice/internal/masm"
	"github.com/lattice-ml/lattice/internal/parallel"
)

// Options configures a session.
type Options struct {
	// DisableSIMD forces scalar kernel selection for this session's
	// compile by masking the host capability query. The mask is scoped to
	// the compile; later sessions see the host features again. Intended
	// for debugging and A/B comparison of kernel variants.
	DisableSIMD bool `yaml:"disable_simd"`

	// MaxInstances bounds the number of recycled instances the session
	// retains. Zero means no recycling.
	MaxInstances int `yaml:"max_instances"`

	// Workers caps the goroutines used by RunBatch. Zero means one per
	// CPU.
	Workers int `yaml:"workers"`
}

// Session is a compiled graph plus an instance pool, identified by a UUID
// handle for the surrounding serving framework.
type Session struct {
	id   uuid.UUID
	g    *graph.Graph
	cell *masm.Cell
	opts Options

	mu   sync.Mutex
	free []*masm.Instance
}

// New compiles the graph with the given kernel library and wraps it in a
// session. A nil library gets the default feature kernel set.
func New(g *graph.Graph, lib *kernels.Library, opts Options) (*Session, error) {
	if lib == nil {
		lib = kernels.NewLibrary()
		kernels.RegisterFeatureKernels(lib)
	}
	var cell *masm.Cell
	var err error
	if opts.DisableSIMD {
		cpufeature.ScopedDisable(func() {
			cell, err = compiler.Compile(g, lib)
		}, cpufeature.AVX, cpufeature.AVX2, cpufeature.AVX512F, cpufeature.NEON)
	} else {
		cell, err = compiler.Compile(g, lib)
	}
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &Session{id: uuid.New(), g: g, cell: cell, opts: opts}, nil
}

// ID returns the session handle.
func (s *Session) ID() uuid.UUID { return s.id }

// Graph returns the session's graph.
func (s *Session) Graph() *graph.Graph { return s.g }

// Cell returns the compiled cell.
func (s *Session) Cell() *masm.Cell { return s.cell }

// NewInstance returns a cleared instance, recycling a released one when
// available.
func (s *Session) NewInstance() *masm.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.free); n > 0 {
		inst := s.free[n-1]
		s.free = s.free[:n-1]
		inst.Clear()
		return inst
	}
	return s.cell.NewInstance()
}

// Release returns an instance to the pool for reuse.
func (s *Session) Release(inst *masm.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.free) < s.opts.MaxInstances {
		s.free = append(s.free, inst)
	}
}

// Attach copies a feature-id batch into a named input tensor of the
// instance.
func (s *Session) Attach(inst *masm.Instance, name string, ids []int32) error {
	t := s.g.Var(name)
	if t == nil {
		return fmt.Errorf("session: no tensor named %q", name)
	}
	if !t.IsInput() {
		return fmt.Errorf("session: tensor %q is not an input", name)
	}
	if t.Type() != graph.Int32 {
		return fmt.Errorf("session: input %q is %s, not int32", name, t.Type())
	}
	if len(ids) != t.Elements() {
		return fmt.Errorf("session: input %q holds %d elements, got %d",
			name, t.Elements(), len(ids))
	}
	inst.SetInt32s(t, ids)
	return nil
}

// Run executes the compiled cell on the instance.
func (s *Session) Run(inst *masm.Instance) {
	inst.Run()
}

// RunBatch executes the cell once per batch item, each item on its own
// instance drawn from the session pool, and collects the named output. Items
// run concurrently up to the session's worker limit; the generated code
// itself needs no synchronization because every instance owns its arena.
func (s *Session) RunBatch(input string, batch [][]int32, output string) ([][]float32, error) {
	in := s.g.Var(input)
	if in == nil {
		return nil, fmt.Errorf("session: no tensor named %q", input)
	}
	out := s.g.Var(output)
	if out == nil {
		return nil, fmt.Errorf("session: no tensor named %q", output)
	}
	for i, ids := range batch {
		if len(ids) != in.Elements() {
			return nil, fmt.Errorf("session: batch item %d holds %d elements, want %d",
				i, len(ids), in.Elements())
		}
	}

	cfg := parallel.DefaultConfig()
	if s.opts.Workers > 0 {
		cfg.NumWorkers = s.opts.Workers
		cfg.Enabled = s.opts.Workers > 1
	}

	results := make([][]float32, len(batch))
	parallel.For(len(batch), func(i int) {
		inst := s.NewInstance()
		inst.SetInt32s(in, batch[i])
		inst.Run()
		results[i] = inst.Float32s(out)
		s.Release(inst)
	}, cfg)
	return results, nil
}

// Float32s reads a named output tensor from the instance.
func (s *Session) Float32s(inst *masm.Instance, name string) ([]float32, error) {
	t := s.g.Var(name)
	if t == nil {
		return nil, fmt.Errorf("session: no tensor named %q", name)
	}
	if t.Type() != graph.Float32 {
		return nil, fmt.Errorf("session: tensor %q is %s, not float32", name, t.Type())
	}
	return inst.Float32s(t), nil
}
