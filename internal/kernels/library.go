package kernels

import "fmt"

// Library is an ordered registry of kernels keyed by operation name.
// Candidates for an operation are offered in registration order, so the
// first registered kernel that supports a step wins. A library is built once
// at session setup and frozen before compilation begins.
type Library struct {
	kernels map[string][]Kernel
	typers  []Typer
	frozen  bool
}

// NewLibrary creates an empty kernel library.
func NewLibrary() *Library {
	return &Library{kernels: make(map[string][]Kernel)}
}

// Register adds a kernel for its declared operation. Registration order
// determines selection priority and must be stable; registering into a
// frozen library is a bug.
func (l *Library) Register(k Kernel) {
	if l.frozen {
		panic(fmt.Sprintf("library: registration of %s after freeze", k.Name()))
	}
	l.kernels[k.Operation()] = append(l.kernels[k.Operation()], k)
}

// RegisterTyper adds a type inference extension.
func (l *Library) RegisterTyper(t Typer) {
	if l.frozen {
		panic("library: typer registration after freeze")
	}
	l.typers = append(l.typers, t)
}

// Lookup returns the kernels registered for an operation, in registration
// order.
func (l *Library) Lookup(op string) []Kernel {
	return l.kernels[op]
}

// Typers returns the registered type inference extensions.
func (l *Library) Typers() []Typer {
	return l.typers
}

// Freeze marks the library read-only. Compilation only consults frozen
// libraries.
func (l *Library) Freeze() {
	l.frozen = true
}

// Frozen reports whether the library has been frozen.
func (l *Library) Frozen() bool {
	return l.frozen
}
