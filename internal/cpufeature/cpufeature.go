// Package cpufeature answers whether a SIMD extension is available on the
// host. Kernels whose applicability depends on hardware features consult it
// during selection; nothing else in the compiler does.
package cpufeature

import (
	"sync"

	"golang.org/x/sys/cpu"
)

// Feature identifies a SIMD instruction set extension.
type Feature int

// Supported feature queries.
const (
	SSE2 Feature = iota
	AVX
	AVX2
	AVX512F
	NEON
)

// String returns the conventional name of the feature.
func (f Feature) String() string {
	switch f {
	case SSE2:
		return "SSE2"
	case AVX:
		return "AVX"
	case AVX2:
		return "AVX2"
	case AVX512F:
		return "AVX512F"
	case NEON:
		return "NEON"
	default:
		return "unknown"
	}
}

// overrides holds injected feature states; features without an entry defer
// to the host CPU. Guarded by mu so overrides and queries may come from
// different goroutines. scopeMu serializes scoped overrides with each other.
var (
	mu        sync.RWMutex
	scopeMu   sync.Mutex
	overrides = map[Feature]bool{}
)

// Enabled reports whether the feature is available, honoring any override.
func Enabled(f Feature) bool {
	mu.RLock()
	v, ok := overrides[f]
	mu.RUnlock()
	if ok {
		return v
	}
	switch f {
	case SSE2:
		return cpu.X86.HasSSE2
	case AVX:
		return cpu.X86.HasAVX
	case AVX2:
		return cpu.X86.HasAVX2
	case AVX512F:
		return cpu.X86.HasAVX512F
	case NEON:
		return cpu.ARM64.HasASIMD
	default:
		return false
	}
}

// Override forces a feature on or off until Reset. Intended for tests that
// need deterministic kernel selection regardless of the host CPU.
func Override(f Feature, enabled bool) {
	mu.Lock()
	overrides[f] = enabled
	mu.Unlock()
}

// Reset removes all overrides.
func Reset() {
	mu.Lock()
	overrides = map[Feature]bool{}
	mu.Unlock()
}

// ScopedDisable forces the given features off, runs fn, and restores the
// override state that was in effect before the call. Scoped calls are
// serialized with each other, so one caller's disable cannot leak into
// another's restored state.
func ScopedDisable(fn func(), features ...Feature) {
	scopeMu.Lock()
	defer scopeMu.Unlock()

	mu.Lock()
	prev := make(map[Feature]bool, len(overrides))
	for f, v := range overrides {
		prev[f] = v
	}
	for _, f := range features {
		overrides[f] = false
	}
	mu.Unlock()

	defer func() {
		mu.Lock()
		overrides = prev
		mu.Unlock()
	}()
	fn()
}
