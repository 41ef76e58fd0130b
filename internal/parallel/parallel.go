// Package parallel provides the fan-out helper used to run compiled cells
// over a batch of items. Code generation itself is single-threaded; only
// finished instances execute concurrently, each against its own arena.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls batch fan-out.
type Config struct {
	Enabled      bool // Whether concurrent execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1, // Instances are coarse units of work.
	}
}

// For executes f(i) for i in [0, n), concurrently when the configuration
// allows it. Falls back to sequential execution for small batches.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || cfg.NumWorkers < 2 || n <= cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}
