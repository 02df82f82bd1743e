// Package parallel runs work over a fixed-size pool of goroutines.
// Callers get disjoint ownership of their outputs (one item, or one
// contiguous range), so results can be written without locks.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// NumWorkers picks the pool size: 1 when memory constrained, else
// `requested` if positive, else the number of CPUs.
func NumWorkers(memoryConstrained bool, requested int) int {
	if memoryConstrained {
		return 1
	}
	if requested > 0 {
		return requested
	}
	return runtime.NumCPU()
}

// ForEach calls fn(i) for every i in [0,n). Workers claim the next item
// from a shared atomic counter, and ForEach returns once all are done.
func ForEach(n, workers int, fn func(i int)) {
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var next int64 = -1
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= n {
					return
				}
				fn(i)
			}
		}()
	}
	wg.Wait()
}

// A Chunk is the half-open range [Start, End), handled by worker Worker.
type Chunk struct {
	Worker     int
	Start, End int
}

// DivideIntoChunks splits [0,n) into at most `workers` contiguous ranges
// of near-equal size. Empty ranges are never returned.
func DivideIntoChunks(n, workers int) []Chunk {
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	chunks := []Chunk{}
	start := 0
	for w := 0; w < workers; w++ {
		size := n / workers
		if w < n%workers {
			size++
		}
		chunks = append(chunks, Chunk{Worker: w, Start: start, End: start + size})
		start += size
	}
	return chunks
}

// Chunks runs fn once per chunk, each on its own goroutine, and waits.
func Chunks(n, workers int, fn func(c Chunk)) {
	chunks := DivideIntoChunks(n, workers)
	if len(chunks) == 1 {
		fn(chunks[0])
		return
	}

	var wg sync.WaitGroup
	for _, c := range chunks {
		wg.Add(1)
		go func(c Chunk) {
			defer wg.Done()
			fn(c)
		}(c)
	}
	wg.Wait()
}
