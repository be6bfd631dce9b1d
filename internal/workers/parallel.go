// Package workers shards row-oriented pixel work across a bounded set of goroutines.
package workers

import (
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	maxWorkers atomic.Int32
	semOnce    sync.Once
	sem        chan struct{}
)

// SetMaxWorkers caps the number of goroutines used by ParallelFor.
// Zero or negative restores the GOMAXPROCS default.
func SetMaxWorkers(n int) {
	if n < 0 {
		n = 0
	}
	maxWorkers.Store(int32(n))
}

// MaxWorkers returns the effective worker cap.
func MaxWorkers() int {
	capacity := runtime.GOMAXPROCS(0)
	if m := int(maxWorkers.Load()); m > 0 && capacity > m {
		capacity = m
	}
	if capacity < 1 {
		capacity = 1
	}
	return capacity
}

// ParallelFor splits [0, total) into contiguous ranges and calls fn for each of them.
// It returns once every range has been processed. fn must be safe to call concurrently
// for disjoint ranges.
func ParallelFor(total int, fn func(start, end int)) {
	if total <= 0 {
		return
	}
	workers := MaxWorkers()
	semOnce.Do(func() {
		sem = make(chan struct{}, runtime.GOMAXPROCS(0))
	})
	if c := cap(sem); workers > c {
		workers = c
	}
	if workers > total {
		workers = total
	}
	if workers <= 1 {
		fn(0, total)
		return
	}
	step := (total + workers - 1) / workers
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * step
		end := start + step
		if end > total {
			end = total
		}
		if start >= end {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
