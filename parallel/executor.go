package parallel

import (
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/notargets/MLNodeKernel/amr"
)

// Safety declares whether a kernel body may run its nodes concurrently
type Safety int

const (
	// DataParallel bodies touch disjoint nodes and may run in any order
	DataParallel Safety = iota
	// SequentialRequired bodies read values written earlier in the same pass
	// and must visit nodes in lexicographic order
	SequentialRequired
)

func (s Safety) String() string {
	switch s {
	case DataParallel:
		return "DataParallel"
	case SequentialRequired:
		return "SequentialRequired"
	default:
		return "Safety(" + strconv.Itoa(int(s)) + ")"
	}
}

// Executor runs a per-node body over every node of a box
type Executor interface {
	ForEach(b amr.Box, safety Safety, fn func(i, j, k int))
}

// Serial visits nodes in lexicographic order on the calling goroutine
type Serial struct{}

// ForEach implements Executor
func (Serial) ForEach(b amr.Box, _ Safety, fn func(i, j, k int)) {
	b.ForEach(fn)
}

// Pool spreads DataParallel work over goroutines by contiguous (j, k) rows
type Pool struct {
	Workers int
}

// EnvWorkers names the environment variable that overrides the worker count
const EnvWorkers = "MLNODE_NUM_GOROUTINE"

// NewPool creates a pool with the given worker count, runtime.NumCPU() if workers < 1
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Pool{Workers: workers}
}

// NewPoolFromEnv creates a pool sized by MLNODE_NUM_GOROUTINE, runtime.NumCPU() if unset
func NewPoolFromEnv() *Pool {
	workers := runtime.NumCPU()
	if nw := os.Getenv(EnvWorkers); nw != "" {
		if n, err := strconv.Atoi(nw); err == nil && n > 0 {
			workers = n
		}
	}
	return NewPool(workers)
}

// ForEach implements Executor. SequentialRequired bodies run serially.
func (p *Pool) ForEach(b amr.Box, safety Safety, fn func(i, j, k int)) {
	if !b.Ok() {
		return
	}
	if safety == SequentialRequired || p.Workers <= 1 {
		b.ForEach(fn)
		return
	}

	l := b.Length()
	rows := l[1] * l[2]
	p.parallelFor(0, rows, func(start, end int) {
		for r := start; r < end; r++ {
			j := b.Lo[1] + r%l[1]
			k := b.Lo[2] + r/l[1]
			for i := b.Lo[0]; i <= b.Hi[0]; i++ {
				fn(i, j, k)
			}
		}
	})
}

// parallelFor splits [start, end) into one contiguous chunk per worker
func (p *Pool) parallelFor(start, end int, task func(s, e int)) {
	total := end - start
	if total <= 0 {
		return
	}
	if total < 2 {
		task(start, end)
		return
	}

	workers := min(p.Workers, total)
	chunkSize := (total + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		s := start + w*chunkSize
		if s >= end {
			break
		}
		e := min(s+chunkSize, end)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			task(s, e)
		}(s, e)
	}
	wg.Wait()
}
