package fb

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// ParallelConfig configures the fan-out used by Untile, TileFrom and parallel
// quantization.
type ParallelConfig struct {
	// NumWorkers is the number of worker goroutines. 0 means runtime.GOMAXPROCS(0).
	NumWorkers int

	// GrainSize is the number of consecutive items (tiles or rows) a worker
	// claims at a time. Loops of at most GrainSize*NumWorkers items run on
	// the calling goroutine.
	GrainSize int
}

// DefaultParallelConfig returns the default parallel configuration: one
// worker per CPU, claiming four tiles or rows at a time.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{GrainSize: 4}
}

var parallelConfig atomic.Pointer[ParallelConfig]

func init() {
	c := DefaultParallelConfig()
	parallelConfig.Store(&c)
}

// SetParallelConfig sets the package-wide parallel configuration. A
// non-positive GrainSize is treated as 1.
func SetParallelConfig(config ParallelConfig) {
	parallelConfig.Store(&config)
}

// GetParallelConfig returns the package-wide parallel configuration.
func GetParallelConfig() ParallelConfig {
	return *parallelConfig.Load()
}

// schedule is a resolved fan-out plan for n items.
type schedule struct {
	workers int
	grain   int
}

func plan(n int) schedule {
	config := GetParallelConfig()
	grain := max(config.GrainSize, 1)
	workers := config.NumWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers <= 1 || n <= grain*workers {
		return schedule{workers: 1, grain: n}
	}
	return schedule{workers: workers, grain: grain}
}

// workerCount returns how many goroutines ParallelFor would use for n items.
// 1 means the loop runs on the caller.
func workerCount(n int) int {
	return plan(n).workers
}

// run hands out [start, end) ranges of grain items to the workers until
// the items are exhausted or a range reports failure. Clipped edge tiles
// and short rows finish early; their workers take the next range instead of
// idling behind a fixed split.
func (s schedule) run(n int, fn func(start, end int) bool) {
	if s.workers == 1 {
		fn(0, n)
		return
	}

	var next atomic.Int64
	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(s.workers)
	for w := 0; w < s.workers; w++ {
		go func() {
			defer wg.Done()
			for !stop.Load() {
				start := int(next.Add(int64(s.grain))) - s.grain
				if start >= n {
					return
				}
				if !fn(start, min(start+s.grain, n)) {
					stop.Store(true)
					return
				}
			}
		}()
	}
	wg.Wait()
}

// ParallelFor runs fn(i) for i in [0, n) and returns once every call is
// done. Each index is visited exactly once; small loops run on the caller.
func ParallelFor(n int, fn func(i int)) {
	plan(n).run(n, func(start, end int) bool {
		for i := start; i < end; i++ {
			fn(i)
		}
		return true
	})
}

// ParallelForWithError is ParallelFor for fallible work. After the first
// failure no new ranges are started; the first error observed is returned
// once all running workers finish.
func ParallelForWithError(n int, fn func(i int) error) error {
	var errOnce sync.Once
	var firstErr error
	plan(n).run(n, func(start, end int) bool {
		for i := start; i < end; i++ {
			if err := fn(i); err != nil {
				errOnce.Do(func() { firstErr = err })
				return false
			}
		}
		return true
	})
	return firstErr
}

// ForEachTile calls fn for every tile of t, concurrently when parallel is
// set. The rectangles of t are disjoint, so fn may write its tile's pixels
// without locking.
func ForEachTile(t Tiler, parallel bool, fn func(tile Tile)) {
	n := t.TileCount()
	visit := func(i int) { fn(t.Tile(i)) }
	if !parallel {
		for i := 0; i < n; i++ {
			visit(i)
		}
		return
	}
	Logger().Debug("fb: parallel tile fan-out", "tiles", n, "workers", workerCount(n))
	ParallelFor(n, visit)
}
