package fb

import (
	"sync"
	"sync/atomic"
)

// MemoryLimitExceededError is returned when an arena allocation would exceed
// the pool's memory limit.
type MemoryLimitExceededError struct {
	Requested int64
	Current   int64
	Limit     int64
}

func (e *MemoryLimitExceededError) Error() string {
	return "fb: arena memory limit exceeded"
}

// ArenaPool recycles pixel storage between buffers. Requests are rounded up
// to a size class; requests above the largest class are allocated directly
// and dropped on release.
//
// ArenaPool is safe for concurrent use.
type ArenaPool struct {
	pools       []*sync.Pool
	memoryUsed  int64 // atomic: bytes handed out and not yet returned
	memoryLimit int64 // atomic: 0 = unlimited
	allocCount  int64 // atomic
	hitCount    int64 // atomic
	missCount   int64 // atomic
}

// arenaSizes are the pooled size classes. An 8x8 Float4 tile is 1 KB, a
// 64x64 Float4 region 64 KB, a 2K Float4 frame about 32 MB.
var arenaSizes = []int{
	4 << 10,
	16 << 10,
	64 << 10,
	256 << 10,
	1 << 20,
	4 << 20,
	16 << 20,
	64 << 20,
}

var defaultArenaPool = NewArenaPool()

// NewArenaPool creates a pool with no memory limit.
func NewArenaPool() *ArenaPool {
	return NewArenaPoolWithLimit(0)
}

// NewArenaPoolWithLimit creates a pool that refuses allocations once limit
// bytes are outstanding. A limit of 0 disables the check.
func NewArenaPoolWithLimit(limit int64) *ArenaPool {
	p := &ArenaPool{
		pools:       make([]*sync.Pool, len(arenaSizes)),
		memoryLimit: limit,
	}
	for i, size := range arenaSizes {
		p.pools[i] = &sync.Pool{
			New: func() any {
				return make([]byte, size)
			},
		}
	}
	return p
}

// SetMemoryLimit sets the limit and returns the previous one.
func (p *ArenaPool) SetMemoryLimit(limit int64) int64 {
	return atomic.SwapInt64(&p.memoryLimit, limit)
}

// MemoryLimit returns the current limit (0 = unlimited).
func (p *ArenaPool) MemoryLimit() int64 {
	return atomic.LoadInt64(&p.memoryLimit)
}

// MemoryUsed returns the number of bytes currently handed out.
func (p *ArenaPool) MemoryUsed() int64 {
	return atomic.LoadInt64(&p.memoryUsed)
}

// Stats returns (allocations, pool hits, pool misses).
func (p *ArenaPool) Stats() (allocs, hits, misses int64) {
	return atomic.LoadInt64(&p.allocCount),
		atomic.LoadInt64(&p.hitCount),
		atomic.LoadInt64(&p.missCount)
}

// sizeClass returns the pool index for size, or -1 if it is too large.
func sizeClass(size int) int {
	for i, s := range arenaSizes {
		if size <= s {
			return i
		}
	}
	return -1
}

// reserve accounts for n bytes, failing if the limit would be exceeded.
func (p *ArenaPool) reserve(n int64) error {
	limit := atomic.LoadInt64(&p.memoryLimit)
	current := atomic.AddInt64(&p.memoryUsed, n)
	if limit > 0 && current > limit {
		atomic.AddInt64(&p.memoryUsed, -n)
		return &MemoryLimitExceededError{
			Requested: n,
			Current:   current - n,
			Limit:     limit,
		}
	}
	return nil
}

// get returns a zeroed slice of exactly size bytes.
func (p *ArenaPool) get(size int) ([]byte, error) {
	atomic.AddInt64(&p.allocCount, 1)

	idx := sizeClass(size)
	if idx < 0 {
		if err := p.reserve(int64(size)); err != nil {
			return nil, err
		}
		atomic.AddInt64(&p.missCount, 1)
		return make([]byte, size), nil
	}

	if err := p.reserve(int64(arenaSizes[idx])); err != nil {
		return nil, err
	}
	buf := p.pools[idx].Get().([]byte)
	if cap(buf) != arenaSizes[idx] {
		atomic.AddInt64(&p.missCount, 1)
		buf = make([]byte, arenaSizes[idx])
	} else {
		atomic.AddInt64(&p.hitCount, 1)
	}
	buf = buf[:size]
	clear(buf)
	return buf, nil
}

// put returns storage obtained from get.
func (p *ArenaPool) put(buf []byte) {
	if buf == nil {
		return
	}
	c := cap(buf)
	idx := sizeClass(c)
	if idx < 0 {
		atomic.AddInt64(&p.memoryUsed, -int64(c))
		return
	}
	atomic.AddInt64(&p.memoryUsed, -int64(arenaSizes[idx]))
	if c == arenaSizes[idx] {
		p.pools[idx].Put(buf[:c])
	}
}

// NewArena allocates a zeroed arena of size bytes with one reference held by
// the caller.
func (p *ArenaPool) NewArena(size int) (*Arena, error) {
	buf, err := p.get(size)
	if err != nil {
		return nil, err
	}
	a := &Arena{data: buf, pool: p}
	a.refs.Store(1)
	return a, nil
}

// SetMemoryLimit sets the limit of the default arena pool used by Buffer.Init.
func SetMemoryLimit(limit int64) int64 {
	return defaultArenaPool.SetMemoryLimit(limit)
}

// MemoryLimit returns the default pool's limit.
func MemoryLimit() int64 {
	return defaultArenaPool.MemoryLimit()
}

// MemoryUsed returns the default pool's outstanding bytes.
func MemoryUsed() int64 {
	return defaultArenaPool.MemoryUsed()
}

// PoolStats returns the default pool's statistics.
func PoolStats() (allocs, hits, misses int64) {
	return defaultArenaPool.Stats()
}

// Arena is reference-counted pixel storage. A Buffer owns one reference to
// its arena; Buffer.Shared hands out more. The bytes stay valid until the
// last holder calls Release.
type Arena struct {
	data []byte
	refs atomic.Int32
	pool *ArenaPool
}

// Bytes returns the arena's storage. It must not be used after Release.
func (a *Arena) Bytes() []byte {
	return a.data
}

// Len returns the arena size in bytes.
func (a *Arena) Len() int {
	return len(a.data)
}

// Refs returns the current number of holders.
func (a *Arena) Refs() int {
	return int(a.refs.Load())
}

// Retain adds a holder and returns a.
func (a *Arena) Retain() *Arena {
	if a.refs.Add(1) <= 1 {
		panic("fb: retain of released arena")
	}
	return a
}

// Release drops one holder. The last release returns the storage to its pool.
func (a *Arena) Release() {
	switch n := a.refs.Add(-1); {
	case n == 0:
		data := a.data
		a.data = nil
		a.pool.put(data)
	case n < 0:
		panic("fb: arena released more times than retained")
	}
}
