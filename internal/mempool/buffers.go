// Package mempool keeps size-classed pools of numeric buffers so that hot
// paths (graph construction, max-flow scratch space) do not churn the heap
// between iterations and between jobs.
package mempool

import (
	"sync"
)

var (
	float64Pools sync.Map // key: size class (int), value: *sync.Pool
	int32Pools   sync.Map // key: size class (int), value: *sync.Pool
)

// sizeClass rounds n up to the next multiple of 1024, with 1024 as the minimum.
func sizeClass(n int) int {
	if n <= 1024 {
		return 1024
	}
	const step = 1024
	r := (n + step - 1) / step
	return r * step
}

func poolFor[T any](pools *sync.Map, cls int) *sync.Pool {
	pAny, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		return nil
	}
	return p
}

func get[T any](pools *sync.Map, n int) []T {
	cls := sizeClass(n)
	p := poolFor[T](pools, cls)
	if p == nil {
		return make([]T, cls)[:n]
	}
	buf, ok := p.Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	return buf[:n]
}

func put[T any](pools *sync.Map, buf []T) {
	if buf == nil {
		return
	}
	// Buffers smaller than the minimum class were not handed out by this package.
	if cap(buf) < 1024 {
		return
	}
	// Round down so a buffer is never filed under a class larger than its capacity.
	cls := cap(buf) / 1024 * 1024
	if p := poolFor[T](pools, cls); p != nil {
		p.Put(buf[:cap(buf)]) //nolint:staticcheck
	}
}

// GetFloat64 returns a []float64 of length n. Contents are unspecified;
// callers overwrite every element they read.
func GetFloat64(n int) []float64 {
	return get[float64](&float64Pools, n)
}

// PutFloat64 returns a buffer obtained from GetFloat64. Nil is ignored.
func PutFloat64(buf []float64) {
	put(&float64Pools, buf)
}

// GetInt32 returns a []int32 of length n. Contents are unspecified.
func GetInt32(n int) []int32 {
	return get[int32](&int32Pools, n)
}

// PutInt32 returns a buffer obtained from GetInt32. Nil is ignored.
func PutInt32(buf []int32) {
	put(&int32Pools, buf)
}

// GetInt32Filled returns a []int32 of length n with every element set to v.
func GetInt32Filled(n int, v int32) []int32 {
	buf := GetInt32(n)
	for i := range buf {
		buf[i] = v
	}
	return buf
}
