package service

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

// stripedMutex serializes work per key using a fixed set of mutexes picked
// by hashing the key. Distinct keys may share a stripe; that only costs
// parallelism, never correctness.
type stripedMutex struct {
	stripes []sync.Mutex
}

func newStripedMutex(n int) *stripedMutex {
	if n <= 0 {
		n = defaultStripes
	}
	return &stripedMutex{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock function.
func (m *stripedMutex) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &m.stripes[h.Sum32()%uint32(len(m.stripes))]
	mu.Lock()
	return mu.Unlock
}
