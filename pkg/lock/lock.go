// Package lock provides a striped per-key mutex table so that concurrent
// PUT/DELETE/rebalance calls against the same object key are serialized
// without forcing every key in the index through a single global lock.
package lock

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

// Table is a fixed-size array of mutexes; a key is mapped to a stripe by
// hashing it, so unrelated keys almost never contend.
type Table struct {
	stripes []sync.Mutex
}

// NewTable creates a striped lock table with n stripes. n <= 0 uses a
// reasonable default.
func NewTable(n int) *Table {
	if n <= 0 {
		n = defaultStripes
	}
	return &Table{stripes: make([]sync.Mutex, n)}
}

// Lock locks the stripe for key and returns the unlock function.
func (t *Table) Lock(key []byte) func() {
	m := &t.stripes[t.stripeFor(key)]
	m.Lock()
	return m.Unlock
}

func (t *Table) stripeFor(key []byte) uint32 {
	h := fnv.New32a()
	h.Write(key)
	return h.Sum32() % uint32(len(t.stripes))
}
