package execute

import (
	"sort"
	"sync"
)

// NamedLocks serializes DDL per qualified element name so a concurrent
// migration and rollback can never race on the same element. Locks are
// acquired in sorted name order to rule out lock-order inversion between
// overlapping batches.
type NamedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewNamedLocks creates an empty lock registry.
func NewNamedLocks() *NamedLocks {
	return &NamedLocks{locks: make(map[string]*sync.Mutex)}
}

func (n *NamedLocks) lockFor(name string) *sync.Mutex {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.locks[name]
	if !ok {
		l = &sync.Mutex{}
		n.locks[name] = l
	}
	return l
}

// Acquire locks every name and returns the release function. Duplicate
// names are collapsed.
func (n *NamedLocks) Acquire(names []string) func() {
	unique := make(map[string]struct{}, len(names))
	for _, name := range names {
		unique[name] = struct{}{}
	}
	ordered := make([]string, 0, len(unique))
	for name := range unique {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, name := range ordered {
		l := n.lockFor(name)
		l.Lock()
		held = append(held, l)
	}

	return func() {
		// Release in reverse acquisition order.
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
