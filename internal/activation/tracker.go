// Package activation tracks which regions of a worker's dataflow graph have
// pending work, addressed by path: a scope's address is the sequence of
// operator indices from the root dataflow down to that scope, and marking
// any prefix of an operator's path active is enough to make the scheduler
// visit it on the next pass.
package activation

import (
	"sync"

	"github.com/flowlattice/runtime/internal/metrics"
)

// Path is an operator's address: the sequence of child indices from the
// root dataflow down to it.
type Path []uint64

// Tracker is the per-worker activation set. It is safe for concurrent use:
// Activate is typically called from a channel's event callback (any
// goroutine), while ForExtensions/Advance run on the worker's own loop.
type Tracker struct {
	mu      sync.Mutex
	current map[string]struct{}
	next    map[string]struct{}
	label   string
}

// New returns an empty Tracker. label identifies it on the
// flowmesh_activation_set_size gauge, typically the owning worker's index.
func New(label string) *Tracker {
	return &Tracker{
		current: make(map[string]struct{}),
		next:    make(map[string]struct{}),
		label:   label,
	}
}

func key(p Path) string {
	// Fixed-width 8-byte components keep e.g. [1,23] distinct from [12,3].
	b := make([]byte, 0, len(p)*9+1)
	for _, v := range p {
		b = append(b, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v), '/')
	}
	return string(b)
}

// Activate marks path (and, implicitly, every ancestor scope that contains
// it) runnable on the next Advance.
func (t *Tracker) Activate(path Path) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next[key(path)] = struct{}{}
}

// ForExtensions calls sink for every active path that prefix is a prefix
// of, i.e. every activation inside the scope rooted at prefix, removing
// each from the current set as it is visited. It operates on the current
// (already-advanced) activation set.
func (t *Tracker) ForExtensions(prefix Path, sink func(Path)) {
	t.mu.Lock()
	pfx := key(prefix)
	var matched []string
	for k := range t.current {
		if len(k) >= len(pfx) && k[:len(pfx)] == pfx {
			matched = append(matched, k)
		}
	}
	for _, k := range matched {
		delete(t.current, k)
	}
	t.mu.Unlock()

	for _, k := range matched {
		sink(decodeKey(k))
	}
}

func decodeKey(k string) Path {
	var p Path
	b := []byte(k)
	for i := 0; i+9 <= len(b); i += 9 {
		var v uint64
		for j := 0; j < 8; j++ {
			v = v<<8 | uint64(b[i+j])
		}
		p = append(p, v)
	}
	return p
}

// Advance rotates the pending activation set into the current one,
// returning true if anything is runnable. It is called once per worker
// step, after events have been drained into Activate calls.
func (t *Tracker) Advance() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current, t.next = t.next, t.current
	for k := range t.next {
		delete(t.next, k)
	}
	metrics.ActivationSetSize.WithLabelValues(t.label).Set(float64(len(t.current)))
	return len(t.current) > 0
}

// Empty reports whether there is nothing active and nothing pending.
func (t *Tracker) Empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.current) == 0 && len(t.next) == 0
}
