// Package pathmap maps an allocated channel_id back to the operator path
// whose activation it should raise, so an inbound Pushed/Pulled event can
// be turned into an activation.Activate call without the channel package
// knowing anything about dataflow structure.
package pathmap

import (
	"sync"

	"github.com/flowlattice/runtime/internal/activation"
)

// Map is a worker-local, concurrency-safe channel_id -> Path table.
type Map struct {
	mu    sync.RWMutex
	paths map[uint64]activation.Path
}

// New returns an empty Map.
func New() *Map {
	return &Map{paths: make(map[uint64]activation.Path)}
}

// Bind records that channelID's activations belong to path. Called once,
// when a dataflow allocates the channel.
func (m *Map) Bind(channelID uint64, path activation.Path) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(activation.Path, len(path))
	copy(cp, path)
	m.paths[channelID] = cp
}

// Unbind removes channelID, e.g. on dataflow teardown.
func (m *Map) Unbind(channelID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.paths, channelID)
}

// Lookup returns the path bound to channelID, if any.
func (m *Map) Lookup(channelID uint64) (activation.Path, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.paths[channelID]
	return p, ok
}
