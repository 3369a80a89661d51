package channel

import (
	"github.com/flowlattice/runtime/internal/eventqueue"
	"github.com/flowlattice/runtime/internal/metrics"
)

// ThreadAllocator is the single-worker, no-peers-beyond-self flavor. It is
// implemented as a Process group of size one: the same rendezvous machinery
// that wires N siblings together wires a lone worker to itself, so pushing
// to "peer 0" is pushing to its own inbox. Events are still recorded on the
// push/pull boundary, satisfying SPEC §4.1's synchronous-events requirement
// for this flavor without a special case.
type ThreadAllocator struct {
	*Base
}

// NewThreadAllocator returns a ready-to-use single-worker allocator.
func NewThreadAllocator(queueCapacity int) *ThreadAllocator {
	events := eventqueue.New(metrics.WorkerLabel(0))
	return &ThreadAllocator{Base: &Base{
		globalIndex: 0,
		localIndex:  0,
		peers:       newPeerState(1),
		local:       newLocalGroup([]*eventqueue.Queue{events}),
		registry:    NewRegistry(metrics.WorkerLabel(0)),
		events:      events,
		queueCap:    queueCapacity,
	}}
}
