package channel

import (
	"github.com/flowlattice/runtime/internal/eventqueue"
	"github.com/flowlattice/runtime/internal/metrics"
)

// ProcessAllocator wires N worker threads sharing one address space through
// bounded shared queues, with no network threads involved (SPEC §4.1
// "Process"). Each of the N allocators returned by NewProcessGroup shares
// the same *localGroup, so the k-th allocate() call across all N workers
// rendezvous on the same channel_id and wires straight into each other's
// inboxes.
type ProcessAllocator struct {
	*Base
}

// NewProcessGroup returns n allocators, one per worker thread, all sharing
// one address space. queueCapacity bounds each channel's per-worker inbox;
// a full inbox blocks the pushing worker, which is this flavor's only
// backpressure mechanism.
func NewProcessGroup(n int, queueCapacity int) []*ProcessAllocator {
	if n <= 0 {
		n = 1
	}
	peers := newPeerState(n)
	events := make([]*eventqueue.Queue, n)
	for i := range events {
		events[i] = eventqueue.New(metrics.WorkerLabel(i))
	}
	group := newLocalGroup(events)

	allocators := make([]*ProcessAllocator, n)
	for i := 0; i < n; i++ {
		allocators[i] = &ProcessAllocator{Base: &Base{
			globalIndex: i,
			localIndex:  i,
			peers:       peers,
			local:       group,
			registry:    NewRegistry(metrics.WorkerLabel(i)),
			events:      events[i],
			queueCap:    queueCapacity,
		}}
	}
	return allocators
}
