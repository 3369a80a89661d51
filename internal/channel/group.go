package channel

import (
	"sync"

	"github.com/flowlattice/runtime/internal/eventqueue"
)

// localGroup is the shared rendezvous point for every worker sharing one
// address space (a Thread allocator of size 1, a Process allocator of size
// n, or the local siblings of a Network-flavor process). Because dataflow
// construction is symmetric across workers, the k-th allocate() call on
// every worker carries the same channel_id, so the first worker to reach a
// given id creates inbox slots for every local peer at once — no worker
// ever observes a sibling's slot half-built.
//
// Each local index keeps its own event queue: an inbox's push/pull must
// notify the queue owned by the worker that reads that inbox, not whichever
// sibling happened to allocate the channel first.
type localGroup struct {
	mu       sync.Mutex
	size     int
	events   []*eventqueue.Queue
	channels map[ID]map[int]any // channel_id -> local index -> *Inbox[T] (boxed)
}

func newLocalGroup(events []*eventqueue.Queue) *localGroup {
	return &localGroup{size: len(events), events: events, channels: make(map[ID]map[int]any)}
}

// ensureChannel returns the per-local-index inbox slots for id, creating
// them on first use.
func ensureChannel[T any](g *localGroup, id ID, capacity int) map[int]*Inbox[T] {
	g.mu.Lock()
	defer g.mu.Unlock()

	raw, ok := g.channels[id]
	if !ok {
		raw = make(map[int]any, g.size)
		for i := 0; i < g.size; i++ {
			raw[i] = NewInbox[T](id, capacity, g.events[i])
		}
		g.channels[id] = raw
	}

	typed := make(map[int]*Inbox[T], len(raw))
	for i, v := range raw {
		typed[i] = v.(*Inbox[T])
	}
	return typed
}
