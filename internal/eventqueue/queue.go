// Package eventqueue implements the shared single-consumer notification
// queue of (channel_id, Event) pairs described in SPEC §4.2: a hint, not a
// ledger. Losing an event is tolerable as long as the operator is activated
// by some other path; the queue itself must never grow without bound, since
// the worker loop is the only consumer and drains it every step.
package eventqueue

import (
	"sync"

	"github.com/flowlattice/runtime/internal/metrics"
)

// ID is a process-wide unique, monotonically allocated channel identifier.
// Defined here rather than in package channel so that channel can depend on
// eventqueue without a cycle; channel.ID is an alias of this type.
type ID = uint64

// EventKind distinguishes the two activity notifications a channel can
// raise.
type EventKind int

const (
	// Pushed indicates n messages were made available to a puller.
	Pushed EventKind = iota
	// Pulled indicates n messages were drained by a puller.
	Pulled
)

func (k EventKind) String() string {
	if k == Pushed {
		return "Pushed"
	}
	return "Pulled"
}

// Event is a single (channel_id, kind, count) activity notification.
type Event struct {
	ChannelID ID
	Kind      EventKind
	Count     int
}

// entry pairs a channel_id with the event it raised.
type entry struct {
	ChannelID ID
	Event     Event
}

// Queue is a shared handle to the worker's event notification queue.
// Multiple transport-side producers (network threads, in-process pushers)
// append to it; exactly one consumer (the worker step loop) drains it.
type Queue struct {
	mu      sync.Mutex
	entries []entry
	wake    chan struct{}
	label   string
}

// New returns an empty event queue. label identifies it on the
// flowmesh_event_queue_depth gauge, typically the owning worker's index.
func New(label string) *Queue {
	return &Queue{wake: make(chan struct{}, 1), label: label}
}

// Push records a channel activity notification and wakes any goroutine
// parked in WaitChan.
func (q *Queue) Push(id ID, ev Event) {
	q.mu.Lock()
	q.entries = append(q.entries, entry{ChannelID: id, Event: ev})
	depth := len(q.entries)
	q.mu.Unlock()

	metrics.EventQueueDepth.WithLabelValues(q.label).Set(float64(depth))
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Drain removes every queued entry and invokes fn(channel_id, event) for
// each, in arrival order. Called once per worker step.
func (q *Queue) Drain(fn func(id ID, ev Event)) {
	q.mu.Lock()
	pending := q.entries
	q.entries = nil
	q.mu.Unlock()

	metrics.EventQueueDepth.WithLabelValues(q.label).Set(0)
	for _, e := range pending {
		fn(e.ChannelID, e.Event)
	}
}

// Len reports the number of currently buffered entries, for metrics and
// tests; draining should keep this near zero in steady state.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// WaitChan returns a channel that receives a value whenever a new entry is
// pushed. It is used by await_events to park without busy-waiting; the
// caller must still re-check Len() after waking, since the channel is only
// a hint (buffered 1, coalesces bursts).
func (q *Queue) WaitChan() <-chan struct{} {
	return q.wake
}
