package channel

import "github.com/flowlattice/runtime/internal/eventqueue"

// Inbox is the shared-queue primitive backing a puller, regardless of
// flavor: a bounded Go channel gives us blocking-on-full backpressure and a
// non-blocking drain for free, generalizing the teacher's
// destinationUpdateQueue (controller/api/destination/update_queue.go) from
// "one queue feeding a gRPC stream" to "one queue feeding a typed puller".
type Inbox[T any] struct {
	id     ID
	ch     chan T
	events *eventqueue.Queue
}

// NewInbox allocates an Inbox with the given capacity. capacity<=0 is
// replaced by a default of 1024, since a true zero-capacity channel would
// make every push synchronous with a pull.
func NewInbox[T any](id ID, capacity int, events *eventqueue.Queue) *Inbox[T] {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Inbox[T]{id: id, ch: make(chan T, capacity), events: events}
}

// push enqueues msg, blocking if the inbox is full (§5 "Suspension points").
func (b *Inbox[T]) push(msg T) {
	b.ch <- msg
	if b.events != nil {
		b.events.Push(b.id, Event{ChannelID: b.id, Kind: Pushed, Count: 1})
	}
}

// Pull implements Puller[T]: a non-blocking drain of one message.
func (b *Inbox[T]) Pull() (msg T, ok bool) {
	select {
	case msg, ok = <-b.ch:
		if ok && b.events != nil {
			b.events.Push(b.id, Event{ChannelID: b.id, Kind: Pulled, Count: 1})
		}
		return msg, ok
	default:
		var zero T
		return zero, false
	}
}

// localPusher delivers directly into a sibling inbox sharing this process's
// address space — no encode/decode, the "zero-copy" of the in-process
// flavors.
type localPusher[T any] struct {
	inbox *Inbox[T]
}

func (p *localPusher[T]) Push(msg T) { p.inbox.push(msg) }
