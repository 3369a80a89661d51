// Package channel implements the typed channel allocator and its three
// transport flavors (thread, process, network), generalized from the
// teacher's bounded-channel dispatcher pattern in
// controller/api/destination/update_queue.go and endpoint_stream_dispatcher.go:
// a bounded buffer per destination and a single consumer draining it. A full
// buffer blocks the producer; buffers are never closed.
package channel

import (
	"fmt"

	"github.com/flowlattice/runtime/internal/eventqueue"
)

// EventKind, Event and ID are defined in package eventqueue (the lower
// layer both channel and eventqueue's callers depend on) and aliased here
// so callers of package channel never need to know that split exists.
type EventKind = eventqueue.EventKind

const (
	Pushed = eventqueue.Pushed
	Pulled = eventqueue.Pulled
)

// Event is a single (channel_id, kind, count) activity notification.
type Event = eventqueue.Event

// ID is a process-wide unique, monotonically allocated channel identifier.
type ID = eventqueue.ID

// Pusher is the send endpoint of a channel, bound to one destination peer.
type Pusher[T any] interface {
	// Push enqueues msg for delivery. It never blocks past the configured
	// backpressure limit of the underlying flavor (§4.1).
	Push(msg T)
}

// Puller is the unique receive endpoint of a channel.
type Puller[T any] interface {
	// Pull returns the next available message, or ok=false if none is
	// currently buffered. It never blocks.
	Pull() (msg T, ok bool)
}

// Codec flattens a typed payload to bytes and back, so the network flavor
// can treat every channel as an opaque byte run (§4.1 "zero-copy").
type Codec[T any] struct {
	Encode func(T) []byte
	Decode func([]byte) (T, error)
}

// ErrUnknownChannel is returned when an operation references a channel_id
// the allocator never registered.
type ErrUnknownChannel struct{ ChannelID ID }

func (e ErrUnknownChannel) Error() string {
	return fmt.Sprintf("channel: unknown channel_id %d", e.ChannelID)
}
