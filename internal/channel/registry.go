package channel

import (
	"fmt"
	"sync"

	"github.com/flowlattice/runtime/internal/metrics"
)

// record is the type-erased vtable SPEC_FULL §9 calls for: every allocated
// channel is kept here so rescale() can mint pushers for a newly admitted
// peer, and so an inbound network frame can be routed to the right channel,
// without the registry itself knowing the payload type T.
type record interface {
	ID() ID
	Describe() string
	// backfillForNewPeer mints and installs the pusher for peerIndex, unless
	// one was already minted (idempotent across repeated rescale polls).
	backfillForNewPeer(peerIndex int)
	// decodeAndEnqueue routes a received frame payload into this channel's
	// inbox. Returns an error if the channel has no network codec (e.g. a
	// pipeline self-loop should never receive network traffic).
	decodeAndEnqueue(payload []byte) error
}

// entry is the concrete, typed registry record for one allocated channel.
type entry[T any] struct {
	id          ID
	inbox       *Inbox[T]
	onNewPusher func(Pusher[T])
	mint        func(peerIndex int) Pusher[T]
	decode      func([]byte) (T, error)

	mu          sync.Mutex
	mintedPeers int
}

func (e *entry[T]) ID() ID { return e.id }

func (e *entry[T]) Describe() string { return fmt.Sprintf("channel[%d]", e.id) }

func (e *entry[T]) backfillForNewPeer(peerIndex int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if peerIndex < e.mintedPeers {
		return
	}
	for next := e.mintedPeers; next <= peerIndex; next++ {
		pusher := e.mint(next)
		e.onNewPusher(pusher)
	}
	e.mintedPeers = peerIndex + 1
}

func (e *entry[T]) decodeAndEnqueue(payload []byte) error {
	if e.decode == nil {
		return fmt.Errorf("channel %d: not network-routable", e.id)
	}
	v, err := e.decode(payload)
	if err != nil {
		return fmt.Errorf("channel %d: decode: %w", e.id, err)
	}
	e.inbox.push(v)
	return nil
}

// Registry is the per-worker map of every channel it has ever allocated,
// still live. Channels are removed when a dataflow tears down (§4.3 step 6).
type Registry struct {
	mu    sync.Mutex
	byID  map[ID]record
	label string
}

// NewRegistry returns an empty Registry. label identifies it on the
// flowmesh_channels gauge, typically the owning worker's index.
func NewRegistry(label string) *Registry {
	return &Registry{byID: make(map[ID]record), label: label}
}

func (r *Registry) put(id ID, rec record) {
	r.mu.Lock()
	r.byID[id] = rec
	n := len(r.byID)
	r.mu.Unlock()
	metrics.Channels.WithLabelValues(r.label).Set(float64(n))
}

// Remove drops a channel from the registry, e.g. on dataflow teardown.
func (r *Registry) Remove(id ID) {
	r.mu.Lock()
	delete(r.byID, id)
	n := len(r.byID)
	r.mu.Unlock()
	metrics.Channels.WithLabelValues(r.label).Set(float64(n))
}

// BackfillAll mints a pusher at peerIndex for every registered channel. It
// is the donor-side action of §4.5 step 2.
func (r *Registry) BackfillAll(peerIndex int) {
	r.mu.Lock()
	recs := make([]record, 0, len(r.byID))
	for _, rec := range r.byID {
		recs = append(recs, rec)
	}
	r.mu.Unlock()

	for _, rec := range recs {
		rec.backfillForNewPeer(peerIndex)
	}
}

// Route dispatches a decoded-on-the-wire payload to channel id's inbox.
func (r *Registry) Route(id ID, payload []byte) error {
	r.mu.Lock()
	rec, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownChannel{ChannelID: id}
	}
	return rec.decodeAndEnqueue(payload)
}
