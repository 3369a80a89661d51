package channel

import (
	"sync"
	"time"

	"github.com/flowlattice/runtime/internal/eventqueue"
)

// Allocator is the contract every flavor (thread, process, network) honors.
// The generic operations allocate[T]/pipeline[T] cannot live on this
// interface — Go forbids generic methods — so they are free functions
// (Allocate, Pipeline) taking the concrete allocator's embedded *Base.
type Allocator interface {
	Index() int
	Peers() int
	Events() *eventqueue.Queue
	Receive()
	Release()
	AwaitEvents(timeout time.Duration)
	Rescale(onNewPeer func(myIndex int, peerAddr string))
	Registry() *Registry
}

// remoteFabric is implemented only by the network flavor; Thread and
// Process never have remote peers, so Base.remote is nil for them and
// Allocate's mint closure always targets the local group.
type remoteFabric interface {
	localIndexOf(peerIndex int) (localIndex int, ok bool)
	mergeQueueFor(peerIndex int) *mergeQueue
}

// Base holds everything common to all three flavors: this worker's
// coordinates, the shared in-process rendezvous group, its own channel
// registry, and the shared event queue. Embedding *Base gives each flavor
// the non-generic Allocator methods for free; Network overrides only
// Rescale. Receive and Release are no-ops in every flavor, Network
// included: its receive goroutines push decoded frames straight into the
// destination inboxes rather than buffering them for Receive to drain.
type Base struct {
	globalIndex int
	localIndex  int
	peers       *peerState
	local       *localGroup
	registry    *Registry
	events      *eventqueue.Queue
	queueCap    int
	remote      remoteFabric
}

func (b *Base) Index() int                { return b.globalIndex }
func (b *Base) Peers() int                { return b.peers.get() }
func (b *Base) Events() *eventqueue.Queue { return b.events }
func (b *Base) Receive()                  {}
func (b *Base) Release()                  {}
func (b *Base) Rescale(func(int, string)) {}
func (b *Base) Registry() *Registry       { return b.registry }

// AwaitEvents parks until an event arrives or timeout elapses. A negative
// timeout parks indefinitely (step_or_park(None)); callers must not invoke
// this with timeout==0, since the worker loop treats that as "don't park".
func (b *Base) AwaitEvents(timeout time.Duration) {
	if timeout < 0 {
		<-b.events.WaitChan()
		return
	}
	select {
	case <-b.events.WaitChan():
	case <-time.After(timeout):
	}
}

// peerState is the shared, growable peer count backing Peers(). Process and
// Thread allocators hold a fixed count; Network's rescale() grows it.
type peerState struct {
	mu    sync.Mutex
	count int
}

func newPeerState(n int) *peerState { return &peerState{count: n} }

func (p *peerState) get() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// grow increases the peer count by one and returns the index assigned to
// the new peer (the old count).
func (p *peerState) grow() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.count
	p.count++
	return idx
}

// Allocate constructs a puller and registers the channel so that future
// rescale() calls can back-fill pushers for newly admitted peers. It mints
// a pusher for every currently known peer immediately, in index order,
// invoking onNewPusher once per peer exactly as SPEC §4.1 requires.
func Allocate[T any](b *Base, id ID, codec Codec[T], onNewPusher func(Pusher[T])) Puller[T] {
	localInboxes := ensureChannel[T](b.local, id, b.queueCap)
	myInbox := localInboxes[b.localIndex]

	mint := func(peerIndex int) Pusher[T] {
		if b.remote != nil {
			if li, ok := b.remote.localIndexOf(peerIndex); ok {
				return &localPusher[T]{inbox: localInboxes[li]}
			}
			mq := b.remote.mergeQueueFor(peerIndex)
			return newRemotePusher(id, uint64(b.globalIndex), mq, codec.Encode)
		}
		return &localPusher[T]{inbox: localInboxes[peerIndex]}
	}

	rec := &entry[T]{
		id:          id,
		inbox:       myInbox,
		onNewPusher: onNewPusher,
		mint:        mint,
		decode:      codec.Decode,
	}
	b.registry.put(id, rec)

	for p := 0; p < b.peers.get(); p++ {
		rec.backfillForNewPeer(p)
	}
	return myInbox
}

// Pipeline constructs a self-loop channel from the worker to itself,
// bypassing peer rendezvous entirely (SPEC §4.1 pipeline<T>).
func Pipeline[T any](b *Base, id ID) (Pusher[T], Puller[T]) {
	inbox := NewInbox[T](id, b.queueCap, b.events)
	rec := &entry[T]{
		id:          id,
		inbox:       inbox,
		onNewPusher: func(Pusher[T]) {},
		mint:        func(int) Pusher[T] { return &localPusher[T]{inbox: inbox} },
	}
	b.registry.put(id, rec)
	return &localPusher[T]{inbox: inbox}, inbox
}
