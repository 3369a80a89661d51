package channel

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/flowlattice/runtime/internal/errs"
	"github.com/flowlattice/runtime/internal/eventqueue"
	"github.com/flowlattice/runtime/internal/metrics"
	"github.com/flowlattice/runtime/internal/wire"
	logging "github.com/sirupsen/logrus"
)

// handshakeMagic tags the first 8 bytes of every inter-worker connection so
// the accept loop can validate it before trusting the destination field
// that follows.
const handshakeMagic = 0x666c6f776d657368 // "flowmesh" in hex-ish ASCII packing

// mergeQueue is the bounded buffer a process drains with one send thread
// per remote destination worker, generalizing the teacher's
// endpointStreamDispatcher (controller/api/destination/endpoint_stream_dispatcher.go)
// from "queue feeding one gRPC Send loop" to "queue feeding one framed
// socket write loop".
type mergeQueue struct {
	ch    chan *outFrame
	label string
}

type outFrame struct {
	header  wire.Header
	payload []byte
}

func newMergeQueue(capacity int, label string) *mergeQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &mergeQueue{ch: make(chan *outFrame, capacity), label: label}
}

func (m *mergeQueue) enqueue(f *outFrame) {
	m.ch <- f
	metrics.MergeQueueDepth.WithLabelValues(m.label).Set(float64(len(m.ch)))
}

// remotePusher encodes a typed message and enqueues the resulting frame
// onto the shared per-destination merge queue. Sequence numbers are
// per-(channel,sender) and strictly increasing, matching SPEC §3's FIFO
// invariant.
type remotePusher[T any] struct {
	id     ID
	source uint64
	seq    uint64
	mq     *mergeQueue
	encode func(T) []byte
}

func newRemotePusher[T any](id ID, source uint64, mq *mergeQueue, encode func(T) []byte) *remotePusher[T] {
	return &remotePusher[T]{id: id, source: source, mq: mq, encode: encode}
}

func (p *remotePusher[T]) Push(msg T) {
	seq := atomic.AddUint64(&p.seq, 1) - 1
	p.mq.enqueue(&outFrame{
		header:  wire.Header{ChannelID: p.id, SourceWorker: p.source, SequenceNo: seq},
		payload: p.encode(msg),
	})
}

// outboundLink owns one socket to one remote worker, shared by every local
// worker whose pushers target that remote worker (frames are multiplexed by
// channel_id and demultiplexed on arrival by source_worker).
type outboundLink struct {
	mq     *mergeQueue
	conn   net.Conn
	cancel func()
}

// processFabric is the per-process shared state backing the network
// flavor's remoteFabric implementation: address book, outbound links, and
// the inbound accept loop that demultiplexes connections to local workers'
// registries.
type processFabric struct {
	selfProcess int
	mergeCap    int
	log         *logging.Entry

	mu             sync.Mutex
	processThreads []int // thread count of every known process, index = process index
	addrs          []string
	outbound       map[int]*outboundLink // remote global worker index -> link
	workers        map[int]*NetworkAllocator

	listener net.Listener
}

func newProcessFabric(selfProcess int, processThreads []int, addrs []string, mergeCap int, log *logging.Entry) *processFabric {
	return &processFabric{
		selfProcess:    selfProcess,
		mergeCap:       mergeCap,
		log:            log,
		processThreads: append([]int(nil), processThreads...),
		addrs:          append([]string(nil), addrs...),
		outbound:       make(map[int]*outboundLink),
		workers:        make(map[int]*NetworkAllocator),
	}
}

func (f *processFabric) globalBase(process int) int {
	base := 0
	for i := 0; i < process; i++ {
		base += f.processThreads[i]
	}
	return base
}

func (f *processFabric) processOf(globalIndex int) (process, local int, ok bool) {
	return processOfSnapshot(f.processThreads, globalIndex)
}

func (f *processFabric) localIndexOf(peerIndex int) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, local, ok := f.processOf(peerIndex)
	if !ok || p != f.selfProcess {
		return 0, false
	}
	return local, true
}

func (f *processFabric) mergeQueueFor(peerIndex int) *mergeQueue {
	f.mu.Lock()
	if link, ok := f.outbound[peerIndex]; ok {
		f.mu.Unlock()
		return link.mq
	}
	p, _, ok := f.processOf(peerIndex)
	if !ok {
		// Peer not yet known to this process's address book; callers only
		// reach here once rescale() has admitted the peer, at which point
		// admitPeer has already extended addrs/processThreads.
		f.mu.Unlock()
		return newMergeQueue(f.mergeCap, metrics.WorkerLabel(peerIndex))
	}
	addr := f.addrs[p]
	f.mu.Unlock()

	mq := newMergeQueue(f.mergeCap, metrics.WorkerLabel(peerIndex))
	link := &outboundLink{mq: mq}
	f.mu.Lock()
	f.outbound[peerIndex] = link
	f.mu.Unlock()

	go f.dialAndSend(peerIndex, addr, link)
	return mq
}

func (f *processFabric) dialAndSend(peerIndex int, addr string, link *outboundLink) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		f.log.WithError(err).Errorf("dialing peer %d at %s", peerIndex, addr)
		return
	}
	var hdr [16]byte
	binary.LittleEndian.PutUint64(hdr[0:8], handshakeMagic)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(peerIndex))
	if _, err := conn.Write(hdr[:]); err != nil {
		f.log.WithError(err).Errorf("handshake to peer %d", peerIndex)
		conn.Close()
		return
	}
	link.conn = conn

	for frame := range link.mq.ch {
		if err := wire.WriteFrame(conn, frame.header, frame.payload); err != nil {
			f.log.WithError(err).Errorf("writing frame to peer %d", peerIndex)
			conn.Close()
			return
		}
	}
}

// listen starts the accept loop. It must be called once per process.
func (f *processFabric) listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	f.listener = lis
	go f.acceptLoop()
	return nil
}

func (f *processFabric) acceptLoop() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}
		go f.handleConn(conn)
	}
}

func (f *processFabric) handleConn(conn net.Conn) {
	var hdr [16]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		conn.Close()
		return
	}
	magic := binary.LittleEndian.Uint64(hdr[0:8])
	dst := int(binary.LittleEndian.Uint64(hdr[8:16]))
	if magic != handshakeMagic {
		conn.Close()
		return
	}

	f.mu.Lock()
	local, ok := dst, false
	if p, li, known := f.processOf(dst); known && p == f.selfProcess {
		local, ok = li, true
	}
	worker := f.workers[local]
	f.mu.Unlock()

	if !ok || worker == nil {
		conn.Close()
		return
	}
	worker.receiveFrom(conn)
}

// admitPeer extends this process's address book with a newly joined
// process. index must equal the current total worker count (the first
// global index of the new process); every local worker's next Rescale call
// picks up the extension by comparing its own peers() against the new
// total. Safe to call more than once for the same index.
func (f *processFabric) admitPeer(index int, addr string, threadsInProcess int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index != totalWorkers(f.processThreads) {
		return // already admitted, or called out of order
	}
	f.addrs = append(f.addrs, addr)
	f.processThreads = append(f.processThreads, threadsInProcess)
}

func (f *processFabric) registerWorker(localIndex int, w *NetworkAllocator) {
	f.mu.Lock()
	f.workers[localIndex] = w
	f.mu.Unlock()
}

// NetworkAllocator is the zero-copy, TCP-backed flavor (SPEC §4.1
// "Network"). Outbound traffic fans into per-destination merge queues
// drained by a shared send goroutine (see processFabric.dialAndSend);
// inbound traffic arrives on one receive goroutine per accepted connection
// (one connection per remote process targeting this worker), spawned by the
// process's accept loop, each routed by channel_id into this worker's own
// Registry.
type NetworkAllocator struct {
	*Base
	fabric  *processFabric
	log     *logging.Entry
	recvWG  sync.WaitGroup
	connErr atomic.Value // stores error
}

// NewNetworkCluster builds the network allocators for every local worker in
// one process of a Cluster configuration. addrs lists every process's
// address in index order; processThreads lists every process's thread
// count in the same order (heterogeneous thread counts across processes,
// e.g. a joiner with a different -w, are supported).
func NewNetworkCluster(selfProcess int, processThreads []int, addrs []string, queueCapacity, mergeCapacity int, log *logging.Entry) ([]*NetworkAllocator, error) {
	if selfProcess < 0 || selfProcess >= len(addrs) {
		return nil, errs.NewConfigError("process index %d out of range for %d addresses", selfProcess, len(addrs))
	}
	threads := processThreads[selfProcess]
	fabric := newProcessFabric(selfProcess, processThreads, addrs, mergeCapacity, log)
	base := fabric.globalBase(selfProcess)

	events := make([]*eventqueue.Queue, threads)
	for i := range events {
		events[i] = eventqueue.New(metrics.WorkerLabel(base + i))
	}
	group := newLocalGroup(events)

	allocators := make([]*NetworkAllocator, threads)
	for i := 0; i < threads; i++ {
		a := &NetworkAllocator{
			Base: &Base{
				globalIndex: base + i,
				localIndex:  i,
				peers:       newPeerState(totalWorkers(processThreads)),
				local:       group,
				registry:    NewRegistry(metrics.WorkerLabel(base + i)),
				events:      events[i],
				queueCap:    queueCapacity,
				remote:      fabric,
			},
			fabric: fabric,
			log:    log.WithField("worker", base+i),
		}
		allocators[i] = a
		fabric.registerWorker(i, a)
	}

	if err := fabric.listen(addrs[selfProcess]); err != nil {
		return nil, errs.NewConfigError("listening on %s: %v", addrs[selfProcess], err)
	}
	return allocators, nil
}

func totalWorkers(processThreads []int) int {
	n := 0
	for _, t := range processThreads {
		n += t
	}
	return n
}

// receiveFrom runs the receive thread for one inbound connection, reading
// frames until EOF or a framing error, which terminates this worker per
// SPEC §4.6 ("network errors during a live computation terminate the
// affected worker").
func (a *NetworkAllocator) receiveFrom(conn net.Conn) {
	a.recvWG.Add(1)
	defer a.recvWG.Done()
	defer conn.Close()

	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			if err != io.EOF {
				a.connErr.Store(errs.NewTransportError(a.globalIndex, "frame read failed", err))
			}
			return
		}
		if routeErr := a.registry.Route(frame.Header.ChannelID, frame.Payload()); routeErr != nil {
			a.log.WithError(routeErr).Debug("dropping unroutable frame")
		}
		frame.Release()
	}
}

// Err returns the first transport error observed by any of this worker's
// receive threads, if any.
func (a *NetworkAllocator) Err() error {
	if v := a.connErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Rescale implements SPEC §4.5's admission step: it compares this worker's
// own peer count against the fabric's current address book (extended by
// AdmitPeer) and, for every new worker
// index this reveals, grows peers() by one, back-fills every registered
// channel for that index, and invokes onNewPeer — in order, one worker at a
// time, so a multi-thread joiner process is admitted as threads-many
// single-index steps rather than one batched jump.
func (a *NetworkAllocator) Rescale(onNewPeer func(myIndex int, peerAddr string)) {
	a.fabric.mu.Lock()
	threads := append([]int(nil), a.fabric.processThreads...)
	addrs := append([]string(nil), a.fabric.addrs...)
	a.fabric.mu.Unlock()
	total := totalWorkers(threads)

	for idx := a.peers.get(); idx < total; idx = a.peers.get() {
		process, _, ok := processOfSnapshot(threads, idx)
		if !ok {
			break
		}
		a.peers.grow()
		a.registry.BackfillAll(idx)
		if onNewPeer != nil {
			onNewPeer(a.globalIndex, addrs[process])
		}
	}
}

func processOfSnapshot(processThreads []int, globalIndex int) (process, local int, ok bool) {
	base := 0
	for p, n := range processThreads {
		if globalIndex < base+n {
			return p, globalIndex - base, true
		}
		base += n
	}
	return 0, 0, false
}

// AdmitPeer records a newly joined process's address book entry so that
// this worker's next Rescale call picks it up. The runtime itself never
// calls it: the rescale package's donor side (ServeBootstrap) does not
// extend the address book, and no accept path detects a joining process.
func (a *NetworkAllocator) AdmitPeer(firstGlobalIndex int, addr string, threads int) {
	a.fabric.admitPeer(firstGlobalIndex, addr, threads)
}
