// Package progress implements the per-scope progress-tracking state
// transfer described for rescaling: every scope's broadcaster keeps an
// opaque snapshot blob plus an append-only per-sender log of already-opaque
// update bytes, and exposes a server facet (donor: snapshot + range serve)
// and a client facet (joiner: install + replay + stash-while-bootstrapping).
package progress

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
)

// Update is one broadcast progress message, already flattened to an opaque
// byte run — encoding the timestamp lattice itself is out of scope here.
type Update struct {
	Sender uint64
	Seq    uint64
	Bytes  []byte
}

// Broadcaster is the per-scope state shared by every worker.
type Broadcaster struct {
	mu            sync.Mutex
	snapshot      []byte
	logs          map[uint64][]Update // sender -> ordered updates
	stash         []Update
	bootstrapping bool
}

// New returns an empty Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{logs: make(map[uint64][]Update)}
}

// --- server facet (donor side) ---

// Snapshot returns the broadcaster's current opaque state blob.
func (b *Broadcaster) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.snapshot...)
}

// SetSnapshot replaces the current state blob, e.g. after the owning scope
// advances.
func (b *Broadcaster) SetSnapshot(blob []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = append([]byte(nil), blob...)
}

// Record appends u to sender's log, making it available to a future Range
// request from a joiner.
func (b *Broadcaster) Record(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs[u.Sender] = append(b.logs[u.Sender], u)
}

// WorkerIndices returns the set of sender indices this broadcaster has
// observed updates from.
func (b *Broadcaster) WorkerIndices() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint64, 0, len(b.logs))
	for s := range b.logs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Range returns the raw, replayable bytes for every update from sender
// with Seq in [lo, hi), in sequence order, ready to ship as a RANGE_RESP
// body.
func (b *Broadcaster) Range(sender, lo, hi uint64) []byte {
	b.mu.Lock()
	ups := b.logs[sender]
	b.mu.Unlock()

	var matched []Update
	for _, u := range ups {
		if u.Seq >= lo && u.Seq < hi {
			matched = append(matched, u)
		}
	}
	return EncodeUpdates(matched)
}

// LastSequence returns the highest sequence number recorded for sender, if
// any.
func (b *Broadcaster) LastSequence(sender uint64) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ups := b.logs[sender]
	if len(ups) == 0 {
		return 0, false
	}
	return ups[len(ups)-1].Seq, true
}

// --- client facet (joiner side) ---

// BeginBootstrap puts the broadcaster into stashing mode: live updates
// observed on the wire are held rather than applied until EndBootstrap.
func (b *Broadcaster) BeginBootstrap() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bootstrapping = true
}

// Stash records u without applying it, if bootstrap is currently in
// flight. Returns false (and does nothing) once bootstrap has ended.
func (b *Broadcaster) Stash(u Update) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.bootstrapping {
		return false
	}
	b.stash = append(b.stash, u)
	return true
}

// Install replaces the snapshot with a transferred state blob.
func (b *Broadcaster) Install(blob []byte) { b.SetSnapshot(blob) }

// Replay decodes a RANGE_RESP body and appends its updates to the local
// log, in the order the donor sent them (original sequence order).
func (b *Broadcaster) Replay(raw []byte) error {
	ups, err := DecodeUpdates(raw)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range ups {
		b.logs[u.Sender] = append(b.logs[u.Sender], u)
	}
	return nil
}

// EndBootstrap filters the stash against what replay already installed —
// dropping anything at or below the last replayed sequence number for its
// sender — applies the survivors via apply in original arrival order, and
// leaves stashing mode. Replay precedes stash application by construction:
// callers must finish installing snapshots and ranges before calling this.
func (b *Broadcaster) EndBootstrap(apply func(Update)) {
	b.mu.Lock()
	lastSeq := make(map[uint64]uint64, len(b.logs))
	for sender, ups := range b.logs {
		if len(ups) > 0 {
			lastSeq[sender] = ups[len(ups)-1].Seq
		}
	}
	stash := b.stash
	b.stash = nil
	b.bootstrapping = false
	b.mu.Unlock()

	for _, u := range stash {
		if last, ok := lastSeq[u.Sender]; ok && u.Seq <= last {
			continue
		}
		apply(u)
	}
}

// EncodeUpdates flattens a slice of updates into a single byte run: count,
// then (sender, seq, len, bytes) per update, all little-endian fixed-width
// integers — the same framing discipline as the data-plane wire package.
func EncodeUpdates(ups []Update) []byte {
	var buf bytes.Buffer
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(ups)))
	buf.Write(n[:])
	for _, u := range ups {
		binary.LittleEndian.PutUint64(n[:], u.Sender)
		buf.Write(n[:])
		binary.LittleEndian.PutUint64(n[:], u.Seq)
		buf.Write(n[:])
		binary.LittleEndian.PutUint64(n[:], uint64(len(u.Bytes)))
		buf.Write(n[:])
		buf.Write(u.Bytes)
	}
	return buf.Bytes()
}

// DecodeUpdates is the inverse of EncodeUpdates.
func DecodeUpdates(raw []byte) ([]Update, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("progress: update batch truncated")
	}
	count := binary.LittleEndian.Uint64(raw[0:8])
	raw = raw[8:]
	ups := make([]Update, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(raw) < 24 {
			return nil, fmt.Errorf("progress: update header truncated")
		}
		sender := binary.LittleEndian.Uint64(raw[0:8])
		seq := binary.LittleEndian.Uint64(raw[8:16])
		length := binary.LittleEndian.Uint64(raw[16:24])
		raw = raw[24:]
		if uint64(len(raw)) < length {
			return nil, fmt.Errorf("progress: update body truncated")
		}
		ups = append(ups, Update{Sender: sender, Seq: seq, Bytes: append([]byte(nil), raw[:length]...)})
		raw = raw[length:]
	}
	return ups, nil
}
