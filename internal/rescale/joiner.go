package rescale

import (
	"net"
	"time"

	"github.com/flowlattice/runtime/internal/errs"
	"github.com/flowlattice/runtime/internal/metrics"
	"github.com/flowlattice/runtime/internal/progress"
)

// defaultCoverageDeadline bounds how long Bootstrap waits for a sender's
// first live update before giving up on it with a BootstrapError, so a
// quiescent sender cannot hang bootstrap forever. Nothing on the donor side
// stamps a sender's last sequence when a peer is admitted; the lower bound
// comes only from LiveLowerBound.
const defaultCoverageDeadline = 30 * time.Second

// coveragePollInterval is how often LiveLowerBound is re-polled while
// waiting out CoverageDeadline.
const coveragePollInterval = 10 * time.Millisecond

// SnapshotSeqs extracts, from a scope's already-installed opaque state
// blob, the last sequence number known per sender. The core never parses
// the blob itself (SPEC §4.4); the scope/lattice implementation supplies
// this.
type SnapshotSeqs func(scopeID uint64, blob []byte) map[uint64]uint64

// LiveLowerBound coordinates with the allocator's own receive loop
// (SPEC §4.5 step 2: "receive() is called repeatedly... until at least one
// update per sender is observed") to learn the first sequence number a live
// channel has produced for sender on scopeID. ok is false if none has been
// observed yet.
type LiveLowerBound func(scopeID, sender uint64) (firstSeq uint64, ok bool)

// BootstrapConfig parameterizes one joiner-side bootstrap run.
type BootstrapConfig struct {
	DonorAddr      string
	Broadcasters   map[uint64]*progress.Broadcaster
	KnownSenders   func(scopeID uint64) []uint64
	SnapshotSeqs   SnapshotSeqs
	LiveLowerBound LiveLowerBound
	// Apply installs a stashed update, once bootstrap has completed, into
	// the dataflow's own progress-tracking state.
	Apply func(scopeID uint64, u progress.Update)
	// CoverageDeadline bounds how long Bootstrap polls LiveLowerBound for a
	// sender that hasn't yet produced a live update. Zero means
	// defaultCoverageDeadline.
	CoverageDeadline time.Duration
}

// Bootstrap runs the joiner half of SPEC §4.5: install the donor's state
// snapshots, request and replay each sender's missing sequence range, then
// apply stashed live messages. Every broadcaster passed in must already be
// BeginBootstrap'd by the caller before its first live message can arrive
// (the caller owns the receive loop, so it controls that ordering).
func Bootstrap(cfg BootstrapConfig) error {
	conn, err := net.Dial("tcp", cfg.DonorAddr)
	if err != nil {
		return errs.NewBootstrapError("dialing donor", err)
	}
	defer conn.Close()

	kind, body, err := readFrame(conn)
	if err != nil {
		return errs.NewBootstrapError("reading state snapshot", err)
	}
	if kind != kindStateSnapshot {
		return errs.NewBootstrapError("unexpected message kind reading snapshot", nil)
	}
	blobs, err := decodeStateSnapshot(body)
	if err != nil {
		return errs.NewBootstrapError("decoding state snapshot", err)
	}

	installedSeqs := make(map[uint64]map[uint64]uint64, len(blobs))
	for _, sb := range blobs {
		b, ok := cfg.Broadcasters[sb.ScopeID]
		if !ok {
			continue
		}
		b.Install(sb.Blob)
		installedSeqs[sb.ScopeID] = cfg.SnapshotSeqs(sb.ScopeID, sb.Blob)
	}

	deadline := cfg.CoverageDeadline
	if deadline == 0 {
		deadline = defaultCoverageDeadline
	}

	for scopeID, b := range cfg.Broadcasters {
		for _, sender := range cfg.KnownSenders(scopeID) {
			lo := uint64(0)
			if seqs, ok := installedSeqs[scopeID]; ok {
				if last, ok2 := seqs[sender]; ok2 {
					lo = last + 1
				}
			}
			hi, ok := pollLiveLowerBound(cfg.LiveLowerBound, scopeID, sender, deadline)
			if !ok {
				return errs.NewBootstrapError("sender coverage deadline exceeded waiting for first live update", nil)
			}
			if hi <= lo {
				continue
			}

			if err := writeRangeReq(conn, rangeRequest{ScopeID: scopeID, Sender: sender, Lo: lo, Hi: hi}); err != nil {
				return errs.NewBootstrapError("sending range request", err)
			}
			metrics.BootstrapRangesRequested.Inc()
			rkind, rbody, err := readFrame(conn)
			if err != nil {
				return errs.NewBootstrapError("reading range response", err)
			}
			if rkind != kindRangeResp {
				return errs.NewBootstrapError("unexpected message kind reading range response", nil)
			}
			if err := b.Replay(rbody); err != nil {
				return errs.NewBootstrapError("replaying range", err)
			}
		}
	}

	for scopeID, b := range cfg.Broadcasters {
		sid := scopeID
		b.EndBootstrap(func(u progress.Update) { cfg.Apply(sid, u) })
	}
	return nil
}

// pollLiveLowerBound retries fn until it reports ok or deadline elapses. The
// caller's own receive loop is what actually makes fn start returning ok
// (SPEC §4.5 step 2); this only bounds how long Bootstrap is willing to wait
// for that side effect before giving up on a quiescent sender.
func pollLiveLowerBound(fn LiveLowerBound, scopeID, sender uint64, deadline time.Duration) (uint64, bool) {
	if hi, ok := fn(scopeID, sender); ok {
		return hi, true
	}

	timeout := time.After(deadline)
	ticker := time.NewTicker(coveragePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-timeout:
			return 0, false
		case <-ticker.C:
			if hi, ok := fn(scopeID, sender); ok {
				return hi, true
			}
		}
	}
}
