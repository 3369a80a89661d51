package rescale

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/flowlattice/runtime/internal/progress"
	logging "github.com/sirupsen/logrus"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving address: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()
	return addr
}

// TestBootstrapInstallsSnapshotAndReplaysMissingRange drives the full donor
// + joiner exchange over a real loopback socket: the joiner should install
// the donor's snapshot and pull exactly the sequence range it was missing.
func TestBootstrapInstallsSnapshotAndReplaysMissingRange(t *testing.T) {
	log := logging.New()
	log.SetLevel(logging.ErrorLevel)

	donor := progress.New()
	donor.SetSnapshot([]byte("0"))
	donor.Record(progress.Update{Sender: 0, Seq: 1, Bytes: []byte("a")})
	donor.Record(progress.Update{Sender: 0, Seq: 2, Bytes: []byte("b")})
	donor.Record(progress.Update{Sender: 0, Seq: 3, Bytes: []byte("c")})

	addr := freeAddr(t)
	lis, err := ListenAndServe(addr, func() map[uint64]*progress.Broadcaster {
		return map[uint64]*progress.Broadcaster{1: donor}
	}, log.WithField("role", "donor"))
	if err != nil {
		t.Fatalf("ListenAndServe: %v", err)
	}
	defer lis.Close()

	joiner := progress.New()
	joiner.BeginBootstrap()

	var applied []progress.Update
	cfg := BootstrapConfig{
		DonorAddr:    addr,
		Broadcasters: map[uint64]*progress.Broadcaster{1: joiner},
		KnownSenders: func(uint64) []uint64 { return []uint64{0} },
		SnapshotSeqs: func(_ uint64, blob []byte) map[uint64]uint64 {
			last, _ := strconv.Atoi(string(blob))
			return map[uint64]uint64{0: uint64(last)}
		},
		LiveLowerBound: func(uint64, uint64) (uint64, bool) { return 4, true },
		Apply:          func(_ uint64, u progress.Update) { applied = append(applied, u) },
	}

	done := make(chan error, 1)
	go func() { done <- Bootstrap(cfg) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Bootstrap did not complete in time")
	}

	if got := joiner.Snapshot(); string(got) != "0" {
		t.Fatalf("expected installed snapshot %q, got %q", "0", got)
	}
	last, ok := joiner.LastSequence(0)
	if !ok || last != 3 {
		t.Fatalf("expected joiner to have replayed through seq 3, got %d ok=%v", last, ok)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no stashed updates to apply, got %v", applied)
	}
}
