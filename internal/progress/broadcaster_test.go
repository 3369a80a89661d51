package progress

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeUpdatesRoundTrip(t *testing.T) {
	ups := []Update{
		{Sender: 0, Seq: 1, Bytes: []byte("a")},
		{Sender: 0, Seq: 2, Bytes: []byte("bb")},
		{Sender: 1, Seq: 1, Bytes: nil},
	}
	raw := EncodeUpdates(ups)
	got, err := DecodeUpdates(raw)
	if err != nil {
		t.Fatalf("DecodeUpdates: %v", err)
	}
	if len(got) != len(ups) {
		t.Fatalf("expected %d updates, got %d", len(ups), len(got))
	}
	for i := range ups {
		if got[i].Sender != ups[i].Sender || got[i].Seq != ups[i].Seq {
			t.Fatalf("update %d mismatch: got %+v want %+v", i, got[i], ups[i])
		}
		if !bytes.Equal(got[i].Bytes, ups[i].Bytes) {
			t.Fatalf("update %d bytes mismatch: got %q want %q", i, got[i].Bytes, ups[i].Bytes)
		}
	}
}

func TestDecodeUpdatesRejectsTruncated(t *testing.T) {
	if _, err := DecodeUpdates([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding truncated batch")
	}
}

func TestRangeFiltersBySequence(t *testing.T) {
	b := New()
	b.Record(Update{Sender: 0, Seq: 1, Bytes: []byte("a")})
	b.Record(Update{Sender: 0, Seq: 2, Bytes: []byte("b")})
	b.Record(Update{Sender: 0, Seq: 3, Bytes: []byte("c")})
	b.Record(Update{Sender: 1, Seq: 1, Bytes: []byte("x")})

	raw := b.Range(0, 2, 4)
	got, err := DecodeUpdates(raw)
	if err != nil {
		t.Fatalf("DecodeUpdates: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 2 || got[1].Seq != 3 {
		t.Fatalf("unexpected range result: %+v", got)
	}

	last, ok := b.LastSequence(0)
	if !ok || last != 3 {
		t.Fatalf("expected last sequence 3, got %d ok=%v", last, ok)
	}

	indices := b.WorkerIndices()
	if len(indices) != 2 || indices[0] != 0 || indices[1] != 1 {
		t.Fatalf("unexpected worker indices: %v", indices)
	}
}

func TestBootstrapStashReplayAndApplyOrdering(t *testing.T) {
	b := New()

	// Donor-recorded history the joiner will have already pulled via Replay.
	b.Replay(EncodeUpdates([]Update{{Sender: 0, Seq: 1, Bytes: []byte("installed")}}))

	b.BeginBootstrap()

	if !b.Stash(Update{Sender: 0, Seq: 1, Bytes: []byte("stale")}) {
		t.Fatal("expected Stash to accept while bootstrapping")
	}
	if !b.Stash(Update{Sender: 0, Seq: 2, Bytes: []byte("fresh")}) {
		t.Fatal("expected Stash to accept while bootstrapping")
	}

	var applied []Update
	b.EndBootstrap(func(u Update) { applied = append(applied, u) })

	if len(applied) != 1 || applied[0].Seq != 2 {
		t.Fatalf("expected only the seq-2 update to survive replay filtering, got %+v", applied)
	}

	if b.Stash(Update{Sender: 0, Seq: 3, Bytes: []byte("too late")}) {
		t.Fatal("expected Stash to reject once bootstrap has ended")
	}
}

func TestSnapshotInstallRoundTrip(t *testing.T) {
	b := New()
	b.SetSnapshot([]byte("scope-state"))
	if got := b.Snapshot(); !bytes.Equal(got, []byte("scope-state")) {
		t.Fatalf("unexpected snapshot: %q", got)
	}

	joiner := New()
	joiner.Install(b.Snapshot())
	if got := joiner.Snapshot(); !bytes.Equal(got, []byte("scope-state")) {
		t.Fatalf("expected Install to adopt the donor's blob, got %q", got)
	}
}
