package rescale

import (
	"bytes"
	"testing"
)

func TestStateSnapshotRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	blobs := []scopeBlob{
		{ScopeID: 1, Blob: []byte("scope-one")},
		{ScopeID: 2, Blob: nil},
	}
	if err := writeStateSnapshot(&buf, blobs); err != nil {
		t.Fatalf("writeStateSnapshot: %v", err)
	}

	kind, body, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if kind != kindStateSnapshot {
		t.Fatalf("expected kindStateSnapshot, got %v", kind)
	}

	got, err := decodeStateSnapshot(body)
	if err != nil {
		t.Fatalf("decodeStateSnapshot: %v", err)
	}
	if len(got) != 2 || got[0].ScopeID != 1 || string(got[0].Blob) != "scope-one" || got[1].ScopeID != 2 {
		t.Fatalf("unexpected decoded snapshot: %+v", got)
	}
}

func TestRangeRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := rangeRequest{ScopeID: 3, Sender: 1, Lo: 5, Hi: 9}
	if err := writeRangeReq(&buf, req); err != nil {
		t.Fatalf("writeRangeReq: %v", err)
	}

	kind, body, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if kind != kindRangeReq {
		t.Fatalf("expected kindRangeReq, got %v", kind)
	}
	got, err := decodeRangeReq(body)
	if err != nil {
		t.Fatalf("decodeRangeReq: %v", err)
	}
	if got != req {
		t.Fatalf("range request mismatch: got %+v want %+v", got, req)
	}
}

func TestReadFrameRejectsOversizedBody(t *testing.T) {
	var buf bytes.Buffer
	writeFrame(&buf, kindRangeResp, nil)
	raw := buf.Bytes()
	// Corrupt the length field to something absurd.
	for i := 1; i < 9; i++ {
		raw[i] = 0xff
	}
	if _, _, err := readFrame(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected error for oversized frame length")
	}
}
