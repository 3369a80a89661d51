package wire

import (
	"bytes"
	"testing"

	"github.com/go-test/deep"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	h := Header{ChannelID: 7, SourceWorker: 2, SequenceNo: 41}
	payload := []byte("hello, 0")

	if err := WriteFrame(&buf, h, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	defer got.Release()

	want := Header{ChannelID: 7, SourceWorker: 2, SequenceNo: 41, Length: uint64(len(payload))}
	if diff := deep.Equal(got.Header, want); diff != nil {
		t.Fatalf("header mismatch: %v", diff)
	}
	if !bytes.Equal(got.Payload(), payload) {
		t.Fatalf("payload mismatch: got %q want %q", got.Payload(), payload)
	}
}

func TestWriteReadFrameEmptyPayloadRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	h := Header{ChannelID: 3, SourceWorker: 1, SequenceNo: 0}

	if err := WriteFrame(&buf, h, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	defer got.Release()

	if got.Header.Length != 0 {
		t.Fatalf("expected zero length, got %d", got.Header.Length)
	}
	if len(got.Payload()) != 0 {
		t.Fatalf("expected empty payload, got %q", got.Payload())
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	h := Header{ChannelID: 1, SourceWorker: 1, Length: MaxPayload + 1}
	var hdr [HeaderSize]byte
	putHeader(hdr[:], h)
	buf.Write(hdr[:])

	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected error for oversized frame length")
	}
}

func putHeader(dst []byte, h Header) {
	for i, v := range []uint64{h.ChannelID, h.SourceWorker, h.SequenceNo, h.Length} {
		for b := 0; b < 8; b++ {
			dst[i*8+b] = byte(v >> (8 * b))
		}
	}
}
