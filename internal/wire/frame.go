// Package wire implements the on-wire frame format of the network-backed
// channel allocator's data-plane traffic. The rescaling bootstrap protocol
// uses its own framing (see internal/rescale).
//
// Every frame carries a fixed-width, little-endian header — channel_id,
// source_worker, sequence_no, length, all uint64 — followed by exactly
// length bytes of opaque payload. A zero-length payload is a legal, ordinary
// message: it routes to the puller like any other frame and yields one
// empty value. Zero-copy here means the payload is an already-flattened
// byte run handed down by the typed pusher; this layer never inspects or
// re-serializes it.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/valyala/bytebufferpool"
)

// HeaderSize is the fixed width, in bytes, of a frame header.
const HeaderSize = 4 * 8

// MaxPayload bounds a single frame's payload to guard against a corrupt
// length field wedging a reader on an unbounded allocation.
const MaxPayload = 1 << 30

// Header is the fixed-width preamble of a frame.
type Header struct {
	ChannelID    uint64
	SourceWorker uint64
	SequenceNo   uint64
	Length       uint64
}

// Frame is a fully decoded wire message: a header plus its payload bytes.
// Payload is pool-backed; callers that retain it past the current receive
// batch must copy it out before calling Release.
type Frame struct {
	Header
	buf *bytebufferpool.ByteBuffer
}

// Payload returns the frame's payload bytes. The slice is only valid until
// Release is called.
func (f *Frame) Payload() []byte {
	if f.buf == nil {
		return nil
	}
	return f.buf.B
}

// Release returns the frame's backing buffer to the shared pool. Safe to
// call on a zero-length-payload frame (a no-op in that case).
func (f *Frame) Release() {
	if f.buf != nil {
		bufferPool.Put(f.buf)
		f.buf = nil
	}
}

var bufferPool bytebufferpool.Pool

// WriteFrame encodes header+payload and writes it to w in a single Write
// call so that a blocking socket write either lands the whole frame or
// fails outright — partial frames are never observable by a peer.
func WriteFrame(w io.Writer, h Header, payload []byte) error {
	h.Length = uint64(len(payload))
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)
	buf.Reset()

	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], h.ChannelID)
	binary.LittleEndian.PutUint64(hdr[8:16], h.SourceWorker)
	binary.LittleEndian.PutUint64(hdr[16:24], h.SequenceNo)
	binary.LittleEndian.PutUint64(hdr[24:32], h.Length)

	buf.Write(hdr[:])
	buf.Write(payload)

	_, err := w.Write(buf.B)
	return err
}

// ReadFrame blocks until a full frame has been read from r. The returned
// Frame's payload buffer is pool-backed; call Release once done with it.
func ReadFrame(r io.Reader) (*Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	h := Header{
		ChannelID:    binary.LittleEndian.Uint64(hdr[0:8]),
		SourceWorker: binary.LittleEndian.Uint64(hdr[8:16]),
		SequenceNo:   binary.LittleEndian.Uint64(hdr[16:24]),
		Length:       binary.LittleEndian.Uint64(hdr[24:32]),
	}
	if h.Length > MaxPayload {
		return nil, fmt.Errorf("wire: frame length %d exceeds max %d", h.Length, MaxPayload)
	}

	f := &Frame{Header: h}
	if h.Length == 0 {
		return f, nil
	}

	buf := bufferPool.Get()
	buf.B = append(buf.B[:0], make([]byte, h.Length)...)
	if _, err := io.ReadFull(r, buf.B); err != nil {
		bufferPool.Put(buf)
		return nil, err
	}
	f.buf = buf
	return f, nil
}
