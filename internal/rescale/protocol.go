// Package rescale implements the bootstrap protocol a joining worker uses
// to pull its progress-tracking state from an elected donor: a
// STATE_SNAPSHOT message followed by repeated RANGE_REQ/RANGE_RESP pairs
// over a dedicated bootstrap socket (SPEC §4.5). Each message is a one-byte
// kind followed by a little-endian uint64 body length and the body — length-
// prefixed like the data-plane wire package's frames, but without its
// 32-byte header — over a control connection that only ever carries a
// handful of messages per rescale.
package rescale

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

type msgKind uint8

const (
	kindStateSnapshot msgKind = iota
	kindRangeReq
	kindRangeResp
)

// maxBootstrapBody guards against a corrupt length field wedging a reader.
const maxBootstrapBody = 1 << 30

// scopeBlob is one (scope_id, blob) pair inside a STATE_SNAPSHOT message.
type scopeBlob struct {
	ScopeID uint64
	Blob    []byte
}

// rangeRequest is the body of a RANGE_REQ message.
type rangeRequest struct {
	ScopeID uint64
	Sender  uint64
	Lo      uint64
	Hi      uint64
}

func writeFrame(w io.Writer, kind msgKind, body []byte) error {
	var hdr [9]byte
	hdr[0] = byte(kind)
	binary.LittleEndian.PutUint64(hdr[1:9], uint64(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func readFrame(r io.Reader) (msgKind, []byte, error) {
	var hdr [9]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	kind := msgKind(hdr[0])
	n := binary.LittleEndian.Uint64(hdr[1:9])
	if n > maxBootstrapBody {
		return 0, nil, fmt.Errorf("rescale: body length %d exceeds max %d", n, maxBootstrapBody)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return kind, body, nil
}

func writeStateSnapshot(w io.Writer, blobs []scopeBlob) error {
	var buf bytes.Buffer
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(blobs)))
	buf.Write(n[:])
	for _, b := range blobs {
		binary.LittleEndian.PutUint64(n[:], b.ScopeID)
		buf.Write(n[:])
		binary.LittleEndian.PutUint64(n[:], uint64(len(b.Blob)))
		buf.Write(n[:])
		buf.Write(b.Blob)
	}
	return writeFrame(w, kindStateSnapshot, buf.Bytes())
}

func decodeStateSnapshot(body []byte) ([]scopeBlob, error) {
	if len(body) < 8 {
		return nil, fmt.Errorf("rescale: snapshot truncated")
	}
	count := binary.LittleEndian.Uint64(body[0:8])
	body = body[8:]
	out := make([]scopeBlob, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(body) < 16 {
			return nil, fmt.Errorf("rescale: snapshot entry truncated")
		}
		scopeID := binary.LittleEndian.Uint64(body[0:8])
		blobLen := binary.LittleEndian.Uint64(body[8:16])
		body = body[16:]
		if uint64(len(body)) < blobLen {
			return nil, fmt.Errorf("rescale: snapshot blob truncated")
		}
		out = append(out, scopeBlob{ScopeID: scopeID, Blob: append([]byte(nil), body[:blobLen]...)})
		body = body[blobLen:]
	}
	return out, nil
}

func writeRangeReq(w io.Writer, req rangeRequest) error {
	var buf bytes.Buffer
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], req.ScopeID)
	buf.Write(n[:])
	binary.LittleEndian.PutUint64(n[:], req.Sender)
	buf.Write(n[:])
	binary.LittleEndian.PutUint64(n[:], req.Lo)
	buf.Write(n[:])
	binary.LittleEndian.PutUint64(n[:], req.Hi)
	buf.Write(n[:])
	return writeFrame(w, kindRangeReq, buf.Bytes())
}

func decodeRangeReq(body []byte) (rangeRequest, error) {
	if len(body) != 32 {
		return rangeRequest{}, fmt.Errorf("rescale: range request malformed")
	}
	return rangeRequest{
		ScopeID: binary.LittleEndian.Uint64(body[0:8]),
		Sender:  binary.LittleEndian.Uint64(body[8:16]),
		Lo:      binary.LittleEndian.Uint64(body[16:24]),
		Hi:      binary.LittleEndian.Uint64(body[24:32]),
	}, nil
}

func writeRangeResp(w io.Writer, raw []byte) error {
	return writeFrame(w, kindRangeResp, raw)
}
