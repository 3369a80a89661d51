package rescale

import (
	"io"
	"net"

	"github.com/flowlattice/runtime/internal/errs"
	"github.com/flowlattice/runtime/internal/metrics"
	"github.com/flowlattice/runtime/internal/progress"
	logging "github.com/sirupsen/logrus"
)

// ListenAndServe runs the donor's long-lived bootstrap listener. Every
// accepted connection is handled by its own goroutine (SPEC §4.5's "one
// bootstrap server thread per new peer admitted"); broadcasters is called
// fresh per connection so a just-admitted scope is visible to the next
// joiner.
func ListenAndServe(addr string, broadcasters func() map[uint64]*progress.Broadcaster, log *logging.Entry) (net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errs.NewConfigError("bootstrap listen on %s: %v", addr, err)
	}
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				if err := ServeBootstrap(conn, broadcasters()); err != nil && err != io.EOF {
					log.WithError(err).Warn("bootstrap session ended with error")
				}
			}()
		}
	}()
	return lis, nil
}

// ServeBootstrap speaks the donor half of the protocol over one already-
// accepted connection: send every scope's current snapshot, then answer
// RANGE_REQ messages until the joiner closes the connection.
func ServeBootstrap(conn net.Conn, broadcasters map[uint64]*progress.Broadcaster) error {
	blobs := make([]scopeBlob, 0, len(broadcasters))
	for scopeID, b := range broadcasters {
		blobs = append(blobs, scopeBlob{ScopeID: scopeID, Blob: b.Snapshot()})
	}
	if err := writeStateSnapshot(conn, blobs); err != nil {
		return err
	}

	for {
		kind, body, err := readFrame(conn)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errs.NewBootstrapError("reading range request", err)
		}
		if kind != kindRangeReq {
			return errs.NewBootstrapError("unexpected message kind on bootstrap socket", nil)
		}
		req, err := decodeRangeReq(body)
		if err != nil {
			return errs.NewBootstrapError("decoding range request", err)
		}
		b, ok := broadcasters[req.ScopeID]
		if !ok {
			if err := writeRangeResp(conn, nil); err != nil {
				return err
			}
			continue
		}
		if err := writeRangeResp(conn, b.Range(req.Sender, req.Lo, req.Hi)); err != nil {
			return err
		}
		metrics.BootstrapRangesServed.Inc()
	}
}
