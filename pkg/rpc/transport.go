package rpc

import (
	"context"
	"fmt"
	"net"

	"github.com/cuemby/blockd/pkg/types"
)

// PeerTransport sends a request Envelope to a peer and returns its
// response. The generic framing, connection pooling, and retry policy
// are explicitly out of scope for the Block Manager (spec §1); this is
// the interface the resync engine sends through, implemented minimally
// over TCP by TCPTransport.
type PeerTransport interface {
	Send(ctx context.Context, peer types.NodeID, req Envelope) (Envelope, error)
}

// TCPTransport dials a plain TCP connection per request against a static
// node-id -> address book. Quorum fan-out, parallelism, and per-call
// timeouts are the caller's responsibility (the ResyncEngine), matching
// spec §4.4's assignment of quorum-dispatch semantics to the Block
// Manager even though the raw transport is an external collaborator.
type TCPTransport struct {
	addrs map[types.NodeID]string
}

// NewTCPTransport returns a TCPTransport resolving peer into addr.
func NewTCPTransport(addrs map[types.NodeID]string) *TCPTransport {
	cp := make(map[types.NodeID]string, len(addrs))
	for k, v := range addrs {
		cp[k] = v
	}
	return &TCPTransport{addrs: cp}
}

// Send dials peer, writes req, and reads back a single response
// envelope. The context's deadline, if any, bounds both dial and
// round-trip.
func (t *TCPTransport) Send(ctx context.Context, peer types.NodeID, req Envelope) (Envelope, error) {
	addr, ok := t.addrs[peer]
	if !ok {
		return Envelope{}, fmt.Errorf("rpc: unknown peer %s", peer)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Envelope{}, fmt.Errorf("rpc: dial %s: %w", peer, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := WriteEnvelope(conn, req); err != nil {
		return Envelope{}, err
	}
	resp, err := ReadEnvelope(conn)
	if err != nil {
		return Envelope{}, err
	}
	return resp, nil
}
