package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/blockd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerAndTransportRoundTrip(t *testing.T) {
	blob := newFakeBlob()
	refs := &fakeRefs{counts: map[types.Hash]uint64{}}
	handler := NewLocalHandler(blob, refs)

	srv, err := NewServer("127.0.0.1:0", handler)
	require.NoError(t, err)
	defer srv.Close()

	go srv.Serve()

	const peer = types.NodeID("peer-1")
	transport := NewTCPTransport(map[types.NodeID]string{peer: srv.Addr().String()})

	var hash types.Hash
	hash[0] = 42

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := transport.Send(ctx, peer, PutBlock(hash, []byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, KindOk, resp.Kind)

	resp, err = transport.Send(ctx, peer, GetBlock(hash))
	require.NoError(t, err)
	assert.Equal(t, KindPutBlock, resp.Kind)
	assert.Equal(t, []byte("hello"), resp.Data)
}
