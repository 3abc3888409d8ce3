package rpc

import (
	"testing"

	"github.com/cuemby/blockd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlob struct {
	data   map[types.Hash][]byte
	exists map[types.Hash]bool
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{data: map[types.Hash][]byte{}, exists: map[types.Hash]bool{}}
}

func (f *fakeBlob) Read(h types.Hash) ([]byte, error) {
	b, ok := f.data[h]
	if !ok {
		return nil, assert.AnError
	}
	return b, nil
}

func (f *fakeBlob) Write(h types.Hash, data []byte) error {
	f.data[h] = data
	f.exists[h] = true
	return nil
}

func (f *fakeBlob) Exists(h types.Hash) bool {
	return f.exists[h]
}

type fakeRefs struct {
	counts map[types.Hash]uint64
}

func (f *fakeRefs) Get(h types.Hash) (uint64, error) {
	return f.counts[h], nil
}

func TestLocalHandlerGetPutBlock(t *testing.T) {
	blob := newFakeBlob()
	refs := &fakeRefs{counts: map[types.Hash]uint64{}}
	h := NewLocalHandler(blob, refs)

	var hash types.Hash
	hash[0] = 9

	resp, err := h.Handle(PutBlock(hash, []byte("data")))
	require.NoError(t, err)
	assert.Equal(t, KindOk, resp.Kind)

	resp, err = h.Handle(GetBlock(hash))
	require.NoError(t, err)
	assert.Equal(t, KindPutBlock, resp.Kind)
	assert.Equal(t, []byte("data"), resp.Data)
}

func TestLocalHandlerNeedBlockQuery(t *testing.T) {
	blob := newFakeBlob()
	refs := &fakeRefs{counts: map[types.Hash]uint64{}}
	h := NewLocalHandler(blob, refs)

	var hash types.Hash
	hash[0] = 3
	refs.counts[hash] = 1

	resp, err := h.Handle(NeedBlockQuery(hash))
	require.NoError(t, err)
	assert.Equal(t, KindNeedBlockReply, resp.Kind)
	assert.True(t, resp.Need)

	blob.exists[hash] = true
	resp, err = h.Handle(NeedBlockQuery(hash))
	require.NoError(t, err)
	assert.False(t, resp.Need)
}

func TestLocalHandlerBadRpc(t *testing.T) {
	blob := newFakeBlob()
	refs := &fakeRefs{counts: map[types.Hash]uint64{}}
	h := NewLocalHandler(blob, refs)

	_, err := h.Handle(NeedBlockReply(true))
	require.Error(t, err)
}
