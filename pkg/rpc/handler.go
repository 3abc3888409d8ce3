package rpc

import (
	"fmt"

	"github.com/cuemby/blockd/pkg/blockerr"
	"github.com/cuemby/blockd/pkg/types"
)

// BlobReaderWriter is the subset of *blob.Store the local handler needs.
type BlobReaderWriter interface {
	Read(h types.Hash) ([]byte, error)
	Write(h types.Hash, data []byte) error
	Exists(h types.Hash) bool
}

// RefGetter is the subset of *refcount.Counter the local handler needs.
type RefGetter interface {
	Get(h types.Hash) (uint64, error)
}

// Handler dispatches a single request Envelope to its response, the
// local endpoint behind the wire protocol.
type Handler interface {
	Handle(req Envelope) (Envelope, error)
}

// LocalHandler implements Handler by dispatching into a BlobStore and a
// RefCounter, per the table in spec §4.5.
type LocalHandler struct {
	blob BlobReaderWriter
	refs RefGetter
}

// NewLocalHandler returns a Handler backed by blob and refs.
func NewLocalHandler(blob BlobReaderWriter, refs RefGetter) *LocalHandler {
	return &LocalHandler{blob: blob, refs: refs}
}

// Handle implements Handler.
func (h *LocalHandler) Handle(req Envelope) (Envelope, error) {
	switch req.Kind {
	case KindGetBlock:
		data, err := h.blob.Read(req.Hash)
		if err != nil {
			return Envelope{}, err
		}
		return PutBlock(req.Hash, data), nil

	case KindPutBlock:
		if err := h.blob.Write(req.Hash, req.Data); err != nil {
			return Envelope{}, err
		}
		return Ok(), nil

	case KindNeedBlockQuery:
		count, err := h.refs.Get(req.Hash)
		if err != nil {
			return Envelope{}, err
		}
		needed := count > 0
		exists := h.blob.Exists(req.Hash)
		return NeedBlockReply(needed && !exists), nil

	default:
		return Envelope{}, fmt.Errorf("%w: unexpected request kind %s", blockerr.ErrBadRpc, req.Kind)
	}
}
