package rpc

import "github.com/cuemby/blockd/pkg/types"

// Kind tags which of the four protocol messages an Envelope carries.
type Kind byte

const (
	KindOk Kind = iota + 1
	KindGetBlock
	KindPutBlock
	KindNeedBlockQuery
	KindNeedBlockReply
	KindBadRpc
)

func (k Kind) String() string {
	switch k {
	case KindOk:
		return "Ok"
	case KindGetBlock:
		return "GetBlock"
	case KindPutBlock:
		return "PutBlock"
	case KindNeedBlockQuery:
		return "NeedBlockQuery"
	case KindNeedBlockReply:
		return "NeedBlockReply"
	case KindBadRpc:
		return "BadRpc"
	default:
		return "Unknown"
	}
}

// Envelope is the single wire struct carrying any of the four protocol
// messages; which fields are meaningful depends on Kind.
type Envelope struct {
	Kind Kind
	Hash types.Hash `msgpack:",omitempty"`
	Data []byte     `msgpack:",omitempty"`
	Need bool       `msgpack:",omitempty"`
}

// Ok builds the acknowledgement envelope.
func Ok() Envelope { return Envelope{Kind: KindOk} }

// GetBlock builds a GetBlock(hash) request envelope.
func GetBlock(h types.Hash) Envelope { return Envelope{Kind: KindGetBlock, Hash: h} }

// PutBlock builds a PutBlock{hash, data} envelope.
func PutBlock(h types.Hash, data []byte) Envelope {
	return Envelope{Kind: KindPutBlock, Hash: h, Data: data}
}

// NeedBlockQuery builds a NeedBlockQuery(hash) request envelope.
func NeedBlockQuery(h types.Hash) Envelope { return Envelope{Kind: KindNeedBlockQuery, Hash: h} }

// NeedBlockReply builds a NeedBlockReply(bool) response envelope.
func NeedBlockReply(need bool) Envelope { return Envelope{Kind: KindNeedBlockReply, Need: need} }

// BadRpc builds the error envelope returned for a mismatched
// request/response pairing.
func BadRpc() Envelope { return Envelope{Kind: KindBadRpc} }
