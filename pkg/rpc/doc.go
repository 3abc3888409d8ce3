/*
Package rpc implements the Block Manager's four-message peer protocol and
the local endpoint that dispatches incoming requests into BlobStore and
RefCounter.

Wire format: a 1-byte command tag, a big-endian uint32 length prefix, and
a github.com/hashicorp/go-msgpack/v2-encoded envelope — the same framing
shape as hashicorp/raft's NetworkTransport (tag byte + length-prefixed
codec payload over a pooled TCP connection), scaled down to this
protocol's four request/response variants:

	GetBlock(hash)        -> PutBlock{hash, data}
	PutBlock{hash, data}  -> Ok
	NeedBlockQuery(hash)  -> NeedBlockReply(bool)
	NeedBlockReply(bool)  -> (response only)

Any other request/response pairing is a BadRpc error.
*/
package rpc
