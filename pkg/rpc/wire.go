package rpc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

var msgpackHandle = &codec.MsgpackHandle{}

// maxFrameBytes bounds a single envelope's encoded size, guarding against
// a malformed or malicious length prefix driving an unbounded allocation.
const maxFrameBytes = 64 << 20

// encode msgpack-serialises v, mirroring hashicorp/raft's encodeMsgPack
// helper.
func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("rpc: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// decode msgpack-deserialises body into v.
func decode(body []byte, v interface{}) error {
	dec := codec.NewDecoder(bytes.NewReader(body), msgpackHandle)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("rpc: decode: %w", err)
	}
	return nil
}

// WriteEnvelope frames e as a 1-byte tag, a big-endian uint32 length, and
// the msgpack-encoded envelope body.
func WriteEnvelope(w io.Writer, e Envelope) error {
	body, err := encode(e)
	if err != nil {
		return err
	}

	var header [5]byte
	header[0] = byte(e.Kind)
	binary.BigEndian.PutUint32(header[1:], uint32(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("rpc: write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("rpc: write body: %w", err)
	}
	return nil
}

// ReadEnvelope reads one frame from r and decodes it into an Envelope.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Envelope{}, fmt.Errorf("rpc: read header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[1:])
	if length > maxFrameBytes {
		return Envelope{}, fmt.Errorf("rpc: frame too large: %d bytes", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Envelope{}, fmt.Errorf("rpc: read body: %w", err)
	}

	var e Envelope
	if err := decode(body, &e); err != nil {
		return Envelope{}, err
	}
	// The tag byte is authoritative for dispatch: the Kind encoded inside
	// the body is overwritten by it and not compared against it.
	e.Kind = Kind(header[0])
	return e, nil
}
