package rpc

import (
	"bytes"
	"testing"

	"github.com/cuemby/blockd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireRoundTrip(t *testing.T) {
	var h types.Hash
	h[0] = 0xAB

	cases := []Envelope{
		Ok(),
		GetBlock(h),
		PutBlock(h, []byte("payload")),
		NeedBlockQuery(h),
		NeedBlockReply(true),
		NeedBlockReply(false),
		BadRpc(),
	}

	for _, want := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteEnvelope(&buf, want))

		got, err := ReadEnvelope(&buf)
		require.NoError(t, err)
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.Hash, got.Hash)
		assert.Equal(t, want.Data, got.Data)
		assert.Equal(t, want.Need, got.Need)
	}
}

func TestReadEnvelopeRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindOk))
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // huge length prefix

	_, err := ReadEnvelope(&buf)
	require.Error(t, err)
}
