package wire_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/stretchr/testify/require"
)

func TestMsgGetHeadersEncodeDecodeRoundTrip(t *testing.T) {
	locatorHash := chainhashFromByte(t, 0xaa)

	gh := &wire.MsgGetHeaders{ProtocolVersion: 70016}
	require.NoError(t, gh.AddBlockLocatorHash(locatorHash))

	var buf bytes.Buffer
	require.NoError(t, gh.BsvEncode(&buf, 0, wire.BaseEncoding))

	got := &wire.MsgGetHeaders{}
	require.NoError(t, got.Bsvdecode(&buf, 0, wire.BaseEncoding))

	require.Equal(t, gh.ProtocolVersion, got.ProtocolVersion)
	require.Len(t, got.BlockLocatorHashes, 1)
	require.Equal(t, *locatorHash, *got.BlockLocatorHashes[0])
}

func TestMsgHeadersEncodeDecodeRoundTrip(t *testing.T) {
	h := &wire.BlockHeader{
		Version:   1,
		Timestamp: time.Unix(1700000000, 0),
		Bits:      0x1d00ffff,
		Nonce:     42,
	}

	msg := &wire.MsgHeaders{}
	require.NoError(t, msg.AddBlockHeader(h))

	var buf bytes.Buffer
	require.NoError(t, msg.BsvEncode(&buf, 0, wire.BaseEncoding))

	got := &wire.MsgHeaders{}
	require.NoError(t, got.Bsvdecode(&buf, 0, wire.BaseEncoding))

	require.Len(t, got.Headers, 1)
	require.Equal(t, h.Nonce, got.Headers[0].Nonce)
	require.Equal(t, h.Bits, got.Headers[0].Bits)
}

func TestMsgHeadersRejectsTooManyHeaders(t *testing.T) {
	msg := &wire.MsgHeaders{}
	for i := 0; i < wire.MaxHeadersPerMsg; i++ {
		require.NoError(t, msg.AddBlockHeader(&wire.BlockHeader{}))
	}
	require.Error(t, msg.AddBlockHeader(&wire.BlockHeader{}))
}
