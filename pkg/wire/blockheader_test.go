package wire_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/stretchr/testify/require"
)

func TestBlockHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := &wire.BlockHeader{
		Version:    1,
		Timestamp:  time.Unix(1231006505, 0),
		Bits:       0x1d00ffff,
		Nonce:      2083236893,
	}

	var buf bytes.Buffer
	require.NoError(t, h.BsvEncode(&buf, 0, wire.BaseEncoding))
	require.Equal(t, wire.BlockHeaderLen, buf.Len())

	got := &wire.BlockHeader{}
	require.NoError(t, got.Bsvdecode(&buf, 0, wire.BaseEncoding))

	require.Equal(t, h.Version, got.Version)
	require.Equal(t, h.Bits, got.Bits)
	require.Equal(t, h.Nonce, got.Nonce)
	require.Equal(t, h.Timestamp.Unix(), got.Timestamp.Unix())
}

func TestBlockHeaderHashIsDeterministic(t *testing.T) {
	h := &wire.BlockHeader{
		Version:   1,
		Timestamp: time.Unix(1231006505, 0),
		Bits:      0x1d00ffff,
		Nonce:     2083236893,
	}

	hash1 := h.BlockHash()
	hash2 := h.BlockHash()
	require.Equal(t, hash1, hash2)

	h.Nonce++
	require.NotEqual(t, hash1, h.BlockHash())
}
