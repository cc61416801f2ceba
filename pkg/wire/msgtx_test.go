package wire_test

import (
	"bytes"
	"testing"

	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/stretchr/testify/require"
)

func TestMsgTxEncodeDecodeRoundTrip(t *testing.T) {
	tx := &wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{
			{
				PreviousOutPoint: wire.OutPoint{Index: 0},
				SignatureScript:  []byte{0x51},
				Sequence:         0xffffffff,
			},
		},
		TxOut: []*wire.TxOut{
			{Value: 5000000000, PkScript: []byte{0x76, 0xa9, 0x14}},
		},
		LockTime: 0,
	}

	var buf bytes.Buffer
	require.NoError(t, tx.BsvEncode(&buf, 0, wire.BaseEncoding))

	got := &wire.MsgTx{}
	require.NoError(t, got.Bsvdecode(&buf, 0, wire.BaseEncoding))

	require.Equal(t, tx.Version, got.Version)
	require.Len(t, got.TxIn, 1)
	require.Len(t, got.TxOut, 1)
	require.Equal(t, tx.TxOut[0].Value, got.TxOut[0].Value)
	require.Equal(t, wire.CmdTx, got.Command())
}

func TestMsgTxHashIsDeterministicAndSensitiveToContent(t *testing.T) {
	tx := &wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{
			{PreviousOutPoint: wire.OutPoint{Index: 0}, Sequence: 0xffffffff},
		},
		TxOut: []*wire.TxOut{
			{Value: 100, PkScript: []byte{0x00}},
		},
	}

	h1, err := tx.TxHash()
	require.NoError(t, err)
	h2, err := tx.TxHash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	tx.TxOut[0].Value = 200
	h3, err := tx.TxHash()
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}
