package wire_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/stretchr/testify/require"
)

func TestMsgBlockEncodeDecodeRoundTrip(t *testing.T) {
	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   1,
			Timestamp: time.Unix(1700000000, 0),
			Bits:      0x1d00ffff,
			Nonce:     7,
		},
		Transactions: []*wire.MsgTx{
			{
				Version: 1,
				TxIn: []*wire.TxIn{
					{PreviousOutPoint: wire.OutPoint{Index: 0xffffffff}, Sequence: 0xffffffff},
				},
				TxOut: []*wire.TxOut{
					{Value: 5000000000, PkScript: []byte{0x51}},
				},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, block.BsvEncode(&buf, 0, wire.BaseEncoding))

	got := &wire.MsgBlock{}
	require.NoError(t, got.Bsvdecode(&buf, 0, wire.BaseEncoding))

	require.Equal(t, block.Header.Nonce, got.Header.Nonce)
	require.Len(t, got.Transactions, 1)
	require.Equal(t, block.Transactions[0].TxOut[0].Value, got.Transactions[0].TxOut[0].Value)
	require.Equal(t, wire.CmdBlock, got.Command())
}

func TestWriteReadMessageBlockRoundTrip(t *testing.T) {
	block := &wire.MsgBlock{
		Header: wire.BlockHeader{Version: 1, Timestamp: time.Unix(1700000000, 0), Bits: 0x1d00ffff},
	}

	var buf bytes.Buffer
	require.NoError(t, wire.WriteMessage(&buf, block, 0, 0xd9b4bef9))

	msg, err := wire.ReadMessage(&buf, 0, 0xd9b4bef9, wire.MakeEmptyMessage)
	require.NoError(t, err)

	got, ok := msg.(*wire.MsgBlock)
	require.True(t, ok)
	require.Equal(t, block.Header.Bits, got.Header.Bits)
}
