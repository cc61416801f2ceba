package model_test

import (
	"testing"

	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/libsv/go-bt/v2"
	"github.com/stretchr/testify/require"
)

func coinbaseTx(t *testing.T) *bt.Tx {
	t.Helper()
	const coinbaseHex = "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff0151ffffffff0100f2052a010000001976a914000000000000000000000000000000000000000088ac00000000"
	tx, err := bt.NewTxFromString(coinbaseHex)
	require.NoError(t, err)
	return tx
}

func TestNewBlockRequiresAtLeastOneTransaction(t *testing.T) {
	genesis, err := model.NewChainedHeader(&wire.BlockHeader{Version: 1, Bits: 0x1d00ffff}, nil)
	require.NoError(t, err)

	_, err = model.NewBlock(genesis, nil)
	require.Error(t, err)

	// A non-coinbase first transaction is accepted: telling a PoW coinbase
	// apart from a PoS coinstake is a validation concern out of scope here
	// (§1), so construction doesn't reject either shape.
	nonCoinbase := bt.NewTx()
	_, err = model.NewBlock(genesis, []*bt.Tx{nonCoinbase})
	require.NoError(t, err)
}

func TestBlockSerializedSizeIsMemoizedAndPositive(t *testing.T) {
	genesis, err := model.NewChainedHeader(&wire.BlockHeader{Version: 1, Bits: 0x1d00ffff}, nil)
	require.NoError(t, err)

	block, err := model.NewBlock(genesis, []*bt.Tx{coinbaseTx(t)})
	require.NoError(t, err)

	size1 := block.SerializedSize()
	size2 := block.SerializedSize()
	require.Equal(t, size1, size2)
	require.Greater(t, size1, uint64(wire.BlockHeaderLen))
	require.Equal(t, uint32(0), block.Height())
}
