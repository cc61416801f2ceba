package coinview_test

import (
	"encoding/hex"
	"testing"

	"github.com/bsv-blockchain/fullnode/coinview"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/libsv/go-bt/v2"
	"github.com/libsv/go-bt/v2/bscript"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

// mustCoinbaseTx builds a coinbase tx whose pay-to-pubkey-hash output uses
// tag repeated twenty times, so two calls with different tags produce
// distinct transaction-ids the way two real blocks' coinbases would.
func mustCoinbaseTx(t *testing.T, tag byte) *bt.Tx {
	t.Helper()

	hash160 := ""
	for i := 0; i < 20; i++ {
		hash160 += hex.EncodeToString([]byte{tag})
	}
	raw := "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff0151ffffffff0100f2052a010000001976a914" + hash160 + "88ac00000000"

	tx, err := bt.NewTxFromString(raw)
	require.NoError(t, err)
	return tx
}

// spendingTxFromHash builds a tx spending prevTxID:prevIndex into a single
// anyone-can-spend output, enough to exercise save_changes' input/output
// walk without needing real signatures (nothing in the coinview layer
// verifies scripts).
func spendingTxFromHash(t *testing.T, prevTxID chainhash.Hash, prevIndex uint32, satoshis uint64) *bt.Tx {
	t.Helper()

	tx := bt.NewTx()
	in := &bt.Input{PreviousTxOutIndex: prevIndex, SequenceNumber: 0xffffffff}
	require.NoError(t, in.PreviousTxIDAdd(&prevTxID))
	tx.Inputs = append(tx.Inputs, in)

	script := bscript.Script{0x51}
	tx.Outputs = append(tx.Outputs, &bt.Output{Satoshis: satoshis, LockingScript: &script})

	return tx
}

func newGenesisBlock(t *testing.T) (*model.ChainedHeader, *model.Block) {
	t.Helper()
	header, err := model.NewChainedHeader(&wire.BlockHeader{Version: 1, Bits: 0x1d00ffff}, nil)
	require.NoError(t, err)
	block, err := model.NewBlock(header, []*bt.Tx{mustCoinbaseTx(t, 0x00)})
	require.NoError(t, err)
	return header, block
}

func TestApplierAppliesGenesisCoinbase(t *testing.T) {
	genesis, block := newGenesisBlock(t)

	store := openTestStore(t, genesis.Hash())
	applier := coinview.NewApplier(store)

	require.NoError(t, applier.ApplyBlock(block))

	tip, err := store.GetTipHash()
	require.NoError(t, err)
	require.Equal(t, genesis.Hash(), tip)

	txID := block.Transactions[0].TxIDChainHash()
	_, results, err := store.FetchCoins([]chainhash.Hash{*txID})
	require.NoError(t, err)
	require.True(t, results[*txID].Found)
	require.Equal(t, uint64(5000000000), results[*txID].Coins[0].Value)
}

func TestApplierSpendsAndUndoesWithinSameChain(t *testing.T) {
	genesisHeader, genesisBlock := newGenesisBlock(t)

	store := openTestStore(t, genesisHeader.Hash())
	applier := coinview.NewApplier(store)
	require.NoError(t, applier.ApplyBlock(genesisBlock))

	coinbaseTxID := genesisBlock.Transactions[0].TxIDChainHash()

	spend := spendingTxFromHash(t, *coinbaseTxID, 0, 4000000000)
	nextHeader, err := model.NewChainedHeader(&wire.BlockHeader{Version: 1, Bits: 0x1d00ffff, PrevBlock: genesisHeader.Hash()}, genesisHeader)
	require.NoError(t, err)
	nextBlock, err := model.NewBlock(nextHeader, []*bt.Tx{mustCoinbaseTx(t, 0x01), spend})
	require.NoError(t, err)

	require.NoError(t, applier.ApplyBlock(nextBlock))

	_, results, err := store.FetchCoins([]chainhash.Hash{*coinbaseTxID})
	require.NoError(t, err)
	require.False(t, results[*coinbaseTxID].Found, "the coinbase output spent by the second block should be gone")

	nextCoinbaseTxID := nextBlock.Transactions[0].TxIDChainHash()
	spendTxID := spend.TxIDChainHash()

	tip, err := store.GetTipHash()
	require.NoError(t, err)
	require.Equal(t, nextHeader.Hash(), tip)

	require.NoError(t, applier.UndoBlock())

	tip, err = store.GetTipHash()
	require.NoError(t, err)
	require.Equal(t, genesisHeader.Hash(), tip)

	_, results, err = store.FetchCoins([]chainhash.Hash{*coinbaseTxID})
	require.NoError(t, err)
	require.True(t, results[*coinbaseTxID].Found, "undoing the spend should restore the coinbase output")

	_, results, err = store.FetchCoins([]chainhash.Hash{*nextCoinbaseTxID, *spendTxID})
	require.NoError(t, err)
	require.False(t, results[*nextCoinbaseTxID].Found, "undoing the block should remove its own still-unspent coinbase output")
	require.False(t, results[*spendTxID].Found, "undoing the block should remove its own still-unspent spend-tx output")
}
