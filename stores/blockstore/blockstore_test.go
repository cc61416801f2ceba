package blockstore_test

import (
	"testing"

	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/stores/blockstore"
	"github.com/bsv-blockchain/fullnode/stores/kv"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/libsv/go-bt/v2"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

type alwaysKnownTree struct{}

func (alwaysKnownTree) Contains(chainhash.Hash) bool { return true }

func coinbaseTx(t *testing.T) *bt.Tx {
	t.Helper()
	const coinbaseHex = "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff0151ffffffff0100f2052a010000001976a914000000000000000000000000000000000000000088ac00000000"
	tx, err := bt.NewTxFromString(coinbaseHex)
	require.NoError(t, err)
	return tx
}

func chainedBlock(t *testing.T, parent *model.ChainedHeader, nonce uint32) *model.Block {
	t.Helper()

	header := &wire.BlockHeader{Version: 1, Bits: 0x1d00ffff, Nonce: nonce}
	if parent != nil {
		header.PrevBlock = parent.Hash()
	}

	ch, err := model.NewChainedHeader(header, parent)
	require.NoError(t, err)

	block, err := model.NewBlock(ch, []*bt.Tx{coinbaseTx(t)})
	require.NoError(t, err)
	return block
}

func openTestStore(t *testing.T) *blockstore.Store {
	t.Helper()
	db, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := blockstore.NewStore(db, alwaysKnownTree{}, ulogger.TestLogger{}, blockstore.Config{}, false)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNewStoreRejectsWhenConsensusTipAlreadySet(t *testing.T) {
	db, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = blockstore.NewStore(db, alwaysKnownTree{}, ulogger.TestLogger{}, blockstore.Config{}, true)
	require.Error(t, err)
}

func TestAddToPendingServesImmediateReads(t *testing.T) {
	s := openTestStore(t)
	genesis := chainedBlock(t, nil, 1)

	require.NoError(t, s.AddToPending(genesis))

	got, err := s.GetBlock(genesis.ChainedHeader.Hash())
	require.NoError(t, err)
	require.Equal(t, genesis.ChainedHeader.Hash(), got.ChainedHeader.Hash())
}

func TestFlushPersistsBatchAndAdvancesTip(t *testing.T) {
	s := openTestStore(t)

	genesis := chainedBlock(t, nil, 1)
	next := chainedBlock(t, genesis.ChainedHeader, 2)

	require.NoError(t, s.AddToPending(genesis))
	require.NoError(t, s.AddToPending(next))

	require.NoError(t, s.Flush())

	require.Equal(t, next.ChainedHeader.Hash(), s.StoreTipHash())

	got, err := s.GetBlock(genesis.ChainedHeader.Hash())
	require.NoError(t, err)
	require.Equal(t, genesis.ChainedHeader.Hash(), got.ChainedHeader.Hash())
}

func TestFlushDropsNonChainingTailEntries(t *testing.T) {
	s := openTestStore(t)

	genesis := chainedBlock(t, nil, 1)
	orphanParent := chainedBlock(t, nil, 99)
	orphan := chainedBlock(t, orphanParent.ChainedHeader, 100)

	require.NoError(t, s.AddToPending(genesis))
	require.NoError(t, s.AddToPending(orphan))

	require.NoError(t, s.Flush())

	require.Equal(t, genesis.ChainedHeader.Hash(), s.StoreTipHash())

	_, err := s.GetBlock(orphan.ChainedHeader.Hash())
	require.Error(t, err)
}

// TestFlushCleansFullBatchNotJustTopmostPair exercises a batch where the
// topmost pair already chains but a break sits lower down (a stale fork left
// over below newly-delivered blocks): cleanBatch must keep scanning past the
// good top pair rather than stopping there (§4.2 "cleaned backwards from its
// highest block").
func TestFlushCleansFullBatchNotJustTopmostPair(t *testing.T) {
	s := openTestStore(t)

	trunkRoot := chainedBlock(t, nil, 1)
	staleParent := chainedBlock(t, nil, 50)
	staleChild := chainedBlock(t, staleParent.ChainedHeader, 51)
	topGood := chainedBlock(t, staleChild.ChainedHeader, 52)

	require.NoError(t, s.AddToPending(trunkRoot))
	require.NoError(t, s.AddToPending(staleChild))
	require.NoError(t, s.AddToPending(topGood))

	require.NoError(t, s.Flush())

	require.Equal(t, trunkRoot.ChainedHeader.Hash(), s.StoreTipHash())

	_, err := s.GetBlock(staleChild.ChainedHeader.Hash())
	require.Error(t, err, "staleChild doesn't chain to trunkRoot and must be dropped even though topGood chains to it")

	_, err = s.GetBlock(topGood.ChainedHeader.Hash())
	require.Error(t, err, "topGood must be dropped along with its unchained parent staleChild")
}

func TestTransactionIndexRequiresEnabling(t *testing.T) {
	db, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := blockstore.NewStore(db, alwaysKnownTree{}, ulogger.TestLogger{}, blockstore.Config{TxIndexEnabled: true}, false)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	genesis := chainedBlock(t, nil, 1)
	require.NoError(t, s.AddToPending(genesis))
	require.NoError(t, s.Flush())

	txID := *genesis.Transactions[0].TxIDChainHash()
	blockID, err := s.GetBlockIDByTransactionID(txID)
	require.NoError(t, err)
	require.Equal(t, genesis.ChainedHeader.Hash(), blockID)

	tx, _, err := s.GetTransactionByID(txID)
	require.NoError(t, err)
	require.Equal(t, txID, *tx.TxIDChainHash())
}
