package coinview_test

import (
	"testing"

	"github.com/bsv-blockchain/fullnode/coinview"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/stores/kv"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, genesis chainhash.Hash) *coinview.LevelDBStore {
	t.Helper()
	db, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := coinview.NewLevelDBStore(db, genesis)
	require.NoError(t, err)
	return s
}

func hashOf(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func TestNewLevelDBStoreInitializesTipToGenesis(t *testing.T) {
	genesis := hashOf(0x01)
	s := openTestStore(t, genesis)

	tip, err := s.GetTipHash()
	require.NoError(t, err)
	require.Equal(t, genesis, tip)
}

func TestFetchCoinsReportsNotFoundForUnknownTx(t *testing.T) {
	s := openTestStore(t, hashOf(0x01))

	txID := hashOf(0xaa)
	_, results, err := s.FetchCoins([]chainhash.Hash{txID})
	require.NoError(t, err)
	require.False(t, results[txID].Found)
}

func TestSaveChangesPersistsCoinsAndAdvancesTip(t *testing.T) {
	genesis := hashOf(0x01)
	s := openTestStore(t, genesis)

	txID := hashOf(0xbb)
	newTip := hashOf(0x02)

	modified := map[chainhash.Hash]map[uint32]model.Coin{
		txID: {0: {Value: 5000000000, Script: []byte{0x51}, Height: 1, IsCoinbase: true}},
	}

	rewind := &coinview.RewindRecord{}
	require.NoError(t, s.SaveChanges(modified, genesis, newTip, 1, rewind))

	tip, err := s.GetTipHash()
	require.NoError(t, err)
	require.Equal(t, newTip, tip)

	_, results, err := s.FetchCoins([]chainhash.Hash{txID})
	require.NoError(t, err)
	require.True(t, results[txID].Found)
	require.Equal(t, uint64(5000000000), results[txID].Coins[0].Value)
}

func TestSaveChangesRejectsStaleOldTip(t *testing.T) {
	genesis := hashOf(0x01)
	s := openTestStore(t, genesis)

	wrongOldTip := hashOf(0xff)
	err := s.SaveChanges(nil, wrongOldTip, hashOf(0x02), 1, nil)
	require.Error(t, err)
}

func TestSaveChangesDeletesFullySpentEntries(t *testing.T) {
	genesis := hashOf(0x01)
	s := openTestStore(t, genesis)

	txID := hashOf(0xcc)
	modified := map[chainhash.Hash]map[uint32]model.Coin{
		txID: {0: {Value: 100, Script: []byte{0x51}, Height: 1}},
	}
	require.NoError(t, s.SaveChanges(modified, genesis, hashOf(0x02), 1, nil))

	spendAll := map[chainhash.Hash]map[uint32]model.Coin{txID: {}}
	require.NoError(t, s.SaveChanges(spendAll, hashOf(0x02), hashOf(0x03), 2, nil))

	_, results, err := s.FetchCoins([]chainhash.Hash{txID})
	require.NoError(t, err)
	require.False(t, results[txID].Found)
}

func TestRewindUndoesOneBlockAndFallsBackToGenesis(t *testing.T) {
	genesis := hashOf(0x01)
	s := openTestStore(t, genesis)

	txID := hashOf(0xdd)
	newTip := hashOf(0x02)
	modified := map[chainhash.Hash]map[uint32]model.Coin{
		txID: {0: {Value: 100, Script: []byte{0x51}, Height: 1}},
	}

	rewind := &coinview.RewindRecord{
		RemovedTxIDs: []chainhash.Hash{txID},
	}
	require.NoError(t, s.SaveChanges(modified, genesis, newTip, 1, rewind))

	prev, err := s.Rewind()
	require.NoError(t, err)
	require.Equal(t, genesis, prev)

	tip, err := s.GetTipHash()
	require.NoError(t, err)
	require.Equal(t, genesis, tip)

	_, results, err := s.FetchCoins([]chainhash.Hash{txID})
	require.NoError(t, err)
	require.False(t, results[txID].Found)

	prev2, err := s.Rewind()
	require.NoError(t, err)
	require.Equal(t, genesis, prev2)
}

func TestRewindRestoresSpentCoins(t *testing.T) {
	genesis := hashOf(0x01)
	s := openTestStore(t, genesis)

	srcTx := hashOf(0xee)
	op := model.OutPoint{TxID: srcTx, Index: 0}
	coin := model.Coin{Value: 777, Script: []byte{0x52}, Height: 1}

	createModified := map[chainhash.Hash]map[uint32]model.Coin{srcTx: {0: coin}}
	require.NoError(t, s.SaveChanges(createModified, genesis, hashOf(0x02), 1, nil))

	spendTx := hashOf(0xff)
	spendModified := map[chainhash.Hash]map[uint32]model.Coin{
		srcTx: {},
	}
	rewind := &coinview.RewindRecord{
		RemovedTxIDs:  []chainhash.Hash{spendTx},
		RestoredCoins: []coinview.RestoredCoin{{OutPoint: op, Coin: coin}},
	}
	require.NoError(t, s.SaveChanges(spendModified, hashOf(0x02), hashOf(0x03), 2, rewind))

	_, err := s.Rewind()
	require.NoError(t, err)

	_, results, err := s.FetchCoins([]chainhash.Hash{srcTx})
	require.NoError(t, err)
	require.True(t, results[srcTx].Found)
	require.Equal(t, coin.Value, results[srcTx].Coins[0].Value)
}

func TestRewindIndexTracksAndPrunesEntries(t *testing.T) {
	idx := coinview.NewRewindIndex(100)

	op1 := model.OutPoint{TxID: hashOf(0x01), Index: 0}
	op2 := model.OutPoint{TxID: hashOf(0x02), Index: 0}

	idx.Add(op1, 10)
	idx.Add(op2, 20)

	h, ok := idx.EarliestRestoreHeight(op1)
	require.True(t, ok)
	require.Equal(t, uint32(10), h)

	idx.RemoveAbove(15)

	_, ok = idx.EarliestRestoreHeight(op1)
	require.True(t, ok)
	_, ok = idx.EarliestRestoreHeight(op2)
	require.False(t, ok)
}
