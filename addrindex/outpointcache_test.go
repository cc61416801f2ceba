package addrindex

import (
	"testing"

	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/stores/kv"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	db, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewKVRepository(db)
}

func TestOutPointCacheGetFallsBackToRepo(t *testing.T) {
	repo := newTestRepo(t)
	op := model.OutPoint{TxID: chainhash.Hash{1}, Index: 0}
	require.NoError(t, repo.PutOutPoint(op, []byte("script"), 42))

	cache := newOutPointCache(repo, 16)
	defer cache.stop()

	script, amount, ok := cache.get(op)
	require.True(t, ok)
	require.Equal(t, []byte("script"), script)
	require.Equal(t, uint64(42), amount)
}

func TestOutPointCacheRemoveThenGetMisses(t *testing.T) {
	repo := newTestRepo(t)
	cache := newOutPointCache(repo, 16)
	defer cache.stop()

	op := model.OutPoint{TxID: chainhash.Hash{2}, Index: 1}
	cache.add(op, []byte("script"), 7)

	_, _, ok := cache.get(op)
	require.True(t, ok)

	cache.remove(op)

	_, _, ok = cache.get(op)
	require.False(t, ok)
}

func TestOutPointCacheRestoreAfterRemove(t *testing.T) {
	repo := newTestRepo(t)
	cache := newOutPointCache(repo, 16)
	defer cache.stop()

	op := model.OutPoint{TxID: chainhash.Hash{3}, Index: 0}
	cache.add(op, []byte("script"), 99)
	cache.remove(op)

	cache.restore(op, []byte("script"), 99)

	script, amount, ok := cache.get(op)
	require.True(t, ok)
	require.Equal(t, []byte("script"), script)
	require.Equal(t, uint64(99), amount)
}
