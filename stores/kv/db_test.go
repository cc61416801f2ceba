package kv_test

import (
	"testing"

	"github.com/bsv-blockchain/fullnode/stores/kv"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *kv.DB {
	t.Helper()
	db, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStorePutGetDelete(t *testing.T) {
	db := openTestDB(t)
	store := db.Namespaced(kv.NamespaceHeaders)

	require.NoError(t, store.Put([]byte("a"), []byte("1")))

	v, err := store.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	ok, err := store.Has([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Delete([]byte("a")))

	_, err = store.Get([]byte("a"))
	require.Error(t, err)
}

func TestNamespacesDoNotCollide(t *testing.T) {
	db := openTestDB(t)
	headers := db.Namespaced(kv.NamespaceHeaders)
	blocks := db.Namespaced(kv.NamespaceBlocks)

	require.NoError(t, headers.Put([]byte("k"), []byte("header-value")))
	require.NoError(t, blocks.Put([]byte("k"), []byte("block-value")))

	v, err := headers.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("header-value"), v)

	v, err = blocks.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("block-value"), v)
}

func TestBatchCommitsAtomically(t *testing.T) {
	db := openTestDB(t)
	store := db.Namespaced(kv.NamespaceCoinview)

	b := store.NewBatch()
	b.Put([]byte("x"), []byte("1"))
	b.Put([]byte("y"), []byte("2"))
	require.Equal(t, 2, b.Len())

	require.NoError(t, store.Write(b))

	v, err := store.Get([]byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestIteratePrefix(t *testing.T) {
	db := openTestDB(t)
	store := db.Namespaced(kv.NamespaceAddrIndex)

	require.NoError(t, store.Put([]byte("addr:1"), []byte("a")))
	require.NoError(t, store.Put([]byte("addr:2"), []byte("b")))
	require.NoError(t, store.Put([]byte("other:1"), []byte("c")))

	var got []string
	err := store.Iterate([]byte("addr:"), func(key, value []byte) bool {
		got = append(got, string(key))
		return true
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"addr:1", "addr:2"}, got)
}
