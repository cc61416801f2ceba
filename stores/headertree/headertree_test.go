package headertree_test

import (
	"testing"

	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/stores/headertree"
	"github.com/bsv-blockchain/fullnode/stores/kv"
	"github.com/stretchr/testify/require"
)

func openTestTree(t *testing.T) (*headertree.Tree, *kv.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := kv.Open(dir)
	require.NoError(t, err)

	tree, err := headertree.Open(db, &wire.BlockHeader{Version: 1, Bits: 0x1d00ffff})
	require.NoError(t, err)
	return tree, db, dir
}

func TestOpenSeedsGenesisWhenEmpty(t *testing.T) {
	tree, db, _ := openTestTree(t)
	defer db.Close()

	require.NotNil(t, tree.Genesis())
	require.Equal(t, uint32(0), tree.Genesis().Height)
	require.True(t, tree.Contains(tree.Genesis().Hash()))
}

func TestAddLinksToParentAndUpdatesBest(t *testing.T) {
	tree, db, _ := openTestTree(t)
	defer db.Close()

	genesis := tree.Genesis()
	child, err := tree.Add(&wire.BlockHeader{Version: 1, PrevBlock: genesis.Hash(), Bits: 0x1d00ffff, Nonce: 1})
	require.NoError(t, err)

	require.Equal(t, uint32(1), child.Height)
	require.Equal(t, child.Hash(), tree.Best().Hash())
}

func TestAddRejectsUnknownParent(t *testing.T) {
	tree, db, _ := openTestTree(t)
	defer db.Close()

	_, err := tree.Add(&wire.BlockHeader{Version: 1, Bits: 0x1d00ffff, Nonce: 99})
	require.Error(t, err)
}

func TestOpenReloadsPersistedTreeFromDisk(t *testing.T) {
	dir := t.TempDir()
	db, err := kv.Open(dir)
	require.NoError(t, err)

	tree, err := headertree.Open(db, &wire.BlockHeader{Version: 1, Bits: 0x1d00ffff})
	require.NoError(t, err)
	genesis := tree.Genesis()

	child, err := tree.Add(&wire.BlockHeader{Version: 1, PrevBlock: genesis.Hash(), Bits: 0x1d00ffff, Nonce: 7})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := kv.Open(dir)
	require.NoError(t, err)
	defer db2.Close()

	reloaded, err := headertree.Open(db2, &wire.BlockHeader{Version: 1, Bits: 0x1d00ffff})
	require.NoError(t, err)

	require.True(t, reloaded.Contains(child.Hash()))
	require.Equal(t, child.Hash(), reloaded.Best().Hash())
}
