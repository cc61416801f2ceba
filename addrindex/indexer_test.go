package addrindex_test

import (
	"testing"

	"github.com/bsv-blockchain/fullnode/addrindex"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/stores/kv"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/libsv/go-bt/v2"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

// genesisScript is the P2PKH locking script baked into the coinbase hex also
// used by model/block_test.go: OP_DUP OP_HASH160 <20 zero bytes>
// OP_EQUALVERIFY OP_CHECKSIG. Kept as a fixed byte literal rather than
// assembled through bt.Output, whose struct-literal field shape has no
// grounded call site anywhere in the retrieval pack.
var genesisScript = []byte{
	0x76, 0xa9, 0x14,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0x88, 0xac,
}

const genesisAddress = "genesis-address"

type fakeHeaders struct {
	nodes map[chainhash.Hash]*model.ChainedHeader
	best  *model.ChainedHeader
}

func newFakeHeaders() *fakeHeaders {
	return &fakeHeaders{nodes: map[chainhash.Hash]*model.ChainedHeader{}}
}

func (f *fakeHeaders) add(ch *model.ChainedHeader) {
	f.nodes[ch.Hash()] = ch
	if f.best == nil || ch.ChainWork.Cmp(f.best.ChainWork) > 0 {
		f.best = ch
	}
}

func (f *fakeHeaders) Get(hash chainhash.Hash) (*model.ChainedHeader, bool) {
	ch, ok := f.nodes[hash]
	return ch, ok
}

func (f *fakeHeaders) Best() *model.ChainedHeader { return f.best }

type fakeBlocks struct {
	blocks map[chainhash.Hash]*model.Block
}

func newFakeBlocks() *fakeBlocks {
	return &fakeBlocks{blocks: map[chainhash.Hash]*model.Block{}}
}

func (f *fakeBlocks) add(b *model.Block) {
	f.blocks[b.ChainedHeader.Hash()] = b
}

func (f *fakeBlocks) GetBlock(hash chainhash.Hash) (*model.Block, error) {
	b, ok := f.blocks[hash]
	if !ok {
		return nil, &notFoundErr{}
	}
	return b, nil
}

type notFoundErr struct{}

func (e *notFoundErr) Error() string { return "block not found" }

// fakeResolver maps a locking script directly to an address string,
// decoupling these tests from bitcoin-sv/go-sdk's actual P2PKH derivation.
type fakeResolver struct {
	byScript map[string]string
}

func (r fakeResolver) ResolveAddress(script []byte) (string, bool) {
	addr, ok := r.byScript[string(script)]
	return addr, ok
}

func newTestResolver() fakeResolver {
	return fakeResolver{byScript: map[string]string{string(genesisScript): genesisAddress}}
}

func coinbaseTx(t *testing.T) *bt.Tx {
	t.Helper()
	const coinbaseHex = "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff0151ffffffff0100f2052a010000001976a914000000000000000000000000000000000000000088ac00000000"
	tx, err := bt.NewTxFromString(coinbaseHex)
	require.NoError(t, err)
	return tx
}

func genesisChain(t *testing.T) (*model.ChainedHeader, *model.Block) {
	t.Helper()
	header := &wire.BlockHeader{Version: 1, Bits: 0x1d00ffff}
	ch, err := model.NewChainedHeader(header, nil)
	require.NoError(t, err)

	block, err := model.NewBlock(ch, []*bt.Tx{coinbaseTx(t)})
	require.NoError(t, err)
	return ch, block
}

func openTestIndexer(t *testing.T) (*addrindex.Indexer, *fakeHeaders, *fakeBlocks) {
	t.Helper()
	dir := t.TempDir()
	db, err := kv.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := addrindex.NewKVRepository(db)
	headers := newFakeHeaders()
	blocks := newFakeBlocks()

	idx, err := addrindex.New(headers, blocks, repo, newTestResolver(), ulogger.TestLogger{}, addrindex.Config{
		MaxSyncDistance:           100,
		CompactionTriggerDistance: 1,
	})
	require.NoError(t, err)

	return idx, headers, blocks
}

func TestStepIsNoOpWithoutHeaders(t *testing.T) {
	idx, _, _ := openTestIndexer(t)
	advanced, err := idx.Step()
	require.NoError(t, err)
	require.False(t, advanced)
}

func TestGetAddressBalancesRejectsWhenNotSynced(t *testing.T) {
	idx, _, _ := openTestIndexer(t)
	_, err := idx.GetAddressBalances([]string{genesisAddress}, 0)
	require.Error(t, err)
}

func TestStepConnectsGenesisAndCreditsBalance(t *testing.T) {
	idx, headers, blocks := openTestIndexer(t)

	genesisHeader, genesisBlk := genesisChain(t)
	headers.add(genesisHeader)
	blocks.add(genesisBlk)

	advanced, err := idx.Step()
	require.NoError(t, err)
	require.True(t, advanced)

	balances, err := idx.GetAddressBalances([]string{genesisAddress}, 0)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.Equal(t, genesisAddress, balances[0].Address)
	require.Equal(t, int64(5000000000), balances[0].Balance)

	state, err := idx.GetAddressIndexerState(nil)
	require.NoError(t, err)
	require.Equal(t, uint32(0), state.TipHeight)
	require.Equal(t, uint32(0), state.SyncedDistance)

	advanced, err = idx.Step()
	require.NoError(t, err)
	require.False(t, advanced, "already at consensus tip, nothing more to do")
}

func TestGetAddressBalancesUnknownAddressIsZero(t *testing.T) {
	idx, headers, blocks := openTestIndexer(t)

	genesisHeader, genesisBlk := genesisChain(t)
	headers.add(genesisHeader)
	blocks.add(genesisBlk)

	_, err := idx.Step()
	require.NoError(t, err)

	balances, err := idx.GetAddressBalances([]string{"nobody"}, 0)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.Equal(t, int64(0), balances[0].Balance)
}
