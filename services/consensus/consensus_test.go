package consensus_test

import (
	"testing"

	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/services/consensus"
	"github.com/bsv-blockchain/fullnode/services/eventbus"
	"github.com/bsv-blockchain/fullnode/services/puller"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/libsv/go-bt/v2"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

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

type fakeStore struct {
	blocks map[chainhash.Hash]*model.Block
	tip    chainhash.Hash
}

func newFakeStore() *fakeStore {
	return &fakeStore{blocks: map[chainhash.Hash]*model.Block{}}
}

func (s *fakeStore) add(b *model.Block) {
	s.blocks[b.ChainedHeader.Hash()] = b
}

func (s *fakeStore) setTip(hash chainhash.Hash) { s.tip = hash }

func (s *fakeStore) StoreTipHash() chainhash.Hash { return s.tip }

func (s *fakeStore) GetBlock(hash chainhash.Hash) (*model.Block, error) {
	b, ok := s.blocks[hash]
	if !ok {
		return nil, &notFoundErr{}
	}
	return b, nil
}

type notFoundErr struct{}

func (e *notFoundErr) Error() string { return "block not found" }

type fakePuller struct {
	consensusTips []uint32
	ibdStates     []bool
}

func (p *fakePuller) SetConsensusTip(height uint32) { p.consensusTips = append(p.consensusTips, height) }
func (p *fakePuller) IBDStateChanged(isIBD bool)    { p.ibdStates = append(p.ibdStates, isIBD) }

func coinbaseTx(t *testing.T) *bt.Tx {
	t.Helper()
	const coinbaseHex = "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff0151ffffffff0100f2052a010000001976a914000000000000000000000000000000000000000088ac00000000"
	tx, err := bt.NewTxFromString(coinbaseHex)
	require.NoError(t, err)
	return tx
}

func chainOf(t *testing.T, n int) ([]*model.ChainedHeader, []*model.Block) {
	t.Helper()
	var headers []*model.ChainedHeader
	var blocks []*model.Block

	var parent *model.ChainedHeader
	for i := 0; i < n; i++ {
		h := &wire.BlockHeader{Version: 1, Bits: 0x1d00ffff, Nonce: uint32(i)}
		if parent != nil {
			h.PrevBlock = parent.Hash()
		}
		ch, err := model.NewChainedHeader(h, parent)
		require.NoError(t, err)
		block, err := model.NewBlock(ch, []*bt.Tx{coinbaseTx(t)})
		require.NoError(t, err)

		headers = append(headers, ch)
		blocks = append(blocks, block)
		parent = ch
	}
	return headers, blocks
}

func TestStepPublishesGenesisConnect(t *testing.T) {
	headers := newFakeHeaders()
	store := newFakeStore()
	bus := eventbus.New(ulogger.TestLogger{})
	sub := bus.Subscribe(eventbus.BlockConnected)
	tipSub := bus.Subscribe(eventbus.TipChanged)

	chain, blocks := chainOf(t, 1)
	headers.add(chain[0])
	store.add(blocks[0])
	store.setTip(chain[0].Hash())

	pd := &fakePuller{}
	c := consensus.New(headers, store, bus, pd, nil, ulogger.TestLogger{}, consensus.Config{})

	require.NoError(t, c.Step())

	select {
	case ev := <-sub:
		require.Equal(t, chain[0].Hash(), ev.Hash)
	default:
		t.Fatal("expected a BlockConnected event")
	}
	select {
	case ev := <-tipSub:
		require.Equal(t, chain[0].Hash(), ev.Hash)
	default:
		t.Fatal("expected a TipChanged event")
	}

	require.Equal(t, []uint32{0}, pd.consensusTips)

	hash, height, ok := c.Tip()
	require.True(t, ok)
	require.Equal(t, chain[0].Hash(), hash)
	require.Equal(t, uint32(0), height)
}

func TestStepIsNoOpWhenTipUnchanged(t *testing.T) {
	headers := newFakeHeaders()
	store := newFakeStore()
	bus := eventbus.New(ulogger.TestLogger{})
	sub := bus.Subscribe(eventbus.BlockConnected)

	chain, blocks := chainOf(t, 1)
	headers.add(chain[0])
	store.add(blocks[0])
	store.setTip(chain[0].Hash())

	c := consensus.New(headers, store, bus, &fakePuller{}, nil, ulogger.TestLogger{}, consensus.Config{})
	require.NoError(t, c.Step())
	<-sub // drain the first connect event

	require.NoError(t, c.Step())

	select {
	case <-sub:
		t.Fatal("did not expect a second BlockConnected event")
	default:
	}
}

func TestStepPublishesReorg(t *testing.T) {
	headers := newFakeHeaders()
	store := newFakeStore()
	bus := eventbus.New(ulogger.TestLogger{})
	connected := bus.Subscribe(eventbus.BlockConnected)
	disconnected := bus.Subscribe(eventbus.BlockDisconnected)

	chainA, blocksA := chainOf(t, 2)
	for i := range chainA {
		headers.add(chainA[i])
		store.add(blocksA[i])
	}
	store.setTip(chainA[0].Hash())

	c := consensus.New(headers, store, bus, &fakePuller{}, nil, ulogger.TestLogger{}, consensus.Config{})
	require.NoError(t, c.Step())
	<-connected // genesis

	store.setTip(chainA[1].Hash())
	require.NoError(t, c.Step())
	<-connected // chainA height 1

	// Build a competing sibling of chainA[1] off genesis. It carries the same
	// work, but the coordinator follows the block store's tip rather than
	// header work, so moving the store tip to it forces the reorg.
	forkHeader := &wire.BlockHeader{Version: 1, Bits: 0x1d00ffff, Nonce: 999, PrevBlock: chainA[0].Hash()}
	forkCh, err := model.NewChainedHeader(forkHeader, chainA[0])
	require.NoError(t, err)
	forkBlock, err := model.NewBlock(forkCh, []*bt.Tx{coinbaseTx(t)})
	require.NoError(t, err)
	headers.add(forkCh)
	store.add(forkBlock)
	store.setTip(forkCh.Hash())

	require.NoError(t, c.Step())

	select {
	case ev := <-disconnected:
		require.Equal(t, chainA[1].Hash(), ev.Hash)
	default:
		t.Fatal("expected a BlockDisconnected event for the rolled-back block")
	}
	select {
	case ev := <-connected:
		require.Equal(t, forkCh.Hash(), ev.Hash)
	default:
		t.Fatal("expected a BlockConnected event for the new branch tip")
	}
}

func TestIBDStateTransitions(t *testing.T) {
	headers := newFakeHeaders()
	store := newFakeStore()

	chain, blocks := chainOf(t, 1)
	headers.add(chain[0])
	store.add(blocks[0])
	store.setTip(chain[0].Hash())

	pd := &fakePuller{}
	c := consensus.New(headers, store, nil, pd, nil, ulogger.TestLogger{}, consensus.Config{IBDCatchUpMargin: 0})
	require.True(t, c.IsIBD())

	c.PeerTipClaimed(puller.PeerID("peer-1"), 0)
	require.NoError(t, c.Step())
	require.False(t, c.IsIBD())
	require.Equal(t, []bool{false}, pd.ibdStates)

	c.PeerTipClaimed(puller.PeerID("peer-1"), 50)
	require.NoError(t, c.Step())
	require.True(t, c.IsIBD())
	require.Equal(t, []bool{false, true}, pd.ibdStates)

	c.PeerDisconnected(puller.PeerID("peer-1"))
	require.NoError(t, c.Step())
	require.True(t, c.IsIBD(), "no peers claimed means IBD state holds, not flips blind")
}
