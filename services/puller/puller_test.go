package puller_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/services/puller"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/libsv/go-bt/v2"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

type fakeRequester struct {
	mu       sync.Mutex
	requests map[puller.PeerID][]chainhash.Hash
	fail     map[puller.PeerID]bool
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{requests: map[puller.PeerID][]chainhash.Hash{}, fail: map[puller.PeerID]bool{}}
}

func (f *fakeRequester) RequestBlocks(peer puller.PeerID, hashes []chainhash.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[peer] = append(f.requests[peer], hashes...)
	if f.fail[peer] {
		return errors.New("simulated request failure")
	}
	return nil
}

func genesisChain(t *testing.T, n int) []*model.ChainedHeader {
	t.Helper()
	headers := make([]*model.ChainedHeader, 0, n)
	var parent *model.ChainedHeader
	for i := 0; i < n; i++ {
		h := &wire.BlockHeader{Version: 1, Bits: 0x1d00ffff, Nonce: uint32(i + 1)}
		if parent != nil {
			h.PrevBlock = parent.Hash()
		}
		ch, err := model.NewChainedHeader(h, parent)
		require.NoError(t, err)
		headers = append(headers, ch)
		parent = ch
	}
	return headers
}

func coinbaseTx(t *testing.T) *bt.Tx {
	t.Helper()
	const coinbaseHex = "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff0151ffffffff0100f2052a010000001976a914000000000000000000000000000000000000000088ac00000000"
	tx, err := bt.NewTxFromString(coinbaseHex)
	require.NoError(t, err)
	return tx
}

func TestRequestDownloadFailsHeadersWithNoEligiblePeer(t *testing.T) {
	req := newFakeRequester()
	p := puller.New(puller.Config{StallCheckInterval: time.Hour}, req, ulogger.TestLogger{})
	defer p.Stop()

	chain := genesisChain(t, 2)

	var mu sync.Mutex
	var failedHashes []chainhash.Hash
	done := make(chan struct{}, 2)

	p.RequestDownload(chain, puller.PriorityNormal, func(hash chainhash.Hash, block *model.Block, peer puller.PeerID) {
		mu.Lock()
		if block == nil {
			failedHashes = append(failedHashes, hash)
		}
		mu.Unlock()
		done <- struct{}{}
	})

	for i := 0; i < 2; i++ {
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failedHashes, 2)
}

func TestPeerTipClaimedEnablesAssignmentAndDelivery(t *testing.T) {
	req := newFakeRequester()
	p := puller.New(puller.Config{StallCheckInterval: time.Hour}, req, ulogger.TestLogger{})
	defer p.Stop()

	chain := genesisChain(t, 1)
	p.PeerTipClaimed("peer-1", chain[0])

	results := make(chan chainhash.Hash, 1)
	p.RequestDownload(chain, puller.PriorityNormal, func(hash chainhash.Hash, block *model.Block, peer puller.PeerID) {
		results <- hash
	})

	time.Sleep(20 * time.Millisecond)

	req.mu.Lock()
	hashes := req.requests["peer-1"]
	req.mu.Unlock()
	require.Len(t, hashes, 1)

	block, err := model.NewBlock(chain[0], []*bt.Tx{coinbaseTx(t)})
	require.NoError(t, err)

	p.PushBlock(chain[0].Hash(), block, "peer-1")
	select {
	case h := <-results:
		require.Equal(t, chain[0].Hash(), h)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestPushBlockDropsDeliveryFromWrongPeer(t *testing.T) {
	req := newFakeRequester()
	p := puller.New(puller.Config{StallCheckInterval: time.Hour}, req, ulogger.TestLogger{})
	defer p.Stop()

	chain := genesisChain(t, 1)
	p.PeerTipClaimed("peer-1", chain[0])

	called := false
	p.RequestDownload(chain, puller.PriorityNormal, func(hash chainhash.Hash, block *model.Block, peer puller.PeerID) {
		called = true
	})

	time.Sleep(10 * time.Millisecond)

	block, err := model.NewBlock(chain[0], []*bt.Tx{coinbaseTx(t)})
	require.NoError(t, err)

	p.PushBlock(chain[0].Hash(), block, "peer-2")

	time.Sleep(10 * time.Millisecond)
	require.False(t, called)
}

func TestPeerDisconnectedReleasesAssignments(t *testing.T) {
	req := newFakeRequester()
	p := puller.New(puller.Config{StallCheckInterval: time.Hour}, req, ulogger.TestLogger{})
	defer p.Stop()

	chain := genesisChain(t, 1)
	p.PeerTipClaimed("peer-1", chain[0])

	p.RequestDownload(chain, puller.PriorityNormal, func(hash chainhash.Hash, block *model.Block, peer puller.PeerID) {})
	time.Sleep(10 * time.Millisecond)

	p.PeerDisconnected("peer-1")

	// With peer-1 gone and no other eligible peer, a fresh request for the
	// same header should fail immediately rather than hang as "assigned".
	done := make(chan bool, 1)
	p.RequestDownload(chain, puller.PriorityReassigned, func(hash chainhash.Hash, block *model.Block, peer puller.PeerID) {
		done <- block == nil
	})

	select {
	case failed := <-done:
		require.True(t, failed)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked after peer disconnect")
	}
}
