// Package headertree maintains the in-memory tree of chained headers (§3):
// every header ever gossiped, linked to its parent, with every leaf a
// candidate chain tip. Grounded on the teacher's stores/blockchain in-memory
// best-header bookkeeping, persisted to the shared goleveldb engine's
// Headers namespace so the tree survives restarts.
package headertree

import (
	"math/big"
	"sync"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/stores/kv"
	"github.com/libsv/go-bt/v2/chainhash"
)

// Tree is the node-wide header tree. It satisfies blockstore.HeaderTree.
type Tree struct {
	mu      sync.RWMutex
	store   *kv.Store
	nodes   map[chainhash.Hash]*model.ChainedHeader
	tips    map[chainhash.Hash]struct{}
	best    *model.ChainedHeader
	genesis *model.ChainedHeader
}

// Open loads every persisted header from db's Headers namespace and
// reconstructs the in-memory tree, or seeds it with genesisHeader if the
// namespace is empty.
func Open(db *kv.DB, genesisHeader *wire.BlockHeader) (*Tree, error) {
	t := &Tree{
		store: db.Namespaced(kv.NamespaceHeaders),
		nodes: map[chainhash.Hash]*model.ChainedHeader{},
		tips:  map[chainhash.Hash]struct{}{},
	}

	type rawEntry struct {
		header    *wire.BlockHeader
		height    uint32
		chainWork *big.Int
	}
	pending := map[chainhash.Hash]rawEntry{}

	var iterErr error
	err := t.store.Iterate(nil, func(key, value []byte) bool {
		var hash chainhash.Hash
		copy(hash[:], key)
		header, height, work, decErr := decodeHeaderRecord(value)
		if decErr != nil {
			iterErr = decErr
			return false
		}
		pending[hash] = rawEntry{header: header, height: height, chainWork: work}
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}

	if len(pending) == 0 {
		genesis, gerr := model.NewChainedHeader(genesisHeader, nil)
		if gerr != nil {
			return nil, gerr
		}
		t.genesis = genesis
		t.insertLocked(genesis)
		if err := t.persist(genesis); err != nil {
			return nil, err
		}
		return t, nil
	}

	remaining := len(pending)
	for remaining > 0 {
		progressed := false
		for hash, entry := range pending {
			var parent *model.ChainedHeader
			if entry.header.PrevBlock != (chainhash.Hash{}) {
				p, ok := t.nodes[entry.header.PrevBlock]
				if !ok {
					continue
				}
				parent = p
			}
			ch := model.NewChainedHeaderFromRecord(entry.header, parent, entry.height, entry.chainWork)
			t.insertLocked(ch)
			if parent == nil {
				t.genesis = ch
			}
			delete(pending, hash)
			progressed = true
		}
		if !progressed {
			return nil, errors.NewStorageError("header tree: %d persisted headers have no resolvable parent chain", remaining)
		}
		remaining = len(pending)
	}

	return t, nil
}

func (t *Tree) insertLocked(ch *model.ChainedHeader) {
	hash := ch.Hash()
	t.nodes[hash] = ch
	delete(t.tips, ch.Header.PrevBlock)
	t.tips[hash] = struct{}{}

	if t.best == nil || ch.ChainWork.Cmp(t.best.ChainWork) > 0 {
		t.best = ch
	}
}

func (t *Tree) persist(ch *model.ChainedHeader) error {
	hash := ch.Hash()
	return t.store.Put(hash[:], encodeHeaderRecord(ch))
}

// Add links header to its known parent and inserts it into the tree,
// enforcing §3's chained-header invariants via model.NewChainedHeader.
func (t *Tree) Add(header *wire.BlockHeader) (*model.ChainedHeader, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.nodes[header.BlockHash()]; ok {
		return existing, nil
	}

	parent, ok := t.nodes[header.PrevBlock]
	if !ok {
		return nil, errors.NewNotFoundError("header tree: parent %s not known", header.PrevBlock)
	}

	ch, err := model.NewChainedHeader(header, parent)
	if err != nil {
		return nil, err
	}

	t.insertLocked(ch)
	if err := t.persist(ch); err != nil {
		return nil, err
	}

	return ch, nil
}

// Contains reports whether hash is a known chained header, satisfying
// blockstore.HeaderTree.
func (t *Tree) Contains(hash chainhash.Hash) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.nodes[hash]
	return ok
}

// Get returns the chained header for hash, if known.
func (t *Tree) Get(hash chainhash.Hash) (*model.ChainedHeader, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ch, ok := t.nodes[hash]
	return ch, ok
}

// Best returns the tip with the greatest cumulative chain work.
func (t *Tree) Best() *model.ChainedHeader {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.best
}

// Genesis returns the tree's root.
func (t *Tree) Genesis() *model.ChainedHeader {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.genesis
}

// Tips returns every current candidate chain tip (leaves of the tree).
func (t *Tree) Tips() []*model.ChainedHeader {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*model.ChainedHeader, 0, len(t.tips))
	for hash := range t.tips {
		out = append(out, t.nodes[hash])
	}
	return out
}
