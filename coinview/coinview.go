// Package coinview implements the node's unspent-output set (§3 "Coinview")
// and its rewind log, grounded on the teacher's stores/utxo package family
// (Spend/Response shapes, optimistic-concurrency save pattern) but
// generalized from "one record per output" to the distilled spec's "coin
// array per transaction-id" representation.
package coinview

import (
	"sort"
	"sync"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/stores/kv"
	"github.com/dolthub/swiss"
	"github.com/libsv/go-bt/v2/chainhash"
)

// RestoredCoin pairs an out-point with the coin a rewind record must put
// back when it is applied.
type RestoredCoin struct {
	OutPoint model.OutPoint
	Coin     model.Coin
}

// RewindRecord undoes exactly one block's worth of coinview state (§3).
type RewindRecord struct {
	Sequence      uint64
	Height        uint32
	PrevTip       chainhash.Hash
	RemovedTxIDs  []chainhash.Hash
	RestoredCoins []RestoredCoin
}

// FetchResult is fetch_coins' per-transaction answer: the coin array
// indexed by output index, or absent if the transaction-id isn't known to
// the set.
type FetchResult struct {
	Coins map[uint32]model.Coin
	Found bool
}

// Store is the Coinview & Rewind contract from §4.3.
type Store interface {
	GetTipHash() (chainhash.Hash, error)
	FetchCoins(txIDs []chainhash.Hash) (tip chainhash.Hash, results map[chainhash.Hash]FetchResult, err error)
	SaveChanges(modified map[chainhash.Hash]map[uint32]model.Coin, oldTip, newTip chainhash.Hash, height uint32, rewind *RewindRecord) error
	Rewind() (previousTip chainhash.Hash, err error)
}

var tipKey = []byte("tip")

// LevelDBStore is the default Coinview backend: one goleveldb namespace
// holding tx-id -> coin-array, sequence -> rewind record, and a singleton
// tip-hash key, per §6.
type LevelDBStore struct {
	mu          sync.Mutex
	store       *kv.Store
	genesisHash chainhash.Hash
	nextSeq     uint64
}

// NewLevelDBStore opens a Coinview backed by the shared database's
// Coinview namespace. genesisHash is the tip Rewind resets to once every
// rewind record has been consumed.
func NewLevelDBStore(db *kv.DB, genesisHash chainhash.Hash) (*LevelDBStore, error) {
	s := &LevelDBStore{store: db.Namespaced(kv.NamespaceCoinview), genesisHash: genesisHash}

	seq, err := s.loadNextSequence()
	if err != nil {
		return nil, err
	}
	s.nextSeq = seq

	if _, err := s.GetTipHash(); errors.Is(err, errors.NewNotFoundError("")) {
		if putErr := s.store.Put(tipKey, genesisHash[:]); putErr != nil {
			return nil, putErr
		}
	}

	return s, nil
}

func (s *LevelDBStore) loadNextSequence() (uint64, error) {
	var maxSeq uint64
	err := s.store.Iterate(rewindKeyPrefix, func(key, _ []byte) bool {
		seq := decodeRewindSeq(key)
		if seq >= maxSeq {
			maxSeq = seq + 1
		}
		return true
	})
	return maxSeq, err
}

// GetTipHash returns the hash of the block the set is currently consistent
// with.
func (s *LevelDBStore) GetTipHash() (chainhash.Hash, error) {
	v, err := s.store.Get(tipKey)
	if err != nil {
		return chainhash.Hash{}, err
	}
	var h chainhash.Hash
	copy(h[:], v)
	return h, nil
}

// FetchCoins answers fetch_coins for a batch of transaction-ids in one call.
func (s *LevelDBStore) FetchCoins(txIDs []chainhash.Hash) (chainhash.Hash, map[chainhash.Hash]FetchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, err := s.GetTipHash()
	if err != nil {
		return chainhash.Hash{}, nil, err
	}

	results := make(map[chainhash.Hash]FetchResult, len(txIDs))
	for _, txID := range txIDs {
		raw, err := s.store.Get(txID[:])
		if errors.Is(err, errors.NewNotFoundError("")) {
			results[txID] = FetchResult{Found: false}
			continue
		}
		if err != nil {
			return chainhash.Hash{}, nil, err
		}

		coins, err := decodeCoinArray(raw)
		if err != nil {
			return chainhash.Hash{}, nil, err
		}
		results[txID] = FetchResult{Coins: coins, Found: true}
	}

	return tip, results, nil
}

// SaveChanges applies one block's worth of coinview mutation under
// optimistic concurrency (§4.3 "Save protocol").
func (s *LevelDBStore) SaveChanges(modified map[chainhash.Hash]map[uint32]model.Coin, oldTip, newTip chainhash.Hash, height uint32, rewind *RewindRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentTip, err := s.GetTipHash()
	if err != nil {
		return err
	}
	if currentTip != oldTip {
		return errors.NewConsensusInvariantError("save_changes: old tip %s does not match persisted tip %s", oldTip, currentTip)
	}

	txIDs := make([]chainhash.Hash, 0, len(modified))
	for txID := range modified {
		txIDs = append(txIDs, txID)
	}
	sort.Slice(txIDs, func(i, j int) bool {
		return chainhash.Hash.String(txIDs[i]) < chainhash.Hash.String(txIDs[j])
	})

	batch := s.store.NewBatch()

	for _, txID := range txIDs {
		coins := modified[txID]
		if len(coins) == 0 {
			batch.Delete(txID[:])
			continue
		}
		batch.Put(txID[:], encodeCoinArray(coins))
	}

	if rewind != nil {
		rewind.Sequence = s.nextSeq
		rewind.Height = height
		rewind.PrevTip = oldTip
		batch.Put(rewindKey(rewind.Sequence), encodeRewindRecord(rewind))
		s.nextSeq++
	}

	batch.Put(tipKey, newTip[:])

	return s.store.Write(batch)
}

// Rewind undoes exactly one block's worth of coinview state (§4.3 "Rewind
// protocol"), returning the tip's new (previous) value.
func (s *LevelDBStore) Rewind() (chainhash.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextSeq == 0 {
		if err := s.store.Put(tipKey, s.genesisHash[:]); err != nil {
			return chainhash.Hash{}, err
		}
		return s.genesisHash, nil
	}

	seq := s.nextSeq - 1
	raw, err := s.store.Get(rewindKey(seq))
	if err != nil {
		return chainhash.Hash{}, err
	}

	record, err := decodeRewindRecord(raw)
	if err != nil {
		return chainhash.Hash{}, err
	}

	batch := s.store.NewBatch()
	batch.Delete(rewindKey(seq))

	removed := make(map[chainhash.Hash]map[uint32]model.Coin, len(record.RestoredCoins))
	for _, rc := range record.RestoredCoins {
		if _, ok := removed[rc.OutPoint.TxID]; !ok {
			existing, err := s.store.Get(rc.OutPoint.TxID[:])
			coins := map[uint32]model.Coin{}
			if err == nil {
				coins, _ = decodeCoinArray(existing)
			}
			removed[rc.OutPoint.TxID] = coins
		}
		removed[rc.OutPoint.TxID][rc.OutPoint.Index] = rc.Coin
	}
	for txID, coins := range removed {
		batch.Put(txID[:], encodeCoinArray(coins))
	}

	for _, txID := range record.RemovedTxIDs {
		batch.Delete(txID[:])
	}

	batch.Put(tipKey, record.PrevTip[:])

	if err := s.store.Write(batch); err != nil {
		return chainhash.Hash{}, err
	}
	s.nextSeq = seq

	return record.PrevTip, nil
}

// RewindIndex is the optional concurrent out-point -> restore-height
// mapping covering the most recent maxReorg blocks (§4.3 "Rewind-Data
// Index"), sized with dolthub/swiss per SPEC_FULL.md §4.3.1.
type RewindIndex struct {
	mu       sync.RWMutex
	m        *swiss.Map[model.OutPoint, uint32]
	maxReorg uint32
}

// NewRewindIndex creates an empty index sized for maxReorg blocks of
// history.
func NewRewindIndex(maxReorg uint32) *RewindIndex {
	return &RewindIndex{m: swiss.NewMap[model.OutPoint, uint32](maxReorg), maxReorg: maxReorg}
}

// Add records that op can be restored by the rewind record at height.
func (idx *RewindIndex) Add(op model.OutPoint, height uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.m.Put(op, height)
}

// EarliestRestoreHeight returns the height at which op could be restored,
// if known.
func (idx *RewindIndex) EarliestRestoreHeight(op model.OutPoint) (uint32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.m.Get(op)
}

// RemoveAbove drops every entry whose restore height exceeds tip, called
// after a rewind moves the tip backward.
func (idx *RewindIndex) RemoveAbove(tip uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var stale []model.OutPoint
	idx.m.Iter(func(op model.OutPoint, height uint32) bool {
		if height > tip {
			stale = append(stale, op)
		}
		return false
	})
	for _, op := range stale {
		idx.m.Delete(op)
	}
}
