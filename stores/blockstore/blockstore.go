// Package blockstore implements the Block Store Queue (§4.2): a batched
// writer that persists blocks durably, serves reads from an in-flight
// pending map while the writer catches up, and handles reorg-driven
// deletion on flush. Grounded on the teacher's stores/blockchain/sql
// StoreBlock.go write-then-index pattern, generalized onto the shared
// goleveldb engine (stores/kv) instead of SQL.
package blockstore

import (
	"sort"
	"sync"
	"time"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/stores/kv"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/greatroar/blobloom"
	"github.com/libsv/go-bt/v2"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/spaolacci/murmur3"
)

// DefaultFlushInterval is 17 seconds, a prime chosen to decorrelate the
// flush timer from other periodic tasks (§4.2).
const DefaultFlushInterval = 17 * time.Second

// HeaderTree is the subset of the header tree the block store needs for
// startup recovery: "is this hash known". Parent links come from the stored
// block records themselves.
type HeaderTree interface {
	Contains(hash chainhash.Hash) bool
}

// Store is the Block Store Queue contract from §4.2.
type Store struct {
	mu sync.Mutex

	store *kv.Store
	tree  HeaderTree
	log   ulogger.Logger

	pending      map[chainhash.Hash]*model.Block
	pendingOrder []chainhash.Hash

	batch      []*model.Block
	batchBytes uint64

	flushThresholdBytes uint64
	flushInterval       time.Duration

	storeTip chainhash.Hash

	txIndexEnabled bool

	filter *blobloom.Filter

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	flushCh  chan chan error
}

var storeTipKey = []byte("tip")

// Config bundles the tunables NewStore needs beyond the shared database and
// header tree.
type Config struct {
	FlushThresholdBytes uint64
	FlushInterval       time.Duration
	TxIndexEnabled      bool
	ExpectedBlocks      uint64
}

// NewStore opens the Block Store Queue against db's Blocks namespace and
// starts its background writer goroutine. consensusTipIsSet must be false:
// starting while a consensus tip already exists would make future rewinds
// impossible (§4.2 "Recovery on startup").
func NewStore(db *kv.DB, tree HeaderTree, log ulogger.Logger, cfg Config, consensusTipIsSet bool) (*Store, error) {
	if consensusTipIsSet {
		return nil, errors.NewInvalidStateError("block store cannot start while a consensus tip is already set")
	}

	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.ExpectedBlocks == 0 {
		cfg.ExpectedBlocks = 1_000_000
	}

	s := &Store{
		store:               db.Namespaced(kv.NamespaceBlocks),
		tree:                tree,
		log:                 log,
		pending:             map[chainhash.Hash]*model.Block{},
		flushThresholdBytes: cfg.FlushThresholdBytes,
		flushInterval:       cfg.FlushInterval,
		txIndexEnabled:      cfg.TxIndexEnabled,
		filter: blobloom.NewOptimized(blobloom.Config{
			Capacity: cfg.ExpectedBlocks,
			FPRate:   0.01,
		}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		flushCh: make(chan chan error),
	}

	if err := s.recover(); err != nil {
		return nil, err
	}

	go s.run()

	return s, nil
}

func (s *Store) recover() error {
	raw, err := s.store.Get(storeTipKey)
	if errors.Is(err, errors.NewNotFoundError("")) {
		return nil
	}
	if err != nil {
		return err
	}
	var tip chainhash.Hash
	copy(tip[:], raw)

	for !s.tree.Contains(tip) {
		block, err := s.getBlockLocked(tip)
		if err != nil {
			return errors.NewStorageError("recovering block store: tip %s not found while walking back", tip, err)
		}
		if err := s.deleteBlock(tip); err != nil {
			return err
		}
		tip = block.ChainedHeader.Header.PrevBlock
	}

	s.storeTip = tip
	return s.store.Put(storeTipKey, tip[:])
}

func (s *Store) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.flush(); err != nil {
				s.log.Errorf("block store: periodic flush failed: %v", err)
			}
		case reply := <-s.flushCh:
			reply <- s.flush()
		case <-s.stopCh:
			if err := s.flush(); err != nil {
				s.log.Errorf("block store: shutdown flush failed: %v", err)
			}
			return
		}
	}
}

// Close stops the writer goroutine, flushing any pending batch first.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

// Flush forces an out-of-band flush and waits for it to complete, serving
// an "external flush-condition signals so" trigger (§4.2).
func (s *Store) Flush() error {
	reply := make(chan error, 1)
	s.flushCh <- reply
	return <-reply
}

// AddToPending enqueues block for durable storage, making it immediately
// visible to reads.
func (s *Store) AddToPending(block *model.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := block.ChainedHeader.Hash()
	if _, exists := s.pending[hash]; exists {
		return nil
	}

	s.pending[hash] = block
	s.pendingOrder = append(s.pendingOrder, hash)
	s.filter.Add(murmur3.Sum64(hash[:]))

	s.batch = append(s.batch, block)
	s.batchBytes += block.SerializedSize()

	if s.flushThresholdBytes != 0 && s.batchBytes >= s.flushThresholdBytes {
		go func() {
			if err := s.Flush(); err != nil {
				s.log.Errorf("block store: size-triggered flush failed: %v", err)
			}
		}()
	}

	return nil
}

// GetBlock returns a block by hash, checking the pending map before falling
// back to the durable store.
func (s *Store) GetBlock(hash chainhash.Hash) (*model.Block, error) {
	s.mu.Lock()
	if block, ok := s.pending[hash]; ok {
		s.mu.Unlock()
		return block, nil
	}
	s.mu.Unlock()

	if !s.filter.Has(murmur3.Sum64(hash[:])) {
		return nil, errors.NewNotFoundError("block %s not found", hash)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBlockLocked(hash)
}

// GetBlocks resolves a batch of hashes in one call.
func (s *Store) GetBlocks(hashes []chainhash.Hash) (map[chainhash.Hash]*model.Block, error) {
	out := make(map[chainhash.Hash]*model.Block, len(hashes))
	for _, h := range hashes {
		block, err := s.GetBlock(h)
		if err != nil {
			continue
		}
		out[h] = block
	}
	return out, nil
}

// GetTransactionByID finds a transaction by id, requiring transaction
// indexing to be enabled.
func (s *Store) GetTransactionByID(txID chainhash.Hash) (*bt.Tx, chainhash.Hash, error) {
	if !s.txIndexEnabled {
		return nil, chainhash.Hash{}, errors.NewInvalidStateError("transaction indexing is not enabled")
	}

	blockID, err := s.GetBlockIDByTransactionID(txID)
	if err != nil {
		return nil, chainhash.Hash{}, err
	}

	block, err := s.GetBlock(blockID)
	if err != nil {
		return nil, chainhash.Hash{}, err
	}

	for _, tx := range block.Transactions {
		if *tx.TxIDChainHash() == txID {
			return tx, blockID, nil
		}
	}

	return nil, chainhash.Hash{}, errors.NewNotFoundError("transaction %s not found in indexed block %s", txID, blockID)
}

// GetBlockIDByTransactionID looks up the per-transaction index.
func (s *Store) GetBlockIDByTransactionID(txID chainhash.Hash) (chainhash.Hash, error) {
	raw, err := s.store.Get(txIndexKey(txID))
	if err != nil {
		return chainhash.Hash{}, err
	}
	var blockID chainhash.Hash
	copy(blockID[:], raw)
	return blockID, nil
}

// StoreTipHash returns the highest block hash durably saved.
func (s *Store) StoreTipHash() chainhash.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeTip
}

func (s *Store) getBlockLocked(hash chainhash.Hash) (*model.Block, error) {
	raw, err := s.store.Get(blockKey(hash))
	if err != nil {
		return nil, err
	}
	return decodeBlockRecord(raw)
}

func (s *Store) deleteBlock(hash chainhash.Hash) error {
	return s.store.Delete(blockKey(hash))
}

// flush drains the accumulated batch into the durable store, cleaning
// non-chaining tail entries and handling any reorg against the current
// store tip, all within one goleveldb batch (§4.2 "Reorg handling on
// flush").
func (s *Store) flush() error {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.batchBytes = 0
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	cleaned := cleanBatch(batch)
	if len(cleaned) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wb := s.store.NewBatch()

	expectedPredecessor := cleaned[0].ChainedHeader.Header.PrevBlock
	if s.storeTip != expectedPredecessor && (s.storeTip != chainhash.Hash{} || expectedPredecessor != chainhash.Hash{}) {
		walk := s.storeTip
		for walk != expectedPredecessor {
			block, err := s.getBlockLocked(walk)
			if err != nil {
				return errors.NewStorageError("reorg walk-back: block %s not found", walk, err)
			}
			wb.Delete(blockKey(walk))
			walk = block.ChainedHeader.Header.PrevBlock
			if walk == (chainhash.Hash{}) && walk != expectedPredecessor {
				return errors.NewConsensusInvariantError("reorg walk-back reached genesis without finding expected predecessor %s", expectedPredecessor)
			}
		}
	}

	for _, block := range cleaned {
		hash := block.ChainedHeader.Hash()
		wb.Put(blockKey(hash), encodeBlockRecord(block))

		if s.txIndexEnabled {
			for _, tx := range block.Transactions {
				wb.Put(txIndexKey(*tx.TxIDChainHash()), hash[:])
			}
		}
	}

	newTip := cleaned[len(cleaned)-1].ChainedHeader.Hash()
	wb.Put(storeTipKey, newTip[:])

	if err := s.store.Write(wb); err != nil {
		return err
	}

	s.storeTip = newTip

	// Entries cleanBatch dropped are discarded along with the persisted ones.
	for _, block := range batch {
		hash := block.ChainedHeader.Hash()
		delete(s.pending, hash)
	}
	s.pendingOrder = s.pendingOrder[:0]
	for h := range s.pending {
		s.pendingOrder = append(s.pendingOrder, h)
	}

	return nil
}

// cleanBatch drops entries from the tail backwards whenever an entry's
// successor in the batch does not chain to it (§4.2 "cleaned backwards from
// its highest block").
func cleanBatch(batch []*model.Block) []*model.Block {
	ordered := make([]*model.Block, len(batch))
	copy(ordered, batch)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Height() < ordered[j].Height()
	})

	if len(ordered) == 0 {
		return ordered
	}

	// Scan every adjacent pair all the way to the bottom: a chained pair
	// partway down must not short-circuit the scan, since a stale orphaned
	// entry (e.g. left over from an abandoned fork) can sit below it.
	end := len(ordered)
	for i := end - 1; i > 0; i-- {
		successor := ordered[i]
		predecessor := ordered[i-1]
		if successor.ChainedHeader.Header.PrevBlock != predecessor.ChainedHeader.Hash() {
			end = i
		}
	}

	return ordered[:end]
}

func blockKey(hash chainhash.Hash) []byte {
	key := make([]byte, 1+chainhash.HashSize)
	key[0] = 'b'
	copy(key[1:], hash[:])
	return key
}

func txIndexKey(txID chainhash.Hash) []byte {
	key := make([]byte, 1+chainhash.HashSize)
	key[0] = 't'
	copy(key[1:], txID[:])
	return key
}
