package addrindex

import (
	"sync"
	"time"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/libsv/go-bt/v2/chainhash"
)

// HeaderSource gives the indexer read access to the header tree it streams
// against, enough to find fork points and the current consensus tip.
type HeaderSource interface {
	Get(hash chainhash.Hash) (*model.ChainedHeader, bool)
	Best() *model.ChainedHeader
}

// BlockSource gives the indexer read access to full blocks by hash.
type BlockSource interface {
	GetBlock(hash chainhash.Hash) (*model.Block, error)
}

// Config tunes the indexer's sync-distance gate, persistence cadence, and
// compaction thresholds.
type Config struct {
	MaxSyncDistance           uint32
	PersistInterval           time.Duration
	RetryDelay                time.Duration
	OutPointCacheCapacity     uint64
	CompactionThreshold       int
	CompactionTriggerDistance uint32
}

func (c *Config) setDefaults() {
	if c.MaxSyncDistance == 0 {
		c.MaxSyncDistance = 6
	}
	if c.PersistInterval == 0 {
		c.PersistInterval = 10 * time.Second
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.OutPointCacheCapacity == 0 {
		c.OutPointCacheCapacity = defaultOutPointCacheCapacity
	}
	if c.CompactionThreshold == 0 {
		c.CompactionThreshold = defaultCompactionThreshold
	}
	if c.CompactionTriggerDistance == 0 {
		c.CompactionTriggerDistance = 200 // must exceed maximum reorg depth
	}
}

// AddressBalance is one entry of GetAddressBalances' result.
type AddressBalance struct {
	Address string
	Balance int64
}

// Indexer is the Address Indexer (§4.4): a dedicated task advancing an
// indexer tip toward the consensus tip, building an address→balance-change
// ledger as it goes, and reorg-safe via per-block rewind records.
type Indexer struct {
	mu sync.RWMutex

	headers  HeaderSource
	blocks   BlockSource
	repo     Repository
	resolver AddressResolver
	cache    *outPointCache
	log      ulogger.Logger
	cfg      Config

	tipHash   chainhash.Hash
	tipHeight uint32
	hasTip    bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs an Indexer. It loads its persisted tip (or starts at
// genesis-unset) from repo.
func New(headers HeaderSource, blocks BlockSource, repo Repository, resolver AddressResolver, log ulogger.Logger, cfg Config) (*Indexer, error) {
	cfg.setDefaults()

	idx := &Indexer{
		headers:  headers,
		blocks:   blocks,
		repo:     repo,
		resolver: resolver,
		log:      log,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	idx.cache = newOutPointCache(repo, cfg.OutPointCacheCapacity)

	hash, height, ok, err := repo.Tip()
	if err != nil {
		return nil, err
	}
	idx.tipHash, idx.tipHeight, idx.hasTip = hash, height, ok

	return idx, nil
}

// Start runs the main loop (§4.4 "Main loop") in a background goroutine.
func (idx *Indexer) Start() {
	go idx.run()
}

// Stop halts the main loop and the out-point cache's background eviction.
func (idx *Indexer) Stop() {
	close(idx.stopCh)
	<-idx.doneCh
	idx.cache.stop()
}

// Step advances the indexer by at most one block (or one rewind), run
// synchronously. The background loop calls this on a timer; exposed
// directly for tests and manual diagnostics.
func (idx *Indexer) Step() (bool, error) {
	return idx.step()
}

func (idx *Indexer) run() {
	defer close(idx.doneCh)

	persistTicker := time.NewTicker(idx.cfg.PersistInterval)
	defer persistTicker.Stop()

	for {
		select {
		case <-idx.stopCh:
			return
		case <-persistTicker.C:
			// The kv repository writes through on every call already; this
			// tick exists for a future batching repository implementation
			// to flush dirty state on.
		default:
		}

		advanced, err := idx.step()
		if err != nil {
			idx.log.Errorf("addrindex: %v", err)
			time.Sleep(idx.cfg.RetryDelay)
			continue
		}
		if !advanced {
			select {
			case <-idx.stopCh:
				return
			case <-time.After(idx.cfg.RetryDelay):
			}
		}
	}
}

// step advances the indexer tip by exactly one block, or rewinds to a fork
// point if necessary. Returns whether progress was made.
func (idx *Indexer) step() (bool, error) {
	idx.mu.RLock()
	hasTip := idx.hasTip
	tipHash := idx.tipHash
	tipHeight := idx.tipHeight
	idx.mu.RUnlock()

	best := idx.headers.Best()
	if best == nil {
		return false, nil
	}

	if !hasTip {
		genesis := idx.ancestorAtFrom(best, 0)
		if genesis == nil {
			return false, nil
		}
		return idx.connectBlock(genesis)
	}

	if best.Hash() == tipHash {
		return false, nil
	}

	next := idx.ancestorAtFrom(best, tipHeight+1)
	if next == nil {
		return false, nil
	}

	if next.Header.PrevBlock != tipHash {
		forkHeight, err := idx.findForkPoint(next)
		if err != nil {
			return false, err
		}
		if err := idx.rewindTo(forkHeight); err != nil {
			return false, err
		}
		return true, nil
	}

	return idx.connectBlock(next)
}

// ancestorAtFrom walks back from h until it reaches height, or returns nil
// if h's chain is shorter than height.
func (idx *Indexer) ancestorAtFrom(h *model.ChainedHeader, height uint32) *model.ChainedHeader {
	for h != nil && h.Height > height {
		h = h.Parent
	}
	if h == nil || h.Height != height {
		return nil
	}
	return h
}

func (idx *Indexer) findForkPoint(next *model.ChainedHeader) (uint32, error) {
	idx.mu.RLock()
	tipHash := idx.tipHash
	idx.mu.RUnlock()

	tipHeader, ok := idx.headers.Get(tipHash)
	if !ok {
		return 0, errors.NewConsensusInvariantError("addrindex: indexer tip %s not in header tree", tipHash)
	}

	a, b := tipHeader, next.Parent
	for a != nil && b != nil && a.Height > b.Height {
		a = a.Parent
	}
	for b != nil && a != nil && b.Height > a.Height {
		b = b.Parent
	}
	for a != nil && b != nil && a.Hash() != b.Hash() {
		a, b = a.Parent, b.Parent
	}
	if a == nil {
		return 0, nil
	}
	return a.Height, nil
}

// connectBlock fetches and processes the block at header, then advances the
// persisted tip.
func (idx *Indexer) connectBlock(header *model.ChainedHeader) (bool, error) {
	block, err := idx.blocks.GetBlock(header.Hash())
	if err != nil {
		return false, nil //nolint:nilerr // block not yet available, retry after the configured delay
	}

	if err := idx.processBlock(block); err != nil {
		return false, err
	}

	idx.mu.Lock()
	idx.tipHash = header.Hash()
	idx.tipHeight = header.Height
	idx.hasTip = true
	idx.mu.Unlock()

	if err := idx.repo.SetTip(header.Hash(), header.Height); err != nil {
		return false, err
	}

	idx.pruneRewindRecords()

	return true, nil
}

// processBlock applies one block's outputs/inputs to the ledger (§4.4
// "Block processing").
func (idx *Indexer) processBlock(block *model.Block) error {
	height := block.Height()
	rewind := &RewindRecord{BlockHash: block.ChainedHeader.Hash(), Height: height}

	for txIdx, tx := range block.Transactions {
		isCoinbase := txIdx == 0

		if !isCoinbase {
			for _, in := range tx.Inputs {
				op := model.OutPoint{TxID: *in.PreviousTxIDChainHash(), Index: in.PreviousTxOutIndex}
				script, amount, ok := idx.cache.get(op)
				if !ok {
					return errors.NewConsensusInvariantError("addrindex: missing out-point %s:%d consumed at height %d", op.TxID, op.Index, height)
				}

				if address, ok := idx.resolver.ResolveAddress(script); ok {
					if err := idx.repo.AppendBalanceChange(address, BalanceChange{Height: height, Amount: amount, Direction: Withdrawal}); err != nil {
						return err
					}
				}

				rewind.Consumed = append(rewind.Consumed, ConsumedOutPoint{OutPoint: op, Script: script, Amount: amount})
				idx.cache.remove(op)
			}
		}

		txID := tx.TxIDChainHash()
		for outIdx, out := range tx.Outputs {
			if out == nil || out.Satoshis == 0 || out.LockingScript == nil || len(*out.LockingScript) == 0 {
				continue
			}

			script := *out.LockingScript
			op := model.OutPoint{TxID: *txID, Index: uint32(outIdx)}
			idx.cache.add(op, script, out.Satoshis)

			if address, ok := idx.resolver.ResolveAddress(script); ok {
				if err := idx.repo.AppendBalanceChange(address, BalanceChange{Height: height, Amount: out.Satoshis, Direction: Deposit}); err != nil {
					return err
				}
				if err := compactAddress(idx.repo, address, height, idx.cfg.CompactionThreshold, idx.cfg.CompactionTriggerDistance); err != nil {
					return err
				}
			}
		}
	}

	return idx.repo.PutRewindRecord(rewind)
}

// rewindTo undoes every block above forkHeight (§4.4 "Reorg (rewind)").
func (idx *Indexer) rewindTo(forkHeight uint32) error {
	records, err := idx.repo.RewindRecordsAbove(forkHeight)
	if err != nil {
		return err
	}

	addresses, err := idx.repo.Addresses()
	if err != nil {
		return err
	}
	for _, address := range addresses {
		changes, err := idx.repo.BalanceChanges(address)
		if err != nil {
			return err
		}
		trimmed := make([]BalanceChange, 0, len(changes))
		for _, c := range changes {
			if c.Height <= forkHeight {
				trimmed = append(trimmed, c)
			}
		}
		if len(trimmed) != len(changes) {
			if err := idx.repo.SetBalanceChanges(address, trimmed); err != nil {
				return err
			}
		}
	}

	for _, r := range records {
		for _, c := range r.Consumed {
			idx.cache.restore(c.OutPoint, c.Script, c.Amount)
		}
		if err := idx.repo.DeleteRewindRecord(r.BlockHash); err != nil {
			return err
		}
	}

	forkHeader := idx.ancestorAt(forkHeight)
	if forkHeader == nil {
		return errors.NewConsensusInvariantError("addrindex: fork height %d not resolvable in header tree", forkHeight)
	}

	idx.mu.Lock()
	idx.tipHash = forkHeader.Hash()
	idx.tipHeight = forkHeader.Height
	idx.hasTip = true
	idx.mu.Unlock()

	return idx.repo.SetTip(forkHeader.Hash(), forkHeader.Height)
}

func (idx *Indexer) ancestorAt(height uint32) *model.ChainedHeader {
	return idx.ancestorAtFrom(idx.headers.Best(), height)
}

func (idx *Indexer) pruneRewindRecords() {
	idx.mu.RLock()
	tipHeight := idx.tipHeight
	idx.mu.RUnlock()

	best := idx.headers.Best()
	if best == nil {
		return
	}
	if best.Height < idx.cfg.CompactionTriggerDistance {
		return
	}

	cutoff := best.Height - idx.cfg.CompactionTriggerDistance
	if cutoff > tipHeight {
		cutoff = tipHeight
	}
	if err := idx.repo.PruneRewindRecordsBelow(cutoff); err != nil {
		idx.log.Warnf("addrindex: pruning rewind records: %v", err)
	}
}

// GetAddressBalances returns each address's current balance, rejecting the
// request if the indexer isn't within MaxSyncDistance of the consensus tip
// (§4.4 "Contract").
func (idx *Indexer) GetAddressBalances(addresses []string, minConfirmations uint32) ([]AddressBalance, error) {
	if err := idx.checkSynced(); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	tipHeight := idx.tipHeight
	idx.mu.RUnlock()

	confirmedUpTo := tipHeight
	if minConfirmations > 0 && minConfirmations-1 <= tipHeight {
		confirmedUpTo = tipHeight - (minConfirmations - 1)
	}

	out := make([]AddressBalance, 0, len(addresses))
	for _, address := range addresses {
		changes, err := idx.repo.BalanceChanges(address)
		if err != nil {
			return nil, err
		}
		var balance int64
		for _, c := range changes {
			if c.Height <= confirmedUpTo {
				balance += c.signedAmount()
			}
		}
		out = append(out, AddressBalance{Address: address, Balance: balance})
	}
	return out, nil
}

// IndexerState reports the indexer's tip relative to the consensus tip.
type IndexerState struct {
	TipHeight      uint32
	ConsensusTip   uint32
	SyncedDistance uint32
}

// GetAddressIndexerState reports the indexer's sync progress (§4.4
// "Contract"). addresses is accepted for interface symmetry with
// GetAddressBalances but doesn't change the result.
func (idx *Indexer) GetAddressIndexerState(_ []string) (IndexerState, error) {
	if err := idx.checkSynced(); err != nil {
		return IndexerState{}, err
	}

	idx.mu.RLock()
	tipHeight := idx.tipHeight
	idx.mu.RUnlock()

	best := idx.headers.Best()
	var consensusTip uint32
	if best != nil {
		consensusTip = best.Height
	}

	return IndexerState{TipHeight: tipHeight, ConsensusTip: consensusTip, SyncedDistance: consensusTip - tipHeight}, nil
}

func (idx *Indexer) checkSynced() error {
	idx.mu.RLock()
	hasTip := idx.hasTip
	tipHeight := idx.tipHeight
	idx.mu.RUnlock()

	if !hasTip {
		return errors.NewNotSyncedError("addrindex: not yet synced")
	}

	best := idx.headers.Best()
	if best == nil {
		return errors.NewNotSyncedError("addrindex: header tree empty")
	}
	if best.Height > tipHeight && best.Height-tipHeight > idx.cfg.MaxSyncDistance {
		return errors.NewNotSyncedError("addrindex: %d blocks behind consensus tip", best.Height-tipHeight)
	}
	return nil
}
