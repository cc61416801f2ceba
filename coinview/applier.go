package coinview

import (
	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/libsv/go-bt/v2/chainhash"
)

// Applier turns a decoded block into the modified-coin-set/rewind-record
// pair save_changes expects (§4.3 "Save protocol"), grounded on the
// addrindex package's own input/output walk (addrindex.Indexer.processBlock)
// but writing full coins rather than balance deltas.
type Applier struct {
	store Store
}

// NewApplier wraps store with the block-to-changeset glue.
func NewApplier(store Store) *Applier {
	return &Applier{store: store}
}

// ApplyBlock connects one block: every input it spends is resolved against
// the current coin set (already-pending spends within the same block
// included), every output it creates is added, and the whole mutation is
// committed through save_changes in one call.
func (a *Applier) ApplyBlock(block *model.Block) error {
	oldTip, err := a.store.GetTipHash()
	if err != nil {
		return err
	}
	newTip := block.ChainedHeader.Hash()
	height := block.Height()

	working, err := a.preloadSpentTransactions(block)
	if err != nil {
		return err
	}

	rewind := &RewindRecord{Height: height}
	var createdTxIDs []chainhash.Hash

	for txIdx, tx := range block.Transactions {
		if txIdx > 0 {
			for _, in := range tx.Inputs {
				op := model.OutPoint{TxID: *in.PreviousTxIDChainHash(), Index: in.PreviousTxOutIndex}

				coins, ok := working[op.TxID]
				if !ok {
					return errors.NewConsensusInvariantError("coinview: missing out-point %s:%d consumed at height %d", op.TxID, op.Index, height)
				}
				coin, ok := coins[op.Index]
				if !ok {
					return errors.NewConsensusInvariantError("coinview: out-point %s:%d already spent, consumed again at height %d", op.TxID, op.Index, height)
				}

				rewind.RestoredCoins = append(rewind.RestoredCoins, RestoredCoin{OutPoint: op, Coin: coin})
				delete(coins, op.Index)
			}
		}

		txID := tx.TxIDChainHash()
		createdTxIDs = append(createdTxIDs, *txID)

		created := map[uint32]model.Coin{}
		for outIdx, out := range tx.Outputs {
			if out == nil || out.Satoshis == 0 || out.LockingScript == nil || len(*out.LockingScript) == 0 {
				continue
			}
			script := append([]byte(nil), (*out.LockingScript)...)
			created[uint32(outIdx)] = model.Coin{
				Value:      out.Satoshis,
				Script:     script,
				Height:     height,
				IsCoinbase: txIdx == 0,
			}
		}
		working[*txID] = created
	}

	// Every transaction this block created must be deleted entirely on
	// rewind, regardless of how many of its outputs are still unspent at the
	// end of the block — undoing the block means it never existed, not just
	// that its remaining coins are restored. Pre-existing transactions this
	// block fully spent are instead covered by RestoredCoins above.
	rewind.RemovedTxIDs = createdTxIDs

	return a.store.SaveChanges(working, oldTip, newTip, height, rewind)
}

// UndoBlock disconnects the most recently connected block by popping its
// rewind record (§4.3 "Rewind protocol").
func (a *Applier) UndoBlock() error {
	_, err := a.store.Rewind()
	return err
}

// preloadSpentTransactions fetches, once per distinct transaction-id, the
// current coin array of every non-coinbase input's previous transaction, so
// a block that spends several outputs of the same earlier transaction only
// pays for one disk read. Transactions created by the block itself are not
// fetched: ApplyBlock adds their outputs to the working set as it goes.
func (a *Applier) preloadSpentTransactions(block *model.Block) (map[chainhash.Hash]map[uint32]model.Coin, error) {
	var need []chainhash.Hash
	seen := map[chainhash.Hash]bool{}
	own := make(map[chainhash.Hash]bool, len(block.Transactions))
	for _, tx := range block.Transactions {
		own[*tx.TxIDChainHash()] = true
	}

	for txIdx, tx := range block.Transactions {
		if txIdx == 0 {
			continue
		}
		for _, in := range tx.Inputs {
			txID := *in.PreviousTxIDChainHash()
			if !seen[txID] && !own[txID] {
				seen[txID] = true
				need = append(need, txID)
			}
		}
	}

	working := make(map[chainhash.Hash]map[uint32]model.Coin, len(need))
	if len(need) == 0 {
		return working, nil
	}

	_, results, err := a.store.FetchCoins(need)
	if err != nil {
		return nil, err
	}
	for txID, res := range results {
		if !res.Found {
			return nil, errors.NewConsensusInvariantError("coinview: transaction %s consumed but not found in the coin set", txID)
		}
		coins := make(map[uint32]model.Coin, len(res.Coins))
		for idx, c := range res.Coins {
			coins[idx] = c
		}
		working[txID] = coins
	}

	return working, nil
}
