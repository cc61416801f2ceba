package addrindex

import (
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/libsv/go-bt/v2/chainhash"
)

// Repository persists everything the indexer doesn't keep purely in memory:
// address balance-change ledgers, out-points evicted from the cache, rewind
// records, and the indexer's own tip. Two concrete implementations exist:
// kvRepository (default, shared goleveldb engine) and the optional SQL
// repository selected by store-URL scheme (§4.4.1).
type Repository interface {
	// AppendBalanceChange appends one entry to address's ledger.
	AppendBalanceChange(address string, change BalanceChange) error
	// BalanceChanges returns address's full ledger, in append order.
	BalanceChanges(address string) ([]BalanceChange, error)
	// SetBalanceChanges overwrites address's entire ledger, used by rewind
	// (trimming) and compaction (collapsing).
	SetBalanceChanges(address string, changes []BalanceChange) error
	// Addresses lists every address with a non-empty ledger.
	Addresses() ([]string, error)

	// PutOutPoint / GetOutPoint / DeleteOutPoint back the out-point cache's
	// write-through-on-eviction path.
	PutOutPoint(op model.OutPoint, script []byte, amount uint64) error
	GetOutPoint(op model.OutPoint) (script []byte, amount uint64, err error)
	DeleteOutPoint(op model.OutPoint) error

	// PutRewindRecord / RewindRecordsAbove / DeleteRewindRecord manage the
	// per-block undo log.
	PutRewindRecord(r *RewindRecord) error
	RewindRecordsAbove(height uint32) ([]*RewindRecord, error)
	DeleteRewindRecord(hash chainhash.Hash) error
	PruneRewindRecordsBelow(height uint32) error

	// Tip / SetTip persist the indexer's own progress.
	Tip() (chainhash.Hash, uint32, bool, error)
	SetTip(hash chainhash.Hash, height uint32) error
}
