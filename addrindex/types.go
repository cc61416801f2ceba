// Package addrindex implements the Address Indexer (§4.4): an auxiliary
// index keyed by script-derived addresses, built by streaming the canonical
// chain forward one block at a time and able to follow reorgs by rewinding
// to the fork point. Grounded on the teacher's stores/utxo optimistic-save
// idiom for the write shape, generalized here from "coins" to "balance
// changes" since the indexer never needs to know which coins are currently
// spendable, only when value moved.
package addrindex

import (
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/libsv/go-bt/v2/chainhash"
)

// Direction classes one balance change (§3 "Address Balance Change").
type Direction int

const (
	Deposit Direction = iota
	Withdrawal
)

func (d Direction) String() string {
	if d == Withdrawal {
		return "withdrawal"
	}
	return "deposit"
}

// BalanceChange is one entry in an address's ledger. Invariant (§3): the sum
// of every change with Height <= H equals the address's balance at block H.
type BalanceChange struct {
	Height    uint32
	Amount    uint64
	Direction Direction
}

// signedAmount returns Amount as a deposit (+) or withdrawal (-) delta.
func (c BalanceChange) signedAmount() int64 {
	if c.Direction == Withdrawal {
		return -int64(c.Amount)
	}
	return int64(c.Amount)
}

// ConsumedOutPoint is one spent out-point recorded in a block's rewind
// record, carrying enough to restore the out-point cache on reorg.
type ConsumedOutPoint struct {
	OutPoint model.OutPoint
	Script   []byte
	Amount   uint64
}

// RewindRecord is the per-block undo log (§3 "Address Rewind Record").
type RewindRecord struct {
	BlockHash chainhash.Hash
	Height    uint32
	Consumed  []ConsumedOutPoint
}
