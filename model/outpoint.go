package model

import "github.com/libsv/go-bt/v2/chainhash"

// OutPoint identifies one UTXO: the transaction that created it and the
// output index within that transaction. Grounded on stores/utxo's
// Spend/Response shapes (teacher), generalized from "one entry per tx" to
// this tree's "coin array per tx-id" Coinview shape (§3).
type OutPoint struct {
	TxID  chainhash.Hash
	Index uint32
}

// Coin is a spendable output: its value, locking script, the height at
// which it was created, and whether it came from a coinbase (or coinstake)
// transaction, which gates maturity.
type Coin struct {
	Value      uint64
	Script     []byte
	Height     uint32
	IsCoinbase bool
}

// Matured reports whether a coinbase coin created at Height has reached
// coinbaseMaturity confirmations as of currentHeight. Non-coinbase coins are
// always considered matured.
func (c *Coin) Matured(currentHeight uint32, coinbaseMaturity uint32) bool {
	if !c.IsCoinbase {
		return true
	}
	return currentHeight >= c.Height+coinbaseMaturity
}
