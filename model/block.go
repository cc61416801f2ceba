package model

import (
	"bytes"
	"sync"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/libsv/go-bt/v2"
)

// Block is a chained header plus its ordered transactions, the first of
// which is the coinbase (or, on a PoS chain, the coinstake). Grounded on the teacher's model.Block, trimmed to this
// tree's single-transaction-list shape (no subtree indirection).
type Block struct {
	ChainedHeader *ChainedHeader
	Transactions  []*bt.Tx

	sizeOnce sync.Once
	size     uint64
}

// NewBlock builds a Block, requiring at least one transaction. The first
// transaction is expected to be coinbase (PoW) or coinstake (PoS, §1/§3) —
// telling the two apart is a validation concern this tree doesn't implement,
// so construction accepts either rather than hard-failing a PoS block's
// non-coinbase first transaction.
func NewBlock(header *ChainedHeader, txs []*bt.Tx) (*Block, error) {
	if header == nil {
		return nil, errors.NewInvalidArgumentError("chained header is nil")
	}
	if len(txs) == 0 {
		return nil, errors.NewInvalidArgumentError("block has no transactions")
	}

	return &Block{ChainedHeader: header, Transactions: txs}, nil
}

// SerializedSize is the block's wire-encoded byte length, memoized since
// back-pressure accounting (§5) calls it repeatedly.
func (b *Block) SerializedSize() uint64 {
	b.sizeOnce.Do(func() {
		var countPrefix bytes.Buffer
		_ = wire.WriteVarInt(&countPrefix, uint64(len(b.Transactions)))

		size := uint64(wire.BlockHeaderLen) + uint64(countPrefix.Len())
		for _, tx := range b.Transactions {
			size += uint64(len(tx.Bytes()))
		}
		b.size = size
	})
	return b.size
}

// Height is a convenience accessor onto the chained header.
func (b *Block) Height() uint32 {
	return b.ChainedHeader.Height
}
