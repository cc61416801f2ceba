// Package model defines the node's in-memory data model: chained headers,
// blocks, out-points, and coins, grounded on the teacher's model/Block.go
// hash-memoization and constructor style but generalized to this tree's
// coin-array-per-transaction-id model.
package model

import (
	"math/big"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/libsv/go-bt/v2/chainhash"
)

// ChainedHeader annotates a wire.BlockHeader with the parent link, height,
// and cumulative chain work needed to place it in the header tree (§3).
type ChainedHeader struct {
	Header    *wire.BlockHeader
	Parent    *ChainedHeader
	Height    uint32
	ChainWork *big.Int

	hash    chainhash.Hash
	hashSet bool
}

// NewChainedHeader links header to parent, enforcing the invariant that a
// chained header's parent's hash equals its own PrevBlock field.
func NewChainedHeader(header *wire.BlockHeader, parent *ChainedHeader) (*ChainedHeader, error) {
	if header == nil {
		return nil, errors.NewInvalidArgumentError("header is nil")
	}

	work := bitsToWork(header.Bits)

	if parent == nil {
		return &ChainedHeader{Header: header, Height: 0, ChainWork: work}, nil
	}

	if header.PrevBlock != parent.Hash() {
		return nil, errors.NewConsensusInvariantError("header prev hash %s does not match parent hash %s", header.PrevBlock, parent.Hash())
	}

	return &ChainedHeader{
		Header:    header,
		Parent:    parent,
		Height:    parent.Height + 1,
		ChainWork: new(big.Int).Add(parent.ChainWork, work),
	}, nil
}

// NewChainedHeaderFromRecord reconstructs a ChainedHeader from a persisted
// on-disk record, where height and chain work were already computed and
// stored rather than derived from a parent link held in memory. parent may
// be nil when the parent itself hasn't been loaded.
func NewChainedHeaderFromRecord(header *wire.BlockHeader, parent *ChainedHeader, height uint32, chainWork *big.Int) *ChainedHeader {
	return &ChainedHeader{Header: header, Parent: parent, Height: height, ChainWork: chainWork}
}

// Hash returns the block hash of the underlying header, memoized after the
// first call.
func (c *ChainedHeader) Hash() chainhash.Hash {
	if !c.hashSet {
		c.hash = c.Header.BlockHash()
		c.hashSet = true
	}
	return c.hash
}

// IsAncestorOf reports whether c is found by walking other's parent chain.
func (c *ChainedHeader) IsAncestorOf(other *ChainedHeader) bool {
	for h := other; h != nil; h = h.Parent {
		if h.Hash() == c.Hash() {
			return true
		}
	}
	return false
}

var (
	maxTargetBits = big.NewInt(1)
	oneLsh256     = new(big.Int).Lsh(big.NewInt(1), 256)
)

// bitsToWork converts a compact difficulty-bits field into the amount of
// work a block satisfying that target represents: 2**256 / (target+1).
func bitsToWork(bits uint32) *big.Int {
	target := compactToBig(bits)
	if target.Sign() <= 0 {
		return new(big.Int).Set(maxTargetBits)
	}

	denominator := new(big.Int).Add(target, big.NewInt(1))
	return new(big.Int).Div(oneLsh256, denominator)
}

// compactToBig expands the Bitcoin "compact" (nBits) difficulty encoding
// into its full big.Int target value.
func compactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	exponent := compact >> 24

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, uint(8*(exponent-3)))
	}

	if compact&0x00800000 != 0 {
		bn.Neg(bn)
	}

	return bn
}
