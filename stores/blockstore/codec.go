package blockstore

import (
	"math/big"
	"time"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/libsv/go-bt/v2"
	"github.com/loopholelabs/polyglot"
)

// encodeBlockRecord serializes a block's header (plus height/chain-work),
// transaction count, and raw transaction bytes as the on-disk record
// envelope (§4.2.1 "decoupling storage encoding from wire encoding").
func encodeBlockRecord(block *model.Block) []byte {
	buf := polyglot.NewBuffer()
	enc := polyglot.Encoder(buf)

	header := block.ChainedHeader.Header
	enc.Uint32(uint32(header.Version))
	enc.Bytes(header.PrevBlock[:])
	enc.Bytes(header.MerkleRoot[:])
	enc.Uint32(uint32(header.Timestamp.Unix()))
	enc.Uint32(header.Bits)
	enc.Uint32(header.Nonce)

	enc.Uint32(block.ChainedHeader.Height)
	enc.Bytes(block.ChainedHeader.ChainWork.Bytes())

	enc.Uint32(uint32(len(block.Transactions)))
	for _, tx := range block.Transactions {
		enc.Bytes(tx.Bytes())
	}

	return buf.Bytes()
}

func decodeBlockRecord(data []byte) (*model.Block, error) {
	dec := polyglot.NewDecoder(data)

	version, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding block header version", err)
	}
	prevBlock, err := dec.Bytes()
	if err != nil {
		return nil, errors.NewStorageError("decoding block header prev hash", err)
	}
	merkleRoot, err := dec.Bytes()
	if err != nil {
		return nil, errors.NewStorageError("decoding block header merkle root", err)
	}
	timestamp, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding block header timestamp", err)
	}
	bits, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding block header bits", err)
	}
	nonce, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding block header nonce", err)
	}

	height, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding block height", err)
	}
	chainWorkBytes, err := dec.Bytes()
	if err != nil {
		return nil, errors.NewStorageError("decoding block chain work", err)
	}

	header := &wire.BlockHeader{
		Version: int32(version),
		Bits:    bits,
		Nonce:   nonce,
	}
	copy(header.PrevBlock[:], prevBlock)
	copy(header.MerkleRoot[:], merkleRoot)
	header.Timestamp = time.Unix(int64(timestamp), 0).UTC()

	chained := model.NewChainedHeaderFromRecord(header, nil, height, new(big.Int).SetBytes(chainWorkBytes))

	txCount, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding block transaction count", err)
	}

	txs := make([]*bt.Tx, txCount)
	for i := range txs {
		raw, err := dec.Bytes()
		if err != nil {
			return nil, errors.NewStorageError("decoding block transaction bytes", err)
		}
		tx, err := bt.NewTxFromBytes(raw)
		if err != nil {
			return nil, errors.NewStorageError("parsing stored transaction", err)
		}
		txs[i] = tx
	}

	return model.NewBlock(chained, txs)
}
