package headertree

import (
	"math/big"
	"time"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/loopholelabs/polyglot"
)

// encodeHeaderRecord serializes a chained header's fixed fields plus its
// derived height and cumulative chain work, so the tree can be rebuilt
// without re-deriving work from every ancestor on every restart.
func encodeHeaderRecord(ch *model.ChainedHeader) []byte {
	buf := polyglot.NewBuffer()
	enc := polyglot.Encoder(buf)

	h := ch.Header
	enc.Uint32(uint32(h.Version))
	enc.Bytes(h.PrevBlock[:])
	enc.Bytes(h.MerkleRoot[:])
	enc.Uint32(uint32(h.Timestamp.Unix()))
	enc.Uint32(h.Bits)
	enc.Uint32(h.Nonce)

	enc.Uint32(ch.Height)
	enc.Bytes(ch.ChainWork.Bytes())

	return buf.Bytes()
}

func decodeHeaderRecord(data []byte) (*wire.BlockHeader, uint32, *big.Int, error) {
	dec := polyglot.NewDecoder(data)

	version, err := dec.Uint32()
	if err != nil {
		return nil, 0, nil, errors.NewStorageError("decoding header version", err)
	}
	prevBlock, err := dec.Bytes()
	if err != nil {
		return nil, 0, nil, errors.NewStorageError("decoding header prev hash", err)
	}
	merkleRoot, err := dec.Bytes()
	if err != nil {
		return nil, 0, nil, errors.NewStorageError("decoding header merkle root", err)
	}
	timestamp, err := dec.Uint32()
	if err != nil {
		return nil, 0, nil, errors.NewStorageError("decoding header timestamp", err)
	}
	bits, err := dec.Uint32()
	if err != nil {
		return nil, 0, nil, errors.NewStorageError("decoding header bits", err)
	}
	nonce, err := dec.Uint32()
	if err != nil {
		return nil, 0, nil, errors.NewStorageError("decoding header nonce", err)
	}
	height, err := dec.Uint32()
	if err != nil {
		return nil, 0, nil, errors.NewStorageError("decoding header height", err)
	}
	chainWorkBytes, err := dec.Bytes()
	if err != nil {
		return nil, 0, nil, errors.NewStorageError("decoding header chain work", err)
	}

	header := &wire.BlockHeader{Version: int32(version), Bits: bits, Nonce: nonce}
	copy(header.PrevBlock[:], prevBlock)
	copy(header.MerkleRoot[:], merkleRoot)
	header.Timestamp = time.Unix(int64(timestamp), 0).UTC()

	return header, height, new(big.Int).SetBytes(chainWorkBytes), nil
}
