package coinview

import (
	"encoding/binary"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/loopholelabs/polyglot"
)

var rewindKeyPrefix = []byte("rewind:")

func rewindKey(seq uint64) []byte {
	key := make([]byte, len(rewindKeyPrefix)+8)
	copy(key, rewindKeyPrefix)
	binary.BigEndian.PutUint64(key[len(rewindKeyPrefix):], seq)
	return key
}

func decodeRewindSeq(key []byte) uint64 {
	if len(key) < len(rewindKeyPrefix)+8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(rewindKeyPrefix):])
}

// encodeCoinArray serializes a transaction's surviving coins, keyed by
// output index, as the on-disk record envelope (§4.2.1/§4.3.1's polyglot
// wiring).
func encodeCoinArray(coins map[uint32]model.Coin) []byte {
	buf := polyglot.NewBuffer()
	enc := polyglot.Encoder(buf)

	enc.Uint32(uint32(len(coins)))
	for idx, coin := range coins {
		enc.Uint32(idx)
		enc.Uint64(coin.Value)
		enc.Bytes(coin.Script)
		enc.Uint32(coin.Height)
		enc.Bool(coin.IsCoinbase)
	}

	return buf.Bytes()
}

func decodeCoinArray(data []byte) (map[uint32]model.Coin, error) {
	dec := polyglot.NewDecoder(data)

	count, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding coin array count", err)
	}

	coins := make(map[uint32]model.Coin, count)
	for i := uint32(0); i < count; i++ {
		idx, err := dec.Uint32()
		if err != nil {
			return nil, errors.NewStorageError("decoding coin index", err)
		}
		value, err := dec.Uint64()
		if err != nil {
			return nil, errors.NewStorageError("decoding coin value", err)
		}
		script, err := dec.Bytes()
		if err != nil {
			return nil, errors.NewStorageError("decoding coin script", err)
		}
		height, err := dec.Uint32()
		if err != nil {
			return nil, errors.NewStorageError("decoding coin height", err)
		}
		isCoinbase, err := dec.Bool()
		if err != nil {
			return nil, errors.NewStorageError("decoding coin coinbase flag", err)
		}

		coins[idx] = model.Coin{Value: value, Script: script, Height: height, IsCoinbase: isCoinbase}
	}

	return coins, nil
}

func encodeRewindRecord(r *RewindRecord) []byte {
	buf := polyglot.NewBuffer()
	enc := polyglot.Encoder(buf)

	enc.Uint32(r.Height)
	enc.Bytes(r.PrevTip[:])

	enc.Uint32(uint32(len(r.RemovedTxIDs)))
	for _, txID := range r.RemovedTxIDs {
		enc.Bytes(txID[:])
	}

	enc.Uint32(uint32(len(r.RestoredCoins)))
	for _, rc := range r.RestoredCoins {
		enc.Bytes(rc.OutPoint.TxID[:])
		enc.Uint32(rc.OutPoint.Index)
		enc.Uint64(rc.Coin.Value)
		enc.Bytes(rc.Coin.Script)
		enc.Uint32(rc.Coin.Height)
		enc.Bool(rc.Coin.IsCoinbase)
	}

	return buf.Bytes()
}

func decodeRewindRecord(data []byte) (*RewindRecord, error) {
	dec := polyglot.NewDecoder(data)

	r := &RewindRecord{}

	height, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding rewind height", err)
	}
	r.Height = height

	prevTip, err := dec.Bytes()
	if err != nil {
		return nil, errors.NewStorageError("decoding rewind prev tip", err)
	}
	copy(r.PrevTip[:], prevTip)

	removedCount, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding removed tx count", err)
	}
	r.RemovedTxIDs = make([]chainhash.Hash, removedCount)
	for i := range r.RemovedTxIDs {
		b, err := dec.Bytes()
		if err != nil {
			return nil, errors.NewStorageError("decoding removed tx id", err)
		}
		copy(r.RemovedTxIDs[i][:], b)
	}

	restoredCount, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding restored coin count", err)
	}
	r.RestoredCoins = make([]RestoredCoin, restoredCount)
	for i := range r.RestoredCoins {
		txIDBytes, err := dec.Bytes()
		if err != nil {
			return nil, errors.NewStorageError("decoding restored coin tx id", err)
		}
		index, err := dec.Uint32()
		if err != nil {
			return nil, errors.NewStorageError("decoding restored coin index", err)
		}
		value, err := dec.Uint64()
		if err != nil {
			return nil, errors.NewStorageError("decoding restored coin value", err)
		}
		script, err := dec.Bytes()
		if err != nil {
			return nil, errors.NewStorageError("decoding restored coin script", err)
		}
		coinHeight, err := dec.Uint32()
		if err != nil {
			return nil, errors.NewStorageError("decoding restored coin height", err)
		}
		isCoinbase, err := dec.Bool()
		if err != nil {
			return nil, errors.NewStorageError("decoding restored coin coinbase flag", err)
		}

		var op model.OutPoint
		copy(op.TxID[:], txIDBytes)
		op.Index = index

		r.RestoredCoins[i] = RestoredCoin{
			OutPoint: op,
			Coin:     model.Coin{Value: value, Script: script, Height: coinHeight, IsCoinbase: isCoinbase},
		}
	}

	return r, nil
}
