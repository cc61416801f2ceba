package addrindex

import (
	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/loopholelabs/polyglot"
)

func encodeBalanceChanges(changes []BalanceChange) []byte {
	buf := polyglot.NewBuffer()
	enc := polyglot.Encoder(buf)

	enc.Uint32(uint32(len(changes)))
	for _, c := range changes {
		enc.Uint32(c.Height)
		enc.Uint64(c.Amount)
		enc.Bool(c.Direction == Withdrawal)
	}

	return buf.Bytes()
}

func decodeBalanceChanges(data []byte) ([]BalanceChange, error) {
	dec := polyglot.NewDecoder(data)

	count, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding balance change count", err)
	}

	changes := make([]BalanceChange, count)
	for i := range changes {
		height, err := dec.Uint32()
		if err != nil {
			return nil, errors.NewStorageError("decoding balance change height", err)
		}
		amount, err := dec.Uint64()
		if err != nil {
			return nil, errors.NewStorageError("decoding balance change amount", err)
		}
		isWithdrawal, err := dec.Bool()
		if err != nil {
			return nil, errors.NewStorageError("decoding balance change direction", err)
		}
		dir := Deposit
		if isWithdrawal {
			dir = Withdrawal
		}
		changes[i] = BalanceChange{Height: height, Amount: amount, Direction: dir}
	}

	return changes, nil
}

func encodeOutPointRecord(script []byte, amount uint64) []byte {
	buf := polyglot.NewBuffer()
	enc := polyglot.Encoder(buf)
	enc.Bytes(script)
	enc.Uint64(amount)
	return buf.Bytes()
}

func decodeOutPointRecord(data []byte) (script []byte, amount uint64, err error) {
	dec := polyglot.NewDecoder(data)

	script, err = dec.Bytes()
	if err != nil {
		return nil, 0, errors.NewStorageError("decoding out-point script", err)
	}
	amount, err = dec.Uint64()
	if err != nil {
		return nil, 0, errors.NewStorageError("decoding out-point amount", err)
	}
	return script, amount, nil
}

func encodeRewindRecord(r *RewindRecord) []byte {
	buf := polyglot.NewBuffer()
	enc := polyglot.Encoder(buf)

	enc.Bytes(r.BlockHash[:])
	enc.Uint32(r.Height)
	enc.Uint32(uint32(len(r.Consumed)))
	for _, c := range r.Consumed {
		enc.Bytes(c.OutPoint.TxID[:])
		enc.Uint32(c.OutPoint.Index)
		enc.Bytes(c.Script)
		enc.Uint64(c.Amount)
	}

	return buf.Bytes()
}

func decodeRewindRecord(data []byte) (*RewindRecord, error) {
	dec := polyglot.NewDecoder(data)

	r := &RewindRecord{}

	hashBytes, err := dec.Bytes()
	if err != nil {
		return nil, errors.NewStorageError("decoding rewind record block hash", err)
	}
	copy(r.BlockHash[:], hashBytes)

	height, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding rewind record height", err)
	}
	r.Height = height

	count, err := dec.Uint32()
	if err != nil {
		return nil, errors.NewStorageError("decoding rewind record consumed count", err)
	}

	r.Consumed = make([]ConsumedOutPoint, count)
	for i := range r.Consumed {
		txIDBytes, err := dec.Bytes()
		if err != nil {
			return nil, errors.NewStorageError("decoding consumed out-point tx id", err)
		}
		index, err := dec.Uint32()
		if err != nil {
			return nil, errors.NewStorageError("decoding consumed out-point index", err)
		}
		script, err := dec.Bytes()
		if err != nil {
			return nil, errors.NewStorageError("decoding consumed out-point script", err)
		}
		amount, err := dec.Uint64()
		if err != nil {
			return nil, errors.NewStorageError("decoding consumed out-point amount", err)
		}

		r.Consumed[i].OutPoint.Index = index
		copy(r.Consumed[i].OutPoint.TxID[:], txIDBytes)
		r.Consumed[i].Script = script
		r.Consumed[i].Amount = amount
	}

	return r, nil
}
