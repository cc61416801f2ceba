package addrindex

import (
	"encoding/binary"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/stores/kv"
	"github.com/libsv/go-bt/v2/chainhash"
)

var (
	balancePrefix  = []byte("bal:")
	outpointPrefix = []byte("op:")
	rewindPrefix   = []byte("rw:")
	tipKey         = []byte("tip")
)

func outpointKey(op model.OutPoint) []byte {
	key := make([]byte, 0, len(outpointPrefix)+36)
	key = append(key, outpointPrefix...)
	key = append(key, op.TxID[:]...)
	idx := make([]byte, 4)
	binary.BigEndian.PutUint32(idx, op.Index)
	return append(key, idx...)
}

func rewindKey(height uint32, hash chainhash.Hash) []byte {
	key := make([]byte, 0, len(rewindPrefix)+4+32)
	key = append(key, rewindPrefix...)
	h := make([]byte, 4)
	binary.BigEndian.PutUint32(h, height)
	key = append(key, h...)
	return append(key, hash[:]...)
}

func rewindKeyHeight(key []byte) uint32 {
	if len(key) < len(rewindPrefix)+4 {
		return 0
	}
	return binary.BigEndian.Uint32(key[len(rewindPrefix) : len(rewindPrefix)+4])
}

// kvRepository is the default Repository, backed by the shared goleveldb
// engine's AddrIndex namespace (§6's four logical namespaces).
type kvRepository struct {
	store *kv.Store
}

// NewKVRepository opens the default repository against db's AddrIndex
// namespace.
func NewKVRepository(db *kv.DB) Repository {
	return &kvRepository{store: db.Namespaced(kv.NamespaceAddrIndex)}
}

func (r *kvRepository) AppendBalanceChange(address string, change BalanceChange) error {
	existing, err := r.BalanceChanges(address)
	if err != nil {
		return err
	}
	existing = append(existing, change)
	return r.SetBalanceChanges(address, existing)
}

func (r *kvRepository) BalanceChanges(address string) ([]BalanceChange, error) {
	key := append(append([]byte{}, balancePrefix...), []byte(address)...)
	data, err := r.store.Get(key)
	if err != nil {
		if errors.Is(err, errors.NewNotFoundError("")) {
			return nil, nil
		}
		return nil, err
	}
	return decodeBalanceChanges(data)
}

func (r *kvRepository) SetBalanceChanges(address string, changes []BalanceChange) error {
	key := append(append([]byte{}, balancePrefix...), []byte(address)...)
	if len(changes) == 0 {
		return r.store.Delete(key)
	}
	return r.store.Put(key, encodeBalanceChanges(changes))
}

func (r *kvRepository) Addresses() ([]string, error) {
	var addresses []string
	err := r.store.Iterate(balancePrefix, func(key, _ []byte) bool {
		addresses = append(addresses, string(key[len(balancePrefix):]))
		return true
	})
	return addresses, err
}

func (r *kvRepository) PutOutPoint(op model.OutPoint, script []byte, amount uint64) error {
	return r.store.Put(outpointKey(op), encodeOutPointRecord(script, amount))
}

func (r *kvRepository) GetOutPoint(op model.OutPoint) ([]byte, uint64, error) {
	data, err := r.store.Get(outpointKey(op))
	if err != nil {
		return nil, 0, err
	}
	return decodeOutPointRecord(data)
}

func (r *kvRepository) DeleteOutPoint(op model.OutPoint) error {
	return r.store.Delete(outpointKey(op))
}

func (r *kvRepository) PutRewindRecord(rr *RewindRecord) error {
	return r.store.Put(rewindKey(rr.Height, rr.BlockHash), encodeRewindRecord(rr))
}

func (r *kvRepository) RewindRecordsAbove(height uint32) ([]*RewindRecord, error) {
	var out []*RewindRecord
	err := r.store.Iterate(rewindPrefix, func(key, value []byte) bool {
		if rewindKeyHeight(key) <= height {
			return true
		}
		rec, decErr := decodeRewindRecord(value)
		if decErr != nil {
			return true
		}
		out = append(out, rec)
		return true
	})
	return out, err
}

func (r *kvRepository) DeleteRewindRecord(hash chainhash.Hash) error {
	var target []byte
	err := r.store.Iterate(rewindPrefix, func(key, _ []byte) bool {
		if len(key) >= 32 && chainhash.Hash(([32]byte)(key[len(key)-32:])) == hash {
			target = append([]byte{}, key...)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	return r.store.Delete(target)
}

func (r *kvRepository) PruneRewindRecordsBelow(height uint32) error {
	var stale [][]byte
	err := r.store.Iterate(rewindPrefix, func(key, _ []byte) bool {
		if rewindKeyHeight(key) < height {
			stale = append(stale, append([]byte{}, key...))
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, key := range stale {
		if err := r.store.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (r *kvRepository) Tip() (chainhash.Hash, uint32, bool, error) {
	data, err := r.store.Get(tipKey)
	if err != nil {
		if errors.Is(err, errors.NewNotFoundError("")) {
			return chainhash.Hash{}, 0, false, nil
		}
		return chainhash.Hash{}, 0, false, err
	}
	if len(data) < 36 {
		return chainhash.Hash{}, 0, false, errors.NewStorageError("addrindex tip record too short")
	}
	var hash chainhash.Hash
	copy(hash[:], data[:32])
	height := binary.BigEndian.Uint32(data[32:36])
	return hash, height, true, nil
}

func (r *kvRepository) SetTip(hash chainhash.Hash, height uint32) error {
	data := make([]byte, 36)
	copy(data[:32], hash[:])
	binary.BigEndian.PutUint32(data[32:36], height)
	return r.store.Put(tipKey, data)
}
