// Package kv is the on-disk key-value engine shared by the header tree,
// block store, coinview, and address indexer (§6's "four logical
// namespaces... within one goleveldb database, key-prefixed"). Grounded on
// the teacher's stores/blob/factory.go scheme-switch pattern for selecting a
// backend, generalized here to a namespace prefix instead of a store-wide
// scheme since all four namespaces share one physical database by default.
package kv

import (
	"bytes"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/iterator"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/util"
)

// Namespace is a one-byte key prefix separating the logical keyspaces
// sharing one physical database.
type Namespace byte

const (
	NamespaceHeaders   Namespace = 'H'
	NamespaceBlocks    Namespace = 'B'
	NamespaceCoinview  Namespace = 'C'
	NamespaceAddrIndex Namespace = 'A'
)

// DB wraps a goleveldb handle, opened once per node and shared by every
// namespaced store below.
type DB struct {
	ldb *leveldb.DB
}

// Open opens (creating if absent) the goleveldb database at dir.
func Open(dir string) (*DB, error) {
	ldb, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, errors.NewStorageError("opening goleveldb at %s", dir, err)
	}
	return &DB{ldb: ldb}, nil
}

// Close releases the underlying database handle.
func (db *DB) Close() error {
	if err := db.ldb.Close(); err != nil {
		return errors.NewStorageError("closing goleveldb", err)
	}
	return nil
}

// Namespaced returns a view of db restricted to keys under ns.
func (db *DB) Namespaced(ns Namespace) *Store {
	return &Store{db: db.ldb, ns: ns}
}

// Store is a namespaced view over the shared DB: every key is transparently
// prefixed with its one-byte namespace so the four logical keyspaces never
// collide within the single physical database.
type Store struct {
	db *leveldb.DB
	ns Namespace
}

func (s *Store) prefixed(key []byte) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, byte(s.ns))
	return append(out, key...)
}

// Get returns the value stored at key, or a not-found error.
func (s *Store) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(s.prefixed(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, errors.NewNotFoundError("key not found")
		}
		return nil, errors.NewStorageError("reading key", err)
	}
	return v, nil
}

// Has reports whether key exists in this namespace.
func (s *Store) Has(key []byte) (bool, error) {
	ok, err := s.db.Has(s.prefixed(key), nil)
	if err != nil {
		return false, errors.NewStorageError("checking key existence", err)
	}
	return ok, nil
}

// Put writes value at key.
func (s *Store) Put(key, value []byte) error {
	if err := s.db.Put(s.prefixed(key), value, nil); err != nil {
		return errors.NewStorageError("writing key", err)
	}
	return nil
}

// Delete removes key, a no-op if absent.
func (s *Store) Delete(key []byte) error {
	if err := s.db.Delete(s.prefixed(key), nil); err != nil {
		return errors.NewStorageError("deleting key", err)
	}
	return nil
}

// Batch accumulates writes for one atomic commit, scoped to this namespace.
type Batch struct {
	ns  Namespace
	b   leveldb.Batch
	len int
}

// NewBatch starts an empty batch for this namespace.
func (s *Store) NewBatch() *Batch {
	return &Batch{ns: s.ns}
}

func (b *Batch) prefixed(key []byte) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, byte(b.ns))
	return append(out, key...)
}

// Put stages a write in the batch.
func (b *Batch) Put(key, value []byte) {
	b.b.Put(b.prefixed(key), value)
	b.len++
}

// Delete stages a delete in the batch.
func (b *Batch) Delete(key []byte) {
	b.b.Delete(b.prefixed(key))
	b.len++
}

// Len reports the number of staged operations.
func (b *Batch) Len() int { return b.len }

// Write commits the batch atomically.
func (s *Store) Write(b *Batch) error {
	if err := s.db.Write(&b.b, nil); err != nil {
		return errors.NewStorageError("writing batch", err)
	}
	return nil
}

// Iterate calls fn for every key with the given prefix within this
// namespace, in key order, stopping early if fn returns false.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	rng := util.BytesPrefix(s.prefixed(prefix))

	var it iterator.Iterator = s.db.NewIterator(rng, nil)
	defer it.Release()

	for it.Next() {
		key := bytes.TrimPrefix(it.Key(), []byte{byte(s.ns)})
		if !fn(key, it.Value()) {
			break
		}
	}
	return it.Error()
}
