package addrindex

import (
	"database/sql"
	"encoding/binary"
	"net/url"
	"strconv"
	"strings"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/stores/kv"
	"github.com/libsv/go-bt/v2/chainhash"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// sqlRepository is the optional SQL-backed Repository (§4.4.1), selected
// instead of kvRepository when the address-index store URL's scheme names a
// SQL backend rather than the default shared goleveldb engine. Grounded on
// stores/blob.Store's URL-scheme dispatch idiom (teacher), generalized here
// from blob storage to a relational schema since the SQL backends this
// indexer targets (postgres, sqlite) are row stores, not blob stores.
type sqlRepository struct {
	db     *sql.DB
	driver string
}

// NewRepository opens the Repository named by storeURL: "leveldb" (the
// default) returns kvRepository over db's shared namespace; "postgres" or
// "sqlite"/"sqlitememory" open a dedicated SQL connection instead.
func NewRepository(db *kv.DB, storeURL *url.URL) (Repository, error) {
	switch storeURL.Scheme {
	case "", "leveldb":
		return NewKVRepository(db), nil
	case "postgres", "postgresql":
		sqlDB, err := sql.Open("postgres", storeURL.String())
		if err != nil {
			return nil, errors.NewStorageError("addrindex: opening postgres store: %v", err)
		}
		repo := &sqlRepository{db: sqlDB, driver: "postgres"}
		return repo, repo.migrate()
	case "sqlite", "sqlitememory":
		dsn := strings.TrimPrefix(storeURL.String(), storeURL.Scheme+"://")
		if storeURL.Scheme == "sqlitememory" || dsn == "" {
			dsn = ":memory:"
		}
		sqlDB, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, errors.NewStorageError("addrindex: opening sqlite store: %v", err)
		}
		repo := &sqlRepository{db: sqlDB, driver: "sqlite"}
		return repo, repo.migrate()
	default:
		return nil, errors.NewInvalidArgumentError("addrindex: unsupported store scheme %q", storeURL.Scheme)
	}
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS addr_balance_changes (
	address TEXT NOT NULL,
	seq     INTEGER NOT NULL,
	height  INTEGER NOT NULL,
	amount  BIGINT NOT NULL,
	direction INTEGER NOT NULL,
	PRIMARY KEY (address, seq)
);
CREATE TABLE IF NOT EXISTS addr_outpoints (
	txid   BLOB NOT NULL,
	idx    INTEGER NOT NULL,
	script BLOB NOT NULL,
	amount BIGINT NOT NULL,
	PRIMARY KEY (txid, idx)
);
CREATE TABLE IF NOT EXISTS addr_rewind_records (
	height BLOB NOT NULL,
	hash   BLOB NOT NULL,
	record BLOB NOT NULL,
	PRIMARY KEY (hash)
);
CREATE TABLE IF NOT EXISTS addr_tip (
	id     INTEGER PRIMARY KEY CHECK (id = 1),
	hash   BLOB NOT NULL,
	height INTEGER NOT NULL
);
`

func (r *sqlRepository) migrate() error {
	for _, stmt := range strings.Split(sqlSchema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if r.driver == "postgres" {
			stmt = strings.ReplaceAll(stmt, "BLOB", "BYTEA")
		}
		if _, err := r.db.Exec(stmt); err != nil {
			return errors.NewStorageError("addrindex: migrating sql schema: %v", err)
		}
	}
	return nil
}

// rebind rewrites `?` positional placeholders into postgres's `$1, $2, ...`
// form for the postgres driver; sqlite accepts `?` as written.
func (r *sqlRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *sqlRepository) exec(query string, args ...interface{}) (sql.Result, error) {
	return r.db.Exec(r.rebind(query), args...)
}

func (r *sqlRepository) query(query string, args ...interface{}) (*sql.Rows, error) {
	return r.db.Query(r.rebind(query), args...)
}

func (r *sqlRepository) queryRow(query string, args ...interface{}) *sql.Row {
	return r.db.QueryRow(r.rebind(query), args...)
}

func (r *sqlRepository) AppendBalanceChange(address string, change BalanceChange) error {
	var next int
	row := r.queryRow(`SELECT COALESCE(MAX(seq), -1) + 1 FROM addr_balance_changes WHERE address = ?`, address)
	if err := row.Scan(&next); err != nil {
		return errors.NewStorageError("addrindex: reading next seq for %s: %v", address, err)
	}
	_, err := r.exec(`INSERT INTO addr_balance_changes (address, seq, height, amount, direction) VALUES (?, ?, ?, ?, ?)`,
		address, next, change.Height, change.Amount, int(change.Direction))
	if err != nil {
		return errors.NewStorageError("addrindex: appending balance change for %s: %v", address, err)
	}
	return nil
}

func (r *sqlRepository) BalanceChanges(address string) ([]BalanceChange, error) {
	rows, err := r.query(`SELECT height, amount, direction FROM addr_balance_changes WHERE address = ? ORDER BY seq ASC`, address)
	if err != nil {
		return nil, errors.NewStorageError("addrindex: reading balance changes for %s: %v", address, err)
	}
	defer rows.Close()

	var changes []BalanceChange
	for rows.Next() {
		var c BalanceChange
		var direction int
		if err := rows.Scan(&c.Height, &c.Amount, &direction); err != nil {
			return nil, errors.NewStorageError("addrindex: scanning balance change for %s: %v", address, err)
		}
		c.Direction = Direction(direction)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (r *sqlRepository) SetBalanceChanges(address string, changes []BalanceChange) error {
	tx, err := r.db.Begin()
	if err != nil {
		return errors.NewStorageError("addrindex: starting tx for %s: %v", address, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	if _, err := tx.Exec(r.rebind(`DELETE FROM addr_balance_changes WHERE address = ?`), address); err != nil {
		return errors.NewStorageError("addrindex: clearing balance changes for %s: %v", address, err)
	}
	for i, c := range changes {
		if _, err := tx.Exec(r.rebind(`INSERT INTO addr_balance_changes (address, seq, height, amount, direction) VALUES (?, ?, ?, ?, ?)`),
			address, i, c.Height, c.Amount, int(c.Direction)); err != nil {
			return errors.NewStorageError("addrindex: rewriting balance changes for %s: %v", address, err)
		}
	}
	return tx.Commit()
}

func (r *sqlRepository) Addresses() ([]string, error) {
	rows, err := r.query(`SELECT DISTINCT address FROM addr_balance_changes`)
	if err != nil {
		return nil, errors.NewStorageError("addrindex: listing addresses: %v", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, errors.NewStorageError("addrindex: scanning address: %v", err)
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

func (r *sqlRepository) PutOutPoint(op model.OutPoint, script []byte, amount uint64) error {
	_, err := r.exec(`INSERT INTO addr_outpoints (txid, idx, script, amount) VALUES (?, ?, ?, ?)
		ON CONFLICT (txid, idx) DO UPDATE SET script = excluded.script, amount = excluded.amount`,
		op.TxID[:], op.Index, script, amount)
	if err != nil {
		return errors.NewStorageError("addrindex: storing outpoint: %v", err)
	}
	return nil
}

func (r *sqlRepository) GetOutPoint(op model.OutPoint) ([]byte, uint64, error) {
	var script []byte
	var amount uint64
	row := r.queryRow(`SELECT script, amount FROM addr_outpoints WHERE txid = ? AND idx = ?`, op.TxID[:], op.Index)
	if err := row.Scan(&script, &amount); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, errors.NewNotFoundError("addrindex: outpoint %s:%d not found", op.TxID, op.Index)
		}
		return nil, 0, errors.NewStorageError("addrindex: reading outpoint: %v", err)
	}
	return script, amount, nil
}

func (r *sqlRepository) DeleteOutPoint(op model.OutPoint) error {
	_, err := r.exec(`DELETE FROM addr_outpoints WHERE txid = ? AND idx = ?`, op.TxID[:], op.Index)
	if err != nil {
		return errors.NewStorageError("addrindex: deleting outpoint: %v", err)
	}
	return nil
}

func (r *sqlRepository) PutRewindRecord(rr *RewindRecord) error {
	data := encodeRewindRecord(rr)
	heightKey := make([]byte, 4)
	binary.BigEndian.PutUint32(heightKey, rr.Height)
	_, err := r.exec(`INSERT INTO addr_rewind_records (height, hash, record) VALUES (?, ?, ?)
		ON CONFLICT (hash) DO UPDATE SET record = excluded.record, height = excluded.height`,
		heightKey, rr.BlockHash[:], data)
	if err != nil {
		return errors.NewStorageError("addrindex: storing rewind record: %v", err)
	}
	return nil
}

func (r *sqlRepository) RewindRecordsAbove(height uint32) ([]*RewindRecord, error) {
	rows, err := r.query(`SELECT record FROM addr_rewind_records`)
	if err != nil {
		return nil, errors.NewStorageError("addrindex: listing rewind records: %v", err)
	}
	defer rows.Close()

	var out []*RewindRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.NewStorageError("addrindex: scanning rewind record: %v", err)
		}
		rec, err := decodeRewindRecord(data)
		if err != nil {
			continue
		}
		if rec.Height > height {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

func (r *sqlRepository) DeleteRewindRecord(hash chainhash.Hash) error {
	_, err := r.exec(`DELETE FROM addr_rewind_records WHERE hash = ?`, hash[:])
	if err != nil {
		return errors.NewStorageError("addrindex: deleting rewind record: %v", err)
	}
	return nil
}

func (r *sqlRepository) PruneRewindRecordsBelow(height uint32) error {
	heightKey := make([]byte, 4)
	binary.BigEndian.PutUint32(heightKey, height)
	_, err := r.exec(`DELETE FROM addr_rewind_records WHERE height < ?`, heightKey)
	if err != nil {
		return errors.NewStorageError("addrindex: pruning rewind records: %v", err)
	}
	return nil
}

func (r *sqlRepository) Tip() (chainhash.Hash, uint32, bool, error) {
	var hashBytes []byte
	var height uint32
	row := r.queryRow(`SELECT hash, height FROM addr_tip WHERE id = 1`)
	if err := row.Scan(&hashBytes, &height); err != nil {
		if err == sql.ErrNoRows {
			return chainhash.Hash{}, 0, false, nil
		}
		return chainhash.Hash{}, 0, false, errors.NewStorageError("addrindex: reading tip: %v", err)
	}
	var hash chainhash.Hash
	copy(hash[:], hashBytes)
	return hash, height, true, nil
}

func (r *sqlRepository) SetTip(hash chainhash.Hash, height uint32) error {
	_, err := r.exec(`INSERT INTO addr_tip (id, hash, height) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET hash = excluded.hash, height = excluded.height`,
		hash[:], height)
	if err != nil {
		return errors.NewStorageError("addrindex: storing tip: %v", err)
	}
	return nil
}
