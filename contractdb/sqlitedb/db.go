// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqlitedb

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btccustody/contractdb"

	// Register the SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"
)

// Every bucket and value lives in a single table.  A row with a NULL value
// marks a nested bucket.  Bucket ids are the concatenation of the
// length-prefixed names on the path from the root, which keeps ids
// prefix-free so a subtree can be removed with a prefix match.
const createTableSQL = `
CREATE TABLE IF NOT EXISTS kv (
	bucket BLOB NOT NULL,
	k      BLOB NOT NULL,
	v      BLOB,
	PRIMARY KEY (bucket, k)
) WITHOUT ROWID;`

const (
	lookupSQL       = `SELECT v, v IS NULL FROM kv WHERE bucket = ? AND k = ?`
	forEachSQL      = `SELECT k, v, v IS NULL FROM kv WHERE bucket = ? ORDER BY k`
	upsertValueSQL  = `INSERT INTO kv (bucket, k, v) VALUES (?, ?, ?) ON CONFLICT (bucket, k) DO UPDATE SET v = excluded.v`
	insertBucketSQL = `INSERT INTO kv (bucket, k, v) VALUES (?, ?, NULL)`
	deleteValueSQL  = `DELETE FROM kv WHERE bucket = ? AND k = ? AND v IS NOT NULL`
	deleteRowSQL    = `DELETE FROM kv WHERE bucket = ? AND k = ?`
	deleteTreeSQL   = `DELETE FROM kv WHERE substr(bucket, 1, ?) = ?`
)

// rootID is the id of the implicit bucket holding all top level buckets.  It
// must be a non-nil empty slice so it binds as an empty blob, not NULL.
var rootID = []byte{}

// childID returns the id of the nested bucket key below parent.
func childID(parent, key []byte) ([]byte, error) {
	if len(key) > math.MaxUint16 {
		return nil, fmt.Errorf("bucket name of %d bytes exceeds %d "+
			"byte limit", len(key), math.MaxUint16)
	}
	id := make([]byte, 0, len(parent)+2+len(key))
	id = append(id, parent...)
	id = binary.BigEndian.AppendUint16(id, uint16(len(key)))
	return append(id, key...), nil
}

// db is a contractdb.DB backed by a SQLite database file.
type db struct {
	sqlDB *sql.DB

	// writeMtx is held for the life of each read-write transaction.
	writeMtx sync.Mutex

	mtx    sync.Mutex
	closed bool
}

// Enforce db implements the contractdb.DB interface.
var _ contractdb.DB = (*db)(nil)

func (db *db) beginTx(writable bool) (*transaction, error) {
	db.mtx.Lock()
	closed := db.closed
	db.mtx.Unlock()
	if closed {
		return nil, contractdb.ErrDbNotOpen
	}

	if writable {
		db.writeMtx.Lock()
	}
	sqlTx, err := db.sqlDB.Begin()
	if err != nil {
		if writable {
			db.writeMtx.Unlock()
		}
		return nil, err
	}
	return &transaction{db: db, sqlTx: sqlTx, writable: writable}, nil
}

// BeginReadTx opens a database read transaction.
//
// This function is part of the contractdb.DB interface implementation.
func (db *db) BeginReadTx() (contractdb.ReadTx, error) {
	return db.beginTx(false)
}

// BeginReadWriteTx opens a database read+write transaction.
//
// This function is part of the contractdb.DB interface implementation.
func (db *db) BeginReadWriteTx() (contractdb.ReadWriteTx, error) {
	return db.beginTx(true)
}

// Close cleanly shuts down the database.
//
// This function is part of the contractdb.DB interface implementation.
func (db *db) Close() error {
	db.mtx.Lock()
	defer db.mtx.Unlock()

	if db.closed {
		return contractdb.ErrDbNotOpen
	}
	db.closed = true
	return db.sqlDB.Close()
}

// transaction implements the contractdb transaction interfaces over a single
// SQL transaction.
type transaction struct {
	db       *db
	sqlTx    *sql.Tx
	writable bool
	done     bool

	// err records the first query failure seen by a method that cannot
	// return an error, such as Get.  A transaction with a recorded error
	// refuses to commit and reports it from Rollback.
	err error
}

func (tx *transaction) setErr(err error) {
	if tx.err == nil {
		tx.err = err
	}
}

func (tx *transaction) root() *bucket {
	return &bucket{tx: tx, id: rootID}
}

func (tx *transaction) ReadBucket(key []byte) contractdb.ReadBucket {
	return tx.ReadWriteBucket(key)
}

func (tx *transaction) ReadWriteBucket(key []byte) contractdb.ReadWriteBucket {
	return tx.root().NestedReadWriteBucket(key)
}

func (tx *transaction) CreateTopLevelBucket(key []byte) (contractdb.ReadWriteBucket, error) {
	return tx.root().CreateBucketIfNotExists(key)
}

func (tx *transaction) DeleteTopLevelBucket(key []byte) error {
	return tx.root().DeleteNestedBucket(key)
}

func (tx *transaction) finish() {
	tx.done = true
	if tx.writable {
		tx.db.writeMtx.Unlock()
	}
}

// Commit commits all changes made through the transaction.
//
// This function is part of the contractdb.ReadWriteTx interface
// implementation.
func (tx *transaction) Commit() error {
	if tx.done {
		return contractdb.ErrTxClosed
	}
	if !tx.writable {
		return contractdb.ErrTxNotWritable
	}
	defer tx.finish()

	if tx.err != nil {
		_ = tx.sqlTx.Rollback()
		return tx.err
	}
	return tx.sqlTx.Commit()
}

// Rollback discards all changes made through the transaction.  A query
// failure recorded by a method that could not return it is reported here, so
// read transactions do not mistake it for a missing key.
//
// This function is part of the contractdb.ReadTx interface implementation.
func (tx *transaction) Rollback() error {
	if tx.done {
		return contractdb.ErrTxClosed
	}
	defer tx.finish()

	err := tx.sqlTx.Rollback()
	if tx.err != nil {
		return tx.err
	}
	return err
}

// bucket is a view of the rows belonging to one bucket id.
type bucket struct {
	tx *transaction
	id []byte
}

// Enforce bucket implements the contractdb Bucket interfaces.
var _ contractdb.ReadWriteBucket = (*bucket)(nil)

// lookup returns the value stored at key and whether the key names a nested
// bucket.  A nil value with isBucket false means the key does not exist.
func (b *bucket) lookup(key []byte) (v []byte, isBucket bool, err error) {
	row := b.tx.sqlTx.QueryRow(lookupSQL, b.id, key)
	err = row.Scan(&v, &isBucket)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	if isBucket {
		return nil, true, nil
	}
	if v == nil {
		v = []byte{}
	}
	return v, false, nil
}

func (b *bucket) checkWritable() error {
	if b.tx.done {
		return contractdb.ErrTxClosed
	}
	if !b.tx.writable {
		return contractdb.ErrTxNotWritable
	}
	return nil
}

// NestedReadWriteBucket retrieves a nested bucket with the given key.
// Returns nil if the bucket does not exist.
//
// This function is part of the contractdb.ReadWriteBucket interface
// implementation.
func (b *bucket) NestedReadWriteBucket(key []byte) contractdb.ReadWriteBucket {
	_, isBucket, err := b.lookup(key)
	if err != nil {
		b.tx.setErr(err)
		return nil
	}
	if !isBucket {
		return nil
	}
	id, err := childID(b.id, key)
	if err != nil {
		return nil
	}
	return &bucket{tx: b.tx, id: id}
}

func (b *bucket) NestedReadBucket(key []byte) contractdb.ReadBucket {
	// Don't return a non-nil interface to a nil pointer.
	if nested := b.NestedReadWriteBucket(key); nested != nil {
		return nested
	}
	return nil
}

// CreateBucketIfNotExists creates and returns a new nested bucket with the
// given key if it does not already exist.
//
// This function is part of the contractdb.ReadWriteBucket interface
// implementation.
func (b *bucket) CreateBucketIfNotExists(key []byte) (contractdb.ReadWriteBucket, error) {
	if err := b.checkWritable(); err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, contractdb.ErrBucketNameRequired
	}
	id, err := childID(b.id, key)
	if err != nil {
		return nil, err
	}

	v, isBucket, err := b.lookup(key)
	if err != nil {
		return nil, err
	}
	switch {
	case isBucket:
		return &bucket{tx: b.tx, id: id}, nil
	case v != nil:
		return nil, contractdb.ErrIncompatibleValue
	}

	if _, err := b.tx.sqlTx.Exec(insertBucketSQL, b.id, key); err != nil {
		return nil, err
	}
	return &bucket{tx: b.tx, id: id}, nil
}

// DeleteNestedBucket removes a nested bucket with the given key along with
// all of its descendants.
//
// This function is part of the contractdb.ReadWriteBucket interface
// implementation.
func (b *bucket) DeleteNestedBucket(key []byte) error {
	if err := b.checkWritable(); err != nil {
		return err
	}

	v, isBucket, err := b.lookup(key)
	if err != nil {
		return err
	}
	switch {
	case v != nil:
		return contractdb.ErrIncompatibleValue
	case !isBucket:
		return contractdb.ErrBucketNotFound
	}

	id, err := childID(b.id, key)
	if err != nil {
		return err
	}
	if _, err := b.tx.sqlTx.Exec(deleteTreeSQL, len(id), id); err != nil {
		return err
	}
	_, err = b.tx.sqlTx.Exec(deleteRowSQL, b.id, key)
	return err
}

// ForEach invokes the passed function with every key/value pair in the
// bucket, in key order.  Nested buckets are passed with a nil value.
//
// This function is part of the contractdb.ReadBucket interface
// implementation.
func (b *bucket) ForEach(fn func(k, v []byte) error) error {
	type pair struct {
		k, v []byte
	}

	// Rows are buffered so fn may issue further queries on the
	// transaction.
	rows, err := b.tx.sqlTx.Query(forEachSQL, b.id)
	if err != nil {
		return err
	}
	var pairs []pair
	for rows.Next() {
		var (
			p        pair
			isBucket bool
		)
		if err := rows.Scan(&p.k, &p.v, &isBucket); err != nil {
			rows.Close()
			return err
		}
		switch {
		case isBucket:
			p.v = nil
		case p.v == nil:
			p.v = []byte{}
		}
		pairs = append(pairs, p)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range pairs {
		if err := fn(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// Put saves the specified key/value pair to the bucket.
//
// This function is part of the contractdb.ReadWriteBucket interface
// implementation.
func (b *bucket) Put(key, value []byte) error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	if len(key) == 0 {
		return contractdb.ErrKeyRequired
	}

	_, isBucket, err := b.lookup(key)
	if err != nil {
		return err
	}
	if isBucket {
		return contractdb.ErrIncompatibleValue
	}

	if value == nil {
		value = []byte{}
	}
	_, err = b.tx.sqlTx.Exec(upsertValueSQL, b.id, key, value)
	return err
}

// Get returns the value for the given key.  Returns nil if the key does not
// exist or names a nested bucket.
//
// This function is part of the contractdb.ReadBucket interface
// implementation.
func (b *bucket) Get(key []byte) []byte {
	v, _, err := b.lookup(key)
	if err != nil {
		b.tx.setErr(err)
		return nil
	}
	return v
}

// Delete removes the specified key from the bucket.
//
// This function is part of the contractdb.ReadWriteBucket interface
// implementation.
func (b *bucket) Delete(key []byte) error {
	if err := b.checkWritable(); err != nil {
		return err
	}

	_, isBucket, err := b.lookup(key)
	if err != nil {
		return err
	}
	if isBucket {
		return contractdb.ErrIncompatibleValue
	}

	_, err = b.tx.sqlTx.Exec(deleteValueSQL, b.id, key)
	return err
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// openDB opens the database at the provided path.
// contractdb.ErrDbDoesNotExist is returned if the database doesn't exist and
// the create flag is not set.
func openDB(dbPath string, create bool) (contractdb.DB, error) {
	if !create && !fileExists(dbPath) {
		return nil, contractdb.ErrDbDoesNotExist
	}

	if create {
		err := os.MkdirAll(filepath.Dir(dbPath), 0700)
		if err != nil {
			return nil, err
		}
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(10000)" +
		"&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.Exec(createTableSQL); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &db{sqlDB: sqlDB}, nil
}
