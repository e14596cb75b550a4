// Copyright (c) 2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bdb

import (
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btccustody/contractdb"
	bolt "go.etcd.io/bbolt"
)

// openTimeout bounds how long opening waits for the file lock held by
// another process.
const openTimeout = 10 * time.Second

// convertErr converts some bolt errors to the equivalent contractdb error.
func convertErr(err error) error {
	switch err {
	// Database open/create errors.
	case bolt.ErrDatabaseNotOpen:
		return contractdb.ErrDbNotOpen
	case bolt.ErrInvalid:
		return contractdb.ErrInvalid

	// Transaction errors.
	case bolt.ErrTxNotWritable:
		return contractdb.ErrTxNotWritable
	case bolt.ErrTxClosed:
		return contractdb.ErrTxClosed

	// Value/bucket errors.
	case bolt.ErrBucketNotFound:
		return contractdb.ErrBucketNotFound
	case bolt.ErrBucketNameRequired:
		return contractdb.ErrBucketNameRequired
	case bolt.ErrKeyRequired:
		return contractdb.ErrKeyRequired
	case bolt.ErrIncompatibleValue:
		return contractdb.ErrIncompatibleValue
	}

	// Return the original error if none of the above applies.
	return err
}

// transaction represents a database transaction.  It can either by read-only
// or read-write and implements the contractdb Tx interfaces.
type transaction struct {
	boltTx *bolt.Tx
}

func (tx *transaction) ReadBucket(key []byte) contractdb.ReadBucket {
	return tx.ReadWriteBucket(key)
}

func (tx *transaction) ReadWriteBucket(key []byte) contractdb.ReadWriteBucket {
	boltBucket := tx.boltTx.Bucket(key)
	if boltBucket == nil {
		return nil
	}
	return (*bucket)(boltBucket)
}

func (tx *transaction) CreateTopLevelBucket(key []byte) (contractdb.ReadWriteBucket, error) {
	boltBucket, err := tx.boltTx.CreateBucketIfNotExists(key)
	if err != nil {
		return nil, convertErr(err)
	}
	return (*bucket)(boltBucket), nil
}

func (tx *transaction) DeleteTopLevelBucket(key []byte) error {
	return convertErr(tx.boltTx.DeleteBucket(key))
}

// Commit commits all changes that have been made through the root bucket and
// all of its sub-buckets to persistent storage.
//
// This function is part of the contractdb.ReadWriteTx interface
// implementation.
func (tx *transaction) Commit() error {
	return convertErr(tx.boltTx.Commit())
}

// Rollback undoes all changes that have been made to the root bucket and all
// of its sub-buckets.
//
// This function is part of the contractdb.ReadTx interface implementation.
func (tx *transaction) Rollback() error {
	return convertErr(tx.boltTx.Rollback())
}

// bucket is an internal type used to represent a collection of key/value
// pairs and implements the contractdb Bucket interfaces.
type bucket bolt.Bucket

// Enforce bucket implements the contractdb Bucket interfaces.
var _ contractdb.ReadWriteBucket = (*bucket)(nil)

// NestedReadWriteBucket retrieves a nested bucket with the given key.
// Returns nil if the bucket does not exist.
//
// This function is part of the contractdb.ReadWriteBucket interface
// implementation.
func (b *bucket) NestedReadWriteBucket(key []byte) contractdb.ReadWriteBucket {
	boltBucket := (*bolt.Bucket)(b).Bucket(key)
	// Don't return a non-nil interface to a nil pointer.
	if boltBucket == nil {
		return nil
	}
	return (*bucket)(boltBucket)
}

func (b *bucket) NestedReadBucket(key []byte) contractdb.ReadBucket {
	return b.NestedReadWriteBucket(key)
}

// CreateBucketIfNotExists creates and returns a new nested bucket with the
// given key if it does not already exist.
//
// This function is part of the contractdb.ReadWriteBucket interface
// implementation.
func (b *bucket) CreateBucketIfNotExists(key []byte) (contractdb.ReadWriteBucket, error) {
	boltBucket, err := (*bolt.Bucket)(b).CreateBucketIfNotExists(key)
	if err != nil {
		return nil, convertErr(err)
	}
	return (*bucket)(boltBucket), nil
}

// DeleteNestedBucket removes a nested bucket with the given key.
//
// This function is part of the contractdb.ReadWriteBucket interface
// implementation.
func (b *bucket) DeleteNestedBucket(key []byte) error {
	return convertErr((*bolt.Bucket)(b).DeleteBucket(key))
}

// ForEach invokes the passed function with every key/value pair in the
// bucket.
//
// This function is part of the contractdb.ReadBucket interface
// implementation.
func (b *bucket) ForEach(fn func(k, v []byte) error) error {
	return convertErr((*bolt.Bucket)(b).ForEach(fn))
}

// Put saves the specified key/value pair to the bucket.
//
// This function is part of the contractdb.ReadWriteBucket interface
// implementation.
func (b *bucket) Put(key, value []byte) error {
	return convertErr((*bolt.Bucket)(b).Put(key, value))
}

// Get returns the value for the given key.
//
// This function is part of the contractdb.ReadBucket interface
// implementation.
func (b *bucket) Get(key []byte) []byte {
	return (*bolt.Bucket)(b).Get(key)
}

// Delete removes the specified key from the bucket.
//
// This function is part of the contractdb.ReadWriteBucket interface
// implementation.
func (b *bucket) Delete(key []byte) error {
	return convertErr((*bolt.Bucket)(b).Delete(key))
}

// db represents a collection of namespaces which are persisted and
// implements the contractdb.DB interface.  All database access is performed
// through transactions which are obtained through the specific Namespace.
type db bolt.DB

// Enforce db implements the contractdb.DB interface.
var _ contractdb.DB = (*db)(nil)

func (db *db) beginTx(writable bool) (*transaction, error) {
	boltTx, err := (*bolt.DB)(db).Begin(writable)
	if err != nil {
		return nil, convertErr(err)
	}
	return &transaction{boltTx: boltTx}, nil
}

func (db *db) BeginReadTx() (contractdb.ReadTx, error) {
	return db.beginTx(false)
}

func (db *db) BeginReadWriteTx() (contractdb.ReadWriteTx, error) {
	return db.beginTx(true)
}

// Close cleanly shuts down the database and syncs all data.
//
// This function is part of the contractdb.DB interface implementation.
func (db *db) Close() error {
	return convertErr((*bolt.DB)(db).Close())
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

// openDB opens the database at the provided path.  contractdb.ErrDbDoesNotExist
// is returned if the database doesn't exist and the create flag is not set.
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

	boltDB, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: openTimeout,
	})
	if err != nil {
		return nil, convertErr(err)
	}
	return (*db)(boltDB), nil
}
