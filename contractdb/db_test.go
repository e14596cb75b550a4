// Copyright (c) 2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package contractdb_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btccustody/contractdb"
	_ "github.com/btcsuite/btccustody/contractdb/bdb"
	_ "github.com/btcsuite/btccustody/contractdb/sqlitedb"
	"github.com/stretchr/testify/require"
)

// ignoreDbTypes are types which should be ignored when running tests that
// iterate all supported DB types.  This allows some tests to add bogus
// drivers for testing purposes while still allowing other tests to easily
// iterate all supported drivers.
var ignoreDbTypes = map[string]bool{"createopenfail": true}

// runWithDrivers runs fn once for every registered driver against a freshly
// created database.
func runWithDrivers(t *testing.T,
	fn func(t *testing.T, dbType, dbPath string, db contractdb.DB)) {

	t.Helper()

	for _, dbType := range contractdb.SupportedDrivers() {
		if ignoreDbTypes[dbType] {
			continue
		}

		dbType := dbType
		t.Run(dbType, func(t *testing.T) {
			t.Parallel()

			dbPath := filepath.Join(t.TempDir(), "contracts.db")
			db, err := contractdb.Create(dbType, dbPath)
			require.NoError(t, err)
			t.Cleanup(func() {
				_ = db.Close()
			})

			fn(t, dbType, dbPath, db)
		})
	}
}

// TestAddDuplicateDriver ensures that adding a duplicate driver does not
// overwrite an existing one.
func TestAddDuplicateDriver(t *testing.T) {
	var dbType string
	for _, drv := range contractdb.SupportedDrivers() {
		if !ignoreDbTypes[drv] {
			dbType = drv
			break
		}
	}
	require.NotEmpty(t, dbType, "no backends to test")

	// bogusCreateDB is a function which acts as a bogus create and open
	// driver function and intentionally returns a failure that can be
	// detected if the interface allows a duplicate driver to overwrite an
	// existing one.
	bogusCreateDB := func(args ...interface{}) (contractdb.DB, error) {
		return nil, fmt.Errorf("duplicate driver allowed for database "+
			"type [%v]", dbType)
	}

	driver := contractdb.Driver{
		DbType: dbType,
		Create: bogusCreateDB,
		Open:   bogusCreateDB,
	}
	err := contractdb.RegisterDriver(driver)
	require.ErrorIs(t, err, contractdb.ErrDbTypeRegistered)

	db, err := contractdb.Create(dbType,
		filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

// TestCreateOpenFail ensures that errors which occur while opening or
// creating a database are passed through untouched.
func TestCreateOpenFail(t *testing.T) {
	dbType := "createopenfail"
	openError := fmt.Errorf("failed to create or open database for "+
		"database type [%v]", dbType)
	bogusCreateDB := func(args ...interface{}) (contractdb.DB, error) {
		return nil, openError
	}

	_ = contractdb.RegisterDriver(contractdb.Driver{
		DbType: dbType,
		Create: bogusCreateDB,
		Open:   bogusCreateDB,
	})

	_, err := contractdb.Create(dbType)
	require.Equal(t, openError, err)

	_, err = contractdb.Open(dbType)
	require.Equal(t, openError, err)
}

// TestCreateOpenUnsupported ensures that attempting to create or open an
// unsupported database type is handled properly.
func TestCreateOpenUnsupported(t *testing.T) {
	_, err := contractdb.Create("unsupported")
	require.ErrorIs(t, err, contractdb.ErrDbUnknownType)

	_, err = contractdb.Open("unsupported")
	require.ErrorIs(t, err, contractdb.ErrDbUnknownType)
}

// TestOpenMissing ensures every driver refuses to open a database file that
// does not exist.
func TestOpenMissing(t *testing.T) {
	for _, dbType := range contractdb.SupportedDrivers() {
		if ignoreDbTypes[dbType] {
			continue
		}
		_, err := contractdb.Open(dbType,
			filepath.Join(t.TempDir(), "noexist.db"))
		require.ErrorIs(t, err, contractdb.ErrDbDoesNotExist, dbType)

		_, err = contractdb.Open(dbType, 1, 2, 3)
		require.Error(t, err, dbType)
	}
}

// TestBucketOperations exercises values and nested buckets through both
// kinds of transactions.
func TestBucketOperations(t *testing.T) {
	runWithDrivers(t, func(t *testing.T, _, _ string, db contractdb.DB) {
		nsKey := []byte("contract")

		err := contractdb.Update(db, func(tx contractdb.ReadWriteTx) error {
			ns, err := tx.CreateTopLevelBucket(nsKey)
			if err != nil {
				return err
			}

			// Creating the same top level bucket again is not an
			// error.
			if _, err := tx.CreateTopLevelBucket(nsKey); err != nil {
				return err
			}

			for _, k := range []string{"c", "a", "b"} {
				err := ns.Put([]byte(k), []byte("v"+k))
				if err != nil {
					return err
				}
			}
			nested, err := ns.CreateBucketIfNotExists([]byte("n"))
			if err != nil {
				return err
			}
			return nested.Put([]byte("x"), []byte{})
		})
		require.NoError(t, err)

		err = contractdb.View(db, func(tx contractdb.ReadTx) error {
			ns := tx.ReadBucket(nsKey)
			require.NotNil(t, ns)
			require.Nil(t, tx.ReadBucket([]byte("missing")))

			require.Equal(t, []byte("va"), ns.Get([]byte("a")))
			require.Nil(t, ns.Get([]byte("zz")))

			// Nested bucket keys read as nil values.
			require.Nil(t, ns.Get([]byte("n")))
			nested := ns.NestedReadBucket([]byte("n"))
			require.NotNil(t, nested)
			require.Empty(t, nested.Get([]byte("x")))
			require.Nil(t, ns.NestedReadBucket([]byte("a")))

			var keys []string
			var bucketKeys []string
			err := ns.ForEach(func(k, v []byte) error {
				keys = append(keys, string(k))
				if v == nil {
					bucketKeys = append(bucketKeys,
						string(k))
				}
				return nil
			})
			require.NoError(t, err)
			require.Equal(t, []string{"a", "b", "c", "n"}, keys)
			require.Equal(t, []string{"n"}, bucketKeys)
			return nil
		})
		require.NoError(t, err)

		err = contractdb.Update(db, func(tx contractdb.ReadWriteTx) error {
			ns := tx.ReadWriteBucket(nsKey)

			_, err := ns.CreateBucketIfNotExists([]byte("a"))
			require.ErrorIs(t, err, contractdb.ErrIncompatibleValue)

			err = ns.Put([]byte("n"), []byte("v"))
			require.ErrorIs(t, err, contractdb.ErrIncompatibleValue)

			err = ns.Put(nil, []byte("v"))
			require.ErrorIs(t, err, contractdb.ErrKeyRequired)

			require.NoError(t, ns.Delete([]byte("a")))
			require.NoError(t, ns.Delete([]byte("missing")))
			require.NoError(t, ns.DeleteNestedBucket([]byte("n")))

			err = ns.DeleteNestedBucket([]byte("n"))
			require.ErrorIs(t, err, contractdb.ErrBucketNotFound)
			return nil
		})
		require.NoError(t, err)

		err = contractdb.View(db, func(tx contractdb.ReadTx) error {
			ns := tx.ReadBucket(nsKey)
			require.Nil(t, ns.Get([]byte("a")))
			require.Nil(t, ns.NestedReadBucket([]byte("n")))
			require.Equal(t, []byte("vb"), ns.Get([]byte("b")))
			return nil
		})
		require.NoError(t, err)
	})
}

// TestUpdateRollback ensures a failing update leaves no partial writes.
func TestUpdateRollback(t *testing.T) {
	runWithDrivers(t, func(t *testing.T, _, _ string, db contractdb.DB) {
		nsKey := []byte("contract")
		errAbort := errors.New("abort")

		err := contractdb.Update(db, func(tx contractdb.ReadWriteTx) error {
			ns, err := tx.CreateTopLevelBucket(nsKey)
			if err != nil {
				return err
			}
			if err := ns.Put([]byte("k"), []byte("v")); err != nil {
				return err
			}
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		err = contractdb.View(db, func(tx contractdb.ReadTx) error {
			require.Nil(t, tx.ReadBucket(nsKey))
			return nil
		})
		require.NoError(t, err)
	})
}

// TestReadTxNotWritable ensures writes through a read transaction fail.
func TestReadTxNotWritable(t *testing.T) {
	runWithDrivers(t, func(t *testing.T, _, _ string, db contractdb.DB) {
		nsKey := []byte("contract")
		err := contractdb.Update(db, func(tx contractdb.ReadWriteTx) error {
			_, err := tx.CreateTopLevelBucket(nsKey)
			return err
		})
		require.NoError(t, err)

		tx, err := db.BeginReadTx()
		require.NoError(t, err)
		defer func() {
			require.NoError(t, tx.Rollback())
		}()

		// Every driver hands out buckets that also satisfy the write
		// interface; the transaction itself must refuse writes.
		ns, ok := tx.ReadBucket(nsKey).(contractdb.ReadWriteBucket)
		require.True(t, ok)
		err = ns.Put([]byte("k"), []byte("v"))
		require.ErrorIs(t, err, contractdb.ErrTxNotWritable)
	})
}

// TestPersistence ensures that values stored are still valid after closing
// and reopening the database.
func TestPersistence(t *testing.T) {
	runWithDrivers(t, func(t *testing.T, dbType, dbPath string,
		db contractdb.DB) {

		storeValues := map[string]string{
			"ns1key1": "foo1",
			"ns1key2": "foo2",
			"ns1key3": "foo3",
		}
		nsKey := []byte("ns1")
		err := contractdb.Update(db, func(tx contractdb.ReadWriteTx) error {
			ns, err := tx.CreateTopLevelBucket(nsKey)
			if err != nil {
				return err
			}
			for k, v := range storeValues {
				if err := ns.Put([]byte(k), []byte(v)); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, db.Close())

		// Operations against a closed database fail.
		_, err = db.BeginReadTx()
		require.ErrorIs(t, err, contractdb.ErrDbNotOpen)

		db, err = contractdb.Open(dbType, dbPath)
		require.NoError(t, err)
		defer db.Close()

		err = contractdb.View(db, func(tx contractdb.ReadTx) error {
			ns := tx.ReadBucket(nsKey)
			require.NotNil(t, ns)
			for k, v := range storeValues {
				require.Equal(t, []byte(v), ns.Get([]byte(k)))
			}
			return nil
		})
		require.NoError(t, err)
	})
}
