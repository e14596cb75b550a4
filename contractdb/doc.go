// Copyright (c) 2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package contractdb provides a namespaced key/value storage interface for
contract state.

Each contract owns a top level bucket keyed by its 20-byte script address and
may create nested buckets beneath it.  All access goes through read or
read+write transactions, so a contract invocation either commits every write
it made or none of them.

Backends register themselves as drivers.  Two are provided:

	bdb      go.etcd.io/bbolt backed file database (import contractdb/bdb)
	sqlite   single table SQLite database (import contractdb/sqlitedb)

Usage example:

	db, err := contractdb.Create("bdb", "contracts.db")
	if err != nil {
		// Handle error
	}
	defer db.Close()

	err = contractdb.Update(db, func(tx contractdb.ReadWriteTx) error {
		ns, err := tx.CreateTopLevelBucket(contractAddr[:])
		if err != nil {
			return err
		}
		return ns.Put([]byte("key"), []byte("value"))
	})
*/
package contractdb
