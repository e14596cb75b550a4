// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package sqlitedb implements an instance of contractdb backed by a single
SQLite table, using the cgo-free modernc.org/sqlite driver.

This package is only a driver to the contractdb package and provides the
database type of "sqlite".  The only parameter the Open and Create functions
take is the database path as a string:

	db, err := contractdb.Create("sqlite", "path/to/contracts.sqlite")
	if err != nil {
		// Handle error
	}

Only one read-write transaction is open at a time within a process; the
database runs in WAL mode so read transactions proceed alongside it.
*/
package sqlitedb
