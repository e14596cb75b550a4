// Copyright (c) 2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package bdb implements an instance of contractdb that uses boltdb for the
backing datastore.

# Usage

This package is only a driver to the contractdb package and provides the
database type of "bdb".  The only parameter the Open and Create functions
take is the database path as a string:

	db, err := contractdb.Open("bdb", "path/to/database.db")
	if err != nil {
		// Handle error
	}

	db, err := contractdb.Create("bdb", "path/to/database.db")
	if err != nil {
		// Handle error
	}
*/
package bdb
