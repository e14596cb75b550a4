// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import "errors"

var (
	// ErrMalformedInput is returned when an address, hash or encoded
	// transaction has the wrong width or cannot be decoded.
	ErrMalformedInput = errors.New("malformed input")

	// ErrTxNotFound is returned by a TxLookup when no transaction with the
	// requested hash is known.
	ErrTxNotFound = errors.New("transaction not found")
)
