// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package ledger defines the unspent output model shared by the host ledger and
the custodian contracts.

A transaction spends previous outputs, identified by wire.OutPoint, and creates
new outputs, each owned by a 20-byte Address and tagged with an asset id.  The
host resolves the spent outputs (the references) and hands them to contracts
together with the transaction in a TxContext.  Contracts never trust
references supplied by a transaction author.

Transactions are identified by the double SHA-256 of their encoding without
witnesses.  A witness is a compressed public key and an ECDSA signature over
that hash; an address is authorized when a witness key hashes to it.
*/
package ledger
