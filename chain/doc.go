// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package chain implements a local ledger of asset-tagged unspent outputs that
hosts contracts.

A submitted transaction is checked for structure, its inputs are resolved
against the unspent set, every input owned by a plain address must be signed,
and every contract owning an input must accept the transaction.  The
transaction's invocation then runs against the target contract's storage in
the same database transaction that spends the inputs and creates the
outputs.
*/
package chain
