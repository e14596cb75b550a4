// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package custodian implements a contract that holds a single guarded asset on
behalf of depositors.

A depositor pays the guarded asset to the custodian's script address in a
transaction invoking deposit, and is credited in the balance ledger.  To take
funds out, the depositor invokes withdraw in a transaction whose output 0 pays
the requested amount back to the custodian.  The custodian debits the
balance and records the recipient against the transaction hash.  A second
transaction with one input spending that output and one output paying the
recipient completes the withdrawal.

Verify is the admission predicate consulted whenever a transaction spends
custodian-owned outputs.  Apart from completing a withdrawal, such a
transaction must move only the guarded asset and return to the custodian
exactly what it spends from it.
*/
package custodian
