// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ReferenceResolver resolves the previous outputs spent by a transaction.
type ReferenceResolver interface {
	// ResolveReferences returns the outputs referenced by the inputs of
	// tx, in input order.
	ResolveReferences(tx *Tx) ([]Output, error)
}

// TxLookup resolves previously accepted transactions.
type TxLookup interface {
	// LookupTx returns the record of the transaction with the given hash.
	// ErrTxNotFound is returned when the hash is unknown.
	LookupTx(hash *chainhash.Hash) (*TxRecord, error)
}

// WitnessChecker reports whether the transaction being evaluated is
// authorized by an address.
type WitnessChecker interface {
	CheckWitness(addr Address) bool
}

// TxRecord is an accepted transaction together with the outputs its inputs
// referenced at the time it was accepted.
type TxRecord struct {
	Tx         *Tx
	Hash       chainhash.Hash
	References []Output
}

// TxContext is everything a contract may observe about the transaction it
// is evaluating.  References are always supplied by the host, never by the
// transaction author.
type TxContext struct {
	// Tx is the transaction being evaluated.
	Tx *Tx

	// Hash is the hash of Tx.
	Hash chainhash.Hash

	// References are the outputs spent by Tx, in input order.
	References []Output

	// Witness checks authorization of Tx.
	Witness WitnessChecker

	// Chain resolves earlier transactions.
	Chain TxLookup
}

// NewTxContext builds a TxContext for tx.
func NewTxContext(tx *Tx, refs []Output, witness WitnessChecker,
	chain TxLookup) *TxContext {

	return &TxContext{
		Tx:         tx,
		Hash:       tx.TxHash(),
		References: refs,
		Witness:    witness,
		Chain:      chain,
	}
}
