// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custodian

import (
	"math/big"

	"github.com/btcsuite/btccustody/contractdb"
	"github.com/btcsuite/btccustody/ledger"
)

// Verify decides whether tc may spend outputs owned by the custodian.
//
// A transaction spending the WithdrawSlot output of a recorded withdraw
// transaction completes that withdrawal, and must have exactly one input and
// one output paying the recorded recipient.  Any other transaction may only
// move the guarded asset, and must pay back to the custodian exactly what it
// takes from it.
func (c *Custodian) Verify(ns contractdb.ReadBucket,
	tc *ledger.TxContext) (bool, error) {

	intents, err := NewWithdrawIntentLog(ns)
	if err != nil {
		return false, err
	}

	for i := range tc.Tx.Inputs {
		in := &tc.Tx.Inputs[i]
		if in.Index != WithdrawSlot {
			continue
		}
		intent, err := intents.Get(&in.Hash)
		if err != nil {
			return false, err
		}

		var (
			recipient ledger.Address
			found     bool
		)
		intent.WhenSome(func(w WithdrawIntent) {
			recipient, found = w.Recipient, true
		})
		if found {
			return c.verifyWithdrawal(tc, recipient), nil
		}
	}

	return c.verifyConservation(tc), nil
}

// verifyWithdrawal checks the second half of a withdrawal.
func (c *Custodian) verifyWithdrawal(tc *ledger.TxContext,
	recipient ledger.Address) bool {

	tx := tc.Tx
	switch {
	case len(tx.Inputs) != 1:
		log.Debugf("Rejecting withdrawal %v: %d inputs", tc.Hash,
			len(tx.Inputs))
		return false

	case len(tx.Outputs) != 1:
		log.Debugf("Rejecting withdrawal %v: %d outputs", tc.Hash,
			len(tx.Outputs))
		return false

	case tx.Outputs[0].Address != recipient:
		log.Debugf("Rejecting withdrawal %v: pays %v, recorded "+
			"recipient is %v", tc.Hash, tx.Outputs[0].Address,
			recipient)
		return false
	}

	log.Debugf("Accepted withdrawal %v to %v", tc.Hash, recipient)
	return true
}

// verifyConservation checks that tc moves only the guarded asset and that
// what it spends from the custodian equals what it pays back.
func (c *Custodian) verifyConservation(tc *ledger.TxContext) bool {
	inflow := new(big.Int)
	for i := range tc.References {
		ref := &tc.References[i]
		if ref.AssetID != c.guardedAsset {
			log.Debugf("Rejecting %v: input %d is asset %v", tc.Hash,
				i, ref.AssetID)
			return false
		}
		if ref.Address == c.scriptAddr {
			inflow.Add(inflow, amountOf(ref))
		}
	}

	outflow := new(big.Int)
	for i := range tc.Tx.Outputs {
		out := &tc.Tx.Outputs[i]
		if out.Address == c.scriptAddr {
			outflow.Add(outflow, amountOf(out))
		}
	}

	if inflow.Cmp(outflow) != 0 {
		log.Debugf("Rejecting %v: spends %v from the custodian but "+
			"returns %v", tc.Hash, inflow, outflow)
		return false
	}

	log.Debugf("Accepted %v: custodian funds conserved (%v)", tc.Hash,
		inflow)
	return true
}
