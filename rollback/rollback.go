// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rollback

import (
	"errors"

	"github.com/btcsuite/btccustody/contractdb"
	"github.com/btcsuite/btccustody/ledger"
)

// RefundSlot is the index of the single output of a refund transaction.
const RefundSlot = 0

// Contract accepts any deposit and only lets its outputs be spent as an
// exact refund to whoever funded them.  It keeps no storage.
type Contract struct {
	scriptAddr ledger.Address
}

// New returns a rollback contract owning outputs under scriptAddr.
func New(scriptAddr ledger.Address) *Contract {
	return &Contract{scriptAddr: scriptAddr}
}

// ScriptAddress returns the address of the contract.
func (c *Contract) ScriptAddress() ledger.Address {
	return c.scriptAddr
}

// Invoke accepts every call.
func (c *Contract) Invoke(_ contractdb.ReadWriteBucket, _ *ledger.TxContext,
	_ string, _ [][]byte) (bool, error) {

	return true, nil
}

// Verify decides whether tc may spend an output of the contract.  The
// transaction must have one input, one reference and one output, and the
// output must return the full amount to the owner of the first reference of
// the transaction that funded the spent output.  No witness is required.
//
// Assets are not compared; a refund is judged by amount and destination
// only.
func (c *Contract) Verify(_ contractdb.ReadBucket,
	tc *ledger.TxContext) (bool, error) {

	tx := tc.Tx
	if len(tx.Inputs) != 1 || len(tc.References) != 1 ||
		len(tx.Outputs) != 1 {

		log.Debugf("Rejecting %v: want 1 input, 1 reference and 1 "+
			"output, got %d, %d and %d", tc.Hash, len(tx.Inputs),
			len(tc.References), len(tx.Outputs))
		return false, nil
	}

	prevHash := &tx.Inputs[0].Hash
	funding, err := tc.Chain.LookupTx(prevHash)
	switch {
	case errors.Is(err, ledger.ErrTxNotFound):
		log.Debugf("Rejecting %v: funding tx %v not found", tc.Hash,
			prevHash)
		return false, nil

	case err != nil:
		return false, err
	}
	if len(funding.References) == 0 {
		log.Debugf("Rejecting %v: funding tx %v has no sender",
			tc.Hash, prevHash)
		return false, nil
	}
	originalSender := funding.References[0].Address

	ref := &tc.References[0]
	out := &tx.Outputs[RefundSlot]
	switch {
	case ref.Address != c.scriptAddr:
		log.Debugf("Rejecting %v: input is owned by %v", tc.Hash,
			ref.Address)
		return false, nil

	case ref.Value != out.Value:
		log.Debugf("Rejecting %v: refunds %v of %v", tc.Hash,
			out.Value, ref.Value)
		return false, nil

	case out.Address != originalSender:
		log.Debugf("Rejecting %v: pays %v, sender was %v", tc.Hash,
			out.Address, originalSender)
		return false, nil
	}

	log.Debugf("Accepted refund %v of %v to %v: ok", tc.Hash, out.Value,
		originalSender)
	return true, nil
}
