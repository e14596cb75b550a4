// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Sign appends a witness for the address controlled by key.  The
// transaction must not be modified afterwards, except to add further
// witnesses.
func (tx *Tx) Sign(key *btcec.PrivateKey) {
	hash := tx.TxHash()
	sig := ecdsa.Sign(key, hash[:])
	tx.Witnesses = append(tx.Witnesses, Witness{
		PubKey:    key.PubKey().SerializeCompressed(),
		Signature: sig.Serialize(),
	})
}

// witnessSet checks witnesses against a precomputed transaction hash.
type witnessSet struct {
	hash      chainhash.Hash
	witnesses []Witness
}

// NewWitnessChecker returns a WitnessChecker reporting whether tx carries a
// valid signature from a given address.
func NewWitnessChecker(tx *Tx) WitnessChecker {
	return &witnessSet{hash: tx.TxHash(), witnesses: tx.Witnesses}
}

// CheckWitness returns whether one of the witnesses is a valid signature by
// the key hashing to addr.
//
// This function is part of the WitnessChecker interface implementation.
func (s *witnessSet) CheckWitness(addr Address) bool {
	for i := range s.witnesses {
		wit := &s.witnesses[i]
		pub, err := btcec.ParsePubKey(wit.PubKey)
		if err != nil {
			continue
		}
		if AddressFromPubKey(pub) != addr {
			continue
		}
		sig, err := ecdsa.ParseDERSignature(wit.Signature)
		if err != nil {
			continue
		}
		if sig.Verify(s.hash[:], pub) {
			return true
		}
	}
	return false
}
