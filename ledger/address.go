// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

// AddressSize is the width of an owner/script address in bytes.
const AddressSize = 20

// Address identifies the owner of an output.  It is the Hash160 of either a
// compressed public key or a contract script, and is used both as a storage
// key and as the subject of witness checks.
type Address [AddressSize]byte

// NewAddress returns an Address from a byte slice.  Slices of any other width
// than AddressSize are rejected rather than truncated or padded.
func NewAddress(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("%w: address must be %d bytes, got %d",
			ErrMalformedInput, AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// DecodeAddress parses a hex encoded address.
func DecodeAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return NewAddress(b)
}

// AddressFromPubKey returns the address controlled by the given public key.
func AddressFromPubKey(pub *btcec.PublicKey) Address {
	var a Address
	copy(a[:], btcutil.Hash160(pub.SerializeCompressed()))
	return a
}

// ScriptAddress returns the address of a contract identified by its script.
func ScriptAddress(script []byte) Address {
	var a Address
	copy(a[:], btcutil.Hash160(script))
	return a
}

// String returns the address as a hex string.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}
