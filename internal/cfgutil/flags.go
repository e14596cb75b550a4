// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"github.com/btcsuite/btccustody/ledger"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// AddressFlag embeds a ledger.Address and implements the flags.Marshaler and
// Unmarshaler interfaces so it can be used as a config struct field.  Values
// are hex encoded and must be exactly ledger.AddressSize bytes.
type AddressFlag struct {
	ledger.Address
	set bool
}

// NewAddressFlag creates an AddressFlag with a default address.
func NewAddressFlag(defaultValue ledger.Address) *AddressFlag {
	return &AddressFlag{Address: defaultValue}
}

// IsSet returns whether a value was assigned through UnmarshalFlag.
func (a *AddressFlag) IsSet() bool { return a.set }

// MarshalFlag satisfies the flags.Marshaler interface.
func (a *AddressFlag) MarshalFlag() (string, error) {
	return a.Address.String(), nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.
func (a *AddressFlag) UnmarshalFlag(value string) error {
	addr, err := ledger.DecodeAddress(value)
	if err != nil {
		return err
	}
	a.Address = addr
	a.set = true
	return nil
}

// HashFlag embeds a chainhash.Hash and implements the flags.Marshaler and
// Unmarshaler interfaces so it can be used as a config struct field.  Values
// use the byte-reversed hex form of chainhash.Hash.String.
type HashFlag struct {
	chainhash.Hash
}

// NewHashFlag creates a HashFlag with a default hash.
func NewHashFlag(defaultValue chainhash.Hash) *HashFlag {
	return &HashFlag{defaultValue}
}

// MarshalFlag satisfies the flags.Marshaler interface.
func (h *HashFlag) MarshalFlag() (string, error) {
	return h.Hash.String(), nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.
func (h *HashFlag) UnmarshalFlag(value string) error {
	if len(value) != chainhash.MaxHashStringSize {
		return ledger.ErrMalformedInput
	}
	hash, err := chainhash.NewHashFromStr(value)
	if err != nil {
		return err
	}
	h.Hash = *hash
	return nil
}

// ExplicitString is a string config field that remembers whether it was set
// on the command line or in a config file, so a value equal to the default
// can still be told apart from an untouched default.  The data directory and
// config file options rely on this to locate each other.
type ExplicitString struct {
	Value         string
	explicitlySet bool
}

// NewExplicitString creates a string flag with the provided default value.
func NewExplicitString(defaultValue string) *ExplicitString {
	return &ExplicitString{Value: defaultValue}
}

// ExplicitlySet returns whether the flag was set through UnmarshalFlag.
func (e *ExplicitString) ExplicitlySet() bool { return e.explicitlySet }

// MarshalFlag implements the flags.Marshaler interface.
func (e *ExplicitString) MarshalFlag() (string, error) { return e.Value, nil }

// UnmarshalFlag implements the flags.Unmarshaler interface.
func (e *ExplicitString) UnmarshalFlag(value string) error {
	e.Value = value
	e.explicitlySet = true
	return nil
}
