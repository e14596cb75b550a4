// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custodian

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/btcsuite/btccustody/contractdb"
	"github.com/btcsuite/btccustody/ledger"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
)

// Naming
//
// The following naming conventions are used throughout the custodian
// namespace:
//
//   * balance:  the amount of guarded asset credited to a depositor
//   * intent:   a pending withdrawal, keyed by the withdraw transaction hash
//
// Buckets
//
// The custodian namespace is the contract's top-level bucket.  It contains
// two nested buckets:
//
//   * bal  address (20 bytes) -> unsigned big-endian magnitude
//   * wdr  tx hash (32 bytes) -> TLV stream (recipient, amount)
//
// A zero balance is never stored; the entry is deleted instead.

var (
	bucketBalances        = []byte("bal")
	bucketWithdrawIntents = []byte("wdr")
)

const (
	typeIntentRecipient tlv.Type = 0
	typeIntentAmount    tlv.Type = 2
)

// createBuckets creates the nested buckets of a custodian namespace.  It is
// safe to call on an existing namespace.
func createBuckets(ns contractdb.ReadWriteBucket) error {
	for _, key := range [][]byte{bucketBalances, bucketWithdrawIntents} {
		if _, err := ns.CreateBucketIfNotExists(key); err != nil {
			str := fmt.Sprintf("failed to create bucket %s", key)
			return storeError(ErrDatabase, str, err)
		}
	}
	return nil
}

func nestedBucket(ns contractdb.ReadBucket, key []byte) (contractdb.ReadBucket,
	error) {

	if ns == nil {
		return nil, storeError(ErrNoExist, "custodian namespace "+
			"does not exist", nil)
	}
	b := ns.NestedReadBucket(key)
	if b == nil {
		str := fmt.Sprintf("bucket %s does not exist", key)
		return nil, storeError(ErrNoExist, str, nil)
	}
	return b, nil
}

func writable(b contractdb.ReadBucket) (contractdb.ReadWriteBucket, error) {
	rw, ok := b.(contractdb.ReadWriteBucket)
	if !ok {
		return nil, storeError(ErrDatabase, "bucket is read-only",
			contractdb.ErrTxNotWritable)
	}
	return rw, nil
}

// BalanceLedger maps depositor addresses to the amount of guarded asset the
// custodian holds on their behalf.
type BalanceLedger struct {
	bucket contractdb.ReadBucket
}

// NewBalanceLedger returns the balance ledger stored in a custodian
// namespace.
func NewBalanceLedger(ns contractdb.ReadBucket) (*BalanceLedger, error) {
	b, err := nestedBucket(ns, bucketBalances)
	if err != nil {
		return nil, err
	}
	return &BalanceLedger{bucket: b}, nil
}

// Get returns the balance recorded for addr, or None when there is no entry.
func (l *BalanceLedger) Get(addr ledger.Address) fn.Option[*big.Int] {
	v := l.bucket.Get(addr[:])
	if v == nil {
		return fn.None[*big.Int]()
	}
	return fn.Some(new(big.Int).SetBytes(v))
}

// Put records amount as the balance of addr.  A zero amount removes the
// entry.
func (l *BalanceLedger) Put(addr ledger.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		str := fmt.Sprintf("negative balance %v for %v", amount, addr)
		return storeError(ErrData, str, nil)
	}
	if amount.Sign() == 0 {
		return l.Delete(addr)
	}

	b, err := writable(l.bucket)
	if err != nil {
		return err
	}
	if err := b.Put(addr[:], amount.Bytes()); err != nil {
		str := fmt.Sprintf("failed to store balance for %v", addr)
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

// Delete removes the balance entry of addr.
func (l *BalanceLedger) Delete(addr ledger.Address) error {
	b, err := writable(l.bucket)
	if err != nil {
		return err
	}
	if err := b.Delete(addr[:]); err != nil {
		str := fmt.Sprintf("failed to delete balance for %v", addr)
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

// ForEach calls f with every recorded balance, in address order.
func (l *BalanceLedger) ForEach(f func(addr ledger.Address,
	amount *big.Int) error) error {

	return l.bucket.ForEach(func(k, v []byte) error {
		addr, err := ledger.NewAddress(k)
		if err != nil {
			return storeError(ErrData, "corrupt balance key", err)
		}
		return f(addr, new(big.Int).SetBytes(v))
	})
}

// WithdrawIntent is the pending withdrawal recorded when a withdraw
// transaction is accepted.
type WithdrawIntent struct {
	Recipient ledger.Address
	Amount    btcutil.Amount
}

func (in *WithdrawIntent) records() (*[]byte, *uint64) {
	recipient := in.Recipient[:]
	amount := uint64(in.Amount)
	return &recipient, &amount
}

func serializeWithdrawIntent(in *WithdrawIntent) ([]byte, error) {
	recipient, amount := in.records()
	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeIntentRecipient, recipient),
		tlv.MakePrimitiveRecord(typeIntentAmount, amount),
	)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deserializeWithdrawIntent(v []byte) (WithdrawIntent, error) {
	var (
		recipient []byte
		amount    uint64
		in        WithdrawIntent
	)
	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeIntentRecipient, &recipient),
		tlv.MakePrimitiveRecord(typeIntentAmount, &amount),
	)
	if err != nil {
		return in, err
	}
	if err := stream.Decode(bytes.NewReader(v)); err != nil {
		return in, err
	}

	in.Recipient, err = ledger.NewAddress(recipient)
	if err != nil {
		return in, err
	}
	in.Amount = btcutil.Amount(amount)
	return in, nil
}

// WithdrawIntentLog maps withdraw transaction hashes to the recipient and
// amount of the withdrawal they started.  Entries are never updated or
// removed.
type WithdrawIntentLog struct {
	bucket contractdb.ReadBucket
}

// NewWithdrawIntentLog returns the intent log stored in a custodian
// namespace.
func NewWithdrawIntentLog(ns contractdb.ReadBucket) (*WithdrawIntentLog,
	error) {

	b, err := nestedBucket(ns, bucketWithdrawIntents)
	if err != nil {
		return nil, err
	}
	return &WithdrawIntentLog{bucket: b}, nil
}

// Get returns the intent recorded for hash, or None when there is none.
func (l *WithdrawIntentLog) Get(hash *chainhash.Hash) (
	fn.Option[WithdrawIntent], error) {

	v := l.bucket.Get(hash[:])
	if v == nil {
		return fn.None[WithdrawIntent](), nil
	}
	in, err := deserializeWithdrawIntent(v)
	if err != nil {
		str := fmt.Sprintf("corrupt withdraw intent for %v", hash)
		return fn.None[WithdrawIntent](), storeError(ErrData, str, err)
	}
	return fn.Some(in), nil
}

// Put records the intent started by the transaction with the given hash.
// An existing intent is never overwritten.
func (l *WithdrawIntentLog) Put(hash *chainhash.Hash,
	in *WithdrawIntent) error {

	b, err := writable(l.bucket)
	if err != nil {
		return err
	}
	if b.Get(hash[:]) != nil {
		str := fmt.Sprintf("withdraw intent for %v already exists",
			hash)
		return storeError(ErrIntentExists, str, nil)
	}

	v, err := serializeWithdrawIntent(in)
	if err != nil {
		str := fmt.Sprintf("failed to encode withdraw intent for %v",
			hash)
		return storeError(ErrData, str, err)
	}
	if err := b.Put(hash[:], v); err != nil {
		str := fmt.Sprintf("failed to store withdraw intent for %v",
			hash)
		return storeError(ErrDatabase, str, err)
	}
	return nil
}
