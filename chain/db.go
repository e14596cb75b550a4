// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btccustody/contractdb"
	"github.com/btcsuite/btccustody/ledger"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Buckets
//
// The chain keeps its state under a single top-level bucket, separate from
// the contract namespaces which are keyed by 20-byte addresses:
//
//   chain
//     utxo  outpoint (36 bytes) -> serialized ledger.Output
//     txs   tx hash (32 bytes)  -> serialized ledger.TxRecord
//
// An outpoint key is the previous transaction hash followed by the big
// endian output index.

var byteOrder = binary.BigEndian

var (
	bucketChain   = []byte("chain")
	bucketUnspent = []byte("utxo")
	bucketTxs     = []byte("txs")
)

func createBuckets(tx contractdb.ReadWriteTx) error {
	ns, err := tx.CreateTopLevelBucket(bucketChain)
	if err != nil {
		return ruleError(ErrDatabase, "failed to create chain bucket",
			err)
	}
	for _, key := range [][]byte{bucketUnspent, bucketTxs} {
		if _, err := ns.CreateBucketIfNotExists(key); err != nil {
			str := fmt.Sprintf("failed to create bucket %s", key)
			return ruleError(ErrDatabase, str, err)
		}
	}
	return nil
}

func canonicalOutPoint(op *wire.OutPoint) []byte {
	k := make([]byte, 36)
	copy(k, op.Hash[:])
	byteOrder.PutUint32(k[32:36], op.Index)
	return k
}

func readCanonicalOutPoint(k []byte, op *wire.OutPoint) error {
	if len(k) != 36 {
		str := fmt.Sprintf("outpoint key has %d bytes", len(k))
		return ruleError(ErrDatabase, str, nil)
	}
	copy(op.Hash[:], k[:32])
	op.Index = byteOrder.Uint32(k[32:36])
	return nil
}

func putUnspent(ns contractdb.ReadWriteBucket, op *wire.OutPoint,
	out *ledger.Output) error {

	k := canonicalOutPoint(op)
	v := ledger.SerializeOutput(out)
	err := ns.NestedReadWriteBucket(bucketUnspent).Put(k, v)
	if err != nil {
		str := fmt.Sprintf("failed to store unspent output %v", op)
		return ruleError(ErrDatabase, str, err)
	}
	return nil
}

func fetchUnspent(ns contractdb.ReadBucket, op *wire.OutPoint) (
	*ledger.Output, error) {

	v := ns.NestedReadBucket(bucketUnspent).Get(canonicalOutPoint(op))
	if v == nil {
		return nil, nil
	}
	out, err := ledger.DeserializeOutput(v)
	if err != nil {
		str := fmt.Sprintf("corrupt unspent output %v", op)
		return nil, ruleError(ErrDatabase, str, err)
	}
	return &out, nil
}

func deleteUnspent(ns contractdb.ReadWriteBucket, op *wire.OutPoint) error {
	k := canonicalOutPoint(op)
	err := ns.NestedReadWriteBucket(bucketUnspent).Delete(k)
	if err != nil {
		str := fmt.Sprintf("failed to delete unspent output %v", op)
		return ruleError(ErrDatabase, str, err)
	}
	return nil
}

func putTxRecord(ns contractdb.ReadWriteBucket, rec *ledger.TxRecord) error {
	err := ns.NestedReadWriteBucket(bucketTxs).Put(
		rec.Hash[:], rec.Serialize(),
	)
	if err != nil {
		str := fmt.Sprintf("failed to store tx %v", rec.Hash)
		return ruleError(ErrDatabase, str, err)
	}
	return nil
}

func fetchTxRecord(ns contractdb.ReadBucket, hash *chainhash.Hash) (
	*ledger.TxRecord, error) {

	v := ns.NestedReadBucket(bucketTxs).Get(hash[:])
	if v == nil {
		return nil, nil
	}
	rec, err := ledger.DeserializeTxRecord(v)
	if err != nil {
		str := fmt.Sprintf("corrupt tx record %v", hash)
		return nil, ruleError(ErrDatabase, str, err)
	}
	return rec, nil
}

func existsTxRecord(ns contractdb.ReadBucket, hash *chainhash.Hash) bool {
	return ns.NestedReadBucket(bucketTxs).Get(hash[:]) != nil
}

// dbView resolves references and transactions within one database
// transaction.
type dbView struct {
	ns contractdb.ReadBucket
}

// ResolveReferences returns the unspent outputs spent by tx.  Inputs that
// are unknown or already spent produce a RuleError.
//
// This function is part of the ledger.ReferenceResolver interface
// implementation.
func (v *dbView) ResolveReferences(tx *ledger.Tx) ([]ledger.Output, error) {
	refs := make([]ledger.Output, 0, len(tx.Inputs))
	for i := range tx.Inputs {
		op := &tx.Inputs[i]
		out, err := fetchUnspent(v.ns, op)
		if err != nil {
			return nil, err
		}
		if out != nil {
			refs = append(refs, *out)
			continue
		}

		rec, err := fetchTxRecord(v.ns, &op.Hash)
		if err != nil {
			return nil, err
		}
		if rec != nil && int(op.Index) < len(rec.Tx.Outputs) {
			str := fmt.Sprintf("input %d spends already spent "+
				"output %v", i, op)
			return nil, ruleError(ErrDoubleSpend, str, nil)
		}
		str := fmt.Sprintf("input %d spends unknown output %v", i, op)
		return nil, ruleError(ErrMissingInput, str, nil)
	}
	return refs, nil
}

// LookupTx returns the record of an applied transaction.
//
// This function is part of the ledger.TxLookup interface implementation.
func (v *dbView) LookupTx(hash *chainhash.Hash) (*ledger.TxRecord, error) {
	rec, err := fetchTxRecord(v.ns, hash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ledger.ErrTxNotFound
	}
	return rec, nil
}

// connectTx spends the inputs of tc, adds its outputs to the unspent set and
// indexes the transaction.
func connectTx(ns contractdb.ReadWriteBucket, tc *ledger.TxContext) error {
	tx := tc.Tx
	for i := range tx.Inputs {
		if err := deleteUnspent(ns, &tx.Inputs[i]); err != nil {
			return err
		}
	}
	for i := range tx.Outputs {
		op := wire.OutPoint{Hash: tc.Hash, Index: uint32(i)}
		if err := putUnspent(ns, &op, &tx.Outputs[i]); err != nil {
			return err
		}
	}
	return putTxRecord(ns, &ledger.TxRecord{
		Tx:         tx,
		Hash:       tc.Hash,
		References: tc.References,
	})
}
