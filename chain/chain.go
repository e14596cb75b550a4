// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btccustody/contractdb"
	"github.com/btcsuite/btccustody/ledger"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/errgroup"
)

// Contract is a program owning outputs under its script address.
type Contract interface {
	// ScriptAddress returns the address the contract owns outputs
	// under.  It also names the contract's storage namespace.
	ScriptAddress() ledger.Address

	// Verify is consulted for every transaction spending an output of
	// the contract.  It must not write to ns.
	Verify(ns contractdb.ReadBucket, tc *ledger.TxContext) (bool, error)

	// Invoke runs a method call carried by a transaction that passed
	// verification.  Returning false or an error rejects the
	// transaction and discards every write made to ns.
	Invoke(ns contractdb.ReadWriteBucket, tc *ledger.TxContext,
		method string, args [][]byte) (bool, error)
}

// Initializer is implemented by contracts that need their storage namespace
// prepared before first use.
type Initializer interface {
	Create(ns contractdb.ReadWriteBucket) error
}

// Config holds the contracts a Chain dispatches to.
type Config struct {
	Contracts []Contract
}

// Chain is a local ledger of asset-tagged outputs.  It persists the unspent
// set, the applied transactions and every contract's storage in one
// database, so a transaction and the contract writes it causes commit or
// roll back together.
type Chain struct {
	db        contractdb.DB
	contracts map[ledger.Address]Contract

	// submitMtx serializes every write to the database.
	submitMtx sync.Mutex
}

// New returns a Chain over db, creating the chain buckets and the namespace
// of every registered contract as needed.
func New(db contractdb.DB, cfg *Config) (*Chain, error) {
	contracts := make(map[ledger.Address]Contract, len(cfg.Contracts))
	for _, c := range cfg.Contracts {
		addr := c.ScriptAddress()
		if _, ok := contracts[addr]; ok {
			return nil, fmt.Errorf("duplicate contract address %v",
				addr)
		}
		contracts[addr] = c
	}

	err := contractdb.Update(db, func(tx contractdb.ReadWriteTx) error {
		if err := createBuckets(tx); err != nil {
			return err
		}
		for addr, c := range contracts {
			ns, err := tx.CreateTopLevelBucket(addr[:])
			if err != nil {
				str := fmt.Sprintf("failed to create namespace "+
					"for contract %v", addr)
				return ruleError(ErrDatabase, str, err)
			}
			initializer, ok := c.(Initializer)
			if !ok {
				continue
			}
			if err := initializer.Create(ns); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Chain{db: db, contracts: contracts}, nil
}

// ContractView runs f with the storage namespace of the contract at addr in
// a read transaction.
func (c *Chain) ContractView(addr ledger.Address,
	f func(ns contractdb.ReadBucket) error) error {

	if _, ok := c.contracts[addr]; !ok {
		str := fmt.Sprintf("no contract at %v", addr)
		return ruleError(ErrUnknownContract, str, nil)
	}
	return contractdb.View(c.db, func(tx contractdb.ReadTx) error {
		return f(tx.ReadBucket(addr[:]))
	})
}

// ResolveReferences returns the unspent outputs spent by tx.
//
// This function is part of the ledger.ReferenceResolver interface
// implementation.
func (c *Chain) ResolveReferences(tx *ledger.Tx) ([]ledger.Output, error) {
	var refs []ledger.Output
	err := contractdb.View(c.db, func(dbtx contractdb.ReadTx) error {
		var err error
		view := &dbView{ns: dbtx.ReadBucket(bucketChain)}
		refs, err = view.ResolveReferences(tx)
		return err
	})
	return refs, err
}

// LookupTx returns the record of an applied transaction.
//
// This function is part of the ledger.TxLookup interface implementation.
func (c *Chain) LookupTx(hash *chainhash.Hash) (*ledger.TxRecord, error) {
	var rec *ledger.TxRecord
	err := contractdb.View(c.db, func(dbtx contractdb.ReadTx) error {
		var err error
		view := &dbView{ns: dbtx.ReadBucket(bucketChain)}
		rec, err = view.LookupTx(hash)
		return err
	})
	return rec, err
}

// Unspent returns the output at op if it has not been spent.
func (c *Chain) Unspent(op *wire.OutPoint) (fn.Option[ledger.Output], error) {
	var out *ledger.Output
	err := contractdb.View(c.db, func(dbtx contractdb.ReadTx) error {
		var err error
		out, err = fetchUnspent(dbtx.ReadBucket(bucketChain), op)
		return err
	})
	if err != nil || out == nil {
		return fn.None[ledger.Output](), err
	}
	return fn.Some(*out), nil
}

// ForEachUnspent calls f with every unspent output, ordered by outpoint.
func (c *Chain) ForEachUnspent(f func(op wire.OutPoint,
	out ledger.Output) error) error {

	return contractdb.View(c.db, func(dbtx contractdb.ReadTx) error {
		ns := dbtx.ReadBucket(bucketChain).NestedReadBucket(bucketUnspent)
		return ns.ForEach(func(k, v []byte) error {
			var op wire.OutPoint
			if err := readCanonicalOutPoint(k, &op); err != nil {
				return err
			}
			out, err := ledger.DeserializeOutput(v)
			if err != nil {
				str := fmt.Sprintf("corrupt unspent output %v", op)
				return ruleError(ErrDatabase, str, err)
			}
			return f(op, out)
		})
	})
}

// checkOutputs validates the output values of tx.
func checkOutputs(tx *ledger.Tx) error {
	for i := range tx.Outputs {
		v := tx.Outputs[i].Value
		if v < 0 || v > btcutil.MaxSatoshi {
			str := fmt.Sprintf("output %d has value %v outside "+
				"[0, %v]", i, v, btcutil.Amount(btcutil.MaxSatoshi))
			return ruleError(ErrBadOutputValue, str, nil)
		}
	}
	return nil
}

// checkTransactionSanity performs the checks that need no database access.
func (c *Chain) checkTransactionSanity(tx *ledger.Tx) error {
	if len(tx.Inputs) == 0 {
		return ruleError(ErrMalformedTx, "transaction has no inputs",
			nil)
	}

	seen := make(map[wire.OutPoint]struct{}, len(tx.Inputs))
	for i, op := range tx.Inputs {
		if _, ok := seen[op]; ok {
			str := fmt.Sprintf("input %d spends %v twice", i, op)
			return ruleError(ErrDoubleSpend, str, nil)
		}
		seen[op] = struct{}{}
	}

	if err := checkOutputs(tx); err != nil {
		return err
	}

	if inv := tx.Invocation; inv != nil {
		if inv.Method == "" {
			return ruleError(ErrMalformedTx, "invocation has no "+
				"method", nil)
		}
		if _, ok := c.contracts[inv.Contract]; !ok {
			str := fmt.Sprintf("invocation of %v which is not a "+
				"contract", inv.Contract)
			return ruleError(ErrUnknownContract, str, nil)
		}
	}
	return nil
}

// checkAssetBalance ensures no asset is created by tx.
func checkAssetBalance(tx *ledger.Tx, refs []ledger.Output) error {
	balance := make(map[chainhash.Hash]btcutil.Amount)
	for i := range refs {
		balance[refs[i].AssetID] += refs[i].Value
	}
	for i := range tx.Outputs {
		balance[tx.Outputs[i].AssetID] -= tx.Outputs[i].Value
	}
	for asset, v := range balance {
		if v < 0 {
			str := fmt.Sprintf("outputs exceed inputs of asset %v "+
				"by %v", asset, -v)
			return ruleError(ErrAssetImbalance, str, nil)
		}
	}
	return nil
}

// Verify reports whether tx could be applied to the current state without
// applying it.
func (c *Chain) Verify(ctx context.Context, tx *ledger.Tx) error {
	_, err := c.verify(ctx, tx)
	return err
}

// verify checks tx against the current state and returns the context it was
// verified in.  Every contract owning an input is consulted concurrently,
// each in its own read transaction.
func (c *Chain) verify(ctx context.Context, tx *ledger.Tx) (
	*ledger.TxContext, error) {

	if err := c.checkTransactionSanity(tx); err != nil {
		return nil, err
	}

	var tc *ledger.TxContext
	err := contractdb.View(c.db, func(dbtx contractdb.ReadTx) error {
		view := &dbView{ns: dbtx.ReadBucket(bucketChain)}

		hash := tx.TxHash()
		if existsTxRecord(view.ns, &hash) {
			str := fmt.Sprintf("transaction %v already applied",
				hash)
			return ruleError(ErrDuplicateTx, str, nil)
		}

		refs, err := view.ResolveReferences(tx)
		if err != nil {
			return err
		}
		tc = ledger.NewTxContext(
			tx, refs, ledger.NewWitnessChecker(tx), nil,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := checkAssetBalance(tx, tc.References); err != nil {
		return nil, err
	}

	var owners []Contract
	seen := make(map[ledger.Address]struct{})
	for i := range tc.References {
		owner := tc.References[i].Address
		if _, ok := seen[owner]; ok {
			continue
		}
		seen[owner] = struct{}{}

		if contract, ok := c.contracts[owner]; ok {
			owners = append(owners, contract)
			continue
		}
		if !tc.Witness.CheckWitness(owner) {
			str := fmt.Sprintf("input %d owned by %v is not "+
				"signed", i, owner)
			return nil, ruleError(ErrMissingWitness, str, nil)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, contract := range owners {
		contract := contract
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return c.verifyContract(contract, tc)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return tc, nil
}

// verifyContract runs the admission predicate of contract against tc.
func (c *Chain) verifyContract(contract Contract, tc *ledger.TxContext) error {
	addr := contract.ScriptAddress()
	return contractdb.View(c.db, func(dbtx contractdb.ReadTx) error {
		ctc := *tc
		ctc.Chain = &dbView{ns: dbtx.ReadBucket(bucketChain)}

		ok, err := contract.Verify(dbtx.ReadBucket(addr[:]), &ctc)
		if err != nil {
			str := fmt.Sprintf("contract %v failed to verify %v",
				addr, tc.Hash)
			return ruleError(ErrVerifyFailed, str, err)
		}
		if !ok {
			str := fmt.Sprintf("contract %v rejected %v", addr,
				tc.Hash)
			return ruleError(ErrVerifyFailed, str, nil)
		}
		return nil
	})
}

// Submit verifies tx and applies it.  The invocation, if any, runs in the
// same database transaction that spends the inputs and adds the outputs, so
// a rejected invocation leaves no trace.
func (c *Chain) Submit(ctx context.Context, tx *ledger.Tx) error {
	c.submitMtx.Lock()
	defer c.submitMtx.Unlock()

	tc, err := c.verify(ctx, tx)
	if err != nil {
		return err
	}

	err = contractdb.Update(c.db, func(dbtx contractdb.ReadWriteTx) error {
		ns := dbtx.ReadWriteBucket(bucketChain)

		if inv := tx.Invocation; inv != nil {
			contract := c.contracts[inv.Contract]
			ictx := *tc
			ictx.Chain = &dbView{ns: ns}

			ok, err := contract.Invoke(
				dbtx.ReadWriteBucket(inv.Contract[:]), &ictx,
				inv.Method, inv.Args,
			)
			if err != nil {
				str := fmt.Sprintf("%s on %v failed", inv.Method,
					inv.Contract)
				return ruleError(ErrInvokeFailed, str, err)
			}
			if !ok {
				str := fmt.Sprintf("%s on %v returned false",
					inv.Method, inv.Contract)
				return ruleError(ErrInvokeFailed, str, nil)
			}
		}

		return connectTx(ns, tc)
	})
	if err != nil {
		return err
	}

	log.Infof("Applied tx %v (%d inputs, %d outputs)", tc.Hash,
		len(tx.Inputs), len(tx.Outputs))
	log.Tracef("Applied tx %v: %v", tc.Hash, spewTx(tx))
	return nil
}

// Genesis applies a funding transaction.  It must have no inputs and no
// invocation, and carries no witness checks.
func (c *Chain) Genesis(ctx context.Context, tx *ledger.Tx) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(tx.Inputs) != 0 || tx.Invocation != nil {
		return ruleError(ErrMalformedTx, "funding transaction must "+
			"have no inputs and no invocation", nil)
	}
	if err := checkOutputs(tx); err != nil {
		return err
	}

	c.submitMtx.Lock()
	defer c.submitMtx.Unlock()

	tc := ledger.NewTxContext(tx, nil, nil, nil)
	err := contractdb.Update(c.db, func(dbtx contractdb.ReadWriteTx) error {
		ns := dbtx.ReadWriteBucket(bucketChain)
		if existsTxRecord(ns, &tc.Hash) {
			str := fmt.Sprintf("transaction %v already applied",
				tc.Hash)
			return ruleError(ErrDuplicateTx, str, nil)
		}
		return connectTx(ns, tc)
	})
	if err != nil {
		return err
	}

	log.Infof("Applied funding tx %v (%d outputs)", tc.Hash,
		len(tx.Outputs))
	log.Tracef("Applied funding tx %v: %v", tc.Hash, spewTx(tx))
	return nil
}
