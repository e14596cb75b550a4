// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custodian

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btccustody/contractdb"
	"github.com/btcsuite/btccustody/ledger"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// WithdrawSlot is the output index that a withdraw transaction must pay back
// to the custodian.  The same index identifies that output when it is later
// spent to complete the withdrawal.
const WithdrawSlot = 0

// Method names accepted by Invoke.
const (
	MethodDeposit           = "deposit"
	MethodWithdraw          = "withdraw"
	MethodBalanceOf         = "balanceOf"
	MethodGetWithdrawTarget = "getWithdrawTarget"
)

// Config holds the identity of a custodian contract.
type Config struct {
	// ScriptAddress is the address the custodian owns outputs under.
	ScriptAddress ledger.Address

	// GuardedAsset is the only asset the custodian accepts.
	GuardedAsset chainhash.Hash
}

// Custodian is a contract that holds one asset on behalf of depositors.
// Deposits credit the sender, and withdrawals go through two transactions:
// the first debits the balance and parks the funds at WithdrawSlot, the
// second pays them to the recipient recorded in between.
type Custodian struct {
	scriptAddr   ledger.Address
	guardedAsset chainhash.Hash
}

// New returns a custodian for the given configuration.
func New(cfg *Config) *Custodian {
	return &Custodian{
		scriptAddr:   cfg.ScriptAddress,
		guardedAsset: cfg.GuardedAsset,
	}
}

// ScriptAddress returns the address of the custodian.
func (c *Custodian) ScriptAddress() ledger.Address {
	return c.scriptAddr
}

// GuardedAsset returns the asset id the custodian accepts.
func (c *Custodian) GuardedAsset() chainhash.Hash {
	return c.guardedAsset
}

// Create initializes the custodian namespace.
func (c *Custodian) Create(ns contractdb.ReadWriteBucket) error {
	return createBuckets(ns)
}

// Invoke dispatches a method call carried by an accepted transaction.  Query
// methods validate their arguments and leave storage untouched.  Unknown
// methods return false.
func (c *Custodian) Invoke(ns contractdb.ReadWriteBucket,
	tc *ledger.TxContext, method string, args [][]byte) (bool, error) {

	switch method {
	case MethodDeposit:
		return c.Deposit(ns, tc)

	case MethodWithdraw:
		if len(args) != 1 {
			return false, argCountError(method, 1, len(args))
		}
		return c.Withdraw(ns, tc, args[0])

	case MethodBalanceOf:
		if len(args) != 1 {
			return false, argCountError(method, 1, len(args))
		}
		if _, err := c.BalanceOf(ns, args[0]); err != nil {
			return false, err
		}
		return true, nil

	case MethodGetWithdrawTarget:
		if len(args) != 1 {
			return false, argCountError(method, 1, len(args))
		}
		if _, err := c.WithdrawTarget(ns, args[0]); err != nil {
			return false, err
		}
		return true, nil

	default:
		log.Debugf("Unknown method %q in tx %v", method, tc.Hash)
		return false, nil
	}
}

func argCountError(method string, want, got int) error {
	str := fmt.Sprintf("%s expects %d argument(s), got %d", method, want,
		got)
	return storeError(ErrMalformedInput, str, ledger.ErrMalformedInput)
}

// Deposit credits the sender of tc with the guarded asset paid to the
// custodian.  The sender is the owner of the first referenced output of the
// guarded asset.  Transactions spending custodian-owned outputs are not
// deposits and are rejected.  Paying nothing to the custodian is a no-op that
// succeeds.
//
// A transaction that pays the guarded asset to the custodian without
// referencing any output of that asset has nobody to credit and is also
// rejected.  The host's per-asset balance check never admits such a
// transaction, so in practice the only rejection is the one above.
func (c *Custodian) Deposit(ns contractdb.ReadWriteBucket,
	tc *ledger.TxContext) (bool, error) {

	var (
		sender    ledger.Address
		hasSender bool
	)
	for i := range tc.References {
		ref := &tc.References[i]
		if ref.Address == c.scriptAddr {
			log.Debugf("Rejecting deposit %v: input %d is owned "+
				"by the custodian", tc.Hash, i)
			return false, nil
		}
		if !hasSender && ref.AssetID == c.guardedAsset {
			sender, hasSender = ref.Address, true
		}
	}

	value := new(big.Int)
	for i := range tc.Tx.Outputs {
		out := &tc.Tx.Outputs[i]
		if out.Address != c.scriptAddr || out.AssetID != c.guardedAsset {
			continue
		}
		value.Add(value, amountOf(out))
	}
	if value.Sign() == 0 {
		return true, nil
	}
	if !hasSender {
		log.Debugf("Rejecting deposit %v: no input of the guarded "+
			"asset", tc.Hash)
		return false, nil
	}

	balances, err := NewBalanceLedger(ns)
	if err != nil {
		return false, err
	}
	balance := balances.Get(sender).UnwrapOr(new(big.Int))
	balance.Add(balance, value)
	if err := balances.Put(sender, balance); err != nil {
		return false, err
	}

	log.Infof("Credited %v to %v in tx %v (balance %v)", value, sender,
		tc.Hash, balance)
	return true, nil
}

// Withdraw debits the recipient's balance by the value of the output at
// WithdrawSlot, which must pay the guarded asset back to the custodian, and
// records the recipient against the transaction hash.  The recipient must
// authorize the transaction.
func (c *Custodian) Withdraw(ns contractdb.ReadWriteBucket,
	tc *ledger.TxContext, recipient []byte) (bool, error) {

	to, err := ledger.NewAddress(recipient)
	if err != nil {
		return false, storeError(ErrMalformedInput, "invalid "+
			"withdraw recipient", err)
	}

	outputs := tc.Tx.Outputs
	if len(outputs) <= WithdrawSlot {
		log.Debugf("Rejecting withdraw %v: no outputs", tc.Hash)
		return false, nil
	}
	out := &outputs[WithdrawSlot]
	if out.AssetID != c.guardedAsset {
		log.Debugf("Rejecting withdraw %v: output %d is not the "+
			"guarded asset", tc.Hash, WithdrawSlot)
		return false, nil
	}
	if out.Address != c.scriptAddr {
		log.Debugf("Rejecting withdraw %v: output %d is not paid to "+
			"the custodian", tc.Hash, WithdrawSlot)
		return false, nil
	}
	if out.Value < 0 {
		log.Debugf("Rejecting withdraw %v: negative amount %v",
			tc.Hash, out.Value)
		return false, nil
	}

	intents, err := NewWithdrawIntentLog(ns)
	if err != nil {
		return false, err
	}
	existing, err := intents.Get(&tc.Hash)
	if err != nil {
		return false, err
	}
	if existing.IsSome() {
		log.Debugf("Rejecting withdraw %v: intent already recorded",
			tc.Hash)
		return false, nil
	}

	if !tc.Witness.CheckWitness(to) {
		log.Debugf("Rejecting withdraw %v: not authorized by %v",
			tc.Hash, to)
		return false, nil
	}

	balances, err := NewBalanceLedger(ns)
	if err != nil {
		return false, err
	}
	balance := balances.Get(to).UnwrapOr(new(big.Int))
	requested := amountOf(out)
	if balance.Cmp(requested) < 0 {
		log.Debugf("Rejecting withdraw %v: balance %v of %v is below "+
			"%v", tc.Hash, balance, to, requested)
		return false, nil
	}

	balance.Sub(balance, requested)
	if err := balances.Put(to, balance); err != nil {
		return false, err
	}
	intent := &WithdrawIntent{Recipient: to, Amount: out.Value}
	if err := intents.Put(&tc.Hash, intent); err != nil {
		return false, err
	}

	log.Infof("Recorded withdrawal of %v to %v in tx %v (balance %v)",
		out.Value, to, tc.Hash, balance)
	return true, nil
}

// BalanceOf returns the balance held for account.  Accounts without an entry
// have a zero balance.
func (c *Custodian) BalanceOf(ns contractdb.ReadBucket,
	account []byte) (*big.Int, error) {

	addr, err := ledger.NewAddress(account)
	if err != nil {
		return nil, storeError(ErrMalformedInput, "invalid account",
			err)
	}

	balances, err := NewBalanceLedger(ns)
	if err != nil {
		return nil, err
	}
	return balances.Get(addr).UnwrapOr(new(big.Int)), nil
}

// WithdrawTarget returns the recipient recorded by the withdraw transaction
// with the given hash, or None when that transaction started no withdrawal.
func (c *Custodian) WithdrawTarget(ns contractdb.ReadBucket,
	txHash []byte) (fn.Option[ledger.Address], error) {

	none := fn.None[ledger.Address]()

	hash, err := chainhash.NewHash(txHash)
	if err != nil {
		return none, storeError(ErrMalformedInput, "invalid tx hash",
			fmt.Errorf("%w: %v", ledger.ErrMalformedInput, err))
	}

	intents, err := NewWithdrawIntentLog(ns)
	if err != nil {
		return none, err
	}
	intent, err := intents.Get(hash)
	if err != nil {
		return none, err
	}

	target := none
	intent.WhenSome(func(in WithdrawIntent) {
		target = fn.Some(in.Recipient)
	})
	return target, nil
}

// amountOf returns the value of out as a big integer.
func amountOf(out *ledger.Output) *big.Int {
	return big.NewInt(int64(out.Value))
}
