// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custodian

import (
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btccustody/contractdb"
	"github.com/btcsuite/btccustody/internal/dbtest"
	"github.com/btcsuite/btccustody/ledger"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	guardedAsset = chainhash.Hash{0x9b, 0x7c, 0xff}
	foreignAsset = chainhash.Hash{0x60, 0x2c, 0x79}

	custodianAddr = ledger.Address{0xc0}
	addrA         = ledger.Address{0xaa}
	addrB         = ledger.Address{0xbb}
	addrC         = ledger.Address{0xcc}
)

// mockWitness is a mock implementation of ledger.WitnessChecker.
type mockWitness struct {
	mock.Mock
}

func (m *mockWitness) CheckWitness(addr ledger.Address) bool {
	args := m.Called(addr)
	return args.Bool(0)
}

type testHarness struct {
	db        contractdb.DB
	custodian *Custodian
}

// newHarness creates a fresh database holding an initialized custodian
// namespace.
func newHarness(t *testing.T) *testHarness {
	t.Helper()

	db := dbtest.NewFactory("bdb")(t)

	c := New(&Config{
		ScriptAddress: custodianAddr,
		GuardedAsset:  guardedAsset,
	})
	err := contractdb.Update(db, func(tx contractdb.ReadWriteTx) error {
		ns, err := tx.CreateTopLevelBucket(custodianAddr[:])
		if err != nil {
			return err
		}
		return c.Create(ns)
	})
	require.NoError(t, err)

	return &testHarness{db: db, custodian: c}
}

func (h *testHarness) update(t *testing.T,
	f func(ns contractdb.ReadWriteBucket) error) {

	t.Helper()

	err := contractdb.Update(h.db, func(tx contractdb.ReadWriteTx) error {
		return f(tx.ReadWriteBucket(custodianAddr[:]))
	})
	require.NoError(t, err)
}

func (h *testHarness) view(t *testing.T,
	f func(ns contractdb.ReadBucket) error) {

	t.Helper()

	err := contractdb.View(h.db, func(tx contractdb.ReadTx) error {
		return f(tx.ReadBucket(custodianAddr[:]))
	})
	require.NoError(t, err)
}

func (h *testHarness) balanceOf(t *testing.T, addr ledger.Address) int64 {
	t.Helper()

	var balance *big.Int
	h.view(t, func(ns contractdb.ReadBucket) error {
		var err error
		balance, err = h.custodian.BalanceOf(ns, addr[:])
		return err
	})
	return balance.Int64()
}

func (h *testHarness) setBalance(t *testing.T, addr ledger.Address,
	amount int64) {

	t.Helper()

	h.update(t, func(ns contractdb.ReadWriteBucket) error {
		balances, err := NewBalanceLedger(ns)
		if err != nil {
			return err
		}
		return balances.Put(addr, big.NewInt(amount))
	})
}

func (h *testHarness) deposit(t *testing.T, tc *ledger.TxContext) bool {
	t.Helper()

	var ok bool
	h.update(t, func(ns contractdb.ReadWriteBucket) error {
		var err error
		ok, err = h.custodian.Deposit(ns, tc)
		return err
	})
	return ok
}

func (h *testHarness) withdraw(t *testing.T, tc *ledger.TxContext,
	recipient ledger.Address) bool {

	t.Helper()

	var ok bool
	h.update(t, func(ns contractdb.ReadWriteBucket) error {
		var err error
		ok, err = h.custodian.Withdraw(ns, tc, recipient[:])
		return err
	})
	return ok
}

func (h *testHarness) verify(t *testing.T, tc *ledger.TxContext) bool {
	t.Helper()

	var ok bool
	h.view(t, func(ns contractdb.ReadBucket) error {
		var err error
		ok, err = h.custodian.Verify(ns, tc)
		return err
	})
	return ok
}

func (h *testHarness) withdrawTarget(t *testing.T,
	hash chainhash.Hash) (ledger.Address, bool) {

	t.Helper()

	var (
		target ledger.Address
		found  bool
	)
	h.view(t, func(ns contractdb.ReadBucket) error {
		opt, err := h.custodian.WithdrawTarget(ns, hash[:])
		if err != nil {
			return err
		}
		opt.WhenSome(func(a ledger.Address) {
			target, found = a, true
		})
		return nil
	})
	return target, found
}

func output(addr ledger.Address, asset chainhash.Hash,
	value btcutil.Amount) ledger.Output {

	return ledger.Output{Address: addr, AssetID: asset, Value: value}
}

// newContext builds a transaction context.  Inputs get distinct previous
// hashes unless given explicitly.
func newContext(nonce uint32, inputs []wire.OutPoint, refs,
	outputs []ledger.Output, witness ledger.WitnessChecker) *ledger.TxContext {

	if inputs == nil {
		for i := range refs {
			inputs = append(inputs, wire.OutPoint{
				Hash:  chainhash.Hash{byte(i + 1), 0xee},
				Index: uint32(i),
			})
		}
	}
	tx := &ledger.Tx{
		Nonce:   nonce,
		Inputs:  inputs,
		Outputs: outputs,
	}
	return ledger.NewTxContext(tx, refs, witness, nil)
}

// TestDeposit ensures deposits credit the sender cumulatively.
func TestDeposit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	tc := newContext(1, nil,
		[]ledger.Output{output(addrA, guardedAsset, 150)},
		[]ledger.Output{
			output(custodianAddr, guardedAsset, 100),
			output(addrA, guardedAsset, 50),
		}, nil,
	)
	require.True(t, h.deposit(t, tc))
	require.EqualValues(t, 100, h.balanceOf(t, addrA))

	tc = newContext(2, nil,
		[]ledger.Output{output(addrA, guardedAsset, 30)},
		[]ledger.Output{output(custodianAddr, guardedAsset, 30)}, nil,
	)
	require.True(t, h.deposit(t, tc))
	require.EqualValues(t, 130, h.balanceOf(t, addrA))
	require.Zero(t, h.balanceOf(t, addrB))

	h.view(t, func(ns contractdb.ReadBucket) error {
		balances, err := NewBalanceLedger(ns)
		require.NoError(t, err)

		all := make(map[ledger.Address]int64)
		err = balances.ForEach(func(a ledger.Address, v *big.Int) error {
			all[a] = v.Int64()
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, map[ledger.Address]int64{addrA: 130}, all)
		return nil
	})
}

// TestDepositSender ensures the sender is the owner of the first reference of
// the guarded asset and that outputs of other assets are not counted.
func TestDepositSender(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	tc := newContext(1, nil,
		[]ledger.Output{
			output(addrB, foreignAsset, 10),
			output(addrA, guardedAsset, 40),
			output(addrC, guardedAsset, 40),
		},
		[]ledger.Output{
			output(custodianAddr, guardedAsset, 70),
			output(custodianAddr, foreignAsset, 10),
		}, nil,
	)
	require.True(t, h.deposit(t, tc))
	require.EqualValues(t, 70, h.balanceOf(t, addrA))
	require.Zero(t, h.balanceOf(t, addrB))
	require.Zero(t, h.balanceOf(t, addrC))
}

// TestDepositRejected ensures deposits that spend custodian funds or have no
// identifiable sender are rejected without crediting anyone.
func TestDepositRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		refs []ledger.Output
	}{{
		name: "custodian input",
		refs: []ledger.Output{
			output(addrA, guardedAsset, 50),
			output(custodianAddr, guardedAsset, 50),
		},
	}, {
		name: "no guarded input",
		refs: []ledger.Output{output(addrA, foreignAsset, 100)},
	}}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			tc := newContext(1, nil, test.refs, []ledger.Output{
				output(custodianAddr, guardedAsset, 100),
			}, nil)
			require.False(t, h.deposit(t, tc))
			require.Zero(t, h.balanceOf(t, addrA))
		})
	}
}

// TestDepositNothingPaid ensures a deposit paying nothing to the custodian
// succeeds without touching storage.
func TestDepositNothingPaid(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	tc := newContext(1, nil,
		[]ledger.Output{output(addrA, guardedAsset, 100)},
		[]ledger.Output{output(addrB, guardedAsset, 100)}, nil,
	)
	require.True(t, h.deposit(t, tc))

	h.view(t, func(ns contractdb.ReadBucket) error {
		balances, err := NewBalanceLedger(ns)
		require.NoError(t, err)
		require.True(t, balances.Get(addrA).IsNone())
		return nil
	})
}

// TestWithdraw ensures a withdrawal debits the balance, records the
// recipient and cannot be recorded twice.
func TestWithdraw(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.setBalance(t, addrA, 100)

	witness := &mockWitness{}
	witness.On("CheckWitness", addrA).Return(true)

	tc := newContext(1, nil,
		[]ledger.Output{output(custodianAddr, guardedAsset, 100)},
		[]ledger.Output{
			output(custodianAddr, guardedAsset, 60),
			output(custodianAddr, guardedAsset, 40),
		}, witness,
	)
	require.True(t, h.withdraw(t, tc, addrA))
	require.EqualValues(t, 40, h.balanceOf(t, addrA))

	target, found := h.withdrawTarget(t, tc.Hash)
	require.True(t, found)
	require.Equal(t, addrA, target)

	// The same transaction cannot record a second withdrawal.
	require.False(t, h.withdraw(t, tc, addrA))
	require.EqualValues(t, 40, h.balanceOf(t, addrA))

	witness.AssertExpectations(t)
}

// TestWithdrawEntireBalance ensures withdrawing everything removes the
// balance entry.
func TestWithdrawEntireBalance(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.setBalance(t, addrA, 60)

	witness := &mockWitness{}
	witness.On("CheckWitness", addrA).Return(true)

	tc := newContext(1, nil,
		[]ledger.Output{output(custodianAddr, guardedAsset, 60)},
		[]ledger.Output{output(custodianAddr, guardedAsset, 60)},
		witness,
	)
	require.True(t, h.withdraw(t, tc, addrA))

	h.view(t, func(ns contractdb.ReadBucket) error {
		balances, err := NewBalanceLedger(ns)
		require.NoError(t, err)
		require.True(t, balances.Get(addrA).IsNone())
		return nil
	})
}

// TestWithdrawReplay ensures a transaction that already recorded a withdrawal
// is rejected before authorization is checked, whichever recipient it names,
// and that the balance is debited once.
func TestWithdrawReplay(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.setBalance(t, addrA, 100)
	h.setBalance(t, addrB, 100)

	witness := &mockWitness{}
	witness.On("CheckWitness", addrA).Return(true).Once()

	tc := newContext(1, nil,
		[]ledger.Output{output(custodianAddr, guardedAsset, 100)},
		[]ledger.Output{
			output(custodianAddr, guardedAsset, 60),
			output(custodianAddr, guardedAsset, 40),
		}, witness,
	)

	h.update(t, func(ns contractdb.ReadWriteBucket) error {
		ok, err := h.custodian.Withdraw(ns, tc, addrA[:])
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = h.custodian.Withdraw(ns, tc, addrA[:])
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = h.custodian.Withdraw(ns, tc, addrB[:])
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})

	require.EqualValues(t, 40, h.balanceOf(t, addrA))
	require.EqualValues(t, 100, h.balanceOf(t, addrB))

	target, found := h.withdrawTarget(t, tc.Hash)
	require.True(t, found)
	require.Equal(t, addrA, target)

	witness.AssertExpectations(t)
}

// TestWithdrawRejected ensures every failed withdrawal precondition leaves
// both the balance and the intent log untouched.
func TestWithdrawRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		outputs    []ledger.Output
		authorized bool
	}{{
		name:       "no outputs",
		authorized: true,
	}, {
		name: "foreign asset",
		outputs: []ledger.Output{
			output(custodianAddr, foreignAsset, 60),
		},
		authorized: true,
	}, {
		name: "not paid to custodian",
		outputs: []ledger.Output{
			output(addrA, guardedAsset, 60),
		},
		authorized: true,
	}, {
		name: "not authorized",
		outputs: []ledger.Output{
			output(custodianAddr, guardedAsset, 60),
		},
	}, {
		name: "insufficient balance",
		outputs: []ledger.Output{
			output(custodianAddr, guardedAsset, 101),
		},
		authorized: true,
	}}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			h.setBalance(t, addrA, 100)

			witness := &mockWitness{}
			witness.On("CheckWitness", addrA).Return(
				test.authorized,
			).Maybe()

			tc := newContext(1, nil, []ledger.Output{
				output(custodianAddr, guardedAsset, 200),
			}, test.outputs, witness)

			require.False(t, h.withdraw(t, tc, addrA))
			require.EqualValues(t, 100, h.balanceOf(t, addrA))

			_, found := h.withdrawTarget(t, tc.Hash)
			require.False(t, found)
		})
	}
}

// TestMalformedArguments ensures arguments of the wrong width are rejected
// with ErrMalformedInput.
func TestMalformedArguments(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tc := newContext(1, nil, nil, []ledger.Output{
		output(custodianAddr, guardedAsset, 1),
	}, &mockWitness{})

	checkErr := func(err error) {
		t.Helper()
		require.Error(t, err)
		require.True(t, IsError(err, ErrMalformedInput), err)
		require.True(t, errors.Is(err, ledger.ErrMalformedInput), err)
	}

	err := contractdb.Update(h.db, func(tx contractdb.ReadWriteTx) error {
		ns := tx.ReadWriteBucket(custodianAddr[:])

		_, err := h.custodian.Withdraw(ns, tc, addrA[:19])
		checkErr(err)

		_, err = h.custodian.BalanceOf(ns, append(addrA[:], 0))
		checkErr(err)

		_, err = h.custodian.WithdrawTarget(ns, tc.Hash[:31])
		checkErr(err)

		_, err = h.custodian.Invoke(ns, tc, MethodWithdraw, nil)
		checkErr(err)

		return nil
	})
	require.NoError(t, err)
}

// TestInvoke ensures method dispatch.
func TestInvoke(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	tc := newContext(1, nil,
		[]ledger.Output{output(addrA, guardedAsset, 10)},
		[]ledger.Output{output(custodianAddr, guardedAsset, 10)},
		&mockWitness{},
	)

	invoke := func(method string, args ...[]byte) bool {
		t.Helper()

		var ok bool
		h.update(t, func(ns contractdb.ReadWriteBucket) error {
			var err error
			ok, err = h.custodian.Invoke(ns, tc, method, args)
			return err
		})
		return ok
	}

	require.True(t, invoke(MethodDeposit))
	require.EqualValues(t, 10, h.balanceOf(t, addrA))
	require.True(t, invoke(MethodBalanceOf, addrA[:]))
	require.True(t, invoke(MethodGetWithdrawTarget, tc.Hash[:]))
	require.False(t, invoke("transfer", addrA[:]))
	require.EqualValues(t, 10, h.balanceOf(t, addrA))
}

// TestVerifyWithdrawal ensures only a one input, one output spend to the
// recorded recipient completes a withdrawal.
func TestVerifyWithdrawal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.setBalance(t, addrA, 100)

	witness := &mockWitness{}
	witness.On("CheckWitness", addrA).Return(true)

	withdrawTx := newContext(1, nil,
		[]ledger.Output{output(custodianAddr, guardedAsset, 100)},
		[]ledger.Output{
			output(custodianAddr, guardedAsset, 60),
			output(custodianAddr, guardedAsset, 40),
		}, witness,
	)
	require.True(t, h.withdraw(t, withdrawTx, addrA))

	slot := wire.OutPoint{Hash: withdrawTx.Hash, Index: WithdrawSlot}
	slotRef := output(custodianAddr, guardedAsset, 60)
	other := wire.OutPoint{Hash: chainhash.Hash{0x42}, Index: 0}
	otherRef := output(custodianAddr, guardedAsset, 5)

	tests := []struct {
		name    string
		inputs  []wire.OutPoint
		refs    []ledger.Output
		outputs []ledger.Output
		valid   bool
	}{{
		name:    "pays recipient",
		inputs:  []wire.OutPoint{slot},
		refs:    []ledger.Output{slotRef},
		outputs: []ledger.Output{output(addrA, guardedAsset, 60)},
		valid:   true,
	}, {
		name:    "pays someone else",
		inputs:  []wire.OutPoint{slot},
		refs:    []ledger.Output{slotRef},
		outputs: []ledger.Output{output(addrC, guardedAsset, 60)},
	}, {
		name:   "two outputs",
		inputs: []wire.OutPoint{slot},
		refs:   []ledger.Output{slotRef},
		outputs: []ledger.Output{
			output(addrA, guardedAsset, 30),
			output(addrA, guardedAsset, 30),
		},
	}, {
		name:    "two inputs",
		inputs:  []wire.OutPoint{other, slot},
		refs:    []ledger.Output{otherRef, slotRef},
		outputs: []ledger.Output{output(addrA, guardedAsset, 65)},
	}}

	for _, test := range tests {
		tc := newContext(2, test.inputs, test.refs, test.outputs, nil)
		require.Equal(t, test.valid, h.verify(t, tc), test.name)
	}
}

// TestVerifyConservation ensures spends that are not withdrawal completions
// must return exactly what they take and carry only the guarded asset.
func TestVerifyConservation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	tests := []struct {
		name    string
		refs    []ledger.Output
		outputs []ledger.Output
		valid   bool
	}{{
		name: "conserved",
		refs: []ledger.Output{
			output(custodianAddr, guardedAsset, 100),
			output(addrA, guardedAsset, 20),
		},
		outputs: []ledger.Output{
			output(custodianAddr, guardedAsset, 70),
			output(custodianAddr, guardedAsset, 30),
			output(addrA, guardedAsset, 20),
		},
		valid: true,
	}, {
		name: "drained",
		refs: []ledger.Output{
			output(custodianAddr, guardedAsset, 100),
		},
		outputs: []ledger.Output{
			output(custodianAddr, guardedAsset, 90),
			output(addrA, guardedAsset, 10),
		},
	}, {
		name: "inflated",
		refs: []ledger.Output{
			output(custodianAddr, guardedAsset, 100),
			output(addrA, guardedAsset, 10),
		},
		outputs: []ledger.Output{
			output(custodianAddr, guardedAsset, 110),
		},
	}, {
		name: "foreign asset input",
		refs: []ledger.Output{
			output(custodianAddr, guardedAsset, 100),
			output(addrA, foreignAsset, 10),
		},
		outputs: []ledger.Output{
			output(custodianAddr, guardedAsset, 100),
			output(addrA, foreignAsset, 10),
		},
	}}

	for _, test := range tests {
		tc := newContext(1, nil, test.refs, test.outputs, nil)
		require.Equal(t, test.valid, h.verify(t, tc), test.name)
	}
}

// TestVerifyNonSlotOutput ensures spending an output of a withdraw
// transaction other than WithdrawSlot is judged by conservation.
func TestVerifyNonSlotOutput(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.setBalance(t, addrA, 100)

	witness := &mockWitness{}
	witness.On("CheckWitness", addrA).Return(true)

	withdrawTx := newContext(1, nil,
		[]ledger.Output{output(custodianAddr, guardedAsset, 100)},
		[]ledger.Output{
			output(custodianAddr, guardedAsset, 60),
			output(custodianAddr, guardedAsset, 40),
		}, witness,
	)
	require.True(t, h.withdraw(t, withdrawTx, addrA))

	change := wire.OutPoint{Hash: withdrawTx.Hash, Index: 1}
	refs := []ledger.Output{output(custodianAddr, guardedAsset, 40)}

	tc := newContext(2, []wire.OutPoint{change}, refs,
		[]ledger.Output{output(addrA, guardedAsset, 40)}, nil,
	)
	require.False(t, h.verify(t, tc))

	tc = newContext(3, []wire.OutPoint{change}, refs,
		[]ledger.Output{output(custodianAddr, guardedAsset, 40)}, nil,
	)
	require.True(t, h.verify(t, tc))
}

// TestWithdrawIntentLog ensures intents survive encoding and are immutable.
func TestWithdrawIntentLog(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	hash := chainhash.Hash{0x01, 0x02}
	intent := &WithdrawIntent{Recipient: addrB, Amount: 12345}

	h.update(t, func(ns contractdb.ReadWriteBucket) error {
		intents, err := NewWithdrawIntentLog(ns)
		require.NoError(t, err)
		require.NoError(t, intents.Put(&hash, intent))

		err = intents.Put(&hash, &WithdrawIntent{Recipient: addrC})
		require.True(t, IsError(err, ErrIntentExists), err)
		return nil
	})

	h.view(t, func(ns contractdb.ReadBucket) error {
		intents, err := NewWithdrawIntentLog(ns)
		require.NoError(t, err)

		got, err := intents.Get(&hash)
		require.NoError(t, err)
		require.Equal(t, *intent, got.UnwrapOr(WithdrawIntent{}))

		missing, err := intents.Get(&chainhash.Hash{0x03})
		require.NoError(t, err)
		require.True(t, missing.IsNone())
		return nil
	})
}

// TestUninitializedNamespace ensures a missing namespace is reported as
// ErrNoExist.
func TestUninitializedNamespace(t *testing.T) {
	t.Parallel()

	_, err := NewBalanceLedger(nil)
	require.True(t, IsError(err, ErrNoExist), err)

	_, err = NewWithdrawIntentLog(nil)
	require.True(t, IsError(err, ErrNoExist), err)
}
