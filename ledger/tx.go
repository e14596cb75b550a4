// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// MaxTxInputs is the maximum number of inputs a transaction may spend.
	MaxTxInputs = 1024

	// MaxTxOutputs is the maximum number of outputs a transaction may
	// create.
	MaxTxOutputs = 1024

	// MaxInvocationArgs is the maximum number of arguments carried by an
	// invocation.
	MaxInvocationArgs = 16

	// MaxInvocationArgSize is the maximum size of a single invocation
	// argument.
	MaxInvocationArgSize = 1024

	// MaxMethodNameSize is the maximum length of an invocation method name.
	MaxMethodNameSize = 64

	// MaxTxWitnesses is the maximum number of witnesses a transaction may
	// carry.
	MaxTxWitnesses = 16

	maxPubKeySize    = 65
	maxSignatureSize = 73

	// protocolVersion is passed to the wire varint helpers, which ignore
	// it for the encodings used here.
	protocolVersion = 0
)

// byteOrder is used for all fixed width integers in the transaction
// encoding.
var byteOrder = binary.LittleEndian

// Output is a single-owner, single-asset value record.  Outputs are
// immutable once created and are consumed exactly once.
type Output struct {
	// Address is the owner of the output.
	Address Address

	// AssetID identifies the asset carried by the output.
	AssetID chainhash.Hash

	// Value is the amount of the asset.
	Value btcutil.Amount
}

// Invocation is an application call carried by a transaction.  The host
// dispatches it to the contract at Contract after verification succeeds.
type Invocation struct {
	Contract Address
	Method   string
	Args     [][]byte
}

// Witness authorizes a transaction on behalf of the address derived from
// PubKey.  Signature is a DER encoded ECDSA signature over the transaction
// hash.
type Witness struct {
	PubKey    []byte
	Signature []byte
}

// Tx is a transaction spending previous outputs and creating new ones.
//
// The transaction hash commits to every field except the witnesses.
type Tx struct {
	// Nonce distinguishes otherwise identical transactions.
	Nonce uint32

	// Inputs identify the previous outputs spent by the transaction.
	Inputs []wire.OutPoint

	// Outputs are created by the transaction, indexed by position.
	Outputs []Output

	// Invocation is the optional application call.
	Invocation *Invocation

	// Witnesses authorize the transaction.
	Witnesses []Witness
}

// TxHash returns the hash identifying the transaction.
func (tx *Tx) TxHash() chainhash.Hash {
	var buf bytes.Buffer
	_ = tx.SerializeNoWitness(&buf)
	return chainhash.DoubleHashH(buf.Bytes())
}

// Serialize encodes the transaction including its witnesses.
func (tx *Tx) Serialize(w io.Writer) error {
	if err := tx.SerializeNoWitness(w); err != nil {
		return err
	}

	err := wire.WriteVarInt(w, protocolVersion, uint64(len(tx.Witnesses)))
	if err != nil {
		return err
	}
	for i := range tx.Witnesses {
		wit := &tx.Witnesses[i]
		err := wire.WriteVarBytes(w, protocolVersion, wit.PubKey)
		if err != nil {
			return err
		}
		err = wire.WriteVarBytes(w, protocolVersion, wit.Signature)
		if err != nil {
			return err
		}
	}
	return nil
}

// SerializeNoWitness encodes the portion of the transaction committed to by
// its hash.
func (tx *Tx) SerializeNoWitness(w io.Writer) error {
	var scratch [8]byte

	byteOrder.PutUint32(scratch[:4], tx.Nonce)
	if _, err := w.Write(scratch[:4]); err != nil {
		return err
	}

	err := wire.WriteVarInt(w, protocolVersion, uint64(len(tx.Inputs)))
	if err != nil {
		return err
	}
	for i := range tx.Inputs {
		op := &tx.Inputs[i]
		if _, err := w.Write(op.Hash[:]); err != nil {
			return err
		}
		byteOrder.PutUint32(scratch[:4], op.Index)
		if _, err := w.Write(scratch[:4]); err != nil {
			return err
		}
	}

	err = wire.WriteVarInt(w, protocolVersion, uint64(len(tx.Outputs)))
	if err != nil {
		return err
	}
	for i := range tx.Outputs {
		if err := writeOutput(w, &tx.Outputs[i]); err != nil {
			return err
		}
	}

	if tx.Invocation == nil {
		_, err := w.Write([]byte{0})
		return err
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	inv := tx.Invocation
	if _, err := w.Write(inv.Contract[:]); err != nil {
		return err
	}
	err = wire.WriteVarString(w, protocolVersion, inv.Method)
	if err != nil {
		return err
	}
	err = wire.WriteVarInt(w, protocolVersion, uint64(len(inv.Args)))
	if err != nil {
		return err
	}
	for _, arg := range inv.Args {
		err := wire.WriteVarBytes(w, protocolVersion, arg)
		if err != nil {
			return err
		}
	}
	return nil
}

// Deserialize decodes a transaction encoded by Serialize.
func (tx *Tx) Deserialize(r io.Reader) error {
	var scratch [8]byte

	if _, err := io.ReadFull(r, scratch[:4]); err != nil {
		return err
	}
	tx.Nonce = byteOrder.Uint32(scratch[:4])

	count, err := readCount(r, MaxTxInputs, "inputs")
	if err != nil {
		return err
	}
	tx.Inputs = nil
	if count > 0 {
		tx.Inputs = make([]wire.OutPoint, count)
	}
	for i := range tx.Inputs {
		op := &tx.Inputs[i]
		if _, err := io.ReadFull(r, op.Hash[:]); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, scratch[:4]); err != nil {
			return err
		}
		op.Index = byteOrder.Uint32(scratch[:4])
	}

	count, err = readCount(r, MaxTxOutputs, "outputs")
	if err != nil {
		return err
	}
	tx.Outputs = nil
	if count > 0 {
		tx.Outputs = make([]Output, count)
	}
	for i := range tx.Outputs {
		if err := readOutput(r, &tx.Outputs[i]); err != nil {
			return err
		}
	}

	if _, err := io.ReadFull(r, scratch[:1]); err != nil {
		return err
	}
	switch scratch[0] {
	case 0:
		tx.Invocation = nil
	case 1:
		inv := new(Invocation)
		if _, err := io.ReadFull(r, inv.Contract[:]); err != nil {
			return err
		}
		method, err := wire.ReadVarBytes(r, protocolVersion,
			MaxMethodNameSize, "method")
		if err != nil {
			return err
		}
		inv.Method = string(method)
		count, err := readCount(r, MaxInvocationArgs, "args")
		if err != nil {
			return err
		}
		if count > 0 {
			inv.Args = make([][]byte, count)
		}
		for i := range inv.Args {
			inv.Args[i], err = wire.ReadVarBytes(r, protocolVersion,
				MaxInvocationArgSize, "arg")
			if err != nil {
				return err
			}
		}
		tx.Invocation = inv
	default:
		return fmt.Errorf("%w: invalid invocation flag %d",
			ErrMalformedInput, scratch[0])
	}

	count, err = readCount(r, MaxTxWitnesses, "witnesses")
	if err != nil {
		return err
	}
	tx.Witnesses = nil
	if count > 0 {
		tx.Witnesses = make([]Witness, count)
	}
	for i := range tx.Witnesses {
		wit := &tx.Witnesses[i]
		wit.PubKey, err = wire.ReadVarBytes(r, protocolVersion,
			maxPubKeySize, "pubkey")
		if err != nil {
			return err
		}
		wit.Signature, err = wire.ReadVarBytes(r, protocolVersion,
			maxSignatureSize, "signature")
		if err != nil {
			return err
		}
	}
	return nil
}

// Bytes returns the full serialization of the transaction.
func (tx *Tx) Bytes() []byte {
	var buf bytes.Buffer
	_ = tx.Serialize(&buf)
	return buf.Bytes()
}

// DecodeTx decodes a serialized transaction, rejecting trailing data.
func DecodeTx(b []byte) (*Tx, error) {
	r := bytes.NewReader(b)
	tx := new(Tx)
	if err := tx.Deserialize(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after transaction",
			ErrMalformedInput, r.Len())
	}
	return tx, nil
}

func writeOutput(w io.Writer, out *Output) error {
	var scratch [8]byte
	if _, err := w.Write(out.Address[:]); err != nil {
		return err
	}
	if _, err := w.Write(out.AssetID[:]); err != nil {
		return err
	}
	byteOrder.PutUint64(scratch[:], uint64(out.Value))
	_, err := w.Write(scratch[:])
	return err
}

func readOutput(r io.Reader, out *Output) error {
	var scratch [8]byte
	if _, err := io.ReadFull(r, out.Address[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, out.AssetID[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return err
	}
	out.Value = btcutil.Amount(byteOrder.Uint64(scratch[:]))
	return nil
}

func readCount(r io.Reader, max uint64, field string) (uint64, error) {
	count, err := wire.ReadVarInt(r, protocolVersion)
	if err != nil {
		return 0, err
	}
	if count > max {
		return 0, fmt.Errorf("%w: too many %s (%d > %d)",
			ErrMalformedInput, field, count, max)
	}
	return count, nil
}
