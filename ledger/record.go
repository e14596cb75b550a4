// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// OutputSize is the serialized size of an Output.
const OutputSize = AddressSize + 32 + 8

// SerializeOutput returns the canonical encoding of out.
func SerializeOutput(out *Output) []byte {
	var buf bytes.Buffer
	buf.Grow(OutputSize)
	_ = writeOutput(&buf, out)
	return buf.Bytes()
}

// DeserializeOutput decodes an output encoded by SerializeOutput.
func DeserializeOutput(b []byte) (Output, error) {
	var out Output
	if len(b) != OutputSize {
		return out, fmt.Errorf("%w: output must be %d bytes, got %d",
			ErrMalformedInput, OutputSize, len(b))
	}
	err := readOutput(bytes.NewReader(b), &out)
	return out, err
}

// Serialize encodes the record as the transaction followed by its
// references.
func (rec *TxRecord) Serialize() []byte {
	var buf bytes.Buffer
	_ = rec.Tx.Serialize(&buf)
	_ = wire.WriteVarInt(&buf, protocolVersion, uint64(len(rec.References)))
	for i := range rec.References {
		_ = writeOutput(&buf, &rec.References[i])
	}
	return buf.Bytes()
}

// DeserializeTxRecord decodes a record encoded by TxRecord.Serialize.
func DeserializeTxRecord(b []byte) (*TxRecord, error) {
	r := bytes.NewReader(b)
	tx := new(Tx)
	if err := tx.Deserialize(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	count, err := readCount(r, MaxTxInputs, "references")
	if err != nil {
		return nil, err
	}
	var refs []Output
	if count > 0 {
		refs = make([]Output, count)
	}
	for i := range refs {
		if err := readOutput(r, &refs[i]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after record",
			ErrMalformedInput, r.Len())
	}
	return &TxRecord{Tx: tx, Hash: tx.TxHash(), References: refs}, nil
}
