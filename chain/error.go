// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import "fmt"

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrDatabase indicates an error with the underlying database.
	ErrDatabase ErrorCode = iota

	// ErrMalformedTx indicates a transaction that is structurally
	// invalid, such as one without inputs or with an empty invocation.
	ErrMalformedTx

	// ErrDuplicateTx indicates a transaction that has already been
	// applied.
	ErrDuplicateTx

	// ErrMissingInput indicates an input referencing an output that never
	// existed.
	ErrMissingInput

	// ErrDoubleSpend indicates an input referencing an output that has
	// already been spent, or two inputs referencing the same output.
	ErrDoubleSpend

	// ErrBadOutputValue indicates an output value outside the allowed
	// range.
	ErrBadOutputValue

	// ErrAssetImbalance indicates a transaction creating more of an asset
	// than it spends.
	ErrAssetImbalance

	// ErrMissingWitness indicates an input owned by an address that did
	// not sign the transaction.
	ErrMissingWitness

	// ErrVerifyFailed indicates a contract refusing to let its outputs be
	// spent.
	ErrVerifyFailed

	// ErrInvokeFailed indicates an invocation that returned false or an
	// error.
	ErrInvokeFailed

	// ErrUnknownContract indicates an invocation of an address with no
	// registered contract.
	ErrUnknownContract
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDatabase:        "ErrDatabase",
	ErrMalformedTx:     "ErrMalformedTx",
	ErrDuplicateTx:     "ErrDuplicateTx",
	ErrMissingInput:    "ErrMissingInput",
	ErrDoubleSpend:     "ErrDoubleSpend",
	ErrBadOutputValue:  "ErrBadOutputValue",
	ErrAssetImbalance:  "ErrAssetImbalance",
	ErrMissingWitness:  "ErrMissingWitness",
	ErrVerifyFailed:    "ErrVerifyFailed",
	ErrInvokeFailed:    "ErrInvokeFailed",
	ErrUnknownContract: "ErrUnknownContract",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a transaction the chain refuses to apply, or a
// failure while applying it.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error, optional
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e RuleError) Unwrap() error {
	return e.Err
}

func ruleError(c ErrorCode, desc string, err error) RuleError {
	return RuleError{ErrorCode: c, Description: desc, Err: err}
}

// IsErrorCode returns whether err is a RuleError with a matching error code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := err.(RuleError)
	return ok && e.ErrorCode == code
}
