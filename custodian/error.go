// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custodian

import "fmt"

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrDatabase indicates an error with the underlying database.  When
	// this error code is set, the Err field of the Error will be set to the
	// underlying error returned from the database.
	ErrDatabase ErrorCode = iota

	// ErrData describes an error where data stored in the custodian
	// namespace is missing or corrupt.
	ErrData

	// ErrNoExist indicates that the custodian namespace has not been
	// created.
	ErrNoExist

	// ErrMalformedInput indicates an argument of the wrong width, such as
	// an address that is not 20 bytes or a hash that is not 32 bytes.
	// Such arguments are rejected rather than truncated or padded.
	ErrMalformedInput

	// ErrIntentExists indicates an attempt to overwrite a recorded
	// withdrawal intent.  Intents are immutable once written.
	ErrIntentExists
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDatabase:       "ErrDatabase",
	ErrData:           "ErrData",
	ErrNoExist:        "ErrNoExist",
	ErrMalformedInput: "ErrMalformedInput",
	ErrIntentExists:   "ErrIntentExists",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during custodian
// operation.  Policy rejections are not errors; they are reported as a false
// result.
type Error struct {
	Code ErrorCode // Describes the kind of error
	Desc string    // Human readable description of the issue
	Err  error     // Underlying error, optional
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Desc + ": " + e.Err.Error()
	}
	return e.Desc
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

func storeError(c ErrorCode, desc string, err error) Error {
	return Error{Code: c, Desc: desc, Err: err}
}

// IsError returns whether err is an Error with a matching error code.
func IsError(err error, code ErrorCode) bool {
	e, ok := err.(Error)
	return ok && e.Code == code
}
