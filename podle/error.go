// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package podle

import "fmt"

// ErrorCode identifies a kind of PoDLE error.
type ErrorCode int

// These constants identify the failure modes named in the PoDLE
// verification contract.
const (
	// ErrMalformed indicates a proof, commitment, or curve point could
	// not be parsed.
	ErrMalformed ErrorCode = iota

	// ErrCommitmentMismatch indicates the revealed P2 does not hash to
	// the previously published commitment.
	ErrCommitmentMismatch

	// ErrProofInvalid indicates the Schnorr-style equality proof failed
	// to verify against P and P2.
	ErrProofInvalid

	// ErrIndexOutOfRange indicates a NUMS index outside [0, 255].
	ErrIndexOutOfRange

	// ErrRetriesExhausted indicates every index in a taker's or maker's
	// acceptance set has already been used against this counterparty.
	ErrRetriesExhausted

	// ErrCommitmentReused indicates a commitment has already been
	// consumed (revealed or blacklisted) for this maker.
	ErrCommitmentReused
)

var errorCodeStrings = map[ErrorCode]string{
	ErrMalformed:           "ErrMalformed",
	ErrCommitmentMismatch:  "ErrCommitmentMismatch",
	ErrProofInvalid:        "ErrProofInvalid",
	ErrIndexOutOfRange:     "ErrIndexOutOfRange",
	ErrRetriesExhausted:    "ErrRetriesExhausted",
	ErrCommitmentReused:    "ErrCommitmentReused",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during PoDLE
// commitment generation or verification.
type Error struct {
	ErrorCode   ErrorCode
	Description string
	Err         error
}

// Error satisfies the error interface.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap allows errors.Is/errors.As to reach the wrapped cause.
func (e Error) Unwrap() error {
	return e.Err
}

func podleError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}
