// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txverify

import "fmt"

// ErrorCode identifies which of the unsigned-tx acceptance conditions
// failed.
type ErrorCode int

const (
	// ErrParse indicates the transaction bytes did not deserialize.
	ErrParse ErrorCode = iota

	// ErrMissingUTXO indicates one of the maker's own UTXOs is absent
	// from the transaction's inputs.
	ErrMissingUTXO

	// ErrDuplicateUTXO indicates one of the maker's own UTXOs appears
	// more than once among the transaction's inputs.
	ErrDuplicateUTXO

	// ErrCJOutputMissing indicates no output script matches the
	// maker's CJ address.
	ErrCJOutputMissing

	// ErrCJOutputDuplicated indicates the CJ address appears more than
	// once across outputs.
	ErrCJOutputDuplicated

	// ErrCJOutputUnderfunded indicates the CJ output's value is below
	// cj_amount.
	ErrCJOutputUnderfunded

	// ErrChangeOutputMissing indicates expected change exceeds dust but
	// no output matches the change address.
	ErrChangeOutputMissing

	// ErrChangeOutputDuplicated indicates the change address appears
	// more than once across outputs.
	ErrChangeOutputDuplicated

	// ErrChangeOutputUnderfunded indicates the change output's value is
	// below the expected change amount E.
	ErrChangeOutputUnderfunded

	// ErrChangeOutputUnexpected indicates expected change is at or
	// below dust, yet a change output is present anyway.
	ErrChangeOutputUnexpected

	// ErrNoProfit indicates real_cjfee - txfee_share is not strictly
	// positive.
	ErrNoProfit
)

var errorCodeStrings = map[ErrorCode]string{
	ErrParse:                   "ErrParse",
	ErrMissingUTXO:             "ErrMissingUTXO",
	ErrDuplicateUTXO:           "ErrDuplicateUTXO",
	ErrCJOutputMissing:         "ErrCJOutputMissing",
	ErrCJOutputDuplicated:      "ErrCJOutputDuplicated",
	ErrCJOutputUnderfunded:     "ErrCJOutputUnderfunded",
	ErrChangeOutputMissing:     "ErrChangeOutputMissing",
	ErrChangeOutputDuplicated:  "ErrChangeOutputDuplicated",
	ErrChangeOutputUnderfunded: "ErrChangeOutputUnderfunded",
	ErrChangeOutputUnexpected:  "ErrChangeOutputUnexpected",
	ErrNoProfit:                "ErrNoProfit",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error is the structured refusal reason the verifier returns on any
// failed acceptance condition. A maker MUST NOT sign when Verify
// returns a non-nil error.
type Error struct {
	ErrorCode   ErrorCode
	Description string
	Err         error
}

func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

func (e Error) Unwrap() error {
	return e.Err
}

func verifyError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}
