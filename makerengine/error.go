// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package makerengine

import "fmt"

// ErrorCode identifies a kind of maker session failure.
type ErrorCode int

const (
	// ErrOutOfPhase indicates a command arrived for a session not in
	// the state that command expects.
	ErrOutOfPhase ErrorCode = iota

	// ErrCommitmentBlacklisted indicates a taker's PoDLE commitment is
	// already in the local blacklist.
	ErrCommitmentBlacklisted

	// ErrPoDLEInvalid indicates the taker's PoDLE reveal failed
	// verification.
	ErrPoDLEInvalid

	// ErrUTXONotFound indicates the taker-declared UTXO does not exist
	// per the UTXO oracle.
	ErrUTXONotFound

	// ErrUTXOImmature indicates the taker-declared UTXO has fewer than
	// taker_utxo_age confirmations.
	ErrUTXOImmature

	// ErrUTXOUndervalued indicates the taker-declared UTXO's value is
	// below taker_utxo_amtpercent of the CJ amount.
	ErrUTXOUndervalued

	// ErrVerifierRefused indicates the unsigned transaction failed the
	// C6 verifier's acceptance conditions.
	ErrVerifierRefused

	// ErrBondUTXORefused indicates a proposed input's scriptPubKey is
	// P2WSH, which this maker must never sign into a CoinJoin.
	ErrBondUTXORefused

	// ErrUnknownSession indicates a command referenced a session this
	// maker does not track.
	ErrUnknownSession

	// ErrRateLimited indicates the counterparty exceeded the
	// per-connection rate limit and this command was dropped.
	ErrRateLimited
)

var errorCodeStrings = map[ErrorCode]string{
	ErrOutOfPhase:            "ErrOutOfPhase",
	ErrCommitmentBlacklisted: "ErrCommitmentBlacklisted",
	ErrPoDLEInvalid:          "ErrPoDLEInvalid",
	ErrUTXONotFound:          "ErrUTXONotFound",
	ErrUTXOImmature:          "ErrUTXOImmature",
	ErrUTXOUndervalued:       "ErrUTXOUndervalued",
	ErrVerifierRefused:       "ErrVerifierRefused",
	ErrBondUTXORefused:       "ErrBondUTXORefused",
	ErrUnknownSession:        "ErrUnknownSession",
	ErrRateLimited:           "ErrRateLimited",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error is returned for every maker-session failure this package
// detects.
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

func makerError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}
