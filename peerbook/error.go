// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peerbook

import "fmt"

// ErrorCode identifies a kind of peer registry or orderbook error.
type ErrorCode int

const (
	// ErrDuplicateOffer indicates an offer's (nick, order_id) key already
	// exists with an equal or newer timestamp.
	ErrDuplicateOffer ErrorCode = iota

	// ErrBondMalformed indicates a bond proof did not parse to exactly
	// 252 bytes or had an invalid internal shape.
	ErrBondMalformed

	// ErrBondInvalid indicates a bond proof's keys or signatures failed
	// to parse or verify. Bond verification does not look up the bond's
	// UTXO, so a proof over a missing or mismatched UTXO is not reported
	// with this code.
	ErrBondInvalid

	// ErrBondExpired indicates cert_expiry has already elapsed relative
	// to the given block height.
	ErrBondExpired

	// ErrUnknownNick indicates an operation referenced a nick absent
	// from the peer table.
	ErrUnknownNick

	// ErrInsufficientOffers indicates fewer distinct makers survived
	// filtering than requested by the selection count.
	ErrInsufficientOffers

	// ErrInvalidSelectionAlgorithm indicates an unrecognized selection
	// algorithm name.
	ErrInvalidSelectionAlgorithm

	// ErrMalformedLocation indicates a peer's advertised network
	// location is neither the literal "direct" nor a valid host[:port].
	ErrMalformedLocation

	// ErrCounterpartyCountTooLow indicates a selection request asked
	// for fewer than MinCounterpartyCount makers.
	ErrCounterpartyCountTooLow
)

var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicateOffer:            "ErrDuplicateOffer",
	ErrBondMalformed:             "ErrBondMalformed",
	ErrBondInvalid:               "ErrBondInvalid",
	ErrBondExpired:               "ErrBondExpired",
	ErrUnknownNick:               "ErrUnknownNick",
	ErrInsufficientOffers:        "ErrInsufficientOffers",
	ErrInvalidSelectionAlgorithm: "ErrInvalidSelectionAlgorithm",
	ErrMalformedLocation:         "ErrMalformedLocation",
	ErrCounterpartyCountTooLow:   "ErrCounterpartyCountTooLow",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error is returned for every registry/orderbook failure this package
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

func bookError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}
