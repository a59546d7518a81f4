// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wireproto

import "fmt"

// ErrorCode identifies a kind of envelope or channel protocol error.
type ErrorCode int

const (
	// ErrOversizeLine indicates a single wire line exceeded maxLineBytes.
	ErrOversizeLine ErrorCode = iota

	// ErrOversizeMessage indicates a decoded envelope exceeded
	// maxMessageBytes.
	ErrOversizeMessage

	// ErrNestingTooDeep indicates the JSON payload nested more than
	// maxJSONDepth levels deep.
	ErrNestingTooDeep

	// ErrMalformedEnvelope indicates the line did not parse as a valid
	// envelope, or its application payload did not parse.
	ErrMalformedEnvelope

	// ErrUnknownType indicates an envelope "type" field outside the
	// fixed set of nine message types.
	ErrUnknownType

	// ErrChannelInconsistent indicates a session's messages traversed a
	// different transport than the one it first used.
	ErrChannelInconsistent

	// ErrReplay indicates an anti-replay signature failed to verify,
	// either because it is forged or because it was captured from a
	// different channel (the hostid binding differs).
	ErrReplay

	// ErrDecryptFailed indicates a NaCl box failed to open, either due
	// to tampering or being addressed to the wrong session.
	ErrDecryptFailed

	// ErrOutOfPhase indicates an encrypted command arrived for a
	// session not ready to receive it.
	ErrOutOfPhase
)

var errorCodeStrings = map[ErrorCode]string{
	ErrOversizeLine:        "ErrOversizeLine",
	ErrOversizeMessage:     "ErrOversizeMessage",
	ErrNestingTooDeep:      "ErrNestingTooDeep",
	ErrMalformedEnvelope:   "ErrMalformedEnvelope",
	ErrUnknownType:         "ErrUnknownType",
	ErrChannelInconsistent: "ErrChannelInconsistent",
	ErrReplay:              "ErrReplay",
	ErrDecryptFailed:       "ErrDecryptFailed",
	ErrOutOfPhase:          "ErrOutOfPhase",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error is returned for every protocol violation this package detects.
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

func wireError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}
