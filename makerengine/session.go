// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package makerengine implements the maker session engine (C5): the
// symmetric counterpart to takerengine, handling !fill/!auth/!tx for a
// single CoinJoin counterparty, plus the rate limiting a maker applies
// to inbound traffic.
package makerengine

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/cjcore/peerbook"
	"github.com/btcsuite/cjcore/podle"
	"github.com/btcsuite/cjcore/wireproto"
)

// State is a maker session's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateFilled
	StateAuthed
	StateSigned
	StateDone
	StateAborted
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFilled:
		return "FILLED"
	case StateAuthed:
		return "AUTHED"
	case StateSigned:
		return "SIGNED"
	case StateDone:
		return "DONE"
	case StateAborted:
		return "ABORTED"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// terminal reports whether s has no further transitions.
func (s State) terminal() bool {
	return s == StateDone || s == StateAborted || s == StateTimedOut
}

// Session is one maker's view of a single taker interaction.
type Session struct {
	TakerNick  string
	OrderID    int64
	Keys       *wireproto.KeyPair
	PeerPub    *[32]byte
	Commitment podle.Commitment
	CJAmount   btcutil.Amount

	MyUTXOs    []wire.OutPoint
	CJAddr     string
	ChangeAddr string
	BondProof  *peerbook.BondProof

	State     State
	CreatedAt time.Time

	// LastSigs is the most recently produced !sig batch for this
	// session. A taker that retries !tx against an already-SIGNED
	// session gets this replayed rather than a fresh signature over
	// potentially different transaction bytes.
	LastSigs []SigResponse
}

// Expired reports whether the session has outlived timeout as of now.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	return !s.State.terminal() && now.Sub(s.CreatedAt) > timeout
}
