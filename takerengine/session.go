// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package takerengine implements the taker session engine (C4): the
// five-phase protocol that drives one CoinJoin run across any number of
// concurrently negotiated maker counterparties.
package takerengine

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/cjcore/peerbook"
	"github.com/btcsuite/cjcore/podle"
	"github.com/btcsuite/cjcore/wireproto"
)

// RunState is a CoinJoin run's position in the outer, run-level state
// machine.
type RunState int

const (
	RunIdle RunState = iota
	RunDiscover
	RunFill
	RunAuth
	RunTxBuild
	RunSign
	RunBroadcast
	RunDone
	RunAborted
)

func (s RunState) String() string {
	switch s {
	case RunIdle:
		return "IDLE"
	case RunDiscover:
		return "DISCOVER"
	case RunFill:
		return "FILL"
	case RunAuth:
		return "AUTH"
	case RunTxBuild:
		return "TX_BUILD"
	case RunSign:
		return "SIGN"
	case RunBroadcast:
		return "BROADCAST"
	case RunDone:
		return "DONE"
	case RunAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// MakerState is one maker counterparty's inner session state, the
// taker-side mirror of makerengine's per-session state machine.
type MakerState int

const (
	MakerPendingFill MakerState = iota
	MakerFilled
	MakerAuthed
	MakerSigned
	MakerFailed
)

func (s MakerState) String() string {
	switch s {
	case MakerPendingFill:
		return "PENDING_FILL"
	case MakerFilled:
		return "FILLED"
	case MakerAuthed:
		return "AUTHED"
	case MakerSigned:
		return "SIGNED"
	case MakerFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IOAuth is a maker's parsed !ioauth reply: its chosen inputs and
// output destinations for this run.
type IOAuth struct {
	UTXOs      []wire.OutPoint
	TotalIn    btcutil.Amount
	CJAddr     string
	ChangeAddr string
	Bond       *peerbook.BondProof
}

// MakerSession is one maker counterparty's negotiation state within a
// single run.
type MakerSession struct {
	Nick     string
	OrderID  int64
	Offer    peerbook.Offer
	Keys     *wireproto.KeyPair
	PeerPub  *[32]byte
	Commitment podle.Commitment

	IOAuth *IOAuth
	Sigs   map[int][]byte // input index -> DER signature, as !sig arrives

	State     MakerState
	CreatedAt time.Time

	pubkeyReady chan struct{}
	ioauthReady chan struct{}
	sigsReady   chan struct{}
	wantSigs    int
}

func newMakerSession(offer peerbook.Offer, keys *wireproto.KeyPair, commitment podle.Commitment, now time.Time) *MakerSession {
	return &MakerSession{
		Nick:        offer.MakerNick,
		OrderID:     offer.OrderID,
		Offer:       offer,
		Keys:        keys,
		Commitment:  commitment,
		Sigs:        make(map[int][]byte),
		State:       MakerPendingFill,
		CreatedAt:   now,
		pubkeyReady: make(chan struct{}),
		ioauthReady: make(chan struct{}),
		sigsReady:   make(chan struct{}),
	}
}
