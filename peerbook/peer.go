// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peerbook implements the CoinJoin peer registry and orderbook
// (C3): the live peer table, the offer table keyed by (nick, order_id),
// fidelity-bond proof parsing/verification, stale-offer filtering, and
// the three-phase maker-selection procedure.
package peerbook

import (
	"crypto/sha256"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/btcsuite/cjcore/internal/cfgutil"
)

// DirectLocation is the literal location string a peer carries when
// reachable only through a relayed channel rather than a dialable
// onion address, per the domain spec's Peer data model.
const DirectLocation = "direct"

// NickVersion is the version digit embedded in every nick this package
// derives, matching the single version currently in use by the wire
// protocol.
const NickVersion = '2'

// nickPrefixLen is how many bytes of sha256(pubkey) are base58-encoded
// into a nick, per the domain spec's nick format.
const nickPrefixLen = 14

// HandshakeState is a peer's position in its connection lifecycle.
type HandshakeState int

const (
	HandshakePending HandshakeState = iota
	HandshakeDone
	HandshakeDisconnected
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakePending:
		return "PENDING"
	case HandshakeDone:
		return "HANDSHAKED"
	case HandshakeDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Peer is one entry in the live peer table, identified by its nick.
type Peer struct {
	Nick       string
	SigningPub []byte
	Location   string
	Features   []string
	State      HandshakeState
	LastSeen   time.Time
}

// DeriveNick computes the nick "J" || version || base58(sha256(pubkey)[0..14])
// for a signing public key, matching the domain spec's nick format.
func DeriveNick(pubkey []byte) string {
	digest := sha256.Sum256(pubkey)
	prefix := digest[:nickPrefixLen]
	return "J" + string(NickVersion) + base58.Encode(prefix)
}

// NewPeer builds a Peer from handshake data, canonicalizing location
// into host:port form (filling in defaultPort when the peer omitted
// one) unless it is the literal DirectLocation, so two peers that
// advertised the same onion host with and without an explicit default
// port still compare equal.
func NewPeer(nick string, signingPub []byte, location, defaultPort string, features []string) (*Peer, error) {
	if location != DirectLocation {
		normalized, err := cfgutil.NormalizeAddress(location, defaultPort)
		if err != nil {
			return nil, bookError(ErrMalformedLocation, "invalid peer location "+location, err)
		}
		location = normalized
	}
	return &Peer{
		Nick:       nick,
		SigningPub: signingPub,
		Location:   location,
		Features:   features,
		State:      HandshakePending,
		LastSeen:   time.Now(),
	}, nil
}

// Registry owns the peer table (arena keyed by nick) and the offer
// table, resolving the natural peer/session/orderbook reference cycle
// by letting sessions elsewhere hold a nick rather than a pointer into
// this registry (domain spec §9, "Cyclic references").
type Registry struct {
	peers map[string]*Peer
	book  *Orderbook
}

// NewRegistry returns an empty registry with a fresh orderbook.
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]*Peer),
		book:  NewOrderbook(),
	}
}

// Orderbook returns the registry's backing offer table.
func (r *Registry) Orderbook() *Orderbook {
	return r.book
}

// Upsert creates or updates a peer on handshake.
func (r *Registry) Upsert(p *Peer) {
	r.peers[p.Nick] = p
}

// Get looks up a peer by nick.
func (r *Registry) Get(nick string) (*Peer, bool) {
	p, ok := r.peers[nick]
	return p, ok
}

// SetState transitions a peer's handshake state, returning
// ErrUnknownNick if the peer is absent.
func (r *Registry) SetState(nick string, state HandshakeState) error {
	p, ok := r.peers[nick]
	if !ok {
		return bookError(ErrUnknownNick, "unknown nick", nil)
	}
	p.State = state
	p.LastSeen = time.Now()
	return nil
}

// Remove destroys a peer on disconnect or timeout.
func (r *Registry) Remove(nick string) {
	delete(r.peers, nick)
}

// Connected reports whether nick is present and not DISCONNECTED.
func (r *Registry) Connected(nick string) bool {
	p, ok := r.peers[nick]
	return ok && p.State != HandshakeDisconnected
}
