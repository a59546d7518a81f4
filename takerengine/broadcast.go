// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package takerengine

import (
	"context"
	"math/rand"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BroadcastPolicy selects how a taker relays the finished transaction,
// per domain spec §4.4's BROADCAST phase.
type BroadcastPolicy int

const (
	// BroadcastSelf submits the transaction through the taker's own
	// backend.
	BroadcastSelf BroadcastPolicy = iota

	// BroadcastRandomPeer asks a single, randomly chosen counterparty
	// to relay the transaction on the taker's behalf.
	BroadcastRandomPeer

	// BroadcastMultiplePeers (the default) fans the transaction out to
	// several counterparties, for resistance against any one of them
	// withholding it.
	BroadcastMultiplePeers

	// BroadcastNotSelf relays exclusively through counterparties and
	// never falls back to the taker's own backend.
	BroadcastNotSelf
)

// DefaultMultiplePeersFanout is how many counterparties BroadcastMultiplePeers
// targets.
const DefaultMultiplePeersFanout = 3

func (p BroadcastPolicy) String() string {
	switch p {
	case BroadcastSelf:
		return "self"
	case BroadcastRandomPeer:
		return "random_peer"
	case BroadcastMultiplePeers:
		return "multiple_peers"
	case BroadcastNotSelf:
		return "not_self"
	default:
		return "unknown"
	}
}

// ParseBroadcastPolicy maps the config file/CLI spelling of a broadcast
// policy ("self", "random_peer", "multiple_peers", "not_self") onto its
// BroadcastPolicy value.
func ParseBroadcastPolicy(s string) (BroadcastPolicy, error) {
	switch s {
	case "self":
		return BroadcastSelf, nil
	case "random_peer":
		return BroadcastRandomPeer, nil
	case "multiple_peers":
		return BroadcastMultiplePeers, nil
	case "not_self":
		return BroadcastNotSelf, nil
	default:
		return 0, takerError(ErrBroadcastFailed, "unknown broadcast policy name: "+s, nil)
	}
}

// PeerBroadcaster relays a finished transaction through a named
// counterparty rather than the taker's own backend, e.g. over the same
// wire channel the negotiation happened on.
type PeerBroadcaster interface {
	BroadcastVia(ctx context.Context, nick string, tx *wire.MsgTx) error
}

// Broadcast relays tx per policy, given the nicks of counterparties
// eligible to relay on the taker's behalf. For any peer-based policy, a
// relay failure falls back to the taker's own backend unless policy is
// BroadcastNotSelf, matching the domain spec's explicit exception.
//
// The whole call is bounded by e.broadcastTimeout, the !push
// acknowledgement deadline the domain spec gives its own budget
// distinct from session_timeout_sec: a peer that accepts a relay
// request but never confirms it must not stall the run as long as a
// full SIGN-phase timeout would.
func (e *Engine) Broadcast(ctx context.Context, tx *wire.MsgTx, policy BroadcastPolicy, peerNicks []string, pb PeerBroadcaster) (chainhash.Hash, error) {
	timeout := e.broadcastTimeout
	if timeout <= 0 {
		timeout = DefaultBroadcastTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch policy {
	case BroadcastSelf:
		return e.backend.Broadcast(ctx, tx)

	case BroadcastRandomPeer:
		if len(peerNicks) == 0 {
			return e.backend.Broadcast(ctx, tx)
		}
		nick := peerNicks[rand.Intn(len(peerNicks))]
		if err := pb.BroadcastVia(ctx, nick, tx); err != nil {
			log.Warnf("peer broadcast via %s failed, falling back to self: %v", nick, err)
			return e.backend.Broadcast(ctx, tx)
		}
		return tx.TxHash(), nil

	case BroadcastMultiplePeers:
		targets := peerNicks
		if len(targets) > DefaultMultiplePeersFanout {
			targets = targets[:DefaultMultiplePeersFanout]
		}
		var lastErr error
		for _, nick := range targets {
			if err := pb.BroadcastVia(ctx, nick, tx); err != nil {
				lastErr = err
				continue
			}
			return tx.TxHash(), nil
		}
		if len(targets) == 0 {
			lastErr = takerError(ErrBroadcastFailed, "no peers available for multiple_peers policy", nil)
		}
		log.Warnf("all peer broadcasts failed, falling back to self: %v", lastErr)
		return e.backend.Broadcast(ctx, tx)

	case BroadcastNotSelf:
		var lastErr error
		for _, nick := range peerNicks {
			if err := pb.BroadcastVia(ctx, nick, tx); err != nil {
				lastErr = err
				continue
			}
			return tx.TxHash(), nil
		}
		return chainhash.Hash{}, takerError(ErrBroadcastFailed,
			"no peer accepted the transaction and not_self forbids self-broadcast", lastErr)

	default:
		return chainhash.Hash{}, takerError(ErrBroadcastFailed, "unknown broadcast policy", nil)
	}
}
