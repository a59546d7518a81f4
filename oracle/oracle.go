// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package oracle declares the UTXO backend capability-set that C4 and
// C5 depend on for chain state: looking up an outpoint, broadcasting a
// finished transaction, and estimating a fee rate. The domain spec
// treats descriptor-wallet and SPV block-filter backends as
// implementation detail behind this interface (§1, Non-goals); this
// package only fixes the shape a collaborator must satisfy.
package oracle

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrUTXONotFound is returned by GetUTXO when the outpoint is unknown
// to the backend, distinct from a transport error.
var ErrUTXONotFound = errors.New("utxo not found")

// UTXOInfo is what a backend knows about a single outpoint.
type UTXOInfo struct {
	PkScript []byte
	Value    int64
	Height   int32
}

// Backend is the UTXO oracle capability-set. Implementations are
// tagged variants (a full-node RPC client, a neutrino light client, a
// descriptor-wallet scanner, ...) selected by the daemon's
// configuration; the core never depends on a particular one.
type Backend interface {
	// GetUTXO returns the current chain state of outpoint, or
	// ErrUTXONotFound if it does not exist (has never existed, or has
	// already been spent, from this backend's viewpoint).
	GetUTXO(ctx context.Context, outpoint wire.OutPoint) (UTXOInfo, error)

	// Broadcast relays tx to the network and returns its txid.
	Broadcast(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error)

	// EstimateFee returns a fee rate, in satoshis per vbyte, targeting
	// confirmation within the given number of blocks (1-1008).
	EstimateFee(ctx context.Context, blocks int) (float64, error)

	// CurrentHeight returns the backend's view of chain tip height,
	// used to gate fidelity bond expiry and UTXO confirmation counts.
	CurrentHeight(ctx context.Context) (int32, error)
}
