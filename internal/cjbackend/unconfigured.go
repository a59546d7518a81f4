// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package cjbackend supplies the placeholder oracle.Backend a CoinJoin
// binary starts with before an operator wires in a real one. The
// domain spec treats every concrete UTXO oracle (full-node RPC,
// neutrino, a descriptor-wallet scanner) as an external collaborator,
// out of this repository's scope.
package cjbackend

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcsuite/cjcore/oracle"
)

// ErrNotConfigured is returned by every Unconfigured method.
var ErrNotConfigured = errors.New("no utxo oracle backend configured")

// Unconfigured satisfies oracle.Backend by refusing every call, so a
// binary can start up, load its configuration, and log its intent to
// wire a real backend before any chain-touching operation is
// attempted.
type Unconfigured struct{}

var _ oracle.Backend = Unconfigured{}

func (Unconfigured) GetUTXO(ctx context.Context, outpoint wire.OutPoint) (oracle.UTXOInfo, error) {
	return oracle.UTXOInfo{}, ErrNotConfigured
}

func (Unconfigured) Broadcast(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
	return chainhash.Hash{}, ErrNotConfigured
}

func (Unconfigured) EstimateFee(ctx context.Context, blocks int) (float64, error) {
	return 0, ErrNotConfigured
}

func (Unconfigured) CurrentHeight(ctx context.Context) (int32, error) {
	return 0, ErrNotConfigured
}
