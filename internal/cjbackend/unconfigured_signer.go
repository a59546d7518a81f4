// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cjbackend

import (
	"errors"

	"github.com/btcsuite/btcd/wire"

	"github.com/btcsuite/cjcore/oracle"
)

// ErrSignerNotConfigured is returned by UnconfiguredSigner.SignInput.
var ErrSignerNotConfigured = errors.New("no wallet signer configured")

// UnconfiguredSigner satisfies makerengine.Signer by refusing every
// signature request. Wallet key management is an external
// collaborator (see the domain spec's framing of HD derivation as
// out of scope); a real deployment supplies a signer backed by the
// operator's own wallet.
type UnconfiguredSigner struct{}

func (UnconfiguredSigner) SignInput(tx *wire.MsgTx, idx int, utxo oracle.UTXOInfo) ([]byte, error) {
	return nil, ErrSignerNotConfigured
}
