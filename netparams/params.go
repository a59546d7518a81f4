// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Params groups a chain's consensus parameters with the CoinJoin
// coordination defaults that vary per network: the port a directory
// node listens on for pit-boss registration, and the dust threshold
// below which an output is never worth creating.
type Params struct {
	*chaincfg.Params
	DirectoryPort string
	DustThreshold btcutil.Amount
}

// MainNetParams contains CoinJoin coordination parameters for the
// Bitcoin main network (wire.MainNet).
var MainNetParams = Params{
	Params:        &chaincfg.MainNetParams,
	DirectoryPort: "8080",
	DustThreshold: 27_300,
}

// TestNet3Params contains CoinJoin coordination parameters for the
// Bitcoin test network (version 3) (wire.TestNet3).
var TestNet3Params = Params{
	Params:        &chaincfg.TestNet3Params,
	DirectoryPort: "18080",
	DustThreshold: 27_300,
}

// TestNet4Params contains CoinJoin coordination parameters for the
// Bitcoin test network (version 4).
var TestNet4Params = Params{
	Params:        &TestNet4ChainParams,
	DirectoryPort: "48080",
	DustThreshold: 27_300,
}

// SigNetParams contains CoinJoin coordination parameters for the
// default Bitcoin signet.
var SigNetParams = Params{
	Params:        &chaincfg.SigNetParams,
	DirectoryPort: "38080",
	DustThreshold: 27_300,
}

// SimNetParams contains CoinJoin coordination parameters for the
// simulation test network (wire.SimNet), used by rpctest harnesses.
var SimNetParams = Params{
	Params:        &chaincfg.SimNetParams,
	DirectoryPort: "18556",
	DustThreshold: 546,
}
