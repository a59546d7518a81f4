// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peerbook

import "github.com/btcsuite/btclog"

// log is the package-level logger used by peerbook. It is disabled by
// default until the caller wires one in with UseLogger.
var log = btclog.Disabled

// UseLogger sets the package-wide logger used by peerbook. Called by
// internal/cjlog when it sets up the subsystem loggers.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// DisableLog disables all library log output.
func DisableLog() {
	log = btclog.Disabled
}
