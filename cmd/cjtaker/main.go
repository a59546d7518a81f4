// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command cjtaker sets up a taker: it loads the configuration, resolves
// the broadcast policy, builds a takerengine.Engine over the placeholder
// collaborators in internal/cjbackend, and runs the session timeout
// sweep until interrupted. It has no orderbook source or message
// channel transport, so it does not start a CoinJoin run.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/cjcore/internal/cjbackend"
	"github.com/btcsuite/cjcore/internal/cjconfig"
	"github.com/btcsuite/cjcore/internal/cjlog"
	"github.com/btcsuite/cjcore/internal/cjsignal"
	"github.com/btcsuite/cjcore/takerengine"
	"github.com/lightningnetwork/lnd/ticker"
)

func main() {
	cfg, active, _, err := cjconfig.Load("cjtaker")
	if err != nil {
		os.Exit(1)
	}

	cjlog.Init(filepath.Join(cfg.LogDir, "cjtaker.log"), cfg.DebugLevel)

	fmt.Fprintf(os.Stdout, "cjtaker starting on %s, nick=%s\n", active.Params.Name, cfg.Nick)

	policy, err := cfg.ResolveBroadcastPolicy()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid broadcast_policy: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "broadcast policy resolved to %v\n", policy)

	e := takerengine.New(cfg.Nick, active.Params, cjbackend.Unconfigured{}, cjbackend.UnconfiguredTransport{})
	e.State()

	ctx, cancel := context.WithCancel(context.Background())
	go e.WatchTimeouts(ctx, ticker.New(10*time.Second))

	cjsignal.AddInterruptHandler(cancel)

	fmt.Fprintln(os.Stdout, "cjtaker idle: waiting for an operator-supplied utxo oracle and message channel transport")
	<-cjsignal.Done()
}
