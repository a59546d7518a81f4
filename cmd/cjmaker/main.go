// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command cjmaker starts a maker: it loads the configuration, opens the
// commitment blacklist, builds a makerengine.Engine over the
// placeholder collaborators in internal/cjbackend, and runs the session
// expiry sweep until interrupted. It has no message channel transport,
// so it receives no !fill, !auth, or !tx requests.
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
	"github.com/btcsuite/cjcore/makerengine"
	"github.com/btcsuite/cjcore/podle"
	"github.com/lightningnetwork/lnd/ticker"
)

func main() {
	cfg, active, _, err := cjconfig.Load("cjmaker")
	if err != nil {
		os.Exit(1)
	}

	cjlog.Init(filepath.Join(cfg.LogDir, "cjmaker.log"), cfg.DebugLevel)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	blacklistPath := filepath.Join(cfg.DataDir, active.Params.Name, "commitment_blacklist.db")
	if err := os.MkdirAll(filepath.Dir(blacklistPath), 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create network data directory: %v\n", err)
		os.Exit(1)
	}
	blacklist, err := podle.OpenBlacklist(blacklistPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open commitment blacklist: %v\n", err)
		os.Exit(1)
	}
	defer blacklist.Close()

	fmt.Fprintf(os.Stdout, "cjmaker starting on %s, nick=%s\n", active.Params.Name, cfg.Nick)

	e := makerengine.New(cjbackend.Unconfigured{}, blacklist, cjbackend.UnconfiguredSigner{})

	// NewOrderbookLimiter does not validate the rate/burst pair, and the
	// limiter is discarded: there is no transport here to call
	// limiter.Check per peer message. The values are only reported.
	makerengine.NewOrderbookLimiter(float64(cfg.MessageRateLimit), float64(cfg.MessageBurstLimit))
	fmt.Fprintf(os.Stdout, "orderbook rate limiter configured: %v msgs/s, burst %v\n",
		cfg.MessageRateLimit, cfg.MessageBurstLimit)

	ctx, cancel := context.WithCancel(context.Background())
	go e.WatchExpirations(ctx, ticker.New(30*time.Second))

	cjsignal.AddInterruptHandler(cancel)

	fmt.Fprintln(os.Stdout, "cjmaker idle: waiting for an operator-supplied utxo oracle, signer, and message channel transport")
	<-cjsignal.Done()
}
