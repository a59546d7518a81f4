// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package takerengine

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// ScheduleEntry is one leg of a tumbler run: a single CoinJoin of
// CJAmount moving funds from SrcMixdepth to Destination, conventionally
// landing in DstMixdepth once confirmed. The schedule's on-disk or
// wire format is an external concern; this package only drives the
// entries it is handed.
type ScheduleEntry struct {
	CJAmount    btcutil.Amount
	Destination string
	SrcMixdepth uint32
	DstMixdepth uint32

	// Wait is how long to pause after this entry's rescan before
	// starting the next one.
	Wait time.Duration
}

// RescanFunc lets the caller's wallet collaborator bring its UTXO view
// up to date between schedule entries, so the next entry's coin
// selection sees the previous entry's change. Rescanning is entirely
// the wallet/UTXO-oracle's concern; this package only sequences it.
type RescanFunc func(ctx context.Context) error

// RunEntryFunc drives a single CoinJoin run for one schedule entry
// (DISCOVER through BROADCAST) and reports its outcome. Callers
// typically close over a fresh *Engine per entry, since an Engine is
// scoped to one run.
type RunEntryFunc func(ctx context.Context, entry ScheduleEntry) error

// RunSchedule drives a tumbler's entries sequentially: run, rescan,
// pause, repeat. It stops and returns a ScheduleFailed error on the
// first entry that fails to run; rescan failures are likewise fatal,
// since every subsequent entry depends on an accurate UTXO view.
//
// Destination rotation across mixdepths is the caller's concern,
// expressed by the SrcMixdepth/DstMixdepth fields on each entry; this
// function has no mixdepth or wallet awareness of its own.
func RunSchedule(ctx context.Context, entries []ScheduleEntry, rescan RescanFunc, run RunEntryFunc) error {
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return takerError(ErrScheduleFailed, "schedule cancelled", err)
		}

		if err := run(ctx, entry); err != nil {
			return takerError(ErrScheduleFailed, "schedule entry run failed", err)
		}

		if rescan != nil {
			if err := rescan(ctx); err != nil {
				return takerError(ErrScheduleFailed, "schedule rescan failed", err)
			}
		}

		if entry.Wait <= 0 || i == len(entries)-1 {
			continue
		}
		select {
		case <-ctx.Done():
			return takerError(ErrScheduleFailed, "schedule cancelled during wait", ctx.Err())
		case <-time.After(entry.Wait):
		}
	}
	return nil
}
