// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wireproto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckChannelAllowsConsistentTransport(t *testing.T) {
	tr := NewChannelTracker()
	require.NoError(t, tr.CheckChannel("nick1", "dirabc.onion"))
	require.NoError(t, tr.CheckChannel("nick1", "dirabc.onion"))
}

func TestCheckChannelRejectsTransportSwitch(t *testing.T) {
	tr := NewChannelTracker()
	require.NoError(t, tr.CheckChannel("nick1", "dirabc.onion"))

	err := tr.CheckChannel("nick1", "dirxyz.onion")
	require.Error(t, err)
	var wireErr Error
	require.ErrorAs(t, err, &wireErr)
	require.Equal(t, ErrChannelInconsistent, wireErr.ErrorCode)
}

func TestCheckChannelForgetAllowsNewTransport(t *testing.T) {
	tr := NewChannelTracker()
	require.NoError(t, tr.CheckChannel("nick1", "dirabc.onion"))
	tr.Forget("nick1")
	require.NoError(t, tr.CheckChannel("nick1", "dirxyz.onion"))
}

func TestCheckDuplicateSuppressesRepeat(t *testing.T) {
	tr := NewChannelTracker()
	require.False(t, tr.CheckDuplicate("nick1", "orderbook", "SW0.0002"))
	require.True(t, tr.CheckDuplicate("nick1", "orderbook", "SW0.0002"))
}

func TestCheckDuplicateExpiresAfterTTL(t *testing.T) {
	tr := NewChannelTracker()
	base := time.Now()
	timeNow = func() time.Time { return base }
	defer func() { timeNow = time.Now }()

	require.False(t, tr.CheckDuplicate("nick1", "orderbook", "SW0.0002"))

	timeNow = func() time.Time { return base.Add(dedupTTL + time.Second) }
	require.False(t, tr.CheckDuplicate("nick1", "orderbook", "SW0.0002"))
}

func TestCheckDuplicateDistinguishesFields(t *testing.T) {
	tr := NewChannelTracker()
	require.False(t, tr.CheckDuplicate("nick1", "orderbook", "SW0.0002"))
	require.False(t, tr.CheckDuplicate("nick2", "orderbook", "SW0.0002"))
	require.False(t, tr.CheckDuplicate("nick1", "orderbook", "SW0.0003"))
}
