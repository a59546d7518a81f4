// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package makerengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenBucketConsumeAndRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewTokenBucket(10, 1)
	b.now = func() time.Time { return now }
	b.lastRefill = now

	for i := 0; i < 10; i++ {
		require.True(t, b.Consume(1))
	}
	require.False(t, b.Consume(1))

	now = now.Add(5 * time.Second)
	require.True(t, b.Consume(1))
	require.False(t, b.Consume(5))
}

func TestTokenBucketDelaySeconds(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewTokenBucket(1, 2)
	b.now = func() time.Time { return now }
	b.lastRefill = now

	require.Equal(t, 0.0, b.DelaySeconds())
	require.True(t, b.Consume(1))
	require.Greater(t, b.DelaySeconds(), 0.0)
}

func TestTokenBucketReset(t *testing.T) {
	b := NewTokenBucket(5, 1)
	require.True(t, b.Consume(5))
	require.False(t, b.Consume(1))
	b.Reset()
	require.True(t, b.Consume(5))
}

func TestOrderbookLimiterAllowsWithinBudget(t *testing.T) {
	l := NewOrderbookLimiter(100, 200)
	require.Equal(t, RateLimitAllow, l.Check("J2maker0000000"))
}

func TestOrderbookLimiterEscalatesBanOnViolation(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewOrderbookLimiter(1, 1)
	l.now = func() time.Time { return now }

	require.Equal(t, RateLimitAllow, l.Check("J2maker0000000"))
	require.Equal(t, RateLimitDelay, l.Check("J2maker0000000"))
	require.Equal(t, 1, l.ViolationCount("J2maker0000000"))

	require.Equal(t, RateLimitDisconnect, l.Check("J2maker0000000"))

	now = now.Add(11 * time.Second)
	require.Equal(t, RateLimitAllow, l.Check("J2maker0000000"))
	require.Equal(t, 0, l.ViolationCount("J2maker0000000"))
}

func TestBanDurationEscalatesPerTier(t *testing.T) {
	require.Equal(t, 10*time.Second, banDuration(0))
	require.Equal(t, 60*time.Second, banDuration(11))
	require.Equal(t, 300*time.Second, banDuration(51))
	require.Equal(t, 3600*time.Second, banDuration(101))
}

func TestOrderbookLimiterRemove(t *testing.T) {
	l := NewOrderbookLimiter(0, 1)
	l.Check("J2maker0000000")
	l.Check("J2maker0000000")
	require.Equal(t, 1, l.ViolationCount("J2maker0000000"))
	l.Remove("J2maker0000000")
	require.Equal(t, 0, l.ViolationCount("J2maker0000000"))
}
