// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package makerengine

import (
	"sync"
	"time"
)

// DefaultMessageRateLimit and DefaultMessageBurstLimit are the
// per-connection token bucket defaults from the domain spec's
// configuration section.
const (
	DefaultMessageRateLimit  = 100.0
	DefaultMessageBurstLimit = 200
)

// TokenBucket is a classic token-bucket rate limiter, grounded on the
// reference implementation's rate_limiter module (capacity,
// refill_rate, consume, get_delay_seconds).
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket returns a bucket starting at full capacity.
func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// Consume attempts to take n tokens, returning true on success.
func (b *TokenBucket) Consume(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// DelaySeconds returns how long the caller should wait before a single
// token becomes available, 0 if one is already available.
func (b *TokenBucket) DelaySeconds() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1 {
		return 0
	}
	if b.refillRate <= 0 {
		return -1
	}
	return (1 - b.tokens) / b.refillRate
}

// Reset restores the bucket to full capacity.
func (b *TokenBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.capacity
	b.lastRefill = b.now()
}

// RateLimitAction is the verdict a rate limiter returns for one
// message.
type RateLimitAction int

const (
	RateLimitAllow RateLimitAction = iota
	RateLimitDelay
	RateLimitDisconnect
)

// backoffTier is one escalation step in the orderbook-specific
// multi-tier limiter: once a peer's violation count strictly exceeds
// Threshold, its ban duration becomes Duration.
type backoffTier struct {
	Threshold int
	Duration  time.Duration
}

// orderbookBackoffTiers implements the domain spec's escalating ban
// schedule: 10s normal, 60s after >10 violations, 300s after >50,
// 3600s after >100.
var orderbookBackoffTiers = []backoffTier{
	{Threshold: 100, Duration: 3600 * time.Second},
	{Threshold: 50, Duration: 300 * time.Second},
	{Threshold: 10, Duration: 60 * time.Second},
	{Threshold: 0, Duration: 10 * time.Second},
}

type peerState struct {
	bucket      *TokenBucket
	violations  int
	bannedUntil time.Time
}

// OrderbookLimiter is the multi-tier limiter applied to orderbook
// broadcast traffic specifically: beyond the flat per-connection token
// bucket, repeated violations escalate a per-peer ban duration.
type OrderbookLimiter struct {
	mu    sync.Mutex
	rate  float64
	burst float64
	peers map[string]*peerState
	now   func() time.Time
}

// NewOrderbookLimiter returns a limiter using rate/burst for each
// peer's underlying token bucket.
func NewOrderbookLimiter(rate, burst float64) *OrderbookLimiter {
	return &OrderbookLimiter{
		rate:  rate,
		burst: burst,
		peers: make(map[string]*peerState),
		now:   time.Now,
	}
}

func (l *OrderbookLimiter) stateFor(nick string) *peerState {
	st, ok := l.peers[nick]
	if !ok {
		st = &peerState{bucket: NewTokenBucket(l.burst, l.rate)}
		st.bucket.now = l.now
		st.bucket.lastRefill = l.now()
		l.peers[nick] = st
	}
	return st
}

// banDuration returns the ban duration for a given violation count,
// per the escalation schedule.
func banDuration(violations int) time.Duration {
	for _, tier := range orderbookBackoffTiers {
		if violations > tier.Threshold {
			return tier.Duration
		}
	}
	return orderbookBackoffTiers[len(orderbookBackoffTiers)-1].Duration
}

// Check consumes one token for nick and returns the resulting action.
// A peer currently serving a ban is disconnected outright; otherwise a
// rate-limit violation escalates its ban per the tier schedule and
// counters reset once the ban interval elapses.
func (l *OrderbookLimiter) Check(nick string) RateLimitAction {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stateFor(nick)
	now := l.now()

	if now.Before(st.bannedUntil) {
		return RateLimitDisconnect
	}
	if !st.bannedUntil.IsZero() && !now.Before(st.bannedUntil) {
		// Ban interval elapsed: counters reset.
		st.violations = 0
		st.bannedUntil = time.Time{}
	}

	if st.bucket.Consume(1) {
		return RateLimitAllow
	}

	st.violations++
	st.bannedUntil = now.Add(banDuration(st.violations))
	return RateLimitDelay
}

// Remove clears a peer's tracked state, used on disconnect.
func (l *OrderbookLimiter) Remove(nick string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.peers, nick)
}

// ViolationCount reports how many violations a peer has accrued.
func (l *OrderbookLimiter) ViolationCount(nick string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.peers[nick]
	if !ok {
		return 0
	}
	return st.violations
}
