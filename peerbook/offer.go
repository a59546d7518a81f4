// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peerbook

import "time"

// OfferKind distinguishes a maker's fee structure.
type OfferKind int

const (
	// OfferRelative charges a fee proportional to the CoinJoin amount.
	OfferRelative OfferKind = iota

	// OfferAbsolute charges a fixed satoshi fee regardless of amount.
	OfferAbsolute
)

func (k OfferKind) String() string {
	switch k {
	case OfferRelative:
		return "relative"
	case OfferAbsolute:
		return "absolute"
	default:
		return "unknown"
	}
}

// Offer is one maker's advertised terms, keyed by (MakerNick, OrderID).
type Offer struct {
	MakerNick         string
	OrderID           int64
	Kind              OfferKind
	MinSize           int64
	MaxSize           int64
	TxFeeContribution int64
	// CJFeeValue is a rational in [0,1) for OfferRelative, or an integer
	// satoshi amount for OfferAbsolute.
	CJFeeValue float64
	BondProof  *BondProof
	Timestamp  time.Time
}

// Key identifies an offer's slot in the orderbook.
type Key struct {
	Nick    string
	OrderID int64
}

// key returns o's orderbook key.
func (o Offer) key() Key {
	return Key{Nick: o.MakerNick, OrderID: o.OrderID}
}

// EffectiveFee computes the satoshi fee a maker would earn on amount
// under this offer's terms.
func (o Offer) EffectiveFee(amount int64) int64 {
	if o.Kind == OfferAbsolute {
		return int64(o.CJFeeValue)
	}
	return int64(float64(amount) * o.CJFeeValue)
}

// Brackets reports whether amount falls within [MinSize, MaxSize].
func (o Offer) Brackets(amount int64) bool {
	return amount >= o.MinSize && amount <= o.MaxSize
}
