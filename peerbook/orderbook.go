// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peerbook

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// MaxOfferAge is how long an offer survives before stale filtering
// drops it from selection, per the domain spec's default.
const MaxOfferAge = 3600 * time.Second

// MinBondReannounceInterval is the minimum spacing between accepted
// !tbond broadcasts from the same maker nick. The original taker
// throttles how often it acts on a maker's repeated bond
// advertisements; since the peer registry is single-writer, the same
// throttle is enforced here at ingest rather than left to callers.
const MinBondReannounceInterval = 600 * time.Second

// Orderbook is the offer table keyed by (maker_nick, order_id).
type Orderbook struct {
	offers           map[Key]Offer
	lastBondAnnounce map[string]time.Time
}

// NewOrderbook returns an empty orderbook.
func NewOrderbook() *Orderbook {
	return &Orderbook{
		offers:           make(map[Key]Offer),
		lastBondAnnounce: make(map[string]time.Time),
	}
}

// Insert adds or replaces an offer. A late duplicate for the same key
// only replaces the existing entry when its timestamp is strictly
// newer, per the domain spec's invariant.
func (b *Orderbook) Insert(o Offer) error {
	key := o.key()
	existing, ok := b.offers[key]
	if ok && !o.Timestamp.After(existing.Timestamp) {
		return bookError(ErrDuplicateOffer, "duplicate offer is not strictly newer", nil)
	}
	b.offers[key] = o
	return nil
}

// Remove deletes an offer, used when a maker explicitly withdraws or
// disconnects.
func (b *Orderbook) Remove(key Key) {
	delete(b.offers, key)
}

// RemoveMaker deletes every offer belonging to a nick, used on
// disconnect.
func (b *Orderbook) RemoveMaker(nick string) {
	for k := range b.offers {
		if k.Nick == nick {
			delete(b.offers, k)
		}
	}
	delete(b.lastBondAnnounce, nick)
}

// AnnounceBond applies a !tbond broadcast to every offer currently on
// the book for nick, stamping the new bond proof onto each. Repeated
// announcements inside MinBondReannounceInterval of the last accepted
// one are dropped silently, matching the peer registry's
// network-ingest-is-single-writer model: a flood of reannouncements
// from one maker must not be allowed to matter more than one.
func (b *Orderbook) AnnounceBond(nick string, bond BondProof, now time.Time) {
	if last, ok := b.lastBondAnnounce[nick]; ok && now.Sub(last) < MinBondReannounceInterval {
		log.Debugf("dropping !tbond reannouncement from %s, %s since last accepted", nick, now.Sub(last))
		return
	}
	b.lastBondAnnounce[nick] = now
	for k, o := range b.offers {
		if k.Nick != nick {
			continue
		}
		o.BondProof = &bond
		b.offers[k] = o
	}
}

// Live returns every offer younger than MaxOfferAge as of now, purging
// stale entries from the book as a side effect (stale filtering runs
// on read, per the domain spec).
func (b *Orderbook) Live(now time.Time) []Offer {
	live := make([]Offer, 0, len(b.offers))
	for k, o := range b.offers {
		if now.Sub(o.Timestamp) > MaxOfferAge {
			delete(b.offers, k)
			continue
		}
		live = append(live, o)
	}
	return live
}

// SelectionAlgorithm names one of the four maker-selection strategies.
type SelectionAlgorithm string

const (
	SelectCheapest              SelectionAlgorithm = "cheapest"
	SelectWeighted              SelectionAlgorithm = "weighted"
	SelectRandom                SelectionAlgorithm = "random"
	SelectFidelityBondWeighted  SelectionAlgorithm = "fidelity_bond_weighted"
)

// FidelityBondSplitNumerator and FidelityBondSplitDenominator express
// the 7/8 bond-weighted / 1/8 uniform split as a tunable rather than a
// bare magic constant, per the domain spec's design note recommending
// this be exposed for research.
const (
	FidelityBondSplitNumerator   = 7
	FidelityBondSplitDenominator = 8
)

// MinCounterpartyCount is the smallest counterparty count Select will
// honor. A single counterparty gives an observer of the finished
// transaction only one candidate to link the taker's inputs to,
// defeating the anonymity set a CoinJoin exists to build (domain
// spec §8's explicit boundary property).
const MinCounterpartyCount = 2

// SelectionParams configures one invocation of the maker-selection
// procedure.
type SelectionParams struct {
	Amount        int64
	MaxFee        int64
	Kind          OfferKind
	IgnoredNicks  map[string]bool
	Algorithm     SelectionAlgorithm
	Count         int
	Alpha         float64 // weighted algorithm's decay constant
	CurrentHeight uint32
	BondScore     ScoreFunc
	Rand          *rand.Rand
}

// filter drops offers that don't bracket amount, exceed the fee
// ceiling, mismatch the requested kind, or come from an ignored nick.
func filter(offers []Offer, p SelectionParams) []Offer {
	out := make([]Offer, 0, len(offers))
	for _, o := range offers {
		if !o.Brackets(p.Amount) {
			continue
		}
		if o.EffectiveFee(p.Amount) > p.MaxFee {
			continue
		}
		if o.Kind != p.Kind {
			continue
		}
		if p.IgnoredNicks[o.MakerNick] {
			continue
		}
		out = append(out, o)
	}
	return out
}

// dedupe groups surviving offers by maker nick and keeps only the
// cheapest per nick, denying makers any advantage from flooding the
// book with several offers (domain spec §4.3, step 2).
func dedupe(offers []Offer, amount int64) []Offer {
	cheapest := make(map[string]Offer, len(offers))
	for _, o := range offers {
		existing, ok := cheapest[o.MakerNick]
		if !ok || o.EffectiveFee(amount) < existing.EffectiveFee(amount) {
			cheapest[o.MakerNick] = o
		}
	}
	out := make([]Offer, 0, len(cheapest))
	for _, o := range cheapest {
		out = append(out, o)
	}
	return out
}

// Select runs the three-phase maker-selection procedure: filter,
// dedupe-per-maker, then select N via the configured algorithm.
// Returns ErrInsufficientOffers if fewer than p.Count distinct makers
// survive. Rejects any p.Count below MinCounterpartyCount: this is the
// entry point for a fresh, standalone counterparty draw, and a single
// counterparty gives an observer of the finished transaction only one
// candidate to link the taker's inputs to, defeating the anonymity set
// a CoinJoin exists to build (domain spec §8's explicit boundary
// property).
func Select(offers []Offer, p SelectionParams) ([]Offer, error) {
	if p.Count < MinCounterpartyCount {
		return nil, bookError(ErrCounterpartyCountTooLow,
			"counterparty_count must be at least 2, a single counterparty defeats the anonymity set", nil)
	}
	return selectFrom(offers, p)
}

// SelectTopUp runs the same selection procedure as Select without
// enforcing MinCounterpartyCount, for callers replenishing a shortfall
// within a fill round whose overall target has already cleared
// MinCounterpartyCount. A mid-run replacement draw legitimately needs
// as few as one additional maker; it is the total session that must
// never settle for a single counterparty, not every draw along the way.
func SelectTopUp(offers []Offer, p SelectionParams) ([]Offer, error) {
	if p.Count < 1 {
		return nil, bookError(ErrCounterpartyCountTooLow,
			"counterparty_count must be positive", nil)
	}
	return selectFrom(offers, p)
}

func selectFrom(offers []Offer, p SelectionParams) ([]Offer, error) {
	filtered := filter(offers, p)
	pool := dedupe(filtered, p.Amount)

	if len(pool) < p.Count {
		return nil, bookError(ErrInsufficientOffers, "fewer distinct makers than requested", nil)
	}

	rng := p.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	switch p.Algorithm {
	case SelectCheapest:
		return selectCheapest(pool, p), nil
	case SelectWeighted:
		return selectWeighted(pool, p, rng), nil
	case SelectRandom:
		return selectRandom(pool, p.Count, rng), nil
	case SelectFidelityBondWeighted, "":
		return selectFidelityBondWeighted(pool, p, rng), nil
	default:
		return nil, bookError(ErrInvalidSelectionAlgorithm, "unrecognized selection algorithm", nil)
	}
}

func selectCheapest(pool []Offer, p SelectionParams) []Offer {
	sorted := append([]Offer(nil), pool...)
	sort.Slice(sorted, func(i, j int) bool {
		fi, fj := sorted[i].EffectiveFee(p.Amount), sorted[j].EffectiveFee(p.Amount)
		if fi != fj {
			return fi < fj
		}
		return sorted[i].OrderID < sorted[j].OrderID
	})
	return sorted[:p.Count]
}

func selectRandom(pool []Offer, count int, rng *rand.Rand) []Offer {
	shuffled := append([]Offer(nil), pool...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:count]
}

// selectWeighted draws without replacement from a distribution
// proportional to exp(-alpha * fee).
func selectWeighted(pool []Offer, p SelectionParams, rng *rand.Rand) []Offer {
	remaining := append([]Offer(nil), pool...)
	weights := make([]float64, len(remaining))
	for i, o := range remaining {
		weights[i] = math.Exp(-p.Alpha * float64(o.EffectiveFee(p.Amount)))
	}
	return drawWithoutReplacement(remaining, weights, p.Count, rng)
}

// selectFidelityBondWeighted fills floor(7N/8) slots weighted by bond
// score (0 for no valid bond) and the remainder uniformly at random
// from whatever the bond draw did not pick, per domain spec §4.3 step
// 3's default algorithm.
func selectFidelityBondWeighted(pool []Offer, p SelectionParams, rng *rand.Rand) []Offer {
	bondSlots := (p.Count * FidelityBondSplitNumerator) / FidelityBondSplitDenominator
	uniformSlots := p.Count - bondSlots

	weights := make([]float64, len(pool))
	for i, o := range pool {
		weights[i] = bondWeight(o, p)
	}

	bondPicked := drawWithoutReplacement(pool, weights, bondSlots, rng)
	picked := make(map[Key]bool, len(bondPicked))
	for _, o := range bondPicked {
		picked[o.key()] = true
	}

	unselected := make([]Offer, 0, len(pool)-len(bondPicked))
	for _, o := range pool {
		if !picked[o.key()] {
			unselected = append(unselected, o)
		}
	}

	uniformPicked := selectRandom(unselected, uniformSlots, rng)
	return append(bondPicked, uniformPicked...)
}

func bondWeight(o Offer, p SelectionParams) float64 {
	if o.BondProof == nil || p.BondScore == nil {
		return 0
	}
	if o.BondProof.Expired(p.CurrentHeight) {
		return 0
	}
	return p.BondScore(*o.BondProof, p.CurrentHeight)
}

// drawWithoutReplacement performs count weighted draws without
// replacement from offers/weights, falling back to uniform selection
// over any zero-weight remainder once the weighted mass is exhausted.
func drawWithoutReplacement(offers []Offer, weights []float64, count int, rng *rand.Rand) []Offer {
	if count <= 0 {
		return nil
	}
	if count >= len(offers) {
		return append([]Offer(nil), offers...)
	}

	remaining := append([]Offer(nil), offers...)
	remainingWeights := append([]float64(nil), weights...)
	picked := make([]Offer, 0, count)

	for len(picked) < count && len(remaining) > 0 {
		total := 0.0
		for _, w := range remainingWeights {
			total += w
		}

		var idx int
		if total <= 0 {
			idx = rng.Intn(len(remaining))
		} else {
			target := rng.Float64() * total
			cum := 0.0
			idx = len(remaining) - 1
			for i, w := range remainingWeights {
				cum += w
				if target < cum {
					idx = i
					break
				}
			}
		}

		picked = append(picked, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
		remainingWeights = append(remainingWeights[:idx], remainingWeights[idx+1:]...)
	}

	return picked
}
