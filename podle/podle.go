// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package podle implements the Proof-of-Discrete-Log-Equivalence
// commit-reveal scheme (C1) that binds a maker's acceptance of a taker's
// UTXO to a single-use commitment, defending the orderbook against Sybil
// flooding and commitment replay.
package podle

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// DefaultRetryIndices is the acceptance set makers use unless configured
// with a wider set. Index 0 is preferred for a taker's first attempt
// against a given maker.
var DefaultRetryIndices = []int{0, 1, 2}

// Commitment is the value published before a proof is revealed:
// SHA256(serialize(P2)). It commits the taker to a (privkey, index) pair
// without revealing either.
type Commitment [32]byte

// Reveal is the full PoDLE proof a taker publishes during the AUTH phase:
// (P, P2, s, e, index).
type Reveal struct {
	P     []byte // compressed pubkey, k*G
	P2    []byte // compressed pubkey, k*J_i
	S     *big.Int
	E     *big.Int
	Index int
}

// serializedPoint parses a compressed or uncompressed SEC1 point.
func serializedPoint(b []byte) (point, bool) {
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return point{}, false
	}
	return point{x: pub.X(), y: pub.Y()}, true
}

// Commit computes the commitment hash for private key k against NUMS
// index i, without revealing anything else. Takers call this once per
// (privkey, index) pair before ever contacting a maker.
func Commit(privKey *btcec.PrivateKey, index int) (Commitment, error) {
	j, err := nthNUMSPoint(index)
	if err != nil {
		return Commitment{}, err
	}
	k := new(big.Int).SetBytes(privKey.Serialize())
	p2 := scalarMult(j, k)
	if p2.isInfinity() {
		return Commitment{}, podleError(ErrMalformed,
			"private key is degenerate for this NUMS index", nil)
	}
	return sha256.Sum256(p2.serializeCompressed()), nil
}

// Generate produces a full PoDLE reveal for private key k at NUMS index i.
// The nonce r is drawn uniformly from [1, N-1] using crypto/rand, per the
// domain spec's Schnorr-style construction.
func Generate(privKey *btcec.PrivateKey, index int) (*Reveal, error) {
	j, err := nthNUMSPoint(index)
	if err != nil {
		return nil, err
	}

	k := new(big.Int).SetBytes(privKey.Serialize())
	pPoint := point{x: privKey.PubKey().X(), y: privKey.PubKey().Y()}
	p2Point := scalarMult(j, k)
	if p2Point.isInfinity() {
		return nil, podleError(ErrMalformed,
			"private key is degenerate for this NUMS index", nil)
	}

	r, err := randScalar()
	if err != nil {
		return nil, podleError(ErrMalformed, "failed to draw nonce", err)
	}

	kG := scalarBaseMult(r)
	kJ := scalarMult(j, r)

	e := challengeHash(kG, kJ, pPoint, p2Point)

	// s = (r + e*k) mod N
	s := new(big.Int).Mul(e, k)
	s.Add(s, r)
	s.Mod(s, N)

	return &Reveal{
		P:     pPoint.serializeCompressed(),
		P2:    p2Point.serializeCompressed(),
		S:     s,
		E:     e,
		Index: index,
	}, nil
}

// challengeHash computes e = SHA256(ser(K_G) || ser(K_J) || ser(P) ||
// ser(P2)) mod N, exactly as the domain spec's prove/verify steps
// require. Both sides must compute it identically for the proof to
// verify.
func challengeHash(kG, kJ, p, p2 point) *big.Int {
	h := sha256.New()
	h.Write(kG.serializeCompressed())
	h.Write(kJ.serializeCompressed())
	h.Write(p.serializeCompressed())
	h.Write(p2.serializeCompressed())
	digest := h.Sum(nil)
	e := new(big.Int).SetBytes(digest)
	return e.Mod(e, N)
}

// randScalar draws a uniformly random scalar in [1, N-1].
func randScalar() (*big.Int, error) {
	for {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		r := new(big.Int).SetBytes(buf)
		if r.Sign() != 0 && r.Cmp(N) < 0 {
			return r, nil
		}
	}
}

// Verify checks a PoDLE reveal against a previously published commitment.
// It returns nil on success, or a podle.Error on failure: ErrMalformed
// when P or P2 is not a curve point or s/e is missing or out of range,
// ErrCommitmentMismatch when SHA256(P2) is not the commitment,
// ErrIndexOutOfRange for an unusable NUMS index, and ErrProofInvalid
// when the recomputed challenge does not match e.
func Verify(reveal *Reveal, commitment Commitment) error {
	pPoint, ok := serializedPoint(reveal.P)
	if !ok {
		return podleError(ErrMalformed, "P does not parse as a curve point", nil)
	}
	p2Point, ok := serializedPoint(reveal.P2)
	if !ok {
		return podleError(ErrMalformed, "P2 does not parse as a curve point", nil)
	}
	if reveal.S == nil || reveal.E == nil {
		return podleError(ErrMalformed, "missing s or e", nil)
	}
	if reveal.S.Sign() < 0 || reveal.S.Cmp(N) >= 0 {
		return podleError(ErrMalformed, "s out of range", nil)
	}

	gotCommitment := sha256.Sum256(p2Point.serializeCompressed())
	if gotCommitment != commitment {
		return podleError(ErrCommitmentMismatch,
			"revealed P2 does not match published commitment", nil)
	}

	j, err := nthNUMSPoint(reveal.Index)
	if err != nil {
		return err
	}

	// K_G = s*G - e*P
	sG := scalarBaseMult(reveal.S)
	eP := scalarMult(pPoint, reveal.E)
	kG := pointSub(sG, eP)

	// K_J = s*J_i - e*P2
	sJ := scalarMult(j, reveal.S)
	eP2 := scalarMult(p2Point, reveal.E)
	kJ := pointSub(sJ, eP2)

	wantE := challengeHash(kG, kJ, pPoint, p2Point)
	if wantE.Cmp(reveal.E) != 0 {
		return podleError(ErrProofInvalid,
			"challenge hash does not match recomputed value", nil)
	}
	return nil
}
