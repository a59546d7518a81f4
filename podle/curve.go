// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package podle

import (
	"crypto/sha256"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
)

// curve is the secp256k1 curve, exposed through btcec's KoblitzCurve so
// that NUMS-point generation can use arbitrary scalar multiplication and
// point addition rather than the key-oriented subset of the btcec API.
var curve = btcec.S256()

// N is the order of the secp256k1 base point, used for all scalar
// arithmetic in the PoDLE protocol.
var N = curve.N

// P is the field prime secp256k1 is defined over.
var P = curve.P

// generatorPoint is G itself, taken directly from the curve parameters.
var generatorPoint = point{x: curve.Params().Gx, y: curve.Params().Gy}

// gCompressedBytes and gUncompressedBytes are the two encodings of the
// generator point G used by the NUMS-point derivation loop.
var (
	gCompressedBytes   = generatorPoint.serializeCompressed()
	gUncompressedBytes = serializeUncompressed(generatorPoint)
)

// serializeUncompressed encodes p in 65-byte SEC1 uncompressed form.
func serializeUncompressed(p point) []byte {
	out := make([]byte, 65)
	out[0] = 0x04
	xb, yb := p.x.Bytes(), p.y.Bytes()
	copy(out[1+32-len(xb):33], xb)
	copy(out[33+32-len(yb):], yb)
	return out
}

// point is an affine secp256k1 point.
type point struct {
	x, y *big.Int
}

// isInfinity reports whether p is the point at infinity.
func (p point) isInfinity() bool {
	return p.x.Sign() == 0 && p.y.Sign() == 0
}

// serializeCompressed encodes p in 33-byte SEC1 compressed form.
func (p point) serializeCompressed() []byte {
	out := make([]byte, 33)
	if p.y.Bit(0) == 0 {
		out[0] = 0x02
	} else {
		out[0] = 0x03
	}
	xb := p.x.Bytes()
	copy(out[33-len(xb):], xb)
	return out
}

// decompressEven parses a 32-byte x-coordinate and returns the point with
// an even Y, mirroring the "0x02 || x" candidates the NUMS algorithm
// tests. ok is false if x has no square root modulo P, i.e. the candidate
// is not on the curve.
func decompressEven(x *big.Int) (point, bool) {
	if x.Sign() < 0 || x.Cmp(P) >= 0 {
		return point{}, false
	}

	// rhs = x^3 + 7 mod P
	rhs := new(big.Int).Exp(x, big.NewInt(3), P)
	rhs.Add(rhs, big.NewInt(7))
	rhs.Mod(rhs, P)

	// secp256k1's field prime is congruent to 3 mod 4, so square roots
	// are computed directly as rhs^((P+1)/4) mod P.
	exp := new(big.Int).Add(P, big.NewInt(1))
	exp.Rsh(exp, 2)
	y := new(big.Int).Exp(rhs, exp, P)

	check := new(big.Int).Mul(y, y)
	check.Mod(check, P)
	if check.Cmp(rhs) != 0 {
		return point{}, false
	}

	if y.Bit(0) != 0 {
		y.Sub(P, y)
	}
	return point{x: new(big.Int).Set(x), y: y}, true
}

// scalarMult computes k*Q for an arbitrary curve point Q.
func scalarMult(q point, k *big.Int) point {
	kMod := new(big.Int).Mod(k, N)
	x, y := curve.ScalarMult(q.x, q.y, kMod.Bytes())
	return point{x: x, y: y}
}

// scalarBaseMult computes k*G.
func scalarBaseMult(k *big.Int) point {
	kMod := new(big.Int).Mod(k, N)
	x, y := curve.ScalarBaseMult(kMod.Bytes())
	return point{x: x, y: y}
}

// pointAdd computes a+b on the curve.
func pointAdd(a, b point) point {
	x, y := curve.Add(a.x, a.y, b.x, b.y)
	return point{x: x, y: y}
}

// negate returns -p (the reflection of p across the X axis).
func negate(p point) point {
	negY := new(big.Int).Sub(P, p.y)
	negY.Mod(negY, P)
	return point{x: new(big.Int).Set(p.x), y: negY}
}

// pointSub computes a-b on the curve.
func pointSub(a, b point) point {
	return pointAdd(a, negate(b))
}

// generateNUMSPoint implements the deterministic nothing-up-my-sleeve
// point derivation from the domain spec (C1). It is bit-identical to the
// published algorithm: for each of G's two encodings, hash the encoding
// with the index and an incrementing counter until the resulting 32-byte
// digest is the X coordinate of a point with even Y.
//
// The result is network-visible (it gates which commitments a maker will
// accept), so this loop order must never change.
func generateNUMSPoint(index byte) point {
	encodings := [][]byte{gCompressedBytes, gUncompressedBytes}
	for _, enc := range encodings {
		for counter := 0; counter <= 255; counter++ {
			h := sha256.New()
			h.Write(enc)
			h.Write([]byte{index})
			h.Write([]byte{byte(counter)})
			digest := h.Sum(nil)

			x := new(big.Int).SetBytes(digest)
			if p, ok := decompressEven(x); ok {
				return p
			}
		}
	}
	// Unreachable for any real curve/hash pair: the density of quadratic
	// residues on secp256k1 makes running out of the counter space
	// astronomically unlikely, and JoinMarket's own implementation
	// carries the same assumption.
	panic("podle: exhausted NUMS point search space")
}

// numsCache memoizes generateNUMSPoint results; the derivation is
// deterministic so callers reusing the same index (which they always do,
// once per proof) should not repeat the SHA256 search. Guarded by a mutex
// since PoDLE proofs for independent maker sessions are generated and
// verified concurrently.
var (
	numsCacheMu sync.Mutex
	numsCache   = map[byte]point{}
)

// nthNUMSPoint returns J_i for i in [0, 255], generating and caching it
// on first use.
func nthNUMSPoint(index int) (point, error) {
	if index < 0 || index > 255 {
		return point{}, podleError(ErrIndexOutOfRange,
			"NUMS index out of range", nil)
	}
	i := byte(index)

	numsCacheMu.Lock()
	defer numsCacheMu.Unlock()
	if p, ok := numsCache[i]; ok {
		return p, nil
	}
	p := generateNUMSPoint(i)
	numsCache[i] = p
	return p, nil
}

// NUMSPoint returns the compressed serialization of J_i, the i'th
// NUMS point, generating it on first use and caching thereafter.
func NUMSPoint(index int) ([]byte, error) {
	p, err := nthNUMSPoint(index)
	if err != nil {
		return nil, err
	}
	return p.serializeCompressed(), nil
}
