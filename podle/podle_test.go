// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package podle

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func randPrivKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	for _, idx := range DefaultRetryIndices {
		priv := randPrivKey(t)
		commitment, err := Commit(priv, idx)
		require.NoError(t, err)

		reveal, err := Generate(priv, idx)
		require.NoError(t, err)

		require.NoError(t, Verify(reveal, commitment))
	}
}

func TestVerifyRejectsCommitmentMismatch(t *testing.T) {
	priv := randPrivKey(t)
	reveal, err := Generate(priv, 0)
	require.NoError(t, err)

	var wrongCommitment Commitment
	_, err = rand.Read(wrongCommitment[:])
	require.NoError(t, err)

	err = Verify(reveal, wrongCommitment)
	require.Error(t, err)
	var perr Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ErrCommitmentMismatch, perr.ErrorCode)
}

func TestVerifyRejectsTamperedProof(t *testing.T) {
	priv := randPrivKey(t)
	commitment, err := Commit(priv, 0)
	require.NoError(t, err)

	reveal, err := Generate(priv, 0)
	require.NoError(t, err)

	// Tamper with s; the commitment still matches (P2 untouched) so
	// this must fail with ErrProofInvalid rather than mismatch.
	reveal.S = new(big.Int).Add(reveal.S, big.NewInt(1))
	reveal.S.Mod(reveal.S, N)

	err = Verify(reveal, commitment)
	require.Error(t, err)
	var perr Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ErrProofInvalid, perr.ErrorCode)
}

func TestVerifyRejectsWrongIndex(t *testing.T) {
	priv := randPrivKey(t)
	commitment, err := Commit(priv, 0)
	require.NoError(t, err)

	// A proof generated against a different NUMS index must not verify
	// against a commitment made with index 0: P2 differs entirely.
	reveal, err := Generate(priv, 1)
	require.NoError(t, err)

	err = Verify(reveal, commitment)
	require.Error(t, err)
}

func TestVerifyRejectsMalformedPoints(t *testing.T) {
	priv := randPrivKey(t)
	commitment, err := Commit(priv, 0)
	require.NoError(t, err)

	reveal, err := Generate(priv, 0)
	require.NoError(t, err)
	reveal.P = []byte{0x01, 0x02, 0x03}

	err = Verify(reveal, commitment)
	require.Error(t, err)
	var perr Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ErrMalformed, perr.ErrorCode)
}

// TestProofRevealsNoKeyInformation is a light statistical check standing
// in for the domain spec's "indistinguishable from uniform" property: s
// values generated for many independent (privkey, index) pairs should
// not cluster, which a biased nonce generator or a leaking construction
// would produce.
func TestProofRevealsNoKeyInformation(t *testing.T) {
	const trials = 256
	var lowHalf, highHalf int
	half := new(big.Int).Rsh(N, 1)

	for i := 0; i < trials; i++ {
		priv := randPrivKey(t)
		reveal, err := Generate(priv, 0)
		require.NoError(t, err)
		if reveal.S.Cmp(half) < 0 {
			lowHalf++
		} else {
			highHalf++
		}
	}

	// With a uniform nonce, s should split roughly evenly; a 30%
	// tolerance keeps this from being flaky while still catching a
	// grossly biased or fixed nonce.
	require.InDelta(t, trials/2, lowHalf, float64(trials)*0.3)
	require.InDelta(t, trials/2, highHalf, float64(trials)*0.3)
}

func TestDefaultRetryIndices(t *testing.T) {
	require.Equal(t, []int{0, 1, 2}, DefaultRetryIndices)
}
