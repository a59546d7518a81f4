// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package podle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNUMSPointDeterministic verifies the published indices from the
// domain spec (0, 1, 5, 9, 100, 255) regenerate to the exact same
// compressed point every time, and that distinct indices never collide.
func TestNUMSPointDeterministic(t *testing.T) {
	indices := []int{0, 1, 5, 9, 100, 255}
	seen := make(map[string]int)

	for _, idx := range indices {
		first, err := NUMSPoint(idx)
		require.NoError(t, err)
		require.Len(t, first, 33)
		require.Contains(t, []byte{0x02, 0x03}, first[0])

		second, err := NUMSPoint(idx)
		require.NoError(t, err)
		require.Equal(t, first, second, "NUMS point for index %d is not deterministic", idx)

		if prior, ok := seen[string(first)]; ok {
			t.Fatalf("NUMS point collision between index %d and %d", prior, idx)
		}
		seen[string(first)] = idx
	}
}

func TestNUMSPointEvenY(t *testing.T) {
	// The algorithm always returns the even-Y compressed candidate
	// (prefix 0x02), never 0x03, since decompressEven only accepts the
	// even root.
	for _, idx := range []int{0, 3, 17, 200} {
		p, err := NUMSPoint(idx)
		require.NoError(t, err)
		require.Equal(t, byte(0x02), p[0])
	}
}

func TestNUMSPointRangeValidation(t *testing.T) {
	_, err := NUMSPoint(-1)
	require.Error(t, err)

	_, err = NUMSPoint(256)
	require.Error(t, err)

	_, err = NUMSPoint(0)
	require.NoError(t, err)
	_, err = NUMSPoint(255)
	require.NoError(t, err)
}

// TestGeneratorEncodings sanity-checks the two G encodings used as the
// outer loop of the NUMS derivation: they must describe the same point.
func TestGeneratorEncodings(t *testing.T) {
	require.Len(t, gCompressedBytes, 33)
	require.Len(t, gUncompressedBytes, 65)
	require.Equal(t, byte(0x04), gUncompressedBytes[0])
	require.Equal(t, gCompressedBytes[1:], gUncompressedBytes[1:33])
}
