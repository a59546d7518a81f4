// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package podle

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func TestStoreNextUnusedIndex(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "commitments.db"))
	require.NoError(t, err)
	defer store.Close()

	var utxo chainhash.Hash
	copy(utxo[:], []byte("deadbeefdeadbeefdeadbeefdeadbeef"))

	idx, err := store.NextUnusedIndex(utxo, 0, DefaultRetryIndices)
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	require.NoError(t, store.Record(utxo, 0, 0, CommitmentBurned))

	idx, err = store.NextUnusedIndex(utxo, 0, DefaultRetryIndices)
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	require.NoError(t, store.Record(utxo, 0, 1, CommitmentUsed))
	require.NoError(t, store.Record(utxo, 0, 2, CommitmentBurned))

	_, err = store.NextUnusedIndex(utxo, 0, DefaultRetryIndices)
	require.Error(t, err)
}

func TestBlacklistIdempotentAdd(t *testing.T) {
	dir := t.TempDir()
	bl, err := OpenBlacklist(filepath.Join(dir, "commitmentlist"))
	require.NoError(t, err)
	defer bl.Close()

	var c Commitment
	copy(c[:], []byte("0123456789abcdef0123456789abcdef"))

	present, err := bl.Contains(c)
	require.NoError(t, err)
	require.False(t, present)

	require.NoError(t, bl.Add(c))
	require.NoError(t, bl.Add(c)) // idempotent

	present, err = bl.Contains(c)
	require.NoError(t, err)
	require.True(t, present)
}
