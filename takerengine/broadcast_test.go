// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package takerengine

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/cjcore/oracle"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubBroadcaster struct {
	mock.Mock
}

func (s *stubBroadcaster) BroadcastVia(ctx context.Context, nick string, tx *wire.MsgTx) error {
	args := s.Called(ctx, nick, tx)
	return args.Error(0)
}

func newTestTx() *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(50_000, []byte{0x00}))
	return tx
}

func TestBroadcastSelfUsesBackend(t *testing.T) {
	backend := new(oracle.MockBackend)
	tx := newTestTx()
	backend.On("Broadcast", mock.Anything, tx).Return(tx.TxHash(), nil)

	e := New("J2taker0000000", &chaincfg.MainNetParams, backend, nil)
	hash, err := e.Broadcast(context.Background(), tx, BroadcastSelf, nil, nil)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), hash)
	backend.AssertExpectations(t)
}

func TestBroadcastRandomPeerFallsBackToSelfOnFailure(t *testing.T) {
	backend := new(oracle.MockBackend)
	tx := newTestTx()
	backend.On("Broadcast", mock.Anything, tx).Return(tx.TxHash(), nil)

	pb := new(stubBroadcaster)
	pb.On("BroadcastVia", mock.Anything, "J2maker0000000", tx).Return(errors.New("peer offline"))

	e := New("J2taker0000000", &chaincfg.MainNetParams, backend, nil)
	hash, err := e.Broadcast(context.Background(), tx, BroadcastRandomPeer, []string{"J2maker0000000"}, pb)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), hash)
	backend.AssertExpectations(t)
	pb.AssertExpectations(t)
}

func TestBroadcastMultiplePeersTriesUpToFanout(t *testing.T) {
	backend := new(oracle.MockBackend)
	tx := newTestTx()

	pb := new(stubBroadcaster)
	pb.On("BroadcastVia", mock.Anything, "J2a", tx).Return(errors.New("no"))
	pb.On("BroadcastVia", mock.Anything, "J2b", tx).Return(nil)

	e := New("J2taker0000000", &chaincfg.MainNetParams, backend, nil)
	hash, err := e.Broadcast(context.Background(), tx, BroadcastMultiplePeers, []string{"J2a", "J2b", "J2c"}, pb)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), hash)
	pb.AssertExpectations(t)
	pb.AssertNotCalled(t, "BroadcastVia", mock.Anything, "J2c", tx)
}

func TestBroadcastNotSelfNeverFallsBack(t *testing.T) {
	backend := new(oracle.MockBackend)
	tx := newTestTx()

	pb := new(stubBroadcaster)
	pb.On("BroadcastVia", mock.Anything, "J2a", tx).Return(errors.New("refused"))

	e := New("J2taker0000000", &chaincfg.MainNetParams, backend, nil)
	hash, err := e.Broadcast(context.Background(), tx, BroadcastNotSelf, []string{"J2a"}, pb)
	require.Error(t, err)
	require.Equal(t, chainhash.Hash{}, hash)
	backend.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
}

func TestParseBroadcastPolicyRoundTripsWithString(t *testing.T) {
	for _, p := range []BroadcastPolicy{
		BroadcastSelf, BroadcastRandomPeer, BroadcastMultiplePeers, BroadcastNotSelf,
	} {
		parsed, err := ParseBroadcastPolicy(p.String())
		require.NoError(t, err)
		require.Equal(t, p, parsed)
	}
}

func TestParseBroadcastPolicyRejectsUnknownName(t *testing.T) {
	_, err := ParseBroadcastPolicy("throw_it_at_the_wall")
	require.Error(t, err)
}
