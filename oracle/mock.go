// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package oracle

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/mock"
)

// MockBackend is a mock implementation of the Backend interface, used
// by C4/C5 tests to isolate session logic from a real chain backend.
type MockBackend struct {
	mock.Mock
}

var _ Backend = (*MockBackend)(nil)

// GetUTXO implements the Backend interface.
func (m *MockBackend) GetUTXO(ctx context.Context, outpoint wire.OutPoint) (UTXOInfo, error) {
	args := m.Called(ctx, outpoint)
	if args.Get(0) == nil {
		return UTXOInfo{}, args.Error(1)
	}
	return args.Get(0).(UTXOInfo), args.Error(1)
}

// Broadcast implements the Backend interface.
func (m *MockBackend) Broadcast(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return chainhash.Hash{}, args.Error(1)
	}
	return args.Get(0).(chainhash.Hash), args.Error(1)
}

// EstimateFee implements the Backend interface.
func (m *MockBackend) EstimateFee(ctx context.Context, blocks int) (float64, error) {
	args := m.Called(ctx, blocks)
	return args.Get(0).(float64), args.Error(1)
}

// CurrentHeight implements the Backend interface.
func (m *MockBackend) CurrentHeight(ctx context.Context) (int32, error) {
	args := m.Called(ctx)
	return args.Get(0).(int32), args.Error(1)
}
