// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package makerengine

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/cjcore/oracle"
	"github.com/btcsuite/cjcore/podle"
	"github.com/btcsuite/cjcore/txverify"
	"github.com/btcsuite/cjcore/wireproto"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

func newTestBlacklist(t *testing.T) *podle.Blacklist {
	t.Helper()
	bl, err := podle.OpenBlacklist(filepath.Join(t.TempDir(), "blacklist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bl.Close() })
	return bl
}

func newTestCommitmentAndReveal(t *testing.T) (podle.Commitment, *podle.Reveal, *btcec.PrivateKey) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	commitment, err := podle.Commit(priv, 0)
	require.NoError(t, err)
	reveal, err := podle.Generate(priv, 0)
	require.NoError(t, err)
	return commitment, reveal, priv
}

func newTestKeyPair(t *testing.T) *wireproto.KeyPair {
	t.Helper()
	kp, err := wireproto.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

type stubSigner struct {
	calls int
	err   error
}

func (s *stubSigner) SignInput(tx *wire.MsgTx, idx int, utxo oracle.UTXOInfo) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte{0x30, 0x01, 0x02}, nil
}

func TestHandleFillOpensSession(t *testing.T) {
	backend := new(oracle.MockBackend)
	e := New(backend, newTestBlacklist(t), nil)

	commitment, _, _ := newTestCommitmentAndReveal(t)
	peerPub := newTestKeyPair(t).Public

	resp, err := e.HandleFill(FillRequest{
		TakerNick:  "J2taker0000000",
		OrderID:    1,
		CJAmount:   500_000,
		TakerPub:   peerPub,
		Commitment: commitment,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Keys)

	sess, ok := e.Session("J2taker0000000")
	require.True(t, ok)
	require.Equal(t, StateFilled, sess.State)
}

func TestHandleFillRejectsBlacklistedCommitment(t *testing.T) {
	backend := new(oracle.MockBackend)
	blacklist := newTestBlacklist(t)
	e := New(backend, blacklist, nil)

	commitment, _, _ := newTestCommitmentAndReveal(t)
	require.NoError(t, blacklist.Add(commitment))

	_, err := e.HandleFill(FillRequest{
		TakerNick:  "J2taker0000000",
		OrderID:    1,
		CJAmount:   500_000,
		Commitment: commitment,
	})
	require.Error(t, err)
	var mErr Error
	require.ErrorAs(t, err, &mErr)
	require.Equal(t, ErrCommitmentBlacklisted, mErr.ErrorCode)
}

func fillSession(t *testing.T, e *Engine, nick string, cjAmount btcutil.Amount) (podle.Commitment, *podle.Reveal) {
	t.Helper()
	commitment, reveal, _ := newTestCommitmentAndReveal(t)
	_, err := e.HandleFill(FillRequest{
		TakerNick:  nick,
		OrderID:    1,
		CJAmount:   cjAmount,
		Commitment: commitment,
	})
	require.NoError(t, err)
	return commitment, reveal
}

func TestHandleAuthAcceptsValidUTXO(t *testing.T) {
	backend := new(oracle.MockBackend)
	e := New(backend, newTestBlacklist(t), nil)

	_, reveal := fillSession(t, e, "J2taker0000000", 500_000)

	takerOutpoint := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	backend.On("GetUTXO", context.Background(), takerOutpoint).
		Return(oracle.UTXOInfo{Value: 200_000, Height: 90}, nil)
	backend.On("CurrentHeight", context.Background()).Return(int32(100), nil)

	resp, err := e.HandleAuth(context.Background(), AuthRequest{
		TakerNick: "J2taker0000000",
		Reveal:    reveal,
		TakerUTXO: takerOutpoint,
	}, nil, 1_000_000, "cjaddr", "changeaddr", nil)
	require.NoError(t, err)
	require.True(t, resp.BroadcastHP2)

	sess, ok := e.Session("J2taker0000000")
	require.True(t, ok)
	require.Equal(t, StateAuthed, sess.State)
}

func TestHandleAuthRejectsInvalidPoDLE(t *testing.T) {
	backend := new(oracle.MockBackend)
	e := New(backend, newTestBlacklist(t), nil)

	_, reveal := fillSession(t, e, "J2taker0000000", 500_000)
	reveal.Index = 1 // no longer matches the committed index

	_, err := e.HandleAuth(context.Background(), AuthRequest{
		TakerNick: "J2taker0000000",
		Reveal:    reveal,
		TakerUTXO: wire.OutPoint{},
	}, nil, 0, "", "", nil)
	require.Error(t, err)
	var mErr Error
	require.ErrorAs(t, err, &mErr)
	require.Equal(t, ErrPoDLEInvalid, mErr.ErrorCode)

	sess, ok := e.Session("J2taker0000000")
	require.True(t, ok)
	require.Equal(t, StateAborted, sess.State)
}

func TestHandleAuthRejectsImmatureUTXO(t *testing.T) {
	backend := new(oracle.MockBackend)
	e := New(backend, newTestBlacklist(t), nil)

	_, reveal := fillSession(t, e, "J2taker0000000", 500_000)

	takerOutpoint := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	backend.On("GetUTXO", context.Background(), takerOutpoint).
		Return(oracle.UTXOInfo{Value: 200_000, Height: 98}, nil)
	backend.On("CurrentHeight", context.Background()).Return(int32(100), nil)

	_, err := e.HandleAuth(context.Background(), AuthRequest{
		TakerNick: "J2taker0000000",
		Reveal:    reveal,
		TakerUTXO: takerOutpoint,
	}, nil, 0, "", "", nil)
	require.Error(t, err)
	var mErr Error
	require.ErrorAs(t, err, &mErr)
	require.Equal(t, ErrUTXOImmature, mErr.ErrorCode)
}

func TestHandleAuthRejectsUndervaluedUTXO(t *testing.T) {
	backend := new(oracle.MockBackend)
	e := New(backend, newTestBlacklist(t), nil)

	_, reveal := fillSession(t, e, "J2taker0000000", 500_000)

	takerOutpoint := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	backend.On("GetUTXO", context.Background(), takerOutpoint).
		Return(oracle.UTXOInfo{Value: 1_000, Height: 90}, nil)
	backend.On("CurrentHeight", context.Background()).Return(int32(100), nil)

	_, err := e.HandleAuth(context.Background(), AuthRequest{
		TakerNick: "J2taker0000000",
		Reveal:    reveal,
		TakerUTXO: takerOutpoint,
	}, nil, 0, "", "", nil)
	require.Error(t, err)
	var mErr Error
	require.ErrorAs(t, err, &mErr)
	require.Equal(t, ErrUTXOUndervalued, mErr.ErrorCode)
}

func TestHandleAuthRejectsUnknownSession(t *testing.T) {
	backend := new(oracle.MockBackend)
	e := New(backend, newTestBlacklist(t), nil)

	_, err := e.HandleAuth(context.Background(), AuthRequest{TakerNick: "ghost"}, nil, 0, "", "", nil)
	require.Error(t, err)
	var mErr Error
	require.ErrorAs(t, err, &mErr)
	require.Equal(t, ErrUnknownSession, mErr.ErrorCode)
}

func pkScriptForNewTestKey(t *testing.T) []byte {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(priv.PubKey().SerializeCompressed()), &chaincfg.MainNetParams)
	require.NoError(t, err)
	script, err := txverify.ComputePkScript(addr)
	require.NoError(t, err)
	return script
}

func authedSession(t *testing.T, e *Engine, backend *oracle.MockBackend, nick string, myOutpoint wire.OutPoint) {
	t.Helper()
	_, reveal := fillSession(t, e, nick, 500_000)

	takerOutpoint := wire.OutPoint{Hash: chainhash.Hash{0x02}, Index: 0}
	backend.On("GetUTXO", context.Background(), takerOutpoint).
		Return(oracle.UTXOInfo{Value: 200_000, Height: 90}, nil).Maybe()
	backend.On("CurrentHeight", context.Background()).Return(int32(100), nil).Maybe()

	_, err := e.HandleAuth(context.Background(), AuthRequest{
		TakerNick: nick,
		Reveal:    reveal,
		TakerUTXO: takerOutpoint,
	}, []wire.OutPoint{myOutpoint}, 1_000_000, "cjaddr", "changeaddr", nil)
	require.NoError(t, err)
}

func TestHandleTxSignsMakerInputs(t *testing.T) {
	backend := new(oracle.MockBackend)
	signer := &stubSigner{}
	e := New(backend, newTestBlacklist(t), signer)

	myOutpoint := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	authedSession(t, e, backend, "J2taker0000000", myOutpoint)

	cjScript := pkScriptForNewTestKey(t)
	changeScript := pkScriptForNewTestKey(t)
	myScript := pkScriptForNewTestKey(t)

	backend.On("GetUTXO", context.Background(), myOutpoint).
		Return(oracle.UTXOInfo{Value: 1_000_000, PkScript: myScript, Height: 50}, nil)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&myOutpoint, nil, nil))

	p := txverify.Params{
		MyUTXOs:          []wire.OutPoint{myOutpoint},
		MyTotalIn:        1_000_000,
		CJAmount:         500_000,
		TxFeeShare:       1_000,
		RealCJFee:        2_000,
		DustThreshold:    txverify.DefaultDustThreshold,
		MyCJPkScript:     cjScript,
		MyChangePkScript: changeScript,
	}
	expectedChange := p.MyTotalIn - p.CJAmount - p.TxFeeShare + p.RealCJFee
	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount), cjScript))
	tx.AddTxOut(wire.NewTxOut(int64(expectedChange), changeScript))

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	sigs, err := e.HandleTx(TxRequest{TakerNick: "J2taker0000000", RawTx: buf.Bytes()}, p)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.Equal(t, 1, signer.calls)

	sess, ok := e.Session("J2taker0000000")
	require.True(t, ok)
	require.Equal(t, StateSigned, sess.State)
	require.Equal(t, sigs, sess.LastSigs)
}

func TestHandleTxReplaysCachedSigsOnRetry(t *testing.T) {
	backend := new(oracle.MockBackend)
	signer := &stubSigner{}
	e := New(backend, newTestBlacklist(t), signer)

	myOutpoint := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	authedSession(t, e, backend, "J2taker0000000", myOutpoint)

	cjScript := pkScriptForNewTestKey(t)
	changeScript := pkScriptForNewTestKey(t)
	myScript := pkScriptForNewTestKey(t)

	backend.On("GetUTXO", context.Background(), myOutpoint).
		Return(oracle.UTXOInfo{Value: 1_000_000, PkScript: myScript, Height: 50}, nil)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&myOutpoint, nil, nil))

	p := txverify.Params{
		MyUTXOs:          []wire.OutPoint{myOutpoint},
		MyTotalIn:        1_000_000,
		CJAmount:         500_000,
		TxFeeShare:       1_000,
		RealCJFee:        2_000,
		DustThreshold:    txverify.DefaultDustThreshold,
		MyCJPkScript:     cjScript,
		MyChangePkScript: changeScript,
	}
	expectedChange := p.MyTotalIn - p.CJAmount - p.TxFeeShare + p.RealCJFee
	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount), cjScript))
	tx.AddTxOut(wire.NewTxOut(int64(expectedChange), changeScript))

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	first, err := e.HandleTx(TxRequest{TakerNick: "J2taker0000000", RawTx: buf.Bytes()}, p)
	require.NoError(t, err)
	require.Equal(t, 1, signer.calls)

	second, err := e.HandleTx(TxRequest{TakerNick: "J2taker0000000", RawTx: buf.Bytes()}, p)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, signer.calls, "retry must replay cached sigs, not sign again")
}

func TestHandleTxRefusesP2WSHInput(t *testing.T) {
	backend := new(oracle.MockBackend)
	signer := &stubSigner{}
	e := New(backend, newTestBlacklist(t), signer)

	myOutpoint := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	authedSession(t, e, backend, "J2taker0000000", myOutpoint)

	cjScript := pkScriptForNewTestKey(t)
	changeScript := pkScriptForNewTestKey(t)

	var scriptHash [32]byte
	p2wshScript := append([]byte{0x00, 0x20}, scriptHash[:]...)

	backend.On("GetUTXO", context.Background(), myOutpoint).
		Return(oracle.UTXOInfo{Value: 1_000_000, PkScript: p2wshScript, Height: 50}, nil)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&myOutpoint, nil, nil))

	p := txverify.Params{
		MyUTXOs:          []wire.OutPoint{myOutpoint},
		MyTotalIn:        1_000_000,
		CJAmount:         500_000,
		TxFeeShare:       1_000,
		RealCJFee:        2_000,
		DustThreshold:    txverify.DefaultDustThreshold,
		MyCJPkScript:     cjScript,
		MyChangePkScript: changeScript,
	}
	expectedChange := p.MyTotalIn - p.CJAmount - p.TxFeeShare + p.RealCJFee
	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount), cjScript))
	tx.AddTxOut(wire.NewTxOut(int64(expectedChange), changeScript))

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	_, err := e.HandleTx(TxRequest{TakerNick: "J2taker0000000", RawTx: buf.Bytes()}, p)
	require.Error(t, err)
	var mErr Error
	require.ErrorAs(t, err, &mErr)
	require.Equal(t, ErrBondUTXORefused, mErr.ErrorCode)
	require.Equal(t, 0, signer.calls)
}

func TestHandleTxRejectsFailedVerification(t *testing.T) {
	backend := new(oracle.MockBackend)
	signer := &stubSigner{}
	e := New(backend, newTestBlacklist(t), signer)

	myOutpoint := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	authedSession(t, e, backend, "J2taker0000000", myOutpoint)

	cjScript := pkScriptForNewTestKey(t)
	changeScript := pkScriptForNewTestKey(t)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&myOutpoint, nil, nil))
	tx.AddTxOut(wire.NewTxOut(1, cjScript)) // grossly underfunded

	p := txverify.Params{
		MyUTXOs:          []wire.OutPoint{myOutpoint},
		MyTotalIn:        1_000_000,
		CJAmount:         500_000,
		TxFeeShare:       1_000,
		RealCJFee:        2_000,
		DustThreshold:    txverify.DefaultDustThreshold,
		MyCJPkScript:     cjScript,
		MyChangePkScript: changeScript,
	}

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	_, err := e.HandleTx(TxRequest{TakerNick: "J2taker0000000", RawTx: buf.Bytes()}, p)
	require.Error(t, err)
	var mErr Error
	require.ErrorAs(t, err, &mErr)
	require.Equal(t, ErrVerifierRefused, mErr.ErrorCode)
}

func TestSweepExpiredMarksTimedOut(t *testing.T) {
	backend := new(oracle.MockBackend)
	e := New(backend, newTestBlacklist(t), nil)
	e.sessionTimeout = 1 * time.Minute

	start := time.Unix(1_700_000_000, 0)
	e.now = func() time.Time { return start }
	fillSession(t, e, "J2taker0000000", 500_000)

	e.now = func() time.Time { return start.Add(2 * time.Minute) }
	expired := e.SweepExpired()
	require.Equal(t, []string{"J2taker0000000"}, expired)

	sess, ok := e.Session("J2taker0000000")
	require.True(t, ok)
	require.Equal(t, StateTimedOut, sess.State)
}

func TestForgetRemovesSession(t *testing.T) {
	backend := new(oracle.MockBackend)
	e := New(backend, newTestBlacklist(t), nil)
	fillSession(t, e, "J2taker0000000", 500_000)

	e.Forget("J2taker0000000")
	_, ok := e.Session("J2taker0000000")
	require.False(t, ok)
}

func TestSweepExpiredMarksStaleSessionsTimedOut(t *testing.T) {
	backend := new(oracle.MockBackend)
	e := New(backend, newTestBlacklist(t), nil)
	e.sessionTimeout = 10 * time.Second

	stale := &Session{TakerNick: "J2slow0000000", State: StateIdle, CreatedAt: time.Now().Add(-time.Minute)}
	fresh := &Session{TakerNick: "J2fast0000000", State: StateIdle, CreatedAt: time.Now()}
	e.sessions[stale.TakerNick] = stale
	e.sessions[fresh.TakerNick] = fresh

	expired := e.SweepExpired()

	require.ElementsMatch(t, []string{"J2slow0000000"}, expired)
	require.Equal(t, StateTimedOut, stale.State)
	require.Equal(t, StateIdle, fresh.State)
}

func TestWatchExpirationsStopsOnContextCancel(t *testing.T) {
	backend := new(oracle.MockBackend)
	e := New(backend, newTestBlacklist(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	tk := ticker.NewForce(time.Hour)

	done := make(chan struct{})
	go func() {
		e.WatchExpirations(ctx, tk)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchExpirations did not return after context cancellation")
	}
}
