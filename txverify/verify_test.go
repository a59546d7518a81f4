// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txverify

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func pkScriptForNewKey(t *testing.T) []byte {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(priv.PubKey().SerializeCompressed()), &chaincfg.MainNetParams)
	require.NoError(t, err)
	script, err := ComputePkScript(addr)
	require.NoError(t, err)
	return script
}

func baseTx(t *testing.T, utxo wire.OutPoint) (*wire.MsgTx, []byte, []byte) {
	t.Helper()
	cjScript := pkScriptForNewKey(t)
	changeScript := pkScriptForNewKey(t)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&utxo, nil, nil))
	return tx, cjScript, changeScript
}

func baseParams(myUTXO wire.OutPoint, cjScript, changeScript []byte) Params {
	return Params{
		MyUTXOs:          []wire.OutPoint{myUTXO},
		MyTotalIn:        1_000_000,
		CJAmount:         500_000,
		TxFeeShare:       1000,
		RealCJFee:        2000,
		DustThreshold:    DefaultDustThreshold,
		MyCJPkScript:     cjScript,
		MyChangePkScript: changeScript,
	}
}

func TestVerifyAcceptsWellFormedTransaction(t *testing.T) {
	utxo := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	tx, cjScript, changeScript := baseTx(t, utxo)
	p := baseParams(utxo, cjScript, changeScript)

	expectedChange := p.MyTotalIn - p.CJAmount - p.TxFeeShare + p.RealCJFee
	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount), cjScript))
	tx.AddTxOut(wire.NewTxOut(int64(expectedChange), changeScript))

	require.NoError(t, VerifyMsgTx(tx, p))
}

func TestVerifyRejectsMissingUTXO(t *testing.T) {
	utxo := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	other := wire.OutPoint{Hash: chainhash.Hash{0x02}, Index: 0}
	tx, cjScript, changeScript := baseTx(t, other)
	p := baseParams(utxo, cjScript, changeScript)

	expectedChange := p.MyTotalIn - p.CJAmount - p.TxFeeShare + p.RealCJFee
	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount), cjScript))
	tx.AddTxOut(wire.NewTxOut(int64(expectedChange), changeScript))

	err := VerifyMsgTx(tx, p)
	require.Error(t, err)
	var vErr Error
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ErrMissingUTXO, vErr.ErrorCode)
}

func TestVerifyRejectsDuplicateUTXO(t *testing.T) {
	utxo := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	tx, cjScript, changeScript := baseTx(t, utxo)
	tx.AddTxIn(wire.NewTxIn(&utxo, nil, nil))
	p := baseParams(utxo, cjScript, changeScript)

	expectedChange := p.MyTotalIn - p.CJAmount - p.TxFeeShare + p.RealCJFee
	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount), cjScript))
	tx.AddTxOut(wire.NewTxOut(int64(expectedChange), changeScript))

	err := VerifyMsgTx(tx, p)
	require.Error(t, err)
	var vErr Error
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ErrDuplicateUTXO, vErr.ErrorCode)
}

func TestVerifyRejectsUnderfundedCJOutput(t *testing.T) {
	utxo := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	tx, cjScript, changeScript := baseTx(t, utxo)
	p := baseParams(utxo, cjScript, changeScript)

	expectedChange := p.MyTotalIn - p.CJAmount - p.TxFeeShare + p.RealCJFee
	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount)-1, cjScript))
	tx.AddTxOut(wire.NewTxOut(int64(expectedChange), changeScript))

	err := VerifyMsgTx(tx, p)
	require.Error(t, err)
	var vErr Error
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ErrCJOutputUnderfunded, vErr.ErrorCode)
}

func TestVerifyRejectsMissingChangeOutput(t *testing.T) {
	utxo := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	tx, cjScript, changeScript := baseTx(t, utxo)
	p := baseParams(utxo, cjScript, changeScript)

	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount), cjScript))

	err := VerifyMsgTx(tx, p)
	require.Error(t, err)
	var vErr Error
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ErrChangeOutputMissing, vErr.ErrorCode)
}

func TestVerifyAcceptsForfeitedDustChange(t *testing.T) {
	utxo := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	tx, cjScript, changeScript := baseTx(t, utxo)
	p := baseParams(utxo, cjScript, changeScript)
	// Tune totals so expected change lands exactly at dust: forfeited,
	// no change output should be created at all.
	p.MyTotalIn = p.CJAmount + p.TxFeeShare - p.RealCJFee + p.DustThreshold

	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount), cjScript))

	require.NoError(t, VerifyMsgTx(tx, p))
}

func TestVerifyRejectsUnexpectedChangeBelowDust(t *testing.T) {
	utxo := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	tx, cjScript, changeScript := baseTx(t, utxo)
	p := baseParams(utxo, cjScript, changeScript)
	p.MyTotalIn = p.CJAmount + p.TxFeeShare - p.RealCJFee + p.DustThreshold

	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount), cjScript))
	tx.AddTxOut(wire.NewTxOut(1000, changeScript))

	err := VerifyMsgTx(tx, p)
	require.Error(t, err)
	var vErr Error
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ErrChangeOutputUnexpected, vErr.ErrorCode)
}

func TestVerifyRejectsNoProfit(t *testing.T) {
	utxo := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	tx, cjScript, changeScript := baseTx(t, utxo)
	p := baseParams(utxo, cjScript, changeScript)
	p.RealCJFee = p.TxFeeShare // profit == 0, not strictly positive

	expectedChange := p.MyTotalIn - p.CJAmount - p.TxFeeShare + p.RealCJFee
	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount), cjScript))
	tx.AddTxOut(wire.NewTxOut(int64(expectedChange), changeScript))

	err := VerifyMsgTx(tx, p)
	require.Error(t, err)
	var vErr Error
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ErrNoProfit, vErr.ErrorCode)
}

func TestVerifyRejectsDuplicateCJOutput(t *testing.T) {
	utxo := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	tx, cjScript, changeScript := baseTx(t, utxo)
	p := baseParams(utxo, cjScript, changeScript)

	expectedChange := p.MyTotalIn - p.CJAmount - p.TxFeeShare + p.RealCJFee
	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount), cjScript))
	tx.AddTxOut(wire.NewTxOut(int64(p.CJAmount), cjScript))
	tx.AddTxOut(wire.NewTxOut(int64(expectedChange), changeScript))

	err := VerifyMsgTx(tx, p)
	require.Error(t, err)
	var vErr Error
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ErrCJOutputDuplicated, vErr.ErrorCode)
}

func TestVerifyRejectsMalformedBytes(t *testing.T) {
	err := Verify([]byte{0xff, 0xff}, Params{})
	require.Error(t, err)
	var vErr Error
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ErrParse, vErr.ErrorCode)
}
