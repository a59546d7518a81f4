// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txverify implements the byte-level unsigned-transaction
// verifier (C6): the six conditions a maker checks before it will ever
// produce a signature for a proposed CoinJoin transaction.
package txverify

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// DefaultDustThreshold is the satoshi amount below which an output is
// forfeited to miner fees rather than created, matching the domain
// spec's default.
const DefaultDustThreshold = 27_300

// Params carries the maker-local knowledge the verifier checks an
// unsigned transaction against.
type Params struct {
	// MyUTXOs are the maker's own inputs, each of which must appear
	// exactly once among the transaction's inputs.
	MyUTXOs []wire.OutPoint

	MyTotalIn    btcutil.Amount
	CJAmount     btcutil.Amount
	TxFeeShare   btcutil.Amount
	RealCJFee    btcutil.Amount
	DustThreshold btcutil.Amount

	// MyCJPkScript and MyChangePkScript are the maker's CJ and change
	// addresses in serialized pkScript form, compared against output
	// scripts and computed once by the caller via
	// txscript.PayToAddrScript.
	MyCJPkScript     []byte
	MyChangePkScript []byte
}

// Verify parses rawTx and checks all six acceptance conditions from
// the domain spec's unsigned-transaction verifier. It returns nil only
// when every condition holds; any failure is returned as a structured
// Error naming the violated condition, and the caller MUST NOT sign.
func Verify(rawTx []byte, p Params) error {
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return verifyError(ErrParse, "failed to parse transaction", err)
	}
	return VerifyMsgTx(&tx, p)
}

// VerifyMsgTx is Verify for an already-parsed transaction.
func VerifyMsgTx(tx *wire.MsgTx, p Params) error {
	if err := checkUTXOsPresent(tx, p.MyUTXOs); err != nil {
		return err
	}

	cjOut, err := checkSingleOutput(tx, p.MyCJPkScript, ErrCJOutputMissing, ErrCJOutputDuplicated)
	if err != nil {
		return err
	}
	if btcutil.Amount(cjOut.Value) < p.CJAmount {
		return verifyError(ErrCJOutputUnderfunded, "CJ output value below cj_amount", nil)
	}

	expectedChange := p.MyTotalIn - p.CJAmount - p.TxFeeShare + p.RealCJFee
	if err := checkChangeOutput(tx, p, expectedChange); err != nil {
		return err
	}

	if p.RealCJFee-p.TxFeeShare <= 0 {
		return verifyError(ErrNoProfit, "maker profit is not strictly positive", nil)
	}

	return nil
}

// checkUTXOsPresent verifies every maker UTXO appears in tx's inputs
// exactly once.
func checkUTXOsPresent(tx *wire.MsgTx, myUTXOs []wire.OutPoint) error {
	counts := make(map[wire.OutPoint]int, len(tx.TxIn))
	for _, in := range tx.TxIn {
		counts[in.PreviousOutPoint]++
	}
	for _, want := range myUTXOs {
		switch counts[want] {
		case 0:
			return verifyError(ErrMissingUTXO, "maker utxo absent from transaction inputs", nil)
		case 1:
			// ok
		default:
			return verifyError(ErrDuplicateUTXO, "maker utxo appears more than once in transaction inputs", nil)
		}
	}
	return nil
}

// checkSingleOutput finds the unique output matching pkScript, failing
// with missingErr if absent or duplicateErr if it appears more than
// once.
func checkSingleOutput(tx *wire.MsgTx, pkScript []byte, missingErr, duplicateErr ErrorCode) (*wire.TxOut, error) {
	var found *wire.TxOut
	count := 0
	for _, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, pkScript) {
			count++
			found = out
		}
	}
	switch count {
	case 0:
		return nil, verifyError(missingErr, "expected output script not found", nil)
	case 1:
		return found, nil
	default:
		return nil, verifyError(duplicateErr, "expected output script appears more than once", nil)
	}
}

// checkChangeOutput enforces condition 4: change above dust must
// appear exactly once with value >= E; change at or below dust must
// not appear at all.
func checkChangeOutput(tx *wire.MsgTx, p Params, expectedChange btcutil.Amount) error {
	changeCount := 0
	var changeOut *wire.TxOut
	for _, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, p.MyChangePkScript) {
			changeCount++
			changeOut = out
		}
	}

	if expectedChange > p.DustThreshold {
		switch changeCount {
		case 0:
			return verifyError(ErrChangeOutputMissing, "expected change output not found", nil)
		case 1:
			if btcutil.Amount(changeOut.Value) < expectedChange {
				return verifyError(ErrChangeOutputUnderfunded, "change output value below expected change", nil)
			}
			return nil
		default:
			return verifyError(ErrChangeOutputDuplicated, "change output script appears more than once", nil)
		}
	}

	// expectedChange <= dust: the change address must appear zero
	// times, since change at or below dust is forfeited to miner fees.
	if changeCount != 0 {
		return verifyError(ErrChangeOutputUnexpected, "change output present despite change at or below dust", nil)
	}
	return nil
}

// ComputePkScript is a convenience wrapper around
// txscript.PayToAddrScript for callers building Params.
func ComputePkScript(addr btcutil.Address) ([]byte, error) {
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, verifyError(ErrParse, "failed to compute pkScript for address", err)
	}
	return script, nil
}
