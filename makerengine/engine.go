// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package makerengine

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/cjcore/oracle"
	"github.com/btcsuite/cjcore/peerbook"
	"github.com/btcsuite/cjcore/podle"
	"github.com/btcsuite/cjcore/txverify"
	"github.com/btcsuite/cjcore/wireproto"
	"github.com/lightningnetwork/lnd/ticker"
)

// Defaults mirror the domain spec's configuration section for the
// maker-side UTXO acceptance gate.
const (
	DefaultTakerUTXOAge        = 5
	DefaultTakerUTXOAmtPercent = 20.0
	DefaultSessionTimeout      = 300 * time.Second
)

// Signer is the wallet-side collaborator that produces a signature for
// one of this maker's own inputs. Key management and UTXO selection
// live outside this package; the engine only orchestrates when and
// which inputs get signed.
type Signer interface {
	// SignInput returns a DER-encoded signature (with sighash byte
	// appended) for tx's input idx, which spends an output described by
	// utxo.
	SignInput(tx *wire.MsgTx, idx int, utxo oracle.UTXOInfo) ([]byte, error)
}

// FillRequest carries a taker's !fill announcement.
type FillRequest struct {
	TakerNick  string
	OrderID    int64
	CJAmount   btcutil.Amount
	TakerPub   *[32]byte
	Commitment podle.Commitment
}

// FillResponse is what the engine hands back for a !pubkey reply.
type FillResponse struct {
	Keys *wireproto.KeyPair
}

// AuthRequest carries a taker's decrypted !auth payload.
type AuthRequest struct {
	TakerNick string
	Reveal    *podle.Reveal
	TakerUTXO wire.OutPoint
}

// AuthResponse is the maker's !ioauth reply, plus a signal that the
// caller must broadcast !hp2 for the now-used commitment.
type AuthResponse struct {
	MyUTXOs      []wire.OutPoint
	MyTotalIn    btcutil.Amount
	CJAddr       string
	ChangeAddr   string
	BondProof    *peerbook.BondProof
	Commitment   podle.Commitment
	BroadcastHP2 bool
}

// TxRequest carries a taker's decrypted !tx payload: the unsigned
// transaction this maker is being asked to sign into.
type TxRequest struct {
	TakerNick string
	RawTx     []byte
}

// SigResponse is one !sig reply: the DER signature for a single one of
// this maker's inputs, identified by its index in the proposed
// transaction.
type SigResponse struct {
	InputIndex int
	Signature  []byte
	PubKey     []byte
}

// Engine tracks one maker's concurrent sessions against any number of
// takers, and enforces the !fill/!auth/!tx obligations from the domain
// spec's maker state machine.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*Session

	backend   oracle.Backend
	blacklist *podle.Blacklist
	signer    Signer

	takerUTXOAge        int32
	takerUTXOAmtPercent float64
	dustThreshold       btcutil.Amount
	sessionTimeout      time.Duration

	now func() time.Time
}

// New constructs a maker engine. backend and blacklist must be
// non-nil; signer may be nil for a read-only/offer-advertising-only
// deployment, in which case HandleTx always fails ErrVerifierRefused.
func New(backend oracle.Backend, blacklist *podle.Blacklist, signer Signer) *Engine {
	return &Engine{
		sessions:            make(map[string]*Session),
		backend:             backend,
		blacklist:           blacklist,
		signer:              signer,
		takerUTXOAge:        DefaultTakerUTXOAge,
		takerUTXOAmtPercent: DefaultTakerUTXOAmtPercent,
		dustThreshold:       txverify.DefaultDustThreshold,
		sessionTimeout:      DefaultSessionTimeout,
		now:                 time.Now,
	}
}

// HandleFill implements the !fill obligations: reject a blacklisted
// commitment, otherwise open a session with a fresh NaCl keypair and
// return it for a !pubkey reply.
func (e *Engine) HandleFill(req FillRequest) (*FillResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	blacklisted, err := e.blacklist.Contains(req.Commitment)
	if err != nil {
		return nil, makerError(ErrCommitmentBlacklisted, "failed to query blacklist", err)
	}
	if blacklisted {
		return nil, makerError(ErrCommitmentBlacklisted,
			"commitment is already blacklisted", nil)
	}

	keys, err := wireproto.GenerateKeyPair()
	if err != nil {
		return nil, makerError(ErrOutOfPhase, "failed to generate session keypair", err)
	}

	e.sessions[req.TakerNick] = &Session{
		TakerNick:  req.TakerNick,
		OrderID:    req.OrderID,
		Keys:       keys,
		PeerPub:    req.TakerPub,
		Commitment: req.Commitment,
		CJAmount:   req.CJAmount,
		State:      StateFilled,
		CreatedAt:  e.now(),
	}

	log.Infof("fill accepted from %s for order %d", req.TakerNick, req.OrderID)
	return &FillResponse{Keys: keys}, nil
}

// sessionFor returns the live session for nick, or ErrUnknownSession.
func (e *Engine) sessionFor(nick string, want State) (*Session, error) {
	sess, ok := e.sessions[nick]
	if !ok {
		return nil, makerError(ErrUnknownSession, "no session tracked for "+nick, nil)
	}
	if sess.State != want {
		return nil, makerError(ErrOutOfPhase,
			"session for "+nick+" is not in the expected phase", nil)
	}
	return sess, nil
}

// HandleAuth implements the !auth obligations: verify the PoDLE reveal,
// blacklist the now-spent commitment, check the taker-declared UTXO's
// age and value against the acceptance gate, and assemble the !ioauth
// reply. myUTXOs/myTotalIn/cjAddr/changeAddr/bond must be supplied by the
// caller from the maker's own wallet/offer state; this package has no
// wallet of its own.
func (e *Engine) HandleAuth(ctx context.Context, req AuthRequest, myUTXOs []wire.OutPoint, myTotalIn btcutil.Amount, cjAddr, changeAddr string, bond *peerbook.BondProof) (*AuthResponse, error) {
	e.mu.Lock()
	sess, err := e.sessionFor(req.TakerNick, StateFilled)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := podle.Verify(req.Reveal, sess.Commitment); err != nil {
		e.abort(req.TakerNick)
		return nil, makerError(ErrPoDLEInvalid, "PoDLE reveal failed verification", err)
	}

	if err := e.blacklist.Add(sess.Commitment); err != nil {
		return nil, makerError(ErrCommitmentBlacklisted, "failed to record commitment", err)
	}

	utxo, err := e.backend.GetUTXO(ctx, req.TakerUTXO)
	if err != nil {
		e.abort(req.TakerNick)
		return nil, makerError(ErrUTXONotFound, "taker-declared utxo lookup failed", err)
	}

	height, err := e.backend.CurrentHeight(ctx)
	if err != nil {
		return nil, makerError(ErrUTXONotFound, "failed to query chain tip", err)
	}
	confs := height - utxo.Height + 1
	if utxo.Height <= 0 || confs < e.takerUTXOAge {
		e.abort(req.TakerNick)
		return nil, makerError(ErrUTXOImmature,
			"taker-declared utxo has fewer than taker_utxo_age confirmations", nil)
	}

	minValue := btcutil.Amount(float64(sess.CJAmount) * e.takerUTXOAmtPercent / 100.0)
	if btcutil.Amount(utxo.Value) < minValue {
		e.abort(req.TakerNick)
		return nil, makerError(ErrUTXOUndervalued,
			"taker-declared utxo value is below taker_utxo_amtpercent of cj_amount", nil)
	}

	e.mu.Lock()
	sess.MyUTXOs = myUTXOs
	sess.CJAddr = cjAddr
	sess.ChangeAddr = changeAddr
	sess.BondProof = bond
	sess.State = StateAuthed
	e.mu.Unlock()

	log.Infof("auth accepted from %s", req.TakerNick)

	return &AuthResponse{
		MyUTXOs:      myUTXOs,
		MyTotalIn:    myTotalIn,
		CJAddr:       cjAddr,
		ChangeAddr:   changeAddr,
		BondProof:    bond,
		Commitment:   sess.Commitment,
		BroadcastHP2: true,
	}, nil
}

// HandleTx implements the !tx obligations: invoke the C6 verifier
// against the maker's own declared inputs and outputs, refuse any
// P2WSH input, and on success sign each of the maker's own inputs.
func (e *Engine) HandleTx(req TxRequest, p txverify.Params) ([]SigResponse, error) {
	e.mu.Lock()
	if sess, ok := e.sessions[req.TakerNick]; ok && sess.State == StateSigned {
		cached := sess.LastSigs
		e.mu.Unlock()
		log.Infof("replaying cached signatures for %s, refusing to re-sign", req.TakerNick)
		return cached, nil
	}
	sess, err := e.sessionFor(req.TakerNick, StateAuthed)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(req.RawTx)); err != nil {
		e.abort(req.TakerNick)
		return nil, makerError(ErrVerifierRefused, "failed to parse proposed transaction", err)
	}

	if err := txverify.VerifyMsgTx(&tx, p); err != nil {
		e.abort(req.TakerNick)
		return nil, makerError(ErrVerifierRefused, "unsigned transaction failed verification", err)
	}

	if e.signer == nil {
		e.abort(req.TakerNick)
		return nil, makerError(ErrVerifierRefused, "no signer configured for this maker", nil)
	}

	sigs := make([]SigResponse, 0, len(sess.MyUTXOs))
	for _, myOutpoint := range sess.MyUTXOs {
		idx, utxo, err := findInput(&tx, myOutpoint, e.backend)
		if err != nil {
			e.abort(req.TakerNick)
			return nil, makerError(ErrVerifierRefused, "maker input missing from proposed transaction", err)
		}
		if txscript.IsPayToWitnessScriptHash(utxo.PkScript) {
			e.abort(req.TakerNick)
			return nil, makerError(ErrBondUTXORefused,
				"refusing to sign a P2WSH input into a CoinJoin", nil)
		}
		sig, err := e.signer.SignInput(&tx, idx, utxo)
		if err != nil {
			e.abort(req.TakerNick)
			return nil, makerError(ErrVerifierRefused, "failed to sign input", err)
		}
		sigs = append(sigs, SigResponse{InputIndex: idx, Signature: sig})
	}

	e.mu.Lock()
	sess.State = StateSigned
	sess.LastSigs = sigs
	e.mu.Unlock()

	log.Infof("signed %d inputs for %s", len(sigs), req.TakerNick)

	return sigs, nil
}

// findInput locates outpoint among tx's inputs and fetches its UTXO
// info from the backend (needed for the PkScript the P2WSH check runs
// against, since a raw wire.TxIn carries no script of its own).
func findInput(tx *wire.MsgTx, outpoint wire.OutPoint, backend oracle.Backend) (int, oracle.UTXOInfo, error) {
	for i, in := range tx.TxIn {
		if in.PreviousOutPoint == outpoint {
			utxo, err := backend.GetUTXO(context.Background(), outpoint)
			if err != nil {
				return 0, oracle.UTXOInfo{}, err
			}
			return i, utxo, nil
		}
	}
	return 0, oracle.UTXOInfo{}, oracle.ErrUTXONotFound
}

// abort marks a session as aborted, used whenever a maker-side check
// fails mid-protocol.
func (e *Engine) abort(nick string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sess, ok := e.sessions[nick]; ok {
		sess.State = StateAborted
	}
}

// SweepExpired marks any session that has outlived the configured
// timeout as TimedOut and returns the affected nicks, for the caller to
// disconnect and clean up.
func (e *Engine) SweepExpired() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var expired []string
	for nick, sess := range e.sessions {
		if sess.Expired(now, e.sessionTimeout) {
			sess.State = StateTimedOut
			expired = append(expired, nick)
		}
	}
	return expired
}

// WatchExpirations runs SweepExpired on every tick until ctx is
// cancelled, logging each session it times out. A standing maker
// process has no other caller polling for stale sessions, since it
// never blocks waiting on a single run the way a taker does. The
// ticker is swappable so tests can force a sweep deterministically.
func (e *Engine) WatchExpirations(ctx context.Context, t ticker.Ticker) {
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Ticks():
			for _, nick := range e.SweepExpired() {
				log.Warnf("session %s timed out and was marked stale", nick)
			}
		}
	}
}

// Forget removes a session entirely, used once its terminal outcome has
// been handled by the caller.
func (e *Engine) Forget(nick string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, nick)
}

// Session returns a copy of a tracked session's state, for inspection
// by callers (e.g. !tx command dispatch needing the session's chosen
// CJ/change addresses).
func (e *Engine) Session(nick string) (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[nick]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}
