// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package takerengine

import (
	"bytes"
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/cjcore/oracle"
	"github.com/btcsuite/cjcore/peerbook"
	"github.com/btcsuite/cjcore/podle"
	"github.com/btcsuite/cjcore/wireproto"
	"github.com/lightningnetwork/lnd/ticker"
	"golang.org/x/sync/errgroup"
)

// Defaults mirror the domain spec's configuration section.
const (
	DefaultMaxMakerReplacementAttempts = 3
	DefaultSessionTimeout              = 300 * time.Second
	DefaultBroadcastTimeout            = 30 * time.Second
	DefaultDustThreshold               = 27_300
	DefaultFeeTargetBlocks             = 3
)

// Transport is the wire-level send side a run uses to reach its maker
// counterparties. Encryption, envelope framing, and channel selection
// are C2's concern; the engine only ever hands it a fully formed
// application command.
type Transport interface {
	Send(cmd wireproto.Command) error
}

// Engine drives one taker run's five phases against any number of
// concurrently negotiated maker counterparties.
type Engine struct {
	mu sync.Mutex

	nick      string
	chainParams *chaincfg.Params
	backend   oracle.Backend
	transport Transport

	sessions     map[string]*MakerSession
	ignoredNicks map[string]bool

	state RunState

	maxMakerReplacementAttempts int
	sessionTimeout              time.Duration
	broadcastTimeout            time.Duration
	dustThreshold               btcutil.Amount

	now func() time.Time
}

// New constructs a taker engine for a single run.
func New(nick string, chainParams *chaincfg.Params, backend oracle.Backend, transport Transport) *Engine {
	return &Engine{
		nick:                        nick,
		chainParams:                 chainParams,
		backend:                     backend,
		transport:                   transport,
		sessions:                    make(map[string]*MakerSession),
		ignoredNicks:                make(map[string]bool),
		state:                       RunIdle,
		maxMakerReplacementAttempts: DefaultMaxMakerReplacementAttempts,
		sessionTimeout:              DefaultSessionTimeout,
		broadcastTimeout:            DefaultBroadcastTimeout,
		dustThreshold:               DefaultDustThreshold,
		now:                         time.Now,
	}
}

// State returns the run's current outer state.
func (e *Engine) State() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Session returns a copy of a tracked maker session, for inspection.
func (e *Engine) Session(nick string) (MakerSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[nick]
	if !ok {
		return MakerSession{}, false
	}
	return *sess, true
}

// Discover runs C3's selection against the current live orderbook,
// folding in nicks this run has already given up on (non-responders
// from an earlier fill attempt, or makers that failed auth).
func (e *Engine) Discover(liveOffers []peerbook.Offer, sp peerbook.SelectionParams) ([]peerbook.Offer, error) {
	sp = e.prepareDiscovery(sp)
	return peerbook.Select(liveOffers, sp)
}

// discoverTopUp is Discover's counterpart for FillPhase's mid-run
// replacement rounds, where sp.Count is the per-round shortfall rather
// than the overall counterparty target: it may legitimately be 1 even
// though the run as a whole never settles for fewer than
// peerbook.MinCounterpartyCount.
func (e *Engine) discoverTopUp(liveOffers []peerbook.Offer, sp peerbook.SelectionParams) ([]peerbook.Offer, error) {
	sp = e.prepareDiscovery(sp)
	return peerbook.SelectTopUp(liveOffers, sp)
}

func (e *Engine) prepareDiscovery(sp peerbook.SelectionParams) peerbook.SelectionParams {
	e.mu.Lock()
	e.state = RunDiscover
	if sp.IgnoredNicks == nil {
		sp.IgnoredNicks = make(map[string]bool)
	}
	for nick := range e.ignoredNicks {
		sp.IgnoredNicks[nick] = true
	}
	e.mu.Unlock()
	return sp
}

// awaitReady fans out a bounded wait across sessions, returning the
// nicks that became ready before timeout and those that did not. It
// uses errgroup purely for goroutine lifecycle management: every
// worker always returns a nil error, and results are collected through
// a mutex-guarded slice rather than errgroup's own error aggregation.
func awaitReady(ctx context.Context, timeout time.Duration, sessions []*MakerSession, ready func(*MakerSession) chan struct{}) (responded, timedOut []string) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for _, s := range sessions {
		s := s
		g.Go(func() error {
			select {
			case <-ready(s):
				mu.Lock()
				responded = append(responded, s.Nick)
				mu.Unlock()
			case <-timer.C:
				mu.Lock()
				timedOut = append(timedOut, s.Nick)
				mu.Unlock()
			case <-gctx.Done():
				mu.Lock()
				timedOut = append(timedOut, s.Nick)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return responded, timedOut
}

// startFill opens a session per offer and sends !fill.
func (e *Engine) startFill(offers []peerbook.Offer, cjAmount btcutil.Amount, commitFn func(peerbook.Offer) (podle.Commitment, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, offer := range offers {
		keys, err := wireproto.GenerateKeyPair()
		if err != nil {
			return takerError(ErrOutOfPhase, "failed to generate session keypair", err)
		}
		commitment, err := commitFn(offer)
		if err != nil {
			return takerError(ErrOutOfPhase, "failed to draw PoDLE commitment", err)
		}

		sess := newMakerSession(offer, keys, commitment, e.now())
		e.sessions[offer.MakerNick] = sess

		cmd := wireproto.Command{
			From: e.nick,
			To:   offer.MakerNick,
			Name: "fill",
			Args: []string{
				itoaInt64(offer.OrderID),
				itoaInt64(int64(cjAmount)),
				hex.EncodeToString(keys.Public[:]),
				commitment.HexString(),
			},
		}
		if err := e.transport.Send(cmd); err != nil {
			return takerError(ErrOutOfPhase, "failed to send !fill to "+offer.MakerNick, err)
		}
	}
	return nil
}

// DeliverPubkey records a maker's !pubkey reply.
func (e *Engine) DeliverPubkey(nick string, peerPub *[32]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[nick]
	if !ok {
		return takerError(ErrUnknownSession, "no session tracked for "+nick, nil)
	}
	if sess.State != MakerPendingFill {
		return takerError(ErrOutOfPhase, "unexpected !pubkey from "+nick, nil)
	}
	sess.PeerPub = peerPub
	sess.State = MakerFilled
	close(sess.pubkeyReady)
	return nil
}

// FillPhase runs FILL to completion, retrying with freshly drawn
// makers up to maxMakerReplacementAttempts times when fewer than
// sp.Count respond in time. sp.Count is the overall counterparty
// target and must itself clear peerbook.MinCounterpartyCount; the
// per-round replacement shortfall drawn inside the loop may legitimately
// fall to 1 without reopening that boundary property.
func (e *Engine) FillPhase(ctx context.Context, liveOffers []peerbook.Offer, sp peerbook.SelectionParams, cjAmount btcutil.Amount, commitFn func(peerbook.Offer) (podle.Commitment, error), timeout time.Duration) ([]string, error) {
	if sp.Count < peerbook.MinCounterpartyCount {
		return nil, takerError(ErrInsufficientMakers,
			"counterparty_count must be at least 2, a single counterparty defeats the anonymity set", nil)
	}

	e.mu.Lock()
	e.state = RunFill
	e.mu.Unlock()

	var responded []string
	want := sp.Count

	for attempt := 0; attempt <= e.maxMakerReplacementAttempts; attempt++ {
		needed := want - len(responded)
		if needed <= 0 {
			break
		}
		round := sp
		round.Count = needed
		var selected []peerbook.Offer
		var err error
		if attempt == 0 {
			selected, err = e.Discover(liveOffers, round)
		} else {
			selected, err = e.discoverTopUp(liveOffers, round)
		}
		if err != nil {
			return responded, takerError(ErrInsufficientMakers, "maker discovery failed", err)
		}
		if err := e.startFill(selected, cjAmount, commitFn); err != nil {
			return responded, err
		}

		e.mu.Lock()
		var pending []*MakerSession
		for _, offer := range selected {
			pending = append(pending, e.sessions[offer.MakerNick])
		}
		e.mu.Unlock()

		roundResponded, timedOut := awaitReady(ctx, timeout, pending, func(s *MakerSession) chan struct{} { return s.pubkeyReady })
		responded = append(responded, roundResponded...)

		e.mu.Lock()
		for _, nick := range timedOut {
			e.ignoredNicks[nick] = true
			delete(e.sessions, nick)
		}
		e.mu.Unlock()

		if attempt == e.maxMakerReplacementAttempts && len(responded) < want {
			break
		}
	}

	if len(responded) < want {
		return responded, takerError(ErrInsufficientMakers,
			"fewer makers responded than requested, even after replacement attempts", nil)
	}
	return responded, nil
}

// AuthRequest is what the taker sends for !auth: the PoDLE reveal plus
// the taker's own declared inputs and CJ destination.
type AuthRequest struct {
	Reveal     *podle.Reveal
	TakerUTXOs []wire.OutPoint
	CJAddr     string
}

// StartAuth sends the encrypted !auth command to every filled maker.
func (e *Engine) StartAuth(req AuthRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = RunAuth

	for nick, sess := range e.sessions {
		if sess.State != MakerFilled {
			continue
		}
		plaintext := "auth " + hex.EncodeToString(req.Reveal.P) + " " + hex.EncodeToString(req.Reveal.P2)
		ciphertext, err := wireproto.EncryptCommand(plaintext, sess.PeerPub, sess.Keys.Private)
		if err != nil {
			return takerError(ErrOutOfPhase, "failed to encrypt !auth for "+nick, err)
		}
		cmd := wireproto.Command{From: e.nick, To: nick, Name: "auth", Args: []string{ciphertext}}
		if err := e.transport.Send(cmd); err != nil {
			return takerError(ErrOutOfPhase, "failed to send !auth to "+nick, err)
		}
	}
	return nil
}

// DeliverIOAuth validates and records a maker's !ioauth reply: its bond
// proof (if any) must verify, and every declared UTXO must exist at
// the stated value per the UTXO oracle.
func (e *Engine) DeliverIOAuth(ctx context.Context, nick string, io *IOAuth) error {
	e.mu.Lock()
	sess, ok := e.sessions[nick]
	e.mu.Unlock()
	if !ok {
		return takerError(ErrUnknownSession, "no session tracked for "+nick, nil)
	}
	if sess.State != MakerFilled {
		return takerError(ErrOutOfPhase, "unexpected !ioauth from "+nick, nil)
	}

	if io.Bond != nil {
		height, err := e.backend.CurrentHeight(ctx)
		if err != nil {
			return takerError(ErrUTXOMismatch, "failed to query chain tip for bond check", err)
		}
		if err := io.Bond.Verify(e.nick, nick, uint32(height)); err != nil {
			e.fail(nick)
			return takerError(ErrBondInvalid, "bond proof failed verification for "+nick, err)
		}
	}

	var oracleTotal int64
	for _, outpoint := range io.UTXOs {
		info, err := e.backend.GetUTXO(ctx, outpoint)
		if err != nil {
			e.fail(nick)
			return takerError(ErrUTXOMismatch, "declared utxo not found for "+nick, err)
		}
		oracleTotal += info.Value
	}
	if btcutil.Amount(oracleTotal) != io.TotalIn {
		e.fail(nick)
		return takerError(ErrUTXOMismatch, "declared utxo values do not sum to the stated total for "+nick, nil)
	}

	e.mu.Lock()
	sess.IOAuth = io
	sess.wantSigs = len(io.UTXOs)
	sess.State = MakerAuthed
	close(sess.ioauthReady)
	e.mu.Unlock()
	return nil
}

// AwaitAuths waits for every filled maker to reply with !ioauth.
func (e *Engine) AwaitAuths(ctx context.Context, timeout time.Duration) (responded, timedOut []string) {
	e.mu.Lock()
	var pending []*MakerSession
	for _, sess := range e.sessions {
		if sess.State == MakerFilled {
			pending = append(pending, sess)
		}
	}
	e.mu.Unlock()
	return awaitReady(ctx, timeout, pending, func(s *MakerSession) chan struct{} { return s.ioauthReady })
}

// TxBuildRequest carries the taker's own side of the transaction: its
// declared inputs, CJ destination, and change destination.
type TxBuildRequest struct {
	TakerUTXOs      []wire.OutPoint
	TakerTotalIn    btcutil.Amount
	TakerCJAddr     string
	TakerChangeAddr string
	CJAmount        btcutil.Amount
	FeeTargetBlocks int
}

// estimateVirtualSize estimates a native segwit CoinJoin's vsize:
// every input and output is treated as P2WPKH, the shape every
// participant is expected to use.
func estimateVirtualSize(nInputs, nOutputs int) int {
	dummyPk := make([]byte, txsizes.P2WPKHPkScriptSize)
	txOuts := make([]*wire.TxOut, nOutputs)
	for i := range txOuts {
		txOuts[i] = wire.NewTxOut(0, dummyPk)
	}
	return txsizes.EstimateVirtualSize(0, 0, nInputs, 0, txOuts, 0)
}

// BuildUnsignedTx assembles the unsigned CoinJoin transaction from the
// taker's own inputs/outputs and every authed maker's declared
// io_auth, splitting the network fee evenly across all N+1
// participants and paying each maker its advertised CJ fee out of the
// taker's change, per domain spec §4.4 phase 4.
func (e *Engine) BuildUnsignedTx(ctx context.Context, req TxBuildRequest) (*wire.MsgTx, error) {
	if req.CJAmount < e.dustThreshold {
		return nil, takerError(ErrCJOutputBelowDust, "requested cj_amount is below dust_threshold", nil)
	}

	e.mu.Lock()
	e.state = RunTxBuild
	var authed []*MakerSession
	for _, sess := range e.sessions {
		if sess.State == MakerAuthed {
			authed = append(authed, sess)
		}
	}
	e.mu.Unlock()

	if len(authed) == 0 {
		return nil, takerError(ErrInsufficientMakers, "no authed makers to build a transaction with", nil)
	}

	blocks := req.FeeTargetBlocks
	if blocks == 0 {
		blocks = DefaultFeeTargetBlocks
	}
	feeRate, err := e.backend.EstimateFee(ctx, blocks)
	if err != nil {
		return nil, takerError(ErrOutOfPhase, "failed to estimate fee rate", err)
	}

	nParticipants := len(authed) + 1
	nInputs := len(req.TakerUTXOs)
	nOutputs := 2 // taker CJ out + taker change, before makers' own
	for _, sess := range authed {
		nInputs += len(sess.IOAuth.UTXOs)
		nOutputs += 2
	}
	estVSize := estimateVirtualSize(nInputs, nOutputs)
	totalFee := btcutil.Amount(feeRate * float64(estVSize))
	perParticipantFee := totalFee / btcutil.Amount(nParticipants)

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, outpoint := range req.TakerUTXOs {
		tx.AddTxIn(wire.NewTxIn(&outpoint, nil, nil))
	}

	var totalMakerCJFee btcutil.Amount
	for _, sess := range authed {
		for _, outpoint := range sess.IOAuth.UTXOs {
			tx.AddTxIn(wire.NewTxIn(&outpoint, nil, nil))
		}

		cjPkScript, err := e.pkScriptFor(sess.IOAuth.CJAddr)
		if err != nil {
			return nil, takerError(ErrOutOfPhase, "failed to decode maker cj address for "+sess.Nick, err)
		}
		tx.AddTxOut(wire.NewTxOut(int64(req.CJAmount), cjPkScript))

		realCJFee := btcutil.Amount(sess.Offer.EffectiveFee(int64(req.CJAmount)))
		totalMakerCJFee += realCJFee

		makerChange := sess.IOAuth.TotalIn - req.CJAmount - perParticipantFee + realCJFee
		if makerChange > e.dustThreshold {
			changePkScript, err := e.pkScriptFor(sess.IOAuth.ChangeAddr)
			if err != nil {
				return nil, takerError(ErrOutOfPhase, "failed to decode maker change address for "+sess.Nick, err)
			}
			tx.AddTxOut(wire.NewTxOut(int64(makerChange), changePkScript))
		}
	}

	takerCJPkScript, err := e.pkScriptFor(req.TakerCJAddr)
	if err != nil {
		return nil, takerError(ErrOutOfPhase, "failed to decode taker cj address", err)
	}
	tx.AddTxOut(wire.NewTxOut(int64(req.CJAmount), takerCJPkScript))

	takerChange := req.TakerTotalIn - req.CJAmount - perParticipantFee - totalMakerCJFee
	if takerChange > e.dustThreshold {
		changePkScript, err := e.pkScriptFor(req.TakerChangeAddr)
		if err != nil {
			return nil, takerError(ErrOutOfPhase, "failed to decode taker change address", err)
		}
		tx.AddTxOut(wire.NewTxOut(int64(takerChange), changePkScript))
	}

	return tx, nil
}

// StartSign encodes the unsigned transaction and sends it to every
// authed maker as an encrypted !tx command.
func (e *Engine) StartSign(tx *wire.MsgTx) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = RunSign

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return takerError(ErrOutOfPhase, "failed to serialize unsigned transaction", err)
	}
	rawHex := hex.EncodeToString(buf.Bytes())

	for nick, sess := range e.sessions {
		if sess.State != MakerAuthed {
			continue
		}
		ciphertext, err := wireproto.EncryptCommand("tx "+rawHex, sess.PeerPub, sess.Keys.Private)
		if err != nil {
			return takerError(ErrOutOfPhase, "failed to encrypt !tx for "+nick, err)
		}
		cmd := wireproto.Command{From: e.nick, To: nick, Name: "tx", Args: []string{ciphertext}}
		if err := e.transport.Send(cmd); err != nil {
			return takerError(ErrOutOfPhase, "failed to send !tx to "+nick, err)
		}
	}
	return nil
}

// DeliverSig records one input's signature from a maker's !sig reply.
// Once every input that maker declared in io_auth has a signature, its
// session transitions to SIGNED.
func (e *Engine) DeliverSig(nick string, inputIndex int, sig []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[nick]
	if !ok {
		return takerError(ErrUnknownSession, "no session tracked for "+nick, nil)
	}
	if sess.State != MakerAuthed {
		return takerError(ErrOutOfPhase, "unexpected !sig from "+nick, nil)
	}

	sess.Sigs[inputIndex] = sig
	if len(sess.Sigs) >= sess.wantSigs {
		sess.State = MakerSigned
		close(sess.sigsReady)
	}
	return nil
}

// AwaitSigs waits for every authed maker to return signatures for all
// of its declared inputs.
func (e *Engine) AwaitSigs(ctx context.Context, timeout time.Duration) (responded, timedOut []string) {
	e.mu.Lock()
	var pending []*MakerSession
	for _, sess := range e.sessions {
		if sess.State == MakerAuthed {
			pending = append(pending, sess)
		}
	}
	e.mu.Unlock()
	if len(pending) == 0 {
		return nil, nil
	}
	return awaitReady(ctx, timeout, pending, func(s *MakerSession) chan struct{} { return s.sigsReady })
}

// fail marks a session as failed, used whenever a taker-side check
// rejects a maker's reply mid-protocol.
func (e *Engine) fail(nick string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sess, ok := e.sessions[nick]; ok {
		sess.State = MakerFailed
	}
}

// WatchTimeouts runs until ctx is cancelled, periodically failing any
// maker session that has sat short of MakerSigned longer than the
// run's sessionTimeout. A stalled maker otherwise blocks FillPhase's
// replacement loop forever instead of freeing its slot for a fresh
// counterparty. The ticker is swappable so tests can force sweeps
// deterministically instead of waiting out a real interval.
func (e *Engine) WatchTimeouts(ctx context.Context, t ticker.Ticker) {
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.Ticks():
			e.sweepTimedOut(now)
		}
	}
}

func (e *Engine) sweepTimedOut(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for nick, sess := range e.sessions {
		if sess.State == MakerSigned || sess.State == MakerFailed {
			continue
		}
		if now.Sub(sess.CreatedAt) > e.sessionTimeout {
			sess.State = MakerFailed
			log.Warnf("maker %s timed out after %s", nick, e.sessionTimeout)
		}
	}
}

// pkScriptFor decodes addr under the run's chain params and returns
// its pkScript, the same comparison form C6 uses.
func (e *Engine) pkScriptFor(addr string) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, e.chainParams)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(decoded)
}

func itoaInt64(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}
