// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peerbook

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BondProofSize is the fixed on-wire size of a fidelity bond proof.
const BondProofSize = 72 + 72 + 33 + 2 + 33 + 32 + 4 + 4

// derSigFieldSize is the fixed width each of the two DER signatures is
// padded to. The DER header byte 0x30 never appears as a 0xff pad byte,
// which is what makes stripping the padding unambiguous.
const derSigFieldSize = 72

// retargetPeriodBlocks is the number of blocks in one difficulty
// retarget period; cert_expiry is expressed in units of this.
const retargetPeriodBlocks = 2016

// BondProof is a parsed fidelity bond advertisement: proof that a
// maker controls a timelocked UTXO, used to weight maker selection and
// to gate which UTXOs a maker may ever offer as CoinJoin inputs (a
// bonded UTXO must never be spent inside a CoinJoin — see C5's P2WSH
// refusal rule).
type BondProof struct {
	NickSig     []byte // signature over the nick, by CertPubKey
	CertSig     []byte // signature over (CertPubKey || CertExpiry), by UtxoPubKey
	CertPubKey  []byte // 33-byte compressed pubkey, the short-lived certificate
	CertExpiry  uint16 // absolute difficulty-retarget period number
	UtxoPubKey  []byte // 33-byte compressed pubkey, controls the bonded UTXO
	Txid        chainhash.Hash
	Vout        uint32
	Timelock    uint32
}

// padDER left-pads a DER signature with 0xff to derSigFieldSize bytes.
func padDER(sig []byte) ([]byte, error) {
	if len(sig) > derSigFieldSize {
		return nil, bookError(ErrBondMalformed, "DER signature longer than field width", nil)
	}
	out := make([]byte, derSigFieldSize)
	for i := range out {
		out[i] = 0xff
	}
	copy(out[derSigFieldSize-len(sig):], sig)
	return out, nil
}

// stripDERPad removes the 0xff left-padding from a fixed-width
// signature field, locating the DER header byte 0x30 which never
// collides with the 0xff pad value.
func stripDERPad(field []byte) ([]byte, error) {
	for i, b := range field {
		if b == 0x30 {
			return field[i:], nil
		}
	}
	return nil, bookError(ErrBondMalformed, "no DER header found in signature field", nil)
}

// Serialize encodes a BondProof to its fixed 252-byte wire form.
func (b BondProof) Serialize() ([]byte, error) {
	nickSig, err := padDER(b.NickSig)
	if err != nil {
		return nil, err
	}
	certSig, err := padDER(b.CertSig)
	if err != nil {
		return nil, err
	}
	if len(b.CertPubKey) != 33 || len(b.UtxoPubKey) != 33 {
		return nil, bookError(ErrBondMalformed, "pubkey fields must be 33 bytes compressed", nil)
	}

	out := make([]byte, 0, BondProofSize)
	out = append(out, nickSig...)
	out = append(out, certSig...)
	out = append(out, b.CertPubKey...)
	out = binary.LittleEndian.AppendUint16(out, b.CertExpiry)
	out = append(out, b.UtxoPubKey...)
	out = append(out, b.Txid[:]...)
	out = binary.LittleEndian.AppendUint32(out, b.Vout)
	out = binary.LittleEndian.AppendUint32(out, b.Timelock)

	if len(out) != BondProofSize {
		return nil, bookError(ErrBondMalformed, "serialized bond proof has wrong length", nil)
	}
	return out, nil
}

// ParseBondProof decodes a 252-byte wire record into a BondProof.
func ParseBondProof(data []byte) (BondProof, error) {
	if len(data) != BondProofSize {
		return BondProof{}, bookError(ErrBondMalformed, "bond proof must be exactly 252 bytes", nil)
	}

	off := 0
	nickSigField := data[off : off+derSigFieldSize]
	off += derSigFieldSize
	certSigField := data[off : off+derSigFieldSize]
	off += derSigFieldSize
	certPub := data[off : off+33]
	off += 33
	certExpiry := binary.LittleEndian.Uint16(data[off : off+2])
	off += 2
	utxoPub := data[off : off+33]
	off += 33
	txidBytes := data[off : off+32]
	off += 32
	vout := binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	timelock := binary.LittleEndian.Uint32(data[off : off+4])

	nickSig, err := stripDERPad(nickSigField)
	if err != nil {
		return BondProof{}, err
	}
	certSig, err := stripDERPad(certSigField)
	if err != nil {
		return BondProof{}, err
	}

	var txid chainhash.Hash
	copy(txid[:], txidBytes)

	return BondProof{
		NickSig:    nickSig,
		CertSig:    certSig,
		CertPubKey: append([]byte(nil), certPub...),
		CertExpiry: certExpiry,
		UtxoPubKey: append([]byte(nil), utxoPub...),
		Txid:       txid,
		Vout:       vout,
		Timelock:   timelock,
	}, nil
}

// Expired reports whether the bond's certificate has elapsed as of
// currentHeight. cert_expiry is an absolute retarget-period number:
// the bond is valid only while currentHeight < cert_expiry * 2016.
func (b BondProof) Expired(currentHeight uint32) bool {
	return uint64(currentHeight) >= uint64(b.CertExpiry)*retargetPeriodBlocks
}

// certMessagePrefix and bitcoinSignedMessagePrefix reproduce the exact
// byte strings the reference implementation signs over, recovered from
// its own cross-implementation compatibility test: the certificate
// signature covers "fidelity-bond-cert|<cert_pubkey>|<decimal expiry>"
// and the nick signature covers "<taker_nick>|<maker_nick>", both
// hashed under Bitcoin's varint-length-prefixed message-signing
// convention rather than a bare sha256/sha256d of the fields.
const certMessagePrefix = "fidelity-bond-cert|"

// certMessage builds the certificate signature's signed message with
// cert_pub encoded as raw bytes, the form every certificate this
// package mints itself uses.
func certMessage(certPub []byte, certExpiry uint16) []byte {
	msg := []byte(certMessagePrefix)
	msg = append(msg, certPub...)
	msg = append(msg, '|')
	msg = append(msg, []byte(strconv.Itoa(int(certExpiry)))...)
	return msg
}

// certMessageASCII builds the same message with cert_pub hex-encoded
// as ASCII text instead of embedded as raw bytes. Cold-storage and
// hardware-wallet signers (the reference implementation calls out
// Sparrow specifically) sign the hex string because their message-
// signing UIs work on displayable text, not arbitrary binary; the
// reference implementation accepts either form for exactly this
// reason.
func certMessageASCII(certPub []byte, certExpiry uint16) []byte {
	msg := []byte(certMessagePrefix)
	msg = append(msg, []byte(hex.EncodeToString(certPub))...)
	msg = append(msg, '|')
	msg = append(msg, []byte(strconv.Itoa(int(certExpiry)))...)
	return msg
}

const bitcoinSignedMessagePrefix = "\x18Bitcoin Signed Message:\n"

// bitcoinMessageHash reproduces Bitcoin's message-signing digest:
// double-sha256 of the fixed prefix, a CompactSize length prefix, and
// the message itself.
func bitcoinMessageHash(message []byte) []byte {
	var varint []byte
	n := len(message)
	switch {
	case n < 253:
		varint = []byte{byte(n)}
	case n < 0x10000:
		varint = append([]byte{0xfd}, byte(n), byte(n>>8))
	default:
		varint = append([]byte{0xfe}, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	}

	full := make([]byte, 0, len(bitcoinSignedMessagePrefix)+len(varint)+n)
	full = append(full, bitcoinSignedMessagePrefix...)
	full = append(full, varint...)
	full = append(full, message...)

	first := chainhash.HashB(full)
	return chainhash.HashB(first)
}

// Verify checks both signatures in the bond's certificate chain:
// CertSig must be UtxoPubKey's signature over
// "fidelity-bond-cert|<cert_pubkey>|<decimal cert_expiry>", and
// NickSig must be CertPubKey's signature over
// "<takerNick>|<makerNick>" — the nick binding bonds the proof to
// both sides of the trade, not just the advertising maker.
// currentHeight gates the certificate's expiry. The certificate
// signature is accepted against either the binary or the ASCII
// hex-encoded form of cert_pub, since a certificate signed by
// cold-storage or hardware-wallet software may only have been able to
// sign the hex text.
func (b BondProof) Verify(takerNick, makerNick string, currentHeight uint32) error {
	if b.Expired(currentHeight) {
		return bookError(ErrBondExpired, "bond certificate has expired", nil)
	}

	utxoPub, err := btcec.ParsePubKey(b.UtxoPubKey)
	if err != nil {
		return bookError(ErrBondInvalid, "invalid utxo pubkey", err)
	}
	certPub, err := btcec.ParsePubKey(b.CertPubKey)
	if err != nil {
		return bookError(ErrBondInvalid, "invalid cert pubkey", err)
	}

	certSig, err := ecdsa.ParseDERSignature(b.CertSig)
	if err != nil {
		return bookError(ErrBondInvalid, "invalid cert signature encoding", err)
	}
	nickSig, err := ecdsa.ParseDERSignature(b.NickSig)
	if err != nil {
		return bookError(ErrBondInvalid, "invalid nick signature encoding", err)
	}

	binaryDigest := bitcoinMessageHash(certMessage(b.CertPubKey, b.CertExpiry))
	asciiDigest := bitcoinMessageHash(certMessageASCII(b.CertPubKey, b.CertExpiry))
	if !certSig.Verify(binaryDigest, utxoPub) && !certSig.Verify(asciiDigest, utxoPub) {
		return bookError(ErrBondInvalid, "certificate signature does not verify against utxo pubkey", nil)
	}

	nickMsg := []byte(takerNick + "|" + makerNick)
	nickDigest := bitcoinMessageHash(nickMsg)
	if !nickSig.Verify(nickDigest, certPub) {
		return bookError(ErrBondInvalid, "nick signature does not verify against cert pubkey", nil)
	}

	return nil
}

// BondCertificate is the long-lived half of a fidelity bond: one
// signature, made by the key controlling a timelocked UTXO, binding a
// short-lived certificate key until CertExpiry. A maker holds onto its
// certificate and mints a fresh BondProof per trade by signing the
// specific taker/maker nick pair with the certificate key, so the
// expensive UTXO-key signature is made once, not on every !auth.
type BondCertificate struct {
	UtxoPubKey []byte
	CertPubKey []byte
	CertExpiry uint16
	CertSig    []byte
	Txid       chainhash.Hash
	Vout       uint32
	Timelock   uint32
}

// NewBondCertificate signs a certificate pubkey with the private key
// controlling a timelocked UTXO, producing the long-lived half of a
// fidelity bond. certExpiry is an absolute retarget-period number, as
// in BondProof.Expired.
func NewBondCertificate(utxoPriv *btcec.PrivateKey, certPub []byte, certExpiry uint16, txid chainhash.Hash, vout, timelock uint32) (BondCertificate, error) {
	if len(certPub) != 33 {
		return BondCertificate{}, bookError(ErrBondMalformed, "cert pubkey must be 33 bytes compressed", nil)
	}

	certDigest := bitcoinMessageHash(certMessage(certPub, certExpiry))

	sig := ecdsa.Sign(utxoPriv, certDigest)

	return BondCertificate{
		UtxoPubKey: utxoPriv.PubKey().SerializeCompressed(),
		CertPubKey: append([]byte(nil), certPub...),
		CertExpiry: certExpiry,
		CertSig:    sig.Serialize(),
		Txid:       txid,
		Vout:       vout,
		Timelock:   timelock,
	}, nil
}

// Prove signs a fresh BondProof binding this certificate to one
// specific taker/maker nick pair, using the certificate's own private
// key. Call this for every !auth response; the certificate itself is
// reused until CertExpiry.
func (c BondCertificate) Prove(certPriv *btcec.PrivateKey, takerNick, makerNick string) (BondProof, error) {
	if !bytes.Equal(c.CertPubKey, certPriv.PubKey().SerializeCompressed()) {
		return BondProof{}, bookError(ErrBondInvalid, "certificate private key does not match CertPubKey", nil)
	}

	nickMsg := []byte(takerNick + "|" + makerNick)
	nickDigest := bitcoinMessageHash(nickMsg)
	nickSig := ecdsa.Sign(certPriv, nickDigest)

	return BondProof{
		NickSig:    nickSig.Serialize(),
		CertSig:    c.CertSig,
		CertPubKey: c.CertPubKey,
		CertExpiry: c.CertExpiry,
		UtxoPubKey: c.UtxoPubKey,
		Txid:       c.Txid,
		Vout:       c.Vout,
		Timelock:   c.Timelock,
	}, nil
}

// ScoreFunc scores a bond proof for maker-selection weighting. It is a
// pluggable collaborator (domain spec §9, "Dynamic dispatch"): the
// fidelity-bond economics themselves are out of scope, only the shape
// of the function is specified here.
type ScoreFunc func(proof BondProof, currentHeight uint32) float64
