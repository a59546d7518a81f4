// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command cjbond is an offline helper for the fidelity-bond side of
// the protocol: it mints a new bond certificate from a timelocked
// UTXO's private key, signs a per-trade bond proof from a certificate,
// and inspects a bond proof a maker has advertised. It never touches
// the network or an operator's running wallet; the private keys it
// takes are copy-pasted WIF strings, and every subcommand prints what
// it produces to stdout.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/btcsuite/cjcore/peerbook"
)

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  cjbond create <utxo-wif> <cert-expiry> <txid> <vout> <timelock>")
	fmt.Fprintln(os.Stderr, "  cjbond prove  <cert-wif> <cert-hex> <taker-nick> <maker-nick>")
	fmt.Fprintln(os.Stderr, "  cjbond inspect <bond-proof-hex> <current-height>")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "create":
		runCreate(os.Args[2:])
	case "prove":
		runProve(os.Args[2:])
	case "inspect":
		runInspect(os.Args[2:])
	default:
		usage()
	}
}

// runCreate signs a fresh certificate pubkey with the private key of a
// timelocked UTXO, producing the long-lived half of a fidelity bond.
// The certificate private key is generated here and printed once,
// together with cert_hex; those two are the inputs the prove
// subcommand takes for every later trade.
func runCreate(args []string) {
	if len(args) != 5 {
		usage()
	}

	utxoWIF, err := btcutil.DecodeWIF(args[0])
	if err != nil {
		fatalf("invalid utxo private key: %v", err)
	}

	certExpiry, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		fatalf("invalid cert expiry: %v", err)
	}

	txid, err := chainhash.NewHashFromStr(args[2])
	if err != nil {
		fatalf("invalid txid: %v", err)
	}

	vout, err := strconv.ParseUint(args[3], 10, 32)
	if err != nil {
		fatalf("invalid vout: %v", err)
	}

	timelock, err := strconv.ParseUint(args[4], 10, 32)
	if err != nil {
		fatalf("invalid timelock: %v", err)
	}

	certPriv, err := btcec.NewPrivateKey()
	if err != nil {
		fatalf("generating certificate key: %v", err)
	}

	cert, err := peerbook.NewBondCertificate(
		utxoWIF.PrivKey, certPriv.PubKey().SerializeCompressed(),
		uint16(certExpiry), *txid, uint32(vout), uint32(timelock),
	)
	if err != nil {
		fatalf("signing certificate: %v", err)
	}

	certNet := &chaincfg.MainNetParams
	if !utxoWIF.IsForNet(certNet) {
		certNet = &chaincfg.TestNet3Params
	}
	certWIF, err := btcutil.NewWIF(certPriv, certNet, true)
	if err != nil {
		fatalf("encoding certificate private key: %v", err)
	}

	fmt.Printf("cert_priv_wif:  %s\n", certWIF.String())
	fmt.Printf("cert_hex:       %x\n", encodeCertArg(cert))
	fmt.Printf("cert_expiry:    %d\n", cert.CertExpiry)
	fmt.Printf("txid:           %s\n", cert.Txid)
	fmt.Printf("vout:           %d\n", cert.Vout)
	fmt.Printf("timelock:       %d\n", cert.Timelock)
}

// runProve signs the nick half of a bond proof for one specific trade,
// using an already-minted certificate. cjmaker does not perform this
// step itself: makerengine.HandleAuth takes an already-signed proof
// from its caller.
func runProve(args []string) {
	if len(args) != 4 {
		usage()
	}

	certWIF, err := btcutil.DecodeWIF(args[0])
	if err != nil {
		fatalf("invalid certificate private key: %v", err)
	}

	certBytes, err := hex.DecodeString(args[1])
	if err != nil {
		fatalf("invalid cert hex: %v", err)
	}
	cert, err := parseCertArg(certBytes)
	if err != nil {
		fatalf("invalid cert: %v", err)
	}

	proof, err := cert.Prove(certWIF.PrivKey, args[2], args[3])
	if err != nil {
		fatalf("signing bond proof: %v", err)
	}

	encoded, err := proof.Serialize()
	if err != nil {
		fatalf("serializing bond proof: %v", err)
	}

	fmt.Printf("bond_proof_hex: %x\n", encoded)
}

// runInspect decodes a serialized bond proof and reports its fields
// and expiry status, without needing the nick pair it was signed for.
func runInspect(args []string) {
	if len(args) != 2 {
		usage()
	}

	raw, err := hex.DecodeString(args[0])
	if err != nil {
		fatalf("invalid bond proof hex: %v", err)
	}

	height, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fatalf("invalid current height: %v", err)
	}

	proof, err := peerbook.ParseBondProof(raw)
	if err != nil {
		fatalf("parsing bond proof: %v", err)
	}

	fmt.Printf("cert_pubkey: %x\n", proof.CertPubKey)
	fmt.Printf("cert_expiry: %d\n", proof.CertExpiry)
	fmt.Printf("utxo_pubkey: %x\n", proof.UtxoPubKey)
	fmt.Printf("txid:        %s\n", proof.Txid)
	fmt.Printf("vout:        %d\n", proof.Vout)
	fmt.Printf("timelock:    %d\n", proof.Timelock)
	fmt.Printf("expired:     %v\n", proof.Expired(uint32(height)))
}

// certArg is the wire form runCreate prints for a BondCertificate,
// reparsed here so runProve can take it back as a single hex blob
// instead of six separate flags.
type certArg = peerbook.BondCertificate

// encodeCertArg lays out a BondCertificate the same way parseCertArg
// expects to read it back: CertPubKey(33) || UtxoPubKey(33) ||
// CertExpiry(2) || Txid(32) || Vout(4) || Timelock(4) || CertSig.
func encodeCertArg(c certArg) []byte {
	out := make([]byte, 0, 33+33+2+32+4+4+len(c.CertSig))
	out = append(out, c.CertPubKey...)
	out = append(out, c.UtxoPubKey...)
	out = append(out, byte(c.CertExpiry>>8), byte(c.CertExpiry))
	out = append(out, c.Txid[:]...)
	out = append(out, byte(c.Vout>>24), byte(c.Vout>>16), byte(c.Vout>>8), byte(c.Vout))
	out = append(out, byte(c.Timelock>>24), byte(c.Timelock>>16), byte(c.Timelock>>8), byte(c.Timelock))
	out = append(out, c.CertSig...)
	return out
}

// parseCertArg decodes the hex blob printed by "cjbond create" back
// into a BondCertificate. It is the layout encodeCertArg writes:
// CertPubKey(33) || UtxoPubKey(33) || CertExpiry(2) || Txid(32) ||
// Vout(4) || Timelock(4), integers big-endian, followed by the
// variable-length DER CertSig.
func parseCertArg(data []byte) (certArg, error) {
	const fixed = 33 + 33 + 2 + 32 + 4 + 4
	if len(data) < fixed {
		return certArg{}, fmt.Errorf("certificate blob too short")
	}

	off := 0
	certPub := data[off : off+33]
	off += 33
	utxoPub := data[off : off+33]
	off += 33
	certExpiry := uint16(data[off])<<8 | uint16(data[off+1])
	off += 2
	var txid chainhash.Hash
	copy(txid[:], data[off:off+32])
	off += 32
	vout := uint32(data[off])<<24 | uint32(data[off+1])<<16 | uint32(data[off+2])<<8 | uint32(data[off+3])
	off += 4
	timelock := uint32(data[off])<<24 | uint32(data[off+1])<<16 | uint32(data[off+2])<<8 | uint32(data[off+3])
	off += 4
	certSig := data[off:]

	return certArg{
		CertPubKey: append([]byte(nil), certPub...),
		CertSig:    append([]byte(nil), certSig...),
		CertExpiry: certExpiry,
		UtxoPubKey: append([]byte(nil), utxoPub...),
		Txid:       txid,
		Vout:       vout,
		Timelock:   timelock,
	}, nil
}
