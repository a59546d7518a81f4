// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wireproto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// DirectOnionHostID is the hostid bound into signed plaintext for
// messages exchanged over a direct (non-directory) peer channel.
const DirectOnionHostID = "onion-network"

// SignPlaintext builds the binding plaintext `hostid || command || " " ||
// args` and signs it, returning the wire-appended form "<pubkey>
// <signature>" that every private application message carries. hostid
// must be the directory's onion address when routed through a
// directory, or DirectOnionHostID for a direct peer channel: this
// binding is what makes replaying a captured message on a different
// channel fail (domain spec §4.2, Scenario 5).
func SignPlaintext(hostid, command, args string, priv *btcec.PrivateKey) (string, error) {
	plaintext := bindingPlaintext(hostid, command, args)
	digest := sha256.Sum256([]byte(plaintext))

	sig := ecdsa.Sign(priv, digest[:])
	sigHex := hex.EncodeToString(sig.Serialize())
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	return pubHex + " " + sigHex, nil
}

// VerifySignature checks a "<pubkey> <signature>" suffix against the
// binding plaintext for hostid/command/args, returning the signer's
// parsed public key on success.
func VerifySignature(hostid, command, args, sigSuffix string) (*btcec.PublicKey, error) {
	fields := strings.Fields(sigSuffix)
	if len(fields) != 2 {
		return nil, wireError(ErrMalformedEnvelope, "signature suffix must be '<pubkey> <sig>'", nil)
	}

	pubBytes, err := hex.DecodeString(fields[0])
	if err != nil {
		return nil, wireError(ErrMalformedEnvelope, "invalid pubkey hex", err)
	}
	sigBytes, err := hex.DecodeString(fields[1])
	if err != nil {
		return nil, wireError(ErrMalformedEnvelope, "invalid signature hex", err)
	}

	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return nil, wireError(ErrMalformedEnvelope, "invalid pubkey", err)
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return nil, wireError(ErrMalformedEnvelope, "invalid DER signature", err)
	}

	plaintext := bindingPlaintext(hostid, command, args)
	digest := sha256.Sum256([]byte(plaintext))

	if !sig.Verify(digest[:], pub) {
		return nil, wireError(ErrReplay, "signature does not verify against bound hostid", nil)
	}
	return pub, nil
}

func bindingPlaintext(hostid, command, args string) string {
	return fmt.Sprintf("%s%s %s", hostid, command, args)
}
