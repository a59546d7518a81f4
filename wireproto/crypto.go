// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wireproto

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/nacl/box"
)

// KeyPair is an ephemeral NaCl box keypair generated fresh for each
// taker<->maker session (domain spec §3, "NaCl keypair for this
// session").
type KeyPair struct {
	Public  *[32]byte
	Private *[32]byte
}

// GenerateKeyPair draws a new X25519 keypair for a session.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, wireError(ErrMalformedEnvelope, "failed to generate session keypair", err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// EncryptCommand NaCl-boxes a plaintext command for peerPub using our
// session private key, and base64-encodes the result the way the "args"
// field of an encrypted application command carries it.
func EncryptCommand(plaintext string, peerPub, ourPriv *[32]byte) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", wireError(ErrMalformedEnvelope, "failed to draw nonce", err)
	}
	sealed := box.Seal(nonce[:], []byte(plaintext), &nonce, peerPub, ourPriv)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptCommand reverses EncryptCommand. It returns ErrDecryptFailed if
// the box fails to open, which covers both tampering and a message
// addressed using the wrong session keys.
func DecryptCommand(encoded string, peerPub, ourPriv *[32]byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", wireError(ErrMalformedEnvelope, "failed to base64-decode ciphertext", err)
	}
	if len(raw) < 24 {
		return "", wireError(ErrDecryptFailed, "ciphertext shorter than nonce", nil)
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])

	plaintext, ok := box.Open(nil, raw[24:], &nonce, peerPub, ourPriv)
	if !ok {
		return "", wireError(ErrDecryptFailed, "NaCl box failed to open", nil)
	}
	return string(plaintext), nil
}
