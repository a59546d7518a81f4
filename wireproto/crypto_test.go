// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wireproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptCommandRoundTrip(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	plaintext := "auth 0123456789abcdef signature"
	ciphertext, err := EncryptCommand(plaintext, bob.Public, alice.Private)
	require.NoError(t, err)

	got, err := DecryptCommand(ciphertext, alice.Public, bob.Private)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptCommandFailsForWrongKey(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)
	mallory, err := GenerateKeyPair()
	require.NoError(t, err)

	ciphertext, err := EncryptCommand("tx deadbeef", bob.Public, alice.Private)
	require.NoError(t, err)

	_, err = DecryptCommand(ciphertext, alice.Public, mallory.Private)
	require.Error(t, err)
	var wireErr Error
	require.ErrorAs(t, err, &wireErr)
	require.Equal(t, ErrDecryptFailed, wireErr.ErrorCode)
}

func TestDecryptCommandRejectsTruncatedCiphertext(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = DecryptCommand("dG9vc2hvcnQ=", alice.Public, bob.Private)
	require.Error(t, err)
	var wireErr Error
	require.ErrorAs(t, err, &wireErr)
	require.Equal(t, ErrDecryptFailed, wireErr.ErrorCode)
}
