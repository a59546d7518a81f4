// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wireproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsOnionAddr(t *testing.T) {
	require.True(t, isOnionAddr("abc123def456.onion:5222"))
	require.True(t, isOnionAddr("abc123def456.onion"))
	require.False(t, isOnionAddr("192.168.1.1:5222"))
	require.False(t, isOnionAddr("example.com:443"))
}

func TestNewDialerDefaults(t *testing.T) {
	d := NewDialer("127.0.0.1:9050", false)
	require.Equal(t, "127.0.0.1:9050", d.socksProxy)
	require.False(t, d.forceTor)
}
