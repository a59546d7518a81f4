// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cjbackend

import (
	"errors"

	"github.com/btcsuite/cjcore/wireproto"
)

// ErrTransportNotConfigured is returned by UnconfiguredTransport.Send.
var ErrTransportNotConfigured = errors.New("no message channel transport configured")

// UnconfiguredTransport satisfies both takerengine.Transport and
// makerengine's implicit sender contract by refusing every send. The
// directory-server and message-channel implementation are explicitly
// out of this repository's scope; a real deployment supplies a
// transport that speaks the onion message-channel protocol described
// in the domain spec's C2 module.
type UnconfiguredTransport struct{}

func (UnconfiguredTransport) Send(cmd wireproto.Command) error {
	return ErrTransportNotConfigured
}
