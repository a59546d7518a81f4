// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wireproto

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// DialTimeout bounds how long a single connection attempt (direct or
// through Tor) may take before it is abandoned.
const DialTimeout = 30 * time.Second

// Dialer opens connections to peer or directory addresses, routing
// .onion addresses (and everything else, when configured to) through a
// local Tor SOCKS5 proxy.
type Dialer struct {
	socksProxy string
	forceTor   bool
}

// NewDialer builds a Dialer. socksProxy is a "host:port" address for a
// local Tor SOCKS5 proxy; forceTor routes every connection through it,
// not just .onion addresses.
func NewDialer(socksProxy string, forceTor bool) *Dialer {
	return &Dialer{socksProxy: socksProxy, forceTor: forceTor}
}

// DialContext connects to addr, routing through Tor when addr is a
// .onion host or the dialer is configured to force Tor for everything.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.forceTor || isOnionAddr(addr) {
		return d.dialViaTor(ctx, network, addr)
	}
	direct := &net.Dialer{Timeout: DialTimeout}
	return direct.DialContext(ctx, network, addr)
}

func (d *Dialer) dialViaTor(ctx context.Context, network, addr string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	socksDialer, err := proxy.SOCKS5("tcp", d.socksProxy, nil, proxy.Direct)
	if err != nil {
		return nil, wireError(ErrMalformedEnvelope, "failed to construct SOCKS5 dialer", err)
	}

	type contextDialer interface {
		DialContext(ctx context.Context, network, addr string) (net.Conn, error)
	}
	if cd, ok := socksDialer.(contextDialer); ok {
		conn, err := cd.DialContext(ctx, network, addr)
		if err != nil {
			return nil, wireError(ErrMalformedEnvelope, "tor dial failed", err)
		}
		return conn, nil
	}

	conn, err := socksDialer.Dial(network, addr)
	if err != nil {
		return nil, wireError(ErrMalformedEnvelope, "tor dial failed", err)
	}
	return conn, nil
}

func isOnionAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	const suffix = ".onion"
	if len(host) <= len(suffix) {
		return false
	}
	return host[len(host)-len(suffix):] == suffix
}
