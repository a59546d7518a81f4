// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wireproto

import "encoding/json"

// ProtocolVersion is the wire protocol version this package speaks.
// A handshake whose peer advertises a different version is rejected.
const ProtocolVersion = 1

// Handshake is the payload carried by a TypeHandshake envelope when two
// peers connect directly (maker<->taker without a directory in
// between).
type Handshake struct {
	ProtoVer     int      `json:"proto-ver"`
	App          string   `json:"app-name"`
	Network      string   `json:"network"`
	Location     string   `json:"location-string"`
	FeatureFlags []string `json:"features"`
}

// DNHandshake is the payload carried by a TypeDNHandshake envelope when
// a peer connects to a directory node. It additionally carries whether
// the directory should relay this peer's presence to others.
type DNHandshake struct {
	ProtoVer     int      `json:"proto-ver"`
	App          string   `json:"app-name"`
	Network      string   `json:"network"`
	Location     string   `json:"location-string"`
	FeatureFlags []string `json:"features"`
	Acceptance   bool     `json:"accepted"`
}

const appName = "cjcore"

// NewHandshake builds an outbound direct-peer handshake for network and
// the local onion/location string.
func NewHandshake(network, location string) Handshake {
	return Handshake{
		ProtoVer: ProtocolVersion,
		App:      appName,
		Network:  network,
		Location: location,
	}
}

// NewDNHandshake builds an outbound directory handshake.
func NewDNHandshake(network, location string) DNHandshake {
	return DNHandshake{
		ProtoVer: ProtocolVersion,
		App:      appName,
		Network:  network,
		Location: location,
	}
}

// EncodeHandshake marshals h into the Line field of a TypeHandshake
// envelope.
func EncodeHandshake(h Handshake) (Envelope, error) {
	body, err := json.Marshal(h)
	if err != nil {
		return Envelope{}, wireError(ErrMalformedEnvelope, "failed to marshal handshake", err)
	}
	return Envelope{Type: TypeHandshake, Line: string(body)}, nil
}

// DecodeHandshake parses env.Line as a Handshake and validates its
// protocol version and network against expectations.
func DecodeHandshake(env Envelope, network string) (Handshake, error) {
	if env.Type != TypeHandshake {
		return Handshake{}, wireError(ErrUnknownType, "not a handshake envelope", nil)
	}
	var h Handshake
	if err := json.Unmarshal([]byte(env.Line), &h); err != nil {
		return Handshake{}, wireError(ErrMalformedEnvelope, "failed to unmarshal handshake", err)
	}
	if h.ProtoVer != ProtocolVersion {
		return Handshake{}, wireError(ErrMalformedEnvelope, "unsupported protocol version", nil)
	}
	if h.Network != network {
		return Handshake{}, wireError(ErrMalformedEnvelope, "network mismatch in handshake", nil)
	}
	return h, nil
}

// EncodeDNHandshake marshals h into the Line field of a TypeDNHandshake
// envelope.
func EncodeDNHandshake(h DNHandshake) (Envelope, error) {
	body, err := json.Marshal(h)
	if err != nil {
		return Envelope{}, wireError(ErrMalformedEnvelope, "failed to marshal directory handshake", err)
	}
	return Envelope{Type: TypeDNHandshake, Line: string(body)}, nil
}

// DecodeDNHandshake parses env.Line as a DNHandshake and validates its
// protocol version and network against expectations.
func DecodeDNHandshake(env Envelope, network string) (DNHandshake, error) {
	if env.Type != TypeDNHandshake {
		return DNHandshake{}, wireError(ErrUnknownType, "not a directory handshake envelope", nil)
	}
	var h DNHandshake
	if err := json.Unmarshal([]byte(env.Line), &h); err != nil {
		return DNHandshake{}, wireError(ErrMalformedEnvelope, "failed to unmarshal directory handshake", err)
	}
	if h.ProtoVer != ProtocolVersion {
		return DNHandshake{}, wireError(ErrMalformedEnvelope, "unsupported protocol version", nil)
	}
	if h.Network != network {
		return DNHandshake{}, wireError(ErrMalformedEnvelope, "network mismatch in directory handshake", nil)
	}
	return h, nil
}
