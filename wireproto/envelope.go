// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wireproto implements the CoinJoin coordination wire format (C2):
// JSON-line envelope framing, anti-replay signing, NaCl box encryption,
// and the multi-channel/multi-directory deduplication rules a taker or
// maker process needs when attached to more than one directory.
package wireproto

import (
	"bytes"
	"encoding/json"

	"github.com/davecgh/go-spew/spew"
)

// MessageType is one of the nine envelope types the directory/peer wire
// protocol recognizes.
type MessageType int

// The fixed set of envelope type codes. These values are wire-visible
// and must never change.
const (
	TypePrivMsg      MessageType = 685
	TypePubMsg       MessageType = 687
	TypePeerList     MessageType = 789
	TypeGetPeerList  MessageType = 791
	TypeHandshake    MessageType = 793
	TypeDNHandshake  MessageType = 795
	TypePing         MessageType = 797
	TypePong         MessageType = 799
	TypeDisconnect   MessageType = 801
)

var validTypes = map[MessageType]bool{
	TypePrivMsg: true, TypePubMsg: true, TypePeerList: true,
	TypeGetPeerList: true, TypeHandshake: true, TypeDNHandshake: true,
	TypePing: true, TypePong: true, TypeDisconnect: true,
}

const (
	// maxLineBytes bounds a single wire line, checked before any JSON
	// parsing is attempted.
	maxLineBytes = 64 * 1024

	// maxMessageBytes bounds the decoded envelope as a whole.
	maxMessageBytes = 2 * 1024 * 1024

	// maxJSONDepth bounds brace/bracket nesting in the envelope JSON.
	maxJSONDepth = 10
)

// Envelope is the outermost wire object: a single UTF-8 line terminated
// by "\r\n", carrying a message type code and an opaque application
// payload line.
type Envelope struct {
	Type MessageType `json:"type"`
	Line string      `json:"line"`
}

// Encode serializes an envelope to its wire line, including the
// terminating "\r\n". It returns ErrOversizeMessage if the result would
// exceed maxMessageBytes.
func Encode(env Envelope) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, wireError(ErrMalformedEnvelope, "failed to marshal envelope", err)
	}
	if len(body) > maxMessageBytes {
		return nil, wireError(ErrOversizeMessage, "encoded envelope exceeds size bound", nil)
	}
	out := make([]byte, 0, len(body)+2)
	out = append(out, body...)
	out = append(out, '\r', '\n')
	return out, nil
}

// Decode parses a single wire line (without its trailing "\r\n") into an
// Envelope, enforcing the size and nesting bounds in §4.2 of the domain
// spec *before* attempting to unmarshal. Violations of any bound close
// the connection in the caller's view: Decode never partially trusts an
// oversize or over-nested line.
func Decode(line []byte) (Envelope, error) {
	if len(line) > maxLineBytes {
		return Envelope{}, wireError(ErrOversizeLine, "line exceeds maximum line length", nil)
	}
	if err := checkNestingDepth(line, maxJSONDepth); err != nil {
		return Envelope{}, err
	}

	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		log.Debugf("rejected envelope line: %s", spew.Sdump(line))
		return Envelope{}, wireError(ErrMalformedEnvelope, "failed to unmarshal envelope", err)
	}
	if !validTypes[env.Type] {
		return Envelope{}, wireError(ErrUnknownType, "unrecognized envelope type", nil)
	}
	if len(line) > maxMessageBytes {
		return Envelope{}, wireError(ErrOversizeMessage, "envelope exceeds size bound", nil)
	}
	return env, nil
}

// checkNestingDepth performs a single pass over raw JSON bytes, tracking
// brace/bracket depth while respecting string literals and escapes, and
// fails fast once depth exceeds max. This lets the size/nesting checks
// run before a full decode allocates the program's trust in the input.
func checkNestingDepth(data []byte, max int) error {
	depth := 0
	inString := false
	escaped := false

	for _, b := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > max {
				return wireError(ErrNestingTooDeep, "JSON nesting exceeds maximum depth", nil)
			}
		case '}', ']':
			depth--
		}
	}
	return nil
}
