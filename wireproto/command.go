// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wireproto

import "strings"

// PublicRecipient is the "to" field used for broadcast commands such as
// !orderbook, matching the reference protocol's "PUBLIC" sentinel.
const PublicRecipient = "PUBLIC"

// Command is a parsed application payload: the "{from}!{to}!{command}
// [arg1] [arg2] ..." shape carried inside an Envelope's Line field.
// Fields are always joined and split on a single space, never on a run
// of whitespace, so empty arguments are preserved; an argument that
// itself contains a space comes back from ParseCommand as several.
type Command struct {
	From    string
	To      string
	Name    string
	Args    []string
}

// FormatCommand renders a Command back to its wire form.
func FormatCommand(c Command) string {
	var b strings.Builder
	b.WriteString(c.From)
	b.WriteByte('!')
	b.WriteString(c.To)
	b.WriteByte('!')
	b.WriteString(c.Name)
	for _, a := range c.Args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return b.String()
}

// ParseCommand splits an application payload line into its from/to/rest
// components, then the rest into a command name and single-space
// separated arguments.
//
// Encrypted commands (those in the encryptedCommands set) must decrypt
// to a single command with no further "!"-splitting; ParseCommand itself
// is agnostic to encryption: it is called on the cleartext envelope to
// recover from/to, and the decrypted plaintext, which carries no "!"
// separators, is parsed by ParsePlaintextCommand instead.
func ParseCommand(line string) (Command, error) {
	firstBang := strings.IndexByte(line, '!')
	if firstBang < 0 {
		return Command{}, wireError(ErrMalformedEnvelope, "missing from!to!command separators", nil)
	}
	rest := line[firstBang+1:]
	secondBang := strings.IndexByte(rest, '!')
	if secondBang < 0 {
		return Command{}, wireError(ErrMalformedEnvelope, "missing from!to!command separators", nil)
	}

	from := line[:firstBang]
	to := rest[:secondBang]
	payload := rest[secondBang+1:]

	fields := strings.Split(payload, " ")
	if len(fields) == 0 || fields[0] == "" {
		return Command{}, wireError(ErrMalformedEnvelope, "missing command name", nil)
	}

	return Command{
		From: from,
		To:   to,
		Name: fields[0],
		Args: fields[1:],
	}, nil
}

// encryptedCommands is the fixed set of application commands that travel
// NaCl-boxed rather than in clear, per §4.2 of the domain spec.
var encryptedCommands = map[string]bool{
	"auth":  true,
	"ioauth": true,
	"tx":    true,
	"sig":   true,
}

// IsEncryptedCommand reports whether a command name is required to
// travel encrypted.
func IsEncryptedCommand(name string) bool {
	return encryptedCommands[name]
}

// ParsePlaintextCommand parses a decrypted payload that is known to
// contain exactly one command (no "!"-splitting), as required for every
// encrypted command.
func ParsePlaintextCommand(plaintext string) (name string, args []string, err error) {
	fields := strings.Split(plaintext, " ")
	if len(fields) == 0 || fields[0] == "" {
		return "", nil, wireError(ErrMalformedEnvelope, "empty decrypted command", nil)
	}
	return fields[0], fields[1:], nil
}
