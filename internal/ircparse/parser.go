// Package ircparse contains pure functions for decomposing raw IRC
// protocol lines into structured data.
//
// The parser deliberately keeps params as verbatim space-split tokens: a
// trailing multi-word parameter is not rejoined here. Callers that need
// the trailing text (PRIVMSG content, NAMES payload) re-derive it from
// the raw line, which preserves the original byte-for-byte content.
package ircparse

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/gehchat/bridge/internal/protocol"
)

// EncryptedPlaceholder replaces the displayed content of a message whose
// payload is an encrypted envelope. Decryption is the client's job.
const EncryptedPlaceholder = "[Encrypted message]"

// Line is a parsed IRC protocol line.
type Line struct {
	Prefix  string
	Command string
	Params  []string
	Raw     string
}

// PrivateMessage is the decomposition of a PRIVMSG line.
type PrivateMessage struct {
	Sender      string
	Target      string
	Content     string
	IsEncrypted bool
	Encrypted   *protocol.EncryptedEnvelope
}

// ParseLine splits a raw IRC line into prefix, command and params.
// Returns nil for lines with fewer than two tokens; this is a recoverable
// parse miss, not an error.
func ParseLine(line string) *Line {
	parts := strings.Split(line, " ")
	if len(parts) < 2 {
		return nil
	}

	if strings.HasPrefix(parts[0], ":") {
		return &Line{
			Prefix:  parts[0][1:],
			Command: parts[1],
			Params:  parts[2:],
			Raw:     line,
		}
	}
	return &Line{
		Command: parts[0],
		Params:  parts[1:],
		Raw:     line,
	}
}

// ExtractSender returns the nickname portion of a nick!user@host prefix.
// A prefix without "!" is returned unchanged.
func ExtractSender(prefix string) string {
	if idx := strings.Index(prefix, "!"); idx >= 0 {
		return prefix[:idx]
	}
	return prefix
}

// ParseNamesList extracts the user list from a NAMES reply (353). The
// payload is the text after the second ":" in the raw line; each entry is
// stripped of leading @ (op) and + (voice) membership markers, and
// entries that become empty are dropped.
func ParseNamesList(rawLine string) []string {
	parts := strings.SplitN(rawLine, ":", 3)
	if len(parts) < 3 {
		return []string{}
	}

	users := make([]string, 0, 8)
	for _, user := range strings.Fields(parts[2]) {
		if cleaned := strings.TrimLeft(user, "@+"); cleaned != "" {
			users = append(users, cleaned)
		}
	}
	return users
}

// ParsePrivmsg decomposes a PRIVMSG line. The message content is the text
// after the second ":" in the raw line. If the content looks like an
// encrypted envelope it is decoded and the displayed content replaced
// with EncryptedPlaceholder; any decode failure silently falls back to
// plain text.
//
// The substring check before attempting a JSON decode is a pragmatic
// shortcut, not a protocol guarantee: a plain-text message containing
// "encrypted_content" could be misclassified.
func ParsePrivmsg(prefix string, params []string, rawLine string) PrivateMessage {
	sender := ExtractSender(prefix)

	target := ""
	if len(params) > 0 {
		target = params[0]
	}

	message := ""
	if parts := strings.SplitN(rawLine, ":", 3); len(parts) >= 3 {
		message = parts[2]
	}

	pm := PrivateMessage{
		Sender:  sender,
		Target:  target,
		Content: message,
	}

	if strings.HasPrefix(message, "{") && strings.Contains(message, "encrypted_content") {
		if env := decodeEnvelope(message); env != nil {
			pm.IsEncrypted = true
			pm.Encrypted = env
			pm.Content = EncryptedPlaceholder
		}
	}

	return pm
}

// decodeEnvelope returns the envelope if the message is a JSON object
// with both encrypted_content and iv keys, nil otherwise.
func decodeEnvelope(message string) *protocol.EncryptedEnvelope {
	var obj map[string]any
	if err := json.Unmarshal([]byte(message), &obj); err != nil {
		return nil
	}

	rawContent, hasContent := obj["encrypted_content"]
	rawIV, hasIV := obj["iv"]
	if !hasContent || !hasIV {
		return nil
	}

	content, ok := rawContent.(string)
	if !ok {
		return nil
	}
	iv, ok := rawIV.(string)
	if !ok {
		return nil
	}

	return &protocol.EncryptedEnvelope{
		EncryptedContent: content,
		IV:               iv,
		IsEncrypted:      true,
	}
}

// ExtractPingServer returns the server token of a PING line (the text
// after the first ":"), or "" if there is none.
func ExtractPingServer(line string) string {
	if idx := strings.Index(line, ":"); idx >= 0 {
		return line[idx+1:]
	}
	return ""
}

// IsEndOfMOTD reports whether the numeric marks end of MOTD (376) or
// MOTD missing (422); either means the connection is ready to JOIN.
func IsEndOfMOTD(command string) bool {
	return command == "376" || command == "422"
}

// IsNamesReply reports whether the numeric is a NAMES reply (353).
func IsNamesReply(command string) bool {
	return command == "353"
}

// IsEndOfNames reports whether the numeric is end of NAMES (366).
func IsEndOfNames(command string) bool {
	return command == "366"
}
