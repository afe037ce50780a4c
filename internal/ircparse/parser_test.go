package ircparse

import (
	"reflect"
	"testing"
)

func TestParseLineWithPrefix(t *testing.T) {
	line := ":nick!user@host PRIVMSG #channel :hello world"
	parsed := ParseLine(line)
	if parsed == nil {
		t.Fatal("ParseLine returned nil for valid line")
	}

	if parsed.Prefix != "nick!user@host" {
		t.Errorf("Expected prefix nick!user@host, got %q", parsed.Prefix)
	}
	if parsed.Command != "PRIVMSG" {
		t.Errorf("Expected command PRIVMSG, got %q", parsed.Command)
	}
	// Params stay verbatim space-split tokens; the trailing text is not
	// rejoined by the parser.
	want := []string{"#channel", ":hello", "world"}
	if !reflect.DeepEqual(parsed.Params, want) {
		t.Errorf("Unexpected params: %v", parsed.Params)
	}
	if parsed.Raw != line {
		t.Errorf("Raw line not preserved: %q", parsed.Raw)
	}
}

func TestParseLineWithoutPrefix(t *testing.T) {
	parsed := ParseLine("PING :server.example.org")
	if parsed == nil {
		t.Fatal("ParseLine returned nil for valid line")
	}
	if parsed.Prefix != "" {
		t.Errorf("Expected empty prefix, got %q", parsed.Prefix)
	}
	if parsed.Command != "PING" {
		t.Errorf("Expected command PING, got %q", parsed.Command)
	}
}

func TestParseLineTooShort(t *testing.T) {
	for _, line := range []string{"", "PING", ":prefix"} {
		if parsed := ParseLine(line); parsed != nil {
			t.Errorf("Expected nil for %q, got %+v", line, parsed)
		}
	}
}

func TestExtractSender(t *testing.T) {
	if got := ExtractSender("alice!~alice@example.org"); got != "alice" {
		t.Errorf("Expected alice, got %q", got)
	}
	if got := ExtractSender("server.example.org"); got != "server.example.org" {
		t.Errorf("Prefix without ! should be unchanged, got %q", got)
	}
	if got := ExtractSender(""); got != "" {
		t.Errorf("Expected empty, got %q", got)
	}
}

func TestParseNamesList(t *testing.T) {
	got := ParseNamesList(":srv 353 n = #c :@op +voice plain")
	want := []string{"op", "voice", "plain"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestParseNamesListNoPayload(t *testing.T) {
	if got := ParseNamesList("353 nick = #chan"); len(got) != 0 {
		t.Errorf("Expected empty list for line without payload, got %v", got)
	}
}

func TestParseNamesListDropsEmptyEntries(t *testing.T) {
	got := ParseNamesList(":srv 353 n = #c :@ alice @+ +bob")
	want := []string{"alice", "bob"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestParsePrivmsgPlain(t *testing.T) {
	raw := ":alice!u@h PRIVMSG #chan :hi there: everyone"
	pm := ParsePrivmsg("alice!u@h", []string{"#chan", ":hi", "there:", "everyone"}, raw)

	if pm.Sender != "alice" {
		t.Errorf("Expected sender alice, got %q", pm.Sender)
	}
	if pm.Target != "#chan" {
		t.Errorf("Expected target #chan, got %q", pm.Target)
	}
	if pm.Content != "hi there: everyone" {
		t.Errorf("Unexpected content %q", pm.Content)
	}
	if pm.IsEncrypted || pm.Encrypted != nil {
		t.Error("Plain message flagged as encrypted")
	}
}

func TestParsePrivmsgEncrypted(t *testing.T) {
	payload := `{"encrypted_content":"Y2lwaGVy","iv":"aXY=","is_encrypted":true}`
	raw := ":alice!u@h PRIVMSG bob :" + payload
	pm := ParsePrivmsg("alice!u@h", []string{"bob"}, raw)

	if !pm.IsEncrypted {
		t.Fatal("Expected encrypted message")
	}
	if pm.Content != EncryptedPlaceholder {
		t.Errorf("Expected placeholder content, got %q", pm.Content)
	}
	if pm.Encrypted == nil || pm.Encrypted.EncryptedContent != "Y2lwaGVy" || pm.Encrypted.IV != "aXY=" {
		t.Errorf("Unexpected envelope: %+v", pm.Encrypted)
	}
}

func TestParsePrivmsgEncryptedHeuristicFallsBack(t *testing.T) {
	// Contains the magic substring but is not valid JSON: must fall back
	// to plain text, never error.
	raw := `:a!u@h PRIVMSG bob :{"encrypted_content": broken`
	pm := ParsePrivmsg("a!u@h", []string{"bob"}, raw)
	if pm.IsEncrypted {
		t.Error("Malformed JSON misclassified as encrypted")
	}
	if pm.Content != `{"encrypted_content": broken` {
		t.Errorf("Unexpected content %q", pm.Content)
	}
}

func TestParsePrivmsgEncryptedMissingIV(t *testing.T) {
	raw := `:a!u@h PRIVMSG bob :{"encrypted_content":"xx"}`
	pm := ParsePrivmsg("a!u@h", []string{"bob"}, raw)
	if pm.IsEncrypted {
		t.Error("Envelope without iv key misclassified as encrypted")
	}
}

func TestParsePrivmsgNoParams(t *testing.T) {
	pm := ParsePrivmsg("a!u@h", nil, ":a!u@h PRIVMSG")
	if pm.Target != "" || pm.Content != "" {
		t.Errorf("Expected empty target and content, got %+v", pm)
	}
}

func TestExtractPingServer(t *testing.T) {
	if got := ExtractPingServer("PING :irc.example.org"); got != "irc.example.org" {
		t.Errorf("Expected irc.example.org, got %q", got)
	}
	if got := ExtractPingServer("PING"); got != "" {
		t.Errorf("Expected empty for PING without token, got %q", got)
	}
}

func TestNumericClassifiers(t *testing.T) {
	if !IsEndOfMOTD("376") || !IsEndOfMOTD("422") {
		t.Error("376 and 422 must mark end of MOTD")
	}
	if IsEndOfMOTD("353") {
		t.Error("353 is not end of MOTD")
	}
	if !IsNamesReply("353") || IsNamesReply("366") {
		t.Error("IsNamesReply must match exactly 353")
	}
	if !IsEndOfNames("366") || IsEndOfNames("353") {
		t.Error("IsEndOfNames must match exactly 366")
	}
}
