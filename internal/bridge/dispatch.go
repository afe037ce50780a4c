package bridge

import (
	"fmt"

	"github.com/gehchat/bridge/internal/protocol"
)

// CommandKind is the closed set of client command names the bridge
// understands.
type CommandKind string

// Recognized client commands.
const (
	CmdConnect                CommandKind = protocol.TypeConnect
	CmdMessage                CommandKind = protocol.TypeMessage
	CmdEstablishSession       CommandKind = protocol.TypeEstablishSession
	CmdGetSessionKey          CommandKind = protocol.TypeGetSessionKey
	CmdEncryptionSessionReady CommandKind = protocol.TypeEncryptionSessionReady
	CmdDisconnect             CommandKind = protocol.TypeDisconnect
)

// UnknownCommandError reports a client message whose type is not a
// recognized command. Not fatal: the dispatcher treats it as a no-op and
// the caller decides whether to log it.
type UnknownCommandError struct {
	Kind string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unrecognized command %q", e.Kind)
}

// HandlerFunc processes one client command against a session.
type HandlerFunc func(s *Session, msg *protocol.ClientMessage)

// Dispatcher routes client messages to command handlers by exact name.
// The handler table is static, built once at startup.
type Dispatcher struct {
	handlers map[CommandKind]HandlerFunc
}

// NewDispatcher builds the command table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: map[CommandKind]HandlerFunc{
			CmdConnect:                handleConnect,
			CmdMessage:                handleMessage,
			CmdEstablishSession:       handleEstablishSession,
			CmdGetSessionKey:          handleGetSessionKey,
			CmdEncryptionSessionReady: handleSessionReady,
			CmdDisconnect:             handleDisconnect,
		},
	}
}

// Dispatch routes msg to its handler. Unknown command types return an
// *UnknownCommandError and have no effect on the session.
func (d *Dispatcher) Dispatch(s *Session, msg *protocol.ClientMessage) error {
	handler, ok := d.handlers[CommandKind(msg.Type)]
	if !ok {
		return &UnknownCommandError{Kind: msg.Type}
	}
	handler(s, msg)
	return nil
}

// handleConnect connects the session to IRC. The server, port and
// channel always come from server-side configuration, never from the
// client; only the nickname and the application-user flag are
// client-supplied.
func handleConnect(s *Session, msg *protocol.ClientMessage) {
	nickname := msg.Nickname
	if nickname == "" {
		nickname = "GehUser"
	}

	isApplicationUser := true
	if msg.IsApplicationUser != nil {
		isApplicationUser = *msg.IsApplicationUser
	}

	s.log.Info().Str("nickname", nickname).Msg("client requested irc connection")
	_ = s.ConnectToIRC(nickname, isApplicationUser)
}

func handleMessage(s *Session, msg *protocol.ClientMessage) {
	s.HandleMessage(msg)
}

// handleEstablishSession creates a pair key between this user and
// another application user.
func handleEstablishSession(s *Session, msg *protocol.ClientMessage) {
	nickname := s.Nickname()
	if nickname == "" || msg.OtherUser == "" || !s.IsApplicationUser() {
		s.log.Warn().Msg("cannot establish session: missing nickname or not an application user")
		return
	}

	s.keys.EstablishSession(nickname, msg.OtherUser)
	s.send(protocol.SystemEvent{
		Type:    protocol.EventSessionEstablished,
		Content: fmt.Sprintf("Encrypted session established with %s", msg.OtherUser),
	})
}

// handleGetSessionKey ensures a pair key exists with the named
// counterpart and delivers it to the requester.
func handleGetSessionKey(s *Session, msg *protocol.ClientMessage) {
	nickname := s.Nickname()
	if nickname == "" || msg.From == "" || !s.IsApplicationUser() {
		s.log.Warn().Msg("cannot get session key: missing data or not an application user")
		return
	}

	s.keys.EstablishSession(msg.From, nickname)

	key, ok := s.keys.SessionKeyBase64(msg.From, nickname)
	if !ok {
		return
	}
	s.send(protocol.SessionKeyEvent{
		Type: protocol.EventSessionKey,
		From: msg.From,
		Key:  key,
	})
}

// handleSessionReady is the counterpart-side confirmation: it ensures
// the pair key exists, delivers it to the confirming client and clears
// the pending-session marker.
func handleSessionReady(s *Session, msg *protocol.ClientMessage) {
	nickname := s.Nickname()
	if nickname == "" || msg.With == "" || !s.IsApplicationUser() {
		s.log.Warn().Msg("cannot confirm session: missing data or not an application user")
		return
	}

	s.keys.EstablishSession(nickname, msg.With)

	key, ok := s.keys.SessionKeyBase64(nickname, msg.With)
	if !ok {
		return
	}
	s.send(protocol.SessionKeyEvent{
		Type: protocol.EventSessionKey,
		From: msg.With,
		Key:  key,
	})
	s.keys.MarkConfirmed(nickname, msg.With)
}

// handleDisconnect removes the user's key store state and closes the IRC
// connection.
func handleDisconnect(s *Session, msg *protocol.ClientMessage) {
	nickname := s.Nickname()
	if nickname != "" && s.IsApplicationUser() {
		s.keys.CleanupSession(nickname)
	}
	s.Disconnect()
}
