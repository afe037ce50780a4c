// Package bridge owns the per-client IRC session: one outbound IRC
// socket, a background read loop translating IRC lines into client
// events, and the dispatch of client commands onto the session.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircreader"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/gehchat/bridge/internal/config"
	"github.com/gehchat/bridge/internal/ircparse"
	"github.com/gehchat/bridge/internal/keystore"
	"github.com/gehchat/bridge/internal/logging"
	"github.com/gehchat/bridge/internal/metrics"
	"github.com/gehchat/bridge/internal/protocol"
)

const (
	dialTimeout  = 30 * time.Second
	readPoll     = 100 * time.Millisecond
	maxLineLen   = 8192
	readBufStart = 512
)

// ClientConn delivers one JSON message to the bridge client. The
// transport must accept whole messages, in order; writes may happen
// concurrently from the command path and the IRC read loop.
type ClientConn interface {
	Send(v any) error
}

// Session bridges one client connection to one IRC connection. The IRC
// socket's lifetime is strictly contained in the session's lifetime: the
// read loop goroutine is joined before Disconnect returns.
type Session struct {
	cfg    config.IRCConfig
	keys   *keystore.Store
	client ClientConn
	log    zerolog.Logger

	// wmu serializes writes to the IRC socket; the read loop (PONG)
	// and the client command path both write.
	wmu sync.Mutex

	mu        sync.Mutex
	irc       net.Conn
	nickname  string
	deviceID  string
	connected bool
	appUser   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSession creates an idle session for one client connection.
func NewSession(cfg config.IRCConfig, keys *keystore.Store, client ClientConn, connID string) *Session {
	return &Session{
		cfg:    cfg,
		keys:   keys,
		client: client,
		log:    logging.Logger().With().Str("conn_id", connID).Logger(),
	}
}

// Nickname returns the session's IRC nickname, if connected.
func (s *Session) Nickname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nickname
}

// Connected reports whether the IRC handshake completed and the read
// loop started.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// IsApplicationUser reports whether the client registered as an
// application user, making it eligible for the encryption layer.
func (s *Session) IsApplicationUser() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appUser
}

// ConnectToIRC dials the configured IRC server, performs the NICK/USER
// handshake and starts the background read loop. On any failure the
// session reports an error event and stays idle so the client may retry.
// A session that is already active is torn down first; reconnecting is
// the client's recovery path for a broken IRC connection.
func (s *Session) ConnectToIRC(nickname string, isApplicationUser bool) error {
	s.teardown()

	s.mu.Lock()
	s.nickname = nickname
	s.appUser = isApplicationUser
	s.mu.Unlock()

	s.log.Info().
		Str("server", s.cfg.Addr()).
		Str("nickname", nickname).
		Bool("application_user", isApplicationUser).
		Msg("connecting to irc")

	if isApplicationUser {
		s.setupEncryption(nickname)
	}

	conn, err := net.DialTimeout("tcp", s.cfg.Addr(), dialTimeout)
	if err != nil {
		s.log.Error().Err(err).Msg("irc connection failed")
		s.send(protocol.SystemEvent{
			Type:    protocol.EventError,
			Content: fmt.Sprintf("Failed to connect to IRC: %v", err),
		})
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.irc = conn
	s.connected = true
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.sendIRCRaw("NICK " + nickname)
	s.sendIRCRaw(fmt.Sprintf("USER %s 0 * :%s", nickname, nickname))

	metrics.IRCConnections.Inc()
	go s.readLoop(ctx, conn, done)

	s.send(protocol.SystemEvent{
		Type:    protocol.EventSystem,
		Content: fmt.Sprintf("Connected to IRC server %s:%d", s.cfg.Server, s.cfg.Port),
	})
	return nil
}

// setupEncryption registers the user with the key store and prompts the
// client to establish sessions with any known application users it has
// no pair key with yet. Each prompted pair is marked pending in both
// directions.
func (s *Session) setupEncryption(nickname string) {
	deviceID := s.keys.RegisterUser(nickname, "")

	s.mu.Lock()
	s.deviceID = deviceID
	s.mu.Unlock()

	others := s.keys.UnsessionedUsers(nickname)
	if len(others) == 0 {
		return
	}

	s.send(protocol.SetupEncryptionEvent{
		Type:  protocol.EventSetupEncryption,
		Users: others,
	})
	s.log.Info().Strs("users", others).Msg("prompted encryption setup")

	for _, other := range others {
		s.keys.AddPending(nickname, other)
		s.keys.AddPending(other, nickname)
	}
}

// sendIRCRaw writes one IRC protocol line (CRLF appended) to the IRC
// socket. Write failures are logged and swallowed; delivery is
// best-effort and the session carries on.
func (s *Session) sendIRCRaw(line string) {
	s.mu.Lock()
	conn := s.irc
	s.mu.Unlock()
	if conn == nil {
		return
	}

	s.wmu.Lock()
	_, err := conn.Write([]byte(line + "\r\n"))
	s.wmu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Msg("error sending to irc")
		return
	}
	s.log.Trace().Str("line", line).Msg("irc >>>")
}

// readLoop reads CRLF-terminated lines from the IRC socket until the
// context is canceled or the peer closes. Each read uses a short
// deadline so cancellation is honored within one poll interval. A peer
// close or socket error ends the loop silently: the session stays
// nominally active until the client disconnects or reconnects.
func (s *Session) readLoop(ctx context.Context, conn net.Conn, done chan struct{}) {
	defer close(done)

	var reader ircreader.Reader
	reader.Initialize(conn, readBufStart, maxLineLen)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(readPoll)); err != nil {
			s.log.Debug().Err(err).Msg("irc reader stopping, deadline failed")
			return
		}

		lineBytes, err := reader.ReadLine()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.log.Info().Err(err).Msg("irc reader ended")
			return
		}

		if line := string(lineBytes); line != "" {
			s.handleLine(line)
		}
	}
}

// handleLine routes one parsed IRC line to the client.
func (s *Session) handleLine(line string) {
	s.log.Trace().Str("line", line).Msg("irc <<<")

	if strings.HasPrefix(line, "PING") {
		s.sendIRCRaw("PONG :" + ircparse.ExtractPingServer(line))
		return
	}

	parsed := ircparse.ParseLine(line)
	if parsed == nil {
		return
	}

	switch {
	case ircparse.IsEndOfMOTD(parsed.Command):
		s.sendIRCRaw("JOIN " + s.cfg.Channel)
		s.send(protocol.SystemEvent{
			Type:    protocol.EventSystem,
			Content: fmt.Sprintf("Joining channel %s...", s.cfg.Channel),
		})

	case ircparse.IsNamesReply(parsed.Command):
		s.send(protocol.UsersEvent{
			Type:  protocol.EventUsers,
			Users: ircparse.ParseNamesList(parsed.Raw),
		})

	case ircparse.IsEndOfNames(parsed.Command):
		s.send(protocol.SystemEvent{
			Type:    protocol.EventSystem,
			Content: fmt.Sprintf("Successfully joined %s!", s.cfg.Channel),
		})

	case parsed.Command == "PRIVMSG":
		pm := ircparse.ParsePrivmsg(parsed.Prefix, parsed.Params, parsed.Raw)
		metrics.MessagesRelayed.WithLabelValues("inbound").Inc()
		s.send(protocol.MessageEvent{
			Type:             protocol.EventMessage,
			Sender:           pm.Sender,
			Target:           pm.Target,
			Content:          pm.Content,
			IsPrivate:        pm.Target == s.Nickname(),
			IsEncrypted:      pm.IsEncrypted,
			EncryptedPayload: pm.Encrypted,
		})

	case parsed.Command == "JOIN":
		s.send(protocol.MembershipEvent{Type: protocol.EventJoin, User: ircparse.ExtractSender(parsed.Prefix)})

	case parsed.Command == "PART":
		s.send(protocol.MembershipEvent{Type: protocol.EventPart, User: ircparse.ExtractSender(parsed.Prefix)})

	case parsed.Command == "QUIT":
		s.send(protocol.MembershipEvent{Type: protocol.EventQuit, User: ircparse.ExtractSender(parsed.Prefix)})
	}
}

// HandleMessage relays a client message to IRC and echoes it back to the
// originating client (IRC servers do not echo PRIVMSG to the sender).
// Pre-encrypted payloads to private targets are relayed verbatim: the
// client already encrypted with the shared pair key, the bridge never
// re-encrypts. No-op if the session is not active.
func (s *Session) HandleMessage(msg *protocol.ClientMessage) {
	target := msg.Target
	if target == "" {
		target = s.cfg.Channel
	}
	// Display-only operator marker; must not leak into the wire protocol.
	target = strings.TrimPrefix(target, "@")

	if !s.Connected() {
		s.log.Warn().Msg("message while not connected to irc")
		return
	}

	isPrivate := target != s.cfg.Channel

	if msg.IsEncrypted && msg.EncryptedPayload != nil && isPrivate {
		payload, err := json.Marshal(msg.EncryptedPayload)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to marshal encrypted payload")
			return
		}
		s.sendIRCRaw(fmt.Sprintf("PRIVMSG %s :%s", target, payload))
		metrics.EncryptedRelays.Inc()
	} else {
		s.sendIRCRaw(fmt.Sprintf("PRIVMSG %s :%s", target, msg.Content))
	}
	metrics.MessagesRelayed.WithLabelValues("outbound").Inc()

	s.send(protocol.MessageEvent{
		Type:        protocol.EventMessage,
		Sender:      s.Nickname(),
		Target:      target,
		Content:     msg.Content,
		IsPrivate:   isPrivate,
		IsEncrypted: msg.IsEncrypted,
	})
}

// Disconnect tears down the IRC connection and notifies the client.
// Idempotent: on an already-closed session only the notification is
// re-sent.
func (s *Session) Disconnect() {
	s.teardown()
	s.send(protocol.SystemEvent{
		Type:    protocol.EventDisconnected,
		Content: "Disconnected from IRC",
	})
}

// Shutdown releases the session's IRC resources without a client
// notification. Used when the client connection itself is gone; also
// cleans up the key store entry for application users.
func (s *Session) Shutdown() {
	s.mu.Lock()
	nickname := s.nickname
	appUser := s.appUser
	s.mu.Unlock()

	if appUser && nickname != "" {
		s.keys.CleanupSession(nickname)
	}
	s.teardown()
}

// teardown closes the IRC socket (best-effort QUIT first), stops the
// read loop and waits for it to exit. Safe to call on an idle session.
func (s *Session) teardown() {
	s.mu.Lock()
	conn := s.irc
	cancel := s.cancel
	done := s.done
	wasConnected := s.connected
	s.irc = nil
	s.cancel = nil
	s.done = nil
	s.connected = false
	s.mu.Unlock()

	if conn != nil {
		s.wmu.Lock()
		_, _ = conn.Write([]byte("QUIT :Goodbye\r\n"))
		s.wmu.Unlock()
		_ = conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		// Join the reader before the session is considered released so
		// no stale goroutine can write to the client afterwards.
		<-done
	}
	if wasConnected {
		metrics.IRCConnections.Dec()
	}
}

// send delivers one event to the client. Send failures are logged and
// swallowed; delivery to the client is best-effort.
func (s *Session) send(v any) {
	if s.client == nil {
		return
	}
	if err := s.client.Send(v); err != nil {
		s.log.Error().Err(err).Msg("error sending to client")
	}
}
