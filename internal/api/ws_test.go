package api

import (
	"bufio"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/gehchat/bridge/internal/bridge"
	"github.com/gehchat/bridge/internal/config"
	"github.com/gehchat/bridge/internal/keystore"
)

const wsTestTimeout = 5 * time.Second

// fakeIRCServer accepts a single connection and exposes its lines.
type fakeIRCServer struct {
	ln      net.Listener
	conn    net.Conn
	lines   chan string
	readyCh chan struct{}
}

func startFakeIRC(t *testing.T) *fakeIRCServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv := &fakeIRCServer{
		ln:      ln,
		lines:   make(chan string, 32),
		readyCh: make(chan struct{}),
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(srv.readyCh)
			return
		}
		srv.conn = conn
		close(srv.readyCh)
		br := bufio.NewReader(conn)
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			srv.lines <- strings.TrimRight(line, "\r\n")
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		if srv.conn != nil {
			srv.conn.Close()
		}
	})
	return srv
}

func (f *fakeIRCServer) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeIRCServer) awaitConn(t *testing.T) {
	t.Helper()
	select {
	case <-f.readyCh:
		if f.conn == nil {
			t.Fatal("IRC accept failed")
		}
	case <-time.After(wsTestTimeout):
		t.Fatal("Bridge never dialed the IRC server")
	}
}

func (f *fakeIRCServer) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-f.lines:
		if got != want {
			t.Fatalf("IRC wire mismatch: got %q, want %q", got, want)
		}
	case <-time.After(wsTestTimeout):
		t.Fatalf("Timed out waiting for IRC line %q", want)
	}
}

func (f *fakeIRCServer) inject(t *testing.T, line string) {
	t.Helper()
	if _, err := f.conn.Write([]byte(line + "\r\n")); err != nil {
		t.Fatalf("Writing IRC line: %v", err)
	}
}

// nextEvent reads websocket events until pred matches one.
func nextEvent(t *testing.T, conn *websocket.Conn, desc string, pred func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(wsTestTimeout)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Reading websocket while waiting for %s: %v", desc, err)
		}
		var ev map[string]any
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("Malformed event %q: %v", data, err)
		}
		if pred(ev) {
			return ev
		}
	}
	t.Fatalf("Timed out waiting for event: %s", desc)
	return nil
}

func TestWebSocketBridgeLifecycle(t *testing.T) {
	irc := startFakeIRC(t)

	cfg := &config.Config{
		IRC:  config.IRCConfig{Server: "127.0.0.1", Port: irc.port(), Channel: "#test"},
		HTTP: config.HTTPConfig{Host: "127.0.0.1", Port: 0},
	}
	srv := NewServer(cfg, keystore.NewStore(), bridge.NewRegistry())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	defer conn.Close()

	nextEvent(t, conn, "connected handshake", func(ev map[string]any) bool {
		return ev["type"] == "connected"
	})

	if err := conn.WriteJSON(map[string]any{"type": "connect", "nickname": "Alice"}); err != nil {
		t.Fatal(err)
	}

	irc.awaitConn(t)
	irc.expect(t, "NICK Alice")
	irc.expect(t, "USER Alice 0 * :Alice")

	nextEvent(t, conn, "connected system event", func(ev map[string]any) bool {
		content, _ := ev["content"].(string)
		return ev["type"] == "system" && strings.Contains(content, "Connected to IRC server")
	})

	irc.inject(t, ":irc.test 376 Alice :End of /MOTD command.")
	irc.expect(t, "JOIN #test")

	irc.inject(t, ":irc.test 353 Alice = #test :@Alice bob")
	ev := nextEvent(t, conn, "users event", func(ev map[string]any) bool {
		return ev["type"] == "users"
	})
	users, _ := ev["users"].([]any)
	if len(users) != 2 || users[0] != "Alice" || users[1] != "bob" {
		t.Errorf("Unexpected user list %v", users)
	}

	// Outbound private message with a target marker.
	if err := conn.WriteJSON(map[string]any{"type": "message", "target": "@bob", "content": "hi"}); err != nil {
		t.Fatal(err)
	}
	irc.expect(t, "PRIVMSG bob :hi")
	nextEvent(t, conn, "echoed message", func(ev map[string]any) bool {
		return ev["type"] == "message" && ev["sender"] == "Alice" && ev["target"] == "bob"
	})

	// Inbound private message from IRC.
	irc.inject(t, ":bob!u@h PRIVMSG Alice :yo")
	ev = nextEvent(t, conn, "inbound message", func(ev map[string]any) bool {
		return ev["type"] == "message" && ev["sender"] == "bob"
	})
	if ev["content"] != "yo" || ev["is_private"] != true {
		t.Errorf("Unexpected inbound event %v", ev)
	}

	// Unknown commands are ignored without dropping the connection.
	if err := conn.WriteJSON(map[string]any{"type": "frobnicate"}); err != nil {
		t.Fatal(err)
	}

	if err := conn.WriteJSON(map[string]any{"type": "disconnect"}); err != nil {
		t.Fatal(err)
	}
	irc.expect(t, "QUIT :Goodbye")
	nextEvent(t, conn, "disconnected event", func(ev map[string]any) bool {
		return ev["type"] == "disconnected"
	})
}
