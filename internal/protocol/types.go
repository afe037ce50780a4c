// Package protocol defines the JSON message types exchanged with bridge
// clients and the encrypted envelope embedded in IRC PRIVMSG lines.
package protocol

// Client message types (inbound).
const (
	TypeConnect                = "connect"
	TypeMessage                = "message"
	TypeEstablishSession       = "establish_session"
	TypeGetSessionKey          = "get_session_key"
	TypeEncryptionSessionReady = "encryption_session_ready"
	TypeDisconnect             = "disconnect"
)

// Event types (outbound).
const (
	EventConnected          = "connected"
	EventSystem             = "system"
	EventError              = "error"
	EventSetupEncryption    = "setup_encryption"
	EventUsers              = "users"
	EventMessage            = "message"
	EventJoin               = "join"
	EventPart               = "part"
	EventQuit               = "quit"
	EventSessionEstablished = "session_established"
	EventSessionKey         = "session_key"
	EventDisconnected       = "disconnected"
)

// ClientMessage is a single inbound message from a bridge client. Only
// the fields relevant to the message's Type are populated.
type ClientMessage struct {
	Type string `json:"type"`

	// connect
	Nickname          string `json:"nickname,omitempty"`
	IsApplicationUser *bool  `json:"is_application_user,omitempty"`

	// message
	Target           string             `json:"target,omitempty"`
	Content          string             `json:"content,omitempty"`
	IsEncrypted      bool               `json:"is_encrypted,omitempty"`
	EncryptedPayload *EncryptedEnvelope `json:"encrypted_payload,omitempty"`

	// establish_session
	OtherUser string `json:"other_user,omitempty"`

	// get_session_key
	From string `json:"from,omitempty"`

	// encryption_session_ready
	With string `json:"with,omitempty"`
}

// EncryptedEnvelope is the wire form of an encrypted private message. It
// travels as JSON text in the trailing parameter of a PRIVMSG line and in
// the encrypted_payload field of client messages.
type EncryptedEnvelope struct {
	EncryptedContent string `json:"encrypted_content"`
	IV               string `json:"iv"`
	IsEncrypted      bool   `json:"is_encrypted"`
}

// Event is an outbound event with no payload.
type Event struct {
	Type string `json:"type"`
}

// SystemEvent carries informational text to the client.
type SystemEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// SetupEncryptionEvent prompts a newly connected application user to
// establish sessions with the listed users.
type SetupEncryptionEvent struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// UsersEvent carries a channel user list from a NAMES reply.
type UsersEvent struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// MessageEvent carries a chat message to the client, either relayed from
// IRC or echoed back after an outbound send.
type MessageEvent struct {
	Type             string             `json:"type"`
	Sender           string             `json:"sender"`
	Target           string             `json:"target"`
	Content          string             `json:"content"`
	IsPrivate        bool               `json:"is_private"`
	IsEncrypted      bool               `json:"is_encrypted"`
	EncryptedPayload *EncryptedEnvelope `json:"encrypted_payload,omitempty"`
}

// MembershipEvent reports a JOIN, PART or QUIT seen on IRC.
type MembershipEvent struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// SessionKeyEvent delivers a pair session key to a client.
type SessionKeyEvent struct {
	Type string `json:"type"`
	From string `json:"from"`
	Key  string `json:"key"`
}
