// Package keystore owns the pairwise session keys and the set of known
// application users shared by all bridge sessions.
//
// A pair of users has at most one live 256-bit key at a time, stored
// under a direction-independent canonical name (the two usernames sorted
// and joined with "_"). Absence of a key is a valid state everywhere: it
// means the conversation involves a plain IRC user and travels as
// clear text. None of the lookup operations treat a missing key as an
// error.
package keystore

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gehchat/bridge/internal/logging"
	"github.com/gehchat/bridge/internal/protocol"
)

const keySize = 32 // AES-256

// Store holds session keys, application-user membership and pending
// session bookkeeping. All methods are safe for concurrent use; the
// create-if-absent check in EstablishSession is atomic under the mutex.
type Store struct {
	mu          sync.Mutex
	sessionKeys map[string][]byte
	knownUsers  map[string]struct{}
	pending     map[string]map[string]struct{}
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessionKeys: make(map[string][]byte),
		knownUsers:  make(map[string]struct{}),
		pending:     make(map[string]map[string]struct{}),
	}
}

// pairKey returns the canonical name for an unordered user pair.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// RegisterUser adds nickname to the known application users. If deviceID
// is empty a best-effort unique one is synthesized from the nickname and
// the current timestamp. Registering an already-known user is a no-op on
// the set.
func (s *Store) RegisterUser(nickname, deviceID string) string {
	if deviceID == "" {
		deviceID = fmt.Sprintf("%s_%d", nickname, time.Now().Unix())
	}

	s.mu.Lock()
	s.knownUsers[nickname] = struct{}{}
	total := len(s.knownUsers)
	s.mu.Unlock()

	logging.Debug().
		Str("nickname", nickname).
		Str("device_id", deviceID).
		Int("known_users", total).
		Msg("registered application user")
	return deviceID
}

// EstablishSession creates a session key for the pair if none exists and
// reports whether a key was newly created. An existing key is never
// overwritten: replacing it would silently break any in-flight encrypted
// conversation using the old key.
func (s *Store) EstablishSession(userA, userB string) bool {
	name := pairKey(userA, userB)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessionKeys[name]; exists {
		return false
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		// rand.Read failing means the platform CSPRNG is broken;
		// refuse to create a session rather than store a weak key.
		logging.Error().Err(err).Msg("failed to generate session key")
		return false
	}
	s.sessionKeys[name] = key

	logging.Info().Str("pair", name).Msg("established encrypted session")
	return true
}

// SessionKey returns a copy of the pair key, if one exists.
func (s *Store) SessionKey(userA, userB string) ([]byte, bool) {
	s.mu.Lock()
	key, ok := s.sessionKeys[pairKey(userA, userB)]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	out := make([]byte, len(key))
	copy(out, key)
	return out, true
}

// SessionKeyBase64 returns the pair key base64-encoded for delivery to a
// client.
func (s *Store) SessionKeyBase64(userA, userB string) (string, bool) {
	key, ok := s.SessionKey(userA, userB)
	if !ok {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(key), true
}

// Encrypt encrypts plaintext with the pair key for (sender, recipient).
// A nil result means no session exists (or encryption failed) and the
// message should be sent as plain text.
func (s *Store) Encrypt(sender, recipient, plaintext string) *protocol.EncryptedEnvelope {
	key, ok := s.SessionKey(sender, recipient)
	if !ok {
		logging.Debug().
			Str("sender", sender).
			Str("recipient", recipient).
			Msg("no session, sending unencrypted")
		return nil
	}

	env, err := EncryptWithKey(key, plaintext)
	if err != nil {
		logging.Error().Err(err).Str("sender", sender).Msg("encryption failed")
		return nil
	}
	return env
}

// Decrypt decrypts an envelope with the pair key for (sender, recipient).
// Any failure, including a missing key, yields ok=false; callers treat
// that identically to "no session exists".
func (s *Store) Decrypt(sender, recipient string, env *protocol.EncryptedEnvelope) (string, bool) {
	key, ok := s.SessionKey(sender, recipient)
	if !ok {
		logging.Warn().Str("pair", pairKey(sender, recipient)).Msg("no session found for decryption")
		return "", false
	}

	plaintext, err := DecryptWithKey(key, env)
	if err != nil {
		logging.Error().Err(err).Str("sender", sender).Msg("decryption failed")
		return "", false
	}
	return plaintext, true
}

// IsApplicationUser reports whether nickname is a registered application
// user.
func (s *Store) IsApplicationUser(nickname string) bool {
	s.mu.Lock()
	_, ok := s.knownUsers[nickname]
	s.mu.Unlock()
	return ok
}

// KnownUserCount returns the number of registered application users.
func (s *Store) KnownUserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.knownUsers)
}

// CleanupSession removes every pair key naming user and drops user from
// the known application users. Called once when the user disconnects.
func (s *Store) CleanupSession(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name := range s.sessionKeys {
		if strings.HasPrefix(name, user+"_") || strings.HasSuffix(name, "_"+user) {
			delete(s.sessionKeys, name)
			logging.Info().Str("pair", name).Msg("cleaned up session key")
		}
	}

	delete(s.knownUsers, user)
	delete(s.pending, user)
}

// UnsessionedUsers returns the known application users, other than
// forUser, that have no session key with forUser yet. Used to prompt key
// establishment when a new application user connects. The result is
// sorted for deterministic prompting.
func (s *Store) UnsessionedUsers(forUser string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []string
	for other := range s.knownUsers {
		if other == forUser {
			continue
		}
		if _, ok := s.sessionKeys[pairKey(forUser, other)]; !ok {
			users = append(users, other)
		}
	}
	sort.Strings(users)
	return users
}

// AddPending records that a session has been offered between user and
// otherUser but not yet confirmed. Advisory state for client prompting
// only; encrypt/decrypt correctness does not depend on it.
func (s *Store) AddPending(user, otherUser string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending[user] == nil {
		s.pending[user] = make(map[string]struct{})
	}
	s.pending[user][otherUser] = struct{}{}
}

// MarkConfirmed clears a pending session offer for user with otherUser.
func (s *Store) MarkConfirmed(user, otherUser string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.pending[user]; ok {
		delete(set, otherUser)
	}
}

// HasPending reports whether user has any unconfirmed session offers.
func (s *Store) HasPending(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[user]) > 0
}
