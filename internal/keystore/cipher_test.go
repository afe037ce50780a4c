package keystore

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"testing"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	return key
}

func TestEncryptWithKeyFreshIV(t *testing.T) {
	key := randomKey(t)

	a, err := EncryptWithKey(key, "same plaintext")
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncryptWithKey(key, "same plaintext")
	if err != nil {
		t.Fatal(err)
	}

	if a.IV == b.IV {
		t.Error("IV must be fresh for every encryption")
	}
	if a.EncryptedContent == b.EncryptedContent {
		t.Error("Identical plaintexts must not produce identical ciphertexts")
	}
}

func TestEncryptWithKeyBlockAligned(t *testing.T) {
	key := randomKey(t)

	for _, plaintext := range []string{"", "a", "exactly sixteen!", "seventeen chars.."} {
		env, err := EncryptWithKey(key, plaintext)
		if err != nil {
			t.Fatalf("Encrypt %q: %v", plaintext, err)
		}
		raw, err := base64.StdEncoding.DecodeString(env.EncryptedContent)
		if err != nil {
			t.Fatalf("Ciphertext not base64: %v", err)
		}
		if len(raw) == 0 || len(raw)%16 != 0 {
			t.Errorf("Ciphertext for %q has length %d, want positive multiple of 16", plaintext, len(raw))
		}
		iv, err := base64.StdEncoding.DecodeString(env.IV)
		if err != nil || len(iv) != 16 {
			t.Errorf("Bad IV for %q: %v (%d bytes)", plaintext, err, len(iv))
		}
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	key := randomKey(t)
	env, err := EncryptWithKey(key, "secret")
	if err != nil {
		t.Fatal(err)
	}

	other := randomKey(t)
	if bytes.Equal(key, other) {
		t.Fatal("Random keys collided")
	}
	if got, err := DecryptWithKey(other, env); err == nil && got == "secret" {
		t.Error("Wrong key recovered the plaintext")
	}
}

func TestEncryptWithKeyRejectsBadKeySize(t *testing.T) {
	if _, err := EncryptWithKey([]byte("short"), "hi"); err == nil {
		t.Error("Expected error for undersized key")
	}
}

func TestPadPKCS7FullBlockWhenAligned(t *testing.T) {
	padded := padPKCS7([]byte("exactly sixteen!"))
	if len(padded) != 32 {
		t.Fatalf("Expected 32 bytes, got %d", len(padded))
	}
	for _, b := range padded[16:] {
		if b != 16 {
			t.Fatalf("Expected full block of 0x10 padding, got % x", padded[16:])
		}
	}

	got, err := unpadPKCS7(padded)
	if err != nil || !bytes.Equal(got, []byte("exactly sixteen!")) {
		t.Errorf("Unpad mismatch: %q, %v", got, err)
	}
}

func TestUnpadPKCS7Rejects(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x00},
		append(bytes.Repeat([]byte{1}, 15), 0x11),
		{0x02},
	}
	for i, b := range cases {
		if _, err := unpadPKCS7(b); err == nil {
			t.Errorf("Case %d: expected padding error for % x", i, b)
		}
	}
}
