package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/gehchat/bridge/internal/protocol"
)

// EncryptWithKey encrypts plaintext under a 256-bit pair key using
// AES-CBC with a fresh random IV and PKCS#7 padding, returning the
// base64-encoded wire envelope.
func EncryptWithKey(key []byte, plaintext string) (*protocol.EncryptedEnvelope, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("bad session key: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := padPKCS7([]byte(plaintext))
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return &protocol.EncryptedEnvelope{
		EncryptedContent: base64.StdEncoding.EncodeToString(ciphertext),
		IV:               base64.StdEncoding.EncodeToString(iv),
		IsEncrypted:      true,
	}, nil
}

// DecryptWithKey reverses EncryptWithKey. Bad base64, a malformed IV or
// ciphertext, invalid padding or non-UTF-8 plaintext all return an error;
// callers treat any failure the same as "no session exists".
func DecryptWithKey(key []byte, env *protocol.EncryptedEnvelope) (string, error) {
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return "", fmt.Errorf("bad iv encoding: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.EncryptedContent)
	if err != nil {
		return "", fmt.Errorf("bad ciphertext encoding: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("bad session key: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("iv is %d bytes, want %d", len(iv), aes.BlockSize)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a positive multiple of the block size", len(ciphertext))
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := unpadPKCS7(padded)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plaintext) {
		return "", fmt.Errorf("decrypted payload is not valid utf-8")
	}
	return string(plaintext), nil
}

// padPKCS7 pads to the AES block size. A payload already on a block
// boundary gets a full block of padding, so padding is always present.
func padPKCS7(b []byte) []byte {
	padLen := aes.BlockSize - len(b)%aes.BlockSize
	padded := make([]byte, len(b)+padLen)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// unpadPKCS7 strips padding using the trailing padding-length byte.
func unpadPKCS7(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty padded payload")
	}
	padLen := int(b[len(b)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(b) {
		return nil, fmt.Errorf("invalid padding length %d", padLen)
	}
	return b[:len(b)-padLen], nil
}
