package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var secretLockSalt = []byte("attest/identity-secret-keys/v1")

// SecretLock seals secret key material under a key expanded from the server
// secret with HKDF-SHA256. A different server secret cannot open existing keys.
type SecretLock struct {
	aead cipher.AEAD
}

// NewSecretLock derives the sealing key from the server secret.
func NewSecretLock(serverSecret string) (*SecretLock, error) {
	if serverSecret == "" {
		return nil, errors.New("server secret is empty")
	}
	masterKey := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(serverSecret), secretLockSalt, nil), masterKey); err != nil {
		return nil, fmt.Errorf("expand server secret: %w", err)
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &SecretLock{aead: aead}, nil
}

// Seal encrypts plaintext and returns base64url(nonce || ciphertext).
func (l *SecretLock) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, l.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ct := l.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(ct), nil
}

// Open reverses Seal.
func (l *SecretLock) Open(sealed string) ([]byte, error) {
	ct, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decode sealed key: %w", err)
	}
	nonceSize := l.aead.NonceSize()
	if len(ct) <= nonceSize {
		return nil, errors.New("sealed key too short")
	}
	pt, err := l.aead.Open(nil, ct[:nonceSize], ct[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed key: %w", err)
	}
	return pt, nil
}
