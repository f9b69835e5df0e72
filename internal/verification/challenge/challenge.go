// Package challenge proves that a stored key pair is self-consistent by signing
// a fresh nonce with the secret key and verifying it with the public key. It
// also checks ownership proofs signed by key holders.
package challenge

import (
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/multiformats/go-multibase"
)

const nonceSize = 32

// Signer signs with a sealed secret key and verifies with a public key.
type Signer interface {
	Sign(secretKey string, msg []byte) ([]byte, error)
	Verify(publicKey string, msg, sig []byte) (bool, error)
}

// Verifier runs the nonce challenge.
type Verifier struct {
	signer Signer
	logger *slog.Logger
	nonce  func() ([]byte, error)
}

type Option func(*Verifier)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// New constructs a Verifier.
func New(signer Signer, opts ...Option) (*Verifier, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	v := &Verifier{signer: signer, nonce: newNonce}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// VerifyKeypair reports whether secretKey and publicKey complete a
// sign/verify round trip over a fresh nonce. Any failure, including a panic in
// the signer on malformed key bytes, yields false.
func (v *Verifier) VerifyKeypair(secretKey, publicKey string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.warn("keypair challenge panicked", "panic", r)
			ok = false
		}
	}()

	nonce, err := v.nonce()
	if err != nil {
		v.warn("could not create challenge nonce", "error", err)
		return false
	}
	sig, err := v.signer.Sign(secretKey, nonce)
	if err != nil {
		v.warn("error when signing the nonce, the secret key might have changed", "error", err)
		return false
	}
	verified, err := v.signer.Verify(publicKey, nonce, sig)
	if err != nil {
		v.warn("error when verifying the signed nonce", "error", err)
		return false
	}
	return verified
}

// VerifyProof reports whether signature, a multibase string produced by the
// key holder, signs msg under publicKey. Malformed input yields false.
func (v *Verifier) VerifyProof(publicKey string, msg []byte, signature string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.warn("ownership proof panicked", "panic", r)
			ok = false
		}
	}()

	_, sig, err := multibase.Decode(signature)
	if err != nil {
		v.warn("ownership proof is not multibase", "error", err)
		return false
	}
	verified, err := v.signer.Verify(publicKey, msg, sig)
	if err != nil {
		v.warn("error when verifying the ownership proof", "error", err)
		return false
	}
	return verified
}

func (v *Verifier) warn(msg string, args ...any) {
	if v.logger != nil {
		v.logger.Warn(msg, args...)
	}
}

func newNonce() ([]byte, error) {
	buf := make([]byte, nonceSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
