// Package identity is the local implementation of the self-sovereign identity
// capability: create an identity document, generate key pairs, sign and verify.
//
// Identity ids are did:key identifiers over Ed25519 public keys. Secret keys
// never leave this package unsealed.
package identity

//go:generate mockgen -source=identity.go -destination=mocks/mocks.go -package=mocks Capability

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/multiformats/go-multibase"
)

const (
	didKeyPrefix               = "did:key:"
	ed25519VerificationKey2018 = "Ed25519VerificationKey2018"
)

// ed25519 public and private key multicodec prefixes.
var (
	ed25519PubCodec  = []byte{0xed, 0x01}
	ed25519PrivCodec = []byte{0x80, 0x26}
)

// Document is the public identity document.
type Document struct {
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Created            time.Time            `json:"created"`
	Updated            time.Time            `json:"updated"`
}

// VerificationMethod binds a public key to a document.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// KeyPair holds a multibase public key and a sealed secret key.
type KeyPair struct {
	Public string `json:"public"`
	Secret string `json:"secret"`
}

// Record is a document together with its key material, as persisted.
type Record struct {
	Document Document `json:"doc"`
	Key      KeyPair  `json:"key"`
}

// Capability is the identity capability the verification module depends on.
type Capability interface {
	CreateIdentity(ctx context.Context) (Record, error)
	GenerateKeyPair() (KeyPair, error)
	Sign(secretKey string, msg []byte) ([]byte, error)
	Verify(publicKey string, msg, sig []byte) (bool, error)
	ExportSecret(secretKey string) (string, error)
}

var _ Capability = (*Provider)(nil)

// Provider creates identities and signs with sealed keys.
type Provider struct {
	lock *SecretLock
	now  func() time.Time
}

// NewProvider builds a provider whose secret keys are sealed under serverSecret.
func NewProvider(serverSecret string) (*Provider, error) {
	lock, err := NewSecretLock(serverSecret)
	if err != nil {
		return nil, err
	}
	return &Provider{lock: lock, now: time.Now}, nil
}

// CreateIdentity generates a fresh key pair and the matching document.
func (p *Provider) CreateIdentity(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	kp, err := p.generate()
	if err != nil {
		return Record{}, err
	}
	did := didKeyPrefix + kp.Public
	now := p.now().UTC().Truncate(time.Second)
	doc := Document{
		ID: did,
		VerificationMethod: []VerificationMethod{{
			ID:                 did + "#" + kp.Public,
			Type:               ed25519VerificationKey2018,
			Controller:         did,
			PublicKeyMultibase: kp.Public,
		}},
		Created: now,
		Updated: now,
	}
	return Record{Document: doc, Key: kp}, nil
}

// GenerateKeyPair returns a new key pair with its secret sealed.
func (p *Provider) GenerateKeyPair() (KeyPair, error) {
	return p.generate()
}

func (p *Provider) generate() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate ed25519 key: %w", err)
	}
	sealed, err := p.lock.Seal(priv)
	if err != nil {
		return KeyPair{}, err
	}
	encoded, err := EncodePublicKey(pub)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: encoded, Secret: sealed}, nil
}

// Sign unseals secretKey and signs msg.
func (p *Provider) Sign(secretKey string, msg []byte) ([]byte, error) {
	raw, err := p.lock.Open(secretKey)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key has %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	return ed25519.Sign(ed25519.PrivateKey(raw), msg), nil
}

// Verify checks sig over msg against a multibase public key.
func (p *Provider) Verify(publicKey string, msg, sig []byte) (bool, error) {
	pub, err := DecodePublicKey(publicKey)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, msg, sig), nil
}

// ExportSecret unseals secretKey and renders its Ed25519 seed as base58btc
// multibase with the ed25519-priv multicodec prefix. The result is what a
// key holder passes to SignWithSecret.
func (p *Provider) ExportSecret(secretKey string) (string, error) {
	raw, err := p.lock.Open(secretKey)
	if err != nil {
		return "", err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("secret key has %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	seed := ed25519.PrivateKey(raw).Seed()
	return multibase.Encode(multibase.Base58BTC, append(append([]byte{}, ed25519PrivCodec...), seed...))
}

// SignWithSecret signs msg with an exported secret key and returns the
// multibase signature. Holders use it to answer authentication challenges.
func SignWithSecret(exported string, msg []byte) (string, error) {
	_, data, err := multibase.Decode(exported)
	if err != nil {
		return "", fmt.Errorf("decode secret key: %w", err)
	}
	if len(data) != len(ed25519PrivCodec)+ed25519.SeedSize ||
		data[0] != ed25519PrivCodec[0] || data[1] != ed25519PrivCodec[1] {
		return "", errors.New("secret key is not a multicodec ed25519 key")
	}
	priv := ed25519.NewKeyFromSeed(data[len(ed25519PrivCodec):])
	return multibase.Encode(multibase.Base58BTC, ed25519.Sign(priv, msg))
}

// EncodePublicKey renders an Ed25519 public key as base58btc multibase with
// the ed25519-pub multicodec prefix.
func EncodePublicKey(pub ed25519.PublicKey) (string, error) {
	return multibase.Encode(multibase.Base58BTC, append(append([]byte{}, ed25519PubCodec...), pub...))
}

// DecodePublicKey reverses EncodePublicKey.
func DecodePublicKey(encoded string) (ed25519.PublicKey, error) {
	_, data, err := multibase.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(data) != len(ed25519PubCodec)+ed25519.PublicKeySize ||
		data[0] != ed25519PubCodec[0] || data[1] != ed25519PubCodec[1] {
		return nil, errors.New("public key is not a multicodec ed25519 key")
	}
	return ed25519.PublicKey(data[len(ed25519PubCodec):]), nil
}

// ValidID reports whether id looks like an identity id this provider issues.
func ValidID(id string) bool {
	rest, ok := strings.CutPrefix(id, didKeyPrefix)
	if !ok {
		return false
	}
	_, err := DecodePublicKey(rest)
	return err == nil
}
