package memory

import (
	"context"
	"slices"
	"sync"

	"attest/internal/identity"
	"attest/internal/verification/models"
	"attest/internal/verification/ports"
	"attest/pkg/platform/sentinel"
)

type credentialKey struct {
	issuer    string
	subject   string
	signature string
}

type indexKey struct {
	issuer string
	index  int64
}

var _ ports.StateStore = (*Store)(nil)

// Store is an in-memory StateStore. Values are copied in and out so callers
// cannot mutate stored state.
type Store struct {
	mu             sync.RWMutex
	users          map[string]models.User
	identities     map[string]identity.Record
	credentials    map[credentialKey]models.CredentialRecord
	issuedIndexes  map[indexKey]struct{}
	trustedRoots   []string
	counters       map[string]int64
	keyCollections map[int64]models.KeyCollection
}

func New() *Store {
	return &Store{
		users:          make(map[string]models.User),
		identities:     make(map[string]identity.Record),
		credentials:    make(map[credentialKey]models.CredentialRecord),
		issuedIndexes:  make(map[indexKey]struct{}),
		counters:       make(map[string]int64),
		keyCollections: make(map[int64]models.KeyCollection),
	}
}

func (s *Store) FindUser(_ context.Context, identityID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) SaveUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.IdentityID] = *cloneUser(*user)
	return nil
}

func (s *Store) AddCredential(_ context.Context, identityID string, vc models.VerifiableCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[identityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.VerifiableCredentials = append(slices.Clone(u.VerifiableCredentials), vc)
	s.users[identityID] = u
	return nil
}

func (s *Store) UpdateVerification(_ context.Context, v models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[v.IdentityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.Verification = &v
	s.users[v.IdentityID] = u
	return nil
}

func (s *Store) SaveIdentity(_ context.Context, rec identity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Document.VerificationMethod = slices.Clone(rec.Document.VerificationMethod)
	s.identities[rec.Document.ID] = rec
	return nil
}

func (s *Store) FindIdentity(_ context.Context, identityID string) (*identity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.identities[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	rec.Document.VerificationMethod = slices.Clone(rec.Document.VerificationMethod)
	return &rec, nil
}

func (s *Store) SaveCredential(_ context.Context, rec models.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ik := indexKey{issuer: rec.VC.Issuer, index: rec.CredentialIndex}
	if _, taken := s.issuedIndexes[ik]; taken {
		return sentinel.ErrConflict
	}
	s.issuedIndexes[ik] = struct{}{}
	s.credentials[credentialKey{issuer: rec.VC.Issuer, subject: rec.VC.ID, signature: rec.VC.SignatureValue}] = rec
	return nil
}

func (s *Store) FindCredential(_ context.Context, subjectID, signatureValue, issuerID string) (*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.credentials[credentialKey{issuer: issuerID, subject: subjectID, signature: signatureValue}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) RevokeCredential(_ context.Context, subjectID, signatureValue, issuerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := credentialKey{issuer: issuerID, subject: subjectID, signature: signatureValue}
	rec, ok := s.credentials[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.Revoked = true
	s.credentials[key] = rec
	return nil
}

func (s *Store) AddTrustedRoot(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.trustedRoots, identityID) {
		s.trustedRoots = append(s.trustedRoots, identityID)
	}
	return nil
}

func (s *Store) ListTrustedRoots(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.trustedRoots), nil
}

func (s *Store) NextCredentialIndex(_ context.Context, issuerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[issuerID], nil
}

func (s *Store) ClaimCredentialIndex(_ context.Context, issuerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimed := s.counters[issuerID]
	s.counters[issuerID] = claimed + 1
	return claimed, nil
}

func (s *Store) FindKeyCollection(_ context.Context, index int64) (*models.KeyCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kc, ok := s.keyCollections[index]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	kc.Keys = slices.Clone(kc.Keys)
	return &kc, nil
}

func (s *Store) CreateKeyCollection(_ context.Context, kc models.KeyCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keyCollections[kc.Index]; exists {
		return sentinel.ErrConflict
	}
	kc.Keys = slices.Clone(kc.Keys)
	s.keyCollections[kc.Index] = kc
	return nil
}

func (s *Store) RevokeKey(_ context.Context, index int64, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kc, ok := s.keyCollections[index]
	if !ok || position < 0 || position >= len(kc.Keys) {
		return sentinel.ErrNotFound
	}
	kc.Keys = slices.Clone(kc.Keys)
	kc.Keys[position].Revoked = true
	s.keyCollections[index] = kc
	return nil
}

func cloneUser(u models.User) *models.User {
	u.VerifiableCredentials = slices.Clone(u.VerifiableCredentials)
	u.Claim = slices.Clone(u.Claim)
	if u.Verification != nil {
		v := *u.Verification
		u.Verification = &v
	}
	return &u
}
