package models

import (
	"encoding/json"
	"time"
)

// Role of a user record.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// CredentialTypeVerifiedIdentity is the only credential type this service issues.
const CredentialTypeVerifiedIdentity = "VerifiedIdentityCredential"

// User is a registered identity together with its credentials and latest
// verification state.
type User struct {
	IdentityID            string                 `json:"identityId"`
	Role                  Role                   `json:"role"`
	Type                  string                 `json:"type"`
	Organization          string                 `json:"organization,omitempty"`
	Claim                 json.RawMessage        `json:"claim,omitempty"`
	VerifiableCredentials []VerifiableCredential `json:"verifiableCredentials,omitempty"`
	Verification          *Verification          `json:"verification,omitempty"`
}

// IsAdmin reports whether the user holds the Admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CredentialSubject names who a credential is about.
type CredentialSubject struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Organization string          `json:"organization,omitempty"`
	Claim        json.RawMessage `json:"claim,omitempty"`
}

// VerifiableCredential attests that CredentialSubject.ID is verified.
// Only SignatureValue is excluded from the signed payload.
type VerifiableCredential struct {
	ID                string             `json:"id"`
	Type              string             `json:"type"`
	CredentialSubject *CredentialSubject `json:"credentialSubject,omitempty"`
	Issuer            string             `json:"issuer"`
	IssuanceDate      time.Time          `json:"issuanceDate"`
	CredentialIndex   int64              `json:"credentialIndex"`
	SignatureValue    string             `json:"signatureValue,omitempty"`
}

// SigningPayload returns the canonical bytes covered by SignatureValue.
func (vc VerifiableCredential) SigningPayload() ([]byte, error) {
	vc.SignatureValue = ""
	vc.IssuanceDate = vc.IssuanceDate.UTC()
	return json.Marshal(vc)
}

// CredentialRecord is the persisted form of an issued credential.
type CredentialRecord struct {
	VC              VerifiableCredential `json:"vc"`
	InitiatorID     string               `json:"initiatorId"`
	CredentialIndex int64                `json:"credentialIndex"`
	Revoked         bool                 `json:"revoked"`
}

// Key is one key pair slot in a key collection.
type Key struct {
	Position  int    `json:"position"`
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
	Revoked   bool   `json:"revoked"`
}

// KeyCollection is a fixed-size bucket of keys addressed by
// floor(credentialIndex / Size).
type KeyCollection struct {
	Index     int64     `json:"index"`
	Size      int       `json:"size"`
	Keys      []Key     `json:"keys"`
	CreatedAt time.Time `json:"createdAt"`
}

// Verification is the latest verification check for a user. It is
// overwritten, never appended.
type Verification struct {
	IdentityID           string    `json:"identityId"`
	Verified             bool      `json:"verified"`
	LastTimeChecked      time.Time `json:"lastTimeChecked"`
	VerificationDate     time.Time `json:"verificationDate"`
	VerificationIssuerID string    `json:"verificationIssuerId"`
}

// CredentialEventType classifies entries of the credential event log.
type CredentialEventType string

const (
	EventCredentialIssued  CredentialEventType = "vc_issued"
	EventCredentialRevoked CredentialEventType = "vc_revoked"
)

// CredentialEvent is an append-only log entry.
type CredentialEvent struct {
	ID              string              `json:"id"`
	Type            CredentialEventType `json:"type"`
	SubjectID       string              `json:"subjectId"`
	IssuerID        string              `json:"issuerId"`
	InitiatorID     string              `json:"initiatorId,omitempty"`
	CredentialIndex int64               `json:"credentialIndex"`
	SignatureValue  string              `json:"signatureValue"`
	OccurredAt      time.Time           `json:"occurredAt"`
}
