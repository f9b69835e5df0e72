package authorization

import (
	dErrors "attest/pkg/domain-errors"
)

// Reason identifies which check rejected a request. The zero value means
// the request was authorized.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonMissingCredential    Reason = "missing_credential"
	ReasonIdentityMismatch     Reason = "identity_mismatch"
	ReasonUnauthorizedType     Reason = "unauthorized_type"
	ReasonOrganizationMismatch Reason = "organization_mismatch"
	ReasonInitiatorNotVerified Reason = "initiator_not_verified"
	ReasonNotAllowedToRevoke   Reason = "not_allowed_to_revoke"
)

var reasonMessages = map[Reason]string{
	ReasonMissingCredential:    "no valid verifiable credential",
	ReasonIdentityMismatch:     "user id of request does not concur with the initiator credential user id",
	ReasonUnauthorizedType:     "initiator is not allowed based on its type",
	ReasonOrganizationMismatch: "user must be in same organization",
	ReasonInitiatorNotVerified: "initiator has to be verified",
	ReasonNotAllowedToRevoke:   "not allowed to revoke credential",
}

// Message returns the client-facing description of the reason.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return string(r)
}

// Result is the outcome of an authorization decision.
type Result struct {
	Authorized bool
	Reason     Reason
}

func allow() Result {
	return Result{Authorized: true}
}

func deny(reason Reason) Result {
	return Result{Reason: reason}
}

// Err converts a rejection into a forbidden domain error. It returns nil for
// an authorized result.
func (r Result) Err() error {
	if r.Authorized {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, r.Reason.Message())
}
