package authorization

import (
	"context"
	"errors"
	"fmt"

	"attest/internal/verification/models"
	"attest/internal/verification/ports"
	"attest/pkg/platform/sentinel"
)

// StoreAdminAuthorizer grants admin rights to requesters with the Admin role
// over existing subjects. An admin bound to an organization may only act on
// subjects of that organization.
type StoreAdminAuthorizer struct {
	users ports.UserStore
}

func NewStoreAdminAuthorizer(users ports.UserStore) *StoreAdminAuthorizer {
	return &StoreAdminAuthorizer{users: users}
}

func (a *StoreAdminAuthorizer) IsAuthorizedAdmin(ctx context.Context, requester *models.User, subjectID string) (bool, error) {
	if !requester.IsAdmin() {
		return false, nil
	}
	subject, err := a.users.FindUser(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find subject: %w", err)
	}
	if requester.Organization != "" && requester.Organization != subject.Organization {
		return false, nil
	}
	return true, nil
}
