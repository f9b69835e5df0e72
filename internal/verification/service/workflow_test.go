package service

import (
	"attest/internal/verification/authorization"
	"attest/internal/verification/lock"
	"attest/internal/verification/models"
	dErrors "attest/pkg/domain-errors"
)

// Workflow tests share the ServiceSuite fixture: a registered, trusted admin
// root of type "service".

func (s *ServiceSuite) TestNewWorkflowRequiresServerIdentity() {
	unbound := s.newService(s.store, lock.NewMemoryBackend())
	engine, err := authorization.New(nil, s.svc, authorization.NewStoreAdminAuthorizer(s.store))
	s.Require().NoError(err)
	_, err = NewWorkflow(unbound, engine)
	s.Error(err)
}

func (s *ServiceSuite) TestSubjectMustExist() {
	_, err := s.workflow.CreateVerifiableCredential(s.ctx, CreateRequest{
		SubjectID: "did:key:nobody",
		Requester: s.root,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestInitiatorIDRequired() {
	subject := s.register(models.RoleUser, "person", "")
	_, err := s.workflow.CreateVerifiableCredential(s.ctx, CreateRequest{
		SubjectID: subject.IdentityID,
		Requester: &models.User{},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestAdminRootVerifiesWithoutCredential() {
	subject := s.register(models.RoleUser, "person", "acme")
	res, err := s.workflow.CreateVerifiableCredential(s.ctx, CreateRequest{
		SubjectID: subject.IdentityID,
		Requester: s.root,
	})
	s.Require().NoError(err)
	s.Require().NotNil(res.Credential)
	s.Equal(subject.IdentityID, res.Credential.ID)
	s.Equal("acme", res.Credential.CredentialSubject.Organization)

	rec, err := s.store.FindCredential(s.ctx, subject.IdentityID, res.Credential.SignatureValue, s.root.IdentityID)
	s.Require().NoError(err)
	s.Equal(s.root.IdentityID, rec.InitiatorID)
}

func (s *ServiceSuite) TestNonAdminWithoutCredentialIsRejected() {
	requester := s.register(models.RoleUser, "organization", "")
	subject := s.register(models.RoleUser, "person", "")
	_, err := s.workflow.CreateVerifiableCredential(s.ctx, CreateRequest{
		SubjectID: subject.IdentityID,
		Requester: requester,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Contains(err.Error(), authorization.ReasonMissingCredential.Message())
}

func (s *ServiceSuite) TestVerifiedInitiatorVerifiesSameOrganization() {
	initiator := s.register(models.RoleUser, "organization", "acme")
	initiatorVC := s.issue(initiator)
	subject := s.register(models.RoleUser, "person", "acme")

	res, err := s.workflow.CreateVerifiableCredential(s.ctx, CreateRequest{
		SubjectID:   subject.IdentityID,
		InitiatorVC: initiatorVC,
		Requester:   initiator,
	})
	s.Require().NoError(err)
	s.True(s.svc.CheckVerifiableCredential(s.ctx, *res.Credential))

	rec, err := s.store.FindCredential(s.ctx, subject.IdentityID, res.Credential.SignatureValue, s.root.IdentityID)
	s.Require().NoError(err)
	s.Equal(initiator.IdentityID, rec.InitiatorID)

	s.Run("other organization is rejected", func() {
		outsider := s.register(models.RoleUser, "person", "globex")
		_, err := s.workflow.CreateVerifiableCredential(s.ctx, CreateRequest{
			SubjectID:   outsider.IdentityID,
			InitiatorVC: initiatorVC,
			Requester:   initiator,
		})
		s.Require().Error(err)
		s.Contains(err.Error(), authorization.ReasonOrganizationMismatch.Message())
	})

	s.Run("revoked initiator credential is rejected", func() {
		initRec, err := s.store.FindCredential(s.ctx, initiator.IdentityID, initiatorVC.SignatureValue, s.root.IdentityID)
		s.Require().NoError(err)
		s.Require().NoError(s.svc.RevokeVerifiableCredential(s.ctx, *initRec))
		_, err = s.workflow.CreateVerifiableCredential(s.ctx, CreateRequest{
			SubjectID:   subject.IdentityID,
			InitiatorVC: initiatorVC,
			Requester:   initiator,
		})
		s.Require().Error(err)
		s.Contains(err.Error(), authorization.ReasonInitiatorNotVerified.Message())
	})
}

func (s *ServiceSuite) TestCheckExistingCredentials() {
	subject := s.register(models.RoleUser, "person", "")
	requester := s.register(models.RoleUser, "person", "")

	res, err := s.workflow.CreateVerifiableCredential(s.ctx, CreateRequest{
		SubjectID:       subject.IdentityID,
		CheckExistingVC: true,
		Requester:       requester,
	})
	s.Require().NoError(err)
	s.Nil(res.Credential)
	s.Require().NotNil(res.Verification)
	s.False(res.Verification.Verified)
	s.Equal(requester.IdentityID, res.Verification.VerificationIssuerID)

	s.issue(subject)
	res, err = s.workflow.CreateVerifiableCredential(s.ctx, CreateRequest{
		SubjectID:       subject.IdentityID,
		CheckExistingVC: true,
		Requester:       requester,
	})
	s.Require().NoError(err)
	s.True(res.Verification.Verified)
}

func (s *ServiceSuite) TestRevokeVerification() {
	subject := s.register(models.RoleUser, "person", "acme")
	vc := s.issue(subject)

	s.Run("unknown credential", func() {
		err := s.workflow.RevokeVerification(s.ctx, RevokeRequest{SubjectID: subject.IdentityID, SignatureValue: "zmissing", Requester: subject})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("stranger is not allowed", func() {
		stranger := s.register(models.RoleUser, "person", "")
		err := s.workflow.RevokeVerification(s.ctx, RevokeRequest{SubjectID: subject.IdentityID, SignatureValue: vc.SignatureValue, Requester: stranger})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Contains(err.Error(), authorization.ReasonNotAllowedToRevoke.Message())
	})

	s.Run("admin of another organization is not allowed", func() {
		admin := s.register(models.RoleAdmin, "person", "globex")
		err := s.workflow.RevokeVerification(s.ctx, RevokeRequest{SubjectID: subject.IdentityID, SignatureValue: vc.SignatureValue, Requester: admin})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("subject revokes its own credential", func() {
		err := s.workflow.RevokeVerification(s.ctx, RevokeRequest{SubjectID: subject.IdentityID, SignatureValue: vc.SignatureValue, Requester: subject})
		s.Require().NoError(err)
		s.False(s.svc.CheckVerifiableCredential(s.ctx, *vc))
	})
}

func (s *ServiceSuite) TestWorkflowRequester() {
	u, err := s.workflow.Requester(s.ctx, s.root.IdentityID)
	s.Require().NoError(err)
	s.True(u.IsAdmin())

	_, err = s.workflow.Requester(s.ctx, "did:key:nobody")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
