package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/multiformats/go-multibase"
	"golang.org/x/sync/errgroup"

	"attest/internal/verification/models"
)

// maxParallelChecks bounds concurrent credential checks per call.
const maxParallelChecks = 8

func (s *Service) sign(vc *models.VerifiableCredential, key models.Key) error {
	payload, err := vc.SigningPayload()
	if err != nil {
		return fmt.Errorf("encode signing payload: %w", err)
	}
	sig, err := s.identities.Sign(key.SecretKey, payload)
	if err != nil {
		return err
	}
	encoded, err := multibase.Encode(multibase.Base58BTC, sig)
	if err != nil {
		return fmt.Errorf("encode signature: %w", err)
	}
	vc.SignatureValue = encoded
	return nil
}

func (s *Service) verifySignature(vc models.VerifiableCredential, key models.Key) (bool, error) {
	_, sig, err := multibase.Decode(vc.SignatureValue)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	payload, err := vc.SigningPayload()
	if err != nil {
		return false, fmt.Errorf("encode signing payload: %w", err)
	}
	return s.identities.Verify(key.PublicKey, payload, sig)
}

// HasVerifiedVerifiableCredential reports whether any of vcs currently
// checks out. Checks run concurrently and stop at the first valid one.
func (s *Service) HasVerifiedVerifiableCredential(ctx context.Context, vcs []models.VerifiableCredential) (bool, error) {
	if len(vcs) == 0 {
		return false, nil
	}
	checkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var found atomic.Bool
	g, gctx := errgroup.WithContext(checkCtx)
	g.SetLimit(maxParallelChecks)
	for _, vc := range vcs {
		if found.Load() {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if s.CheckVerifiableCredential(gctx, vc) {
				found.Store(true)
				cancel()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	if !found.Load() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}
	return found.Load(), nil
}
