package sentinel

import "errors"

// Sentinel errors for persistence facts. Stores and lock backends return these
// (optionally wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: record does not exist
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrExpired: a time-boxed record (lock) has lapsed
//   - ErrInvalidState: record in wrong state for the operation (e.g. un-revoke)
//   - ErrUnavailable: backend temporarily unavailable or lock held elsewhere
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
