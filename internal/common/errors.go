// Package common defines sentinel errors and small helpers shared across
// BuildVault components. Callers should use errors.Is to match the errors.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Upload/partition errors.
	ErrValidation     = errors.New("validation error")
	ErrBundleTooLarge = errors.New("bundle too large")

	// Transient collaborator failures. Retryable by the caller.
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrQuotaExceeded         = errors.New("storage quota exceeded")
	ErrKeyServiceUnavailable = errors.New("key service unavailable")

	// Ticket/lease lifecycle errors.
	ErrInvalidTicket   = errors.New("invalid ticket")
	ErrExpired         = errors.New("expired")
	ErrAlreadyConsumed = errors.New("already consumed")
	ErrReplayDetected  = errors.New("replay detected")
	ErrNodeMismatch    = errors.New("node mismatch")
)
