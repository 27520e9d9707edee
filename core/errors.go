package core

import (
	"errors"
	"fmt"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge has expired")
	ErrChallengeConsumed = errors.New("challenge has already been used")
	ErrAddressMismatch   = errors.New("wallet address does not match challenge")
	ErrDIDMismatch       = errors.New("did does not match challenge")
	ErrInvalidAddress    = errors.New("invalid wallet address")
	ErrInvalidDID        = errors.New("invalid did")
	ErrInvalidSignature  = errors.New("invalid signature")

	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session has expired")
	ErrSessionRevoked  = errors.New("session has been revoked")
	ErrSessionOwner    = errors.New("session does not belong to user")

	ErrVaultSealed    = errors.New("vault secret is not configured")
	ErrVaultCorrupted = errors.New("vault blob failed authentication")

	ErrStoreFailed = errors.New("store operation failed")
)

// VerificationError is a credential rejection: a structural or business-rule
// failure, including tamper or revocation against an on-chain anchor. The
// Reason string is the single human-readable message surfaced to callers.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return e.Reason
}

// Rejectf builds a VerificationError with a formatted reason.
func Rejectf(format string, args ...interface{}) *VerificationError {
	return &VerificationError{Reason: fmt.Sprintf(format, args...)}
}

// IsVerificationError reports whether err is a credential rejection.
func IsVerificationError(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}
