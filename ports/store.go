package ports

import (
	"context"
	"time"

	"github.com/openscholar/veritas/core"
)

// UserStore persists identity roots. Users are never deleted.
type UserStore interface {
	CreateUser(ctx context.Context, user *core.User) error
	GetUserByID(ctx context.Context, id string) (*core.User, error)
	// GetUserByWallet looks a user up by lowercase wallet address.
	// Returns core.ErrUserNotFound when no row exists.
	GetUserByWallet(ctx context.Context, walletAddress string) (*core.User, error)
}

// ChallengeStore persists authentication challenges. Rows are kept for
// audit and expire naturally; they are never deleted.
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, challenge *core.Challenge) error
	// GetChallenge returns core.ErrChallengeNotFound for unknown nonces.
	GetChallenge(ctx context.Context, nonce string) (*core.Challenge, error)
	// ConsumeChallenge atomically sets verifiedAt iff it is currently null.
	// Returns core.ErrChallengeConsumed if another caller got there first.
	// The read-check-write must not be split: two concurrent verifications
	// of one nonce must see exactly one winner.
	ConsumeChallenge(ctx context.Context, nonce string, verifiedAt time.Time, userID string) error
}

// SessionStore persists bearer sessions. Sessions are never deleted;
// revocation sets revokedAt.
type SessionStore interface {
	CreateSession(ctx context.Context, session *core.Session) error
	// GetSession returns core.ErrSessionNotFound for unknown tokens.
	GetSession(ctx context.Context, token string) (*core.Session, error)
	// TouchSession updates lastUsedAt only. Lost updates under concurrent
	// writes are acceptable; lastUsedAt is advisory telemetry.
	TouchSession(ctx context.Context, token string, usedAt time.Time) error
	// RevokeSession sets revokedAt on all non-revoked sessions for the
	// token. Idempotent: revoking an already-revoked token is a no-op.
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) error
}

// CredentialStore persists verified credentials with at most one row per
// (userID, type) pair.
type CredentialStore interface {
	// UpsertCredential atomically creates or replaces the row keyed by
	// (cred.UserID, cred.Type).
	UpsertCredential(ctx context.Context, cred *core.Credential) error
	ListCredentials(ctx context.Context, userID string) ([]*core.Credential, error)
}

// Store aggregates the four repositories an adapter provides together.
type Store interface {
	UserStore
	ChallengeStore
	SessionStore
	CredentialStore
}
