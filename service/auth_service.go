package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openscholar/veritas/core"
	"github.com/openscholar/veritas/internal/eth"
	"github.com/openscholar/veritas/ports"
)

const (
	// ChallengeTTL is the window within which an issued challenge must be
	// verified.
	ChallengeTTL = 5 * time.Minute

	// DefaultSessionTTL applies when the caller does not request a custom
	// expiry.
	DefaultSessionTTL = 12 * time.Hour

	// MinSessionTTL is the floor below which caller-requested expiries are
	// ignored and the default used instead.
	MinSessionTTL = 300 * time.Second

	messageTemplate = "veritas.openscholar.org wants you to verify wallet ownership.\n\nDID: %s\nNonce: %s\nIssued At: %s"
)

// AuthService issues proof-of-possession challenges and mints bearer
// sessions from verified challenges.
type AuthService struct {
	store    ports.Store
	verifier ports.WalletVerifier
	events   ports.EventPublisher
	log      zerolog.Logger

	challengeTTL time.Duration
	sessionTTL   time.Duration
}

// NewAuthService wires the authentication service.
func NewAuthService(store ports.Store, verifier ports.WalletVerifier, events ports.EventPublisher, log zerolog.Logger) *AuthService {
	return &AuthService{
		store:        store,
		verifier:     verifier,
		events:       events,
		log:          log.With().Str("component", "auth").Logger(),
		challengeTTL: ChallengeTTL,
		sessionTTL:   DefaultSessionTTL,
	}
}

// IssuedChallenge is the public view of a freshly issued challenge.
type IssuedChallenge struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueChallenge creates a single-use challenge for walletAddress/did.
// Both are lowercase-normalized before storage; the signed message embeds
// the nonce, the DID, and the issuance timestamp so a nonce cannot be
// replayed against a different identity. No User row is created here.
func (s *AuthService) IssueChallenge(ctx context.Context, walletAddress, did string) (*IssuedChallenge, error) {
	if !eth.ValidAddress(walletAddress) {
		return nil, core.ErrInvalidAddress
	}
	did = core.NormalizeDID(did)
	if did == "" {
		return nil, core.ErrInvalidDID
	}
	walletAddress = core.NormalizeAddress(walletAddress)

	nonce, err := generateToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	now := time.Now().UTC()
	challenge := &core.Challenge{
		Nonce:         nonce,
		WalletAddress: walletAddress,
		DID:           did,
		Message:       fmt.Sprintf(messageTemplate, did, nonce, now.Format(time.RFC3339)),
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.challengeTTL),
	}

	if err := s.store.CreateChallenge(ctx, challenge); err != nil {
		return nil, fmt.Errorf("persist challenge: %w", err)
	}

	s.log.Debug().Str("wallet", walletAddress).Str("did", did).Msg("challenge issued")

	return &IssuedChallenge{
		Nonce:     challenge.Nonce,
		Message:   challenge.Message,
		ExpiresAt: challenge.ExpiresAt,
	}, nil
}

// VerifyRequest carries a signed challenge back for verification.
type VerifyRequest struct {
	WalletAddress    string
	DID              string
	Nonce            string
	Signature        string
	ExpiresInSeconds int64
	IPAddress        string
	UserAgent        string
}

// IssuedSession is the public result of a successful verification.
type IssuedSession struct {
	Token     string     `json:"token"`
	Nonce     string     `json:"nonce"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *core.User `json:"user"`
}

// VerifyAndIssueSession validates a signed challenge and mints a session.
// Checks run in order and short-circuit on first failure: unknown nonce,
// expiry, prior consumption, identity mismatch, then signature. The
// challenge is consumed with a conditional update so two concurrent
// verifications of one nonce can mint at most one session.
func (s *AuthService) VerifyAndIssueSession(ctx context.Context, req VerifyRequest) (*IssuedSession, error) {
	challenge, err := s.store.GetChallenge(ctx, req.Nonce)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if challenge.Expired(now) {
		return nil, core.ErrChallengeExpired
	}
	if challenge.Consumed() {
		return nil, core.ErrChallengeConsumed
	}

	walletAddress := core.NormalizeAddress(req.WalletAddress)
	if walletAddress != challenge.WalletAddress {
		return nil, core.ErrAddressMismatch
	}
	if core.NormalizeDID(req.DID) != challenge.DID {
		return nil, core.ErrDIDMismatch
	}

	if !s.verifier.VerifySignature(walletAddress, challenge.Message, req.Signature) {
		return nil, core.ErrInvalidSignature
	}

	user, err := s.resolveUser(ctx, walletAddress, challenge.DID)
	if err != nil {
		return nil, err
	}

	ttl := s.sessionTTL
	if req.ExpiresInSeconds >= int64(MinSessionTTL/time.Second) {
		ttl = time.Duration(req.ExpiresInSeconds) * time.Second
	}

	token, err := generateToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	// Consume first: if another request won the race, no session exists
	// for this nonce. A session row created after consumption may be
	// orphaned only by a crash between the two writes, which is safe.
	if err := s.store.ConsumeChallenge(ctx, challenge.Nonce, now, user.ID); err != nil {
		return nil, err
	}

	session := &core.Session{
		Token:      token,
		UserID:     user.ID,
		Nonce:      challenge.Nonce,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
		LastUsedAt: now,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishSessionIssued(ctx, user.ID, walletAddress); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish session issued event")
		}
	}

	s.log.Info().Str("user", user.ID).Str("wallet", walletAddress).Time("expires", session.ExpiresAt).Msg("session issued")

	return &IssuedSession{
		Token:     session.Token,
		Nonce:     session.Nonce,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	}, nil
}

// resolveUser finds the user for a wallet, creating one on first
// successful verification.
func (s *AuthService) resolveUser(ctx context.Context, walletAddress, did string) (*core.User, error) {
	user, err := s.store.GetUserByWallet(ctx, walletAddress)
	if err == nil {
		return user, nil
	}
	if err != core.ErrUserNotFound {
		return nil, err
	}

	user = &core.User{
		ID:            uuid.New().String(),
		WalletAddress: walletAddress,
		DID:           did,
		Role:          "researcher",
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info().Str("user", user.ID).Str("wallet", walletAddress).Msg("user created on first verification")
	return user, nil
}

// ValidateSession returns the session for token iff it is unrevoked and
// unexpired, and records the use. Expiry is never extended: renewal
// requires a fresh challenge.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*core.Session, error) {
	session, err := s.store.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if session.RevokedAt != nil {
		return nil, core.ErrSessionRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return nil, core.ErrSessionExpired
	}

	// Advisory only; a lost update here is harmless.
	if err := s.store.TouchSession(ctx, token, now); err != nil {
		s.log.Warn().Err(err).Msg("failed to touch session")
	}
	session.LastUsedAt = now

	return session, nil
}

// RevokeSession revokes every non-revoked session for token. Idempotent.
func (s *AuthService) RevokeSession(ctx context.Context, token string) error {
	session, err := s.store.GetSession(ctx, token)
	if err != nil {
		if err == core.ErrSessionNotFound {
			// Revoking an unknown token is a no-op.
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	if err := s.store.RevokeSession(ctx, token, now); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishSessionRevoked(ctx, session.UserID, token); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish session revoked event")
		}
	}

	s.log.Info().Str("user", session.UserID).Msg("session revoked")
	return nil
}

// GetUser returns the public user row by id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*core.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// generateToken returns n random bytes hex-encoded.
func generateToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
