package store

import (
	"context"
	"sync"
	"time"

	"github.com/openscholar/veritas/core"
	"github.com/openscholar/veritas/ports"
)

// MemoryStore is an in-memory implementation of the Store interface,
// primarily for tests and local development.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*core.User       // by id
	wallets     map[string]string           // wallet -> user id
	challenges  map[string]*core.Challenge  // by nonce
	sessions    map[string]*core.Session    // by token
	credentials map[string]*core.Credential // by userID + "\x00" + type
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*core.User),
		wallets:     make(map[string]string),
		challenges:  make(map[string]*core.Challenge),
		sessions:    make(map[string]*core.Session),
		credentials: make(map[string]*core.Credential),
	}
}

var _ ports.Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateUser(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *user
	s.users[user.ID] = &copied
	s.wallets[user.WalletAddress] = user.ID
	return nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryStore) GetUserByWallet(ctx context.Context, walletAddress string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.wallets[walletAddress]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

func (s *MemoryStore) CreateChallenge(ctx context.Context, challenge *core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *challenge
	s.challenges[challenge.Nonce] = &copied
	return nil
}

func (s *MemoryStore) GetChallenge(ctx context.Context, nonce string) (*core.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	challenge, ok := s.challenges[nonce]
	if !ok {
		return nil, core.ErrChallengeNotFound
	}
	copied := *challenge
	return &copied, nil
}

// ConsumeChallenge holds the write lock across the check and the write, so
// concurrent consumers of one nonce see exactly one winner.
func (s *MemoryStore) ConsumeChallenge(ctx context.Context, nonce string, verifiedAt time.Time, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[nonce]
	if !ok {
		return core.ErrChallengeNotFound
	}
	if challenge.VerifiedAt != nil {
		return core.ErrChallengeConsumed
	}
	challenge.VerifiedAt = &verifiedAt
	challenge.UserID = userID
	return nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *session
	s.sessions[session.Token] = &copied
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, token string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *MemoryStore) TouchSession(ctx context.Context, token string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return core.ErrSessionNotFound
	}
	session.LastUsedAt = usedAt
	return nil
}

func (s *MemoryStore) RevokeSession(ctx context.Context, token string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil
	}
	if session.RevokedAt == nil {
		session.RevokedAt = &revokedAt
	}
	return nil
}

func (s *MemoryStore) UpsertCredential(ctx context.Context, cred *core.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cred.UserID + "\x00" + cred.Type
	if existing, ok := s.credentials[key]; ok {
		// The row id is stable across upserts.
		cred.ID = existing.ID
	}
	copied := *cred
	s.credentials[key] = &copied
	return nil
}

func (s *MemoryStore) ListCredentials(ctx context.Context, userID string) ([]*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Credential
	for _, cred := range s.credentials {
		if cred.UserID == userID {
			copied := *cred
			out = append(out, &copied)
		}
	}
	return out, nil
}
