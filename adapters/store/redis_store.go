package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openscholar/veritas/core"
	"github.com/openscholar/veritas/ports"
)

const (
	userKeyPrefix      = "veritas:user:"
	walletKeyPrefix    = "veritas:wallet:"
	challengeKeyPrefix = "veritas:challenge:"
	sessionKeyPrefix   = "veritas:session:"
	credKeyPrefix      = "veritas:cred:"
	credIndexPrefix    = "veritas:creds:"
)

// consumeScript sets verifiedAt/userId on a challenge only while
// verifiedAt is still null. Returns 1 on success, 0 when already
// consumed, -1 when the row is missing. Running inside the server makes
// the check-then-act atomic across concurrent verifications.
var consumeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return -1
end
local challenge = cjson.decode(raw)
if challenge['verifiedAt'] then
  return 0
end
challenge['verifiedAt'] = ARGV[1]
challenge['userId'] = ARGV[2]
redis.call('SET', KEYS[1], cjson.encode(challenge))
return 1
`)

// upsertCredScript replaces the row keyed by (userID, type) while keeping
// the original row id, and indexes the type for listing.
var upsertCredScript = redis.NewScript(`
local old = redis.call('GET', KEYS[1])
local cred = cjson.decode(ARGV[1])
if old then
  cred['id'] = cjson.decode(old)['id']
end
redis.call('SET', KEYS[1], cjson.encode(cred))
redis.call('SADD', KEYS[2], ARGV[2])
return cred['id']
`)

// RedisStore is a Redis implementation of the Store interface. Rows are
// stored as JSON; challenges and sessions are kept without TTL for audit.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis store and verifies connectivity.
func NewRedisStore(ctx context.Context, client *redis.Client) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

var _ ports.Store = (*RedisStore)(nil)

func (s *RedisStore) CreateUser(ctx context.Context, user *core.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, userKeyPrefix+user.ID, raw, 0)
	pipe.Set(ctx, walletKeyPrefix+user.WalletAddress, user.ID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreFailed, err)
	}
	return nil
}

func (s *RedisStore) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	var user core.User
	if err := s.getJSON(ctx, userKeyPrefix+id, &user, core.ErrUserNotFound); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *RedisStore) GetUserByWallet(ctx context.Context, walletAddress string) (*core.User, error) {
	id, err := s.client.Get(ctx, walletKeyPrefix+walletAddress).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", core.ErrStoreFailed, err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *RedisStore) CreateChallenge(ctx context.Context, challenge *core.Challenge) error {
	return s.setJSON(ctx, challengeKeyPrefix+challenge.Nonce, challenge)
}

func (s *RedisStore) GetChallenge(ctx context.Context, nonce string) (*core.Challenge, error) {
	var challenge core.Challenge
	if err := s.getJSON(ctx, challengeKeyPrefix+nonce, &challenge, core.ErrChallengeNotFound); err != nil {
		return nil, err
	}
	return &challenge, nil
}

func (s *RedisStore) ConsumeChallenge(ctx context.Context, nonce string, verifiedAt time.Time, userID string) error {
	res, err := consumeScript.Run(ctx, s.client,
		[]string{challengeKeyPrefix + nonce},
		verifiedAt.Format(time.RFC3339Nano), userID,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreFailed, err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return core.ErrChallengeConsumed
	default:
		return core.ErrChallengeNotFound
	}
}

func (s *RedisStore) CreateSession(ctx context.Context, session *core.Session) error {
	return s.setJSON(ctx, sessionKeyPrefix+session.Token, session)
}

func (s *RedisStore) GetSession(ctx context.Context, token string) (*core.Session, error) {
	var session core.Session
	if err := s.getJSON(ctx, sessionKeyPrefix+token, &session, core.ErrSessionNotFound); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *RedisStore) TouchSession(ctx context.Context, token string, usedAt time.Time) error {
	// Plain read-modify-write: lastUsedAt is advisory and lost updates
	// are acceptable.
	session, err := s.GetSession(ctx, token)
	if err != nil {
		return err
	}
	session.LastUsedAt = usedAt
	return s.setJSON(ctx, sessionKeyPrefix+token, session)
}

func (s *RedisStore) RevokeSession(ctx context.Context, token string, revokedAt time.Time) error {
	session, err := s.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if session.RevokedAt != nil {
		return nil
	}
	session.RevokedAt = &revokedAt
	return s.setJSON(ctx, sessionKeyPrefix+token, session)
}

func (s *RedisStore) UpsertCredential(ctx context.Context, cred *core.Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	key := credKeyPrefix + cred.UserID + ":" + cred.Type
	id, err := upsertCredScript.Run(ctx, s.client,
		[]string{key, credIndexPrefix + cred.UserID},
		string(raw), cred.Type,
	).Text()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreFailed, err)
	}
	cred.ID = id
	return nil
}

func (s *RedisStore) ListCredentials(ctx context.Context, userID string) ([]*core.Credential, error) {
	types, err := s.client.SMembers(ctx, credIndexPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreFailed, err)
	}

	out := make([]*core.Credential, 0, len(types))
	for _, credType := range types {
		var cred core.Credential
		err := s.getJSON(ctx, credKeyPrefix+userID+":"+credType, &cred, nil)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		out = append(out, &cred)
	}
	return out, nil
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) setJSON(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreFailed, err)
	}
	return nil
}

func (s *RedisStore) getJSON(ctx context.Context, key string, out interface{}, missing error) error {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if missing != nil {
				return missing
			}
			return err
		}
		return fmt.Errorf("%w: %v", core.ErrStoreFailed, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal row: %w", err)
	}
	return nil
}
