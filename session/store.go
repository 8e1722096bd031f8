package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix namespaces every key written by the store.
	DefaultPrefix = "tc"
	// DefaultTokenBytes is the default token entropy.
	DefaultTokenBytes = 32
	// DefaultMaxTokenAttempts bounds retries on token collision.
	DefaultMaxTokenAttempts = 3

	maxCompleteRetries = 3
)

// Config configures a Store.
type Config struct {
	Prefix           string
	TokenBytes       int
	MaxTokenAttempts int
}

// Store is a Redis-backed session store enforcing a single live session per
// identity. It holds no in-process session state and is safe for concurrent
// use.
type Store struct {
	redis       redis.UniversalClient
	prefix      string
	tokenBytes  int
	maxAttempts int
	now         func() time.Time
}

// NewStore creates a [Store] backed by client. Zero Config fields take their
// defaults.
func NewStore(client redis.UniversalClient, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("session store requires a redis client")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.TokenBytes == 0 {
		cfg.TokenBytes = DefaultTokenBytes
	}
	if cfg.TokenBytes < MinTokenBytes {
		return nil, fmt.Errorf("token bytes must be >= %d", MinTokenBytes)
	}
	if cfg.MaxTokenAttempts <= 0 {
		cfg.MaxTokenAttempts = DefaultMaxTokenAttempts
	}

	return &Store{
		redis:       client,
		prefix:      cfg.Prefix,
		tokenBytes:  cfg.TokenBytes,
		maxAttempts: cfg.MaxTokenAttempts,
		now:         time.Now,
	}, nil
}

func (s *Store) key(token string) string {
	return s.prefix + ":s:" + token
}

func (s *Store) indexKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// TokenBytes is the configured token entropy.
func (s *Store) TokenBytes() int {
	return s.tokenBytes
}

// ValidToken reports whether token has the shape this store issues.
func (s *Store) ValidToken(token string) bool {
	return ValidToken(token, s.tokenBytes)
}

// Store writes a fully authenticated session for rec.UserID.
//
// It returns ErrAlreadyLogged when the identity already holds a live session,
// including when a concurrent Store for the same identity wins the index.
//
//	Performance: 2 Redis commands on the fast path.
func (s *Store) Store(ctx context.Context, rec *Record, ttl time.Duration) (Issued, error) {
	r := *rec
	r.IsAuthenticated = true
	return s.issue(ctx, &r, ttl)
}

// StorePending writes a session awaiting its second factor. Callers pass a
// TTL shorter than the full session TTL.
func (s *Store) StorePending(ctx context.Context, rec *Record, ttl time.Duration) (Issued, error) {
	r := *rec
	r.IsAuthenticated = false
	return s.issue(ctx, &r, ttl)
}

func (s *Store) issue(ctx context.Context, rec *Record, ttl time.Duration) (Issued, error) {
	if ttl <= 0 {
		return Issued{}, errors.New("session ttl must be > 0")
	}
	if rec.UserID == "" {
		return Issued{}, errors.New("session user id is required")
	}

	now := s.now()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now.UnixMilli()
	}

	payload, err := marshal(rec)
	if err != nil {
		return Issued{}, err
	}

	token, err := s.putUnique(ctx, payload, ttl)
	if err != nil {
		return Issued{}, err
	}

	if err := s.bindIndex(ctx, rec.UserID, token, ttl); err != nil {
		s.discard(ctx, token)
		return Issued{}, err
	}

	return Issued{Token: token, ExpiresAt: now.Add(ttl)}, nil
}

// putUnique writes payload under a fresh token, retrying on collision.
func (s *Store) putUnique(ctx context.Context, payload []byte, ttl time.Duration) (string, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		token, err := NewToken(s.tokenBytes)
		if err != nil {
			return "", err
		}

		ok, err := s.redis.SetNX(ctx, s.key(token), payload, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if ok {
			return token, nil
		}
	}
	return "", ErrTokenCollision
}

// bindIndex claims the identity index for token. A live competing session
// wins; an index left behind by an expired or deleted session is replaced.
func (s *Store) bindIndex(ctx context.Context, userID, token string, ttl time.Duration) error {
	idx := s.indexKey(userID)

	ok, err := s.redis.SetNX(ctx, idx, token, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ok {
		return nil
	}

	current, err := s.redis.Get(ctx, idx).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if current != "" {
		live, err := s.redis.Exists(ctx, s.key(current)).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if live == 1 {
			return ErrAlreadyLogged
		}
	}

	swapped, err := claimIndexLua.Run(ctx, s.redis, []string{idx}, current, token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if swapped != 1 {
		return ErrAlreadyLogged
	}
	return nil
}

// discard removes a session key written by a failed issue. It runs even when
// ctx is already cancelled so no orphan outlives the failed call longer than
// necessary.
func (s *Store) discard(ctx context.Context, token string) {
	_ = s.redis.Del(context.WithoutCancel(ctx), s.key(token)).Err()
}

// TryGet returns the session behind token. Unknown, expired and malformed
// tokens all yield ErrNotFound; malformed ones never reach Redis.
//
//	Performance: 1 Redis GET.
func (s *Store) TryGet(ctx context.Context, token string) (*Record, error) {
	if !s.ValidToken(token) {
		return nil, ErrNotFound
	}

	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return unmarshal(data)
}

// SetCompleted promotes the pending session behind token to authenticated,
// keeping the token and resetting its TTL to ttl. Readers observe either the
// pending or the full record, never neither. A second call returns
// ErrAlreadyCompleted.
func (s *Store) SetCompleted(ctx context.Context, token string, ttl time.Duration) (Issued, error) {
	if ttl <= 0 {
		return Issued{}, errors.New("session ttl must be > 0")
	}
	if !s.ValidToken(token) {
		return Issued{}, ErrNotFound
	}

	key := s.key(token)
	var userID string

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		rec, err := unmarshal(data)
		if err != nil {
			return err
		}
		if rec.IsAuthenticated {
			return ErrAlreadyCompleted
		}
		rec.IsAuthenticated = true
		userID = rec.UserID

		payload, err := marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxCompleteRetries; attempt++ {
		err = s.redis.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyCompleted) ||
			errors.Is(err, ErrCorruptRecord) || errors.Is(err, ErrRedisUnavailable) {
			return Issued{}, err
		}
		return Issued{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if err := expireIndexLua.Run(ctx, s.redis, []string{s.indexKey(userID)}, token, ttl.Milliseconds()).Err(); err != nil {
		return Issued{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return Issued{Token: token, ExpiresAt: s.now().Add(ttl)}, nil
}

// Delete removes the session behind token and its identity index entry.
// Deleting an absent session is a no-op.
func (s *Store) Delete(ctx context.Context, token string) error {
	if !s.ValidToken(token) {
		return nil
	}

	key := s.key(token)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := unmarshal(data)
	if err != nil {
		// The payload is gone; an index pointing at it is stale and is
		// cleaned up by the next read.
		return nil
	}

	if err := deleteIndexLua.Run(ctx, s.redis, []string{s.indexKey(rec.UserID)}, token).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RefreshToken moves an authenticated session to a new token with a fresh
// TTL. The old token stops resolving immediately. Pending sessions return
// ErrSessionPending.
//
// The new token is durable once RENAMENX succeeds. A caller that loses the
// response has no way to recover it short of logging in again.
func (s *Store) RefreshToken(ctx context.Context, oldToken string, ttl time.Duration) (Issued, error) {
	if ttl <= 0 {
		return Issued{}, errors.New("session ttl must be > 0")
	}

	rec, err := s.TryGet(ctx, oldToken)
	if err != nil {
		return Issued{}, err
	}
	if !rec.IsAuthenticated {
		return Issued{}, ErrSessionPending
	}

	oldKey := s.key(oldToken)
	var newToken string
	for attempt := 0; attempt < s.maxAttempts && newToken == ""; attempt++ {
		candidate, err := NewToken(s.tokenBytes)
		if err != nil {
			return Issued{}, err
		}

		ok, err := s.redis.RenameNX(ctx, oldKey, s.key(candidate)).Result()
		if err != nil {
			if isNoSuchKey(err) {
				return Issued{}, ErrNotFound
			}
			return Issued{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if ok {
			newToken = candidate
		}
	}
	if newToken == "" {
		return Issued{}, ErrTokenCollision
	}

	if err := s.redis.PExpire(ctx, s.key(newToken), ttl).Err(); err != nil {
		return Issued{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if err := moveIndexLua.Run(ctx, s.redis, []string{s.indexKey(rec.UserID)}, oldToken, newToken, ttl.Milliseconds()).Err(); err != nil {
		return Issued{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return Issued{Token: newToken, ExpiresAt: s.now().Add(ttl)}, nil
}

// Active describes the live session held by an identity.
type Active struct {
	Token     string
	Remaining time.Duration
}

// IsAlreadyLogged reports the live session indexed for userID, if any. An
// index entry whose session is gone is removed and reported as absent.
func (s *Store) IsAlreadyLogged(ctx context.Context, userID string) (Active, bool, error) {
	idx := s.indexKey(userID)

	token, err := s.redis.Get(ctx, idx).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Active{}, false, nil
		}
		return Active{}, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	ttl, err := s.redis.PTTL(ctx, s.key(token)).Result()
	if err != nil {
		return Active{}, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl <= 0 {
		if err := deleteIndexLua.Run(ctx, s.redis, []string{idx}, token).Err(); err != nil {
			return Active{}, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return Active{}, false, nil
	}

	return Active{Token: token, Remaining: ttl}, true, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func isNoSuchKey(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no such key")
}
