package trustcore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type tfaLimiterConfig struct {
	prefix      string
	maxAttempts int
	window      time.Duration
}

// tfaLimiter counts wrong second-factor codes per pending token. The counter
// lives no longer than the pending session it guards.
type tfaLimiter struct {
	redis redis.UniversalClient
	cfg   tfaLimiterConfig
}

func newTFALimiter(client redis.UniversalClient, cfg tfaLimiterConfig) *tfaLimiter {
	return &tfaLimiter{redis: client, cfg: cfg}
}

func (l *tfaLimiter) key(token string) string {
	return l.cfg.prefix + ":tfa:" + token
}

// RecordFailure counts one wrong code and reports whether the limit is reached.
func (l *tfaLimiter) RecordFailure(ctx context.Context, token string) (bool, error) {
	key := l.key(token)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.cfg.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
		}
	}
	return count >= int64(l.cfg.maxAttempts), nil
}

func (l *tfaLimiter) Reset(ctx context.Context, token string) error {
	if err := l.redis.Del(ctx, l.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
	}
	return nil
}
