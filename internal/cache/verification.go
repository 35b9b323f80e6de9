// Package cache wraps the redis-backed verification store: short-lived
// signup codes keyed by phone and session tokens keyed by user id.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	signupCodeKey = "clique:signup:code:%s"
	userTokenKey  = "clique:user:token:%d"
)

// Verification provides single-key get/set/delete with TTL. The store is
// last-write-wins; there is no compare-and-delete, so concurrent readers
// of the same code can both observe it before either deletes it.
type Verification struct {
	rdb *redis.Client
}

func NewVerification(rdb *redis.Client) *Verification {
	return &Verification{rdb: rdb}
}

// SignupCode returns the cached SMS code for phone, or "" when no code is
// cached (expired entries look identical to absent ones).
func (v *Verification) SignupCode(ctx context.Context, phone string) (string, error) {
	code, err := v.rdb.Get(ctx, fmt.Sprintf(signupCodeKey, phone)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("get signup code: %w", err)
	}
	return code, nil
}

// SetSignupCode caches the SMS code for phone with the given TTL,
// replacing any earlier code for the same phone.
func (v *Verification) SetSignupCode(ctx context.Context, phone, code string, ttl time.Duration) error {
	if err := v.rdb.Set(ctx, fmt.Sprintf(signupCodeKey, phone), code, ttl).Err(); err != nil {
		return fmt.Errorf("set signup code: %w", err)
	}
	return nil
}

// DelSignupCode evicts the cached code for phone. Callers treat failure
// as non-fatal; the entry expires on its own TTL anyway.
func (v *Verification) DelSignupCode(ctx context.Context, phone string) error {
	if err := v.rdb.Del(ctx, fmt.Sprintf(signupCodeKey, phone)).Err(); err != nil {
		return fmt.Errorf("del signup code: %w", err)
	}
	return nil
}

// UserToken returns the active session token for the user, or "" when the
// user has no live session.
func (v *Verification) UserToken(ctx context.Context, userID int64) (string, error) {
	token, err := v.rdb.Get(ctx, fmt.Sprintf(userTokenKey, userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("get user token: %w", err)
	}
	return token, nil
}

// SetUserToken stores the session token for the user with the given TTL.
// A user holds at most one token: setting overwrites the previous entry,
// which revokes any session still presenting the old value.
func (v *Verification) SetUserToken(ctx context.Context, userID int64, token string, ttl time.Duration) error {
	if err := v.rdb.Set(ctx, fmt.Sprintf(userTokenKey, userID), token, ttl).Err(); err != nil {
		return fmt.Errorf("set user token: %w", err)
	}
	return nil
}

// DelUserToken drops the user's session token, ending the session.
func (v *Verification) DelUserToken(ctx context.Context, userID int64) error {
	if err := v.rdb.Del(ctx, fmt.Sprintf(userTokenKey, userID)).Err(); err != nil {
		return fmt.Errorf("del user token: %w", err)
	}
	return nil
}
