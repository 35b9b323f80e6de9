package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sumire/clique/internal/domain"
)

// TokenStore holds the single active session token per user.
type TokenStore interface {
	UserToken(ctx context.Context, userID int64) (string, error)
	SetUserToken(ctx context.Context, userID int64, token string, ttl time.Duration) error
}

// SessionConfig holds session issuance parameters.
type SessionConfig struct {
	CookieName string
	Secret     string
	MaxAge     time.Duration
}

// SessionService mints session tokens and validates presented ones against
// the stored copy. The store is the source of truth: a token that parses
// but does not match the stored value is not an active session, and
// issuing a new token revokes the previous one by overwrite.
type SessionService struct {
	tokens TokenStore
	secret []byte
	name   string
	maxAge time.Duration
}

// NewSessionService creates a new SessionService.
func NewSessionService(tokens TokenStore, cfg SessionConfig) *SessionService {
	return &SessionService{
		tokens: tokens,
		secret: []byte(cfg.Secret),
		name:   cfg.CookieName,
		maxAge: cfg.MaxAge,
	}
}

// Issue mints a token for the user, stores it with the configured TTL and
// returns the cookie carrying it.
func (s *SessionService) Issue(ctx context.Context, userID int64) (*http.Cookie, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	if err := s.tokens.SetUserToken(ctx, userID, signed, s.maxAge); err != nil {
		return nil, fmt.Errorf("store session token: %w", err)
	}

	return &http.Cookie{
		Name:     s.name,
		Value:    signed,
		MaxAge:   int(s.maxAge.Seconds()),
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
	}, nil
}

// CookieName returns the configured session cookie name.
func (s *SessionService) CookieName() string {
	return s.name
}

// Authenticate returns the user id behind a presented token, or
// ErrForbidden when the token is malformed, expired, forged or revoked.
func (s *SessionService) Authenticate(ctx context.Context, presented string) (int64, error) {
	token, err := jwt.Parse(presented, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, domain.ErrForbidden
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return 0, domain.ErrForbidden
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, domain.ErrForbidden
	}

	stored, err := s.tokens.UserToken(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load session token: %w", err)
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		return 0, domain.ErrForbidden
	}

	return userID, nil
}
