package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/clique/internal/domain"
)

type fakeTokenStore struct {
	tokens map[int64]string
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[int64]string)}
}

func (f *fakeTokenStore) UserToken(_ context.Context, userID int64) (string, error) {
	return f.tokens[userID], nil
}

func (f *fakeTokenStore) SetUserToken(_ context.Context, userID int64, token string, _ time.Duration) error {
	f.tokens[userID] = token
	return nil
}

func newTestSessions(store TokenStore) *SessionService {
	return NewSessionService(store, SessionConfig{
		CookieName: "token",
		Secret:     "test-secret",
		MaxAge:     time.Hour,
	})
}

func TestSessionService_IssueSetsCookieAndStoresToken(t *testing.T) {
	store := newFakeTokenStore()
	sessions := newTestSessions(store)
	ctx := context.Background()

	cookie, err := sessions.Issue(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, "token", cookie.Name)
	assert.Equal(t, int(time.Hour.Seconds()), cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.Secure)
	assert.True(t, cookie.HttpOnly)

	stored, err := store.UserToken(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, cookie.Value, stored, "cookie must carry the stored token")
}

func TestSessionService_AuthenticateRoundTrip(t *testing.T) {
	sessions := newTestSessions(newFakeTokenStore())
	ctx := context.Background()

	cookie, err := sessions.Issue(ctx, 7)
	require.NoError(t, err)

	userID, err := sessions.Authenticate(ctx, cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)
}

func TestSessionService_ForgedTokenRejected(t *testing.T) {
	store := newFakeTokenStore()
	sessions := newTestSessions(store)
	forger := NewSessionService(store, SessionConfig{
		CookieName: "token",
		Secret:     "other-secret",
		MaxAge:     time.Hour,
	})
	ctx := context.Background()

	cookie, err := forger.Issue(ctx, 7)
	require.NoError(t, err)

	_, err = sessions.Authenticate(ctx, cookie.Value)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSessionService_UnissuedTokenRejected(t *testing.T) {
	store := newFakeTokenStore()
	sessions := newTestSessions(store)
	ctx := context.Background()

	// Token parses fine but was never stored for this user.
	cookie, err := sessions.Issue(ctx, 7)
	require.NoError(t, err)
	delete(store.tokens, 7)

	_, err = sessions.Authenticate(ctx, cookie.Value)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSessionService_ReissueRevokesPreviousToken(t *testing.T) {
	sessions := newTestSessions(newFakeTokenStore())
	ctx := context.Background()

	first, err := sessions.Issue(ctx, 7)
	require.NoError(t, err)
	second, err := sessions.Issue(ctx, 7)
	require.NoError(t, err)
	require.NotEqual(t, first.Value, second.Value)

	_, err = sessions.Authenticate(ctx, first.Value)
	assert.ErrorIs(t, err, domain.ErrForbidden, "old token must be revoked by overwrite")

	userID, err := sessions.Authenticate(ctx, second.Value)
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)
}
