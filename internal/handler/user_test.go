package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/clique/internal/config"
	"github.com/sumire/clique/internal/domain"
	"github.com/sumire/clique/internal/service"
)

type fakeUserStore struct {
	users  []domain.User
	nextID int64
}

func (f *fakeUserStore) FindByPhoneOrUsername(_ context.Context, phone, username string) (*domain.User, error) {
	for i := range f.users {
		u := f.users[i]
		if (u.Phone != nil && *u.Phone == phone) || u.Username == username {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserStore) Create(_ context.Context, user domain.User) (*domain.User, error) {
	f.nextID++
	user.ID = f.nextID
	f.users = append(f.users, user)
	return &user, nil
}

func (f *fakeUserStore) FindCredentialsByPhone(_ context.Context, phone string) (*domain.User, error) {
	for i := range f.users {
		u := f.users[i]
		if u.Phone != nil && *u.Phone == phone {
			return &domain.User{ID: u.ID, Pass: u.Pass}, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserStore) FindCredentialsByEmail(_ context.Context, email string) (*domain.User, error) {
	for i := range f.users {
		u := f.users[i]
		if u.Email != nil && *u.Email == email {
			return &domain.User{ID: u.ID, Pass: u.Pass}, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserStore) Exists(_ context.Context, id int64) (bool, error) {
	for i := range f.users {
		if f.users[i].ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserStore) SearchByUsername(_ context.Context, fragment string, _ int) ([]domain.User, error) {
	matches := []domain.User{}
	for i := range f.users {
		if strings.Contains(f.users[i].Username, fragment) {
			matches = append(matches, f.users[i])
		}
	}
	return matches, nil
}

func (f *fakeUserStore) UpsertGithubUser(_ context.Context, profile domain.GithubProfile) (*domain.User, error) {
	return f.Create(context.Background(), domain.User{Username: profile.Login, GithubID: &profile.ID})
}

func (f *fakeUserStore) UpsertWeiboUser(_ context.Context, profile domain.WeiboProfile) (*domain.User, error) {
	return f.Create(context.Background(), domain.User{Username: profile.ScreenName, WeiboID: &profile.ID})
}

type fakeCodeCache struct {
	codes map[string]string
}

func (f *fakeCodeCache) SignupCode(_ context.Context, phone string) (string, error) {
	return f.codes[phone], nil
}

func (f *fakeCodeCache) SetSignupCode(_ context.Context, phone, code string, _ time.Duration) error {
	f.codes[phone] = code
	return nil
}

func (f *fakeCodeCache) DelSignupCode(_ context.Context, phone string) error {
	delete(f.codes, phone)
	return nil
}

type fakeCaptcha struct{ ok bool }

func (f *fakeCaptcha) Verify(_ context.Context, _ service.CaptchaInput) (bool, error) {
	return f.ok, nil
}

type fakeSender struct{ code string }

func (f *fakeSender) Send(_ context.Context, _ string) (string, error) {
	return f.code, nil
}

type fakeFollowStore struct {
	edges map[[2]int64]bool
}

func (f *fakeFollowStore) Exists(_ context.Context, followerID, followeeID int64) (bool, error) {
	return f.edges[[2]int64{followerID, followeeID}], nil
}

func (f *fakeFollowStore) Create(_ context.Context, followerID, followeeID int64) error {
	f.edges[[2]int64{followerID, followeeID}] = true
	return nil
}

func (f *fakeFollowStore) Delete(_ context.Context, followerID, followeeID int64) error {
	delete(f.edges, [2]int64{followerID, followeeID})
	return nil
}

type fakeTokenStore struct {
	tokens map[int64]string
}

func (f *fakeTokenStore) UserToken(_ context.Context, userID int64) (string, error) {
	return f.tokens[userID], nil
}

func (f *fakeTokenStore) SetUserToken(_ context.Context, userID int64, token string, _ time.Duration) error {
	f.tokens[userID] = token
	return nil
}

type fixtures struct {
	users    *fakeUserStore
	codes    *fakeCodeCache
	follows  *fakeFollowStore
	tokens   *fakeTokenStore
	sessions *service.SessionService
	github   config.GithubConfig
	weibo    config.WeiboConfig
}

func newTestApp(t *testing.T, fx *fixtures) *echo.Echo {
	t.Helper()

	if fx.users == nil {
		fx.users = &fakeUserStore{}
	}
	if fx.codes == nil {
		fx.codes = &fakeCodeCache{codes: make(map[string]string)}
	}
	if fx.follows == nil {
		fx.follows = &fakeFollowStore{edges: make(map[[2]int64]bool)}
	}
	if fx.tokens == nil {
		fx.tokens = &fakeTokenStore{tokens: make(map[int64]string)}
	}
	if fx.weibo.State == "" {
		fx.weibo = config.WeiboConfig{
			AppKey:         "wb-key",
			AppSecret:      "wb-secret",
			State:          "expected-state",
			AuthorizeURL:   "https://weibo.example/authorize?state=%s&client_id=%s&redirect_uri=%s",
			AccessTokenURL: "https://weibo.example/token?client_id=%s&client_secret=%s&redirect_uri=%s&code=%s",
			UserInfoURL:    "https://weibo.example/show?access_token=%s&uid=%s",
		}
	}
	if fx.github.ClientID == "" {
		fx.github = config.GithubConfig{
			ClientID:       "gh-client",
			AuthorizeURL:   "https://github.example/authorize?client_id=%s",
			AccessTokenURL: "https://github.example/token",
			UserInfoURL:    "https://github.example/user?access_token=%s",
		}
	}

	fx.sessions = service.NewSessionService(fx.tokens, service.SessionConfig{
		CookieName: "token",
		Secret:     "test-secret",
		MaxAge:     time.Hour,
	})
	authSvc := service.NewAuthService(fx.users, fx.codes, &fakeCaptcha{ok: true}, &fakeSender{code: "111111"}, service.AuthConfig{
		SMSCodeTTL:       10 * time.Minute,
		SMSRatePerMinute: 60,
	})
	oauthSvc := service.NewOAuthService(fx.users, fx.github, fx.weibo, nil)
	userSvc := service.NewUserService(fx.users, fx.follows, 20)
	captchaSvc := service.NewCaptchaService(config.GeetestConfig{ID: "gt", Key: "key", APIBase: "https://geetest.invalid"}, nil)

	authHandler := NewAuthHandler(oauthSvc, fx.sessions)
	userHandler := NewUserHandler(authSvc, userSvc, captchaSvc, fx.sessions)

	e := echo.New()
	e.Validator = NewAppValidator()
	e.HTTPErrorHandler = HTTPErrorHandler

	e.GET("/signup.html", authHandler.SignupPage)
	e.GET("/users/signup/github.html", authHandler.GithubRedirect)
	e.GET("/users/auth/github/callback.html", authHandler.GithubCallback)
	e.GET("/users/signup/weibo.html", authHandler.WeiboRedirect)
	e.GET("/users/auth/weibo/callback.html", authHandler.WeiboCallback)

	api := e.Group("/api/v1/users")
	api.POST("/signup", userHandler.Signup)
	api.POST("/signin", userHandler.Signin)
	api.POST("/smscode", userHandler.SendSMSCode)
	api.GET("/fuzzy", userHandler.Fuzzy)

	guarded := api.Group("", SessionGuard(fx.sessions))
	guarded.POST("/follow/:userID", userHandler.Follow)
	guarded.DELETE("/follow/:userID", userHandler.CancelFollow)

	return e
}

func doJSON(e *echo.Echo, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestSignupEndpoint_SuccessSetsSessionCookie(t *testing.T) {
	fx := &fixtures{codes: &fakeCodeCache{codes: map[string]string{"13800000000": "123456"}}}
	e := newTestApp(t, fx)

	rec := doJSON(e, http.MethodPost, "/api/v1/users/signup",
		`{"login":"alice","phone":"13800000000","code":"123456","password":"secret1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, domain.CodeSuccess, env.ErrorCode)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["id"])

	resp := rec.Result()
	require.Len(t, resp.Cookies(), 1)
	cookie := resp.Cookies()[0]
	assert.Equal(t, "token", cookie.Name)
	assert.True(t, cookie.Secure)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, fx.tokens.tokens[1], cookie.Value,
		"cookie must carry the token retrievable by the returned id")
}

func TestSignupEndpoint_InvalidUserName(t *testing.T) {
	e := newTestApp(t, &fixtures{})

	rec := doJSON(e, http.MethodPost, "/api/v1/users/signup",
		`{"login":"alice@home","phone":"13800000000","code":"123456","password":"secret1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.CodeInvalidUserName, decodeEnvelope(t, rec).ErrorCode)
}

func TestSigninEndpoint_FailuresShareOneCode(t *testing.T) {
	fx := &fixtures{codes: &fakeCodeCache{codes: map[string]string{"13800000000": "123456"}}}
	e := newTestApp(t, fx)

	rec := doJSON(e, http.MethodPost, "/api/v1/users/signup",
		`{"login":"alice","phone":"13800000000","code":"123456","password":"secret1"}`)
	require.Equal(t, domain.CodeSuccess, decodeEnvelope(t, rec).ErrorCode)

	wrongPass := doJSON(e, http.MethodPost, "/api/v1/users/signin",
		`{"login":"13800000000","password":"not-it","verifyType":"phone"}`)
	noUser := doJSON(e, http.MethodPost, "/api/v1/users/signin",
		`{"login":"13999999999","password":"secret1","verifyType":"phone"}`)

	wrongPassEnv := decodeEnvelope(t, wrongPass)
	noUserEnv := decodeEnvelope(t, noUser)
	assert.Equal(t, domain.CodeParamsError, wrongPassEnv.ErrorCode)
	assert.Equal(t, wrongPassEnv.ErrorCode, noUserEnv.ErrorCode)
	assert.Equal(t, wrongPassEnv.Message, noUserEnv.Message)
}

func TestSigninEndpoint_SuccessStoresRetrievableToken(t *testing.T) {
	fx := &fixtures{codes: &fakeCodeCache{codes: map[string]string{"13800000000": "123456"}}}
	e := newTestApp(t, fx)

	doJSON(e, http.MethodPost, "/api/v1/users/signup",
		`{"login":"alice","phone":"13800000000","code":"123456","password":"secret1"}`)

	rec := doJSON(e, http.MethodPost, "/api/v1/users/signin",
		`{"login":"13800000000","password":"secret1","verifyType":"phone"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, domain.CodeSuccess, env.ErrorCode)

	resp := rec.Result()
	require.Len(t, resp.Cookies(), 1)
	assert.Equal(t, fx.tokens.tokens[1], resp.Cookies()[0].Value)
}

func TestFollowEndpoint_RequiresActiveSession(t *testing.T) {
	e := newTestApp(t, &fixtures{})

	rec := doJSON(e, http.MethodPost, "/api/v1/users/follow/2", "")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, domain.CodeForbidden, decodeEnvelope(t, rec).ErrorCode)
}

func TestFollowEndpoint_RejectsNonIntegerTarget(t *testing.T) {
	fx := &fixtures{users: &fakeUserStore{users: []domain.User{{ID: 1, Username: "alice"}}, nextID: 1}}
	e := newTestApp(t, fx)

	cookie, err := fx.sessions.Issue(context.Background(), 1)
	require.NoError(t, err)

	rec := doJSON(e, http.MethodPost, "/api/v1/users/follow/abc", "", cookie)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.CodeParamsError, decodeEnvelope(t, rec).ErrorCode)
}

func TestFollowEndpoint_ToggleAcrossBothRoutes(t *testing.T) {
	fx := &fixtures{users: &fakeUserStore{users: []domain.User{
		{ID: 1, Username: "alice"},
		{ID: 2, Username: "bob"},
	}, nextID: 2}}
	e := newTestApp(t, fx)

	cookie, err := fx.sessions.Issue(context.Background(), 1)
	require.NoError(t, err)

	rec := doJSON(e, http.MethodPost, "/api/v1/users/follow/2", "", cookie)
	require.Equal(t, domain.CodeSuccess, decodeEnvelope(t, rec).ErrorCode)
	assert.True(t, fx.follows.edges[[2]int64{1, 2}])

	// The POST route is a toggle, not an idempotent follow: repeating it
	// removes the edge.
	rec = doJSON(e, http.MethodPost, "/api/v1/users/follow/2", "", cookie)
	require.Equal(t, domain.CodeSuccess, decodeEnvelope(t, rec).ErrorCode)
	assert.False(t, fx.follows.edges[[2]int64{1, 2}])

	// DELETE dispatches to the same toggle.
	rec = doJSON(e, http.MethodDelete, "/api/v1/users/follow/2", "", cookie)
	require.Equal(t, domain.CodeSuccess, decodeEnvelope(t, rec).ErrorCode)
	assert.True(t, fx.follows.edges[[2]int64{1, 2}])
}

func TestFollowEndpoint_MissingTarget(t *testing.T) {
	fx := &fixtures{users: &fakeUserStore{users: []domain.User{{ID: 1, Username: "alice"}}, nextID: 1}}
	e := newTestApp(t, fx)

	cookie, err := fx.sessions.Issue(context.Background(), 1)
	require.NoError(t, err)

	rec := doJSON(e, http.MethodPost, "/api/v1/users/follow/99", "", cookie)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.CodeParamsError, decodeEnvelope(t, rec).ErrorCode)
}

func TestFuzzyEndpoint_OverLengthYieldsEmptyList(t *testing.T) {
	fx := &fixtures{users: &fakeUserStore{users: []domain.User{{ID: 1, Username: "alice"}}, nextID: 1}}
	e := newTestApp(t, fx)

	rec := doJSON(e, http.MethodGet, "/api/v1/users/fuzzy?username="+strings.Repeat("a", 30), "")

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, domain.CodeSuccess, env.ErrorCode)

	data, ok := env.Data.([]any)
	require.True(t, ok)
	assert.Empty(t, data)
}

func TestFuzzyEndpoint_MatchesByFragment(t *testing.T) {
	fx := &fixtures{users: &fakeUserStore{users: []domain.User{
		{ID: 1, Username: "alice"},
		{ID: 2, Username: "malice"},
		{ID: 3, Username: "bob"},
	}, nextID: 3}}
	e := newTestApp(t, fx)

	rec := doJSON(e, http.MethodGet, "/api/v1/users/fuzzy?username=lice", "")

	env := decodeEnvelope(t, rec)
	data, ok := env.Data.([]any)
	require.True(t, ok)
	assert.Len(t, data, 2)
}

func TestGithubCallback_MissingCodeForbidden(t *testing.T) {
	e := newTestApp(t, &fixtures{})

	rec := doJSON(e, http.MethodGet, "/users/auth/github/callback.html", "")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, domain.CodeForbidden, decodeEnvelope(t, rec).ErrorCode)
}

func TestWeiboCallback_BadStateForbidden(t *testing.T) {
	e := newTestApp(t, &fixtures{})

	rec := doJSON(e, http.MethodGet, "/users/auth/weibo/callback.html?code=x&state=tampered", "")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, domain.CodeForbidden, decodeEnvelope(t, rec).ErrorCode)
}

func TestGithubCallback_ProviderDeclineRedirectsToSignup(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer tokenSrv.Close()

	fx := &fixtures{github: config.GithubConfig{
		ClientID:       "gh-client",
		AuthorizeURL:   "https://github.example/authorize?client_id=%s",
		AccessTokenURL: tokenSrv.URL,
		UserInfoURL:    "https://github.example/user?access_token=%s",
	}}
	e := newTestApp(t, fx)

	rec := doJSON(e, http.MethodGet, "/users/auth/github/callback.html?code=expired", "")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/signup.html", rec.Header().Get(echo.HeaderLocation))
}

func TestGithubRedirect_BuildsAuthorizeURL(t *testing.T) {
	e := newTestApp(t, &fixtures{})

	rec := doJSON(e, http.MethodGet, "/users/signup/github.html", "")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://github.example/authorize?client_id=gh-client",
		rec.Header().Get(echo.HeaderLocation))
}

func TestSignupPage_RedirectsSignedInUsers(t *testing.T) {
	fx := &fixtures{users: &fakeUserStore{users: []domain.User{{ID: 1, Username: "alice"}}, nextID: 1}}
	e := newTestApp(t, fx)

	rec := doJSON(e, http.MethodGet, "/signup.html", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	cookie, err := fx.sessions.Issue(context.Background(), 1)
	require.NoError(t, err)

	rec = doJSON(e, http.MethodGet, "/signup.html", "", cookie)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
}
