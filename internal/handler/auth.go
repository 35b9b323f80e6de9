package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/clique/internal/service"
)

const signupRedirect = "/signup.html"

// AuthHandler handles the OAuth entry points and the signup/signin pages.
type AuthHandler struct {
	oauth    *service.OAuthService
	sessions Sessions
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(oauth *service.OAuthService, sessions Sessions) *AuthHandler {
	return &AuthHandler{oauth: oauth, sessions: sessions}
}

// GithubRedirect sends the user to GitHub's consent page. Both the signin
// and signup entry points land here; the flows are identical.
func (h *AuthHandler) GithubRedirect(c echo.Context) error {
	return c.Redirect(http.StatusFound, h.oauth.GithubAuthorizeURL())
}

// GithubCallback completes the GitHub flow: exchange, profile fetch,
// reconcile, session. Upstream trouble sends the user back to signup
// instead of failing the request.
func (h *AuthHandler) GithubCallback(c echo.Context) error {
	user, err := h.oauth.GithubCallback(c.Request().Context(), c.QueryParam("code"))
	if err != nil {
		if errors.Is(err, service.ErrProviderDeclined) {
			return c.Redirect(http.StatusFound, signupRedirect)
		}
		return err
	}

	if err := h.issueSession(c, user.ID); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, "/")
}

// WeiboRedirect sends the user to Weibo's consent page.
func (h *AuthHandler) WeiboRedirect(c echo.Context) error {
	return c.Redirect(http.StatusFound, h.oauth.WeiboAuthorizeURL())
}

// WeiboCallback completes the Weibo flow. The echoed anti-forgery state
// is checked inside the service before any provider call.
func (h *AuthHandler) WeiboCallback(c echo.Context) error {
	user, err := h.oauth.WeiboCallback(c.Request().Context(), c.QueryParam("code"), c.QueryParam("state"))
	if err != nil {
		if errors.Is(err, service.ErrProviderDeclined) {
			return c.Redirect(http.StatusFound, signupRedirect)
		}
		return err
	}

	if err := h.issueSession(c, user.ID); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, "/")
}

// SignupPage serves the signup entry point; signed-in users go home.
func (h *AuthHandler) SignupPage(c echo.Context) error {
	if h.signedIn(c) {
		return c.Redirect(http.StatusFound, "/")
	}
	return c.HTML(http.StatusOK, "<!doctype html><title>sign up</title>")
}

// SigninPage serves the signin entry point; signed-in users go home.
func (h *AuthHandler) SigninPage(c echo.Context) error {
	if h.signedIn(c) {
		return c.Redirect(http.StatusFound, "/")
	}
	return c.HTML(http.StatusOK, "<!doctype html><title>sign in</title>")
}

func (h *AuthHandler) signedIn(c echo.Context) bool {
	cookie, err := c.Cookie(h.sessions.CookieName())
	if err != nil || cookie.Value == "" {
		return false
	}
	_, err = h.sessions.Authenticate(c.Request().Context(), cookie.Value)
	return err == nil
}

func (h *AuthHandler) issueSession(c echo.Context, userID int64) error {
	cookie, err := h.sessions.Issue(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)
	return nil
}
