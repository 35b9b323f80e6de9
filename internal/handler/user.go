package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/sumire/clique/internal/domain"
	"github.com/sumire/clique/internal/service"
)

// UserHandler handles the JSON API: signup, signin, SMS codes, captcha
// config, fuzzy search and the follow toggle.
type UserHandler struct {
	auth     *service.AuthService
	users    *service.UserService
	captcha  *service.CaptchaService
	sessions Sessions
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(auth *service.AuthService, users *service.UserService, captcha *service.CaptchaService, sessions Sessions) *UserHandler {
	return &UserHandler{auth: auth, users: users, captcha: captcha, sessions: sessions}
}

type signupRequest struct {
	Login    string `json:"login" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Code     string `json:"code" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

type signinRequest struct {
	Login      string `json:"login" validate:"required"`
	Password   string `json:"password" validate:"required"`
	VerifyType string `json:"verifyType" validate:"required"`
	service.CaptchaInput
}

type smsCodeRequest struct {
	Phone string `json:"phone" validate:"required"`
	service.CaptchaInput
}

// Signup registers a local account and opens a session for it.
func (h *UserHandler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.auth.Signup(c.Request().Context(), service.SignupInput{
		Login:    req.Login,
		Phone:    req.Phone,
		Code:     req.Code,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	cookie, err := h.sessions.Issue(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)

	return Success(c, map[string]int64{"id": user.ID})
}

// Signin authenticates a local account and opens a session for it.
func (h *UserHandler) Signin(c echo.Context) error {
	var req signinRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.auth.Signin(c.Request().Context(), service.SigninInput{
		Login:      req.Login,
		Password:   req.Password,
		VerifyType: req.VerifyType,
		Captcha:    req.CaptchaInput,
	})
	if err != nil {
		return err
	}

	cookie, err := h.sessions.Issue(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)

	return Success(c, map[string]int64{"id": user.ID})
}

// SendSMSCode dispatches a signup code to the given phone.
func (h *UserHandler) SendSMSCode(c echo.Context) error {
	var req smsCodeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.auth.SendSMSCode(c.Request().Context(), service.SMSInput{
		Phone:   req.Phone,
		Captcha: req.CaptchaInput,
	}); err != nil {
		return err
	}

	return Success(c, map[string]any{})
}

// GeetestConfig returns the captcha widget bootstrap payload.
func (h *UserHandler) GeetestConfig(c echo.Context) error {
	payload, err := h.captcha.Register(c.Request().Context())
	if err != nil {
		return err
	}
	return Success(c, payload)
}

// Fuzzy searches users by username fragment. Invalid input yields an
// empty list, never an error.
func (h *UserHandler) Fuzzy(c echo.Context) error {
	users, err := h.users.FuzzySearch(c.Request().Context(), c.QueryParam("username"))
	if err != nil {
		return err
	}
	return Success(c, users)
}

// Follow toggles the follow edge toward the target user. The unfollow
// endpoint dispatches to the same toggle, so the two are behaviorally
// identical.
func (h *UserHandler) Follow(c echo.Context) error {
	return h.toggleFollow(c)
}

// CancelFollow toggles the follow edge toward the target user.
func (h *UserHandler) CancelFollow(c echo.Context) error {
	return h.toggleFollow(c)
}

func (h *UserHandler) toggleFollow(c echo.Context) error {
	followeeID, err := paramInt(c, "userID")
	if err != nil {
		return err
	}

	followerID, ok := GetUserID(c)
	if !ok {
		return domain.ErrForbidden
	}

	if err := h.users.ToggleFollow(c.Request().Context(), followerID, followeeID); err != nil {
		return err
	}

	return Success(c, map[string]any{})
}
