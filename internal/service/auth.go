package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/sumire/clique/internal/domain"
)

// UserStore defines the identity-store access consumed by AuthService.
type UserStore interface {
	FindByPhoneOrUsername(ctx context.Context, phone, username string) (*domain.User, error)
	Create(ctx context.Context, user domain.User) (*domain.User, error)
	FindCredentialsByPhone(ctx context.Context, phone string) (*domain.User, error)
	FindCredentialsByEmail(ctx context.Context, email string) (*domain.User, error)
}

// CodeCache holds short-lived phone -> SMS code associations.
type CodeCache interface {
	SignupCode(ctx context.Context, phone string) (string, error)
	SetSignupCode(ctx context.Context, phone, code string, ttl time.Duration) error
	DelSignupCode(ctx context.Context, phone string) error
}

// CaptchaGate is the bot-detection oracle.
type CaptchaGate interface {
	Verify(ctx context.Context, input CaptchaInput) (bool, error)
}

// CodeSender dispatches an SMS code and returns it for caching.
type CodeSender interface {
	Send(ctx context.Context, phone string) (string, error)
}

// SignupInput is the transient signup request.
type SignupInput struct {
	Login    string
	Phone    string
	Code     string
	Password string
}

// SigninInput is the transient signin request. VerifyType selects which
// channel the login is matched against ("phone" or "email").
type SigninInput struct {
	Login      string
	Password   string
	VerifyType string
	Captcha    CaptchaInput
}

// SMSInput is the transient send-code request.
type SMSInput struct {
	Phone   string
	Captcha CaptchaInput
}

// AuthConfig holds AuthService tunables.
type AuthConfig struct {
	SMSCodeTTL       time.Duration
	SMSRatePerMinute int
}

// AuthService implements the signup and signin flows. Every gate within a
// flow runs in a fixed order; later gates assume earlier ones passed.
type AuthService struct {
	users   UserStore
	codes   CodeCache
	captcha CaptchaGate
	sms     CodeSender
	cfg     AuthConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, codes CodeCache, captcha CaptchaGate, sms CodeSender, cfg AuthConfig) *AuthService {
	return &AuthService{
		users:    users,
		codes:    codes,
		captcha:  captcha,
		sms:      sms,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Signup registers a local account. Gate order: username shape, SMS code,
// phone/username uniqueness. The cached code is evicted best-effort after
// the account is created.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	if strings.Contains(in.Login, "@") {
		return nil, domain.ErrInvalidUserName
	}

	cached, err := s.codes.SignupCode(ctx, in.Phone)
	if err != nil {
		return nil, fmt.Errorf("load signup code: %w", err)
	}
	// An SMS-code mismatch reuses the captcha error code; both mean the
	// caller failed the human check.
	if cached == "" || cached != in.Code {
		return nil, domain.ErrInvalidCaptcha
	}

	existing, err := s.users.FindByPhoneOrUsername(ctx, in.Phone, in.Login)
	switch {
	case err == nil:
		if existing.Phone != nil && *existing.Phone == in.Phone {
			return nil, domain.ErrPhoneExists
		}
		return nil, domain.ErrUserNameExists
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("check signup uniqueness: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	pass := string(hash)
	user, err := s.users.Create(ctx, domain.User{
		Username: in.Login,
		Phone:    &in.Phone,
		Pass:     &pass,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.codes.DelSignupCode(ctx, in.Phone); err != nil {
		slog.Warn("evict signup code failed", "phone", in.Phone, "error", err)
	}

	return user, nil
}

// Signin authenticates a local account. An unknown login and a wrong
// password return the same error so callers cannot enumerate accounts.
func (s *AuthService) Signin(ctx context.Context, in SigninInput) (*domain.User, error) {
	ok, err := s.captcha.Verify(ctx, in.Captcha)
	if err != nil || !ok {
		return nil, domain.ErrInvalidCaptcha
	}

	var user *domain.User
	switch in.VerifyType {
	case "phone":
		user, err = s.users.FindCredentialsByPhone(ctx, in.Login)
	case "email":
		user, err = s.users.FindCredentialsByEmail(ctx, in.Login)
	default:
		// Unknown channel behaves as not-found.
		err = domain.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrParamsError
		}
		return nil, fmt.Errorf("find signin credentials: %w", err)
	}

	if user.Pass == nil || bcrypt.CompareHashAndPassword([]byte(*user.Pass), []byte(in.Password)) != nil {
		return nil, domain.ErrParamsError
	}

	return user, nil
}

// SendSMSCode verifies the captcha gate, rate-limits the phone and then
// dispatches and caches a signup code.
func (s *AuthService) SendSMSCode(ctx context.Context, in SMSInput) error {
	ok, err := s.captcha.Verify(ctx, in.Captcha)
	if err != nil || !ok {
		return domain.ErrInvalidCaptcha
	}

	if !s.phoneLimiter(in.Phone).Allow() {
		return domain.ErrTooManyRequests
	}

	code, err := s.sms.Send(ctx, in.Phone)
	if err != nil {
		return fmt.Errorf("send sms code: %w", err)
	}

	if err := s.codes.SetSignupCode(ctx, in.Phone, code, s.cfg.SMSCodeTTL); err != nil {
		return fmt.Errorf("cache sms code: %w", err)
	}

	return nil
}

func (s *AuthService) phoneLimiter(phone string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[phone]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(s.cfg.SMSRatePerMinute)/60.0), 1)
		s.limiters[phone] = l
	}
	return l
}
