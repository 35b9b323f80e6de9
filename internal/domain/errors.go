package domain

import "errors"

// Stable numeric codes carried in every API envelope.
const (
	CodeSuccess         = 0
	CodeForbidden       = 403
	CodeTooManyRequests = 429
	CodeParamsError     = 1000
	CodeInvalidCaptcha  = 1006
	CodePhoneExists     = 1007
	CodeUserNameExists  = 1008
	CodeInvalidUserName = 1009
)

// Error is a request-scoped, client-facing failure. Every domain failure
// in the auth flows is one of the sentinel values below; the handler layer
// converts them to the JSON envelope uniformly.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrForbidden covers protocol violations on the OAuth callbacks:
	// missing authorization code or a mismatched anti-forgery state.
	ErrForbidden = &Error{Code: CodeForbidden, Message: "forbidden"}

	// ErrParamsError is deliberately coarse: wrong password, unknown
	// login and missing follow target all share it, so a caller cannot
	// enumerate accounts.
	ErrParamsError = &Error{Code: CodeParamsError, Message: "params error"}

	// ErrInvalidCaptcha has two trigger sites that share one code on
	// purpose: a failed geetest verification and a stale or wrong SMS
	// code both mean the caller failed the human check.
	ErrInvalidCaptcha = &Error{Code: CodeInvalidCaptcha, Message: "invalid captcha"}

	ErrPhoneExists     = &Error{Code: CodePhoneExists, Message: "phone already registered"}
	ErrUserNameExists  = &Error{Code: CodeUserNameExists, Message: "username already registered"}
	ErrInvalidUserName = &Error{Code: CodeInvalidUserName, Message: "invalid username"}

	ErrTooManyRequests = &Error{Code: CodeTooManyRequests, Message: "too many requests"}
)

// ErrNotFound marks a missing row in the identity store. It never reaches
// the API surface directly; callers translate it per flow.
var ErrNotFound = errors.New("resource not found")
