package identitysvc

import (
	"errors"
	"strings"
	"time"
)

// User is the signed-in account as returned by the identity provider.
type User struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	IDToken      string    `json:"idToken,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
}

// Provider error codes the application reacts to.
const (
	CodeInvalidCredential = "auth/invalid-credential"
	CodeEmailAlreadyInUse = "auth/email-already-in-use"
	CodeWeakPassword      = "auth/weak-password"
	CodeTooManyRequests   = "auth/too-many-requests"
	CodeUnknown           = "auth/internal-error"
)

// Error is a failure reported by the identity provider.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// ErrorCode returns the provider code carried by err, or "" when err did not
// come from the provider.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// CodeFor maps a raw provider message such as "EMAIL_EXISTS" or
// "WEAK_PASSWORD : Password should be at least 6 characters" to a code.
func CodeFor(message string) string {
	reason := message
	if i := strings.IndexAny(message, " :"); i >= 0 {
		reason = message[:i]
	}

	switch reason {
	case "INVALID_LOGIN_CREDENTIALS", "INVALID_PASSWORD", "EMAIL_NOT_FOUND":
		return CodeInvalidCredential
	case "EMAIL_EXISTS":
		return CodeEmailAlreadyInUse
	case "WEAK_PASSWORD":
		return CodeWeakPassword
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return CodeTooManyRequests
	}
	return CodeUnknown
}

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNoUser          = errors.New("no signed-in user")
	ErrTokenMalformed  = errors.New("identity token was malformed")
)
