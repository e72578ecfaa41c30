package security

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

type AuthErrorKind int

const (
	ExpiredToken AuthErrorKind = iota + 1
	InvalidSignature
	MalformedToken
)

func (k AuthErrorKind) String() string {
	switch k {
	case ExpiredToken:
		return "expired_token"
	case InvalidSignature:
		return "invalid_signature"
	case MalformedToken:
		return "malformed_token"
	default:
		return "unknown"
	}
}

// AuthError is returned by every verification failure. Kind is for logs and
// metrics only; it must not reach response bodies.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

var (
	ErrExpiredToken     = &AuthError{Kind: ExpiredToken}
	ErrInvalidSignature = &AuthError{Kind: InvalidSignature}
	ErrMalformedToken   = &AuthError{Kind: MalformedToken}
)

func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches any AuthError of the same kind so callers can use the sentinels
// with errors.Is regardless of the wrapped cause.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func classifyJWTError(err error) *AuthError {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &AuthError{Kind: MalformedToken, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &AuthError{Kind: InvalidSignature, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &AuthError{Kind: ExpiredToken, Err: err}
	default:
		return &AuthError{Kind: InvalidSignature, Err: err}
	}
}
