package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
	KindReset   TokenKind = "reset"
)

func ParseTokenKind(raw string) (TokenKind, error) {
	switch TokenKind(raw) {
	case KindAccess, KindRefresh, KindReset:
		return TokenKind(raw), nil
	default:
		return "", fmt.Errorf("unknown token kind %q", raw)
	}
}

type Claims struct {
	TokenType string `json:"token_type"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	issuer        string
	audience      string
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

type JWTOption func(*JWTManager)

// WithClock replaces the wall clock for issuance and expiry checks.
func WithClock(now func() time.Time) JWTOption {
	return func(m *JWTManager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewJWTManager(issuer, audience, accessSecret, refreshSecret string, opts ...JWTOption) *JWTManager {
	m := &JWTManager{
		issuer:        issuer,
		audience:      audience,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *JWTManager) Now() time.Time { return m.now() }

// Sign mints a token of the given kind. Access and reset tokens are signed with
// the access secret, refresh tokens with the refresh secret.
func (m *JWTManager) Sign(kind TokenKind, subject, role string, ttl time.Duration, jti string) (string, *Claims, error) {
	if subject == "" {
		return "", nil, errors.New("empty subject")
	}
	if ttl <= 0 {
		return "", nil, fmt.Errorf("non-positive ttl for %s token", kind)
	}
	secret, err := m.secretFor(kind)
	if err != nil {
		return "", nil, err
	}
	if jti == "" {
		jti = uuid.NewString()
	}
	// exp must equal iat+ttl exactly; NumericDate drops sub-second precision.
	now := m.now().Truncate(jwt.TimePrecision)
	claims := &Claims{
		TokenType: string(kind),
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}
	if kind != KindAccess {
		claims.Role = ""
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, claims, nil
}

func (m *JWTManager) SignAccessToken(subject, role string, ttl time.Duration) (string, error) {
	tok, _, err := m.Sign(KindAccess, subject, role, ttl, "")
	return tok, err
}

func (m *JWTManager) SignRefreshToken(subject string, ttl time.Duration) (string, error) {
	tok, _, err := m.Sign(KindRefresh, subject, "", ttl, "")
	return tok, err
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.Parse(raw, KindAccess)
}

func (m *JWTManager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.Parse(raw, KindRefresh)
}

func (m *JWTManager) ParseResetToken(raw string) (*Claims, error) {
	return m.Parse(raw, KindReset)
}

// Parse verifies raw against the expected kind. Every failure is an *AuthError.
func (m *JWTManager) Parse(raw string, kind TokenKind) (*Claims, error) {
	secret, err := m.secretFor(kind)
	if err != nil {
		return nil, &AuthError{Kind: InvalidSignature, Err: err}
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
		// a token is still valid at exactly its expiry instant
		jwt.WithLeeway(time.Nanosecond),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !tok.Valid {
		return nil, &AuthError{Kind: InvalidSignature, Err: errors.New("invalid token")}
	}
	if claims.TokenType != string(kind) {
		return nil, &AuthError{Kind: InvalidSignature, Err: fmt.Errorf("unexpected token type: %s", claims.TokenType)}
	}
	if claims.Subject == "" {
		return nil, &AuthError{Kind: MalformedToken, Err: errors.New("missing subject")}
	}
	return claims, nil
}

func (m *JWTManager) secretFor(kind TokenKind) ([]byte, error) {
	switch kind {
	case KindAccess, KindReset:
		return m.accessSecret, nil
	case KindRefresh:
		return m.refreshSecret, nil
	default:
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}
}
