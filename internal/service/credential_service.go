package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/domain"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/observability"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/security"
)

type RefreshPolicy string

const (
	// RefreshPolicyReuse hands the presented refresh token back unchanged; it
	// stays usable until it expires.
	RefreshPolicyReuse RefreshPolicy = "reuse"
	// RefreshPolicyRotate mints a new refresh token on every refresh and
	// records the old token id so it cannot be presented again.
	RefreshPolicyRotate RefreshPolicy = "rotate"
)

func ParseRefreshPolicy(raw string) (RefreshPolicy, error) {
	switch RefreshPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RefreshPolicyReuse:
		return RefreshPolicyReuse, nil
	case RefreshPolicyRotate:
		return RefreshPolicyRotate, nil
	default:
		return "", fmt.Errorf("unknown refresh policy %q", raw)
	}
}

var (
	ErrRefreshTokenReused = errors.New("refresh token already used")
	ErrResetTokenUsed     = errors.New("reset token already used")
)

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type CredentialTTLs struct {
	Access  time.Duration
	Refresh time.Duration
	Reset   time.Duration
}

type CredentialService struct {
	jwtMgr     *security.JWTManager
	identities IdentityLookup
	guard      RefreshReplayGuard
	policy     RefreshPolicy
	ttl        CredentialTTLs
}

func NewCredentialService(jwtMgr *security.JWTManager, identities IdentityLookup, guard RefreshReplayGuard, policy RefreshPolicy, ttl CredentialTTLs) *CredentialService {
	if guard == nil {
		guard = NewNoopRefreshReplayGuard()
	}
	if policy == "" {
		policy = RefreshPolicyReuse
	}
	return &CredentialService{jwtMgr: jwtMgr, identities: identities, guard: guard, policy: policy, ttl: ttl}
}

func (s *CredentialService) Policy() RefreshPolicy { return s.policy }

// IssueAccessAndRefresh mints a token pair for subjectID. Both tokens share a
// jti so a pair can be correlated in logs.
func (s *CredentialService) IssueAccessAndRefresh(subjectID, role string) (TokenPair, error) {
	if strings.TrimSpace(subjectID) == "" {
		return TokenPair{}, domain.NewValidationError("subjectId", "is required")
	}
	refresh, refreshClaims, err := s.jwtMgr.Sign(security.KindRefresh, subjectID, "", s.ttl.Refresh, "")
	if err != nil {
		return TokenPair{}, err
	}
	access, accessClaims, err := s.jwtMgr.Sign(security.KindAccess, subjectID, role, s.ttl.Access, refreshClaims.ID)
	if err != nil {
		return TokenPair{}, err
	}
	observability.RecordCredentialIssued(string(security.KindRefresh))
	observability.RecordCredentialIssued(string(security.KindAccess))
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

func (s *CredentialService) IssueResetToken(subjectID string) (string, time.Time, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", time.Time{}, domain.NewValidationError("subjectId", "is required")
	}
	tok, claims, err := s.jwtMgr.Sign(security.KindReset, subjectID, "", s.ttl.Reset, "")
	if err != nil {
		return "", time.Time{}, err
	}
	observability.RecordCredentialIssued(string(security.KindReset))
	return tok, claims.ExpiresAt.Time, nil
}

// Verify returns the subject embedded in token when it is a valid token of
// the expected kind.
func (s *CredentialService) Verify(token string, kind security.TokenKind) (string, error) {
	claims, err := s.VerifyClaims(token, kind)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *CredentialService) VerifyClaims(token string, kind security.TokenKind) (*security.Claims, error) {
	claims, err := s.jwtMgr.Parse(token, kind)
	if err != nil {
		var ae *security.AuthError
		outcome := "invalid"
		if errors.As(err, &ae) {
			outcome = ae.Kind.String()
		}
		observability.RecordTokenVerification(string(kind), outcome)
		return nil, err
	}
	observability.RecordTokenVerification(string(kind), "valid")
	return claims, nil
}

// Rotate exchanges a refresh token for a fresh access token. Under the reuse
// policy the same refresh token is returned; under the rotate policy a new one
// is minted and the presented token id is burned.
func (s *CredentialService) Rotate(ctx context.Context, refreshToken string) (TokenPair, string, error) {
	claims, err := s.VerifyClaims(refreshToken, security.KindRefresh)
	if err != nil {
		observability.RecordAuthRefresh("invalid")
		return TokenPair{}, "", err
	}
	subject := claims.Subject

	role := domain.RoleUser
	if s.identities != nil {
		user, err := s.identities.FindByID(ctx, subject)
		if err != nil {
			observability.RecordAuthRefresh("unknown_subject")
			return TokenPair{}, "", err
		}
		role = user.Role
	}

	if s.policy == RefreshPolicyReuse {
		access, accessClaims, err := s.jwtMgr.Sign(security.KindAccess, subject, role, s.ttl.Access, claims.ID)
		if err != nil {
			return TokenPair{}, "", err
		}
		observability.RecordCredentialIssued(string(security.KindAccess))
		observability.RecordAuthRefresh("reused")
		return TokenPair{
			AccessToken:      access,
			RefreshToken:     refreshToken,
			AccessExpiresAt:  accessClaims.ExpiresAt.Time,
			RefreshExpiresAt: claims.ExpiresAt.Time,
		}, subject, nil
	}

	remaining := claims.ExpiresAt.Time.Sub(s.jwtMgr.Now())
	if remaining < time.Second {
		remaining = time.Second
	}
	first, err := s.guard.MarkUsed(ctx, claims.ID, remaining)
	if err != nil {
		observability.RecordAuthRefresh("guard_error")
		return TokenPair{}, "", fmt.Errorf("mark refresh token used: %w", err)
	}
	if !first {
		observability.RecordAuthRefresh("replayed")
		return TokenPair{}, "", &security.AuthError{Kind: security.InvalidSignature, Err: ErrRefreshTokenReused}
	}
	pair, err := s.IssueAccessAndRefresh(subject, role)
	if err != nil {
		return TokenPair{}, "", err
	}
	observability.RecordAuthRefresh("rotated")
	return pair, subject, nil
}

// RedeemResetToken verifies a reset token, burns its id and runs apply for
// the token's subject. If apply fails the id is released so the same token
// can be retried; once apply succeeds the token cannot be used again.
func (s *CredentialService) RedeemResetToken(ctx context.Context, resetToken string, apply func(ctx context.Context, subject string) error) error {
	claims, err := s.VerifyClaims(resetToken, security.KindReset)
	if err != nil {
		return err
	}
	remaining := claims.ExpiresAt.Time.Sub(s.jwtMgr.Now())
	if remaining < time.Second {
		remaining = time.Second
	}
	key := "reset:" + claims.ID
	first, err := s.guard.MarkUsed(ctx, key, remaining)
	if err != nil {
		return fmt.Errorf("mark reset token used: %w", err)
	}
	if !first {
		return &security.AuthError{Kind: security.InvalidSignature, Err: ErrResetTokenUsed}
	}
	if err := apply(ctx, claims.Subject); err != nil {
		if rerr := s.guard.Release(ctx, key); rerr != nil {
			return errors.Join(err, fmt.Errorf("release reset token: %w", rerr))
		}
		return err
	}
	return nil
}
