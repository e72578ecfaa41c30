package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/domain"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/observability"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/repository"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/security"

	"github.com/google/uuid"
)

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

type AuthResult struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	User         *domain.User `json:"user"`
}

type AuthService struct {
	users      repository.UserRepository
	creds      *CredentialService
	activities ActivityRecorder
	logger     *slog.Logger
}

func NewAuthService(users repository.UserRepository, creds *CredentialService, activities ActivityRecorder, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{users: users, creds: creds, activities: activities, logger: logger}
}

// dummyHash keeps unknown-email logins on the same bcrypt cost as real ones.
var dummyHash, _ = security.HashPassword("globalix-dummy-password")

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := repository.NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		observability.RecordAuthRegister("invalid")
		return nil, domain.NewValidationError("email", "must be a valid email address")
	}
	if strings.TrimSpace(in.Name) == "" {
		observability.RecordAuthRegister("invalid")
		return nil, domain.NewValidationError("name", "is required")
	}
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		observability.RecordAuthRegister("invalid")
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, domain.NewValidationError("password", fmt.Sprintf("must be at least %d characters", security.MinPasswordLength))
		}
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         domain.RoleUser,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			observability.RecordAuthRegister("conflict")
		} else {
			observability.RecordAuthRegister("error")
		}
		return nil, err
	}

	pair, err := s.creds.IssueAccessAndRefresh(user.ID, user.Role)
	if err != nil {
		observability.RecordAuthRegister("error")
		return nil, err
	}
	observability.RecordAuthRegister("success")
	s.record(user.ID, "User signed up", domain.ActivitySignup, map[string]any{"email": user.Email})
	return &AuthResult{Token: pair.AccessToken, RefreshToken: pair.RefreshToken, User: user}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			security.CheckPassword(dummyHash, password)
			observability.RecordAuthLogin("invalid_credentials")
			return nil, domain.ErrInvalidCredentials
		}
		observability.RecordAuthLogin("error")
		return nil, err
	}
	if !security.CheckPassword(user.PasswordHash, password) {
		observability.RecordAuthLogin("invalid_credentials")
		return nil, domain.ErrInvalidCredentials
	}

	pair, err := s.creds.IssueAccessAndRefresh(user.ID, user.Role)
	if err != nil {
		observability.RecordAuthLogin("error")
		return nil, err
	}
	observability.RecordAuthLogin("success")
	s.record(user.ID, "User logged in", domain.ActivityLogin, map[string]any{"email": user.Email})
	return &AuthResult{Token: pair.AccessToken, RefreshToken: pair.RefreshToken, User: user}, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	pair, subject, err := s.creds.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: pair.AccessToken, RefreshToken: pair.RefreshToken, User: user}, nil
}

// ForgotPassword returns a reset token for a known email and an empty string
// otherwise. Callers must answer both cases identically.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			observability.RecordPasswordReset("unknown_email")
			return "", nil
		}
		return "", err
	}
	token, _, err := s.creds.IssueResetToken(user.ID)
	if err != nil {
		return "", err
	}
	observability.RecordPasswordReset("requested")
	s.logger.InfoContext(ctx, "password reset requested", "user_id", user.ID)
	return token, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if len(newPassword) < security.MinPasswordLength {
		return domain.NewValidationError("password", fmt.Sprintf("must be at least %d characters", security.MinPasswordLength))
	}
	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	err = s.creds.RedeemResetToken(ctx, resetToken, func(ctx context.Context, subject string) error {
		return s.users.UpdatePassword(ctx, subject, hash)
	})
	switch {
	case err == nil:
		observability.RecordPasswordReset("completed")
	case security.IsAuthError(err):
		observability.RecordPasswordReset("invalid_token")
	default:
		observability.RecordPasswordReset("error")
	}
	return err
}

// Logout has no server-side token state to clear; it only records the event.
func (s *AuthService) Logout(_ context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		observability.RecordAuthLogout("invalid")
		return domain.NewValidationError("userId", "is required")
	}
	observability.RecordAuthLogout("success")
	s.record(userID, "User logged out", domain.ActivityLogout, nil)
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *AuthService) record(userID, action string, typ domain.ActivityType, metadata map[string]any) {
	if s.activities == nil {
		return
	}
	if _, err := s.activities.Append(userID, action, typ, metadata); err != nil {
		s.logger.Warn("record activity failed", "type", typ.String(), "user_id", userID, "error", err)
	}
}
