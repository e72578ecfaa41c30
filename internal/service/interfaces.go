package service

import (
	"context"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/domain"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/security"
)

type IdentityLookup interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	Logout(ctx context.Context, userID string) error
	Me(ctx context.Context, userID string) (*domain.User, error)
}

type TokenVerifier interface {
	VerifyClaims(token string, kind security.TokenKind) (*security.Claims, error)
}

type ActivityRecorder interface {
	Append(userID, action string, typ domain.ActivityType, metadata map[string]any) (domain.ActivityEvent, error)
}

type ActivityReader interface {
	Query(limit, offset int, filter domain.ActivityType) ([]domain.ActivityEvent, int, error)
	GetAll() []domain.ActivityEvent
	Summary() domain.ActivitySummary
}
