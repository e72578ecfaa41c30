package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/domain"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/repository"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/security"
)

type authFixture struct {
	svc        *AuthService
	creds      *CredentialService
	users      repository.UserRepository
	activities *ActivityStore
	clock      *testClock
	logs       *bytes.Buffer
}

func newAuthFixture(t *testing.T, policy RefreshPolicy) *authFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := repository.OpenDatabase(repository.DatabaseOptions{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	clock := newTestClock()
	users := repository.NewUserRepository(db)
	mgr := security.NewJWTManager("globalix-test", "globalix-clients", testAccessSecret, testRefreshSecret, security.WithClock(clock.Now))
	creds := NewCredentialService(mgr, users, NewInMemoryRefreshReplayGuard(), policy, defaultTestTTLs)
	activities := NewActivityStore(WithActivityClock(clock.Now))
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	return &authFixture{
		svc:        NewAuthService(users, creds, activities, logger),
		creds:      creds,
		users:      users,
		activities: activities,
		clock:      clock,
		logs:       &logs,
	}
}

func (f *authFixture) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: "correct-horse", Name: "Test User"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return res
}

func TestAuthRegisterIssuesTokensAndRecordsSignup(t *testing.T) {
	f := newAuthFixture(t, RefreshPolicyReuse)
	res := f.register(t, " New@Example.com ")

	if res.User.ID == "" || res.User.Email != "new@example.com" || res.User.Role != domain.RoleUser {
		t.Fatalf("unexpected user %+v", res.User)
	}
	if res.User.PasswordHash == "correct-horse" {
		t.Fatal("password must be hashed")
	}
	sub, err := f.creds.Verify(res.Token, security.KindAccess)
	if err != nil || sub != res.User.ID {
		t.Fatalf("verify access: %q %v", sub, err)
	}

	events := f.activities.GetAll()
	if len(events) != 1 || events[0].Type != domain.ActivitySignup || events[0].Metadata["email"] != "new@example.com" {
		t.Fatalf("expected signup event, got %+v", events)
	}
}

func TestAuthRegisterValidationAndConflict(t *testing.T) {
	f := newAuthFixture(t, RefreshPolicyReuse)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{name: "bad email", in: RegisterInput{Email: "nope", Password: "correct-horse", Name: "N"}, field: "email"},
		{name: "missing name", in: RegisterInput{Email: "a@example.com", Password: "correct-horse"}, field: "name"},
		{name: "short password", in: RegisterInput{Email: "a@example.com", Password: "short", Name: "N"}, field: "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tc.in)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected %s validation error, got %v", tc.field, err)
			}
		})
	}

	f.register(t, "dup@example.com")
	_, err := f.svc.Register(ctx, RegisterInput{Email: "DUP@example.com", Password: "correct-horse", Name: "Dup"})
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthLogin(t *testing.T) {
	f := newAuthFixture(t, RefreshPolicyReuse)
	reg := f.register(t, "login@example.com")
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "LOGIN@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.User.ID != reg.User.ID {
		t.Fatalf("unexpected user %+v", res.User)
	}
	if _, err := f.creds.Verify(res.RefreshToken, security.KindRefresh); err != nil {
		t.Fatalf("verify refresh: %v", err)
	}

	if _, err := f.svc.Login(ctx, "login@example.com", "wrong-password"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "ghost@example.com", "correct-horse"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown email must look like a bad password, got %v", err)
	}

	logins, total, err := f.activities.Query(10, 0, domain.ActivityLogin)
	if err != nil || total != 1 || logins[0].Metadata["email"] != "login@example.com" {
		t.Fatalf("expected one login event, got %d %v", total, err)
	}
}

func TestAuthRefreshPolicies(t *testing.T) {
	t.Run("reuse", func(t *testing.T) {
		f := newAuthFixture(t, RefreshPolicyReuse)
		reg := f.register(t, "reuse@example.com")
		res, err := f.svc.Refresh(context.Background(), reg.RefreshToken)
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if res.RefreshToken != reg.RefreshToken || res.User.ID != reg.User.ID {
			t.Fatalf("unexpected refresh result %+v", res)
		}
	})
	t.Run("rotate", func(t *testing.T) {
		f := newAuthFixture(t, RefreshPolicyRotate)
		reg := f.register(t, "rotate@example.com")
		res, err := f.svc.Refresh(context.Background(), reg.RefreshToken)
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if res.RefreshToken == reg.RefreshToken {
			t.Fatal("expected rotated refresh token")
		}
		if _, err := f.svc.Refresh(context.Background(), reg.RefreshToken); !security.IsAuthError(err) {
			t.Fatalf("expected replay rejected, got %v", err)
		}
	})
}

func TestAuthForgotAndResetPassword(t *testing.T) {
	f := newAuthFixture(t, RefreshPolicyReuse)
	f.register(t, "reset@example.com")
	ctx := context.Background()

	token, err := f.svc.ForgotPassword(ctx, "ghost@example.com")
	if err != nil || token != "" {
		t.Fatalf("unknown email must yield no token and no error, got %q %v", token, err)
	}

	token, err = f.svc.ForgotPassword(ctx, "reset@example.com")
	if err != nil || token == "" {
		t.Fatalf("forgot password: %q %v", token, err)
	}
	if _, err := f.creds.Verify(token, security.KindAccess); err == nil {
		t.Fatal("reset token must not verify as an access token")
	}

	if err := f.svc.ResetPassword(ctx, token, "short"); !domain.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := f.svc.ResetPassword(ctx, token, "brand-new-pass"); err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, token, "another-pass"); !security.IsAuthError(err) {
		t.Fatalf("reset token must be single use, got %v", err)
	}

	if _, err := f.svc.Login(ctx, "reset@example.com", "correct-horse"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "reset@example.com", "brand-new-pass"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestAuthLogoutAndMe(t *testing.T) {
	f := newAuthFixture(t, RefreshPolicyReuse)
	reg := f.register(t, "me@example.com")
	ctx := context.Background()

	me, err := f.svc.Me(ctx, reg.User.ID)
	if err != nil || me.Email != "me@example.com" {
		t.Fatalf("me: %+v %v", me, err)
	}
	if _, err := f.svc.Me(ctx, "missing"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := f.svc.Logout(ctx, reg.User.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := f.svc.Logout(ctx, ""); !domain.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, total, err := f.activities.Query(10, 0, domain.ActivityLogout)
	if err != nil || total != 1 {
		t.Fatalf("expected one logout event, got %d %v", total, err)
	}
	if _, err := f.creds.Verify(reg.Token, security.KindAccess); err != nil {
		t.Fatalf("logout has no server-side revocation: %v", err)
	}
}

type failingRecorder struct{}

func (failingRecorder) Append(string, string, domain.ActivityType, map[string]any) (domain.ActivityEvent, error) {
	return domain.ActivityEvent{}, errors.New("store unavailable")
}

func TestAuthActivityFailureDoesNotFailLogin(t *testing.T) {
	f := newAuthFixture(t, RefreshPolicyReuse)
	f.register(t, "resilient@example.com")
	f.svc.activities = failingRecorder{}

	if _, err := f.svc.Login(context.Background(), "resilient@example.com", "correct-horse"); err != nil {
		t.Fatalf("login must succeed when recording fails: %v", err)
	}
	if !strings.Contains(f.logs.String(), "record activity failed") {
		t.Fatalf("expected warning logged, got %q", f.logs.String())
	}
}

type flakyPasswordStore struct {
	repository.UserRepository
	failures int
}

func (f *flakyPasswordStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.UserRepository.UpdatePassword(ctx, id, passwordHash)
}

func TestAuthResetPasswordSurvivesTransientStoreError(t *testing.T) {
	f := newAuthFixture(t, RefreshPolicyReuse)
	f.register(t, "flaky@example.com")
	ctx := context.Background()

	svc := NewAuthService(&flakyPasswordStore{UserRepository: f.users, failures: 1}, f.creds, f.activities, nil)
	token, err := svc.ForgotPassword(ctx, "flaky@example.com")
	if err != nil || token == "" {
		t.Fatalf("forgot password: %q %v", token, err)
	}

	if err := svc.ResetPassword(ctx, token, "brand-new-pass"); err == nil || security.IsAuthError(err) {
		t.Fatalf("expected the store error, got %v", err)
	}
	if err := svc.ResetPassword(ctx, token, "brand-new-pass"); err != nil {
		t.Fatalf("retry with the same token should succeed: %v", err)
	}
	if err := svc.ResetPassword(ctx, token, "third-pass-1"); !security.IsAuthError(err) {
		t.Fatalf("token must be spent after a successful reset, got %v", err)
	}
	if _, err := svc.Login(ctx, "flaky@example.com", "brand-new-pass"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
