package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/security"
)

func TestRegisterLoginMeLogout(t *testing.T) {
	baseURL, client, cfg, closeFn := newAuthTestServerWithConfig(t)
	defer closeFn()

	registered := registerUser(t, client, baseURL, "Alice@Example.com", "correct-horse")
	if registered.Token == "" || registered.RefreshToken == "" {
		t.Fatalf("expected token pair on register, got %+v", registered)
	}
	if registered.User.Email != "alice@example.com" || registered.User.Role != "user" {
		t.Fatalf("unexpected registered user: %+v", registered.User)
	}

	t.Run("duplicate email conflicts", func(t *testing.T) {
		resp, env := doJSON(t, client, http.MethodPost, baseURL+"/auth/register", map[string]string{
			"email": "alice@example.com", "password": "another-pass", "name": "Alice",
		}, nil)
		if resp.StatusCode != http.StatusConflict || env.Error == nil || env.Error.Code != "USER_EXISTS" {
			t.Fatalf("expected 409 USER_EXISTS, got %d %+v", resp.StatusCode, env.Error)
		}
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		for _, body := range []map[string]string{
			{"email": "alice@example.com", "password": "wrong-password"},
			{"email": "nobody@example.com", "password": "wrong-password"},
		} {
			resp, env := doJSON(t, client, http.MethodPost, baseURL+"/auth/login", body, nil)
			if resp.StatusCode != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "INVALID_CREDENTIALS" {
				t.Fatalf("expected 401 INVALID_CREDENTIALS for %s, got %d %+v", body["email"], resp.StatusCode, env.Error)
			}
		}
	})

	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/auth/login", map[string]string{
		"email": "alice@example.com", "password": "correct-horse",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d %+v", resp.StatusCode, env.Error)
	}
	var login authData
	decodeData(t, env, &login)

	resp, env = doJSON(t, client, http.MethodGet, baseURL+"/auth/me", nil, bearer(login.Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me failed: %d %+v", resp.StatusCode, env.Error)
	}
	var me struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	decodeData(t, env, &me)
	if me.ID != registered.User.ID {
		t.Fatalf("expected me=%s, got %s", registered.User.ID, me.ID)
	}

	resp, _ = doJSON(t, client, http.MethodPost, baseURL+"/auth/logout", nil, bearer(login.Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout failed: %d", resp.StatusCode)
	}

	t.Run("refresh token is not an access token", func(t *testing.T) {
		resp, env := doJSON(t, client, http.MethodGet, baseURL+"/auth/me", nil, bearer(login.RefreshToken))
		if resp.StatusCode != http.StatusUnauthorized || env.Error.Message != "invalid or expired token" {
			t.Fatalf("expected generic 401, got %d %+v", resp.StatusCode, env.Error)
		}
	})

	t.Run("expired access token", func(t *testing.T) {
		expired := signedToken(t, cfg, security.KindAccess, registered.User.ID, time.Nanosecond)
		time.Sleep(5 * time.Millisecond)
		resp, env := doJSON(t, client, http.MethodGet, baseURL+"/auth/me", nil, bearer(expired))
		if resp.StatusCode != http.StatusUnauthorized || env.Error.Message != "invalid or expired token" {
			t.Fatalf("expected generic 401, got %d %+v", resp.StatusCode, env.Error)
		}
	})
}

func TestRefreshReusePolicy(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t, withRefreshPolicy("reuse"))
	defer closeFn()

	user := registerUser(t, client, baseURL, "bob@example.com", "bob-password")
	for i := 0; i < 2; i++ {
		resp, env := doJSON(t, client, http.MethodPost, baseURL+"/auth/refresh", map[string]string{
			"refreshToken": user.RefreshToken,
		}, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("refresh %d failed: %d %+v", i, resp.StatusCode, env.Error)
		}
		var data authData
		decodeData(t, env, &data)
		if data.RefreshToken != user.RefreshToken {
			t.Fatal("reuse policy must hand back the presented refresh token")
		}
		if data.Token == "" || data.User.ID != user.User.ID {
			t.Fatalf("unexpected refresh payload: %+v", data)
		}
	}
}

func TestRefreshRotatePolicyRejectsReplay(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t, withRefreshPolicy("rotate"))
	defer closeFn()

	user := registerUser(t, client, baseURL, "carol@example.com", "carol-password")

	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/auth/refresh", map[string]string{
		"refreshToken": user.RefreshToken,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first refresh failed: %d %+v", resp.StatusCode, env.Error)
	}
	var rotated authData
	decodeData(t, env, &rotated)
	if rotated.RefreshToken == "" || rotated.RefreshToken == user.RefreshToken {
		t.Fatal("rotate policy must issue a new refresh token")
	}

	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/auth/refresh", map[string]string{
		"refreshToken": user.RefreshToken,
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected replay to be rejected, got %d %+v", resp.StatusCode, env.Error)
	}

	resp, _ = doJSON(t, client, http.MethodPost, baseURL+"/auth/refresh", map[string]string{
		"refreshToken": rotated.RefreshToken,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotated token should be usable once, got %d", resp.StatusCode)
	}
}

func TestRefreshForDeletedSubjectIsUnauthorized(t *testing.T) {
	baseURL, client, cfg, closeFn := newAuthTestServerWithConfig(t)
	defer closeFn()

	orphan := signedToken(t, cfg, security.KindRefresh, "no-such-user", time.Hour)
	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/auth/refresh", map[string]string{
		"refreshToken": orphan,
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected 401, got %d %+v", resp.StatusCode, env.Error)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t)
	defer closeFn()

	registerUser(t, client, baseURL, "dave@example.com", "old-password")

	forgot := func(email string) (int, map[string]string) {
		resp, env := doJSON(t, client, http.MethodPost, baseURL+"/auth/forgot-password", map[string]string{"email": email}, nil)
		var data map[string]string
		decodeData(t, env, &data)
		return resp.StatusCode, data
	}

	status, unknown := forgot("ghost@example.com")
	if status != http.StatusOK || unknown["resetToken"] != "" {
		t.Fatalf("unknown email must not yield a token: %d %+v", status, unknown)
	}
	status, known := forgot("dave@example.com")
	if status != http.StatusOK || known["resetToken"] == "" {
		t.Fatalf("expected exposed reset token: %d %+v", status, known)
	}
	if known["message"] != unknown["message"] {
		t.Fatalf("responses must not reveal whether the email exists: %q vs %q", known["message"], unknown["message"])
	}

	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/auth/reset-password", map[string]string{
		"token": known["resetToken"], "password": "short",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected short password rejection, got %d %+v", resp.StatusCode, env.Error)
	}

	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/auth/reset-password", map[string]string{
		"token": known["resetToken"], "password": "brand-new-password",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset failed: %d %+v", resp.StatusCode, env.Error)
	}

	resp, _ = doJSON(t, client, http.MethodPost, baseURL+"/auth/reset-password", map[string]string{
		"token": known["resetToken"], "password": "another-password",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("reset token must be single use, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, client, http.MethodPost, baseURL+"/auth/login", map[string]string{
		"email": "dave@example.com", "password": "old-password",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password should no longer work, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, client, http.MethodPost, baseURL+"/auth/login", map[string]string{
		"email": "dave@example.com", "password": "brand-new-password",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("new password should work, got %d", resp.StatusCode)
	}
}
