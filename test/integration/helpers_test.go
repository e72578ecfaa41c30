package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/app"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/config"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/security"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Total   int             `json:"total"`
	Error   *struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
	} `json:"error"`
}

type authData struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

type testServerOption func(*config.Config)

func withRefreshPolicy(policy string) testServerOption {
	return func(c *config.Config) { c.RefreshTokenPolicy = policy }
}

func withActivityCapacity(n int) testServerOption {
	return func(c *config.Config) { c.ActivityCapacity = n }
}

func integrationConfig(t *testing.T, opts ...testServerOption) *config.Config {
	t.Helper()
	cfg := &config.Config{
		AppEnv:             "test",
		HTTPAddr:           "127.0.0.1:0",
		ReadHeaderTimeout:  time.Second,
		ShutdownTimeout:    5 * time.Second,
		JWTIssuer:          "globalix-api",
		JWTAudience:        "globalix-clients",
		JWTAccessSecret:    "integration-access-secret-0123456789abcdef",
		JWTRefreshSecret:   "integration-refresh-secret-0123456789abcde",
		JWTAccessTTL:       time.Hour,
		JWTRefreshTTL:      24 * time.Hour,
		JWTResetTTL:        time.Hour,
		RefreshTokenPolicy: "reuse",
		ExposeResetToken:   true,
		DatabaseDriver:     "sqlite",
		DatabaseURL:        "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared",
		// one connection keeps the shared in-memory database alive and
		// serializes sqlite writes
		DatabaseMaxOpenConns: 1,
		ActivityCapacity:     1000,
		AuthRateLimitRPS:     1000,
		AuthRateLimitBurst:   1000,
		OTELServiceName:      "globalix-api-integration",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// newAuthTestServer builds the full application and serves its handler from
// an httptest server.
func newAuthTestServer(t *testing.T, opts ...testServerOption) (string, *http.Client, func()) {
	baseURL, client, _, closeFn := newAuthTestServerWithConfig(t, opts...)
	return baseURL, client, closeFn
}

func newAuthTestServerWithConfig(t *testing.T, opts ...testServerOption) (string, *http.Client, *config.Config, func()) {
	t.Helper()
	cfg := integrationConfig(t, opts...)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := app.Build(context.Background(), cfg, logger, nil)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	srv := httptest.NewServer(a.Server.Handler)
	closeFn := func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	}
	return srv.URL, srv.Client(), cfg, closeFn
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v (%s)", err, raw)
		}
	}
	return resp, env
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func registerUser(t *testing.T, client *http.Client, baseURL, email, password string) authData {
	t.Helper()
	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     "Test User",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status=%d error=%+v", email, resp.StatusCode, env.Error)
	}
	var data authData
	decodeData(t, env, &data)
	return data
}

// adminToken mints an access token with the admin role for subject using the
// same signing keys as the server.
func adminToken(t *testing.T, cfg *config.Config, subject string) string {
	t.Helper()
	tok, err := app.NewCredentialIssuer(cfg).SignAccessToken(subject, "admin", time.Hour)
	if err != nil {
		t.Fatalf("sign admin token: %v", err)
	}
	return tok
}

func signedToken(t *testing.T, cfg *config.Config, kind security.TokenKind, subject string, ttl time.Duration) string {
	t.Helper()
	tok, _, err := app.NewCredentialIssuer(cfg).Sign(kind, subject, "user", ttl, "")
	if err != nil {
		t.Fatalf("sign %s token: %v", kind, err)
	}
	return tok
}
