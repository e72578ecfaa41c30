package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/app"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/config"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/observability"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/security"
)

type options struct {
	envFile string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "globalix-api",
		Short:         "Session credentials and activity telemetry service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.AddCommand(newServeCommand(opts), newTokenCommand(opts))
	return cmd
}

func loadConfig(ctx context.Context, opts *options) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}
	return config.Load(ctx)
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(ctx, opts)
			if err != nil {
				return err
			}
			logger, lp, err := observability.InitLogging(ctx, cfg, os.Stdout)
			if err != nil {
				return err
			}
			runtime, err := observability.InitRuntime(ctx, cfg, logger)
			if err != nil {
				if lp != nil {
					_ = lp.Shutdown(context.Background())
				}
				return err
			}
			runtime.LoggerProvider = lp

			a, err := app.Build(ctx, cfg, logger, runtime)
			if err != nil {
				_ = runtime.Shutdown(context.Background())
				return err
			}
			return a.Run(ctx)
		},
	}
}

func newTokenCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Issue or inspect credentials"}
	cmd.AddCommand(newTokenIssueCommand(opts), newTokenVerifyCommand(opts))
	return cmd
}

func newTokenIssueCommand(opts *options) *cobra.Command {
	var (
		subject string
		kind    string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint a token for a subject",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context(), opts)
			if err != nil {
				return err
			}
			k, err := security.ParseTokenKind(kind)
			if err != nil {
				return err
			}
			return issueToken(cmd.OutOrStdout(), app.NewCredentialIssuer(cfg), cfg, k, subject, role)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject (user id) embedded in the token")
	cmd.Flags().StringVar(&kind, "kind", "access", "token kind: access, refresh or reset")
	cmd.Flags().StringVar(&role, "role", "user", "role claim for access tokens")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newTokenVerifyCommand(opts *options) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a token and print its claims",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), opts)
			if err != nil {
				return err
			}
			k, err := security.ParseTokenKind(kind)
			if err != nil {
				return err
			}
			raw := ""
			if len(args) == 1 {
				raw = args[0]
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
				raw = string(b)
			}
			return verifyToken(cmd.OutOrStdout(), app.NewCredentialIssuer(cfg), k, strings.TrimSpace(raw))
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "access", "expected token kind: access, refresh or reset")
	return cmd
}

type tokenOutput struct {
	Token     string `json:"token,omitempty"`
	Kind      string `json:"kind"`
	Subject   string `json:"subject"`
	Role      string `json:"role,omitempty"`
	ID        string `json:"jti"`
	ExpiresAt string `json:"expiresAt"`
}

func issueToken(w io.Writer, mgr *security.JWTManager, cfg *config.Config, kind security.TokenKind, subject, role string) error {
	ttl := cfg.JWTAccessTTL
	switch kind {
	case security.KindRefresh:
		ttl = cfg.JWTRefreshTTL
	case security.KindReset:
		ttl = cfg.JWTResetTTL
	}
	tok, claims, err := mgr.Sign(kind, subject, role, ttl, "")
	if err != nil {
		return err
	}
	return writeJSON(w, tokenOutput{
		Token:     tok,
		Kind:      claims.TokenType,
		Subject:   claims.Subject,
		Role:      claims.Role,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

func verifyToken(w io.Writer, mgr *security.JWTManager, kind security.TokenKind, raw string) error {
	claims, err := mgr.Parse(raw, kind)
	if err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}
	return writeJSON(w, tokenOutput{
		Kind:      claims.TokenType,
		Subject:   claims.Subject,
		Role:      claims.Role,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
