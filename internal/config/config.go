package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const minSecretLength = 32

type Config struct {
	AppEnv            string        `env:"APP_ENV,             default=development"`
	HTTPAddr          string        `env:"HTTP_ADDR,           default=:8080"`
	MetricsAddr       string        `env:"METRICS_ADDR"`
	LogLevel          string        `env:"LOG_LEVEL,           default=info"`
	LogFormat         string        `env:"LOG_FORMAT,          default=json"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT, default=5s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,    default=15s"`
	CORSOrigins       []string      `env:"CORS_ORIGINS"`

	JWTIssuer          string        `env:"JWT_ISSUER,           default=globalix-api"`
	JWTAudience        string        `env:"JWT_AUDIENCE,         default=globalix-clients"`
	JWTAccessSecret    string        `env:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret   string        `env:"JWT_REFRESH_SECRET"`
	JWTAccessTTL       time.Duration `env:"JWT_ACCESS_TTL,       default=1h"`
	JWTRefreshTTL      time.Duration `env:"JWT_REFRESH_TTL,      default=168h"`
	JWTResetTTL        time.Duration `env:"JWT_RESET_TTL,        default=1h"`
	RefreshTokenPolicy string        `env:"REFRESH_TOKEN_POLICY, default=reuse"`
	ExposeResetToken   bool          `env:"EXPOSE_RESET_TOKEN,   default=false"`

	DatabaseDriver          string        `env:"DATABASE_DRIVER,            default=sqlite"`
	DatabaseURL             string        `env:"DATABASE_URL,               default=file:globalix.db?cache=shared"`
	DatabaseMaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,    default=10"`
	DatabaseMaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,    default=5"`
	DatabaseConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME, default=5m"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB, default=0"`

	ActivityCapacity   int     `env:"ACTIVITY_CAPACITY,     default=1000"`
	AuthRateLimitRPS   float64 `env:"AUTH_RATE_LIMIT_RPS,   default=5"`
	AuthRateLimitBurst int     `env:"AUTH_RATE_LIMIT_BURST, default=10"`

	OTELServiceName           string        `env:"OTEL_SERVICE_NAME,             default=globalix-api"`
	OTELEnvironment           string        `env:"OTEL_ENVIRONMENT,              default=development"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT,   default=localhost:4317"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE,   default=true"`
	OTELMetricsEnabled        bool          `env:"OTEL_METRICS_ENABLED,          default=false"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL,  default=30s"`
	OTELTracingEnabled        bool          `env:"OTEL_TRACING_ENABLED,          default=false"`
	OTELLogsEnabled           bool          `env:"OTEL_LOGS_ENABLED,             default=false"`
	PrometheusEnabled         bool          `env:"PROMETHEUS_ENABLED,            default=true"`
	EnableOTelHTTP            bool          `env:"OTEL_HTTP_INSTRUMENTATION,     default=true"`
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production") || strings.EqualFold(c.AppEnv, "prod")
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper})
	if err != nil {
		err = fmt.Errorf("parse config: %w", &Issue{Class: IssueParse, Err: err})
		recordConfigLoad(ctx, cfg.AppEnv, err)
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		recordConfigLoad(ctx, cfg.AppEnv, err)
		return nil, err
	}
	recordConfigLoad(ctx, cfg.AppEnv, nil)
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTAccessSecret) < minSecretLength {
		errs = append(errs, newIssue(IssueSecretLength, "JWT_ACCESS_SECRET must be at least %d bytes", minSecretLength))
	}
	if len(c.JWTRefreshSecret) < minSecretLength {
		errs = append(errs, newIssue(IssueSecretLength, "JWT_REFRESH_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, newIssue(IssueSecretReuse, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 || c.JWTResetTTL <= 0 {
		errs = append(errs, newIssue(IssueLifetime, "token lifetimes must be positive"))
	}
	if c.JWTRefreshTTL > 0 && c.JWTAccessTTL > c.JWTRefreshTTL {
		errs = append(errs, newIssue(IssueLifetime, "JWT_ACCESS_TTL must not exceed JWT_REFRESH_TTL"))
	}
	switch strings.ToLower(c.RefreshTokenPolicy) {
	case "reuse", "rotate":
	default:
		errs = append(errs, newIssue(IssueRefreshPolicy, "REFRESH_TOKEN_POLICY must be reuse or rotate, got %q", c.RefreshTokenPolicy))
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, newIssue(IssueDatabaseDriver, "DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver))
	}
	if c.ActivityCapacity <= 0 {
		errs = append(errs, newIssue(IssueActivityCapacity, "ACTIVITY_CAPACITY must be positive"))
	}
	if c.AuthRateLimitRPS <= 0 || c.AuthRateLimitBurst <= 0 {
		errs = append(errs, newIssue(IssueRateLimit, "auth rate limit must be positive"))
	}
	if c.IsProduction() && c.ExposeResetToken {
		errs = append(errs, newIssue(IssueResetTokenExposure, "EXPOSE_RESET_TOKEN must be false in production"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validate config: %w", errors.Join(errs...))
	}
	return nil
}
