package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	configMetricsOnce sync.Once
	configLoads       metric.Int64Counter
)

// recordConfigLoad counts one success event, or one failure event per distinct
// issue class so a config with two bad secrets and a bad policy shows up under
// both classes.
func recordConfigLoad(ctx context.Context, profile string, err error) {
	configMetricsOnce.Do(func() {
		counter, cerr := otel.Meter("globalix-api/config").Int64Counter(
			"config.load.events",
			metric.WithDescription("Configuration load attempts by outcome and issue class"),
		)
		if cerr == nil {
			configLoads = counter
		}
	})
	if configLoads == nil {
		return
	}
	env := attribute.String("profile", configProfile(profile))
	if err == nil {
		configLoads.Add(ctx, 1, metric.WithAttributes(env,
			attribute.String("outcome", "success"),
			attribute.String("issue_class", "none"),
		))
		return
	}
	for _, class := range IssueClasses(err) {
		configLoads.Add(ctx, 1, metric.WithAttributes(env,
			attribute.String("outcome", "failure"),
			attribute.String("issue_class", string(class)),
		))
	}
}

// configProfile folds APP_ENV spellings onto the three profiles the service
// knows about.
func configProfile(appEnv string) string {
	switch strings.ToLower(strings.TrimSpace(appEnv)) {
	case "":
		return "unknown"
	case "prod", "production":
		return "production"
	case "dev", "development", "local":
		return "development"
	case "test", "testing", "ci":
		return "test"
	default:
		return "other"
	}
}
