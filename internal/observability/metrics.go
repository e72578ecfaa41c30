package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "globalix-api"

type AppMetrics struct {
	authLoginCounter        metric.Int64Counter
	authRegisterCounter     metric.Int64Counter
	authRefreshCounter      metric.Int64Counter
	authLogoutCounter       metric.Int64Counter
	authResetCounter        metric.Int64Counter
	credentialIssued        metric.Int64Counter
	tokenVerification       metric.Int64Counter
	accessTokenValidation   metric.Int64Counter
	activityAppended        metric.Int64Counter
	activityEvicted         metric.Int64Counter
	activityRejected        metric.Int64Counter
	repositoryOperations    metric.Int64Counter
	rateLimitDecisions      metric.Int64Counter
	rateLimitRetryAfterSecs metric.Int64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

// InitMetrics installs the global meter provider. The returned handler serves
// the Prometheus scrape endpoint and is nil when Prometheus export is off.
func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, http.Handler, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create metric resource: %w", err)
	}

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	var handler http.Handler
	if cfg.PrometheusEnabled {
		registry := prometheus.NewRegistry()
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(exporter))
		handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	if cfg.OTELMetricsEnabled {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
		if cfg.OTELExporterOTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create otlp metric exporter: %w", err)
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval)),
		))
	}

	mp := sdkmetric.NewMeterProvider(mpOpts...)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("metrics initialized",
		"prometheus", cfg.PrometheusEnabled,
		"otlp", cfg.OTELMetricsEnabled,
		"endpoint", cfg.OTELExporterOTLPEndpoint,
	)
	return mp, handler, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m   AppMetrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.authLoginCounter, "auth.login.attempts"},
		{&m.authRegisterCounter, "auth.register.attempts"},
		{&m.authRefreshCounter, "auth.refresh.attempts"},
		{&m.authLogoutCounter, "auth.logout.attempts"},
		{&m.authResetCounter, "auth.password_reset.attempts"},
		{&m.credentialIssued, "credential.issued"},
		{&m.tokenVerification, "credential.verifications"},
		{&m.accessTokenValidation, "auth.access_token.validations"},
		{&m.activityAppended, "activity.appended"},
		{&m.activityEvicted, "activity.evicted"},
		{&m.activityRejected, "activity.rejected"},
		{&m.repositoryOperations, "repository.operations"},
		{&m.rateLimitDecisions, "http.rate_limit.decisions"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}
	m.rateLimitRetryAfterSecs, err = meter.Int64Histogram("http.rate_limit.retry_after", metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create histogram http.rate_limit.retry_after: %w", err)
	}
	return &m, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthLogin(status string) {
	if m := current(); m != nil {
		m.authLoginCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordAuthRegister(status string) {
	if m := current(); m != nil {
		m.authRegisterCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordAuthRefresh(status string) {
	if m := current(); m != nil {
		m.authRefreshCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordAuthLogout(status string) {
	if m := current(); m != nil {
		m.authLogoutCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordPasswordReset(status string) {
	if m := current(); m != nil {
		m.authResetCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordCredentialIssued(kind string) {
	if m := current(); m != nil {
		m.credentialIssued.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func RecordTokenVerification(kind, outcome string) {
	if m := current(); m != nil {
		m.tokenVerification.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	if m := current(); m != nil {
		m.accessTokenValidation.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("source", source),
		))
	}
}

func RecordActivityAppended(activityType string, evicted bool) {
	m := current()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("type", activityType))
	m.activityAppended.Add(context.Background(), 1, attrs)
	if evicted {
		m.activityEvicted.Add(context.Background(), 1)
	}
}

func RecordActivityRejected(reason string) {
	if m := current(); m != nil {
		m.activityRejected.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func RecordRepositoryOperation(ctx context.Context, entity, op, outcome string) {
	if m := current(); m != nil {
		m.repositoryOperations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordRateLimitDecision(ctx context.Context, scope, decision string) {
	if m := current(); m != nil {
		m.rateLimitDecisions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("decision", decision),
		))
	}
}

func RecordRateLimitRetryAfter(ctx context.Context, scope string, seconds int64) {
	if m := current(); m != nil {
		m.rateLimitRetryAfterSecs.Record(ctx, seconds, metric.WithAttributes(attribute.String("scope", scope)))
	}
}
