package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/config"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/health"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/observability"

	"golang.org/x/sync/errgroup"
)

type App struct {
	Config          *config.Config
	Logger          *slog.Logger
	Server          *http.Server
	MetricsServer   *http.Server
	Observability   *observability.Runtime
	Readiness       *health.ProbeRunner
	ShutdownTimeout time.Duration

	closers []func() error
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, metrics *http.Server, runtime *observability.Runtime, readiness *health.ProbeRunner) *App {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		MetricsServer:   metrics,
		Observability:   runtime,
		Readiness:       readiness,
		ShutdownTimeout: timeout,
	}
}

// OnClose registers a release hook run after the servers have drained, in
// reverse registration order.
func (a *App) OnClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Server.Addr, err)
	}
	var metricsLn net.Listener
	if a.MetricsServer != nil {
		metricsLn, err = net.Listen("tcp", a.MetricsServer.Addr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("listen %s: %w", a.MetricsServer.Addr, err)
		}
	}
	return a.Serve(ctx, ln, metricsLn)
}

// Serve blocks until ctx is cancelled or a server fails, then drains both
// servers and releases resources.
func (a *App) Serve(ctx context.Context, ln, metricsLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", ln.Addr().String())
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.MetricsServer != nil && metricsLn != nil {
		g.Go(func() error {
			a.Logger.Info("metrics server listening", "addr", metricsLn.Addr().String())
			if err := a.MetricsServer.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()

	a.Logger.Info("shutting down")
	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if a.MetricsServer != nil {
		if err := a.MetricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	if err := a.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close runs the release hooks and flushes telemetry. It does not stop the
// servers; Serve does that on cancellation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := a.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
	}
	return errors.Join(errs...)
}
