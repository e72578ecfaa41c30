package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/domain"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/health"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/handler"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/middleware"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/response"
)

type Dependencies struct {
	AuthHandler        *handler.AuthHandler
	ActivityHandler    *handler.ActivityHandler
	Verifier           middleware.TokenVerifier
	CORSOrigins        []string
	AuthRateLimitRPS   float64
	AuthRateLimitBurst int
	AuthRateLimiter    func(http.Handler) http.Handler
	Readiness          *health.ProbeRunner
	MetricsHandler     http.Handler
	EnableOTelHTTP     bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPS, dep.AuthRateLimitBurst, "auth").Middleware()
	}
	requireAuth := middleware.AuthMiddleware(dep.Verifier)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})
	if dep.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", dep.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authLimiter)
			r.Post("/register", dep.AuthHandler.Register)
			r.Post("/login", dep.AuthHandler.Login)
			r.Post("/refresh", dep.AuthHandler.Refresh)
			r.Post("/forgot-password", dep.AuthHandler.ForgotPassword)
			r.Post("/reset-password", dep.AuthHandler.ResetPassword)
		})
		r.With(requireAuth).Post("/logout", dep.AuthHandler.Logout)
		r.With(requireAuth).Get("/me", dep.AuthHandler.Me)
	})

	r.Route("/activities", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/log", dep.ActivityHandler.Log)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Get("/", dep.ActivityHandler.List)
			r.Get("/summary", dep.ActivityHandler.Summary)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
