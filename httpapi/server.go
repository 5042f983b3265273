// Package httpapi exposes the engine over HTTP with chi.
//
// Public routes cover the two-step login, refresh rotation and password
// reset. Protected routes run behind middleware.Guard and read the caller
// from the request principal. Every request carries the client address and
// User-Agent into the engine context for lockout, audit and session
// metadata.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/middleware"
)

// PermManageUsers guards company user administration.
const PermManageUsers = "manage_users"

// Engine is the part of *tenantauth.Engine the API calls.
type Engine interface {
	middleware.Validator
	middleware.Authorizer

	Login(ctx context.Context, email, password string) (*tenantauth.LoginResult, error)
	VerifyLoginOTP(ctx context.Context, userID, code string) (*tenantauth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*tenantauth.TokenPair, error)
	Logout(ctx context.Context, userID, sessionID string) error
	LogoutAll(ctx context.Context, userID string) (int, error)
	ListSessions(ctx context.Context, userID string) ([]tenantauth.SessionInfo, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	CreateUser(ctx context.Context, in tenantauth.NewUser) (*tenantauth.UserRecord, error)
	Health(ctx context.Context) tenantauth.HealthStatus
}

var _ Engine = (*tenantauth.Engine)(nil)

// CookieOptions describes the http-only refresh token cookie.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// Options tunes the router. Zero values fall back to DefaultOptions.
type Options struct {
	Cookie CookieOptions
	// RateLimit is the sustained requests per second allowed per client
	// address on the public auth routes. Zero disables the limiter.
	RateLimit float64
	RateBurst int
	// TrustProxyHeaders takes the client address from X-Forwarded-For.
	TrustProxyHeaders bool
	MaxBodyBytes      int64
	// Registry receives request metrics and is served on /metrics.
	Registry *prometheus.Registry
	// HealthChecks are extra probes reported by /healthz, such as the
	// database ping.
	HealthChecks map[string]func(context.Context) error
}

func DefaultOptions() Options {
	return Options{
		Cookie: CookieOptions{
			Name:     "refresh_token",
			Path:     "/auth",
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
			MaxAge:   7 * 24 * time.Hour,
		},
		RateLimit:    5,
		RateBurst:    20,
		MaxBodyBytes: 1 << 20,
	}
}

// Server routes requests to the engine.
type Server struct {
	engine  Engine
	opts    Options
	log     *zap.Logger
	limiter *ipLimiter
	metrics *requestMetrics
	router  chi.Router
}

func New(engine Engine, opts Options, log *zap.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("httpapi: engine required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.Cookie.Name == "" {
		opts.Cookie = def.Cookie
	}
	if opts.Cookie.Path == "" {
		opts.Cookie.Path = def.Cookie.Path
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	if opts.RateLimit > 0 && opts.RateBurst <= 0 {
		opts.RateBurst = int(opts.RateLimit)
		if opts.RateBurst < 1 {
			opts.RateBurst = 1
		}
	}

	s := &Server{
		engine: engine,
		opts:   opts,
		log:    log.Named("http"),
	}
	if opts.RateLimit > 0 {
		s.limiter = newIPLimiter(opts.RateLimit, opts.RateBurst, 10*time.Minute)
	}
	if opts.Registry != nil {
		m, err := newRequestMetrics(opts.Registry)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.clientContext)
	r.Use(s.observe)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.opts.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/login", s.handleLogin)
			r.Post("/verify-otp", s.handleVerifyOTP)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/forgot-password", s.handleForgotPassword)
			r.Post("/reset-password", s.handleResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.engine))
			r.Get("/me", s.handleMe)
			r.Get("/sessions", s.handleSessions)
			r.Post("/logout", s.handleLogout)
			r.Post("/logout-all", s.handleLogoutAll)
			r.Post("/change-password", s.handleChangePassword)
		})
	})

	r.Route("/companies/{companyID}", func(r chi.Router) {
		r.Use(middleware.Guard(s.engine))
		r.With(middleware.RequirePermission(s.engine, PermManageUsers, companyParam)).
			Post("/users", s.handleCreateUser)
	})

	return r
}

func companyParam(r *http.Request) string {
	return chi.URLParam(r, "companyID")
}
