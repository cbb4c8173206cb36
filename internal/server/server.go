package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bookshelf/internal/app"
	"bookshelf/internal/ratelimit"
	"bookshelf/internal/util"
	"bookshelf/pkg/auth"
	"bookshelf/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	RedisAddr     string
	RedisPassword string

	RegisterRateLimitPerMinute int
	LoginRateLimitPerMinute    int
	RefreshRateLimitPerMinute  int

	MaxUploadBytes int64
	AllowedOrigins []string
	TrustedProxies *util.TrustedProxies

	// Limiters can be injected for tests; when nil they are built from the
	// Redis settings above.
	RegisterLimiter *ratelimit.FixedWindowLimiter
	LoginLimiter    *ratelimit.FixedWindowLimiter
	RefreshLimiter  *ratelimit.FixedWindowLimiter
}

// Server exposes the HTTP API.
type Server struct {
	app *app.App
	mux *http.ServeMux

	maxUploadBytes  int64
	allowedOrigins  []string
	trustedProxies  *util.TrustedProxies
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
	refreshLimiter  *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	registerLimit := cfg.RegisterRateLimitPerMinute
	if registerLimit <= 0 {
		registerLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	refreshLimit := cfg.RefreshRateLimitPerMinute
	if refreshLimit <= 0 {
		refreshLimit = 20
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "bookshelf:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	registerLimiter := cfg.RegisterLimiter
	if registerLimiter == nil {
		var err error
		if registerLimiter, err = newLimiter("register", registerLimit); err != nil {
			return nil, err
		}
	}
	loginLimiter := cfg.LoginLimiter
	if loginLimiter == nil {
		var err error
		if loginLimiter, err = newLimiter("login", loginLimit); err != nil {
			return nil, err
		}
	}
	refreshLimiter := cfg.RefreshLimiter
	if refreshLimiter == nil {
		var err error
		if refreshLimiter, err = newLimiter("refresh", refreshLimit); err != nil {
			return nil, err
		}
	}

	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}

	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		maxUploadBytes:  maxUploadBytes,
		allowedOrigins:  cfg.AllowedOrigins,
		trustedProxies:  cfg.TrustedProxies,
		registerLimiter: registerLimiter,
		loginLimiter:    loginLimiter,
		refreshLimiter:  refreshLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithRequestLog("bookshelf-api", h)
	h = util.WithRequestID(h)
	h = util.WithCORS(s.allowedOrigins, h)
	h = util.WithSecurityHeaders(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/auth/me", s.authenticated(s.handleMe))

	// catalog
	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.HandleFunc("/api/books/featured", s.handleFeaturedBooks)
	s.mux.HandleFunc("/api/books/", s.handleBookByID)
	s.mux.Handle("/api/upload", s.authenticated(s.handleUpload))
	s.mux.HandleFunc("/api/covers/", s.handleCover)

	// reviews
	s.mux.HandleFunc("/api/reviews", s.handleReviews)
	s.mux.HandleFunc("/api/reviews/featured", s.handleFeaturedReviews)
	s.mux.HandleFunc("/api/reviews/", s.handleReviewByID)

	// users and library
	s.mux.Handle("/api/users/profile", s.authenticated(s.handleProfile))
	s.mux.HandleFunc("/api/users/", s.handleUserByID)
	s.mux.Handle("/api/library", s.authenticated(s.handleLibrary))
	s.mux.Handle("/api/library/", s.authenticated(s.handleLibraryBook))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.app.UserFromToken(token)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

// writeAppError maps application errors onto HTTP responses. Unexpected
// errors are logged with the request id and surfaced as a generic 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Reason,
			"field": verr.Field,
		})
	case errors.Is(err, app.ErrBookNotFound),
		errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrReviewNotFound),
		errors.Is(err, app.ErrCoverNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, app.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrAlreadyReviewed),
		errors.Is(err, app.ErrEmailAlreadyExists),
		errors.Is(err, app.ErrEmailAndPasswordRequired),
		errors.Is(err, app.ErrUsernameRequired),
		errors.Is(err, app.ErrRefreshTokenRequired),
		errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request_failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
