package app

import (
	"fmt"
	"strings"
	"time"

	"bookshelf/internal/extract"
	"bookshelf/pkg/storage"
	"bookshelf/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	JWTLeeway     time.Duration
	SessionTTL    time.Duration
	RefreshTTL    time.Duration

	MaxUploadBytes    int64
	AllowedExtensions []string

	// Test seams: when set, the corresponding backend is not constructed.
	Store         store.Store
	Sessions      store.SessionStore
	RefreshTokens store.RefreshTokenStore
	Objects       storage.ObjectStore
}

// App is the core application service wiring storage, sessions, object
// storage and metadata extraction together.
type App struct {
	store         store.Store
	sessions      store.SessionStore
	refreshTokens store.RefreshTokenStore
	objects       storage.ObjectStore
	extractor     *extract.Extractor

	refreshTTL        time.Duration
	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
}

// New constructs the application with database storage, Redis-backed
// sessions and object storage.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".pdf", ".epub", ".txt", ".jpg", ".jpeg", ".png", ".gif"}
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for jwt+redis session strategy")
		}
		revoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		jwtStore, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   cfg.JWTLeeway,
		})
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		sessionStore = jwtStore
	}

	refreshStore := cfg.RefreshTokens
	if refreshStore == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for refresh token strategy")
		}
		refreshStore = store.NewRedisRefreshTokenStore(cfg.RedisAddr, cfg.RedisPassword)
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimSpace(ext))] = struct{}{}
	}

	return &App{
		store:             dataStore,
		sessions:          sessionStore,
		refreshTokens:     refreshStore,
		objects:           cfg.Objects,
		extractor:         extract.NewExtractor(),
		refreshTTL:        cfg.RefreshTTL,
		maxUploadBytes:    cfg.MaxUploadBytes,
		allowedExtensions: allowed,
	}, nil
}
