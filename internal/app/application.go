// Package app wires the domain services to their storage and cache
// dependencies.
package app

import (
	"time"

	"github.com/breathtrack/backend/internal/app/cache"
	"github.com/breathtrack/backend/internal/app/services/achievements"
	"github.com/breathtrack/backend/internal/app/services/auth"
	"github.com/breathtrack/backend/internal/app/services/sessions"
	"github.com/breathtrack/backend/internal/app/services/users"
	"github.com/breathtrack/backend/internal/app/storage"
	"github.com/breathtrack/backend/internal/app/storage/memory"
	"github.com/breathtrack/backend/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users        storage.UserStore
	Sessions     storage.SessionStore
	Achievements storage.AchievementStore
	Unlocks      storage.UnlockStore
}

// Options carries the tunables the services need.
type Options struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	StatsCacheTTL   time.Duration
	UserCacheTTL    time.Duration
}

// Application ties the domain services together.
type Application struct {
	log *logger.Logger

	Auth         *auth.Service
	Users        *users.Service
	Sessions     *sessions.Service
	Achievements *achievements.Service
}

// New builds a fully initialised application with the provided stores and
// cache. A nil cache falls back to the in-process implementation.
func New(stores Stores, c cache.Client, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if c == nil {
		c = cache.NewMemory()
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Sessions == nil {
		stores.Sessions = mem
	}
	if stores.Achievements == nil {
		stores.Achievements = mem
	}
	if stores.Unlocks == nil {
		stores.Unlocks = mem
	}

	authService := auth.New(stores.Users, c, opts.JWTSecret, opts.AccessTokenTTL, opts.RefreshTokenTTL, log)
	userService := users.New(stores.Users, stores.Unlocks, c, opts.UserCacheTTL, log)
	achievementService := achievements.New(stores.Achievements, stores.Unlocks, stores.Users, c, opts.StatsCacheTTL, log)
	sessionService := sessions.New(stores.Users, stores.Sessions, achievementService, c, opts.StatsCacheTTL, log)

	return &Application{
		log:          log,
		Auth:         authService,
		Users:        userService,
		Sessions:     sessionService,
		Achievements: achievementService,
	}, nil
}
