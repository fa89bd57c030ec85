// Package main runs the breathtrack API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/breathtrack/backend/internal/app"
	"github.com/breathtrack/backend/internal/app/cache"
	"github.com/breathtrack/backend/internal/app/httpapi"
	"github.com/breathtrack/backend/internal/app/metrics"
	"github.com/breathtrack/backend/internal/app/storage/postgres"
	"github.com/breathtrack/backend/internal/config"
	"github.com/breathtrack/backend/internal/middleware"
	"github.com/breathtrack/backend/internal/platform/migrations"
	"github.com/breathtrack/backend/pkg/logger"
)

func main() {
	seedCatalog := flag.Bool("seed", false, "seed the achievement catalog if empty, then continue")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("server").WithError(err).Error("load configuration")
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Component: "server",
	})

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.WithError(err).Error("open database")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.WithError(err).Error("database unreachable")
		os.Exit(1)
	}
	pingCancel()

	if err := migrations.Apply(ctx, db); err != nil {
		log.WithError(err).Error("apply migrations")
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	var cacheClient cache.Client
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable; using in-process cache")
		cacheClient = cache.NewMemory()
	} else {
		cacheClient = cache.NewRedis(redisClient, cfg.Redis.Timeout, log.WithField("component", "cache"))
	}

	store := postgres.New(db)
	application, err := app.New(app.Stores{
		Users:        store,
		Sessions:     store,
		Achievements: store,
		Unlocks:      store,
	}, cacheClient, app.Options{
		JWTSecret:       cfg.Auth.Secret,
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
		StatsCacheTTL:   cfg.Cache.StatsTTL,
		UserCacheTTL:    cfg.Cache.UserTTL,
	}, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	if *seedCatalog {
		created, err := application.Achievements.Seed(ctx)
		if err != nil {
			log.WithError(err).Error("seed achievement catalog")
			os.Exit(1)
		}
		log.WithField("created", created).Info("achievement catalog ready")
	}

	authn := middleware.NewAuthMiddleware(application.Auth, log)
	cors := middleware.NewCORSMiddleware(cfg.CORSOrigins)
	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	limiter.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", httpapi.NewHandler(application, authn))

	handler := cors.Handler(limiter.Handler(metrics.InstrumentHandler(mux)))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server stopped")
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}
