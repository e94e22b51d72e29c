package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/minhtran/blog-backend/internal/auth"
	"github.com/minhtran/blog-backend/internal/config"
	"github.com/minhtran/blog-backend/internal/database"
	"github.com/minhtran/blog-backend/internal/handler"
	"github.com/minhtran/blog-backend/internal/middleware"
	"github.com/minhtran/blog-backend/internal/queue"
	"github.com/minhtran/blog-backend/internal/repository"
	"github.com/minhtran/blog-backend/internal/router"
	queuepub "github.com/minhtran/blog-backend/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	posts := repository.NewPostRepo(db)

	authSvc := auth.NewService(users, tokens, auth.Config{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
		BcryptCost:    cfg.BcryptCost,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	authHandler.Publish = queuepub.PublishUserRegistered

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting and response caching disabled")
	}

	e := echo.New()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	middleware.InitMetrics()
	e.Use(middleware.Metrics())
	e.GET("/metrics", echo.WrapHandler(middleware.MetricsHandler()))

	router.RegisterRoutes(e, router.Deps{
		AccessSecret: cfg.AccessSecret,
		Auth:         authHandler,
		Posts:        handler.NewPostHandler(posts),
		Users:        handler.NewUserHandler(users, authSvc),
		PostOwners:   posts,
		RateLimiter:  middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb),
		Cache:        middleware.NewResponseCache(config.LoadCacheConfig(), rdb),
	})

	go queue.StartRegistrationConsumer()
	go sweepExpiredTokens(authSvc)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// sweepExpiredTokens periodically deletes expired refresh-token rows,
// including inert placeholder rows left by a crash mid-issuance.
func sweepExpiredTokens(svc *auth.Service) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := svc.SweepExpired(ctx)
		cancel()
		if err != nil {
			log.Printf("token sweep failed: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("token sweep removed %d expired refresh tokens", n)
		}
	}
}
