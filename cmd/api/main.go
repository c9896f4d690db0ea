package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollsheet/internal/auth"
	"rollsheet/internal/config"
	"rollsheet/internal/handler"
	"rollsheet/internal/httpmiddleware"
	"rollsheet/internal/metrics"
	"rollsheet/internal/relay"
	"rollsheet/internal/store"
	"rollsheet/internal/teacher"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
		if cfg.JWTSecret == "dev-signing-secret-change" {
			log.Fatal("JWT_SECRET must be set in production")
		}
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	accounts, db, err := openAccounts(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() {
		_ = redisClient.Close()
	}()

	m := metrics.New(prometheus.DefaultRegisterer)

	authSvc := auth.NewService(accounts, auth.Options{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	})
	relaySvc := relay.NewService(accounts, relay.NewClient(), m, relay.Options{
		VerifyTimeout: cfg.VerifyTimeout,
		SubmitTimeout: cfg.SubmitTimeout,
	})

	// Nil pointers must not reach the handler as non-nil interfaces.
	var dbPinger, redisPinger handler.Pinger
	if db != nil {
		dbPinger = db
	}
	if redisClient != nil {
		redisPinger = redisClient
	}
	h := handler.New(authSvc, relaySvc, m, dbPinger, redisPinger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.RequestID())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.BodyLimit(cfg.MaxBodyBytes))
	r.Use(httpmiddleware.RateLimit(newLimiter(cfg, redisClient), m.Limited))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SubmitTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// In-flight webhook calls get their full submit timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SubmitTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// openAccounts picks the credential store. DB_DRIVER=memory keeps accounts
// in process and returns a nil DB.
func openAccounts(ctx context.Context, cfg config.App) (teacher.Store, *store.DB, error) {
	if cfg.DBDriver == "memory" {
		log.Println("using in-memory teacher store; accounts are lost on restart")
		return teacher.NewMemoryStore(), nil, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := store.NewDB(dialCtx, cfg.DBDriver, cfg.DatabaseURL, store.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
	})
	if err != nil {
		return nil, nil, err
	}

	repo := teacher.NewRepository(db)
	if cfg.DBAutoMigrate {
		if err := repo.Migrate(dialCtx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Printf("%s schema ready", db.Driver)
	}
	return repo, db, nil
}

func newLimiter(cfg config.App, redisClient *store.Redis) httpmiddleware.Limiter {
	if cfg.RateLimitBackend == "redis" {
		if redisClient != nil {
			return httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin, "rollsheet:rl:")
		}
		log.Println("RATE_LIMIT_BACKEND=redis but REDIS_ADDR is empty; using in-memory limiter")
	}
	return httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{httpmiddleware.RequestIDHeader},
		MaxAge:        24 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}
