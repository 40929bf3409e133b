package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"djchat/backend/internal/api/handler"
	"djchat/backend/internal/auth"
	"djchat/backend/internal/chathub"
	"djchat/backend/internal/config"
	"djchat/backend/internal/metrics"
	"djchat/backend/internal/storage"
	"djchat/backend/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func setupDependencies(ctx context.Context, cfg *config.Config) (*gorm.DB, *storage.InsertListener, *redis.Client) {
	// 1. PostgreSQL
	db, err := storage.Open(cfg.DSN(), cfg.DBLogLevel)
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// 2. LISTEN connection for inserts made by other devices
	listener, err := storage.NewInsertListener(cfg.DSN())
	if err != nil {
		log.Printf("WARNING: insert push disabled: %v", err)
		listener = nil
	}

	// 3. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, listener, rdb
}

func main() {
	log.Println("Starting DJ chat backend...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, listener, rdb := setupDependencies(ctx, cfg)
	defer rdb.Close()

	store := storage.NewStorageService(db, listener)
	rec := metrics.New()

	hub := chathub.NewManagerService(store, transport.NewRedisTransport(rdb), cfg.Chat)
	hub.Access = store
	hub.Recorder = rec

	r := gin.Default()
	handler.NewHandler(hub, store, auth.NewTokenIssuer(cfg.JWTSecret)).Register(r)
	r.GET("/metrics", gin.WrapH(rec.Handler()))

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if listener != nil {
		g.Go(func() error {
			listener.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		log.Printf("INFO: listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
	log.Println("INFO: shutdown complete")
}
