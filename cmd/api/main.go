package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"kpopdemonz-relay/internal/api"
	"kpopdemonz-relay/internal/archive"
	"kpopdemonz-relay/internal/captcha"
	"kpopdemonz-relay/internal/config"
	"kpopdemonz-relay/internal/kv"
	"kpopdemonz-relay/internal/mailer"
	"kpopdemonz-relay/internal/ratelimit"
	"kpopdemonz-relay/internal/replicate"
	"kpopdemonz-relay/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	db, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	kvStore := kv.New(cfg)
	defer kvStore.Close()
	if err := kvStore.Ping(ctx); err != nil {
		log.Fatalf("connect redis: %v", err)
	}

	deps := api.Deps{
		KV:        kvStore,
		DB:        db,
		Replicate: replicate.New(cfg.ReplicateAPIToken, cfg.ReplicateModel, cfg.ReplicateBaseURL),
	}

	if cfg.HCaptchaSecret != "" {
		deps.Captcha = captcha.New(cfg.HCaptchaSecret, cfg.HCaptchaEndpoint)
	}
	if cfg.ResendAPIKey != "" {
		deps.Mailer = mailer.New(cfg.ResendAPIKey, cfg.EmailFrom, cfg.SiteBaseURL, cfg.ResendEndpoint)
	}
	if cfg.ArchiveBucket != "" {
		deps.Archive, err = archive.New(ctx, cfg)
		if err != nil {
			log.Fatalf("init archive: %v", err)
		}
	}
	if cfg.RateLimitCapacity > 0 {
		limiterClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		deps.Limiter = ratelimit.NewTokenBucket(limiterClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	}

	server := api.New(cfg, deps)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("relay listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
