package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"changespage/api/internal/ai"
	"changespage/api/internal/app"
	"changespage/api/internal/authpw"
	"changespage/api/internal/billing"
	"changespage/api/internal/config"
	"changespage/api/internal/email"
	"changespage/api/internal/export"
	"changespage/api/internal/gitrepo"
	"changespage/api/internal/jobs"
	"changespage/api/internal/search"
	"changespage/api/internal/session"
	"changespage/api/internal/storage"
	"changespage/api/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARNING: could not load .env: %v", err)
	}
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	archive := gitrepo.New(cfg.ReposDir)
	mail := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)

	deps := app.Dependencies{
		AuthPW:  authpw.NewService(dataStore, cfg.JWTSecret),
		Mail:    mail,
		Search:  searchService,
		Archive: archive,
		Export:  export.NewService(dataStore),
	}

	if cfg.StripeSecretKey != "" {
		billingService := billing.NewService(billing.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			PriceID:       cfg.StripePriceID,
			SuccessURL:    cfg.PublicBaseURL + "/billing/success",
			CancelURL:     cfg.PublicBaseURL + "/billing/cancel",
		}, dataStore)
		deps.Billing = billingService
	}

	if cfg.AIAPIKey != "" {
		deps.AI = ai.NewClient(ai.Config{
			BaseURL: cfg.AIBaseURL,
			APIKey:  cfg.AIAPIKey,
			Model:   cfg.AIModel,
		})
	}

	if cfg.MinioEndpoint != "" {
		assets, err := storage.NewService(ctx, storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("object storage init failed: %v", err)
		}
		deps.Assets = assets
	}

	var scheduler *jobs.Scheduler
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		log.Printf("Using Redis for refresh token storage and job queues")
		deps.Sessions = session.NewRedisStoreWithClient(redisClient)
		deps.Queue = jobs.NewQueue(redisClient)

		var drafter jobs.Drafter
		if deps.AI != nil {
			drafter = deps.AI
		}
		runner := jobs.NewRunner(deps.Queue, dataStore, mail, drafter, cfg.PublicBaseURL)
		runner.Start(ctx)

		scheduler, err = jobs.NewScheduler(runner, searchService)
		if err != nil {
			log.Fatalf("scheduler init failed: %v", err)
		}
		if err := scheduler.Start(ctx); err != nil {
			log.Fatalf("scheduler start failed: %v", err)
		}
	} else {
		log.Printf("Using PostgreSQL for refresh token storage; background jobs disabled")
	}

	service := app.New(cfg, dataStore, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("changes.page API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			log.Printf("scheduler shutdown error: %v", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
