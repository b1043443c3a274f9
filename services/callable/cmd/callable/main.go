package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Elias24978/safety-app/internal/idtoken"
	"github.com/Elias24978/safety-app/internal/ratelimit"
	"github.com/Elias24978/safety-app/internal/util"
	"github.com/Elias24978/safety-app/pkg/pushtoken"
	"github.com/Elias24978/safety-app/pkg/recordstore"
	"github.com/Elias24978/safety-app/pkg/schema"
	"github.com/Elias24978/safety-app/services/callable/internal/app"
	"github.com/Elias24978/safety-app/services/callable/internal/config"
	"github.com/Elias24978/safety-app/services/callable/internal/server"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger("callable", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mapping, err := schema.Load(cfg.SchemaPath)
	if err != nil {
		log.Fatalf("failed to load schema: %v", err)
	}

	var records recordstore.Store
	switch cfg.RecordStore {
	case "memory":
		mem := recordstore.NewMemoryStore()
		for _, table := range mapping.DC3.Tables() {
			mem.AddTable(table)
		}
		records = mem
		logger.Warn("using in-memory record store")
	default:
		client, err := recordstore.NewClient(recordstore.Config{
			APIKey:            cfg.AirtableKey,
			BaseID:            cfg.AirtableBaseIDDC3,
			BaseURL:           cfg.AirtableBaseURL,
			RequestsPerSecond: cfg.AirtableRequestsPerSecond,
		})
		if err != nil {
			log.Fatalf("failed to init record store: %v", err)
		}
		if cfg.SchemaCheckOnStart {
			checkCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
			err := mapping.CheckDC3(checkCtx, client)
			cancel()
			if err != nil {
				log.Fatalf("schema check failed: %v", err)
			}
			logger.Info("schema check passed", "version", mapping.Version)
		}
		records = client
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer redisClient.Close()

	var tokens pushtoken.Store
	switch cfg.PushTokenStore {
	case "postgres":
		store, err := pushtoken.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init push token store: %v", err)
		}
		tokens = store
	default:
		tokens = pushtoken.NewRedisStore(redisClient, cfg.PushTokenPrefix)
	}

	limiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "", cfg.RateLimitPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}

	verifier, err := idtoken.NewVerifier(ctx, idtoken.Config{
		ProjectID:  cfg.FirebaseProjectID,
		JWKSURL:    cfg.IDTokenJWKSURL,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to init id token verifier: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("invalid trusted proxy config: %v", err)
	}

	appCore, err := app.New(app.Config{Records: records, Schema: mapping, Tokens: tokens})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Verifier:       verifier,
		Limiter:        limiter,
		TrustedProxies: trusted,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("callable server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
