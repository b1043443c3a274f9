package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Elias24978/safety-app/internal/metrics"
	"github.com/Elias24978/safety-app/internal/util"
	"github.com/Elias24978/safety-app/pkg/push"
	"github.com/Elias24978/safety-app/pkg/pushtoken"
	"github.com/Elias24978/safety-app/pkg/recordstore"
	"github.com/Elias24978/safety-app/pkg/schema"
	"github.com/Elias24978/safety-app/services/digest/internal/app"
	"github.com/Elias24978/safety-app/services/digest/internal/config"
	"github.com/Elias24978/safety-app/services/digest/internal/scheduler"
)

func main() {
	once := flag.Bool("once", false, "run one digest and exit")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger("digest", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mapping, err := schema.Load(cfg.SchemaPath)
	if err != nil {
		log.Fatalf("failed to load schema: %v", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("failed to load timezone: %v", err)
	}

	var records recordstore.Store
	switch cfg.RecordStore {
	case "memory":
		mem := recordstore.NewMemoryStore()
		mem.AddTable(mapping.Applications.Table)
		records = mem
		logger.Warn("using in-memory record store")
	default:
		client, err := recordstore.NewClient(recordstore.Config{
			APIKey:            cfg.AirtableKey,
			BaseID:            cfg.AirtableBaseIDBolsa,
			BaseURL:           cfg.AirtableBaseURL,
			RequestsPerSecond: cfg.AirtableRequestsPerSecond,
		})
		if err != nil {
			log.Fatalf("failed to init record store: %v", err)
		}
		if cfg.SchemaCheckOnStart {
			checkCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
			err := mapping.CheckApplications(checkCtx, client)
			cancel()
			if err != nil {
				log.Fatalf("schema check failed: %v", err)
			}
		}
		records = client
	}

	// Left as a nil interface without an address so redis consumers can
	// detect the missing client.
	var redisClient redis.Cmdable
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer client.Close()
		redisClient = client
	}

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

	var sender push.Sender
	switch cfg.PushSender {
	case "amqp":
		amqpSender, err := push.NewAMQPSender(push.AMQPConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			RoutingKey: cfg.AMQPRoutingKey,
		})
		if err != nil {
			log.Fatalf("failed to init amqp sender: %v", err)
		}
		defer amqpSender.Close()
		sender = amqpSender
	case "stream":
		streamSender, err := push.NewStreamSender(redisClient, push.StreamConfig{
			Stream: cfg.PushStream,
			MaxLen: cfg.PushStreamMaxLen,
		})
		if err != nil {
			log.Fatalf("failed to init stream sender: %v", err)
		}
		sender = streamSender
	case "log":
		sender = push.LogSender{Logger: logger}
	default:
		fcmSender, err := push.NewFCMSender(ctx, push.FCMConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsFile: cfg.FirebaseCredentialsFile,
		})
		if err != nil {
			log.Fatalf("failed to init fcm sender: %v", err)
		}
		sender = fcmSender
	}

	var lock app.RunLock
	if cfg.RunLockEnabled() {
		lock = app.NewRedisRunLock(redisClient, "")
	}

	job, err := app.New(app.Config{
		Records:  records,
		Schema:   mapping,
		Tokens:   tokens,
		Sender:   sender,
		Lock:     lock,
		Location: loc,
		Timeout:  cfg.RunTimeout(),
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to init digest: %v", err)
	}

	if *once {
		report := job.Run(ctx)
		logger.Info("digest run complete", "outcome", report.Outcome)
		return
	}

	sched, err := scheduler.New(scheduler.Config{
		Spec:       cfg.Schedule,
		Location:   loc,
		RunOnStart: cfg.RunOnStart,
		Logger:     logger,
	}, job)
	if err != nil {
		log.Fatalf("failed to init scheduler: %v", err)
	}
	sched.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "nextRun": sched.Next(time.Now())})
	})
	mux.Handle("/metrics", metrics.Handler())
	metrics.RegisterPaths("/healthz", "/metrics")

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      util.WithRequestID(util.WithRequestLog("digest", nil, metrics.ObserveRequest, mux)),
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

	slog.Info("digest server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
	sched.Stop()
}
