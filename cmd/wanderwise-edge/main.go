package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/wanderwise/edge/internal/admin"
	"github.com/wanderwise/edge/internal/cache"
	"github.com/wanderwise/edge/internal/config"
	"github.com/wanderwise/edge/internal/http"
	"github.com/wanderwise/edge/internal/lifecycle"
	"github.com/wanderwise/edge/internal/lock"
	"github.com/wanderwise/edge/internal/logging"
	"github.com/wanderwise/edge/internal/metrics"
	"github.com/wanderwise/edge/internal/middleware"
	"github.com/wanderwise/edge/internal/origin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.LogLevel)
	metrics.Init()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	var locker lock.Locker = lock.Local{}
	if cfg.RedisAddr != "" {
		locker = &lock.RedisLocker{
			Client:  lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB),
			TTL:     cfg.LockTTL(),
			MaxWait: cfg.LockTTL(),
		}
	}

	originClient, err := origin.NewClient(cfg.OriginBaseURL, cfg.OriginTimeout)
	if err != nil {
		log.Fatal(err)
	}

	worker := lifecycle.NewWorker(store, originClient, locker, logger)
	if err := worker.Start(ctx); err != nil {
		log.Fatal(err)
	}

	handler := httpx.NewHandler(originClient.BaseURL(), store, originClient, worker.Registry, logger)
	status := &admin.Handler{Registry: worker.Registry}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", status.Ready)
	mux.Handle(admin.StatusPath, status)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", middleware.Chain(handler, middleware.RequestID(), middleware.Observe(logger)))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "generation", lifecycle.CacheName, "store", cfg.Store)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (cache.Store, func(), error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := cache.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StoreS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		)
		if err != nil {
			return nil, nil, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		})
		return cache.NewS3Store(cfg.S3Bucket, cfg.S3Prefix, client), func() {}, nil
	default:
		return cache.NewMemoryStore(), func() {}, nil
	}
}
