package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/audience-builder/internal/api"
	"github.com/ignite/audience-builder/internal/audience"
	"github.com/ignite/audience-builder/internal/config"
	"github.com/ignite/audience-builder/internal/datanorm"
	"github.com/ignite/audience-builder/internal/pkg/logger"
	"github.com/ignite/audience-builder/internal/pkg/metrics"
	"github.com/ignite/audience-builder/internal/storage"
	"github.com/ignite/audience-builder/internal/upload"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  Audience Builder API (cmd/server/main.go)                 ║")
	log.Println("║  CSV upload, column mapping and lookalike profiles         ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactEnabled())

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Upload sessions live in Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Printf("WARNING: Redis not reachable at %s: %v (sessions will fail until it is)", cfg.Redis.Addr, err)
	} else {
		log.Printf("Redis connected at %s", cfg.Redis.Addr)
	}
	pingCancel()

	// Pipeline
	mapper := datanorm.NewMapper()
	builderOpts := []audience.Option{
		audience.WithSizeFactor(cfg.Audience.SizeFactorMin, cfg.Audience.SizeFactorMax),
		audience.WithDescriptionTemplate(cfg.Audience.DescriptionTemplate),
	}
	if cfg.Audience.RandomSeed != 0 {
		builderOpts = append(builderOpts, audience.WithRandomSource(audience.NewRandomSource(cfg.Audience.RandomSeed)))
		log.Printf("Profile sizing seeded with %d", cfg.Audience.RandomSeed)
	}
	builder, err := audience.NewBuilder(builderOpts...)
	if err != nil {
		log.Fatalf("Invalid audience description template: %v", err)
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.New(cfg.Metrics.Namespace)
		log.Println("Prometheus metrics enabled at /metrics")
	}

	uploadOpts := []upload.Option{upload.WithMetrics(recorder)}

	// Optional S3 source
	var objects api.Pinger
	if cfg.Storage.Enabled() {
		store, err := storage.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			log.Printf("WARNING: S3 uploads disabled: %v", err)
		} else {
			uploadOpts = append(uploadOpts, upload.WithObjectStore(store))
			objects = store
			log.Printf("S3 uploads enabled from s3://%s/%s", cfg.Storage.S3Bucket, cfg.Storage.S3Prefix)
		}
	}

	uploads := upload.NewService(redisClient, mapper, builder, upload.Limits{
		MinBytes:    cfg.Upload.MinBytes,
		MaxBytes:    cfg.Upload.MaxBytes,
		PreviewRows: cfg.Upload.PreviewRows,
		SessionTTL:  cfg.Redis.SessionTTL(),
		KeyPrefix:   cfg.Redis.KeyPrefix,
	}, uploadOpts...)

	handlers := api.NewHandlers(uploads, api.NewHealthChecker(redisClient, objects), cfg.Upload.MaxBytes)
	routeOpts := api.RouteOptions{CORSOrigins: cfg.Server.CORSOrigins}
	if recorder != nil {
		routeOpts.Metrics = recorder.Handler()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      api.SetupRoutes(handlers, routeOpts),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	logger.Info("server ready", "addr", server.Addr, "max_upload_bytes", cfg.Upload.MaxBytes)

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("Redis close error: %v", err)
	}

	log.Println("Server stopped")
}
