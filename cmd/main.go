package main

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"qistsync/internal/auth"
	"qistsync/internal/cache"
	"qistsync/internal/config"
	"qistsync/internal/controller"
	"qistsync/internal/engine"
	"qistsync/internal/localstore"
	"qistsync/internal/queue"
	"qistsync/internal/remote"
	"qistsync/internal/routes"
	"qistsync/internal/worker"
	"qistsync/pkg/logger"
)

func main() {
	loadEnvFile(".env")

	ctx := context.Background()
	cfg := config.Get()

	gateway, err := remote.Connect(ctx, cfg.RemoteDatabaseURL, cfg.DBPoolSize)
	if err != nil {
		logger.Error(ctx, "Remote store not configured; exiting", "error", err)
		os.Exit(1)
	}
	if err := gateway.Migrate(ctx); err != nil {
		// Not fatal: the engine serves local data until the remote
		// store comes back.
		logger.Warn(ctx, "Remote schema migration failed", "error", err)
	}

	// Local store: open failure degrades to the noop store, never fatal.
	var store localstore.Store
	if badgerStore, err := localstore.OpenBadger(cfg.LocalStorePath); err != nil {
		logger.Warn(ctx, "Local store unavailable, degrading to noop", "error", err, "path", cfg.LocalStorePath)
		store = localstore.Noop{}
	} else {
		store = badgerStore
	}
	defer store.Close()

	// Freshness cache: Redis when reachable, in-process otherwise.
	var freshness cache.Cache
	if redisCache, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.RedisPoolSize, cfg.CacheTTL); err != nil {
		logger.Warn(ctx, "Redis unavailable, using in-process freshness cache", "error", err)
		freshness = cache.NewMemory(cfg.CacheTTL)
	} else {
		freshness = redisCache
	}

	queue.EnsureTopic(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaPartitions)
	outbound := queue.NewKafka(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer outbound.Close()

	online := func(ctx context.Context) bool {
		return gateway.Healthy(ctx, 2*time.Second)
	}
	if cfg.Offline {
		logger.Info(ctx, "OFFLINE=true: remote fetches disabled")
		online = func(ctx context.Context) bool { return false }
	}

	eng := engine.New(engine.Config{
		Store:    store,
		Cache:    freshness,
		Remote:   gateway,
		Queue:    outbound,
		Sessions: auth.ContextSessions{},
		Online:   online,
	})

	// Queue drain: consumes the ops topic, writes to the remote store,
	// invalidates the freshness cache.
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go worker.Run(workerCtx, worker.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaGroupID,
		Remote:  gateway,
		Cache:   freshness,
	})

	ready := func(c *gin.Context) bool {
		return gateway.Healthy(c.Request.Context(), 2*time.Second)
	}
	ct := controller.New(eng, ready)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      routes.Router(ct),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info(ctx, "HTTP server listening", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Server shutdown error", "error", err)
	}
	stopWorker()
	eng.Flush()
	if err := gateway.Close(); err != nil {
		logger.Error(ctx, "Remote store close error", "error", err)
	}
	logger.Info(ctx, "Server stopped")
}

// loadEnvFile reads a .env file and sets env vars (only if not already set).
func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`) {
			val = strings.Trim(val, `"`)
		} else if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
			val = strings.Trim(val, "'")
		}
		if key != "" && os.Getenv(key) == "" {
			_ = os.Setenv(key, val)
		}
	}
}
