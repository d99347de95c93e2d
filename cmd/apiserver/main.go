// Command apiserver exposes the submission API (§6) over HTTP, mirroring
// flux-go's cmd/api-server/main.go wiring: connect the durable store and
// fast queue, build the coordinator and handlers, serve, and drain on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/massanaroger/flux-jobs/internal/config"
	"github.com/massanaroger/flux-jobs/internal/coordinator"
	"github.com/massanaroger/flux-jobs/internal/domain"
	"github.com/massanaroger/flux-jobs/internal/handlers"
	"github.com/massanaroger/flux-jobs/internal/httpapi"
	"github.com/massanaroger/flux-jobs/internal/logging"
	"github.com/massanaroger/flux-jobs/internal/queue"
	"github.com/massanaroger/flux-jobs/internal/stats"
	"github.com/massanaroger/flux-jobs/internal/store"
)

func main() {
	cfg, err := config.Load()
	log := logging.New("info")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logging.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to durable store")
	}
	defer pool.Close()
	if cfg.AutoMigrate {
		if err := store.AutoMigrateDev(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("auto-migration failed")
		}
	}
	jobStore := store.New(pool, log)

	var fastQueue *queue.RedisQueue
	if cfg.UseFastQueue {
		redisClient := queue.Connect(cfg.RedisAddr, cfg.RedisPassword)
		defer redisClient.Close()
		fastQueue = queue.New(redisClient, log)
	}

	c := coordinator.New(jobStore, fastQueue, cfg.UseFastQueue, log)
	reporter := stats.New(jobStore, fastQueue, cfg.UseFastQueue)

	// The API server never executes jobs, but it validates submissions
	// against the same set of known job_types the worker process executes
	// against, so an unknown type is rejected synchronously (§7) instead of
	// reaching the queue.
	registry := domain.NewHandlerRegistry()
	handlers.Register(registry)
	handler := httpapi.New(c, reporter, registry, cfg.BulkSubmitCap, cfg.DefaultMaxRetries)

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "flux-jobs-apiserver"})
	})

	v1 := router.Group("/api/v1")
	handler.Register(v1)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("api server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("api server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down api server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server forced shutdown")
	}
}
