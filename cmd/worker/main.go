// Command worker runs the worker pool (component G) as a cobra CLI with
// two subcommands: run starts polling and executing jobs until signalled,
// drain stops accepting new jobs and waits for in-flight ones to finish.
// Grounded on navjo3-queuectl and Pranav1703-FlamAssignment's cobra-based
// job CLIs, adapted from their single-command shape to flux-jobs's
// run/drain pair.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/massanaroger/flux-jobs/internal/config"
	"github.com/massanaroger/flux-jobs/internal/coordinator"
	"github.com/massanaroger/flux-jobs/internal/domain"
	"github.com/massanaroger/flux-jobs/internal/executor"
	"github.com/massanaroger/flux-jobs/internal/handlers"
	"github.com/massanaroger/flux-jobs/internal/logging"
	"github.com/massanaroger/flux-jobs/internal/queue"
	"github.com/massanaroger/flux-jobs/internal/store"
	"github.com/massanaroger/flux-jobs/internal/worker"
)

func main() {
	root := &cobra.Command{
		Use:   "worker",
		Short: "flux-jobs worker pool",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "poll for jobs and execute them until signalled to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}

	drainCmd := &cobra.Command{
		Use:   "drain",
		Short: "stop polling for new jobs immediately and wait for in-flight jobs to finish, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return drainWorker()
		},
	}

	root.AddCommand(runCmd, drainCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runWorker registers the built-in handlers (external callers register
// their own via the same HandlerRegistry in a real deployment) and runs
// the pool until ctx is cancelled by SIGINT/SIGTERM.
func runWorker() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return runPool(ctx)
}

// drainWorker cancels the pool's context immediately rather than waiting
// for a signal, so it runs the same grace-period drain logic as run but
// exits as soon as whatever was already in flight (nothing, for a freshly
// started process) finishes. It exists so operators can exercise the
// shutdown path outside of a live deployment.
func drainWorker() error {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return runPool(ctx)
}

func runPool(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.LogLevel)

	setupCtx, setupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer setupCancel()

	pool, err := store.Connect(setupCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to durable store: %w", err)
	}
	defer pool.Close()
	if cfg.AutoMigrate {
		if err := store.AutoMigrateDev(setupCtx, pool); err != nil {
			return fmt.Errorf("auto-migration: %w", err)
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

	registry := domain.NewHandlerRegistry()
	handlers.Register(registry)

	backoff := executor.NewBackoff(cfg.RetryBackoffBase, cfg.RetryJitter)
	fsm := executor.NewFSM(backoff)
	exec := executor.New(jobStore, fastQueue, registry, fsm, cfg.JobTimeout, cfg.UseFastQueue, log)

	p := worker.New(c, exec, cfg.MaxWorkers, cfg.PollInterval, cfg.ShutdownGracePeriod, log)

	go reclaimLoop(ctx, c, cfg.ReclaimScanInterval, log)

	log.Info().Int("workers", cfg.MaxWorkers).Msg("worker pool starting")
	p.Run(ctx)
	<-p.Done()
	log.Info().Msg("worker pool stopped")
	return nil
}

// reclaimLoop periodically republishes durable rows the fast tier has
// lost track of, per §4.3. It exits when ctx is cancelled.
func reclaimLoop(ctx context.Context, c *coordinator.Coordinator, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.ReclaimScan(ctx, 500)
			if err != nil {
				log.Warn().Err(err).Msg("reclaim scan failed")
				continue
			}
			if n > 0 {
				log.Info().Int("reclaimed", n).Msg("reclaim scan republished missing jobs")
			}
		}
	}
}
