package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/broadcaster"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/broadcaster/redisbus"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/circuitbreaker"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/config"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/coordinator"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/decomposer"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/executor"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/gitcoord"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/httpapi"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/metrics"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/worker"
)

func newRunCmd() *cobra.Command {
	var specID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "decompose a spec and drive one execution run while serving the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrchestrator(cmd.Context(), specID)
		},
	}
	cmd.Flags().StringVar(&specID, "spec-id", "demo-spec", "fixture spec_id to decompose (matches <spec-id>.yaml under the fixture dir)")
	return cmd
}

func runOrchestrator(ctx context.Context, specID string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := logging.New("development")
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	boot, driver := loadBootstrap(log)
	log, _ = logging.New(boot.LogMode)
	defer log.Sync()

	s, err := openStore(driver, boot.DatabaseURL)
	if err != nil {
		return err
	}
	defer s.Close()

	m := metrics.Init()

	bus, busCloser := newBus(boot, log)
	defer busCloser()

	d := httpapi.Deps{Store: s, Bus: bus, Metrics: m, Log: log}
	srv := &http.Server{
		Addr:              boot.HTTPAddr,
		Handler:           httpapi.NewRouter(d),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	srvErrCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", boot.HTTPAddr)
		srvErrCh <- srv.ListenAndServe()
	}()

	var git gitcoord.Coordinator
	if g, err := gitcoord.Open(boot.ReposRoot, log); err == nil {
		git = g
	} else {
		log.Warn("opening git repo failed, falling back to the in-memory fake coordinator", "error", err.Error())
		git = gitcoord.NewFake()
	}

	c := coordinator.New(s, decomposer.NewFixtureDecomposer(boot.FixtureSpecsDir), executor.NewFake(), git, bus, log)

	cfg := coordinator.Config{
		SpecID:        specID,
		MaxWorkers:    boot.MaxWorkers,
		ClaimLease:    boot.ClaimLease,
		ObserverTick:  boot.ObserverTick,
		CircuitConfig: circuitbreaker.DefaultConfig(),
		WorkerConfig:  worker.DefaultConfig(),
	}

	runDone := make(chan error, 1)
	go func() {
		summary, err := c.RunOnce(ctx, cfg)
		if err != nil {
			runDone <- err
			return
		}
		log.Info("run finished", "run_id", summary.RunID, "status", string(summary.Status))
		runDone <- nil
	}()

	select {
	case err := <-srvErrCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case err := <-runDone:
		if err != nil {
			log.Error("run failed", "error", err.Error())
		}
		<-ctx.Done()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newBus builds a Redis-backed broadcaster when REDIS_URL is set (for
// a multi-process deployment where /events subscribers and the worker
// pool live in different containers), otherwise an in-process Memory
// bus. The returned closer is always safe to defer.
func newBus(boot config.Bootstrap, log *logging.Logger) (broadcaster.Bus, func()) {
	if boot.RedisURL == "" {
		b := broadcaster.NewMemory(log)
		return b, b.Shutdown
	}
	opts, err := redis.ParseURL(boot.RedisURL)
	if err != nil {
		log.Warn("invalid REDIS_URL, falling back to the in-process bus", "error", err.Error())
		b := broadcaster.NewMemory(log)
		return b, b.Shutdown
	}
	client := redis.NewClient(opts)
	b := redisbus.New(client, log)
	return b, b.Shutdown
}
