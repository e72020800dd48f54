package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/savings-autopilot/internal/app"
	"github.com/dvloznov/savings-autopilot/internal/config"
	"github.com/dvloznov/savings-autopilot/internal/logger"
)

const (
	analyticsInterval = 7 * 24 * time.Hour
	retentionInterval = 30 * 24 * time.Hour
)

func main() {
	log := logger.New("savings-worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	deps, err := app.Build(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer deps.Close()

	log.Info().
		Dur("batch_interval", cfg.BatchInterval).
		Int("batch_limit", cfg.BatchLimit).
		Int("worker_count", cfg.WorkerCount).
		Msg("Starting worker service")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runBatchLoop(ctx, deps, cfg.BatchInterval, log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runAnalyticsLoop(ctx, deps, log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runRetentionLoop(ctx, deps, log)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()
	wg.Wait()

	log.Info().Msg("Worker service exited")
}

// runBatchLoop triggers a batch sweep immediately and then on every tick.
// A sweep error never stops the loop.
func runBatchLoop(ctx context.Context, deps *app.Deps, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := deps.Batch.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Batch sweep failed")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// runAnalyticsLoop computes weekly aggregate statistics over the past week.
func runAnalyticsLoop(ctx context.Context, deps *app.Deps, log zerolog.Logger) {
	ticker := time.NewTicker(analyticsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}

		to := time.Now()
		from := to.AddDate(0, 0, -7)

		result, err := deps.Analytics.Compute(ctx, from, to)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Msg("Weekly analytics failed")
			}
			continue
		}

		log.Info().
			Int("total_attempts", result.TotalAttempts).
			Float64("success_rate", result.SuccessRate).
			Float64("total_moved", result.TotalMoved).
			Msg("Weekly analytics computed")
	}
}

// runRetentionLoop retires aged audit data on a monthly cadence.
func runRetentionLoop(ctx context.Context, deps *app.Deps, log zerolog.Logger) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}

		if err := deps.Retention.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Retention pass failed")
		}
	}
}
